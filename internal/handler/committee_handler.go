package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/dto"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/service"
	appErrors "github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/errors"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/response"
)

type committeeRegistry interface {
	List(ctx context.Context, filter models.CommitteeFilter) ([]models.Committee, *models.Pagination, error)
	Create(ctx context.Context, req dto.CreateCommitteeRequest, actor string) (*models.Committee, error)
	Update(ctx context.Context, code string, req dto.UpdateCommitteeRequest, actor string) (*models.Committee, error)
	SaveMembers(ctx context.Context, code string, req dto.SaveCommitteeMembersRequest, actor string) ([]models.CommitteeMember, error)
	Delete(ctx context.Context, code string, force bool, actor string) error
}

type committeeViews interface {
	GetCommitteeDetail(ctx context.Context, code string) (*models.CommitteeDetail, bool, error)
}

type committeeExporter interface {
	ExportCommittee(ctx context.Context, code, format string) (*service.ExportFile, error)
}

type auditHistory interface {
	History(ctx context.Context, entityType, entityCode string, limit int) ([]models.AuditLog, error)
}

// CommitteeHandler exposes committee registry endpoints.
type CommitteeHandler struct {
	registry committeeRegistry
	views    committeeViews
	exporter committeeExporter
	audit    auditHistory
}

// NewCommitteeHandler builds a new handler.
func NewCommitteeHandler(registry committeeRegistry, views committeeViews, exporter committeeExporter, audit auditHistory) *CommitteeHandler {
	return &CommitteeHandler{registry: registry, views: views, exporter: exporter, audit: audit}
}

// List godoc
// @Summary List committees
// @Tags Committees
// @Produce json
// @Param from query string false "Earliest defense date (YYYY-MM-DD)"
// @Param to query string false "Latest defense date (YYYY-MM-DD)"
// @Param tag query string false "Committee tag"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /committees [get]
func (h *CommitteeHandler) List(c *gin.Context) {
	from, err := queryDate(c, "from")
	if err != nil {
		response.Error(c, err)
		return
	}
	to, err := queryDate(c, "to")
	if err != nil {
		response.Error(c, err)
		return
	}
	page, size, err := queryPage(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, pagination, err := h.registry.List(c.Request.Context(), models.CommitteeFilter{
		FromDate: from,
		ToDate:   to,
		Tag:      c.Query("tag"),
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get committee detail
// @Tags Committees
// @Produce json
// @Param code path string true "Committee code"
// @Success 200 {object} response.Envelope
// @Router /committees/{code} [get]
func (h *CommitteeHandler) Get(c *gin.Context) {
	detail, cached, err := h.views.GetCommitteeDetail(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil, cacheMeta(cached))
}

// Create godoc
// @Summary Create a committee
// @Tags Committees
// @Accept json
// @Produce json
// @Param payload body dto.CreateCommitteeRequest true "Committee payload"
// @Success 201 {object} response.Envelope
// @Router /committees [post]
func (h *CommitteeHandler) Create(c *gin.Context) {
	var req dto.CreateCommitteeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid committee payload"))
		return
	}
	committee, err := h.registry.Create(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, committee)
}

// Update godoc
// @Summary Update a committee
// @Tags Committees
// @Accept json
// @Produce json
// @Param code path string true "Committee code"
// @Param payload body dto.UpdateCommitteeRequest true "Committee changes"
// @Success 200 {object} response.Envelope
// @Router /committees/{code} [put]
func (h *CommitteeHandler) Update(c *gin.Context) {
	var req dto.UpdateCommitteeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid committee payload"))
		return
	}
	committee, err := h.registry.Update(c.Request.Context(), c.Param("code"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, committee, nil)
}

// SaveMembers godoc
// @Summary Replace committee membership
// @Tags Committees
// @Accept json
// @Produce json
// @Param code path string true "Committee code"
// @Param payload body dto.SaveCommitteeMembersRequest true "Members"
// @Success 200 {object} response.Envelope
// @Router /committees/{code}/members [put]
func (h *CommitteeHandler) SaveMembers(c *gin.Context) {
	var req dto.SaveCommitteeMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid members payload"))
		return
	}
	members, err := h.registry.SaveMembers(c.Request.Context(), c.Param("code"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, members, nil)
}

// Delete godoc
// @Summary Delete a committee
// @Description Without force the committee must have no active assignments.
// @Tags Committees
// @Param code path string true "Committee code"
// @Param force query bool false "Deactivate active assignments first"
// @Success 204
// @Router /committees/{code} [delete]
func (h *CommitteeHandler) Delete(c *gin.Context) {
	force, err := queryBool(c, "force")
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.registry.Delete(c.Request.Context(), c.Param("code"), force, actorFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Export godoc
// @Summary Export a committee session sheet
// @Tags Committees
// @Produce octet-stream
// @Param code path string true "Committee code"
// @Param format query string false "csv, pdf or xlsx" default(csv)
// @Success 200 {file} file
// @Router /committees/{code}/export [get]
func (h *CommitteeHandler) Export(c *gin.Context) {
	file, err := h.exporter.ExportCommittee(c.Request.Context(), c.Param("code"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

// AuditHistory godoc
// @Summary Recent audit entries for a committee
// @Tags Committees
// @Produce json
// @Param code path string true "Committee code"
// @Param limit query int false "Maximum entries"
// @Success 200 {object} response.Envelope
// @Router /committees/{code}/audit [get]
func (h *CommitteeHandler) AuditHistory(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		response.Error(c, err)
		return
	}
	logs, err := h.audit.History(c.Request.Context(), models.AuditEntityCommittee, c.Param("code"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}
