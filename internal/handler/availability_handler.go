package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/response"
)

type availabilityService interface {
	AvailableLecturers(ctx context.Context, filter models.LecturerFilter) ([]models.Lecturer, *models.Pagination, error)
	AvailableTopics(ctx context.Context, filter models.TopicFilter) ([]models.Topic, *models.Pagination, error)
}

// AvailabilityHandler answers who and what can still be scheduled.
type AvailabilityHandler struct {
	service availabilityService
}

// NewAvailabilityHandler builds a new handler.
func NewAvailabilityHandler(service availabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: service}
}

// Lecturers godoc
// @Summary List lecturers available for a committee seat
// @Tags Availability
// @Produce json
// @Param tag query string false "Required lecturer tag"
// @Param date query string false "Defense date (YYYY-MM-DD)"
// @Param role query string false "CHAIR, SECRETARY, MEMBER or REVIEWER"
// @Param require_chair query bool false "Only chair-eligible lecturers"
// @Param excluding_committee query string false "Committee whose own members stay eligible"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /availability/lecturers [get]
func (h *AvailabilityHandler) Lecturers(c *gin.Context) {
	date, err := queryDate(c, "date")
	if err != nil {
		response.Error(c, err)
		return
	}
	requireChair, err := queryBool(c, "require_chair")
	if err != nil {
		response.Error(c, err)
		return
	}
	page, size, err := queryPage(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, pagination, err := h.service.AvailableLecturers(c.Request.Context(), models.LecturerFilter{
		Tag:                c.Query("tag"),
		Date:               date,
		Role:               models.MemberRole(strings.ToUpper(c.Query("role"))),
		RequireChair:       requireChair,
		ExcludingCommittee: c.Query("excluding_committee"),
		Page:               page,
		PageSize:           size,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Topics godoc
// @Summary List topics awaiting a defense slot
// @Tags Availability
// @Produce json
// @Param tag query string false "Topic tag"
// @Param department query string false "Department code"
// @Param excluding_committee query string false "Skip topics last placed on this committee"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /availability/topics [get]
func (h *AvailabilityHandler) Topics(c *gin.Context) {
	page, size, err := queryPage(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, pagination, err := h.service.AvailableTopics(c.Request.Context(), models.TopicFilter{
		Tag:                c.Query("tag"),
		DepartmentCode:     c.Query("department"),
		ExcludingCommittee: c.Query("excluding_committee"),
		Page:               page,
		PageSize:           size,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}
