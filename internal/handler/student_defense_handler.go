package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/response"
)

type studentDefenseViews interface {
	GetStudentDefenseInfo(ctx context.Context, studentCode string) (*models.StudentDefenseInfo, bool, error)
}

// StudentDefenseHandler exposes a student's defense schedule.
type StudentDefenseHandler struct {
	views studentDefenseViews
}

// NewStudentDefenseHandler builds a new handler.
func NewStudentDefenseHandler(views studentDefenseViews) *StudentDefenseHandler {
	return &StudentDefenseHandler{views: views}
}

// Get godoc
// @Summary Get a student's defense information
// @Tags Students
// @Produce json
// @Param code path string true "Student code"
// @Success 200 {object} response.Envelope
// @Router /students/{code}/defense [get]
func (h *StudentDefenseHandler) Get(c *gin.Context) {
	info, cached, err := h.views.GetStudentDefenseInfo(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, info, nil, cacheMeta(cached))
}
