package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/service"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/response"
)

type lecturerViews interface {
	GetLecturerCommittees(ctx context.Context, lecturerCode string) ([]models.LecturerCommittee, bool, error)
}

type lecturerCalendar interface {
	LecturerCalendar(ctx context.Context, lecturerCode string) (*service.ExportFile, error)
}

// LecturerHandler serves a lecturer's committee schedule.
type LecturerHandler struct {
	views    lecturerViews
	calendar lecturerCalendar
}

// NewLecturerHandler builds a new handler.
func NewLecturerHandler(views lecturerViews, calendar lecturerCalendar) *LecturerHandler {
	return &LecturerHandler{views: views, calendar: calendar}
}

// Committees godoc
// @Summary List committees a lecturer sits on
// @Tags Lecturers
// @Produce json
// @Param code path string true "Lecturer code"
// @Success 200 {object} response.Envelope
// @Router /lecturers/{code}/committees [get]
func (h *LecturerHandler) Committees(c *gin.Context) {
	items, cached, err := h.views.GetLecturerCommittees(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil, cacheMeta(cached))
}

// Calendar godoc
// @Summary Download a lecturer's committee sessions as iCalendar
// @Tags Lecturers
// @Produce text/calendar
// @Param code path string true "Lecturer code"
// @Success 200 {file} file
// @Router /lecturers/{code}/committees.ics [get]
func (h *LecturerHandler) Calendar(c *gin.Context) {
	file, err := h.calendar.LecturerCalendar(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}
