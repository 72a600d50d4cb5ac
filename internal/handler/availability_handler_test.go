package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
	appErrors "github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/errors"
)

type availabilityServiceMock struct {
	lecturers      []models.Lecturer
	lecturerErr    error
	lastLecturer   models.LecturerFilter
	topics         []models.Topic
	lastTopic      models.TopicFilter
	lecturerCalled bool
}

func (m *availabilityServiceMock) AvailableLecturers(ctx context.Context, filter models.LecturerFilter) ([]models.Lecturer, *models.Pagination, error) {
	m.lecturerCalled = true
	m.lastLecturer = filter
	return m.lecturers, &models.Pagination{Page: 1, PageSize: 20, TotalCount: len(m.lecturers)}, m.lecturerErr
}

func (m *availabilityServiceMock) AvailableTopics(ctx context.Context, filter models.TopicFilter) ([]models.Topic, *models.Pagination, error) {
	m.lastTopic = filter
	return m.topics, &models.Pagination{Page: 1, PageSize: 20, TotalCount: len(m.topics)}, nil
}

func TestAvailabilityHandlerLecturersParsesFilter(t *testing.T) {
	svc := &availabilityServiceMock{lecturers: []models.Lecturer{{Code: "L1"}}}
	handler := NewAvailabilityHandler(svc)

	target := "/availability/lecturers?tag=AI&date=2025-06-10&role=chair&require_chair=true&excluding_committee=C1&page=1&page_size=5"
	c, w := newAdminContext(http.MethodGet, target, "")
	handler.Lecturers(c)

	require.Equal(t, http.StatusOK, w.Code)
	f := svc.lastLecturer
	assert.Equal(t, "AI", f.Tag)
	require.NotNil(t, f.Date)
	assert.True(t, f.Date.Equal(time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, models.MemberRoleChair, f.Role)
	assert.True(t, f.RequireChair)
	assert.Equal(t, "C1", f.ExcludingCommittee)
	assert.Equal(t, 5, f.PageSize)
}

func TestAvailabilityHandlerLecturersBadQuery(t *testing.T) {
	for _, target := range []string{
		"/availability/lecturers?date=tomorrow",
		"/availability/lecturers?require_chair=perhaps",
		"/availability/lecturers?page_size=lots",
	} {
		svc := &availabilityServiceMock{}
		c, w := newAdminContext(http.MethodGet, target, "")
		NewAvailabilityHandler(svc).Lecturers(c)

		assert.Equal(t, http.StatusBadRequest, w.Code, target)
		assert.False(t, svc.lecturerCalled, target)
	}
}

func TestAvailabilityHandlerLecturersServiceError(t *testing.T) {
	svc := &availabilityServiceMock{lecturerErr: appErrors.Clone(appErrors.ErrValidation, "invalid role filter")}
	c, w := newAdminContext(http.MethodGet, "/availability/lecturers?role=dean", "")
	NewAvailabilityHandler(svc).Lecturers(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, models.MemberRole("DEAN"), svc.lastLecturer.Role)
}

func TestAvailabilityHandlerTopics(t *testing.T) {
	svc := &availabilityServiceMock{topics: []models.Topic{{Code: "T1"}, {Code: "T2"}}}
	c, w := newAdminContext(http.MethodGet, "/availability/topics?tag=AI&department=CS&excluding_committee=C2", "")
	NewAvailabilityHandler(svc).Topics(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.TopicFilter{Tag: "AI", DepartmentCode: "CS", ExcludingCommittee: "C2"}, svc.lastTopic)
	env := decodeEnvelope(t, w)
	assert.Len(t, env["data"], 2)
}
