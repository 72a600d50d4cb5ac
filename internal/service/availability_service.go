package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
	appErrors "github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/errors"
)

// AvailabilityService answers which lecturers and topics can still be placed.
type AvailabilityService struct {
	topics     topicStore
	committees committeeStore
	members    memberStore
	lecturers  lecturerStore
	chair      ChairEligibility
	logger     *zap.Logger
}

// NewAvailabilityService constructs an AvailabilityService.
func NewAvailabilityService(topics topicStore, committees committeeStore, members memberStore, lecturers lecturerStore, chair ChairEligibility, logger *zap.Logger) *AvailabilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if chair == nil {
		chair = anyChairPolicy{}
	}
	return &AvailabilityService{topics: topics, committees: committees, members: members, lecturers: lecturers, chair: chair, logger: logger}
}

// AvailableLecturers lists lecturers matching the filter with quota headroom
// and no seat on another committee whose session overlaps the probed one.
func (s *AvailabilityService) AvailableLecturers(ctx context.Context, filter models.LecturerFilter) ([]models.Lecturer, *models.Pagination, error) {
	if filter.Role != "" && !filter.Role.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid role filter")
	}

	lecturers, err := s.lecturers.ListByTag(ctx, filter.Tag)
	if err != nil {
		return nil, nil, internalError(err, "failed to list lecturers")
	}

	busy, err := s.busyLecturers(ctx, filter)
	if err != nil {
		return nil, nil, err
	}

	requireChair := filter.RequireChair || filter.Role == models.MemberRoleChair
	result := make([]models.Lecturer, 0, len(lecturers))
	for _, lecturer := range lecturers {
		if !lecturer.HasQuotaHeadroom() {
			continue
		}
		if _, ok := busy[lecturer.Code]; ok {
			continue
		}
		if requireChair && !s.chair.Eligible(lecturer) {
			continue
		}
		result = append(result, lecturer)
	}

	items, pagination := paginate(result, filter.Page, filter.PageSize)
	return items, pagination, nil
}

// busyLecturers returns lecturers seated on committees overlapping the probe
// session. The probe is the excluded committee's own window when it sits on
// the requested date and the whole day otherwise.
func (s *AvailabilityService) busyLecturers(ctx context.Context, filter models.LecturerFilter) (map[string]struct{}, error) {
	busy := make(map[string]struct{})
	if filter.Date == nil {
		return busy, nil
	}

	probe := models.Committee{DefenseDate: *filter.Date}
	if filter.ExcludingCommittee != "" {
		own, err := s.committees.FindByCode(ctx, nil, filter.ExcludingCommittee)
		if err != nil {
			return nil, notFoundOr(err, "committee not found", "failed to load committee")
		}
		if own.OnDefenseDate(*filter.Date) {
			probe = *own
		}
	}

	sameDay, err := s.committees.ListByDate(ctx, nil, *filter.Date)
	if err != nil {
		return nil, internalError(err, "failed to load committees on date")
	}
	var codes []string
	for _, committee := range sameDay {
		if committee.Code == filter.ExcludingCommittee {
			continue
		}
		if probe.Overlaps(committee) {
			codes = append(codes, committee.Code)
		}
	}
	if len(codes) == 0 {
		return busy, nil
	}

	members, err := s.members.ListByCommittees(ctx, nil, codes)
	if err != nil {
		return nil, internalError(err, "failed to load committee members")
	}
	for _, m := range members {
		busy[m.LecturerCode] = struct{}{}
	}
	return busy, nil
}

// AvailableTopics lists defense-eligible topics without an active assignment.
func (s *AvailabilityService) AvailableTopics(ctx context.Context, filter models.TopicFilter) ([]models.Topic, *models.Pagination, error) {
	topics, err := s.topics.ListAvailable(ctx, nil, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list available topics")
	}
	items, pagination := paginate(topics, filter.Page, filter.PageSize)
	return items, pagination, nil
}

func paginate[T any](items []T, page, size int) ([]T, *models.Pagination) {
	page, size = models.NormalizePage(page, size)
	total := len(items)
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	out := make([]T, 0, end-start)
	out = append(out, items[start:end]...)
	return out, &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
