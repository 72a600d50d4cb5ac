package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
)

const defenseCachePattern = "defense:*"

type committeeReader interface {
	FindByCode(ctx context.Context, exec sqlx.ExtContext, code string) (*models.Committee, error)
}

type memberDetailReader interface {
	ListDetails(ctx context.Context, committeeCode string) ([]models.CommitteeMemberDetail, error)
	ListCommitteesForLecturer(ctx context.Context, lecturerCode string) ([]models.LecturerCommittee, error)
}

type assignmentDetailReader interface {
	FindActiveByTopic(ctx context.Context, exec sqlx.ExtContext, topicCode string) (*models.DefenseAssignment, error)
	ListDetailsByCommittee(ctx context.Context, committeeCode string) ([]models.AssignmentDetail, error)
}

type lecturerReader interface {
	FindByCode(ctx context.Context, code string) (*models.Lecturer, error)
}

type studentTopicReader interface {
	FindByStudent(ctx context.Context, studentCode string) (*models.Topic, error)
}

// DefenseQueryServiceParams groups read-model dependencies.
type DefenseQueryServiceParams struct {
	Committees  committeeReader
	Members     memberDetailReader
	Assignments assignmentDetailReader
	Lecturers   lecturerReader
	Topics      studentTopicReader
	Cache       *CacheService
	CacheTTL    time.Duration
	Logger      *zap.Logger
}

// DefenseQueryService serves committee, lecturer and student defense views.
type DefenseQueryService struct {
	committees  committeeReader
	members     memberDetailReader
	assignments assignmentDetailReader
	lecturers   lecturerReader
	topics      studentTopicReader
	cache       *CacheService
	ttl         time.Duration
	logger      *zap.Logger
}

// NewDefenseQueryService constructs a DefenseQueryService.
func NewDefenseQueryService(params DefenseQueryServiceParams) *DefenseQueryService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := params.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &DefenseQueryService{
		committees:  params.Committees,
		members:     params.Members,
		assignments: params.Assignments,
		lecturers:   params.Lecturers,
		topics:      params.Topics,
		cache:       params.Cache,
		ttl:         ttl,
		logger:      logger,
	}
}

// GetCommitteeDetail returns a committee with its members and active assignments.
func (s *DefenseQueryService) GetCommitteeDetail(ctx context.Context, code string) (*models.CommitteeDetail, bool, error) {
	key := fmt.Sprintf("defense:committee:%s", code)
	var cached models.CommitteeDetail
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, true, nil
	}

	committee, err := s.committees.FindByCode(ctx, nil, code)
	if err != nil {
		return nil, false, notFoundOr(err, "committee not found", "failed to load committee")
	}
	members, err := s.members.ListDetails(ctx, code)
	if err != nil {
		return nil, false, internalError(err, "failed to load committee members")
	}
	assignments, err := s.assignments.ListDetailsByCommittee(ctx, code)
	if err != nil {
		return nil, false, internalError(err, "failed to load committee assignments")
	}

	detail := &models.CommitteeDetail{
		Committee:   *committee,
		Members:     nonNil(members),
		Assignments: nonNil(assignments),
		ActiveCount: len(assignments),
	}
	if remaining := committee.SessionCapacity - detail.ActiveCount; remaining > 0 {
		detail.RemainingCapacity = remaining
	}

	_ = s.cache.Set(ctx, key, detail, s.ttl)
	return detail, false, nil
}

// GetLecturerCommittees lists the committees a lecturer sits on.
func (s *DefenseQueryService) GetLecturerCommittees(ctx context.Context, lecturerCode string) ([]models.LecturerCommittee, bool, error) {
	key := fmt.Sprintf("defense:lecturer:%s", lecturerCode)
	var cached []models.LecturerCommittee
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, true, nil
	}

	if _, err := s.lecturers.FindByCode(ctx, lecturerCode); err != nil {
		return nil, false, notFoundOr(err, "lecturer not found", "failed to load lecturer")
	}
	committees, err := s.members.ListCommitteesForLecturer(ctx, lecturerCode)
	if err != nil {
		return nil, false, internalError(err, "failed to load lecturer committees")
	}
	committees = nonNil(committees)

	_ = s.cache.Set(ctx, key, committees, s.ttl)
	return committees, false, nil
}

// GetStudentDefenseInfo returns a student's topic and, once scheduled, the
// session and panel.
func (s *DefenseQueryService) GetStudentDefenseInfo(ctx context.Context, studentCode string) (*models.StudentDefenseInfo, bool, error) {
	key := fmt.Sprintf("defense:student:%s", studentCode)
	var cached models.StudentDefenseInfo
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, true, nil
	}

	topic, err := s.topics.FindByStudent(ctx, studentCode)
	if err != nil {
		return nil, false, notFoundOr(err, "student topic not found", "failed to load student topic")
	}
	info := &models.StudentDefenseInfo{StudentCode: studentCode, Topic: *topic}

	assignment, err := s.assignments.FindActiveByTopic(ctx, nil, topic.Code)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, false, internalError(err, "failed to load topic assignment")
	default:
		info.Assignment = assignment
		committee, err := s.committees.FindByCode(ctx, nil, assignment.CommitteeCode)
		if err != nil {
			return nil, false, notFoundOr(err, "committee not found", "failed to load committee")
		}
		info.Committee = committee
		members, err := s.members.ListDetails(ctx, committee.Code)
		if err != nil {
			return nil, false, internalError(err, "failed to load committee members")
		}
		info.Members = members
	}

	_ = s.cache.Set(ctx, key, info, s.ttl)
	return info, false, nil
}

// InvalidateDefenseViews drops every cached defense view.
func (s *DefenseQueryService) InvalidateDefenseViews(ctx context.Context) {
	if err := s.cache.Invalidate(context.WithoutCancel(ctx), defenseCachePattern); err != nil {
		s.logger.Warn("defense view invalidation failed", zap.Error(err))
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
