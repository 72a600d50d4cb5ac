package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/dto"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/repository"
	appErrors "github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/errors"
)

const committeeCodePrefix = "CM"

type committeeDeleter interface {
	DeleteCommittee(ctx context.Context, code string, force bool, actor string) error
}

// CommitteeServiceParams groups committee registry dependencies.
type CommitteeServiceParams struct {
	Committees      committeeStore
	Members         memberStore
	Assignments     assignmentStore
	Lecturers       lecturerStore
	Tx              defenseTxRunner
	Codes           codeGenerator
	Chair           ChairEligibility
	Scheduler       committeeDeleter
	Audit           auditRecorder
	Views           defenseViewInvalidator
	Validator       *validator.Validate
	Logger          *zap.Logger
	DefaultCapacity int
}

// CommitteeService registers committees and manages their membership.
type CommitteeService struct {
	committees  committeeStore
	members     memberStore
	assignments assignmentStore
	lecturers   lecturerStore
	tx          defenseTxRunner
	codes       codeGenerator
	chair       ChairEligibility
	scheduler   committeeDeleter
	audit       auditRecorder
	views       defenseViewInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
	capacity    int
}

// NewCommitteeService constructs a CommitteeService.
func NewCommitteeService(params CommitteeServiceParams) *CommitteeService {
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	chair := params.Chair
	if chair == nil {
		chair = anyChairPolicy{}
	}
	capacity := params.DefaultCapacity
	if capacity <= 0 {
		capacity = 5
	}
	return &CommitteeService{
		committees:  params.Committees,
		members:     params.Members,
		assignments: params.Assignments,
		lecturers:   params.Lecturers,
		tx:          params.Tx,
		codes:       params.Codes,
		chair:       chair,
		scheduler:   params.Scheduler,
		audit:       params.Audit,
		views:       params.Views,
		validator:   validate,
		logger:      logger,
		capacity:    capacity,
	}
}

// List returns committees matching the filter.
func (s *CommitteeService) List(ctx context.Context, filter models.CommitteeFilter) ([]models.Committee, *models.Pagination, error) {
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	filter.Page, filter.PageSize = page, size
	items, total, err := s.committees.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list committees")
	}
	if items == nil {
		items = []models.Committee{}
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Create registers a committee and, when given, its initial membership.
func (s *CommitteeService) Create(ctx context.Context, req dto.CreateCommitteeRequest, actor string) (*models.Committee, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid committee payload")
	}
	date, err := time.Parse(models.DateLayout, req.DefenseDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid defense date")
	}
	if err := models.ValidateWindow(req.StartTime, req.EndTime); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	committee := &models.Committee{
		Code:            strings.TrimSpace(req.Code),
		Name:            strings.TrimSpace(req.Name),
		DefenseDate:     date,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		Room:            strings.TrimSpace(req.Room),
		SessionCapacity: req.SessionCapacity,
		Tags:            normalizeTags(req.Tags),
	}
	if committee.SessionCapacity <= 0 {
		committee.SessionCapacity = s.capacity
	}

	members := toMembers(req.Members)
	if len(members) > 0 {
		if err := s.validateMembership(ctx, nil, committee, members, nil); err != nil {
			return nil, err
		}
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, exec sqlx.ExtContext) error {
		if len(members) > 0 {
			if err := s.lockMembership(ctx, exec, committee, false, members); err != nil {
				return err
			}
			if err := s.validateMembership(ctx, exec, committee, members, nil); err != nil {
				return membershipConflict(err)
			}
		}
		if committee.Code == "" {
			code, err := s.codes.Next(ctx, exec, committeeCodePrefix)
			if err != nil {
				return internalError(err, "failed to generate committee code")
			}
			committee.Code = code
		}
		if err := s.committees.Create(ctx, exec, committee); err != nil {
			if errors.Is(err, repository.ErrDuplicateCommittee) {
				return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("committee %s already exists", committee.Code))
			}
			return internalError(err, "failed to create committee")
		}
		if len(members) > 0 {
			if err := s.members.Replace(ctx, exec, committee.Code, members); err != nil {
				return internalError(err, "failed to save committee members")
			}
		}
		return nil
	})
	if err != nil {
		return nil, commitError(err, "failed to create committee")
	}

	s.logger.Info("committee created", zap.String("committee", committee.Code), zap.String("date", committee.DateKey()))
	s.afterCommit(ctx, AuditEntry{
		Action:     models.AuditActionCommitteeCreated,
		Actor:      actor,
		EntityType: models.AuditEntityCommittee,
		EntityCode: committee.Code,
		Payload:    map[string]interface{}{"committee": committee, "members": members},
	})
	return committee, nil
}

// Update patches a committee. Capacity cannot drop below the active load and
// the session cannot move while assignments are active.
func (s *CommitteeService) Update(ctx context.Context, code string, req dto.UpdateCommitteeRequest, actor string) (*models.Committee, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid committee payload")
	}
	if _, err := s.committees.FindByCode(ctx, nil, code); err != nil {
		return nil, notFoundOr(err, "committee not found", "failed to load committee")
	}

	var updated *models.Committee
	err := s.tx.WithinTx(ctx, func(ctx context.Context, exec sqlx.ExtContext) error {
		current, err := s.committees.LockByCode(ctx, exec, code)
		if err != nil {
			return notFoundOr(err, "committee not found", "failed to lock committee")
		}
		next := *current
		if err := applyCommitteePatch(&next, req); err != nil {
			return err
		}

		active, err := s.assignments.CountActiveByCommittee(ctx, exec, code)
		if err != nil {
			return internalError(err, "failed to count committee assignments")
		}
		if next.SessionCapacity < active {
			return appErrors.Clone(appErrors.ErrConflict,
				fmt.Sprintf("session capacity %d is below the %d active assignments", next.SessionCapacity, active))
		}
		moved := next.DateKey() != current.DateKey() || next.StartTime != current.StartTime || next.EndTime != current.EndTime
		if moved && active > 0 {
			return appErrors.Clone(appErrors.ErrConflict, "committee session cannot move while assignments are active")
		}

		if err := s.committees.Update(ctx, exec, &next); err != nil {
			return notFoundOr(err, "committee not found", "failed to update committee")
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, commitError(err, "failed to update committee")
	}

	s.afterCommit(ctx, AuditEntry{
		Action:     models.AuditActionCommitteeUpdated,
		Actor:      actor,
		EntityType: models.AuditEntityCommittee,
		EntityCode: code,
		Payload:    updated,
	})
	return updated, nil
}

// SaveMembers replaces a committee's membership after validating it.
func (s *CommitteeService) SaveMembers(ctx context.Context, code string, req dto.SaveCommitteeMembersRequest, actor string) ([]models.CommitteeMember, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid committee members payload")
	}
	committee, err := s.committees.FindByCode(ctx, nil, code)
	if err != nil {
		return nil, notFoundOr(err, "committee not found", "failed to load committee")
	}
	existing, err := s.members.ListByCommittees(ctx, nil, []string{code})
	if err != nil {
		return nil, internalError(err, "failed to load committee members")
	}

	members := toMembers(req.Members)
	if err := s.validateMembership(ctx, nil, committee, members, existing); err != nil {
		return nil, err
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, exec sqlx.ExtContext) error {
		if err := s.lockMembership(ctx, exec, committee, true, members); err != nil {
			return err
		}
		current, err := s.members.ListByCommittees(ctx, exec, []string{code})
		if err != nil {
			return internalError(err, "failed to load committee members")
		}
		if err := s.validateMembership(ctx, exec, committee, members, current); err != nil {
			return membershipConflict(err)
		}
		if err := s.members.Replace(ctx, exec, code, members); err != nil {
			return internalError(err, "failed to save committee members")
		}
		return nil
	})
	if err != nil {
		return nil, commitError(err, "failed to save committee members")
	}

	s.logger.Info("committee members saved", zap.String("committee", code), zap.Int("members", len(members)))
	s.afterCommit(ctx, AuditEntry{
		Action:     models.AuditActionCommitteeMembersSaved,
		Actor:      actor,
		EntityType: models.AuditEntityCommittee,
		EntityCode: code,
		Payload:    members,
	})
	return members, nil
}

// Delete removes a committee through the scheduler so assignments and topic
// statuses are released consistently.
func (s *CommitteeService) Delete(ctx context.Context, code string, force bool, actor string) error {
	return s.scheduler.DeleteCommittee(ctx, code, force, actor)
}

// lockMembership locks the committee row when stored, every committee
// overlapping its session in ascending code order, and then the lecturer rows
// of the new membership.
func (s *CommitteeService) lockMembership(ctx context.Context, exec sqlx.ExtContext, committee *models.Committee, stored bool, members []models.CommitteeMember) error {
	sameDay, err := s.committees.ListByDate(ctx, exec, committee.DefenseDate)
	if err != nil {
		return internalError(err, "failed to load committees on defense date")
	}
	var codes []string
	if stored {
		codes = append(codes, committee.Code)
	}
	for _, other := range sameDay {
		if other.Code != committee.Code && committee.Overlaps(other) {
			codes = append(codes, other.Code)
		}
	}
	locked, err := lockCommitteeRows(ctx, s.committees, exec, codes)
	if err != nil {
		return err
	}
	if stored {
		current := locked[committee.Code]
		if current.DateKey() != committee.DateKey() || current.StartTime != committee.StartTime || current.EndTime != committee.EndTime {
			return conflict(fmt.Sprintf("committee %s session changed concurrently", committee.Code), nil)
		}
	}

	lecturerCodes := make([]string, 0, len(members))
	for _, m := range members {
		lecturerCodes = append(lecturerCodes, m.LecturerCode)
	}
	if err := s.lecturers.LockByCodes(ctx, exec, uniqueSorted(lecturerCodes)); err != nil {
		return internalError(err, "failed to lock lecturers")
	}
	return nil
}

// membershipConflict reports a membership rule that broke under lock.
func membershipConflict(err error) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) && appErr.Code == appErrors.ErrPlacementRejected.Code {
		return conflict("committee members no longer valid: "+appErr.Message, nil)
	}
	return err
}

// validateMembership checks a full replacement membership. existing holds the
// current seats so only newly added lecturers face quota and overlap checks.
func (s *CommitteeService) validateMembership(ctx context.Context, exec sqlx.ExtContext, committee *models.Committee, members []models.CommitteeMember, existing []models.CommitteeMember) error {
	if len(members) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(members))
	chairs := 0
	codes := make([]string, 0, len(members))
	for _, m := range members {
		if !m.Role.Valid() {
			return rejected(models.NewValidationFailure(models.FailureInvalidRole, "role %q is not a committee role", m.Role))
		}
		if _, dup := seen[m.LecturerCode]; dup {
			return rejected(models.NewValidationFailure(models.FailureDuplicateMember, "lecturer %s is listed more than once", m.LecturerCode))
		}
		seen[m.LecturerCode] = struct{}{}
		codes = append(codes, m.LecturerCode)
		if m.Role == models.MemberRoleChair {
			chairs++
		}
	}
	if chairs != 1 {
		return rejected(models.NewValidationFailure(models.FailureInvalidChairCount, "committee must have exactly one chair, got %d", chairs))
	}

	lecturers, err := s.lecturers.ListByCodes(ctx, exec, codes)
	if err != nil {
		return internalError(err, "failed to load lecturers")
	}
	byCode := make(map[string]models.Lecturer, len(lecturers))
	for _, l := range lecturers {
		byCode[l.Code] = l
	}

	current := make(map[string]struct{}, len(existing))
	for _, m := range existing {
		current[m.LecturerCode] = struct{}{}
	}

	var added []string
	for _, m := range members {
		lecturer, ok := byCode[m.LecturerCode]
		if !ok {
			return rejected(models.NewValidationFailure(models.FailureUnknownLecturer, "lecturer %s does not exist", m.LecturerCode))
		}
		if m.Role == models.MemberRoleChair && !s.chair.Eligible(lecturer) {
			return rejected(models.NewValidationFailure(models.FailureChairNotEligible,
				"lecturer %s is not eligible to chair under policy %s", m.LecturerCode, s.chair.Name()))
		}
		if _, kept := current[m.LecturerCode]; kept {
			continue
		}
		if !lecturer.HasQuotaHeadroom() {
			return rejected(models.NewValidationFailure(models.FailureQuotaExceeded,
				"lecturer %s reached the defense quota of %d", m.LecturerCode, lecturer.DefenseQuota))
		}
		added = append(added, m.LecturerCode)
	}
	if len(added) == 0 {
		return nil
	}

	sameDay, err := s.committees.ListByDate(ctx, exec, committee.DefenseDate)
	if err != nil {
		return internalError(err, "failed to load committees on defense date")
	}
	var overlapping []string
	for _, other := range sameDay {
		if other.Code != committee.Code && committee.Overlaps(other) {
			overlapping = append(overlapping, other.Code)
		}
	}
	if len(overlapping) == 0 {
		return nil
	}
	seated, err := s.members.ListByCommittees(ctx, exec, overlapping)
	if err != nil {
		return internalError(err, "failed to load overlapping committee members")
	}
	busy := make(map[string]string, len(seated))
	for _, m := range seated {
		if _, ok := busy[m.LecturerCode]; !ok {
			busy[m.LecturerCode] = m.CommitteeCode
		}
	}
	for _, code := range added {
		if other, ok := busy[code]; ok {
			return rejected(models.NewValidationFailure(models.FailureLecturerConflict,
				"lecturer %s already sits on overlapping committee %s", code, other))
		}
	}
	return nil
}

func (s *CommitteeService) afterCommit(ctx context.Context, entry AuditEntry) {
	if s.views != nil {
		s.views.InvalidateDefenseViews(ctx)
	}
	if s.audit != nil {
		s.audit.Record(ctx, entry)
	}
}

func applyCommitteePatch(c *models.Committee, req dto.UpdateCommitteeRequest) error {
	if req.Name != nil {
		c.Name = strings.TrimSpace(*req.Name)
	}
	if req.DefenseDate != nil {
		date, err := time.Parse(models.DateLayout, *req.DefenseDate)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid defense date")
		}
		c.DefenseDate = date
	}
	if req.StartTime != nil {
		c.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		c.EndTime = *req.EndTime
	}
	if req.Room != nil {
		c.Room = strings.TrimSpace(*req.Room)
	}
	if req.SessionCapacity != nil {
		c.SessionCapacity = *req.SessionCapacity
	}
	if req.Tags != nil {
		c.Tags = normalizeTags(*req.Tags)
	}
	if err := models.ValidateWindow(c.StartTime, c.EndTime); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	return nil
}

func toMembers(reqs []dto.CommitteeMemberRequest) []models.CommitteeMember {
	members := make([]models.CommitteeMember, 0, len(reqs))
	for _, r := range reqs {
		role := models.MemberRole(strings.ToUpper(strings.TrimSpace(r.Role)))
		members = append(members, models.CommitteeMember{
			LecturerCode: strings.TrimSpace(r.LecturerCode),
			Role:         role,
			IsChair:      role == models.MemberRoleChair,
		})
	}
	return members
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
