package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/dto"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/repository"
	appErrors "github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/errors"
)

const (
	assignmentCodePrefix = "DA"
	defaultSlotDuration  = 45 * time.Minute
)

type auditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type defenseViewInvalidator interface {
	InvalidateDefenseViews(ctx context.Context)
}

// AssignmentServiceParams groups scheduler dependencies.
type AssignmentServiceParams struct {
	Topics       topicStore
	Committees   committeeStore
	Members      memberStore
	Assignments  assignmentStore
	Lecturers    lecturerStore
	Tx           defenseTxRunner
	Codes        codeGenerator
	Validator    *ConflictValidator
	Audit        auditRecorder
	Views        defenseViewInvalidator
	Metrics      *MetricsService
	Logger       *zap.Logger
	SlotDuration time.Duration
}

// AssignmentService is the manual scheduler. It is the only writer of topic
// status and defense assignment rows besides AutoAssignService.
type AssignmentService struct {
	topics      topicStore
	committees  committeeStore
	members     memberStore
	assignments assignmentStore
	tx          defenseTxRunner
	codes       codeGenerator
	validator   *ConflictValidator
	loader      *placementLoader
	audit       auditRecorder
	views       defenseViewInvalidator
	metrics     *MetricsService
	logger      *zap.Logger
	slot        time.Duration
	now         func() time.Time
}

// NewAssignmentService constructs an AssignmentService.
func NewAssignmentService(params AssignmentServiceParams) *AssignmentService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validator := params.Validator
	if validator == nil {
		validator = NewConflictValidator()
	}
	slot := params.SlotDuration
	if slot <= 0 {
		slot = defaultSlotDuration
	}
	return &AssignmentService{
		topics:      params.Topics,
		committees:  params.Committees,
		members:     params.Members,
		assignments: params.Assignments,
		tx:          params.Tx,
		codes:       params.Codes,
		validator:   validator,
		loader: &placementLoader{
			topics:      params.Topics,
			committees:  params.Committees,
			members:     params.Members,
			assignments: params.Assignments,
			lecturers:   params.Lecturers,
			slot:        slot,
		},
		audit:   params.Audit,
		views:   params.Views,
		metrics: params.Metrics,
		logger:  logger,
		slot:    slot,
		now:     time.Now,
	}
}

// Assign places a topic on a committee session.
func (s *AssignmentService) Assign(ctx context.Context, placement models.Placement) (*models.DefenseAssignment, error) {
	if err := checkPlacementInput(placement); err != nil {
		return nil, err
	}

	snapshot, err := s.loader.load(ctx, nil, placement, loadOptions{})
	if err != nil {
		return nil, err
	}
	if failure := s.validator.Validate(snapshot); failure != nil {
		s.metrics.RecordPlacementRejected(string(failure.Kind))
		return nil, rejected(failure)
	}

	var created *models.DefenseAssignment
	err = s.tx.WithinTx(ctx, func(ctx context.Context, exec sqlx.ExtContext) error {
		locked, err := s.loader.load(ctx, exec, placement, loadOptions{lock: true})
		if err != nil {
			return err
		}
		if failure := s.validator.Validate(locked); failure != nil {
			return guardConflict(locked, failure)
		}
		created, err = s.insertAssignment(ctx, exec, locked, placement)
		if err != nil {
			return err
		}
		if err := s.topics.UpdateStatus(ctx, exec, placement.TopicCode, models.TopicStatusScheduled); err != nil {
			return notFoundOr(err, "topic not found", "failed to update topic status")
		}
		return nil
	})
	if err != nil {
		return nil, commitError(err, "failed to assign topic")
	}

	s.metrics.RecordAssignmentsCommitted(1)
	s.logger.Info("defense assignment created",
		zap.String("assignment", created.Code),
		zap.String("topic", created.TopicCode),
		zap.String("committee", created.CommitteeCode),
		zap.Bool("tag_override", created.TagOverride))
	s.afterCommit(ctx, AuditEntry{
		Action:     models.AuditActionAssignmentCreated,
		Actor:      placement.Actor,
		EntityType: models.AuditEntityAssignment,
		EntityCode: created.Code,
		Payload:    created,
	})
	return created, nil
}

// AssignTopics runs Assign for every placement independently and reports
// each outcome in request order.
func (s *AssignmentService) AssignTopics(ctx context.Context, placements []models.Placement) *dto.AssignTopicsResponse {
	resp := &dto.AssignTopicsResponse{Results: make([]dto.PlacementOutcome, 0, len(placements))}
	for _, placement := range placements {
		outcome := dto.PlacementOutcome{TopicCode: placement.TopicCode, CommitteeCode: placement.CommitteeCode}
		assignment, err := s.Assign(ctx, placement)
		if err != nil {
			outcome.Error = appErrors.FromError(err)
			resp.Failed++
		} else {
			outcome.Assignment = assignment
			resp.Assigned++
		}
		resp.Results = append(resp.Results, outcome)
	}
	return resp
}

// ChangeAssignment moves a topic's active assignment to another committee or
// slot. On rejection the current assignment is left untouched.
func (s *AssignmentService) ChangeAssignment(ctx context.Context, placement models.Placement) (*models.DefenseAssignment, error) {
	if err := checkPlacementInput(placement); err != nil {
		return nil, err
	}

	if _, err := s.topics.FindByCode(ctx, nil, placement.TopicCode); err != nil {
		return nil, notFoundOr(err, "topic not found", "failed to load topic")
	}
	current, err := s.assignments.FindActiveByTopic(ctx, nil, placement.TopicCode)
	if err != nil {
		return nil, notFoundOr(err, "topic has no active assignment", "failed to load topic assignment")
	}

	opts := loadOptions{exclude: current.Code}
	snapshot, err := s.loader.load(ctx, nil, placement, opts)
	if err != nil {
		return nil, err
	}
	if failure := s.validator.Validate(snapshot); failure != nil {
		s.metrics.RecordPlacementRejected(string(failure.Kind))
		return nil, rejected(failure)
	}

	var created *models.DefenseAssignment
	err = s.tx.WithinTx(ctx, func(ctx context.Context, exec sqlx.ExtContext) error {
		opts.lock = true
		opts.alsoLock = []string{current.CommitteeCode}
		locked, err := s.loader.load(ctx, exec, placement, opts)
		if err != nil {
			return err
		}
		if locked.TopicActive == nil || locked.TopicActive.Code != current.Code {
			return conflict("topic assignment changed concurrently", activeCodes(locked.TopicActive))
		}
		if failure := s.validator.Validate(locked); failure != nil {
			return guardConflict(locked, failure)
		}
		if _, err := s.assignments.Deactivate(ctx, exec, []string{current.Code}, s.now().UTC()); err != nil {
			return internalError(err, "failed to deactivate assignment")
		}
		locked.CommitteeActive = withoutAssignment(locked.CommitteeActive, current.Code)
		created, err = s.insertAssignment(ctx, exec, locked, placement)
		if err != nil {
			return err
		}
		if err := s.topics.UpdateStatus(ctx, exec, placement.TopicCode, models.TopicStatusScheduled); err != nil {
			return notFoundOr(err, "topic not found", "failed to update topic status")
		}
		return nil
	})
	if err != nil {
		return nil, commitError(err, "failed to change assignment")
	}

	s.metrics.RecordAssignmentsCommitted(1)
	s.logger.Info("defense assignment changed",
		zap.String("previous", current.Code),
		zap.String("assignment", created.Code),
		zap.String("topic", created.TopicCode),
		zap.String("committee", created.CommitteeCode))
	s.afterCommit(ctx, AuditEntry{
		Action:     models.AuditActionAssignmentChanged,
		Actor:      placement.Actor,
		EntityType: models.AuditEntityAssignment,
		EntityCode: created.Code,
		Payload:    map[string]interface{}{"previous": current, "current": created},
	})
	return created, nil
}

// RemoveAssignment deactivates the topic's active assignment and reverts the
// topic to ELIGIBLE_FOR_DEFENSE. It returns nil, nil when nothing was active.
func (s *AssignmentService) RemoveAssignment(ctx context.Context, topicCode, actor string) (*models.DefenseAssignment, error) {
	if strings.TrimSpace(topicCode) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "topic code is required")
	}
	if _, err := s.topics.FindByCode(ctx, nil, topicCode); err != nil {
		return nil, notFoundOr(err, "topic not found", "failed to load topic")
	}

	var removed *models.DefenseAssignment
	err := s.tx.WithinTx(ctx, func(ctx context.Context, exec sqlx.ExtContext) error {
		topic, err := s.topics.LockByCode(ctx, exec, topicCode)
		if err != nil {
			return notFoundOr(err, "topic not found", "failed to lock topic")
		}
		active, err := s.assignments.FindActiveByTopic(ctx, exec, topicCode)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return internalError(err, "failed to load topic assignment")
		}
		at := s.now().UTC()
		if _, err := s.assignments.Deactivate(ctx, exec, []string{active.Code}, at); err != nil {
			return internalError(err, "failed to deactivate assignment")
		}
		if topic.Status == models.TopicStatusScheduled {
			if err := s.topics.UpdateStatus(ctx, exec, topicCode, models.TopicStatusEligibleForDefense); err != nil {
				return notFoundOr(err, "topic not found", "failed to revert topic status")
			}
		}
		active.Active = false
		active.DeactivatedAt = &at
		removed = active
		return nil
	})
	if err != nil {
		return nil, commitError(err, "failed to remove assignment")
	}
	if removed == nil {
		return nil, nil
	}

	s.logger.Info("defense assignment removed", zap.String("assignment", removed.Code), zap.String("topic", topicCode))
	s.afterCommit(ctx, AuditEntry{
		Action:     models.AuditActionAssignmentRemoved,
		Actor:      actor,
		EntityType: models.AuditEntityAssignment,
		EntityCode: removed.Code,
		Payload:    removed,
	})
	return removed, nil
}

// DeleteCommittee removes a committee. Active assignments block the delete
// unless force is set, in which case they are deactivated and their topics
// reverted in the same transaction.
func (s *AssignmentService) DeleteCommittee(ctx context.Context, code string, force bool, actor string) error {
	if _, err := s.committees.FindByCode(ctx, nil, code); err != nil {
		return notFoundOr(err, "committee not found", "failed to load committee")
	}

	var released []models.DefenseAssignment
	err := s.tx.WithinTx(ctx, func(ctx context.Context, exec sqlx.ExtContext) error {
		if _, err := s.committees.LockByCode(ctx, exec, code); err != nil {
			return notFoundOr(err, "committee not found", "failed to lock committee")
		}
		active, err := s.assignments.ListActiveByCommittees(ctx, exec, []string{code})
		if err != nil {
			return internalError(err, "failed to load committee assignments")
		}
		if len(active) > 0 && !force {
			codes := make([]string, 0, len(active))
			for _, a := range active {
				codes = append(codes, a.Code)
			}
			return conflict(fmt.Sprintf("committee %s has %d active assignments", code, len(active)), codes)
		}

		if len(active) > 0 {
			codes := make([]string, 0, len(active))
			topics := make([]string, 0, len(active))
			for _, a := range active {
				codes = append(codes, a.Code)
				topics = append(topics, a.TopicCode)
			}
			if _, err := s.assignments.Deactivate(ctx, exec, codes, s.now().UTC()); err != nil {
				return internalError(err, "failed to deactivate committee assignments")
			}
			if err := s.topics.UpdateStatusBatch(ctx, exec, uniqueSorted(topics), models.TopicStatusEligibleForDefense); err != nil {
				return internalError(err, "failed to revert topic statuses")
			}
		}
		if err := s.members.DeleteByCommittee(ctx, exec, code); err != nil {
			return internalError(err, "failed to delete committee members")
		}
		if err := s.committees.Delete(ctx, exec, code); err != nil {
			return notFoundOr(err, "committee not found", "failed to delete committee")
		}
		released = active
		return nil
	})
	if err != nil {
		return commitError(err, "failed to delete committee")
	}

	s.logger.Info("committee deleted", zap.String("committee", code), zap.Bool("force", force), zap.Int("released", len(released)))
	s.afterCommit(ctx, AuditEntry{
		Action:     models.AuditActionCommitteeDeleted,
		Actor:      actor,
		EntityType: models.AuditEntityCommittee,
		EntityCode: code,
		Payload:    map[string]interface{}{"force": force, "released": released},
	})
	return nil
}

func (s *AssignmentService) insertAssignment(ctx context.Context, exec sqlx.ExtContext, snapshot *models.PlacementSnapshot, placement models.Placement) (*models.DefenseAssignment, error) {
	code, err := s.codes.Next(ctx, exec, assignmentCodePrefix)
	if err != nil {
		return nil, internalError(err, "failed to generate assignment code")
	}

	scheduledAt := placement.ScheduledAt
	if scheduledAt.IsZero() {
		free, ok := nextFreeSlot(snapshot.Committee, takenSlots(snapshot.CommitteeActive, snapshot.ExcludeAssignment), s.slot)
		if !ok {
			return nil, conflict(fmt.Sprintf("committee %s has no free slot left", snapshot.Committee.Code), nil)
		}
		scheduledAt = free
	}

	assignment := &models.DefenseAssignment{
		Code:          code,
		TopicCode:     snapshot.Topic.Code,
		CommitteeCode: snapshot.Committee.Code,
		ScheduledAt:   scheduledAt.UTC(),
		Active:        true,
		CreatedBy:     placement.Actor,
		CreatedAt:     s.now().UTC(),
	}
	if placement.Override.Enabled {
		assignment.TagOverride = true
		assignment.OverrideReason = strings.TrimSpace(placement.Override.Reason)
	}
	if err := s.assignments.Insert(ctx, exec, assignment); err != nil {
		if errors.Is(err, repository.ErrDuplicateActiveAssignment) {
			return nil, conflict("topic already has an active assignment", nil)
		}
		return nil, internalError(err, "failed to insert assignment")
	}
	return assignment, nil
}

func (s *AssignmentService) afterCommit(ctx context.Context, entry AuditEntry) {
	if s.views != nil {
		s.views.InvalidateDefenseViews(ctx)
	}
	if s.audit != nil {
		s.audit.Record(ctx, entry)
	}
}

func checkPlacementInput(p models.Placement) error {
	if strings.TrimSpace(p.TopicCode) == "" || strings.TrimSpace(p.CommitteeCode) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "topic code and committee code are required")
	}
	if p.Override.Enabled && strings.TrimSpace(p.Override.Reason) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "override reason is required when tag override is set")
	}
	return nil
}

// guardConflict reports a rule that broke between validation and commit.
func guardConflict(snapshot *models.PlacementSnapshot, failure *models.ValidationFailure) error {
	message := "placement no longer valid: " + failure.Error()
	switch failure.Kind {
	case models.FailureTopicAlreadyAssigned:
		return conflict(message, activeCodes(snapshot.TopicActive))
	case models.FailureNoCapacity:
		var codes []string
		for _, a := range snapshot.CommitteeActive {
			if a.Code != snapshot.ExcludeAssignment {
				codes = append(codes, a.Code)
			}
		}
		return conflict(message, codes)
	}
	return conflict(message, nil)
}

func commitError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return internalError(err, message)
}

func activeCodes(a *models.DefenseAssignment) []string {
	if a == nil {
		return nil
	}
	return []string{a.Code}
}

func takenSlots(assignments []models.DefenseAssignment, exclude string) []time.Time {
	slots := make([]time.Time, 0, len(assignments))
	for _, a := range assignments {
		if a.Code != exclude {
			slots = append(slots, a.ScheduledAt)
		}
	}
	return slots
}

func withoutAssignment(assignments []models.DefenseAssignment, code string) []models.DefenseAssignment {
	out := make([]models.DefenseAssignment, 0, len(assignments))
	for _, a := range assignments {
		if a.Code != code {
			out = append(out, a)
		}
	}
	return out
}
