package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/repository"
	appErrors "github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/errors"
)

// AutoAssignConfig holds defaults applied when a run omits them.
type AutoAssignConfig struct {
	TagPriority   []string
	PerSessionCap int
}

// AutoAssignService places every available topic with a deterministic first
// fit over upcoming committees.
type AutoAssignService struct {
	topics      topicStore
	committees  committeeStore
	members     memberStore
	assignments assignmentStore
	lecturers   lecturerStore
	tx          defenseTxRunner
	codes       codeGenerator
	audit       auditRecorder
	views       defenseViewInvalidator
	metrics     *MetricsService
	logger      *zap.Logger
	slot        time.Duration
	cfg         AutoAssignConfig
	now         func() time.Time
}

// NewAutoAssignService constructs an AutoAssignService from the scheduler dependencies.
func NewAutoAssignService(params AssignmentServiceParams, cfg AutoAssignConfig) *AutoAssignService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	slot := params.SlotDuration
	if slot <= 0 {
		slot = defaultSlotDuration
	}
	return &AutoAssignService{
		topics:      params.Topics,
		committees:  params.Committees,
		members:     params.Members,
		assignments: params.Assignments,
		lecturers:   params.Lecturers,
		tx:          params.Tx,
		codes:       params.Codes,
		audit:       params.Audit,
		views:       params.Views,
		metrics:     params.Metrics,
		logger:      logger,
		slot:        slot,
		cfg:         cfg,
		now:         time.Now,
	}
}

// sessionPlan tracks one candidate committee while planning.
type sessionPlan struct {
	committee models.Committee
	members   []models.CommitteeMember
	coverage  map[string]struct{}
	capacity  int
	active    int
	taken     []time.Time
	planned   []*models.DefenseAssignment
}

func (p *sessionPlan) remaining() int {
	return p.capacity - p.active - len(p.planned)
}

func (p *sessionPlan) busy() bool {
	return p.active+len(p.planned) > 0
}

var unassignedRank = map[models.PlacementFailureKind]int{
	models.FailureNoTagMatch:       1,
	models.FailureNoCapacity:       2,
	models.FailureLecturerConflict: 3,
}

// AutoAssign plans placements for every available topic and commits them in
// one transaction unless DryRun is set.
func (s *AutoAssignService) AutoAssign(ctx context.Context, opts models.AutoAssignOptions) (*models.AutoAssignResult, error) {
	if opts.PerSessionCap < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "per session cap must not be negative")
	}
	if len(opts.OverrideTopicCodes) > 0 && strings.TrimSpace(opts.OverrideReason) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "override reason is required when override topics are given")
	}
	if len(opts.TagPriority) == 0 {
		opts.TagPriority = s.cfg.TagPriority
	}
	if opts.PerSessionCap == 0 {
		opts.PerSessionCap = s.cfg.PerSessionCap
	}

	result, sessions, order, err := s.plan(ctx, opts)
	if err != nil {
		return nil, err
	}
	for _, u := range result.Unassigned {
		s.metrics.RecordUnassigned(string(u.Reason))
	}
	if opts.DryRun || len(result.Assigned) == 0 {
		s.logger.Info("auto assign planned",
			zap.Bool("dry_run", opts.DryRun),
			zap.Int("assigned", len(result.Assigned)),
			zap.Int("unassigned", len(result.Unassigned)))
		return result, nil
	}

	if err := s.commit(ctx, sessions, order); err != nil {
		return nil, commitError(err, "failed to commit auto assign")
	}

	result.Assigned = result.Assigned[:0]
	for _, a := range order {
		result.Assigned = append(result.Assigned, *a)
	}

	s.metrics.RecordAssignmentsCommitted(len(result.Assigned))
	s.logger.Info("auto assign committed",
		zap.Int("assigned", len(result.Assigned)),
		zap.Int("unassigned", len(result.Unassigned)))
	if s.views != nil {
		s.views.InvalidateDefenseViews(ctx)
	}
	if s.audit != nil {
		for i := range result.Assigned {
			s.audit.Record(ctx, AuditEntry{
				Action:     models.AuditActionAutoAssign,
				Actor:      opts.Actor,
				EntityType: models.AuditEntityAssignment,
				EntityCode: result.Assigned[i].Code,
				Payload:    result.Assigned[i],
			})
		}
	}
	return result, nil
}

func (s *AutoAssignService) plan(ctx context.Context, opts models.AutoAssignOptions) (*models.AutoAssignResult, []*sessionPlan, []*models.DefenseAssignment, error) {
	topics, err := s.topics.ListAvailable(ctx, nil, models.TopicFilter{})
	if err != nil {
		return nil, nil, nil, internalError(err, "failed to list available topics")
	}
	sortTopicsByPriority(topics, opts.TagPriority)

	upcoming, err := s.committees.ListAfter(ctx, nil, startOfDay(s.now()))
	if err != nil {
		return nil, nil, nil, internalError(err, "failed to list upcoming committees")
	}
	all, err := s.loadSessions(ctx, upcoming, opts.PerSessionCap)
	if err != nil {
		return nil, nil, nil, err
	}

	var candidates []*sessionPlan
	for _, session := range all {
		if hasChair(session.members) {
			candidates = append(candidates, session)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.committee.DateKey() != b.committee.DateKey() {
			return a.committee.DateKey() < b.committee.DateKey()
		}
		if a.remaining() != b.remaining() {
			return a.remaining() > b.remaining()
		}
		return a.committee.Code < b.committee.Code
	})

	overrides := make(map[string]struct{}, len(opts.OverrideTopicCodes))
	for _, code := range opts.OverrideTopicCodes {
		overrides[code] = struct{}{}
	}

	result := &models.AutoAssignResult{
		Assigned:   []models.DefenseAssignment{},
		Unassigned: []models.UnassignedTopic{},
		DryRun:     opts.DryRun,
	}
	var order []*models.DefenseAssignment
	for i := range topics {
		topic := topics[i]
		_, override := overrides[topic.Code]
		var reason models.PlacementFailureKind
		var host *sessionPlan
		var at time.Time
		for _, session := range candidates {
			slot, kind, ok := s.fits(topic, override, session, all)
			if ok {
				host, at = session, slot
				break
			}
			if unassignedRank[kind] > unassignedRank[reason] {
				reason = kind
			}
		}
		if host == nil {
			if reason == "" {
				reason = models.FailureNoCapacity
			}
			result.Unassigned = append(result.Unassigned, models.UnassignedTopic{TopicCode: topic.Code, Reason: reason})
			continue
		}

		host.taken = append(host.taken, at)
		assignment := &models.DefenseAssignment{
			TopicCode:     topic.Code,
			CommitteeCode: host.committee.Code,
			ScheduledAt:   at,
			Active:        true,
			CreatedBy:     opts.Actor,
		}
		if override {
			assignment.TagOverride = true
			assignment.OverrideReason = strings.TrimSpace(opts.OverrideReason)
		}
		host.planned = append(host.planned, assignment)
		order = append(order, assignment)
		result.Assigned = append(result.Assigned, *assignment)
	}
	return result, candidates, order, nil
}

// fits runs the first fit checks in order: tag coverage, capacity and a
// free slot, then lecturer conflicts against stored and planned placements.
// It returns the slot the topic would take.
func (s *AutoAssignService) fits(topic models.Topic, override bool, session *sessionPlan, all []*sessionPlan) (time.Time, models.PlacementFailureKind, bool) {
	if !override && !coversTopic(topic, session.coverage) {
		return time.Time{}, models.FailureNoTagMatch, false
	}
	if session.remaining() <= 0 {
		return time.Time{}, models.FailureNoCapacity, false
	}
	at, ok := nextFreeSlot(session.committee, session.taken, s.slot)
	if !ok {
		return time.Time{}, models.FailureNoCapacity, false
	}
	seated := make(map[string]struct{}, len(session.members))
	for _, m := range session.members {
		seated[m.LecturerCode] = struct{}{}
	}
	for _, other := range all {
		if other.committee.Code == session.committee.Code || !other.busy() || !session.committee.Overlaps(other.committee) {
			continue
		}
		for _, m := range other.members {
			if _, ok := seated[m.LecturerCode]; ok {
				return time.Time{}, models.FailureLecturerConflict, false
			}
		}
	}
	return at, "", true
}

func (s *AutoAssignService) loadSessions(ctx context.Context, committees []models.Committee, perSessionCap int) ([]*sessionPlan, error) {
	if len(committees) == 0 {
		return nil, nil
	}
	codes := make([]string, 0, len(committees))
	for _, c := range committees {
		codes = append(codes, c.Code)
	}
	members, err := s.members.ListByCommittees(ctx, nil, codes)
	if err != nil {
		return nil, internalError(err, "failed to load committee members")
	}
	actives, err := s.assignments.ListActiveByCommittees(ctx, nil, codes)
	if err != nil {
		return nil, internalError(err, "failed to load committee assignments")
	}

	lecturerCodes := make([]string, 0, len(members))
	for _, m := range members {
		lecturerCodes = append(lecturerCodes, m.LecturerCode)
	}
	lecturers, err := s.lecturers.ListByCodes(ctx, nil, uniqueSorted(lecturerCodes))
	if err != nil {
		return nil, internalError(err, "failed to load committee lecturers")
	}
	lecturerBy := make(map[string]models.Lecturer, len(lecturers))
	for _, l := range lecturers {
		lecturerBy[l.Code] = l
	}

	membersBy := groupMembers(members)
	sessions := make([]*sessionPlan, 0, len(committees))
	byCode := make(map[string]*sessionPlan, len(committees))
	for _, c := range committees {
		capacity := c.SessionCapacity
		if perSessionCap > 0 && perSessionCap < capacity {
			capacity = perSessionCap
		}
		session := &sessionPlan{
			committee: c,
			members:   membersBy[c.Code],
			coverage:  tagCoverage(c, membersBy[c.Code], lecturerBy),
			capacity:  capacity,
		}
		sessions = append(sessions, session)
		byCode[c.Code] = session
	}
	for _, a := range actives {
		if session, ok := byCode[a.CommitteeCode]; ok {
			session.active++
			session.taken = append(session.taken, a.ScheduledAt)
		}
	}
	return sessions, nil
}

// commit re-runs the planning checks under row locks and inserts the plan.
// Committee rows are locked for every host and every committee overlapping
// one, in ascending code order. Any guard failure aborts the whole batch.
func (s *AutoAssignService) commit(ctx context.Context, sessions []*sessionPlan, order []*models.DefenseAssignment) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context, exec sqlx.ExtContext) error {
		var hosts []*sessionPlan
		var topicCodes []string
		for _, session := range sessions {
			if len(session.planned) == 0 {
				continue
			}
			hosts = append(hosts, session)
			for _, a := range session.planned {
				topicCodes = append(topicCodes, a.TopicCode)
			}
		}

		neighbours, err := s.neighbours(ctx, exec, hosts)
		if err != nil {
			return err
		}
		if err := s.guardSessions(ctx, exec, hosts, neighbours); err != nil {
			return err
		}
		for _, code := range uniqueSorted(topicCodes) {
			topic, err := s.topics.LockByCode(ctx, exec, code)
			if err != nil {
				return notFoundOr(err, "topic not found", "failed to lock topic")
			}
			if topic.Status != models.TopicStatusEligibleForDefense {
				return conflict(fmt.Sprintf("topic %s is no longer eligible", code), nil)
			}
			active, err := s.assignments.FindActiveByTopic(ctx, exec, code)
			if err == nil {
				return conflict(fmt.Sprintf("topic %s was assigned concurrently", code), []string{active.Code})
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return internalError(err, "failed to load topic assignment")
			}
		}

		createdAt := s.now().UTC()
		for _, a := range order {
			code, err := s.codes.Next(ctx, exec, assignmentCodePrefix)
			if err != nil {
				return internalError(err, "failed to generate assignment code")
			}
			a.Code = code
			a.CreatedAt = createdAt
			if err := s.assignments.Insert(ctx, exec, a); err != nil {
				if errors.Is(err, repository.ErrDuplicateActiveAssignment) {
					return conflict(fmt.Sprintf("topic %s was assigned concurrently", a.TopicCode), nil)
				}
				return internalError(err, "failed to insert assignment")
			}
		}
		if err := s.topics.UpdateStatusBatch(ctx, exec, uniqueSorted(topicCodes), models.TopicStatusScheduled); err != nil {
			return internalError(err, "failed to update topic statuses")
		}
		return nil
	})
}

// neighbours maps each host to the stored committees overlapping its session.
func (s *AutoAssignService) neighbours(ctx context.Context, exec sqlx.ExtContext, hosts []*sessionPlan) (map[string][]string, error) {
	byDate := make(map[string][]models.Committee)
	out := make(map[string][]string, len(hosts))
	for _, host := range hosts {
		key := host.committee.DateKey()
		sameDay, ok := byDate[key]
		if !ok {
			var err error
			sameDay, err = s.committees.ListByDate(ctx, exec, host.committee.DefenseDate)
			if err != nil {
				return nil, internalError(err, "failed to load committees on defense date")
			}
			byDate[key] = sameDay
		}
		for _, other := range sameDay {
			if other.Code != host.committee.Code && host.committee.Overlaps(other) {
				out[host.committee.Code] = append(out[host.committee.Code], other.Code)
			}
		}
	}
	return out, nil
}

// guardSessions locks the hosts with their neighbours, reloads members and
// active assignments, and checks each host again: unchanged session, chair,
// capacity, free slots and no lecturer shared with a busy neighbour.
func (s *AutoAssignService) guardSessions(ctx context.Context, exec sqlx.ExtContext, hosts []*sessionPlan, neighbours map[string][]string) error {
	lockCodes := make([]string, 0, len(hosts))
	plannedBy := make(map[string]int, len(hosts))
	for _, host := range hosts {
		lockCodes = append(lockCodes, host.committee.Code)
		lockCodes = append(lockCodes, neighbours[host.committee.Code]...)
		plannedBy[host.committee.Code] = len(host.planned)
	}
	locked, err := lockCommitteeRows(ctx, s.committees, exec, lockCodes)
	if err != nil {
		return err
	}
	lockCodes = uniqueSorted(lockCodes)

	members, err := s.members.ListByCommittees(ctx, exec, lockCodes)
	if err != nil {
		return internalError(err, "failed to load committee members")
	}
	actives, err := s.assignments.ListActiveByCommittees(ctx, exec, lockCodes)
	if err != nil {
		return internalError(err, "failed to load committee assignments")
	}
	membersBy := groupMembers(members)
	activeBy := make(map[string][]models.DefenseAssignment)
	for _, a := range actives {
		activeBy[a.CommitteeCode] = append(activeBy[a.CommitteeCode], a)
	}

	for _, host := range hosts {
		code := host.committee.Code
		current := locked[code]
		if current.DateKey() != host.committee.DateKey() || current.StartTime != host.committee.StartTime || current.EndTime != host.committee.EndTime {
			return conflict(fmt.Sprintf("committee %s session changed concurrently", code), nil)
		}
		if !hasChair(membersBy[code]) {
			return conflict(fmt.Sprintf("committee %s lost its chair concurrently", code), nil)
		}
		stored := activeBy[code]
		if len(stored)+len(host.planned) > current.SessionCapacity {
			return conflict(fmt.Sprintf("committee %s no longer has capacity for %d placements", code, len(host.planned)), assignmentCodes(stored))
		}
		for _, a := range host.planned {
			if holder, ok := slotHolder(stored, "", a.ScheduledAt, s.slot); ok {
				return conflict(fmt.Sprintf("slot %s on committee %s was taken concurrently", a.ScheduledAt.Format(slotLayout), code), []string{holder})
			}
		}

		seated := make(map[string]struct{}, len(membersBy[code]))
		for _, m := range membersBy[code] {
			seated[m.LecturerCode] = struct{}{}
		}
		for _, other := range neighbours[code] {
			if len(activeBy[other]) == 0 && plannedBy[other] == 0 {
				continue
			}
			for _, m := range membersBy[other] {
				if _, ok := seated[m.LecturerCode]; ok {
					return conflict(fmt.Sprintf("lecturer %s also sits on overlapping committee %s", m.LecturerCode, other), assignmentCodes(activeBy[other]))
				}
			}
		}
	}
	return nil
}

func assignmentCodes(assignments []models.DefenseAssignment) []string {
	if len(assignments) == 0 {
		return nil
	}
	codes := make([]string, 0, len(assignments))
	for _, a := range assignments {
		codes = append(codes, a.Code)
	}
	return codes
}

// sortTopicsByPriority orders topics by their primary tag's position in
// priority, unlisted tags last, then by creation time and code.
func sortTopicsByPriority(topics []models.Topic, priority []string) {
	position := make(map[string]int, len(priority))
	for i, tag := range priority {
		if _, ok := position[tag]; !ok {
			position[tag] = i
		}
	}
	rank := func(t models.Topic) int {
		if p, ok := position[t.PrimaryTag()]; ok {
			return p
		}
		return len(priority)
	}
	sort.SliceStable(topics, func(i, j int) bool {
		ri, rj := rank(topics[i]), rank(topics[j])
		if ri != rj {
			return ri < rj
		}
		if !topics[i].CreatedAt.Equal(topics[j].CreatedAt) {
			return topics[i].CreatedAt.Before(topics[j].CreatedAt)
		}
		return topics[i].Code < topics[j].Code
	})
}
