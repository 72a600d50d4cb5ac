package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
	appErrors "github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/errors"
)

type defenseTxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, exec sqlx.ExtContext) error) error
}

type codeGenerator interface {
	Next(ctx context.Context, exec sqlx.ExtContext, prefix string) (string, error)
}

type topicStore interface {
	FindByCode(ctx context.Context, exec sqlx.ExtContext, code string) (*models.Topic, error)
	LockByCode(ctx context.Context, exec sqlx.ExtContext, code string) (*models.Topic, error)
	ListAvailable(ctx context.Context, exec sqlx.ExtContext, filter models.TopicFilter) ([]models.Topic, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, code string, status models.TopicStatus) error
	UpdateStatusBatch(ctx context.Context, exec sqlx.ExtContext, codes []string, status models.TopicStatus) error
}

type committeeStore interface {
	FindByCode(ctx context.Context, exec sqlx.ExtContext, code string) (*models.Committee, error)
	LockByCode(ctx context.Context, exec sqlx.ExtContext, code string) (*models.Committee, error)
	List(ctx context.Context, filter models.CommitteeFilter) ([]models.Committee, int, error)
	ListByDate(ctx context.Context, exec sqlx.ExtContext, date time.Time) ([]models.Committee, error)
	ListAfter(ctx context.Context, exec sqlx.ExtContext, day time.Time) ([]models.Committee, error)
	Create(ctx context.Context, exec sqlx.ExtContext, committee *models.Committee) error
	Update(ctx context.Context, exec sqlx.ExtContext, committee *models.Committee) error
	Delete(ctx context.Context, exec sqlx.ExtContext, code string) error
}

type memberStore interface {
	ListByCommittees(ctx context.Context, exec sqlx.ExtContext, codes []string) ([]models.CommitteeMember, error)
	Replace(ctx context.Context, exec sqlx.ExtContext, committeeCode string, members []models.CommitteeMember) error
	DeleteByCommittee(ctx context.Context, exec sqlx.ExtContext, committeeCode string) error
}

type assignmentStore interface {
	FindActiveByTopic(ctx context.Context, exec sqlx.ExtContext, topicCode string) (*models.DefenseAssignment, error)
	ListActiveByCommittees(ctx context.Context, exec sqlx.ExtContext, committeeCodes []string) ([]models.DefenseAssignment, error)
	CountActiveByCommittee(ctx context.Context, exec sqlx.ExtContext, committeeCode string) (int, error)
	Insert(ctx context.Context, exec sqlx.ExtContext, assignment *models.DefenseAssignment) error
	Deactivate(ctx context.Context, exec sqlx.ExtContext, codes []string, at time.Time) (int64, error)
}

type lecturerStore interface {
	ListByCodes(ctx context.Context, exec sqlx.ExtContext, codes []string) ([]models.Lecturer, error)
	ListByTag(ctx context.Context, tag string) ([]models.Lecturer, error)
	LockByCodes(ctx context.Context, exec sqlx.ExtContext, codes []string) error
}

// placementLoader assembles validator snapshots from the store.
type placementLoader struct {
	topics      topicStore
	committees  committeeStore
	members     memberStore
	assignments assignmentStore
	lecturers   lecturerStore
	slot        time.Duration
}

// loadOptions tunes a snapshot load.
type loadOptions struct {
	// exclude is the assignment code ignored by every count.
	exclude string
	// lock takes row locks, committees by code first and then the topic.
	lock bool
	// alsoLock names extra committees to lock, such as the one being left.
	alsoLock []string
}

func (l *placementLoader) load(ctx context.Context, exec sqlx.ExtContext, placement models.Placement, opts loadOptions) (*models.PlacementSnapshot, error) {
	committee, err := l.committees.FindByCode(ctx, exec, placement.CommitteeCode)
	if err != nil {
		return nil, notFoundOr(err, "committee not found", "failed to load committee")
	}

	sameDay, err := l.committees.ListByDate(ctx, exec, committee.DefenseDate)
	if err != nil {
		return nil, internalError(err, "failed to load committees on defense date")
	}
	var overlapping []models.Committee
	for _, other := range sameDay {
		if other.Code != committee.Code && committee.Overlaps(other) {
			overlapping = append(overlapping, other)
		}
	}

	var topic *models.Topic
	if opts.lock {
		lockCodes := []string{committee.Code}
		lockCodes = append(lockCodes, opts.alsoLock...)
		for _, other := range overlapping {
			lockCodes = append(lockCodes, other.Code)
		}
		locked, err := lockCommitteeRows(ctx, l.committees, exec, lockCodes)
		if err != nil {
			return nil, err
		}
		current := locked[committee.Code]
		if current.DateKey() != committee.DateKey() || current.StartTime != committee.StartTime || current.EndTime != committee.EndTime {
			return nil, conflict("committee session changed concurrently", nil)
		}
		committee = current
		topic, err = l.topics.LockByCode(ctx, exec, placement.TopicCode)
		if err != nil {
			return nil, notFoundOr(err, "topic not found", "failed to lock topic")
		}
	} else {
		topic, err = l.topics.FindByCode(ctx, exec, placement.TopicCode)
		if err != nil {
			return nil, notFoundOr(err, "topic not found", "failed to load topic")
		}
	}

	snapshot := &models.PlacementSnapshot{
		Topic:             *topic,
		Committee:         *committee,
		ScheduledAt:       placement.ScheduledAt,
		Override:          placement.Override,
		ExcludeAssignment: opts.exclude,
		SlotDuration:      l.slot,
	}

	active, err := l.assignments.FindActiveByTopic(ctx, exec, topic.Code)
	switch {
	case err == nil:
		snapshot.TopicActive = active
	case !errors.Is(err, sql.ErrNoRows):
		return nil, internalError(err, "failed to load topic assignment")
	}

	codes := []string{committee.Code}
	for _, other := range overlapping {
		codes = append(codes, other.Code)
	}
	members, err := l.members.ListByCommittees(ctx, exec, codes)
	if err != nil {
		return nil, internalError(err, "failed to load committee members")
	}
	actives, err := l.assignments.ListActiveByCommittees(ctx, exec, codes)
	if err != nil {
		return nil, internalError(err, "failed to load committee assignments")
	}

	membersBy := groupMembers(members)
	activeBy := make(map[string][]models.DefenseAssignment)
	for _, a := range actives {
		activeBy[a.CommitteeCode] = append(activeBy[a.CommitteeCode], a)
	}

	snapshot.Members = membersBy[committee.Code]
	snapshot.CommitteeActive = activeBy[committee.Code]
	for _, other := range overlapping {
		entry := models.OverlappingCommittee{Committee: other, Members: membersBy[other.Code]}
		for _, a := range activeBy[other.Code] {
			entry.ActiveCodes = append(entry.ActiveCodes, a.Code)
		}
		snapshot.Overlapping = append(snapshot.Overlapping, entry)
	}

	lecturerCodes := make([]string, 0, len(snapshot.Members))
	for _, m := range snapshot.Members {
		lecturerCodes = append(lecturerCodes, m.LecturerCode)
	}
	lecturers, err := l.lecturers.ListByCodes(ctx, exec, lecturerCodes)
	if err != nil {
		return nil, internalError(err, "failed to load committee lecturers")
	}
	snapshot.Lecturers = make(map[string]models.Lecturer, len(lecturers))
	for _, lecturer := range lecturers {
		snapshot.Lecturers[lecturer.Code] = lecturer
	}

	return snapshot, nil
}

// lockCommitteeRows locks committee rows in ascending code order. Every
// writer takes committee locks through it before any topic or lecturer lock.
func lockCommitteeRows(ctx context.Context, committees committeeStore, exec sqlx.ExtContext, codes []string) (map[string]*models.Committee, error) {
	unique := uniqueSorted(codes)
	locked := make(map[string]*models.Committee, len(unique))
	for _, code := range unique {
		committee, err := committees.LockByCode(ctx, exec, code)
		if err != nil {
			return nil, notFoundOr(err, "committee not found", "failed to lock committee")
		}
		locked[code] = committee
	}
	return locked, nil
}

func groupMembers(members []models.CommitteeMember) map[string][]models.CommitteeMember {
	grouped := make(map[string][]models.CommitteeMember)
	for _, m := range members {
		grouped[m.CommitteeCode] = append(grouped[m.CommitteeCode], m)
	}
	return grouped
}

func uniqueSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// nextFreeSlot returns the earliest slot inside the session window that does
// not overlap a taken one. It reports false once the window is full.
func nextFreeSlot(committee models.Committee, taken []time.Time, slot time.Duration) (time.Time, bool) {
	if slot <= 0 {
		slot = defaultSlotDuration
	}
	end := committee.SessionEnd()
	for at := committee.SessionStart(); !at.Add(slot).After(end); at = at.Add(slot) {
		free := true
		for _, t := range taken {
			if slotsOverlap(t.UTC(), at, slot) {
				free = false
				break
			}
		}
		if free {
			return at, true
		}
	}
	return time.Time{}, false
}

func notFoundOr(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return internalError(err, internal)
}

func internalError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func rejected(failure *models.ValidationFailure) error {
	return appErrors.WithDetails(appErrors.ErrPlacementRejected, failure.Error(), failure)
}

func conflict(message string, codes []string) error {
	if len(codes) == 0 {
		return appErrors.Clone(appErrors.ErrConflict, message)
	}
	return appErrors.WithDetails(appErrors.ErrConflict, message, codes)
}
