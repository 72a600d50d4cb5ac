package service

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
	appErrors "github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/errors"
)

var fixtureToday = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type auditRecorderStub struct {
	entries []AuditEntry
}

func (s *auditRecorderStub) Record(ctx context.Context, entry AuditEntry) {
	s.entries = append(s.entries, entry)
}

type viewInvalidatorStub struct {
	calls int
}

func (s *viewInvalidatorStub) InvalidateDefenseViews(ctx context.Context) {
	s.calls++
}

type defenseFixture struct {
	db           *memDB
	assign       *AssignmentService
	auto         *AutoAssignService
	committees   *CommitteeService
	availability *AvailabilityService
	audit        *auditRecorderStub
	views        *viewInvalidatorStub
}

func newDefenseFixture(t *testing.T) *defenseFixture {
	t.Helper()
	db := newMemDB(fixtureToday)
	audit := &auditRecorderStub{}
	views := &viewInvalidatorStub{}
	params := AssignmentServiceParams{
		Topics:      db.topicStore(),
		Committees:  db.committeeStore(),
		Members:     db.memberStore(),
		Assignments: db.assignmentStore(),
		Lecturers:   db.lecturerStore(),
		Tx:          db,
		Codes:       db,
		Audit:       audit,
		Views:       views,
		Metrics:     NewMetricsService(),
	}
	assign := NewAssignmentService(params)
	assign.now = func() time.Time { return fixtureToday }
	auto := NewAutoAssignService(params, AutoAssignConfig{})
	auto.now = func() time.Time { return fixtureToday }

	chair, err := NewChairPolicy(ChairPolicyMinRank, string(models.RankSeniorLecturer))
	require.NoError(t, err)
	committees := NewCommitteeService(CommitteeServiceParams{
		Committees:  db.committeeStore(),
		Members:     db.memberStore(),
		Assignments: db.assignmentStore(),
		Lecturers:   db.lecturerStore(),
		Tx:          db,
		Codes:       db,
		Chair:       chair,
		Scheduler:   assign,
		Audit:       audit,
		Views:       views,
	})
	availability := NewAvailabilityService(db.topicStore(), db.committeeStore(), db.memberStore(), db.lecturerStore(), chair, nil)

	return &defenseFixture{db: db, assign: assign, auto: auto, committees: committees, availability: availability, audit: audit, views: views}
}

// seedBase creates committee C1 on 2025-06-10 08:00-12:00 tagged AI with
// chair L1 and member L2, plus eligible topic T1 tagged AI.
func (f *defenseFixture) seedBase(capacity int) {
	f.db.addLecturer("L1", models.RankProfessor, 5, "AI")
	f.db.addLecturer("L2", models.RankSeniorLecturer, 5, "Data")
	f.db.addLecturer("L3", models.RankLecturer, 1, "Networking")
	f.db.addCommittee("C1", "2025-06-10", "08:00", "12:00", capacity, "AI")
	f.db.seat("C1", "L1", models.MemberRoleChair)
	f.db.seat("C1", "L2", models.MemberRoleMember)
	f.db.addTopic("T1", "AI", fixtureToday.Add(-48*time.Hour))
}

func at(date, clock string) time.Time {
	t, _ := time.Parse("2006-01-02 15:04", date+" "+clock)
	return t
}

func requireFailureKind(t *testing.T, err error, kind models.PlacementFailureKind) {
	t.Helper()
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrPlacementRejected.Code, appErr.Code, appErr.Message)
	failure, ok := appErr.Details.(*models.ValidationFailure)
	require.True(t, ok, "details should carry the validation failure")
	assert.Equal(t, kind, failure.Kind)
}

func requireCode(t *testing.T, err error, target *appErrors.Error) *appErrors.Error {
	t.Helper()
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, target.Code, appErr.Code, appErr.Message)
	return appErr
}

// assertConsistent checks the store invariants that must hold after every
// operation: one active assignment per topic, capacity, a single chair per
// committee, status agreement and no lecturer double-booked across busy
// overlapping sessions.
func (f *defenseFixture) assertConsistent(t *testing.T) {
	t.Helper()
	perTopic := map[string]int{}
	perCommittee := map[string]int{}
	for _, a := range f.db.assignments {
		if !a.Active {
			continue
		}
		perTopic[a.TopicCode]++
		perCommittee[a.CommitteeCode]++
		assert.Equal(t, models.TopicStatusScheduled, f.db.topics[a.TopicCode].Status, "topic %s", a.TopicCode)
		if a.TagOverride {
			assert.NotEmpty(t, a.OverrideReason)
		}
	}
	for topic, n := range perTopic {
		assert.LessOrEqual(t, n, 1, "topic %s has %d active assignments", topic, n)
	}
	for code, n := range perCommittee {
		c, ok := f.db.committees[code]
		if assert.True(t, ok, "assignment references missing committee %s", code) {
			assert.LessOrEqual(t, n, c.SessionCapacity, "committee %s over capacity", code)
		}
	}
	chairs := map[string]int{}
	seated := map[string]bool{}
	for _, m := range f.db.members {
		seated[m.CommitteeCode] = true
		if m.IsChair {
			chairs[m.CommitteeCode]++
		}
		assert.Equal(t, m.Role == models.MemberRoleChair, m.IsChair)
	}
	for code := range seated {
		assert.LessOrEqual(t, chairs[code], 1, "committee %s chair count", code)
	}
	for code, topic := range f.db.topics {
		if topic.Status == models.TopicStatusScheduled {
			assert.Equal(t, 1, perTopic[code], "scheduled topic %s without active assignment", code)
		}
	}
	assert.Empty(t, f.doubleBooked(perCommittee), "lecturers seated on overlapping busy committees")
}

// doubleBooked lists lecturer:committee+committee pairs where one lecturer sits
// on two overlapping committees that both hold active assignments.
func (f *defenseFixture) doubleBooked(activeByCommittee map[string]int) []string {
	seats := map[string][]string{}
	for _, m := range f.db.members {
		if activeByCommittee[m.CommitteeCode] > 0 {
			seats[m.LecturerCode] = append(seats[m.LecturerCode], m.CommitteeCode)
		}
	}
	var clashes []string
	for lecturer, codes := range seats {
		sort.Strings(codes)
		for i := range codes {
			for j := i + 1; j < len(codes); j++ {
				a, b := f.db.committees[codes[i]], f.db.committees[codes[j]]
				if a.Overlaps(b) {
					clashes = append(clashes, fmt.Sprintf("%s:%s+%s", lecturer, codes[i], codes[j]))
				}
			}
		}
	}
	sort.Strings(clashes)
	return clashes
}

func TestDoubleBookedFlagsOnlyBusyOverlaps(t *testing.T) {
	f := newDefenseFixture(t)
	f.seedBase(5)
	f.db.addCommittee("C2", "2025-06-10", "10:00", "14:00", 5, "AI")
	f.db.seat("C2", "L1", models.MemberRoleChair)
	f.db.addTopic("T2", "AI", fixtureToday)

	f.db.addActive("DA-1", "T1", "C1", at("2025-06-10", "08:00"))
	assert.Empty(t, f.doubleBooked(map[string]int{"C1": 1}))

	f.db.addActive("DA-2", "T2", "C2", at("2025-06-10", "10:00"))
	assert.Equal(t, []string{"L1:C1+C2"}, f.doubleBooked(map[string]int{"C1": 1, "C2": 1}))
}
