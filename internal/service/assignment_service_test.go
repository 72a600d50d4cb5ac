package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
	appErrors "github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/errors"
)

func TestAssignmentServiceAssignSchedulesTopic(t *testing.T) {
	f := newDefenseFixture(t)
	f.seedBase(5)

	created, err := f.assign.Assign(context.Background(), models.Placement{TopicCode: "T1", CommitteeCode: "C1", Actor: "admin-1"})
	require.NoError(t, err)

	assert.Equal(t, "DA-2025-000001", created.Code)
	assert.Equal(t, at("2025-06-10", "08:00"), created.ScheduledAt)
	assert.True(t, created.Active)
	assert.Equal(t, "admin-1", created.CreatedBy)
	assert.Equal(t, models.TopicStatusScheduled, f.db.topics["T1"].Status)
	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, models.AuditActionAssignmentCreated, f.audit.entries[0].Action)
	assert.Equal(t, 1, f.views.calls)
	f.assertConsistent(t)
}

func TestAssignmentServiceAssignPicksNextFreeSlot(t *testing.T) {
	f := newDefenseFixture(t)
	f.seedBase(5)
	f.db.addTopic("T2", "AI", fixtureToday)
	f.db.addActive("DA-OLD", "T2", "C1", at("2025-06-10", "08:00"))
	f.db.addTopic("T3", "AI", fixtureToday)

	created, err := f.assign.Assign(context.Background(), models.Placement{TopicCode: "T3", CommitteeCode: "C1"})
	require.NoError(t, err)
	assert.Equal(t, at("2025-06-10", "08:45"), created.ScheduledAt)
}

func TestAssignmentServiceAssignKeepsRequestedSlot(t *testing.T) {
	f := newDefenseFixture(t)
	f.seedBase(5)

	created, err := f.assign.Assign(context.Background(), models.Placement{TopicCode: "T1", CommitteeCode: "C1", ScheduledAt: at("2025-06-10", "10:30")})
	require.NoError(t, err)
	assert.Equal(t, at("2025-06-10", "10:30"), created.ScheduledAt)
}

func TestAssignmentServiceAssignRejectsFullCommittee(t *testing.T) {
	f := newDefenseFixture(t)
	f.seedBase(1)
	f.db.addActive("DA-2025-000001", "T1", "C1", at("2025-06-10", "08:00"))
	f.db.addTopic("T3", "AI", fixtureToday)

	_, err := f.assign.Assign(context.Background(), models.Placement{TopicCode: "T3", CommitteeCode: "C1", ScheduledAt: at("2025-06-10", "09:00")})
	requireFailureKind(t, err, models.FailureNoCapacity)

	assert.Equal(t, models.TopicStatusEligibleForDefense, f.db.topics["T3"].Status)
	assert.Len(t, f.db.assignments, 1)
	assert.Zero(t, f.db.txCount)
	f.assertConsistent(t)
}

func TestAssignmentServiceAssignRejections(t *testing.T) {
	cases := []struct {
		name      string
		seed      func(f *defenseFixture)
		placement models.Placement
		kind      models.PlacementFailureKind
	}{
		{
			name: "topic already assigned",
			seed: func(f *defenseFixture) {
				f.db.addActive("DA-X", "T1", "C1", at("2025-06-10", "08:00"))
			},
			placement: models.Placement{TopicCode: "T1", CommitteeCode: "C1"},
			kind:      models.FailureTopicAlreadyAssigned,
		},
		{
			name: "committee without chair",
			seed: func(f *defenseFixture) {
				f.db.addCommittee("C2", "2025-06-11", "", "", 5, "AI")
				f.db.seat("C2", "L2", models.MemberRoleMember)
			},
			placement: models.Placement{TopicCode: "T1", CommitteeCode: "C2"},
			kind:      models.FailureMissingChair,
		},
		{
			name: "lecturer double booked",
			seed: func(f *defenseFixture) {
				f.db.addCommittee("C2", "2025-06-10", "10:00", "14:00", 5, "AI")
				f.db.seat("C2", "L1", models.MemberRoleChair)
				f.db.addTopic("T4", "AI", fixtureToday)
				f.db.addActive("DA-C2", "T4", "C2", at("2025-06-10", "10:00"))
			},
			placement: models.Placement{TopicCode: "T1", CommitteeCode: "C1"},
			kind:      models.FailureLecturerConflict,
		},
		{
			name: "no tag overlap",
			seed: func(f *defenseFixture) {
				f.db.addTopic("T5", "Networking", fixtureToday)
			},
			placement: models.Placement{TopicCode: "T5", CommitteeCode: "C1"},
			kind:      models.FailureNoTagMatch,
		},
		{
			name:      "scheduled outside defense date",
			placement: models.Placement{TopicCode: "T1", CommitteeCode: "C1", ScheduledAt: at("2025-06-11", "08:00")},
			kind:      models.FailureSessionMismatch,
		},
		{
			name: "topic not eligible",
			seed: func(f *defenseFixture) {
				f.db.addTopic("T6", "AI", fixtureToday)
				topic := f.db.topics["T6"]
				topic.Status = models.TopicStatusDraft
				f.db.topics["T6"] = topic
			},
			placement: models.Placement{TopicCode: "T6", CommitteeCode: "C1"},
			kind:      models.FailureTopicNotEligible,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newDefenseFixture(t)
			f.seedBase(5)
			if tc.seed != nil {
				tc.seed(f)
			}
			before := len(f.db.assignments)

			_, err := f.assign.Assign(context.Background(), tc.placement)
			requireFailureKind(t, err, tc.kind)
			assert.Len(t, f.db.assignments, before)
			f.assertConsistent(t)
		})
	}
}

func TestAssignmentServiceAssignAllowsSeparateSessionsSameDay(t *testing.T) {
	f := newDefenseFixture(t)
	f.seedBase(5)
	f.db.addCommittee("C2", "2025-06-10", "13:00", "17:00", 5, "AI")
	f.db.seat("C2", "L1", models.MemberRoleChair)
	f.db.addTopic("T4", "AI", fixtureToday)
	f.db.addActive("DA-C2", "T4", "C2", at("2025-06-10", "13:00"))

	_, err := f.assign.Assign(context.Background(), models.Placement{TopicCode: "T1", CommitteeCode: "C1"})
	require.NoError(t, err)
	f.assertConsistent(t)
}

func TestAssignmentServiceAssignWithTagOverride(t *testing.T) {
	f := newDefenseFixture(t)
	f.seedBase(5)
	f.db.addTopic("T5", "Networking", fixtureToday)

	_, err := f.assign.Assign(context.Background(), models.Placement{
		TopicCode: "T5", CommitteeCode: "C1", Override: models.TagOverride{Enabled: true},
	})
	requireCode(t, err, appErrors.ErrValidation)

	created, err := f.assign.Assign(context.Background(), models.Placement{
		TopicCode: "T5", CommitteeCode: "C1", Override: models.TagOverride{Enabled: true, Reason: "external examiner covers networking"},
	})
	require.NoError(t, err)
	assert.True(t, created.TagOverride)
	assert.Equal(t, "external examiner covers networking", created.OverrideReason)
	f.assertConsistent(t)
}

func TestAssignmentServiceAssignUnknownCodes(t *testing.T) {
	f := newDefenseFixture(t)
	f.seedBase(5)

	_, err := f.assign.Assign(context.Background(), models.Placement{TopicCode: "T404", CommitteeCode: "C1"})
	appErr := requireCode(t, err, appErrors.ErrNotFound)
	assert.Equal(t, "topic not found", appErr.Message)

	_, err = f.assign.Assign(context.Background(), models.Placement{TopicCode: "T1", CommitteeCode: "C404"})
	appErr = requireCode(t, err, appErrors.ErrNotFound)
	assert.Equal(t, "committee not found", appErr.Message)
}

func TestAssignmentServiceAssignGuardDetectsConcurrentFill(t *testing.T) {
	f := newDefenseFixture(t)
	f.seedBase(1)
	f.db.addTopic("T9", "AI", fixtureToday)
	f.db.onLock = func(string) {
		f.db.addActive("DA-RACE", "T9", "C1", at("2025-06-10", "08:00"))
	}

	_, err := f.assign.Assign(context.Background(), models.Placement{TopicCode: "T1", CommitteeCode: "C1"})
	appErr := requireCode(t, err, appErrors.ErrConflict)
	assert.Equal(t, []string{"DA-RACE"}, appErr.Details)
	assert.Equal(t, 1, f.db.rolledBack)
	assert.Equal(t, models.TopicStatusEligibleForDefense, f.db.topics["T1"].Status)
	assert.Empty(t, f.db.seq)
	assert.Empty(t, f.audit.entries)
}

func TestAssignmentServiceAssignRollsBackOnInsertFailure(t *testing.T) {
	f := newDefenseFixture(t)
	f.seedBase(5)
	f.db.insertErr = errors.New("connection reset")

	_, err := f.assign.Assign(context.Background(), models.Placement{TopicCode: "T1", CommitteeCode: "C1"})
	requireCode(t, err, appErrors.ErrInternal)
	assert.Equal(t, models.TopicStatusEligibleForDefense, f.db.topics["T1"].Status)
	assert.Empty(t, f.db.assignments)
}

func TestAssignmentServiceAssignHonoursCancellation(t *testing.T) {
	f := newDefenseFixture(t)
	f.seedBase(5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.assign.Assign(ctx, models.Placement{TopicCode: "T1", CommitteeCode: "C1"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.db.txCount)
	assert.Empty(t, f.db.assignments)
}

func TestAssignmentServiceAssignTopicsReportsEachOutcome(t *testing.T) {
	f := newDefenseFixture(t)
	f.seedBase(1)
	f.db.addTopic("T2", "AI", fixtureToday)

	resp := f.assign.AssignTopics(context.Background(), []models.Placement{
		{TopicCode: "T1", CommitteeCode: "C1"},
		{TopicCode: "T2", CommitteeCode: "C1"},
	})
	require.Len(t, resp.Results, 2)
	assert.Equal(t, 1, resp.Assigned)
	assert.Equal(t, 1, resp.Failed)
	assert.NotNil(t, resp.Results[0].Assignment)
	require.NotNil(t, resp.Results[1].Error)
	assert.Equal(t, appErrors.ErrPlacementRejected.Code, resp.Results[1].Error.Code)
	f.assertConsistent(t)
}

func TestAssignmentServiceChangeAssignmentMovesTopic(t *testing.T) {
	f := newDefenseFixture(t)
	f.seedBase(5)
	f.db.addCommittee("C2", "2025-06-12", "08:00", "12:00", 2, "AI")
	f.db.seat("C2", "L2", models.MemberRoleChair)
	f.db.addActive("DA-2025-000001", "T1", "C1", at("2025-06-10", "08:00"))

	moved, err := f.assign.ChangeAssignment(context.Background(), models.Placement{TopicCode: "T1", CommitteeCode: "C2"})
	require.NoError(t, err)
	assert.Equal(t, "C2", moved.CommitteeCode)
	assert.Equal(t, at("2025-06-12", "08:00"), moved.ScheduledAt)

	require.Len(t, f.db.assignments, 2)
	assert.False(t, f.db.assignments[0].Active)
	assert.NotNil(t, f.db.assignments[0].DeactivatedAt)
	assert.True(t, f.db.assignments[1].Active)
	assert.Equal(t, models.TopicStatusScheduled, f.db.topics["T1"].Status)
	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, models.AuditActionAssignmentChanged, f.audit.entries[0].Action)
	f.assertConsistent(t)
}

func TestAssignmentServiceChangeAssignmentWithinFullCommittee(t *testing.T) {
	f := newDefenseFixture(t)
	f.seedBase(1)
	f.db.addActive("DA-2025-000001", "T1", "C1", at("2025-06-10", "08:00"))

	moved, err := f.assign.ChangeAssignment(context.Background(), models.Placement{TopicCode: "T1", CommitteeCode: "C1", ScheduledAt: at("2025-06-10", "10:00")})
	require.NoError(t, err)
	assert.Equal(t, at("2025-06-10", "10:00"), moved.ScheduledAt)
	assert.Equal(t, 1, f.db.activeCount("C1"))
	f.assertConsistent(t)
}

func TestAssignmentServiceChangeAssignmentFailureKeepsCurrent(t *testing.T) {
	f := newDefenseFixture(t)
	f.seedBase(5)
	f.db.addCommittee("C2", "2025-06-12", "", "", 1, "AI")
	f.db.seat("C2", "L2", models.MemberRoleChair)
	f.db.addTopic("T2", "AI", fixtureToday)
	f.db.addActive("DA-2025-000001", "T1", "C1", at("2025-06-10", "08:00"))
	f.db.addActive("DA-2025-000002", "T2", "C2", at("2025-06-12", "08:00"))

	_, err := f.assign.ChangeAssignment(context.Background(), models.Placement{TopicCode: "T1", CommitteeCode: "C2"})
	requireFailureKind(t, err, models.FailureNoCapacity)

	active := f.db.activeFor("T1")
	require.NotNil(t, active)
	assert.Equal(t, "DA-2025-000001", active.Code)
	f.assertConsistent(t)
}

func TestAssignmentServiceChangeAssignmentWithoutActive(t *testing.T) {
	f := newDefenseFixture(t)
	f.seedBase(5)

	_, err := f.assign.ChangeAssignment(context.Background(), models.Placement{TopicCode: "T1", CommitteeCode: "C1"})
	appErr := requireCode(t, err, appErrors.ErrNotFound)
	assert.Equal(t, "topic has no active assignment", appErr.Message)
}

func TestAssignmentServiceRemoveAssignmentIsIdempotent(t *testing.T) {
	f := newDefenseFixture(t)
	f.seedBase(5)
	f.db.addActive("DA-2025-000001", "T1", "C1", at("2025-06-10", "08:00"))

	removed, err := f.assign.RemoveAssignment(context.Background(), "T1", "admin-1")
	require.NoError(t, err)
	require.NotNil(t, removed)
	assert.Equal(t, "DA-2025-000001", removed.Code)
	assert.False(t, removed.Active)
	assert.Equal(t, models.TopicStatusEligibleForDefense, f.db.topics["T1"].Status)
	assert.Nil(t, f.db.activeFor("T1"))

	again, err := f.assign.RemoveAssignment(context.Background(), "T1", "admin-1")
	require.NoError(t, err)
	assert.Nil(t, again)
	assert.Equal(t, models.TopicStatusEligibleForDefense, f.db.topics["T1"].Status)
	assert.Len(t, f.audit.entries, 1)
	f.assertConsistent(t)

	_, err = f.assign.RemoveAssignment(context.Background(), "T404", "admin-1")
	requireCode(t, err, appErrors.ErrNotFound)
}

func TestAssignmentServiceAssignRemoveRoundTrip(t *testing.T) {
	f := newDefenseFixture(t)
	f.seedBase(5)
	before := f.db.topics["T1"]

	_, err := f.assign.Assign(context.Background(), models.Placement{TopicCode: "T1", CommitteeCode: "C1"})
	require.NoError(t, err)
	_, err = f.assign.RemoveAssignment(context.Background(), "T1", "")
	require.NoError(t, err)

	assert.Equal(t, before, f.db.topics["T1"])
	assert.Zero(t, f.db.activeCount("C1"))
	again, err := f.assign.Assign(context.Background(), models.Placement{TopicCode: "T1", CommitteeCode: "C1"})
	require.NoError(t, err)
	assert.Equal(t, "DA-2025-000002", again.Code)
}

func TestAssignmentServiceDeleteCommittee(t *testing.T) {
	f := newDefenseFixture(t)
	f.seedBase(5)
	f.db.addActive("DA-2025-000001", "T1", "C1", at("2025-06-10", "08:00"))

	err := f.assign.DeleteCommittee(context.Background(), "C1", false, "admin-1")
	appErr := requireCode(t, err, appErrors.ErrConflict)
	assert.Equal(t, []string{"DA-2025-000001"}, appErr.Details)
	assert.Contains(t, f.db.committees, "C1")
	assert.True(t, f.db.assignments[0].Active)

	require.NoError(t, f.assign.DeleteCommittee(context.Background(), "C1", true, "admin-1"))
	assert.NotContains(t, f.db.committees, "C1")
	assert.False(t, f.db.assignments[0].Active)
	assert.Equal(t, models.TopicStatusEligibleForDefense, f.db.topics["T1"].Status)
	for _, m := range f.db.members {
		assert.NotEqual(t, "C1", m.CommitteeCode)
	}
	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, models.AuditActionCommitteeDeleted, f.audit.entries[0].Action)

	err = f.assign.DeleteCommittee(context.Background(), "C1", true, "admin-1")
	requireCode(t, err, appErrors.ErrNotFound)
}

func TestAssignmentServiceDeleteEmptyCommittee(t *testing.T) {
	f := newDefenseFixture(t)
	f.seedBase(5)

	require.NoError(t, f.assign.DeleteCommittee(context.Background(), "C1", false, ""))
	assert.NotContains(t, f.db.committees, "C1")
}

func TestNextFreeSlotSkipsTaken(t *testing.T) {
	c := models.Committee{DefenseDate: at("2025-06-10", "00:00")}
	taken := []time.Time{at("2025-06-10", "08:00"), at("2025-06-10", "09:00")}
	slot, ok := nextFreeSlot(c, taken, 30*time.Minute)
	require.True(t, ok)
	assert.Equal(t, at("2025-06-10", "08:30"), slot)

	// A manual slot off the grid still blocks the grid slots it overlaps.
	slot, ok = nextFreeSlot(c, []time.Time{at("2025-06-10", "08:20")}, 30*time.Minute)
	require.True(t, ok)
	assert.Equal(t, at("2025-06-10", "09:00"), slot)
}

func TestNextFreeSlotStaysInsideWindow(t *testing.T) {
	c := models.Committee{DefenseDate: at("2025-06-10", "00:00"), StartTime: "08:00", EndTime: "09:00"}

	slot, ok := nextFreeSlot(c, nil, 45*time.Minute)
	require.True(t, ok)
	assert.Equal(t, at("2025-06-10", "08:00"), slot)

	_, ok = nextFreeSlot(c, []time.Time{slot}, 45*time.Minute)
	assert.False(t, ok)
}

func TestAssignmentServiceAssignRespectsSessionWindow(t *testing.T) {
	f := newDefenseFixture(t)
	f.seedBase(5)
	f.db.committees["C1"] = withWindow(f.db.committees["C1"], "08:00", "09:00")
	f.db.addTopic("T2", "AI", fixtureToday)
	f.db.addTopic("T3", "AI", fixtureToday)

	_, err := f.assign.Assign(context.Background(), models.Placement{TopicCode: "T2", CommitteeCode: "C1", ScheduledAt: at("2025-06-10", "10:00")})
	requireFailureKind(t, err, models.FailureSessionMismatch)

	created, err := f.assign.Assign(context.Background(), models.Placement{TopicCode: "T1", CommitteeCode: "C1"})
	require.NoError(t, err)
	assert.Equal(t, at("2025-06-10", "08:00"), created.ScheduledAt)

	// Capacity remains but the one hour window holds a single 45 minute slot.
	_, err = f.assign.Assign(context.Background(), models.Placement{TopicCode: "T2", CommitteeCode: "C1"})
	requireFailureKind(t, err, models.FailureNoCapacity)

	_, err = f.assign.Assign(context.Background(), models.Placement{TopicCode: "T3", CommitteeCode: "C1", ScheduledAt: at("2025-06-10", "08:10")})
	requireFailureKind(t, err, models.FailureSessionMismatch)
	assert.Equal(t, 1, f.db.activeCount("C1"))
	f.assertConsistent(t)
}

func withWindow(c models.Committee, start, end string) models.Committee {
	c.StartTime, c.EndTime = start, end
	return c
}
