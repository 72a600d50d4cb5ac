package service

import (
	"time"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
)

// ConflictValidator accepts or rejects placements against a loaded snapshot.
// It never touches the store.
type ConflictValidator struct{}

const slotLayout = "2006-01-02 15:04"

// NewConflictValidator constructs a ConflictValidator.
func NewConflictValidator() *ConflictValidator {
	return &ConflictValidator{}
}

// Validate returns the first rule the placement breaks, or nil.
func (v *ConflictValidator) Validate(snapshot *models.PlacementSnapshot) *models.ValidationFailure {
	if snapshot == nil {
		return nil
	}
	topic, committee := snapshot.Topic, snapshot.Committee

	if topic.Status != models.TopicStatusEligibleForDefense && topic.Status != models.TopicStatusScheduled {
		return models.NewValidationFailure(models.FailureTopicNotEligible,
			"topic %s has status %s", topic.Code, topic.Status)
	}
	if !snapshot.ScheduledAt.IsZero() && !committee.OnDefenseDate(snapshot.ScheduledAt) {
		return models.NewValidationFailure(models.FailureSessionMismatch,
			"scheduled_at %s is not on committee %s defense date %s",
			snapshot.ScheduledAt.Format(models.DateLayout), committee.Code, committee.DateKey())
	}
	if !snapshot.ScheduledAt.IsZero() && !committee.HoldsSlot(snapshot.ScheduledAt, snapshot.SlotDuration) {
		return models.NewValidationFailure(models.FailureSessionMismatch,
			"scheduled_at %s does not fit committee %s session window",
			snapshot.ScheduledAt.UTC().Format(slotLayout), committee.Code)
	}

	if active := snapshot.TopicActive; active != nil && active.Code != snapshot.ExcludeAssignment {
		return models.NewValidationFailure(models.FailureTopicAlreadyAssigned,
			"topic %s already has active assignment %s", topic.Code, active.Code)
	}
	if !hasChair(snapshot.Members) {
		return models.NewValidationFailure(models.FailureMissingChair,
			"committee %s has no chair", committee.Code)
	}
	if used := countActive(snapshot.CommitteeActive, snapshot.ExcludeAssignment); used >= committee.SessionCapacity {
		return models.NewValidationFailure(models.FailureNoCapacity,
			"committee %s is full (%d/%d)", committee.Code, used, committee.SessionCapacity)
	}
	if snapshot.ScheduledAt.IsZero() {
		if _, ok := nextFreeSlot(committee, takenSlots(snapshot.CommitteeActive, snapshot.ExcludeAssignment), snapshot.SlotDuration); !ok {
			return models.NewValidationFailure(models.FailureNoCapacity,
				"committee %s has no free slot left in its session window", committee.Code)
		}
	} else if holder, ok := slotHolder(snapshot.CommitteeActive, snapshot.ExcludeAssignment, snapshot.ScheduledAt, snapshot.SlotDuration); ok {
		return models.NewValidationFailure(models.FailureSessionMismatch,
			"slot %s on committee %s is taken by assignment %s",
			snapshot.ScheduledAt.UTC().Format(slotLayout), committee.Code, holder)
	}
	if lecturer, other, ok := findLecturerConflict(snapshot.Members, snapshot.Overlapping, snapshot.ExcludeAssignment); ok {
		return models.NewValidationFailure(models.FailureLecturerConflict,
			"lecturer %s also sits on overlapping committee %s", lecturer, other)
	}
	if !snapshot.Override.Enabled && !coversTopic(topic, tagCoverage(committee, snapshot.Members, snapshot.Lecturers)) {
		return models.NewValidationFailure(models.FailureNoTagMatch,
			"committee %s does not cover any tag of topic %s", committee.Code, topic.Code)
	}
	return nil
}

// ValidateBatch validates every snapshot independently, keeping input order.
func (v *ConflictValidator) ValidateBatch(snapshots []*models.PlacementSnapshot) []*models.ValidationFailure {
	results := make([]*models.ValidationFailure, len(snapshots))
	for i, snapshot := range snapshots {
		results[i] = v.Validate(snapshot)
	}
	return results
}

// slotHolder returns the active assignment whose slot overlaps one starting at at.
func slotHolder(assignments []models.DefenseAssignment, exclude string, at time.Time, slot time.Duration) (string, bool) {
	for _, a := range assignments {
		if a.Active && a.Code != exclude && slotsOverlap(a.ScheduledAt, at, slot) {
			return a.Code, true
		}
	}
	return "", false
}

func slotsOverlap(a, b time.Time, slot time.Duration) bool {
	if slot <= 0 {
		return a.Equal(b)
	}
	return a.Before(b.Add(slot)) && b.Before(a.Add(slot))
}

func hasChair(members []models.CommitteeMember) bool {
	for _, m := range members {
		if m.IsChair {
			return true
		}
	}
	return false
}

func countActive(assignments []models.DefenseAssignment, exclude string) int {
	count := 0
	for _, a := range assignments {
		if a.Active && a.Code != exclude {
			count++
		}
	}
	return count
}

// findLecturerConflict reports the first member that also sits on an
// overlapping committee holding at least one active assignment.
func findLecturerConflict(members []models.CommitteeMember, overlapping []models.OverlappingCommittee, exclude string) (string, string, bool) {
	for _, other := range overlapping {
		busy := false
		for _, code := range other.ActiveCodes {
			if code != exclude {
				busy = true
				break
			}
		}
		if !busy {
			continue
		}
		seated := make(map[string]struct{}, len(other.Members))
		for _, m := range other.Members {
			seated[m.LecturerCode] = struct{}{}
		}
		for _, m := range members {
			if _, ok := seated[m.LecturerCode]; ok {
				return m.LecturerCode, other.Committee.Code, true
			}
		}
	}
	return "", "", false
}

// tagCoverage is the union of committee tags and the tags of its members.
func tagCoverage(committee models.Committee, members []models.CommitteeMember, lecturers map[string]models.Lecturer) map[string]struct{} {
	coverage := make(map[string]struct{}, len(committee.Tags))
	for _, tag := range committee.Tags {
		coverage[tag] = struct{}{}
	}
	for _, m := range members {
		for _, tag := range lecturers[m.LecturerCode].Tags {
			coverage[tag] = struct{}{}
		}
	}
	return coverage
}

func coversTopic(topic models.Topic, coverage map[string]struct{}) bool {
	for _, tag := range topic.Tags {
		if _, ok := coverage[tag]; ok {
			return true
		}
	}
	return false
}
