package models

import (
	"fmt"
	"time"
)

// PlacementFailureKind names the rule a placement or membership change broke.
type PlacementFailureKind string

const (
	FailureTopicAlreadyAssigned PlacementFailureKind = "TopicAlreadyAssigned"
	FailureMissingChair         PlacementFailureKind = "MissingChair"
	FailureNoCapacity           PlacementFailureKind = "NoCapacity"
	FailureLecturerConflict     PlacementFailureKind = "LecturerConflict"
	FailureNoTagMatch           PlacementFailureKind = "NoTagMatch"
	FailureSessionMismatch      PlacementFailureKind = "SessionMismatch"
	FailureTopicNotEligible     PlacementFailureKind = "TopicNotEligible"

	FailureInvalidChairCount PlacementFailureKind = "InvalidChairCount"
	FailureDuplicateMember   PlacementFailureKind = "DuplicateMember"
	FailureUnknownLecturer   PlacementFailureKind = "UnknownLecturer"
	FailureChairNotEligible  PlacementFailureKind = "ChairNotEligible"
	FailureQuotaExceeded     PlacementFailureKind = "QuotaExceeded"
	FailureInvalidRole       PlacementFailureKind = "InvalidRole"
)

// ValidationFailure is a rejected placement or membership change.
type ValidationFailure struct {
	Kind   PlacementFailureKind `json:"kind"`
	Detail string               `json:"detail"`
}

func (f *ValidationFailure) Error() string {
	if f == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

// NewValidationFailure formats a failure detail.
func NewValidationFailure(kind PlacementFailureKind, format string, args ...interface{}) *ValidationFailure {
	return &ValidationFailure{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// PlacementSnapshot is everything the conflict validator needs about a
// proposed placement, loaded ahead of time.
type PlacementSnapshot struct {
	Topic       Topic
	Committee   Committee
	Members     []CommitteeMember
	Lecturers   map[string]Lecturer
	ScheduledAt time.Time
	Override    TagOverride

	// TopicActive is the topic's current active assignment, if any.
	TopicActive *DefenseAssignment
	// CommitteeActive holds the committee's active assignments.
	CommitteeActive []DefenseAssignment
	// Overlapping lists other committees whose sessions intersect this one.
	Overlapping []OverlappingCommittee
	// ExcludeAssignment is ignored by every count, used when reassigning.
	ExcludeAssignment string
	// SlotDuration is the length of one defense within the session.
	SlotDuration time.Duration
}

// OverlappingCommittee is a committee whose session intersects the target's.
type OverlappingCommittee struct {
	Committee   Committee
	Members     []CommitteeMember
	ActiveCodes []string
}
