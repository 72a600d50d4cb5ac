package models

import "time"

// DefenseAssignment binds a topic to a committee session. Rows are never
// deleted; removal clears Active and stamps DeactivatedAt.
type DefenseAssignment struct {
	Code           string     `db:"code" json:"code"`
	TopicCode      string     `db:"topic_code" json:"topic_code"`
	CommitteeCode  string     `db:"committee_code" json:"committee_code"`
	ScheduledAt    time.Time  `db:"scheduled_at" json:"scheduled_at"`
	Active         bool       `db:"active" json:"active"`
	TagOverride    bool       `db:"tag_override" json:"tag_override"`
	OverrideReason string     `db:"override_reason" json:"override_reason,omitempty"`
	CreatedBy      string     `db:"created_by" json:"created_by,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	DeactivatedAt  *time.Time `db:"deactivated_at" json:"deactivated_at,omitempty"`
}

// AssignmentDetail enriches an assignment with topic fields for read models.
type AssignmentDetail struct {
	DefenseAssignment
	TopicTitle  string `db:"topic_title" json:"topic_title"`
	StudentCode string `db:"student_code" json:"student_code"`
}

// TagOverride records an administrator's explicit bypass of the tag match.
type TagOverride struct {
	Enabled bool
	Reason  string
}

// Placement is a proposed topic to committee binding.
type Placement struct {
	TopicCode     string
	CommitteeCode string
	ScheduledAt   time.Time
	Override      TagOverride
	Actor         string
}

// AutoAssignOptions parameterise a bulk auto-assign run.
type AutoAssignOptions struct {
	TagPriority        []string
	PerSessionCap      int
	OverrideTopicCodes []string
	OverrideReason     string
	DryRun             bool
	Actor              string
}

// UnassignedTopic explains why auto-assign could not place a topic.
type UnassignedTopic struct {
	TopicCode string               `json:"topic_code"`
	Reason    PlacementFailureKind `json:"reason"`
}

// AutoAssignResult reports the outcome of a bulk run, in processing order.
type AutoAssignResult struct {
	Assigned   []DefenseAssignment `json:"assigned"`
	Unassigned []UnassignedTopic   `json:"unassigned"`
	DryRun     bool                `json:"dry_run"`
}

// StudentDefenseInfo is what a student sees about their upcoming defense.
type StudentDefenseInfo struct {
	StudentCode string                  `json:"student_code"`
	Topic       Topic                   `json:"topic"`
	Assignment  *DefenseAssignment      `json:"assignment,omitempty"`
	Committee   *Committee              `json:"committee,omitempty"`
	Members     []CommitteeMemberDetail `json:"members,omitempty"`
}
