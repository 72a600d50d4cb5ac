package models

import (
	"time"

	"github.com/lib/pq"
)

// TopicStatus captures where a thesis topic sits in its lifecycle.
type TopicStatus string

const (
	TopicStatusDraft              TopicStatus = "DRAFT"
	TopicStatusPendingApproval    TopicStatus = "PENDING_APPROVAL"
	TopicStatusApproved           TopicStatus = "APPROVED"
	TopicStatusEligibleForDefense TopicStatus = "ELIGIBLE_FOR_DEFENSE"
	TopicStatusScheduled          TopicStatus = "SCHEDULED"
	TopicStatusDefended           TopicStatus = "DEFENDED"
	TopicStatusWithdrawn          TopicStatus = "WITHDRAWN"
)

// Valid reports whether s is one of the known statuses.
func (s TopicStatus) Valid() bool {
	switch s {
	case TopicStatusDraft, TopicStatusPendingApproval, TopicStatusApproved,
		TopicStatusEligibleForDefense, TopicStatusScheduled, TopicStatusDefended, TopicStatusWithdrawn:
		return true
	}
	return false
}

// Topic is a thesis subject. The first tag is its primary tag.
type Topic struct {
	Code           string         `db:"code" json:"code"`
	Title          string         `db:"title" json:"title"`
	StudentCode    string         `db:"student_code" json:"student_code"`
	SupervisorCode string         `db:"supervisor_code" json:"supervisor_code"`
	DepartmentCode string         `db:"department_code" json:"department_code"`
	SpecialtyCode  string         `db:"specialty_code" json:"specialty_code"`
	Tags           pq.StringArray `db:"tags" json:"tags"`
	Status         TopicStatus    `db:"status" json:"status"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

// PrimaryTag returns the topic's first tag or an empty string.
func (t Topic) PrimaryTag() string {
	if len(t.Tags) == 0 {
		return ""
	}
	return t.Tags[0]
}

// TopicFilter narrows available topic queries.
type TopicFilter struct {
	Tag                string
	DepartmentCode     string
	ExcludingCommittee string
	Page               int
	PageSize           int
}
