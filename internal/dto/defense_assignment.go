package dto

import (
	"time"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
	appErrors "github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/errors"
)

// PlacementRequest proposes one topic to committee placement.
type PlacementRequest struct {
	TopicCode      string     `json:"topic_code" validate:"required,max=64"`
	CommitteeCode  string     `json:"committee_code" validate:"required,max=64"`
	ScheduledAt    *time.Time `json:"scheduled_at,omitempty"`
	TagOverride    bool       `json:"tag_override"`
	OverrideReason string     `json:"override_reason,omitempty" validate:"required_if=TagOverride true,max=500"`
}

// AssignTopicsRequest is the payload of the batch manual assign endpoint.
type AssignTopicsRequest struct {
	Placements []PlacementRequest `json:"placements" validate:"required,min=1,max=200,dive"`
}

// ChangeAssignmentRequest moves a topic to another committee or slot.
type ChangeAssignmentRequest struct {
	CommitteeCode  string     `json:"committee_code" validate:"required,max=64"`
	ScheduledAt    *time.Time `json:"scheduled_at,omitempty"`
	TagOverride    bool       `json:"tag_override"`
	OverrideReason string     `json:"override_reason,omitempty" validate:"required_if=TagOverride true,max=500"`
}

// AutoAssignRequest parameterises a bulk auto-assign run.
type AutoAssignRequest struct {
	TagPriority        []string `json:"tag_priority" validate:"omitempty,max=50,dive,required"`
	PerSessionCap      int      `json:"per_session_cap" validate:"gte=0"`
	OverrideTopicCodes []string `json:"override_topic_codes" validate:"omitempty,dive,required"`
	OverrideReason     string   `json:"override_reason" validate:"required_with=OverrideTopicCodes,max=500"`
	DryRun             bool     `json:"dry_run"`
}

// PlacementOutcome is one entry of a batch assign response.
type PlacementOutcome struct {
	TopicCode     string                    `json:"topic_code"`
	CommitteeCode string                    `json:"committee_code"`
	Assignment    *models.DefenseAssignment `json:"assignment,omitempty"`
	Error         *appErrors.Error          `json:"error,omitempty"`
}

// AssignTopicsResponse summarises a batch assign call.
type AssignTopicsResponse struct {
	Results  []PlacementOutcome `json:"results"`
	Assigned int                `json:"assigned"`
	Failed   int                `json:"failed"`
}

// ToPlacement converts the request for the scheduler.
func (r PlacementRequest) ToPlacement(actor string) models.Placement {
	p := models.Placement{
		TopicCode:     r.TopicCode,
		CommitteeCode: r.CommitteeCode,
		Override:      models.TagOverride{Enabled: r.TagOverride, Reason: r.OverrideReason},
		Actor:         actor,
	}
	if r.ScheduledAt != nil {
		p.ScheduledAt = *r.ScheduledAt
	}
	return p
}
