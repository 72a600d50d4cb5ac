package models

import (
	"encoding/json"
	"time"
)

// Audit actions recorded for assignment engine mutations.
const (
	AuditActionAssignmentCreated     = "DEFENSE_ASSIGNMENT_CREATED"
	AuditActionAssignmentChanged     = "DEFENSE_ASSIGNMENT_CHANGED"
	AuditActionAssignmentRemoved     = "DEFENSE_ASSIGNMENT_REMOVED"
	AuditActionAutoAssign            = "DEFENSE_AUTO_ASSIGN"
	AuditActionCommitteeCreated      = "COMMITTEE_CREATED"
	AuditActionCommitteeUpdated      = "COMMITTEE_UPDATED"
	AuditActionCommitteeMembersSaved = "COMMITTEE_MEMBERS_SAVED"
	AuditActionCommitteeDeleted      = "COMMITTEE_DELETED"
)

// Audit entity types.
const (
	AuditEntityAssignment = "defense_assignment"
	AuditEntityCommittee  = "committee"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string          `db:"id" json:"id"`
	Action     string          `db:"action" json:"action"`
	Actor      string          `db:"actor" json:"actor"`
	EntityType string          `db:"entity_type" json:"entity_type"`
	EntityCode string          `db:"entity_code" json:"entity_code"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}
