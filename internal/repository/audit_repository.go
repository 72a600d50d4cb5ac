package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
)

// AuditRepository appends audit trail entries.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs an AuditRepository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert stores entry, assigning an ID and timestamp when missing.
func (r *AuditRepository) Insert(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if len(entry.Payload) == 0 {
		entry.Payload = []byte("{}")
	}
	const query = `INSERT INTO audit_logs (id, action, actor, entity_type, entity_code, payload, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(ctx, query, entry.ID, entry.Action, entry.Actor, entry.EntityType, entry.EntityCode, []byte(entry.Payload), entry.CreatedAt); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// ListByEntity returns the newest entries for an entity first.
func (r *AuditRepository) ListByEntity(ctx context.Context, entityType, entityCode string, limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const query = `SELECT id, action, actor, entity_type, entity_code, payload, created_at FROM audit_logs
WHERE entity_type = $1 AND entity_code = $2 ORDER BY created_at DESC LIMIT $3`
	var entries []models.AuditLog
	if err := sqlx.SelectContext(ctx, r.db, &entries, query, entityType, entityCode, limit); err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return entries, nil
}
