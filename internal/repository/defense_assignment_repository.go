package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
)

const assignmentColumns = "code, topic_code, committee_code, scheduled_at, active, tag_override, override_reason, created_by, created_at, deactivated_at"

// ErrDuplicateActiveAssignment is returned when the partial unique index on
// active topic assignments rejects an insert.
var ErrDuplicateActiveAssignment = errors.New("topic already has an active defense assignment")

// DefenseAssignmentRepository persists topic to committee bindings.
type DefenseAssignmentRepository struct {
	db *sqlx.DB
}

// NewDefenseAssignmentRepository constructs a DefenseAssignmentRepository.
func NewDefenseAssignmentRepository(db *sqlx.DB) *DefenseAssignmentRepository {
	return &DefenseAssignmentRepository{db: db}
}

func (r *DefenseAssignmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindActiveByTopic returns the topic's active assignment or sql.ErrNoRows.
func (r *DefenseAssignmentRepository) FindActiveByTopic(ctx context.Context, exec sqlx.ExtContext, topicCode string) (*models.DefenseAssignment, error) {
	query := "SELECT " + assignmentColumns + " FROM defense_assignments WHERE topic_code = $1 AND active"
	var assignment models.DefenseAssignment
	if err := sqlx.GetContext(ctx, r.exec(exec), &assignment, query, topicCode); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// ListActiveByCommittees returns active assignments of the listed committees
// ordered by committee, scheduled time and code.
func (r *DefenseAssignmentRepository) ListActiveByCommittees(ctx context.Context, exec sqlx.ExtContext, committeeCodes []string) ([]models.DefenseAssignment, error) {
	if len(committeeCodes) == 0 {
		return nil, nil
	}
	query := "SELECT " + assignmentColumns + " FROM defense_assignments WHERE committee_code = ANY($1) AND active ORDER BY committee_code, scheduled_at, code"
	var assignments []models.DefenseAssignment
	if err := sqlx.SelectContext(ctx, r.exec(exec), &assignments, query, pq.Array(committeeCodes)); err != nil {
		return nil, fmt.Errorf("list active assignments: %w", err)
	}
	return assignments, nil
}

// ListDetailsByCommittee returns a committee's active assignments joined with topic data.
func (r *DefenseAssignmentRepository) ListDetailsByCommittee(ctx context.Context, committeeCode string) ([]models.AssignmentDetail, error) {
	const query = `SELECT da.code, da.topic_code, da.committee_code, da.scheduled_at, da.active, da.tag_override, da.override_reason,
	da.created_by, da.created_at, da.deactivated_at, t.title AS topic_title, t.student_code
FROM defense_assignments da JOIN topics t ON t.code = da.topic_code
WHERE da.committee_code = $1 AND da.active ORDER BY da.scheduled_at, da.code`
	var details []models.AssignmentDetail
	if err := r.db.SelectContext(ctx, &details, query, committeeCode); err != nil {
		return nil, fmt.Errorf("list assignment details: %w", err)
	}
	return details, nil
}

// CountActiveByCommittee counts active assignments hosted by a committee.
func (r *DefenseAssignmentRepository) CountActiveByCommittee(ctx context.Context, exec sqlx.ExtContext, committeeCode string) (int, error) {
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, "SELECT COUNT(*) FROM defense_assignments WHERE committee_code = $1 AND active", committeeCode); err != nil {
		return 0, fmt.Errorf("count active assignments: %w", err)
	}
	return count, nil
}

// Insert stores a new assignment.
func (r *DefenseAssignmentRepository) Insert(ctx context.Context, exec sqlx.ExtContext, assignment *models.DefenseAssignment) error {
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO defense_assignments (code, topic_code, committee_code, scheduled_at, active, tag_override, override_reason, created_by, created_at)
VALUES (:code, :topic_code, :committee_code, :scheduled_at, :active, :tag_override, :override_reason, :created_by, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, assignment); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateActiveAssignment
		}
		return fmt.Errorf("insert defense assignment: %w", err)
	}
	return nil
}

// Deactivate soft-invalidates assignments by code and returns how many rows changed.
func (r *DefenseAssignmentRepository) Deactivate(ctx context.Context, exec sqlx.ExtContext, codes []string, at time.Time) (int64, error) {
	if len(codes) == 0 {
		return 0, nil
	}
	res, err := r.exec(exec).ExecContext(ctx,
		"UPDATE defense_assignments SET active = FALSE, deactivated_at = $1 WHERE code = ANY($2) AND active",
		at, pq.Array(codes))
	if err != nil {
		return 0, fmt.Errorf("deactivate assignments: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
