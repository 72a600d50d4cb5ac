package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
)

const topicColumns = "code, title, student_code, supervisor_code, department_code, specialty_code, tags, status, created_at"

// TopicRepository manages persistence for thesis topics.
type TopicRepository struct {
	db *sqlx.DB
}

// NewTopicRepository constructs a TopicRepository.
func NewTopicRepository(db *sqlx.DB) *TopicRepository {
	return &TopicRepository{db: db}
}

func (r *TopicRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByCode fetches a topic. It returns sql.ErrNoRows when absent.
func (r *TopicRepository) FindByCode(ctx context.Context, exec sqlx.ExtContext, code string) (*models.Topic, error) {
	query := "SELECT " + topicColumns + " FROM topics WHERE code = $1"
	var topic models.Topic
	if err := sqlx.GetContext(ctx, r.exec(exec), &topic, query, code); err != nil {
		return nil, err
	}
	return &topic, nil
}

// LockByCode fetches a topic holding a row lock until the transaction ends.
func (r *TopicRepository) LockByCode(ctx context.Context, exec sqlx.ExtContext, code string) (*models.Topic, error) {
	query := "SELECT " + topicColumns + " FROM topics WHERE code = $1 FOR UPDATE"
	var topic models.Topic
	if err := sqlx.GetContext(ctx, exec, &topic, query, code); err != nil {
		return nil, err
	}
	return &topic, nil
}

// FindByStudent returns the student's most recent topic.
func (r *TopicRepository) FindByStudent(ctx context.Context, studentCode string) (*models.Topic, error) {
	query := "SELECT " + topicColumns + " FROM topics WHERE student_code = $1 ORDER BY created_at DESC, code DESC LIMIT 1"
	var topic models.Topic
	if err := r.db.GetContext(ctx, &topic, query, studentCode); err != nil {
		return nil, err
	}
	return &topic, nil
}

// ListAvailable returns defense-eligible topics with no active assignment,
// ordered by code.
func (r *TopicRepository) ListAvailable(ctx context.Context, exec sqlx.ExtContext, filter models.TopicFilter) ([]models.Topic, error) {
	conditions := []string{
		"t.status = $1",
		"NOT EXISTS (SELECT 1 FROM defense_assignments da WHERE da.topic_code = t.code AND da.active)",
	}
	args := []interface{}{string(models.TopicStatusEligibleForDefense)}

	if filter.Tag != "" {
		args = append(args, filter.Tag)
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(t.tags)", len(args)))
	}
	if filter.DepartmentCode != "" {
		args = append(args, filter.DepartmentCode)
		conditions = append(conditions, fmt.Sprintf("t.department_code = $%d", len(args)))
	}
	if filter.ExcludingCommittee != "" {
		args = append(args, filter.ExcludingCommittee)
		conditions = append(conditions, fmt.Sprintf(`COALESCE((SELECT last.committee_code FROM defense_assignments last
	WHERE last.topic_code = t.code ORDER BY last.created_at DESC LIMIT 1), '') <> $%d`, len(args)))
	}

	query := "SELECT t.code, t.title, t.student_code, t.supervisor_code, t.department_code, t.specialty_code, t.tags, t.status, t.created_at FROM topics t WHERE " +
		strings.Join(conditions, " AND ") + " ORDER BY t.code"

	var topics []models.Topic
	if err := sqlx.SelectContext(ctx, r.exec(exec), &topics, query, args...); err != nil {
		return nil, fmt.Errorf("list available topics: %w", err)
	}
	return topics, nil
}

// UpdateStatus sets the status of one topic.
func (r *TopicRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, code string, status models.TopicStatus) error {
	res, err := r.exec(exec).ExecContext(ctx, "UPDATE topics SET status = $1 WHERE code = $2", string(status), code)
	if err != nil {
		return fmt.Errorf("update topic status: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatusBatch sets status on every listed topic.
func (r *TopicRepository) UpdateStatusBatch(ctx context.Context, exec sqlx.ExtContext, codes []string, status models.TopicStatus) error {
	if len(codes) == 0 {
		return nil
	}
	if _, err := r.exec(exec).ExecContext(ctx, "UPDATE topics SET status = $1 WHERE code = ANY($2)", string(status), pq.Array(codes)); err != nil {
		return fmt.Errorf("update topic statuses: %w", err)
	}
	return nil
}
