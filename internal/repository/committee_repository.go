package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
)

const committeeColumns = "code, name, defense_date, start_time, end_time, room, session_capacity, tags, created_at, updated_at"

// ErrDuplicateCommittee is returned when a committee code is already taken.
var ErrDuplicateCommittee = errors.New("committee code already exists")

// CommitteeRepository manages persistence for defense committees.
type CommitteeRepository struct {
	db *sqlx.DB
}

// NewCommitteeRepository constructs a CommitteeRepository.
func NewCommitteeRepository(db *sqlx.DB) *CommitteeRepository {
	return &CommitteeRepository{db: db}
}

func (r *CommitteeRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByCode fetches a committee. It returns sql.ErrNoRows when absent.
func (r *CommitteeRepository) FindByCode(ctx context.Context, exec sqlx.ExtContext, code string) (*models.Committee, error) {
	query := "SELECT " + committeeColumns + " FROM committees WHERE code = $1"
	var committee models.Committee
	if err := sqlx.GetContext(ctx, r.exec(exec), &committee, query, code); err != nil {
		return nil, err
	}
	return &committee, nil
}

// LockByCode fetches a committee holding a row lock until the transaction ends.
func (r *CommitteeRepository) LockByCode(ctx context.Context, exec sqlx.ExtContext, code string) (*models.Committee, error) {
	query := "SELECT " + committeeColumns + " FROM committees WHERE code = $1 FOR UPDATE"
	var committee models.Committee
	if err := sqlx.GetContext(ctx, exec, &committee, query, code); err != nil {
		return nil, err
	}
	return &committee, nil
}

// List returns committees matching filter ordered by date then code, with the total count.
func (r *CommitteeRepository) List(ctx context.Context, filter models.CommitteeFilter) ([]models.Committee, int, error) {
	var conditions []string
	var args []interface{}

	if filter.FromDate != nil {
		args = append(args, filter.FromDate.Format(models.DateLayout))
		conditions = append(conditions, fmt.Sprintf("defense_date >= $%d", len(args)))
	}
	if filter.ToDate != nil {
		args = append(args, filter.ToDate.Format(models.DateLayout))
		conditions = append(conditions, fmt.Sprintf("defense_date <= $%d", len(args)))
	}
	if filter.Tag != "" {
		args = append(args, filter.Tag)
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(tags)", len(args)))
	}

	base := "FROM committees"
	if len(conditions) > 0 {
		base += " WHERE " + strings.Join(conditions, " AND ")
	}

	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY defense_date, code LIMIT %d OFFSET %d", committeeColumns, base, size, offset)
	var committees []models.Committee
	if err := r.db.SelectContext(ctx, &committees, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list committees: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count committees: %w", err)
	}
	return committees, total, nil
}

// ListByDate returns every committee sitting on date.
func (r *CommitteeRepository) ListByDate(ctx context.Context, exec sqlx.ExtContext, date time.Time) ([]models.Committee, error) {
	query := "SELECT " + committeeColumns + " FROM committees WHERE defense_date = $1 ORDER BY code"
	var committees []models.Committee
	if err := sqlx.SelectContext(ctx, r.exec(exec), &committees, query, date.Format(models.DateLayout)); err != nil {
		return nil, fmt.Errorf("list committees by date: %w", err)
	}
	return committees, nil
}

// ListAfter returns committees whose defense date is strictly after day.
func (r *CommitteeRepository) ListAfter(ctx context.Context, exec sqlx.ExtContext, day time.Time) ([]models.Committee, error) {
	query := "SELECT " + committeeColumns + " FROM committees WHERE defense_date > $1 ORDER BY defense_date, code"
	var committees []models.Committee
	if err := sqlx.SelectContext(ctx, r.exec(exec), &committees, query, day.Format(models.DateLayout)); err != nil {
		return nil, fmt.Errorf("list upcoming committees: %w", err)
	}
	return committees, nil
}

// Create inserts a committee.
func (r *CommitteeRepository) Create(ctx context.Context, exec sqlx.ExtContext, committee *models.Committee) error {
	now := time.Now().UTC()
	committee.CreatedAt = now
	committee.UpdatedAt = now
	if committee.Tags == nil {
		committee.Tags = []string{}
	}

	const query = `INSERT INTO committees (code, name, defense_date, start_time, end_time, room, session_capacity, tags, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := r.exec(exec).ExecContext(ctx, query,
		committee.Code, committee.Name, committee.DateKey(), committee.StartTime, committee.EndTime,
		committee.Room, committee.SessionCapacity, committee.Tags, committee.CreatedAt, committee.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCommittee
		}
		return fmt.Errorf("insert committee: %w", err)
	}
	return nil
}

// Update overwrites the mutable committee fields.
func (r *CommitteeRepository) Update(ctx context.Context, exec sqlx.ExtContext, committee *models.Committee) error {
	committee.UpdatedAt = time.Now().UTC()
	if committee.Tags == nil {
		committee.Tags = []string{}
	}

	const query = `UPDATE committees SET name = $2, defense_date = $3, start_time = $4, end_time = $5,
room = $6, session_capacity = $7, tags = $8, updated_at = $9 WHERE code = $1`
	res, err := r.exec(exec).ExecContext(ctx, query,
		committee.Code, committee.Name, committee.DateKey(), committee.StartTime, committee.EndTime,
		committee.Room, committee.SessionCapacity, committee.Tags, committee.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update committee: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a committee row.
func (r *CommitteeRepository) Delete(ctx context.Context, exec sqlx.ExtContext, code string) error {
	res, err := r.exec(exec).ExecContext(ctx, "DELETE FROM committees WHERE code = $1", code)
	if err != nil {
		return fmt.Errorf("delete committee: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
