package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
)

// The defense count is derived from memberships in committees sitting today or later.
const lecturerSelect = `SELECT l.code, l.full_name, l.department_code, l.academic_rank, l.tags, l.defense_quota,
	(SELECT COUNT(*) FROM committee_members cm JOIN committees c ON c.code = cm.committee_code
		WHERE cm.lecturer_code = l.code AND c.defense_date >= CURRENT_DATE) AS current_defense_count
FROM lecturers l`

// LecturerRepository reads lecturer profiles.
type LecturerRepository struct {
	db *sqlx.DB
}

// NewLecturerRepository constructs a LecturerRepository.
func NewLecturerRepository(db *sqlx.DB) *LecturerRepository {
	return &LecturerRepository{db: db}
}

func (r *LecturerRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByCode fetches a lecturer. It returns sql.ErrNoRows when absent.
func (r *LecturerRepository) FindByCode(ctx context.Context, code string) (*models.Lecturer, error) {
	var lecturer models.Lecturer
	if err := r.db.GetContext(ctx, &lecturer, lecturerSelect+" WHERE l.code = $1", code); err != nil {
		return nil, err
	}
	return &lecturer, nil
}

// ListByCodes returns the listed lecturers ordered by code. Unknown codes are skipped.
func (r *LecturerRepository) ListByCodes(ctx context.Context, exec sqlx.ExtContext, codes []string) ([]models.Lecturer, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	var lecturers []models.Lecturer
	if err := sqlx.SelectContext(ctx, r.exec(exec), &lecturers, lecturerSelect+" WHERE l.code = ANY($1) ORDER BY l.code", pq.Array(codes)); err != nil {
		return nil, fmt.Errorf("list lecturers by code: %w", err)
	}
	return lecturers, nil
}

// ListByTag returns lecturers carrying tag, or all lecturers when tag is empty,
// ordered by code.
func (r *LecturerRepository) ListByTag(ctx context.Context, tag string) ([]models.Lecturer, error) {
	var lecturers []models.Lecturer
	var err error
	if tag == "" {
		err = r.db.SelectContext(ctx, &lecturers, lecturerSelect+" ORDER BY l.code")
	} else {
		err = r.db.SelectContext(ctx, &lecturers, lecturerSelect+" WHERE $1 = ANY(l.tags) ORDER BY l.code", tag)
	}
	if err != nil {
		return nil, fmt.Errorf("list lecturers: %w", err)
	}
	return lecturers, nil
}

// LockByCodes row-locks the listed lecturers in code order until the
// transaction ends.
func (r *LecturerRepository) LockByCodes(ctx context.Context, exec sqlx.ExtContext, codes []string) error {
	if len(codes) == 0 {
		return nil
	}
	var locked []string
	query := "SELECT code FROM lecturers WHERE code = ANY($1) ORDER BY code FOR UPDATE"
	if err := sqlx.SelectContext(ctx, r.exec(exec), &locked, query, pq.Array(codes)); err != nil {
		return fmt.Errorf("lock lecturers: %w", err)
	}
	return nil
}
