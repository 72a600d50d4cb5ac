package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
)

// CommitteeMemberRepository persists committee seats.
type CommitteeMemberRepository struct {
	db *sqlx.DB
}

// NewCommitteeMemberRepository constructs a CommitteeMemberRepository.
func NewCommitteeMemberRepository(db *sqlx.DB) *CommitteeMemberRepository {
	return &CommitteeMemberRepository{db: db}
}

func (r *CommitteeMemberRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListByCommittees returns the seats of every listed committee, ordered by
// committee then lecturer.
func (r *CommitteeMemberRepository) ListByCommittees(ctx context.Context, exec sqlx.ExtContext, codes []string) ([]models.CommitteeMember, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	const query = `SELECT committee_code, lecturer_code, role, is_chair FROM committee_members
WHERE committee_code = ANY($1) ORDER BY committee_code, lecturer_code`
	var members []models.CommitteeMember
	if err := sqlx.SelectContext(ctx, r.exec(exec), &members, query, pq.Array(codes)); err != nil {
		return nil, fmt.Errorf("list committee members: %w", err)
	}
	return members, nil
}

// ListDetails returns a committee's seats joined with lecturer profiles, chair first.
func (r *CommitteeMemberRepository) ListDetails(ctx context.Context, committeeCode string) ([]models.CommitteeMemberDetail, error) {
	const query = `SELECT cm.committee_code, cm.lecturer_code, cm.role, cm.is_chair, l.full_name, l.academic_rank, l.tags
FROM committee_members cm JOIN lecturers l ON l.code = cm.lecturer_code
WHERE cm.committee_code = $1 ORDER BY cm.is_chair DESC, cm.lecturer_code`
	var members []models.CommitteeMemberDetail
	if err := r.db.SelectContext(ctx, &members, query, committeeCode); err != nil {
		return nil, fmt.Errorf("list committee member details: %w", err)
	}
	return members, nil
}

// ListCommitteesForLecturer returns the committees a lecturer sits on with their active load.
func (r *CommitteeMemberRepository) ListCommitteesForLecturer(ctx context.Context, lecturerCode string) ([]models.LecturerCommittee, error) {
	const query = `SELECT c.code, c.name, c.defense_date, c.start_time, c.end_time, c.room, c.session_capacity, c.tags, c.created_at, c.updated_at,
	cm.role, cm.is_chair,
	(SELECT COUNT(*) FROM defense_assignments da WHERE da.committee_code = c.code AND da.active) AS active_count
FROM committee_members cm JOIN committees c ON c.code = cm.committee_code
WHERE cm.lecturer_code = $1 ORDER BY c.defense_date, c.code`
	var committees []models.LecturerCommittee
	if err := r.db.SelectContext(ctx, &committees, query, lecturerCode); err != nil {
		return nil, fmt.Errorf("list lecturer committees: %w", err)
	}
	return committees, nil
}

// Replace swaps a committee's whole membership for members.
func (r *CommitteeMemberRepository) Replace(ctx context.Context, exec sqlx.ExtContext, committeeCode string, members []models.CommitteeMember) error {
	if err := r.DeleteByCommittee(ctx, exec, committeeCode); err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}
	const query = `INSERT INTO committee_members (committee_code, lecturer_code, role, is_chair)
VALUES (:committee_code, :lecturer_code, :role, :is_chair)`
	for i := range members {
		members[i].CommitteeCode = committeeCode
		members[i].IsChair = members[i].Role == models.MemberRoleChair
		if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, &members[i]); err != nil {
			return fmt.Errorf("insert committee member: %w", err)
		}
	}
	return nil
}

// DeleteByCommittee removes every seat of a committee.
func (r *CommitteeMemberRepository) DeleteByCommittee(ctx context.Context, exec sqlx.ExtContext, committeeCode string) error {
	if _, err := r.exec(exec).ExecContext(ctx, "DELETE FROM committee_members WHERE committee_code = $1", committeeCode); err != nil {
		return fmt.Errorf("delete committee members: %w", err)
	}
	return nil
}
