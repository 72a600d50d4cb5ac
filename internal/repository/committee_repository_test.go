package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
)

var committeeRowColumns = []string{"code", "name", "defense_date", "start_time", "end_time", "room", "session_capacity", "tags", "created_at", "updated_at"}

func TestCommitteeRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCommitteeRepository(db)

	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	date := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + committeeColumns + " FROM committees WHERE defense_date >= $1 AND $2 = ANY(tags) ORDER BY defense_date, code LIMIT 20 OFFSET 0")).
		WithArgs("2025-06-01", "AI").
		WillReturnRows(sqlmock.NewRows(committeeRowColumns).
			AddRow("C1", "AI panel", date, "08:00", "12:00", "B201", 5, "{AI}", time.Now(), time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM committees WHERE defense_date >= $1 AND $2 = ANY(tags)")).
		WithArgs("2025-06-01", "AI").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := repo.List(context.Background(), models.CommitteeFilter{FromDate: &from, Tag: "AI"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "2025-06-10", items[0].DateKey())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitteeRepositoryCreatePassesDateOnly(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCommitteeRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO committees")).
		WithArgs("C1", "AI panel", "2025-06-10", "08:00", "", "B201", 5, "{}", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	c := &models.Committee{Code: "C1", Name: "AI panel", DefenseDate: time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), StartTime: "08:00", Room: "B201", SessionCapacity: 5}
	require.NoError(t, repo.Create(context.Background(), nil, c))
	assert.False(t, c.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitteeRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCommitteeRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM committees WHERE code = $1")).
		WithArgs("C9").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), nil, "C9"), sql.ErrNoRows)
}

func TestCommitteeRepositoryLockByCode(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCommitteeRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM committees WHERE code = $1 FOR UPDATE")).
		WithArgs("C1").
		WillReturnRows(sqlmock.NewRows(committeeRowColumns).
			AddRow("C1", "AI panel", time.Now(), "", "", "", 1, "{}", time.Now(), time.Now()))
	mock.ExpectRollback()

	tx, err := db.Beginx()
	require.NoError(t, err)
	c, err := repo.LockByCode(context.Background(), tx, "C1")
	require.NoError(t, err)
	assert.Equal(t, 1, c.SessionCapacity)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}
