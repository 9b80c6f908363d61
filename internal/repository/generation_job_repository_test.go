package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edustack/timetable-api/internal/models"
)

func newJobRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func testScope() models.Scope {
	return models.Scope{SchoolID: "school-1", YearID: "year-1", TermID: "term-1"}
}

func TestGenerationJobRepositoryCreateLeased(t *testing.T) {
	db, mock, cleanup := newJobRepoMock(t)
	defer cleanup()
	repo := NewGenerationJobRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO generation_jobs")).
		WithArgs(sqlmock.AnyArg(), "school-1", "year-1", "term-1", sqlmock.AnyArg(), string(models.JobStatePending), 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	job := &models.GenerationJob{Scope: testScope()}
	err := repo.CreateLeased(context.Background(), job)
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.JobStatePending, job.State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerationJobRepositoryCreateLeasedActiveExists(t *testing.T) {
	db, mock, cleanup := newJobRepoMock(t)
	defer cleanup()
	repo := NewGenerationJobRepository(db)

	// The partial unique index over non-terminal scope rows rejects the
	// second lease holder with a unique violation.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO generation_jobs")).
		WithArgs(sqlmock.AnyArg(), "school-1", "year-1", "term-1", sqlmock.AnyArg(), string(models.JobStatePending), 0, sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "generation_jobs_active_scope_idx"})

	err := repo.CreateLeased(context.Background(), &models.GenerationJob{Scope: testScope()})
	assert.ErrorIs(t, err, ErrActiveJobExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerationJobRepositoryComplete(t *testing.T) {
	db, mock, cleanup := newJobRepoMock(t)
	defer cleanup()
	repo := NewGenerationJobRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE generation_jobs SET state = 'COMPLETED'")).
		WithArgs("job-1", "ver-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Complete(context.Background(), "job-1", "ver-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerationJobRepositoryCompleteNotRunning(t *testing.T) {
	db, mock, cleanup := newJobRepoMock(t)
	defer cleanup()
	repo := NewGenerationJobRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE generation_jobs SET state = 'COMPLETED'")).
		WithArgs("job-1", "ver-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 0))

	err := repo.Complete(context.Background(), "job-1", "ver-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerationJobRepositoryCancelTerminalJob(t *testing.T) {
	db, mock, cleanup := newJobRepoMock(t)
	defer cleanup()
	repo := NewGenerationJobRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE generation_jobs SET state = 'CANCELLED'")).
		WithArgs("job-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 0))

	err := repo.Cancel(context.Background(), "job-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
