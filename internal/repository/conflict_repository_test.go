package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edustack/timetable-api/internal/models"
)

func TestConflictRepositorySyncScanInsertsAndCloses(t *testing.T) {
	db, mock, cleanup := newJobRepoMock(t)
	defer cleanup()
	repo := NewConflictRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT identity_key FROM conflicts")).
		WithArgs("ver-1").
		WillReturnRows(sqlmock.NewRows([]string{"identity_key"}).AddRow("stale-key"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO conflicts")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE conflicts SET is_resolved = true, resolution_method = 'auto'")).
		WithArgs("ver-1", "stale-key", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	found := []models.Conflict{{
		IdentityKey:      models.ConflictIdentity("ver-1", models.ConflictTypeTeacherDoubleBooking, []string{"e-1", "e-2"}),
		Type:             models.ConflictTypeTeacherDoubleBooking,
		Severity:         models.SeverityCritical,
		Detail:           "teacher t-1 booked twice at day 1 period 2",
		AffectedEntryIDs: pq.StringArray{"e-1", "e-2"},
	}}
	err := repo.SyncScan(context.Background(), "ver-1", found)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConflictRepositorySyncScanKeepsKnownOpenRow(t *testing.T) {
	db, mock, cleanup := newJobRepoMock(t)
	defer cleanup()
	repo := NewConflictRepository(db)

	key := models.ConflictIdentity("ver-1", models.ConflictTypeRoomConflict, []string{"e-3", "e-4"})

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT identity_key FROM conflicts")).
		WithArgs("ver-1").
		WillReturnRows(sqlmock.NewRows([]string{"identity_key"}).AddRow(key))
	mock.ExpectCommit()

	found := []models.Conflict{{
		IdentityKey: key,
		Type:        models.ConflictTypeRoomConflict,
		Severity:    models.SeverityCritical,
	}}
	err := repo.SyncScan(context.Background(), "ver-1", found)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConflictRepositoryMarkResolvedAlreadyResolved(t *testing.T) {
	db, mock, cleanup := newJobRepoMock(t)
	defer cleanup()
	repo := NewConflictRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE conflicts SET is_resolved = true")).
		WithArgs("conf-1", string(models.ResolutionSwap), "admin-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 0))

	err := repo.MarkResolved(context.Background(), "conf-1", models.ResolutionSwap, "admin-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConflictRepositoryCountUnresolvedCritical(t *testing.T) {
	db, mock, cleanup := newJobRepoMock(t)
	defer cleanup()
	repo := NewConflictRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM conflicts")).
		WithArgs("ver-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountUnresolvedCritical(context.Background(), "ver-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
