package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edustack/timetable-api/internal/models"
)

func TestScheduleVersionRepositoryCreateVersioned(t *testing.T) {
	db, mock, cleanup := newJobRepoMock(t)
	defer cleanup()
	repo := NewScheduleVersionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("school-1/year-1/term-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT coalesce(max(version), 0) + 1 FROM schedule_versions")).
		WithArgs("school-1", "year-1", "term-1").
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedule_versions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedule_entries")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	version := &models.ScheduleVersion{Scope: testScope(), OptimizationScore: 87.5}
	entries := []models.ScheduleEntry{
		{TeacherID: "t-1", SubjectID: "sub-1", ClassID: "c-1", RoomID: "r-1", Day: 1, Period: 1},
	}
	err := repo.CreateVersioned(context.Background(), version, entries)
	require.NoError(t, err)
	assert.Equal(t, 3, version.Version)
	assert.Equal(t, models.VersionStatusDraft, version.Status)
	assert.Equal(t, version.ID, entries[0].VersionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleVersionRepositoryPublishSupersedes(t *testing.T) {
	db, mock, cleanup := newJobRepoMock(t)
	defer cleanup()
	repo := NewScheduleVersionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT school_id, year_id, term_id FROM schedule_versions")).
		WithArgs("ver-2").
		WillReturnRows(sqlmock.NewRows([]string{"school_id", "year_id", "term_id"}).
			AddRow("school-1", "year-1", "term-1"))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE schedule_versions SET status = 'ARCHIVED'")).
		WithArgs("school-1", "year-1", "term-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("ver-1"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedule_versions SET status = 'PUBLISHED'")).
		WithArgs("ver-2", sqlmock.AnyArg(), sqlmock.AnyArg(), "ver-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	superseded, err := repo.Publish(context.Background(), "ver-2", nil)
	require.NoError(t, err)
	assert.Equal(t, "ver-1", superseded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleVersionRepositoryEntriesOrdering(t *testing.T) {
	db, mock, cleanup := newJobRepoMock(t)
	defer cleanup()
	repo := NewScheduleVersionRepository(db)

	rows := sqlmock.NewRows([]string{"id", "version_id", "teacher_id", "subject_id", "class_id", "room_id", "day", "period", "cancelled"}).
		AddRow("e-1", "ver-1", "t-1", "sub-1", "c-1", "r-1", 1, 1, false).
		AddRow("e-2", "ver-1", "t-2", "sub-2", "c-1", "r-2", 1, 2, false)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY day, period, class_id, subject_id, id")).
		WithArgs("ver-1").
		WillReturnRows(rows)

	entries, err := repo.Entries(context.Background(), "ver-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "e-1", entries[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleVersionRepositoryUpdateStatusGuard(t *testing.T) {
	db, mock, cleanup := newJobRepoMock(t)
	defer cleanup()
	repo := NewScheduleVersionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedule_versions")).
		WithArgs("ver-1", string(models.VersionStatusPublished), string(models.VersionStatusArchived), sqlmock.AnyArg(), "term ended").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.UpdateStatus(context.Background(), "ver-1", models.VersionStatusPublished, models.VersionStatusArchived, "term ended")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleVersionRepositoryReplaceEntries(t *testing.T) {
	db, mock, cleanup := newJobRepoMock(t)
	defer cleanup()
	repo := NewScheduleVersionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM schedule_entries WHERE version_id = $1")).
		WithArgs("ver-1").
		WillReturnResult(sqlmock.NewResult(1, 4))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedule_entries")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedule_versions SET updated_at")).
		WithArgs("ver-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	entries := []models.ScheduleEntry{
		{ID: "e-1", TeacherID: "t-1", SubjectID: "sub-1", ClassID: "c-1", RoomID: "r-1", Day: 2, Period: 3},
	}
	err := repo.ReplaceEntries(context.Background(), "ver-1", entries)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

