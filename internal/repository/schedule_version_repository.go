package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edustack/timetable-api/internal/models"
)

// ScheduleVersionRepository persists schedule versions together with their
// entry rows. A version plus its entries is always written in one
// transaction.
type ScheduleVersionRepository struct {
	db *sqlx.DB
}

func NewScheduleVersionRepository(db *sqlx.DB) *ScheduleVersionRepository {
	return &ScheduleVersionRepository{db: db}
}

// CreateVersioned inserts a DRAFT version with the next version number for
// its scope and bulk-inserts the entries.
func (r *ScheduleVersionRepository) CreateVersioned(ctx context.Context, version *models.ScheduleVersion, entries []models.ScheduleEntry) error {
	if version.ID == "" {
		version.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	version.Status = models.VersionStatusDraft
	version.CreatedAt = now
	version.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin version tx: %w", err)
	}
	defer tx.Rollback()

	// Serialize version numbering per scope. A row lock cannot cover the
	// max() over zero rows, so the tx-scoped advisory lock guards the gap.
	const lockQuery = `SELECT pg_advisory_xact_lock(hashtext($1))`
	scopeKey := version.SchoolID + "/" + version.YearID + "/" + version.TermID
	if _, err := tx.ExecContext(ctx, lockQuery, scopeKey); err != nil {
		return fmt.Errorf("lock version scope: %w", err)
	}

	const nextQuery = `SELECT coalesce(max(version), 0) + 1 FROM schedule_versions
WHERE school_id = $1 AND year_id = $2 AND term_id = $3`
	if err := tx.GetContext(ctx, &version.Version, nextQuery, version.SchoolID, version.YearID, version.TermID); err != nil {
		return fmt.Errorf("next version number: %w", err)
	}

	const insertVersion = `
INSERT INTO schedule_versions (id, school_id, year_id, term_id, version, status, optimization_score, parent_job_id, unsatisfied_hard, replaces_version_id, created_at, updated_at)
VALUES (:id, :school_id, :year_id, :term_id, :version, :status, :optimization_score, :parent_job_id, :unsatisfied_hard, :replaces_version_id, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertVersion, version); err != nil {
		return fmt.Errorf("insert version: %w", err)
	}

	if err := insertEntries(ctx, tx, version.ID, entries); err != nil {
		return err
	}
	return tx.Commit()
}

func insertEntries(ctx context.Context, exec sqlx.ExtContext, versionID string, entries []models.ScheduleEntry) error {
	const insert = `
INSERT INTO schedule_entries (id, version_id, teacher_id, subject_id, class_id, room_id, day, period, cancelled)
VALUES (:id, :version_id, :teacher_id, :subject_id, :class_id, :room_id, :day, :period, :cancelled)`
	for i := range entries {
		entries[i].VersionID = versionID
		if entries[i].ID == "" {
			entries[i].ID = uuid.NewString()
		}
		if _, err := sqlx.NamedExecContext(ctx, exec, insert, entries[i]); err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
	}
	return nil
}

// FindByID loads one version without its entries.
func (r *ScheduleVersionRepository) FindByID(ctx context.Context, id string) (*models.ScheduleVersion, error) {
	const query = `SELECT id, school_id, year_id, term_id, version, status, optimization_score, parent_job_id, unsatisfied_hard, published_at, effective_date, archived_at, archive_reason, replaces_version_id, created_at, updated_at
FROM schedule_versions WHERE id = $1`
	var version models.ScheduleVersion
	if err := r.db.GetContext(ctx, &version, query, id); err != nil {
		return nil, err
	}
	return &version, nil
}

// FindPublished returns the published version for a scope, if any.
func (r *ScheduleVersionRepository) FindPublished(ctx context.Context, scope models.Scope) (*models.ScheduleVersion, error) {
	const query = `SELECT id, school_id, year_id, term_id, version, status, optimization_score, parent_job_id, unsatisfied_hard, published_at, effective_date, archived_at, archive_reason, replaces_version_id, created_at, updated_at
FROM schedule_versions
WHERE school_id = $1 AND year_id = $2 AND term_id = $3 AND status = 'PUBLISHED'`
	var version models.ScheduleVersion
	if err := r.db.GetContext(ctx, &version, query, scope.SchoolID, scope.YearID, scope.TermID); err != nil {
		return nil, err
	}
	return &version, nil
}

// ListByScope returns version metadata for a scope newest first.
func (r *ScheduleVersionRepository) ListByScope(ctx context.Context, scope models.Scope) ([]models.ScheduleVersion, error) {
	const query = `SELECT id, school_id, year_id, term_id, version, status, optimization_score, parent_job_id, unsatisfied_hard, published_at, effective_date, archived_at, archive_reason, replaces_version_id, created_at, updated_at
FROM schedule_versions
WHERE school_id = $1 AND year_id = $2 AND term_id = $3
ORDER BY version DESC`
	var versions []models.ScheduleVersion
	if err := r.db.SelectContext(ctx, &versions, query, scope.SchoolID, scope.YearID, scope.TermID); err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return versions, nil
}

// Entries returns all entries of a version in canonical order.
func (r *ScheduleVersionRepository) Entries(ctx context.Context, versionID string) ([]models.ScheduleEntry, error) {
	const query = `SELECT id, version_id, teacher_id, subject_id, class_id, room_id, day, period, cancelled
FROM schedule_entries WHERE version_id = $1
ORDER BY day, period, class_id, subject_id, id`
	var entries []models.ScheduleEntry
	err := withRetry(ctx, func() error {
		entries = entries[:0]
		if err := r.db.SelectContext(ctx, &entries, query, versionID); err != nil {
			return fmt.Errorf("load entries: %w", err)
		}
		return nil
	})
	return entries, err
}

// Publish flips a DRAFT version to PUBLISHED and archives a previously
// published version for the same scope in the same transaction, so a scope
// never carries two published versions.
func (r *ScheduleVersionRepository) Publish(ctx context.Context, id string, effectiveDate *time.Time) (supersededID string, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin publish tx: %w", err)
	}
	defer tx.Rollback()

	const scopeQuery = `SELECT school_id, year_id, term_id FROM schedule_versions WHERE id = $1 AND status = 'DRAFT' FOR UPDATE`
	var scope models.Scope
	if err := tx.GetContext(ctx, &scope, scopeQuery, id); err != nil {
		return "", err
	}

	now := time.Now().UTC()

	const supersede = `UPDATE schedule_versions SET status = 'ARCHIVED', archived_at = $4, archive_reason = 'superseded', updated_at = $4
WHERE school_id = $1 AND year_id = $2 AND term_id = $3 AND status = 'PUBLISHED'
RETURNING id`
	var superseded sql.NullString
	err = tx.GetContext(ctx, &superseded, supersede, scope.SchoolID, scope.YearID, scope.TermID, now)
	if err != nil && err != sql.ErrNoRows {
		return "", fmt.Errorf("supersede published version: %w", err)
	}

	const publish = `UPDATE schedule_versions SET status = 'PUBLISHED', published_at = $2, effective_date = $3, replaces_version_id = coalesce(nullif($4, ''), replaces_version_id), updated_at = $2
WHERE id = $1`
	if _, err := tx.ExecContext(ctx, publish, id, now, effectiveDate, superseded.String); err != nil {
		return "", fmt.Errorf("publish version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return superseded.String, nil
}

// UpdateStatus moves a version between lifecycle states with a guard on the
// current state.
func (r *ScheduleVersionRepository) UpdateStatus(ctx context.Context, id string, from, next models.VersionStatus, reason string) error {
	const query = `UPDATE schedule_versions
SET status = $3,
    archived_at = CASE WHEN $3 = 'ARCHIVED' THEN $4 ELSE archived_at END,
    archive_reason = CASE WHEN $3 = 'ARCHIVED' THEN $5 ELSE archive_reason END,
    updated_at = $4
WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, id, from, next, time.Now().UTC(), reason)
	if err != nil {
		return fmt.Errorf("update version status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("version rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateScore stores a recomputed optimization score.
func (r *ScheduleVersionRepository) UpdateScore(ctx context.Context, id string, score float64) error {
	const query = `UPDATE schedule_versions SET optimization_score = $2, updated_at = $3 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, score, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update version score: %w", err)
	}
	return nil
}

// ReplaceEntries swaps a version's entry set atomically. Used by manual
// adjustment and optimization apply, which rewrite parts of the grid.
func (r *ScheduleVersionRepository) ReplaceEntries(ctx context.Context, versionID string, entries []models.ScheduleEntry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin entries tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_entries WHERE version_id = $1`, versionID); err != nil {
		return fmt.Errorf("clear entries: %w", err)
	}
	if err := insertEntries(ctx, tx, versionID, entries); err != nil {
		return err
	}
	const touch = `UPDATE schedule_versions SET updated_at = $2 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, touch, versionID, time.Now().UTC()); err != nil {
		return fmt.Errorf("touch version: %w", err)
	}
	return tx.Commit()
}

// UpdateEntry mutates a single entry row in place.
func (r *ScheduleVersionRepository) UpdateEntry(ctx context.Context, entry *models.ScheduleEntry) error {
	const query = `UPDATE schedule_entries SET teacher_id = :teacher_id, room_id = :room_id, day = :day, period = :period, cancelled = :cancelled
WHERE id = :id AND version_id = :version_id`
	result, err := r.db.NamedExecContext(ctx, query, entry)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("entry rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
