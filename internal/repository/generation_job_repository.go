package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/edustack/timetable-api/internal/models"
)

// GenerationJobRepository persists generation job records and enforces the
// single-active-job-per-scope lease at the database level.
type GenerationJobRepository struct {
	db *sqlx.DB
}

func NewGenerationJobRepository(db *sqlx.DB) *GenerationJobRepository {
	return &GenerationJobRepository{db: db}
}

// ErrActiveJobExists signals the per-scope lease is already held.
var ErrActiveJobExists = errors.New("an active generation job already exists for this scope")

// CreateLeased inserts the job and acquires the scope lease in the same
// statement. The schema carries a partial unique index
//
//	CREATE UNIQUE INDEX generation_jobs_active_scope_idx
//	ON generation_jobs (school_id, year_id, term_id)
//	WHERE state IN ('PENDING', 'RUNNING')
//
// so a second insert while a non-terminal job holds the scope fails with
// a unique violation, which is mapped to ErrActiveJobExists. Two
// concurrent submissions cannot both pass.
func (r *GenerationJobRepository) CreateLeased(ctx context.Context, job *models.GenerationJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.State = models.JobStatePending
	job.CreatedAt = time.Now().UTC()

	const insert = `
INSERT INTO generation_jobs (id, school_id, year_id, term_id, parameters, state, progress, created_at)
VALUES (:id, :school_id, :year_id, :term_id, :parameters, :state, :progress, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, insert, job); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrActiveJobExists
		}
		return fmt.Errorf("insert generation job: %w", err)
	}
	return nil
}

// FindByID loads one job.
func (r *GenerationJobRepository) FindByID(ctx context.Context, id string) (*models.GenerationJob, error) {
	const query = `SELECT id, school_id, year_id, term_id, parameters, state, progress, result_version_id, error, created_at, completed_at
FROM generation_jobs WHERE id = $1`
	var job models.GenerationJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// TransitionState moves the job to next only when the current state permits
// it. Returns sql.ErrNoRows when the guard forbids the transition, so callers
// distinguish a missing job from an illegal move by reloading.
func (r *GenerationJobRepository) TransitionState(ctx context.Context, id string, from []models.JobState, next models.JobState) error {
	query, args, err := sqlx.In(`UPDATE generation_jobs SET state = ? WHERE id = ? AND state IN (?)`, next, id, from)
	if err != nil {
		return fmt.Errorf("build transition query: %w", err)
	}
	query = r.db.Rebind(query)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition job state: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("job rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateProgress records the solver's coarse progress percentage.
func (r *GenerationJobRepository) UpdateProgress(ctx context.Context, id string, progress int) error {
	const query = `UPDATE generation_jobs SET progress = $2 WHERE id = $1 AND state = 'RUNNING'`
	_, err := r.db.ExecContext(ctx, query, id, progress)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

// Complete marks the job COMPLETED and links the produced version.
func (r *GenerationJobRepository) Complete(ctx context.Context, id, versionID string) error {
	const query = `UPDATE generation_jobs SET state = 'COMPLETED', progress = 100, result_version_id = $2, completed_at = $3
WHERE id = $1 AND state = 'RUNNING'`
	result, err := r.db.ExecContext(ctx, query, id, versionID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("job rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Fail marks the job FAILED with a diagnostic message.
func (r *GenerationJobRepository) Fail(ctx context.Context, id, message string) error {
	const query = `UPDATE generation_jobs SET state = 'FAILED', error = $2, completed_at = $3
WHERE id = $1 AND state IN ('PENDING', 'RUNNING')`
	_, err := r.db.ExecContext(ctx, query, id, message, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// Cancel marks a non-terminal job CANCELLED. Terminal jobs are untouched.
func (r *GenerationJobRepository) Cancel(ctx context.Context, id string) error {
	const query = `UPDATE generation_jobs SET state = 'CANCELLED', completed_at = $2
WHERE id = $1 AND state IN ('PENDING', 'RUNNING')`
	result, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("job rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListByScope returns jobs for a scope newest first.
func (r *GenerationJobRepository) ListByScope(ctx context.Context, scope models.Scope, limit int) ([]models.GenerationJob, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT id, school_id, year_id, term_id, parameters, state, progress, result_version_id, error, created_at, completed_at
FROM generation_jobs
WHERE school_id = $1 AND year_id = $2 AND term_id = $3
ORDER BY created_at DESC, id LIMIT $4`
	var jobs []models.GenerationJob
	if err := r.db.SelectContext(ctx, &jobs, query, scope.SchoolID, scope.YearID, scope.TermID, limit); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}
