package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edustack/timetable-api/internal/models"
)

// HintRepository stores generation hints: slot preferences derived from
// deferred optimization suggestions that bias the next generation run.
type HintRepository struct {
	db *sqlx.DB
}

func NewHintRepository(db *sqlx.DB) *HintRepository {
	return &HintRepository{db: db}
}

// Store upserts one hint per (scope, class, subject). The latest preference
// wins.
func (r *HintRepository) Store(ctx context.Context, hint *models.GenerationHint) error {
	if hint.ID == "" {
		hint.ID = uuid.NewString()
	}
	hint.CreatedAt = time.Now().UTC()

	const query = `
INSERT INTO generation_hints (id, school_id, year_id, term_id, class_id, subject_id, preferred_day, preferred_period, created_at)
VALUES (:id, :school_id, :year_id, :term_id, :class_id, :subject_id, :preferred_day, :preferred_period, :created_at)
ON CONFLICT (school_id, year_id, term_id, class_id, subject_id)
DO UPDATE SET preferred_day = excluded.preferred_day, preferred_period = excluded.preferred_period, created_at = excluded.created_at`
	if _, err := r.db.NamedExecContext(ctx, query, hint); err != nil {
		return fmt.Errorf("store hint: %w", err)
	}
	return nil
}

// ListByScope returns all stored hints for a scope in stable order.
func (r *HintRepository) ListByScope(ctx context.Context, scope models.Scope) ([]models.GenerationHint, error) {
	const query = `SELECT id, school_id, year_id, term_id, class_id, subject_id, preferred_day, preferred_period, created_at
FROM generation_hints
WHERE school_id = $1 AND year_id = $2 AND term_id = $3
ORDER BY class_id, subject_id`
	var hints []models.GenerationHint
	if err := r.db.SelectContext(ctx, &hints, query, scope.SchoolID, scope.YearID, scope.TermID); err != nil {
		return nil, fmt.Errorf("list hints: %w", err)
	}
	return hints, nil
}

// ClearScope deletes consumed hints after a successful generation.
func (r *HintRepository) ClearScope(ctx context.Context, scope models.Scope) error {
	const query = `DELETE FROM generation_hints WHERE school_id = $1 AND year_id = $2 AND term_id = $3`
	if _, err := r.db.ExecContext(ctx, query, scope.SchoolID, scope.YearID, scope.TermID); err != nil {
		return fmt.Errorf("clear hints: %w", err)
	}
	return nil
}
