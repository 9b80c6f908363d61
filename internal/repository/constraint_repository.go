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

// ConstraintRepository persists typed scheduling rules.
type ConstraintRepository struct {
	db *sqlx.DB
}

// NewConstraintRepository constructs repository.
func NewConstraintRepository(db *sqlx.DB) *ConstraintRepository {
	return &ConstraintRepository{db: db}
}

// Create inserts a constraint.
func (r *ConstraintRepository) Create(ctx context.Context, constraint *models.Constraint) error {
	if constraint.ID == "" {
		constraint.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	constraint.CreatedAt = now
	constraint.UpdatedAt = now
	constraint.Active = true

	const query = `
INSERT INTO constraints (id, scope, target_id, kind, is_hard, weight, parameters, academic_year_id, active, created_at, updated_at)
VALUES (:id, :scope, :target_id, :kind, :is_hard, :weight, :parameters, :academic_year_id, :active, :created_at, :updated_at)`
	return withRetry(ctx, func() error {
		if _, err := r.db.NamedExecContext(ctx, query, constraint); err != nil {
			return fmt.Errorf("insert constraint: %w", err)
		}
		return nil
	})
}

// Update persists a patched constraint.
func (r *ConstraintRepository) Update(ctx context.Context, constraint *models.Constraint) error {
	constraint.UpdatedAt = time.Now().UTC()
	const query = `
UPDATE constraints SET is_hard = :is_hard, weight = :weight, parameters = :parameters, active = :active, updated_at = :updated_at
WHERE id = :id`
	return withRetry(ctx, func() error {
		result, err := r.db.NamedExecContext(ctx, query, constraint)
		if err != nil {
			return fmt.Errorf("update constraint: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("constraint rows affected: %w", err)
		}
		if affected == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// Delete removes a constraint.
func (r *ConstraintRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM constraints WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete constraint: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("constraint rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindByID loads one constraint.
func (r *ConstraintRepository) FindByID(ctx context.Context, id string) (*models.Constraint, error) {
	const query = `SELECT id, scope, target_id, kind, is_hard, weight, parameters, academic_year_id, active, created_at, updated_at
FROM constraints WHERE id = $1`
	var constraint models.Constraint
	if err := r.db.GetContext(ctx, &constraint, query, id); err != nil {
		return nil, err
	}
	return &constraint, nil
}

// ListActive returns active constraints for the academic year, optionally
// narrowed to one scope.
func (r *ConstraintRepository) ListActive(ctx context.Context, academicYearID string, scope models.ConstraintScope) ([]models.Constraint, error) {
	query := `SELECT id, scope, target_id, kind, is_hard, weight, parameters, academic_year_id, active, created_at, updated_at
FROM constraints WHERE academic_year_id = $1 AND active = true`
	args := []interface{}{academicYearID}
	if scope != "" {
		query += ` AND scope = $2`
		args = append(args, scope)
	}
	query += ` ORDER BY created_at, id`

	var constraints []models.Constraint
	err := withRetry(ctx, func() error {
		constraints = constraints[:0]
		if err := r.db.SelectContext(ctx, &constraints, query, args...); err != nil {
			return fmt.Errorf("list constraints: %w", err)
		}
		return nil
	})
	return constraints, err
}
