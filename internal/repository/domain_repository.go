package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/edustack/timetable-api/internal/models"
)

// DomainRepository loads the scheduling inputs for a scope: the time grid
// plus rosters of teachers, rooms, subjects, classes and the teaching
// demands connecting them. Read-only from the scheduler's point of view.
type DomainRepository struct {
	db *sqlx.DB
}

func NewDomainRepository(db *sqlx.DB) *DomainRepository {
	return &DomainRepository{db: db}
}

// TimeGrid loads the scope's grid definition.
func (r *DomainRepository) TimeGrid(ctx context.Context, scope models.Scope) (*models.TimeGrid, error) {
	const query = `SELECT id, school_id, year_id, term_id, days, periods_per_day, created_at
FROM time_grids WHERE school_id = $1 AND year_id = $2 AND term_id = $3`
	var grid models.TimeGrid
	if err := r.db.GetContext(ctx, &grid, query, scope.SchoolID, scope.YearID, scope.TermID); err != nil {
		return nil, err
	}
	return &grid, nil
}

// Load assembles the full scheduling domain for a scope. All list queries
// carry a stable ORDER BY so the solver sees the same input ordering run to
// run.
func (r *DomainRepository) Load(ctx context.Context, scope models.Scope) (*models.SchedulingDomain, error) {
	grid, err := r.TimeGrid(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("load time grid: %w", err)
	}

	domain := &models.SchedulingDomain{Grid: grid}

	const teacherQuery = `SELECT id, name, max_load_per_day, max_load_per_week, unavailable
FROM teachers WHERE school_id = $1 AND active = true ORDER BY id`
	err = withRetry(ctx, func() error {
		domain.Teachers = domain.Teachers[:0]
		if err := r.db.SelectContext(ctx, &domain.Teachers, teacherQuery, scope.SchoolID); err != nil {
			return fmt.Errorf("load teachers: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	const roomQuery = `SELECT id, name, capacity, type
FROM rooms WHERE school_id = $1 AND active = true ORDER BY id`
	if err := r.db.SelectContext(ctx, &domain.Rooms, roomQuery, scope.SchoolID); err != nil {
		return nil, fmt.Errorf("load rooms: %w", err)
	}

	const subjectQuery = `SELECT id, name, required_room_type
FROM subjects WHERE school_id = $1 ORDER BY id`
	if err := r.db.SelectContext(ctx, &domain.Subjects, subjectQuery, scope.SchoolID); err != nil {
		return nil, fmt.Errorf("load subjects: %w", err)
	}

	const classQuery = `SELECT id, name, size
FROM classes WHERE school_id = $1 AND year_id = $2 ORDER BY id`
	if err := r.db.SelectContext(ctx, &domain.Classes, classQuery, scope.SchoolID, scope.YearID); err != nil {
		return nil, fmt.Errorf("load classes: %w", err)
	}

	const demandQuery = `SELECT cs.class_id, cs.subject_id, cs.teacher_id, cs.frequency
FROM class_subjects cs
JOIN classes c ON c.id = cs.class_id
WHERE c.school_id = $1 AND c.year_id = $2
ORDER BY cs.class_id, cs.subject_id`
	if err := r.db.SelectContext(ctx, &domain.Demands, demandQuery, scope.SchoolID, scope.YearID); err != nil {
		return nil, fmt.Errorf("load class subjects: %w", err)
	}

	return domain, nil
}
