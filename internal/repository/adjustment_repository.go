package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edustack/timetable-api/internal/models"
)

// AdjustmentRepository stores the append-only audit trail of manual schedule
// mutations. Records are never updated or deleted.
type AdjustmentRepository struct {
	db *sqlx.DB
}

func NewAdjustmentRepository(db *sqlx.DB) *AdjustmentRepository {
	return &AdjustmentRepository{db: db}
}

// Record appends one adjustment.
func (r *AdjustmentRepository) Record(ctx context.Context, record *models.AdjustmentRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.CreatedAt = time.Now().UTC()

	const query = `
INSERT INTO schedule_adjustments (id, version_id, entry_id, action, actor_id, before, after, reason, created_at)
VALUES (:id, :version_id, :entry_id, :action, :actor_id, :before, :after, :reason, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("insert adjustment: %w", err)
	}
	return nil
}

// ListByVersion returns the audit trail for a version oldest first.
func (r *AdjustmentRepository) ListByVersion(ctx context.Context, versionID string) ([]models.AdjustmentRecord, error) {
	const query = `SELECT id, version_id, entry_id, action, actor_id, before, after, reason, created_at
FROM schedule_adjustments WHERE version_id = $1
ORDER BY created_at, id`
	var records []models.AdjustmentRecord
	if err := r.db.SelectContext(ctx, &records, query, versionID); err != nil {
		return nil, fmt.Errorf("list adjustments: %w", err)
	}
	return records, nil
}
