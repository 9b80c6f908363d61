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

// ConflictRepository persists detected conflicts keyed by their stable
// identity so a rescan can reconcile instead of duplicating rows.
type ConflictRepository struct {
	db *sqlx.DB
}

func NewConflictRepository(db *sqlx.DB) *ConflictRepository {
	return &ConflictRepository{db: db}
}

// SyncScan reconciles the stored open conflicts of a version with a fresh
// scan result: new identities are inserted, known open identities keep their
// row (and id), and open conflicts whose identity no longer appears are
// closed as auto-resolved. Resolved rows are never reopened.
func (r *ConflictRepository) SyncScan(ctx context.Context, versionID string, found []models.Conflict) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin scan tx: %w", err)
	}
	defer tx.Rollback()

	const openQuery = `SELECT identity_key FROM conflicts WHERE version_id = $1 AND is_resolved = false FOR UPDATE`
	var openKeys []string
	if err := tx.SelectContext(ctx, &openKeys, openQuery, versionID); err != nil {
		return fmt.Errorf("load open conflicts: %w", err)
	}
	open := make(map[string]bool, len(openKeys))
	for _, key := range openKeys {
		open[key] = true
	}

	now := time.Now().UTC()
	const insert = `
INSERT INTO conflicts (id, version_id, identity_key, type, severity, detail, affected_entry_ids, suggested_resolutions, is_resolved, created_at)
VALUES (:id, :version_id, :identity_key, :type, :severity, :detail, :affected_entry_ids, :suggested_resolutions, false, :created_at)
ON CONFLICT (version_id, identity_key) DO NOTHING`

	seen := make(map[string]bool, len(found))
	for i := range found {
		conflict := found[i]
		seen[conflict.IdentityKey] = true
		if open[conflict.IdentityKey] {
			continue
		}
		if conflict.ID == "" {
			conflict.ID = uuid.NewString()
		}
		conflict.VersionID = versionID
		conflict.CreatedAt = now
		if _, err := tx.NamedExecContext(ctx, insert, conflict); err != nil {
			return fmt.Errorf("insert conflict: %w", err)
		}
	}

	const closeStale = `UPDATE conflicts SET is_resolved = true, resolution_method = 'auto', resolved_at = $3
WHERE version_id = $1 AND identity_key = $2 AND is_resolved = false`
	for _, key := range openKeys {
		if seen[key] {
			continue
		}
		if _, err := tx.ExecContext(ctx, closeStale, versionID, key, now); err != nil {
			return fmt.Errorf("close stale conflict: %w", err)
		}
	}
	return tx.Commit()
}

// FindByID loads one conflict.
func (r *ConflictRepository) FindByID(ctx context.Context, id string) (*models.Conflict, error) {
	const query = `SELECT id, version_id, identity_key, type, severity, detail, affected_entry_ids, suggested_resolutions, is_resolved, resolution_method, resolved_by, resolved_at, created_at
FROM conflicts WHERE id = $1`
	var conflict models.Conflict
	if err := r.db.GetContext(ctx, &conflict, query, id); err != nil {
		return nil, err
	}
	return &conflict, nil
}

// List returns conflicts for a version with optional filters, critical
// first, stable order within severity.
func (r *ConflictRepository) List(ctx context.Context, versionID string, filter models.ConflictFilter) ([]models.Conflict, error) {
	query := `SELECT id, version_id, identity_key, type, severity, detail, affected_entry_ids, suggested_resolutions, is_resolved, resolution_method, resolved_by, resolved_at, created_at
FROM conflicts WHERE version_id = $1`
	args := []interface{}{versionID}

	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if filter.Severity != "" {
		args = append(args, filter.Severity)
		query += fmt.Sprintf(" AND severity = $%d", len(args))
	}
	if filter.Unresolved {
		query += " AND is_resolved = false"
	}
	query += ` ORDER BY CASE severity WHEN 'critical' THEN 0 WHEN 'major' THEN 1 ELSE 2 END, created_at, identity_key`

	var conflicts []models.Conflict
	if err := r.db.SelectContext(ctx, &conflicts, query, args...); err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	return conflicts, nil
}

// CountUnresolvedCritical feeds the publish gate.
func (r *ConflictRepository) CountUnresolvedCritical(ctx context.Context, versionID string) (int, error) {
	const query = `SELECT count(*) FROM conflicts WHERE version_id = $1 AND severity = 'critical' AND is_resolved = false`
	var count int
	if err := r.db.GetContext(ctx, &count, query, versionID); err != nil {
		return 0, fmt.Errorf("count critical conflicts: %w", err)
	}
	return count, nil
}

// MarkResolved closes a conflict with the applied method. Returns
// sql.ErrNoRows when the conflict was already resolved.
func (r *ConflictRepository) MarkResolved(ctx context.Context, id string, method models.ResolutionMethod, actorID string) error {
	const query = `UPDATE conflicts SET is_resolved = true, resolution_method = $2, resolved_by = $3, resolved_at = $4
WHERE id = $1 AND is_resolved = false`
	result, err := r.db.ExecContext(ctx, query, id, method, actorID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("resolve conflict: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("conflict rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
