package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// AdjustmentAction names a manual timetable mutation.
type AdjustmentAction string

const (
	AdjustmentActionSwap       AdjustmentAction = "SWAP"
	AdjustmentActionMove       AdjustmentAction = "MOVE"
	AdjustmentActionCancel     AdjustmentAction = "CANCEL"
	AdjustmentActionReschedule AdjustmentAction = "RESCHEDULE"
)

// AdjustmentRecord is an append-only audit entry for every draft mutation.
// Records are never deleted; they provide history and undo context.
type AdjustmentRecord struct {
	ID        string           `db:"id" json:"id"`
	VersionID string           `db:"version_id" json:"version_id"`
	EntryID   string           `db:"entry_id" json:"entry_id"`
	ActorID   string           `db:"actor_id" json:"actor_id"`
	Action    AdjustmentAction `db:"action" json:"action"`
	Before    types.JSONText   `db:"before" json:"before"`
	After     types.JSONText   `db:"after" json:"after"`
	Reason    string           `db:"reason" json:"reason"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}
