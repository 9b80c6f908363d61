package dto

import (
	"time"

	"github.com/edustack/timetable-api/internal/models"
)

// VersionView controls how much detail getVersion returns.
type VersionView string

const (
	VersionViewSummary VersionView = "summary"
	VersionViewFull    VersionView = "full"
)

// VersionResponse is a version with optional entries.
type VersionResponse struct {
	Version models.ScheduleVersion `json:"version"`
	Entries []models.ScheduleEntry `json:"entries,omitempty"`
}

// PublishRequest flips a draft to published.
type PublishRequest struct {
	EffectiveDate time.Time `json:"effectiveDate" validate:"required"`
	ActorID       string    `json:"actorId" validate:"required"`
}

// ArchiveRequest retires a published version.
type ArchiveRequest struct {
	Reason               string  `json:"reason" validate:"required"`
	ReplacementVersionID *string `json:"replacementVersionId"`
	ActorID              string  `json:"actorId" validate:"required"`
}

// Adjustment is a single manual mutation of a draft.
type Adjustment struct {
	Action models.AdjustmentAction `json:"action" validate:"required,oneof=SWAP MOVE CANCEL RESCHEDULE"`
	// EntryID is the entry being adjusted; OtherEntryID is the swap partner.
	EntryID      string       `json:"entryId" validate:"required"`
	OtherEntryID string       `json:"otherEntryId"`
	Target       *models.Slot `json:"target"`
	RoomID       string       `json:"roomId"`
	Reason       string       `json:"reason"`
}

// ManualAdjustRequest applies a batch of adjustments under one writer lock.
type ManualAdjustRequest struct {
	Adjustments []Adjustment `json:"adjustments" validate:"required,min=1,dive"`
	ActorID     string       `json:"actorId" validate:"required"`
}

// AdjustmentResult reports the applied batch plus the post-mutation rescan.
type AdjustmentResult struct {
	Applied      int               `json:"applied"`
	NewConflicts []models.Conflict `json:"newConflicts"`
	Entries      []models.ScheduleEntry `json:"entries"`
}
