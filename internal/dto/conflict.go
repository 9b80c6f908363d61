package dto

import "github.com/edustack/timetable-api/internal/models"

// ResolveConflictRequest applies one resolution method to a conflict.
type ResolveConflictRequest struct {
	Method  models.ResolutionMethod `json:"method" validate:"required,oneof=swap move cancel reschedule"`
	ActorID string                  `json:"actorId" validate:"required"`
	// Data carries method-specific detail: target slot for move/reschedule,
	// partner entry for swap.
	Data ResolutionData `json:"data"`
}

// ResolutionData parameterises a resolution method.
type ResolutionData struct {
	EntryID      string       `json:"entryId"`
	OtherEntryID string       `json:"otherEntryId"`
	Target       *models.Slot `json:"target"`
	RoomID       string       `json:"roomId"`
	Reason       string       `json:"reason"`
}

// BulkResolveRequest resolves several conflicts with one method.
type BulkResolveRequest struct {
	ConflictIDs []string                `json:"conflictIds" validate:"required,min=1"`
	Method      models.ResolutionMethod `json:"method" validate:"required,oneof=swap move cancel reschedule"`
	ActorID     string                  `json:"actorId" validate:"required"`
}
