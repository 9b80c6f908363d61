package dto

import "github.com/edustack/timetable-api/internal/models"

// ApplyOptimizationsRequest applies a selection of suggestions.
type ApplyOptimizationsRequest struct {
	SuggestionIDs []string         `json:"suggestionIds" validate:"required,min=1"`
	Mode          models.ApplyMode `json:"mode" validate:"required,oneof=immediate preview next_generation"`
	ActorID       string           `json:"actorId" validate:"required"`
}

// EntryDiff describes one entry's before/after placement in a preview.
type EntryDiff struct {
	EntryID string       `json:"entryId"`
	Before  models.Slot  `json:"before"`
	After   models.Slot  `json:"after"`
	RoomID  string       `json:"roomId,omitempty"`
}

// ApplyResult reports the outcome of applying suggestions.
type ApplyResult struct {
	Mode         models.ApplyMode `json:"mode"`
	Applied      []string         `json:"applied,omitempty"`
	Skipped      []string         `json:"skipped,omitempty"`
	Diff         []EntryDiff      `json:"diff,omitempty"`
	ScoreBefore  float64          `json:"scoreBefore"`
	ScoreAfter   float64          `json:"scoreAfter"`
	HintStored   bool             `json:"hintStored,omitempty"`
}
