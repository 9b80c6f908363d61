package models

import "time"

// SuggestionType names a candidate timetable transformation.
type SuggestionType string

const (
	SuggestionSwapEntries    SuggestionType = "SWAP_ENTRIES"
	SuggestionMoveEntry      SuggestionType = "MOVE_ENTRY"
	SuggestionRebalanceLoad  SuggestionType = "REBALANCE_LOAD"
	SuggestionCompactGaps    SuggestionType = "COMPACT_GAPS"
	SuggestionReassignRoom   SuggestionType = "REASSIGN_ROOM"
)

// OptimizationSuggestion is an advisory transformation. Suggestions are
// ephemeral: recomputed per request and safe to regenerate, so they are
// never the authoritative copy of anything.
type OptimizationSuggestion struct {
	ID                   string         `json:"id"`
	VersionID            string         `json:"version_id"`
	Type                 SuggestionType `json:"type"`
	EstimatedImprovement float64        `json:"estimated_improvement"`
	Payload              map[string]any `json:"payload"`
}

// ApplyMode controls how selected suggestions take effect.
type ApplyMode string

const (
	ApplyModeImmediate      ApplyMode = "immediate"
	ApplyModePreview        ApplyMode = "preview"
	ApplyModeNextGeneration ApplyMode = "next_generation"
)

// GenerationHint is a persisted next_generation selection consumed by the
// solver's tie-break phase on the next job for the scope. One hint per
// (scope, class, subject); the latest stored preference wins.
type GenerationHint struct {
	ID              string    `db:"id" json:"id"`
	Scope           `json:"scope"`
	ClassID         string    `db:"class_id" json:"class_id"`
	SubjectID       string    `db:"subject_id" json:"subject_id"`
	PreferredDay    int       `db:"preferred_day" json:"preferred_day"`
	PreferredPeriod int       `db:"preferred_period" json:"preferred_period"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}
