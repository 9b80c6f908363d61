package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// JobState tracks the lifecycle of a generation job.
type JobState string

const (
	JobStatePending   JobState = "PENDING"
	JobStateRunning   JobState = "RUNNING"
	JobStateCompleted JobState = "COMPLETED"
	JobStateFailed    JobState = "FAILED"
	JobStateCancelled JobState = "CANCELLED"
)

// IsTerminal reports whether the state permits no further transitions.
func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateCompleted, JobStateFailed, JobStateCancelled:
		return true
	}
	return false
}

// CanTransition validates the job state machine:
// Pending -> Running -> {Completed, Failed}; Pending|Running -> Cancelled.
func (s JobState) CanTransition(next JobState) bool {
	switch s {
	case JobStatePending:
		return next == JobStateRunning || next == JobStateCancelled
	case JobStateRunning:
		return next == JobStateCompleted || next == JobStateFailed || next == JobStateCancelled
	}
	return false
}

// GenerationJob is an asynchronous solve request. At most one non-terminal
// job exists per scope.
type GenerationJob struct {
	ID              string         `db:"id" json:"id"`
	Scope           `json:"scope"`
	Parameters      types.JSONText `db:"parameters" json:"parameters"`
	State           JobState       `db:"state" json:"state"`
	Progress        int            `db:"progress" json:"progress"`
	ResultVersionID *string        `db:"result_version_id" json:"result_version_id,omitempty"`
	Error           *string        `db:"error" json:"error,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	CompletedAt     *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
}
