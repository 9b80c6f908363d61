package dto

import "github.com/edustack/timetable-api/internal/models"

// ScopeQuery binds scope identifiers from query or body.
type ScopeQuery struct {
	SchoolID string `form:"schoolId" json:"schoolId" validate:"required"`
	YearID   string `form:"yearId" json:"yearId" validate:"required"`
	TermID   string `form:"termId" json:"termId" validate:"required"`
}

// Scope converts the query into the domain scope.
func (q ScopeQuery) Scope() models.Scope {
	return models.Scope{SchoolID: q.SchoolID, YearID: q.YearID, TermID: q.TermID}
}

// SubmitGenerationRequest asks for an asynchronous timetable solve.
type SubmitGenerationRequest struct {
	ScopeQuery
	Seed       *int64         `json:"seed" validate:"omitempty,min=0"`
	TimeBudget string         `json:"timeBudget" validate:"omitempty"`
	Parameters map[string]any `json:"parameters"`
}

// SubmitGenerationResponse returns the accepted job id for polling.
type SubmitGenerationResponse struct {
	JobID string `json:"jobId"`
	State models.JobState `json:"state"`
}

// JobStatusResponse reports generation progress.
type JobStatusResponse struct {
	JobID           string          `json:"jobId"`
	State           models.JobState `json:"state"`
	Progress        int             `json:"progress"`
	ResultVersionID *string         `json:"resultVersionId,omitempty"`
	Error           *string         `json:"error,omitempty"`
}

// RegenerateRequest reruns generation starting from an existing version.
type RegenerateRequest struct {
	Modifications map[string]any `json:"modifications"`
	Reason        string         `json:"reason" validate:"required"`
	Seed          *int64         `json:"seed" validate:"omitempty,min=0"`
}
