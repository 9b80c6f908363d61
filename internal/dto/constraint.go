package dto

import (
	"encoding/json"

	"github.com/edustack/timetable-api/internal/models"
)

// CreateConstraintRequest registers a new scheduling rule.
type CreateConstraintRequest struct {
	Scope          models.ConstraintScope `json:"scope" validate:"required,oneof=TEACHER ROOM SUBJECT CLASS GLOBAL"`
	TargetID       *string                `json:"targetId"`
	Kind           models.ConstraintKind  `json:"kind" validate:"required,oneof=TEACHER_AVAILABILITY ROOM_CAPACITY SUBJECT_WEEKLY_FREQUENCY CONSECUTIVE_PERIOD_LIMIT CUSTOM"`
	IsHard         bool                   `json:"isHard"`
	Weight         *float64               `json:"weight" validate:"omitempty,gt=0"`
	Parameters     json.RawMessage        `json:"parameters" validate:"required"`
	AcademicYearID string                 `json:"academicYearId" validate:"required"`
}

// UpdateConstraintRequest patches an existing rule.
type UpdateConstraintRequest struct {
	IsHard     *bool           `json:"isHard"`
	Weight     *float64        `json:"weight" validate:"omitempty,gt=0"`
	Parameters json.RawMessage `json:"parameters"`
	Active     *bool           `json:"active"`
}

// ConstraintListQuery filters active constraints.
type ConstraintListQuery struct {
	Scope          models.ConstraintScope `form:"scope"`
	AcademicYearID string                 `form:"academicYearId" validate:"required"`
}
