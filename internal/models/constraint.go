package models

import (
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// ConstraintScope names the entity a rule applies to.
type ConstraintScope string

const (
	ConstraintScopeTeacher ConstraintScope = "TEACHER"
	ConstraintScopeRoom    ConstraintScope = "ROOM"
	ConstraintScopeSubject ConstraintScope = "SUBJECT"
	ConstraintScopeClass   ConstraintScope = "CLASS"
	ConstraintScopeGlobal  ConstraintScope = "GLOBAL"
)

// ConstraintKind enumerates the supported rule types.
type ConstraintKind string

const (
	ConstraintKindTeacherAvailability    ConstraintKind = "TEACHER_AVAILABILITY"
	ConstraintKindRoomCapacity           ConstraintKind = "ROOM_CAPACITY"
	ConstraintKindSubjectWeeklyFrequency ConstraintKind = "SUBJECT_WEEKLY_FREQUENCY"
	ConstraintKindConsecutivePeriodLimit ConstraintKind = "CONSECUTIVE_PERIOD_LIMIT"
	ConstraintKindCustom                 ConstraintKind = "CUSTOM"
)

// Constraint is a typed scheduling rule. Hard constraints are always
// enforced and carry no weight; soft constraints carry a positive weight
// that feeds the penalty function.
type Constraint struct {
	ID             string          `db:"id" json:"id"`
	Scope          ConstraintScope `db:"scope" json:"scope"`
	TargetID       *string         `db:"target_id" json:"target_id,omitempty"`
	Kind           ConstraintKind  `db:"kind" json:"kind"`
	IsHard         bool            `db:"is_hard" json:"is_hard"`
	Weight         *float64        `db:"weight" json:"weight,omitempty"`
	Parameters     types.JSONText  `db:"parameters" json:"parameters"`
	AcademicYearID string          `db:"academic_year_id" json:"academic_year_id"`
	Active         bool            `db:"active" json:"active"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// TeacherAvailabilityParams blocks a teacher out of specific slots.
type TeacherAvailabilityParams struct {
	TeacherID string `json:"teacherId" validate:"required"`
	Blocked   []Slot `json:"blocked" validate:"required,min=1,dive"`
}

// RoomCapacityParams caps occupancy for a room.
type RoomCapacityParams struct {
	RoomID   string `json:"roomId" validate:"required"`
	Capacity int    `json:"capacity" validate:"required,min=1"`
}

// SubjectWeeklyFrequencyParams pins how often a subject meets per week.
type SubjectWeeklyFrequencyParams struct {
	SubjectID string `json:"subjectId" validate:"required"`
	ClassID   string `json:"classId" validate:"required"`
	Frequency int    `json:"frequency" validate:"required,min=1"`
}

// ConsecutivePeriodLimitParams bounds back-to-back periods for a teacher
// or subject.
type ConsecutivePeriodLimitParams struct {
	TeacherID string `json:"teacherId"`
	SubjectID string `json:"subjectId"`
	MaxRun    int    `json:"maxRun" validate:"required,min=1"`
}

// CustomParams is an opaque payload evaluated by name.
type CustomParams struct {
	Name    string         `json:"name" validate:"required"`
	Payload map[string]any `json:"payload"`
}

// DecodeParameters unmarshals the JSON payload into dst.
func (c *Constraint) DecodeParameters(dst any) error {
	return json.Unmarshal(c.Parameters, dst)
}
