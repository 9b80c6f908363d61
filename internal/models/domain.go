package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Teacher is a scheduling resource with capacity limits and blocked slots.
type Teacher struct {
	ID             string         `db:"id" json:"id"`
	SchoolID       string         `db:"school_id" json:"school_id"`
	Name           string         `db:"name" json:"name"`
	MaxLoadPerDay  int            `db:"max_load_per_day" json:"max_load_per_day"`
	MaxLoadPerWeek int            `db:"max_load_per_week" json:"max_load_per_week"`
	Unavailable    types.JSONText `db:"unavailable" json:"unavailable,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

// UnavailableSlots decodes the blocked slot list, empty on malformed data.
func (t *Teacher) UnavailableSlots() []Slot {
	if len(t.Unavailable) == 0 {
		return nil
	}
	var slots []Slot
	_ = t.Unavailable.Unmarshal(&slots)
	return slots
}

// Room is a teaching space with a capacity and optional specialisation.
type Room struct {
	ID       string `db:"id" json:"id"`
	SchoolID string `db:"school_id" json:"school_id"`
	Name     string `db:"name" json:"name"`
	Capacity int    `db:"capacity" json:"capacity"`
	Type     string `db:"type" json:"type"`
}

// Subject is a taught discipline; a required room type restricts placement.
type Subject struct {
	ID               string `db:"id" json:"id"`
	SchoolID         string `db:"school_id" json:"school_id"`
	Name             string `db:"name" json:"name"`
	RequiredRoomType string `db:"required_room_type" json:"required_room_type,omitempty"`
}

// Class is a student group with a fixed enrolment size.
type Class struct {
	ID       string `db:"id" json:"id"`
	SchoolID string `db:"school_id" json:"school_id"`
	Name     string `db:"name" json:"name"`
	Size     int    `db:"size" json:"size"`
}

// ClassSubject binds a class to a subject-teacher pair with a weekly
// frequency target. The solver places exactly Frequency occurrences.
type ClassSubject struct {
	ClassID   string `db:"class_id" json:"class_id"`
	SubjectID string `db:"subject_id" json:"subject_id"`
	TeacherID string `db:"teacher_id" json:"teacher_id"`
	Frequency int    `db:"frequency" json:"frequency"`
}

// SchedulingDomain bundles every entity a solver run needs. It is loaded
// once per job and treated as immutable for the duration of the solve.
type SchedulingDomain struct {
	Grid     *TimeGrid
	Teachers []Teacher
	Rooms    []Room
	Subjects []Subject
	Classes  []Class
	Demands  []ClassSubject
}
