package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// VersionStatus represents lifecycle phases for generated timetables.
type VersionStatus string

const (
	VersionStatusDraft     VersionStatus = "DRAFT"
	VersionStatusPublished VersionStatus = "PUBLISHED"
	VersionStatusDiscarded VersionStatus = "DISCARDED"
	VersionStatusArchived  VersionStatus = "ARCHIVED"
)

// ScheduleVersion is a versioned timetable for a scope. Only published
// versions are authoritative for end users; archiving preserves history
// through the supersession chain, it never deletes.
type ScheduleVersion struct {
	ID                 string         `db:"id" json:"id"`
	Scope              `json:"scope"`
	Version            int            `db:"version" json:"version"`
	Status             VersionStatus  `db:"status" json:"status"`
	OptimizationScore  float64        `db:"optimization_score" json:"optimization_score"`
	ParentJobID        *string        `db:"parent_job_id" json:"parent_job_id,omitempty"`
	UnsatisfiedHard    types.JSONText `db:"unsatisfied_hard" json:"unsatisfied_hard,omitempty"`
	PublishedAt        *time.Time     `db:"published_at" json:"published_at,omitempty"`
	EffectiveDate      *time.Time     `db:"effective_date" json:"effective_date,omitempty"`
	ArchivedAt         *time.Time     `db:"archived_at" json:"archived_at,omitempty"`
	ArchiveReason      *string        `db:"archive_reason" json:"archive_reason,omitempty"`
	ReplacesVersionID  *string        `db:"replaces_version_id" json:"replaces_version_id,omitempty"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}

// ScheduleEntry is a single (teacher, subject, class, room, slot) tuple
// inside a version.
type ScheduleEntry struct {
	ID        string `db:"id" json:"id"`
	VersionID string `db:"version_id" json:"version_id"`
	TeacherID string `db:"teacher_id" json:"teacher_id"`
	SubjectID string `db:"subject_id" json:"subject_id"`
	ClassID   string `db:"class_id" json:"class_id"`
	RoomID    string `db:"room_id" json:"room_id"`
	Day       int    `db:"day" json:"day"`
	Period    int    `db:"period" json:"period"`
	Cancelled bool   `db:"cancelled" json:"cancelled"`
}

// Slot returns the entry's grid position.
func (e ScheduleEntry) Slot() Slot {
	return Slot{Day: e.Day, Period: e.Period}
}

// VersionMeta is lightweight metadata for list views.
type VersionMeta struct {
	ID        string        `db:"id" json:"id"`
	Version   int           `db:"version" json:"version"`
	Status    VersionStatus `db:"status" json:"status"`
	Score     float64       `db:"optimization_score" json:"score"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}
