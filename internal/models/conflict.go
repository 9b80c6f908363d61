package models

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
)

// ConflictType classifies detected violations.
type ConflictType string

const (
	ConflictTypeTeacherDoubleBooking ConflictType = "teacher_double_booking"
	ConflictTypeRoomConflict         ConflictType = "room_conflict"
	ConflictTypeSubjectClash         ConflictType = "subject_clash"
	ConflictTypeConstraintViolation  ConflictType = "constraint_violation"
)

// ConflictSeverity ranks violations; critical conflicts gate publishing.
type ConflictSeverity string

const (
	SeverityCritical ConflictSeverity = "critical"
	SeverityMajor    ConflictSeverity = "major"
	SeverityMinor    ConflictSeverity = "minor"
)

// ResolutionMethod names the ways a conflict can be fixed.
type ResolutionMethod string

const (
	ResolutionSwap       ResolutionMethod = "swap"
	ResolutionMove       ResolutionMethod = "move"
	ResolutionCancel     ResolutionMethod = "cancel"
	ResolutionReschedule ResolutionMethod = "reschedule"
)

// Conflict is a detected rule violation within a version. Its identity is
// stable across rescans: the same (type, affected entries) always hashes
// to the same key.
type Conflict struct {
	ID                   string           `db:"id" json:"id"`
	VersionID            string           `db:"version_id" json:"version_id"`
	IdentityKey          string           `db:"identity_key" json:"-"`
	Type                 ConflictType     `db:"type" json:"type"`
	Severity             ConflictSeverity `db:"severity" json:"severity"`
	Detail               string           `db:"detail" json:"detail"`
	AffectedEntryIDs     pq.StringArray   `db:"affected_entry_ids" json:"affected_entry_ids"`
	SuggestedResolutions pq.StringArray   `db:"suggested_resolutions" json:"suggested_resolutions"`
	IsResolved           bool             `db:"is_resolved" json:"is_resolved"`
	ResolutionMethod     *string          `db:"resolution_method" json:"resolution_method,omitempty"`
	ResolvedBy           *string          `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt           *time.Time       `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt            time.Time        `db:"created_at" json:"created_at"`
}

// ConflictIdentity derives the stable identity key for a conflict from its
// type and the set of affected entries.
func ConflictIdentity(versionID string, kind ConflictType, entryIDs []string) string {
	ids := make([]string, len(entryIDs))
	copy(ids, entryIDs)
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(versionID + "|" + string(kind) + "|" + strings.Join(ids, ",")))
	return hex.EncodeToString(sum[:16])
}

// ConflictFilter narrows conflict listings.
type ConflictFilter struct {
	Severity   ConflictSeverity
	Type       ConflictType
	Unresolved bool
}
