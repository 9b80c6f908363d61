package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/edustack/timetable-api/internal/dto"
	"github.com/edustack/timetable-api/internal/models"
	appErrors "github.com/edustack/timetable-api/pkg/errors"
	"github.com/edustack/timetable-api/pkg/events"
)

type conflictRepository interface {
	SyncScan(ctx context.Context, versionID string, found []models.Conflict) error
	FindByID(ctx context.Context, id string) (*models.Conflict, error)
	List(ctx context.Context, versionID string, filter models.ConflictFilter) ([]models.Conflict, error)
	CountUnresolvedCritical(ctx context.Context, versionID string) (int, error)
	MarkResolved(ctx context.Context, id string, method models.ResolutionMethod, actorID string) error
}

type entryStore interface {
	FindByID(ctx context.Context, id string) (*models.ScheduleVersion, error)
	Entries(ctx context.Context, versionID string) ([]models.ScheduleEntry, error)
	UpdateEntry(ctx context.Context, entry *models.ScheduleEntry) error
}

type conflictDomainLoader interface {
	Load(ctx context.Context, scope models.Scope) (*models.SchedulingDomain, error)
}

type conflictConstraintSource interface {
	Snapshot(ctx context.Context, academicYearID string) ([]models.Constraint, error)
}

type adjustmentWriter interface {
	Record(ctx context.Context, record *models.AdjustmentRecord) error
}

// ConflictService detects and resolves rule violations within a schedule
// version. A conflict's identity is stable across rescans, so resolving
// one and rescanning never resurrects it under a new id.
type ConflictService struct {
	conflicts   conflictRepository
	entries     entryStore
	domains     conflictDomainLoader
	constraints conflictConstraintSource
	adjustments adjustmentWriter
	publisher   events.Publisher
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewConflictService wires the detector dependencies. Metrics may be nil.
func NewConflictService(
	conflicts conflictRepository,
	entries entryStore,
	domains conflictDomainLoader,
	constraints conflictConstraintSource,
	adjustments adjustmentWriter,
	publisher events.Publisher,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *ConflictService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &ConflictService{
		conflicts:   conflicts,
		entries:     entries,
		domains:     domains,
		constraints: constraints,
		adjustments: adjustments,
		publisher:   publisher,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

// Rescan re-detects conflicts for a version and reconciles them with the
// stored set. Detection always walks the full entry set, even after a
// single-entry edit; identity keys keep previously resolved conflicts
// closed across scans. Returns the open conflicts after reconciliation.
func (s *ConflictService) Rescan(ctx context.Context, versionID string) ([]models.Conflict, error) {
	version, err := s.entries.FindByID(ctx, versionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule version not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load version")
	}
	entries, err := s.entries.Entries(ctx, versionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entries")
	}
	domain, err := s.domains.Load(ctx, version.Scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scheduling domain")
	}
	constraints, err := s.constraints.Snapshot(ctx, version.YearID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load constraints")
	}

	found := detectConflicts(versionID, entries, domain, constraints)
	if err := s.conflicts.SyncScan(ctx, versionID, found); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store scan result")
	}
	for _, c := range found {
		if c.Severity == models.SeverityCritical {
			s.publisher.Publish(ctx, events.ConflictCreated, map[string]any{
				"versionId": versionID,
				"type":      c.Type,
				"severity":  c.Severity,
			})
			break
		}
	}

	open, err := s.conflicts.List(ctx, versionID, models.ConflictFilter{Unresolved: true})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list conflicts")
	}
	counts := map[models.ConflictSeverity]int{
		models.SeverityCritical: 0,
		models.SeverityMajor:    0,
		models.SeverityMinor:    0,
	}
	for _, c := range open {
		counts[c.Severity]++
	}
	for severity, n := range counts {
		s.metrics.SetOpenConflicts(string(severity), n)
	}
	return open, nil
}

// List returns stored conflicts for a version.
func (s *ConflictService) List(ctx context.Context, versionID string, filter models.ConflictFilter) ([]models.Conflict, error) {
	conflicts, err := s.conflicts.List(ctx, versionID, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list conflicts")
	}
	return conflicts, nil
}

// UnresolvedCriticalCount feeds the publish gate.
func (s *ConflictService) UnresolvedCriticalCount(ctx context.Context, versionID string) (int, error) {
	return s.conflicts.CountUnresolvedCritical(ctx, versionID)
}

// Resolve applies one resolution method to a conflict, mutates the
// affected entries, records the adjustment and closes the conflict. A
// resolution can surface new conflicts; the follow-up rescan reports them.
func (s *ConflictService) Resolve(ctx context.Context, conflictID string, req dto.ResolveConflictRequest) (*dto.AdjustmentResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resolution payload")
	}

	conflict, err := s.conflicts.FindByID(ctx, conflictID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "conflict not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conflict")
	}
	if conflict.IsResolved {
		return nil, appErrors.ErrAlreadyResolved
	}

	applied, err := s.applyResolution(ctx, conflict, req)
	if err != nil {
		return nil, err
	}

	if err := s.conflicts.MarkResolved(ctx, conflictID, req.Method, req.ActorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrAlreadyResolved
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close conflict")
	}

	open, err := s.Rescan(ctx, conflict.VersionID)
	if err != nil {
		return nil, err
	}
	entries, err := s.entries.Entries(ctx, conflict.VersionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entries")
	}
	return &dto.AdjustmentResult{Applied: applied, NewConflicts: open, Entries: entries}, nil
}

// BulkResolve applies one method to several conflicts. Partial success is
// reported per conflict; a failing item does not roll back earlier ones.
func (s *ConflictService) BulkResolve(ctx context.Context, req dto.BulkResolveRequest) (map[string]string, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload")
	}
	outcome := make(map[string]string, len(req.ConflictIDs))
	for _, id := range req.ConflictIDs {
		_, err := s.Resolve(ctx, id, dto.ResolveConflictRequest{Method: req.Method, ActorID: req.ActorID})
		if err != nil {
			outcome[id] = appErrors.FromError(err).Message
			continue
		}
		outcome[id] = "resolved"
	}
	return outcome, nil
}

// applyResolution mutates entries according to the method. Cancel needs no
// extra data; swap and move/reschedule consume the request's Data block.
func (s *ConflictService) applyResolution(ctx context.Context, conflict *models.Conflict, req dto.ResolveConflictRequest) (int, error) {
	entryID := req.Data.EntryID
	if entryID == "" && len(conflict.AffectedEntryIDs) > 0 {
		entryID = conflict.AffectedEntryIDs[0]
	}
	entry, err := s.loadEntry(ctx, conflict.VersionID, entryID)
	if err != nil {
		return 0, err
	}
	before := snapshotEntry(entry)

	switch req.Method {
	case models.ResolutionCancel:
		entry.Cancelled = true
		if err := s.entries.UpdateEntry(ctx, entry); err != nil {
			return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel entry")
		}
		s.record(ctx, conflict.VersionID, entry.ID, models.AdjustmentActionCancel, req.ActorID, before, snapshotEntry(entry), req.Data.Reason)
		return 1, nil

	case models.ResolutionMove, models.ResolutionReschedule:
		if req.Data.Target == nil {
			return 0, appErrors.Clone(appErrors.ErrValidation, "move requires a target slot")
		}
		entry.Day = req.Data.Target.Day
		entry.Period = req.Data.Target.Period
		if req.Data.RoomID != "" {
			entry.RoomID = req.Data.RoomID
		}
		if err := s.entries.UpdateEntry(ctx, entry); err != nil {
			return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to move entry")
		}
		action := models.AdjustmentActionMove
		if req.Method == models.ResolutionReschedule {
			action = models.AdjustmentActionReschedule
		}
		s.record(ctx, conflict.VersionID, entry.ID, action, req.ActorID, before, snapshotEntry(entry), req.Data.Reason)
		return 1, nil

	case models.ResolutionSwap:
		otherID := req.Data.OtherEntryID
		if otherID == "" && len(conflict.AffectedEntryIDs) > 1 {
			otherID = conflict.AffectedEntryIDs[1]
		}
		other, err := s.loadEntry(ctx, conflict.VersionID, otherID)
		if err != nil {
			return 0, err
		}
		otherBefore := snapshotEntry(other)
		entry.Day, other.Day = other.Day, entry.Day
		entry.Period, other.Period = other.Period, entry.Period
		if err := s.entries.UpdateEntry(ctx, entry); err != nil {
			return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to swap entries")
		}
		if err := s.entries.UpdateEntry(ctx, other); err != nil {
			return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to swap entries")
		}
		s.record(ctx, conflict.VersionID, entry.ID, models.AdjustmentActionSwap, req.ActorID, before, snapshotEntry(entry), req.Data.Reason)
		s.record(ctx, conflict.VersionID, other.ID, models.AdjustmentActionSwap, req.ActorID, otherBefore, snapshotEntry(other), req.Data.Reason)
		return 2, nil
	}
	return 0, appErrors.Clone(appErrors.ErrValidation, "unknown resolution method")
}

func (s *ConflictService) loadEntry(ctx context.Context, versionID, entryID string) (*models.ScheduleEntry, error) {
	if entryID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "entryId is required")
	}
	entries, err := s.entries.Entries(ctx, versionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entries")
	}
	for i := range entries {
		if entries[i].ID == entryID {
			return &entries[i], nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule entry not found")
}

func (s *ConflictService) record(ctx context.Context, versionID, entryID string, action models.AdjustmentAction, actorID string, before, after types.JSONText, reason string) {
	if s.adjustments == nil {
		return
	}
	err := s.adjustments.Record(ctx, &models.AdjustmentRecord{
		VersionID: versionID,
		EntryID:   entryID,
		Action:    action,
		ActorID:   actorID,
		Before:    before,
		After:     after,
		Reason:    reason,
	})
	if err != nil {
		s.logger.Sugar().Warnw("failed to record adjustment", "version_id", versionID, "entry_id", entryID, "error", err)
	}
}

func snapshotEntry(entry *models.ScheduleEntry) types.JSONText {
	body, _ := json.Marshal(entry)
	return types.JSONText(body)
}

// detectConflicts scans entries against each other and against the hard
// constraint set. Cancelled entries never conflict.
func detectConflicts(versionID string, entries []models.ScheduleEntry, domain *models.SchedulingDomain, constraints []models.Constraint) []models.Conflict {
	var found []models.Conflict

	teacherSlots := map[slotKey][]string{}
	roomSlots := map[slotKey][]string{}
	classSlots := map[slotKey][]string{}
	for _, e := range entries {
		if e.Cancelled {
			continue
		}
		teacherSlots[slotKey{e.Day, e.Period, e.TeacherID}] = append(teacherSlots[slotKey{e.Day, e.Period, e.TeacherID}], e.ID)
		if e.RoomID != "" {
			roomSlots[slotKey{e.Day, e.Period, e.RoomID}] = append(roomSlots[slotKey{e.Day, e.Period, e.RoomID}], e.ID)
		}
		classSlots[slotKey{e.Day, e.Period, e.ClassID}] = append(classSlots[slotKey{e.Day, e.Period, e.ClassID}], e.ID)
	}

	found = append(found, collisions(versionID, teacherSlots, models.ConflictTypeTeacherDoubleBooking, "teacher %s booked twice at day %d period %d")...)
	found = append(found, collisions(versionID, roomSlots, models.ConflictTypeRoomConflict, "room %s booked twice at day %d period %d")...)
	found = append(found, collisions(versionID, classSlots, models.ConflictTypeSubjectClash, "class %s scheduled twice at day %d period %d")...)

	found = append(found, constraintViolations(versionID, entries, domain, constraints)...)

	sort.Slice(found, func(i, j int) bool { return found[i].IdentityKey < found[j].IdentityKey })
	return found
}

// slotKey addresses one resource at one grid position.
type slotKey struct {
	day    int
	period int
	id     string
}

func collisions(versionID string, slots map[slotKey][]string, kind models.ConflictType, format string) []models.Conflict {
	var out []models.Conflict
	for key, ids := range slots {
		if len(ids) < 2 {
			continue
		}
		sort.Strings(ids)
		out = append(out, models.Conflict{
			IdentityKey:          models.ConflictIdentity(versionID, kind, ids),
			Type:                 kind,
			Severity:             models.SeverityCritical,
			Detail:               fmt.Sprintf(format, key.id, key.day, key.period),
			AffectedEntryIDs:     pq.StringArray(ids),
			SuggestedResolutions: suggestFor(kind),
		})
	}
	return out
}

// constraintViolations checks hard rules the double-booking scan does not
// cover: availability, room capacity and consecutive run limits.
func constraintViolations(versionID string, entries []models.ScheduleEntry, domain *models.SchedulingDomain, constraints []models.Constraint) []models.Conflict {
	var out []models.Conflict

	blocked := map[string]map[models.Slot]bool{}
	for i := range domain.Teachers {
		t := &domain.Teachers[i]
		for _, s := range t.UnavailableSlots() {
			if blocked[t.ID] == nil {
				blocked[t.ID] = map[models.Slot]bool{}
			}
			blocked[t.ID][s] = true
		}
	}
	maxRun := map[string]int{}
	capOverride := map[string]int{}
	for _, c := range constraints {
		if !c.IsHard {
			continue
		}
		switch c.Kind {
		case models.ConstraintKindTeacherAvailability:
			var p models.TeacherAvailabilityParams
			if err := c.DecodeParameters(&p); err == nil {
				for _, s := range p.Blocked {
					if blocked[p.TeacherID] == nil {
						blocked[p.TeacherID] = map[models.Slot]bool{}
					}
					blocked[p.TeacherID][s] = true
				}
			}
		case models.ConstraintKindConsecutivePeriodLimit:
			var p models.ConsecutivePeriodLimitParams
			if err := c.DecodeParameters(&p); err == nil && p.TeacherID != "" {
				maxRun[p.TeacherID] = p.MaxRun
			}
		case models.ConstraintKindRoomCapacity:
			var p models.RoomCapacityParams
			if err := c.DecodeParameters(&p); err == nil {
				capOverride[p.RoomID] = p.Capacity
			}
		}
	}
	rooms := map[string]*models.Room{}
	for i := range domain.Rooms {
		rooms[domain.Rooms[i].ID] = &domain.Rooms[i]
	}
	classes := map[string]*models.Class{}
	for i := range domain.Classes {
		classes[domain.Classes[i].ID] = &domain.Classes[i]
	}

	teacherDays := map[string]map[int][]int{}
	for _, e := range entries {
		if e.Cancelled {
			continue
		}
		if blocked[e.TeacherID] != nil && blocked[e.TeacherID][e.Slot()] {
			ids := []string{e.ID}
			out = append(out, models.Conflict{
				IdentityKey:          models.ConflictIdentity(versionID, models.ConflictTypeConstraintViolation, ids),
				Type:                 models.ConflictTypeConstraintViolation,
				Severity:             models.SeverityMajor,
				Detail:               fmt.Sprintf("teacher %s scheduled in blocked slot day %d period %d", e.TeacherID, e.Day, e.Period),
				AffectedEntryIDs:     pq.StringArray(ids),
				SuggestedResolutions: suggestFor(models.ConflictTypeConstraintViolation),
			})
		}
		roomCap := 0
		if room := rooms[e.RoomID]; room != nil {
			roomCap = room.Capacity
		}
		if override, ok := capOverride[e.RoomID]; ok {
			roomCap = override
		}
		if class := classes[e.ClassID]; class != nil && roomCap > 0 && class.Size > roomCap {
			ids := []string{e.ID}
			out = append(out, models.Conflict{
				IdentityKey:          models.ConflictIdentity(versionID, models.ConflictTypeConstraintViolation, ids),
				Type:                 models.ConflictTypeConstraintViolation,
				Severity:             models.SeverityMajor,
				Detail:               fmt.Sprintf("class %s (%d students) exceeds room %s capacity %d", e.ClassID, class.Size, e.RoomID, roomCap),
				AffectedEntryIDs:     pq.StringArray(ids),
				SuggestedResolutions: pq.StringArray{string(models.ResolutionMove)},
			})
		}
		if teacherDays[e.TeacherID] == nil {
			teacherDays[e.TeacherID] = map[int][]int{}
		}
		teacherDays[e.TeacherID][e.Day] = append(teacherDays[e.TeacherID][e.Day], e.Period)
	}

	teacherIDs := make([]string, 0, len(teacherDays))
	for id := range teacherDays {
		teacherIDs = append(teacherIDs, id)
	}
	sort.Strings(teacherIDs)
	for _, teacherID := range teacherIDs {
		limit := maxRun[teacherID]
		if limit <= 0 {
			continue
		}
		for day, periods := range teacherDays[teacherID] {
			sort.Ints(periods)
			run := 1
			for i := 1; i < len(periods); i++ {
				if periods[i] == periods[i-1]+1 {
					run++
				} else {
					run = 1
				}
				if run > limit {
					ids := entryIDsFor(entries, teacherID, day)
					out = append(out, models.Conflict{
						IdentityKey:          models.ConflictIdentity(versionID, models.ConflictTypeConstraintViolation, ids),
						Type:                 models.ConflictTypeConstraintViolation,
						Severity:             models.SeverityMajor,
						Detail:               fmt.Sprintf("teacher %s exceeds %d consecutive periods on day %d", teacherID, limit, day),
						AffectedEntryIDs:     pq.StringArray(ids),
						SuggestedResolutions: pq.StringArray{string(models.ResolutionMove), string(models.ResolutionReschedule)},
					})
					break
				}
			}
		}
	}
	return out
}

func entryIDsFor(entries []models.ScheduleEntry, teacherID string, day int) []string {
	var ids []string
	for _, e := range entries {
		if !e.Cancelled && e.TeacherID == teacherID && e.Day == day {
			ids = append(ids, e.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func suggestFor(kind models.ConflictType) pq.StringArray {
	switch kind {
	case models.ConflictTypeTeacherDoubleBooking, models.ConflictTypeSubjectClash:
		return pq.StringArray{string(models.ResolutionSwap), string(models.ResolutionMove)}
	case models.ConflictTypeRoomConflict:
		return pq.StringArray{string(models.ResolutionMove), string(models.ResolutionSwap)}
	default:
		return pq.StringArray{string(models.ResolutionMove)}
	}
}

