package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/edustack/timetable-api/internal/dto"
	"github.com/edustack/timetable-api/internal/models"
	appErrors "github.com/edustack/timetable-api/pkg/errors"
	"github.com/edustack/timetable-api/pkg/events"
	"github.com/edustack/timetable-api/pkg/export"
)

type scheduleVersionRepository interface {
	FindByID(ctx context.Context, id string) (*models.ScheduleVersion, error)
	FindPublished(ctx context.Context, scope models.Scope) (*models.ScheduleVersion, error)
	ListByScope(ctx context.Context, scope models.Scope) ([]models.ScheduleVersion, error)
	Entries(ctx context.Context, versionID string) ([]models.ScheduleEntry, error)
	Publish(ctx context.Context, id string, effectiveDate *time.Time) (string, error)
	UpdateStatus(ctx context.Context, id string, from, next models.VersionStatus, reason string) error
	ReplaceEntries(ctx context.Context, versionID string, entries []models.ScheduleEntry) error
	UpdateScore(ctx context.Context, id string, score float64) error
}

type versionConflictGate interface {
	Rescan(ctx context.Context, versionID string) ([]models.Conflict, error)
	UnresolvedCriticalCount(ctx context.Context, versionID string) (int, error)
}

type versionAdjustmentStore interface {
	Record(ctx context.Context, record *models.AdjustmentRecord) error
	ListByVersion(ctx context.Context, versionID string) ([]models.AdjustmentRecord, error)
}

// VersionService manages the version lifecycle: publish gating, archiving,
// discards, manual adjustment of drafts and exports. The published version
// per scope is cached in redis and invalidated on every lifecycle change.
type VersionService struct {
	versions    scheduleVersionRepository
	conflicts   versionConflictGate
	adjustments versionAdjustmentStore
	cache       *redis.Client
	cacheTTL    time.Duration
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	publisher   events.Publisher
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger

	// adjustMu serialises manual adjustment batches per version.
	mu       sync.Mutex
	adjustMu map[string]*sync.Mutex
}

// NewVersionService wires the lifecycle dependencies. The cache client and
// metrics may be nil; lookups then always hit the database.
func NewVersionService(
	versions scheduleVersionRepository,
	conflicts versionConflictGate,
	adjustments versionAdjustmentStore,
	cache *redis.Client,
	cacheTTL time.Duration,
	publisher events.Publisher,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *VersionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &VersionService{
		versions:    versions,
		conflicts:   conflicts,
		adjustments: adjustments,
		cache:       cache,
		cacheTTL:    cacheTTL,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		publisher:   publisher,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		adjustMu:    make(map[string]*sync.Mutex),
	}
}

// Get returns a version, with entries when the full view is requested.
func (s *VersionService) Get(ctx context.Context, id string, view dto.VersionView) (*dto.VersionResponse, error) {
	version, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := &dto.VersionResponse{Version: *version}
	if view == dto.VersionViewFull {
		entries, err := s.versions.Entries(ctx, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entries")
		}
		resp.Entries = entries
	}
	return resp, nil
}

// List returns all versions for a scope, newest first.
func (s *VersionService) List(ctx context.Context, scope models.Scope) ([]models.ScheduleVersion, error) {
	if scope.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "schoolId, yearId and termId are required")
	}
	versions, err := s.versions.ListByScope(ctx, scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list versions")
	}
	return versions, nil
}

// Publish flips a draft to published. The gate: a rescan runs first and
// the draft must carry zero unresolved critical conflicts. A previously
// published version for the scope is archived as superseded in the same
// transaction.
func (s *VersionService) Publish(ctx context.Context, id string, req dto.PublishRequest) (*models.ScheduleVersion, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid publish payload")
	}
	version, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if version.Status != models.VersionStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("only drafts can be published, version is %s", version.Status))
	}

	if _, err := s.conflicts.Rescan(ctx, id); err != nil {
		return nil, err
	}
	critical, err := s.conflicts.UnresolvedCriticalCount(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count conflicts")
	}
	if critical > 0 {
		return nil, appErrors.Clone(appErrors.ErrPublishBlocked,
			fmt.Sprintf("unresolved_critical_conflicts: %d critical conflicts block publishing", critical))
	}

	superseded, err := s.versions.Publish(ctx, id, &req.EffectiveDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "version is no longer a draft")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish version")
	}

	s.invalidateCurrent(ctx, version.Scope)
	s.publisher.Publish(ctx, events.VersionPublished, map[string]any{
		"versionId":  id,
		"supersedes": superseded,
		"actorId":    req.ActorID,
	})

	return s.load(ctx, id)
}

// Archive retires a published version.
func (s *VersionService) Archive(ctx context.Context, id string, req dto.ArchiveRequest) (*models.ScheduleVersion, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid archive payload")
	}
	version, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.versions.UpdateStatus(ctx, id, models.VersionStatusPublished, models.VersionStatusArchived, req.Reason); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("only published versions can be archived, version is %s", version.Status))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive version")
	}
	s.invalidateCurrent(ctx, version.Scope)
	return s.load(ctx, id)
}

// Discard drops a draft that is not worth keeping. Published versions
// cannot be discarded, only archived.
func (s *VersionService) Discard(ctx context.Context, id string) error {
	if err := s.versions.UpdateStatus(ctx, id, models.VersionStatusDraft, models.VersionStatusDiscarded, ""); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			version, loadErr := s.load(ctx, id)
			if loadErr != nil {
				return loadErr
			}
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("only drafts can be discarded, version is %s", version.Status))
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to discard version")
	}
	return nil
}

// Current returns the published version for a scope with entries. The
// lookup is cached; lifecycle transitions invalidate the key.
func (s *VersionService) Current(ctx context.Context, scope models.Scope) (*dto.VersionResponse, error) {
	if scope.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "schoolId, yearId and termId are required")
	}

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, currentCacheKey(scope)).Bytes()
		if err == nil {
			var resp dto.VersionResponse
			if json.Unmarshal(cached, &resp) == nil {
				s.metrics.RecordCacheOperation(true)
				return &resp, nil
			}
		}
		s.metrics.RecordCacheOperation(false)
	}

	version, err := s.versions.FindPublished(ctx, scope)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no published timetable for this scope")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load published version")
	}
	entries, err := s.versions.Entries(ctx, version.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entries")
	}
	resp := &dto.VersionResponse{Version: *version, Entries: entries}

	if s.cache != nil {
		if body, marshalErr := json.Marshal(resp); marshalErr == nil {
			if err := s.cache.Set(ctx, currentCacheKey(scope), body, s.cacheTTL).Err(); err != nil {
				s.logger.Sugar().Debugw("failed to cache current version", "error", err)
			}
		}
	}
	return resp, nil
}

// ManualAdjust applies a batch of manual mutations to a draft under a
// per-version lock, records each in the audit trail, rescans and refreshes
// the stored score. New conflicts do not roll the batch back; they are
// reported.
func (s *VersionService) ManualAdjust(ctx context.Context, id string, req dto.ManualAdjustRequest) (*dto.AdjustmentResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid adjustment payload")
	}

	lock := s.versionLock(id)
	lock.Lock()
	defer lock.Unlock()

	version, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if version.Status != models.VersionStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("only drafts accept manual adjustments, version is %s", version.Status))
	}

	entries, err := s.versions.Entries(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entries")
	}
	byID := make(map[string]*models.ScheduleEntry, len(entries))
	for i := range entries {
		byID[entries[i].ID] = &entries[i]
	}

	applied := 0
	for _, adj := range req.Adjustments {
		entry, ok := byID[adj.EntryID]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("schedule entry %s not found", adj.EntryID))
		}
		before := snapshotEntry(entry)

		switch adj.Action {
		case models.AdjustmentActionCancel:
			entry.Cancelled = true
		case models.AdjustmentActionMove, models.AdjustmentActionReschedule:
			if adj.Target == nil {
				return nil, appErrors.Clone(appErrors.ErrValidation, "move requires a target slot")
			}
			entry.Day = adj.Target.Day
			entry.Period = adj.Target.Period
			if adj.RoomID != "" {
				entry.RoomID = adj.RoomID
			}
		case models.AdjustmentActionSwap:
			other, ok := byID[adj.OtherEntryID]
			if !ok {
				return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("schedule entry %s not found", adj.OtherEntryID))
			}
			otherBefore := snapshotEntry(other)
			entry.Day, other.Day = other.Day, entry.Day
			entry.Period, other.Period = other.Period, entry.Period
			s.recordAdjustment(ctx, id, other.ID, adj.Action, req.ActorID, otherBefore, snapshotEntry(other), adj.Reason)
			applied++
		default:
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown adjustment action")
		}

		s.recordAdjustment(ctx, id, entry.ID, adj.Action, req.ActorID, before, snapshotEntry(entry), adj.Reason)
		applied++
	}

	// The batch lands as one atomic entry-set swap; a partial write would
	// leave swap halves split across requests.
	if err := s.versions.ReplaceEntries(ctx, id, entries); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store adjusted entries")
	}

	open, err := s.conflicts.Rescan(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.versions.UpdateScore(ctx, id, scoreFromOpenConflicts(open)); err != nil {
		s.logger.Sugar().Warnw("failed to update optimization score", "version_id", id, "error", err)
	}
	return &dto.AdjustmentResult{Applied: applied, NewConflicts: open, Entries: entries}, nil
}

// scoreFromOpenConflicts maps the post-adjustment conflict set onto the
// 0-100 optimization score: 40 per critical, 5 per major, 2 per minor.
func scoreFromOpenConflicts(open []models.Conflict) float64 {
	score := 100.0
	for _, c := range open {
		switch c.Severity {
		case models.SeverityCritical:
			score -= 40
		case models.SeverityMajor:
			score -= 5
		default:
			score -= 2
		}
	}
	return math.Max(0, score)
}

// Adjustments returns the audit trail for a version.
func (s *VersionService) Adjustments(ctx context.Context, id string) ([]models.AdjustmentRecord, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	records, err := s.adjustments.ListByVersion(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list adjustments")
	}
	return records, nil
}

// Export renders a version's entries as CSV or a landscape PDF grid.
func (s *VersionService) Export(ctx context.Context, id, format string) ([]byte, string, error) {
	version, err := s.load(ctx, id)
	if err != nil {
		return nil, "", err
	}
	entries, err := s.versions.Entries(ctx, id)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entries")
	}

	dataset := export.Dataset{
		Headers: []string{"day", "period", "class", "subject", "teacher", "room", "cancelled"},
	}
	for _, e := range entries {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"day":       strconv.Itoa(e.Day),
			"period":    strconv.Itoa(e.Period),
			"class":     e.ClassID,
			"subject":   e.SubjectID,
			"teacher":   e.TeacherID,
			"room":      e.RoomID,
			"cancelled": strconv.FormatBool(e.Cancelled),
		})
	}

	switch format {
	case "csv", "":
		body, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return body, "text/csv", nil
	case "pdf":
		title := fmt.Sprintf("Timetable v%d (%s/%s)", version.Version, version.YearID, version.TermID)
		body, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return body, "application/pdf", nil
	}
	return nil, "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
}

func (s *VersionService) load(ctx context.Context, id string) (*models.ScheduleVersion, error) {
	version, err := s.versions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule version not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load version")
	}
	return version, nil
}

func (s *VersionService) versionLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.adjustMu[id]
	if !ok {
		lock = &sync.Mutex{}
		s.adjustMu[id] = lock
	}
	return lock
}

func (s *VersionService) recordAdjustment(ctx context.Context, versionID, entryID string, action models.AdjustmentAction, actorID string, before, after []byte, reason string) {
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

func (s *VersionService) invalidateCurrent(ctx context.Context, scope models.Scope) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, currentCacheKey(scope)).Err(); err != nil {
		s.logger.Sugar().Debugw("failed to invalidate cache", "scope", scope.Key(), "error", err)
	}
}

func currentCacheKey(scope models.Scope) string {
	return "timetable:current:" + scope.Key()
}
