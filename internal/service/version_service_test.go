package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edustack/timetable-api/internal/dto"
	"github.com/edustack/timetable-api/internal/models"
	appErrors "github.com/edustack/timetable-api/pkg/errors"
)

func TestVersionServicePublishDraft(t *testing.T) {
	fixture := newVersionFixture(t)
	fixture.repo.add(draftVersion("ver-1"))

	published, err := fixture.service.Publish(context.Background(), "ver-1", dto.PublishRequest{
		EffectiveDate: time.Now(),
		ActorID:       "admin-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.VersionStatusPublished, published.Status)
	assert.Equal(t, 1, fixture.gate.rescans, "publishing rescans first")
}

func TestVersionServicePublishBlockedByCriticalConflicts(t *testing.T) {
	fixture := newVersionFixture(t)
	fixture.repo.add(draftVersion("ver-1"))
	fixture.gate.critical = 2

	_, err := fixture.service.Publish(context.Background(), "ver-1", dto.PublishRequest{
		EffectiveDate: time.Now(),
		ActorID:       "admin-1",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Matches(err, appErrors.ErrPublishBlocked))
}

func TestVersionServicePublishSupersedesPrevious(t *testing.T) {
	fixture := newVersionFixture(t)
	old := draftVersion("ver-1")
	old.Status = models.VersionStatusPublished
	fixture.repo.add(old)
	fixture.repo.add(draftVersion("ver-2"))

	_, err := fixture.service.Publish(context.Background(), "ver-2", dto.PublishRequest{
		EffectiveDate: time.Now(),
		ActorID:       "admin-1",
	})
	require.NoError(t, err)
	superseded, err := fixture.repo.FindByID(context.Background(), "ver-1")
	require.NoError(t, err)
	assert.Equal(t, models.VersionStatusArchived, superseded.Status)
}

func TestVersionServicePublishRejectsNonDraft(t *testing.T) {
	fixture := newVersionFixture(t)
	archived := draftVersion("ver-1")
	archived.Status = models.VersionStatusArchived
	fixture.repo.add(archived)

	_, err := fixture.service.Publish(context.Background(), "ver-1", dto.PublishRequest{
		EffectiveDate: time.Now(),
		ActorID:       "admin-1",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Matches(err, appErrors.ErrConflict))
}

func TestVersionServiceDiscardRejectsPublished(t *testing.T) {
	fixture := newVersionFixture(t)
	published := draftVersion("ver-1")
	published.Status = models.VersionStatusPublished
	fixture.repo.add(published)

	err := fixture.service.Discard(context.Background(), "ver-1")
	require.Error(t, err)
	assert.True(t, appErrors.Matches(err, appErrors.ErrConflict))
}

func TestVersionServiceCurrentWithoutPublishedReturnsNotFound(t *testing.T) {
	fixture := newVersionFixture(t)
	fixture.repo.add(draftVersion("ver-1"))

	_, err := fixture.service.Current(context.Background(), models.Scope{SchoolID: "school-1", YearID: "year-1", TermID: "term-1"})
	require.Error(t, err)
	assert.True(t, appErrors.Matches(err, appErrors.ErrNotFound))
}

func TestVersionServiceCurrentCountsCacheHits(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	repo := &versionRepoStub{entries: map[string][]models.ScheduleEntry{}}
	published := draftVersion("ver-1")
	published.Status = models.VersionStatusPublished
	repo.add(published)
	metrics := NewMetricsService()
	svc := NewVersionService(repo, &conflictGateStub{}, &adjustmentWriterStub{}, client, time.Minute, nil, metrics, nil, nil)

	scope := models.Scope{SchoolID: "school-1", YearID: "year-1", TermID: "term-1"}
	_, err := svc.Current(context.Background(), scope)
	require.NoError(t, err)
	_, err = svc.Current(context.Background(), scope)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheMisses), "first lookup fills the cache")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheHits), "second lookup is served from redis")
}

func TestVersionServiceManualAdjustSwap(t *testing.T) {
	fixture := newVersionFixture(t)
	fixture.repo.add(draftVersion("ver-1"))
	fixture.repo.entries["ver-1"] = []models.ScheduleEntry{
		{ID: "e1", VersionID: "ver-1", TeacherID: "teacher-1", ClassID: "class-1", SubjectID: "math", Day: 1, Period: 1},
		{ID: "e2", VersionID: "ver-1", TeacherID: "teacher-2", ClassID: "class-1", SubjectID: "art", Day: 2, Period: 3},
	}

	result, err := fixture.service.ManualAdjust(context.Background(), "ver-1", dto.ManualAdjustRequest{
		ActorID: "admin-1",
		Adjustments: []dto.Adjustment{
			{Action: models.AdjustmentActionSwap, EntryID: "e1", OtherEntryID: "e2"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Applied)
	assert.Equal(t, 2, fixture.repo.entries["ver-1"][0].Day)
	assert.Equal(t, 1, fixture.repo.entries["ver-1"][1].Day)
	assert.Equal(t, 1, fixture.repo.replaceCalls, "the batch lands as one entry-set swap")
	assert.Len(t, fixture.adjustments.records, 2, "both sides of the swap are audited")
}

func TestVersionServiceManualAdjustRefreshesScore(t *testing.T) {
	fixture := newVersionFixture(t)
	fixture.repo.add(draftVersion("ver-1"))
	fixture.repo.entries["ver-1"] = []models.ScheduleEntry{
		{ID: "e1", VersionID: "ver-1", TeacherID: "teacher-1", ClassID: "class-1", SubjectID: "math", Day: 1, Period: 1},
	}
	fixture.gate.open = []models.Conflict{
		{ID: "c1", VersionID: "ver-1", Type: models.ConflictTypeTeacherDoubleBooking, Severity: models.SeverityCritical},
	}

	_, err := fixture.service.ManualAdjust(context.Background(), "ver-1", dto.ManualAdjustRequest{
		ActorID: "admin-1",
		Adjustments: []dto.Adjustment{
			{Action: models.AdjustmentActionMove, EntryID: "e1", Target: &models.Slot{Day: 2, Period: 1}},
		},
	})
	require.NoError(t, err)
	version, err := fixture.repo.FindByID(context.Background(), "ver-1")
	require.NoError(t, err)
	assert.Equal(t, 60.0, version.OptimizationScore, "one critical conflict costs 40 points")
}

func TestVersionServiceManualAdjustRejectsPublished(t *testing.T) {
	fixture := newVersionFixture(t)
	published := draftVersion("ver-1")
	published.Status = models.VersionStatusPublished
	fixture.repo.add(published)

	_, err := fixture.service.ManualAdjust(context.Background(), "ver-1", dto.ManualAdjustRequest{
		ActorID: "admin-1",
		Adjustments: []dto.Adjustment{
			{Action: models.AdjustmentActionCancel, EntryID: "e1"},
		},
	})
	require.Error(t, err)
	assert.True(t, appErrors.Matches(err, appErrors.ErrConflict))
}

func TestVersionServiceExportCSV(t *testing.T) {
	fixture := newVersionFixture(t)
	fixture.repo.add(draftVersion("ver-1"))
	fixture.repo.entries["ver-1"] = []models.ScheduleEntry{
		{ID: "e1", VersionID: "ver-1", TeacherID: "teacher-1", ClassID: "class-1", SubjectID: "math", RoomID: "room-1", Day: 1, Period: 2},
	}

	body, contentType, err := fixture.service.Export(context.Background(), "ver-1", "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	text := string(body)
	assert.True(t, strings.HasPrefix(text, "day,period,class,subject,teacher,room,cancelled"))
	assert.Contains(t, text, "1,2,class-1,math,teacher-1,room-1,false")
}

func TestVersionServiceExportRejectsUnknownFormat(t *testing.T) {
	fixture := newVersionFixture(t)
	fixture.repo.add(draftVersion("ver-1"))

	_, _, err := fixture.service.Export(context.Background(), "ver-1", "xlsx")
	require.Error(t, err)
	assert.True(t, appErrors.Matches(err, appErrors.ErrValidation))
}

// --- Fixtures ---

type versionFixture struct {
	service     *VersionService
	repo        *versionRepoStub
	gate        *conflictGateStub
	adjustments *adjustmentWriterStub
}

func newVersionFixture(t *testing.T) *versionFixture {
	t.Helper()
	fixture := &versionFixture{
		repo:        &versionRepoStub{entries: map[string][]models.ScheduleEntry{}},
		gate:        &conflictGateStub{},
		adjustments: &adjustmentWriterStub{},
	}
	fixture.service = NewVersionService(
		fixture.repo,
		fixture.gate,
		fixture.adjustments,
		nil,
		time.Minute,
		nil,
		nil,
		nil,
		nil,
	)
	return fixture
}

func draftVersion(id string) models.ScheduleVersion {
	return models.ScheduleVersion{
		ID:     id,
		Scope:  models.Scope{SchoolID: "school-1", YearID: "year-1", TermID: "term-1"},
		Status: models.VersionStatusDraft,
	}
}

type versionRepoStub struct {
	items        []models.ScheduleVersion
	entries      map[string][]models.ScheduleEntry
	replaceCalls int
}

func (s *versionRepoStub) add(version models.ScheduleVersion) {
	s.items = append(s.items, version)
}

func (s *versionRepoStub) FindByID(ctx context.Context, id string) (*models.ScheduleVersion, error) {
	for i := range s.items {
		if s.items[i].ID == id {
			v := s.items[i]
			return &v, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *versionRepoStub) FindPublished(ctx context.Context, scope models.Scope) (*models.ScheduleVersion, error) {
	for i := range s.items {
		if s.items[i].Scope == scope && s.items[i].Status == models.VersionStatusPublished {
			v := s.items[i]
			return &v, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *versionRepoStub) ListByScope(ctx context.Context, scope models.Scope) ([]models.ScheduleVersion, error) {
	var out []models.ScheduleVersion
	for _, v := range s.items {
		if v.Scope == scope {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *versionRepoStub) Entries(ctx context.Context, versionID string) ([]models.ScheduleEntry, error) {
	out := make([]models.ScheduleEntry, len(s.entries[versionID]))
	copy(out, s.entries[versionID])
	return out, nil
}

func (s *versionRepoStub) Publish(ctx context.Context, id string, effectiveDate *time.Time) (string, error) {
	var target *models.ScheduleVersion
	for i := range s.items {
		if s.items[i].ID == id {
			target = &s.items[i]
		}
	}
	if target == nil || target.Status != models.VersionStatusDraft {
		return "", sql.ErrNoRows
	}
	superseded := ""
	for i := range s.items {
		if s.items[i].Scope == target.Scope && s.items[i].Status == models.VersionStatusPublished {
			s.items[i].Status = models.VersionStatusArchived
			superseded = s.items[i].ID
		}
	}
	now := time.Now()
	target.Status = models.VersionStatusPublished
	target.PublishedAt = &now
	target.EffectiveDate = effectiveDate
	return superseded, nil
}

func (s *versionRepoStub) UpdateStatus(ctx context.Context, id string, from, next models.VersionStatus, reason string) error {
	for i := range s.items {
		if s.items[i].ID == id {
			if s.items[i].Status != from {
				return sql.ErrNoRows
			}
			s.items[i].Status = next
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *versionRepoStub) ReplaceEntries(ctx context.Context, versionID string, entries []models.ScheduleEntry) error {
	s.replaceCalls++
	stored := make([]models.ScheduleEntry, len(entries))
	copy(stored, entries)
	s.entries[versionID] = stored
	return nil
}

func (s *versionRepoStub) UpdateScore(ctx context.Context, id string, score float64) error {
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].OptimizationScore = score
			return nil
		}
	}
	return sql.ErrNoRows
}

type conflictGateStub struct {
	rescans  int
	critical int
	open     []models.Conflict
}

func (s *conflictGateStub) Rescan(ctx context.Context, versionID string) ([]models.Conflict, error) {
	s.rescans++
	return s.open, nil
}

func (s *conflictGateStub) UnresolvedCriticalCount(ctx context.Context, versionID string) (int, error) {
	return s.critical, nil
}
