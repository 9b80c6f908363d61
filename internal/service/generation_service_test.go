package service

import (
	"context"
	"database/sql"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edustack/timetable-api/internal/dto"
	"github.com/edustack/timetable-api/internal/models"
	"github.com/edustack/timetable-api/internal/repository"
	appErrors "github.com/edustack/timetable-api/pkg/errors"
	"github.com/edustack/timetable-api/pkg/jobs"
)

func TestGenerationServiceSubmitRejectsSecondActiveJob(t *testing.T) {
	fixture := newGenerationFixture(t)
	fixture.service.StartQueue(context.Background())
	defer fixture.service.StopQueue()

	req := dto.SubmitGenerationRequest{
		ScopeQuery: dto.ScopeQuery{SchoolID: "school-1", YearID: "year-1", TermID: "term-1"},
	}
	first, err := fixture.service.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatePending, first.State)

	_, err = fixture.service.Submit(context.Background(), req)
	require.Error(t, err)
	assert.True(t, appErrors.Matches(err, appErrors.ErrJobAlreadyRunning))
}

func TestGenerationServiceSubmitRequiresScope(t *testing.T) {
	fixture := newGenerationFixture(t)

	_, err := fixture.service.Submit(context.Background(), dto.SubmitGenerationRequest{})
	require.Error(t, err)
	assert.True(t, appErrors.Matches(err, appErrors.ErrValidation))
}

func TestGenerationServiceSubmitRejectsBadTimeBudget(t *testing.T) {
	fixture := newGenerationFixture(t)

	_, err := fixture.service.Submit(context.Background(), dto.SubmitGenerationRequest{
		ScopeQuery: dto.ScopeQuery{SchoolID: "school-1", YearID: "year-1", TermID: "term-1"},
		TimeBudget: "soon",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Matches(err, appErrors.ErrValidation))
}

func TestGenerationServiceRunProducesDraftVersion(t *testing.T) {
	fixture := newGenerationFixture(t)

	job := &models.GenerationJob{Scope: models.Scope{SchoolID: "school-1", YearID: "year-1", TermID: "term-1"}}
	require.NoError(t, fixture.jobs.CreateLeased(context.Background(), job))

	err := fixture.service.handleJob(context.Background(), jobs.Job{ID: job.ID, Type: "generation"})
	require.NoError(t, err)

	stored, err := fixture.jobs.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateCompleted, stored.State)
	require.NotNil(t, stored.ResultVersionID)

	require.Len(t, fixture.versions.versions, 1)
	version := fixture.versions.versions[0]
	assert.Equal(t, *stored.ResultVersionID, version.ID)
	// Three weekly occurrences demanded, three entries placed.
	assert.Len(t, fixture.versions.entries[version.ID], 3)
	assert.Equal(t, 1, fixture.scanner.calls, "a fresh draft gets an initial conflict scan")
}

func TestGenerationServiceQueueCompletesSubmittedJob(t *testing.T) {
	fixture := newGenerationFixture(t)
	fixture.service.StartQueue(context.Background())
	defer fixture.service.StopQueue()

	resp, err := fixture.service.Submit(context.Background(), dto.SubmitGenerationRequest{
		ScopeQuery: dto.ScopeQuery{SchoolID: "school-1", YearID: "year-1", TermID: "term-1"},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stored, findErr := fixture.jobs.FindByID(context.Background(), resp.JobID)
		return findErr == nil && stored.State == models.JobStateCompleted
	}, 5*time.Second, 10*time.Millisecond)
}

func TestGenerationServiceCancelPendingJob(t *testing.T) {
	fixture := newGenerationFixture(t)
	job := &models.GenerationJob{Scope: models.Scope{SchoolID: "school-1", YearID: "year-1", TermID: "term-1"}}
	require.NoError(t, fixture.jobs.CreateLeased(context.Background(), job))

	state, err := fixture.service.Cancel(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateCancelled, state)

	stored, err := fixture.jobs.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateCancelled, stored.State)
}

func TestGenerationServiceCancelCompletedJobIsNoOp(t *testing.T) {
	fixture := newGenerationFixture(t)
	job := &models.GenerationJob{Scope: models.Scope{SchoolID: "school-1", YearID: "year-1", TermID: "term-1"}}
	require.NoError(t, fixture.jobs.CreateLeased(context.Background(), job))
	require.NoError(t, fixture.jobs.TransitionState(context.Background(), job.ID, []models.JobState{models.JobStatePending}, models.JobStateRunning))
	require.NoError(t, fixture.jobs.Complete(context.Background(), job.ID, "ver-1"))

	state, err := fixture.service.Cancel(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateCompleted, state)

	// The terminal state and its result are untouched.
	stored, err := fixture.jobs.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateCompleted, stored.State)
	require.NotNil(t, stored.ResultVersionID)
	assert.Equal(t, "ver-1", *stored.ResultVersionID)
}

func TestGenerationServiceCancelMissingJob(t *testing.T) {
	fixture := newGenerationFixture(t)

	_, err := fixture.service.Cancel(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, appErrors.Matches(err, appErrors.ErrNotFound))
}

func TestGenerationServiceStatusMissingJob(t *testing.T) {
	fixture := newGenerationFixture(t)

	_, err := fixture.service.Status(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, appErrors.Matches(err, appErrors.ErrNotFound))
}

// --- Fixtures ---

type generationFixture struct {
	service  *GenerationService
	jobs     *jobRepoStub
	versions *versionWriterStub
	scanner  *conflictScannerStub
	hints    *hintConsumerStub
}

func newGenerationFixture(t *testing.T) *generationFixture {
	t.Helper()
	fixture := &generationFixture{
		jobs:     &jobRepoStub{},
		versions: &versionWriterStub{entries: map[string][]models.ScheduleEntry{}},
		scanner:  &conflictScannerStub{},
		hints:    &hintConsumerStub{},
	}
	fixture.service = NewGenerationService(
		fixture.jobs,
		domainLoaderStub{domain: generationTestDomain()},
		constraintSourceStub{},
		fixture.versions,
		fixture.scanner,
		fixture.hints,
		nil,
		nil,
		SolverSettings{TimeBudget: 2 * time.Second, RepairIterations: 200, DefaultSeed: 1},
		jobs.QueueConfig{Workers: 1, BufferSize: 4},
		nil,
		nil,
	)
	return fixture
}

func generationTestDomain() *models.SchedulingDomain {
	domain := conflictTestDomain()
	domain.Subjects = []models.Subject{{ID: "math"}}
	domain.Demands = []models.ClassSubject{
		{ClassID: "class-1", SubjectID: "math", TeacherID: "teacher-1", Frequency: 3},
	}
	return domain
}

type jobRepoStub struct {
	mu    sync.Mutex
	items []models.GenerationJob
	seq   int
}

func (s *jobRepoStub) CreateLeased(ctx context.Context, job *models.GenerationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items {
		if existing.Scope == job.Scope && !existing.State.IsTerminal() {
			return repository.ErrActiveJobExists
		}
	}
	s.seq++
	job.ID = "job-" + strconv.Itoa(s.seq)
	job.State = models.JobStatePending
	s.items = append(s.items, *job)
	return nil
}

func (s *jobRepoStub) FindByID(ctx context.Context, id string) (*models.GenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			job := s.items[i]
			return &job, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *jobRepoStub) TransitionState(ctx context.Context, id string, from []models.JobState, next models.JobState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID != id {
			continue
		}
		for _, state := range from {
			if s.items[i].State == state {
				s.items[i].State = next
				return nil
			}
		}
		return sql.ErrNoRows
	}
	return sql.ErrNoRows
}

func (s *jobRepoStub) UpdateProgress(ctx context.Context, id string, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id && s.items[i].State == models.JobStateRunning {
			s.items[i].Progress = progress
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *jobRepoStub) Complete(ctx context.Context, id, versionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id && s.items[i].State == models.JobStateRunning {
			s.items[i].State = models.JobStateCompleted
			s.items[i].Progress = 100
			s.items[i].ResultVersionID = &versionID
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *jobRepoStub) Fail(ctx context.Context, id, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id && !s.items[i].State.IsTerminal() {
			s.items[i].State = models.JobStateFailed
			s.items[i].Error = &message
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *jobRepoStub) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			if s.items[i].State.IsTerminal() {
				return sql.ErrNoRows
			}
			s.items[i].State = models.JobStateCancelled
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *jobRepoStub) ListByScope(ctx context.Context, scope models.Scope, limit int) ([]models.GenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.GenerationJob
	for _, job := range s.items {
		if job.Scope == scope {
			out = append(out, job)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type versionWriterStub struct {
	mu       sync.Mutex
	versions []models.ScheduleVersion
	entries  map[string][]models.ScheduleEntry
	seq      int
}

func (s *versionWriterStub) CreateVersioned(ctx context.Context, version *models.ScheduleVersion, entries []models.ScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	version.ID = "ver-" + strconv.Itoa(s.seq)
	version.Version = s.seq
	version.Status = models.VersionStatusDraft
	s.versions = append(s.versions, *version)
	for i := range entries {
		entries[i].VersionID = version.ID
	}
	s.entries[version.ID] = entries
	return nil
}

func (s *versionWriterStub) FindByID(ctx context.Context, id string) (*models.ScheduleVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.versions {
		if s.versions[i].ID == id {
			v := s.versions[i]
			return &v, nil
		}
	}
	return nil, sql.ErrNoRows
}

type conflictScannerStub struct {
	mu    sync.Mutex
	calls int
}

func (s *conflictScannerStub) Rescan(ctx context.Context, versionID string) ([]models.Conflict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return nil, nil
}

type hintConsumerStub struct {
	mu      sync.Mutex
	items   []models.GenerationHint
	cleared int
}

func (s *hintConsumerStub) ListByScope(ctx context.Context, scope models.Scope) ([]models.GenerationHint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items, nil
}

func (s *hintConsumerStub) ClearScope(ctx context.Context, scope models.Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared++
	s.items = nil
	return nil
}
