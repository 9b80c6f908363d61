package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/edustack/timetable-api/internal/dto"
	"github.com/edustack/timetable-api/internal/models"
	"github.com/edustack/timetable-api/internal/repository"
	"github.com/edustack/timetable-api/internal/solver"
	appErrors "github.com/edustack/timetable-api/pkg/errors"
	"github.com/edustack/timetable-api/pkg/events"
	"github.com/edustack/timetable-api/pkg/jobs"
)

type generationJobRepository interface {
	CreateLeased(ctx context.Context, job *models.GenerationJob) error
	FindByID(ctx context.Context, id string) (*models.GenerationJob, error)
	TransitionState(ctx context.Context, id string, from []models.JobState, next models.JobState) error
	UpdateProgress(ctx context.Context, id string, progress int) error
	Complete(ctx context.Context, id, versionID string) error
	Fail(ctx context.Context, id, message string) error
	Cancel(ctx context.Context, id string) error
	ListByScope(ctx context.Context, scope models.Scope, limit int) ([]models.GenerationJob, error)
}

type domainLoader interface {
	Load(ctx context.Context, scope models.Scope) (*models.SchedulingDomain, error)
}

type constraintSnapshotter interface {
	Snapshot(ctx context.Context, academicYearID string) ([]models.Constraint, error)
}

type versionWriter interface {
	CreateVersioned(ctx context.Context, version *models.ScheduleVersion, entries []models.ScheduleEntry) error
	FindByID(ctx context.Context, id string) (*models.ScheduleVersion, error)
}

type conflictScanner interface {
	Rescan(ctx context.Context, versionID string) ([]models.Conflict, error)
}

type hintConsumer interface {
	ListByScope(ctx context.Context, scope models.Scope) ([]models.GenerationHint, error)
	ClearScope(ctx context.Context, scope models.Scope) error
}

type generationMetrics interface {
	ObserveSolve(outcome string, elapsed time.Duration)
}

// SolverSettings bound a generation run.
type SolverSettings struct {
	TimeBudget       time.Duration
	RepairIterations int
	DefaultSeed      int64
}

// GenerationService orchestrates asynchronous timetable generation. Jobs
// run on a worker pool; at most one non-terminal job exists per scope, and
// cancellation is cooperative through a per-job flag the solver polls.
type GenerationService struct {
	jobRepo     generationJobRepository
	domains     domainLoader
	constraints constraintSnapshotter
	versions    versionWriter
	scanner     conflictScanner
	hints       hintConsumer
	metrics     generationMetrics
	publisher   events.Publisher
	settings    SolverSettings
	validator   *validator.Validate
	logger      *zap.Logger

	queue *jobs.Queue

	mu    sync.Mutex
	flags map[string]*solver.Flag
}

// NewGenerationService wires the orchestrator dependencies. Call StartQueue
// before submitting jobs and StopQueue on shutdown.
func NewGenerationService(
	jobRepo generationJobRepository,
	domains domainLoader,
	constraints constraintSnapshotter,
	versions versionWriter,
	scanner conflictScanner,
	hints hintConsumer,
	metrics generationMetrics,
	publisher events.Publisher,
	settings SolverSettings,
	queueCfg jobs.QueueConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *GenerationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	s := &GenerationService{
		jobRepo:     jobRepo,
		domains:     domains,
		constraints: constraints,
		versions:    versions,
		scanner:     scanner,
		hints:       hints,
		metrics:     metrics,
		publisher:   publisher,
		settings:    settings,
		validator:   validate,
		logger:      logger,
		flags:       make(map[string]*solver.Flag),
	}
	s.queue = jobs.NewQueue("generation", s.handleJob, s.handleFailure, queueCfg)
	return s
}

// StartQueue launches the worker pool.
func (s *GenerationService) StartQueue(ctx context.Context) {
	s.queue.Start(ctx)
}

// StopQueue drains workers on shutdown.
func (s *GenerationService) StopQueue() {
	s.queue.Stop()
}

// Submit validates, leases the scope and enqueues a generation run. The
// database lease rejects a second active job for the same scope.
func (s *GenerationService) Submit(ctx context.Context, req dto.SubmitGenerationRequest) (*dto.SubmitGenerationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation request")
	}

	budget := s.settings.TimeBudget
	if req.TimeBudget != "" {
		parsed, err := time.ParseDuration(req.TimeBudget)
		if err != nil || parsed <= 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "timeBudget must be a positive duration")
		}
		budget = parsed
	}
	seed := s.settings.DefaultSeed
	if req.Seed != nil {
		seed = *req.Seed
	}

	params, err := json.Marshal(generationParams{
		Seed:       seed,
		TimeBudget: budget.String(),
		Extra:      req.Parameters,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode parameters")
	}

	job := &models.GenerationJob{
		Scope:      req.Scope(),
		Parameters: types.JSONText(params),
	}
	if err := s.jobRepo.CreateLeased(ctx, job); err != nil {
		if isActiveJobError(err) {
			return nil, appErrors.ErrJobAlreadyRunning
		}
		s.logger.Sugar().Errorw("failed to create generation job", "error", err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create generation job")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "generation", Payload: job.Scope}); err != nil {
		// The lease is already taken; release it so the scope is not stuck.
		_ = s.jobRepo.Fail(ctx, job.ID, "failed to enqueue job")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue generation job")
	}

	return &dto.SubmitGenerationResponse{JobID: job.ID, State: models.JobStatePending}, nil
}

// Regenerate submits a fresh run derived from an existing version's scope.
// The produced draft records the source version as its predecessor.
func (s *GenerationService) Regenerate(ctx context.Context, versionID string, req dto.RegenerateRequest) (*dto.SubmitGenerationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid regenerate request")
	}
	version, err := s.versions.FindByID(ctx, versionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule version not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load version")
	}

	return s.Submit(ctx, dto.SubmitGenerationRequest{
		ScopeQuery: dto.ScopeQuery{SchoolID: version.SchoolID, YearID: version.YearID, TermID: version.TermID},
		Seed:       req.Seed,
		Parameters: map[string]any{
			"reason":          req.Reason,
			"replacesVersion": versionID,
			"modifications":   req.Modifications,
		},
	})
}

// Status reports job progress for polling clients.
func (s *GenerationService) Status(ctx context.Context, jobID string) (*dto.JobStatusResponse, error) {
	job, err := s.jobRepo.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "generation job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load job")
	}
	return &dto.JobStatusResponse{
		JobID:           job.ID,
		State:           job.State,
		Progress:        job.Progress,
		ResultVersionID: job.ResultVersionID,
		Error:           job.Error,
	}, nil
}

// Cancel requests cooperative cancellation and returns the job's
// resulting state. Pending jobs flip directly; running jobs observe the
// flag between solver iterations and stop with no version persisted.
// Cancelling a job that already reached a terminal state is a no-op and
// echoes that state back.
func (s *GenerationService) Cancel(ctx context.Context, jobID string) (models.JobState, error) {
	if err := s.jobRepo.Cancel(ctx, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			job, findErr := s.jobRepo.FindByID(ctx, jobID)
			if findErr != nil {
				return "", appErrors.Clone(appErrors.ErrNotFound, "generation job not found")
			}
			return job.State, nil
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel job")
	}

	s.mu.Lock()
	if flag, ok := s.flags[jobID]; ok {
		flag.Set()
	}
	s.mu.Unlock()
	return models.JobStateCancelled, nil
}

// History lists recent jobs for a scope.
func (s *GenerationService) History(ctx context.Context, scope models.Scope, limit int) ([]models.GenerationJob, error) {
	if scope.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "schoolId, yearId and termId are required")
	}
	jobsList, err := s.jobRepo.ListByScope(ctx, scope, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list jobs")
	}
	return jobsList, nil
}

type generationParams struct {
	Seed       int64          `json:"seed"`
	TimeBudget string         `json:"timeBudget"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// handleJob is the queue handler: it runs one solve end to end.
func (s *GenerationService) handleJob(ctx context.Context, job jobs.Job) error {
	start := time.Now()

	if err := s.jobRepo.TransitionState(ctx, job.ID, []models.JobState{models.JobStatePending}, models.JobStateRunning); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Cancelled between enqueue and pickup.
			s.logger.Sugar().Infow("skipping job no longer pending", "job_id", job.ID)
			return nil
		}
		return fmt.Errorf("start job: %w", err)
	}

	record, err := s.jobRepo.FindByID(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}

	var params generationParams
	if len(record.Parameters) > 0 {
		if err := json.Unmarshal(record.Parameters, &params); err != nil {
			return fmt.Errorf("decode job parameters: %w", err)
		}
	}
	budget := s.settings.TimeBudget
	if params.TimeBudget != "" {
		if parsed, parseErr := time.ParseDuration(params.TimeBudget); parseErr == nil && parsed > 0 {
			budget = parsed
		}
	}

	domain, err := s.domains.Load(ctx, record.Scope)
	if err != nil {
		return fmt.Errorf("load scheduling domain: %w", err)
	}
	constraints, err := s.constraints.Snapshot(ctx, record.YearID)
	if err != nil {
		return fmt.Errorf("load constraint snapshot: %w", err)
	}
	var hints []solver.PlacementHint
	if s.hints != nil {
		stored, hintErr := s.hints.ListByScope(ctx, record.Scope)
		if hintErr != nil {
			s.logger.Sugar().Warnw("failed to load generation hints", "job_id", job.ID, "error", hintErr)
		}
		for _, h := range stored {
			hints = append(hints, solver.PlacementHint{
				ClassID:   h.ClassID,
				SubjectID: h.SubjectID,
				Preferred: models.Slot{Day: h.PreferredDay, Period: h.PreferredPeriod},
			})
		}
	}

	flag := &solver.Flag{}
	s.mu.Lock()
	s.flags[job.ID] = flag
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.flags, job.ID)
		s.mu.Unlock()
	}()

	result, err := solver.Solve(solver.Input{
		Domain:              *domain,
		Constraints:         constraints,
		Hints:               hints,
		Seed:                params.Seed,
		TimeBudget:          budget,
		MaxRepairIterations: s.settings.RepairIterations,
		Cancel:              flag,
		Progress: func(pct int) {
			if updateErr := s.jobRepo.UpdateProgress(ctx, job.ID, pct); updateErr != nil {
				s.logger.Sugar().Debugw("failed to update progress", "job_id", job.ID, "error", updateErr)
			}
		},
	})
	if err != nil {
		s.observeSolve("invalid_input", time.Since(start))
		return fmt.Errorf("solve: %w", err)
	}
	if result.Stats.Cancelled {
		s.observeSolve("cancelled", time.Since(start))
		s.logger.Sugar().Infow("generation cancelled", "job_id", job.ID, "elapsed", result.Stats.Elapsed)
		return nil
	}

	unsatisfied, err := json.Marshal(result.UnsatisfiedHard)
	if err != nil {
		return fmt.Errorf("encode violations: %w", err)
	}
	version := &models.ScheduleVersion{
		Scope:             record.Scope,
		OptimizationScore: result.Score,
		ParentJobID:       &record.ID,
		UnsatisfiedHard:   types.JSONText(unsatisfied),
	}
	if err := s.versions.CreateVersioned(ctx, version, result.Entries); err != nil {
		return fmt.Errorf("persist version: %w", err)
	}

	if _, err := s.scanner.Rescan(ctx, version.ID); err != nil {
		s.logger.Sugar().Warnw("initial conflict scan failed", "version_id", version.ID, "error", err)
	}
	if s.hints != nil && len(hints) > 0 {
		if err := s.hints.ClearScope(ctx, record.Scope); err != nil {
			s.logger.Sugar().Warnw("failed to clear consumed hints", "job_id", job.ID, "error", err)
		}
	}

	if err := s.jobRepo.Complete(ctx, job.ID, version.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Raced with a cancel after the solve finished; the draft stays.
			s.logger.Sugar().Infow("job cancelled after solve", "job_id", job.ID, "version_id", version.ID)
			return nil
		}
		return fmt.Errorf("complete job: %w", err)
	}

	s.observeSolve("completed", time.Since(start))
	s.publisher.Publish(ctx, events.JobCompleted, map[string]any{
		"jobId":     job.ID,
		"versionId": version.ID,
		"score":     result.Score,
		"feasible":  len(result.UnsatisfiedHard) == 0,
	})
	s.logger.Sugar().Infow("generation completed",
		"job_id", job.ID, "version_id", version.ID,
		"score", result.Score, "placed", result.Stats.Placed,
		"unsatisfied_hard", len(result.UnsatisfiedHard),
		"elapsed", result.Stats.Elapsed)
	return nil
}

// handleFailure marks a failed or panicked job FAILED so the scope lease
// is released.
func (s *GenerationService) handleFailure(ctx context.Context, job jobs.Job, jobErr error) {
	s.observeSolve("failed", time.Since(job.Enqueued))
	if err := s.jobRepo.Fail(ctx, job.ID, jobErr.Error()); err != nil {
		s.logger.Sugar().Errorw("failed to mark job failed", "job_id", job.ID, "error", err)
	}
}

func (s *GenerationService) observeSolve(outcome string, elapsed time.Duration) {
	if s.metrics != nil {
		s.metrics.ObserveSolve(outcome, elapsed)
	}
}

func isActiveJobError(err error) bool {
	return errors.Is(err, repository.ErrActiveJobExists)
}
