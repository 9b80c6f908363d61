package jobs

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job represents a queued background task.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Enqueued time.Time
}

// Handler processes a job. A returned error marks the job failed; the
// queue never retries on its own, failure handling belongs to the owner.
type Handler func(context.Context, Job) error

// FailureHandler is invoked when a handler errors or panics. The queue
// keeps running either way: one bad job must not take down the pool.
type FailureHandler func(context.Context, Job, error)

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	Logger     *zap.Logger
}

// Queue is a bounded in-memory job dispatcher backed by a goroutine pool.
type Queue struct {
	name      string
	handler   Handler
	onFailure FailureHandler

	workers    int
	bufferSize int
	logger     *zap.Logger

	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, onFailure FailureHandler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:       name,
		handler:    handler,
		onFailure:  onFailure,
		workers:    cfg.Workers,
		bufferSize: cfg.BufferSize,
		logger:     cfg.Logger,
		jobs:       make(chan Job, cfg.BufferSize),
	}
}

// Start begins worker consumption. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i + 1)
	}
	q.started = true
	q.logger.Sugar().Infow("queue started", "queue", q.name, "workers", q.workers)
}

// Stop cancels workers and waits for them to exit. In-flight handlers
// observe the cancelled context and are expected to wind down.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Sugar().Infow("queue stopped", "queue", q.name)
}

// Enqueue pushes a job onto the queue.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	ctx := q.ctx
	started := q.started
	q.mu.Unlock()

	if !started {
		return fmt.Errorf("queue %s not started", q.name)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("queue %s stopped: %w", q.name, ctx.Err())
	case q.jobs <- job:
		return nil
	}
}

func (q *Queue) worker(workerID int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.run(job)
		}
	}
}

// run executes a single job, converting panics into failures so a
// crashing handler fails only its own job.
func (q *Queue) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("job panic: %v", r)
			q.logger.Sugar().Errorw("job panicked",
				"queue", q.name, "job_id", job.ID, "type", job.Type,
				"panic", r, "stack", string(debug.Stack()))
			if q.onFailure != nil {
				q.onFailure(q.ctx, job, err)
			}
		}
	}()

	if err := q.handler(q.ctx, job); err != nil {
		q.logger.Sugar().Warnw("job failed", "queue", q.name, "job_id", job.ID, "type", job.Type, "error", err)
		if q.onFailure != nil {
			q.onFailure(q.ctx, job, err)
		}
	}
}
