package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrAlreadyRunning is returned when the file already has an active job.
	ErrAlreadyRunning = errors.New("analysis already running")
	// ErrQueueFull is returned when too many jobs are waiting for a worker.
	ErrQueueFull = errors.New("analysis queue full")
	// ErrClosed is returned by Submit after Shutdown.
	ErrClosed = errors.New("pool closed")
)

// Task is the work of one job.
type Task func(ctx context.Context) error

// PoolOptions configures a Pool.
type PoolOptions struct {
	Workers    int
	MaxPending int
	Logger     *slog.Logger
}

// Pool runs tasks with at most Workers of them in flight. Submit never
// blocks; tasks wait for a free worker in their own goroutine.
type Pool struct {
	registry   *Registry
	limiter    *semaphore.Weighted
	maxPending int64
	pending    atomic.Int64
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewPool creates a pool that records its jobs in registry.
func NewPool(registry *Registry, opts PoolOptions) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxPending <= 0 {
		opts.MaxPending = 64 * opts.Workers
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		registry:   registry,
		limiter:    semaphore.NewWeighted(int64(opts.Workers)),
		maxPending: int64(opts.MaxPending),
		logger:     opts.Logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Registry returns the registry the pool reports to.
func (p *Pool) Registry() *Registry {
	return p.registry
}

// Submit schedules task for fileID. When the file already has an active job
// it returns that job with ErrAlreadyRunning and schedules nothing, even if
// the queue is full.
func (p *Pool) Submit(fileID string, task Task) (Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return Job{}, ErrClosed
	}
	if job, ok := p.registry.Get(fileID); ok && job.Active() {
		return job, ErrAlreadyRunning
	}
	if p.pending.Load() >= p.maxPending {
		return Job{}, ErrQueueFull
	}

	job, ok := p.registry.TryStart(fileID)
	if !ok {
		return job, ErrAlreadyRunning
	}

	p.pending.Add(1)
	p.wg.Add(1)
	go p.run(job, task)
	return job, nil
}

func (p *Pool) run(job Job, task Task) {
	defer p.wg.Done()

	err := p.limiter.Acquire(p.ctx, 1)
	p.pending.Add(-1)
	if err != nil {
		p.registry.Finish(job.FileID, fmt.Errorf("waiting for worker: %w", err))
		return
	}
	defer p.limiter.Release(1)

	p.registry.MarkRunning(job.FileID)
	p.logger.Debug("job started", "job", job.ID, "file", job.FileID)

	err = p.execute(task)
	p.registry.Finish(job.FileID, err)
	if err != nil {
		p.logger.Warn("job failed", "job", job.ID, "file", job.FileID, "error", err)
		return
	}
	p.logger.Debug("job done", "job", job.ID, "file", job.FileID)
}

func (p *Pool) execute(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(p.ctx)
}

// Pending returns the number of jobs waiting for a worker.
func (p *Pool) Pending() int {
	return int(p.pending.Load())
}

// Shutdown stops accepting jobs and waits for the submitted ones. When ctx
// ends first, running tasks are cancelled and ctx's error is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}
