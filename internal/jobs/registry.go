// Package jobs tracks per-file analyses and runs them on a bounded pool.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle stage of a job.
type State string

const (
	StateQueued  State = "queued"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// Job is one analysis of one file.
type Job struct {
	ID          string    `json:"id"`
	FileID      string    `json:"file_id"`
	State       State     `json:"state"`
	SubmittedAt time.Time `json:"submitted_at"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	FinishedAt  time.Time `json:"finished_at,omitzero"`
	Error       string    `json:"error,omitempty"`
}

// Active reports whether the job is queued or running.
func (j Job) Active() bool {
	return j.State == StateQueued || j.State == StateRunning
}

// Registry holds the latest job of every file. At most one job per file is
// active at a time.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job // file ID -> latest job
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		jobs: make(map[string]*Job),
	}
}

// TryStart registers a new queued job for fileID. When a job for the file
// is already active it returns that job and false.
func (r *Registry) TryStart(fileID string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.jobs[fileID]; ok && existing.Active() {
		return *existing, false
	}
	job := &Job{
		ID:          uuid.NewString(),
		FileID:      fileID,
		State:       StateQueued,
		SubmittedAt: time.Now(),
	}
	r.jobs[fileID] = job
	return *job, true
}

// MarkRunning moves the job of fileID to running.
func (r *Registry) MarkRunning(fileID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[fileID]; ok {
		job.State = StateRunning
		job.StartedAt = time.Now()
	}
}

// Finish records the outcome of the job of fileID.
func (r *Registry) Finish(fileID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[fileID]
	if !ok {
		return
	}
	job.FinishedAt = time.Now()
	if err != nil {
		job.State = StateFailed
		job.Error = err.Error()
		return
	}
	job.State = StateDone
}

// Get returns the latest job of fileID.
func (r *Registry) Get(fileID string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[fileID]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// List returns all tracked jobs.
func (r *Registry) List() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		list = append(list, *job)
	}
	return list
}

// Active returns the number of queued or running jobs.
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, job := range r.jobs {
		if job.Active() {
			n++
		}
	}
	return n
}

// PruneFinished removes finished jobs older than timeout. Active jobs are
// never pruned.
func (r *Registry) PruneFinished(timeout time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-timeout)
	count := 0

	for id, job := range r.jobs {
		if !job.Active() && job.FinishedAt.Before(cutoff) {
			delete(r.jobs, id)
			count++
		}
	}
	return count
}

// StartCleanupLoop starts a background goroutine to prune finished jobs.
func (r *Registry) StartCleanupLoop(ctx context.Context, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.PruneFinished(timeout)
			case <-ctx.Done():
				return
			}
		}
	}()
}
