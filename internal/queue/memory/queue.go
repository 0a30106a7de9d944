// Package memory provides an in-process job queue for local development and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

// Queue is a mutex-guarded job table implementing scrape.JobQueue.
type Queue struct {
	mu     sync.Mutex
	clock  scrape.Clock
	nextID int64
	jobs   map[int64]*scrape.Job
}

// NewQueue constructs an empty queue. A nil clock falls back to wall time.
func NewQueue(clock scrape.Clock) *Queue {
	return &Queue{
		clock: clock,
		jobs:  make(map[int64]*scrape.Job),
	}
}

func (q *Queue) now() time.Time {
	if q.clock == nil {
		return time.Now().UTC()
	}
	return q.clock.Now()
}

// Enqueue inserts a queued job.
func (q *Queue) Enqueue(ctx context.Context, jobType scrape.JobType, payload json.RawMessage) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("enqueue canceled: %w", err)
	}
	if !jobType.Valid() {
		return 0, fmt.Errorf("unknown job type %q", jobType)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	now := q.now()
	q.jobs[q.nextID] = &scrape.Job{
		ID:        q.nextID,
		Type:      jobType,
		Payload:   append(json.RawMessage(nil), payload...),
		Status:    scrape.JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return q.nextID, nil
}

// Claim moves the oldest queued job to in_progress and returns a copy.
func (q *Queue) Claim(ctx context.Context, workerID string) (*scrape.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("claim canceled: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	var next *scrape.Job
	for _, job := range q.jobs {
		if job.Status != scrape.JobStatusQueued {
			continue
		}
		if next == nil || job.CreatedAt.Before(next.CreatedAt) ||
			(job.CreatedAt.Equal(next.CreatedAt) && job.ID < next.ID) {
			next = job
		}
	}
	if next == nil {
		return nil, nil
	}
	now := q.now()
	next.Status = scrape.JobStatusInProgress
	next.ClaimedBy = workerID
	next.ClaimedAt = &now
	next.UpdatedAt = now
	out := cloneJob(next)
	return &out, nil
}

// Complete marks an in-progress job done.
func (q *Queue) Complete(_ context.Context, jobID int64, counters scrape.JobCounters) error {
	return q.finish(jobID, scrape.JobStatusDone, "", counters)
}

// Fail marks an in-progress job as errored.
func (q *Queue) Fail(_ context.Context, jobID int64, message string) error {
	return q.finish(jobID, scrape.JobStatusError, message, scrape.JobCounters{})
}

func (q *Queue) finish(jobID int64, status scrape.JobStatus, message string, counters scrape.JobCounters) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok || job.Status != scrape.JobStatusInProgress {
		return fmt.Errorf("job %d not in progress: %w", jobID, scrape.ErrNotFound)
	}
	job.Status = status
	job.ErrorMessage = message
	if status == scrape.JobStatusDone {
		job.Counters = counters
	}
	job.UpdatedAt = q.now()
	return nil
}

// Status returns a snapshot of the job.
func (q *Queue) Status(_ context.Context, jobID int64) (scrape.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return scrape.Job{}, fmt.Errorf("job %d: %w", jobID, scrape.ErrNotFound)
	}
	return cloneJob(job), nil
}

// SweepStale fails in-progress jobs whose lease started before the cutoff.
func (q *Queue) SweepStale(_ context.Context, claimedBefore time.Time) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var swept int64
	now := q.now()
	for _, job := range q.jobs {
		if job.Status != scrape.JobStatusInProgress || job.ClaimedAt == nil {
			continue
		}
		if job.ClaimedAt.Before(claimedBefore) {
			job.Status = scrape.JobStatusError
			job.ErrorMessage = scrape.LeaseExpiredMessage
			job.UpdatedAt = now
			swept++
		}
	}
	return swept, nil
}

// Resubmit enqueues a copy of an errored job.
func (q *Queue) Resubmit(ctx context.Context, jobID int64) (int64, error) {
	q.mu.Lock()
	job, ok := q.jobs[jobID]
	if !ok || job.Status != scrape.JobStatusError {
		q.mu.Unlock()
		return 0, fmt.Errorf("job %d not in error state: %w", jobID, scrape.ErrNotFound)
	}
	jobType, payload := job.Type, job.Payload
	q.mu.Unlock()
	return q.Enqueue(ctx, jobType, payload)
}

// Jobs returns every job ordered by id. Intended for tests and debugging.
func (q *Queue) Jobs() []scrape.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]scrape.Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		out = append(out, cloneJob(job))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func cloneJob(job *scrape.Job) scrape.Job {
	out := *job
	out.Payload = append(json.RawMessage(nil), job.Payload...)
	if job.ClaimedAt != nil {
		at := *job.ClaimedAt
		out.ClaimedAt = &at
	}
	return out
}
