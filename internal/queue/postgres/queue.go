// Package postgres implements the lease-based job queue on a Postgres table.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/headline-scraper/internal/database"
	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

const defaultTable = "scrape_jobs"

// Queue is a scrape.JobQueue backed by Postgres row locks.
type Queue struct {
	pool  database.Pool
	table string
}

// New wraps an existing pool. An empty table name selects scrape_jobs.
func New(pool database.Pool, table string) (*Queue, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !database.ValidIdentifier(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Queue{pool: pool, table: table}, nil
}

const jobColumns = `id, job_type, payload, status, COALESCE(error_message, ''),
	links_found, links_skipped, articles_saved, errors,
	COALESCE(claimed_by, ''), claimed_at, created_at, updated_at`

// Enqueue inserts a queued job and returns its id.
func (q *Queue) Enqueue(ctx context.Context, jobType scrape.JobType, payload json.RawMessage) (int64, error) {
	if !jobType.Valid() {
		return 0, fmt.Errorf("unknown job type %q", jobType)
	}
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (job_type, payload, status)
VALUES ($1, $2, $3)
RETURNING id`, q.table)
	var id int64
	if err := q.pool.QueryRow(ctx, query, string(jobType), []byte(payload), string(scrape.JobStatusQueued)).Scan(&id); err != nil {
		return 0, fmt.Errorf("enqueue %s job: %w", jobType, err)
	}
	return id, nil
}

// Claim locks the oldest queued row, skipping rows other workers hold, and
// moves it to in_progress in the same statement.
func (q *Queue) Claim(ctx context.Context, workerID string) (*scrape.Job, error) {
	query := fmt.Sprintf(`
WITH next_job AS (
	SELECT id FROM %[1]s
	WHERE status = $1
	ORDER BY created_at, id
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
UPDATE %[1]s AS j
SET status = $2, claimed_by = $3, claimed_at = now(), updated_at = now()
FROM next_job
WHERE j.id = next_job.id
RETURNING %[2]s`, q.table, qualifiedColumns)
	job, err := scanJob(q.pool.QueryRow(ctx, query,
		string(scrape.JobStatusQueued), string(scrape.JobStatusInProgress), workerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return &job, nil
}

// Complete moves an in-progress job to done with its counters.
func (q *Queue) Complete(ctx context.Context, jobID int64, counters scrape.JobCounters) error {
	query := fmt.Sprintf(`
UPDATE %s
SET status = $1, links_found = $2, links_skipped = $3, articles_saved = $4, errors = $5, updated_at = now()
WHERE id = $6 AND status = $7`, q.table)
	tag, err := q.pool.Exec(ctx, query,
		string(scrape.JobStatusDone),
		counters.LinksFound, counters.LinksSkipped, counters.ArticlesSaved, counters.Errors,
		jobID, string(scrape.JobStatusInProgress))
	if err != nil {
		return fmt.Errorf("complete job %d: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %d not in progress: %w", jobID, scrape.ErrNotFound)
	}
	return nil
}

// Fail moves an in-progress job to error.
func (q *Queue) Fail(ctx context.Context, jobID int64, message string) error {
	query := fmt.Sprintf(`
UPDATE %s
SET status = $1, error_message = $2, updated_at = now()
WHERE id = $3 AND status = $4`, q.table)
	tag, err := q.pool.Exec(ctx, query,
		string(scrape.JobStatusError), message, jobID, string(scrape.JobStatusInProgress))
	if err != nil {
		return fmt.Errorf("fail job %d: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %d not in progress: %w", jobID, scrape.ErrNotFound)
	}
	return nil
}

// Status returns the current row for a job.
func (q *Queue) Status(ctx context.Context, jobID int64) (scrape.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, jobColumns, q.table)
	job, err := scanJob(q.pool.QueryRow(ctx, query, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return scrape.Job{}, fmt.Errorf("job %d: %w", jobID, scrape.ErrNotFound)
	}
	if err != nil {
		return scrape.Job{}, fmt.Errorf("load job %d: %w", jobID, err)
	}
	return job, nil
}

// SweepStale fails in-progress jobs whose lease began before the cutoff.
func (q *Queue) SweepStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	query := fmt.Sprintf(`
UPDATE %s
SET status = $1, error_message = $2, updated_at = now()
WHERE status = $3 AND claimed_at < $4`, q.table)
	tag, err := q.pool.Exec(ctx, query,
		string(scrape.JobStatusError), scrape.LeaseExpiredMessage,
		string(scrape.JobStatusInProgress), claimedBefore)
	if err != nil {
		return 0, fmt.Errorf("sweep stale jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Resubmit enqueues a new job with the type and payload of an errored job.
func (q *Queue) Resubmit(ctx context.Context, jobID int64) (int64, error) {
	query := fmt.Sprintf(`
INSERT INTO %[1]s (job_type, payload, status)
SELECT job_type, payload, $1 FROM %[1]s
WHERE id = $2 AND status = $3
RETURNING id`, q.table)
	var id int64
	err := q.pool.QueryRow(ctx, query,
		string(scrape.JobStatusQueued), jobID, string(scrape.JobStatusError)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("job %d not in error state: %w", jobID, scrape.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("resubmit job %d: %w", jobID, err)
	}
	return id, nil
}

// Close releases the pool.
func (q *Queue) Close() {
	if q == nil || q.pool == nil {
		return
	}
	q.pool.Close()
}

const qualifiedColumns = `j.id, j.job_type, j.payload, j.status, COALESCE(j.error_message, ''),
	j.links_found, j.links_skipped, j.articles_saved, j.errors,
	COALESCE(j.claimed_by, ''), j.claimed_at, j.created_at, j.updated_at`

func scanJob(row pgx.Row) (scrape.Job, error) {
	var (
		job       scrape.Job
		jobType   string
		status    string
		payload   []byte
		claimedAt *time.Time
	)
	err := row.Scan(
		&job.ID, &jobType, &payload, &status, &job.ErrorMessage,
		&job.Counters.LinksFound, &job.Counters.LinksSkipped, &job.Counters.ArticlesSaved, &job.Counters.Errors,
		&job.ClaimedBy, &claimedAt, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return scrape.Job{}, err
	}
	job.Type = scrape.JobType(jobType)
	job.Status = scrape.JobStatus(status)
	job.Payload = payload
	job.ClaimedAt = claimedAt
	return job, nil
}
