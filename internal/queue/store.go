package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smithciaran833/TicketTokenFinal/internal/clock"
	"github.com/smithciaran833/TicketTokenFinal/internal/domain"
)

// Store is the durable work queue, backed by Postgres. Claim uses
// FOR UPDATE SKIP LOCKED so a job id is owned by exactly one in-flight
// worker at a time; delivery is at-least-once across crashes.
type Store struct {
	pool  *pgxpool.Pool
	clock clock.Clock
}

func NewStore(pool *pgxpool.Pool, clk clock.Clock) *Store {
	return &Store{pool: pool, clock: clk}
}

const jobColumns = `id, kind, batch_id, payload, state, attempts, max_attempts, run_at, last_error, cancel_requested, created_at, updated_at`

// Enqueue persists a new queued job. Handlers key their idempotency checks
// on the returned job id.
func (s *Store) Enqueue(ctx context.Context, kind Kind, batchID string, payload any, maxAttempts int) (Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("marshal payload: %w", err)
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	now := s.clock.Now()
	job := Job{
		ID:          uuid.NewString(),
		Kind:        kind,
		BatchID:     batchID,
		Payload:     raw,
		State:       StateQueued,
		MaxAttempts: maxAttempts,
		RunAt:       now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	const stmt = `
INSERT INTO queue_jobs (id, kind, batch_id, payload, state, attempts, max_attempts, run_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8, $8)`
	if _, err := s.pool.Exec(ctx, stmt, job.ID, job.Kind, job.BatchID, job.Payload, job.State, job.MaxAttempts, job.RunAt, now); err != nil {
		return Job{}, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

// Claim takes ownership of the oldest runnable job, marking it running and
// counting the attempt. Returns nil when nothing is runnable.
func (s *Store) Claim(ctx context.Context) (*Job, error) {
	now := s.clock.Now()
	const stmt = `
UPDATE queue_jobs
SET state = 'running', attempts = attempts + 1, updated_at = $2
WHERE id = (
	SELECT id FROM queue_jobs
	WHERE state = 'queued' AND run_at <= $1
	ORDER BY run_at, created_at
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING ` + jobColumns

	job, err := scanJob(s.pool.QueryRow(ctx, stmt, now, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return &job, nil
}

// Complete marks a running job done.
func (s *Store) Complete(ctx context.Context, jobID string) error {
	const stmt = `UPDATE queue_jobs SET state = 'completed', updated_at = $2 WHERE id = $1 AND state = 'running'`
	tag, err := s.pool.Exec(ctx, stmt, jobID, s.clock.Now())
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// Fail records a handler error. The job is requeued with exponential backoff
// until the attempt ceiling is reached or cancellation was requested while
// it ran; then it becomes terminal. Returns true when terminal.
func (s *Store) Fail(ctx context.Context, job *Job, cause error) (terminal bool, err error) {
	now := s.clock.Now()
	msg := cause.Error()

	// Cancellation may have been requested while the job ran; re-read the
	// flag so the next retry is skipped.
	if err := s.pool.QueryRow(ctx, `SELECT cancel_requested FROM queue_jobs WHERE id = $1`, job.ID).
		Scan(&job.CancelRequested); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, domain.ErrJobNotFound
		}
		return false, fmt.Errorf("read cancel flag: %w", err)
	}

	if job.Attempts >= job.MaxAttempts || job.CancelRequested {
		state := StateFailed
		if job.CancelRequested {
			state = StateCancelled
		}
		const stmt = `UPDATE queue_jobs SET state = $2, last_error = $3, updated_at = $4 WHERE id = $1`
		if _, err := s.pool.Exec(ctx, stmt, job.ID, state, msg, now); err != nil {
			return false, fmt.Errorf("fail job: %w", err)
		}
		job.State = state
		return true, nil
	}

	runAt := now.Add(Backoff(job.Attempts))
	const stmt = `UPDATE queue_jobs SET state = 'queued', last_error = $2, run_at = $3, updated_at = $4 WHERE id = $1`
	if _, err := s.pool.Exec(ctx, stmt, job.ID, msg, runAt, now); err != nil {
		return false, fmt.Errorf("requeue job: %w", err)
	}
	job.State = StateQueued
	job.RunAt = runAt
	return false, nil
}

// Cancel removes a job that has not started. Running jobs cannot be
// cancelled outright; see RequestCancel.
func (s *Store) Cancel(ctx context.Context, jobID string) (bool, error) {
	const stmt = `UPDATE queue_jobs SET state = 'cancelled', updated_at = $2 WHERE id = $1 AND state = 'queued'`
	tag, err := s.pool.Exec(ctx, stmt, jobID, s.clock.Now())
	if err != nil {
		return false, fmt.Errorf("cancel job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RequestCancel flags a running job so its next retry attempt is skipped.
// The in-flight unit of work is not interrupted.
func (s *Store) RequestCancel(ctx context.Context, jobID string) error {
	const stmt = `UPDATE queue_jobs SET cancel_requested = TRUE, updated_at = $2 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, stmt, jobID, s.clock.Now())
	if err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// Get fetches a job by id.
func (s *Store) Get(ctx context.Context, jobID string) (Job, error) {
	const query = `SELECT ` + jobColumns + ` FROM queue_jobs WHERE id = $1`
	job, err := scanJob(s.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, domain.ErrJobNotFound
		}
		return Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListBatch returns every sibling job sharing a batch id, oldest first.
func (s *Store) ListBatch(ctx context.Context, batchID string) ([]Job, error) {
	const query = `SELECT ` + jobColumns + ` FROM queue_jobs WHERE batch_id = $1 ORDER BY created_at`
	rows, err := s.pool.Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan batch job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// DeleteTerminal garbage-collects terminal jobs older than the cutoff,
// returning how many were removed. Jobs are retained until callers have had
// a chance to poll the terminal state.
func (s *Store) DeleteTerminal(ctx context.Context, olderThan int) (int64, error) {
	const stmt = `
DELETE FROM queue_jobs
WHERE state IN ('completed', 'failed', 'cancelled')
  AND updated_at < $1 - make_interval(secs => $2)`
	tag, err := s.pool.Exec(ctx, stmt, s.clock.Now(), olderThan)
	if err != nil {
		return 0, fmt.Errorf("delete terminal jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanJob(row pgx.Row) (Job, error) {
	var j Job
	err := row.Scan(
		&j.ID, &j.Kind, &j.BatchID, &j.Payload, &j.State,
		&j.Attempts, &j.MaxAttempts, &j.RunAt, &j.LastError,
		&j.CancelRequested, &j.CreatedAt, &j.UpdatedAt,
	)
	return j, err
}
