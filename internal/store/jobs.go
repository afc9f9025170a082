// ABOUTME: Store methods for the jobs queue and job_runs bookkeeping.
// ABOUTME: Claim uses FOR UPDATE SKIP LOCKED; outcomes clear the claim markers.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Job statuses. succeeded and dead are terminal; failed rows become
// re-claimable once next_run_at passes.
const (
	JobPending   = "pending"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
	JobDead      = "dead"
)

// Job is a claimed unit of deferred work. Attempts is the claim-time value:
// the count of attempts made before this one.
type Job struct {
	ID          uuid.UUID
	JobType     string
	Payload     json.RawMessage
	Attempts    int
	MaxAttempts int
	NextRunAt   *time.Time
	CreatedAt   time.Time
}

// claimJobsSQL atomically marks up to $2 eligible jobs as claimed by $1.
// Eligible: pending or failed, due, and not currently locked. SKIP LOCKED
// makes concurrent claimers pass over rows another transaction is claiming,
// so no two workers can claim the same row.
const claimJobsSQL = `
WITH eligible AS (
    SELECT id FROM jobs
    WHERE status IN ('pending', 'failed')
      AND next_run_at <= now()
      AND locked_at IS NULL
    ORDER BY next_run_at ASC, created_at ASC
    FOR UPDATE SKIP LOCKED
    LIMIT $2
)
UPDATE jobs j
SET locked_by = $1, locked_at = now(), updated_at = now()
FROM eligible e
WHERE j.id = e.id
RETURNING j.id, j.job_type, j.payload, j.attempts, j.max_attempts, j.next_run_at, j.created_at`

// ClaimJobs atomically claims up to limit eligible jobs for workerID.
// Returns an empty slice when nothing is due. The returned jobs are ordered
// oldest-eligible-first.
func (s *Store) ClaimJobs(ctx context.Context, workerID string, limit int) ([]Job, error) {
	rows, err := s.pool.Query(ctx, claimJobsSQL, workerID, limit)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.JobType, &j.Payload, &j.Attempts, &j.MaxAttempts, &j.NextRunAt, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("claim jobs: scan: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}

	// UPDATE ... RETURNING does not preserve the CTE's ordering; re-sort so
	// the batch is processed oldest-eligible-first.
	sort.Slice(jobs, func(i, k int) bool {
		a, b := jobs[i], jobs[k]
		if a.NextRunAt != nil && b.NextRunAt != nil && !a.NextRunAt.Equal(*b.NextRunAt) {
			return a.NextRunAt.Before(*b.NextRunAt)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return jobs, nil
}

// RecordSuccess marks a job succeeded, clearing the claim markers and any
// previous error. Attempts stays at its claim-time value.
func (s *Store) RecordSuccess(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'succeeded', locked_by = NULL, locked_at = NULL,
		    last_error = NULL, updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("record success %s: %w", id, err)
	}
	return nil
}

// RecordFailure records a failed attempt: attempts is the new cumulative
// count, nextRunAt the next eligibility time (nil dead-letters the job), and
// lastError the stringified failure reason. Claim markers are cleared either way.
func (s *Store) RecordFailure(ctx context.Context, id uuid.UUID, attempts int, nextRunAt *time.Time, lastError string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status     = CASE WHEN $3::timestamptz IS NULL THEN 'dead' ELSE 'failed' END,
		    attempts   = $2,
		    next_run_at = $3,
		    last_error = $4,
		    locked_by = NULL, locked_at = NULL, updated_at = now()
		WHERE id = $1`, id, attempts, nextRunAt, lastError)
	if err != nil {
		return fmt.Errorf("record failure %s: %w", id, err)
	}
	return nil
}

// EnqueueJob inserts a new job and returns its ID. maxAttempts of zero or
// less uses the table default. runAfter defaults to now() when nil.
func (s *Store) EnqueueJob(ctx context.Context, jobType string, payload json.RawMessage, maxAttempts int, runAfter *time.Time) (uuid.UUID, error) {
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	runAt := time.Now()
	if runAfter != nil {
		runAt = *runAfter
	}
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO jobs (job_type, payload, max_attempts, next_run_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`, jobType, payload, maxAttempts, runAt).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("enqueue job: %w", err)
	}
	return id, nil
}

// EnqueueUniqueJob inserts a job unless a pending job with the same
// (job_type, dedupeKey) already exists. Used for the recurring self-enqueued
// job types so overlapping schedules cannot pile up duplicates. maxAttempts
// of zero or less uses the default retry budget.
// Returns uuid.Nil, false when the enqueue was deduplicated.
func (s *Store) EnqueueUniqueJob(ctx context.Context, jobType string, payload json.RawMessage, dedupeKey string, maxAttempts int) (uuid.UUID, bool, error) {
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	// The ON CONFLICT WHERE clause must imply the partial index predicate of
	// idx_jobs_dedupe, including dedupe_key IS NOT NULL, or Postgres refuses
	// to infer the arbiter index (42P10).
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO jobs (job_type, payload, dedupe_key, max_attempts)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_type, dedupe_key) WHERE status = 'pending' AND dedupe_key IS NOT NULL DO NOTHING
		RETURNING id`, jobType, payload, dedupeKey, maxAttempts).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("enqueue unique job: %w", err)
	}
	return id, true, nil
}

// RecoverStaleLocks clears claim markers on non-terminal jobs whose lock is
// older than olderThan, making them claimable again. Covers workers that
// crashed mid-batch (at-least-once delivery). Returns the number recovered.
func (s *Store) RecoverStaleLocks(ctx context.Context, olderThan time.Duration) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET locked_by = NULL, locked_at = NULL, updated_at = now()
		WHERE locked_at IS NOT NULL
		  AND locked_at < now() - ($1 * interval '1 second')
		  AND status IN ('pending', 'failed')`,
		int(olderThan.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("recover stale locks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// JobRow is the full job record as returned by GetJob and ListJobs.
type JobRow struct {
	ID          uuid.UUID
	JobType     string
	Payload     json.RawMessage
	Status      string
	Attempts    int
	MaxAttempts int
	NextRunAt   *time.Time
	LockedBy    *string
	LockedAt    *time.Time
	LastError   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const jobColumns = "id, job_type, payload, status, attempts, max_attempts, next_run_at, locked_by, locked_at, last_error, created_at, updated_at"

// GetJob returns the job with the given id, or nil if not found.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*JobRow, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = $1", id)
	j, err := scanJobRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return j, nil
}

// JobFilter narrows ListJobs. Zero values mean "no filter".
type JobFilter struct {
	Status  string
	JobType string
	// Keyset cursor: return rows strictly older than (AfterTime, AfterID).
	AfterTime *time.Time
	AfterID   *uuid.UUID
	Limit     int
}

// ListJobs returns jobs newest-first with optional status/type filters and
// keyset pagination on (created_at DESC, id DESC).
func (s *Store) ListJobs(ctx context.Context, f JobFilter) ([]JobRow, error) {
	psql := sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	sb := psql.Select(jobColumns).
		From("jobs").
		OrderBy("created_at DESC, id DESC").
		Limit(uint64(f.Limit)) //nolint:gosec // G115: limit validated by caller

	if f.Status != "" {
		sb = sb.Where(sq.Eq{"status": f.Status})
	}
	if f.JobType != "" {
		sb = sb.Where(sq.Eq{"job_type": f.JobType})
	}
	if f.AfterTime != nil && f.AfterID != nil {
		sb = sb.Where("(created_at, id) < (?, ?)", *f.AfterTime, *f.AfterID)
	}

	query, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("list jobs: build query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var result []JobRow
	for rows.Next() {
		j, err := scanJobRow(rows)
		if err != nil {
			return nil, fmt.Errorf("list jobs: scan: %w", err)
		}
		result = append(result, *j)
	}
	return result, rows.Err()
}

func scanJobRow(row pgx.Row) (*JobRow, error) {
	var j JobRow
	err := row.Scan(&j.ID, &j.JobType, &j.Payload, &j.Status, &j.Attempts,
		&j.MaxAttempts, &j.NextRunAt, &j.LockedBy, &j.LockedAt, &j.LastError,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// ── Job runs ──────────────────────────────────────────────────────────────────

// CreateRun inserts a job_runs row for one invocation of the run loop and
// returns its id.
func (s *Store) CreateRun(ctx context.Context, workerID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO job_runs (worker_id) VALUES ($1) RETURNING id`, workerID).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create run: %w", err)
	}
	return id, nil
}

// FinishRun records the final counters and finished_at on a job_runs row.
// The row is never mutated again afterwards.
func (s *Store) FinishRun(ctx context.Context, runID uuid.UUID, processed, succeeded, failed int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE job_runs
		SET finished_at = now(), processed_count = $2, success_count = $3, failed_count = $4
		WHERE id = $1`, runID, processed, succeeded, failed)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	return nil
}
