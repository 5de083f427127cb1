package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresQueue implements Queue on a progress_jobs table.
//
// Claiming runs SELECT ... FOR UPDATE SKIP LOCKED inside a transaction, so
// concurrent consumer processes never lease the same job twice. Leased jobs
// carry a visibility deadline; the reaper returns expired leases to PENDING.
type PostgresQueue struct {
	pool        *pgxpool.Pool
	idGen       IDGenerator
	retry       RetryConfig
	maxAttempts int
	leaseTTL    time.Duration
}

// NewPostgresQueue creates a PostgreSQL-backed job queue.
func NewPostgresQueue(pool *pgxpool.Pool, idGen IDGenerator, retry RetryConfig, maxAttempts int, leaseTTL time.Duration) *PostgresQueue {
	return &PostgresQueue{
		pool:        pool,
		idGen:       idGen,
		retry:       retry,
		maxAttempts: maxAttempts,
		leaseTTL:    leaseTTL,
	}
}

const jobColumns = `id, user_id, challenge_id, event, state, attempt, max_attempts, last_error, not_before, lease_expires_at, created_at`

func scanJob(row interface{ Scan(...any) error }) (*Job, error) {
	var job Job
	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.ChallengeID,
		&job.Event,
		&job.State,
		&job.Attempt,
		&job.MaxAttempts,
		&job.LastError,
		&job.NotBefore,
		&job.LeaseExpiresAt,
		&job.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	return &job, nil
}

// Enqueue durably appends a new PENDING job.
func (q *PostgresQueue) Enqueue(ctx context.Context, userID, challengeID int64, event string) (*Job, error) {
	now := time.Now()
	job := &Job{
		ID:          q.idGen.Generate(),
		UserID:      userID,
		ChallengeID: challengeID,
		Event:       event,
		State:       PENDING,
		Attempt:     1,
		MaxAttempts: q.maxAttempts,
		NotBefore:   now,
		CreatedAt:   now,
	}
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("job validation failed: %w", err)
	}

	query := `
		INSERT INTO progress_jobs (
			id, user_id, challenge_id, event, state, attempt, max_attempts, not_before, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := q.pool.Exec(ctx, query,
		job.ID, job.UserID, job.ChallengeID, job.Event, job.State,
		job.Attempt, job.MaxAttempts, job.NotBefore, job.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return job, nil
}

// Claim atomically leases up to limit due jobs, oldest first.
func (q *PostgresQueue) Claim(ctx context.Context, limit int) ([]*Job, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		SELECT ` + jobColumns + `
		FROM progress_jobs
		WHERE state = $1 AND not_before <= $2
		ORDER BY created_at ASC
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`

	now := time.Now()
	rows, err := tx.Query(ctx, query, PENDING, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending jobs: %w", err)
	}

	var jobs []*Job
	var jobIDs []string
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		jobs = append(jobs, job)
		jobIDs = append(jobIDs, job.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	if len(jobs) == 0 {
		return []*Job{}, nil
	}

	leaseExpiry := now.Add(q.leaseTTL)
	updateQuery := `
		UPDATE progress_jobs
		SET state = $1, lease_expires_at = $2
		WHERE id = ANY($3)
	`
	if _, err := tx.Exec(ctx, updateQuery, LEASED, leaseExpiry, jobIDs); err != nil {
		return nil, fmt.Errorf("failed to lease jobs: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	for _, job := range jobs {
		job.State = LEASED
		expiry := leaseExpiry
		job.LeaseExpiresAt = &expiry
	}
	return jobs, nil
}

// Ack marks a claimed job DONE. All settlements guard on state = LEASED: a
// worker whose lease was reaped no longer owns the row (it is PENDING again
// or re-claimed by another consumer), and its late settlement must not touch
// it. Zero rows updated means the lease was lost and reports ErrLeaseLost.
func (q *PostgresQueue) Ack(ctx context.Context, job *Job) error {
	query := `
		UPDATE progress_jobs
		SET state = $1, lease_expires_at = NULL
		WHERE id = $2 AND state = $3
	`
	result, err := q.pool.Exec(ctx, query, DONE, job.ID, LEASED)
	if err != nil {
		return fmt.Errorf("failed to ack job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("ack job %s: %w", job.ID, ErrLeaseLost)
	}

	job.State = DONE
	job.LeaseExpiresAt = nil
	return nil
}

// Nack schedules a redelivery with backoff, or moves the job to DEAD if its
// attempts are exhausted.
func (q *PostgresQueue) Nack(ctx context.Context, job *Job, cause error) error {
	job.RecordError(cause)

	if !job.CanRetry() {
		return q.Bury(ctx, job, cause)
	}

	job.Attempt++
	job.State = PENDING
	job.NotBefore = time.Now().Add(q.retry.CalculateBackoff(job.Attempt))
	job.LeaseExpiresAt = nil

	query := `
		UPDATE progress_jobs
		SET state = $1, attempt = $2, last_error = $3, not_before = $4, lease_expires_at = NULL
		WHERE id = $5 AND state = $6
	`
	result, err := q.pool.Exec(ctx, query, job.State, job.Attempt, job.LastError, job.NotBefore, job.ID, LEASED)
	if err != nil {
		return fmt.Errorf("failed to nack job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("nack job %s: %w", job.ID, ErrLeaseLost)
	}
	return nil
}

// Bury dead-letters a job.
func (q *PostgresQueue) Bury(ctx context.Context, job *Job, cause error) error {
	job.RecordError(cause)
	job.State = DEAD
	job.LeaseExpiresAt = nil

	query := `
		UPDATE progress_jobs
		SET state = $1, last_error = $2, lease_expires_at = NULL
		WHERE id = $3 AND state = $4
	`
	result, err := q.pool.Exec(ctx, query, DEAD, job.LastError, job.ID, LEASED)
	if err != nil {
		return fmt.Errorf("failed to bury job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("bury job %s: %w", job.ID, ErrLeaseLost)
	}
	return nil
}

// ReapExpiredLeases returns crashed or timed-out leases to PENDING. The
// attempt counter is not advanced here: a lost lease is a delivery that never
// reported back, and at-least-once delivery means it simply runs again.
func (q *PostgresQueue) ReapExpiredLeases(ctx context.Context) (int, error) {
	query := `
		UPDATE progress_jobs
		SET state = $1, lease_expires_at = NULL
		WHERE state = $2 AND lease_expires_at < $3
	`
	result, err := q.pool.Exec(ctx, query, PENDING, LEASED, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to reap expired leases: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// ListDead returns the most recently dead-lettered jobs.
func (q *PostgresQueue) ListDead(ctx context.Context, limit int) ([]*Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM progress_jobs
		WHERE state = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := q.pool.Query(ctx, query, DEAD, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}
	return jobs, nil
}

// Depth reports how many jobs are waiting to be claimed.
func (q *PostgresQueue) Depth(ctx context.Context) (int, error) {
	var depth int
	err := q.pool.QueryRow(ctx, `SELECT COUNT(*) FROM progress_jobs WHERE state = $1`, PENDING).Scan(&depth)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending jobs: %w", err)
	}
	return depth, nil
}
