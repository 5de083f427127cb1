package queue

import (
	"fmt"
	"time"
)

// State tracks a progress job through the queue.
type State string

const (
	// PENDING: job is waiting to be claimed (initial state, and the state a
	// nacked job returns to once its backoff delay elapses).
	PENDING State = "PENDING"

	// LEASED: job is held by a worker under a visibility timeout. If the
	// lease expires without an ack, the reaper returns it to PENDING.
	LEASED State = "LEASED"

	// DONE: job was processed to a terminal outcome (transition applied, or
	// acknowledged no-op). Terminal.
	DONE State = "DONE"

	// DEAD: job failed fatally or exhausted its retry attempts. Kept for
	// operator inspection, never retried automatically. Terminal.
	DEAD State = "DEAD"
)

// IsTerminal returns true if the queue will never hand this job out again.
func (s State) IsTerminal() bool {
	return s == DONE || s == DEAD
}

// IsValid returns true if the state is a recognized queue state.
func (s State) IsValid() bool {
	switch s {
	case PENDING, LEASED, DONE, DEAD:
		return true
	default:
		return false
	}
}

// Job is one queued progress request: advance (userID, challengeID), firing
// Event if set, otherwise auto-advancing. Jobs are delivered at least once;
// the progress store's version check makes duplicate delivery harmless.
type Job struct {
	// ID is a ULID: unique and time-sortable, so id order tracks enqueue order.
	ID string

	UserID      int64
	ChallengeID int64

	// Event to fire. Empty means auto-advance one step.
	Event string

	State State

	// Attempt is the current delivery attempt (1-indexed).
	Attempt int

	// MaxAttempts caps transient retries; the attempt that exhausts it moves
	// the job to DEAD.
	MaxAttempts int

	// LastError is the message from the most recent failure, nil if none.
	LastError *string

	// NotBefore delays redelivery after a nack (backoff).
	NotBefore time.Time

	// LeaseExpiresAt is the visibility deadline while LEASED, nil otherwise.
	LeaseExpiresAt *time.Time

	CreatedAt time.Time
}

// CanRetry returns true if the job has transient retry attempts remaining.
func (j *Job) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}

// RecordError stores the error message from a failed attempt.
func (j *Job) RecordError(err error) {
	if err != nil {
		msg := err.Error()
		j.LastError = &msg
	}
}

// Validate checks if the job has valid data.
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if j.UserID <= 0 {
		return fmt.Errorf("user ID must be positive, got %d", j.UserID)
	}
	if j.ChallengeID <= 0 {
		return fmt.Errorf("challenge ID must be positive, got %d", j.ChallengeID)
	}
	if !j.State.IsValid() {
		return fmt.Errorf("invalid job state: %s", j.State)
	}
	if j.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", j.MaxAttempts)
	}
	if j.Attempt < 1 {
		return fmt.Errorf("attempt must be at least 1, got %d", j.Attempt)
	}
	return nil
}
