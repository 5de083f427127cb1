package queue

import (
	"context"
	"errors"
)

// ErrLeaseLost reports that a settlement (ack, nack, bury) arrived after the
// job's lease was reaped. The job is no longer this consumer's to settle: it
// is either PENDING again or leased by someone else, so the settlement must
// be dropped rather than clobber the new owner's state.
var ErrLeaseLost = errors.New("job lease lost")

// Queue is the contract for the durable progress-job queue.
//
// Delivery is at least once. Ordering is best-effort FIFO per queue, which
// gives best-effort ordering per (userID, challengeID); the progress store's
// optimistic concurrency check is the correctness backstop when ordering
// slips (see the engine).
type Queue interface {
	// Enqueue durably appends a progress job and returns immediately. It
	// never waits for processing; that is the whole point of the queue.
	Enqueue(ctx context.Context, userID, challengeID int64, event string) (*Job, error)

	// Claim leases up to limit due jobs for processing. A claimed job is
	// invisible to other consumers until it is acked, nacked, buried, or its
	// lease expires.
	Claim(ctx context.Context, limit int) ([]*Job, error)

	// Ack marks a claimed job done. Called for both applied transitions and
	// acknowledged no-ops.
	Ack(ctx context.Context, job *Job) error

	// Nack returns a claimed job for redelivery after a backoff delay,
	// recording cause. If the job's attempts are exhausted it is moved to
	// DEAD instead.
	Nack(ctx context.Context, job *Job, cause error) error

	// Bury moves a claimed job straight to DEAD, recording cause. Used for
	// fatal conditions that retrying can never fix.
	Bury(ctx context.Context, job *Job, cause error) error

	// ReapExpiredLeases returns jobs whose lease expired (worker crashed or
	// exceeded its deadline) to PENDING, and reports how many it reaped.
	ReapExpiredLeases(ctx context.Context) (int, error)

	// ListDead returns the most recently dead-lettered jobs for operator
	// inspection.
	ListDead(ctx context.Context, limit int) ([]*Job, error)

	// Depth reports the number of jobs currently waiting to be claimed.
	Depth(ctx context.Context) (int, error)
}
