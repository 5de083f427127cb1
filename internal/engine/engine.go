package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/EliosFinance/elios-backend-sub000/internal/challenge"
	"github.com/EliosFinance/elios-backend-sub000/internal/progress"
	"github.com/EliosFinance/elios-backend-sub000/internal/queue"
)

// ErrRetriesExhausted is returned when the in-process conflict retry budget
// runs out. It is transient: the queue's redelivery policy takes over.
var ErrRetriesExhausted = errors.New("save retries exhausted")

// Outcome classifies how a job finished.
type Outcome int

const (
	// OutcomeTransitioned: a transition was computed and persisted.
	OutcomeTransitioned Outcome = iota

	// OutcomeNoop: the record was already terminal, or the job's event does
	// not apply at the current state. Nothing was written.
	OutcomeNoop
)

// Result describes a successfully processed job.
type Result struct {
	Outcome Outcome

	// From and To are the pre- and post-transition states. Equal on a no-op.
	From string
	To   string

	// Conflicts counts optimistic-concurrency losses absorbed in-process
	// before this result was reached.
	Conflicts int
}

// Engine processes one progress job at a time: load the definition, load or
// lazily create the progress record, compute the next state, persist it.
//
// It owns the read-recompute-retry loop around the progress store's version
// check: losing a race against a concurrent worker re-reads the fresh state
// and recomputes, so a transition is always computed from the most recently
// persisted state, never applied blind.
type Engine struct {
	definitions progress.DefinitionRepository
	progress    progress.Repository
	saveRetries int
}

// New creates an engine. saveRetries bounds how many version conflicts a
// single job absorbs before deferring to queue-level redelivery.
func New(definitions progress.DefinitionRepository, progressRepo progress.Repository, saveRetries int) *Engine {
	if saveRetries < 0 {
		saveRetries = 0
	}
	return &Engine{
		definitions: definitions,
		progress:    progressRepo,
		saveRetries: saveRetries,
	}
}

// Process runs one job to a local outcome.
//
// A non-nil error is either fatal (IsFatal reports true: the job can never
// succeed and must be dead-lettered) or transient (nack and let the queue
// redeliver). A nil error means the job is done: a transition was persisted
// or the no-op was confirmed.
func (e *Engine) Process(ctx context.Context, job *queue.Job) (Result, error) {
	def, err := e.definitions.Get(ctx, job.ChallengeID)
	if err != nil {
		return Result{}, fmt.Errorf("load definition for challenge %d: %w", job.ChallengeID, err)
	}

	for attempt := 0; ; attempt++ {
		rec, err := e.progress.GetOrCreate(ctx, job.UserID, job.ChallengeID, def.Initial)
		if err != nil {
			return Result{}, fmt.Errorf("load progress for user %d challenge %d: %w", job.UserID, job.ChallengeID, err)
		}

		next, transitioned, err := challenge.Next(def, rec.CurrentState, job.Event)
		if err != nil {
			return Result{}, fmt.Errorf("compute transition for user %d challenge %d: %w", job.UserID, job.ChallengeID, err)
		}

		if !transitioned {
			return Result{
				Outcome:   OutcomeNoop,
				From:      rec.CurrentState,
				To:        rec.CurrentState,
				Conflicts: attempt,
			}, nil
		}

		from := rec.CurrentState
		rec.CurrentState = next
		if err := e.progress.Save(ctx, rec); err != nil {
			if errors.Is(err, progress.ErrVersionConflict) {
				if attempt >= e.saveRetries {
					return Result{}, fmt.Errorf("user %d challenge %d: %w", job.UserID, job.ChallengeID, ErrRetriesExhausted)
				}
				continue
			}
			return Result{}, fmt.Errorf("save progress for user %d challenge %d: %w", job.UserID, job.ChallengeID, err)
		}

		return Result{
			Outcome:   OutcomeTransitioned,
			From:      from,
			To:        next,
			Conflicts: attempt,
		}, nil
	}
}

// IsFatal reports whether err can never be fixed by retrying: the challenge
// definition is gone, or the stored state no longer exists in the table.
// Fatal jobs are acked off the queue and dead-lettered for manual review.
func IsFatal(err error) bool {
	return errors.Is(err, progress.ErrDefinitionNotFound) ||
		errors.Is(err, challenge.ErrUnknownState)
}
