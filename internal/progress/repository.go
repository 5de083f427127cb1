package progress

import (
	"context"
	"errors"

	"github.com/EliosFinance/elios-backend-sub000/internal/challenge"
)

var (
	// ErrNotFound is returned by Get when no progress has been recorded yet.
	ErrNotFound = errors.New("progress record not found")

	// ErrVersionConflict is returned by Save when another writer updated the
	// record since it was read. The caller must re-read and recompute, never
	// overwrite blindly.
	ErrVersionConflict = errors.New("progress version conflict")

	// ErrDefinitionNotFound is returned when a challenge has no stored
	// definition (deleted, or never existed).
	ErrDefinitionNotFound = errors.New("challenge definition not found")
)

// Repository is the contract for progress record persistence.
type Repository interface {
	// GetOrCreate returns the existing record for (userID, challengeID) or
	// atomically creates one at initialState. Two concurrent first-time
	// callers must converge on a single record.
	GetOrCreate(ctx context.Context, userID, challengeID int64, initialState string) (*Progress, error)

	// Get returns the record, or ErrNotFound.
	Get(ctx context.Context, userID, challengeID int64) (*Progress, error)

	// Save persists CurrentState with an optimistic concurrency check against
	// the Version the record was read at. On success the record's Version and
	// UpdatedAt are refreshed in place; on a lost race it returns
	// ErrVersionConflict and writes nothing.
	Save(ctx context.Context, p *Progress) error
}

// DefinitionRepository is the read-only contract for challenge definitions.
// Definitions are owned and written by the challenge CRUD service.
type DefinitionRepository interface {
	// Get returns the decoded transition table for a challenge, or
	// ErrDefinitionNotFound.
	Get(ctx context.Context, challengeID int64) (*challenge.Definition, error)
}
