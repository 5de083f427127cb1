package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/EliosFinance/elios-backend-sub000/internal/challenge"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL-backed progress repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetOrCreate inserts a fresh record at initialState and re-reads on
// conflict. The composite primary key on (user_id, challenge_id) makes the
// insert race-safe: whichever concurrent creator loses simply reads the row
// the winner wrote.
func (r *PostgresRepository) GetOrCreate(ctx context.Context, userID, challengeID int64, initialState string) (*Progress, error) {
	now := time.Now()

	query := `
		INSERT INTO challenge_progress (user_id, challenge_id, current_state, version, created_at, updated_at)
		VALUES ($1, $2, $3, 1, $4, $4)
		ON CONFLICT (user_id, challenge_id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query, userID, challengeID, initialState, now); err != nil {
		return nil, fmt.Errorf("failed to create progress record: %w", err)
	}

	p, err := r.Get(ctx, userID, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to read progress record after create: %w", err)
	}
	return p, nil
}

// Get retrieves the record for (userID, challengeID).
func (r *PostgresRepository) Get(ctx context.Context, userID, challengeID int64) (*Progress, error) {
	query := `
		SELECT user_id, challenge_id, current_state, version, created_at, updated_at
		FROM challenge_progress
		WHERE user_id = $1 AND challenge_id = $2
	`

	var p Progress
	err := r.pool.QueryRow(ctx, query, userID, challengeID).Scan(
		&p.UserID,
		&p.ChallengeID,
		&p.CurrentState,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get progress record: %w", err)
	}
	return &p, nil
}

// Save performs the conditional update that makes concurrent workers safe:
// the row is only written if its version still matches the one this record
// was read at. Zero rows affected means another writer got there first.
func (r *PostgresRepository) Save(ctx context.Context, p *Progress) error {
	now := time.Now()

	query := `
		UPDATE challenge_progress
		SET current_state = $3, version = version + 1, updated_at = $4
		WHERE user_id = $1 AND challenge_id = $2 AND version = $5
	`

	result, err := r.pool.Exec(ctx, query, p.UserID, p.ChallengeID, p.CurrentState, now, p.Version)
	if err != nil {
		return fmt.Errorf("failed to save progress record: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	p.Version++
	p.UpdatedAt = now
	return nil
}

// PostgresDefinitionRepository implements DefinitionRepository over the
// challenge_definitions table maintained by the challenge CRUD service.
type PostgresDefinitionRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresDefinitionRepository creates a new PostgreSQL-backed definition repository.
func NewPostgresDefinitionRepository(pool *pgxpool.Pool) *PostgresDefinitionRepository {
	return &PostgresDefinitionRepository{pool: pool}
}

// Get fetches and decodes the transition table for a challenge.
func (r *PostgresDefinitionRepository) Get(ctx context.Context, challengeID int64) (*challenge.Definition, error) {
	query := `SELECT document FROM challenge_definitions WHERE id = $1`

	var document []byte
	err := r.pool.QueryRow(ctx, query, challengeID).Scan(&document)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrDefinitionNotFound, challengeID)
		}
		return nil, fmt.Errorf("failed to get challenge definition: %w", err)
	}

	def, err := challenge.Decode(challengeID, document)
	if err != nil {
		return nil, fmt.Errorf("failed to decode challenge definition %d: %w", challengeID, err)
	}
	return def, nil
}
