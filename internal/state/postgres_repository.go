package state

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository. The
// snapshot lives in a single keyed row so Load and Save stay one statement
// each.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL snapshot repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Load retrieves the persisted snapshot.
func (r *PostgresRepository) Load(ctx context.Context) (*Snapshot, error) {
	query := `
		SELECT blob
		FROM client_state
		WHERE key = $1
	`

	var blob []byte
	if err := r.pool.QueryRow(ctx, query, StorageKey).Scan(&blob); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}

	var snapshot Snapshot
	if err := json.Unmarshal(blob, &snapshot); err != nil {
		return nil, err
	}

	return &snapshot, nil
}

// Save persists the snapshot, replacing any previous one.
func (r *PostgresRepository) Save(ctx context.Context, snapshot *Snapshot) error {
	blob, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO client_state (key, blob, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE
		SET blob = EXCLUDED.blob, updated_at = NOW()
	`

	_, err = r.pool.Exec(ctx, query, StorageKey, blob)
	return err
}

// Clear removes the persisted snapshot.
func (r *PostgresRepository) Clear(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM client_state WHERE key = $1`, StorageKey)
	return err
}
