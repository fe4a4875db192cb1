package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS client_state (
    key TEXT PRIMARY KEY,
    blob TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteRepository is a file-backed implementation of Repository for
// single-user deployments that run without a Postgres instance.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (or creates) the snapshot database at path.
// Use ":memory:" for an ephemeral database.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create snapshot schema: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Close closes the database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Ping verifies the database file is still usable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Load retrieves the persisted snapshot.
func (r *SQLiteRepository) Load(ctx context.Context) (*Snapshot, error) {
	var blob string
	err := r.db.QueryRowContext(ctx,
		`SELECT blob FROM client_state WHERE key = ?`, StorageKey,
	).Scan(&blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}

	var snapshot Snapshot
	if err := json.Unmarshal([]byte(blob), &snapshot); err != nil {
		return nil, err
	}

	return &snapshot, nil
}

// Save persists the snapshot, replacing any previous one.
func (r *SQLiteRepository) Save(ctx context.Context, snapshot *Snapshot) error {
	blob, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO client_state (key, blob, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE
		SET blob = excluded.blob, updated_at = CURRENT_TIMESTAMP`,
		StorageKey, string(blob),
	)
	return err
}

// Clear removes the persisted snapshot.
func (r *SQLiteRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM client_state WHERE key = ?`, StorageKey)
	return err
}
