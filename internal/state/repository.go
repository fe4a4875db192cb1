package state

import (
	"context"
	"errors"
)

// ErrSnapshotNotFound is returned by Load when no snapshot has been
// persisted yet.
var ErrSnapshotNotFound = errors.New("no persisted snapshot")

// Repository persists the client snapshot under StorageKey.
type Repository interface {
	// Load retrieves the persisted snapshot.
	// Returns ErrSnapshotNotFound if nothing has been stored yet.
	Load(ctx context.Context) (*Snapshot, error)

	// Save persists the snapshot, replacing any previous one.
	Save(ctx context.Context, snapshot *Snapshot) error

	// Clear removes the persisted snapshot.
	Clear(ctx context.Context) error
}
