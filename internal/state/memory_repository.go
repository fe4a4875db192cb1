package state

import (
	"context"
	"encoding/json"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use PostgresRepository or
// SQLiteRepository.
type InMemoryRepository struct {
	mu   sync.RWMutex
	blob []byte
}

// NewInMemoryRepository creates a new in-memory snapshot repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

// Load retrieves the persisted snapshot.
func (r *InMemoryRepository) Load(_ context.Context) (*Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.blob == nil {
		return nil, ErrSnapshotNotFound
	}

	var snapshot Snapshot
	if err := json.Unmarshal(r.blob, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// Save persists the snapshot.
func (r *InMemoryRepository) Save(_ context.Context, snapshot *Snapshot) error {
	blob, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.blob = blob
	return nil
}

// Clear removes the persisted snapshot.
func (r *InMemoryRepository) Clear(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blob = nil
	return nil
}
