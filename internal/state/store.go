package state

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/nighttune/nighttune/internal/profile"
)

// EventType identifies which part of the snapshot changed.
type EventType string

// Store change events.
const (
	EventSetURL                EventType = "set_url"
	EventSetToken              EventType = "set_token"
	EventSetAPIVersion         EventType = "set_api_version"
	EventSetProfiles           EventType = "set_profiles"
	EventSetConversionSettings EventType = "set_conversion_settings"
	EventSetOAPSProfile        EventType = "set_oaps_profile"
	EventClear                 EventType = "clear"
)

// Listener receives store change notifications.
type Listener func(event EventType)

// UnsubscribeFunc removes a previously registered listener.
type UnsubscribeFunc func()

// Store is the owner of the persisted client snapshot. It is created by the
// composition root, not a package-level singleton, and exposes a synchronous
// snapshot read plus setters that mutate, persist, and notify as one step.
type Store struct {
	repo   Repository
	logger zerolog.Logger

	mu        sync.Mutex
	snapshot  *Snapshot
	listeners map[int]Listener
	nextID    int
}

// NewStore creates a store backed by the given repository.
func NewStore(repo Repository, logger zerolog.Logger) *Store {
	return &Store{
		repo:      repo,
		logger:    logger,
		snapshot:  NewSnapshot(),
		listeners: make(map[int]Listener),
	}
}

// Init loads the persisted snapshot and runs any pending migrations up to
// appVersion. A missing snapshot leaves the zero default in place.
func (s *Store) Init(ctx context.Context, appVersion string) error {
	loaded, err := s.repo.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) {
			s.logger.Debug().Msg("no persisted snapshot, starting from defaults")
			return nil
		}
		return fmt.Errorf("loading snapshot: %w", err)
	}

	if Migrate(loaded, appVersion) {
		if err := s.repo.Save(ctx, loaded); err != nil {
			return fmt.Errorf("persisting migrated snapshot: %w", err)
		}
		s.logger.Info().
			Str("version", loaded.Version).
			Msg("persisted state migrated")
	}

	s.mu.Lock()
	s.snapshot = loaded
	s.mu.Unlock()

	return nil
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.Clone()
}

// Subscribe registers a listener for change events. The returned function
// unsubscribes it.
func (s *Store) Subscribe(listener Listener) UnsubscribeFunc {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// SetURL stores the Nightscout instance URL.
func (s *Store) SetURL(ctx context.Context, url string) error {
	return s.update(ctx, EventSetURL, func(snap *Snapshot) {
		snap.URL = url
	})
}

// SetToken stores the Nightscout access token.
func (s *Store) SetToken(ctx context.Context, token string) error {
	return s.update(ctx, EventSetToken, func(snap *Snapshot) {
		snap.AccessToken = token
	})
}

// SetNightscoutAPIVersion selects the Nightscout API generation.
func (s *Store) SetNightscoutAPIVersion(ctx context.Context, version NightscoutAPIVersion) error {
	return s.update(ctx, EventSetAPIVersion, func(snap *Snapshot) {
		snap.NightscoutAPIVersion = version
	})
}

// SetProfiles replaces the cached profile catalog.
func (s *Store) SetProfiles(ctx context.Context, profiles Profiles) error {
	return s.update(ctx, EventSetProfiles, func(snap *Snapshot) {
		snap.Profiles = profiles
	})
}

// SetConversionSettings replaces the conversion settings.
func (s *Store) SetConversionSettings(ctx context.Context, settings ConversionSettings) error {
	return s.update(ctx, EventSetConversionSettings, func(snap *Snapshot) {
		snap.ConversionSettings = settings
	})
}

// SetOAPSProfile stores the converted OpenAPS profile on the conversion
// settings.
func (s *Store) SetOAPSProfile(ctx context.Context, oaps *profile.OAPSProfile) error {
	return s.update(ctx, EventSetOAPSProfile, func(snap *Snapshot) {
		snap.ConversionSettings.OAPSProfileData = oaps
	})
}

// Clear resets the snapshot to its zero default and removes the persisted
// copy.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	if err := s.repo.Clear(ctx); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("clearing snapshot: %w", err)
	}
	s.snapshot = NewSnapshot()
	listeners := s.currentListeners()
	s.mu.Unlock()

	notify(listeners, EventClear)
	return nil
}

// update runs the mutation, persists the result, and notifies listeners.
// The read-mutate-persist sequence happens under the lock so interleaved
// callers cannot lose updates; only the notifications run outside it.
// The mutation is applied to a clone that replaces the live snapshot only
// after a successful save, so a failed save leaves the store unchanged.
func (s *Store) update(ctx context.Context, event EventType, mutate func(*Snapshot)) error {
	s.mu.Lock()
	next := s.snapshot.Clone()
	mutate(next)
	if err := s.repo.Save(ctx, next); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("persisting snapshot: %w", err)
	}
	s.snapshot = next
	listeners := s.currentListeners()
	s.mu.Unlock()

	notify(listeners, event)
	return nil
}

func (s *Store) currentListeners() []Listener {
	out := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		out = append(out, l)
	}
	return out
}

func notify(listeners []Listener, event EventType) {
	for _, l := range listeners {
		l(event)
	}
}
