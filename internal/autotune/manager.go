package autotune

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPollInterval is how often the manager checks an active job's status.
const DefaultPollInterval = 10 * time.Second

// ErrStaleResult is returned when a fetched result no longer belongs to the
// tracked newest job. The caller discards it rather than surfacing it.
var ErrStaleResult = errors.New("result is for a superseded job")

// JobAPI is the slice of the backend client the manager needs.
type JobAPI interface {
	Submit(ctx context.Context, submission SubmitRequest) error
	List(ctx context.Context) ([]Job, error)
	Result(ctx context.Context, jobID string) (*Result, error)
	CreateProfile(ctx context.Context, jobID string, request CreateProfileRequest) error
}

// SubmitFailure records a rejected submission. A transport failure has no
// status code and carries the error message instead.
type SubmitFailure struct {
	StatusCode int    `json:"status_code,omitempty"`
	Message    string `json:"message"`
}

// ManagerConfig holds configuration for the job lifecycle manager.
type ManagerConfig struct {
	// API is the backend client (required).
	API JobAPI

	// PollInterval overrides the status poll cadence. Default: 10s.
	PollInterval time.Duration

	// Logger for lifecycle events.
	Logger zerolog.Logger
}

// Manager tracks the asynchronous tuning job lifecycle: submission, status
// polling, result retrieval, and applying results as a new profile.
//
// One mutex guards all tracked state. Every mutation is read-modify-store
// under the lock, so overlapping polls and submissions cannot interleave
// half-applied updates.
type Manager struct {
	api          JobAPI
	pollInterval time.Duration
	logger       zerolog.Logger

	mu            sync.Mutex
	jobs          []Job
	submitFailure *SubmitFailure
	pollCancel    context.CancelFunc
	pollDone      chan struct{}
}

// NewManager creates a job lifecycle manager.
func NewManager(cfg ManagerConfig) *Manager {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &Manager{
		api:          cfg.API,
		pollInterval: interval,
		logger:       cfg.Logger,
	}
}

// Submit sends a new tuning job to the backend. On acceptance the job list is
// refreshed and polling starts. On rejection the failure is recorded for the
// caller to display and the tracked job state is left untouched.
func (m *Manager) Submit(ctx context.Context, submission SubmitRequest) error {
	if err := m.api.Submit(ctx, submission); err != nil {
		failure := &SubmitFailure{Message: err.Error()}
		var rejection *SubmitError
		if errors.As(err, &rejection) {
			failure.StatusCode = rejection.StatusCode
		}

		m.mu.Lock()
		m.submitFailure = failure
		m.mu.Unlock()

		m.logger.Warn().Err(err).Msg("job submission failed")
		return err
	}

	m.mu.Lock()
	m.submitFailure = nil
	m.mu.Unlock()

	if _, err := m.Refresh(ctx); err != nil {
		// The job was accepted, so polling still starts; the next tick
		// will pick up the list.
		m.logger.Warn().Err(err).Msg("job list refresh after submission failed")
	}

	m.StartPolling()
	return nil
}

// Refresh fetches the job list and updates tracked state. Polling stops as
// soon as the newest job is terminal and starts when an active job is
// observed, so a job still running across a restart is picked up again.
func (m *Manager) Refresh(ctx context.Context) ([]Job, error) {
	jobs, err := m.api.List(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.jobs = jobs
	m.mu.Unlock()

	if active, ok := m.Active(); ok {
		m.logger.Debug().
			Str("job_id", active.ID).
			Str("status", string(active.Status)).
			Msg("active job polled")
		m.StartPolling()
	} else {
		m.StopPolling()
	}

	return jobs, nil
}

// Jobs returns a copy of the tracked job list, most recent first.
func (m *Manager) Jobs() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Job, len(m.jobs))
	copy(out, m.jobs)
	return out
}

// Active returns the newest job if it is still in an active status.
func (m *Manager) Active() (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.jobs) == 0 {
		return Job{}, false
	}
	newest := m.jobs[0]
	return newest, newest.Status.IsActive()
}

// LastSubmitFailure returns the most recent submission rejection, if any. A
// successful submission clears it.
func (m *Manager) LastSubmitFailure() *SubmitFailure {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitFailure == nil {
		return nil
	}
	failure := *m.submitFailure
	return &failure
}

// Result fetches the recommendation set for a job. A result that arrives
// after a newer job has replaced jobID as the tracked newest job is discarded
// with ErrStaleResult.
func (m *Manager) Result(ctx context.Context, jobID string) (*Result, error) {
	result, err := m.api.Result(ctx, jobID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	current := ""
	if len(m.jobs) > 0 {
		current = m.jobs[0].ID
	}
	m.mu.Unlock()

	if current != "" && current != jobID {
		return nil, ErrStaleResult
	}
	return result, nil
}

// ApplyProfile asks the backend to create a Nightscout profile from a job's
// recommendations. Failures pass through unchanged; tracked job state is
// never modified here.
func (m *Manager) ApplyProfile(ctx context.Context, jobID string, request CreateProfileRequest) error {
	return m.api.CreateProfile(ctx, jobID, request)
}

// StartPolling begins the status poll loop. Calling it while a loop is
// already running is a no-op.
func (m *Manager) StartPolling() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pollCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.pollCancel = cancel
	m.pollDone = done

	go m.pollLoop(ctx, done)
}

// StopPolling cancels the poll loop. It does not wait for the loop goroutine
// to exit, so it is safe to call from inside a poll tick.
func (m *Manager) StopPolling() {
	m.mu.Lock()
	cancel := m.pollCancel
	m.pollCancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Close stops polling and waits for the loop goroutine to exit. The manager
// must not be used afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	cancel := m.pollCancel
	done := m.pollDone
	m.pollCancel = nil
	m.pollDone = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (m *Manager) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Refresh(ctx); err != nil {
				// Transport failures do not stop polling; the job
				// may still be running.
				m.logger.Warn().Err(err).Msg("job status poll failed")
			}
		}
	}
}
