// Package resilience wraps outbound HTTP calls with a circuit breaker and,
// for idempotent requests, retries with exponential backoff.
package resilience

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig holds circuit breaker settings for one upstream.
type BreakerConfig struct {
	// Name identifies the breaker in logs.
	Name string

	// MaxRequests is the number of probe requests allowed while half-open.
	MaxRequests uint32

	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration

	// ReadyToTrip decides when to open the breaker. Defaults to
	// readyToTrip (5+ requests with a failure rate of at least 50%).
	ReadyToTrip func(counts gobreaker.Counts) bool
}

// DefaultBreakerConfig returns breaker settings suitable for the Nightscout
// and Autotune upstreams.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:        name,
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: readyToTrip,
	}
}

func readyToTrip(counts gobreaker.Counts) bool {
	ratio := float64(counts.TotalFailures) / float64(counts.Requests)
	return counts.Requests >= 5 && ratio >= 0.5
}

func newBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker[*httpResult] {
	ready := cfg.ReadyToTrip
	if ready == nil {
		ready = readyToTrip
	}

	return gobreaker.NewCircuitBreaker[*httpResult](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: ready,
	})
}
