package resilience

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// ErrUpstreamUnavailable is returned when the circuit breaker is open and
// calls to the upstream are being short-circuited.
var ErrUpstreamUnavailable = errors.New("upstream unavailable: circuit breaker open")

// ClientConfig holds configuration for a resilient HTTP client.
type ClientConfig struct {
	// Name identifies the upstream for breaker naming.
	Name string

	// Timeout is the per-attempt request timeout. Default: 10s.
	Timeout time.Duration

	// MaxRetries is the retry budget for idempotent requests. Default: 3.
	MaxRetries uint64

	// InitialInterval is the first backoff delay. Default: 100ms.
	InitialInterval time.Duration

	// MaxInterval caps the backoff delay. Default: 5s.
	MaxInterval time.Duration

	// Breaker configures the circuit breaker. Zero value uses defaults.
	Breaker BreakerConfig

	// Metrics records request durations and counts. Optional.
	Metrics *UpstreamMetrics
}

// DefaultClientConfig returns sensible defaults for the named upstream.
func DefaultClientConfig(name string) ClientConfig {
	return ClientConfig{
		Name:            name,
		Timeout:         10 * time.Second,
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Breaker:         DefaultBreakerConfig(name),
	}
}

// httpResult carries a response through the breaker's generic Execute.
type httpResult struct {
	resp *http.Response
}

// Client is an HTTP client with a circuit breaker on every request and
// exponential-backoff retries on idempotent ones.
//
// Only GET and HEAD requests are retried. Job submissions and profile-apply
// calls must reach the backend at most once, so non-idempotent methods get a
// single attempt and their failure is reported as is.
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*httpResult]
	config     ClientConfig
}

// NewClient creates a resilient HTTP client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 5 * time.Second
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker = DefaultBreakerConfig(cfg.Name)
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    newBreaker(cfg.Breaker),
		config:     cfg,
	}
}

// Do executes the request. Responses are returned for every status code; the
// breaker counts 5xx and transport errors as failures.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	start := time.Now()

	var resp *http.Response
	var err error
	if isIdempotent(req.Method) {
		resp, err = c.doWithRetries(req.Context(), req)
	} else {
		resp, err = c.attempt(req.Context(), req)
	}

	c.config.Metrics.RecordRequest(c.config.Name, req.Method, time.Since(start), err)
	return resp, err
}

func (c *Client) doWithRetries(ctx context.Context, req *http.Request) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.InitialInterval
	bo.MaxInterval = c.config.MaxInterval
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.config.MaxRetries), ctx)

	var last *http.Response

	operation := func() error {
		resp, err := c.attempt(ctx, req)
		if err != nil {
			if errors.Is(err, ErrUpstreamUnavailable) {
				return backoff.Permanent(err)
			}
			return err
		}

		if last != nil {
			last.Body.Close()
		}
		last = resp
		if resp.StatusCode >= 500 {
			return &serverError{status: resp.StatusCode}
		}
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		if last != nil {
			// Retries exhausted on 5xx: hand the caller the last
			// response so the status can be surfaced verbatim.
			return last, nil
		}
		return nil, err
	}

	return last, nil
}

// attempt performs a single request through the circuit breaker.
func (c *Client) attempt(ctx context.Context, req *http.Request) (*http.Response, error) {
	result, err := c.breaker.Execute(func() (*httpResult, error) {
		resp, err := c.httpClient.Do(req.Clone(ctx))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			// Counted as a breaker failure, but the response is
			// still handed back to the caller.
			return &httpResult{resp: resp}, &serverError{status: resp.StatusCode}
		}
		return &httpResult{resp: resp}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrUpstreamUnavailable
		}
		if result != nil && result.resp != nil {
			return result.resp, nil
		}
		return nil, err
	}

	return result.resp, nil
}

// State reports the breaker state, used by readiness checks.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

func isIdempotent(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

type serverError struct {
	status int
}

func (e *serverError) Error() string {
	return "server error: " + http.StatusText(e.status)
}
