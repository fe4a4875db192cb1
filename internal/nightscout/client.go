// Package nightscout provides a client for the Nightscout REST API, used to
// retrieve the user's treatment profile catalog.
package nightscout

import (
	"context"
	"crypto/sha1" //nolint:gosec // Nightscout's token scheme is SHA-1 by contract
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/nighttune/nighttune/internal/profile"
	"github.com/nighttune/nighttune/internal/resilience"
)

// Predefined errors.
var (
	// ErrNoURL is returned when no Nightscout instance URL is configured.
	ErrNoURL = errors.New("nightscout URL has not been set")

	// ErrNoProfiles is returned when the instance has no stored profiles.
	ErrNoProfiles = errors.New("nightscout instance has no profiles")
)

// StatusError is returned for non-2xx responses from Nightscout. The status
// is surfaced verbatim to the user.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("nightscout responded with HTTP %d: %s", e.StatusCode, e.Status)
}

// ProfileDocument is the active profile document of a Nightscout instance.
// Named profile definitions live in Store, keyed by profile name.
type ProfileDocument struct {
	ID             string                       `json:"_id"`
	DefaultProfile string                       `json:"defaultProfile"`
	Date           int64                        `json:"date"`
	CreatedAt      string                       `json:"created_at"`
	StartDate      string                       `json:"startDate"`
	Store          map[string]profile.NSProfile `json:"store"`
}

// ClientConfig holds configuration for the Nightscout client.
type ClientConfig struct {
	// BaseURL is the Nightscout instance URL (required).
	BaseURL string

	// AccessToken authenticates against locked-down instances (optional).
	// It is never sent as is: Nightscout expects its SHA-1 hex digest.
	AccessToken string

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client talks to one Nightscout instance.
type Client struct {
	baseURL    string
	token      string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewClient creates a new Nightscout client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig("nightscout"))
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		token:      cfg.AccessToken,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// FetchProfiles retrieves the active profile document. The profile endpoint
// returns an array ordered newest-first; the first element is the document in
// effect.
func (c *Client) FetchProfiles(ctx context.Context) (*ProfileDocument, error) {
	if c.baseURL == "" {
		return nil, ErrNoURL
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing nightscout URL: %w", err)
	}
	u = u.JoinPath("api", "v1", "profile.json")

	if c.token != "" {
		q := u.Query()
		q.Set("token", TokenDigest(c.token))
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var documents []ProfileDocument
	if err := json.NewDecoder(resp.Body).Decode(&documents); err != nil {
		return nil, fmt.Errorf("decoding profile response: %w", err)
	}

	if len(documents) == 0 {
		return nil, ErrNoProfiles
	}

	c.logger.Debug().
		Str("default_profile", documents[0].DefaultProfile).
		Int("profiles", len(documents[0].Store)).
		Msg("fetched nightscout profile document")

	return &documents[0], nil
}

// TokenDigest returns the SHA-1 hex digest Nightscout expects as the token
// query parameter.
func TokenDigest(token string) string {
	sum := sha1.Sum([]byte(token)) //nolint:gosec // contract with Nightscout
	return hex.EncodeToString(sum[:])
}
