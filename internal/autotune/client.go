package autotune

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/nighttune/nighttune/internal/resilience"
	"github.com/nighttune/nighttune/internal/state"
)

// Predefined errors.
var (
	// ErrNoStoredResult is returned when the backend holds no result for a
	// job, typically because the retention window has expired.
	ErrNoStoredResult = errors.New("no stored result for job")

	// ErrUnauthorized is returned when the configured access token is not
	// allowed to create profiles on the Nightscout instance.
	ErrUnauthorized = errors.New("access token is not authorized to create profiles")

	// ErrJobNotFound is returned when the backend no longer knows the job.
	ErrJobNotFound = errors.New("job not found")

	// ErrNameTaken is returned when a profile with the requested name
	// already exists.
	ErrNameTaken = errors.New("a profile with that name already exists")

	// ErrSourceProfileGone is returned when the profile the job tuned no
	// longer exists on the Nightscout instance.
	ErrSourceProfileGone = errors.New("the source profile no longer exists")

	// ErrServer is returned when the backend fails to create the profile.
	ErrServer = errors.New("the tuning backend failed to create the profile")
)

// SubmitError carries the backend's rejection of a job submission. The HTTP
// status is surfaced verbatim to the user.
type SubmitError struct {
	StatusCode int
	Status     string
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("job submission rejected with HTTP %d: %s", e.StatusCode, e.Status)
}

// SubmitRequest is the body of a job submission.
type SubmitRequest struct {
	// SourceURL is the Nightscout instance to pull treatment data from.
	SourceURL string `json:"source_url"`

	// SourceAccessToken is the raw access token for locked-down
	// instances. Omitted when the instance is public.
	SourceAccessToken string `json:"source_access_token,omitempty"`

	// Settings are the conversion settings in effect at submission time.
	Settings state.ConversionSettings `json:"settings"`
}

// CreateProfileRequest names the Nightscout profile to create from a job's
// recommendations.
type CreateProfileRequest struct {
	// Name is the new profile's name on the Nightscout instance.
	Name string `json:"name"`

	// Smoothed selects the smoothed basal variant. Only meaningful when
	// the job ran with basal smoothing enabled.
	Smoothed bool `json:"smoothed,omitempty"`
}

// listResponse is the body of GET /job/all. The jobs field may be absent.
type listResponse struct {
	Jobs []Job `json:"jobs"`
}

// resultResponse is the body of GET /job/id/{id}. A null or absent result
// means the backend has nothing stored.
type resultResponse struct {
	Result *Result `json:"result"`
}

// ClientConfig holds configuration for the tuning backend client.
type ClientConfig struct {
	// BaseURL is the tuning backend URL (required).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client talks to the tuning backend's job API.
type Client struct {
	baseURL    string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewClient creates a new tuning backend client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig("autotune"))
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Submit creates a new tuning job. Any 2xx response counts as accepted; a
// rejection is returned as a SubmitError carrying the backend's status.
func (c *Client) Submit(ctx context.Context, submission SubmitRequest) error {
	body, err := json.Marshal(submission)
	if err != nil {
		return fmt.Errorf("encoding submission: %w", err)
	}

	resp, err := c.post(ctx, body, "job")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &SubmitError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	c.logger.Info().
		Str("source_url", submission.SourceURL).
		Str("profile", submission.Settings.ProfileName).
		Msg("tuning job submitted")

	return nil
}

// List fetches every known job, most recent first. A response without a jobs
// field decodes as an empty list.
func (c *Client) List(ctx context.Context) ([]Job, error) {
	resp, err := c.get(ctx, "job", "all")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("listing jobs: backend responded with HTTP %d", resp.StatusCode)
	}

	var decoded listResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding job list: %w", err)
	}

	if decoded.Jobs == nil {
		return []Job{}, nil
	}
	return decoded.Jobs, nil
}

// Result fetches the stored recommendation set for a job. ErrNoStoredResult
// is returned when the backend has nothing for the id.
func (c *Client) Result(ctx context.Context, jobID string) (*Result, error) {
	resp, err := c.get(ctx, "job", "id", jobID)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetching result for job %s: backend responded with HTTP %d", jobID, resp.StatusCode)
	}

	var decoded resultResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding job result: %w", err)
	}

	if decoded.Result == nil {
		return nil, ErrNoStoredResult
	}
	return decoded.Result, nil
}

// CreateProfile asks the backend to write a job's recommendations to the
// Nightscout instance as a new named profile. Each failure mode maps to its
// own error so the caller can surface a precise message.
func (c *Client) CreateProfile(ctx context.Context, jobID string, request CreateProfileRequest) error {
	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("encoding create-profile request: %w", err)
	}

	resp, err := c.post(ctx, body, "job", "id", jobID, "create-ns-profile")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.logger.Info().
			Str("job_id", jobID).
			Str("name", request.Name).
			Msg("nightscout profile created from job result")
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return ErrJobNotFound
	case resp.StatusCode == http.StatusConflict:
		return ErrNameTaken
	case resp.StatusCode == http.StatusGone:
		return ErrSourceProfileGone
	case resp.StatusCode >= 500:
		return ErrServer
	default:
		return fmt.Errorf("creating profile for job %s: backend responded with HTTP %d", jobID, resp.StatusCode)
	}
}

func (c *Client) get(ctx context.Context, elements ...string) (*http.Response, error) {
	u, err := c.endpoint(elements...)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, body []byte, elements ...string) (*http.Response, error) {
	u, err := c.endpoint(elements...)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	return resp, nil
}

func (c *Client) endpoint(elements ...string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing backend URL: %w", err)
	}
	return u.JoinPath(elements...).String(), nil
}
