package resilience_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nighttune/nighttune/internal/resilience"
)

func TestNewUpstreamMetrics(t *testing.T) {
	um, err := resilience.NewUpstreamMetrics()
	require.NoError(t, err)
	assert.NotNil(t, um)
}

func TestUpstreamMetrics_RecordRequest(t *testing.T) {
	um, err := resilience.NewUpstreamMetrics()
	require.NoError(t, err)

	// Should not panic
	um.RecordRequest("autotune", http.MethodGet, 50*time.Millisecond, nil)
	um.RecordRequest("autotune", http.MethodPost, time.Second, errors.New("timeout"))
}

func TestUpstreamMetrics_NilReceiverIsNoOp(t *testing.T) {
	var um *resilience.UpstreamMetrics

	// Should not panic
	um.RecordRequest("nightscout", http.MethodGet, time.Millisecond, nil)
}

func TestClient_RecordsRequestMetrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	um, err := resilience.NewUpstreamMetrics()
	require.NoError(t, err)

	cfg := fastConfig("test-metrics")
	cfg.Metrics = um
	client := resilience.NewClient(cfg)

	req, err := http.NewRequest(http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
