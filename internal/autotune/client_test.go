package autotune_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nighttune/nighttune/internal/autotune"
	"github.com/nighttune/nighttune/internal/state"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *autotune.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return autotune.NewClient(autotune.ClientConfig{
		BaseURL: server.URL,
		Logger:  zerolog.Nop(),
	})
}

func TestSubmitPostsJob(t *testing.T) {
	var body map[string]json.RawMessage
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/job", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.WriteHeader(http.StatusAccepted)
	})

	settings := state.DefaultConversionSettings()
	settings.ProfileName = "Default"

	err := client.Submit(context.Background(), autotune.SubmitRequest{
		SourceURL: "https://cgm.example.com",
		Settings:  settings,
	})
	require.NoError(t, err)

	assert.Contains(t, body, "source_url")
	assert.Contains(t, body, "settings")
	// Public instance and no email address: both fields stay off the wire.
	assert.NotContains(t, body, "source_access_token")
	var submitted map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body["settings"], &submitted))
	assert.NotContains(t, submitted, "email_address")
}

func TestSubmitIncludesTokenWhenSet(t *testing.T) {
	var body map[string]json.RawMessage
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.WriteHeader(http.StatusOK)
	})

	err := client.Submit(context.Background(), autotune.SubmitRequest{
		SourceURL:         "https://cgm.example.com",
		SourceAccessToken: "readable-abc",
		Settings:          state.DefaultConversionSettings(),
	})
	require.NoError(t, err)

	assert.JSONEq(t, `"readable-abc"`, string(body["source_access_token"]))
}

func TestSubmitSurfacesRejectionStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	err := client.Submit(context.Background(), autotune.SubmitRequest{
		SourceURL: "https://cgm.example.com",
		Settings:  state.DefaultConversionSettings(),
	})

	var rejection *autotune.SubmitError
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, http.StatusTooManyRequests, rejection.StatusCode)
}

func TestListReturnsJobsNewestFirst(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/job/all", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"jobs":[
			{"id":"b","status":"processing","submittedAt":"2026-08-30T12:00:00Z"},
			{"id":"a","status":"success","submittedAt":"2026-08-29T12:00:00Z"}
		]}`)
	})

	jobs, err := client.List(context.Background())
	require.NoError(t, err)

	require.Len(t, jobs, 2)
	assert.Equal(t, "b", jobs[0].ID)
	assert.Equal(t, autotune.StatusProcessing, jobs[0].Status)
}

func TestListTreatsAbsentJobsAsEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{}`)
	})

	jobs, err := client.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, jobs)
	assert.Empty(t, jobs)
}

func TestResultDecodesRecommendations(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/job/id/job-1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"result":{
			"options":{"jobId":"job-1","nsHost":"https://cgm.example.com","uam":true},
			"recommendations":[
				{"type":"ISF","currentValue":50,"recommendedValue":48.3},
				{"type":"BASAL","when":"00:00","currentValue":0.5,"recommendedValue":0.52,
				 "daysMissing":1,"roundedRecommendation":0.5,
				 "postProcessed":{"dt":"Map","v":[["SMOOTH",0.51]]}}
			]}}`)
	})

	result, err := client.Result(context.Background(), "job-1")
	require.NoError(t, err)

	assert.Equal(t, "job-1", result.Options.JobID)
	require.NotNil(t, result.FindISF())

	basal := result.FindBasal()
	require.Len(t, basal, 1)
	assert.Equal(t, 1, basal[0].DaysMissing)
	assert.Equal(t, 0.5, basal[0].RoundedRecommendation)
	assert.Equal(t, 0.51, basal[0].PostProcessed[autotune.PostProcessSmooth])
}

func TestResultAbsentIsNoStoredResult(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{}`)
	})

	_, err := client.Result(context.Background(), "job-1")
	assert.ErrorIs(t, err, autotune.ErrNoStoredResult)
}

func TestCreateProfileStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"created", http.StatusOK, nil},
		{"unauthorized token", http.StatusUnauthorized, autotune.ErrUnauthorized},
		{"job expired", http.StatusNotFound, autotune.ErrJobNotFound},
		{"name collision", http.StatusConflict, autotune.ErrNameTaken},
		{"source profile deleted", http.StatusGone, autotune.ErrSourceProfileGone},
		{"backend failure", http.StatusInternalServerError, autotune.ErrServer},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/job/id/job-1/create-ns-profile", r.URL.Path)

				var body autotune.CreateProfileRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "Autotune 2026-08-31", body.Name)

				w.WriteHeader(tc.status)
			})

			err := client.CreateProfile(context.Background(), "job-1", autotune.CreateProfileRequest{
				Name: "Autotune 2026-08-31",
			})

			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}
