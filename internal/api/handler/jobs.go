package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nighttune/nighttune/internal/api/models"
	"github.com/nighttune/nighttune/internal/api/response"
	"github.com/nighttune/nighttune/internal/autotune"
	"github.com/nighttune/nighttune/internal/state"
)

// JobsHandler manages the tuning job lifecycle endpoints.
type JobsHandler struct {
	store   *state.Store
	manager *autotune.Manager
}

// NewJobsHandler creates a new JobsHandler.
func NewJobsHandler(store *state.Store, manager *autotune.Manager) *JobsHandler {
	return &JobsHandler{store: store, manager: manager}
}

// SubmitJob handles POST /v1/jobs. The submission body is assembled from the
// stored instance and settings; one active job is allowed at a time.
func (h *JobsHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	if snap.URL == "" {
		response.BadRequest(w, r, "no nightscout instance configured", nil)
		return
	}
	if snap.ConversionSettings.OAPSProfileData == nil {
		response.BadRequest(w, r, "convert a profile before submitting a job", nil)
		return
	}

	if _, active := h.manager.Active(); active {
		response.Conflict(w, r, "a tuning job is already running")
		return
	}

	submission := autotune.SubmitRequest{
		SourceURL:         snap.URL,
		SourceAccessToken: snap.AccessToken,
		Settings:          snap.ConversionSettings,
	}

	if err := h.manager.Submit(r.Context(), submission); err != nil {
		var rejection *autotune.SubmitError
		if errors.As(err, &rejection) {
			problem := models.NewProblem(
				models.ProblemTypeUpstream,
				"Job submission rejected",
				rejection.StatusCode,
				response.TraceID(r),
			).WithDetail(rejection.Status)
			response.Error(w, r, problem)
			return
		}
		response.UpstreamError(w, r, "failed to reach the tuning backend")
		return
	}

	response.Accepted(w, r, "/v1/jobs", models.SubmitJobResponse{
		Jobs:   h.manager.Jobs(),
		Active: true,
	})
}

// ListJobs handles GET /v1/jobs. The list is refreshed from the backend so a
// caller polling this endpoint sees status transitions.
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.manager.Refresh(r.Context())
	if err != nil {
		// Fall back to the tracked list so a transient backend failure
		// does not blank the client's view.
		jobs = h.manager.Jobs()
	}

	_, active := h.manager.Active()
	response.JSON(w, r, http.StatusOK, models.JobsResponse{
		Jobs:              jobs,
		Active:            active,
		LastSubmitFailure: h.manager.LastSubmitFailure(),
	})
}

// GetResult handles GET /v1/jobs/{jobID}/result. A result superseded by a
// newer job is reported as absent rather than as an error.
func (h *JobsHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	result, err := h.manager.Result(r.Context(), jobID)
	switch {
	case err == nil:
		response.JSON(w, r, http.StatusOK, models.ResultResponse{Result: result})
	case errors.Is(err, autotune.ErrStaleResult):
		response.JSON(w, r, http.StatusOK, models.ResultResponse{})
	case errors.Is(err, autotune.ErrNoStoredResult):
		response.NotFound(w, r, "no stored result for this job; it may have expired")
	default:
		response.UpstreamError(w, r, "failed to fetch the job result")
	}
}

// ApplyProfile handles POST /v1/jobs/{jobID}/profile. Each backend failure
// mode maps to its own status so the caller can show a precise message.
func (h *JobsHandler) ApplyProfile(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	var req models.ApplyProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid request body", nil)
		return
	}
	if req.Name == "" {
		response.BadRequest(w, r, "name is required", []models.FieldError{
			{Field: "name", Message: "must not be empty", Code: "required"},
		})
		return
	}

	err := h.manager.ApplyProfile(r.Context(), jobID, autotune.CreateProfileRequest{
		Name:     req.Name,
		Smoothed: req.Smoothed,
	})
	switch {
	case err == nil:
		response.NoContent(w, r)
	case errors.Is(err, autotune.ErrUnauthorized):
		response.Unauthorized(w, r, "the stored access token may not create profiles")
	case errors.Is(err, autotune.ErrJobNotFound):
		response.NotFound(w, r, "the tuning backend no longer knows this job")
	case errors.Is(err, autotune.ErrNameTaken):
		response.Conflict(w, r, "a profile named "+req.Name+" already exists")
	case errors.Is(err, autotune.ErrSourceProfileGone):
		response.Gone(w, r, "the profile this job tuned no longer exists")
	default:
		response.UpstreamError(w, r, "the tuning backend failed to create the profile")
	}
}
