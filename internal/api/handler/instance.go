package handler

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/nighttune/nighttune/internal/api/models"
	"github.com/nighttune/nighttune/internal/api/response"
	"github.com/nighttune/nighttune/internal/state"
)

// InstanceHandler manages the configured Nightscout instance.
type InstanceHandler struct {
	store *state.Store
}

// NewInstanceHandler creates a new InstanceHandler.
func NewInstanceHandler(store *state.Store) *InstanceHandler {
	return &InstanceHandler{store: store}
}

// GetInstance handles GET /v1/instance.
func (h *InstanceHandler) GetInstance(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	response.JSON(w, r, http.StatusOK, models.Instance{
		URL:                  snap.URL,
		HasAccessToken:       snap.AccessToken != "",
		NightscoutAPIVersion: snap.NightscoutAPIVersion,
	})
}

// SetInstance handles PUT /v1/instance.
func (h *InstanceHandler) SetInstance(w http.ResponseWriter, r *http.Request) {
	var req models.InstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid request body", nil)
		return
	}

	if req.URL == "" {
		response.BadRequest(w, r, "url is required", []models.FieldError{
			{Field: "url", Message: "must not be empty", Code: "required"},
		})
		return
	}
	parsed, err := url.Parse(req.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		response.BadRequest(w, r, "url must be absolute", []models.FieldError{
			{Field: "url", Message: "must be an absolute http(s) URL", Code: "format"},
		})
		return
	}

	switch req.NightscoutAPIVersion {
	case "", state.NightscoutAPIV1, state.NightscoutAPIV3:
	default:
		response.BadRequest(w, r, "unknown nightscout API version", []models.FieldError{
			{Field: "nightscoutApiVersion", Message: "must be v1 or v3", Code: "enum"},
		})
		return
	}

	if err := h.store.SetURL(r.Context(), req.URL); err != nil {
		response.InternalError(w, r, "failed to persist instance")
		return
	}
	if err := h.store.SetToken(r.Context(), req.AccessToken); err != nil {
		response.InternalError(w, r, "failed to persist access token")
		return
	}
	if req.NightscoutAPIVersion != "" {
		if err := h.store.SetNightscoutAPIVersion(r.Context(), req.NightscoutAPIVersion); err != nil {
			response.InternalError(w, r, "failed to persist API version")
			return
		}
	}

	h.GetInstance(w, r)
}

// ClearInstance handles DELETE /v1/instance. All persisted client state is
// removed, not just the URL.
func (h *InstanceHandler) ClearInstance(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(r.Context()); err != nil {
		response.InternalError(w, r, "failed to clear stored state")
		return
	}
	response.NoContent(w, r)
}
