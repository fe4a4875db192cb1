package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/nighttune/nighttune/internal/api/models"
	"github.com/nighttune/nighttune/internal/api/response"
	"github.com/nighttune/nighttune/internal/nightscout"
	"github.com/nighttune/nighttune/internal/profile"
	"github.com/nighttune/nighttune/internal/state"
)

// ProfileSource fetches the profile catalog from a Nightscout instance.
type ProfileSource interface {
	FetchProfiles(ctx context.Context) (*nightscout.ProfileDocument, error)
}

// ProfileSourceFactory builds a ProfileSource for the given instance. The
// instance URL and token live in mutable state, so the client is constructed
// per request rather than once at startup.
type ProfileSourceFactory func(baseURL, accessToken string) ProfileSource

// ProfilesHandler manages the cached profile catalog and the conversion.
type ProfilesHandler struct {
	store     *state.Store
	newSource ProfileSourceFactory
}

// NewProfilesHandler creates a new ProfilesHandler.
func NewProfilesHandler(store *state.Store, newSource ProfileSourceFactory) *ProfilesHandler {
	return &ProfilesHandler{store: store, newSource: newSource}
}

// RefreshProfiles handles POST /v1/profiles/refresh. The catalog is fetched
// from the configured instance and cached in the store.
func (h *ProfilesHandler) RefreshProfiles(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	if snap.URL == "" {
		response.BadRequest(w, r, "no nightscout instance configured", nil)
		return
	}

	source := h.newSource(snap.URL, snap.AccessToken)
	document, err := source.FetchProfiles(r.Context())
	if err != nil {
		var status *nightscout.StatusError
		switch {
		case errors.As(err, &status) && status.StatusCode == http.StatusUnauthorized:
			response.Unauthorized(w, r, "nightscout rejected the access token")
		case errors.Is(err, nightscout.ErrNoProfiles):
			response.NotFound(w, r, "the nightscout instance has no stored profiles")
		default:
			response.UpstreamError(w, r, "failed to fetch profiles from nightscout")
		}
		return
	}

	if err := h.store.SetProfiles(r.Context(), state.Profiles{Store: document.Store}); err != nil {
		response.InternalError(w, r, "failed to persist profile catalog")
		return
	}

	// First refresh selects the instance's default profile.
	settings := h.store.Snapshot().ConversionSettings
	if settings.ProfileName == "" && document.DefaultProfile != "" {
		settings.ProfileName = document.DefaultProfile
		if err := h.store.SetConversionSettings(r.Context(), settings); err != nil {
			response.InternalError(w, r, "failed to persist profile selection")
			return
		}
	}

	h.ListProfiles(w, r)
}

// ListProfiles handles GET /v1/profiles.
func (h *ProfilesHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()

	names := make([]string, 0, len(snap.Profiles.Store))
	for name := range snap.Profiles.Store {
		names = append(names, name)
	}
	sort.Strings(names)

	response.JSON(w, r, http.StatusOK, models.ProfilesResponse{
		DefaultProfile: snap.ConversionSettings.ProfileName,
		Profiles:       names,
	})
}

// ConvertProfile handles POST /v1/profiles/convert. The selected Nightscout
// profile is converted and the result persisted on the conversion settings.
func (h *ProfilesHandler) ConvertProfile(w http.ResponseWriter, r *http.Request) {
	var req models.ConvertRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, r, "invalid request body", nil)
			return
		}
	}

	snap := h.store.Snapshot()
	settings := snap.ConversionSettings

	name := req.ProfileName
	if name == "" {
		name = settings.ProfileName
	}
	if name == "" {
		response.BadRequest(w, r, "no profile selected", []models.FieldError{
			{Field: "profileName", Message: "select a profile or refresh the catalog first", Code: "required"},
		})
		return
	}

	ns, ok := snap.Profiles.Store[name]
	if !ok {
		response.NotFound(w, r, "profile "+name+" is not in the cached catalog")
		return
	}

	converted, err := profile.Convert(&ns, conversionParams(settings))
	if err != nil {
		var inconsistent *profile.InconsistentTargetError
		var invalid *profile.ValidationError
		switch {
		case errors.As(err, &inconsistent), errors.As(err, &invalid):
			response.BadRequest(w, r, err.Error(), nil)
		default:
			response.InternalError(w, r, "profile conversion failed")
		}
		return
	}

	settings.ProfileName = name
	settings.ProfileData = &ns
	settings.OAPSProfileData = converted
	if err := h.store.SetConversionSettings(r.Context(), settings); err != nil {
		response.InternalError(w, r, "failed to persist converted profile")
		return
	}

	response.JSON(w, r, http.StatusOK, models.ConvertResponse{Profile: converted})
}

// conversionParams maps stored settings onto conversion parameters.
func conversionParams(settings state.ConversionSettings) profile.Params {
	params := profile.DefaultParams()
	if settings.Min5mCarbImpact > 0 {
		params.Min5mCarbImpact = settings.Min5mCarbImpact
	}
	if settings.AutosensMin > 0 {
		params.AutosensMin = settings.AutosensMin
	}
	if settings.AutosensMax > 0 {
		params.AutosensMax = settings.AutosensMax
	}
	if settings.InsulinType != "" && settings.InsulinType != profile.InsulinUnknown {
		params.Curve = settings.InsulinType
	}
	return params
}
