package handler

import (
	"encoding/json"
	"net/http"

	"github.com/nighttune/nighttune/internal/api/models"
	"github.com/nighttune/nighttune/internal/api/response"
	"github.com/nighttune/nighttune/internal/profile"
	"github.com/nighttune/nighttune/internal/state"
)

// SettingsHandler manages the conversion settings.
type SettingsHandler struct {
	store *state.Store
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(store *state.Store) *SettingsHandler {
	return &SettingsHandler{store: store}
}

// GetSettings handles GET /v1/settings.
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.store.Snapshot().ConversionSettings)
}

// UpdateSettings handles PUT /v1/settings. The stored profile data fields are
// owned by the conversion flow and cannot be overwritten here.
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req state.ConversionSettings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid request body", nil)
		return
	}

	if fieldErrors := validateSettings(&req); len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid conversion settings", fieldErrors)
		return
	}

	current := h.store.Snapshot().ConversionSettings
	req.ProfileData = current.ProfileData
	req.OAPSProfileData = current.OAPSProfileData

	if req.BasalSmoothing != "" && req.BasalSmoothing != profile.SmoothingNone &&
		!profile.IsSmoothingAvailable(current.OAPSProfileData) {
		response.BadRequest(w, r, "basal smoothing needs a converted profile with enough basal entries", []models.FieldError{
			{Field: "basal_smoothing", Message: "not available for this profile", Code: "unavailable"},
		})
		return
	}

	if err := h.store.SetConversionSettings(r.Context(), req); err != nil {
		response.InternalError(w, r, "failed to persist conversion settings")
		return
	}

	response.JSON(w, r, http.StatusOK, req)
}

func validateSettings(settings *state.ConversionSettings) []models.FieldError {
	var fieldErrors []models.FieldError

	if settings.AutotuneDays <= 0 {
		fieldErrors = append(fieldErrors, models.FieldError{
			Field: "autotune_days", Message: "must be at least 1", Code: "range",
		})
	}
	if settings.Min5mCarbImpact <= 0 {
		fieldErrors = append(fieldErrors, models.FieldError{
			Field: "min_5m_carbimpact", Message: "must be positive", Code: "range",
		})
	}
	if settings.PumpBasalIncrement <= 0 {
		fieldErrors = append(fieldErrors, models.FieldError{
			Field: "pump_basal_increment", Message: "must be positive", Code: "range",
		})
	}
	if settings.AutosensMin <= 0 || settings.AutosensMax < settings.AutosensMin {
		fieldErrors = append(fieldErrors, models.FieldError{
			Field: "autosens_min", Message: "bounds must be positive and ordered", Code: "range",
		})
	}
	if settings.InsulinType != "" && !profile.IsInsulinType(string(settings.InsulinType)) {
		fieldErrors = append(fieldErrors, models.FieldError{
			Field: "insulin_type", Message: "unknown insulin type", Code: "enum",
		})
	}

	switch settings.BasalSmoothing {
	case "", profile.SmoothingNone, profile.SmoothingLow, profile.SmoothingMedium, profile.SmoothingHigh:
	default:
		fieldErrors = append(fieldErrors, models.FieldError{
			Field: "basal_smoothing", Message: "unknown smoothing level", Code: "enum",
		})
	}

	return fieldErrors
}
