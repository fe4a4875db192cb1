// Package state owns the persisted client state: the configured Nightscout
// instance, the loaded profile catalog, and the conversion settings, stored
// as one versioned JSON snapshot.
package state

import (
	"github.com/nighttune/nighttune/internal/profile"
)

// StorageKey is the single key the snapshot is persisted under.
const StorageKey = "ns-instance"

// NightscoutAPIVersion selects which Nightscout API generation to talk to.
type NightscoutAPIVersion string

// Known API generations.
const (
	NightscoutAPIV1 NightscoutAPIVersion = "v1"
	NightscoutAPIV3 NightscoutAPIVersion = "v3"
)

// ConversionSettings are the user-tunable parameters for converting the
// Nightscout profile and running Autotune. The JSON tags define the
// persisted blob layout and the shape echoed to the backend on submission.
type ConversionSettings struct {
	// ProfileName selects the profile from the catalog to convert.
	ProfileName string `json:"profile_name,omitempty"`

	// Min5mCarbImpact is the minimum carb absorption in grams per 5 minutes.
	Min5mCarbImpact float64 `json:"min_5m_carbimpact"`

	// PumpBasalIncrement is the pump's programmable basal step in U/h.
	PumpBasalIncrement float64 `json:"pump_basal_increment"`

	// UAMAsBasal categorizes unannounced meals as basal.
	UAMAsBasal bool `json:"uam_as_basal"`

	// InsulinType selects the insulin activity curve.
	InsulinType profile.InsulinType `json:"insulin_type"`

	// AutotuneDays is the size of the tuning data window in days.
	AutotuneDays int `json:"autotune_days"`

	// EmailAddress optionally receives the results. Omitted from the
	// submission body when empty.
	EmailAddress string `json:"email_address,omitempty"`

	// AutosensMin and AutosensMax bound the sensitivity adjustments.
	AutosensMin float64 `json:"autosens_min"`
	AutosensMax float64 `json:"autosens_max"`

	// BasalSmoothing is the chosen smoothing intensity.
	BasalSmoothing profile.BasalSmoothing `json:"basal_smoothing,omitempty"`

	// ProfileData is the selected Nightscout profile.
	ProfileData *profile.NSProfile `json:"profile_data,omitempty"`

	// OAPSProfileData is the converted OpenAPS profile.
	OAPSProfileData *profile.OAPSProfile `json:"oaps_profile_data,omitempty"`
}

// DefaultConversionSettings returns the settings a fresh snapshot starts
// with.
func DefaultConversionSettings() ConversionSettings {
	return ConversionSettings{
		Min5mCarbImpact:    profile.DefaultMin5mCarbImpact,
		PumpBasalIncrement: 0.01,
		UAMAsBasal:         true,
		InsulinType:        profile.InsulinUnknown,
		AutotuneDays:       7,
		AutosensMin:        profile.DefaultAutosensMin,
		AutosensMax:        profile.DefaultAutosensMax,
	}
}

// Profiles is the cached Nightscout profile catalog, keyed by profile name.
type Profiles struct {
	Store map[string]profile.NSProfile `json:"store"`
}

// Snapshot is the complete persisted client state.
type Snapshot struct {
	// Version is the application version that last wrote this snapshot,
	// consumed by the migration runner.
	Version string `json:"version,omitempty"`

	// URL is the Nightscout instance URL.
	URL string `json:"url,omitempty"`

	// AccessToken authenticates against a locked-down instance.
	AccessToken string `json:"access_token,omitempty"`

	// NightscoutAPIVersion selects the API generation.
	NightscoutAPIVersion NightscoutAPIVersion `json:"nightscout_api_version,omitempty"`

	// Profiles is the loaded profile catalog.
	Profiles Profiles `json:"profiles"`

	// ConversionSettings are the current conversion parameters.
	ConversionSettings ConversionSettings `json:"conversion_settings"`
}

// NewSnapshot returns the zero snapshot a first-time client starts from.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Profiles:           Profiles{Store: map[string]profile.NSProfile{}},
		ConversionSettings: DefaultConversionSettings(),
	}
}

// Clone returns a deep-enough copy for handing out without aliasing the
// stored maps.
func (s *Snapshot) Clone() *Snapshot {
	cpy := *s
	cpy.Profiles.Store = make(map[string]profile.NSProfile, len(s.Profiles.Store))
	for name, p := range s.Profiles.Store {
		cpy.Profiles.Store[name] = p
	}
	return &cpy
}
