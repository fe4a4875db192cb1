// Package profile converts Nightscout treatment profiles into the OpenAPS
// profile shape consumed by Autotune.
package profile

import (
	"bytes"
	"fmt"
	"strconv"
)

// Number is a float64 that also accepts quoted numeric strings when
// unmarshaling. Nightscout stores schedule values inconsistently, so the
// coercion happens once at the decode boundary and everything past it works
// with plain float64 arithmetic.
type Number float64

// UnmarshalJSON implements json.Unmarshaler. Null is rejected: a schedule
// value with no number is bad input, never a zero rate.
func (n *Number) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("numeric value is null")
	}

	data = bytes.Trim(data, `"`)
	if len(data) == 0 {
		return fmt.Errorf("numeric value is empty")
	}

	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("parse numeric value %q: %w", data, err)
	}

	*n = Number(f)
	return nil
}

// Float64 returns the plain float64 value.
func (n Number) Float64() float64 {
	return float64(n)
}

// Unit is a blood glucose unit as reported by Nightscout.
// Both mg/dl and mmol spellings occur in the wild.
type Unit string

// InsulinType selects the insulin activity curve used by Autotune.
type InsulinType string

// Supported insulin activity curves.
const (
	InsulinRapidActing InsulinType = "rapid-acting"
	InsulinUltraRapid  InsulinType = "ultra-rapid"
	InsulinUnknown     InsulinType = "__default__"
)

// IsInsulinType reports whether value names a known insulin curve.
func IsInsulinType(value string) bool {
	switch InsulinType(value) {
	case InsulinRapidActing, InsulinUltraRapid, InsulinUnknown:
		return true
	default:
		return false
	}
}

// SmoothingMinBasalElements is the minimum number of basal timeslots a
// profile needs before basal smoothing produces meaningful output.
const SmoothingMinBasalElements = 5

// BasalSmoothing is the intensity of the basal smoothing pass applied to
// tuning results.
type BasalSmoothing string

// Smoothing intensities.
const (
	SmoothingNone   BasalSmoothing = "none"
	SmoothingLow    BasalSmoothing = "low"
	SmoothingMedium BasalSmoothing = "medium"
	SmoothingHigh   BasalSmoothing = "high"
)

// TimedValue is one raw entry of a 24-hour cyclic schedule as delivered by
// Nightscout. Either Time ("HH:MM") or TimeAsSeconds is populated; an entry
// with neither is malformed.
type TimedValue struct {
	// Time is the time of day in %H:%M form, e.g. "14:00".
	Time string `json:"time,omitempty"`

	// TimeAsSeconds is the time of day in seconds since midnight,
	// e.g. 14400 for 04:00. A pointer distinguishes 0 (midnight) from
	// absent.
	TimeAsSeconds *Number `json:"timeAsSeconds,omitempty"`

	// Value is the scheduled value, coerced to numeric at the boundary.
	Value Number `json:"value"`
}

// Normalized is a TimedValue with all time representations derived and
// consistent.
type Normalized struct {
	// TimeAsSeconds is the time of day in seconds since midnight.
	TimeAsSeconds int `json:"timeAsSeconds"`

	// Minutes is the time of day in minutes since midnight.
	Minutes int `json:"minutes"`

	// Time is the %H:%M form, e.g. "04:00".
	Time string `json:"time"`

	// Start is the %H:%M:%S form, e.g. "04:00:00".
	Start string `json:"start"`

	// Value is the scheduled value.
	Value float64 `json:"value"`
}

// NSProfile is a single named Nightscout profile definition.
type NSProfile struct {
	// DIA is the duration of insulin activity in hours.
	DIA Number `json:"dia"`

	// Units are the blood glucose units used throughout this profile.
	Units Unit `json:"units"`

	// Timezone is the profile's native timezone name, e.g. "Europe/Amsterdam".
	Timezone string `json:"timezone"`

	// CarbRatio holds the insulin/carb ratio schedule.
	CarbRatio []TimedValue `json:"carbratio"`

	// Sens holds the insulin sensitivity factor schedule.
	Sens []TimedValue `json:"sens"`

	// Basal holds the basal rate schedule in U/h.
	Basal []TimedValue `json:"basal"`

	// TargetLow holds the lower BG target schedule.
	TargetLow []TimedValue `json:"target_low"`

	// TargetHigh holds the upper BG target schedule.
	TargetHigh []TimedValue `json:"target_high"`
}

// BasalTimeslot is one output basal entry, index-tagged by its position.
type BasalTimeslot struct {
	Index int `json:"i"`
	Normalized
	// Rate is the basal rate in U/h; equal to Value, kept separately
	// because Autotune reads the rate key.
	Rate float64 `json:"rate"`
}

// BGTimeslot is one merged blood glucose target window.
type BGTimeslot struct {
	Index int `json:"i"`

	// Start is the window start in %H:%M:%S form.
	Start string `json:"start"`

	// Offset is the window start in seconds since midnight.
	Offset int `json:"offset"`

	Low   float64 `json:"low"`
	MinBG float64 `json:"min_bg"`
	High  float64 `json:"high"`
	MaxBG float64 `json:"max_bg"`
}

// CarbRatioTimeslot is one output carb ratio entry.
type CarbRatioTimeslot struct {
	Index  int     `json:"i"`
	Offset int     `json:"offset"`
	Ratio  float64 `json:"ratio"`
	Start  string  `json:"start"`
}

// SensitivityTimeslot is one output insulin sensitivity entry.
type SensitivityTimeslot struct {
	Index       int     `json:"i"`
	Offset      int     `json:"offset"`
	Start       string  `json:"start"`
	Sensitivity float64 `json:"sensitivity"`
}

// BGTargets groups the merged target windows with their units.
type BGTargets struct {
	Units              Unit         `json:"units"`
	UserPreferredUnits Unit         `json:"user_preferred_units"`
	Targets            []BGTimeslot `json:"targets"`
}

// CarbRatios wraps the carb ratio schedule the way Autotune expects it.
type CarbRatios struct {
	First    int                 `json:"first"`
	Units    string              `json:"units"`
	Schedule []CarbRatioTimeslot `json:"schedule"`
}

// ISFProfile wraps the sensitivity schedule the way Autotune expects it.
type ISFProfile struct {
	First         int                   `json:"first"`
	Sensitivities []SensitivityTimeslot `json:"sensitivities"`
}

// OAPSProfile is the converted OpenAPS profile handed to Autotune.
//
// Fields are declared in lexicographic JSON key order so serialized output is
// byte-for-byte deterministic.
type OAPSProfile struct {
	AutosensMax     float64         `json:"autosens_max"`
	AutosensMin     float64         `json:"autosens_min"`
	BasalProfile    []BasalTimeslot `json:"basalprofile"`
	BGTargets       BGTargets       `json:"bg_targets"`
	CarbRatio       float64         `json:"carb_ratio"`
	CarbRatios      CarbRatios      `json:"carb_ratios"`
	Curve           InsulinType     `json:"curve"`
	DIA             float64         `json:"dia"`
	ISFProfile      ISFProfile      `json:"isfProfile"`
	Min5mCarbImpact float64         `json:"min_5m_carbimpact"`
	OutUnits        Unit            `json:"out_units"`
	Timezone        string          `json:"timezone"`
}

// IsSmoothingAvailable reports whether the converted profile has enough basal
// timeslots for basal smoothing to be offered.
func IsSmoothingAvailable(p *OAPSProfile) bool {
	return p != nil && len(p.BasalProfile) >= SmoothingMinBasalElements
}
