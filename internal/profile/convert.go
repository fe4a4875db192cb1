package profile

import (
	"fmt"
	"sort"
)

// Conversion parameter defaults, matching the values Autotune was designed
// around.
const (
	DefaultMin5mCarbImpact = 8.0
	DefaultAutosensMin     = 0.7
	DefaultAutosensMax     = 1.2
)

// Params are the tuning parameters attached to a converted profile.
type Params struct {
	// Min5mCarbImpact is the minimum carb absorption in grams per 5 minutes.
	Min5mCarbImpact float64

	// AutosensMin and AutosensMax bound the multiplicative sensitivity
	// adjustments Autotune may apply.
	AutosensMin float64
	AutosensMax float64

	// Curve selects the insulin activity curve.
	Curve InsulinType
}

// DefaultParams returns the conversion parameters used when the caller has
// not overridden anything.
func DefaultParams() Params {
	return Params{
		Min5mCarbImpact: DefaultMin5mCarbImpact,
		AutosensMin:     DefaultAutosensMin,
		AutosensMax:     DefaultAutosensMax,
		Curve:           InsulinRapidActing,
	}
}

// InconsistentTargetError reports a BG target time that has a low entry
// without a high counterpart, or the other way around. The conversion fails
// as a whole rather than emitting a window with an undefined bound.
type InconsistentTargetError struct {
	Time    string
	Missing string
}

func (e *InconsistentTargetError) Error() string {
	return fmt.Sprintf("bg target at %s has no %s counterpart", e.Time, e.Missing)
}

// targetPair collects the two halves of a BG target window while merging.
type targetPair struct {
	low  *Normalized
	high *Normalized
}

// Convert translates a Nightscout profile into an OpenAPS profile, analog to
// the oref0 get_profile implementation.
//
// Basal entries are copied one-to-one with a sequential index and a rate
// key. BG targets are merged by exact time-of-day key into combined windows.
// Carb ratio and sensitivity schedules are collapsed to a single weighted
// average each, because Autotune only reads the first element of either
// schedule; the full schedules stay available on the source profile.
func Convert(ns *NSProfile, params Params) (*OAPSProfile, error) {
	out := &OAPSProfile{
		AutosensMax:     params.AutosensMax,
		AutosensMin:     params.AutosensMin,
		Curve:           params.Curve,
		DIA:             ns.DIA.Float64(),
		Min5mCarbImpact: params.Min5mCarbImpact,
		OutUnits:        ns.Units,
		Timezone:        ns.Timezone,
		BGTargets: BGTargets{
			Units:              ns.Units,
			UserPreferredUnits: ns.Units,
			Targets:            []BGTimeslot{},
		},
		CarbRatios: CarbRatios{
			First:    1,
			Units:    "grams",
			Schedule: []CarbRatioTimeslot{},
		},
		ISFProfile: ISFProfile{
			First:         1,
			Sensitivities: []SensitivityTimeslot{},
		},
	}

	// Basal schedule, entry for entry.
	out.BasalProfile = make([]BasalTimeslot, 0, len(ns.Basal))
	for i, entry := range ns.Basal {
		normalized, err := Normalize("basal", i, entry)
		if err != nil {
			return nil, err
		}
		out.BasalProfile = append(out.BasalProfile, BasalTimeslot{
			Index:      i,
			Normalized: normalized,
			Rate:       entry.Value.Float64(),
		})
	}

	targets, err := mergeTargets(ns.TargetLow, ns.TargetHigh)
	if err != nil {
		return nil, err
	}
	out.BGTargets.Targets = targets

	// Autotune only reads the first carb ratio and the first sensitivity,
	// so both schedules collapse to their weighted average at midnight.
	ratio, err := scheduleAverage("carbratio", ns.CarbRatio)
	if err != nil {
		return nil, err
	}
	out.CarbRatio = ratio
	out.CarbRatios.Schedule = append(out.CarbRatios.Schedule, CarbRatioTimeslot{
		Index:  0,
		Offset: 0,
		Ratio:  ratio,
		Start:  "00:00:00",
	})

	sens, err := scheduleAverage("sens", ns.Sens)
	if err != nil {
		return nil, err
	}
	out.ISFProfile.Sensitivities = append(out.ISFProfile.Sensitivities, SensitivityTimeslot{
		Index:       0,
		Offset:      0,
		Start:       "00:00:00",
		Sensitivity: sens,
	})

	return out, nil
}

// mergeTargets normalizes the low and high target schedules and merges them
// by exact time-of-day key into combined windows, sorted ascending and
// sequentially indexed. An orphaned bound fails the merge.
func mergeTargets(lows, highs []TimedValue) ([]BGTimeslot, error) {
	pairs := make(map[string]*targetPair)

	for i, entry := range lows {
		normalized, err := Normalize("target_low", i, entry)
		if err != nil {
			return nil, err
		}
		pair := pairs[normalized.Time]
		if pair == nil {
			pair = &targetPair{}
			pairs[normalized.Time] = pair
		}
		n := normalized
		pair.low = &n
	}

	for i, entry := range highs {
		normalized, err := Normalize("target_high", i, entry)
		if err != nil {
			return nil, err
		}
		pair := pairs[normalized.Time]
		if pair == nil {
			pair = &targetPair{}
			pairs[normalized.Time] = pair
		}
		n := normalized
		pair.high = &n
	}

	times := make([]string, 0, len(pairs))
	for t := range pairs {
		times = append(times, t)
	}
	sort.Strings(times)

	targets := make([]BGTimeslot, 0, len(times))
	for _, t := range times {
		pair := pairs[t]
		if pair.low == nil {
			return nil, &InconsistentTargetError{Time: t, Missing: "low"}
		}
		if pair.high == nil {
			return nil, &InconsistentTargetError{Time: t, Missing: "high"}
		}
		targets = append(targets, BGTimeslot{
			Index:  len(targets),
			Start:  pair.low.Start,
			Offset: pair.low.TimeAsSeconds,
			Low:    pair.low.Value,
			MinBG:  pair.low.Value,
			High:   pair.high.Value,
			MaxBG:  pair.high.Value,
		})
	}

	return targets, nil
}

// scheduleAverage normalizes a raw schedule and reduces it to its weighted
// average.
func scheduleAverage(schedule string, entries []TimedValue) (float64, error) {
	if len(entries) == 0 {
		return 0, &ValidationError{Schedule: schedule, Index: 0, Reason: "schedule is empty"}
	}

	normalized := make([]Normalized, 0, len(entries))
	for i, entry := range entries {
		n, err := Normalize(schedule, i, entry)
		if err != nil {
			return 0, err
		}
		normalized = append(normalized, n)
	}

	return WeightedAverage(normalized), nil
}
