package profile

import "math"

// WeightedAverage reduces a time-ordered schedule covering one 24-hour cycle
// to a single value: each entry is weighted by the number of hours it is in
// effect, i.e. the span to the next entry (or to midnight for the last one).
// The result is rounded to one decimal.
//
// Entries must be sorted ascending by time of day. A single-entry schedule
// yields that entry's value unchanged.
func WeightedAverage(entries []Normalized) float64 {
	var sum float64
	for i, entry := range entries {
		next := secondsPerDay
		if i+1 < len(entries) {
			next = entries[i+1].TimeAsSeconds
		}
		hours := float64(next-entry.TimeAsSeconds) / 3600
		sum += entry.Value * hours
	}

	return math.Round(sum/24*10) / 10
}
