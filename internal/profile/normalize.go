package profile

import (
	"fmt"
	"strconv"
	"strings"
)

const secondsPerDay = 86400

// ValidationError describes a malformed schedule entry. It names the
// offending schedule and index so the caller can surface a precise message
// before any network interaction happens.
type ValidationError struct {
	Schedule string
	Index    int
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schedule %q entry %d: %s", e.Schedule, e.Index, e.Reason)
}

// Normalize derives all time representations of a raw schedule entry.
//
// The seconds form is authoritative when present; otherwise it is parsed from
// the %H:%M string. The %H:%M string is always recomputed from seconds rather
// than trusted, so both representations agree on the way out. An entry with
// neither representation fails validation; it is never defaulted to midnight.
func Normalize(schedule string, index int, entry TimedValue) (Normalized, error) {
	var seconds int

	switch {
	case entry.TimeAsSeconds != nil:
		seconds = int(entry.TimeAsSeconds.Float64())
		if seconds < 0 || seconds >= secondsPerDay {
			return Normalized{}, &ValidationError{
				Schedule: schedule,
				Index:    index,
				Reason:   fmt.Sprintf("timeAsSeconds %d outside [0, 86400)", seconds),
			}
		}
	case entry.Time != "":
		parsed, err := parseClock(entry.Time)
		if err != nil {
			return Normalized{}, &ValidationError{
				Schedule: schedule,
				Index:    index,
				Reason:   err.Error(),
			}
		}
		seconds = parsed
	default:
		return Normalized{}, &ValidationError{
			Schedule: schedule,
			Index:    index,
			Reason:   "neither time nor timeAsSeconds is set",
		}
	}

	clock := formatClock(seconds)

	return Normalized{
		TimeAsSeconds: seconds,
		Minutes:       seconds / 60,
		Time:          clock,
		Start:         clock + ":00",
		Value:         entry.Value.Float64(),
	}, nil
}

// parseClock parses an %H:%M string into seconds since midnight.
func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("time %q is not in HH:MM form", s)
	}

	hours, err := strconv.Atoi(hh)
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("time %q has an invalid hour", s)
	}

	minutes, err := strconv.Atoi(mm)
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("time %q has an invalid minute", s)
	}

	return hours*3600 + minutes*60, nil
}

// formatClock renders seconds since midnight as a zero-padded %H:%M string.
func formatClock(seconds int) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	return fmt.Sprintf("%02d:%02d", hours, minutes)
}
