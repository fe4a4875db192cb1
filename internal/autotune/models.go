// Package autotune consumes the Autotune backend job API and tracks the
// lifecycle of tuning jobs.
package autotune

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/nighttune/nighttune/internal/profile"
)

// JobStatus is the closed set of states a tuning job can be in.
type JobStatus string

// Job states. Submitted and Processing are collectively "active"; Success
// and Error are terminal.
const (
	StatusSubmitted  JobStatus = "submitted"
	StatusProcessing JobStatus = "processing"
	StatusSuccess    JobStatus = "success"
	StatusError      JobStatus = "error"
)

// ParseJobStatus validates a raw status value from the backend.
func ParseJobStatus(value string) (JobStatus, error) {
	switch status := JobStatus(value); status {
	case StatusSubmitted, StatusProcessing, StatusSuccess, StatusError:
		return status, nil
	default:
		return "", fmt.Errorf("unknown job status %q", value)
	}
}

// UnmarshalJSON implements json.Unmarshaler, rejecting unknown states at the
// decode boundary.
func (s *JobStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	status, err := ParseJobStatus(raw)
	if err != nil {
		return err
	}

	*s = status
	return nil
}

// IsTerminal reports whether no further transition occurs for this status.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusError:
		return true
	case StatusSubmitted, StatusProcessing:
		return false
	}
	return false
}

// IsActive reports whether a job in this status still occupies the session.
func (s JobStatus) IsActive() bool {
	switch s {
	case StatusSubmitted, StatusProcessing:
		return true
	case StatusSuccess, StatusError:
		return false
	}
	return false
}

// Job is one tuning job as reported by the backend.
type Job struct {
	ID          string    `json:"id"`
	Status      JobStatus `json:"status"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Options echoes the settings a job was submitted with.
type Options struct {
	JobID           string                 `json:"jobId"`
	NSHost          string                 `json:"nsHost"`
	DateFrom        string                 `json:"dateFrom"`
	DateTo          string                 `json:"dateTo"`
	UAM             bool                   `json:"uam"`
	AutotuneVersion string                 `json:"autotuneVersion"`
	TimeZone        string                 `json:"timeZone"`
	BasalIncrement  float64                `json:"basalIncrement"`
	BasalSmoothing  profile.BasalSmoothing `json:"basalSmoothing"`
}

// RecommendationType tags a recommendation by the parameter it adjusts.
type RecommendationType string

// Recommendation kinds.
const (
	RecommendationISF   RecommendationType = "ISF"
	RecommendationCR    RecommendationType = "CR"
	RecommendationBasal RecommendationType = "BASAL"
)

// PostProcessType names a post-processing pass applied to a basal
// recommendation.
type PostProcessType string

// Post-processing passes.
const (
	PostProcessSmooth PostProcessType = "SMOOTH"
)

// PostProcessed maps a post-processing pass to its resulting value. The
// backend serializes it as a tagged pair list: {"dt":"Map","v":[[k,v],...]}.
type PostProcessed map[PostProcessType]float64

// UnmarshalJSON implements json.Unmarshaler for the backend's Map encoding.
// A plain JSON object is accepted as well.
func (p *PostProcessed) UnmarshalJSON(data []byte) error {
	var tagged struct {
		DT string            `json:"dt"`
		V  [][2]json.RawMessage `json:"v"`
	}
	if err := json.Unmarshal(data, &tagged); err == nil && tagged.DT == "Map" {
		out := make(PostProcessed, len(tagged.V))
		for _, pair := range tagged.V {
			var key PostProcessType
			if err := json.Unmarshal(pair[0], &key); err != nil {
				return fmt.Errorf("decoding post-process key: %w", err)
			}
			var value float64
			if err := json.Unmarshal(pair[1], &value); err != nil {
				return fmt.Errorf("decoding post-process value: %w", err)
			}
			out[key] = value
		}
		*p = out
		return nil
	}

	var plain map[PostProcessType]float64
	if err := json.Unmarshal(data, &plain); err != nil {
		return err
	}
	*p = plain
	return nil
}

// Recommendation is a single tuning recommendation. The basal-only fields
// are zero for ISF and CR recommendations.
type Recommendation struct {
	Type             RecommendationType `json:"type"`
	CurrentValue     float64            `json:"currentValue"`
	RecommendedValue float64            `json:"recommendedValue"`

	// When is the timeslot start a basal recommendation applies to.
	When string `json:"when,omitempty"`

	// DaysMissing counts the days in the tuning window without data for
	// this timeslot.
	DaysMissing int `json:"daysMissing,omitempty"`

	// RoundedRecommendation is the value rounded to the pump's
	// programmable basal increment.
	RoundedRecommendation float64 `json:"roundedRecommendation,omitempty"`

	// PostProcessed holds smoothed variants of the recommendation.
	PostProcessed PostProcessed `json:"postProcessed,omitempty"`
}

// Result is the full payload of a finished job.
type Result struct {
	Options         Options          `json:"options"`
	Recommendations []Recommendation `json:"recommendations"`
}

// FindISF returns the insulin sensitivity recommendation, or nil.
func (r *Result) FindISF() *Recommendation {
	return r.find(RecommendationISF)
}

// FindCR returns the carb ratio recommendation, or nil.
func (r *Result) FindCR() *Recommendation {
	return r.find(RecommendationCR)
}

// FindBasal returns all per-timeslot basal recommendations.
func (r *Result) FindBasal() []Recommendation {
	out := make([]Recommendation, 0, len(r.Recommendations))
	for _, rec := range r.Recommendations {
		if rec.Type == RecommendationBasal {
			out = append(out, rec)
		}
	}
	return out
}

func (r *Result) find(kind RecommendationType) *Recommendation {
	for i := range r.Recommendations {
		if r.Recommendations[i].Type == kind {
			return &r.Recommendations[i]
		}
	}
	return nil
}

// RoundToIncrement rounds value to the nearest multiple of increment, ties
// rounding down, to two decimals. Pumps only accept basal rates on their
// programmable increment.
func RoundToIncrement(value, increment float64) float64 {
	factor := 1 / increment
	rounded := math.Ceil(value*factor-0.5) / factor
	return math.Round(rounded*100) / 100
}
