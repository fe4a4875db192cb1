package models

import (
	"github.com/nighttune/nighttune/internal/autotune"
	"github.com/nighttune/nighttune/internal/profile"
	"github.com/nighttune/nighttune/internal/state"
)

// Instance describes the configured Nightscout instance. The access token is
// never echoed back; only its presence is reported.
type Instance struct {
	URL                  string                     `json:"url"`
	HasAccessToken       bool                       `json:"hasAccessToken"`
	NightscoutAPIVersion state.NightscoutAPIVersion `json:"nightscoutApiVersion,omitempty"`
}

// InstanceRequest sets the Nightscout instance. An empty AccessToken clears
// the stored token.
type InstanceRequest struct {
	URL                  string                     `json:"url"`
	AccessToken          string                     `json:"accessToken,omitempty"`
	NightscoutAPIVersion state.NightscoutAPIVersion `json:"nightscoutApiVersion,omitempty"`
}

// ProfilesResponse is the cached profile catalog.
type ProfilesResponse struct {
	DefaultProfile string   `json:"defaultProfile,omitempty"`
	Profiles       []string `json:"profiles"`
}

// ConvertRequest runs the profile conversion. ProfileName overrides the
// stored selection when set.
type ConvertRequest struct {
	ProfileName string `json:"profileName,omitempty"`
}

// ConvertResponse carries the converted profile.
type ConvertResponse struct {
	Profile *profile.OAPSProfile `json:"profile"`
}

// JobsResponse is the tracked job list plus lifecycle flags.
type JobsResponse struct {
	Jobs              []autotune.Job          `json:"jobs"`
	Active            bool                    `json:"active"`
	LastSubmitFailure *autotune.SubmitFailure `json:"lastSubmitFailure,omitempty"`
}

// SubmitJobResponse echoes the accepted submission's tracked state.
type SubmitJobResponse struct {
	Jobs   []autotune.Job `json:"jobs"`
	Active bool           `json:"active"`
}

// ResultResponse carries a job's recommendation set.
type ResultResponse struct {
	Result *autotune.Result `json:"result"`
}

// ApplyProfileRequest creates a Nightscout profile from a job result.
type ApplyProfileRequest struct {
	Name     string `json:"name"`
	Smoothed bool   `json:"smoothed,omitempty"`
}
