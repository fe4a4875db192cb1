package state_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nighttune/nighttune/internal/profile"
	"github.com/nighttune/nighttune/internal/state"
)

func shortOAPSProfile() *profile.OAPSProfile {
	return &profile.OAPSProfile{
		BasalProfile: make([]profile.BasalTimeslot, 2),
	}
}

func longOAPSProfile() *profile.OAPSProfile {
	return &profile.OAPSProfile{
		BasalProfile: make([]profile.BasalTimeslot, profile.SmoothingMinBasalElements),
	}
}

func TestMigrateStampsVersion(t *testing.T) {
	snap := state.NewSnapshot()

	changed := state.Migrate(snap, "3.0.0")

	assert.True(t, changed)
	assert.Equal(t, "3.0.0", snap.Version)
}

func TestMigrateIsIdempotent(t *testing.T) {
	snap := state.NewSnapshot()
	snap.ConversionSettings.BasalSmoothing = profile.SmoothingHigh
	snap.ConversionSettings.OAPSProfileData = longOAPSProfile()

	require.True(t, state.Migrate(snap, "3.0.0"))
	first := *snap

	assert.False(t, state.Migrate(snap, "3.0.0"))
	assert.Equal(t, first, *snap)
}

func TestMigrateResetsUnavailableSmoothing(t *testing.T) {
	snap := state.NewSnapshot()
	snap.Version = "1.4.0"
	snap.ConversionSettings.BasalSmoothing = profile.SmoothingMedium
	snap.ConversionSettings.OAPSProfileData = shortOAPSProfile()

	state.Migrate(snap, "3.0.0")

	assert.Equal(t, profile.SmoothingNone, snap.ConversionSettings.BasalSmoothing)
}

func TestMigrateKeepsAvailableSmoothing(t *testing.T) {
	snap := state.NewSnapshot()
	snap.Version = "1.4.0"
	snap.ConversionSettings.BasalSmoothing = profile.SmoothingLow
	snap.ConversionSettings.OAPSProfileData = longOAPSProfile()

	state.Migrate(snap, "3.0.0")

	assert.Equal(t, profile.SmoothingLow, snap.ConversionSettings.BasalSmoothing)
}

func TestMigrateSkipsOutOfWindowMigrations(t *testing.T) {
	snap := state.NewSnapshot()
	snap.Version = "1.5.1"
	snap.ConversionSettings.BasalSmoothing = profile.SmoothingHigh
	snap.ConversionSettings.OAPSProfileData = shortOAPSProfile()
	snap.NightscoutAPIVersion = state.NightscoutAPIV3

	state.Migrate(snap, "2.0.0")

	// 1.5.0 is older than the snapshot and 2.4.0 is newer than the target
	// version, so neither touches the settings.
	assert.Equal(t, profile.SmoothingHigh, snap.ConversionSettings.BasalSmoothing)
	assert.Equal(t, state.NightscoutAPIV3, snap.NightscoutAPIVersion)
	assert.Equal(t, "2.0.0", snap.Version)
}

func TestMigrateRerunsSameVersionMigration(t *testing.T) {
	snap := state.NewSnapshot()
	snap.Version = "1.5.0"
	snap.ConversionSettings.BasalSmoothing = profile.SmoothingHigh
	snap.ConversionSettings.OAPSProfileData = shortOAPSProfile()

	state.Migrate(snap, "2.0.0")

	// The window includes the snapshot's own version, so 1.5.0 runs again
	// and reconciles the smoothing level.
	assert.Equal(t, profile.SmoothingNone, snap.ConversionSettings.BasalSmoothing)
}

func TestMigrateDefaultsAPIVersion(t *testing.T) {
	snap := state.NewSnapshot()
	snap.Version = "2.3.0"

	state.Migrate(snap, "2.4.0")

	assert.Equal(t, state.NightscoutAPIV1, snap.NightscoutAPIVersion)
}

func TestMigratePreservesExplicitAPIVersion(t *testing.T) {
	snap := state.NewSnapshot()
	snap.Version = "2.3.0"
	snap.NightscoutAPIVersion = state.NightscoutAPIV3

	state.Migrate(snap, "2.4.0")

	assert.Equal(t, state.NightscoutAPIV3, snap.NightscoutAPIVersion)
}

func TestMigrateUnversionedSnapshotRunsEverything(t *testing.T) {
	snap := state.NewSnapshot()
	snap.ConversionSettings.BasalSmoothing = profile.SmoothingMedium
	snap.ConversionSettings.OAPSProfileData = shortOAPSProfile()

	state.Migrate(snap, "3.0.0")

	assert.Equal(t, profile.SmoothingNone, snap.ConversionSettings.BasalSmoothing)
	assert.Equal(t, state.NightscoutAPIV1, snap.NightscoutAPIVersion)
}
