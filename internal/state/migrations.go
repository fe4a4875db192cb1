package state

import (
	"sort"

	"golang.org/x/mod/semver"

	"github.com/nighttune/nighttune/internal/profile"
)

// Migration upgrades a persisted snapshot written by an older release.
// Version is the release the migration belongs to, without a "v" prefix.
type Migration struct {
	Version string
	Apply   func(*Snapshot)
}

// migrations holds every known migration. Migrate sorts them, so order here
// does not matter.
var migrations = []Migration{
	{
		// Basal smoothing was introduced with a minimum schedule length.
		// Snapshots written before the check could hold a smoothing level
		// for a profile too short to smooth.
		Version: "1.5.0",
		Apply: func(snap *Snapshot) {
			settings := &snap.ConversionSettings
			if settings.BasalSmoothing == "" {
				settings.BasalSmoothing = profile.SmoothingNone
				return
			}
			if !profile.IsSmoothingAvailable(settings.OAPSProfileData) {
				settings.BasalSmoothing = profile.SmoothingNone
			}
		},
	},
	{
		// The API version selector did not exist before 2.4.0; older
		// snapshots implicitly used v1.
		Version: "2.4.0",
		Apply: func(snap *Snapshot) {
			if snap.NightscoutAPIVersion == "" {
				snap.NightscoutAPIVersion = NightscoutAPIV1
			}
		},
	},
}

// Migrate applies every migration between the snapshot's version and
// appVersion, both bounds inclusive, in ascending order, then stamps the
// snapshot with appVersion. The lower bound is inclusive so a migration
// shipped in the same release the snapshot was written by still runs; each
// migration is idempotent, so a re-run changes nothing. It reports whether
// anything changed. An empty snapshot version is treated as older than every
// migration.
func Migrate(snap *Snapshot, appVersion string) bool {
	pending := pendingMigrations(snap.Version, appVersion)
	for _, m := range pending {
		m.Apply(snap)
	}

	changed := len(pending) > 0
	if snap.Version != appVersion {
		snap.Version = appVersion
		changed = true
	}
	return changed
}

func pendingMigrations(fromVersion, toVersion string) []Migration {
	from := canonical(fromVersion)
	to := canonical(toVersion)

	var pending []Migration
	for _, m := range migrations {
		v := canonical(m.Version)
		if from != "" && semver.Compare(v, from) < 0 {
			continue
		}
		if semver.Compare(v, to) > 0 {
			continue
		}
		pending = append(pending, m)
	}

	sort.Slice(pending, func(i, j int) bool {
		return semver.Compare(canonical(pending[i].Version), canonical(pending[j].Version)) < 0
	})
	return pending
}

// canonical converts a bare release version to the "v"-prefixed form the
// semver package expects. Unparseable versions compare as empty.
func canonical(version string) string {
	if version == "" {
		return ""
	}
	v := "v" + version
	if !semver.IsValid(v) {
		return ""
	}
	return semver.Canonical(v)
}
