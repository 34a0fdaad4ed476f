package detect

import "time"

// KillzoneName identifies one of the named institutional-activity windows.
type KillzoneName string

const (
	KillzoneLondonOpen  KillzoneName = "LONDON_OPEN"
	KillzoneLondon      KillzoneName = "LONDON"
	KillzoneNYOpen      KillzoneName = "NY_OPEN"
	KillzoneNY          KillzoneName = "NY"
	KillzoneLondonClose KillzoneName = "LONDON_CLOSE"
	KillzoneNone        KillzoneName = "NONE"
)

type killzoneWindow struct {
	name           KillzoneName
	startH, endH   int // UTC hour range, end exclusive
}

// killzoneWindows are the named institutional-activity windows in UTC
// (spec §4.E veto 1: London Open 07-10, London 10-16, NY Open 12-15,
// NY 15-21, London Close 15-17).
var killzoneWindows = []killzoneWindow{
	{KillzoneLondonOpen, 7, 10},
	{KillzoneLondon, 10, 16},
	{KillzoneNYOpen, 12, 15},
	{KillzoneNY, 15, 21},
	{KillzoneLondonClose, 15, 17},
}

// CurrentKillzone reports the named window `at` falls within, applying
// the given UTC offset (minutes) before comparison. Overlapping windows
// both "fire"; the first match by table order is returned as the
// canonical name, but InKillzone is true if any window matches.
func CurrentKillzone(at time.Time, utcOffsetMinutes int) (KillzoneName, bool) {
	t := at.UTC().Add(time.Duration(utcOffsetMinutes) * time.Minute)
	h := t.Hour()
	for _, w := range killzoneWindows {
		if h >= w.startH && h < w.endH {
			return w.name, true
		}
	}
	return KillzoneNone, false
}

// InAsianSession reports whether `at` falls in the non-crypto Asian
// session window (spec §4.E veto 2: hour 0..8 UTC).
func InAsianSession(at time.Time) bool {
	h := at.UTC().Hour()
	return h >= 0 && h < 8
}

// SilverBulletWindowStart/End bound the ICT Silver Bullet execution
// window: 10:00-11:00 UTC (New York 06:00-07:00 under daylight saving
// time), ahead of the 12-15 UTC NY Open killzone.
const (
	SilverBulletStartHour = 10
	SilverBulletEndHour   = 11
)

// InSilverBulletWindow reports whether `at` falls in the Silver Bullet
// execution window.
func InSilverBulletWindow(at time.Time) bool {
	h := at.UTC().Hour()
	return h >= SilverBulletStartHour && h < SilverBulletEndHour
}

// AMDPhase names the three phases of the Accumulation/Manipulation/
// Distribution cycle.
type AMDPhase string

const (
	AMDAccumulation AMDPhase = "ACCUMULATION"
	AMDManipulation AMDPhase = "MANIPULATION"
	AMDDistribution AMDPhase = "DISTRIBUTION"
	AMDNone         AMDPhase = "NONE"
)

// AMDCycle classifies the current hour into an AMD phase using the
// Asian range as accumulation, the killzone opens as manipulation
// (liquidity sweep), and the subsequent trend move as distribution.
func AMDCycle(at time.Time, asianValid bool, sweepConfirmed bool) AMDPhase {
	h := at.UTC().Hour()
	switch {
	case asianValid && h >= AsianWindowStartHour && h < AsianWindowEndHour:
		return AMDAccumulation
	case h >= 7 && h < 10:
		if sweepConfirmed {
			return AMDDistribution
		}
		return AMDManipulation
	case h >= 10 && h < 16:
		return AMDDistribution
	default:
		return AMDNone
	}
}
