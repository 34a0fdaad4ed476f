package newsfeed

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCalendar_ParsesLooseJSON(t *testing.T) {
	payload := `{
		"events": [
			{"time": "2026-07-27T14:30:00Z", "currency": "usd", "impact": "high", "title": "FOMC Rate Decision"},
			{"time": "2026-07-27T09:00:00Z", "currency": "EUR", "impact": "med", "title": "German IFO"},
			{"time": "not-a-time", "currency": "GBP", "impact": "high", "title": "broken row"},
			{"time": "2026-07-28T01:00:00Z", "currency": "JPY", "impact": "low", "title": "minor print"}
		]
	}`
	path := filepath.Join(t.TempDir(), "calendar.json")
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	cal, err := LoadCalendar(path)
	require.NoError(t, err)
	require.Len(t, cal.events, 3, "unparsable rows are skipped")
	assert.Equal(t, ImpactHigh, cal.events[0].Impact)
	assert.Equal(t, "USD", cal.events[0].Currency)
	assert.Equal(t, ImpactMedium, cal.events[1].Impact)
}

func TestCalendar_AllowedBlocksInsideHorizon(t *testing.T) {
	fomc := time.Date(2026, 7, 27, 14, 30, 0, 0, time.UTC)
	cal := NewCalendar([]Event{
		{Time: fomc, Currency: "USD", Impact: ImpactHigh, Title: "FOMC"},
	})

	ok, reason := cal.Allowed("EURUSD", fomc.Add(-20*time.Minute), 30*time.Minute)
	assert.False(t, ok)
	assert.Equal(t, "FOMC", reason)

	ok, _ = cal.Allowed("EURUSD", fomc.Add(-2*time.Hour), 30*time.Minute)
	assert.True(t, ok, "outside the horizon entries are allowed")

	ok, _ = cal.Allowed("EURGBP", fomc.Add(-20*time.Minute), 30*time.Minute)
	assert.True(t, ok, "symbol without the event's currency is unaffected")
}

func TestCalendar_LowImpactNeverBlocks(t *testing.T) {
	at := time.Date(2026, 7, 27, 10, 0, 0, 0, time.UTC)
	cal := NewCalendar([]Event{
		{Time: at.Add(10 * time.Minute), Currency: "EUR", Impact: ImpactLow, Title: "minor"},
	})
	ok, _ := cal.Allowed("EURUSD", at, time.Hour)
	assert.True(t, ok)
}

func TestCalendar_EmergencyExitOnlyHighImpact(t *testing.T) {
	at := time.Date(2026, 7, 27, 10, 0, 0, 0, time.UTC)
	cal := NewCalendar([]Event{
		{Time: at.Add(10 * time.Minute), Currency: "EUR", Impact: ImpactMedium, Title: "medium"},
		{Time: at.Add(12 * time.Minute), Currency: "USD", Impact: ImpactHigh, Title: "NFP"},
	})

	exit, reason := cal.EmergencyExit("EURUSD", at, 15*time.Minute)
	assert.True(t, exit)
	assert.Equal(t, "NFP", reason)

	exit, _ = cal.EmergencyExit("EURGBP", at, 15*time.Minute)
	assert.False(t, exit, "medium impact does not force an exit")
}

func TestAllowAll(t *testing.T) {
	var f Filter = AllowAll{}
	ok, _ := f.Allowed("EURUSD", time.Now(), time.Hour)
	assert.True(t, ok)
	exit, _ := f.EmergencyExit("EURUSD", time.Now(), time.Hour)
	assert.False(t, exit)
}
