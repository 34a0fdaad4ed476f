// Package newsfeed is the narrow news/fundamental collaborator surface
// of spec §9: the core asks Allowed(symbol, horizon) before entries and
// EmergencyExit(symbol, horizon) while managing positions; it never
// fetches calendars itself. A JSON-calendar-backed implementation is
// provided for paper mode and tests.
package newsfeed

import (
	"fmt"
	"os"
	"strings"
	"time"

	simplejson "github.com/bitly/go-simplejson"
)

// Impact grades a calendar event.
type Impact string

const (
	ImpactLow    Impact = "LOW"
	ImpactMedium Impact = "MEDIUM"
	ImpactHigh   Impact = "HIGH"
)

// Event is one scheduled economic release.
type Event struct {
	Time     time.Time
	Currency string
	Impact   Impact
	Title    string
}

// Filter is what the risk controller and position manager consume.
type Filter interface {
	// Allowed reports whether a new entry on symbol is permitted given
	// events inside the horizon, with the blocking event's title when
	// not.
	Allowed(symbol string, at time.Time, horizon time.Duration) (bool, string)

	// EmergencyExit reports whether open positions on symbol should be
	// closed ahead of a high-impact event inside the horizon.
	EmergencyExit(symbol string, at time.Time, horizon time.Duration) (bool, string)
}

// AllowAll is the no-op filter used when filters.news.enabled is false.
type AllowAll struct{}

func (AllowAll) Allowed(string, time.Time, time.Duration) (bool, string)       { return true, "" }
func (AllowAll) EmergencyExit(string, time.Time, time.Duration) (bool, string) { return false, "" }

// Calendar is a static event list, loaded once at startup.
type Calendar struct {
	events []Event
}

// NewCalendar wraps a pre-parsed event list (tests, replay).
func NewCalendar(events []Event) *Calendar {
	return &Calendar{events: events}
}

// LoadCalendar parses a calendar JSON file of the loosely-typed shape
// {"events": [{"time": RFC3339, "currency": "USD", "impact": "high",
// "title": ...}, ...]} the external provider exports.
func LoadCalendar(path string) (*Calendar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("newsfeed: read %s: %w", path, err)
	}
	js, err := simplejson.NewJson(data)
	if err != nil {
		return nil, fmt.Errorf("newsfeed: parse %s: %w", path, err)
	}

	raw := js.Get("events")
	n := len(raw.MustArray())
	events := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		e := raw.GetIndex(i)
		ts, err := time.Parse(time.RFC3339, e.Get("time").MustString())
		if err != nil {
			continue // provider rows with unparsable times are skipped, not fatal
		}
		events = append(events, Event{
			Time:     ts,
			Currency: strings.ToUpper(e.Get("currency").MustString()),
			Impact:   parseImpact(e.Get("impact").MustString()),
			Title:    e.Get("title").MustString(),
		})
	}
	return &Calendar{events: events}, nil
}

func parseImpact(s string) Impact {
	switch strings.ToUpper(s) {
	case "HIGH":
		return ImpactHigh
	case "MEDIUM", "MED":
		return ImpactMedium
	default:
		return ImpactLow
	}
}

// Allowed blocks entries when any medium/high-impact event for one of
// the symbol's currencies falls inside (at, at+horizon), i.e. strictly
// after at.
func (c *Calendar) Allowed(symbol string, at time.Time, horizon time.Duration) (bool, string) {
	for _, e := range c.events {
		if e.Impact == ImpactLow {
			continue
		}
		if !symbolTouches(symbol, e.Currency) {
			continue
		}
		if e.Time.After(at) && e.Time.Sub(at) < horizon {
			return false, e.Title
		}
	}
	return true, ""
}

// EmergencyExit fires only for high-impact events.
func (c *Calendar) EmergencyExit(symbol string, at time.Time, horizon time.Duration) (bool, string) {
	for _, e := range c.events {
		if e.Impact != ImpactHigh {
			continue
		}
		if !symbolTouches(symbol, e.Currency) {
			continue
		}
		if e.Time.After(at) && e.Time.Sub(at) < horizon {
			return true, e.Title
		}
	}
	return false, ""
}

func symbolTouches(symbol, currency string) bool {
	return strings.Contains(strings.ToUpper(symbol), currency)
}

// Adjuster is the fundamental-context collaborator of §9:
// fundamental.adjust(signal) -> signal_or_none. The core consults it
// after scoring; a nil Adjuster means no fundamental layer.
type Adjuster interface {
	// Adjust may scale the signal's lot multiplier or reject it
	// outright (ok=false) on fundamental grounds.
	Adjust(symbol string, confidence float64, lotMultiplier float64) (newMultiplier float64, ok bool)
}
