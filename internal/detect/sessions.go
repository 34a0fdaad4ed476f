package detect

import (
	"time"

	"github.com/sentinel-smc/sentinel/internal/candle"
)

// AsianRange summarizes the Asian session's dealing range for a trading
// day.
type AsianRange struct {
	SessionDate        time.Time
	High, Low, Midpoint float64
	RangeSize          float64
	Valid              bool
}

// AsianWindowStartHour/EndHour bound the default Asian session in UTC.
const (
	AsianWindowStartHour = 0
	AsianWindowEndHour   = 7
)

// MinAsianCandles is the minimum bar count for a valid Asian range.
const MinAsianCandles = 5

// CalculateAsianRange derives the Asian range from the candles whose
// timestamp falls within [startHour, endHour) UTC on sessionDate.
func CalculateAsianRange(f candle.Frame, sessionDate time.Time, startHour, endHour int) AsianRange {
	ar := AsianRange{SessionDate: sessionDate}
	var count int
	for _, c := range f {
		if !sameUTCDate(c.Timestamp, sessionDate) {
			continue
		}
		h := c.Timestamp.UTC().Hour()
		if h < startHour || h >= endHour {
			continue
		}
		if count == 0 {
			ar.High, ar.Low = c.High, c.Low
		} else {
			if c.High > ar.High {
				ar.High = c.High
			}
			if c.Low < ar.Low {
				ar.Low = c.Low
			}
		}
		count++
	}
	if count < MinAsianCandles {
		return ar
	}
	ar.Valid = true
	ar.RangeSize = ar.High - ar.Low
	ar.Midpoint = ar.Low + ar.RangeSize/2
	return ar
}

func sameUTCDate(a, b time.Time) bool {
	au, bu := a.UTC(), b.UTC()
	y1, m1, d1 := au.Date()
	y2, m2, d2 := bu.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// PreviousDayLevels carries PDH/PDL/PDO/PDC and their midpoint.
type PreviousDayLevels struct {
	SessionDate time.Time
	High, Low, Open, Close, Midpoint float64
	Valid bool
}

// PreviousTradingDay walks back from `from`, skipping weekends, to find
// the prior session date (Friday when `from` is a Monday).
func PreviousTradingDay(from time.Time) time.Time {
	d := from.UTC().AddDate(0, 0, -1)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// CalculatePreviousDayLevels derives PDH/PDL/PDO/PDC from the candles
// belonging to the previous trading session.
func CalculatePreviousDayLevels(f candle.Frame, sessionDate time.Time) PreviousDayLevels {
	prev := PreviousTradingDay(sessionDate)
	pd := PreviousDayLevels{SessionDate: prev}
	var first, last candle.Candle
	var count int
	for _, c := range f {
		if !sameUTCDate(c.Timestamp, prev) {
			continue
		}
		if count == 0 {
			first = c
			pd.High, pd.Low = c.High, c.Low
		} else {
			if c.High > pd.High {
				pd.High = c.High
			}
			if c.Low < pd.Low {
				pd.Low = c.Low
			}
		}
		last = c
		count++
	}
	if count == 0 {
		return pd
	}
	pd.Open = first.Open
	pd.Close = last.Close
	pd.Midpoint = pd.Low + (pd.High-pd.Low)/2
	pd.Valid = true
	return pd
}

// SweepConfirmKind names which of the three confirmation paths fired.
type SweepConfirmKind string

const (
	ConfirmReclaim      SweepConfirmKind = "RECLAIM_BAR"
	ConfirmStabilized   SweepConfirmKind = "STABILIZED"
	ConfirmTimeout      SweepConfirmKind = "TIMEOUT"
)

// PendingSweep is a level pierce awaiting confirmation.
type PendingSweep struct {
	Level       float64
	PierceIndex int
	PierceTime  time.Time
	Direction   candle.Trend
}

// ConfirmedSweep is a pending sweep that satisfied one of the three
// confirmation paths (grounded on spec §3's previous-day-levels
// confirmation rule and original_source's PDL detector).
type ConfirmedSweep struct {
	PendingSweep
	ConfirmIndex int
	ConfirmTime  time.Time
	Kind         SweepConfirmKind
}

// StabilizeTolerancePct is the |price-level| tolerance (as a fraction of
// level) for the stabilisation confirmation path.
const StabilizeTolerancePct = 0.0005 // 0.05%

// StabilizeDuration is the minimum time price must hold within tolerance
// for the stabilisation path.
const StabilizeDuration = 5 * time.Minute

// TimeoutDuration is the fallback confirmation window.
const TimeoutDuration = 45 * time.Minute

// TimeoutTolerancePct is the |price-level| tolerance for the timeout path.
const TimeoutTolerancePct = 0.001 // 0.1%

// ConfirmSweep scans candles after a pending sweep for the first of the
// three confirmation paths to fire: a later bar closing back across the
// level, price stabilising within tolerance for >= StabilizeDuration, or
// the 45-minute timeout within TimeoutTolerancePct.
func ConfirmSweep(f candle.Frame, p PendingSweep) (ConfirmedSweep, bool) {
	var stableSince time.Time
	var stableStarted bool
	for i := p.PierceIndex + 1; i < len(f); i++ {
		c := f[i]
		if reclaimed(p, c) {
			return ConfirmedSweep{PendingSweep: p, ConfirmIndex: i, ConfirmTime: c.Timestamp, Kind: ConfirmReclaim}, true
		}
		within := absDiff(c.Close, p.Level)/p.Level < StabilizeTolerancePct
		if within {
			if !stableStarted {
				stableStarted = true
				stableSince = c.Timestamp
			} else if c.Timestamp.Sub(stableSince) >= StabilizeDuration {
				return ConfirmedSweep{PendingSweep: p, ConfirmIndex: i, ConfirmTime: c.Timestamp, Kind: ConfirmStabilized}, true
			}
		} else {
			stableStarted = false
		}
		if c.Timestamp.Sub(p.PierceTime) >= TimeoutDuration {
			if absDiff(c.Close, p.Level)/p.Level < TimeoutTolerancePct {
				return ConfirmedSweep{PendingSweep: p, ConfirmIndex: i, ConfirmTime: c.Timestamp, Kind: ConfirmTimeout}, true
			}
			return ConfirmedSweep{}, false
		}
	}
	return ConfirmedSweep{}, false
}

// LevelKind names which reference level a sweep event targeted.
type LevelKind string

const (
	LevelPDH       LevelKind = "PDH"
	LevelPDL       LevelKind = "PDL"
	LevelAsianHigh LevelKind = "ASIAN_HIGH"
	LevelAsianLow  LevelKind = "ASIAN_LOW"
)

// SweepLookbackBars bounds how far back a level pierce may sit and
// still count as the active sweep candidate.
const SweepLookbackBars = 20

// LevelSweep is a confirmed pierce of a previous-day or Asian-range
// level: the wick took the level's resting liquidity and one of the
// three confirmation paths fired.
type LevelSweep struct {
	Kind         LevelKind
	Level        float64
	Direction    candle.Trend // BULLISH = support swept, reversal up expected
	PierceIndex  int
	ConfirmIndex int
	ConfirmTime  time.Time
	ConfirmKind  SweepConfirmKind
}

// DetectLevelSweeps scans the frame for confirmed sweeps of the
// previous-day high/low and the Asian-range extremes. Pass a zero
// PreviousDayLevels or AsianRange to skip that level set.
func DetectLevelSweeps(f candle.Frame, pd PreviousDayLevels, ar AsianRange) []LevelSweep {
	type ref struct {
		kind    LevelKind
		level   float64
		support bool
	}
	var refs []ref
	if pd.Valid {
		refs = append(refs, ref{LevelPDH, pd.High, false}, ref{LevelPDL, pd.Low, true})
	}
	if ar.Valid {
		refs = append(refs, ref{LevelAsianHigh, ar.High, false}, ref{LevelAsianLow, ar.Low, true})
	}
	var out []LevelSweep
	for _, r := range refs {
		if ls, ok := sweepOfLevel(f, r.kind, r.level, r.support); ok {
			out = append(out, ls)
		}
	}
	return out
}

// sweepOfLevel finds the most recent pierce of level inside the
// lookback window and runs the confirmation paths against it. An
// unconfirmed latest pierce yields nothing; older pierces are not
// revisited.
func sweepOfLevel(f candle.Frame, kind LevelKind, level float64, support bool) (LevelSweep, bool) {
	if level <= 0 {
		return LevelSweep{}, false
	}
	for i := len(f) - 1; i >= 0 && len(f)-i <= SweepLookbackBars; i-- {
		c := f[i]
		dir := candle.Bullish
		pierced := c.Low < level
		if !support {
			dir = candle.Bearish
			pierced = c.High > level
		}
		if !pierced {
			continue
		}
		p := PendingSweep{Level: level, PierceIndex: i, PierceTime: c.Timestamp, Direction: dir}
		if reclaimed(p, c) {
			// pierce and reclaim within the same bar
			return LevelSweep{
				Kind: kind, Level: level, Direction: dir,
				PierceIndex: i, ConfirmIndex: i, ConfirmTime: c.Timestamp, ConfirmKind: ConfirmReclaim,
			}, true
		}
		conf, ok := ConfirmSweep(f, p)
		if !ok {
			return LevelSweep{}, false
		}
		return LevelSweep{
			Kind: kind, Level: level, Direction: dir,
			PierceIndex: i, ConfirmIndex: conf.ConfirmIndex, ConfirmTime: conf.ConfirmTime, ConfirmKind: conf.Kind,
		}, true
	}
	return LevelSweep{}, false
}

// ADRPercent reports how much of the average daily range (over up to
// `days` completed sessions) today's high-low span has already
// consumed, as a percentage. Returns 0 when the frame doesn't span a
// completed prior day.
func ADRPercent(f candle.Frame, now time.Time, days int) float64 {
	if days <= 0 {
		days = 14
	}
	type dayRange struct{ high, low float64 }
	ranges := map[string]*dayRange{}
	var order []string
	for _, c := range f {
		key := c.Timestamp.UTC().Format("2006-01-02")
		r, ok := ranges[key]
		if !ok {
			ranges[key] = &dayRange{high: c.High, low: c.Low}
			order = append(order, key)
			continue
		}
		if c.High > r.high {
			r.high = c.High
		}
		if c.Low < r.low {
			r.low = c.Low
		}
	}
	today := now.UTC().Format("2006-01-02")
	sum, n := 0.0, 0
	for i := len(order) - 1; i >= 0 && n < days; i-- {
		if order[i] == today {
			continue
		}
		r := ranges[order[i]]
		sum += r.high - r.low
		n++
	}
	if n == 0 || sum == 0 {
		return 0
	}
	avg := sum / float64(n)
	tr, ok := ranges[today]
	if !ok {
		return 0
	}
	return (tr.high - tr.low) / avg * 100
}

func reclaimed(p PendingSweep, c candle.Candle) bool {
	if p.Direction == candle.Bullish {
		return c.Close > p.Level
	}
	return c.Close < p.Level
}
