package detect

import (
	"time"

	"github.com/sentinel-smc/sentinel/internal/candle"
)

// BreakKind distinguishes a trend-following break from a reversal.
type BreakKind string

const (
	BOS   BreakKind = "BOS"
	CHOCH BreakKind = "CHOCH"
)

// StructureBreak records a swing-extreme break and its qualifiers.
type StructureBreak struct {
	Index        int
	Timestamp    time.Time
	BreakPrice   float64
	SwingPrice   float64
	Direction    candle.Trend // BULLISH or BEARISH
	Kind         BreakKind
	Displacement bool
}

// StructureResult is the output of the structure analyser: the ordered
// break history and the currently prevailing trend.
type StructureResult struct {
	Breaks []StructureBreak
	Trend  candle.Trend
}

// MaxStructureAge is the number of bars after which, with no new break,
// the trend is considered stale and classified RANGING.
const MaxStructureAge = 40

// AnalyzeStructure derives BOS/CHoCH breaks from the swing sequence and
// the prevailing trend, per spec §4.B.
func AnalyzeStructure(f candle.Frame, swings []Swing) StructureResult {
	if len(f) == 0 {
		return StructureResult{Trend: candle.Ranging}
	}
	avgBody := averageBody(f, 20)

	var breaks []StructureBreak
	trend := candle.Ranging

	// Walk forward bar by bar, tracking the active swing extremes known
	// so far, and flag a break whenever a close takes out the most recent
	// opposite-side swing extreme.
	var curHigh, curLow *Swing
	swingIdx := 0
	for i := range f {
		for swingIdx < len(swings) && swings[swingIdx].Index == i {
			s := swings[swingIdx]
			if s.Kind == SwingHigh {
				curHigh = &s
			} else {
				curLow = &s
			}
			swingIdx++
		}
		if curHigh != nil && f[i].Close > curHigh.Price && i > curHigh.Index {
			kind := BOS
			if trend == candle.Bearish {
				kind = CHOCH
			}
			displacement := bodyOf(f[i]) >= 1.5*avgBody
			breaks = append(breaks, StructureBreak{
				Index: i, Timestamp: f[i].Timestamp, BreakPrice: f[i].Close,
				SwingPrice: curHigh.Price, Direction: candle.Bullish, Kind: kind,
				Displacement: displacement,
			})
			trend = candle.Bullish
			curHigh = nil
		}
		if curLow != nil && f[i].Close < curLow.Price && i > curLow.Index {
			kind := BOS
			if trend == candle.Bullish {
				kind = CHOCH
			}
			displacement := bodyOf(f[i]) >= 1.5*avgBody
			breaks = append(breaks, StructureBreak{
				Index: i, Timestamp: f[i].Timestamp, BreakPrice: f[i].Close,
				SwingPrice: curLow.Price, Direction: candle.Bearish, Kind: kind,
				Displacement: displacement,
			})
			trend = candle.Bearish
			curLow = nil
		}
	}

	if len(breaks) > 0 {
		last := breaks[len(breaks)-1]
		if len(f)-1-last.Index > MaxStructureAge {
			trend = candle.Ranging
		}
	}

	return StructureResult{Breaks: breaks, Trend: trend}
}

func bodyOf(c candle.Candle) float64 {
	d := c.Close - c.Open
	if d < 0 {
		d = -d
	}
	return d
}

func averageBody(f candle.Frame, lookback int) float64 {
	n := len(f)
	if n == 0 {
		return 0
	}
	if lookback > n {
		lookback = n
	}
	sum := 0.0
	for i := n - lookback; i < n; i++ {
		sum += bodyOf(f[i])
	}
	if lookback == 0 {
		return 0
	}
	return sum / float64(lookback)
}

// LatestCHoCH returns the most recent CHoCH break after the given time
// whose direction matches expectDir, provided its break magnitude is at
// least minBreak. Used by internal/stage to validate LIQUIDITY_SWEEP ->
// STRUCTURE_SHIFT transitions (grounded on original_source/core/smc_state.py).
func LatestCHoCH(breaks []StructureBreak, after time.Time, expectDir candle.Trend, minBreak float64) (StructureBreak, bool) {
	for i := len(breaks) - 1; i >= 0; i-- {
		b := breaks[i]
		if b.Kind != CHOCH {
			continue
		}
		if !b.Timestamp.After(after) {
			continue
		}
		if b.Direction != expectDir {
			continue
		}
		dist := b.BreakPrice - b.SwingPrice
		if dist < 0 {
			dist = -dist
		}
		if dist > minBreak {
			return b, true
		}
	}
	return StructureBreak{}, false
}
