package analyzer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-smc/sentinel/internal/candle"
	"github.com/sentinel-smc/sentinel/internal/detect"
)

func bar(ts time.Time, o, h, l, c float64) candle.Candle {
	return candle.Candle{Timestamp: ts, Open: o, High: h, Low: l, Close: c, Volume: 100}
}

// trendingFrames builds a steadily rising market across all three
// timeframes, enough bars for the indicator lookbacks.
func trendingFrames(start time.Time) Frames {
	build := func(step time.Duration, n int) candle.Frame {
		var f candle.Frame
		for i := 0; i < n; i++ {
			px := 1.0800 + float64(i)*0.0004
			wob := 0.0001 * float64(i%3)
			f = append(f, bar(start.Add(time.Duration(i)*step),
				px, px+0.0006+wob, px-0.0004-wob, px+0.0004))
		}
		return f
	}
	return Frames{
		LTF: build(15*time.Minute, 80),
		MTF: build(time.Hour, 80),
		HTF: build(4*time.Hour, 80),
	}
}

func TestAnalyze_Deterministic(t *testing.T) {
	start := time.Date(2026, 7, 24, 0, 0, 0, 0, time.UTC)
	frames := trendingFrames(start)
	tick := candle.Tick{Symbol: "EURUSD", Bid: 1.1120, Ask: 1.1121,
		Time: time.Date(2026, 7, 27, 13, 0, 0, 0, time.UTC)}

	a := Analyze("EURUSD", frames, tick, DefaultConfig())
	b := Analyze("EURUSD", frames, tick, DefaultConfig())
	assert.Equal(t, a, b, "detectors are pure: same frame, same snapshot")
}

func TestAnalyze_PopulatesTimeframeTrends(t *testing.T) {
	start := time.Date(2026, 7, 24, 0, 0, 0, 0, time.UTC)
	frames := trendingFrames(start)
	tick := candle.Tick{Symbol: "EURUSD", Bid: 1.1120, Ask: 1.1121,
		Time: time.Date(2026, 7, 27, 13, 0, 0, 0, time.UTC)}

	snap := Analyze("EURUSD", frames, tick, DefaultConfig())
	assert.Equal(t, "EURUSD", snap.Symbol)
	assert.NotEqual(t, candle.Trend(""), snap.LTFTrend)
	assert.NotEqual(t, candle.Trend(""), snap.HTFTrend)
	require.NotZero(t, snap.RSI)
	assert.Greater(t, snap.RSI, 50.0, "a rising market reads overbought-side RSI")
}

func TestCombinedBias_TrendZoneFallback(t *testing.T) {
	snap := MarketSnapshot{
		LTFTrend:        candle.Bullish,
		PremiumDiscount: detect.PremiumDiscount{Label: detect.ZoneDiscount},
	}
	assert.Equal(t, candle.Buy, combinedBias(snap, DefaultConfig()))

	snap.LTFTrend = candle.Bearish
	snap.PremiumDiscount.Label = detect.ZonePremium
	assert.Equal(t, candle.Sell, combinedBias(snap, DefaultConfig()))

	// Bullish trend but premium zone: no edge.
	snap.LTFTrend = candle.Bullish
	assert.Equal(t, candle.Neutral, combinedBias(snap, DefaultConfig()))
}

func TestCombinedBias_SweepOverridesUnlessZoneContradicts(t *testing.T) {
	snap := MarketSnapshot{
		LTFTrend:        candle.Ranging,
		PremiumDiscount: detect.PremiumDiscount{Label: detect.ZoneEquilibrium},
		InKillzone:      true,
		Sweeps: []detect.LiquiditySweep{{
			Direction: candle.Bullish, Timestamp: time.Now().UTC(),
		}},
	}
	assert.Equal(t, candle.Buy, combinedBias(snap, DefaultConfig()))

	// A bullish sweep with price in premium contradicts: the sweep is
	// ignored and the trend/zone fallback yields no edge.
	snap.PremiumDiscount.Label = detect.ZonePremium
	assert.Equal(t, candle.Neutral, combinedBias(snap, DefaultConfig()))

	// A confirmed level sweep needs no killzone to steer the bias.
	level := MarketSnapshot{
		LTFTrend:        candle.Ranging,
		PremiumDiscount: detect.PremiumDiscount{Label: detect.ZoneDiscount},
		LevelSweeps: []detect.LevelSweep{{
			Kind: detect.LevelPDL, Direction: candle.Bullish,
		}},
	}
	assert.Equal(t, candle.Buy, combinedBias(level, DefaultConfig()))

	// The same sweep outside a killzone with no level backing is inert.
	inert := snap
	inert.PremiumDiscount.Label = detect.ZoneEquilibrium
	inert.InKillzone = false
	assert.Equal(t, candle.Neutral, combinedBias(inert, DefaultConfig()))
}

func TestAnalyze_TripleTimeframeAlignment(t *testing.T) {
	start := time.Date(2026, 7, 24, 0, 0, 0, 0, time.UTC)
	frames := trendingFrames(start)
	tick := candle.Tick{Symbol: "EURUSD", Bid: 1.1120, Ask: 1.1121,
		Time: time.Date(2026, 7, 27, 13, 0, 0, 0, time.UTC)}

	snap := Analyze("EURUSD", frames, tick, DefaultConfig())
	if snap.HTFTrend == snap.MTFBias && snap.MTFBias == snap.LTFTrend && snap.HTFTrend != candle.Ranging {
		assert.True(t, snap.TripleTimeframeAligned)
	} else {
		assert.False(t, snap.TripleTimeframeAligned)
	}
}
