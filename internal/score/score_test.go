package score

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-smc/sentinel/internal/analyzer"
	"github.com/sentinel-smc/sentinel/internal/candle"
	"github.com/sentinel-smc/sentinel/internal/detect"
	"github.com/sentinel-smc/sentinel/internal/stage"
)

func londonTime() time.Time {
	return time.Date(2026, 7, 27, 13, 0, 0, 0, time.UTC)
}

// alignedBuySnapshot is a fully confluent BUY setup: discount zone,
// every timeframe bullish, confirmed sweep, healthy volume.
func alignedBuySnapshot() analyzer.MarketSnapshot {
	return analyzer.MarketSnapshot{
		Symbol:    "EURUSD",
		Timestamp: londonTime(),
		Price:     candle.Tick{Bid: 1.0850, Ask: 1.0851, SpreadPips: 1, Time: londonTime()},
		LTFTrend:  candle.Bullish,
		MTFBias:   candle.Bullish,
		HTFTrend:  candle.Bullish,
		Sweeps: []detect.LiquiditySweep{{
			Index: 30, Timestamp: londonTime(), Direction: candle.Bullish,
		}},
		PremiumDiscount: detect.PremiumDiscount{Label: detect.ZoneDiscount, ClampedPercent: 0.30},
		InKillzone:      true,
		Killzone:        detect.KillzoneNYOpen,
		RSI:             50,
		RVOL:            1.0,
		CMF:             0.05,
		ATR:             0.0020,
		ADX:             25,
		TripleTimeframeAligned: true,
	}
}

func readyState(dir candle.Direction) stage.State {
	return stage.State{
		Symbol: "EURUSD", Stage: stage.EntryReady,
		SweepDirection: dir, SweepPrice: 1.0830, SweepTime: londonTime().Add(-15 * time.Minute),
		ChochDetected: true, ValidEntryZone: true,
	}
}

func TestEvaluate_ConfluentBuyIsAPlus(t *testing.T) {
	p := DefaultProfile()
	p.ADXFilterEnabled = true // ADX exactly at MinADX must pass the gate
	sig, err := Evaluate(alignedBuySnapshot(), readyState(candle.Buy), p)
	require.NoError(t, err)

	assert.Equal(t, candle.Buy, sig.Direction)
	assert.Equal(t, 100.0, sig.Confidence, "capped at 100")
	assert.Equal(t, QualityAPlus, sig.Quality)
	assert.Equal(t, 1.0, sig.LotMultiplier)
	assert.Equal(t, 40.0, sig.Components["sequence_complete"])
}

func TestEvaluate_ADXBelowMinimumVetoes(t *testing.T) {
	p := DefaultProfile()
	p.ADXFilterEnabled = true
	snap := alignedBuySnapshot()
	snap.ADX = 24.9
	_, err := Evaluate(snap, readyState(candle.Buy), p)
	var v *VetoError
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "trend_strength", v.Rule)
}

func TestEvaluate_SpreadSentinelVetoes(t *testing.T) {
	p := DefaultProfile()
	snap := alignedBuySnapshot()
	snap.Price.SpreadPips = 6
	_, err := Evaluate(snap, readyState(candle.Buy), p)
	var v *VetoError
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "spread_sentinel", v.Rule)
}

func TestEvaluate_SpreadVsOrderBlockHeight(t *testing.T) {
	// The S4 shape: spread at the absolute cap but more than half the
	// order block's height still trips the sentinel.
	p := DefaultProfile()
	p.PipSize = 0.0001
	snap := alignedBuySnapshot()
	snap.Price.SpreadPips = 5
	snap.OrderBlocks = []detect.OrderBlock{{
		Low: 1.0846, High: 1.0854, Direction: candle.Bullish, Status: detect.OBFresh, // 8 pips tall
	}}
	_, err := Evaluate(snap, readyState(candle.Buy), p)
	var v *VetoError
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "spread_sentinel", v.Rule)
}

func TestEvaluate_SpreadVsStopDistance(t *testing.T) {
	p := DefaultProfile()
	p.PipSize = 0.0001
	p.SpreadCapPips = 80
	snap := alignedBuySnapshot() // no structural stop: 40-pip fallback
	snap.ATR = 0
	snap.Price.SpreadPips = 13 // > 30% of the prospective stop distance
	_, err := Evaluate(snap, readyState(candle.Buy), p)
	var v *VetoError
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "spread_sentinel", v.Rule)

	snap.Price.SpreadPips = 10
	_, err = Evaluate(snap, readyState(candle.Buy), p)
	assert.NoError(t, err)
}

func TestEvaluate_KillzoneAndAsianVetoes(t *testing.T) {
	p := DefaultProfile()

	snap := alignedBuySnapshot()
	snap.InKillzone = false
	_, err := Evaluate(snap, readyState(candle.Buy), p)
	var v *VetoError
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "killzone", v.Rule)

	snap = alignedBuySnapshot()
	snap.Timestamp = time.Date(2026, 7, 27, 5, 0, 0, 0, time.UTC)
	_, err = Evaluate(snap, readyState(candle.Buy), p)
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "asian_session", v.Rule)

	// Crypto trades around the clock: both gates waived.
	p.IsCrypto = true
	_, err = Evaluate(snap, readyState(candle.Buy), p)
	assert.NoError(t, err)
}

func TestEvaluate_ZoneConflictNeedsException(t *testing.T) {
	p := DefaultProfile()
	snap := alignedBuySnapshot()
	snap.PremiumDiscount.Label = detect.ZonePremium
	snap.Sweeps = nil // no exception available
	snap.IFVGs = nil
	_, err := Evaluate(snap, readyState(candle.Buy), p)
	var v *VetoError
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "zone_conflict", v.Rule)

	// A confirmed sweep is a valid exception.
	snap.Sweeps = alignedBuySnapshot().Sweeps
	_, err = Evaluate(snap, readyState(candle.Buy), p)
	assert.NoError(t, err)
}

func TestScoreComponents_ConfirmedLevelSweepVsGeneric(t *testing.T) {
	// A confirmed Asian-low sweep earns the full 25-point component and
	// the OB bypass; a bare generic sweep only earns the killzone
	// fallback.
	snap := alignedBuySnapshot()
	snap.Sweeps = nil
	snap.LevelSweeps = []detect.LevelSweep{{
		Kind: detect.LevelAsianLow, Level: 1.0830, Direction: candle.Bullish,
	}}
	c := scoreComponents(snap, readyState(candle.Buy), DefaultProfile(), candle.Buy)
	assert.Equal(t, 25.0, c["confirmed_liquidity_sweep"])
	assert.Equal(t, 20.0, c["sweep_bypass"])
	assert.NotContains(t, c, "generic_killzone_sweep")

	generic := alignedBuySnapshot()
	c = scoreComponents(generic, readyState(candle.Buy), DefaultProfile(), candle.Buy)
	assert.Equal(t, 15.0, c["generic_killzone_sweep"])
	assert.NotContains(t, c, "confirmed_liquidity_sweep")

	// A state-machine-recorded Silver Bullet sweep also counts as
	// confirmed.
	st := readyState(candle.Buy)
	st.SweepType = stage.SweepSilverBullet
	c = scoreComponents(generic, st, DefaultProfile(), candle.Buy)
	assert.Equal(t, 25.0, c["confirmed_liquidity_sweep"])
}

func TestScoreComponents_HTFConflictPenalty(t *testing.T) {
	// The S3 shape: BUY against a bearish HTF with no SMT, no MTF CHoCH
	// and HTF not ranging takes the -30 penalty.
	snap := alignedBuySnapshot()
	snap.HTFTrend = candle.Bearish
	snap.Sweeps = nil
	snap.TripleTimeframeAligned = false

	c := scoreComponents(snap, readyState(candle.Buy), DefaultProfile(), candle.Buy)
	assert.Equal(t, -30.0, c["htf_alignment"])
}

func TestEvaluate_HTFConflictRejectsWeakSetup(t *testing.T) {
	p := DefaultProfile()
	p.AllowCounterTrend = true
	snap := alignedBuySnapshot()
	snap.HTFTrend = candle.Bearish
	snap.MTFBias = candle.Ranging
	snap.Sweeps = nil
	snap.PremiumDiscount.Label = detect.ZoneEquilibrium
	snap.TripleTimeframeAligned = false

	_, err := Evaluate(snap, readyState(candle.Buy), p)
	var v *VetoError
	require.ErrorAs(t, err, &v, "penalized counter-trend setup must not pass the floor")
}

func TestEvaluate_ForceDirectionFlags(t *testing.T) {
	p := DefaultProfile()
	p.ForceLongOnly = true
	snap := alignedBuySnapshot()
	snap.LTFTrend = candle.Bearish
	snap.MTFBias = candle.Bearish
	snap.HTFTrend = candle.Bearish
	snap.Sweeps[0].Direction = candle.Bearish
	snap.PremiumDiscount.Label = detect.ZonePremium

	_, err := Evaluate(snap, readyState(candle.Sell), p)
	var v *VetoError
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "force_long_only", v.Rule)
}

func TestBand_QualityThresholds(t *testing.T) {
	cases := []struct {
		score   float64
		quality Quality
		mult    float64
	}{
		{92, QualityAPlus, 1.0},
		{85, QualityAPlus, 1.0},
		{72, QualityA, 0.8},
		{60, QualityB, 0.5},
		{45, QualityC, 0.3},
		{30, QualityReject, 0.0},
	}
	for _, tc := range cases {
		q, m := band(tc.score)
		assert.Equal(t, tc.quality, q, "score %.0f", tc.score)
		assert.Equal(t, tc.mult, m, "score %.0f", tc.score)
	}
}

func TestConstructSLTP_BuyInvariants(t *testing.T) {
	sig := Signal{Symbol: "EURUSD", Direction: candle.Buy}
	snap := alignedBuySnapshot()
	snap.OrderBlocks = []detect.OrderBlock{{
		Low: 1.0820, High: 1.0835, Direction: candle.Bullish, Status: detect.OBFresh,
	}}
	snap.PreviousDay = detect.PreviousDayLevels{Valid: true, High: 1.0900, Low: 1.0780}

	ConstructSLTP(&sig, snap, SLTPParams{PipSize: 0.0001, SLMultiplier: 1.0, MinRR: 2.0})

	assert.Less(t, sig.SL, sig.Entry)
	assert.Greater(t, sig.TP, sig.Entry)

	risk := sig.Entry - sig.SL
	reward := sig.TP - sig.Entry
	assert.InDelta(t, 2.0, reward/risk, 1e-9, "raw TP underpays, re-projected to 2R")
}

func TestConstructSLTP_SellInvariantsAndMultiplier(t *testing.T) {
	base := Signal{Symbol: "XAUUSD", Direction: candle.Sell}
	snap := alignedBuySnapshot()
	snap.Price = candle.Tick{Bid: 2009.80, Ask: 2010.10, Time: londonTime()}
	snap.ATR = 3.0
	snap.OrderBlocks = []detect.OrderBlock{{
		Low: 2010.50, High: 2012.00, Direction: candle.Bearish, Status: detect.OBFresh,
	}}
	snap.PreviousDay = detect.PreviousDayLevels{Valid: true, High: 2015.0, Low: 1998.0}

	plain := base
	ConstructSLTP(&plain, snap, SLTPParams{PipSize: 0.1, SLMultiplier: 1.0, MinRR: 2.0})
	assert.Greater(t, plain.SL, plain.Entry)
	assert.Less(t, plain.TP, plain.Entry)

	// The gold profile widens the stop 1.5x (S2).
	widened := base
	ConstructSLTP(&widened, snap, SLTPParams{PipSize: 0.1, SLMultiplier: 1.5, MinRR: 2.0})
	assert.InDelta(t, 1.5, (widened.SL-widened.Entry)/(plain.SL-plain.Entry), 1e-9)
}

func TestConstructSLTP_FallbackStops(t *testing.T) {
	sig := Signal{Symbol: "EURUSD", Direction: candle.Buy}
	snap := alignedBuySnapshot() // no order blocks, no previous-day levels
	snap.ATR = 0

	ConstructSLTP(&sig, snap, SLTPParams{PipSize: 0.0001, SLMultiplier: 1.0, MinRR: 1.0})
	assert.InDelta(t, sig.Entry-FallbackSLPips*0.0001, sig.SL, 1e-9)
}
