package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-smc/sentinel/internal/candle"
)

func bar(ts time.Time, o, h, l, c float64) candle.Candle {
	return candle.Candle{Timestamp: ts, Open: o, High: h, Low: l, Close: c, Volume: 100}
}

func ts(minute int) time.Time {
	return time.Date(2026, 7, 27, 13, 0, 0, 0, time.UTC).Add(time.Duration(minute) * time.Minute)
}

func TestSwings_FractalHighAndLow(t *testing.T) {
	f := candle.Frame{
		bar(ts(0), 1.0, 1.0010, 0.9990, 1.0005),
		bar(ts(1), 1.0005, 1.0020, 1.0000, 1.0015),
		bar(ts(2), 1.0015, 1.0050, 1.0010, 1.0040), // swing high at index 2
		bar(ts(3), 1.0040, 1.0045, 1.0005, 1.0010),
		bar(ts(4), 1.0010, 1.0020, 0.9980, 0.9990), // swing low at index 4
		bar(ts(5), 0.9990, 1.0010, 0.9990, 1.0005),
		bar(ts(6), 1.0005, 1.0025, 1.0000, 1.0020),
	}
	swings := Swings(f, 2)
	require.Len(t, swings, 2)
	assert.Equal(t, SwingHigh, swings[0].Kind)
	assert.Equal(t, 2, swings[0].Index)
	assert.Equal(t, 1.0050, swings[0].Price)
	assert.Equal(t, SwingLow, swings[1].Kind)
	assert.Equal(t, 4, swings[1].Index)
}

func TestSwings_Deterministic(t *testing.T) {
	f := candle.Frame{
		bar(ts(0), 1, 1.002, 0.999, 1.001),
		bar(ts(1), 1.001, 1.004, 1.000, 1.003),
		bar(ts(2), 1.003, 1.008, 1.002, 1.007),
		bar(ts(3), 1.007, 1.0075, 1.001, 1.002),
		bar(ts(4), 1.002, 1.003, 0.998, 0.999),
	}
	assert.Equal(t, Swings(f, 1), Swings(f, 1))
}

func TestAnalyzeStructure_BOSThenCHoCH(t *testing.T) {
	// An up-break of a swing high (BOS while ranging->bullish), then a
	// down-break of a swing low: CHOCH because trend was bullish.
	f := candle.Frame{
		bar(ts(0), 1.0000, 1.0010, 0.9995, 1.0005),
		bar(ts(1), 1.0005, 1.0030, 1.0000, 1.0025), // swing high 1.0030 (k=1)
		bar(ts(2), 1.0025, 1.0028, 1.0008, 1.0010),
		bar(ts(3), 1.0010, 1.0015, 1.0002, 1.0005), // swing low 1.0002
		bar(ts(4), 1.0005, 1.0045, 1.0005, 1.0040), // closes above 1.0030 -> BOS up
		bar(ts(5), 1.0040, 1.0047, 0.9990, 0.9995), // closes below 1.0002 -> CHOCH down
		bar(ts(6), 0.9995, 1.0000, 0.9985, 0.9990),
	}
	res := AnalyzeStructure(f, Swings(f, 1))
	require.Len(t, res.Breaks, 2)
	assert.Equal(t, BOS, res.Breaks[0].Kind)
	assert.Equal(t, candle.Bullish, res.Breaks[0].Direction)
	assert.Equal(t, CHOCH, res.Breaks[1].Kind)
	assert.Equal(t, candle.Bearish, res.Breaks[1].Direction)
	assert.Equal(t, candle.Bearish, res.Trend)
}

func TestLatestCHoCH_FiltersByTimeDirectionMagnitude(t *testing.T) {
	breaks := []StructureBreak{
		{Kind: CHOCH, Timestamp: ts(1), Direction: candle.Bullish, BreakPrice: 1.0030, SwingPrice: 1.0020},
		{Kind: BOS, Timestamp: ts(5), Direction: candle.Bullish, BreakPrice: 1.0050, SwingPrice: 1.0030},
	}
	_, ok := LatestCHoCH(breaks, ts(2), candle.Bullish, 0.0005)
	assert.False(t, ok, "CHOCH before the cutoff must not qualify")

	b, ok := LatestCHoCH(breaks, ts(0), candle.Bullish, 0.0005)
	require.True(t, ok)
	assert.Equal(t, 1.0030, b.BreakPrice)

	_, ok = LatestCHoCH(breaks, ts(0), candle.Bullish, 0.0015)
	assert.False(t, ok, "break magnitude below min_break must not qualify")
}

func TestOrderBlock_LifecycleAndBreaker(t *testing.T) {
	f := candle.Frame{
		bar(ts(0), 1.0020, 1.0025, 1.0010, 1.0015),
		bar(ts(1), 1.0015, 1.0018, 1.0000, 1.0002), // down candle: bullish OB candidate
		bar(ts(2), 1.0002, 1.0050, 1.0002, 1.0048), // displacement up
		bar(ts(3), 1.0048, 1.0052, 1.0016, 1.0030), // wick into OB, close above -> TESTED
	}
	breaks := []StructureBreak{{Index: 2, Direction: candle.Bullish, Timestamp: ts(2)}}
	obs := OrderBlocks(f, breaks)
	require.Len(t, obs, 1)
	assert.Equal(t, candle.Bullish, obs[0].Direction)
	assert.Equal(t, OBTested, obs[0].Status)
	assert.Equal(t, 1, obs[0].Index)

	// A later close through the OB low invalidates it and spawns a
	// bearish breaker.
	f = append(f, bar(ts(4), 1.0030, 1.0032, 0.9995, 0.9998))
	obs = OrderBlocks(f, breaks)
	require.Len(t, obs, 1)
	assert.Equal(t, OBInvalidated, obs[0].Status)

	brk := Breakers(obs, f)
	require.Len(t, brk, 1)
	assert.Equal(t, candle.Bearish, brk[0].Direction)
	assert.Equal(t, candle.Bullish, brk[0].OriginDirection)
	assert.Equal(t, obs[0].High, brk[0].High)
}

func TestFairValueGaps_MinGapBoundary(t *testing.T) {
	// Prices chosen binary-exact so the >= comparison is not at the
	// mercy of float rounding.
	const minGap = 0.5
	exactly := candle.Frame{
		bar(ts(0), 9.75, 10.0, 9.5, 9.875),
		bar(ts(1), 9.875, 11.0, 9.875, 10.875),
		bar(ts(2), 10.875, 11.25, 10.5, 11.0), // low 10.5 - high 10.0 = exactly minGap
	}
	gaps := FairValueGaps(exactly, minGap)
	require.Len(t, gaps, 1, "a gap of exactly min_gap qualifies")
	assert.Equal(t, candle.Bullish, gaps[0].Direction)
	assert.Equal(t, 10.5, gaps[0].Top)
	assert.Equal(t, 10.0, gaps[0].Bottom)

	below := candle.Frame{
		bar(ts(0), 9.75, 10.0, 9.5, 9.875),
		bar(ts(1), 9.875, 11.0, 9.875, 10.875),
		bar(ts(2), 10.875, 11.25, 10.4375, 11.0), // gap 0.4375 < minGap
	}
	assert.Empty(t, FairValueGaps(below, minGap), "a gap below min_gap must not qualify")
}

func TestFairValueGaps_InversionFlipsPolarity(t *testing.T) {
	f := candle.Frame{
		bar(ts(0), 1.0000, 1.0010, 0.9990, 1.0005),
		bar(ts(1), 1.0005, 1.0040, 1.0005, 1.0038),
		bar(ts(2), 1.0038, 1.0045, 1.0025, 1.0042), // bullish gap [1.0010, 1.0025]
		bar(ts(3), 1.0042, 1.0043, 1.0000, 1.0002), // closes below the gap -> inverted
	}
	gaps := FairValueGaps(f, 0)
	require.Len(t, gaps, 1)
	assert.Equal(t, FVGInverted, gaps[0].Status)
	assert.Len(t, InvertedFVGs(gaps), 1)
	assert.Empty(t, OpenFVGs(gaps))
}

func TestLiquidityZonesAndSweep(t *testing.T) {
	swings := []Swing{
		{Index: 2, Price: 1.0850, Kind: SwingHigh},
		{Index: 8, Price: 1.0851, Kind: SwingHigh}, // equal high within tolerance
		{Index: 5, Price: 1.0800, Kind: SwingLow},
	}
	zones := LiquidityZones(swings, 0.0003)
	require.Len(t, zones, 1)
	assert.Equal(t, SwingHigh, zones[0].Kind)
	assert.InDelta(t, 1.08505, zones[0].Price, 1e-9)

	// Wick above the equal highs, close back below: bearish sweep.
	f := candle.Frame{
		bar(ts(0), 1.0840, 1.0860, 1.0838, 1.0845),
	}
	sweeps := Sweeps(f, zones)
	require.Len(t, sweeps, 1)
	assert.Equal(t, candle.Bearish, sweeps[0].Direction)
	assert.Equal(t, 0, sweeps[0].ZoneIndex)
}

func TestCalculatePremiumDiscount(t *testing.T) {
	pd := CalculatePremiumDiscount(1.1000, 1.0800, 1.0850, 0.0005)
	assert.Equal(t, ZoneDiscount, pd.Label)
	assert.InDelta(t, 0.25, pd.RawPercent, 1e-9)

	pd = CalculatePremiumDiscount(1.1000, 1.0800, 1.0950, 0.0005)
	assert.Equal(t, ZonePremium, pd.Label)

	// Inside the buffered band around the midpoint: equilibrium.
	pd = CalculatePremiumDiscount(1.1000, 1.0800, 1.0903, 0.0005)
	assert.Equal(t, ZoneEquilibrium, pd.Label)

	// Price beyond the range: label still classifies, percent clamps.
	pd = CalculatePremiumDiscount(1.1000, 1.0800, 1.1100, 0.0005)
	assert.Equal(t, ZonePremium, pd.Label)
	assert.InDelta(t, 1.5, pd.RawPercent, 1e-9)
	assert.Equal(t, 1.0, pd.ClampedPercent)
}

func TestCalculateOTE_NormalizedBand(t *testing.T) {
	z := CalculateOTE(1.1000, 1.0800, candle.Bullish)
	assert.Less(t, z.Start, z.End)
	assert.True(t, z.Contains(1.0850))
	assert.False(t, z.Contains(1.0990))

	// Bearish leg: band still normalized low->high.
	z = CalculateOTE(1.1000, 1.0800, candle.Bearish)
	assert.Less(t, z.Start, z.End)
}

func TestCalculateAsianRange(t *testing.T) {
	day := time.Date(2026, 7, 27, 8, 30, 0, 0, time.UTC)
	var f candle.Frame
	for i := 0; i < 8; i++ {
		at := time.Date(2026, 7, 27, i, 0, 0, 0, time.UTC)
		f = append(f, bar(at, 1.0830, 1.0840+float64(i)*0.0001, 1.0830-float64(i)*0.0001, 1.0835))
	}
	ar := CalculateAsianRange(f, day, AsianWindowStartHour, AsianWindowEndHour)
	require.True(t, ar.Valid)
	assert.InDelta(t, 1.0846, ar.High, 1e-9)
	assert.InDelta(t, 1.0824, ar.Low, 1e-9)
	assert.InDelta(t, 1.0835, ar.Midpoint, 1e-9)

	// Fewer than MinAsianCandles invalidates the range.
	short := f[:3]
	assert.False(t, CalculateAsianRange(short, day, AsianWindowStartHour, AsianWindowEndHour).Valid)
}

func TestCalculatePreviousDayLevels_SkipsWeekend(t *testing.T) {
	monday := time.Date(2026, 7, 27, 9, 0, 0, 0, time.UTC)
	friday := time.Date(2026, 7, 24, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, friday.Day(), PreviousTradingDay(monday).Day())

	f := candle.Frame{
		bar(friday.Add(10*time.Hour), 2005.0, 2010.5, 2002.0, 2008.0),
		bar(friday.Add(11*time.Hour), 2008.0, 2009.0, 2000.0, 2003.0),
	}
	pd := CalculatePreviousDayLevels(f, monday)
	require.True(t, pd.Valid)
	assert.Equal(t, 2010.5, pd.High)
	assert.Equal(t, 2000.0, pd.Low)
	assert.Equal(t, 2005.0, pd.Open)
	assert.Equal(t, 2003.0, pd.Close)
}

func TestDetectLevelSweeps_AsianLowSameBarReclaim(t *testing.T) {
	ar := AsianRange{Valid: true, High: 1.0850, Low: 1.0830}
	f := candle.Frame{
		bar(ts(0), 1.0840, 1.0845, 1.0835, 1.0838),
		bar(ts(1), 1.0838, 1.0840, 1.0825, 1.0836), // wick under the Asian low, close back above
	}
	sweeps := DetectLevelSweeps(f, PreviousDayLevels{}, ar)
	require.Len(t, sweeps, 1)
	assert.Equal(t, LevelAsianLow, sweeps[0].Kind)
	assert.Equal(t, candle.Bullish, sweeps[0].Direction)
	assert.Equal(t, ConfirmReclaim, sweeps[0].ConfirmKind)
	assert.Equal(t, 1, sweeps[0].ConfirmIndex)
	assert.Equal(t, 1.0830, sweeps[0].Level)
}

func TestDetectLevelSweeps_PDHNextBarReclaim(t *testing.T) {
	pd := PreviousDayLevels{Valid: true, High: 2010.50, Low: 1998.00}
	f := candle.Frame{
		bar(ts(0), 2008.0, 2011.2, 2007.5, 2010.8), // pierce, still closed above
		bar(ts(1), 2010.4, 2010.45, 2009.0, 2009.8), // closes back below the PDH
	}
	sweeps := DetectLevelSweeps(f, pd, AsianRange{})
	require.Len(t, sweeps, 1)
	assert.Equal(t, LevelPDH, sweeps[0].Kind)
	assert.Equal(t, candle.Bearish, sweeps[0].Direction)
	assert.Equal(t, 0, sweeps[0].PierceIndex)
	assert.Equal(t, 1, sweeps[0].ConfirmIndex)
}

func TestDetectLevelSweeps_UnconfirmedPierceYieldsNothing(t *testing.T) {
	ar := AsianRange{Valid: true, High: 1.0850, Low: 1.0830}
	f := candle.Frame{
		bar(ts(0), 1.0835, 1.0838, 1.0820, 1.0822), // pierced and stayed below
	}
	assert.Empty(t, DetectLevelSweeps(f, PreviousDayLevels{}, ar))
}

func TestConfirmSweep_ReclaimPath(t *testing.T) {
	p := PendingSweep{Level: 1.0830, PierceIndex: 0, PierceTime: ts(0), Direction: candle.Bullish}
	f := candle.Frame{
		bar(ts(0), 1.0832, 1.0833, 1.0825, 1.0828), // pierce bar
		bar(ts(1), 1.0828, 1.0840, 1.0827, 1.0836), // close back above the level
	}
	c, ok := ConfirmSweep(f, p)
	require.True(t, ok)
	assert.Equal(t, ConfirmReclaim, c.Kind)
	assert.Equal(t, 1, c.ConfirmIndex)
}

func TestConfirmSweep_StabilizePath(t *testing.T) {
	p := PendingSweep{Level: 1.0830, PierceIndex: 0, PierceTime: ts(0), Direction: candle.Bullish}
	f := candle.Frame{
		bar(ts(0), 1.0832, 1.0833, 1.0820, 1.0825),
	}
	// Price holds within 0.05% below the level for over five minutes
	// without reclaiming it.
	for i := 1; i <= 7; i++ {
		f = append(f, bar(ts(i), 1.0828, 1.0829, 1.0827, 1.0828))
	}
	c, ok := ConfirmSweep(f, p)
	require.True(t, ok)
	assert.Equal(t, ConfirmStabilized, c.Kind)
}

func TestADRPercent(t *testing.T) {
	var f candle.Frame
	// Two completed sessions with a 100-pip range each.
	for day := 23; day <= 24; day++ {
		base := time.Date(2026, 7, day, 8, 0, 0, 0, time.UTC)
		f = append(f,
			bar(base, 1.0850, 1.0900, 1.0850, 1.0880),
			bar(base.Add(time.Hour), 1.0880, 1.0890, 1.0800, 1.0820),
		)
	}
	// Today has covered 25 pips so far.
	today := time.Date(2026, 7, 27, 9, 0, 0, 0, time.UTC)
	f = append(f, bar(today, 1.0850, 1.0870, 1.0845, 1.0860))

	pct := ADRPercent(f, today, 14)
	assert.InDelta(t, 25.0, pct, 0.5)

	// No completed prior day in the frame: no reading.
	assert.Zero(t, ADRPercent(f[len(f)-1:], today, 14))
}

func TestCurrentKillzone(t *testing.T) {
	name, in := CurrentKillzone(time.Date(2026, 7, 27, 8, 0, 0, 0, time.UTC), 0)
	assert.True(t, in)
	assert.Equal(t, KillzoneLondonOpen, name)

	_, in = CurrentKillzone(time.Date(2026, 7, 27, 3, 0, 0, 0, time.UTC), 0)
	assert.False(t, in)
}

func TestClassifyADX(t *testing.T) {
	assert.Equal(t, NoTrend, ClassifyADX(15))
	assert.Equal(t, WeakTrend, ClassifyADX(22))
	assert.Equal(t, StrongTrend, ClassifyADX(30))
	assert.Equal(t, VeryStrong, ClassifyADX(55))
}

func TestRSI_Extremes(t *testing.T) {
	var up candle.Frame
	for i := 0; i < 20; i++ {
		px := 1.0 + float64(i)*0.001
		up = append(up, bar(ts(i), px, px+0.0005, px-0.0001, px+0.0004))
	}
	assert.Equal(t, 100.0, RSI(up, 14), "monotonic rises read as RSI 100")
	assert.Equal(t, 50.0, RSI(up[:5], 14), "insufficient data falls back to neutral")
}
