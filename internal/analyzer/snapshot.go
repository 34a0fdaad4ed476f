// Package analyzer runs the primitive detectors across LTF/MTF/HTF
// frames and composes the per-symbol MarketSnapshot the state machine
// and scoring engine consume.
package analyzer

import (
	"time"

	"github.com/sentinel-smc/sentinel/internal/candle"
	"github.com/sentinel-smc/sentinel/internal/detect"
)

// Frames bundles the three timeframes the analyzer needs for one symbol.
type Frames struct {
	LTF, MTF, HTF candle.Frame
}

// MarketSnapshot is the composed per-cycle, per-symbol view handed to
// the state machine and scoring engine.
type MarketSnapshot struct {
	Symbol    string
	Timestamp time.Time
	Price     candle.Tick

	LTFTrend candle.Trend
	MTFBias  candle.Trend
	HTFTrend candle.Trend

	OrderBlocks []detect.OrderBlock
	Breakers    []detect.BreakerBlock
	FVGs        []detect.FairValueGap
	IFVGs       []detect.FairValueGap
	Liquidity   []detect.LiquidityZone
	Sweeps      []detect.LiquiditySweep
	LevelSweeps []detect.LevelSweep

	PremiumDiscount detect.PremiumDiscount
	OTE             detect.OTEZone
	AsianRange      detect.AsianRange
	PreviousDay     detect.PreviousDayLevels

	Killzone      detect.KillzoneName
	InKillzone    bool
	SilverBullet  bool
	AMDPhase      detect.AMDPhase
	SMT           detect.SMTDivergence
	HasSMT        bool

	RSI        float64
	MACD       detect.MACDResult
	CMF        float64
	RVOL       float64
	ATR        float64
	ADX        float64
	ADRPercent float64

	StructureLTF detect.StructureResult
	StructureMTF detect.StructureResult
	StructureHTF detect.StructureResult

	TripleTimeframeAligned bool

	// CombinedBias is the directional conclusion of the precedence
	// chain below; NEUTRAL means no directional edge this cycle.
	CombinedBias candle.Direction
}

// Config carries the asset-profile overrides applied before running
// detectors (spec §4.C step 2).
type Config struct {
	SwingStrength       int
	EqualLevelTolerance float64
	MinGap              float64 // minimum FVG width in price units
	EquilibriumBuffer   float64 // equilibrium band half-width, price units
	UTCOffsetMinutes    int
	MinIFVGGoldenScore  float64 // iFVG confidence threshold for the "golden iFVG" override (80)
	MinIFVGOverride     float64 // iFVG confidence threshold for the generic override (70)

	// Per-symbol strategy toggles: each gates one detector family.
	DetectFVG         bool
	DetectPDSweeps    bool
	DetectAsianSweeps bool
}

// DefaultConfig returns the spec's documented defaults, with every
// strategy detector enabled.
func DefaultConfig() Config {
	return Config{
		SwingStrength:       detect.DefaultSwingStrength,
		EqualLevelTolerance: detect.EqualLevelTolerancePips,
		MinIFVGGoldenScore:  80,
		MinIFVGOverride:     70,
		DetectFVG:           true,
		DetectPDSweeps:      true,
		DetectAsianSweeps:   true,
	}
}

// Analyze runs the primitive detectors over the three timeframes and
// composes a MarketSnapshot, including the combined-bias precedence
// chain of spec §4.C.
func Analyze(symbol string, frames Frames, tick candle.Tick, cfg Config) MarketSnapshot {
	snap := MarketSnapshot{Symbol: symbol, Timestamp: tick.Time, Price: tick}

	ltfSwings := detect.Swings(frames.LTF, cfg.SwingStrength)
	snap.StructureLTF = detect.AnalyzeStructure(frames.LTF, ltfSwings)
	snap.StructureMTF = detect.AnalyzeStructure(frames.MTF, detect.Swings(frames.MTF, cfg.SwingStrength))
	snap.StructureHTF = detect.AnalyzeStructure(frames.HTF, detect.Swings(frames.HTF, cfg.SwingStrength))

	snap.LTFTrend = snap.StructureLTF.Trend
	snap.MTFBias = snap.StructureMTF.Trend
	snap.HTFTrend = snap.StructureHTF.Trend

	snap.OrderBlocks = detect.OrderBlocks(frames.LTF, snap.StructureLTF.Breaks)
	snap.Breakers = detect.Breakers(snap.OrderBlocks, frames.LTF)

	if cfg.DetectFVG {
		gaps := detect.FairValueGaps(frames.LTF, cfg.MinGap)
		snap.FVGs = detect.OpenFVGs(gaps)
		snap.IFVGs = detect.InvertedFVGs(gaps)
	}

	snap.Liquidity = detect.LiquidityZones(ltfSwings, cfg.EqualLevelTolerance)
	snap.Sweeps = detect.Sweeps(frames.LTF, snap.Liquidity)

	if len(ltfSwings) > 0 {
		var hi, lo = ltfSwings[0].Price, ltfSwings[0].Price
		for _, s := range ltfSwings {
			if s.Price > hi {
				hi = s.Price
			}
			if s.Price < lo {
				lo = s.Price
			}
		}
		snap.PremiumDiscount = detect.CalculatePremiumDiscount(hi, lo, frames.LTF.Last().Close, cfg.EquilibriumBuffer)

		legDir := candle.Bullish
		if snap.LTFTrend == candle.Bearish {
			legDir = candle.Bearish
		}
		snap.OTE = detect.CalculateOTE(hi, lo, legDir)
	}

	snap.AsianRange = detect.CalculateAsianRange(frames.LTF, tick.Time, detect.AsianWindowStartHour, detect.AsianWindowEndHour)
	snap.PreviousDay = detect.CalculatePreviousDayLevels(frames.LTF, tick.Time)

	pdLevels := snap.PreviousDay
	if !cfg.DetectPDSweeps {
		pdLevels = detect.PreviousDayLevels{}
	}
	asian := snap.AsianRange
	if !cfg.DetectAsianSweeps {
		asian = detect.AsianRange{}
	}
	snap.LevelSweeps = detect.DetectLevelSweeps(frames.LTF, pdLevels, asian)

	snap.Killzone, snap.InKillzone = detect.CurrentKillzone(tick.Time, cfg.UTCOffsetMinutes)
	snap.SilverBullet = detect.InSilverBulletWindow(tick.Time)
	snap.AMDPhase = detect.AMDCycle(tick.Time, snap.AsianRange.Valid, len(snap.Sweeps) > 0)

	snap.RSI = detect.RSI(frames.LTF, 14)
	snap.MACD = detect.MACD(frames.LTF, 12, 26, 9)
	snap.CMF = detect.CMF(frames.LTF, 20)
	snap.RVOL = detect.RelativeVolume(frames.LTF, 20)
	snap.ATR = detect.ATR(frames.LTF, 14)
	snap.ADX = detect.ADX(frames.LTF, 14)
	snap.ADRPercent = detect.ADRPercent(frames.LTF, tick.Time, 14)

	snap.TripleTimeframeAligned = snap.HTFTrend != candle.Ranging &&
		snap.HTFTrend == snap.MTFBias && snap.MTFBias == snap.LTFTrend

	snap.CombinedBias = combinedBias(snap, cfg)
	return snap
}

// combinedBias implements the spec §4.C precedence chain, first match
// wins.
func combinedBias(s MarketSnapshot, cfg Config) candle.Direction {
	// (b) Golden iFVG.
	if dir, ok := bestIFVGDirection(s.IFVGs, s.LTFTrend); ok {
		if score := ifvgConfidence(s.IFVGs); score >= cfg.MinIFVGGoldenScore {
			return dir
		}
	}

	// (c) Confirmed sweep (PDL/PDH, Asian, or a generic sweep inside an
	// active killzone), provided the zone does not contradict.
	if dir, ok := confirmedSweepDirection(s); ok {
		if !zoneContradicts(dir, s.PremiumDiscount.Label) {
			return dir
		}
	}

	// (d) High-confidence iFVG.
	if dir, ok := bestIFVGDirection(s.IFVGs, s.LTFTrend); ok {
		if score := ifvgConfidence(s.IFVGs); score >= cfg.MinIFVGOverride {
			return dir
		}
	}

	// (e) Trend + zone fallback.
	switch {
	case s.LTFTrend == candle.Bullish && (s.PremiumDiscount.Label == detect.ZoneDiscount || s.PremiumDiscount.Label == detect.ZoneEquilibrium):
		return candle.Buy
	case s.LTFTrend == candle.Bearish && (s.PremiumDiscount.Label == detect.ZonePremium || s.PremiumDiscount.Label == detect.ZoneEquilibrium):
		return candle.Sell
	default:
		return candle.Neutral
	}
}

func zoneContradicts(dir candle.Direction, label detect.ZoneLabel) bool {
	if dir == candle.Buy && label == detect.ZonePremium {
		return true
	}
	if dir == candle.Sell && label == detect.ZoneDiscount {
		return true
	}
	return false
}

func sweepDirection(sw detect.LiquiditySweep) candle.Direction {
	return trendDirection(sw.Direction)
}

func trendDirection(t candle.Trend) candle.Direction {
	if t == candle.Bullish {
		return candle.Buy
	}
	return candle.Sell
}

// confirmedSweepDirection resolves the sweep the bias chain honors: a
// confirmed previous-day/Asian level sweep anywhere, or a generic
// liquidity sweep only inside an active killzone.
func confirmedSweepDirection(s MarketSnapshot) (candle.Direction, bool) {
	if n := len(s.LevelSweeps); n > 0 {
		return trendDirection(s.LevelSweeps[n-1].Direction), true
	}
	if len(s.Sweeps) > 0 && s.InKillzone {
		return sweepDirection(s.Sweeps[len(s.Sweeps)-1]), true
	}
	return candle.Neutral, false
}

// bestIFVGDirection picks the trade direction of the most recent iFVG,
// with polarity flipped: an inverted bullish gap acts as resistance
// (SELL), an inverted bearish gap as support (BUY).
func bestIFVGDirection(gaps []detect.FairValueGap, ltfTrend candle.Trend) (candle.Direction, bool) {
	if len(gaps) == 0 {
		return candle.Neutral, false
	}
	last := gaps[len(gaps)-1]
	if last.Direction == candle.Bearish {
		return candle.Buy, true
	}
	return candle.Sell, true
}

// ifvgConfidence is a placeholder confidence heuristic for an iFVG set,
// 60 plus 5 per inverted gap (capped at 100), until scoring assigns
// the authoritative per-signal confidence in internal/score.
func ifvgConfidence(gaps []detect.FairValueGap) float64 {
	if len(gaps) == 0 {
		return 0
	}
	base := 60.0
	base += float64(len(gaps)) * 5
	if base > 100 {
		base = 100
	}
	return base
}
