// Package score implements the weighted additive scoring engine and its
// hard-veto predicates, producing a candidate Signal from a
// MarketSnapshot and sequencing State (grounded on the teacher's
// SignalFilter.Validate weighted-cluster pattern in signal_filter.go,
// generalized from whale-trade clustering to SMC confluence scoring).
package score

import (
	"fmt"
	"time"

	"github.com/sentinel-smc/sentinel/internal/analyzer"
	"github.com/sentinel-smc/sentinel/internal/candle"
	"github.com/sentinel-smc/sentinel/internal/detect"
	"github.com/sentinel-smc/sentinel/internal/stage"
)

// Quality is the final confidence grade.
type Quality string

const (
	QualityAPlus  Quality = "A+"
	QualityA      Quality = "A"
	QualityB      Quality = "B"
	QualityC      Quality = "C"
	QualityReject Quality = "REJECT"
)

// Signal is a fully scored, gradeable trade candidate.
type Signal struct {
	Symbol       string
	Direction    candle.Direction
	Confidence   float64
	Quality      Quality
	LotMultiplier float64
	Entry, SL, TP float64
	Strategy     string
	Session      detect.KillzoneName
	IsKillzone   bool
	ScoredAt     time.Time
	Components   map[string]float64
}

// VetoError names which hard veto rejected the candidate.
type VetoError struct {
	Rule string
}

func (e *VetoError) Error() string { return fmt.Sprintf("veto: %s", e.Rule) }

// Profile carries the per-symbol overrides scoring and vetoes consult.
type Profile struct {
	KillzonesEnabled   bool
	AllowCounterTrend  bool
	ForceLongOnly      bool
	ForceShortOnly     bool
	BlockMTFConflict   bool
	RSIExtremeLow      float64
	RSIExtremeHigh     float64
	MinADX             float64
	ADXFilterEnabled   bool
	MinRR              float64
	MinConfidenceScore float64
	SpreadCapPips      float64
	GoldenSetupOnly    bool
	IsCrypto           bool
	IsGoldOrIndex      bool
	PipSize            float64
}

// DefaultProfile returns the spec's documented defaults.
func DefaultProfile() Profile {
	return Profile{
		KillzonesEnabled:   true,
		RSIExtremeLow:      25,
		RSIExtremeHigh:     75,
		MinADX:             25,
		MinRR:              2.0,
		MinConfidenceScore: 70,
		SpreadCapPips:      5,
	}
}

// Evaluate runs the hard-veto chain and, if none fires, the additive
// scoring model, producing a graded Signal.
func Evaluate(snap analyzer.MarketSnapshot, st stage.State, p Profile) (Signal, error) {
	dir := st.SweepDirection
	if dir == candle.Neutral {
		dir = snap.CombinedBias
	}
	if dir == candle.Neutral {
		return Signal{}, &VetoError{Rule: "no_direction"}
	}

	if v := checkVetoes(snap, st, p, dir); v != nil {
		return Signal{}, v
	}

	components := scoreComponents(snap, st, p, dir)
	total := 0.0
	for _, v := range components {
		total += v
	}
	if total > 100 {
		total = 100
	}
	if total < 0 {
		total = 0
	}

	quality, mult := band(total)
	if mult < 0.9 && total < 75 {
		return Signal{}, &VetoError{Rule: "elite_or_nothing"}
	}
	if total < p.MinConfidenceScore {
		return Signal{}, &VetoError{Rule: "score_floor"}
	}

	return Signal{
		Symbol: snap.Symbol, Direction: dir, Confidence: total, Quality: quality,
		LotMultiplier: mult, Session: snap.Killzone, IsKillzone: snap.InKillzone,
		ScoredAt: snap.Timestamp, Components: components,
	}, nil
}

func band(score float64) (Quality, float64) {
	switch {
	case score >= 85:
		return QualityAPlus, 1.0
	case score >= 70:
		return QualityA, 0.8
	case score >= 55:
		return QualityB, 0.5
	case score >= 40:
		return QualityC, 0.3
	default:
		return QualityReject, 0.0
	}
}

func checkVetoes(snap analyzer.MarketSnapshot, st stage.State, p Profile, dir candle.Direction) error {
	if p.KillzonesEnabled && !p.IsCrypto && !snap.InKillzone {
		return &VetoError{Rule: "killzone"}
	}
	if !p.IsCrypto && detect.InAsianSession(snap.Timestamp) {
		return &VetoError{Rule: "asian_session"}
	}
	if zoneConflict(dir, snap.PremiumDiscount.Label) && !hasZoneException(snap) {
		return &VetoError{Rule: "zone_conflict"}
	}
	if p.ForceLongOnly && dir == candle.Sell {
		return &VetoError{Rule: "force_long_only"}
	}
	if p.ForceShortOnly && dir == candle.Buy {
		return &VetoError{Rule: "force_short_only"}
	}
	if impulsiveRegimeBlocks(snap, p, dir) {
		return &VetoError{Rule: "impulsive_regime"}
	}
	if !p.AllowCounterTrend && contradictsHTF(dir, snap.HTFTrend) {
		return &VetoError{Rule: "strict_trend_safety"}
	}
	if p.BlockMTFConflict && mtfConflict(dir, snap.MTFBias) && !hasStrongIFVGException(snap, 80) {
		return &VetoError{Rule: "mtf_bias_conflict"}
	}
	if momentumConfirmationFails(snap, p, dir) {
		return &VetoError{Rule: "momentum_confirmation"}
	}
	if spreadTooWide(snap, p, dir) {
		return &VetoError{Rule: "spread_sentinel"}
	}
	if p.ADXFilterEnabled && snap.ADX < p.MinADX {
		return &VetoError{Rule: "trend_strength"}
	}
	if p.GoldenSetupOnly && st.Stage != stage.EntryReady {
		return &VetoError{Rule: "golden_setup_only"}
	}
	return nil
}

// spreadTooWide implements the three-branch spread sentinel: the
// absolute per-symbol cap, spread vs. half the height of the order
// block the entry would lean on, and spread vs. 30% of the prospective
// stop distance.
func spreadTooWide(snap analyzer.MarketSnapshot, p Profile, dir candle.Direction) bool {
	if snap.Price.SpreadPips > p.SpreadCapPips {
		return true
	}
	if p.PipSize <= 0 {
		return false
	}
	spread := snap.Price.SpreadPips * p.PipSize
	if h, ok := matchingOBHeight(snap, dir); ok && spread > 0.5*h {
		return true
	}
	if d := prospectiveStopDistance(snap, dir, p.PipSize); d > 0 && spread > 0.3*d {
		return true
	}
	return false
}

func matchingOBHeight(snap analyzer.MarketSnapshot, dir candle.Direction) (float64, bool) {
	price := snap.Price.Bid
	for _, ob := range detect.ActiveOrderBlocks(snap.OrderBlocks) {
		match := (dir == candle.Buy && ob.Direction == candle.Bullish) ||
			(dir == candle.Sell && ob.Direction == candle.Bearish)
		if match && price >= ob.Low && price <= ob.High {
			return ob.High - ob.Low, true
		}
	}
	return 0, false
}

// prospectiveStopDistance mirrors ConstructSLTP's structural stop
// choice so the sentinel can judge the spread before the stop exists.
func prospectiveStopDistance(snap analyzer.MarketSnapshot, dir candle.Direction, pipSize float64) float64 {
	entry := snap.Price.Ask
	if dir == candle.Sell {
		entry = snap.Price.Bid
	}
	buffer := 5 * pipSize
	if atrBuf := snap.ATR * 0.10; atrBuf > buffer {
		buffer = atrBuf
	}
	if dir == candle.Buy {
		if low, ok := nearestSwingBelow(snap, entry); ok {
			return entry - (low - buffer)
		}
	} else {
		if high, ok := nearestSwingAbove(snap, entry); ok {
			return (high + buffer) - entry
		}
	}
	return FallbackSLPips * pipSize
}

func zoneConflict(dir candle.Direction, label detect.ZoneLabel) bool {
	return (dir == candle.Buy && label == detect.ZonePremium) ||
		(dir == candle.Sell && label == detect.ZoneDiscount)
}

func hasZoneException(snap analyzer.MarketSnapshot) bool {
	return len(snap.Sweeps) > 0 || len(snap.LevelSweeps) > 0 || ifvgStrength(snap) >= 70
}

func ifvgStrength(snap analyzer.MarketSnapshot) float64 {
	if len(snap.IFVGs) == 0 {
		return 0
	}
	return 60 + float64(len(snap.IFVGs))*5
}

func hasStrongIFVGException(snap analyzer.MarketSnapshot, threshold float64) bool {
	return ifvgStrength(snap) >= threshold
}

func impulsiveRegimeBlocks(snap analyzer.MarketSnapshot, p Profile, dir candle.Direction) bool {
	barred := (dir == candle.Buy && snap.RSI < p.RSIExtremeLow) ||
		(dir == candle.Sell && snap.RSI > p.RSIExtremeHigh)
	if !barred {
		return false
	}
	if snap.HasSMT && sweepDirMatches(snap.SMT.Direction, dir) {
		return false
	}
	if (len(snap.Sweeps) > 0 || len(snap.LevelSweeps) > 0) && len(snap.FVGs) > 0 && p.AllowCounterTrend {
		return false
	}
	if hasStrongIFVGException(snap, 80) && htfAligned(dir, snap.HTFTrend) {
		return false
	}
	return true
}

func sweepDirMatches(t candle.Trend, dir candle.Direction) bool {
	return (t == candle.Bullish && dir == candle.Buy) || (t == candle.Bearish && dir == candle.Sell)
}

func htfAligned(dir candle.Direction, htf candle.Trend) bool {
	return (dir == candle.Buy && htf == candle.Bullish) || (dir == candle.Sell && htf == candle.Bearish)
}

func contradictsHTF(dir candle.Direction, htf candle.Trend) bool {
	return (dir == candle.Buy && htf == candle.Bearish) || (dir == candle.Sell && htf == candle.Bullish)
}

func mtfConflict(dir candle.Direction, mtf candle.Trend) bool {
	return (dir == candle.Buy && mtf == candle.Bearish) || (dir == candle.Sell && mtf == candle.Bullish)
}

func momentumConfirmationFails(snap analyzer.MarketSnapshot, p Profile, dir candle.Direction) bool {
	if snap.RVOL < 0.7 {
		return true
	}
	extremeLow := dir == candle.Buy && snap.PremiumDiscount.ClampedPercent <= 0.20
	extremeHigh := dir == candle.Sell && snap.PremiumDiscount.ClampedPercent >= 0.80
	if !extremeLow && !extremeHigh {
		return false
	}
	bounce := snap.MACD.Histogram > 0 == (dir == candle.Buy)
	pause := snap.ATR > 0 && snap.RVOL < 1.2
	return !(bounce || pause)
}
