// Package stage implements the per-symbol sequencing state machine:
// NEUTRAL -> LIQUIDITY_SWEEP -> STRUCTURE_SHIFT -> ENTRY_READY, grounded
// on original_source/core/smc_state.py's SMCStateMachine.update.
package stage

import (
	"time"

	"github.com/sentinel-smc/sentinel/internal/analyzer"
	"github.com/sentinel-smc/sentinel/internal/candle"
	"github.com/sentinel-smc/sentinel/internal/detect"
)

// Stage is one of the four sequencing phases.
type Stage string

const (
	Neutral        Stage = "NEUTRAL"
	LiquiditySweep Stage = "LIQUIDITY_SWEEP"
	StructureShift Stage = "STRUCTURE_SHIFT"
	EntryReady     Stage = "ENTRY_READY"
)

// SweepType names what triggered the LIQUIDITY_SWEEP stage.
type SweepType string

const (
	SweepPDL       SweepType = "PDL"
	SweepPDH       SweepType = "PDH"
	SweepAsian     SweepType = "ASIAN"
	SweepSilverBullet SweepType = "SILVER_BULLET"
	SweepAMD       SweepType = "AMD"
	SweepGeneric   SweepType = "GENERIC_KILLZONE"
	SweepMomentum  SweepType = "MOMENTUM_CLIMAX"
)

// ExpirationBars is the default stale-state timeout (spec §4.D).
const ExpirationBars = 60

// InvalidationBufferPips/InvalidationBufferGold bound how far price may
// run past the sweep price, in the sweep's original direction, before
// LIQUIDITY_SWEEP resets to NEUTRAL.
const (
	InvalidationBufferPips = 15.0
	InvalidationBufferGold = 5.0
)

// MinBreakPips/MinBreakGoldMultiplier bound the CHoCH displacement-
// magnitude gate (0.5 pip forex, x10 for gold/indices per spec §4.D).
const (
	MinBreakPips          = 0.5
	MinBreakGoldMultiplier = 10
)

// State is the per-symbol sequencing state, persisted across cycles.
type State struct {
	Symbol            string
	Stage             Stage
	SweepType         SweepType
	SweepDirection    candle.Direction
	SweepPrice        float64
	SweepTime         time.Time
	ChochDetected     bool
	ChochPrice        float64
	ChochTime         time.Time
	ValidEntryZone    bool
	BarsSinceTransition int
}

// NewState creates the initial NEUTRAL state for a symbol.
func NewState(symbol string) *State {
	return &State{Symbol: symbol, Stage: Neutral}
}

// Params bundles the thresholds that vary by asset class and the
// per-symbol strategy toggles consulted when classifying a generic
// killzone sweep.
type Params struct {
	IsGoldOrIndex      bool
	PipSize            float64
	EnableSilverBullet bool
	EnableAMD          bool
}

func (p Params) minBreak() float64 {
	if p.IsGoldOrIndex {
		return MinBreakPips * MinBreakGoldMultiplier * p.PipSize
	}
	return MinBreakPips * p.PipSize
}

func (p Params) invalidationBuffer() float64 {
	if p.IsGoldOrIndex {
		return InvalidationBufferGold
	}
	return InvalidationBufferPips * p.PipSize
}

// Advance mutates State in place according to the current snapshot,
// applying at most one transition per call (spec §4.D).
func Advance(s *State, snap analyzer.MarketSnapshot, p Params) {
	s.BarsSinceTransition++

	switch s.Stage {
	case Neutral:
		if tr, ok := detectSweepTrigger(snap, p); ok {
			s.Stage = LiquiditySweep
			s.SweepType = tr.sweepType
			s.SweepDirection = tr.dir
			s.SweepPrice = tr.price
			s.SweepTime = tr.at
			s.BarsSinceTransition = 0
			s.ChochDetected = false
			s.ValidEntryZone = false
		}

	case LiquiditySweep:
		expectTrend := candle.Bullish
		if s.SweepDirection == candle.Sell {
			expectTrend = candle.Bearish
		}
		if b, ok := detect.LatestCHoCH(snap.StructureLTF.Breaks, s.SweepTime, expectTrend, p.minBreak()); ok {
			s.Stage = StructureShift
			s.ChochDetected = true
			s.ChochPrice = b.BreakPrice
			s.ChochTime = b.Timestamp
			s.BarsSinceTransition = 0
			break
		}
		if invalidatedBySweepContinuation(s, snap, p) {
			reset(s)
			break
		}

	case StructureShift:
		buyReady := s.SweepDirection == candle.Buy &&
			(snap.PremiumDiscount.Label == detect.ZoneDiscount || snap.PremiumDiscount.Label == detect.ZoneEquilibrium)
		sellReady := s.SweepDirection == candle.Sell &&
			(snap.PremiumDiscount.Label == detect.ZonePremium || snap.PremiumDiscount.Label == detect.ZoneEquilibrium)
		if buyReady || sellReady {
			s.Stage = EntryReady
			s.ValidEntryZone = true
			s.BarsSinceTransition = 0
		}

	case EntryReady:
		price := snap.Price.Bid
		if s.SweepDirection == candle.Buy {
			price = snap.Price.Ask
		}
		if (s.SweepDirection == candle.Buy && price < s.SweepPrice) ||
			(s.SweepDirection == candle.Sell && price > s.SweepPrice) {
			reset(s)
			break
		}
	}

	if s.Stage != Neutral && s.BarsSinceTransition > ExpirationBars {
		reset(s)
	}
}

func reset(s *State) {
	*s = State{Symbol: s.Symbol, Stage: Neutral}
}

// invalidatedBySweepContinuation fires when price keeps running in the
// pierce's original direction: a BUY setup came from a downward sweep,
// so continuation means price falling past sweep_price - buffer.
func invalidatedBySweepContinuation(s *State, snap analyzer.MarketSnapshot, p Params) bool {
	buf := p.invalidationBuffer()
	if s.SweepDirection == candle.Buy {
		return snap.Price.Bid < s.SweepPrice-buf
	}
	return snap.Price.Ask > s.SweepPrice+buf
}

// trigger describes one NEUTRAL -> LIQUIDITY_SWEEP firing.
type trigger struct {
	sweepType SweepType
	dir       candle.Direction
	price     float64
	at        time.Time
}

// detectSweepTrigger evaluates the NEUTRAL -> LIQUIDITY_SWEEP trigger
// set, in precedence order: a confirmed PDL/PDH or Asian-range level
// sweep, then a generic liquidity sweep inside an active killzone
// (classified Silver-Bullet or AMD when the matching strategy is
// enabled and its window/phase matches), then a momentum climax
// (RSI<30 for BUY, RSI>70 for SELL). A generic sweep outside a
// killzone is ignored, not a veto: later triggers still apply.
func detectSweepTrigger(snap analyzer.MarketSnapshot, p Params) (trigger, bool) {
	if n := len(snap.LevelSweeps); n > 0 {
		ls := snap.LevelSweeps[n-1]
		dir := candle.Buy
		if ls.Direction == candle.Bearish {
			dir = candle.Sell
		}
		return trigger{levelSweepType(ls.Kind), dir, ls.Level, ls.ConfirmTime}, true
	}
	if len(snap.Sweeps) > 0 && snap.InKillzone {
		sw := snap.Sweeps[len(snap.Sweeps)-1]
		dir := candle.Buy
		if sw.Direction == candle.Bearish {
			dir = candle.Sell
		}
		zone := snap.Liquidity[sw.ZoneIndex]
		sweepType := SweepGeneric
		switch {
		case p.EnableSilverBullet && snap.SilverBullet:
			sweepType = SweepSilverBullet
		case p.EnableAMD && snap.AMDPhase == detect.AMDManipulation:
			sweepType = SweepAMD
		}
		return trigger{sweepType, dir, zone.Price, sw.Timestamp}, true
	}
	if snap.RSI < 30 {
		return trigger{SweepMomentum, candle.Buy, snap.Price.Bid, snap.Timestamp}, true
	}
	if snap.RSI > 70 {
		return trigger{SweepMomentum, candle.Sell, snap.Price.Ask, snap.Timestamp}, true
	}
	return trigger{}, false
}

func levelSweepType(k detect.LevelKind) SweepType {
	switch k {
	case detect.LevelPDH:
		return SweepPDH
	case detect.LevelPDL:
		return SweepPDL
	default:
		return SweepAsian
	}
}
