package score

import (
	"github.com/sentinel-smc/sentinel/internal/analyzer"
	"github.com/sentinel-smc/sentinel/internal/candle"
	"github.com/sentinel-smc/sentinel/internal/detect"
)

// FallbackSLPips/FallbackTPPips are used when no structural level is
// available.
const (
	FallbackSLPips = 40.0
	FallbackTPPips = 50.0
)

// SLTPParams carries the per-symbol widening multiplier and pip size
// needed to construct SL/TP in price units.
type SLTPParams struct {
	PipSize      float64
	SLMultiplier float64 // per asset profile, e.g. 1.0 forex, 1.2 indices, 1.5 crypto/commodity
	MinRR        float64
}

// ConstructSLTP fills in Signal.Entry/SL/TP following spec §4.E: SL at
// the nearest opposing structural swing plus buffer, widened by
// SLMultiplier; TP at the nearest in-direction liquidity target,
// re-projected to 2x risk if the raw TP would underpay the minimum R:R.
func ConstructSLTP(sig *Signal, snap analyzer.MarketSnapshot, p SLTPParams) {
	entry := snap.Price.Ask
	if sig.Direction == candle.Sell {
		entry = snap.Price.Bid
	}
	sig.Entry = entry

	buffer := 5 * p.PipSize
	if atrBuf := snap.ATR * 0.10; atrBuf > buffer {
		buffer = atrBuf
	}

	var sl float64
	if sig.Direction == candle.Buy {
		if lowSwing, ok := nearestSwingBelow(snap, entry); ok {
			sl = lowSwing - buffer
		} else {
			sl = entry - FallbackSLPips*p.PipSize
		}
	} else {
		if highSwing, ok := nearestSwingAbove(snap, entry); ok {
			sl = highSwing + buffer
		} else {
			sl = entry + FallbackSLPips*p.PipSize
		}
	}

	mult := p.SLMultiplier
	if mult <= 0 {
		mult = 1.0
	}
	dist := entry - sl
	if dist < 0 {
		dist = -dist
	}
	dist *= mult
	if sig.Direction == candle.Buy {
		sl = entry - dist
	} else {
		sl = entry + dist
	}
	sig.SL = sl

	tp := nearestLiquidityTarget(snap, sig.Direction, entry)
	if tp == 0 {
		if sig.Direction == candle.Buy {
			tp = entry + FallbackTPPips*p.PipSize
		} else {
			tp = entry - FallbackTPPips*p.PipSize
		}
	}

	risk := dist
	reward := tp - entry
	if sig.Direction == candle.Sell {
		reward = entry - tp
	}
	minRR := p.MinRR
	if minRR <= 0 {
		minRR = 1.0
	}
	if risk > 0 && reward/risk < minRR {
		if sig.Direction == candle.Buy {
			tp = entry + risk*2
		} else {
			tp = entry - risk*2
		}
	}
	sig.TP = tp
}

func nearestSwingBelow(snap analyzer.MarketSnapshot, price float64) (float64, bool) {
	best := 0.0
	found := false
	for _, ob := range snap.OrderBlocks {
		if ob.Low < price && (!found || ob.Low > best) {
			best, found = ob.Low, true
		}
	}
	return best, found
}

func nearestSwingAbove(snap analyzer.MarketSnapshot, price float64) (float64, bool) {
	best := 0.0
	found := false
	for _, ob := range snap.OrderBlocks {
		if ob.High > price && (!found || ob.High < best) {
			best, found = ob.High, true
		}
	}
	return best, found
}

func nearestLiquidityTarget(snap analyzer.MarketSnapshot, dir candle.Direction, entry float64) float64 {
	if dir == candle.Buy {
		if snap.PreviousDay.Valid && snap.PreviousDay.High > entry {
			return snap.PreviousDay.High
		}
		return nearestZoneAbove(snap, entry, detect.SwingHigh)
	}
	if snap.PreviousDay.Valid && snap.PreviousDay.Low < entry {
		return snap.PreviousDay.Low
	}
	return nearestZoneBelow(snap, entry, detect.SwingLow)
}

func nearestZoneAbove(snap analyzer.MarketSnapshot, entry float64, kind detect.SwingKind) float64 {
	best := 0.0
	found := false
	for _, z := range snap.Liquidity {
		if z.Kind == kind && z.Price > entry && (!found || z.Price < best) {
			best, found = z.Price, true
		}
	}
	return best
}

func nearestZoneBelow(snap analyzer.MarketSnapshot, entry float64, kind detect.SwingKind) float64 {
	best := 0.0
	found := false
	for _, z := range snap.Liquidity {
		if z.Kind == kind && z.Price < entry && (!found || z.Price > best) {
			best, found = z.Price, true
		}
	}
	return best
}
