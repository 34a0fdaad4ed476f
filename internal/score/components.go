package score

import (
	"time"

	"github.com/sentinel-smc/sentinel/internal/analyzer"
	"github.com/sentinel-smc/sentinel/internal/candle"
	"github.com/sentinel-smc/sentinel/internal/detect"
	"github.com/sentinel-smc/sentinel/internal/stage"
)

// scoreComponents computes the additive score table of spec §4.E. Each
// named component is independent and the caller sums and caps at 100.
func scoreComponents(snap analyzer.MarketSnapshot, st stage.State, p Profile, dir candle.Direction) map[string]float64 {
	c := map[string]float64{}

	if (dir == candle.Buy && snap.PremiumDiscount.Label == detect.ZoneDiscount) ||
		(dir == candle.Sell && snap.PremiumDiscount.Label == detect.ZonePremium) {
		c["zone_alignment"] = 25
	}

	if (dir == candle.Buy && snap.LTFTrend == candle.Bullish) || (dir == candle.Sell && snap.LTFTrend == candle.Bearish) {
		c["ltf_trend_alignment"] = 15
	}

	confirmedSweep := hasConfirmedSweep(snap, st, dir)
	if confirmedSweep {
		c["confirmed_liquidity_sweep"] = 25
	} else if genericSweepInDirection(snap, dir) && snap.InKillzone {
		c["generic_killzone_sweep"] = 15
	}

	if snap.HasSMT && sweepDirMatches(snap.SMT.Direction, dir) {
		c["smt_divergence"] = 30
	}

	obHit := priceInOrderBlock(snap, dir)
	if strength := ifvgStrength(snap); strength > 0 && ifvgDirMatches(snap, dir) {
		ifvgPts := 10.0
		if htfAligned(dir, snap.HTFTrend) && strength >= 85 {
			ifvgPts += 5
		}
		if !obHit {
			c["ifvg_bypass"] = 15
		} else {
			c["ifvg_in_direction"] = ifvgPts
		}
	}

	if obHit {
		c["order_block_hit"] = 40
	} else if confirmedSweep {
		c["sweep_bypass"] = 20
	}

	if fvgHit(snap, dir) {
		c["fvg_hit"] = 20
	}
	if breakerHit(snap, dir) {
		c["breaker_hit"] = 30
	}

	if htfAligned(dir, snap.HTFTrend) {
		c["htf_alignment"] = 40
	} else if contradictsHTF(dir, snap.HTFTrend) {
		if exception := htfException(snap, dir); exception {
			c["htf_alignment"] = 20 // partial credit, lot downgrade applied by caller via quality band
		} else {
			c["htf_alignment"] = -30
		}
	}

	if (dir == candle.Buy && snap.MTFBias == candle.Bullish) || (dir == candle.Sell && snap.MTFBias == candle.Bearish) {
		c["mtf_alignment"] = 30
	} else if mtfConflict(dir, snap.MTFBias) {
		c["mtf_alignment"] = -10
	}

	if st.Stage == stage.EntryReady {
		c["sequence_complete"] = 40
	}

	if recentDisplacement(snap) {
		c["post_sweep_displacement"] = 10
	}

	if snap.TripleTimeframeAligned {
		c["triple_timeframe_alignment"] = 20
	}

	if snap.OTE.End > snap.OTE.Start && snap.OTE.Contains(snap.Price.Bid) {
		c["ote_confluence"] = 5
	}

	switch {
	case snap.ADRPercent > 85:
		c["adr_exhaustion"] = -15
	case snap.ADRPercent > 0 && snap.ADRPercent < 30:
		c["adr_freshness"] = 5
	}

	if p.PipSize > 0 && nearRoundNumber(snap.Price.Bid, p.PipSize) {
		c["round_number"] = 5
	}

	if snap.RVOL >= 0.7 && snap.CMF > -0.2 {
		c["volume_ok"] = 15
	} else {
		c["volume_suspect"] = -10
	}

	c["momentum"] = momentumScore(snap, dir)

	return c
}

// nearRoundNumber reports whether price sits within 5 pips of an
// institutional round level (a 50-pip multiple).
func nearRoundNumber(price, pipSize float64) bool {
	level := 50 * pipSize
	if level <= 0 {
		return false
	}
	rem := price - float64(int(price/level))*level
	if rem > level/2 {
		rem = level - rem
	}
	return rem <= 5*pipSize
}

func sweepDirMatchesDirection(sw detect.LiquiditySweep, dir candle.Direction) bool {
	return (sw.Direction == candle.Bullish && dir == candle.Buy) || (sw.Direction == candle.Bearish && dir == candle.Sell)
}

// hasConfirmedSweep reports whether a named liquidity sweep
// (PDL/PDH/Asian/Silver-Bullet/AMD) backs the signal's direction,
// either freshly detected on the snapshot or recorded by the state
// machine's sequencing.
func hasConfirmedSweep(snap analyzer.MarketSnapshot, st stage.State, dir candle.Direction) bool {
	for _, ls := range snap.LevelSweeps {
		if sweepDirMatches(ls.Direction, dir) {
			return true
		}
	}
	switch st.SweepType {
	case stage.SweepPDL, stage.SweepPDH, stage.SweepAsian, stage.SweepSilverBullet, stage.SweepAMD:
		return st.SweepDirection == dir
	}
	return false
}

func genericSweepInDirection(snap analyzer.MarketSnapshot, dir candle.Direction) bool {
	return len(snap.Sweeps) > 0 && sweepDirMatchesDirection(snap.Sweeps[len(snap.Sweeps)-1], dir)
}

func priceInOrderBlock(snap analyzer.MarketSnapshot, dir candle.Direction) bool {
	price := snap.Price.Bid
	for _, ob := range detect.ActiveOrderBlocks(snap.OrderBlocks) {
		if (dir == candle.Buy && ob.Direction == candle.Bullish) || (dir == candle.Sell && ob.Direction == candle.Bearish) {
			if price >= ob.Low && price <= ob.High {
				return true
			}
		}
	}
	return false
}

func ifvgDirMatches(snap analyzer.MarketSnapshot, dir candle.Direction) bool {
	if len(snap.IFVGs) == 0 {
		return false
	}
	last := snap.IFVGs[len(snap.IFVGs)-1]
	// An inverted gap trades with flipped polarity.
	return (last.Direction == candle.Bearish && dir == candle.Buy) || (last.Direction == candle.Bullish && dir == candle.Sell)
}

func fvgHit(snap analyzer.MarketSnapshot, dir candle.Direction) bool {
	price := snap.Price.Bid
	for _, g := range snap.FVGs {
		if (dir == candle.Buy && g.Direction == candle.Bullish) || (dir == candle.Sell && g.Direction == candle.Bearish) {
			if price >= g.Bottom && price <= g.Top {
				return true
			}
		}
	}
	return false
}

func breakerHit(snap analyzer.MarketSnapshot, dir candle.Direction) bool {
	price := snap.Price.Bid
	for _, b := range snap.Breakers {
		if (dir == candle.Buy && b.Direction == candle.Bullish) || (dir == candle.Sell && b.Direction == candle.Bearish) {
			if price >= b.Low && price <= b.High {
				return true
			}
		}
	}
	return false
}

// mtfChochWindow bounds how old an MTF CHoCH may be and still count as
// "recent" for HTF-veto exception (ii).
const mtfChochWindow = 24 * time.Hour

// htfException implements the three HTF-veto exceptions of spec §4.E:
// SMT with sweep bonus, recent in-direction MTF CHOCH + confirmed sweep,
// or HTF ranging with a strong in-direction iFVG.
func htfException(snap analyzer.MarketSnapshot, dir candle.Direction) bool {
	hasSweep := len(snap.Sweeps) > 0 || len(snap.LevelSweeps) > 0
	if snap.HasSMT && sweepDirMatches(snap.SMT.Direction, dir) && hasSweep {
		return true
	}
	expect := candle.Bullish
	if dir == candle.Sell {
		expect = candle.Bearish
	}
	cutoff := snap.Timestamp.Add(-mtfChochWindow)
	if _, ok := detect.LatestCHoCH(snap.StructureMTF.Breaks, cutoff, expect, 0); ok && hasSweep {
		return true
	}
	if snap.HTFTrend == candle.Ranging && ifvgStrength(snap) >= 85 && ifvgDirMatches(snap, dir) {
		return true
	}
	return false
}

func recentDisplacement(snap analyzer.MarketSnapshot) bool {
	breaks := snap.StructureLTF.Breaks
	if len(breaks) == 0 {
		return false
	}
	last := breaks[len(breaks)-1]
	return last.Displacement
}

func momentumScore(snap analyzer.MarketSnapshot, dir candle.Direction) float64 {
	extreme := (dir == candle.Buy && snap.RSI < 30) || (dir == candle.Sell && snap.RSI > 70)
	divergence := snap.HasSMT
	switch {
	case extreme && divergence:
		return 25
	case extreme || divergence:
		return 15
	default:
		return 0
	}
}
