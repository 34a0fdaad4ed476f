package detect

import "github.com/sentinel-smc/sentinel/internal/candle"

// ZoneLabel classifies where price sits within the active dealing range.
type ZoneLabel string

const (
	ZonePremium  ZoneLabel = "PREMIUM"
	ZoneDiscount ZoneLabel = "DISCOUNT"
	ZoneEquilibrium ZoneLabel = "EQUILIBRIUM"
)

// PremiumDiscount is the equilibrium-anchored zone split of a dealing
// range (grounded on original_source/core/premium_discount.py).
type PremiumDiscount struct {
	High, Low, Equilibrium float64
	PremiumStart, DiscountEnd float64
	// RawPercent is the unclamped position of price within [Low, High];
	// ClampedPercent is RawPercent clamped to [0, 1] for display/scoring.
	RawPercent, ClampedPercent float64
	Label ZoneLabel
}

// CalculatePremiumDiscount derives the premium/discount split for the
// given dealing range, with an equilibrium band of +/-buffer (price
// units) around the midpoint, and classifies price's position in it.
// Unlike ClampedPercent, the PREMIUM/DISCOUNT/EQUILIBRIUM label is
// decided against the unclamped price, matching
// original_source/core/premium_discount.py's zone classification and
// its equilibrium_buffer parameter.
func CalculatePremiumDiscount(high, low, price, buffer float64) PremiumDiscount {
	pd := PremiumDiscount{High: high, Low: low}
	rng := high - low
	if rng <= 0 {
		return pd
	}
	if buffer < 0 {
		buffer = 0
	}
	pd.Equilibrium = low + rng/2
	pd.PremiumStart = pd.Equilibrium + buffer
	pd.DiscountEnd = pd.Equilibrium - buffer

	pd.RawPercent = (price - low) / rng
	pd.ClampedPercent = pd.RawPercent
	if pd.ClampedPercent < 0 {
		pd.ClampedPercent = 0
	}
	if pd.ClampedPercent > 1 {
		pd.ClampedPercent = 1
	}

	switch {
	case price > pd.PremiumStart:
		pd.Label = ZonePremium
	case price < pd.DiscountEnd:
		pd.Label = ZoneDiscount
	default:
		pd.Label = ZoneEquilibrium
	}
	return pd
}

// FibLevel is one named retracement/extension level of a dealing range.
type FibLevel struct {
	Ratio float64
	Price float64
}

// FibLevels returns the standard retracement grid (0, 0.236, 0.382, 0.5,
// 0.618, 0.786, 1.0) for the given range, oriented so ratio 0 sits at
// `low` when bullish is true (range drawn low-to-high) and at `high`
// otherwise.
func FibLevels(high, low float64, bullish bool) []FibLevel {
	ratios := []float64{0, 0.236, 0.382, 0.5, 0.618, 0.786, 1.0}
	out := make([]FibLevel, len(ratios))
	rng := high - low
	for i, r := range ratios {
		var price float64
		if bullish {
			price = low + rng*r
		} else {
			price = high - rng*r
		}
		out[i] = FibLevel{Ratio: r, Price: price}
	}
	return out
}

// OTEZone is the Optimal Trade Entry band, the 0.618-0.786 retracement of
// the most recent displacement leg (grounded on
// original_source/core/ote.py).
type OTEZone struct {
	LegHigh, LegLow float64
	Start, End      float64 // Start = min(618,786) price, End = max, regardless of direction
	Direction       candle.Trend
}

const (
	oteFibStart = 0.618
	oteFibEnd   = 0.786
)

// CalculateOTE derives the OTE band for a displacement leg running from
// legLow to legHigh in the given direction. The band is normalized to
// [min, max] regardless of direction, matching original_source/core/ote.py
// ote_start=min/ote_end=max semantics.
func CalculateOTE(legHigh, legLow float64, direction candle.Trend) OTEZone {
	rng := legHigh - legLow
	var a, b float64
	if direction == candle.Bullish {
		a = legHigh - rng*oteFibStart
		b = legHigh - rng*oteFibEnd
	} else {
		a = legLow + rng*oteFibStart
		b = legLow + rng*oteFibEnd
	}
	start, end := a, b
	if start > end {
		start, end = end, start
	}
	return OTEZone{LegHigh: legHigh, LegLow: legLow, Start: start, End: end, Direction: direction}
}

// Contains reports whether price falls within the OTE band.
func (z OTEZone) Contains(price float64) bool {
	return price >= z.Start && price <= z.End
}
