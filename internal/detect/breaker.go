package detect

import (
	"github.com/sentinel-smc/sentinel/internal/candle"
)

// BreakerBlock is an invalidated order block whose polarity has flipped:
// a failed demand zone becomes resistance and vice versa (grounded on
// original_source/core/breaker.py detect_from_broken_obs).
type BreakerBlock struct {
	OrderBlock
	OriginDirection candle.Trend
}

// Breakers derives breaker blocks strictly from order blocks that are
// currently INVALIDATED; the zone's boundaries are kept but its
// direction is reversed and its lifecycle status reset so it can be
// tested/mitigated independently going forward.
func Breakers(obs []OrderBlock, f candle.Frame) []BreakerBlock {
	var out []BreakerBlock
	for _, ob := range obs {
		if ob.Status != OBInvalidated {
			continue
		}
		dir := candle.Bullish
		if ob.Direction == candle.Bullish {
			dir = candle.Bearish
		}
		flipped := OrderBlock{
			Index:     ob.InvalidatedAt,
			Timestamp: ob.Timestamp,
			High:      ob.High,
			Low:       ob.Low,
			Direction: dir,
			Status:    OBFresh,
		}
		updateOBStatus(&flipped, f)
		out = append(out, BreakerBlock{OrderBlock: flipped, OriginDirection: ob.Direction})
	}
	return out
}
