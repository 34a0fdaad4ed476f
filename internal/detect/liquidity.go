package detect

import (
	"time"

	"github.com/sentinel-smc/sentinel/internal/candle"
)

// LiquidityZone is a cluster of near-equal highs or lows that marks resting
// stop/limit liquidity (grounded on original_source/core/liquidity.py
// _detect_equal_levels).
type LiquidityZone struct {
	Price     float64
	Kind      SwingKind // HIGH = equal highs (buy-side above price), LOW = equal lows (sell-side below price)
	Touches   []int
	Swept     bool
	SweptAt   int
	SweptTime time.Time
}

// EqualLevelTolerancePips is the clustering tolerance used to group
// swing extremes into one liquidity zone.
const EqualLevelTolerancePips = 3.0

// LiquidityZones clusters swing extremes of the same kind that fall
// within tolerance of each other into zones. Tolerance is expressed in
// price units (caller converts from pips using the instrument's pip
// size).
func LiquidityZones(swings []Swing, tolerance float64) []LiquidityZone {
	var highs, lows []Swing
	for _, s := range swings {
		if s.Kind == SwingHigh {
			highs = append(highs, s)
		} else {
			lows = append(lows, s)
		}
	}
	zones := clusterLevels(highs, SwingHigh, tolerance)
	zones = append(zones, clusterLevels(lows, SwingLow, tolerance)...)
	return zones
}

func clusterLevels(swings []Swing, kind SwingKind, tolerance float64) []LiquidityZone {
	var zones []LiquidityZone
	used := make([]bool, len(swings))
	for i := range swings {
		if used[i] {
			continue
		}
		cluster := []int{swings[i].Index}
		sum := swings[i].Price
		count := 1
		used[i] = true
		for j := i + 1; j < len(swings); j++ {
			if used[j] {
				continue
			}
			if absDiff(swings[j].Price, swings[i].Price) <= tolerance {
				cluster = append(cluster, swings[j].Index)
				sum += swings[j].Price
				count++
				used[j] = true
			}
		}
		if count >= 2 {
			zones = append(zones, LiquidityZone{
				Price: sum / float64(count), Kind: kind, Touches: cluster,
			})
		}
	}
	return zones
}

func absDiff(a, b float64) float64 {
	d := a - b
	if d < 0 {
		return -d
	}
	return d
}

// LiquiditySweep is a wick-pierce-and-close-reclaim event against a
// liquidity zone (grounded on original_source/core/liquidity.py
// _detect_sweeps).
type LiquiditySweep struct {
	ZoneIndex int
	Index     int
	Timestamp time.Time
	Direction candle.Trend // BULLISH = swept sell-side lows then reclaimed up
}

// Sweeps scans a frame against a set of liquidity zones for wick-pierce
// + close-reclaim events.
func Sweeps(f candle.Frame, zones []LiquidityZone) []LiquiditySweep {
	var out []LiquiditySweep
	for zi, z := range zones {
		for i, c := range f {
			switch z.Kind {
			case SwingHigh:
				if c.High > z.Price && c.Close < z.Price {
					out = append(out, LiquiditySweep{
						ZoneIndex: zi, Index: i, Timestamp: c.Timestamp, Direction: candle.Bearish,
					})
				}
			case SwingLow:
				if c.Low < z.Price && c.Close > z.Price {
					out = append(out, LiquiditySweep{
						ZoneIndex: zi, Index: i, Timestamp: c.Timestamp, Direction: candle.Bullish,
					})
				}
			}
		}
	}
	return out
}
