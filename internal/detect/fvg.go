package detect

import (
	"time"

	"github.com/sentinel-smc/sentinel/internal/candle"
)

// FVGStatus tracks whether a fair value gap has been filled or inverted.
type FVGStatus string

const (
	FVGOpen      FVGStatus = "OPEN"
	FVGFilled    FVGStatus = "FILLED"
	FVGInverted  FVGStatus = "INVERTED"
)

// FairValueGap is a three-candle imbalance: candle 1's wick does not
// overlap candle 3's wick on the side the middle candle displaced
// through.
type FairValueGap struct {
	Index     int // index of the middle (displacement) candle
	Timestamp time.Time
	Top, Bottom float64
	Direction candle.Trend // BULLISH gap = price gapped up, BEARISH = gapped down
	Status    FVGStatus
	FilledAt  int
}

// FairValueGaps scans three-candle windows for imbalances at least
// minGap wide (price units; a gap of exactly minGap qualifies) and
// forward-scans each for fill/inversion.
func FairValueGaps(f candle.Frame, minGap float64) []FairValueGap {
	var gaps []FairValueGap
	for i := 1; i+1 < len(f); i++ {
		left, right := f[i-1], f[i+1]
		if right.Low > left.High && right.Low-left.High >= minGap {
			gaps = append(gaps, FairValueGap{
				Index: i, Timestamp: f[i].Timestamp,
				Top: right.Low, Bottom: left.High,
				Direction: candle.Bullish, Status: FVGOpen,
			})
		}
		if right.High < left.Low && left.Low-right.High >= minGap {
			gaps = append(gaps, FairValueGap{
				Index: i, Timestamp: f[i].Timestamp,
				Top: left.Low, Bottom: right.High,
				Direction: candle.Bearish, Status: FVGOpen,
			})
		}
	}
	for i := range gaps {
		updateFVGStatus(&gaps[i], f)
	}
	return gaps
}

func updateFVGStatus(g *FairValueGap, f candle.Frame) {
	for i := g.Index + 1; i < len(f); i++ {
		c := f[i]
		switch g.Direction {
		case candle.Bullish:
			if c.Low <= g.Bottom {
				g.Status = FVGFilled
				g.FilledAt = i
				if c.Close < g.Bottom {
					g.Status = FVGInverted
				}
				return
			}
		case candle.Bearish:
			if c.High >= g.Top {
				g.Status = FVGFilled
				g.FilledAt = i
				if c.Close > g.Top {
					g.Status = FVGInverted
				}
				return
			}
		}
	}
}

// OpenFVGs filters to gaps that have not yet been touched.
func OpenFVGs(gaps []FairValueGap) []FairValueGap {
	var out []FairValueGap
	for _, g := range gaps {
		if g.Status == FVGOpen {
			out = append(out, g)
		}
	}
	return out
}

// InvertedFVGs filters to gaps whose inversion flipped them into a zone
// tradeable in the opposite direction (iFVG).
func InvertedFVGs(gaps []FairValueGap) []FairValueGap {
	var out []FairValueGap
	for _, g := range gaps {
		if g.Status == FVGInverted {
			out = append(out, g)
		}
	}
	return out
}
