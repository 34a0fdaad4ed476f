package detect

import "github.com/sentinel-smc/sentinel/internal/candle"

// SMTDivergence fires when a symbol makes a new swing extreme that its
// correlated pair fails to confirm (grounded on
// original_source/core/smt_detector.py pairing logic; spec GLOSSARY).
type SMTDivergence struct {
	Direction candle.Trend // BULLISH = bullish divergence (lower low not confirmed)
	LeaderIndex, PairIndex int
}

// DetectSMT compares the last two same-kind swings of the primary symbol
// against the correlated pair's swings over the same kind and reports a
// divergence when the primary makes a fresh extreme the pair does not.
func DetectSMT(primary, pair []Swing, kind SwingKind) (SMTDivergence, bool) {
	p := swingsOfKind(primary, kind)
	q := swingsOfKind(pair, kind)
	if len(p) < 2 || len(q) < 2 {
		return SMTDivergence{}, false
	}
	lastP, prevP := p[len(p)-1], p[len(p)-2]
	lastQ, prevQ := q[len(q)-1], q[len(q)-2]

	if kind == SwingLow {
		primaryLower := lastP.Price < prevP.Price
		pairHigher := lastQ.Price >= prevQ.Price
		if primaryLower && pairHigher {
			return SMTDivergence{Direction: candle.Bullish, LeaderIndex: lastP.Index, PairIndex: lastQ.Index}, true
		}
	} else {
		primaryHigher := lastP.Price > prevP.Price
		pairLower := lastQ.Price <= prevQ.Price
		if primaryHigher && pairLower {
			return SMTDivergence{Direction: candle.Bearish, LeaderIndex: lastP.Index, PairIndex: lastQ.Index}, true
		}
	}
	return SMTDivergence{}, false
}

func swingsOfKind(swings []Swing, kind SwingKind) []Swing {
	var out []Swing
	for _, s := range swings {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}
