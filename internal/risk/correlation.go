package risk

import (
	"strings"

	"github.com/sentinel-smc/sentinel/internal/candle"
)

// CorrelationGroup is a set of symbols whose prices move together, used
// to cap how much directional exposure a single macro theme can
// accumulate across otherwise-independent symbols (spec §4.F Correlation
// Guard). Grounded on original_source/utils/correlation_guard.py's
// CORRELATION_GROUPS table.
type CorrelationGroup struct {
	Name        string
	Symbols     []string
	Correlation string // "positive" or "mixed"
	MaxPositions int
}

// DefaultCorrelationGroups mirrors the static table the guard shipped
// with, translated from the broker's "m" suffix convention to bare
// symbols.
func DefaultCorrelationGroups() []CorrelationGroup {
	return []CorrelationGroup{
		{Name: "USD_MAJORS", Symbols: []string{"EURUSD", "GBPUSD", "AUDUSD", "NZDUSD"}, Correlation: "positive", MaxPositions: 2},
		{Name: "JPY_PAIRS", Symbols: []string{"USDJPY", "EURJPY", "GBPJPY", "AUDJPY"}, Correlation: "positive", MaxPositions: 2},
		{Name: "EUR_CROSSES", Symbols: []string{"EURUSD", "EURGBP", "EURJPY", "EURCHF"}, Correlation: "positive", MaxPositions: 2},
		{Name: "GBP_CROSSES", Symbols: []string{"GBPUSD", "GBPJPY", "EURGBP", "GBPAUD"}, Correlation: "mixed", MaxPositions: 2},
		{Name: "GOLD_RELATED", Symbols: []string{"XAUUSD", "XAGUSD"}, Correlation: "positive", MaxPositions: 2},
		{Name: "CRYPTO", Symbols: []string{"BTCUSDT", "ETHUSDT"}, Correlation: "positive", MaxPositions: 2},
	}
}

// CorrelationGuard tracks net per-currency exposure and per-group
// position counts across all open positions, gating new candidates
// against over-concentration and accidental internal hedging.
type CorrelationGuard struct {
	MaxExposurePerCurrency float64
	Groups                 []CorrelationGroup

	// DirectionalCongestionThreshold positions in the same direction on a
	// currency require confidence >= CongestionConfidenceFloor for the
	// next one to proceed.
	DirectionalCongestionThreshold int
	CongestionConfidenceFloor      float64
	GroupConflictConfidenceFloor   float64
}

// NewCorrelationGuard returns a guard configured with the spec's
// documented thresholds.
func NewCorrelationGuard(maxExposurePerCurrency float64) *CorrelationGuard {
	return &CorrelationGuard{
		MaxExposurePerCurrency:          maxExposurePerCurrency,
		Groups:                          DefaultCorrelationGroups(),
		DirectionalCongestionThreshold:  2,
		CongestionConfidenceFloor:       85.0,
		GroupConflictConfidenceFloor:    90.0,
	}
}

type currencyExposure struct {
	longLots, shortLots   float64
	longSymbols, shortSymbols []string
}

func (e currencyExposure) netLots() float64 { return e.longLots - e.shortLots }

// ExtractCurrencies splits a symbol into its base/quote legs, handling
// the metals and crypto special cases.
func ExtractCurrencies(symbol string) (base, quote string) {
	s := strings.ToUpper(symbol)
	switch {
	case strings.Contains(s, "XAU"):
		return "XAU", "USD"
	case strings.Contains(s, "XAG"):
		return "XAG", "USD"
	case strings.Contains(s, "BTC"):
		return "BTC", "USD"
	case strings.Contains(s, "ETH"):
		return "ETH", "USD"
	}
	if len(s) >= 6 {
		return s[:3], s[3:6]
	}
	return "UNKNOWN", "UNKNOWN"
}

func buildExposures(open []OpenPosition) map[string]*currencyExposure {
	exposures := make(map[string]*currencyExposure)
	get := func(c string) *currencyExposure {
		if e, ok := exposures[c]; ok {
			return e
		}
		e := &currencyExposure{}
		exposures[c] = e
		return e
	}
	for _, p := range open {
		base, quote := ExtractCurrencies(p.Symbol)
		isBuy := p.Direction == candle.Buy
		b := get(base)
		if isBuy {
			b.longLots += p.Volume
			b.longSymbols = append(b.longSymbols, p.Symbol)
		} else {
			b.shortLots += p.Volume
			b.shortSymbols = append(b.shortSymbols, p.Symbol)
		}
		q := get(quote)
		if isBuy {
			q.shortLots += p.Volume
			q.shortSymbols = append(q.shortSymbols, p.Symbol)
		} else {
			q.longLots += p.Volume
			q.longSymbols = append(q.longSymbols, p.Symbol)
		}
	}
	return exposures
}

// CanOpenTrade evaluates the Correlation Guard's four checks —
// directional congestion, per-currency net exposure, correlation-group
// caps/theme conflicts, and same-symbol hedge protection — returning
// the first RejectReason that fires, or RejectNone.
func (g *CorrelationGuard) CanOpenTrade(symbol string, dir candle.Direction, volume float64, confidence float64, open []OpenPosition) RejectReason {
	exposures := buildExposures(open)
	base, quote := ExtractCurrencies(symbol)
	isBuy := dir == candle.Buy

	for _, curr := range [2]string{base, quote} {
		e, ok := exposures[curr]
		if !ok {
			continue
		}
		newDirIsLong := isBuy
		if curr == quote {
			newDirIsLong = !isBuy
		}
		existing := len(e.shortSymbols)
		if newDirIsLong {
			existing = len(e.longSymbols)
		}
		if existing >= g.DirectionalCongestionThreshold && confidence < g.CongestionConfidenceFloor {
			return RejectDirectionalCongest
		}
	}

	baseDelta := volume
	if !isBuy {
		baseDelta = -volume
	}
	if e, ok := exposures[base]; ok {
		if absDiff(e.netLots()+baseDelta, 0) > g.MaxExposurePerCurrency {
			return RejectCurrencyExposure
		}
	} else if absDiff(baseDelta, 0) > g.MaxExposurePerCurrency {
		return RejectCurrencyExposure
	}
	quoteDelta := -baseDelta
	if e, ok := exposures[quote]; ok {
		if absDiff(e.netLots()+quoteDelta, 0) > g.MaxExposurePerCurrency {
			return RejectCurrencyExposure
		}
	} else if absDiff(quoteDelta, 0) > g.MaxExposurePerCurrency {
		return RejectCurrencyExposure
	}

	for _, group := range g.Groups {
		if !containsSymbol(group.Symbols, symbol) {
			continue
		}
		var groupPositions []OpenPosition
		for _, p := range open {
			if containsSymbol(group.Symbols, p.Symbol) {
				groupPositions = append(groupPositions, p)
			}
		}
		if len(groupPositions) >= group.MaxPositions {
			return RejectGroupCap
		}
		if group.Correlation == "positive" && len(groupPositions) > 0 {
			if groupPositions[0].Direction != dir && confidence < g.GroupConflictConfidenceFloor {
				return RejectGroupDirection
			}
		}
	}

	for _, p := range open {
		if p.Symbol == symbol && p.Direction != dir {
			return RejectOppositeHedge
		}
	}

	return RejectNone
}

func containsSymbol(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
