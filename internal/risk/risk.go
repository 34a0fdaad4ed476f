// Package risk implements the Risk & Exposure Controller (spec §4.F):
// cooldowns, proximity/duplicate stacking, daily/consecutive-loss kill
// switches, session/weekend/lunch gates, manual blackout calendar, and
// the Correlation Guard. Grounded on predator_engine.go's
// GlobalExposureGuard (CanEnter/RegisterTrade/ReleaseTrade) generalized
// from a single notional cap to the full per-currency/correlation-group
// accounting of §4.F, and on closePosition's ConsecutiveLosses/
// SafetyModeUntil kill-switch timing.
package risk

import (
	"sync"
	"time"

	"github.com/sentinel-smc/sentinel/internal/candle"
)

// RejectReason names which gate blocked a candidate trade.
type RejectReason string

const (
	RejectNone               RejectReason = ""
	RejectDailyLossKill      RejectReason = "DAILY_LOSS_KILL_SWITCH"
	RejectConsecutiveLoss    RejectReason = "CONSECUTIVE_LOSS_KILL_SWITCH"
	RejectCooldown           RejectReason = "COOLDOWN"
	RejectStackingDistance   RejectReason = "STACKING_DISTANCE"
	RejectStackingTime       RejectReason = "STACKING_TIME"
	RejectDuplicate          RejectReason = "DUPLICATE_POSITION"
	RejectWeekendSession     RejectReason = "SESSION_WEEKEND_GATE"
	RejectNews               RejectReason = "NEWS_BLACKOUT"
	RejectLunchBreak         RejectReason = "LUNCH_BREAK"
	RejectManualBlackout     RejectReason = "MANUAL_BLACKOUT"
	RejectMaxTradesPerDay    RejectReason = "MAX_TRADES_PER_DAY"
	RejectMaxOpenTrades      RejectReason = "MAX_OPEN_TRADES"
	RejectCurrencyExposure   RejectReason = "CURRENCY_EXPOSURE"
	RejectGroupCap           RejectReason = "CORRELATION_GROUP_CAP"
	RejectGroupDirection     RejectReason = "CORRELATION_GROUP_DIRECTION"
	RejectDirectionalCongest RejectReason = "DIRECTIONAL_CONGESTION"
	RejectOppositeHedge      RejectReason = "NO_INTERNAL_HEDGING"
)

// OpenPosition is the minimal position shape the guard needs; it mirrors
// the broker-reported fields §4.F's predicates consult.
type OpenPosition struct {
	Symbol    string
	Direction candle.Direction
	Volume    float64
	Entry     float64
	OpenedAt  time.Time
}

// Config bundles the thresholds of §4.F that don't vary per-call.
type Config struct {
	CooldownSameSymbol     time.Duration
	MinStackingDistancePips float64
	MinStackingTime        time.Duration
	DuplicatePriceTolerancePips float64
	MaxDailyLossPercent    float64
	MaxConsecutiveLosses   int
	MaxTradesPerDay        int // 0 disables
	MaxOpenTrades          int // 0 disables
	LunchBreakEnabled      bool
	LunchStartHourUTC      int
	LunchEndHourUTC        int
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		CooldownSameSymbol:          60 * time.Second,
		MinStackingDistancePips:     15,
		MinStackingTime:             300 * time.Second,
		DuplicatePriceTolerancePips: 5,
		MaxDailyLossPercent:         2.0,
		MaxConsecutiveLosses:        3,
		MaxTradesPerDay:             10,
		MaxOpenTrades:               5,
		LunchStartHourUTC:           12,
		LunchEndHourUTC:             13,
	}
}

// BlackoutWindow is a hard-coded date+hour suspension for a set of
// symbols (spec §4.F "manual blackout calendar", e.g. a central-bank
// decision day).
type BlackoutWindow struct {
	Symbols       []string
	Date          time.Time // compared by UTC calendar date
	StartHourUTC  int
	EndHourUTC    int
	Reason        string
}

// Controller owns the per-symbol cooldown ledger and the daily/
// consecutive-loss kill-switch state. It holds no broker connection;
// callers supply the current open-positions snapshot to CanOpen and
// RecordClose's caller passes realised P&L.
type Controller struct {
	mu sync.Mutex

	cfg Config

	lastOrderTime     map[string]time.Time
	consecutiveLosses map[string]int
	symbolHaltedUntil map[string]time.Time

	dailyRealizedPnL float64
	dailyHaltActive  bool
	dailyTradeCount  int
	lastResetDate    time.Time

	blackouts []BlackoutWindow
}

// NewController creates a Controller with the given configuration and
// an empty ledger. persistedCooldowns seeds the ledger from
// last_trades.json (spec §6) so cooldowns survive a restart.
func NewController(cfg Config, persistedCooldowns map[string]time.Time, blackouts []BlackoutWindow) *Controller {
	c := &Controller{
		cfg:               cfg,
		lastOrderTime:     make(map[string]time.Time),
		consecutiveLosses: make(map[string]int),
		symbolHaltedUntil: make(map[string]time.Time),
		blackouts:         blackouts,
	}
	for sym, t := range persistedCooldowns {
		c.lastOrderTime[sym] = t
	}
	return c
}

// Snapshot returns a copy of the cooldown ledger suitable for atomic
// persistence to last_trades.json.
func (c *Controller) Snapshot() map[string]time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]time.Time, len(c.lastOrderTime))
	for k, v := range c.lastOrderTime {
		out[k] = v
	}
	return out
}

// RecordOrder marks the cooldown clock for symbol at `at` and counts
// the order against the daily trade budget.
func (c *Controller) RecordOrder(symbol string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollDayLocked(at)
	c.lastOrderTime[symbol] = at
	c.dailyTradeCount++
}

// RecordClose updates daily realised P&L and the consecutive-loss
// counter, arming the kill switches per §4.F and §12's "re-arms only at
// the next session/day boundary" rule.
func (c *Controller) RecordClose(symbol string, pnl float64, balance float64, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollDayLocked(at)

	c.dailyRealizedPnL += pnl
	if balance > 0 && c.dailyRealizedPnL/balance <= -c.cfg.MaxDailyLossPercent/100.0 {
		c.dailyHaltActive = true
	}

	if pnl < 0 {
		c.consecutiveLosses[symbol]++
		if c.consecutiveLosses[symbol] >= c.cfg.MaxConsecutiveLosses {
			c.symbolHaltedUntil[symbol] = endOfUTCDay(at)
		}
	} else {
		c.consecutiveLosses[symbol] = 0
	}
}

func (c *Controller) rollDayLocked(at time.Time) {
	if c.lastResetDate.IsZero() {
		c.lastResetDate = at
		return
	}
	if !sameUTCDate(c.lastResetDate, at) {
		c.dailyRealizedPnL = 0
		c.dailyHaltActive = false
		c.dailyTradeCount = 0
		c.lastResetDate = at
		for sym, until := range c.symbolHaltedUntil {
			if at.After(until) {
				delete(c.symbolHaltedUntil, sym)
			}
		}
	}
}

func sameUTCDate(a, b time.Time) bool {
	au, bu := a.UTC(), b.UTC()
	y1, m1, d1 := au.Date()
	y2, m2, d2 := bu.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

func endOfUTCDay(at time.Time) time.Time {
	u := at.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 23, 59, 59, 0, time.UTC)
}

// DailyHalted reports whether the daily-loss kill switch is currently
// active (spec §4.F, S5).
func (c *Controller) DailyHalted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dailyHaltActive
}

// SymbolHalted reports whether the consecutive-loss kill switch is
// currently active for symbol.
func (c *Controller) SymbolHalted(symbol string, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.symbolHaltedUntil[symbol]
	return ok && at.Before(until)
}

// CanOpen evaluates every gate of §4.F except the Correlation Guard
// (CorrelationGuard.CanOpenTrade, consulted separately) and returns the
// first reason that blocks the candidate, or RejectNone.
func (c *Controller) CanOpen(symbol string, dir candle.Direction, entry float64, pipSize float64, isCrypto bool, open []OpenPosition, at time.Time) RejectReason {
	c.mu.Lock()
	c.rollDayLocked(at)
	daily := c.dailyHaltActive
	tradesToday := c.dailyTradeCount
	haltUntil, symHalted := c.symbolHaltedUntil[symbol]
	lastOrder, hasOrder := c.lastOrderTime[symbol]
	c.mu.Unlock()

	if daily {
		return RejectDailyLossKill
	}
	if c.cfg.MaxTradesPerDay > 0 && tradesToday >= c.cfg.MaxTradesPerDay {
		return RejectMaxTradesPerDay
	}
	if c.cfg.MaxOpenTrades > 0 && len(open) >= c.cfg.MaxOpenTrades {
		return RejectMaxOpenTrades
	}
	if symHalted && at.Before(haltUntil) {
		return RejectConsecutiveLoss
	}
	if hasOrder && at.Sub(lastOrder) < c.cfg.CooldownSameSymbol {
		return RejectCooldown
	}
	if !isCrypto && !tradableSession(at) {
		return RejectWeekendSession
	}
	if c.cfg.LunchBreakEnabled && inLunchBreak(at, c.cfg.LunchStartHourUTC, c.cfg.LunchEndHourUTC) {
		return RejectLunchBreak
	}
	if c.inManualBlackout(symbol, at) {
		return RejectManualBlackout
	}

	tol := c.cfg.DuplicatePriceTolerancePips * pipSize
	stackDist := c.cfg.MinStackingDistancePips * pipSize
	for _, p := range open {
		if p.Symbol != symbol {
			continue
		}
		if p.Direction == dir && absDiff(p.Entry, entry) <= tol {
			return RejectDuplicate
		}
		if absDiff(p.Entry, entry) <= stackDist {
			return RejectStackingDistance
		}
		if at.Sub(p.OpenedAt) < c.cfg.MinStackingTime {
			return RejectStackingTime
		}
		if p.Direction != dir && p.Direction != candle.Neutral {
			return RejectOppositeHedge
		}
	}
	return RejectNone
}

func (c *Controller) inManualBlackout(symbol string, at time.Time) bool {
	for _, b := range c.blackouts {
		if !sameUTCDate(b.Date, at) {
			continue
		}
		h := at.UTC().Hour()
		if h < b.StartHourUTC || h >= b.EndHourUTC {
			continue
		}
		for _, s := range b.Symbols {
			if s == symbol {
				return true
			}
		}
	}
	return false
}

func absDiff(a, b float64) float64 {
	d := a - b
	if d < 0 {
		return -d
	}
	return d
}

// tradableSession reports whether `at` falls within the tradable window
// for non-crypto symbols: Sunday 21:00 UTC through Friday 21:00 UTC
// (spec §4.F "session / weekend gate").
func tradableSession(at time.Time) bool {
	d := at.UTC()
	switch d.Weekday() {
	case time.Saturday:
		return false
	case time.Sunday:
		return d.Hour() >= 21 // markets reopen Sunday evening UTC
	case time.Friday:
		return d.Hour() < 21
	default:
		return true
	}
}

func inLunchBreak(at time.Time, startH, endH int) bool {
	h := at.UTC().Hour()
	return h >= startH && h < endH
}
