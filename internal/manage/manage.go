// Package manage implements the Position Manager (spec §4.I):
// break-even, partial close, fixed/structure trailing stops, and
// emergency news exit. Grounded on predator_engine.go's
// monitorPositions (Green Guard ROE break-even, $15 hard break-even,
// timeout force-exit) generalized from fixed dollar/ROE thresholds to
// the spec's R-multiple thresholds, and on execution_service.go's
// MonitorPosition ticket-reconciliation loop shape.
package manage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sentinel-smc/sentinel/internal/broker"
	"github.com/sentinel-smc/sentinel/internal/candle"
)

// TrailingMode selects how the stop is advanced once in trailing phase.
type TrailingMode string

const (
	TrailingNone      TrailingMode = "NONE"
	TrailingFixed     TrailingMode = "FIXED"
	TrailingStructure TrailingMode = "STRUCTURE"
)

// Rules bundles the position-management thresholds of §4.I.
type Rules struct {
	BreakEvenTriggerR   float64 // e.g. 1.0 -> move to BE once profit reaches 1R
	BreakEvenLockPips    float64 // pips of profit locked in beyond entry
	PartialCloseTriggerR float64 // e.g. 1.5 -> take partial profit at 1.5R
	PartialClosePercent float64 // fraction of the position closed, e.g. 0.5
	Trailing            TrailingMode
	TrailingDistancePips float64
}

// DefaultRules returns the spec's documented defaults.
func DefaultRules() Rules {
	return Rules{
		BreakEvenTriggerR:    1.0,
		BreakEvenLockPips:    2.0,
		PartialCloseTriggerR: 1.5,
		PartialClosePercent:  0.5,
		Trailing:             TrailingStructure,
		TrailingDistancePips: 15.0,
	}
}

// Position tracks one open trade's lifecycle state across calls to
// Manager.Manage; the caller persists it (in-memory is sufficient since
// the supervisor owns one goroutine per symbol).
type Position struct {
	Symbol         string
	Direction      candle.Direction
	Entry          decimal.Decimal
	InitialStop    decimal.Decimal
	CurrentStop    decimal.Decimal
	TakeProfit     decimal.Decimal
	Quantity       decimal.Decimal
	RemainingQty   decimal.Decimal
	BreakEvenSet   bool
	PartialTaken   bool
}

// RiskDistance returns the original entry-to-stop distance in price
// units, the position's "1R".
func (p Position) RiskDistance() decimal.Decimal {
	return p.Entry.Sub(p.InitialStop).Abs()
}

// Event records one management action taken during a Manage call, for
// the caller to forward to the journal/notifier.
type Event struct {
	Kind    string // "BREAK_EVEN" | "PARTIAL_CLOSE" | "TRAIL" | "NEWS_EXIT"
	Symbol  string
	Detail  string
}

// Manager applies the management rules against live price/structure
// data for one position at a time.
type Manager struct {
	Port  broker.Port
	Rules Rules
	Log   zerolog.Logger
}

// New constructs a Manager.
func New(port broker.Port, rules Rules, log zerolog.Logger) *Manager {
	return &Manager{Port: port, Rules: rules, Log: log}
}

// Manage evaluates news exit first (closing and returning at once when it
// fires), then break-even, partial close, and trailing in that order
// against pos's current state, mutating pos in place and
// issuing broker calls as each threshold fires. structureStop is the
// nearest opposing swing/order-block extreme for structure trailing,
// valid only when Rules.Trailing == TrailingStructure. newsExitNow
// forces an unconditional close regardless of P&L (spec §4.I
// "emergency news exit").
func (m *Manager) Manage(ctx context.Context, pos *Position, tick candle.Tick, structureStop decimal.Decimal, newsExitNow bool) ([]Event, error) {
	var events []Event

	if newsExitNow {
		if _, err := m.Port.ClosePosition(ctx, pos.Symbol, decimal.Zero); err != nil {
			return events, fmt.Errorf("manage: news exit close %s: %w", pos.Symbol, err)
		}
		pos.RemainingQty = decimal.Zero
		events = append(events, Event{Kind: "NEWS_EXIT", Symbol: pos.Symbol, Detail: "emergency news exit"})
		return events, nil
	}

	current := decimal.NewFromFloat(tick.Bid)
	if pos.Direction == candle.Buy {
		current = decimal.NewFromFloat(tick.Ask)
	}
	profit := current.Sub(pos.Entry)
	if pos.Direction == candle.Sell {
		profit = pos.Entry.Sub(current)
	}

	risk := pos.RiskDistance()
	if risk.IsZero() {
		return events, nil
	}
	rMultiple, _ := profit.Div(risk).Float64()

	if !pos.BreakEvenSet && rMultiple >= m.Rules.BreakEvenTriggerR {
		lockPips := decimal.NewFromFloat(m.Rules.BreakEvenLockPips)
		newStop := pos.Entry
		if pos.Direction == candle.Buy {
			newStop = pos.Entry.Add(lockPips.Mul(decimal.NewFromFloat(tick.Point)))
		} else {
			newStop = pos.Entry.Sub(lockPips.Mul(decimal.NewFromFloat(tick.Point)))
		}
		if err := m.Port.ModifyStopLoss(ctx, pos.Symbol, newStop); err != nil {
			return events, fmt.Errorf("manage: break-even %s: %w", pos.Symbol, err)
		}
		pos.CurrentStop = newStop
		pos.BreakEvenSet = true
		events = append(events, Event{Kind: "BREAK_EVEN", Symbol: pos.Symbol, Detail: newStop.String()})
	}

	if !pos.PartialTaken && rMultiple >= m.Rules.PartialCloseTriggerR && m.Rules.PartialClosePercent > 0 {
		closeQty := pos.RemainingQty.Mul(decimal.NewFromFloat(m.Rules.PartialClosePercent))
		if closeQty.GreaterThan(decimal.Zero) {
			if _, err := m.Port.ClosePosition(ctx, pos.Symbol, closeQty); err != nil {
				return events, fmt.Errorf("manage: partial close %s: %w", pos.Symbol, err)
			}
			pos.RemainingQty = pos.RemainingQty.Sub(closeQty)
			pos.PartialTaken = true
			events = append(events, Event{Kind: "PARTIAL_CLOSE", Symbol: pos.Symbol, Detail: closeQty.String()})
		}
	}

	if pos.BreakEvenSet && m.Rules.Trailing != TrailingNone {
		newStop, advance := m.nextTrailingStop(pos, current, structureStop, tick.Point)
		if advance {
			if err := m.Port.ModifyStopLoss(ctx, pos.Symbol, newStop); err != nil {
				return events, fmt.Errorf("manage: trail stop %s: %w", pos.Symbol, err)
			}
			pos.CurrentStop = newStop
			events = append(events, Event{Kind: "TRAIL", Symbol: pos.Symbol, Detail: newStop.String()})
		}
	}

	return events, nil
}

func (m *Manager) nextTrailingStop(pos *Position, current, structureStop decimal.Decimal, pointSize float64) (decimal.Decimal, bool) {
	switch m.Rules.Trailing {
	case TrailingFixed:
		dist := decimal.NewFromFloat(m.Rules.TrailingDistancePips * pointSize)
		var candidate decimal.Decimal
		if pos.Direction == candle.Buy {
			candidate = current.Sub(dist)
			return candidate, candidate.GreaterThan(pos.CurrentStop)
		}
		candidate = current.Add(dist)
		return candidate, candidate.LessThan(pos.CurrentStop)
	case TrailingStructure:
		if structureStop.IsZero() {
			return pos.CurrentStop, false
		}
		if pos.Direction == candle.Buy {
			return structureStop, structureStop.GreaterThan(pos.CurrentStop)
		}
		return structureStop, structureStop.LessThan(pos.CurrentStop)
	default:
		return pos.CurrentStop, false
	}
}

