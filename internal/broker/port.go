// Package broker defines the Broker Port (spec §4.A, §6): the narrow
// interface the supervisor and executor consume, kept free of any
// concrete exchange SDK so the core engine never imports go-binance
// directly. Grounded on predator_engine.go/execution_service.go's
// direct *futures.Client usage, pulled up behind an interface the way a
// production engine separates domain logic from its transport.
package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sentinel-smc/sentinel/internal/candle"
)

// OrderSide mirrors candle.Direction but excludes Neutral; orders are
// never neutral.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// FillMode is the order time-in-force the Executor steps down through
// on rejection (spec §4.H: FOK -> IOC -> RETURN/GTC market fallback).
type FillMode string

const (
	FillFOK    FillMode = "FOK"
	FillIOC    FillMode = "IOC"
	FillReturn FillMode = "RETURN"
)

// OrderRequest is broker-agnostic; adapters translate it into their
// SDK's native order call.
type OrderRequest struct {
	Symbol     string
	Side       OrderSide
	Mode       FillMode
	Quantity   decimal.Decimal
	LimitPrice decimal.Decimal // zero for a market order
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
	ClientTag  string // idempotency key, echoed back in fills/logs
}

// OrderResult reports what the broker actually did with the request.
type OrderResult struct {
	BrokerOrderID string
	FilledPrice   decimal.Decimal
	FilledQty     decimal.Decimal
	Status        OrderStatus
	RawError      error
}

// OrderStatus is the normalized outcome of a submitted order.
type OrderStatus string

const (
	StatusFilled         OrderStatus = "FILLED"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusRejected       OrderStatus = "REJECTED"
	StatusPending        OrderStatus = "PENDING"
)

// Position is the broker's view of one open position.
type Position struct {
	Symbol     string
	Direction  candle.Direction
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
	OpenedAt   time.Time
	UnrealizedPnL decimal.Decimal
}

// Port is the full surface the engine needs from a broker connection:
// market data, account state, and order/position management. A
// concrete adapter (e.g. internal/broker/binancefutures) implements
// this against one exchange's SDK.
type Port interface {
	// GetInstrument returns the tradable-instrument metadata (pip size,
	// volume step, contract size) for symbol.
	GetInstrument(ctx context.Context, symbol string) (candle.Instrument, error)

	// GetCandles returns the most recent `count` closed candles for
	// symbol at the given timeframe, oldest first.
	GetCandles(ctx context.Context, symbol string, tf candle.Timeframe, count int) (candle.Frame, error)

	// GetTick returns the current bid/ask for symbol.
	GetTick(ctx context.Context, symbol string) (candle.Tick, error)

	// GetAccountBalance returns the account's balance in its quote
	// currency.
	GetAccountBalance(ctx context.Context) (decimal.Decimal, error)

	// GetOpenPositions returns every currently open position across all
	// symbols the account holds.
	GetOpenPositions(ctx context.Context) ([]Position, error)

	// PlaceOrder submits a new order and returns its fill outcome.
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)

	// ModifyStopLoss replaces the protective stop on an open position.
	ModifyStopLoss(ctx context.Context, symbol string, newStop decimal.Decimal) error

	// ModifyTakeProfit replaces the target on an open position.
	ModifyTakeProfit(ctx context.Context, symbol string, newTarget decimal.Decimal) error

	// ClosePosition closes volume lots of symbol's open position (the
	// full position if volume is zero).
	ClosePosition(ctx context.Context, symbol string, volume decimal.Decimal) (OrderResult, error)

	// GetLastExit returns the most recent realized exit fill for
	// symbol: its price and realized P&L net of fees. Used to settle a
	// closed ticket's true outcome instead of estimating from the
	// current quote.
	GetLastExit(ctx context.Context, symbol string) (price decimal.Decimal, pnl decimal.Decimal, err error)
}

// ErrorKind classifies a broker error for the Executor's retry policy
// (spec §7): Transient errors are retried with backoff, Final errors
// abort the attempt and escalate, grounded on
// execution_service.go's checkCriticalError retcode matching.
type ErrorKind int

const (
	ErrorUnknown ErrorKind = iota
	ErrorTransient
	ErrorFinal
)

// ClassifyError maps a broker SDK error to its ErrorKind using the
// exchange-specific retcode matching a Port adapter's ClassifyError
// implements; Port implementations should satisfy Classifier so the
// Executor can make retry decisions without importing the SDK.
type Classifier interface {
	ClassifyError(err error) ErrorKind
}
