// Package execute implements the Order Executor (spec §4.H): requote
// and slippage checks, SL/TP sanity validation, and the FOK -> IOC ->
// RETURN fill-mode fallback with transient-error backoff. Grounded on
// execution_service.go's ExecuteTrade (GTX retry loop + Flash-Retry
// market fallback) and checkCriticalError's retcode classification,
// generalized from one hard-coded retry count to a configurable
// github.com/jpillora/backoff schedule and an explicit broker.ErrorKind
// decision instead of string matching inline.
package execute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sentinel-smc/sentinel/internal/broker"
	"github.com/sentinel-smc/sentinel/internal/candle"
)

// ErrSLTPInvalid is returned when the requested stop-loss/take-profit
// sit on the wrong side of the entry for the order's direction.
var ErrSLTPInvalid = errors.New("execute: stop-loss/take-profit on wrong side of entry")

// ErrSlippageExceeded is returned when the current market has moved
// beyond the configured tolerance from the signal's intended entry.
var ErrSlippageExceeded = errors.New("execute: slippage tolerance exceeded")

// ErrAllModesRejected is returned when every fill mode in the fallback
// chain was rejected by the broker.
var ErrAllModesRejected = errors.New("execute: order rejected in every fill mode")

// Params configures one Executor.
type Params struct {
	// FillChain is the time-in-force fallback sequence, tried in order
	// until one fills or the chain is exhausted. Defaults to
	// FOK -> IOC -> RETURN.
	FillChain []broker.FillMode

	// MaxRetriesPerMode bounds the backoff retry count applied to a
	// transient rejection before stepping to the next fill mode.
	MaxRetriesPerMode int

	// MaxSlippagePips is the allowed adverse move between the scored
	// signal's entry and the live tick at submission time.
	MaxSlippagePips float64

	// RequoteAtBestPrice, when true, replaces the order's limit price with
	// the best bid/ask of the tick fetched once at the start of Execute,
	// for every fill mode except RETURN, rather than reusing the original
	// signal price. No fresh quote is fetched between attempts.
	RequoteAtBestPrice bool
}

// DefaultParams returns the spec's documented fallback chain.
func DefaultParams() Params {
	return Params{
		FillChain:          []broker.FillMode{broker.FillFOK, broker.FillIOC, broker.FillReturn},
		MaxRetriesPerMode:  3,
		MaxSlippagePips:    3.0,
		RequoteAtBestPrice: true,
	}
}

// Executor submits orders through a broker.Port, applying the fill-mode
// fallback chain and retrying transient rejections with backoff.
type Executor struct {
	Port   broker.Port
	Params Params
	Log    zerolog.Logger
}

// New constructs an Executor with the given port and params.
func New(port broker.Port, params Params, log zerolog.Logger) *Executor {
	return &Executor{Port: port, Params: params, Log: log}
}

// Execute validates req against in, then walks the fill-mode fallback
// chain, retrying each mode's transient rejections with backoff before
// stepping down. It returns the first successful OrderResult. An error
// the port classifies as final is returned at once; if every mode fails
// otherwise, the error wraps ErrAllModesRejected and carries the last
// error's text.
func (e *Executor) Execute(ctx context.Context, req broker.OrderRequest, in candle.Instrument, intendedEntry decimal.Decimal) (broker.OrderResult, error) {
	if err := validateSLTP(req); err != nil {
		return broker.OrderResult{}, err
	}

	tick, err := e.Port.GetTick(ctx, req.Symbol)
	if err != nil {
		return broker.OrderResult{}, fmt.Errorf("execute: fetch tick: %w", err)
	}
	if err := checkSlippage(req, tick, in, e.Params.MaxSlippagePips, intendedEntry); err != nil {
		return broker.OrderResult{}, err
	}

	chain := e.Params.FillChain
	if len(chain) == 0 {
		chain = DefaultParams().FillChain
	}

	var lastErr error
	for _, mode := range chain {
		attemptReq := req
		attemptReq.Mode = mode
		if mode != broker.FillReturn && e.Params.RequoteAtBestPrice {
			attemptReq.LimitPrice = bestPrice(req.Side, tick)
		}

		result, err := e.attemptWithBackoff(ctx, attemptReq)
		if err == nil {
			return result, nil
		}
		lastErr = err

		kind := broker.ErrorUnknown
		if classifier, ok := e.Port.(broker.Classifier); ok {
			kind = classifier.ClassifyError(err)
		}
		if kind == broker.ErrorFinal {
			return broker.OrderResult{}, fmt.Errorf("execute: final broker error: %w", err)
		}
		e.Log.Warn().Str("symbol", req.Symbol).Str("mode", string(mode)).Err(err).Msg("fill mode rejected, stepping down")
	}

	return broker.OrderResult{}, fmt.Errorf("%w: %v", ErrAllModesRejected, lastErr)
}

// attemptWithBackoff retries one fill mode on a transient rejection up
// to Params.MaxRetriesPerMode times.
func (e *Executor) attemptWithBackoff(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	b := &backoff.Backoff{Min: 500 * time.Millisecond, Max: 2 * time.Second, Factor: 2, Jitter: true}

	var result broker.OrderResult
	var err error
	for attempt := 0; attempt <= e.Params.MaxRetriesPerMode; attempt++ {
		result, err = e.Port.PlaceOrder(ctx, req)
		if err == nil && result.Status != broker.StatusRejected {
			return result, nil
		}
		if err == nil {
			err = fmt.Errorf("execute: order rejected, status=%s", result.Status)
		}

		kind := broker.ErrorUnknown
		if classifier, ok := e.Port.(broker.Classifier); ok {
			kind = classifier.ClassifyError(err)
		}
		if kind != broker.ErrorTransient || attempt == e.Params.MaxRetriesPerMode {
			return broker.OrderResult{}, err
		}

		select {
		case <-ctx.Done():
			return broker.OrderResult{}, ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
	return broker.OrderResult{}, err
}

func validateSLTP(req broker.OrderRequest) error {
	if req.StopLoss.IsZero() || req.LimitPrice.IsZero() && req.Mode != broker.FillReturn {
		return nil // market orders and missing-SL callers validate upstream
	}
	entry := req.LimitPrice
	if req.Side == broker.SideBuy {
		if req.StopLoss.GreaterThanOrEqual(entry) {
			return ErrSLTPInvalid
		}
		if !req.TakeProfit.IsZero() && req.TakeProfit.LessThanOrEqual(entry) {
			return ErrSLTPInvalid
		}
	} else {
		if req.StopLoss.LessThanOrEqual(entry) {
			return ErrSLTPInvalid
		}
		if !req.TakeProfit.IsZero() && req.TakeProfit.GreaterThanOrEqual(entry) {
			return ErrSLTPInvalid
		}
	}
	return nil
}

// checkSlippage compares the live quote against the price the signal
// was scored at: the limit price for resting orders, the signal's
// intended entry for market orders.
func checkSlippage(req broker.OrderRequest, tick candle.Tick, in candle.Instrument, maxPips float64, intendedEntry decimal.Decimal) error {
	if maxPips <= 0 || in.PipSize == 0 {
		return nil
	}
	live := tick.Ask
	if req.Side == broker.SideSell {
		live = tick.Bid
	}
	intended, _ := req.LimitPrice.Float64()
	if intended == 0 {
		intended, _ = intendedEntry.Float64()
	}
	if intended == 0 {
		return nil
	}
	moved := live - intended
	if req.Side == broker.SideSell {
		moved = intended - live
	}
	if moved/in.PipSize > maxPips {
		return ErrSlippageExceeded
	}
	return nil
}

func bestPrice(side broker.OrderSide, tick candle.Tick) decimal.Decimal {
	if side == broker.SideBuy {
		return decimal.NewFromFloat(tick.Bid)
	}
	return decimal.NewFromFloat(tick.Ask)
}
