package execute

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-smc/sentinel/internal/broker"
	"github.com/sentinel-smc/sentinel/internal/candle"
)

type fakePort struct {
	tick        candle.Tick
	placeCalls  []broker.OrderRequest
	respond     func(call int, req broker.OrderRequest) (broker.OrderResult, error)
	classify    func(err error) broker.ErrorKind
}

func (f *fakePort) GetInstrument(ctx context.Context, symbol string) (candle.Instrument, error) {
	return candle.Instrument{Symbol: symbol, PipSize: 0.0001}, nil
}
func (f *fakePort) GetCandles(ctx context.Context, symbol string, tf candle.Timeframe, count int) (candle.Frame, error) {
	return nil, nil
}
func (f *fakePort) GetTick(ctx context.Context, symbol string) (candle.Tick, error) { return f.tick, nil }
func (f *fakePort) GetAccountBalance(ctx context.Context) (decimal.Decimal, error)  { return decimal.Zero, nil }
func (f *fakePort) GetOpenPositions(ctx context.Context) ([]broker.Position, error) { return nil, nil }
func (f *fakePort) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	call := len(f.placeCalls)
	f.placeCalls = append(f.placeCalls, req)
	return f.respond(call, req)
}
func (f *fakePort) ModifyStopLoss(ctx context.Context, symbol string, newStop decimal.Decimal) error {
	return nil
}
func (f *fakePort) ModifyTakeProfit(ctx context.Context, symbol string, newTarget decimal.Decimal) error {
	return nil
}
func (f *fakePort) ClosePosition(ctx context.Context, symbol string, volume decimal.Decimal) (broker.OrderResult, error) {
	return broker.OrderResult{}, nil
}
func (f *fakePort) GetLastExit(ctx context.Context, symbol string) (decimal.Decimal, decimal.Decimal, error) {
	return decimal.Zero, decimal.Zero, nil
}
func (f *fakePort) ClassifyError(err error) broker.ErrorKind { return f.classify(err) }

func baseRequest() broker.OrderRequest {
	return broker.OrderRequest{
		Symbol:     "EURUSD",
		Side:       broker.SideBuy,
		Quantity:   decimal.NewFromFloat(0.1),
		LimitPrice: decimal.NewFromFloat(1.1000),
		StopLoss:   decimal.NewFromFloat(1.0960),
		TakeProfit: decimal.NewFromFloat(1.1080),
	}
}

func TestExecute_FillsOnFirstMode(t *testing.T) {
	port := &fakePort{
		tick: candle.Tick{Bid: 1.0999, Ask: 1.1001},
		respond: func(call int, req broker.OrderRequest) (broker.OrderResult, error) {
			return broker.OrderResult{Status: broker.StatusFilled, FilledPrice: req.LimitPrice}, nil
		},
	}
	ex := New(port, DefaultParams(), zerolog.Nop())
	res, err := ex.Execute(context.Background(), baseRequest(), candle.Instrument{PipSize: 0.0001}, decimal.NewFromFloat(1.1000))
	require.NoError(t, err)
	assert.Equal(t, broker.StatusFilled, res.Status)
	assert.Len(t, port.placeCalls, 1)
	assert.Equal(t, broker.FillFOK, port.placeCalls[0].Mode)
}

func TestExecute_StepsDownFillChainOnTransientRejection(t *testing.T) {
	port := &fakePort{
		tick: candle.Tick{Bid: 1.0999, Ask: 1.1001},
		classify: func(err error) broker.ErrorKind { return broker.ErrorTransient },
		respond: func(call int, req broker.OrderRequest) (broker.OrderResult, error) {
			if req.Mode == broker.FillReturn {
				return broker.OrderResult{Status: broker.StatusFilled}, nil
			}
			return broker.OrderResult{Status: broker.StatusRejected}, errors.New("-5022 GTX reject")
		},
	}
	params := DefaultParams()
	params.MaxRetriesPerMode = 0
	ex := New(port, params, zerolog.Nop())
	res, err := ex.Execute(context.Background(), baseRequest(), candle.Instrument{PipSize: 0.0001}, decimal.NewFromFloat(1.1000))
	require.NoError(t, err)
	assert.Equal(t, broker.StatusFilled, res.Status)
	// FOK rejected, IOC rejected, RETURN filled.
	assert.Len(t, port.placeCalls, 3)
	assert.Equal(t, broker.FillReturn, port.placeCalls[2].Mode)
}

func TestExecute_FinalErrorAbortsImmediately(t *testing.T) {
	port := &fakePort{
		tick:     candle.Tick{Bid: 1.0999, Ask: 1.1001},
		classify: func(err error) broker.ErrorKind { return broker.ErrorFinal },
		respond: func(call int, req broker.OrderRequest) (broker.OrderResult, error) {
			return broker.OrderResult{Status: broker.StatusRejected}, errors.New("-2014 invalid api key")
		},
	}
	ex := New(port, DefaultParams(), zerolog.Nop())
	_, err := ex.Execute(context.Background(), baseRequest(), candle.Instrument{PipSize: 0.0001}, decimal.NewFromFloat(1.1000))
	require.Error(t, err)
	assert.Len(t, port.placeCalls, 1)
}

func TestExecute_RejectsInvertedStopLoss(t *testing.T) {
	port := &fakePort{tick: candle.Tick{Bid: 1.0999, Ask: 1.1001}}
	req := baseRequest()
	req.StopLoss = decimal.NewFromFloat(1.1050) // above entry on a buy: invalid
	ex := New(port, DefaultParams(), zerolog.Nop())
	_, err := ex.Execute(context.Background(), req, candle.Instrument{PipSize: 0.0001}, decimal.NewFromFloat(1.1000))
	require.ErrorIs(t, err, ErrSLTPInvalid)
	assert.Empty(t, port.placeCalls)
}

func TestExecute_RejectsExcessiveSlippage(t *testing.T) {
	port := &fakePort{tick: candle.Tick{Bid: 1.1100, Ask: 1.1102}} // market ran 100 pips away
	ex := New(port, DefaultParams(), zerolog.Nop())
	_, err := ex.Execute(context.Background(), baseRequest(), candle.Instrument{PipSize: 0.0001}, decimal.NewFromFloat(1.1000))
	require.ErrorIs(t, err, ErrSlippageExceeded)
	assert.Empty(t, port.placeCalls)
}
