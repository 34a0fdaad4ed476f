package manage

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-smc/sentinel/internal/broker"
	"github.com/sentinel-smc/sentinel/internal/candle"
)

type fakePort struct {
	stopCalls  []decimal.Decimal
	closeCalls []decimal.Decimal
}

func (f *fakePort) GetInstrument(ctx context.Context, symbol string) (candle.Instrument, error) {
	return candle.Instrument{}, nil
}
func (f *fakePort) GetCandles(ctx context.Context, symbol string, tf candle.Timeframe, count int) (candle.Frame, error) {
	return nil, nil
}
func (f *fakePort) GetTick(ctx context.Context, symbol string) (candle.Tick, error) {
	return candle.Tick{}, nil
}
func (f *fakePort) GetAccountBalance(ctx context.Context) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (f *fakePort) GetOpenPositions(ctx context.Context) ([]broker.Position, error) { return nil, nil }
func (f *fakePort) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	return broker.OrderResult{}, nil
}
func (f *fakePort) ModifyStopLoss(ctx context.Context, symbol string, newStop decimal.Decimal) error {
	f.stopCalls = append(f.stopCalls, newStop)
	return nil
}
func (f *fakePort) ModifyTakeProfit(ctx context.Context, symbol string, newTarget decimal.Decimal) error {
	return nil
}
func (f *fakePort) ClosePosition(ctx context.Context, symbol string, volume decimal.Decimal) (broker.OrderResult, error) {
	f.closeCalls = append(f.closeCalls, volume)
	return broker.OrderResult{Status: broker.StatusFilled}, nil
}
func (f *fakePort) GetLastExit(ctx context.Context, symbol string) (decimal.Decimal, decimal.Decimal, error) {
	return decimal.Zero, decimal.Zero, nil
}

func buyPosition() *Position {
	return &Position{
		Symbol:       "EURUSD",
		Direction:    candle.Buy,
		Entry:        decimal.NewFromFloat(1.1000),
		InitialStop:  decimal.NewFromFloat(1.0960),
		CurrentStop:  decimal.NewFromFloat(1.0960),
		Quantity:     decimal.NewFromFloat(1.0),
		RemainingQty: decimal.NewFromFloat(1.0),
	}
}

func TestManage_BreakEvenTriggersAtOneR(t *testing.T) {
	port := &fakePort{}
	m := New(port, DefaultRules(), zerolog.Nop())
	pos := buyPosition()
	tick := candle.Tick{Bid: 1.1039, Ask: 1.1040, Point: 0.0001} // 1R = 40 pips profit

	events, err := m.Manage(context.Background(), pos, tick, decimal.Zero, false)
	require.NoError(t, err)
	require.True(t, pos.BreakEvenSet)
	require.Len(t, port.stopCalls, 1)
	assert.True(t, port.stopCalls[0].GreaterThan(pos.Entry))
	assert.Equal(t, "BREAK_EVEN", events[0].Kind)
}

func TestManage_PartialCloseAtOnePointFiveR(t *testing.T) {
	port := &fakePort{}
	rules := DefaultRules()
	m := New(port, rules, zerolog.Nop())
	pos := buyPosition()
	tick := candle.Tick{Bid: 1.1059, Ask: 1.1060, Point: 0.0001} // 1.5R

	events, err := m.Manage(context.Background(), pos, tick, decimal.Zero, false)
	require.NoError(t, err)
	require.True(t, pos.PartialTaken)
	require.Len(t, port.closeCalls, 1)
	assert.True(t, port.closeCalls[0].Equal(decimal.NewFromFloat(0.5)))
	kinds := eventKinds(events)
	assert.Contains(t, kinds, "PARTIAL_CLOSE")
}

func TestManage_StructureTrailOnlyAfterBreakEven(t *testing.T) {
	port := &fakePort{}
	m := New(port, DefaultRules(), zerolog.Nop())
	pos := buyPosition()
	pos.BreakEvenSet = true
	pos.CurrentStop = decimal.NewFromFloat(1.1002)
	tick := candle.Tick{Bid: 1.1059, Ask: 1.1060, Point: 0.0001}
	structureStop := decimal.NewFromFloat(1.1020)

	events, err := m.Manage(context.Background(), pos, tick, structureStop, false)
	require.NoError(t, err)
	require.Len(t, port.stopCalls, 1)
	assert.True(t, port.stopCalls[0].Equal(structureStop))
	assert.Contains(t, eventKinds(events), "TRAIL")
}

func TestManage_NewsExitForcesImmediateClose(t *testing.T) {
	port := &fakePort{}
	m := New(port, DefaultRules(), zerolog.Nop())
	pos := buyPosition()
	tick := candle.Tick{Bid: 1.0970, Ask: 1.0971, Point: 0.0001} // still at a loss

	events, err := m.Manage(context.Background(), pos, tick, decimal.Zero, true)
	require.NoError(t, err)
	require.Len(t, port.closeCalls, 1)
	assert.True(t, pos.RemainingQty.IsZero())
	assert.Equal(t, "NEWS_EXIT", events[0].Kind)
}

func TestManage_SecondPassIsIdempotent(t *testing.T) {
	port := &fakePort{}
	m := New(port, DefaultRules(), zerolog.Nop())
	pos := buyPosition()
	tick := candle.Tick{Bid: 1.1059, Ask: 1.1060, Point: 0.0001}

	_, err := m.Manage(context.Background(), pos, tick, decimal.Zero, false)
	require.NoError(t, err)
	stops, closes := len(port.stopCalls), len(port.closeCalls)

	// Same tick again: break-even and partial close must not re-fire.
	events, err := m.Manage(context.Background(), pos, tick, decimal.Zero, false)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Len(t, port.stopCalls, stops)
	assert.Len(t, port.closeCalls, closes)
}

func eventKinds(events []Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}
