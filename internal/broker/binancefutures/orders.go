package binancefutures

import (
	"context"
	"fmt"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"github.com/sentinel-smc/sentinel/internal/broker"
	"github.com/sentinel-smc/sentinel/internal/candle"
)

// The installed go-binance/v2 futures package does not export
// OrderTypeStopMarket/OrderTypeTakeProfitMarket on futures.OrderType
// (only as futures.AlgoOrderType, for the separate algo-order
// endpoint); these carry the identical wire values for use with the
// classic CreateOrderService.
const (
	orderTypeStopMarket       = futures.OrderType("STOP_MARKET")
	orderTypeTakeProfitMarket = futures.OrderType("TAKE_PROFIT_MARKET")
)

// PlaceOrder submits req using the fill mode it carries: FOK/IOC map to
// a limit order at LimitPrice with the matching TimeInForce; RETURN
// places a market order, grounded on execution_service.go's maker/
// market fallback branches but simplified to a single explicit
// time-in-force per call — the fallback stepping (FOK -> IOC -> RETURN)
// lives in internal/execute, which calls PlaceOrder once per attempt.
func (c *Client) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	side := futures.SideTypeBuy
	if req.Side == broker.SideSell {
		side = futures.SideTypeSell
	}

	qtyStr := c.FormatQty(req.Symbol, toFloat(req.Quantity))

	svc := c.api.NewCreateOrderService().Symbol(req.Symbol).Side(side).Quantity(qtyStr)

	switch req.Mode {
	case broker.FillReturn:
		svc = svc.Type(futures.OrderTypeMarket)
	default:
		priceStr := c.FormatPrice(req.Symbol, toFloat(req.LimitPrice))
		tif := futures.TimeInForceTypeFOK
		if req.Mode == broker.FillIOC {
			tif = futures.TimeInForceTypeIOC
		}
		svc = svc.Type(futures.OrderTypeLimit).TimeInForce(tif).Price(priceStr)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return broker.OrderResult{Status: broker.StatusRejected, RawError: err}, err
	}

	filledPrice, _ := decimal.NewFromString(res.AvgPrice)
	filledQty, _ := decimal.NewFromString(res.ExecutedQuantity)

	status := broker.StatusPending
	switch res.Status {
	case futures.OrderStatusTypeFilled:
		status = broker.StatusFilled
	case futures.OrderStatusTypePartiallyFilled:
		status = broker.StatusPartiallyFilled
	case futures.OrderStatusTypeRejected, futures.OrderStatusTypeExpired, futures.OrderStatusTypeCanceled:
		status = broker.StatusRejected
	}

	// Binance futures carries no SL/TP on the entry order itself; they
	// are separate close-position conditional orders placed once the
	// entry fills.
	if status == broker.StatusFilled || status == broker.StatusPartiallyFilled {
		if !req.StopLoss.IsZero() {
			if err := c.placeProtective(ctx, req.Symbol, req.Side, orderTypeStopMarket, req.StopLoss); err != nil {
				c.log.Error().Str("symbol", req.Symbol).Err(err).Msg("⚠️ stop-loss order rejected, position unprotected")
			}
		}
		if !req.TakeProfit.IsZero() {
			if err := c.placeProtective(ctx, req.Symbol, req.Side, orderTypeTakeProfitMarket, req.TakeProfit); err != nil {
				c.log.Warn().Str("symbol", req.Symbol).Err(err).Msg("take-profit order rejected")
			}
		}
	}

	return broker.OrderResult{
		BrokerOrderID: fmt.Sprintf("%d", res.OrderID),
		FilledPrice:   filledPrice,
		FilledQty:     filledQty,
		Status:        status,
	}, nil
}

// placeProtective places a reduce-to-zero conditional order on the
// opposite side of an entry.
func (c *Client) placeProtective(ctx context.Context, symbol string, entrySide broker.OrderSide, orderType futures.OrderType, trigger decimal.Decimal) error {
	closeSide := futures.SideTypeSell
	if entrySide == broker.SideSell {
		closeSide = futures.SideTypeBuy
	}
	_, err := c.api.NewCreateOrderService().
		Symbol(symbol).
		Side(closeSide).
		Type(orderType).
		StopPrice(c.FormatPrice(symbol, toFloat(trigger))).
		ClosePosition(true).
		Do(ctx)
	return err
}

// ModifyStopLoss cancels any existing stop order for symbol and places
// a fresh STOP_MARKET reduce-only order at newStop, the same
// cancel-then-replace shape as predator_engine.go's MoveStopToBreakEven.
func (c *Client) ModifyStopLoss(ctx context.Context, symbol string, newStop decimal.Decimal) error {
	return c.replaceConditionalOrder(ctx, symbol, orderTypeStopMarket, newStop)
}

// ModifyTakeProfit is the take-profit analogue of ModifyStopLoss.
func (c *Client) ModifyTakeProfit(ctx context.Context, symbol string, newTarget decimal.Decimal) error {
	return c.replaceConditionalOrder(ctx, symbol, orderTypeTakeProfitMarket, newTarget)
}

func (c *Client) replaceConditionalOrder(ctx context.Context, symbol string, orderType futures.OrderType, price decimal.Decimal) error {
	open, err := c.api.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return fmt.Errorf("binancefutures: list open orders for %s: %w", symbol, err)
	}
	for _, o := range open {
		if o.Type == orderType {
			if _, err := c.api.NewCancelOrderService().Symbol(symbol).OrderID(o.OrderID).Do(ctx); err != nil {
				return fmt.Errorf("binancefutures: cancel %s order %d: %w", orderType, o.OrderID, err)
			}
		}
	}

	positions, err := c.GetOpenPositions(ctx)
	if err != nil {
		return err
	}
	var closeSide futures.SideType
	found := false
	for _, p := range positions {
		if p.Symbol != symbol {
			continue
		}
		found = true
		closeSide = futures.SideTypeSell
		if p.Direction == candle.Sell {
			closeSide = futures.SideTypeBuy
		}
	}
	if !found {
		return fmt.Errorf("binancefutures: no open position on %s to protect", symbol)
	}

	priceStr := c.FormatPrice(symbol, toFloat(price))
	_, err = c.api.NewCreateOrderService().
		Symbol(symbol).
		Side(closeSide).
		Type(orderType).
		StopPrice(priceStr).
		ClosePosition(true).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("binancefutures: place %s order: %w", orderType, err)
	}
	return nil
}

// ClosePosition market-closes volume lots of symbol (the entire
// position when volume is zero), grounded on predator_engine.go's
// closePosition market-exit branch.
func (c *Client) ClosePosition(ctx context.Context, symbol string, volume decimal.Decimal) (broker.OrderResult, error) {
	positions, err := c.GetOpenPositions(ctx)
	if err != nil {
		return broker.OrderResult{}, err
	}
	var target *broker.Position
	for i := range positions {
		if positions[i].Symbol == symbol {
			target = &positions[i]
			break
		}
	}
	if target == nil {
		return broker.OrderResult{}, fmt.Errorf("binancefutures: no open position on %s", symbol)
	}

	qty := target.Quantity
	if !volume.IsZero() && volume.LessThan(qty) {
		qty = volume
	}

	closeSide := futures.SideTypeSell
	if target.Direction == candle.Sell {
		closeSide = futures.SideTypeBuy
	}

	qtyStr := c.FormatQty(symbol, toFloat(qty))
	res, err := c.api.NewCreateOrderService().
		Symbol(symbol).
		Side(closeSide).
		Type(futures.OrderTypeMarket).
		Quantity(qtyStr).
		ReduceOnly(true).
		Do(ctx)
	if err != nil {
		return broker.OrderResult{Status: broker.StatusRejected, RawError: err}, err
	}

	filledQty, _ := decimal.NewFromString(res.ExecutedQuantity)
	filledPrice, _ := decimal.NewFromString(res.AvgPrice)
	return broker.OrderResult{
		BrokerOrderID: fmt.Sprintf("%d", res.OrderID),
		FilledPrice:   filledPrice,
		FilledQty:     filledQty,
		Status:        broker.StatusFilled,
	}, nil
}

// GetLastExit pulls the most recent account trades for symbol and
// returns the last realized exit fill's price and P&L net of
// commission.
func (c *Client) GetLastExit(ctx context.Context, symbol string) (decimal.Decimal, decimal.Decimal, error) {
	trades, err := c.api.NewListAccountTradeService().Symbol(symbol).Limit(20).Do(ctx)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("binancefutures: account trades for %s: %w", symbol, err)
	}
	for i := len(trades) - 1; i >= 0; i-- {
		pnl, perr := decimal.NewFromString(trades[i].RealizedPnl)
		if perr != nil || pnl.IsZero() {
			continue
		}
		price, _ := decimal.NewFromString(trades[i].Price)
		commission, _ := decimal.NewFromString(trades[i].Commission)
		return price, pnl.Sub(commission), nil
	}
	return decimal.Zero, decimal.Zero, fmt.Errorf("binancefutures: no realized exit found for %s", symbol)
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
