// Package binancefutures adapts github.com/adshao/go-binance/v2's
// futures client to the broker.Port interface. Grounded on
// predator_engine.go's FetchExchangeInfo/FormatPrice/FormatQty
// (tick/step precision caching and rounding) and trend_analyzer.go's
// kline-fetch retry pattern, generalized from a single hard-coded
// symbol universe to any instrument the engine is configured to watch.
package binancefutures

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sentinel-smc/sentinel/internal/broker"
	"github.com/sentinel-smc/sentinel/internal/candle"
)

// symbolPrecision mirrors the teacher's SymbolProfile: the tick/step
// sizes read from the exchange's LOT_SIZE/PRICE_FILTER filters.
type symbolPrecision struct {
	TickSize float64
	StepSize float64
}

// Client adapts a futures.Client to broker.Port.
type Client struct {
	api *futures.Client
	log zerolog.Logger

	mu        sync.RWMutex
	precision map[string]symbolPrecision
	ticks     map[string]candle.Tick

	assetClasses map[string]candle.AssetClass
	intervals    map[candle.Timeframe]string
}

// New constructs a Client. assetClasses maps a symbol to the asset
// class used for pip-size/pip-value defaults when the exchange filter
// data is unavailable.
func New(api *futures.Client, log zerolog.Logger, assetClasses map[string]candle.AssetClass) *Client {
	return &Client{
		api:          api,
		log:          log,
		precision:    make(map[string]symbolPrecision),
		ticks:        make(map[string]candle.Tick),
		assetClasses: assetClasses,
		intervals: map[candle.Timeframe]string{
			candle.LTF: "15m", candle.MTF: "1h", candle.HTF: "4h",
		},
	}
}

// LoadExchangeInfo populates the tick/step precision cache. Call once
// at startup and periodically thereafter; PlaceOrder and the formatting
// helpers fall back to sane defaults when a symbol hasn't been loaded.
func (c *Client) LoadExchangeInfo(ctx context.Context) error {
	info, err := c.api.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return fmt.Errorf("binancefutures: fetch exchange info: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range info.Symbols {
		var tick, step float64
		for _, f := range s.Filters {
			if f["filterType"] == "PRICE_FILTER" {
				tick, _ = strconv.ParseFloat(f["tickSize"].(string), 64)
			}
			if f["filterType"] == "LOT_SIZE" {
				step, _ = strconv.ParseFloat(f["stepSize"].(string), 64)
			}
		}
		c.precision[s.Symbol] = symbolPrecision{TickSize: tick, StepSize: step}
	}
	c.log.Info().Int("symbols", len(c.precision)).Msg("exchange precision data loaded")
	return nil
}

func (c *Client) precisionFor(symbol string) symbolPrecision {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.precision[symbol]; ok {
		return p
	}
	return symbolPrecision{TickSize: 0.01, StepSize: 0.001}
}

// FormatPrice rounds price to the symbol's tick size and renders it at
// the matching decimal precision, as required by the exchange's -1111
// filter failure.
func (c *Client) FormatPrice(symbol string, price float64) string {
	p := c.precisionFor(symbol)
	rounded := math.Floor(price/p.TickSize+0.5) * p.TickSize
	return fmt.Sprintf("%.*f", precisionOf(p.TickSize), rounded)
}

// FormatQty rounds qty down to the symbol's step size (never up, to
// avoid an insufficient-balance rejection) and renders it at the
// matching decimal precision.
func (c *Client) FormatQty(symbol string, qty float64) string {
	p := c.precisionFor(symbol)
	rounded := math.Floor(qty/p.StepSize) * p.StepSize
	return fmt.Sprintf("%.*f", precisionOf(p.StepSize), rounded)
}

func precisionOf(step float64) int {
	if step <= 0 {
		return 2
	}
	return int(math.Round(-math.Log10(step)))
}

func (c *Client) GetInstrument(ctx context.Context, symbol string) (candle.Instrument, error) {
	p := c.precisionFor(symbol)
	ticker, err := c.api.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil || len(ticker) == 0 {
		return candle.Instrument{}, fmt.Errorf("binancefutures: book ticker for %s: %w", symbol, err)
	}
	bid, _ := strconv.ParseFloat(ticker[0].BidPrice, 64)
	ask, _ := strconv.ParseFloat(ticker[0].AskPrice, 64)

	class := candle.AssetCrypto
	if ac, ok := c.assetClasses[symbol]; ok {
		class = ac
	}
	return candle.Instrument{
		Symbol:      symbol,
		AssetClass:  class,
		PipSize:     p.TickSize,
		PointSize:   p.TickSize,
		Digits:      precisionOf(p.TickSize),
		VolumeMin:   p.StepSize,
		VolumeMax:   1_000_000,
		VolumeStep:  p.StepSize,
		Bid:         bid,
		Ask:         ask,
	}, nil
}

// GetTick serves from the websocket tick cache while fresh and falls
// back to the REST book-ticker endpoint otherwise.
func (c *Client) GetTick(ctx context.Context, symbol string) (candle.Tick, error) {
	if t, ok := c.cachedTick(symbol); ok {
		return t, nil
	}
	ticker, err := c.api.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil || len(ticker) == 0 {
		return candle.Tick{}, fmt.Errorf("binancefutures: book ticker for %s: %w", symbol, err)
	}
	bid, _ := strconv.ParseFloat(ticker[0].BidPrice, 64)
	ask, _ := strconv.ParseFloat(ticker[0].AskPrice, 64)
	p := c.precisionFor(symbol)
	spread := ask - bid
	spreadPips := 0.0
	if p.TickSize > 0 {
		spreadPips = spread / p.TickSize
	}
	return candle.Tick{Symbol: symbol, Bid: bid, Ask: ask, SpreadPips: spreadPips, Point: p.TickSize, Time: time.Now()}, nil
}

// GetCandles fetches `count` closed klines for symbol/tf with a single
// retry on a short transport hiccup, grounded on
// trend_analyzer.go's analyzeTimeframe "Max 2 Attempts" loop.
func (c *Client) GetCandles(ctx context.Context, symbol string, tf candle.Timeframe, count int) (candle.Frame, error) {
	interval := c.intervalFor(tf)
	var klines []*futures.Kline
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		klines, err = c.api.NewKlinesService().Symbol(symbol).Interval(interval).Limit(count).Do(ctx)
		if err == nil && len(klines) > 0 {
			break
		}
		if attempt == 0 {
			time.Sleep(500 * time.Millisecond)
		}
	}
	if err != nil {
		if strings.Contains(err.Error(), "-1121") {
			return nil, fmt.Errorf("binancefutures: invalid symbol %s: %w", symbol, err)
		}
		return nil, fmt.Errorf("binancefutures: klines for %s %s: %w", symbol, interval, err)
	}
	if len(klines) == 0 {
		return nil, fmt.Errorf("binancefutures: no candles for %s %s after retry", symbol, interval)
	}

	frame := make(candle.Frame, 0, len(klines))
	for _, k := range klines {
		o, _ := strconv.ParseFloat(k.Open, 64)
		h, _ := strconv.ParseFloat(k.High, 64)
		l, _ := strconv.ParseFloat(k.Low, 64)
		cl, _ := strconv.ParseFloat(k.Close, 64)
		v, _ := strconv.ParseFloat(k.Volume, 64)
		frame = append(frame, candle.Candle{
			Timestamp: time.UnixMilli(k.OpenTime),
			Open:      o, High: h, Low: l, Close: cl, Volume: v,
		})
	}
	return frame, nil
}

// SetIntervals overrides the LTF/MTF/HTF kline-interval mapping from
// the configured timeframe labels.
func (c *Client) SetIntervals(ltf, mtf, htf string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ltf != "" {
		c.intervals[candle.LTF] = ltf
	}
	if mtf != "" {
		c.intervals[candle.MTF] = mtf
	}
	if htf != "" {
		c.intervals[candle.HTF] = htf
	}
}

// intervalFor maps the engine's broker-agnostic timeframe label onto a
// Binance kline interval string.
func (c *Client) intervalFor(tf candle.Timeframe) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if iv, ok := c.intervals[tf]; ok {
		return iv
	}
	return "15m"
}

func (c *Client) GetAccountBalance(ctx context.Context) (decimal.Decimal, error) {
	account, err := c.api.NewGetAccountService().Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binancefutures: account balance: %w", err)
	}
	bal, err := decimal.NewFromString(account.TotalWalletBalance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binancefutures: parse wallet balance: %w", err)
	}
	return bal, nil
}

func (c *Client) GetOpenPositions(ctx context.Context) ([]broker.Position, error) {
	risks, err := c.api.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binancefutures: position risk: %w", err)
	}
	var out []broker.Position
	for _, r := range risks {
		amt, _ := decimal.NewFromString(r.PositionAmt)
		if amt.IsZero() {
			continue
		}
		entry, _ := decimal.NewFromString(r.EntryPrice)
		pnl, _ := decimal.NewFromString(r.UnRealizedProfit)
		dir := candle.Buy
		if amt.IsNegative() {
			dir = candle.Sell
			amt = amt.Abs()
		}
		out = append(out, broker.Position{
			Symbol:        r.Symbol,
			Direction:     dir,
			Quantity:      amt,
			EntryPrice:    entry,
			UnrealizedPnL: pnl,
		})
	}
	return out, nil
}

// ClassifyError implements broker.Classifier using the same Binance
// retcode matching as execution_service.go's checkCriticalError.
func (c *Client) ClassifyError(err error) broker.ErrorKind {
	if err == nil {
		return broker.ErrorUnknown
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "-2014"), strings.Contains(msg, "-1021"), strings.Contains(msg, "-2019"):
		return broker.ErrorFinal
	case strings.Contains(msg, "-5022"), strings.Contains(msg, "-1013"), strings.Contains(msg, "-1001"):
		return broker.ErrorTransient
	default:
		return broker.ErrorUnknown
	}
}
