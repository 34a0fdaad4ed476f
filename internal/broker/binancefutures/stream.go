package binancefutures

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sentinel-smc/sentinel/internal/candle"
)

// combinedStreamMsg is Binance's combined-stream envelope.
type combinedStreamMsg struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type bookTickerMsg struct {
	Symbol string `json:"s"`
	Bid    string `json:"b"`
	Ask    string `json:"a"`
}

// tickCacheTTL bounds how stale a streamed tick may be before GetTick
// falls back to the REST book-ticker endpoint.
const tickCacheTTL = 2 * time.Second

// StreamTicks opens a combined bookTicker websocket for symbols and
// keeps the client's tick cache current until ctx is cancelled; GetTick
// serves from this cache while it is fresh. The dial-retry shape (5s
// backoff on connect failure, read loop until error, then redial) is
// grounded on predator_engine.go's PredatorWorker.Run.
func (c *Client) StreamTicks(ctx context.Context, symbols []string) {
	streams := make([]string, len(symbols))
	for i, s := range symbols {
		streams[i] = fmt.Sprintf("%s@bookTicker", strings.ToLower(s))
	}
	url := fmt.Sprintf("wss://fstream.binance.com/stream?streams=%s", strings.Join(streams, "/"))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			c.log.Warn().Err(err).Msg("book-ticker stream dial failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			default:
			}
			_, raw, err := conn.ReadMessage()
			if err != nil {
				conn.Close()
				break
			}
			var envelope combinedStreamMsg
			if err := json.Unmarshal(raw, &envelope); err != nil {
				continue
			}
			var bt bookTickerMsg
			if err := json.Unmarshal(envelope.Data, &bt); err != nil {
				continue
			}
			bid, err1 := strconv.ParseFloat(bt.Bid, 64)
			ask, err2 := strconv.ParseFloat(bt.Ask, 64)
			if err1 != nil || err2 != nil {
				continue
			}
			p := c.precisionFor(bt.Symbol)
			spreadPips := 0.0
			if p.TickSize > 0 {
				spreadPips = (ask - bid) / p.TickSize
			}
			c.cacheTick(candle.Tick{
				Symbol: bt.Symbol, Bid: bid, Ask: ask,
				SpreadPips: spreadPips, Point: p.TickSize, Time: time.Now(),
			})
		}
	}
}

func (c *Client) cacheTick(t candle.Tick) {
	c.mu.Lock()
	c.ticks[t.Symbol] = t
	c.mu.Unlock()
}

func (c *Client) cachedTick(symbol string) (candle.Tick, bool) {
	c.mu.RLock()
	t, ok := c.ticks[symbol]
	c.mu.RUnlock()
	if !ok || time.Since(t.Time) > tickCacheTTL {
		return candle.Tick{}, false
	}
	return t, true
}
