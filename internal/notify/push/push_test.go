package push

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-smc/sentinel/internal/candle"
	"github.com/sentinel-smc/sentinel/internal/journal"
)

func TestNew_MissingCredentialsDisablesSink(t *testing.T) {
	s, err := New(t.Context(), "/does/not/exist/serviceAccountKey.json", zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestSendTradeEvent_NilServiceIsNoop(t *testing.T) {
	var s *Service
	assert.NotPanics(t, func() {
		s.SendTradeEvent(journal.TradeRecord{Event: "OPEN"})
	})
}

func TestSendTradeEvent_OnlyOpenAndCloseQueue(t *testing.T) {
	s := &Service{log: zerolog.Nop(), queue: make(chan Message, 10)}

	s.SendTradeEvent(journal.TradeRecord{Event: "BREAK_EVEN", Symbol: "EURUSD"})
	assert.Len(t, s.queue, 0)

	s.SendTradeEvent(journal.TradeRecord{Event: "OPEN", Symbol: "EURUSD", Direction: candle.Buy, Entry: 1.1, Quantity: 0.1})
	require.Len(t, s.queue, 1)
	msg := <-s.queue
	assert.Equal(t, "ALL_TRADES", msg.Topic)
	assert.Equal(t, "EURUSD", msg.Data["symbol"])

	s.SendTradeEvent(journal.TradeRecord{Event: "CLOSE", Symbol: "EURUSD", PnL: 42.5, Reason: "take_profit"})
	require.Len(t, s.queue, 1)
	msg = <-s.queue
	assert.Contains(t, msg.Body, "take_profit")
}

func TestEnqueue_DropsWhenQueueFull(t *testing.T) {
	s := &Service{log: zerolog.Nop(), queue: make(chan Message, 1)}
	s.enqueue(Message{Body: "first"})
	s.enqueue(Message{Body: "second"})
	require.Len(t, s.queue, 1)
	assert.Equal(t, "first", (<-s.queue).Body)
}
