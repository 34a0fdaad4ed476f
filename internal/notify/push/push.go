// Package push implements the optional FCM push sink (spec §4.J),
// generalizing push_service.go's PushService/pushQueue worker: the
// whale-alert topic becomes a trade-event topic, and SendWhaleAlert's
// level-5 gate becomes a "only OPEN/CLOSE events reach mobile, everything
// else stays in the journal/Telegram" filter. credentials-file-missing
// disables the sink the same way the teacher's constructor does.
package push

import (
	"context"
	"fmt"
	"os"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/sentinel-smc/sentinel/internal/journal"
)

// Message is one queued push notification.
type Message struct {
	Topic string
	Title string
	Body  string
	Data  map[string]string
}

// Service wraps an FCM messaging client and a bounded delivery queue so
// callers never block on network I/O.
type Service struct {
	client *messaging.Client
	log    zerolog.Logger
	queue  chan Message
}

// New initializes the Firebase app from credFile and starts the worker
// goroutine. It returns (nil, nil) — not an error — when credFile is
// absent, since push notifications are an optional sink.
func New(ctx context.Context, credFile string, log zerolog.Logger) (*Service, error) {
	if _, err := os.Stat(credFile); os.IsNotExist(err) {
		log.Info().Str("file", credFile).Msg("push: credentials not found, sink disabled")
		return nil, nil
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credFile))
	if err != nil {
		return nil, fmt.Errorf("push: init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("push: get messaging client: %w", err)
	}

	s := &Service{client: client, log: log, queue: make(chan Message, 500)}
	go s.worker(ctx)
	return s, nil
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.queue:
			fcm := &messaging.Message{
				Notification: &messaging.Notification{Title: msg.Title, Body: msg.Body},
				Data:         msg.Data,
				Topic:        msg.Topic,
			}
			id, err := s.client.Send(ctx, fcm)
			if err != nil {
				s.log.Warn().Err(err).Msg("push: send failed")
				continue
			}
			s.log.Debug().Str("msg_id", id).Str("body", msg.Body).Msg("push: sent")
		}
	}
}

// SendTradeEvent queues a mobile push for a trade open/close event; a
// nil Service or any other event kind is a silent no-op so callers
// don't need to guard every call site, mirroring SendWhaleAlert's
// level-5 gate.
func (s *Service) SendTradeEvent(rec journal.TradeRecord) {
	if s == nil {
		return
	}
	if rec.Event != "OPEN" && rec.Event != "CLOSE" {
		return
	}

	title := fmt.Sprintf("%s %s", rec.Symbol, rec.Event)
	var body string
	if rec.Event == "OPEN" {
		body = fmt.Sprintf("%s opened at %.5f, qty %.4f", rec.Direction, rec.Entry, rec.Quantity)
	} else {
		body = fmt.Sprintf("%s closed at %.5f, PnL %.2f (%s)", rec.Direction, rec.ExitPrice, rec.PnL, rec.Reason)
	}

	s.enqueue(Message{
		Topic: "ALL_TRADES",
		Title: title,
		Body:  body,
		Data: map[string]string{
			"event":     rec.Event,
			"symbol":    rec.Symbol,
			"direction": string(rec.Direction),
			"pnl":       fmt.Sprintf("%.2f", rec.PnL),
		},
	})
}

func (s *Service) enqueue(msg Message) {
	select {
	case s.queue <- msg:
	default:
		s.log.Warn().Msg("push: queue full, dropping message")
	}
}
