// Package telegram implements the Telegram notification sink (spec
// §4.J): trade/decision broadcasts and an interactive /status, /report,
// /stop command surface. Grounded on notification_service.go's
// NotificationService (bot + chatID + pendingSignals sync.Map,
// StartEventListener's command/callback dispatch), but the inline
// keyboard now confirms a kill-switch halt rather than approving a
// trade — this engine is fully automated, so the only human-in-the-loop
// action left is an emergency stop.
package telegram

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/sentinel-smc/sentinel/internal/journal"
)

// Notifier wraps a Telegram bot session and the persisted chat ID it
// auto-discovers on first /start.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    zerolog.Logger

	chatIDFile string

	pendingKills sync.Map // sigID(string) -> reason(string)
}

// New constructs a Notifier from an explicit token/chatID pair.
// chatIDFile, when non-empty, persists an auto-discovered chat ID
// across restarts via an atomic write-then-rename.
func New(token string, chatID int64, chatIDFile string, log zerolog.Logger) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: init bot: %w", err)
	}
	n := &Notifier{bot: bot, chatID: chatID, log: log, chatIDFile: chatIDFile}
	if n.chatID == 0 && chatIDFile != "" {
		n.chatID = loadChatID(chatIDFile)
	}
	return n, nil
}

func loadChatID(path string) int64 {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	id, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func saveChatID(path string, id int64) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatInt(id, 10)), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Notify sends msg to the configured chat, fire-and-forget; a nil
// Notifier or unconfigured chat is a silent no-op so callers don't need
// to guard every call site.
func (n *Notifier) Notify(msg string) {
	if n == nil || n.bot == nil || n.chatID == 0 {
		return
	}
	go func() {
		cfg := tgbotapi.NewMessage(n.chatID, msg)
		cfg.ParseMode = "Markdown"
		if _, err := n.bot.Send(cfg); err != nil {
			n.log.Warn().Err(err).Msg("telegram send failed")
		}
	}()
}

// SendDecision formats and sends a DecisionRecord when it reached
// ENTRY_READY (lower stages are too frequent to broadcast).
func (n *Notifier) SendDecision(rec journal.DecisionRecord) {
	if msg := decisionMessage(rec); msg != "" {
		n.Notify(msg)
	}
}

func decisionMessage(rec journal.DecisionRecord) string {
	if rec.Stage != "ENTRY_READY" {
		return ""
	}
	return fmt.Sprintf("🎯 *SIGNAL* %s %s\nQuality: %s (%.0f)\n%s",
		rec.Symbol, rec.Direction, rec.Quality, rec.Confidence, rec.Outcome)
}

// SendTrade formats and sends a TradeRecord lifecycle event.
func (n *Notifier) SendTrade(rec journal.TradeRecord) {
	n.Notify(tradeMessage(rec))
}

func tradeMessage(rec journal.TradeRecord) string {
	switch rec.Event {
	case "OPEN":
		return fmt.Sprintf("🏗️ *OPEN* %s %s\nEntry: %.5f | SL: %.5f | TP: %.5f | Qty: %.4f",
			rec.Symbol, rec.Direction, rec.Entry, rec.StopLoss, rec.TakeProfit, rec.Quantity)
	case "CLOSE":
		return fmt.Sprintf("✅ *CLOSE* %s %s\nExit: %.5f | PnL: %.2f | %s",
			rec.Symbol, rec.Direction, rec.ExitPrice, rec.PnL, rec.Reason)
	default:
		return fmt.Sprintf("🛡️ *%s* %s %s", rec.Event, rec.Symbol, rec.Reason)
	}
}

// Callbacks bundles the supervisor hooks StartEventListener invokes in
// response to commands.
type Callbacks struct {
	Status     func() string
	Report     func() string
	RequestKillSwitch func(reason string) // called when the user confirms a /stop
}

// StartEventListener blocks, polling Telegram's long-poll updates API
// and dispatching /status, /report, /stop commands plus the
// kill-switch confirm/cancel inline keyboard, grounded on
// notification_service.go's StartEventListener.
func (n *Notifier) StartEventListener(cb Callbacks) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := n.bot.GetUpdatesChan(u)

	for update := range updates {
		if update.CallbackQuery != nil {
			n.handleCallback(update.CallbackQuery, cb)
			continue
		}
		if update.Message == nil {
			continue
		}
		if n.chatID == 0 {
			n.chatID = update.Message.Chat.ID
			if n.chatIDFile != "" {
				if err := saveChatID(n.chatIDFile, n.chatID); err != nil {
					n.log.Warn().Err(err).Msg("persist chat id failed")
				}
			}
			n.Notify("🔔 Connected. Monitoring started.")
		}
		if !update.Message.IsCommand() {
			continue
		}
		switch update.Message.Command() {
		case "status":
			if cb.Status != nil {
				n.Notify(cb.Status())
			}
		case "start":
			if n.chatID != update.Message.Chat.ID {
				n.chatID = update.Message.Chat.ID
				if n.chatIDFile != "" {
					if err := saveChatID(n.chatIDFile, n.chatID); err != nil {
						n.log.Warn().Err(err).Msg("persist chat id failed")
					}
				}
			}
			n.Notify("🚀 Connection established. Monitoring active.")
		case "report":
			if cb.Report != nil {
				n.Notify(cb.Report())
			}
		case "stop":
			n.requestKillSwitchConfirmation("manual /stop command")
		}
	}
}

func (n *Notifier) requestKillSwitchConfirmation(reason string) {
	if n.chatID == 0 {
		return
	}
	id := fmt.Sprintf("%d", time.Now().UnixNano())
	n.pendingKills.Store(id, reason)

	msg := tgbotapi.NewMessage(n.chatID, fmt.Sprintf("🛑 *CONFIRM KILL SWITCH*\nReason: %s\nThis halts all new entries immediately.", reason))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🛑 CONFIRM", "KILL_"+id),
			tgbotapi.NewInlineKeyboardButtonData("✖️ CANCEL", "CANCEL_"+id),
		),
	)
	if _, err := n.bot.Send(msg); err != nil {
		n.log.Warn().Err(err).Msg("kill-switch confirmation send failed")
	}
}

func (n *Notifier) handleCallback(cq *tgbotapi.CallbackQuery, cb Callbacks) {
	data := cq.Data
	switch {
	case strings.HasPrefix(data, "KILL_"):
		id := strings.TrimPrefix(data, "KILL_")
		reason, ok := n.pendingKills.Load(id)
		if !ok {
			n.bot.Send(tgbotapi.NewCallback(cq.ID, "expired"))
			return
		}
		n.bot.Send(tgbotapi.NewCallback(cq.ID, "halting"))
		n.pendingKills.Delete(id)
		if cb.RequestKillSwitch != nil {
			cb.RequestKillSwitch(reason.(string))
		}
	case strings.HasPrefix(data, "CANCEL_"):
		id := strings.TrimPrefix(data, "CANCEL_")
		n.pendingKills.Delete(id)
		n.bot.Send(tgbotapi.NewCallback(cq.ID, "cancelled"))
	}
}
