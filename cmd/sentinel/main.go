// Command sentinel is the trading-engine binary: it loads configuration,
// wires the broker adapter, risk controller, executor, position manager,
// journal and notification sinks, then hands control to the supervisor.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/sentinel-smc/sentinel/internal/broker/binancefutures"
	"github.com/sentinel-smc/sentinel/internal/candle"
	"github.com/sentinel-smc/sentinel/internal/config"
	"github.com/sentinel-smc/sentinel/internal/execute"
	"github.com/sentinel-smc/sentinel/internal/journal"
	"github.com/sentinel-smc/sentinel/internal/manage"
	"github.com/sentinel-smc/sentinel/internal/newsfeed"
	"github.com/sentinel-smc/sentinel/internal/notify/push"
	"github.com/sentinel-smc/sentinel/internal/notify/statusapi"
	"github.com/sentinel-smc/sentinel/internal/notify/telegram"
	"github.com/sentinel-smc/sentinel/internal/risk"
	"github.com/sentinel-smc/sentinel/internal/supervisor"
)

// Exit codes per the CLI contract: 0 normal stop, 1 fatal configuration
// or safety violation, 2 kill-switch triggered.
const (
	exitOK         = 0
	exitFatal      = 1
	exitKillSwitch = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		modeFlag   = pflag.String("mode", "", "override general.mode (live|paper|backtest|visual)")
		configPath = pflag.String("config", "config.yaml", "configuration file")
		profiles   = pflag.String("profiles", "asset_profiles.yaml", "asset-class profile overrides")
		symbolFlag = pflag.String("symbol", "", "restrict the run to one symbol")
	)
	pflag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	secrets := config.LoadSecrets()
	cfg, err := config.Load(*configPath, *profiles)
	if err != nil {
		log.Error().Err(err).Msg("configuration error")
		return exitFatal
	}
	if *modeFlag != "" {
		cfg.General.Mode = config.Mode(*modeFlag)
		if err := cfg.Validate(); err != nil {
			log.Error().Err(err).Msg("configuration error")
			return exitFatal
		}
	}
	if *symbolFlag != "" {
		var kept []config.SymbolConfig
		for _, s := range cfg.Symbols {
			if s.Name == *symbolFlag {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			log.Error().Str("symbol", *symbolFlag).Msg("symbol not in configuration")
			return exitFatal
		}
		cfg.Symbols = kept
	}
	if err := config.CheckSafety(cfg, secrets); err != nil {
		log.Error().Err(err).Msg("safety violation")
		return exitFatal
	}

	log.Info().Str("mode", string(cfg.General.Mode)).Int("symbols", len(cfg.Symbols)).
		Msg("🚀 Sentinel SMC engine starting")

	assetClasses := map[string]candle.AssetClass{}
	for _, s := range cfg.Symbols {
		assetClasses[s.Name] = candle.AssetClass(s.AssetClass)
	}

	api := binance.NewFuturesClient(secrets.BinanceAPIKey, secrets.BinanceAPISecret)
	port := binancefutures.New(api, log, assetClasses)
	port.SetIntervals(cfg.Timeframes.LTF, cfg.Timeframes.MTF, cfg.Timeframes.HTF)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := port.LoadExchangeInfo(ctx); err != nil {
		log.Error().Err(err).Msg("exchange info unavailable")
		return exitFatal
	}
	go port.StreamTicks(ctx, symbolNames(cfg))

	cooldowns, err := journal.LoadCooldowns(cfg.General.CooldownFile)
	if err != nil {
		log.Error().Err(err).Msg("cooldown ledger unreadable")
		return exitFatal
	}
	rc := risk.NewController(risk.Config{
		CooldownSameSymbol:          time.Duration(cfg.Risk.CooldownSameSymbolSecs) * time.Second,
		MinStackingDistancePips:     cfg.Risk.MinStackingDistancePips,
		MinStackingTime:             time.Duration(cfg.Risk.MinStackingTimeSecs) * time.Second,
		DuplicatePriceTolerancePips: 5,
		MaxDailyLossPercent:         cfg.Risk.MaxDailyLossPercent,
		MaxConsecutiveLosses:        3,
		MaxTradesPerDay:             cfg.Risk.MaxTradesPerDay,
		MaxOpenTrades:               cfg.Risk.MaxOpenTrades,
		LunchBreakEnabled:           cfg.Risk.LunchBreakFilter,
		LunchStartHourUTC:           12,
		LunchEndHourUTC:             13,
	}, cooldowns, nil)
	guard := risk.NewCorrelationGuard(cfg.Risk.CorrelationGuard.MaxExposurePerCurrency)

	jw, err := journal.NewWriter(cfg.General.JournalDir)
	if err != nil {
		log.Error().Err(err).Msg("journal unavailable")
		return exitFatal
	}
	defer jw.Close()

	var news newsfeed.Filter = newsfeed.AllowAll{}
	if cfg.Filters.News.Enabled {
		if cal, err := newsfeed.LoadCalendar("calendar.json"); err == nil {
			news = cal
		} else {
			log.Warn().Err(err).Msg("news calendar unavailable, news filter disabled")
		}
	}

	exec := execute.New(port, execute.DefaultParams(), log)
	mgr := manage.New(port, manage.DefaultRules(), log)
	sup := supervisor.New(cfg, port, rc, guard, exec, mgr, jw, news, log)

	if secrets.TelegramToken != "" {
		tg, err := telegram.New(secrets.TelegramToken, 0, "chat_id.txt", log)
		if err != nil {
			log.Warn().Err(err).Msg("telegram unavailable")
		} else {
			sup.Notifiers = append(sup.Notifiers, tg)
			go tg.StartEventListener(telegram.Callbacks{
				Status:            sup.StatusReport,
				Report:            sup.StatusReport,
				RequestKillSwitch: sup.Halt,
			})
		}
	}
	if secrets.FirebaseCredFile != "" {
		if fcm, err := push.New(ctx, secrets.FirebaseCredFile, log); err != nil {
			log.Warn().Err(err).Msg("push service unavailable")
		} else if fcm != nil {
			sup.Notifiers = append(sup.Notifiers, pushNotifier{fcm})
		}
	}

	if addr := cfg.General.StatusAddr; addr != "" {
		status, err := statusapi.New(secrets.FirebaseCredFile, func() any {
			return map[string]any{"halted": sup.Halted(), "report": sup.StatusReport()}
		}, log)
		if err != nil {
			log.Warn().Err(err).Msg("status api unavailable")
		} else {
			go func() {
				if err := http.ListenAndServe(addr, status.Handler()); err != nil {
					log.Warn().Err(err).Msg("status api stopped")
				}
			}()
		}
	}

	_ = sup.Run(ctx)

	if sup.Halted() {
		log.Warn().Msg("stopped by kill switch")
		return exitKillSwitch
	}
	log.Info().Msg("normal stop")
	return exitOK
}

func symbolNames(cfg config.Config) []string {
	names := make([]string, 0, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		names = append(names, s.Name)
	}
	return names
}

// pushNotifier adapts the FCM service's SendTradeEvent to the
// supervisor's TradeNotifier.
type pushNotifier struct {
	svc *push.Service
}

func (p pushNotifier) SendTrade(rec journal.TradeRecord) {
	p.svc.SendTradeEvent(rec)
}
