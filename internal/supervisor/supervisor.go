// Package supervisor runs the per-symbol trading loop (spec §4.K): gate
// checks, OHLC pull, analysis, state-machine advance, scoring, risk
// gating, sizing, execution and journaling, one goroutine per symbol,
// grounded on predator_engine.go's PredatorWorker.Run one-goroutine-
// per-symbol ticker loop and main.go's CoinManager wiring.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sentinel-smc/sentinel/internal/analyzer"
	"github.com/sentinel-smc/sentinel/internal/broker"
	"github.com/sentinel-smc/sentinel/internal/candle"
	"github.com/sentinel-smc/sentinel/internal/config"
	"github.com/sentinel-smc/sentinel/internal/detect"
	"github.com/sentinel-smc/sentinel/internal/execute"
	"github.com/sentinel-smc/sentinel/internal/journal"
	"github.com/sentinel-smc/sentinel/internal/manage"
	"github.com/sentinel-smc/sentinel/internal/newsfeed"
	"github.com/sentinel-smc/sentinel/internal/risk"
	"github.com/sentinel-smc/sentinel/internal/score"
	"github.com/sentinel-smc/sentinel/internal/size"
	"github.com/sentinel-smc/sentinel/internal/stage"
)

// CycleInterval is the live-mode cadence per symbol.
const CycleInterval = time.Second

// ManageInterval is the independent position-manager cadence.
const ManageInterval = time.Second

// brokerCallTimeout bounds each broker I/O call (spec §5).
const brokerCallTimeout = 10 * time.Second

// TradeNotifier receives journal trade events for out-of-band channels
// (Telegram, FCM). Implementations must be safe for concurrent use.
type TradeNotifier interface {
	SendTrade(rec journal.TradeRecord)
}

// DecisionNotifier is optionally implemented by a TradeNotifier that
// also wants per-cycle decision records (Telegram broadcasts
// ENTRY_READY decisions, FCM does not).
type DecisionNotifier interface {
	SendDecision(rec journal.DecisionRecord)
}

// Supervisor owns the engine wiring and the per-symbol scheduler slots.
type Supervisor struct {
	Cfg      config.Config
	Port     broker.Port
	Risk     *risk.Controller
	Guard    *risk.CorrelationGuard
	Executor *execute.Executor
	Manager  *manage.Manager
	Journal  *journal.Writer
	News     newsfeed.Filter
	Adjuster newsfeed.Adjuster // optional fundamental layer; nil disables
	Log      zerolog.Logger

	Notifiers []TradeNotifier

	halted atomic.Bool

	mu    sync.Mutex
	slots map[string]*slot
}

// slot is the per-symbol state owned by exactly one goroutine (spec §5:
// "state per symbol is owned by at most one scheduler slot").
type slot struct {
	cfg     config.SymbolConfig
	profile config.AssetProfile
	state   *stage.State
	open    *manage.Position
}

// New wires a Supervisor; Run starts it.
func New(cfg config.Config, port broker.Port, rc *risk.Controller, guard *risk.CorrelationGuard,
	exec *execute.Executor, mgr *manage.Manager, jw *journal.Writer, news newsfeed.Filter, log zerolog.Logger) *Supervisor {

	s := &Supervisor{
		Cfg: cfg, Port: port, Risk: rc, Guard: guard,
		Executor: exec, Manager: mgr, Journal: jw, News: news, Log: log,
		slots: make(map[string]*slot),
	}
	for _, sym := range cfg.Symbols {
		if !sym.Enabled {
			continue
		}
		s.slots[sym.Name] = &slot{
			cfg:     sym,
			profile: cfg.ProfileFor(sym),
			state:   stage.NewState(sym.Name),
		}
	}
	return s
}

// Halt sets the process-wide kill-switch flag; every symbol loop checks
// it at the top of its cycle. Existing positions remain managed.
func (s *Supervisor) Halt(reason string) {
	if s.halted.CompareAndSwap(false, true) {
		s.Log.Warn().Str("reason", reason).Msg("🛑 kill switch engaged, no new entries")
	}
}

// Halted reports the kill-switch flag.
func (s *Supervisor) Halted() bool { return s.halted.Load() }

// Run blocks until ctx is cancelled, running one analysis goroutine per
// symbol plus the shared position-manager goroutine and the cooldown
// persistence ticker.
func (s *Supervisor) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for name := range s.slots {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			s.symbolLoop(ctx, symbol)
		}(name)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.manageLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.persistLoop(ctx)
	}()

	wg.Wait()
	// final ledger flush so restarts keep in-flight cooldowns
	if err := journal.SaveCooldowns(s.Cfg.General.CooldownFile, s.Risk.Snapshot()); err != nil {
		s.Log.Warn().Err(err).Msg("final cooldown save failed")
	}
	return ctx.Err()
}

func (s *Supervisor) symbolLoop(ctx context.Context, symbol string) {
	ticker := time.NewTicker(CycleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Cycle(ctx, symbol, time.Now().UTC()); err != nil {
				s.Log.Warn().Str("symbol", symbol).Err(err).Msg("cycle skipped")
			}
		}
	}
}

// Cycle runs one full analysis-to-order pass for symbol. Exported so
// backtest drivers and tests can drive cadence themselves (spec §9:
// live and backtest share the pipeline).
func (s *Supervisor) Cycle(ctx context.Context, symbol string, now time.Time) error {
	sl := s.slot(symbol)
	if sl == nil {
		return fmt.Errorf("supervisor: unknown symbol %s", symbol)
	}
	if s.Halted() {
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, brokerCallTimeout)
	defer cancel()

	in, err := s.Port.GetInstrument(cctx, symbol)
	if err != nil {
		return fmt.Errorf("instrument: %w", err)
	}
	tick, err := s.Port.GetTick(cctx, symbol)
	if err != nil {
		return fmt.Errorf("tick: %w", err)
	}

	frames, err := s.pullFrames(cctx, symbol, sl.profile.Lookback)
	if err != nil {
		return err
	}

	snap := analyzer.Analyze(symbol, frames, tick, s.analyzerConfig(sl, in.PipSize))
	if sl.cfg.Strategies.SMT && sl.cfg.SMTPair != "" {
		s.attachSMT(cctx, sl, frames.LTF, &snap)
	}
	stage.Advance(sl.state, snap, stage.Params{
		IsGoldOrIndex:      in.AssetClass == candle.AssetCommodity || in.AssetClass == candle.AssetIndices,
		PipSize:            in.PipSize,
		EnableSilverBullet: sl.cfg.Strategies.SilverBullet,
		EnableAMD:          sl.cfg.Strategies.AMD,
	})

	sig, err := score.Evaluate(snap, *sl.state, s.scoreProfile(sl, in))
	if err != nil {
		s.journalDecision(snap, sl, candle.Neutral, 0, "VETOED:"+vetoRule(err))
		return nil
	}

	score.ConstructSLTP(&sig, snap, score.SLTPParams{
		PipSize:      in.PipSize,
		SLMultiplier: sl.profile.SLMultiplier,
		MinRR:        s.Cfg.Risk.MinRiskReward,
	})
	if rr := rewardRisk(sig); rr < s.Cfg.Risk.MinRiskReward {
		s.journalDecision(snap, sl, sig.Direction, sig.Confidence, fmt.Sprintf("REJECTED:min_rr_%.2f", rr))
		return nil
	}

	if reason := s.gate(ctx, sig, in, now); reason != "" {
		s.journalDecision(snap, sl, sig.Direction, sig.Confidence, "REJECTED:"+reason)
		return nil
	}

	if s.Adjuster != nil {
		mult, ok := s.Adjuster.Adjust(symbol, sig.Confidence, sig.LotMultiplier)
		if !ok {
			s.journalDecision(snap, sl, sig.Direction, sig.Confidence, "REJECTED:fundamental")
			return nil
		}
		sig.LotMultiplier = mult
	}

	if err := s.submit(ctx, sl, sig, in, now); err != nil {
		s.journalDecision(snap, sl, sig.Direction, sig.Confidence, "ORDER_FAILED:"+err.Error())
		return nil
	}

	s.journalDecision(snap, sl, sig.Direction, sig.Confidence, "TAKEN")
	return nil
}

// gate runs the §4.K step-1 order: risk controller, correlation guard,
// news blackout.
func (s *Supervisor) gate(ctx context.Context, sig score.Signal, in candle.Instrument, now time.Time) string {
	open, err := s.openPositions(ctx)
	if err != nil {
		return "positions_unavailable"
	}

	isCrypto := in.AssetClass == candle.AssetCrypto
	if reason := s.Risk.CanOpen(sig.Symbol, sig.Direction, sig.Entry, in.PipSize, isCrypto, open, now); reason != risk.RejectNone {
		return string(reason)
	}

	lots, err := s.lotsFor(sig, in)
	if err != nil {
		return "lot_too_small"
	}
	vol, _ := lots.Float64()
	if reason := s.Guard.CanOpenTrade(sig.Symbol, sig.Direction, vol, sig.Confidence, open); reason != risk.RejectNone {
		return string(reason)
	}

	horizon := time.Duration(s.Cfg.Filters.News.PauseBefore) * time.Minute
	if ok, title := s.News.Allowed(sig.Symbol, now, horizon); !ok {
		return "NEWS_BLACKOUT:" + title
	}
	return ""
}

func (s *Supervisor) lotsFor(sig score.Signal, in candle.Instrument) (decimal.Decimal, error) {
	cctx, cancel := context.WithTimeout(context.Background(), brokerCallTimeout)
	defer cancel()
	balance, err := s.Port.GetAccountBalance(cctx)
	if err != nil {
		return decimal.Zero, err
	}

	riskPct := s.Cfg.Risk.RiskPerTrade
	if sl := s.slot(sig.Symbol); sl != nil && sl.cfg.RiskPercent > 0 {
		riskPct = sl.cfg.RiskPercent
	}
	var symCap decimal.Decimal
	if sl := s.slot(sig.Symbol); sl != nil && sl.cfg.MaxLots > 0 {
		symCap = decimal.NewFromFloat(sl.cfg.MaxLots)
	}
	return size.Lots(sig.Entry, sig.SL, in, size.Params{
		Balance:       balance,
		RiskPercent:   decimal.NewFromFloat(riskPct),
		LotMultiplier: decimal.NewFromFloat(sig.LotMultiplier),
		IsJPYQuoted:   isJPYQuoted(sig.Symbol),
		SymbolCap:     symCap,
	})
}

func (s *Supervisor) submit(ctx context.Context, sl *slot, sig score.Signal, in candle.Instrument, now time.Time) error {
	lots, err := s.lotsFor(sig, in)
	if err != nil {
		return err
	}

	side := broker.SideBuy
	if sig.Direction == candle.Sell {
		side = broker.SideSell
	}
	req := broker.OrderRequest{
		Symbol:     sig.Symbol,
		Side:       side,
		Quantity:   lots,
		StopLoss:   decimal.NewFromFloat(sig.SL),
		TakeProfit: decimal.NewFromFloat(sig.TP),
		ClientTag:  fmt.Sprintf("sentinel-%s-%d", sig.Symbol, now.Unix()),
	}
	res, err := s.Executor.Execute(ctx, req, in, decimal.NewFromFloat(sig.Entry))
	if err != nil {
		return err
	}

	entry, _ := res.FilledPrice.Float64()
	qty, _ := res.FilledQty.Float64()
	s.Risk.RecordOrder(sig.Symbol, now)
	if err := journal.SaveCooldowns(s.Cfg.General.CooldownFile, s.Risk.Snapshot()); err != nil {
		s.Log.Warn().Err(err).Msg("cooldown save failed")
	}

	s.mu.Lock()
	sl.open = &manage.Position{
		Symbol:       sig.Symbol,
		Direction:    sig.Direction,
		Entry:        res.FilledPrice,
		InitialStop:  req.StopLoss,
		CurrentStop:  req.StopLoss,
		TakeProfit:   req.TakeProfit,
		Quantity:     res.FilledQty,
		RemainingQty: res.FilledQty,
	}
	s.mu.Unlock()

	rec := journal.TradeRecord{
		Timestamp: now, Symbol: sig.Symbol, Direction: sig.Direction,
		Event: "OPEN", Entry: entry, StopLoss: sig.SL, TakeProfit: sig.TP, Quantity: qty,
		Reason: string(sig.Quality),
	}
	s.writeTrade(rec)
	s.Log.Info().Str("symbol", sig.Symbol).Str("dir", string(sig.Direction)).
		Float64("entry", entry).Float64("sl", sig.SL).Float64("tp", sig.TP).
		Float64("confidence", sig.Confidence).Msg("🎯 position opened")
	return nil
}

// manageLoop is the independent Position Manager cadence (spec §4.I).
// It also reconciles closed tickets: symbols held locally but absent
// from the broker's positions list are treated as closed.
func (s *Supervisor) manageLoop(ctx context.Context) {
	ticker := time.NewTicker(ManageInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.manageTick(ctx, time.Now().UTC())
		}
	}
}

func (s *Supervisor) manageTick(ctx context.Context, now time.Time) {
	open, err := s.openPositions(ctx)
	if err != nil {
		s.Log.Warn().Err(err).Msg("manage tick: positions unavailable")
		return
	}
	live := make(map[string]risk.OpenPosition, len(open))
	for _, p := range open {
		live[p.Symbol] = p
	}

	s.mu.Lock()
	type tracked struct {
		symbol string
		pos    *manage.Position
	}
	var held []tracked
	for name, sl := range s.slots {
		if sl.open != nil {
			held = append(held, tracked{name, sl.open})
		}
	}
	s.mu.Unlock()

	for _, t := range held {
		if _, stillOpen := live[t.symbol]; !stillOpen || t.pos.RemainingQty.IsZero() {
			s.reconcileClose(t.symbol, t.pos, now)
			continue
		}

		cctx, cancel := context.WithTimeout(ctx, brokerCallTimeout)
		tick, err := s.Port.GetTick(cctx, t.symbol)
		if err != nil {
			cancel()
			continue
		}
		structStop := s.structureStop(cctx, t.symbol, t.pos.Direction)
		cancel()

		horizon := time.Duration(s.Cfg.Filters.News.ExitMinutesBefore) * time.Minute
		newsExit := false
		if s.Cfg.Filters.News.EmergencyExit {
			newsExit, _ = s.News.EmergencyExit(t.symbol, now, horizon)
		}

		events, err := s.Manager.Manage(ctx, t.pos, tick, structStop, newsExit)
		if err != nil {
			s.Log.Warn().Str("symbol", t.symbol).Err(err).Msg("manage error")
		}
		for _, ev := range events {
			s.writeTrade(journal.TradeRecord{
				Timestamp: now, Symbol: ev.Symbol, Direction: t.pos.Direction,
				Event: ev.Kind, Reason: ev.Detail,
			})
		}
	}
}

// reconcileClose handles a ticket that left the broker's open set:
// realised P&L flows into the risk controller's kill-switch accounting
// and a CLOSE record is journaled.
func (s *Supervisor) reconcileClose(symbol string, pos *manage.Position, now time.Time) {
	cctx, cancel := context.WithTimeout(context.Background(), brokerCallTimeout)
	defer cancel()

	exitPrice := 0.0
	pnl := 0.0
	if price, realized, err := s.Port.GetLastExit(cctx, symbol); err == nil {
		exitPrice, _ = price.Float64()
		pnl, _ = realized.Float64()
	} else if tick, terr := s.Port.GetTick(cctx, symbol); terr == nil {
		// No exit deal retrievable: estimate from the live quote.
		exitPrice = tick.Bid
		if pos.Direction == candle.Sell {
			exitPrice = tick.Ask
		}
		entry, _ := pos.Entry.Float64()
		qty, _ := pos.Quantity.Float64()
		diff := exitPrice - entry
		if pos.Direction == candle.Sell {
			diff = entry - exitPrice
		}
		pnl = diff * qty
	}

	balance := 0.0
	if b, err := s.Port.GetAccountBalance(cctx); err == nil {
		balance, _ = b.Float64()
	}
	s.Risk.RecordClose(symbol, pnl, balance, now)
	if s.Risk.DailyHalted() {
		s.Halt("daily loss limit reached")
	}

	s.mu.Lock()
	if sl, ok := s.slots[symbol]; ok {
		sl.open = nil
		sl.state = stage.NewState(symbol)
	}
	s.mu.Unlock()

	s.writeTrade(journal.TradeRecord{
		Timestamp: now, Symbol: symbol, Direction: pos.Direction,
		Event: "CLOSE", ExitPrice: exitPrice, PnL: pnl,
	})
	s.Log.Info().Str("symbol", symbol).Float64("pnl", pnl).Msg("💰 position closed")
}

// attachSMT pulls the configured correlated symbol's LTF frame and runs
// the SMT divergence check against it (spec §4.K step 2), checking
// swing lows and highs in turn.
func (s *Supervisor) attachSMT(ctx context.Context, sl *slot, primary candle.Frame, snap *analyzer.MarketSnapshot) {
	pairFrame, err := s.Port.GetCandles(ctx, sl.cfg.SMTPair, candle.LTF, len(primary))
	if err != nil {
		s.Log.Warn().Str("symbol", sl.cfg.Name).Str("pair", sl.cfg.SMTPair).Err(err).Msg("smt pair candles unavailable")
		return
	}
	strength := s.Cfg.SMC.SwingStrength
	primarySwings := detect.Swings(primary, strength)
	pairSwings := detect.Swings(pairFrame, strength)
	for _, kind := range []detect.SwingKind{detect.SwingLow, detect.SwingHigh} {
		if div, ok := detect.DetectSMT(primarySwings, pairSwings, kind); ok {
			snap.SMT = div
			snap.HasSMT = true
			return
		}
	}
}

// structureStop finds the latest confirmed fractal swing on the LTF for
// structure-mode trailing (spec §4.I), buffered by 2 pips.
func (s *Supervisor) structureStop(ctx context.Context, symbol string, dir candle.Direction) decimal.Decimal {
	frame, err := s.Port.GetCandles(ctx, symbol, candle.LTF, 60)
	if err != nil {
		return decimal.Zero
	}
	swings := detect.Swings(frame, detect.DefaultSwingStrength)
	kind := detect.SwingLow
	if dir == candle.Sell {
		kind = detect.SwingHigh
	}
	sw, ok := detect.LastSwing(swings, kind)
	if !ok {
		return decimal.Zero
	}
	in, err := s.Port.GetInstrument(ctx, symbol)
	if err != nil {
		return decimal.Zero
	}
	buf := decimal.NewFromFloat(2 * in.PipSize)
	level := decimal.NewFromFloat(sw.Price)
	if dir == candle.Buy {
		return level.Sub(buf)
	}
	return level.Add(buf)
}

// persistLoop flushes the cooldown ledger periodically so a crash loses
// at most one interval of cooldown state.
func (s *Supervisor) persistLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := journal.SaveCooldowns(s.Cfg.General.CooldownFile, s.Risk.Snapshot()); err != nil {
				s.Log.Warn().Err(err).Msg("cooldown persist failed")
			}
		}
	}
}

func (s *Supervisor) pullFrames(ctx context.Context, symbol string, lookback int) (analyzer.Frames, error) {
	if lookback <= 0 {
		lookback = 100
	}
	var frames analyzer.Frames
	var err error
	if frames.LTF, err = s.Port.GetCandles(ctx, symbol, candle.LTF, lookback); err != nil {
		return frames, fmt.Errorf("ltf candles: %w", err)
	}
	if frames.MTF, err = s.Port.GetCandles(ctx, symbol, candle.MTF, lookback); err != nil {
		return frames, fmt.Errorf("mtf candles: %w", err)
	}
	if frames.HTF, err = s.Port.GetCandles(ctx, symbol, candle.HTF, lookback); err != nil {
		return frames, fmt.Errorf("htf candles: %w", err)
	}
	return frames, nil
}

func (s *Supervisor) openPositions(ctx context.Context) ([]risk.OpenPosition, error) {
	cctx, cancel := context.WithTimeout(ctx, brokerCallTimeout)
	defer cancel()
	positions, err := s.Port.GetOpenPositions(cctx)
	if err != nil {
		return nil, err
	}
	out := make([]risk.OpenPosition, 0, len(positions))
	for _, p := range positions {
		qty, _ := p.Quantity.Float64()
		entry, _ := p.EntryPrice.Float64()
		out = append(out, risk.OpenPosition{
			Symbol: p.Symbol, Direction: p.Direction, Volume: qty,
			Entry: entry, OpenedAt: p.OpenedAt,
		})
	}
	return out, nil
}

func (s *Supervisor) analyzerConfig(sl *slot, pipSize float64) analyzer.Config {
	cfg := analyzer.DefaultConfig()
	if s.Cfg.SMC.SwingStrength > 0 {
		cfg.SwingStrength = s.Cfg.SMC.SwingStrength
	}
	if s.Cfg.SMC.EqualLevelPips > 0 {
		cfg.EqualLevelTolerance = s.Cfg.SMC.EqualLevelPips * pipSize
	}
	cfg.UTCOffsetMinutes = s.Cfg.Filters.Killzones.TimezoneOffset
	if sl.profile.MinFVGPips > 0 {
		cfg.MinGap = sl.profile.MinFVGPips * pipSize
	}
	if s.Cfg.SMC.EquilibriumBuffer > 0 {
		cfg.EquilibriumBuffer = s.Cfg.SMC.EquilibriumBuffer * pipSize
	}
	cfg.DetectFVG = sl.cfg.Strategies.FVGEntry
	cfg.DetectPDSweeps = sl.cfg.Strategies.PDHPDLSweep
	cfg.DetectAsianSweeps = sl.cfg.Strategies.AsianRangeSweep
	return cfg
}

func (s *Supervisor) scoreProfile(sl *slot, in candle.Instrument) score.Profile {
	p := score.DefaultProfile()
	p.KillzonesEnabled = s.Cfg.Filters.Killzones.Enabled
	p.AllowCounterTrend = sl.profile.AllowCounterTrend || s.Cfg.AdvancedFilters.AllowCounterTrend
	p.ForceLongOnly = sl.cfg.ForceLongOnly
	p.ForceShortOnly = sl.cfg.ForceShortOnly
	p.BlockMTFConflict = sl.cfg.BlockMTFConflict
	p.GoldenSetupOnly = sl.cfg.GoldenSetupOnly
	p.MinADX = s.Cfg.AdvancedFilters.MinADX
	p.ADXFilterEnabled = s.Cfg.AdvancedFilters.ADXEnabled
	p.MinRR = s.Cfg.Risk.MinRiskReward
	p.MinConfidenceScore = sl.profile.MinConfidenceScore
	if sl.cfg.MinConfidence > 0 {
		p.MinConfidenceScore = sl.cfg.MinConfidence
	}
	p.SpreadCapPips = sl.profile.SpreadCapPips
	p.IsCrypto = in.AssetClass == candle.AssetCrypto
	p.IsGoldOrIndex = in.AssetClass == candle.AssetCommodity || in.AssetClass == candle.AssetIndices
	p.PipSize = in.PipSize
	return p
}

func (s *Supervisor) journalDecision(snap analyzer.MarketSnapshot, sl *slot, dir candle.Direction, confidence float64, outcome string) {
	rec := journal.DecisionRecord{
		Timestamp:     snap.Timestamp,
		Symbol:        snap.Symbol,
		Stage:         string(sl.state.Stage),
		Direction:     dir,
		Confidence:    confidence,
		Outcome:       outcome,
		RSI:           snap.RSI,
		PDZone:        string(snap.PremiumDiscount.Label),
		HTFTrend:      snap.HTFTrend,
		LTFTrend:      snap.LTFTrend,
		SweepDetected: len(snap.Sweeps) > 0,
		SMTSignal:     snap.HasSMT,
		Session:       string(snap.Killzone),
	}
	if err := s.Journal.WriteDecision(rec); err != nil {
		s.Log.Warn().Err(err).Msg("decision journal write failed")
	}
	for _, n := range s.Notifiers {
		if dn, ok := n.(DecisionNotifier); ok {
			dn.SendDecision(rec)
		}
	}
}

func (s *Supervisor) writeTrade(rec journal.TradeRecord) {
	if err := s.Journal.WriteTrade(rec); err != nil {
		s.Log.Warn().Err(err).Msg("trade journal write failed")
	}
	for _, n := range s.Notifiers {
		n.SendTrade(rec)
	}
}

func (s *Supervisor) slot(symbol string) *slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[symbol]
}

// StatusReport renders a human-readable state summary for the Telegram
// /status command.
func (s *Supervisor) StatusReport() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := "📊 Sentinel status\n"
	if s.Halted() {
		out += "🛑 kill switch ACTIVE\n"
	}
	for name, sl := range s.slots {
		line := fmt.Sprintf("• %s: stage %s", name, sl.state.Stage)
		if sl.open != nil {
			line += fmt.Sprintf(", open %s %s @ %s", sl.open.Direction, sl.open.RemainingQty, sl.open.Entry)
		}
		out += line + "\n"
	}
	return out
}

func rewardRisk(sig score.Signal) float64 {
	riskDist := sig.Entry - sig.SL
	reward := sig.TP - sig.Entry
	if sig.Direction == candle.Sell {
		riskDist = sig.SL - sig.Entry
		reward = sig.Entry - sig.TP
	}
	if riskDist <= 0 {
		return 0
	}
	return reward / riskDist
}

func vetoRule(err error) string {
	var v *score.VetoError
	if errors.As(err, &v) {
		return v.Rule
	}
	return err.Error()
}

func isJPYQuoted(symbol string) bool {
	return len(symbol) >= 3 && symbol[len(symbol)-3:] == "JPY"
}
