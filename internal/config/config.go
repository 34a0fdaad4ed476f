// Package config loads the engine's layered configuration: secrets from
// the environment (.env via godotenv, the teacher's config/loader.go
// pattern), the main config.yaml, and the per-asset-class overrides in
// asset_profiles.yaml.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Mode selects who drives the cycle cadence and whether orders are real.
type Mode string

const (
	ModeLive     Mode = "live"
	ModePaper    Mode = "paper"
	ModeBacktest Mode = "backtest"
	ModeVisual   Mode = "visual"
)

// Secrets holds credentials pulled from the environment, never from
// YAML.
type Secrets struct {
	BinanceAPIKey    string
	BinanceAPISecret string
	TelegramToken    string
	FirebaseCredFile string
	ConfirmLiveMode  bool
}

// LoadSecrets reads .env (if present) and the environment.
func LoadSecrets() Secrets {
	_ = godotenv.Load()

	apiSecret := os.Getenv("BINANCE_API_SECRET")
	if apiSecret == "" {
		apiSecret = os.Getenv("BINANCE_SECRET_KEY")
	}
	confirm, _ := strconv.ParseBool(os.Getenv("CONFIRM_LIVE_MODE"))
	return Secrets{
		BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret: apiSecret,
		TelegramToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		FirebaseCredFile: os.Getenv("FIREBASE_CREDENTIALS_FILE"),
		ConfirmLiveMode:  confirm,
	}
}

// StrategyToggles enables/disables individual setup detectors per symbol.
type StrategyToggles struct {
	PDHPDLSweep    bool `yaml:"pdh_pdl_sweep"`
	AsianRangeSweep bool `yaml:"asian_range_sweep"`
	FVGEntry       bool `yaml:"fvg_entry"`
	SilverBullet   bool `yaml:"silver_bullet"`
	AMD            bool `yaml:"amd"`
	SMT            bool `yaml:"smt"`
}

// SymbolConfig is one symbols[] entry of §6.
type SymbolConfig struct {
	Name               string          `yaml:"name"`
	Enabled            bool            `yaml:"enabled"`
	AssetClass         string          `yaml:"asset_class"`
	Strategies         StrategyToggles `yaml:"strategies"`
	ConfluenceRequired int             `yaml:"confluence_required"`
	MinConfidence      float64         `yaml:"min_confidence"`
	RiskPercent        float64         `yaml:"risk_percent"` // 0 = use global
	MaxLots            float64         `yaml:"max_lots"`
	ForceLongOnly      bool            `yaml:"force_long_only"`
	ForceShortOnly     bool            `yaml:"force_short_only"`
	BlockMTFConflict   bool            `yaml:"block_mtf_conflict"`
	GoldenSetupOnly    bool            `yaml:"golden_setup_only"`
	SMTPair            string          `yaml:"smt_pair"`
}

// SMCConfig carries the detector parameters of §6 smc.*.
type SMCConfig struct {
	SwingStrength        int     `yaml:"swing_strength"`
	MinImpulsePips       float64 `yaml:"min_impulse_pips"`
	MinImbalanceRatio    float64 `yaml:"min_imbalance_ratio"`
	MinGapPips           float64 `yaml:"min_gap_pips"`
	MaxAgeBars           int     `yaml:"max_age_bars"`
	EqualLevelPips       float64 `yaml:"equal_level_pips"`
	EquilibriumBuffer    float64 `yaml:"equilibrium_buffer"`
	AsianConfirmMinutes  int     `yaml:"asian_confirm_window_minutes"`
	ExpirationBars       int     `yaml:"expiration_bars"`
}

// CorrelationGuardConfig is the risk.correlation_guard.* subtree.
type CorrelationGuardConfig struct {
	MaxExposurePerCurrency float64 `yaml:"max_exposure_per_currency"`
	MaxPositionsPerGroup   int     `yaml:"max_positions_per_group"`
}

// RiskConfig is the risk.* subtree of §6.
type RiskConfig struct {
	RiskPerTrade            float64                `yaml:"risk_per_trade"`
	UseFixedLot             bool                   `yaml:"use_fixed_lot"`
	FixedLotSize            float64                `yaml:"fixed_lot_size"`
	MaxDailyLossPercent     float64                `yaml:"max_daily_loss"`
	MaxTradesPerDay         int                    `yaml:"max_trades_per_day"`
	MaxOpenTrades           int                    `yaml:"max_open_trades"`
	MinRiskReward           float64                `yaml:"min_risk_reward"`
	CooldownSameSymbolSecs  int                    `yaml:"cooldown_same_symbol_seconds"`
	MinStackingTimeSecs     int                    `yaml:"min_stacking_time_seconds"`
	MinStackingDistancePips float64                `yaml:"min_stacking_distance_pips"`
	LunchBreakFilter        bool                   `yaml:"lunch_break_filter"`
	ImpulsiveRegimeFilter   bool                   `yaml:"impulsive_regime_filter"`
	CorrelationGuard        CorrelationGuardConfig `yaml:"correlation_guard"`
}

// FiltersConfig is the filters.* subtree of §6.
type FiltersConfig struct {
	Killzones struct {
		Enabled        bool `yaml:"enabled"`
		TimezoneOffset int  `yaml:"timezone_offset"`
	} `yaml:"killzones"`
	News struct {
		Enabled          bool `yaml:"enabled"`
		PauseBefore      int  `yaml:"pause_before"`
		EmergencyExit    bool `yaml:"emergency_exit"`
		ExitMinutesBefore int `yaml:"exit_minutes_before"`
	} `yaml:"news"`
}

// AdvancedFilters is the advanced_filters.* subtree of §6.
type AdvancedFilters struct {
	ADXEnabled         bool    `yaml:"adx_enabled"`
	MinADX             float64 `yaml:"min_adx"`
	AllowCounterTrend  bool    `yaml:"allow_counter_trend"`
	HTFAlignmentWeight float64 `yaml:"htf_alignment_weight"`
	LTFAlignmentWeight float64 `yaml:"ltf_alignment_weight"`
}

// AssetProfile carries the per-asset-class overrides from
// asset_profiles.yaml.
type AssetProfile struct {
	Lookback           int     `yaml:"lookback"`
	MinWickRatio       float64 `yaml:"min_wick_ratio"`
	MinFVGPips         float64 `yaml:"min_fvg_pips"`
	AllowCounterTrend  bool    `yaml:"allow_counter_trend"`
	MinConfidenceScore float64 `yaml:"min_confidence_score"`
	SLMultiplier       float64 `yaml:"sl_multiplier"`
	SpreadCapPips      float64 `yaml:"spread_cap_pips"`
	MaxSlippagePips    float64 `yaml:"max_slippage_pips"`
	BreakEvenTriggerR  float64 `yaml:"break_even_trigger_rr"`
}

// Config is the full parsed configuration surface.
type Config struct {
	General struct {
		Mode       Mode   `yaml:"mode"`
		JournalDir string `yaml:"journal_dir"`
		CooldownFile string `yaml:"cooldown_file"`
		StatusAddr string `yaml:"status_addr"` // empty disables the HTTP endpoint
	} `yaml:"general"`
	Timeframes struct {
		LTF string `yaml:"ltf"`
		MTF string `yaml:"mtf"`
		HTF string `yaml:"htf"`
	} `yaml:"timeframes"`
	Symbols         []SymbolConfig  `yaml:"symbols"`
	SMC             SMCConfig       `yaml:"smc"`
	Risk            RiskConfig      `yaml:"risk"`
	Filters         FiltersConfig   `yaml:"filters"`
	AdvancedFilters AdvancedFilters `yaml:"advanced_filters"`

	Profiles map[string]AssetProfile `yaml:"-"`
}

// Default returns the spec's documented defaults; Load merges the YAML
// file over it.
func Default() Config {
	var c Config
	c.General.Mode = ModePaper
	c.General.JournalDir = "journal"
	c.General.CooldownFile = "last_trades.json"
	c.Timeframes.LTF = "15m"
	c.Timeframes.MTF = "1h"
	c.Timeframes.HTF = "4h"
	c.SMC = SMCConfig{
		SwingStrength:     5,
		MinImbalanceRatio: 0.6,
		MinGapPips:        1.0,
		MaxAgeBars:        100,
		EqualLevelPips:    3.0,
		EquilibriumBuffer: 5.0,
		ExpirationBars:    60,
	}
	c.Risk = RiskConfig{
		RiskPerTrade:            1.0,
		MaxDailyLossPercent:     2.0,
		MaxTradesPerDay:         10,
		MaxOpenTrades:           5,
		MinRiskReward:           2.0,
		CooldownSameSymbolSecs:  60,
		MinStackingTimeSecs:     300,
		MinStackingDistancePips: 15,
		ImpulsiveRegimeFilter:   true,
		CorrelationGuard: CorrelationGuardConfig{
			MaxExposurePerCurrency: 0.15,
			MaxPositionsPerGroup:   2,
		},
	}
	c.Filters.Killzones.Enabled = true
	c.Filters.News.ExitMinutesBefore = 15
	c.AdvancedFilters = AdvancedFilters{
		ADXEnabled:         true,
		MinADX:             25,
		HTFAlignmentWeight: 40,
		LTFAlignmentWeight: 15,
	}
	c.Profiles = DefaultProfiles()
	return c
}

// DefaultProfiles returns the built-in asset-class profiles, used when
// asset_profiles.yaml is absent.
func DefaultProfiles() map[string]AssetProfile {
	return map[string]AssetProfile{
		"forex_major": {Lookback: 100, MinFVGPips: 1.0, MinConfidenceScore: 70, SLMultiplier: 1.0, SpreadCapPips: 5, MaxSlippagePips: 5, BreakEvenTriggerR: 1.5},
		"crypto":      {Lookback: 150, MinFVGPips: 5.0, AllowCounterTrend: true, MinConfidenceScore: 65, SLMultiplier: 1.5, SpreadCapPips: 5000, MaxSlippagePips: 1000, BreakEvenTriggerR: 1.0},
		"commodity":   {Lookback: 100, MinFVGPips: 3.0, MinConfidenceScore: 72, SLMultiplier: 1.5, SpreadCapPips: 8, MaxSlippagePips: 10, BreakEvenTriggerR: 1.5},
		"indices":     {Lookback: 100, MinFVGPips: 5.0, MinConfidenceScore: 72, SLMultiplier: 1.2, SpreadCapPips: 10, MaxSlippagePips: 10, BreakEvenTriggerR: 1.5},
	}
}

// Load parses path over the defaults and validates the result. A second
// file, profilesPath, overrides the asset-class profiles when non-empty
// and present on disk.
func Load(path, profilesPath string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if profilesPath != "" {
		if pdata, err := os.ReadFile(profilesPath); err == nil {
			profiles := map[string]AssetProfile{}
			if err := yaml.Unmarshal(pdata, &profiles); err != nil {
				return cfg, fmt.Errorf("config: parse %s: %w", profilesPath, err)
			}
			for k, v := range profiles {
				cfg.Profiles[k] = v
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate enforces the fatal-at-startup configuration invariants (§7
// ConfigurationError).
func (c Config) Validate() error {
	switch c.General.Mode {
	case ModeLive, ModePaper, ModeBacktest, ModeVisual:
	default:
		return fmt.Errorf("config: unknown mode %q", c.General.Mode)
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("config: no symbols configured")
	}
	seen := map[string]bool{}
	for _, s := range c.Symbols {
		if s.Name == "" {
			return fmt.Errorf("config: symbol with empty name")
		}
		if seen[s.Name] {
			return fmt.Errorf("config: duplicate symbol %s", s.Name)
		}
		seen[s.Name] = true
	}
	if c.Risk.RiskPerTrade <= 0 || c.Risk.RiskPerTrade > 5 {
		return fmt.Errorf("config: risk_per_trade %.2f out of (0, 5]", c.Risk.RiskPerTrade)
	}
	if c.Risk.MinRiskReward < 1 {
		return fmt.Errorf("config: min_risk_reward %.2f below 1", c.Risk.MinRiskReward)
	}
	return nil
}

// ProfileFor resolves the asset-class profile for a symbol entry,
// falling back to forex_major when the class is unknown.
func (c Config) ProfileFor(s SymbolConfig) AssetProfile {
	if p, ok := c.Profiles[s.AssetClass]; ok {
		return p
	}
	return c.Profiles["forex_major"]
}

// CheckSafety enforces the startup safety gates of §7 SafetyViolation:
// live mode requires the CONFIRM_LIVE_MODE environment confirmation and
// a full credential set.
func CheckSafety(cfg Config, sec Secrets) error {
	if cfg.General.Mode != ModeLive {
		return nil
	}
	if !sec.ConfirmLiveMode {
		return fmt.Errorf("safety: live mode requires CONFIRM_LIVE_MODE=true")
	}
	if sec.BinanceAPIKey == "" || sec.BinanceAPISecret == "" {
		return fmt.Errorf("safety: live mode requires broker credentials")
	}
	if cfg.Risk.RiskPerTrade > 2.0 {
		return fmt.Errorf("safety: live risk_per_trade %.2f above hard cap 2.0", cfg.Risk.RiskPerTrade)
	}
	return nil
}
