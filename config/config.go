// Package config loads and validates the engine configuration from a
// YAML file, with .env overrides for secrets and log settings.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	API       APIConfig       `yaml:"api"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Risk      RiskConfig      `yaml:"risk"`
	Decision  DecisionConfig  `yaml:"decision"`
	EV        EVConfig        `yaml:"ev"`
	Learner   LearnerConfig   `yaml:"learner"`
	Position  PositionConfig  `yaml:"position"`
	Mode      ModeConfig      `yaml:"mode"`
	Scavenger ScavengerConfig `yaml:"scavenger"`
	Storage   StorageConfig   `yaml:"storage"`
	Notify    NotifyConfig    `yaml:"notify"`
	Log       LogConfig       `yaml:"log"`
}

// EngineConfig controls the scan loop.
type EngineConfig struct {
	IntervalSeconds int    `yaml:"interval_seconds"`
	BookConcurrency int    `yaml:"book_concurrency"`
	DryRun          bool   `yaml:"dry_run"`
	KillSwitchPath  string `yaml:"kill_switch_path"`
	JournalPath     string `yaml:"journal_path"`
}

// APIConfig holds the exchange endpoints and client rate limits.
type APIConfig struct {
	CLOBBase         string `yaml:"clob_base"`
	GammaBase        string `yaml:"gamma_base"`
	StreamURL        string `yaml:"stream_url"`
	RequestsPerSec   int    `yaml:"requests_per_sec"`
	BurstSize        int    `yaml:"burst_size"`
	RetryAttempts    int    `yaml:"retry_attempts"`
	RetryBaseMs      int    `yaml:"retry_base_ms"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
	BookCacheTTLSecs int    `yaml:"book_cache_ttl_seconds"`
}

// StrategyConfig controls opportunity detection.
type StrategyConfig struct {
	MinEdgeBps         float64 `yaml:"min_edge_bps"`
	MinLiquidityUSD    float64 `yaml:"min_liquidity_usd"`
	MaxSpreadBps       float64 `yaml:"max_spread_bps"`
	MinProfitUSD       float64 `yaml:"min_profit_usd"`
	FeeBps             float64 `yaml:"fee_bps"`
	SlippageBps        float64 `yaml:"slippage_bps"`
	AutoNormalizeUnits bool    `yaml:"auto_normalize_units"`
	SizeCurve          string  `yaml:"size_curve"` // linear | sqrt | log
	SizeFraction       float64 `yaml:"size_fraction"`
	MaxSizeUSD         float64 `yaml:"max_size_usd"`
}

// RiskConfig controls the pre-trade gate and failure guards.
type RiskConfig struct {
	MaxWalletExposureUSD    float64 `yaml:"max_wallet_exposure_usd"`
	MaxMarketExposureUSD    float64 `yaml:"max_market_exposure_usd"`
	MinNotionalUSD          float64 `yaml:"min_notional_usd"`
	MinCollateralUSD        float64 `yaml:"min_collateral_usd"`
	MaxSubmissionsPerHour   int     `yaml:"max_submissions_per_hour"`
	FailureCooldownSecs     int     `yaml:"failure_cooldown_seconds"`
	MarketReentrySecs       int     `yaml:"market_reentry_seconds"`
	BlockCooldownSecs       int     `yaml:"block_cooldown_seconds"`
	AuthCooldownSecs        int     `yaml:"auth_cooldown_seconds"`
	MaxConsecutiveFailures  int     `yaml:"max_consecutive_failures"`
	CircuitCooldownSecs     int     `yaml:"circuit_cooldown_seconds"`
}

// DecisionConfig controls entry, exit, and hedge timing.
type DecisionConfig struct {
	MinEntryPriceCents  float64 `yaml:"min_entry_price_cents"`
	MaxEntryPriceCents  float64 `yaml:"max_entry_price_cents"`
	MaxSpreadCents      float64 `yaml:"max_spread_cents"`
	MinDepthUSD         float64 `yaml:"min_depth_usd"`
	MaxOpenPositions    int     `yaml:"max_open_positions"`
	MaxPerMarket        int     `yaml:"max_per_market"`
	MaxDeployedFraction float64 `yaml:"max_deployed_fraction"`
	TradeFraction       float64 `yaml:"trade_fraction"`
	MaxTradeUSD         float64 `yaml:"max_trade_usd"`
	MinTradeUSD         float64 `yaml:"min_trade_usd"`
	MaxAdverseCents     float64 `yaml:"max_adverse_cents"`
	TakeProfitCents     float64 `yaml:"take_profit_cents"`
	MaxHoldSeconds      int     `yaml:"max_hold_seconds"`
	HedgeTriggerCents   float64 `yaml:"hedge_trigger_cents"`
	HedgeRatio          float64 `yaml:"hedge_ratio"`
	MaxHedgeRatio       float64 `yaml:"max_hedge_ratio"`
	SevereLossCents     float64 `yaml:"severe_loss_cents"`
	PreferredPriceCents float64 `yaml:"preferred_price_cents"`
	PriceZoneWidthCents float64 `yaml:"price_zone_width_cents"`
	WeightPrice         float64 `yaml:"weight_price"`
	WeightSpread        float64 `yaml:"weight_spread"`
	WeightActivity      float64 `yaml:"weight_activity"`
}

// EVConfig controls the rolling expectancy tracker.
type EVConfig struct {
	WindowSize      int     `yaml:"window_size"`
	MinTrades       int     `yaml:"min_trades"`
	MinEVCents      float64 `yaml:"min_ev_cents"`
	MinProfitFactor float64 `yaml:"min_profit_factor"`
	PauseMinutes    int     `yaml:"pause_minutes"`
	ChurnCostCents  float64 `yaml:"churn_cost_cents"`
}

// LearnerConfig controls the adaptive per-market learner.
type LearnerConfig struct {
	MaxConsecutiveLosses int `yaml:"max_consecutive_losses"`
	AvoidMinutes         int `yaml:"avoid_minutes"`
	MinTradesForSuggest  int `yaml:"min_trades_for_suggest"`
}

// PositionConfig controls position tracking.
type PositionConfig struct {
	DustThresholdUSD float64 `yaml:"dust_threshold_usd"`
	StaleAfterSecs   int     `yaml:"stale_after_seconds"`
}

// ModeConfig controls the NORMAL⇄SCAVENGER transition signals.
type ModeConfig struct {
	LowVolumeUSD     float64 `yaml:"low_volume_usd"`
	ThinBookUSD      float64 `yaml:"thin_book_usd"`
	FewTraders       int     `yaml:"few_traders"`
	MinSignals       int     `yaml:"min_signals"`
	SustainedSecs    int     `yaml:"sustained_seconds"`
	RecoverVolumeUSD float64 `yaml:"recover_volume_usd"`
	RecoverDepthUSD  float64 `yaml:"recover_depth_usd"`
	RecoverTraders   int     `yaml:"recover_traders"`
	RecoverSecs      int     `yaml:"recover_seconds"`
}

// ScavengerConfig controls the low-activity trading policy.
type ScavengerConfig struct {
	MinProfitPct       float64 `yaml:"min_profit_pct"`
	MinProfitUSD       float64 `yaml:"min_profit_usd"`
	StallWindowSecs    int     `yaml:"stall_window_seconds"`
	RecoveryProfitPct  float64 `yaml:"recovery_profit_pct"`
	MicroBuyEnabled    bool    `yaml:"micro_buy_enabled"`
	MaxPositions       int     `yaml:"max_positions"`
	MaxDeployedUSD     float64 `yaml:"max_deployed_usd"`
	PerTradeCapUSD     float64 `yaml:"per_trade_cap_usd"`
	CapitalFraction    float64 `yaml:"capital_fraction"`
	MinOrderUSD        float64 `yaml:"min_order_usd"`
	ReentryCooldownSec int     `yaml:"reentry_cooldown_seconds"`
}

// StorageConfig controls persistence.
type StorageConfig struct {
	DSN           string `yaml:"dsn"` // SQLite file path, or ":memory:"
	RetentionDays int    `yaml:"retention_days"`
}

// NotifyConfig controls cycle and alert notifications.
type NotifyConfig struct {
	Console        bool   `yaml:"console"`
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`
}

// LogConfig controls logging format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML file and the .env file if present. Env values
// override YAML for the keys they cover.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// ScanInterval returns the scan loop interval as a time.Duration.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Engine.IntervalSeconds) * time.Second
}

// Validate rejects configurations that would make the engine misbehave
// silently.
func (c *Config) Validate() error {
	switch {
	case c.Strategy.MinEdgeBps < 0:
		return fmt.Errorf("strategy.min_edge_bps must be >= 0, got %.0f", c.Strategy.MinEdgeBps)
	case c.Decision.MinEntryPriceCents >= c.Decision.MaxEntryPriceCents:
		return fmt.Errorf("decision price bounds inverted: [%.0f, %.0f]",
			c.Decision.MinEntryPriceCents, c.Decision.MaxEntryPriceCents)
	case c.Decision.MaxHedgeRatio < c.Decision.HedgeRatio:
		return fmt.Errorf("decision.max_hedge_ratio %.2f below hedge_ratio %.2f",
			c.Decision.MaxHedgeRatio, c.Decision.HedgeRatio)
	case c.Decision.TradeFraction <= 0 || c.Decision.TradeFraction > 1:
		return fmt.Errorf("decision.trade_fraction must be in (0, 1], got %.2f", c.Decision.TradeFraction)
	case c.Risk.MaxWalletExposureUSD < c.Risk.MaxMarketExposureUSD:
		return fmt.Errorf("risk.max_wallet_exposure_usd %.0f below max_market_exposure_usd %.0f",
			c.Risk.MaxWalletExposureUSD, c.Risk.MaxMarketExposureUSD)
	case c.Scavenger.CapitalFraction <= 0 || c.Scavenger.CapitalFraction > 1:
		return fmt.Errorf("scavenger.capital_fraction must be in (0, 1], got %.2f", c.Scavenger.CapitalFraction)
	case c.Mode.MinSignals < 1 || c.Mode.MinSignals > 3:
		return fmt.Errorf("mode.min_signals must be 1..3, got %d", c.Mode.MinSignals)
	}
	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == 0 {
		return fmt.Errorf("notify.telegram_chat_id required when telegram_token is set")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		cfg.Notify.TelegramToken = v
	}
	if v := os.Getenv("POLYEDGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Engine.IntervalSeconds <= 0 {
		cfg.Engine.IntervalSeconds = 30
	}
	if cfg.Engine.BookConcurrency <= 0 {
		cfg.Engine.BookConcurrency = 6
	}
	if cfg.Engine.KillSwitchPath == "" {
		cfg.Engine.KillSwitchPath = "STOP"
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.API.RequestsPerSec <= 0 {
		cfg.API.RequestsPerSec = 8
	}
	if cfg.API.BurstSize <= 0 {
		cfg.API.BurstSize = 4
	}
	if cfg.API.RetryAttempts <= 0 {
		cfg.API.RetryAttempts = 3
	}
	if cfg.API.RetryBaseMs <= 0 {
		cfg.API.RetryBaseMs = 250
	}
	if cfg.API.TimeoutSeconds <= 0 {
		cfg.API.TimeoutSeconds = 10
	}
	if cfg.API.BookCacheTTLSecs <= 0 {
		cfg.API.BookCacheTTLSecs = 5
	}
	if cfg.Strategy.MinEdgeBps <= 0 {
		cfg.Strategy.MinEdgeBps = 300
	}
	if cfg.Strategy.MinLiquidityUSD <= 0 {
		cfg.Strategy.MinLiquidityUSD = 1000
	}
	if cfg.Strategy.MaxSpreadBps <= 0 {
		cfg.Strategy.MaxSpreadBps = 500
	}
	if cfg.Strategy.SizeCurve == "" {
		cfg.Strategy.SizeCurve = "linear"
	}
	if cfg.Strategy.SizeFraction <= 0 {
		cfg.Strategy.SizeFraction = 0.05
	}
	if cfg.Strategy.MaxSizeUSD <= 0 {
		cfg.Strategy.MaxSizeUSD = 100
	}
	if cfg.Risk.MaxSubmissionsPerHour <= 0 {
		cfg.Risk.MaxSubmissionsPerHour = 30
	}
	if cfg.Risk.FailureCooldownSecs <= 0 {
		cfg.Risk.FailureCooldownSecs = 120
	}
	if cfg.Risk.MarketReentrySecs <= 0 {
		cfg.Risk.MarketReentrySecs = 300
	}
	if cfg.Risk.BlockCooldownSecs <= 0 {
		cfg.Risk.BlockCooldownSecs = 900
	}
	if cfg.Risk.AuthCooldownSecs <= 0 {
		cfg.Risk.AuthCooldownSecs = 3600
	}
	if cfg.Risk.MaxConsecutiveFailures <= 0 {
		cfg.Risk.MaxConsecutiveFailures = 5
	}
	if cfg.Risk.CircuitCooldownSecs <= 0 {
		cfg.Risk.CircuitCooldownSecs = 1800
	}
	if cfg.Decision.MaxEntryPriceCents <= 0 {
		cfg.Decision.MinEntryPriceCents = 15
		cfg.Decision.MaxEntryPriceCents = 85
	}
	if cfg.Decision.TradeFraction <= 0 {
		cfg.Decision.TradeFraction = 0.05
	}
	if cfg.Decision.MaxOpenPositions <= 0 {
		cfg.Decision.MaxOpenPositions = 5
	}
	if cfg.Decision.MaxPerMarket <= 0 {
		cfg.Decision.MaxPerMarket = 1
	}
	if cfg.Decision.MaxDeployedFraction <= 0 {
		cfg.Decision.MaxDeployedFraction = 0.5
	}
	if cfg.Decision.SevereLossCents <= 0 {
		cfg.Decision.SevereLossCents = cfg.Decision.HedgeTriggerCents
	}
	if cfg.EV.WindowSize <= 0 {
		cfg.EV.WindowSize = 20
	}
	if cfg.EV.MinTrades <= 0 {
		cfg.EV.MinTrades = 8
	}
	if cfg.EV.PauseMinutes <= 0 {
		cfg.EV.PauseMinutes = 60
	}
	if cfg.Learner.MaxConsecutiveLosses <= 0 {
		cfg.Learner.MaxConsecutiveLosses = 3
	}
	if cfg.Learner.AvoidMinutes <= 0 {
		cfg.Learner.AvoidMinutes = 240
	}
	if cfg.Learner.MinTradesForSuggest <= 0 {
		cfg.Learner.MinTradesForSuggest = 10
	}
	if cfg.Position.DustThresholdUSD <= 0 {
		cfg.Position.DustThresholdUSD = 1
	}
	if cfg.Position.StaleAfterSecs <= 0 {
		cfg.Position.StaleAfterSecs = 120
	}
	if cfg.Mode.MinSignals <= 0 {
		cfg.Mode.MinSignals = 2
	}
	if cfg.Mode.SustainedSecs <= 0 {
		cfg.Mode.SustainedSecs = 600
	}
	if cfg.Mode.RecoverSecs <= 0 {
		cfg.Mode.RecoverSecs = 300
	}
	if cfg.Scavenger.CapitalFraction <= 0 {
		cfg.Scavenger.CapitalFraction = 0.1
	}
	if cfg.Scavenger.MaxPositions <= 0 {
		cfg.Scavenger.MaxPositions = 3
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polyedge.db"
	}
	if cfg.Storage.RetentionDays <= 0 {
		cfg.Storage.RetentionDays = 30
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
