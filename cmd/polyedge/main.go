package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/polyedge/config"
	"github.com/alejandrodnm/polyedge/internal/decision"
	"github.com/alejandrodnm/polyedge/internal/ev"
	"github.com/alejandrodnm/polyedge/internal/learner"
	"github.com/alejandrodnm/polyedge/internal/mode"
	"github.com/alejandrodnm/polyedge/internal/position"
	"github.com/alejandrodnm/polyedge/internal/risk"
	"github.com/alejandrodnm/polyedge/internal/scavenger"
	"github.com/alejandrodnm/polyedge/internal/strategy"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	detect := flag.Bool("detect", false, "run one detection pass and exit (no orders)")
	dryRun := flag.Bool("dry-run", false, "run the full loop but never submit orders")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full opportunity + position tables")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("polyedge starting",
		"config", *configPath,
		"interval", cfg.ScanInterval(),
		"detect", *detect,
		"dry_run", *dryRun || cfg.Engine.DryRun,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *detect {
		runDetect(ctx, cfg, *table)
		return
	}

	runLive(ctx, cfg, *dryRun || cfg.Engine.DryRun, *table)
}

// core bundles the pure trading components — everything between the
// market-data provider and the executor.
type core struct {
	detector  *strategy.Detector
	risk      *risk.Manager
	decisions *decision.Engine
	ev        *ev.Tracker
	learner   *learner.Learner
	positions *position.Tracker
	modes     *mode.Machine
	scavenger *scavenger.Policy
}

func buildCore(cfg *config.Config, now time.Time) core {
	riskMgr := risk.NewManager(risk.Config{
		MaxWalletExposureUSD:   cfg.Risk.MaxWalletExposureUSD,
		MaxMarketExposureUSD:   cfg.Risk.MaxMarketExposureUSD,
		MinNotionalUSD:         cfg.Risk.MinNotionalUSD,
		MaxSubmissionsPerHour:  cfg.Risk.MaxSubmissionsPerHour,
		FailureCooldown:        seconds(cfg.Risk.FailureCooldownSecs),
		MarketReentryCooldown:  seconds(cfg.Risk.MarketReentrySecs),
		BlockCooldown:          seconds(cfg.Risk.BlockCooldownSecs),
		AuthCooldown:           seconds(cfg.Risk.AuthCooldownSecs),
		MaxConsecutiveFailures: cfg.Risk.MaxConsecutiveFailures,
		CircuitCooldown:        seconds(cfg.Risk.CircuitCooldownSecs),
		MinCollateralUSD:       cfg.Risk.MinCollateralUSD,
	})

	learn := learner.New(learner.Config{
		MaxConsecutiveLosses: cfg.Learner.MaxConsecutiveLosses,
		AvoidDuration:        time.Duration(cfg.Learner.AvoidMinutes) * time.Minute,
		MinTradesForSuggest:  cfg.Learner.MinTradesForSuggest,
	})

	evt := ev.NewTracker(ev.Config{
		WindowSize:      cfg.EV.WindowSize,
		MinTrades:       cfg.EV.MinTrades,
		MinEVCents:      cfg.EV.MinEVCents,
		MinProfitFactor: cfg.EV.MinProfitFactor,
		PauseDuration:   time.Duration(cfg.EV.PauseMinutes) * time.Minute,
		ChurnCostCents:  cfg.EV.ChurnCostCents,
	})

	return core{
		detector: strategy.NewDetector(strategy.Config{
			MinEdgeBps:         cfg.Strategy.MinEdgeBps,
			MinLiquidityUSD:    cfg.Strategy.MinLiquidityUSD,
			MaxSpreadBps:       cfg.Strategy.MaxSpreadBps,
			MinProfitUSD:       cfg.Strategy.MinProfitUSD,
			FeeBps:             cfg.Strategy.FeeBps,
			SlippageBps:        cfg.Strategy.SlippageBps,
			AutoNormalizeUnits: cfg.Strategy.AutoNormalizeUnits,
			Curve:              strategy.SizingCurve(cfg.Strategy.SizeCurve),
			SizeFraction:       cfg.Strategy.SizeFraction,
			MaxSizeUSD:         cfg.Strategy.MaxSizeUSD,
		}, riskMgr, learn),
		risk: riskMgr,
		decisions: decision.New(decision.Config{
			MinEntryPriceCents:  cfg.Decision.MinEntryPriceCents,
			MaxEntryPriceCents:  cfg.Decision.MaxEntryPriceCents,
			MaxSpreadCents:      cfg.Decision.MaxSpreadCents,
			MinDepthUSD:         cfg.Decision.MinDepthUSD,
			MaxOpenPositions:    cfg.Decision.MaxOpenPositions,
			MaxPerMarket:        cfg.Decision.MaxPerMarket,
			MaxDeployedFraction: cfg.Decision.MaxDeployedFraction,
			TradeFraction:       cfg.Decision.TradeFraction,
			MaxTradeUSD:         cfg.Decision.MaxTradeUSD,
			MinTradeUSD:         cfg.Decision.MinTradeUSD,
			MaxAdverseCents:     cfg.Decision.MaxAdverseCents,
			TPCents:             cfg.Decision.TakeProfitCents,
			MaxHold:             seconds(cfg.Decision.MaxHoldSeconds),
			HedgeTriggerCents:   cfg.Decision.HedgeTriggerCents,
			HedgeRatio:          cfg.Decision.HedgeRatio,
			MaxHedgeRatio:       cfg.Decision.MaxHedgeRatio,
			SevereLossCents:     cfg.Decision.SevereLossCents,
			PreferredPriceCents: cfg.Decision.PreferredPriceCents,
			PriceZoneWidthCents: cfg.Decision.PriceZoneWidthCents,
			WeightPrice:         cfg.Decision.WeightPrice,
			WeightSpread:        cfg.Decision.WeightSpread,
			WeightActivity:      cfg.Decision.WeightActivity,
		}, evt),
		ev:      evt,
		learner: learn,
		positions: position.NewTracker(position.Config{
			DustThresholdUSD: cfg.Position.DustThresholdUSD,
			StaleAfter:       seconds(cfg.Position.StaleAfterSecs),
		}),
		modes: mode.NewMachine(mode.Config{
			LowVolumeUSD:     cfg.Mode.LowVolumeUSD,
			ThinBookUSD:      cfg.Mode.ThinBookUSD,
			FewTraders:       cfg.Mode.FewTraders,
			MinSignals:       cfg.Mode.MinSignals,
			SustainedEnter:   seconds(cfg.Mode.SustainedSecs),
			RecoverVolumeUSD: cfg.Mode.RecoverVolumeUSD,
			RecoverDepthUSD:  cfg.Mode.RecoverDepthUSD,
			RecoverTraders:   cfg.Mode.RecoverTraders,
			SustainedRecover: seconds(cfg.Mode.RecoverSecs),
		}, now),
		scavenger: scavenger.NewPolicy(scavenger.Config{
			MinProfitPct:      cfg.Scavenger.MinProfitPct,
			MinProfitUSD:      cfg.Scavenger.MinProfitUSD,
			StallWindow:       seconds(cfg.Scavenger.StallWindowSecs),
			RecoveryProfitPct: cfg.Scavenger.RecoveryProfitPct,
			MicroBuyEnabled:   cfg.Scavenger.MicroBuyEnabled,
			MaxPositions:      cfg.Scavenger.MaxPositions,
			MaxDeployedUSD:    cfg.Scavenger.MaxDeployedUSD,
			PerTradeCapUSD:    cfg.Scavenger.PerTradeCapUSD,
			CapitalFraction:   cfg.Scavenger.CapitalFraction,
			MinOrderUSD:       cfg.Scavenger.MinOrderUSD,
			ReentryCooldown:   seconds(cfg.Scavenger.ReentryCooldownSec),
		}),
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
