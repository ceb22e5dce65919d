package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alejandrodnm/polyedge/config"
	"github.com/alejandrodnm/polyedge/internal/adapters/notify"
	"github.com/alejandrodnm/polyedge/internal/adapters/polymarket"
	"github.com/alejandrodnm/polyedge/internal/adapters/storage"
	"github.com/alejandrodnm/polyedge/internal/adapters/stream"
	"github.com/alejandrodnm/polyedge/internal/engine"
	"github.com/alejandrodnm/polyedge/internal/flight"
	"github.com/alejandrodnm/polyedge/internal/journal"
	"github.com/alejandrodnm/polyedge/internal/ports"
)

func runLive(ctx context.Context, cfg *config.Config, dryRun, table bool) {
	apiKey := os.Getenv("POLYMARKET_API_KEY")
	if !dryRun && apiKey == "" {
		slog.Warn("POLYMARKET_API_KEY not set, falling back to dry run")
		dryRun = true
	}

	if !dryRun {
		fmt.Printf("\n⚠️  LIVE TRADING MODE — REAL MONEY WILL BE SPENT\n")
		fmt.Printf("   Wallet cap: $%.2f | Per-market cap: $%.2f\n",
			cfg.Risk.MaxWalletExposureUSD, cfg.Risk.MaxMarketExposureUSD)
		fmt.Printf("   Press Ctrl+C within 5 seconds to abort...\n\n")

		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
			slog.Info("live trading aborted by user")
			return
		}
	}

	client := polymarket.NewClient(polymarket.ClientConfig{
		CLOBBase:      cfg.API.CLOBBase,
		GammaBase:     cfg.API.GammaBase,
		APIKey:        apiKey,
		Timeout:       seconds(cfg.API.TimeoutSeconds),
		RetryAttempts: cfg.API.RetryAttempts,
		RetryBase:     time.Duration(cfg.API.RetryBaseMs) * time.Millisecond,
	})
	provider := polymarket.NewProvider(client,
		seconds(cfg.API.BookCacheTTLSecs),
		flight.New(500*time.Millisecond, 30*time.Second),
	)

	var executor ports.TradeExecutor
	if dryRun {
		executor = &polymarket.DryRunExecutor{BalanceUSD: cfg.Risk.MaxWalletExposureUSD}
	} else {
		executor = polymarket.NewExecutor(client)
	}

	store, err := storage.NewSQLiteStore(cfg.Storage.DSN,
		time.Duration(cfg.Storage.RetentionDays)*24*time.Hour)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	var jl *journal.Log
	if cfg.Engine.JournalPath != "" {
		jl = journal.Open(cfg.Engine.JournalPath)
		defer jl.Close()
	}

	var sinks []ports.Notifier
	if cfg.Notify.Console {
		sinks = append(sinks, notify.NewConsole(table))
	}
	if cfg.Notify.TelegramToken != "" {
		tg, err := notify.NewTelegram(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		if err != nil {
			slog.Error("failed to create telegram notifier", "err", err)
			os.Exit(1)
		}
		sinks = append(sinks, tg)
	}

	c := buildCore(cfg, time.Now())

	deps := engine.Deps{
		Markets:   provider,
		Executor:  executor,
		Notifier:  notify.NewMulti(sinks...),
		Store:     store,
		Journal:   jl,
		Detector:  c.detector,
		Risk:      c.risk,
		Decisions: c.decisions,
		EV:        c.ev,
		Learner:   c.learner,
		Positions: c.positions,
		Modes:     c.modes,
		Scavenger: c.scavenger,
	}

	if cfg.API.StreamURL != "" {
		activity := stream.New(cfg.API.StreamURL, cfg.ScanInterval())
		activity.Start(ctx)
		defer activity.Close()
		deps.Activity = activity.Samples()
	}

	eng := engine.New(engine.Config{
		Interval:        cfg.ScanInterval(),
		BookConcurrency: int64(cfg.Engine.BookConcurrency),
		DryRun:          dryRun,
		KillSwitchPath:  cfg.Engine.KillSwitchPath,
	}, deps)

	eng.RestoreState(ctx)

	if err := eng.Run(ctx); err != nil {
		slog.Error("engine exited with error", "err", err)
		os.Exit(1)
	}
	slog.Info("polyedge stopped cleanly")
}
