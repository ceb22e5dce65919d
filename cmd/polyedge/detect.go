package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/alejandrodnm/polyedge/config"
	"github.com/alejandrodnm/polyedge/internal/adapters/notify"
	"github.com/alejandrodnm/polyedge/internal/adapters/polymarket"
	"github.com/alejandrodnm/polyedge/internal/engine"
	"github.com/alejandrodnm/polyedge/internal/flight"
)

// runDetect performs one scan-and-rank pass and prints the result. No
// positions are touched and nothing reaches the exchange.
func runDetect(ctx context.Context, cfg *config.Config, table bool) {
	client := polymarket.NewClient(polymarket.ClientConfig{
		CLOBBase:      cfg.API.CLOBBase,
		GammaBase:     cfg.API.GammaBase,
		Timeout:       seconds(cfg.API.TimeoutSeconds),
		RetryAttempts: cfg.API.RetryAttempts,
		RetryBase:     time.Duration(cfg.API.RetryBaseMs) * time.Millisecond,
	})
	provider := polymarket.NewProvider(client,
		seconds(cfg.API.BookCacheTTLSecs),
		flight.New(500*time.Millisecond, 30*time.Second),
	)

	c := buildCore(cfg, time.Now())

	eng := engine.New(engine.Config{
		BookConcurrency: int64(cfg.Engine.BookConcurrency),
		DryRun:          true,
	}, engine.Deps{
		Markets:   provider,
		Executor:  &polymarket.DryRunExecutor{BalanceUSD: cfg.Risk.MaxWalletExposureUSD},
		Detector:  c.detector,
		Risk:      c.risk,
		Decisions: c.decisions,
		EV:        c.ev,
		Learner:   c.learner,
		Positions: c.positions,
		Modes:     c.modes,
		Scavenger: c.scavenger,
	})

	opps, skips, err := eng.RunOnce(ctx)
	if err != nil {
		slog.Error("detection pass failed", "err", err)
		os.Exit(1)
	}

	console := notify.NewConsole(table)
	if err := console.NotifyCycle(ctx, opps, nil); err != nil {
		slog.Warn("notifier error", "err", err)
	}

	if skips.Total() > 0 {
		slog.Info("skipped markets", skips.LogAttrs()...)
	}
	slog.Info("detection complete", "opportunities", len(opps))
}
