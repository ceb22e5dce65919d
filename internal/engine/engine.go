// Package engine orchestrates the scan → decide → gate → execute loop.
// It owns no trading logic itself: strategy finds edges, the decision
// engine times entries and exits, the risk manager gates submissions,
// and the adapters talk to the exchange.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/polyedge/internal/decision"
	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/ev"
	"github.com/alejandrodnm/polyedge/internal/journal"
	"github.com/alejandrodnm/polyedge/internal/learner"
	"github.com/alejandrodnm/polyedge/internal/mode"
	"github.com/alejandrodnm/polyedge/internal/ports"
	"github.com/alejandrodnm/polyedge/internal/position"
	"github.com/alejandrodnm/polyedge/internal/risk"
	"github.com/alejandrodnm/polyedge/internal/scavenger"
	"github.com/alejandrodnm/polyedge/internal/strategy"
	"github.com/alejandrodnm/polyedge/internal/ttlcache"
)

const (
	histogramEveryCycles = 10

	// logDedupTTL suppresses repeats of per-token conditions (missing
	// books) that would otherwise log every cycle.
	logDedupTTL = 10 * time.Minute
)

// Config controls the loop itself.
type Config struct {
	Interval        time.Duration
	BookConcurrency int64
	DryRun          bool
	KillSwitchPath  string
}

// Deps carries the injected collaborators.
type Deps struct {
	Markets  ports.MarketDataProvider
	Executor ports.TradeExecutor
	Notifier ports.Notifier
	Store    ports.DecisionStore
	Journal  *journal.Log

	Detector  *strategy.Detector
	Risk      *risk.Manager
	Decisions *decision.Engine
	EV        *ev.Tracker
	Learner   *learner.Learner
	Positions *position.Tracker
	Modes     *mode.Machine
	Scavenger *scavenger.Policy

	// Activity feeds the mode machine; nil keeps the mode pinned NORMAL.
	Activity <-chan domain.ActivitySample
}

// entryMeta is what the learner needs about a position at close time.
type entryMeta struct {
	edgeBps   float64
	spreadBps float64
}

// Engine runs the trading loop.
type Engine struct {
	cfg Config
	d   Deps

	inCycle atomic.Bool
	cycles  atomic.Int64
	halted  atomic.Bool

	mu       sync.Mutex
	skips    domain.SkipHistogram
	meta     map[string]entryMeta // tokenID → entry stats
	snapsByM map[string]domain.MarketSnapshot

	logDedup *ttlcache.DedupSet[string]
}

// New creates an Engine.
func New(cfg Config, d Deps) *Engine {
	if cfg.BookConcurrency <= 0 {
		cfg.BookConcurrency = 6
	}
	return &Engine{
		cfg:      cfg,
		d:        d,
		skips:    make(domain.SkipHistogram),
		meta:     make(map[string]entryMeta),
		snapsByM: make(map[string]domain.MarketSnapshot),
		logDedup: ttlcache.NewDedupSet[string](logDedupTTL),
	}
}

// Run executes the loop until the context is cancelled. Each cycle's
// duration counts against the interval: the next cycle starts after
// max(0, interval − elapsed).
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting",
		"interval", e.cfg.Interval,
		"dry_run", e.cfg.DryRun,
		"mode", e.d.Modes.Mode(),
	)

	for {
		start := time.Now()
		if err := e.runCycle(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			slog.Error("cycle failed", "err", err)
		}

		wait := e.cfg.Interval - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			slog.Info("engine stopped")
			return nil
		case <-time.After(wait):
		}
	}

	slog.Info("engine stopped")
	return nil
}

// runCycle executes one full cycle. Overlapping cycles are skipped, not
// queued: if the previous one is somehow still running, this tick is a
// no-op.
func (e *Engine) runCycle(ctx context.Context) error {
	if !e.inCycle.CompareAndSwap(false, true) {
		slog.Warn("previous cycle still running, skipping tick")
		return nil
	}
	defer e.inCycle.Store(false)

	now := time.Now()

	if e.killSwitchOn() {
		if e.halted.CompareAndSwap(false, true) {
			slog.Error("kill switch present, trading halted", "path", e.cfg.KillSwitchPath)
			e.notifyAlert(ctx, "kill switch", "file present, trading halted until removed")
		}
		return nil
	}
	if e.halted.CompareAndSwap(true, false) {
		slog.Info("kill switch removed, trading resumed")
	}

	e.drainActivity(ctx)
	e.refreshCollateral(ctx)

	if err := e.cycle(ctx, now); err != nil {
		return err
	}

	e.d.Risk.Prune(now)
	e.d.Learner.Prune(now)
	e.logDedup.Prune(now)
	e.persistState(ctx)

	n := e.cycles.Add(1)
	if n%histogramEveryCycles == 0 {
		e.logSkips()
	}
	return nil
}

// killSwitchOn reports whether the kill-switch file exists.
func (e *Engine) killSwitchOn() bool {
	if e.cfg.KillSwitchPath == "" {
		return false
	}
	_, err := os.Stat(e.cfg.KillSwitchPath)
	return err == nil
}

// drainActivity folds any pending activity samples into the mode machine
// and reacts to transitions.
func (e *Engine) drainActivity(ctx context.Context) {
	if e.d.Activity == nil {
		return
	}
	for {
		select {
		case sample := <-e.d.Activity:
			tr := e.d.Modes.Observe(sample)
			if tr == nil {
				continue
			}
			slog.Warn("trading mode changed",
				"from", tr.From,
				"to", tr.To,
				"reason", tr.Reason,
			)
			if e.d.Store != nil {
				if err := e.d.Store.SaveModeTransition(ctx, *tr); err != nil {
					slog.Warn("store mode transition", "err", err)
				}
			}
			e.notifyAlert(ctx, "mode transition", string(tr.From)+" → "+string(tr.To)+": "+tr.Reason)
			if tr.To == domain.ModeNormal {
				e.d.Scavenger.Reset()
			}
		default:
			return
		}
	}
}

// refreshCollateral pulls the spendable balance for the risk floor check.
// Failures keep the previous balance.
func (e *Engine) refreshCollateral(ctx context.Context) {
	bal, err := e.d.Executor.CollateralBalance(ctx)
	if err != nil {
		slog.Warn("collateral balance check failed", "err", err)
		return
	}
	e.d.Risk.SetCollateralBalance(bal)
}

// persistState saves EV tracker and learner state for restart recovery.
func (e *Engine) persistState(ctx context.Context) {
	if e.d.Store == nil {
		return
	}
	if data, err := e.d.EV.Export(); err == nil {
		if err := e.d.Store.SaveState(ctx, "ev", data); err != nil {
			slog.Warn("save ev state", "err", err)
		}
	}
	if data, err := e.d.Learner.Export(); err == nil {
		if err := e.d.Store.SaveState(ctx, "learner", data); err != nil {
			slog.Warn("save learner state", "err", err)
		}
	}
}

// RestoreState loads previously exported component state, if any.
func (e *Engine) RestoreState(ctx context.Context) {
	if e.d.Store == nil {
		return
	}
	if data, err := e.d.Store.LoadState(ctx, "ev"); err == nil && len(data) > 0 {
		if err := e.d.EV.Import(data); err != nil {
			slog.Warn("restore ev state", "err", err)
		}
	}
	if data, err := e.d.Store.LoadState(ctx, "learner"); err == nil && len(data) > 0 {
		if err := e.d.Learner.Import(data); err != nil {
			slog.Warn("restore learner state", "err", err)
		}
	}
}

func (e *Engine) logSkips() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.skips.Total() == 0 {
		return
	}
	slog.Info("skip histogram", e.skips.LogAttrs()...)
	e.skips = make(domain.SkipHistogram)
}

func (e *Engine) notifyAlert(ctx context.Context, title, detail string) {
	if e.d.Notifier == nil {
		return
	}
	if err := e.d.Notifier.NotifyAlert(ctx, title, detail); err != nil {
		slog.Warn("notifier alert failed", "err", err)
	}
}
