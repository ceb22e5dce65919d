package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/alejandrodnm/polyedge/internal/decision"
	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/learner"
	"github.com/alejandrodnm/polyedge/internal/ports"
)

// cycle runs one scan: fetch markets and books, manage held positions,
// then look for new entries under the current trading mode.
func (e *Engine) cycle(ctx context.Context, now time.Time) error {
	snaps, err := e.scan(ctx, now)
	if err != nil {
		return fmt.Errorf("engine.cycle: %w", err)
	}

	e.managePositions(ctx, now)

	var opps []domain.Opportunity
	if e.d.Modes.Mode() == domain.ModeScavenger {
		opps = e.scavengerEntries(ctx, snaps, now)
	} else {
		opps = e.findEntries(ctx, snaps, now)
	}

	if e.d.Notifier != nil {
		if err := e.d.Notifier.NotifyCycle(ctx, opps, e.d.Positions.Active()); err != nil {
			slog.Warn("notifier error", "err", err)
		}
	}

	slog.Info("cycle complete",
		"markets", len(snaps),
		"opportunities", len(opps),
		"positions", len(e.d.Positions.Active()),
		"mode", e.d.Modes.Mode(),
	)
	return nil
}

// RunOnce performs a single detection pass without touching positions or
// the exchange. Used by the detect subcommand.
func (e *Engine) RunOnce(ctx context.Context) ([]domain.Opportunity, domain.SkipHistogram, error) {
	now := time.Now()
	snaps, err := e.scan(ctx, now)
	if err != nil {
		return nil, nil, fmt.Errorf("engine.RunOnce: %w", err)
	}
	opps, skips := e.d.Detector.Detect(snaps, e.bankrollUSD(), now)
	return opps, skips, nil
}

// bookWarmer is the optional batch-prefetch surface of a market data
// provider.
type bookWarmer interface {
	WarmBooks(ctx context.Context, tokenIDs []string)
}

// scan fetches active markets and fills in both books per market, with
// at most BookConcurrency markets in flight at once. Markets whose books
// cannot be fetched are dropped from the cycle, never fatal.
func (e *Engine) scan(ctx context.Context, now time.Time) ([]domain.MarketSnapshot, error) {
	markets, err := e.d.Markets.GetActiveMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch markets: %w", err)
	}

	// Batch-prefetch both books per market so the per-token fetches below
	// mostly hit cache instead of issuing one request each.
	if w, ok := e.d.Markets.(bookWarmer); ok {
		ids := make([]string, 0, 2*len(markets))
		for _, m := range markets {
			ids = append(ids, m.YesTokenID, m.NoTokenID)
		}
		w.WarmBooks(ctx, ids)
	}

	sem := semaphore.NewWeighted(e.cfg.BookConcurrency)
	var (
		mu    sync.Mutex
		snaps = make([]domain.MarketSnapshot, 0, len(markets))
		wg    sync.WaitGroup
	)

	for _, m := range markets {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		wg.Add(1)
		go func(snap domain.MarketSnapshot) {
			defer wg.Done()
			defer sem.Release(1)

			yes, err := e.d.Markets.GetOrderBookTop(ctx, snap.YesTokenID)
			if err != nil {
				slog.Debug("yes book unavailable", "market", snap.MarketID, "err", err)
				return
			}
			no, err := e.d.Markets.GetOrderBookTop(ctx, snap.NoTokenID)
			if err != nil {
				slog.Debug("no book unavailable", "market", snap.MarketID, "err", err)
				return
			}

			snap.YesBook = yes
			snap.NoBook = no
			snap.ScannedAt = now

			mu.Lock()
			snaps = append(snaps, snap)
			mu.Unlock()
		}(m)
	}
	wg.Wait()

	e.mu.Lock()
	for _, s := range snaps {
		e.snapsByM[s.MarketID] = s
	}
	e.mu.Unlock()

	return snaps, nil
}

// findEntries runs detection and the full entry chain in NORMAL mode.
func (e *Engine) findEntries(ctx context.Context, snaps []domain.MarketSnapshot, now time.Time) []domain.Opportunity {
	opps, skips := e.d.Detector.Detect(snaps, e.bankrollUSD(), now)

	e.mu.Lock()
	for r, n := range skips {
		e.skips[r] += n
	}
	e.mu.Unlock()

	sg := e.d.Learner.Suggest()
	for _, opp := range opps {
		if reason, blocked := suggestionBlocks(sg, opp, now); blocked {
			e.recordDecision(ctx, opp, "skipped", reason, 0, "")
			continue
		}
		e.tryEnter(ctx, opp, now)
	}
	return opps
}

// suggestionBlocks applies the learner's history-derived floors on top of
// the configured gates. Conservative defaults (FromHistory false) block
// nothing.
func suggestionBlocks(sg learner.SuggestedParams, opp domain.Opportunity, now time.Time) (string, bool) {
	if !sg.FromHistory {
		return "", false
	}
	if opp.EdgeBps < sg.MinEdgeBps {
		return fmt.Sprintf("learner: edge %.0f bps below suggested %.0f", opp.EdgeBps, sg.MinEdgeBps), true
	}
	if opp.SpreadBps > sg.MaxSpreadBps {
		return fmt.Sprintf("learner: spread %.0f bps above suggested %.0f", opp.SpreadBps, sg.MaxSpreadBps), true
	}
	hour := now.UTC().Hour()
	for _, h := range sg.UnfavorableHours {
		if h == hour {
			return fmt.Sprintf("learner: hour %02d UTC historically unfavorable", hour), true
		}
	}
	return "", false
}

// tryEnter runs one opportunity through the decision engine and the risk
// gate, then submits.
func (e *Engine) tryEnter(ctx context.Context, opp domain.Opportunity, now time.Time) {
	tokenID, priceCents, spreadCents := chooseEntrySide(opp)

	in := decision.EntryInput{
		MarketID:       opp.MarketID,
		TokenID:        tokenID,
		Bias:           decision.BiasLong,
		PriceCents:     priceCents,
		SpreadCents:    spreadCents,
		BidDepthUSD:    opp.LiquidityUSD,
		AskDepthUSD:    opp.LiquidityUSD,
		RecentActivity: activityScore(opp.LiquidityUSD),
	}
	state := decision.RiskState{
		HoldingToken: e.d.Positions.Held(tokenID),
		OpenTotal:    len(e.d.Positions.Active()),
		OpenInMarket: e.d.Positions.OpenCount(opp.MarketID),
		DeployedUSD:  e.d.Positions.DeployedUSD(),
		BankrollUSD:  e.bankrollUSD(),
	}

	dec := e.d.Decisions.EvaluateEntry(in, state, now)
	if !dec.Enter {
		e.recordDecision(ctx, opp, "skipped", dec.Reason, 0, "")
		return
	}

	rd := e.d.Risk.Evaluate(opp, tokenID, domain.SideLong, now)
	if !rd.Approved {
		e.recordDecision(ctx, opp, "rejected", rd.Reason, 0, "")
		return
	}
	for _, w := range rd.Warnings {
		slog.Warn("risk warning", "market", opp.MarketID, "warning", w)
	}

	size := min(dec.SizeUSD, rd.AdjustedSizeUSD, opp.SizeUSD)
	plan := domain.TradePlan{
		ID:         uuid.New().String(),
		Kind:       domain.PlanEntry,
		MarketID:   opp.MarketID,
		TokenID:    tokenID,
		Side:       domain.SideLong,
		PriceCents: priceCents,
		SizeUSD:    size,
		Reason:     fmt.Sprintf("edge %.0f bps, score %.2f", opp.EdgeBps, dec.Score),
		Urgency:    domain.UrgencyMedium,
		CreatedAt:  now,
	}

	res, err := e.submit(ctx, plan, now)
	if err != nil || res.Status == domain.ExecRejected {
		e.recordDecision(ctx, opp, "failed", res.Reason, size, string(res.Status))
		return
	}

	e.d.Risk.RecordFill(opp.MarketID, size, now)
	if _, err := e.d.Positions.OpenPosition(opp.MarketID, tokenID, domain.SideLong, size, priceCents, now); err != nil {
		slog.Error("position open failed after fill", "token", tokenID, "err", err)
	}
	e.mu.Lock()
	e.meta[tokenID] = entryMeta{edgeBps: opp.EdgeBps, spreadBps: opp.SpreadBps}
	e.mu.Unlock()

	e.recordDecision(ctx, opp, "executed", plan.Reason, size, string(res.Status))
	slog.Info("entered position",
		"market", opp.MarketID,
		"token", tokenID,
		"size_usd", size,
		"price_cents", priceCents,
		"status", res.Status,
	)
}

// scavengerEntries places micro-buys under the scavenger policy instead
// of the full entry chain. Detection still finds the candidates.
func (e *Engine) scavengerEntries(ctx context.Context, snaps []domain.MarketSnapshot, now time.Time) []domain.Opportunity {
	opps, skips := e.d.Detector.Detect(snaps, e.bankrollUSD(), now)

	e.mu.Lock()
	for r, n := range skips {
		e.skips[r] += n
	}
	e.mu.Unlock()

	for _, opp := range opps {
		tokenID, priceCents, _ := chooseEntrySide(opp)
		if e.d.Positions.Held(tokenID) {
			continue
		}

		size, ok, reason := e.d.Scavenger.CanMicroBuy(tokenID, now)
		if !ok {
			e.recordDecision(ctx, opp, "skipped", "scavenger: "+reason, 0, "")
			continue
		}
		size = min(size, opp.SizeUSD)

		plan := domain.TradePlan{
			ID:         uuid.New().String(),
			Kind:       domain.PlanMicroBuy,
			MarketID:   opp.MarketID,
			TokenID:    tokenID,
			Side:       domain.SideLong,
			PriceCents: priceCents,
			SizeUSD:    size,
			Reason:     "scavenger micro-buy",
			Urgency:    domain.UrgencyLow,
			CreatedAt:  now,
		}

		res, err := e.submit(ctx, plan, now)
		if err != nil || res.Status == domain.ExecRejected {
			e.recordDecision(ctx, opp, "failed", res.Reason, size, string(res.Status))
			continue
		}

		e.d.Scavenger.RecordEntry(tokenID, size)
		e.d.Risk.RecordFill(opp.MarketID, size, now)
		if _, err := e.d.Positions.OpenPosition(opp.MarketID, tokenID, domain.SideLong, size, priceCents, now); err != nil {
			slog.Error("position open failed after fill", "token", tokenID, "err", err)
		}
		e.mu.Lock()
		e.meta[tokenID] = entryMeta{edgeBps: opp.EdgeBps, spreadBps: opp.SpreadBps}
		e.mu.Unlock()

		e.recordDecision(ctx, opp, "executed", plan.Reason, size, string(res.Status))
	}
	return opps
}

// submit drives one plan through the submission protocol: lock, execute,
// classify. Dry-run and detect-only short-circuit before the exchange.
func (e *Engine) submit(ctx context.Context, plan domain.TradePlan, now time.Time) (domain.ExecutionResult, error) {
	if e.cfg.DryRun || e.d.Risk.DetectOnly() {
		slog.Info("dry-run plan",
			"kind", plan.Kind,
			"token", plan.TokenID,
			"size_usd", plan.SizeUSD,
			"reason", plan.Reason,
		)
		return domain.ExecutionResult{Status: domain.ExecDryRun, Reason: plan.Reason}, nil
	}

	if _, err := e.d.Risk.BeginSubmission(plan.TokenID, plan.Side, string(plan.Kind), now); err != nil {
		return domain.ExecutionResult{Status: domain.ExecRejected, Reason: err.Error()}, nil
	}

	res, err := e.d.Executor.Execute(ctx, plan, now)
	e.d.Risk.CompleteSubmission(plan.TokenID, plan.Side, err, now)
	return res, err
}

// recordDecision writes one decision to the store and the journal.
func (e *Engine) recordDecision(ctx context.Context, opp domain.Opportunity, action, reason string, size float64, status string) {
	rec := ports.DecisionRecord{
		TS:           time.Now(),
		MarketID:     opp.MarketID,
		YesAsk:       opp.YesAsk,
		NoAsk:        opp.NoAsk,
		Sum:          opp.AskSum,
		EdgeBps:      opp.EdgeBps,
		Liquidity:    opp.LiquidityUSD,
		SpreadBps:    opp.SpreadBps,
		EstProfitUSD: opp.EstProfitUSD,
		Action:       action,
		Reason:       reason,
		PlannedSize:  size,
		Status:       status,
	}
	if e.d.Store != nil {
		if err := e.d.Store.SaveDecision(ctx, rec); err != nil {
			slog.Warn("store decision", "err", err)
		}
	}
	if err := e.d.Journal.Append(rec); err != nil {
		slog.Warn("journal decision", "err", err)
	}
}

// bankrollUSD is the capital base for sizing: exposure room left in the
// wallet, as maintained by the risk manager.
func (e *Engine) bankrollUSD() float64 {
	return e.d.Risk.WalletExposureRoomUSD()
}

// chooseEntrySide picks the discounted outcome token: the side whose ask
// is lower carries the edge when the pair trades under fair value.
func chooseEntrySide(opp domain.Opportunity) (tokenID string, priceCents, spreadCents float64) {
	if opp.YesAsk <= opp.NoAsk {
		return opp.YesTokenID, opp.YesAsk * 100, opp.SpreadBps / 100
	}
	return opp.NoTokenID, opp.NoAsk * 100, opp.SpreadBps / 100
}

// activityScore normalizes liquidity into [0,1] for entry scoring.
func activityScore(liquidityUSD float64) float64 {
	const full = 50000.0
	if liquidityUSD >= full {
		return 1
	}
	return liquidityUSD / full
}
