package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polyedge/internal/decision"
	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/ports"
)

// managePositions refreshes every held position against the live book
// and acts on exit and hedge signals. DUST and RESOLVED positions are
// parked: no refresh, no exit rules, no orders.
func (e *Engine) managePositions(ctx context.Context, now time.Time) {
	for _, pos := range e.d.Positions.Positions() {
		if pos.State == domain.PositionDust || pos.State == domain.PositionResolved {
			continue
		}

		top, err := e.d.Markets.GetOrderBookTop(ctx, pos.TokenID)
		if err != nil {
			if errors.Is(err, ports.ErrOrderBookNotFound) {
				// Book gone usually means the market resolved; redemption
				// is handled once the exchange reports the outcome. Logged
				// once per dedup window, not every cycle.
				if !e.logDedup.Seen("book-missing:"+pos.TokenID, now) {
					slog.Info("book missing for held position", "token", pos.TokenID)
				}
				continue
			}
			slog.Warn("position refresh fetch failed", "token", pos.TokenID, "err", err)
			continue
		}

		refreshed, err := e.d.Positions.Refresh(pos.TokenID, top.BestBid*100, now, now)
		if err != nil {
			slog.Warn("position refresh failed", "token", pos.TokenID, "err", err)
			continue
		}

		if refreshed.State == domain.PositionDust {
			// Just dropped below the dust threshold: stop counting its
			// exposure and leave it parked.
			e.d.Risk.ReleaseExposure(pos.MarketID, pos.SizeUSD)
			slog.Info("position parked as dust",
				"token", pos.TokenID,
				"value_pct", refreshed.PnLPct,
			)
			continue
		}

		if e.d.Modes.Mode() == domain.ModeScavenger {
			e.d.Scavenger.ObservePrice(pos.TokenID, refreshed.FavorableCents(), now)
			sig := e.d.Scavenger.EvaluateExit(refreshed, now)
			if sig.Exit {
				e.exitPosition(ctx, refreshed, top, sig.Reason, domain.UrgencyMedium, now)
			}
			continue
		}

		dec := e.d.Decisions.EvaluateExit(refreshed, biasFromBook(top), now)
		if dec.Exit {
			e.exitPosition(ctx, refreshed, top, dec.Reason, dec.Urgency, now)
			continue
		}

		if size, ok := e.d.Decisions.NeedsHedge(refreshed); ok {
			e.hedgePosition(ctx, refreshed, size, now)
		}
	}
}

// exitPosition submits a closing order and, on success, feeds the outcome
// to the EV tracker and the learner.
func (e *Engine) exitPosition(ctx context.Context, pos domain.Position, top domain.BookTop, reason string, urgency domain.Urgency, now time.Time) {
	plan := domain.TradePlan{
		ID:         uuid.New().String(),
		Kind:       domain.PlanExit,
		MarketID:   pos.MarketID,
		TokenID:    pos.TokenID,
		Side:       closingSide(pos.Side),
		PriceCents: top.BestBid * 100,
		SizeUSD:    pos.SizeUSD,
		Reason:     reason,
		Urgency:    urgency,
		CreatedAt:  now,
	}

	res, err := e.submit(ctx, plan, now)
	if err != nil || res.Status == domain.ExecRejected {
		slog.Warn("exit failed",
			"token", pos.TokenID,
			"reason", reason,
			"status", res.Status,
			"err", err,
		)
		return
	}

	outcome, err := e.d.Positions.Close(pos.TokenID, top.BestBid*100, now)
	if err != nil {
		slog.Error("position close failed after exit", "token", pos.TokenID, "err", err)
		return
	}

	e.d.Risk.ReleaseExposure(pos.MarketID, pos.SizeUSD)
	e.d.EV.Record(outcome, now)
	e.d.Scavenger.RecordExit(pos.TokenID, now)

	e.mu.Lock()
	m := e.meta[pos.TokenID]
	delete(e.meta, pos.TokenID)
	e.mu.Unlock()
	e.d.Learner.RecordOutcome(pos.MarketID, outcome.Win(), m.edgeBps, m.spreadBps, now)

	e.journalExit(ctx, pos, outcome, reason, res)
	slog.Info("closed position",
		"token", pos.TokenID,
		"reason", reason,
		"pnl_cents", outcome.PnLCents(),
		"pnl_usd", outcome.PnLUSD(),
	)
}

// hedgePosition buys the complementary outcome token to cap the loss on
// an adverse position.
func (e *Engine) hedgePosition(ctx context.Context, pos domain.Position, sizeUSD float64, now time.Time) {
	e.mu.Lock()
	snap, ok := e.snapsByM[pos.MarketID]
	e.mu.Unlock()
	if !ok {
		slog.Debug("no snapshot for hedge", "market", pos.MarketID)
		return
	}

	hedgeToken, hedgeBook := snap.NoTokenID, snap.NoBook
	if pos.TokenID == snap.NoTokenID {
		hedgeToken, hedgeBook = snap.YesTokenID, snap.YesBook
	}
	if hedgeBook.Degenerate() {
		return
	}

	plan := domain.TradePlan{
		ID:         uuid.New().String(),
		Kind:       domain.PlanHedge,
		MarketID:   pos.MarketID,
		TokenID:    hedgeToken,
		Side:       domain.SideLong,
		PriceCents: hedgeBook.BestAsk * 100,
		SizeUSD:    sizeUSD,
		Reason:     fmt.Sprintf("adverse %.1f¢", pos.AdverseCents()),
		Urgency:    domain.UrgencyHigh,
		CreatedAt:  now,
	}

	res, err := e.submit(ctx, plan, now)
	if err != nil || res.Status == domain.ExecRejected {
		slog.Warn("hedge failed", "token", pos.TokenID, "status", res.Status, "err", err)
		return
	}

	newRatio := pos.HedgeRatio + sizeUSD/pos.SizeUSD
	if err := e.d.Positions.SetHedgeRatio(pos.TokenID, newRatio); err != nil {
		slog.Warn("set hedge ratio", "token", pos.TokenID, "err", err)
	}
	slog.Info("hedged position",
		"token", pos.TokenID,
		"hedge_token", hedgeToken,
		"size_usd", sizeUSD,
		"total_ratio", newRatio,
	)
}

// journalExit records the closing trade in the decision journal.
func (e *Engine) journalExit(ctx context.Context, pos domain.Position, outcome domain.TradeOutcome, reason string, res domain.ExecutionResult) {
	rec := ports.DecisionRecord{
		TS:           time.Now(),
		MarketID:     pos.MarketID,
		Action:       "exited",
		Reason:       reason,
		PlannedSize:  pos.SizeUSD,
		EstProfitUSD: outcome.PnLUSD(),
		Status:       string(res.Status),
	}
	if len(res.TxHashes) > 0 {
		rec.TxHash = res.TxHashes[0]
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

// closingSide is the order side that flattens a position.
func closingSide(s domain.Side) domain.Side {
	if s == domain.SideLong {
		return domain.SideShort
	}
	return domain.SideLong
}

// biasFromBook derives the directional signal for a YES token from its
// midpoint: above even money the market leans toward the outcome.
func biasFromBook(top domain.BookTop) decision.Bias {
	if top.Degenerate() {
		return decision.BiasNone
	}
	if top.Mid() >= 0.5 {
		return decision.BiasLong
	}
	return decision.BiasShort
}
