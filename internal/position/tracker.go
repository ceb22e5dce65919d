// Package position holds current positions and drives their lifecycle:
// OPEN → PARTIAL → CLOSING → CLOSED, with DUST and RESOLVED as exclusion
// states reachable from any holding state.
package position

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// Config tunes dust classification and staleness marking.
type Config struct {
	DustThresholdUSD float64
	StaleAfter       time.Duration
}

// Tracker owns the position map. Safe for concurrent use.
type Tracker struct {
	cfg Config

	mu        sync.Mutex
	positions map[string]domain.Position // tokenID → position
}

// NewTracker creates an empty tracker.
func NewTracker(cfg Config) *Tracker {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * time.Minute
	}
	return &Tracker{cfg: cfg, positions: make(map[string]domain.Position)}
}

// OpenPosition registers a new position on its first fill.
func (t *Tracker) OpenPosition(marketID, tokenID string, side domain.Side, sizeUSD, entryCents float64, now time.Time) (domain.Position, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.positions[tokenID]; exists {
		return domain.Position{}, fmt.Errorf("position.OpenPosition: token %s already held", tokenID)
	}
	p := domain.Position{
		TokenID:           tokenID,
		MarketID:          marketID,
		Side:              side,
		State:             domain.PositionOpen,
		SizeUSD:           sizeUSD,
		EntryPriceCents:   entryCents,
		CurrentPriceCents: entryCents,
		CostBasisUSD:      sizeUSD,
		PnLTrusted:        true,
		OpenedAt:          now,
		UpdatedAt:         now,
	}
	t.positions[tokenID] = p
	return p, nil
}

// Refresh updates a position's mark from the latest best bid and
// recomputes P&L. Missing or stale quotes keep the previous mark and flag
// the P&L untrusted; untrusted P&L must never drive an exit. A refreshed
// position whose value falls below the dust threshold moves to DUST and
// drops out of risk aggregation without being deleted.
func (t *Tracker) Refresh(tokenID string, bestBidCents float64, quotedAt, now time.Time) (domain.Position, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.positions[tokenID]
	if !ok {
		return domain.Position{}, fmt.Errorf("position.Refresh: unknown token %s", tokenID)
	}

	stale := now.Sub(quotedAt) > t.cfg.StaleAfter
	if bestBidCents <= 0 || p.CostBasisUSD <= 0 || p.EntryPriceCents <= 0 || stale {
		p.PnLTrusted = false
		p.UpdatedAt = now
		t.positions[tokenID] = p
		return p, nil
	}

	p.CurrentPriceCents = bestBidCents
	shares := p.SizeUSD / (p.EntryPriceCents / 100)
	valueUSD := shares * bestBidCents / 100
	p.PnLUSD = valueUSD - p.CostBasisUSD
	p.PnLPct = p.PnLUSD / p.CostBasisUSD * 100
	p.PnLTrusted = true
	p.UpdatedAt = now

	if valueUSD < t.cfg.DustThresholdUSD && domain.CanTransition(p.State, domain.PositionDust) {
		p.State = domain.PositionDust
	}

	t.positions[tokenID] = p
	return p, nil
}

// Transition moves a position to a new lifecycle state.
func (t *Tracker) Transition(tokenID string, to domain.PositionState, now time.Time) (domain.Position, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.positions[tokenID]
	if !ok {
		return domain.Position{}, fmt.Errorf("position.Transition: unknown token %s", tokenID)
	}
	next, err := p.Transition(to, now)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position.Transition: %w", err)
	}
	t.positions[tokenID] = next
	return next, nil
}

// MarkResolved flags a position whose market has settled on-chain. The
// position stays tracked until redemption removes it.
func (t *Tracker) MarkResolved(tokenID string, now time.Time) (domain.Position, error) {
	return t.Transition(tokenID, domain.PositionResolved, now)
}

// Close finalizes a fully exited position: it transitions to CLOSED, is
// removed from the tracker, and the resulting trade outcome is returned.
func (t *Tracker) Close(tokenID string, exitCents float64, now time.Time) (domain.TradeOutcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.positions[tokenID]
	if !ok {
		return domain.TradeOutcome{}, fmt.Errorf("position.Close: unknown token %s", tokenID)
	}
	if !domain.CanTransition(p.State, domain.PositionClosed) && p.State != domain.PositionResolved {
		return domain.TradeOutcome{}, fmt.Errorf("position.Close: cannot close token %s in state %s", tokenID, p.State)
	}
	delete(t.positions, tokenID)

	return domain.TradeOutcome{
		MarketID:   p.MarketID,
		TokenID:    p.TokenID,
		Side:       p.Side,
		EntryCents: p.EntryPriceCents,
		ExitCents:  exitCents,
		SizeUSD:    p.SizeUSD,
		ClosedAt:   now,
	}, nil
}

// SetHedgeRatio records the total hedge ratio placed against a position.
func (t *Tracker) SetHedgeRatio(tokenID string, ratio float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.positions[tokenID]
	if !ok {
		return fmt.Errorf("position.SetHedgeRatio: unknown token %s", tokenID)
	}
	p.HedgeRatio = ratio
	t.positions[tokenID] = p
	return nil
}

// Get returns the position for a token.
func (t *Tracker) Get(tokenID string) (domain.Position, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.positions[tokenID]
	return p, ok
}

// Held reports whether the token has any tracked position, dust included.
func (t *Tracker) Held(tokenID string) bool {
	_, ok := t.Get(tokenID)
	return ok
}

// Positions returns all tracked positions ordered by token ID.
func (t *Tracker) Positions() []domain.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Position, 0, len(t.positions))
	for _, p := range t.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	return out
}

// Active returns positions that count toward risk aggregation: everything
// except DUST and RESOLVED.
func (t *Tracker) Active() []domain.Position {
	all := t.Positions()
	out := all[:0]
	for _, p := range all {
		if p.State != domain.PositionDust && p.State != domain.PositionResolved {
			out = append(out, p)
		}
	}
	return out
}

// OpenCount returns the number of active positions, optionally restricted
// to one market (empty marketID means all).
func (t *Tracker) OpenCount(marketID string) int {
	n := 0
	for _, p := range t.Active() {
		if marketID == "" || p.MarketID == marketID {
			n++
		}
	}
	return n
}

// DeployedUSD returns the cost basis deployed across active positions.
func (t *Tracker) DeployedUSD() float64 {
	total := 0.0
	for _, p := range t.Active() {
		total += p.CostBasisUSD
	}
	return total
}
