package domain

import (
	"fmt"
	"time"
)

// Side is the direction of a position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// PositionState is the lifecycle state of a held position.
//
// Transitions only move forward (OPEN → PARTIAL → CLOSING → CLOSED) except
// OPEN⇄PARTIAL, which may oscillate while fills come and go. DUST and
// RESOLVED are exclusion states reachable from any holding state: the
// position still exists but is no longer counted toward risk aggregation.
type PositionState string

const (
	PositionOpen     PositionState = "OPEN"
	PositionPartial  PositionState = "PARTIAL"
	PositionClosing  PositionState = "CLOSING"
	PositionClosed   PositionState = "CLOSED"
	PositionDust     PositionState = "DUST"
	PositionResolved PositionState = "RESOLVED"
)

// stateRank orders the forward-only chain. DUST/RESOLVED sit outside it.
var stateRank = map[PositionState]int{
	PositionOpen:    0,
	PositionPartial: 1,
	PositionClosing: 2,
	PositionClosed:  3,
}

// holding reports whether the state still represents held inventory.
func (s PositionState) holding() bool {
	switch s {
	case PositionOpen, PositionPartial, PositionClosing:
		return true
	}
	return false
}

// CanTransition validates a lifecycle edge.
func CanTransition(from, to PositionState) bool {
	if from == to {
		return false
	}
	// DUST and RESOLVED are reachable from any holding state only.
	if to == PositionDust || to == PositionResolved {
		return from.holding()
	}
	if from == PositionClosed || from == PositionDust || from == PositionResolved {
		return false
	}
	// OPEN⇄PARTIAL is the only backward edge.
	if from == PositionPartial && to == PositionOpen {
		return true
	}
	fr, fok := stateRank[from]
	tr, tok := stateRank[to]
	return fok && tok && tr > fr
}

// Position is a held outcome-token position and its derived state.
type Position struct {
	TokenID  string
	MarketID string
	Side     Side
	State    PositionState

	SizeUSD           float64
	EntryPriceCents   float64
	CurrentPriceCents float64
	CostBasisUSD      float64

	PnLPct float64
	PnLUSD float64
	// PnLTrusted is false when the inputs behind PnL (best bid, cost basis)
	// were stale, missing, or inconsistent. Untrusted PnL must never be
	// used to justify closing the position.
	PnLTrusted bool

	// HedgeRatio is the total hedge notional placed against this position
	// as a fraction of entry size.
	HedgeRatio float64

	OpenedAt  time.Time
	UpdatedAt time.Time
}

// Transition returns a copy of the position in the new state, or an error
// if the edge is not a legal lifecycle transition.
func (p Position) Transition(to PositionState, now time.Time) (Position, error) {
	if !CanTransition(p.State, to) {
		return p, fmt.Errorf("domain.Transition: illegal %s → %s for token %s", p.State, to, p.TokenID)
	}
	p.State = to
	p.UpdatedAt = now
	return p, nil
}

// AdverseCents returns how many cents the position has moved against entry.
// Positive values are losses.
func (p Position) AdverseCents() float64 {
	if p.Side == SideLong {
		return p.EntryPriceCents - p.CurrentPriceCents
	}
	return p.CurrentPriceCents - p.EntryPriceCents
}

// FavorableCents returns how many cents the position has moved in its
// favor. Positive values are gains.
func (p Position) FavorableCents() float64 {
	return -p.AdverseCents()
}

// HeldFor returns how long the position has been open.
func (p Position) HeldFor(now time.Time) time.Duration {
	return now.Sub(p.OpenedAt)
}
