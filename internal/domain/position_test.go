package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition_ForwardChain(t *testing.T) {
	assert.True(t, CanTransition(PositionOpen, PositionPartial))
	assert.True(t, CanTransition(PositionPartial, PositionClosing))
	assert.True(t, CanTransition(PositionClosing, PositionClosed))
	assert.True(t, CanTransition(PositionOpen, PositionClosed))

	// Only OPEN⇄PARTIAL may go backward.
	assert.True(t, CanTransition(PositionPartial, PositionOpen))
	assert.False(t, CanTransition(PositionClosing, PositionPartial))
	assert.False(t, CanTransition(PositionClosed, PositionClosing))
}

func TestCanTransition_ExclusionStates(t *testing.T) {
	for _, from := range []PositionState{PositionOpen, PositionPartial, PositionClosing} {
		assert.True(t, CanTransition(from, PositionDust), "from %s", from)
		assert.True(t, CanTransition(from, PositionResolved), "from %s", from)
	}

	// Terminal-adjacent: no way out, no way in from CLOSED.
	assert.False(t, CanTransition(PositionClosed, PositionDust))
	assert.False(t, CanTransition(PositionDust, PositionOpen))
	assert.False(t, CanTransition(PositionResolved, PositionClosing))
	assert.False(t, CanTransition(PositionDust, PositionResolved))
}

func TestPosition_Transition(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := Position{TokenID: "tok", State: PositionOpen}

	p2, err := p.Transition(PositionPartial, now)
	require.NoError(t, err)
	assert.Equal(t, PositionPartial, p2.State)
	assert.Equal(t, now, p2.UpdatedAt)
	// Value semantics: the original is untouched.
	assert.Equal(t, PositionOpen, p.State)

	_, err = p2.Transition(PositionPartial, now)
	assert.Error(t, err)
}

func TestPosition_AdverseCents(t *testing.T) {
	long := Position{Side: SideLong, EntryPriceCents: 50, CurrentPriceCents: 42}
	assert.InDelta(t, 8, long.AdverseCents(), 1e-9)
	assert.InDelta(t, -8, long.FavorableCents(), 1e-9)

	short := Position{Side: SideShort, EntryPriceCents: 50, CurrentPriceCents: 42}
	assert.InDelta(t, -8, short.AdverseCents(), 1e-9)
}

func TestTradeOutcome_PnL(t *testing.T) {
	// LONG 50¢ → 65¢ on $100: 200 shares × $0.15 = $30.
	out := TradeOutcome{Side: SideLong, EntryCents: 50, ExitCents: 65, SizeUSD: 100}
	assert.InDelta(t, 15, out.PnLCents(), 1e-9)
	assert.InDelta(t, 30, out.PnLUSD(), 1e-9)
	assert.True(t, out.Win())

	short := TradeOutcome{Side: SideShort, EntryCents: 50, ExitCents: 65, SizeUSD: 100}
	assert.InDelta(t, -15, short.PnLCents(), 1e-9)
	assert.False(t, short.Win())
}
