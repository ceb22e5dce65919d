package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

type stubGate struct {
	allowed bool
	reason  string
}

func (s stubGate) Allowed(time.Time) (bool, string) { return s.allowed, s.reason }

func testConfig() Config {
	return Config{
		MinEntryPriceCents:  15,
		MaxEntryPriceCents:  85,
		MaxSpreadCents:      4,
		MinDepthUSD:         200,
		MaxOpenPositions:    5,
		MaxPerMarket:        1,
		MaxDeployedFraction: 0.5,
		TradeFraction:       0.05,
		MaxTradeUSD:         50,
		MinTradeUSD:         5,
		MaxAdverseCents:     12,
		TPCents:             14,
		MaxHold:             4 * time.Hour,
		HedgeTriggerCents:   8,
		HedgeRatio:          0.5,
		MaxHedgeRatio:       1.0,
		PreferredPriceCents: 50,
		PriceZoneWidthCents: 30,
		WeightPrice:         0.4,
		WeightSpread:        0.4,
		WeightActivity:      0.2,
	}
}

func goodEntry() EntryInput {
	return EntryInput{
		MarketID:       "mkt",
		TokenID:        "tok",
		Bias:           BiasLong,
		PriceCents:     50,
		SpreadCents:    2,
		BidDepthUSD:    500,
		AskDepthUSD:    500,
		RecentActivity: 0.5,
	}
}

func okRisk() RiskState {
	return RiskState{BankrollUSD: 1000}
}

func TestEvaluateEntry_AllChecksPass(t *testing.T) {
	e := New(testConfig(), stubGate{allowed: true})

	d := e.EvaluateEntry(goodEntry(), okRisk(), time.Now())

	require.True(t, d.Enter)
	assert.Empty(t, d.Reason)
	assert.Len(t, d.Checks, 5)
	// 0.05 × 1000 = 50, at the per-trade cap.
	assert.InDelta(t, 50.0, d.SizeUSD, 1e-9)
	assert.Greater(t, d.Score, 0.0)
}

func TestEvaluateEntry_ShortCircuitsOnBias(t *testing.T) {
	e := New(testConfig(), stubGate{allowed: true})

	in := goodEntry()
	in.Bias = BiasShort
	d := e.EvaluateEntry(in, okRisk(), time.Now())

	require.False(t, d.Enter)
	assert.Len(t, d.Checks, 1, "later checks must not run")
	assert.Equal(t, "bias", d.Checks[0].Name)
	assert.Contains(t, d.Reason, "bias")
}

func TestEvaluateEntry_PriceBoundsInclusive(t *testing.T) {
	e := New(testConfig(), stubGate{allowed: true})
	now := time.Now()

	for _, tc := range []struct {
		price float64
		enter bool
	}{
		{15, true},  // lower bound is in
		{85, true},  // upper bound is in
		{14, false}, // one cent below
		{86, false}, // one cent above
	} {
		in := goodEntry()
		in.PriceCents = tc.price
		d := e.EvaluateEntry(in, okRisk(), now)
		assert.Equal(t, tc.enter, d.Enter, "price=%.0f", tc.price)
	}
}

func TestEvaluateEntry_LiquidityRejections(t *testing.T) {
	e := New(testConfig(), stubGate{allowed: true})
	now := time.Now()

	wide := goodEntry()
	wide.SpreadCents = 5
	d := e.EvaluateEntry(wide, okRisk(), now)
	require.False(t, d.Enter)
	assert.Contains(t, d.Reason, "spread")

	thin := goodEntry()
	thin.BidDepthUSD = 100
	d = e.EvaluateEntry(thin, okRisk(), now)
	require.False(t, d.Enter)
	assert.Contains(t, d.Reason, "depth")
}

func TestEvaluateEntry_RiskLimits(t *testing.T) {
	e := New(testConfig(), stubGate{allowed: true})
	now := time.Now()

	for name, risk := range map[string]RiskState{
		"holding":  {HoldingToken: true, BankrollUSD: 1000},
		"total":    {OpenTotal: 5, BankrollUSD: 1000},
		"market":   {OpenInMarket: 1, BankrollUSD: 1000},
		"deployed": {DeployedUSD: 500, BankrollUSD: 1000},
	} {
		d := e.EvaluateEntry(goodEntry(), risk, now)
		require.False(t, d.Enter, name)
		assert.Contains(t, d.Reason, "riskLimits", name)
	}
}

func TestEvaluateEntry_EvGateBlocks(t *testing.T) {
	e := New(testConfig(), stubGate{allowed: false, reason: "expectancy paused"})

	d := e.EvaluateEntry(goodEntry(), okRisk(), time.Now())

	require.False(t, d.Enter)
	assert.Contains(t, d.Reason, "expectancy paused")
}

func TestEvaluateEntry_SizeBelowMinimumRejects(t *testing.T) {
	e := New(testConfig(), stubGate{allowed: true})

	// 0.05 × 80 = $4, under the $5 floor.
	d := e.EvaluateEntry(goodEntry(), RiskState{BankrollUSD: 80}, time.Now())

	require.False(t, d.Enter)
	assert.Contains(t, d.Reason, "below minimum")
}

func heldPosition(entry, current float64, side domain.Side, openedAt time.Time) domain.Position {
	return domain.Position{
		TokenID:           "tok",
		MarketID:          "mkt",
		Side:              side,
		State:             domain.PositionOpen,
		SizeUSD:           40,
		EntryPriceCents:   entry,
		CurrentPriceCents: current,
		PnLTrusted:        true,
		OpenedAt:          openedAt,
	}
}

func TestEvaluateExit_HardExitBeatsEverything(t *testing.T) {
	e := New(testConfig(), stubGate{allowed: true})
	now := time.Now()

	// 12¢ adverse and also past the time stop: hard exit wins.
	pos := heldPosition(50, 38, domain.SideLong, now.Add(-5*time.Hour))
	d := e.EvaluateExit(pos, BiasLong, now)

	require.True(t, d.Exit)
	assert.Equal(t, ReasonHardExit, d.Reason)
	assert.Equal(t, domain.UrgencyCritical, d.Urgency)
}

func TestEvaluateExit_TakeProfitBoundary(t *testing.T) {
	e := New(testConfig(), stubGate{allowed: true})
	now := time.Now()

	// Long from 50¢ to 65¢: 15¢ favorable, past the 14¢ target.
	d := e.EvaluateExit(heldPosition(50, 65, domain.SideLong, now.Add(-time.Hour)), BiasLong, now)
	require.True(t, d.Exit)
	assert.Equal(t, ReasonTakeProfit, d.Reason)
	assert.Equal(t, domain.UrgencyMedium, d.Urgency)

	// Exactly at 14¢ still triggers.
	d = e.EvaluateExit(heldPosition(50, 64, domain.SideLong, now.Add(-time.Hour)), BiasLong, now)
	assert.True(t, d.Exit)
	assert.Equal(t, ReasonTakeProfit, d.Reason)

	// One cent short does not.
	d = e.EvaluateExit(heldPosition(50, 63, domain.SideLong, now.Add(-time.Hour)), BiasLong, now)
	assert.False(t, d.Exit)
}

func TestEvaluateExit_TimeStop(t *testing.T) {
	e := New(testConfig(), stubGate{allowed: true})
	now := time.Now()

	d := e.EvaluateExit(heldPosition(50, 51, domain.SideLong, now.Add(-5*time.Hour)), BiasLong, now)

	require.True(t, d.Exit)
	assert.Equal(t, ReasonTimeStop, d.Reason)
}

func TestEvaluateExit_BiasFlip(t *testing.T) {
	e := New(testConfig(), stubGate{allowed: true})
	now := time.Now()

	// Small loss plus a flipped signal: exit.
	d := e.EvaluateExit(heldPosition(50, 47, domain.SideLong, now.Add(-time.Hour)), BiasShort, now)
	require.True(t, d.Exit)
	assert.Equal(t, ReasonBiasFlip, d.Reason)
	assert.Equal(t, domain.UrgencyHigh, d.Urgency)

	// Severe loss suppresses the flip exit (8¢ trigger doubles as the
	// severe-loss default).
	d = e.EvaluateExit(heldPosition(50, 40, domain.SideLong, now.Add(-time.Hour)), BiasShort, now)
	assert.False(t, d.Exit)

	// Same-direction signal is never a flip.
	d = e.EvaluateExit(heldPosition(50, 47, domain.SideLong, now.Add(-time.Hour)), BiasLong, now)
	assert.False(t, d.Exit)
}

func TestEvaluateExit_UntrustedPnLNeverExits(t *testing.T) {
	e := New(testConfig(), stubGate{allowed: true})
	now := time.Now()

	pos := heldPosition(50, 20, domain.SideLong, now.Add(-10*time.Hour))
	pos.PnLTrusted = false

	d := e.EvaluateExit(pos, BiasShort, now)
	assert.False(t, d.Exit)
}

func TestNeedsHedge(t *testing.T) {
	e := New(testConfig(), stubGate{allowed: true})
	now := time.Now()

	// 10¢ adverse, past the 8¢ trigger; hedge 0.5 × $40 = $20.
	pos := heldPosition(50, 40, domain.SideLong, now.Add(-time.Hour))
	size, ok := e.NeedsHedge(pos)
	require.True(t, ok)
	assert.InDelta(t, 20.0, size, 1e-9)

	// Partial hedge already placed: clamp to the remaining room.
	pos.HedgeRatio = 0.8
	size, ok = e.NeedsHedge(pos)
	require.True(t, ok)
	assert.InDelta(t, 0.2*40, size, 1e-9)

	// Fully hedged.
	pos.HedgeRatio = 1.0
	_, ok = e.NeedsHedge(pos)
	assert.False(t, ok)

	// Below the trigger.
	calm := heldPosition(50, 45, domain.SideLong, now.Add(-time.Hour))
	_, ok = e.NeedsHedge(calm)
	assert.False(t, ok)

	// Untrusted marks never hedge.
	pos = heldPosition(50, 40, domain.SideLong, now.Add(-time.Hour))
	pos.PnLTrusted = false
	_, ok = e.NeedsHedge(pos)
	assert.False(t, ok)
}

func TestScore_Monotonic(t *testing.T) {
	e := New(testConfig(), stubGate{allowed: true})

	base := goodEntry()

	closer := base
	closer.PriceCents = 50
	farther := base
	farther.PriceCents = 70
	assert.Greater(t, e.Score(closer), e.Score(farther))

	tight := base
	tight.SpreadCents = 1
	wide := base
	wide.SpreadCents = 3
	assert.Greater(t, e.Score(tight), e.Score(wide))

	busy := base
	busy.RecentActivity = 0.9
	quiet := base
	quiet.RecentActivity = 0.1
	assert.Greater(t, e.Score(busy), e.Score(quiet))
}
