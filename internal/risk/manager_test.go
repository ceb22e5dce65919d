package risk

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/ports"
)

func testConfig() Config {
	return Config{
		MaxWalletExposureUSD:   1000,
		MaxMarketExposureUSD:   200,
		MinNotionalUSD:         5,
		MaxSubmissionsPerHour:  10,
		FailureCooldown:        time.Minute,
		MarketReentryCooldown:  time.Minute,
		BlockCooldown:          time.Second,
		AuthCooldown:           time.Minute,
		MaxConsecutiveFailures: 3,
		CircuitCooldown:        30 * time.Minute,
		MinCollateralUSD:       10,
	}
}

func testOpp(sizeUSD float64) domain.Opportunity {
	return domain.Opportunity{
		MarketID:   "mkt",
		YesTokenID: "tok-yes",
		NoTokenID:  "tok-no",
		SizeUSD:    sizeUSD,
	}
}

func newFundedManager(cfg Config) *Manager {
	m := NewManager(cfg)
	m.SetCollateralBalance(10000)
	return m
}

func TestEvaluate_ApprovesCleanOpportunity(t *testing.T) {
	m := newFundedManager(testConfig())
	d := m.Evaluate(testOpp(100), "tok-yes", domain.SideLong, time.Now())
	require.True(t, d.Approved)
	assert.InDelta(t, 100, d.AdjustedSizeUSD, 1e-9)
}

func TestEvaluate_InFlightLockRejects(t *testing.T) {
	m := newFundedManager(testConfig())
	now := time.Now()

	_, err := m.BeginSubmission("tok-yes", domain.SideLong, "edge", now)
	require.NoError(t, err)

	d := m.Evaluate(testOpp(100), "tok-yes", domain.SideLong, now)
	assert.False(t, d.Approved)
	assert.Contains(t, d.Reason, "in-flight")

	// Second lock on the same channel is impossible.
	_, err = m.BeginSubmission("tok-yes", domain.SideLong, "edge", now)
	assert.Error(t, err)

	// Completion releases the channel.
	m.CompleteSubmission("tok-yes", domain.SideLong, nil, now)
	assert.True(t, m.Evaluate(testOpp(100), "tok-yes", domain.SideLong, now).Approved)
}

func TestEvaluate_BlockedResponseOpensCooldown(t *testing.T) {
	m := newFundedManager(testConfig())
	t0 := time.UnixMilli(1000)

	_, err := m.BeginSubmission("tok-yes", domain.SideLong, "edge", t0)
	require.NoError(t, err)
	m.CompleteSubmission("tok-yes", domain.SideLong, ports.ErrBlocked, t0)

	// Inside the 1000ms cooldown: skipped without reaching the executor.
	d := m.Evaluate(testOpp(100), "tok-yes", domain.SideLong, time.UnixMilli(1500))
	assert.False(t, d.Approved)
	assert.Contains(t, d.Reason, "skipped")

	state, _ := m.GuardState(time.UnixMilli(1500))
	assert.Equal(t, domain.GuardCooldown, state)

	// After it elapses submissions flow again.
	d = m.Evaluate(testOpp(100), "tok-yes", domain.SideLong, time.UnixMilli(2500))
	assert.True(t, d.Approved)

	state, _ = m.GuardState(time.UnixMilli(2500))
	assert.Equal(t, domain.GuardNormal, state)
}

func TestEvaluate_AuthFailureForcesDetectOnly(t *testing.T) {
	m := newFundedManager(testConfig())
	now := time.Now()

	_, _ = m.BeginSubmission("tok-yes", domain.SideLong, "edge", now)
	m.CompleteSubmission("tok-yes", domain.SideLong, ports.ErrAuthFailed, now)

	assert.True(t, m.DetectOnly())
	d := m.Evaluate(testOpp(100), "tok-yes", domain.SideLong, now.Add(time.Second))
	assert.False(t, d.Approved)
}

func TestEvaluate_CircuitBreakerAfterConsecutiveFailures(t *testing.T) {
	m := newFundedManager(testConfig())
	now := time.Now()
	boom := errors.New("timeout")

	// Three non-auth failures on different channels trip the breaker.
	for i, tok := range []string{"a", "b", "c"} {
		at := now.Add(time.Duration(i) * time.Second)
		_, err := m.BeginSubmission(tok, domain.SideLong, "edge", at)
		require.NoError(t, err)
		m.CompleteSubmission(tok, domain.SideLong, boom, at)
	}

	state, reason := m.GuardState(now.Add(time.Minute))
	assert.Equal(t, domain.GuardCircuitOpen, state)
	assert.Contains(t, reason, "consecutive failures")

	d := m.Evaluate(testOpp(100), "tok-yes", domain.SideLong, now.Add(time.Minute))
	assert.False(t, d.Approved)

	// Blocks all submissions until the resume time.
	state, _ = m.GuardState(now.Add(31 * time.Minute))
	assert.Equal(t, domain.GuardNormal, state)
}

func TestEvaluate_SuccessResetsFailureCount(t *testing.T) {
	m := newFundedManager(testConfig())
	now := time.Now()
	boom := errors.New("timeout")

	for i, tok := range []string{"a", "b"} {
		at := now.Add(time.Duration(i) * time.Second)
		_, _ = m.BeginSubmission(tok, domain.SideLong, "edge", at)
		m.CompleteSubmission(tok, domain.SideLong, boom, at)
	}
	_, _ = m.BeginSubmission("c", domain.SideLong, "edge", now.Add(3*time.Second))
	m.CompleteSubmission("c", domain.SideLong, nil, now.Add(3*time.Second))
	_, _ = m.BeginSubmission("d", domain.SideLong, "edge", now.Add(4*time.Second))
	m.CompleteSubmission("d", domain.SideLong, boom, now.Add(4*time.Second))

	state, _ := m.GuardState(now.Add(5 * time.Second))
	assert.Equal(t, domain.GuardNormal, state)
}

func TestEvaluate_FailureCooldownPerChannel(t *testing.T) {
	m := newFundedManager(testConfig())
	now := time.Now()

	_, _ = m.BeginSubmission("tok-yes", domain.SideLong, "edge", now)
	m.CompleteSubmission("tok-yes", domain.SideLong, errors.New("timeout"), now)

	d := m.Evaluate(testOpp(100), "tok-yes", domain.SideLong, now.Add(time.Second))
	assert.False(t, d.Approved)
	assert.Contains(t, d.Reason, "cooldown")

	// The cooldown is per channel: other tokens are unaffected.
	other := testOpp(100)
	other.YesTokenID = "other-yes"
	assert.True(t, m.Evaluate(other, "other-yes", domain.SideLong, now.Add(time.Second)).Approved)

	// And it expires.
	assert.True(t, m.Evaluate(testOpp(100), "tok-yes", domain.SideLong, now.Add(2*time.Minute)).Approved)
}

func TestEvaluate_MarketReentrySuppression(t *testing.T) {
	m := newFundedManager(testConfig())
	now := time.Now()

	m.RecordFill("mkt", 50, now)

	d := m.Evaluate(testOpp(100), "tok-yes", domain.SideLong, now.Add(time.Second))
	assert.False(t, d.Approved)
	assert.Contains(t, d.Reason, "re-entry")

	assert.True(t, m.Evaluate(testOpp(100), "tok-yes", domain.SideLong, now.Add(2*time.Minute)).Approved)
}

func TestEvaluate_ExposureCeilings(t *testing.T) {
	m := newFundedManager(testConfig())
	now := time.Now()

	// Market ceiling is $200: a $500 ask is clamped with a warning.
	d := m.Evaluate(testOpp(500), "tok-yes", domain.SideLong, now)
	require.True(t, d.Approved)
	assert.InDelta(t, 200, d.AdjustedSizeUSD, 1e-9)
	assert.NotEmpty(t, d.Warnings)

	// Exhaust the market room (on another market to dodge re-entry).
	m.RecordFill("mkt", 198, now.Add(-2*time.Minute))
	d = m.Evaluate(testOpp(100), "tok-yes", domain.SideLong, now)
	assert.False(t, d.Approved)
	assert.Contains(t, d.Reason, "market exposure")

	// Released exposure frees the room again.
	m.ReleaseExposure("mkt", 198)
	assert.InDelta(t, 200, m.MarketExposureRoomUSD("mkt"), 1e-9)
}

func TestEvaluate_CollateralFloor(t *testing.T) {
	m := NewManager(testConfig())
	m.SetCollateralBalance(3)
	d := m.Evaluate(testOpp(100), "tok-yes", domain.SideLong, time.Now())
	assert.False(t, d.Approved)
	assert.Contains(t, d.Reason, "collateral")
}

func TestEvaluate_MinNotionalPreflight(t *testing.T) {
	m := newFundedManager(testConfig())
	d := m.Evaluate(testOpp(2), "tok-yes", domain.SideLong, time.Now())
	assert.False(t, d.Approved)
	assert.Contains(t, d.Reason, "below minimum")
}

func TestEvaluate_HourlyCeiling(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSubmissionsPerHour = 2
	m := NewManager(cfg)
	m.SetCollateralBalance(10000)
	now := time.Now()

	for i, tok := range []string{"a", "b"} {
		at := now.Add(time.Duration(i) * time.Second)
		_, err := m.BeginSubmission(tok, domain.SideLong, "edge", at)
		require.NoError(t, err)
		m.CompleteSubmission(tok, domain.SideLong, nil, at)
	}

	d := m.Evaluate(testOpp(100), "tok-yes", domain.SideLong, now.Add(2*time.Second))
	assert.False(t, d.Approved)
	assert.Contains(t, d.Reason, "ceiling")

	// The sliding hour rolls off.
	assert.True(t, m.Evaluate(testOpp(100), "tok-yes", domain.SideLong, now.Add(2*time.Hour)).Approved)
}

func TestBeginSubmission_BlockedWhileGuardOpen(t *testing.T) {
	m := newFundedManager(testConfig())
	t0 := time.UnixMilli(1000)

	_, _ = m.BeginSubmission("tok-yes", domain.SideLong, "edge", t0)
	m.CompleteSubmission("tok-yes", domain.SideLong, ports.ErrBlocked, t0)

	// The guard covers every channel, exits and hedges included: no lock
	// can be taken until the cooldown elapses.
	_, err := m.BeginSubmission("tok-other", domain.SideShort, "exit", time.UnixMilli(1500))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "skipped")

	_, err = m.BeginSubmission("tok-other", domain.SideShort, "exit", time.UnixMilli(2500))
	assert.NoError(t, err)
}

func TestBeginSubmission_ChannelCooldownBlocks(t *testing.T) {
	m := newFundedManager(testConfig())
	now := time.Now()

	_, _ = m.BeginSubmission("tok-yes", domain.SideLong, "edge", now)
	m.CompleteSubmission("tok-yes", domain.SideLong, errors.New("timeout"), now)

	_, err := m.BeginSubmission("tok-yes", domain.SideLong, "edge", now.Add(time.Second))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cooling down")

	// Other channels are unaffected, and the cooldown expires.
	_, err = m.BeginSubmission("tok-no", domain.SideLong, "edge", now.Add(time.Second))
	assert.NoError(t, err)
	_, err = m.BeginSubmission("tok-yes", domain.SideLong, "edge", now.Add(2*time.Minute))
	assert.NoError(t, err)
}

func TestBeginSubmission_HourlyCeiling(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSubmissionsPerHour = 2
	m := NewManager(cfg)
	m.SetCollateralBalance(10000)
	now := time.Now()

	for i, tok := range []string{"a", "b"} {
		at := now.Add(time.Duration(i) * time.Second)
		_, err := m.BeginSubmission(tok, domain.SideLong, "edge", at)
		require.NoError(t, err)
		m.CompleteSubmission(tok, domain.SideLong, nil, at)
	}

	_, err := m.BeginSubmission("c", domain.SideLong, "edge", now.Add(2*time.Second))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ceiling")

	_, err = m.BeginSubmission("c", domain.SideLong, "edge", now.Add(2*time.Hour))
	assert.NoError(t, err)
}

func TestEvaluate_ConsultsCooldownOnChosenToken(t *testing.T) {
	m := newFundedManager(testConfig())
	now := time.Now()

	// A failed order on the NO token cools that channel down; entries that
	// would buy the NO side must see it.
	_, _ = m.BeginSubmission("tok-no", domain.SideLong, "edge", now)
	m.CompleteSubmission("tok-no", domain.SideLong, errors.New("timeout"), now)

	d := m.Evaluate(testOpp(100), "tok-no", domain.SideLong, now.Add(time.Second))
	assert.False(t, d.Approved)
	assert.Contains(t, d.Reason, "cooldown")

	assert.True(t, m.Evaluate(testOpp(100), "tok-yes", domain.SideLong, now.Add(time.Second)).Approved)
}

func TestCooldownExpiryMonotonic(t *testing.T) {
	m := newFundedManager(testConfig())
	now := time.Now()
	key := channelKey{tokenID: "tok", side: domain.SideLong}

	m.mu.Lock()
	m.setCooldownLocked(key, "first", now.Add(10*time.Minute))
	m.setCooldownLocked(key, "second", now.Add(time.Minute))
	cd := m.cooldowns[key]
	m.mu.Unlock()

	// A shorter later cooldown never shrinks the expiry.
	assert.Equal(t, now.Add(10*time.Minute), cd.Until)
	assert.Equal(t, 2, cd.Attempts)
}
