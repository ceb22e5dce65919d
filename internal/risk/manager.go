// Package risk gates every opportunity before it may reach the executor:
// in-flight locks, per-channel cooldowns, re-entry suppression, submission
// rate ceilings, exposure limits, collateral floor, and the circuit
// breaker that trips after consecutive failures.
package risk

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/ports"
	"github.com/alejandrodnm/polyedge/internal/ratelimit"
)

// Config holds all risk thresholds, provided by the validated
// configuration object.
type Config struct {
	MaxWalletExposureUSD   float64
	MaxMarketExposureUSD   float64
	MinNotionalUSD         float64
	MaxSubmissionsPerHour  int
	FailureCooldown        time.Duration
	MarketReentryCooldown  time.Duration
	BlockCooldown          time.Duration
	AuthCooldown           time.Duration
	MaxConsecutiveFailures int
	CircuitCooldown        time.Duration
	MinCollateralUSD       float64
}

// channelKey identifies one execution channel.
type channelKey struct {
	tokenID string
	side    domain.Side
}

// Manager is the order submission controller. Safe for concurrent use.
type Manager struct {
	cfg Config

	mu              sync.Mutex
	locks           map[channelKey]domain.InFlightLock
	cooldowns       map[channelKey]domain.CooldownEntry
	marketCooldowns map[string]time.Time
	submissions     *ratelimit.Window

	guardUntil  time.Time
	guardState  domain.GuardState
	guardReason string

	consecutiveFailures int
	detectOnly          bool

	marketExposure map[string]float64
	walletExposure float64
	collateralUSD  float64
}

// NewManager creates a Manager.
func NewManager(cfg Config) *Manager {
	if cfg.MaxSubmissionsPerHour <= 0 {
		cfg.MaxSubmissionsPerHour = 60
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = 5
	}
	return &Manager{
		cfg:             cfg,
		locks:           make(map[channelKey]domain.InFlightLock),
		cooldowns:       make(map[channelKey]domain.CooldownEntry),
		marketCooldowns: make(map[string]time.Time),
		submissions:     ratelimit.NewWindow(cfg.MaxSubmissionsPerHour, time.Hour),
		guardState:      domain.GuardNormal,
		marketExposure:  make(map[string]float64),
	}
}

// SetCollateralBalance updates the cached spendable collateral, refreshed
// by the engine once per cycle.
func (m *Manager) SetCollateralBalance(usd float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collateralUSD = usd
}

// DetectOnly reports whether an auth failure has forced the system into
// conservative detect-only behavior.
func (m *Manager) DetectOnly() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detectOnly
}

// GuardState returns the channel guard state at now.
func (m *Manager) GuardState(now time.Time) (domain.GuardState, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if now.Before(m.guardUntil) {
		return m.guardState, m.guardReason
	}
	return domain.GuardNormal, ""
}

// Evaluate runs the ordered gate chain for one opportunity. tokenID is
// the token the order would actually buy, so cooldowns recorded on either
// side of the pair are consulted. The decision is computed fresh and
// never persisted.
func (m *Manager) Evaluate(opp domain.Opportunity, tokenID string, side domain.Side, now time.Time) domain.RiskDecision {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Guard first: an open circuit or an active block/auth cooldown
	// short-circuits everything with "skipped".
	if now.Before(m.guardUntil) {
		return domain.Reject(fmt.Sprintf("skipped: %s until %s (%s)",
			m.guardState, m.guardUntil.Format(time.RFC3339), m.guardReason))
	}

	key := channelKey{tokenID: tokenID, side: side}

	if lock, ok := m.locks[key]; ok && !lock.Done() {
		return domain.Reject(fmt.Sprintf("in-flight submission %s on channel", lock.ID))
	}

	if cd, ok := m.cooldowns[key]; ok && cd.Active(now) {
		return domain.Reject(fmt.Sprintf("channel cooldown until %s: %s", cd.Until.Format(time.RFC3339), cd.Reason))
	}

	if until, ok := m.marketCooldowns[opp.MarketID]; ok && now.Before(until) {
		return domain.Reject(fmt.Sprintf("market re-entry suppressed until %s", until.Format(time.RFC3339)))
	}

	if m.submissions.Pending(now) >= m.cfg.MaxSubmissionsPerHour {
		return domain.Reject("hourly submission ceiling reached")
	}

	size := opp.SizeUSD
	var warnings []string

	if room := m.cfg.MaxWalletExposureUSD - m.walletExposure; size > room {
		if room < m.cfg.MinNotionalUSD {
			return domain.Reject(fmt.Sprintf("wallet exposure ceiling reached ($%.2f deployed)", m.walletExposure))
		}
		size = room
		warnings = append(warnings, fmt.Sprintf("size clamped to wallet room $%.2f", room))
	}
	if room := m.cfg.MaxMarketExposureUSD - m.marketExposure[opp.MarketID]; size > room {
		if room < m.cfg.MinNotionalUSD {
			return domain.Reject(fmt.Sprintf("market exposure ceiling reached for %s", opp.MarketID))
		}
		size = room
		warnings = append(warnings, fmt.Sprintf("size clamped to market room $%.2f", room))
	}

	if m.collateralUSD < m.cfg.MinCollateralUSD || m.collateralUSD < size {
		return domain.Reject(fmt.Sprintf("insufficient collateral ($%.2f)", m.collateralUSD))
	}

	// Pre-flight notional floor: too-small submissions never reach the
	// executor.
	if size < m.cfg.MinNotionalUSD {
		return domain.Reject(fmt.Sprintf("notional $%.2f below minimum $%.2f", size, m.cfg.MinNotionalUSD))
	}

	return domain.Approve(size, warnings...)
}

// BeginSubmission takes the in-flight lock for a channel and counts the
// submission against the hourly ceiling. It re-runs the guard, cooldown
// and ceiling gates so that every order — exits and hedges included, which
// never pass through Evaluate — is short-circuited while the channel is
// blocked. At most one uncompleted lock may exist per channel.
func (m *Manager) BeginSubmission(tokenID string, side domain.Side, strategy string, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if now.Before(m.guardUntil) {
		return "", fmt.Errorf("risk.BeginSubmission: skipped: %s until %s (%s)",
			m.guardState, m.guardUntil.Format(time.RFC3339), m.guardReason)
	}

	key := channelKey{tokenID: tokenID, side: side}
	if lock, ok := m.locks[key]; ok && !lock.Done() {
		return "", fmt.Errorf("risk.BeginSubmission: channel %s/%s already in flight", tokenID, side)
	}

	if cd, ok := m.cooldowns[key]; ok && cd.Active(now) {
		return "", fmt.Errorf("risk.BeginSubmission: channel %s/%s cooling down until %s: %s",
			tokenID, side, cd.Until.Format(time.RFC3339), cd.Reason)
	}

	if !m.submissions.Allow(now) {
		return "", fmt.Errorf("risk.BeginSubmission: hourly submission ceiling reached")
	}

	lock := domain.InFlightLock{
		ID:        uuid.NewString(),
		TokenID:   tokenID,
		Side:      side,
		Strategy:  strategy,
		StartedAt: now,
	}
	m.locks[key] = lock
	return lock.ID, nil
}

// CompleteSubmission releases the lock and updates failure bookkeeping.
// Exchange-side failures are classified: blocked responses and auth
// failures open guard cooldowns (auth additionally forces detect-only);
// other failures count toward the circuit breaker.
func (m *Manager) CompleteSubmission(tokenID string, side domain.Side, submitErr error, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := channelKey{tokenID: tokenID, side: side}
	delete(m.locks, key)

	if submitErr == nil {
		m.consecutiveFailures = 0
		return
	}

	switch {
	case errors.Is(submitErr, ports.ErrBlocked):
		m.openGuardLocked(domain.GuardCooldown, "anti-bot block", now.Add(m.cfg.BlockCooldown))
	case errors.Is(submitErr, ports.ErrAuthFailed):
		m.detectOnly = true
		m.openGuardLocked(domain.GuardCooldown, "auth failure", now.Add(m.cfg.AuthCooldown))
	default:
		m.consecutiveFailures++
		m.setCooldownLocked(key, "submission failed", now.Add(m.cfg.FailureCooldown))
		if m.consecutiveFailures >= m.cfg.MaxConsecutiveFailures {
			m.openGuardLocked(domain.GuardCircuitOpen,
				fmt.Sprintf("%d consecutive failures", m.consecutiveFailures),
				now.Add(m.cfg.CircuitCooldown))
			m.consecutiveFailures = 0
		}
	}
}

// RecordFill adds filled exposure after a successful entry and arms the
// market's re-entry suppression window.
func (m *Manager) RecordFill(marketID string, sizeUSD float64, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marketExposure[marketID] += sizeUSD
	m.walletExposure += sizeUSD
	until := now.Add(m.cfg.MarketReentryCooldown)
	if existing, ok := m.marketCooldowns[marketID]; !ok || until.After(existing) {
		m.marketCooldowns[marketID] = until
	}
}

// ReleaseExposure removes exposure after a position closes.
func (m *Manager) ReleaseExposure(marketID string, sizeUSD float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marketExposure[marketID] -= sizeUSD
	if m.marketExposure[marketID] <= 0 {
		delete(m.marketExposure, marketID)
	}
	m.walletExposure -= sizeUSD
	if m.walletExposure < 0 {
		m.walletExposure = 0
	}
}

// MarketExposureRoomUSD implements strategy.ExposureSource.
func (m *Manager) MarketExposureRoomUSD(marketID string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	room := m.cfg.MaxMarketExposureUSD - m.marketExposure[marketID]
	if room < 0 {
		return 0
	}
	return room
}

// WalletExposureRoomUSD implements strategy.ExposureSource.
func (m *Manager) WalletExposureRoomUSD() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	room := m.cfg.MaxWalletExposureUSD - m.walletExposure
	if room < 0 {
		return 0
	}
	return room
}

// Prune drops expired cooldowns and market suppression windows.
func (m *Manager) Prune(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, cd := range m.cooldowns {
		if !cd.Active(now) {
			delete(m.cooldowns, key)
		}
	}
	for id, until := range m.marketCooldowns {
		if !now.Before(until) {
			delete(m.marketCooldowns, id)
		}
	}
}

// setCooldownLocked arms (or extends) a channel cooldown. Expiry is
// monotonically non-decreasing per key while active. Callers hold m.mu.
func (m *Manager) setCooldownLocked(key channelKey, reason string, until time.Time) {
	cd, ok := m.cooldowns[key]
	if ok && cd.Until.After(until) {
		until = cd.Until
	}
	m.cooldowns[key] = domain.CooldownEntry{
		TokenID:  key.tokenID,
		Side:     key.side,
		Until:    until,
		Reason:   reason,
		Attempts: cd.Attempts + 1,
	}
}

// openGuardLocked opens a guard window. Callers hold m.mu.
func (m *Manager) openGuardLocked(state domain.GuardState, reason string, until time.Time) {
	if m.guardState == state && m.guardUntil.After(until) {
		return
	}
	m.guardState = state
	m.guardReason = reason
	m.guardUntil = until
}
