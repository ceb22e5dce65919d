// Package scavenger is the capital-preservation policy active while the
// trading-mode machine is in SCAVENGER. Two passive monitors run each cycle
// over held positions (opportunistic green exits, red-position recovery
// exits) and micro-buys are allowed only under strict capital gates.
package scavenger

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/ttlcache"
)

// Config tunes the scavenger policy.
type Config struct {
	MinProfitPct      float64
	MinProfitUSD      float64
	StallWindow       time.Duration
	RecoveryProfitPct float64
	MicroBuyEnabled   bool
	MaxPositions      int
	MaxDeployedUSD    float64
	PerTradeCapUSD    float64
	CapitalFraction   float64
	MinOrderUSD       float64
	ReentryCooldown   time.Duration
}

// ExitSignal is the verdict of the per-position monitors.
type ExitSignal struct {
	Exit   bool
	Reason string
}

// Policy holds the scavenger state: per-token cooldowns, price-stall
// history, deployed capital, and monitored red positions. Deployed capital
// and position count always equal the sum/count of tracked entries. Safe
// for concurrent use.
type Policy struct {
	cfg Config

	mu        sync.Mutex
	cooldowns *ttlcache.Cache[string, string]
	highAt    map[string]time.Time // token → time of last favorable high
	highMark  map[string]float64   // token → best favorable cents seen
	red       map[string]bool      // token → under recovery monitoring
	entries   map[string]float64   // token → deployed USD
}

// NewPolicy creates an empty scavenger policy.
func NewPolicy(cfg Config) *Policy {
	return &Policy{
		cfg:       cfg,
		cooldowns: ttlcache.New[string, string](),
		highAt:    make(map[string]time.Time),
		highMark:  make(map[string]float64),
		red:       make(map[string]bool),
		entries:   make(map[string]float64),
	}
}

// ObservePrice feeds the stall detector one favorable-move observation.
func (p *Policy) ObservePrice(tokenID string, favorableCents float64, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if mark, ok := p.highMark[tokenID]; !ok || favorableCents > mark {
		p.highMark[tokenID] = favorableCents
		p.highAt[tokenID] = at
	}
}

// EvaluateExit runs both passive monitors over one position. Untrusted P&L
// never produces an exit.
func (p *Policy) EvaluateExit(pos domain.Position, now time.Time) ExitSignal {
	if !pos.PnLTrusted {
		return ExitSignal{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Red monitor: a losing position goes under monitoring and is
	// flattened the moment it crosses back above the recovery threshold,
	// never while still net negative.
	if pos.PnLUSD < 0 {
		p.red[pos.TokenID] = true
		return ExitSignal{}
	}
	if p.red[pos.TokenID] {
		if pos.PnLPct >= p.cfg.RecoveryProfitPct && pos.PnLUSD > 0 {
			return ExitSignal{Exit: true, Reason: fmt.Sprintf("red position recovered to +%.2f%%", pos.PnLPct)}
		}
		return ExitSignal{}
	}

	// Green monitor: take profit only once the position is both above the
	// minimum AND its price has stalled, so still-rising winners ride.
	if pos.PnLPct >= p.cfg.MinProfitPct && pos.PnLUSD >= p.cfg.MinProfitUSD {
		highAt, seen := p.highAt[pos.TokenID]
		if seen && now.Sub(highAt) >= p.cfg.StallWindow {
			return ExitSignal{Exit: true, Reason: fmt.Sprintf("green position stalled at +%.2f%% for %s", pos.PnLPct, p.cfg.StallWindow)}
		}
	}
	return ExitSignal{}
}

// CanMicroBuy gates an opportunistic micro-buy and returns the maximum
// size permitted. A zero size with ok=false means the buy is rejected.
func (p *Policy) CanMicroBuy(tokenID string, now time.Time) (sizeUSD float64, ok bool, reason string) {
	if !p.cfg.MicroBuyEnabled {
		return 0, false, "micro-buys disabled"
	}
	if why, cooling := p.cooldowns.Get(tokenID, now); cooling {
		return 0, false, "token under cooldown: " + why
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.entries) >= p.cfg.MaxPositions {
		return 0, false, fmt.Sprintf("at max scavenger positions (%d)", p.cfg.MaxPositions)
	}
	deployed := p.deployedLocked()
	room := p.cfg.MaxDeployedUSD - deployed
	if room <= 0 {
		return 0, false, fmt.Sprintf("max scavenger capital deployed ($%.2f)", deployed)
	}

	size := math.Min(p.cfg.PerTradeCapUSD, math.Min(p.cfg.CapitalFraction*p.cfg.MaxDeployedUSD, room))
	if size < p.cfg.MinOrderUSD {
		return 0, false, fmt.Sprintf("viable size $%.2f below minimum order $%.2f", size, p.cfg.MinOrderUSD)
	}
	return size, true, ""
}

// RecordEntry tracks a filled scavenger entry.
func (p *Policy) RecordEntry(tokenID string, sizeUSD float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[tokenID] += sizeUSD
}

// RecordExit removes a position from scavenger tracking and places the
// token under its re-entry cooldown.
func (p *Policy) RecordExit(tokenID string, now time.Time) {
	p.mu.Lock()
	delete(p.entries, tokenID)
	delete(p.red, tokenID)
	delete(p.highAt, tokenID)
	delete(p.highMark, tokenID)
	p.mu.Unlock()

	p.cooldowns.Set(tokenID, "recent scavenger exit", p.cfg.ReentryCooldown, now)
}

// DeployedUSD returns capital currently deployed by scavenger entries.
func (p *Policy) DeployedUSD() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deployedLocked()
}

// PositionCount returns the number of tracked scavenger positions.
func (p *Policy) PositionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Reset clears scavenger state on mode exit. Cooldowns survive so a fresh
// scavenger episode cannot immediately re-enter just-exited tokens.
func (p *Policy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.highAt = make(map[string]time.Time)
	p.highMark = make(map[string]float64)
	p.red = make(map[string]bool)
	p.entries = make(map[string]float64)
}

// deployedLocked sums tracked entries. Callers hold p.mu.
func (p *Policy) deployedLocked() float64 {
	total := 0.0
	for _, usd := range p.entries {
		total += usd
	}
	return total
}
