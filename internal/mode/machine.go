// Package mode is the NORMAL ⇄ SCAVENGER liquidity-regime state machine.
// Entering scavenger mode requires the low-liquidity condition to hold
// continuously for a sustained window, not merely be observed once; leaving
// it requires any single recovery signal to hold for its own window.
package mode

import (
	"fmt"
	"sync"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

const historyLimit = 100

// Config tunes the liquidity thresholds and sustain windows. MinSignals is
// how many of the three low-liquidity signals (low volume, thin book, few
// counterparties) must coincide; the default policy is two of three.
type Config struct {
	LowVolumeUSD     float64
	ThinBookUSD      float64
	FewTraders       int
	MinSignals       int
	SustainedEnter   time.Duration
	RecoverVolumeUSD float64
	RecoverDepthUSD  float64
	RecoverTraders   int
	SustainedRecover time.Duration
}

// Machine owns the current mode and its bounded transition history. Safe
// for concurrent use.
type Machine struct {
	cfg Config

	mu        sync.Mutex
	mode      domain.TradingMode
	enteredAt time.Time
	lowSince  time.Time            // zero while the low condition is not holding
	recSince  map[string]time.Time // recovery signal name → start of continuous hold
	history   []domain.ModeTransition
}

// NewMachine starts in NORMAL mode.
func NewMachine(cfg Config, now time.Time) *Machine {
	if cfg.MinSignals <= 0 {
		cfg.MinSignals = 2
	}
	return &Machine{
		cfg:       cfg,
		mode:      domain.ModeNormal,
		enteredAt: now,
		recSince:  make(map[string]time.Time),
	}
}

// Mode returns the current trading mode.
func (m *Machine) Mode() domain.TradingMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// History returns a copy of the bounded transition history.
func (m *Machine) History() []domain.ModeTransition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ModeTransition, len(m.history))
	copy(out, m.history)
	return out
}

// Observe feeds one activity sample through the machine. It returns the
// transition performed, or nil when the mode did not change. The
// scavenger→normal direction is a pure state change with no trade side
// effects of its own.
func (m *Machine) Observe(sample domain.ActivitySample) *domain.ModeTransition {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.mode {
	case domain.ModeNormal:
		return m.observeNormalLocked(sample)
	case domain.ModeScavenger:
		return m.observeScavengerLocked(sample)
	}
	return nil
}

// observeNormalLocked watches for a sustained low-liquidity condition.
func (m *Machine) observeNormalLocked(sample domain.ActivitySample) *domain.ModeTransition {
	signals := 0
	if sample.VolumeUSD < m.cfg.LowVolumeUSD {
		signals++
	}
	if sample.BookDepthUSD < m.cfg.ThinBookUSD {
		signals++
	}
	if sample.ActiveTraders < m.cfg.FewTraders {
		signals++
	}

	if signals < m.cfg.MinSignals {
		m.lowSince = time.Time{}
		return nil
	}
	if m.lowSince.IsZero() {
		m.lowSince = sample.At
		return nil
	}
	if sample.At.Sub(m.lowSince) < m.cfg.SustainedEnter {
		return nil
	}

	reason := fmt.Sprintf("%d/3 low-liquidity signals sustained %s", signals, m.cfg.SustainedEnter)
	return m.transitionLocked(domain.ModeScavenger, reason, sample)
}

// observeScavengerLocked watches for any single sustained recovery signal.
func (m *Machine) observeScavengerLocked(sample domain.ActivitySample) *domain.ModeTransition {
	checks := []struct {
		name string
		ok   bool
	}{
		{"volume", sample.VolumeUSD >= m.cfg.RecoverVolumeUSD},
		{"depth", sample.BookDepthUSD >= m.cfg.RecoverDepthUSD},
		{"traders", sample.ActiveTraders >= m.cfg.RecoverTraders},
	}

	for _, c := range checks {
		if !c.ok {
			delete(m.recSince, c.name)
			continue
		}
		since, held := m.recSince[c.name]
		if !held {
			m.recSince[c.name] = sample.At
			continue
		}
		if sample.At.Sub(since) >= m.cfg.SustainedRecover {
			reason := fmt.Sprintf("%s recovery sustained %s", c.name, m.cfg.SustainedRecover)
			return m.transitionLocked(domain.ModeNormal, reason, sample)
		}
	}
	return nil
}

// transitionLocked performs the mode change and records it. Same-mode
// transitions are a no-op.
func (m *Machine) transitionLocked(to domain.TradingMode, reason string, sample domain.ActivitySample) *domain.ModeTransition {
	if to == m.mode {
		return nil
	}
	tr := domain.ModeTransition{
		From:   m.mode,
		To:     to,
		At:     sample.At,
		Reason: reason,
		Sample: sample,
	}
	m.mode = to
	m.enteredAt = sample.At
	m.lowSince = time.Time{}
	m.recSince = make(map[string]time.Time)

	m.history = append(m.history, tr)
	if len(m.history) > historyLimit {
		m.history = m.history[len(m.history)-historyLimit:]
	}
	return &tr
}
