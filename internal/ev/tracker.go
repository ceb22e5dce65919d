// Package ev keeps rolling win/loss statistics over the most recent trade
// outcomes and gates trading when expected value decays.
package ev

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// Config tunes the rolling window and the pause thresholds.
type Config struct {
	WindowSize      int
	MinTrades       int
	MinEVCents      float64
	MinProfitFactor float64
	PauseDuration   time.Duration
	ChurnCostCents  float64
}

// Metrics is the state of the rolling window, recomputed on every outcome.
type Metrics struct {
	Trades       int
	Wins         int
	Losses       int
	WinRate      float64
	AvgWinCents  float64
	AvgLossCents float64
	EVCents      float64
	ProfitFactor float64
}

// sample is the part of an outcome the window needs to keep.
type sample struct {
	PnLCents float64   `json:"pnl_cents"`
	ClosedAt time.Time `json:"closed_at"`
}

// Tracker maintains the rolling window and the pause gate. Safe for
// concurrent use.
type Tracker struct {
	cfg Config

	mu          sync.Mutex
	window      []sample
	metrics     Metrics
	pausedUntil time.Time
	pauseReason string
}

// NewTracker creates a tracker for the given config.
func NewTracker(cfg Config) *Tracker {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 50
	}
	return &Tracker{cfg: cfg}
}

// Record folds one closed trade into the window and re-evaluates the pause
// gate.
func (t *Tracker) Record(outcome domain.TradeOutcome, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.window = append(t.window, sample{PnLCents: outcome.PnLCents(), ClosedAt: outcome.ClosedAt})
	if len(t.window) > t.cfg.WindowSize {
		t.window = t.window[len(t.window)-t.cfg.WindowSize:]
	}
	t.recomputeLocked()

	// A pause never resets metrics; it only holds entries until it elapses.
	if t.warmedUpLocked() && now.After(t.pausedUntil) {
		if t.metrics.EVCents < t.cfg.MinEVCents {
			t.pausedUntil = now.Add(t.cfg.PauseDuration)
			t.pauseReason = fmt.Sprintf("ev %.2f¢ below minimum %.2f¢", t.metrics.EVCents, t.cfg.MinEVCents)
		} else if t.metrics.ProfitFactor < t.cfg.MinProfitFactor {
			t.pausedUntil = now.Add(t.cfg.PauseDuration)
			t.pauseReason = fmt.Sprintf("profit factor %.2f below minimum %.2f", t.metrics.ProfitFactor, t.cfg.MinProfitFactor)
		}
	}
}

// Allowed reports whether trading is currently permitted. The warm-up
// period (fewer than MinTrades outcomes) is always permissive.
func (t *Tracker) Allowed(now time.Time) (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.warmedUpLocked() {
		return true, "warming up"
	}
	if now.Before(t.pausedUntil) {
		return false, t.pauseReason
	}
	return true, ""
}

// Metrics returns a copy of the current rolling metrics.
func (t *Tracker) Metrics() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.metrics
}

// state is the exported persistence form.
type state struct {
	Window      []sample  `json:"window"`
	PausedUntil time.Time `json:"paused_until"`
	PauseReason string    `json:"pause_reason,omitempty"`
}

// Export serializes the window and pause state. Importing the result into
// a fresh tracker reproduces identical metrics.
func (t *Tracker) Export() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return json.Marshal(state{Window: t.window, PausedUntil: t.pausedUntil, PauseReason: t.pauseReason})
}

// Import restores previously exported state.
func (t *Tracker) Import(data []byte) error {
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("ev.Import: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.window = st.Window
	if len(t.window) > t.cfg.WindowSize {
		t.window = t.window[len(t.window)-t.cfg.WindowSize:]
	}
	t.pausedUntil = st.PausedUntil
	t.pauseReason = st.PauseReason
	t.recomputeLocked()
	return nil
}

func (t *Tracker) warmedUpLocked() bool {
	return len(t.window) >= t.cfg.MinTrades
}

// recomputeLocked rebuilds metrics from the window. Callers hold t.mu.
func (t *Tracker) recomputeLocked() {
	m := Metrics{Trades: len(t.window)}
	var winSum, lossSum float64
	for _, s := range t.window {
		if s.PnLCents > 0 {
			m.Wins++
			winSum += s.PnLCents
		} else {
			m.Losses++
			lossSum += -s.PnLCents
		}
	}
	if m.Trades > 0 {
		m.WinRate = float64(m.Wins) / float64(m.Trades)
	}
	if m.Wins > 0 {
		m.AvgWinCents = winSum / float64(m.Wins)
	}
	if m.Losses > 0 {
		m.AvgLossCents = lossSum / float64(m.Losses)
	}

	m.EVCents = m.WinRate*m.AvgWinCents - (1-m.WinRate)*m.AvgLossCents - t.cfg.ChurnCostCents

	switch {
	case lossSum == 0 && winSum == 0:
		m.ProfitFactor = 0
	case lossSum == 0:
		m.ProfitFactor = math.Inf(1)
	default:
		m.ProfitFactor = winSum / lossSum
	}

	t.metrics = m
}
