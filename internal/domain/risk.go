package domain

import "time"

// GuardState is the gate state of an execution channel.
type GuardState string

const (
	GuardNormal      GuardState = "NORMAL"
	GuardCooldown    GuardState = "COOLDOWN"
	GuardCircuitOpen GuardState = "CIRCUIT_OPEN"
)

// RiskDecision is the outcome of gating one opportunity. It is computed
// fresh per evaluation and never persisted.
type RiskDecision struct {
	Approved        bool
	Reason          string
	AdjustedSizeUSD float64
	Warnings        []string
}

// Approve builds an approving decision, optionally with a size adjustment.
func Approve(sizeUSD float64, warnings ...string) RiskDecision {
	return RiskDecision{Approved: true, AdjustedSizeUSD: sizeUSD, Warnings: warnings}
}

// Reject builds a rejecting decision. A rejection always carries a reason;
// an empty one is replaced so the invariant holds even on programmer error.
func Reject(reason string) RiskDecision {
	if reason == "" {
		reason = "rejected"
	}
	return RiskDecision{Approved: false, Reason: reason}
}

// CooldownEntry blocks a (token, side) channel until Until. Expiry is
// monotonically non-decreasing per key while the entry is active.
type CooldownEntry struct {
	TokenID  string
	Side     Side
	Until    time.Time
	Reason   string
	Attempts int
}

// Active reports whether the cooldown is still in force at now.
func (c CooldownEntry) Active(now time.Time) bool {
	return now.Before(c.Until)
}

// InFlightLock marks one submission in progress for a (token, side)
// channel. At most one uncompleted lock may exist per channel.
type InFlightLock struct {
	ID          string
	TokenID     string
	Side        Side
	Strategy    string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// Done reports whether the locked submission has completed.
func (l InFlightLock) Done() bool {
	return l.CompletedAt != nil
}
