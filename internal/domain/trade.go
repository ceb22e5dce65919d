package domain

import "time"

// PlanKind distinguishes why a trade plan exists.
type PlanKind string

const (
	PlanEntry    PlanKind = "ENTRY"
	PlanExit     PlanKind = "EXIT"
	PlanHedge    PlanKind = "HEDGE"
	PlanMicroBuy PlanKind = "MICRO_BUY"
)

// Urgency grades how quickly a plan should reach the exchange.
type Urgency string

const (
	UrgencyLow      Urgency = "LOW"
	UrgencyMedium   Urgency = "MEDIUM"
	UrgencyHigh     Urgency = "HIGH"
	UrgencyCritical Urgency = "CRITICAL"
)

// TradePlan is an executable instruction handed to the TradeExecutor.
type TradePlan struct {
	ID         string
	Kind       PlanKind
	MarketID   string
	TokenID    string
	Side       Side
	PriceCents float64
	SizeUSD    float64
	Reason     string
	Urgency    Urgency
	CreatedAt  time.Time
}

// ExecStatus is the executor's verdict on a plan.
type ExecStatus string

const (
	ExecSubmitted ExecStatus = "submitted"
	ExecDryRun    ExecStatus = "dry_run"
	ExecRejected  ExecStatus = "rejected"
	ExecError     ExecStatus = "error"
)

// ExecutionResult is what came back from the executor for one plan.
type ExecutionResult struct {
	Status   ExecStatus
	Reason   string
	TxHashes []string
}

// TradeOutcome is one closed trade, fed to the EV tracker and the learner.
type TradeOutcome struct {
	MarketID   string
	TokenID    string
	Side       Side
	EntryCents float64
	ExitCents  float64
	SizeUSD    float64
	ClosedAt   time.Time
}

// PnLCents returns the signed per-share result in cents.
func (t TradeOutcome) PnLCents() float64 {
	if t.Side == SideLong {
		return t.ExitCents - t.EntryCents
	}
	return t.EntryCents - t.ExitCents
}

// PnLUSD converts the cent move into dollars over the traded size.
func (t TradeOutcome) PnLUSD() float64 {
	if t.EntryCents <= 0 {
		return 0
	}
	shares := t.SizeUSD / (t.EntryCents / 100)
	return t.PnLCents() / 100 * shares
}

// Win reports whether the trade closed profitably.
func (t TradeOutcome) Win() bool {
	return t.PnLCents() > 0
}
