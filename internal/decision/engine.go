// Package decision times entries, exits, and hedges for held positions.
// Entry evaluation is an ordered conjunction of independent checks; exit
// evaluation is a priority list. All prices are in cents.
package decision

import (
	"fmt"
	"math"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// Bias is the directional signal for a token. Only LONG is tradable.
type Bias string

const (
	BiasLong  Bias = "LONG"
	BiasShort Bias = "SHORT"
	BiasNone  Bias = ""
)

// Exit reasons, in priority order.
const (
	ReasonHardExit   = "HARD_EXIT"
	ReasonTakeProfit = "TAKE_PROFIT"
	ReasonTimeStop   = "TIME_STOP"
	ReasonBiasFlip   = "BIAS_FLIP"
)

// Config holds the decision thresholds.
type Config struct {
	MinEntryPriceCents float64
	MaxEntryPriceCents float64
	MaxSpreadCents     float64
	MinDepthUSD        float64

	MaxOpenPositions    int
	MaxPerMarket        int
	MaxDeployedFraction float64

	TradeFraction float64
	MaxTradeUSD   float64
	MinTradeUSD   float64

	MaxAdverseCents float64
	TPCents         float64
	MaxHold         time.Duration

	HedgeTriggerCents float64
	HedgeRatio        float64
	MaxHedgeRatio     float64

	// SevereLossCents suppresses BIAS_FLIP exits: closing into an adverse
	// flip beyond this loss would lock in excess loss, so the position is
	// hedged instead. Defaults to HedgeTriggerCents.
	SevereLossCents float64

	// Entry scoring weights.
	PreferredPriceCents float64
	PriceZoneWidthCents float64
	WeightPrice         float64
	WeightSpread        float64
	WeightActivity      float64
}

// EvGate is the EV tracker's permission check.
type EvGate interface {
	Allowed(now time.Time) (bool, string)
}

// EntryInput is everything the entry checks need about one candidate.
type EntryInput struct {
	MarketID       string
	TokenID        string
	Bias           Bias
	PriceCents     float64
	SpreadCents    float64
	BidDepthUSD    float64
	AskDepthUSD    float64
	RecentActivity float64 // normalized 0..1
}

// RiskState is the portfolio context for the riskLimits check.
type RiskState struct {
	HoldingToken bool
	OpenTotal    int
	OpenInMarket int
	DeployedUSD  float64
	BankrollUSD  float64
}

// Check is one named pass/fail with its reason.
type Check struct {
	Name   string
	Pass   bool
	Reason string
}

// EntryDecision is the outcome of the full entry conjunction.
type EntryDecision struct {
	Enter   bool
	Reason  string
	Checks  []Check
	SizeUSD float64
	Score   float64
}

// ExitDecision is the outcome of the per-cycle exit scan.
type ExitDecision struct {
	Exit    bool
	Reason  string
	Urgency domain.Urgency
}

// Engine evaluates entries, exits, and hedges.
type Engine struct {
	cfg Config
	ev  EvGate
}

// New creates an Engine. The zero SevereLossCents falls back to the hedge
// trigger.
func New(cfg Config, ev EvGate) *Engine {
	if cfg.SevereLossCents <= 0 {
		cfg.SevereLossCents = cfg.HedgeTriggerCents
	}
	return &Engine{cfg: cfg, ev: ev}
}

// EvaluateEntry runs the ordered conjunction: bias → liquidity →
// priceBounds → riskLimits → evAllowed, short-circuiting on the first
// failure. If all pass, the trade is sized from the effective bankroll.
func (e *Engine) EvaluateEntry(in EntryInput, risk RiskState, now time.Time) EntryDecision {
	d := EntryDecision{}

	run := func(name string, pass bool, reason string) bool {
		d.Checks = append(d.Checks, Check{Name: name, Pass: pass, Reason: reason})
		if !pass {
			d.Reason = fmt.Sprintf("%s: %s", name, reason)
		}
		return pass
	}

	if !run("bias", in.Bias == BiasLong, fmt.Sprintf("signal %q is not tradable", in.Bias)) {
		return d
	}
	if !run("liquidity", e.liquidityOK(in), e.liquidityReason(in)) {
		return d
	}
	inBounds := in.PriceCents >= e.cfg.MinEntryPriceCents && in.PriceCents <= e.cfg.MaxEntryPriceCents
	if !run("priceBounds", inBounds,
		fmt.Sprintf("price %.0f¢ outside [%.0f, %.0f]", in.PriceCents, e.cfg.MinEntryPriceCents, e.cfg.MaxEntryPriceCents)) {
		return d
	}
	pass, reason := e.riskLimits(risk)
	if !run("riskLimits", pass, reason) {
		return d
	}
	allowed, evReason := e.ev.Allowed(now)
	if !run("evAllowed", allowed, evReason) {
		return d
	}

	size := math.Min(e.cfg.TradeFraction*risk.BankrollUSD, e.cfg.MaxTradeUSD)
	if size < e.cfg.MinTradeUSD {
		d.Reason = fmt.Sprintf("size $%.2f below minimum trade $%.2f", size, e.cfg.MinTradeUSD)
		return d
	}

	d.Enter = true
	d.SizeUSD = size
	d.Score = e.Score(in)
	return d
}

// EvaluateExit checks a held position against the prioritized exit rules.
// Untrusted P&L never produces an exit.
func (e *Engine) EvaluateExit(pos domain.Position, bias Bias, now time.Time) ExitDecision {
	if !pos.PnLTrusted {
		return ExitDecision{}
	}

	adverse := pos.AdverseCents()
	favorable := pos.FavorableCents()

	if adverse >= e.cfg.MaxAdverseCents {
		return ExitDecision{Exit: true, Reason: ReasonHardExit, Urgency: domain.UrgencyCritical}
	}
	if favorable >= e.cfg.TPCents {
		return ExitDecision{Exit: true, Reason: ReasonTakeProfit, Urgency: domain.UrgencyMedium}
	}
	if pos.HeldFor(now) > e.cfg.MaxHold {
		return ExitDecision{Exit: true, Reason: ReasonTimeStop, Urgency: domain.UrgencyMedium}
	}

	flipped := (pos.Side == domain.SideLong && bias == BiasShort) ||
		(pos.Side == domain.SideShort && bias == BiasLong)
	// A flip against a severely losing position is not an exit signal:
	// closing there locks in excess loss, the hedge path handles it.
	if flipped && adverse < e.cfg.SevereLossCents {
		return ExitDecision{Exit: true, Reason: ReasonBiasFlip, Urgency: domain.UrgencyHigh}
	}

	return ExitDecision{}
}

// NeedsHedge reports whether the position should be hedged and at what
// size. Hedge size is HedgeRatio×entry, clamped to the room remaining
// under MaxHedgeRatio.
func (e *Engine) NeedsHedge(pos domain.Position) (float64, bool) {
	if !pos.PnLTrusted {
		return 0, false
	}
	if pos.AdverseCents() < e.cfg.HedgeTriggerCents || pos.HedgeRatio >= e.cfg.MaxHedgeRatio {
		return 0, false
	}
	ratio := math.Min(e.cfg.HedgeRatio, e.cfg.MaxHedgeRatio-pos.HedgeRatio)
	return ratio * pos.SizeUSD, true
}

// Score ranks entry candidates: proximity to the preferred price zone,
// tighter spread, and higher recent activity each raise it monotonically.
// Scoring never gates.
func (e *Engine) Score(in EntryInput) float64 {
	priceScore := 0.0
	if e.cfg.PriceZoneWidthCents > 0 {
		priceScore = math.Max(0, 1-math.Abs(in.PriceCents-e.cfg.PreferredPriceCents)/e.cfg.PriceZoneWidthCents)
	}
	spreadScore := 0.0
	if e.cfg.MaxSpreadCents > 0 {
		spreadScore = math.Max(0, 1-in.SpreadCents/e.cfg.MaxSpreadCents)
	}
	activity := math.Max(0, math.Min(1, in.RecentActivity))

	return e.cfg.WeightPrice*priceScore + e.cfg.WeightSpread*spreadScore + e.cfg.WeightActivity*activity
}

func (e *Engine) liquidityOK(in EntryInput) bool {
	return in.SpreadCents <= e.cfg.MaxSpreadCents &&
		in.BidDepthUSD >= e.cfg.MinDepthUSD &&
		in.AskDepthUSD >= e.cfg.MinDepthUSD
}

func (e *Engine) liquidityReason(in EntryInput) string {
	if in.SpreadCents > e.cfg.MaxSpreadCents {
		return fmt.Sprintf("spread %.1f¢ above max %.1f¢", in.SpreadCents, e.cfg.MaxSpreadCents)
	}
	if in.BidDepthUSD < e.cfg.MinDepthUSD || in.AskDepthUSD < e.cfg.MinDepthUSD {
		return fmt.Sprintf("depth below $%.0f on at least one side", e.cfg.MinDepthUSD)
	}
	return ""
}

// riskLimits checks portfolio-level entry limits.
func (e *Engine) riskLimits(risk RiskState) (bool, string) {
	switch {
	case risk.HoldingToken:
		return false, "already holding token"
	case risk.OpenTotal >= e.cfg.MaxOpenPositions:
		return false, fmt.Sprintf("at max open positions (%d)", e.cfg.MaxOpenPositions)
	case risk.OpenInMarket >= e.cfg.MaxPerMarket:
		return false, fmt.Sprintf("at max positions for market (%d)", e.cfg.MaxPerMarket)
	case risk.BankrollUSD > 0 && risk.DeployedUSD/risk.BankrollUSD >= e.cfg.MaxDeployedFraction:
		return false, fmt.Sprintf("deployed fraction %.2f at ceiling %.2f",
			risk.DeployedUSD/risk.BankrollUSD, e.cfg.MaxDeployedFraction)
	}
	return true, ""
}
