package domain

import "time"

// TradingMode is the liquidity regime the whole system operates under.
type TradingMode string

const (
	ModeNormal    TradingMode = "NORMAL"
	ModeScavenger TradingMode = "SCAVENGER"
)

// ActivitySample is one observation of market activity, fed to the
// trading-mode state machine.
type ActivitySample struct {
	VolumeUSD     float64
	BookDepthUSD  float64
	ActiveTraders int
	At            time.Time
}

// ModeTransition records one regime change and the metrics that caused it.
type ModeTransition struct {
	From   TradingMode
	To     TradingMode
	At     time.Time
	Reason string
	Sample ActivitySample
}
