package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// DecisionRecord is one persisted gate/trade decision.
type DecisionRecord struct {
	TS           time.Time `json:"ts"`
	MarketID     string    `json:"market_id"`
	YesAsk       float64   `json:"yes_ask"`
	NoAsk        float64   `json:"no_ask"`
	Sum          float64   `json:"sum"`
	EdgeBps      float64   `json:"edge_bps"`
	Liquidity    float64   `json:"liquidity"`
	SpreadBps    float64   `json:"spread_bps"`
	EstProfitUSD float64   `json:"est_profit_usd"`
	Action       string    `json:"action"`
	Reason       string    `json:"reason"`
	PlannedSize  float64   `json:"planned_size,omitempty"`
	TxHash       string    `json:"tx_hash,omitempty"`
	Status       string    `json:"status"`
}

// DecisionStore persists decision history and exported tracker state.
type DecisionStore interface {
	SaveDecision(ctx context.Context, rec DecisionRecord) error
	GetDecisions(ctx context.Context, from, to time.Time) ([]DecisionRecord, error)

	// SaveState / LoadState round-trip opaque component state (EV tracker,
	// learner) keyed by component name.
	SaveState(ctx context.Context, component string, state []byte) error
	LoadState(ctx context.Context, component string) ([]byte, error)

	SaveModeTransition(ctx context.Context, tr domain.ModeTransition) error

	Close() error
}
