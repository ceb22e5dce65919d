package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// TradeExecutor submits trade plans to the exchange. Implementations live
// behind this interface so the engine never touches signing or wire details.
type TradeExecutor interface {
	// Execute submits one plan. A rejected or errored result carries a
	// machine-readable reason; classification of exchange-side failures
	// (blocked, auth) is surfaced through typed errors.
	Execute(ctx context.Context, plan domain.TradePlan, now time.Time) (domain.ExecutionResult, error)

	// CollateralBalance returns available spendable collateral in USD,
	// used by the gas/collateral floor check.
	CollateralBalance(ctx context.Context) (float64, error)
}
