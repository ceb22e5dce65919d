package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

const (
	orderPath   = "/order"
	balancePath = "/balance"
)

// Executor implements ports.TradeExecutor against the CLOB order API.
// Authentication and failure classification happen in the client; this
// layer only shapes requests and results.
type Executor struct {
	client *Client
}

// NewExecutor creates an Executor.
func NewExecutor(client *Client) *Executor {
	return &Executor{client: client}
}

// Execute submits one trade plan as a marketable limit order.
func (e *Executor) Execute(ctx context.Context, plan domain.TradePlan, now time.Time) (domain.ExecutionResult, error) {
	body := clobOrderRequest{
		TokenID: plan.TokenID,
		Side:    sideString(plan.Side),
		Price:   plan.PriceCents / 100,
		SizeUSD: plan.SizeUSD,
		Type:    "FOK",
	}

	var resp clobOrderResponse
	err := e.client.post(ctx, e.client.orderLimiter, e.client.clobBase+orderPath, body, &resp)
	if err != nil {
		return domain.ExecutionResult{Status: domain.ExecError, Reason: err.Error()},
			fmt.Errorf("polymarket.Execute: plan %s: %w", plan.ID, err)
	}

	if !resp.Success {
		slog.Warn("order rejected by exchange",
			"plan", plan.ID,
			"kind", plan.Kind,
			"reason", resp.ErrorMsg,
		)
		return domain.ExecutionResult{Status: domain.ExecRejected, Reason: resp.ErrorMsg}, nil
	}

	slog.Info("order submitted",
		"plan", plan.ID,
		"kind", plan.Kind,
		"token", plan.TokenID,
		"size_usd", plan.SizeUSD,
		"order_id", resp.OrderID,
	)
	return domain.ExecutionResult{Status: domain.ExecSubmitted, TxHashes: resp.TxHashes}, nil
}

// CollateralBalance returns the spendable USDC balance in USD.
func (e *Executor) CollateralBalance(ctx context.Context) (float64, error) {
	var resp clobBalanceResponse
	url := e.client.clobBase + balancePath
	if err := e.client.get(ctx, e.client.orderLimiter, url, &resp); err != nil {
		return 0, fmt.Errorf("polymarket.CollateralBalance: %w", err)
	}
	bal, err := resp.Balance.Float64()
	if err != nil {
		return 0, fmt.Errorf("polymarket.CollateralBalance: parse %q: %w", resp.Balance, err)
	}
	return bal, nil
}

func sideString(s domain.Side) string {
	if s == domain.SideShort {
		return "SELL"
	}
	return "BUY"
}

// DryRunExecutor logs plans without touching the exchange. It reports a
// fixed collateral balance so the gate chain stays exercisable.
type DryRunExecutor struct {
	BalanceUSD float64
}

// Execute records the plan and returns a dry-run result.
func (d *DryRunExecutor) Execute(_ context.Context, plan domain.TradePlan, _ time.Time) (domain.ExecutionResult, error) {
	slog.Info("dry-run order",
		"plan", plan.ID,
		"kind", plan.Kind,
		"token", plan.TokenID,
		"side", plan.Side,
		"price_cents", plan.PriceCents,
		"size_usd", plan.SizeUSD,
		"reason", plan.Reason,
	)
	return domain.ExecutionResult{Status: domain.ExecDryRun, Reason: plan.Reason}, nil
}

// CollateralBalance returns the configured paper balance.
func (d *DryRunExecutor) CollateralBalance(context.Context) (float64, error) {
	return d.BalanceUSD, nil
}
