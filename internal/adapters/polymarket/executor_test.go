package polymarket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyedge/internal/adapters/polymarket"
	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/ports"
)

func newTestExecutor(srv *httptest.Server) *polymarket.Executor {
	client := polymarket.NewClient(polymarket.ClientConfig{
		CLOBBase:      srv.URL,
		RetryAttempts: 1,
		RetryBase:     time.Millisecond,
	})
	return polymarket.NewExecutor(client)
}

func testPlan() domain.TradePlan {
	return domain.TradePlan{
		ID:         "plan-1",
		Kind:       domain.PlanEntry,
		MarketID:   "0xabc",
		TokenID:    "tok_yes",
		Side:       domain.SideLong,
		PriceCents: 47,
		SizeUSD:    25,
		CreatedAt:  time.Now(),
	}
}

func TestExecute_Submitted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/order", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success": true, "orderID": "ord-9", "status": "matched", "transactionsHashes": ["0xf00"]}`))
	}))
	defer srv.Close()

	res, err := newTestExecutor(srv).Execute(context.Background(), testPlan(), time.Now())

	require.NoError(t, err)
	assert.Equal(t, domain.ExecSubmitted, res.Status)
	assert.Equal(t, []string{"0xf00"}, res.TxHashes)
}

func TestExecute_RejectedByExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success": false, "errorMsg": "not enough balance"}`))
	}))
	defer srv.Close()

	res, err := newTestExecutor(srv).Execute(context.Background(), testPlan(), time.Now())

	require.NoError(t, err)
	assert.Equal(t, domain.ExecRejected, res.Status)
	assert.Equal(t, "not enough balance", res.Reason)
}

func TestExecute_AuthFailureIsTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	res, err := newTestExecutor(srv).Execute(context.Background(), testPlan(), time.Now())

	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrAuthFailed)
	assert.Equal(t, domain.ExecError, res.Status)
}

func TestExecute_BlockIsTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestExecutor(srv).Execute(context.Background(), testPlan(), time.Now())

	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrBlocked)
}

func TestCollateralBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/balance", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"balance": "412.55"}`))
	}))
	defer srv.Close()

	bal, err := newTestExecutor(srv).CollateralBalance(context.Background())

	require.NoError(t, err)
	assert.InDelta(t, 412.55, bal, 1e-9)
}

func TestDryRunExecutor(t *testing.T) {
	d := &polymarket.DryRunExecutor{BalanceUSD: 500}

	res, err := d.Execute(context.Background(), testPlan(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.ExecDryRun, res.Status)

	bal, err := d.CollateralBalance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 500.0, bal, 1e-9)
}
