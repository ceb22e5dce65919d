package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyedge/internal/adapters/storage"
	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/ports"
)

func makeDecision(marketID string, ts time.Time) ports.DecisionRecord {
	return ports.DecisionRecord{
		TS:           ts,
		MarketID:     marketID,
		YesAsk:       0.52,
		NoAsk:        0.44,
		Sum:          0.96,
		EdgeBps:      400,
		Liquidity:    5000,
		SpreadBps:    150,
		EstProfitUSD: 1.75,
		Action:       "executed",
		Reason:       "edge above threshold",
		PlannedSize:  50,
		Status:       "submitted",
	}
}

func TestSQLiteStore_SaveAndGetDecisions(t *testing.T) {
	db, err := storage.NewSQLiteStore(":memory:", 30*24*time.Hour)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, db.SaveDecision(ctx, makeDecision("0xaaa", now.Add(-time.Hour))))
	require.NoError(t, db.SaveDecision(ctx, makeDecision("0xbbb", now)))

	recs, err := db.GetDecisions(ctx, now.Add(-2*time.Hour), now)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// Newest first.
	assert.Equal(t, "0xbbb", recs[0].MarketID)
	assert.Equal(t, "0xaaa", recs[1].MarketID)
	assert.InDelta(t, 400.0, recs[0].EdgeBps, 1e-9)
	assert.Equal(t, "executed", recs[0].Action)
	assert.InDelta(t, 50.0, recs[0].PlannedSize, 1e-9)

	// Outside the range.
	recs, err = db.GetDecisions(ctx, now.Add(time.Minute), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSQLiteStore_StateRoundTrip(t *testing.T) {
	db, err := storage.NewSQLiteStore(":memory:", 0)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	// No state yet.
	state, err := db.LoadState(ctx, "ev")
	require.NoError(t, err)
	assert.Nil(t, state)

	require.NoError(t, db.SaveState(ctx, "ev", []byte(`{"window":[1,2]}`)))
	state, err = db.LoadState(ctx, "ev")
	require.NoError(t, err)
	assert.JSONEq(t, `{"window":[1,2]}`, string(state))

	// Upsert replaces.
	require.NoError(t, db.SaveState(ctx, "ev", []byte(`{"window":[3]}`)))
	state, err = db.LoadState(ctx, "ev")
	require.NoError(t, err)
	assert.JSONEq(t, `{"window":[3]}`, string(state))
}

func TestSQLiteStore_SaveModeTransition(t *testing.T) {
	db, err := storage.NewSQLiteStore(":memory:", 0)
	require.NoError(t, err)
	defer db.Close()

	tr := domain.ModeTransition{
		From:   domain.ModeNormal,
		To:     domain.ModeScavenger,
		At:     time.Now().UTC(),
		Reason: "volume and depth below floor",
	}
	assert.NoError(t, db.SaveModeTransition(context.Background(), tr))
}
