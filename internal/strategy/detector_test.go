package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// unlimited satisfies ExposureSource with no ceilings.
type unlimited struct{}

func (unlimited) MarketExposureRoomUSD(string) float64 { return 1e9 }
func (unlimited) WalletExposureRoomUSD() float64       { return 1e9 }

// cappedExposure limits one market.
type cappedExposure struct {
	market    string
	marketCap float64
	walletCap float64
}

func (c cappedExposure) MarketExposureRoomUSD(id string) float64 {
	if id == c.market {
		return c.marketCap
	}
	return 1e9
}
func (c cappedExposure) WalletExposureRoomUSD() float64 { return c.walletCap }

// avoidList is a fixed Avoider.
type avoidList map[string]bool

func (a avoidList) Avoided(marketID string, _ time.Time) (bool, string) {
	return a[marketID], "avoided"
}

func testConfig() Config {
	return Config{
		MinEdgeBps:      300,
		MinLiquidityUSD: 1000,
		MaxSpreadBps:    500,
		MinProfitUSD:    0.5,
		FeeBps:          20,
		SlippageBps:     10,
		Curve:           CurveLinear,
		SizeFraction:    0.1,
		MaxSizeUSD:      500,
	}
}

func snap(id string, yesAsk, noAsk float64) domain.MarketSnapshot {
	return domain.MarketSnapshot{
		MarketID:     id,
		YesTokenID:   id + "-yes",
		NoTokenID:    id + "-no",
		YesBook:      domain.BookTop{BestBid: yesAsk - 0.01, BestAsk: yesAsk},
		NoBook:       domain.BookTop{BestBid: noAsk - 0.01, BestAsk: noAsk},
		LiquidityUSD: 5000,
	}
}

func TestDetect_AcceptsEdgeAboveMinimum(t *testing.T) {
	d := NewDetector(testConfig(), unlimited{}, nil)

	// yes 0.52 + no 0.52 = 1.04, |1-1.04| = 400 bps ≥ 300.
	opps, skips := d.Detect([]domain.MarketSnapshot{snap("m", 0.52, 0.52)}, 1000, time.Now())

	require.Len(t, opps, 1)
	assert.Zero(t, skips.Total())
	opp := opps[0]
	assert.InDelta(t, 400, opp.EdgeBps, 1e-6)
	assert.InDelta(t, 1.04, opp.AskSum, 1e-9)
	// size = 0.1×1000 = 100; profit = 100 × (400-30)/10000 = 3.70.
	assert.InDelta(t, 100, opp.SizeUSD, 1e-9)
	assert.InDelta(t, 3.70, opp.EstProfitUSD, 1e-6)
}

func TestDetect_GateReasons(t *testing.T) {
	cases := []struct {
		name string
		snap domain.MarketSnapshot
		want domain.SkipReason
	}{
		{"missing bid", domain.MarketSnapshot{
			MarketID: "m",
			YesBook:  domain.BookTop{BestBid: 0, BestAsk: 0.5},
			NoBook:   domain.BookTop{BestBid: 0.4, BestAsk: 0.5},
		}, domain.SkipBadBook},
		{"edge below minimum", snap("m", 0.50, 0.51), domain.SkipLowEdge},
		{"thin market", func() domain.MarketSnapshot {
			s := snap("m", 0.48, 0.47)
			s.LiquidityUSD = 10
			return s
		}(), domain.SkipLowLiq},
		{"wide spread", func() domain.MarketSnapshot {
			s := snap("m", 0.48, 0.47)
			s.YesBook.BestBid = 0.30 // 18¢ spread = 1800 bps
			return s
		}(), domain.SkipWideSpread},
	}

	d := NewDetector(testConfig(), unlimited{}, nil)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opps, skips := d.Detect([]domain.MarketSnapshot{tc.snap}, 1000, time.Now())
			assert.Empty(t, opps)
			assert.Equal(t, 1, skips[tc.want])
		})
	}
}

func TestDetect_UnitNormalization(t *testing.T) {
	// Prices arriving in cents: 48 + 47 instead of 0.48 + 0.47.
	centSnap := snap("m", 48, 47)

	cfg := testConfig()
	cfg.AutoNormalizeUnits = true
	d := NewDetector(cfg, unlimited{}, nil)
	opps, _ := d.Detect([]domain.MarketSnapshot{centSnap}, 1000, time.Now())
	require.Len(t, opps, 1)
	assert.InDelta(t, 0.48, opps[0].YesAsk, 1e-9)
	assert.InDelta(t, 500, opps[0].EdgeBps, 1e-6)

	cfg.AutoNormalizeUnits = false
	d = NewDetector(cfg, unlimited{}, nil)
	_, skips := d.Detect([]domain.MarketSnapshot{centSnap}, 1000, time.Now())
	assert.Equal(t, 1, skips[domain.SkipUnits])
}

func TestDetect_ProfitGateAfterFees(t *testing.T) {
	cfg := testConfig()
	cfg.MinProfitUSD = 50 // unreachable at this size
	d := NewDetector(cfg, unlimited{}, nil)

	_, skips := d.Detect([]domain.MarketSnapshot{snap("m", 0.52, 0.52)}, 1000, time.Now())
	assert.Equal(t, 1, skips[domain.SkipLowProfit])
}

func TestDetect_ExposureCeilingsBoundSize(t *testing.T) {
	d := NewDetector(testConfig(), cappedExposure{market: "m", marketCap: 40, walletCap: 1e9}, nil)
	opps, _ := d.Detect([]domain.MarketSnapshot{snap("m", 0.52, 0.52)}, 1000, time.Now())
	require.Len(t, opps, 1)
	assert.InDelta(t, 40, opps[0].SizeUSD, 1e-9)

	// Wallet fully deployed: nothing to size.
	d = NewDetector(testConfig(), cappedExposure{market: "m", marketCap: 40, walletCap: 0}, nil)
	_, skips := d.Detect([]domain.MarketSnapshot{snap("m", 0.52, 0.52)}, 1000, time.Now())
	assert.Equal(t, 1, skips[domain.SkipZeroSize])
}

func TestDetect_AvoidedMarketRejected(t *testing.T) {
	d := NewDetector(testConfig(), unlimited{}, avoidList{"m": true})
	_, skips := d.Detect([]domain.MarketSnapshot{snap("m", 0.52, 0.52)}, 1000, time.Now())
	assert.Equal(t, 1, skips[domain.SkipAvoided])
}

func TestDetect_Idempotent(t *testing.T) {
	d := NewDetector(testConfig(), unlimited{}, nil)
	snaps := []domain.MarketSnapshot{
		snap("a", 0.52, 0.52),
		snap("b", 0.45, 0.48),
		snap("c", 0.52, 0.52),
	}

	first, _ := d.Detect(snaps, 1000, time.Now())
	second, _ := d.Detect(snaps, 1000, time.Now())
	assert.Equal(t, first, second)
}

func TestSizeForCapital_Curves(t *testing.T) {
	// Linear grows with capital, clamped at max.
	assert.InDelta(t, 100, sizeForCapital(CurveLinear, 0.1, 1000, 500), 1e-9)
	assert.InDelta(t, 500, sizeForCapital(CurveLinear, 0.1, 100000, 500), 1e-9)

	// Sqrt and log are concave: they deploy more than linear while far
	// below the cap, then flatten into it.
	lin := sizeForCapital(CurveLinear, 0.1, 4000, 1000)
	sq := sizeForCapital(CurveSqrt, 0.1, 4000, 1000)
	lg := sizeForCapital(CurveLog, 0.1, 4000, 1000)
	assert.Greater(t, sq, lin)
	assert.Greater(t, lg, sq)
	assert.LessOrEqual(t, lg, 1000.0)

	// All curves hit the cap at large capital.
	assert.InDelta(t, 1000, sizeForCapital(CurveSqrt, 0.1, 1e7, 1000), 1e-6)

	assert.Zero(t, sizeForCapital(CurveLinear, 0.1, 0, 500))
}
