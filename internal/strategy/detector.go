// Package strategy computes candidate trades from market snapshots. It
// validates books, normalizes units, gates on edge/liquidity/spread/profit
// thresholds, sizes survivors over available capital, and ranks them by
// estimated profit.
package strategy

import (
	"math"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// Prices above this are assumed to be expressed in cents, not probability.
const unitDetectionThreshold = 1.5

// Config holds the detector thresholds. All values come from the validated
// configuration object; the detector never reads environment.
type Config struct {
	MinEdgeBps         float64
	MinLiquidityUSD    float64
	MaxSpreadBps       float64
	MinProfitUSD       float64
	FeeBps             float64
	SlippageBps        float64
	AutoNormalizeUnits bool
	Curve              SizingCurve
	SizeFraction       float64
	MaxSizeUSD         float64
}

// ExposureSource supplies the per-market and per-wallet ceilings the
// detector must respect when sizing. The risk manager implements it.
type ExposureSource interface {
	MarketExposureRoomUSD(marketID string) float64
	WalletExposureRoomUSD() float64
}

// Avoider rejects markets under avoidance. The adaptive learner
// implements it.
type Avoider interface {
	Avoided(marketID string, now time.Time) (bool, string)
}

// Detector turns snapshots into ranked opportunities.
type Detector struct {
	cfg      Config
	exposure ExposureSource
	avoider  Avoider
}

// NewDetector creates a Detector. avoider may be nil.
func NewDetector(cfg Config, exposure ExposureSource, avoider Avoider) *Detector {
	return &Detector{cfg: cfg, exposure: exposure, avoider: avoider}
}

// Detect scores every snapshot and returns surviving opportunities sorted
// by descending estimated profit, plus the per-cycle skip histogram.
// Running the same snapshot set twice yields identical rankings.
func (d *Detector) Detect(snaps []domain.MarketSnapshot, capitalUSD float64, now time.Time) ([]domain.Opportunity, domain.SkipHistogram) {
	skips := make(domain.SkipHistogram)
	opps := make([]domain.Opportunity, 0, len(snaps))

	for _, snap := range snaps {
		opp, skip := d.evaluate(snap, capitalUSD, now)
		if skip != "" {
			skips.Add(skip)
			continue
		}
		opps = append(opps, opp)
	}

	return domain.RankOpportunities(opps), skips
}

// evaluate runs the full gate chain for one market.
func (d *Detector) evaluate(snap domain.MarketSnapshot, capitalUSD float64, now time.Time) (domain.Opportunity, domain.SkipReason) {
	if snap.YesBook.Degenerate() || snap.NoBook.Degenerate() {
		return domain.Opportunity{}, domain.SkipBadBook
	}

	if d.avoider != nil {
		if avoided, _ := d.avoider.Avoided(snap.MarketID, now); avoided {
			return domain.Opportunity{}, domain.SkipAvoided
		}
	}

	// Unit normalization: prices plausibly in cents are divided down to
	// probability when enabled, otherwise the market is skipped.
	if snap.YesBook.BestAsk > unitDetectionThreshold || snap.NoBook.BestAsk > unitDetectionThreshold {
		if !d.cfg.AutoNormalizeUnits {
			return domain.Opportunity{}, domain.SkipUnits
		}
		snap.YesBook = normalizeBook(snap.YesBook)
		snap.NoBook = normalizeBook(snap.NoBook)
	}

	// Edge is the absolute deviation of the ask sum from fair value 1.0:
	// below 1.0 the pair of asks is bought outright, above it the set is
	// minted and sold. Either way edge and size are never negative.
	askSum := snap.AskSum()
	edgeBps := math.Abs(1-askSum) * 10000
	if edgeBps < d.cfg.MinEdgeBps {
		return domain.Opportunity{}, domain.SkipLowEdge
	}

	if snap.LiquidityUSD < d.cfg.MinLiquidityUSD {
		return domain.Opportunity{}, domain.SkipLowLiq
	}

	spreadBps := math.Max(snap.YesBook.Spread(), snap.NoBook.Spread()) * 10000
	if spreadBps > d.cfg.MaxSpreadBps {
		return domain.Opportunity{}, domain.SkipWideSpread
	}

	size := sizeForCapital(d.cfg.Curve, d.cfg.SizeFraction, capitalUSD, d.cfg.MaxSizeUSD)
	size = math.Min(size, d.exposure.MarketExposureRoomUSD(snap.MarketID))
	size = math.Min(size, d.exposure.WalletExposureRoomUSD())
	if size <= 0 {
		return domain.Opportunity{}, domain.SkipZeroSize
	}

	netEdgeBps := edgeBps - d.cfg.FeeBps - d.cfg.SlippageBps
	estProfit := size * netEdgeBps / 10000
	if estProfit < d.cfg.MinProfitUSD {
		return domain.Opportunity{}, domain.SkipLowProfit
	}

	return domain.Opportunity{
		MarketID:     snap.MarketID,
		Question:     snap.Question,
		YesTokenID:   snap.YesTokenID,
		NoTokenID:    snap.NoTokenID,
		YesAsk:       snap.YesBook.BestAsk,
		NoAsk:        snap.NoBook.BestAsk,
		AskSum:       askSum,
		EdgeBps:      edgeBps,
		SpreadBps:    spreadBps,
		LiquidityUSD: snap.LiquidityUSD,
		EstProfitUSD: estProfit,
		SizeUSD:      size,
		ScannedAt:    snap.ScannedAt,
	}, ""
}

// normalizeBook divides cent-denominated prices down to probability.
func normalizeBook(b domain.BookTop) domain.BookTop {
	return domain.BookTop{BestBid: b.BestBid / 100, BestAsk: b.BestAsk / 100}
}
