package domain

import (
	"sort"
	"time"
)

// SkipReason explains why a market produced no opportunity this cycle.
type SkipReason string

const (
	SkipBadBook    SkipReason = "SKIP_BAD_BOOK"
	SkipUnits      SkipReason = "SKIP_UNITS"
	SkipLowEdge    SkipReason = "SKIP_LOW_EDGE"
	SkipLowLiq     SkipReason = "SKIP_LOW_LIQ"
	SkipWideSpread SkipReason = "SKIP_WIDE_SPREAD"
	SkipLowProfit  SkipReason = "SKIP_LOW_PROFIT"
	SkipAvoided    SkipReason = "SKIP_AVOIDED"
	SkipZeroSize   SkipReason = "SKIP_ZERO_SIZE"
)

// SkipHistogram tallies skip reasons across one scan cycle. It is logged
// once per cycle instead of per event to keep the log readable.
type SkipHistogram map[SkipReason]int

// Add increments the tally for the given reason.
func (h SkipHistogram) Add(r SkipReason) {
	h[r]++
}

// Total returns the number of skipped markets.
func (h SkipHistogram) Total() int {
	n := 0
	for _, c := range h {
		n += c
	}
	return n
}

// LogAttrs returns the histogram as slog key-value pairs, sorted by reason
// for stable output.
func (h SkipHistogram) LogAttrs() []any {
	reasons := make([]string, 0, len(h))
	for r := range h {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	attrs := make([]any, 0, len(h)*2)
	for _, r := range reasons {
		attrs = append(attrs, r, h[SkipReason(r)])
	}
	return attrs
}

// Opportunity is a candidate trade produced by the strategy. Edge and size
// are derived and never negative; opportunities are consumed within the
// cycle that created them.
type Opportunity struct {
	MarketID     string
	Question     string
	YesTokenID   string
	NoTokenID    string
	YesAsk       float64
	NoAsk        float64
	AskSum       float64
	EdgeBps      float64
	SpreadBps    float64
	LiquidityUSD float64
	EstProfitUSD float64
	SizeUSD      float64
	ScannedAt    time.Time
}

// RankOpportunities sorts by estimated profit descending. Ties break by
// market ID so replaying the same snapshots yields identical rankings.
func RankOpportunities(opps []Opportunity) []Opportunity {
	sort.Slice(opps, func(i, j int) bool {
		if opps[i].EstProfitUSD != opps[j].EstProfitUSD {
			return opps[i].EstProfitUSD > opps[j].EstProfitUSD
		}
		return opps[i].MarketID < opps[j].MarketID
	})
	return opps
}
