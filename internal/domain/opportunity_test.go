package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRankOpportunities_DeterministicTieBreak(t *testing.T) {
	opps := []Opportunity{
		{MarketID: "b", EstProfitUSD: 5},
		{MarketID: "a", EstProfitUSD: 5},
		{MarketID: "c", EstProfitUSD: 9},
	}

	ranked := RankOpportunities(opps)
	assert.Equal(t, "c", ranked[0].MarketID)
	assert.Equal(t, "a", ranked[1].MarketID)
	assert.Equal(t, "b", ranked[2].MarketID)
}

func TestSkipHistogram(t *testing.T) {
	h := make(SkipHistogram)
	h.Add(SkipLowEdge)
	h.Add(SkipLowEdge)
	h.Add(SkipBadBook)

	assert.Equal(t, 3, h.Total())
	assert.Equal(t, 2, h[SkipLowEdge])

	attrs := h.LogAttrs()
	assert.Len(t, attrs, 4)
	assert.Equal(t, string(SkipBadBook), attrs[0])
}

func TestReject_AlwaysHasReason(t *testing.T) {
	d := Reject("")
	assert.False(t, d.Approved)
	assert.NotEmpty(t, d.Reason)
}
