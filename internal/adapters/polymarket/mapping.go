package polymarket

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// mapGammaMarket converts a gammaMarket DTO into a MarketSnapshot shell:
// identity and activity metadata, books filled in later by the provider.
// Returns false for markets the engine cannot trade (closed, inactive,
// or without exactly two outcome tokens).
func mapGammaMarket(gm gammaMarket, now time.Time) (domain.MarketSnapshot, bool) {
	if !gm.Active || gm.Closed {
		return domain.MarketSnapshot{}, false
	}

	tokens, err := parseTokenIDs(gm.ClobTokenIDs)
	if err != nil || len(tokens) != 2 {
		return domain.MarketSnapshot{}, false
	}

	snap := domain.MarketSnapshot{
		MarketID:   gm.ConditionID,
		Question:   gm.Question,
		YesTokenID: tokens[0],
		NoTokenID:  tokens[1],
		ScannedAt:  now,
	}
	if v, err := gm.Liquidity.Float64(); err == nil {
		snap.LiquidityUSD = v
	}
	if v, err := gm.Volume24h.Float64(); err == nil {
		snap.Volume24hUSD = v
	}
	return snap, true
}

// parseTokenIDs decodes Gamma's clobTokenIds field, a JSON array encoded
// as a string.
func parseTokenIDs(raw string) ([]string, error) {
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// mapBookTop extracts best bid and ask from one raw book. Malformed
// levels are dropped; missing sides yield a zero (degenerate) top.
func mapBookTop(r orderBookResponse) domain.BookTop {
	var top domain.BookTop
	for _, e := range r.Bids {
		price, err := strconv.ParseFloat(e.Price, 64)
		if err != nil || price <= 0 {
			continue
		}
		if price > top.BestBid {
			top.BestBid = price
		}
	}
	for _, e := range r.Asks {
		price, err := strconv.ParseFloat(e.Price, 64)
		if err != nil || price <= 0 {
			continue
		}
		if top.BestAsk == 0 || price < top.BestAsk {
			top.BestAsk = price
		}
	}
	return top
}
