package polymarket

import "encoding/json"

// Raw API DTOs. Only used inside this package; mapping.go converts them
// to domain entities.

// --- Gamma API ---

// gammaMarketsResponse is the paginated response of GET /markets.
type gammaMarketsResponse []gammaMarket

// gammaMarket is one market's metadata. Gamma returns several numeric
// fields as JSON strings, hence json.Number.
type gammaMarket struct {
	ConditionID  string      `json:"conditionId"`
	Question     string      `json:"question"`
	ClobTokenIDs string      `json:"clobTokenIds"` // JSON-encoded array of two token IDs
	Volume24h    json.Number `json:"volume24hr"`
	Liquidity    json.Number `json:"liquidity"`
	Active       bool        `json:"active"`
	Closed       bool        `json:"closed"`
}

// --- CLOB API ---

// orderBookRequest is one item of the POST /books batch body.
type orderBookRequest struct {
	TokenID string `json:"token_id"`
}

// orderBookResponse is one book in the POST /books response.
type orderBookResponse struct {
	AssetID string         `json:"asset_id"`
	Bids    []bookEntryRaw `json:"bids"`
	Asks    []bookEntryRaw `json:"asks"`
}

// bookEntryRaw is one raw price level (strings preserve precision).
type bookEntryRaw struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// clobOrderRequest is the JSON body sent to POST /order.
type clobOrderRequest struct {
	TokenID string  `json:"token_id"`
	Side    string  `json:"side"`
	Price   float64 `json:"price"`
	SizeUSD float64 `json:"size_usd"`
	Type    string  `json:"type"`
}

// clobOrderResponse is the result of POST /order.
type clobOrderResponse struct {
	Success  bool     `json:"success"`
	ErrorMsg string   `json:"errorMsg"`
	OrderID  string   `json:"orderID"`
	Status   string   `json:"status"`
	TxHashes []string `json:"transactionsHashes"`
}

// clobBalanceResponse is the result of GET /balance.
type clobBalanceResponse struct {
	Balance json.Number `json:"balance"`
}
