package domain

import "time"

// BookTop is the best bid and ask of one token's order book, in
// probability units [0,1] once normalized.
type BookTop struct {
	BestBid float64
	BestAsk float64
}

// Degenerate reports whether the top of book is unusable: a missing side,
// a non-positive price, or a crossed book.
func (b BookTop) Degenerate() bool {
	return b.BestBid <= 0 || b.BestAsk <= 0 || b.BestBid > b.BestAsk
}

// Spread returns ask minus bid in the book's own units.
func (b BookTop) Spread() float64 {
	return b.BestAsk - b.BestBid
}

// Mid returns the midpoint price.
func (b BookTop) Mid() float64 {
	return (b.BestBid + b.BestAsk) / 2
}

// MarketSnapshot is one binary market as seen at scan time: both outcome
// token books plus the activity metadata the gates need.
type MarketSnapshot struct {
	MarketID   string
	Question   string
	YesTokenID string
	NoTokenID  string

	YesBook BookTop
	NoBook  BookTop

	LiquidityUSD float64
	Volume24hUSD float64
	ScannedAt    time.Time
}

// AskSum is the combined cost of buying both outcomes at the ask.
func (s MarketSnapshot) AskSum() float64 {
	return s.YesBook.BestAsk + s.NoBook.BestAsk
}
