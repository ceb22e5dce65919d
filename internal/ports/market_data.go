package ports

import (
	"context"
	"errors"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// ErrOrderBookNotFound signals that the exchange has no book for a token.
// Callers treat it as a per-market skip, never as a fatal condition.
var ErrOrderBookNotFound = errors.New("orderbook not found")

// MarketDataProvider supplies market snapshots and top-of-book data.
type MarketDataProvider interface {
	// GetActiveMarkets returns one snapshot per tradable binary market.
	GetActiveMarkets(ctx context.Context) ([]domain.MarketSnapshot, error)

	// GetOrderBookTop returns best bid/ask for a single token. Returns
	// ErrOrderBookNotFound (possibly wrapped) when the book is missing.
	GetOrderBookTop(ctx context.Context, tokenID string) (domain.BookTop, error)
}
