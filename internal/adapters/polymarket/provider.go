package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/flight"
	"github.com/alejandrodnm/polyedge/internal/ports"
	"github.com/alejandrodnm/polyedge/internal/ttlcache"
)

const (
	gammaMarketsPath = "/markets"
	booksPath        = "/books"
	gammaPageSize    = 100
	booksBatchSize   = 20 // max token_ids per POST /books
)

// Provider implements ports.MarketDataProvider on top of Client. Book
// tops are cached for a short TTL and concurrent fetches for the same
// token collapse into one request.
type Provider struct {
	client   *Client
	bookTTL  time.Duration
	books    *ttlcache.Cache[string, domain.BookTop]
	inflight *flight.Coordinator
}

// NewProvider creates a Provider with the given book cache TTL.
func NewProvider(client *Client, bookTTL time.Duration, inflight *flight.Coordinator) *Provider {
	if bookTTL <= 0 {
		bookTTL = 5 * time.Second
	}
	return &Provider{
		client:   client,
		bookTTL:  bookTTL,
		books:    ttlcache.New[string, domain.BookTop](),
		inflight: inflight,
	}
}

// GetActiveMarkets pages through Gamma /markets and returns snapshot
// shells for every tradable binary market. Books are not populated here.
func (p *Provider) GetActiveMarkets(ctx context.Context) ([]domain.MarketSnapshot, error) {
	now := time.Now()
	var all []domain.MarketSnapshot

	for offset := 0; ; offset += gammaPageSize {
		url := fmt.Sprintf("%s%s?active=true&closed=false&limit=%d&offset=%d",
			p.client.gammaBase, gammaMarketsPath, gammaPageSize, offset)

		var resp gammaMarketsResponse
		if err := p.client.get(ctx, p.client.gammaLimiter, url, &resp); err != nil {
			return nil, fmt.Errorf("polymarket.GetActiveMarkets: page at %d: %w", offset, err)
		}

		for _, gm := range resp {
			if snap, ok := mapGammaMarket(gm, now); ok {
				all = append(all, snap)
			}
		}

		slog.Debug("fetched markets page", "count", len(resp), "total", len(all))
		if len(resp) < gammaPageSize {
			break
		}
	}

	slog.Info("active markets fetched", "total", len(all))
	return all, nil
}

// GetOrderBookTop returns the best bid/ask for one token, serving from
// the TTL cache when fresh. Cache misses go through the single-flight
// coordinator so a token never has more than one request outstanding.
func (p *Provider) GetOrderBookTop(ctx context.Context, tokenID string) (domain.BookTop, error) {
	now := time.Now()
	if top, ok := p.books.Get(tokenID, now); ok {
		return top, nil
	}

	v, err := p.inflight.Do(ctx, "book:"+tokenID, func(ctx context.Context) (any, error) {
		tops, err := p.fetchBooksBatch(ctx, []string{tokenID})
		if err != nil {
			return domain.BookTop{}, err
		}
		top, ok := tops[tokenID]
		if !ok {
			return domain.BookTop{}, fmt.Errorf("token %s: %w", tokenID, ports.ErrOrderBookNotFound)
		}
		return top, nil
	})
	if err != nil {
		return domain.BookTop{}, fmt.Errorf("polymarket.GetOrderBookTop: %w", err)
	}

	top := v.(domain.BookTop)
	p.books.Set(tokenID, top, p.bookTTL, now)
	return top, nil
}

// WarmBooks prefetches books for many tokens in batches, populating the
// cache. Individual batch failures are logged and skipped.
func (p *Provider) WarmBooks(ctx context.Context, tokenIDs []string) {
	now := time.Now()
	for i := 0; i < len(tokenIDs); i += booksBatchSize {
		end := i + booksBatchSize
		if end > len(tokenIDs) {
			end = len(tokenIDs)
		}

		tops, err := p.fetchBooksBatch(ctx, tokenIDs[i:end])
		if err != nil {
			slog.Warn("book batch failed, skipping", "batch", i/booksBatchSize, "err", err)
			continue
		}
		for id, top := range tops {
			p.books.Set(id, top, p.bookTTL, now)
		}
	}
}

// fetchBooksBatch POSTs /books for up to booksBatchSize tokens.
func (p *Provider) fetchBooksBatch(ctx context.Context, tokenIDs []string) (map[string]domain.BookTop, error) {
	body := make([]orderBookRequest, len(tokenIDs))
	for i, id := range tokenIDs {
		body[i] = orderBookRequest{TokenID: id}
	}

	var resp []orderBookResponse
	if err := p.client.post(ctx, p.client.booksLimiter, p.client.clobBase+booksPath, body, &resp); err != nil {
		return nil, fmt.Errorf("POST /books: %w", err)
	}

	tops := make(map[string]domain.BookTop, len(resp))
	for _, r := range resp {
		tops[r.AssetID] = mapBookTop(r)
	}
	return tops, nil
}
