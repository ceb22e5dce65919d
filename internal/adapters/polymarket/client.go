// Package polymarket adapts the Polymarket CLOB and Gamma HTTP APIs to
// the engine's ports. Raw DTOs stay inside this package; mapping.go
// converts them to domain types.
package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/polyedge/internal/ports"
	"github.com/alejandrodnm/polyedge/internal/ratelimit"
)

const (
	defaultCLOBBase  = "https://clob.polymarket.com"
	defaultGammaBase = "https://gamma-api.polymarket.com"

	// Client-side limits run well under the documented API ceilings.
	// CLOB /books: 500/10s documented → 30/s here.
	booksRatePerSec = 30
	// Gamma /markets: 300/10s documented → 18/s here.
	gammaRatePerSec = 18
	// CLOB order endpoints are kept deliberately slow.
	orderRatePerSec = 2
)

// ClientConfig tunes the HTTP layer.
type ClientConfig struct {
	CLOBBase      string
	GammaBase     string
	APIKey        string
	Timeout       time.Duration
	RetryAttempts int
	RetryBase     time.Duration
}

// Client is the Polymarket HTTP client with per-endpoint rate limiting
// and retries.
type Client struct {
	http         *http.Client
	clobBase     string
	gammaBase    string
	apiKey       string
	attempts     int
	retryBase    time.Duration
	gammaLimiter *rate.Limiter
	booksLimiter *rate.Limiter
	orderLimiter *rate.Limiter
}

// NewClient creates a Client. Empty base URLs fall back to production.
func NewClient(cfg ClientConfig) *Client {
	if cfg.CLOBBase == "" {
		cfg.CLOBBase = defaultCLOBBase
	}
	if cfg.GammaBase == "" {
		cfg.GammaBase = defaultGammaBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 250 * time.Millisecond
	}
	return &Client{
		http:         &http.Client{Timeout: cfg.Timeout},
		clobBase:     cfg.CLOBBase,
		gammaBase:    cfg.GammaBase,
		apiKey:       cfg.APIKey,
		attempts:     cfg.RetryAttempts,
		retryBase:    cfg.RetryBase,
		gammaLimiter: rate.NewLimiter(gammaRatePerSec, 10),
		booksLimiter: rate.NewLimiter(booksRatePerSec, 5),
		orderLimiter: rate.NewLimiter(orderRatePerSec, 1),
	}
}

// get does a rate-limited GET with retries, decoding JSON into out.
func (c *Client) get(ctx context.Context, limiter *rate.Limiter, url string, out any) error {
	return c.do(ctx, limiter, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, out)
}

// post does a rate-limited JSON POST with retries.
func (c *Client) post(ctx context.Context, limiter *rate.Limiter, url string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("polymarket: marshal body: %w", err)
	}
	return c.do(ctx, limiter, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, out)
}

// do drives one request through the limiter and the retry helper. 4xx
// responses other than 429 are permanent; 401 and edge blocks map to the
// typed port errors so the risk layer can classify them.
func (c *Client) do(ctx context.Context, limiter *rate.Limiter, build func() (*http.Request, error), out any) error {
	return ratelimit.Retry(ctx, c.attempts, c.retryBase, func() error {
		if err := limiter.Wait(ctx); err != nil {
			return ratelimit.Permanent(fmt.Errorf("rate limiter: %w", err))
		}

		req, err := build()
		if err != nil {
			return ratelimit.Permanent(err)
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			slog.Warn("rate limited by API", "url", req.URL.Path)
			return fmt.Errorf("status 429")
		case resp.StatusCode >= 500:
			return fmt.Errorf("server error %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			body, _ := io.ReadAll(resp.Body)
			return ratelimit.Permanent(classifyClientError(resp.StatusCode, string(body)))
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return ratelimit.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	})
}

// classifyClientError maps 4xx responses onto the typed port errors.
func classifyClientError(status int, body string) error {
	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("status 401: %w", ports.ErrAuthFailed)
	case status == http.StatusForbidden, blockedMarker(body):
		return fmt.Errorf("status %d: %w", status, ports.ErrBlocked)
	case status == http.StatusNotFound:
		return fmt.Errorf("status 404: %w", ports.ErrOrderBookNotFound)
	}
	return fmt.Errorf("client error %d: %s", status, truncate(body, 200))
}

// blockedMarker detects anti-bot edge blocks that arrive with odd status
// codes but a recognizable body.
func blockedMarker(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "cloudflare") || strings.Contains(lower, "access denied")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
