// Package stream consumes the exchange's market websocket and condenses
// raw trade events into periodic activity samples for the trading-mode
// state machine.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

const (
	defaultSampleEvery = 30 * time.Second
	reconnectBase      = time.Second
	reconnectMax       = 30 * time.Second
	readTimeout        = 60 * time.Second
)

// tradeEvent is the raw message shape on the market channel. Unknown
// event types are ignored.
type tradeEvent struct {
	EventType string `json:"event_type"`
	Maker     string `json:"maker"`
	Taker     string `json:"taker"`
	Price     string `json:"price"`
	SizeUSD   string `json:"size"`
	DepthUSD  string `json:"depth"`
}

// ActivityStream maintains the websocket connection and emits one
// ActivitySample per sampling window.
type ActivityStream struct {
	url     string
	every   time.Duration
	samples chan domain.ActivitySample

	agg *Aggregator

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an ActivityStream for the given websocket URL.
func New(url string, sampleEvery time.Duration) *ActivityStream {
	if sampleEvery <= 0 {
		sampleEvery = defaultSampleEvery
	}
	return &ActivityStream{
		url:     url,
		every:   sampleEvery,
		samples: make(chan domain.ActivitySample, 16),
		agg:     NewAggregator(),
		done:    make(chan struct{}),
	}
}

// Samples returns the channel of aggregated activity samples.
func (s *ActivityStream) Samples() <-chan domain.ActivitySample {
	return s.samples
}

// Start connects and runs the read/emit loops until ctx is cancelled or
// Close is called. Reconnects with exponential backoff on failure.
func (s *ActivityStream) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go s.emitLoop(ctx)
	go func() {
		defer close(s.done)
		delay := reconnectBase
		for {
			if err := s.readConn(ctx); err != nil {
				slog.Warn("activity stream disconnected", "err", err, "retry_in", delay)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > reconnectMax {
				delay = reconnectMax
			}
		}
	}()
}

// Close stops the stream and waits for the read loop to exit.
func (s *ActivityStream) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
	return nil
}

// readConn dials, then pumps messages into the aggregator until the
// connection drops.
func (s *ActivityStream) readConn(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("stream.readConn: dial %s: %w", s.url, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	slog.Info("activity stream connected", "url", s.url)
	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("stream.readConn: read: %w", err)
		}

		var ev tradeEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			continue
		}
		if ev.EventType != "trade" {
			continue
		}
		s.agg.Record(ev)
	}
}

// emitLoop flushes the aggregator every sampling window.
func (s *ActivityStream) emitLoop(ctx context.Context) {
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sample := s.agg.Flush(now)
			select {
			case s.samples <- sample:
			default:
				// Slow consumer loses old samples, never blocks the stream.
			}
		}
	}
}

// Aggregator accumulates trade events into one ActivitySample per window.
type Aggregator struct {
	mu        sync.Mutex
	volumeUSD float64
	depthUSD  float64
	traders   map[string]struct{}
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{traders: make(map[string]struct{})}
}

// Record folds one trade event into the current window.
func (a *Aggregator) Record(ev tradeEvent) {
	size, _ := strconv.ParseFloat(ev.SizeUSD, 64)
	depth, _ := strconv.ParseFloat(ev.DepthUSD, 64)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.volumeUSD += size
	if depth > 0 {
		// Keep the latest reported depth, not a sum.
		a.depthUSD = depth
	}
	if ev.Maker != "" {
		a.traders[ev.Maker] = struct{}{}
	}
	if ev.Taker != "" {
		a.traders[ev.Taker] = struct{}{}
	}
}

// Flush returns the sample for the closing window and resets the state.
func (a *Aggregator) Flush(now time.Time) domain.ActivitySample {
	a.mu.Lock()
	defer a.mu.Unlock()

	sample := domain.ActivitySample{
		VolumeUSD:     a.volumeUSD,
		BookDepthUSD:  a.depthUSD,
		ActiveTraders: len(a.traders),
		At:            now,
	}
	a.volumeUSD = 0
	a.traders = make(map[string]struct{})
	return sample
}
