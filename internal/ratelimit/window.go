// Package ratelimit provides the sliding-window admission limiter and the
// retry helper used for every outbound call the engine makes.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Window is a sliding-window rate limiter: at most limit admissions per
// rolling window. Exhausted capacity serializes callers through an internal
// gate so each waiter sleeps only until the oldest timestamp expires;
// concurrent callers do not all wake and race for the freed slot.
type Window struct {
	limit  int
	window time.Duration

	mu     sync.Mutex
	stamps []time.Time

	// gate is a 1-slot token: the waiter holding it is the only one
	// allowed to sleep-and-retry, which keeps wakeups FIFO.
	gate chan struct{}
}

// NewWindow creates a limiter admitting limit calls per window.
func NewWindow(limit int, window time.Duration) *Window {
	w := &Window{
		limit:  limit,
		window: window,
		gate:   make(chan struct{}, 1),
	}
	w.gate <- struct{}{}
	return w
}

// Allow reports whether a call may proceed at now, recording it if so.
func (w *Window) Allow(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(now)
	if len(w.stamps) >= w.limit {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}

// Wait blocks until a slot frees or the context is cancelled.
func (w *Window) Wait(ctx context.Context) error {
	if w.Allow(time.Now()) {
		return nil
	}

	select {
	case tok := <-w.gate:
		defer func() { w.gate <- tok }()
	case <-ctx.Done():
		return ctx.Err()
	}

	for {
		now := time.Now()
		if w.Allow(now) {
			return nil
		}

		w.mu.Lock()
		var sleep time.Duration
		if len(w.stamps) > 0 {
			sleep = w.stamps[0].Add(w.window).Sub(now)
		}
		w.mu.Unlock()
		if sleep <= 0 {
			sleep = time.Millisecond
		}

		timer := time.NewTimer(sleep)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Pending returns how many admissions are currently inside the window.
func (w *Window) Pending(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(now)
	return len(w.stamps)
}

// prune drops stamps older than the window. Callers hold w.mu.
func (w *Window) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}
