// Package flight collapses concurrent identical operations (credential
// derivation, redemption checks) into one in-flight attempt. Repeated
// failures of the same key are gated behind exponential backoff so a broken
// dependency is not hammered every cycle.
package flight

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	defaultBaseBackoff = 2 * time.Second
	defaultMaxBackoff  = 5 * time.Minute
)

// failureState tracks consecutive failures for one key.
type failureState struct {
	consecutive int
	nextAttempt time.Time
}

// Coordinator is a single-flight guard with per-key failure backoff.
// Construct one per process and inject it; there are no package globals.
type Coordinator struct {
	group singleflight.Group

	mu       sync.Mutex
	failures map[string]failureState

	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// New creates a Coordinator. Zero durations fall back to defaults.
func New(baseBackoff, maxBackoff time.Duration) *Coordinator {
	if baseBackoff <= 0 {
		baseBackoff = defaultBaseBackoff
	}
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	return &Coordinator{
		failures:    make(map[string]failureState),
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
	}
}

// Do runs fn for key, collapsing concurrent callers into the one in-flight
// attempt; all callers receive the same result. If the key's previous
// attempts failed and its backoff has not elapsed, Do fails fast without
// invoking fn.
func (c *Coordinator) Do(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	if until, blocked := c.blockedUntil(key, time.Now()); blocked {
		return nil, fmt.Errorf("flight.Do: %q backing off until %s", key, until.Format(time.RFC3339))
	}

	ch := c.group.DoChan(key, func() (any, error) {
		v, err := fn(ctx)
		c.record(key, err, time.Now())
		return v, err
	})

	select {
	case r := <-ch:
		return r.Val, r.Err
	case <-ctx.Done():
		// The attempt keeps running for other waiters; this caller alone
		// stops waiting.
		return nil, ctx.Err()
	}
}

// Forget clears the single-flight entry and failure state for key.
func (c *Coordinator) Forget(key string) {
	c.group.Forget(key)
	c.mu.Lock()
	delete(c.failures, key)
	c.mu.Unlock()
}

// blockedUntil reports whether key is still inside its failure backoff.
func (c *Coordinator) blockedUntil(key string, now time.Time) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.failures[key]
	if !ok || st.consecutive == 0 || !now.Before(st.nextAttempt) {
		return time.Time{}, false
	}
	return st.nextAttempt, true
}

// record updates failure bookkeeping after an attempt finishes.
func (c *Coordinator) record(key string, err error, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.failures, key)
		return
	}
	st := c.failures[key]
	st.consecutive++
	backoff := c.baseBackoff * time.Duration(1<<uint(st.consecutive-1))
	if backoff > c.maxBackoff {
		backoff = c.maxBackoff
	}
	st.nextAttempt = now.Add(backoff)
	c.failures[key] = st
}
