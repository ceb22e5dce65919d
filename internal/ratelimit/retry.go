package ratelimit

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// PermanentError wraps an error that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable for Retry.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Retry runs fn up to attempts times with exponential backoff plus jitter
// between tries. Context cancellation and errors marked Permanent stop the
// loop immediately; the last error is returned when attempts run out.
func Retry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		var perm *PermanentError
		if errors.As(lastErr, &perm) {
			return perm.Err
		}
		if i == attempts-1 {
			break
		}

		// Exponential backoff with up to 50% jitter: base, 2×base, 4×base...
		wait := base * time.Duration(1<<uint(i))
		wait += time.Duration(rand.Int63n(int64(wait)/2 + 1))

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return lastErr
}
