package services

import (
	"context"
	"time"
)

// Retry runs fn up to attempts times, sleeping base, 2*base, 4*base ...
// between tries. Only errors tagged ErrTransient are retried; any other
// error (or success) returns immediately. Context cancellation aborts the
// wait and returns the context error.
func Retry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	if base <= 0 {
		base = time.Second
	}

	var lastErr error
	delay := base
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || !IsTransient(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}
