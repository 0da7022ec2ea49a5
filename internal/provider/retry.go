package provider

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"time"
)

// RetryableError wraps a transient provider failure together with an
// optional server-provided retry hint (e.g. Retry-After).
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err as a RetryableError so WithRetry will back off and
// retry instead of failing fast.
func Retryable(err error, retryAfter time.Duration) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err, RetryAfter: retryAfter}
}

// RetryAfterFromHeader parses a Retry-After header (seconds or HTTP-date)
// into a duration, returning 0 if absent or unparsable.
func RetryAfterFromHeader(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}

	if secs, err := time.ParseDuration(v + "s"); err == nil {
		return secs
	}

	if when, err := http.ParseTime(v); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}

	return 0
}

const (
	maxAttempts    = 5
	baseBackoff    = 200 * time.Millisecond
	maxBackoff     = 30 * time.Second
	jitterFraction = 0.25
)

// WithRetry runs fn, retrying on errors wrapped with Retryable using
// exponential backoff with jitter, honoring any server-provided
// Retry-After hint. It gives up after maxAttempts and returns the last
// error, or returns immediately on a non-retryable error or ctx
// cancellation.
func WithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		var re *RetryableError
		if !errors.As(lastErr, &re) {
			return lastErr
		}

		wait := re.RetryAfter
		if wait <= 0 {
			wait = backoffDelay(attempt)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return lastErr
}

func backoffDelay(attempt int) time.Duration {
	d := baseBackoff << attempt
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}

	jitter := time.Duration(float64(d) * jitterFraction * rand.Float64())

	return d + jitter
}
