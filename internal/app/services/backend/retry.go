package backend

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Retryable reports whether err is worth another attempt: transport failures
// and 5xx responses are, 4xx responses and cancellation are not.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}

// DoWithTries runs fn up to attempts times with a linearly growing delay,
// stopping early on success, on a non-retryable error or when ctx ends.
func DoWithTries(ctx context.Context, attempts int, delay time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil || !Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(time.Duration(attempt) * delay):
		}
	}
	return err
}
