// Package providers wraps the external collaborators (LLM, web search, OCR,
// calendar) behind thin clients. Every call runs under a bounded timeout and
// a bounded retry; failures surface as the router's error taxonomy, never as
// hangs or unbounded retries.
package providers

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"smartdesk/internal/core"
)

// withRetry runs fn with exponential backoff, at most maxRetries retries
// after the first attempt. AuthExpired is never retried.
func withRetry(ctx context.Context, maxRetries uint64, fn func(context.Context) error) error {
	op := func() error {
		err := fn(ctx)
		if errors.Is(err, core.ErrAuthExpired) {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	return backoff.Retry(op, bo)
}

// callTimeout returns a child context bounded by d, defaulting to 30s when
// the configuration left it unset.
func callTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 30 * time.Second
	}
	return context.WithTimeout(ctx, d)
}
