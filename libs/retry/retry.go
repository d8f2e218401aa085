// Package retry provides a small retry-policy combinator for fallible
// operations against the upstream platform.
package retry

import (
	"context"
	"fmt"
	"time"
)

type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	// OnRetry is called before each backoff sleep, mainly for logging.
	OnRetry func(attempt int, err error, backoff time.Duration)
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	return p
}

type Operation[T any] func(ctx context.Context) (T, error)

// Do runs op up to p.MaxAttempts times, sleeping BaseDelay, BaseDelay*Multiplier,
// ... between attempts. Context cancellation aborts the wait immediately.
func Do[T any](ctx context.Context, p Policy, op Operation[T]) (T, error) {
	p = p.withDefaults()
	backoff := p.BaseDelay

	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		val, err := op(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if attempt == p.MaxAttempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, backoff)
		}

		select {
		case <-time.After(backoff):
			backoff = time.Duration(float64(backoff) * p.Multiplier)
		case <-ctx.Done():
			return zero, fmt.Errorf("retry aborted: %w", ctx.Err())
		}
	}
	return zero, fmt.Errorf("failed after %d attempts: %w", p.MaxAttempts, lastErr)
}
