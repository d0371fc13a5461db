package common

import (
	"context"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/benbjohnson/clock"

	"github.com/wattledger/wattledger/pkg/log"
)

// RetryPolicy configures RetryValue.
type RetryPolicy struct {
	// Attempts is the total number of calls made before giving up.
	Attempts int
	// BaseDelay is multiplied by the attempt number to get the delay after
	// that attempt fails.
	BaseDelay time.Duration
	Clock     clock.Clock

	// Retryable reports whether err is worth another attempt. A nil
	// Retryable retries every error.
	Retryable func(err error) bool
}

// DefaultRetryPolicy returns 3 attempts with 300ms linear backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  3,
		BaseDelay: 300 * time.Millisecond,
		Clock:     clock.New(),
	}
}

// Backoff returns the delay to wait after the given 1-based attempt fails.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(attempt)
}

// clockTimer adapts a clock.Clock to retry.Timer. Non-positive delays fire
// immediately so a mock clock never has to be advanced for them.
type clockTimer struct {
	clock clock.Clock
}

func (t clockTimer) After(d time.Duration) <-chan time.Time {
	if d <= 0 {
		ch := make(chan time.Time, 1)
		ch <- t.clock.Now()
		return ch
	}
	return t.clock.After(d)
}

// RetryValue calls fn until it succeeds, returns a non-retryable error, or the
// policy's attempts are exhausted. The last error is returned, or ctx.Err()
// if ctx ends while waiting between attempts.
func RetryValue[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = func(error) bool { return true }
	}

	return retry.DoWithData(
		func() (T, error) {
			return fn(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.RetryIf(retryable),
		retry.LastErrorOnly(true),
		retry.WithTimer(clockTimer{clock: clk}),
		// n is the 1-based number of the attempt that just failed
		retry.DelayType(func(n uint, err error, _ *retry.Config) time.Duration {
			delay := p.Backoff(int(n))
			log.Ctx(ctx).DebugContext(
				ctx,
				"call failed, retrying",
				slog.Int("attempt", int(n)),
				slog.Duration("delay", delay),
				slog.Any("error", err),
			)
			return delay
		}),
	)
}
