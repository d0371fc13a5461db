package common

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wattledger/wattledger/pkg/log"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

func TestRetry(t *testing.T) {
	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		v, err := RetryValue(context.Background(), RetryPolicy{Attempts: 3, Clock: clock.NewMock()}, func(ctx context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, errors.New("flaky")
			}
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, v)
		assert.Equal(t, 3, calls)
	})

	t.Run("returns last error after attempts", func(t *testing.T) {
		calls := 0
		_, err := RetryValue(context.Background(), RetryPolicy{Attempts: 3, Clock: clock.NewMock()}, func(ctx context.Context) (int, error) {
			calls++
			return 0, errors.New("down")
		})
		require.EqualError(t, err, "down")
		assert.Equal(t, 3, calls)
	})

	t.Run("non-retryable stops immediately", func(t *testing.T) {
		permanent := errors.New("permanent")
		calls := 0
		_, err := RetryValue(context.Background(), RetryPolicy{
			Attempts:  3,
			Clock:     clock.NewMock(),
			Retryable: func(err error) bool { return !errors.Is(err, permanent) },
		}, func(ctx context.Context) (string, error) {
			calls++
			return "", permanent
		})
		assert.ErrorIs(t, err, permanent)
		assert.Equal(t, 1, calls)
	})

	t.Run("linear backoff", func(t *testing.T) {
		p := RetryPolicy{BaseDelay: 250 * time.Millisecond}
		assert.Equal(t, 250*time.Millisecond, p.Backoff(1))
		assert.Equal(t, 500*time.Millisecond, p.Backoff(2))
		assert.Equal(t, 750*time.Millisecond, p.Backoff(3))
	})

	t.Run("sleeps between attempts", func(t *testing.T) {
		start := time.Now()
		calls := 0
		_, err := RetryValue(context.Background(), RetryPolicy{
			Attempts:  3,
			BaseDelay: 5 * time.Millisecond,
			Clock:     clock.New(),
		}, func(ctx context.Context) (int, error) {
			calls++
			return 0, errors.New("down")
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
		// 5ms after the first attempt and 10ms after the second
		assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
	})

	t.Run("context cancelled while waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		_, err := RetryValue(ctx, RetryPolicy{Attempts: 3, BaseDelay: time.Hour, Clock: clock.NewMock()}, func(ctx context.Context) (int, error) {
			calls++
			cancel()
			return 0, errors.New("down")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})

	t.Run("waits on the policy clock", func(t *testing.T) {
		clk := clock.NewMock()
		calls := make(chan struct{}, 3)
		done := make(chan error, 1)
		go func() {
			_, err := RetryValue(context.Background(), RetryPolicy{Attempts: 3, BaseDelay: time.Second, Clock: clk}, func(ctx context.Context) (int, error) {
				calls <- struct{}{}
				return 0, errors.New("down")
			})
			done <- err
		}()

		<-calls
		require.Eventually(t, func() bool {
			clk.Add(time.Second)
			select {
			case <-calls:
				return true
			default:
				return false
			}
		}, time.Second, time.Millisecond)
		require.Eventually(t, func() bool {
			clk.Add(time.Second)
			select {
			case <-calls:
				return true
			default:
				return false
			}
		}, time.Second, time.Millisecond)
		require.EqualError(t, <-done, "down")
	})

	t.Run("at least one attempt", func(t *testing.T) {
		calls := 0
		_, err := RetryValue(context.Background(), RetryPolicy{}, func(ctx context.Context) (int, error) {
			calls++
			return 0, errors.New("down")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}
