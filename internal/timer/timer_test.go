package timer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitForTimer blocks until the countdown goroutine has registered its next
// wake-up with the mock clock, so an Advance cannot race past it.
func waitForTimer(t *testing.T, mock *quartz.Mock) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, ok := mock.Peek()
		return ok
	}, 5*time.Second, time.Millisecond)
}

func TestRun(t *testing.T) {
	t.Run("natural expiry fires completion", func(t *testing.T) {
		mock := quartz.NewMock(t)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var completed atomic.Bool
		done := make(chan struct{})
		go func() {
			defer close(done)
			Run(mock, 10*time.Second, func(time.Time) (bool, time.Duration) {
				return false, 0
			}, func() {
				completed.Store(true)
			})
		}()

		waitForTimer(t, mock)
		mock.Advance(10 * time.Second).MustWait(ctx)

		<-done
		assert.True(t, completed.Load())
	})

	t.Run("silent stop skips completion", func(t *testing.T) {
		mock := quartz.NewMock(t)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var completed atomic.Bool
		done := make(chan struct{})
		go func() {
			defer close(done)
			Run(mock, 10*time.Second, func(time.Time) (bool, time.Duration) {
				// Early resolution, not an expiry
				return false, -1
			}, func() {
				completed.Store(true)
			})
		}()

		waitForTimer(t, mock)
		mock.Advance(10 * time.Second).MustWait(ctx)

		<-done
		assert.False(t, completed.Load())
	})

	t.Run("loop continues with the reported remaining", func(t *testing.T) {
		mock := quartz.NewMock(t)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var checks atomic.Int32
		var completed atomic.Bool
		done := make(chan struct{})
		go func() {
			defer close(done)
			Run(mock, 10*time.Second, func(time.Time) (bool, time.Duration) {
				if checks.Add(1) == 1 {
					return true, 5 * time.Second
				}
				return false, 0
			}, func() {
				completed.Store(true)
			})
		}()

		waitForTimer(t, mock)
		mock.Advance(10 * time.Second).MustWait(ctx)

		// The checker asked for another 5s; the loop must still be alive
		waitForTimer(t, mock)
		mock.Advance(5 * time.Second).MustWait(ctx)

		<-done
		assert.Equal(t, int32(2), checks.Load())
		assert.True(t, completed.Load())
	})

	t.Run("nil completion is allowed", func(t *testing.T) {
		mock := quartz.NewMock(t)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		done := make(chan struct{})
		go func() {
			defer close(done)
			Run(mock, time.Second, func(time.Time) (bool, time.Duration) {
				return false, 0
			}, nil)
		}()

		waitForTimer(t, mock)
		mock.Advance(time.Second).MustWait(ctx)
		<-done
	})
}

func TestState(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("remaining counts down", func(t *testing.T) {
		s := NewState(base, 10*time.Second)

		assert.Equal(t, 10*time.Second, s.Remaining(base))
		assert.Equal(t, 4*time.Second, s.Remaining(base.Add(6*time.Second)))
		assert.Equal(t, time.Duration(0), s.Remaining(base.Add(15*time.Second)))
	})

	t.Run("pause freezes remaining", func(t *testing.T) {
		s := NewState(base, 10*time.Second)
		s.Pause(base.Add(3 * time.Second))

		require.True(t, s.Paused())
		assert.Equal(t, 7*time.Second, s.Remaining(base.Add(3*time.Second)))
		// Time keeps moving, remaining does not
		assert.Equal(t, 7*time.Second, s.Remaining(base.Add(time.Hour)))
	})

	t.Run("pause is idempotent", func(t *testing.T) {
		s := NewState(base, 10*time.Second)
		s.Pause(base.Add(3 * time.Second))
		s.Pause(base.Add(8 * time.Second))

		assert.Equal(t, 7*time.Second, s.Remaining(base.Add(8*time.Second)))
	})

	t.Run("resume pushes the deadline out", func(t *testing.T) {
		s := NewState(base, 10*time.Second)
		s.Pause(base.Add(3 * time.Second))
		s.Resume(base.Add(5 * time.Second))

		require.False(t, s.Paused())
		assert.Equal(t, 7*time.Second, s.Remaining(base.Add(5*time.Second)))
	})

	t.Run("paused countdown never expires", func(t *testing.T) {
		s := NewState(base, 10*time.Second)
		s.Pause(base.Add(time.Second))

		assert.False(t, s.Expired(base.Add(time.Hour)))

		s.Resume(base.Add(time.Hour))
		assert.False(t, s.Expired(base.Add(time.Hour)))
		assert.True(t, s.Expired(base.Add(time.Hour).Add(9*time.Second)))
	})

	t.Run("expiry at the deadline", func(t *testing.T) {
		s := NewState(base, 10*time.Second)

		assert.False(t, s.Expired(base.Add(10*time.Second-time.Nanosecond)))
		assert.True(t, s.Expired(base.Add(10*time.Second)))
	})
}
