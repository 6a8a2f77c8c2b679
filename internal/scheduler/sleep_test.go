package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/t77yq/cronthat/internal/clock"
)

// steppingClock returns a scripted sequence of readings and fires every
// wait immediately.
type steppingClock struct {
	readings []time.Time
	waits    []time.Duration
}

func (c *steppingClock) Now() time.Time {
	now := c.readings[0]
	if len(c.readings) > 1 {
		c.readings = c.readings[1:]
	}
	return now
}

func (c *steppingClock) After(d time.Duration) <-chan time.Time {
	c.waits = append(c.waits, d)
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func TestSleepUntil(t *testing.T) {
	start := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	t.Run("Elapsed", func(t *testing.T) {
		c := clock.Fake(start)
		done := make(chan WakeReason)
		go func() {
			done <- SleepUntil(context.Background(), c, start.Add(10*time.Second))
		}()

		c.WaitForTimers(1)
		c.Advance(10 * time.Second)
		assert.Equal(t, WakeElapsed, <-done)
	})

	t.Run("Deadline In The Past", func(t *testing.T) {
		c := clock.Fake(start)
		assert.Equal(t, WakeElapsed, SleepUntil(context.Background(), c, start.Add(-time.Minute)))
		assert.Equal(t, 0, c.PendingTimers())
	})

	t.Run("Cancelled While Sleeping", func(t *testing.T) {
		c := clock.Fake(start)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan WakeReason)
		go func() {
			done <- SleepUntil(ctx, c, start.Add(time.Hour))
		}()

		c.WaitForTimers(1)
		cancel()
		select {
		case reason := <-done:
			assert.Equal(t, WakeCancelled, reason)
		case <-time.After(5 * time.Second):
			t.Fatal("cancellation did not wake the sleeper")
		}
	})

	t.Run("Already Cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.Equal(t, WakeCancelled, SleepUntil(ctx, clock.Fake(start), start))
	})

	t.Run("Early Wake Sleeps Again", func(t *testing.T) {
		c := &steppingClock{readings: []time.Time{
			start,
			start.Add(5 * time.Second),
			start.Add(10 * time.Second),
		}}
		reason := SleepUntil(context.Background(), c, start.Add(10*time.Second))
		assert.Equal(t, WakeElapsed, reason)
		assert.Equal(t, []time.Duration{10 * time.Second, 5 * time.Second}, c.waits)
	})
}

func TestWakeReasonString(t *testing.T) {
	assert.Equal(t, "elapsed", WakeElapsed.String())
	assert.Equal(t, "cancelled", WakeCancelled.String())
}
