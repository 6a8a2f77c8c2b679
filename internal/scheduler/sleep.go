package scheduler

import (
	"context"
	"time"

	"github.com/t77yq/cronthat/internal/clock"
)

// WakeReason tells why SleepUntil returned
type WakeReason int

const (
	WakeElapsed WakeReason = iota
	WakeCancelled
)

func (r WakeReason) String() string {
	if r == WakeCancelled {
		return "cancelled"
	}
	return "elapsed"
}

// SleepUntil blocks until the clock reaches deadline or ctx is done. A
// wake-up that finds the wall clock still short of deadline, for example
// after the system clock was set back, goes back to sleep.
func SleepUntil(ctx context.Context, c clock.Clock, deadline time.Time) WakeReason {
	for {
		if ctx.Err() != nil {
			return WakeCancelled
		}
		d := deadline.Sub(c.Now())
		if d <= 0 {
			return WakeElapsed
		}
		select {
		case <-ctx.Done():
			return WakeCancelled
		case <-c.After(d):
		}
	}
}
