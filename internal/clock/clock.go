// Package clock abstracts the wall clock so the scheduler loop can be driven
// deterministically in tests.
//
// Production code uses Real(). Tests use Fake(), whose time only moves when
// Advance or Set is called, or on every wait when auto-advance is enabled.
package clock

import "time"

// Clock is the time source used by the scheduler loop.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d has
	// elapsed. If d <= 0 the channel receives immediately.
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
