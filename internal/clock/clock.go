// Package clock abstracts wall-clock time so the capture and eviction
// cadences can be driven by a manual clock in tests.
package clock

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock supplies the current time and cancellable delays.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After waits d, then sends the current time on the returned channel.
	//
	// If ctx is cancelled first the channel fires immediately; callers check
	// ctx.Err() after receiving.
	After(ctx context.Context, d time.Duration) <-chan time.Time
}

// System returns the Clock backed by the wall clock.
func System() Clock {
	return FromClockwork(clockwork.NewRealClock())
}

// FromClockwork adapts a clockwork clock, real or fake, to Clock.
func FromClockwork(c clockwork.Clock) Clock {
	return clockworkClock{c: c}
}

type clockworkClock struct {
	c clockwork.Clock
}

func (w clockworkClock) Now() time.Time { return w.c.Now() }

// After arms a clockwork timer before returning, so fake clocks count the
// caller as a waiter immediately. Cancellation stops the timer.
func (w clockworkClock) After(ctx context.Context, d time.Duration) <-chan time.Time {
	out := make(chan time.Time, 1)
	if d <= 0 || ctx.Err() != nil {
		out <- w.c.Now()
		return out
	}
	timer := w.c.NewTimer(d)
	go func() {
		select {
		case now := <-timer.Chan():
			out <- now
		case <-ctx.Done():
			timer.Stop()
			out <- w.c.Now()
		}
	}()
	return out
}

// Sleep blocks for d on c. It returns ctx.Err() when ctx is cancelled before
// the delay elapses.
func Sleep(ctx context.Context, c Clock, d time.Duration) error {
	if c == nil {
		c = System()
	}
	<-c.After(ctx, d)
	return ctx.Err()
}

// OrSystem returns c, or the system clock when c is nil.
func OrSystem(c Clock) Clock {
	if c == nil {
		return System()
	}
	return c
}
