// Package clocktest provides a manually advanced clock.Clock backed by a
// clockwork fake clock.
package clocktest

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"pulsecam/internal/clock"
)

// Clock is a clock.Clock whose time only moves when Advance or Set is called.
type Clock struct {
	fake  clockwork.FakeClock
	inner clock.Clock
}

var _ clock.Clock = (*Clock)(nil)

// New returns a Clock set at now.
func New(now time.Time) *Clock {
	fake := clockwork.NewFakeClockAt(now)
	return &Clock{fake: fake, inner: clock.FromClockwork(fake)}
}

func (c *Clock) Now() time.Time { return c.fake.Now() }

func (c *Clock) After(ctx context.Context, d time.Duration) <-chan time.Time {
	return c.inner.After(ctx, d)
}

// Advance moves the clock forward by d and fires every waiter whose deadline
// has been reached.
func (c *Clock) Advance(d time.Duration) {
	c.fake.Advance(d)
}

// Set moves the clock to t. Moving backwards panics.
func (c *Clock) Set(t time.Time) {
	d := t.Sub(c.fake.Now())
	if d < 0 {
		panic("clocktest: cannot move time backwards")
	}
	c.fake.Advance(d)
}

// BlockUntil waits until at least n After calls are pending.
func (c *Clock) BlockUntil(n int) {
	c.fake.BlockUntil(n)
}
