// internal/poll/clock.go
package poll

import (
	"sync"
	"time"
)

// Clock abstracts the passage of time so polling loops can be driven
// deterministically in tests.
type Clock interface {
	// Now returns the current time. Implementations backed by time.Now carry a
	// monotonic reading, so Sub between two values is immune to wall-clock jumps.
	Now() time.Time
	// After waits for the duration to elapse and then sends the current time.
	After(d time.Duration) <-chan time.Time
}

// RealClock is the production Clock.
type RealClock struct{}

func (RealClock) Now() time.Time                         { return time.Now() }
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// FakeClock is a Clock whose time only moves when After is called. Every call
// advances the clock by the requested duration and fires immediately, which
// turns a 60 second poll into a tight loop while keeping elapsed-time math exact.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	waits  []time.Duration
	onWait func(d time.Duration)
}

// NewFakeClock returns a FakeClock starting at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.waits = append(c.waits, d)
	now := c.now
	hook := c.onWait
	c.mu.Unlock()

	if hook != nil {
		hook(d)
	}
	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// Advance moves the clock forward without recording a wait.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Waits returns every duration passed to After, in call order.
func (c *FakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.waits))
	copy(out, c.waits)
	return out
}

// Elapsed returns the total simulated time spent waiting.
func (c *FakeClock) Elapsed() time.Duration {
	var total time.Duration
	for _, w := range c.Waits() {
		total += w
	}
	return total
}

// OnWait registers a hook invoked after every After call, outside the lock.
func (c *FakeClock) OnWait(fn func(d time.Duration)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onWait = fn
}
