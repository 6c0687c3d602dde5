// internal/poll/poll.go
package poll

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is the fixed delay between predicate checks. The portal's own
// round trip is about a second, so polling faster buys nothing.
const DefaultInterval = time.Second

// Condition reports whether the awaited state has been reached. A non-nil error
// aborts the wait immediately and is returned unchanged.
type Condition func(ctx context.Context) (bool, error)

// StateFunc renders a human-readable snapshot of whatever is being waited on.
// It is only called when a wait times out.
type StateFunc func() string

// TimeoutError is returned when a condition never became true within its budget.
type TimeoutError struct {
	What     string
	Timeout  time.Duration
	Elapsed  time.Duration
	Attempts int
	State    string
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out waiting for %s after %s (%d checks)", e.What, e.Timeout, e.Attempts)
	if e.State != "" {
		msg += ", state:\n" + e.State
	}
	return msg
}

// Poller runs "wait until true or timeout" loops at a fixed cadence.
// A Poller holds no per-wait state and may be shared.
type Poller struct {
	interval time.Duration
	clock    Clock
	logger   *zap.Logger
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval overrides the delay between checks.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithClock injects the time source.
func WithClock(c Clock) Option {
	return func(p *Poller) {
		if c != nil {
			p.clock = c
		}
	}
}

// New creates a Poller using the real clock and DefaultInterval unless overridden.
func New(logger *zap.Logger, opts ...Option) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Poller{
		interval: DefaultInterval,
		clock:    RealClock{},
		logger:   logger.Named("poll"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Interval returns the configured check interval.
func (p *Poller) Interval() time.Duration { return p.interval }

// Clock returns the time source in use.
func (p *Poller) Clock() Clock { return p.clock }

// Until evaluates cond, then keeps re-evaluating it every interval until it
// returns true, returns an error, the context ends, or timeout has elapsed since
// the call started. The deadline is measured from the clock's monotonic reading.
func (p *Poller) Until(ctx context.Context, what string, timeout time.Duration, cond Condition, state StateFunc) error {
	start := p.clock.Now()
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempts++
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			p.logger.Debug("Condition met.",
				zap.String("what", what),
				zap.Int("attempts", attempts),
				zap.Duration("elapsed", p.clock.Now().Sub(start)))
			return nil
		}

		elapsed := p.clock.Now().Sub(start)
		if elapsed >= timeout {
			terr := &TimeoutError{What: what, Timeout: timeout, Elapsed: elapsed, Attempts: attempts}
			if state != nil {
				terr.State = state()
			}
			p.logger.Warn("Timed out waiting.",
				zap.String("what", what),
				zap.Duration("timeout", timeout),
				zap.Int("attempts", attempts))
			return terr
		}

		p.logger.Debug("Waiting.", zap.String("what", what), zap.Duration("elapsed", elapsed))
		if err := p.Sleep(ctx, p.interval); err != nil {
			return err
		}
	}
}

// Sleep pauses for d on the Poller's clock, returning early if ctx ends.
func (p *Poller) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-p.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
