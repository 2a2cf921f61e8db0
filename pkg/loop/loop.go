// Package loop runs a task repeatedly, suspending between iterations.
//
// A workflow wait-edge and the orchestrator's polling of persisted
// instances are both expressed as loops.
package loop

import (
	"context"
	"fmt"
	"time"
)

type Next struct {
	// if not nil, breaks with error
	err error

	// if quit == true and err == nil, breaks without error
	quit bool

	// otherwise, continue loop after interval.
	interval time.Duration
}

func (n Next) String() string {
	if n.err != nil {
		return fmt.Sprintf("[break] with error: %v", n.err)
	}
	if n.quit {
		return "[break] without error"
	}
	return fmt.Sprintf("[continue] interval: %s", n.interval)
}

// Interval to be waited before the next iteration.
func (n Next) Interval() time.Duration {
	return n.interval
}

// Breaking reports whether the loop stops after this iteration.
func (n Next) Breaking() bool {
	return n.quit || n.err != nil
}

// Continue the loop after interval.
func Continue(interval time.Duration) Next {
	return Next{interval: interval}
}

// Break the loop. Pass non-nil err to break with error.
func Break(err error) Next {
	return Next{quit: true, err: err}
}

// Task receives the last value and returns a new value with what to do next.
//
// Zero value of Next equals Continue(0), that is, "go next ASAP!".
type Task[T any] func(context.Context, T) (T, Next)

// Waiter blocks for d or until ctx is done.
//
// It returns ctx.Err() when ctx gets done before d elapses.
type Waiter func(ctx context.Context, d time.Duration) error

// TimerWaiter waits with time.Timer.
func TimerWaiter(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}

	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		// shutting down is priority. it should come first, and checking timer later.
		if !timer.Stop() {
			<-timer.C // drain. see: time.Timer.Stop's document
		}
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Start task in loop.
//
// The task is called as task(ctx, init) at first, and then with the value it returned last time.
// Between iterations, Start waits for the interval given by Continue.
//
// # Returns
//
// - T: the value the task returned at last.
// This value is always returned whether or not the error is nil.
//
// - error: the error in Break(error), or ctx.Err() when ctx gets done.
func Start[T any](ctx context.Context, init T, task Task[T], options ...Option) (T, error) {
	select {
	case <-ctx.Done():
		return init, ctx.Err()
	default:
	}

	base := &config{ctx: ctx, wait: TimerWaiter}
	for _, opt := range options {
		base = opt(base)
	}

	value := init
	for {
		v, n := func() (T, Next) {
			lc := base
			if lc.perIteration != nil {
				lc = lc.perIteration(lc)
			}
			if lc.deferred != nil {
				defer lc.deferred()
			}
			return task(lc.ctx, value)
		}()

		if n.err != nil {
			return v, n.err
		} else if n.quit {
			return v, nil
		}
		value = v

		if err := base.wait(ctx, n.interval); err != nil {
			return value, err
		}
	}
}

type config struct {
	ctx          context.Context
	deferred     func()
	wait         Waiter
	perIteration func(*config) *config
}

type Option func(*config) *config

// WithTimeout sets timeout on the context passed to each iteration of the task.
func WithTimeout(d time.Duration) Option {
	return func(c *config) *config {
		prev := c.perIteration
		return &config{
			ctx:  c.ctx,
			wait: c.wait,
			perIteration: func(lc *config) *config {
				if prev != nil {
					lc = prev(lc)
				}
				ctx, cancel := context.WithTimeout(lc.ctx, d)
				outer := lc.deferred
				return &config{
					ctx:  ctx,
					wait: lc.wait,
					deferred: func() {
						cancel()
						if outer != nil {
							outer()
						}
					},
				}
			},
		}
	}
}

// WithWaiter replaces how the loop waits between iterations.
func WithWaiter(w Waiter) Option {
	return func(c *config) *config {
		if w == nil {
			return c
		}
		return &config{
			ctx:          c.ctx,
			deferred:     c.deferred,
			wait:         w,
			perIteration: c.perIteration,
		}
	}
}
