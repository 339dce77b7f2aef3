// Package poll is a bounded retry combinator: call fn at a fixed interval
// until it reports done or the attempts run out.
package poll

import (
	"context"
	"errors"
	"time"
)

var ErrExhausted = errors.New("poll: attempts exhausted")

// Func is one call. done stops polling and returns v. A non-nil err counts
// as a failed attempt and polling continues.
type Func[T any] func(ctx context.Context, attempt int) (v T, done bool, err error)

type Config struct {
	Interval    time.Duration
	MaxAttempts int
	Clock       Clock
	// Budget caps the wall time of the whole poll, calls included. Zero
	// means MaxAttempts × Interval.
	Budget time.Duration
}

func (c Config) budget(limit int) time.Duration {
	if c.Budget > 0 {
		return c.Budget
	}
	return time.Duration(limit) * c.Interval
}

type callResult[T any] struct {
	v    T
	done bool
	err  error
}

// Until runs fn at most MaxAttempts times, waiting Interval before each
// attempt after the first. It returns the first done value, ErrExhausted
// (joined with the last call error) when attempts or the budget run out,
// or ctx.Err() when ctx is cancelled. A call that hangs is abandoned once
// the budget is spent; it sees a cancelled context.
func Until[T any](ctx context.Context, cfg Config, fn Func[T]) (T, int, error) {
	var zero T
	clock := cfg.Clock
	if clock == nil {
		clock = RealClock()
	}
	limit := cfg.MaxAttempts
	if limit < 1 {
		limit = 1
	}

	bctx := ctx
	if budget := cfg.budget(limit); budget > 0 {
		var cancel context.CancelFunc
		bctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	var lastErr error
	exhausted := func() error {
		if lastErr != nil {
			return errors.Join(ErrExhausted, lastErr)
		}
		return ErrExhausted
	}
	stopped := func(attempts int) (T, int, error) {
		if err := ctx.Err(); err != nil {
			return zero, attempts, err
		}
		return zero, attempts, exhausted()
	}

	for attempt := 1; attempt <= limit; attempt++ {
		if attempt > 1 {
			select {
			case <-bctx.Done():
				return stopped(attempt - 1)
			case <-clock.After(cfg.Interval):
			}
		}
		if bctx.Err() != nil {
			return stopped(attempt - 1)
		}

		ch := make(chan callResult[T], 1)
		go func(n int) {
			v, done, err := fn(bctx, n)
			ch <- callResult[T]{v: v, done: done, err: err}
		}(attempt)

		select {
		case <-bctx.Done():
			return stopped(attempt)
		case r := <-ch:
			if r.done && r.err == nil {
				return r.v, attempt, nil
			}
			if r.err != nil {
				lastErr = r.err
			}
		}
	}

	return zero, limit, exhausted()
}
