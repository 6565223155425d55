// Package wait synchronises test flows with asynchronous UI state by polling
// a condition until it holds or a timeout elapses.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/treeherder-uitests/internal/common"
)

const (
	// DefaultTimeout is used when a Waiter has no timeout set.
	DefaultTimeout = 10 * time.Second

	// DefaultInterval is used when a Waiter has no poll interval set.
	DefaultInterval = 100 * time.Millisecond
)

// ErrTimeout is matched by every *TimeoutError via errors.Is.
var ErrTimeout = errors.New("condition not met before timeout")

// Waiter holds the timing parameters of a wait. The zero value is usable and
// behaves like Default().
type Waiter struct {
	Timeout     time.Duration
	Interval    time.Duration
	MaxInterval time.Duration // Cap for adaptive backoff, ignored when Backoff <= 1
	Backoff     float64       // Interval multiplier applied after each falsy evaluation
	Message     string        // Describes what is being waited for, used in the timeout error
	Logger      arbor.ILogger
}

// Condition is evaluated against live state. A non-zero result means the
// condition holds. Errors are treated as a falsy observation.
type Condition[T comparable] func(ctx context.Context) (T, error)

// Default returns a Waiter with a 10s timeout and a fixed 100ms interval.
func Default() Waiter {
	return Waiter{Timeout: DefaultTimeout, Interval: DefaultInterval}
}

// FromConfig builds a Waiter from the [wait] configuration section.
func FromConfig(cfg common.WaitConfig, logger arbor.ILogger) Waiter {
	return Waiter{
		Timeout:     cfg.Timeout.Std(),
		Interval:    cfg.PollInterval.Std(),
		MaxInterval: cfg.MaxInterval.Std(),
		Backoff:     cfg.Backoff,
		Logger:      logger,
	}
}

// WithMessage returns a copy of w whose timeout error carries msg.
func (w Waiter) WithMessage(msg string) Waiter {
	w.Message = msg
	return w
}

// WithTimeout returns a copy of w with a different timeout.
func (w Waiter) WithTimeout(timeout time.Duration) Waiter {
	w.Timeout = timeout
	return w
}

func (w Waiter) timeout() time.Duration {
	if w.Timeout <= 0 {
		return DefaultTimeout
	}
	return w.Timeout
}

func (w Waiter) interval() time.Duration {
	if w.Interval <= 0 {
		return DefaultInterval
	}
	return w.Interval
}

// next returns the interval to use after current.
func (w Waiter) next(current time.Duration) time.Duration {
	if w.Backoff <= 1 {
		return current
	}
	grown := time.Duration(float64(current) * w.Backoff)
	if w.MaxInterval > 0 && grown > w.MaxInterval {
		return w.MaxInterval
	}
	return grown
}

// Until evaluates cond immediately and then once per interval until it
// returns a non-zero value, which is returned. When the timeout elapses first
// the result is a *TimeoutError carrying the last observed value. The final
// evaluation happens at the deadline.
func Until[T comparable](ctx context.Context, w Waiter, cond Condition[T]) (T, error) {
	var zero T

	timeout := w.timeout()
	interval := w.interval()
	start := time.Now()
	deadline := start.Add(timeout)

	var (
		last     T
		lastErr  error
		attempts int
	)

	for {
		value, err := cond(ctx)
		attempts++

		if err == nil && value != zero {
			if w.Logger != nil {
				w.Logger.Trace().
					Str("condition", w.Message).
					Int("attempts", attempts).
					Dur("elapsed", time.Since(start)).
					Msg("Wait condition met")
			}
			return value, nil
		}
		last, lastErr = value, err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, fmt.Errorf("wait aborted after %d attempts: %w", attempts, ctxErr)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			timeoutErr := &TimeoutError{
				Timeout:  timeout,
				Elapsed:  time.Since(start),
				Attempts: attempts,
				Last:     last,
				LastErr:  lastErr,
				Message:  w.Message,
			}
			if w.Logger != nil {
				w.Logger.Debug().Err(timeoutErr).Msg("Wait condition timed out")
			}
			return zero, timeoutErr
		}

		timer := time.NewTimer(min(interval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("wait aborted after %d attempts: %w", attempts, ctx.Err())
		case <-timer.C:
		}

		interval = w.next(interval)
	}
}

// True waits for a boolean condition.
func True(ctx context.Context, w Waiter, cond func(ctx context.Context) (bool, error)) error {
	_, err := Until(ctx, w, Condition[bool](cond))
	return err
}

// TimeoutError reports a condition that never held.
type TimeoutError struct {
	Timeout  time.Duration
	Elapsed  time.Duration
	Attempts int
	Last     any   // Last observed (falsy) value
	LastErr  error // Last error returned by the condition, if any
	Message  string
}

func (e *TimeoutError) Error() string {
	what := "condition"
	if e.Message != "" {
		what = e.Message
	}
	msg := fmt.Sprintf("timed out after %v waiting for %s (%d attempts, last value: %#v)",
		e.Timeout, what, e.Attempts, e.Last)
	if e.LastErr != nil {
		msg += fmt.Sprintf(", last error: %v", e.LastErr)
	}
	return msg
}

// Is makes errors.Is(err, ErrTimeout) hold.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

func (e *TimeoutError) Unwrap() error {
	return e.LastErr
}
