package retry

import (
	"context"
	"time"
)

const (
	// DefaultMaxCalls is the ceiling on invocations per CallForDuration.
	DefaultMaxCalls = 100

	// DefaultPause is the wait inserted after a call that failed faster
	// than FastCallThreshold.
	DefaultPause = 20 * time.Millisecond

	// FastCallThreshold marks a call as an instant rejection.
	FastCallThreshold = 2 * time.Millisecond
)

// StopReason says why CallForDuration returned.
type StopReason int

const (
	StopSuccess StopReason = iota
	StopDeadline
	StopPredicted
	StopMaxCalls
	StopCancelled
)

// String returns a label suitable for logs and metrics.
func (r StopReason) String() string {
	switch r {
	case StopSuccess:
		return "success"
	case StopDeadline:
		return "deadline"
	case StopPredicted:
		return "predicted"
	case StopMaxCalls:
		return "max_calls"
	case StopCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome summarises one CallForDuration run.
type Outcome struct {
	Attempts   int
	Elapsed    time.Duration
	MaxLatency time.Duration
	Reason     StopReason
}

// OK reports whether the run ended with a successful call.
func (o Outcome) OK() bool { return o.Reason == StopSuccess }

type options struct {
	maxCalls int
	pause    time.Duration
	observer func(Outcome)
}

// Option configures CallForDuration.
type Option func(*options)

// WithMaxCalls overrides the call ceiling. Values below 1 are ignored.
func WithMaxCalls(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxCalls = n
		}
	}
}

// WithPause overrides the minimum pause after an instant rejection. The
// pause is stretched to timeout/maxCalls when that is longer. Zero disables
// it.
func WithPause(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.pause = d
		}
	}
}

// WithObserver registers a function called once with the run's Outcome.
func WithObserver(fn func(Outcome)) Option {
	return func(o *options) {
		o.observer = fn
	}
}

// CallForDuration invokes op until it returns ok, the timeout is spent, the
// slowest observed call would overrun the remaining budget, the call
// ceiling is reached, or ctx is cancelled.
//
// It returns the last value op produced together with ok. A false ok is
// the timeout signal; the value is whatever the final attempt returned.
// The first call is always made unless ctx is already done.
func CallForDuration[T any](ctx context.Context, timeout time.Duration, op func() (T, bool), opts ...Option) (T, bool) {
	o := options{maxCalls: DefaultMaxCalls, pause: DefaultPause}
	for _, opt := range opts {
		opt(&o)
	}

	// Instant rejections are spread over the whole timeout so the call
	// ceiling never ends the loop before the deadline.
	if o.pause > 0 && o.maxCalls > 0 {
		o.pause = max(o.pause, timeout/time.Duration(o.maxCalls))
	}

	var (
		last       T
		maxLatency time.Duration
		calls      int
		reason     StopReason
	)
	start := time.Now()

	defer func() {
		if o.observer != nil {
			o.observer(Outcome{
				Attempts:   calls,
				Elapsed:    time.Since(start),
				MaxLatency: maxLatency,
				Reason:     reason,
			})
		}
	}()

	for {
		if ctx.Err() != nil {
			reason = StopCancelled
			return last, false
		}

		callStart := time.Now()
		v, ok := op()
		latency := time.Since(callStart)
		calls++
		last = v

		if ok {
			reason = StopSuccess
			return last, true
		}

		if latency > maxLatency {
			maxLatency = latency
		}
		remaining := timeout - time.Since(start)
		if remaining < 0 {
			reason = StopDeadline
			return last, false
		}
		if maxLatency > remaining {
			reason = StopPredicted
			return last, false
		}
		if calls >= o.maxCalls {
			reason = StopMaxCalls
			return last, false
		}

		if latency < FastCallThreshold && o.pause > 0 {
			if !sleep(ctx, min(o.pause, remaining)) {
				reason = StopCancelled
				return last, false
			}
			if time.Since(start) >= timeout {
				reason = StopDeadline
				return last, false
			}
		}
	}
}

// Truthy adapts an operation whose failure is its zero value.
func Truthy[T comparable](fn func() T) func() (T, bool) {
	return func() (T, bool) {
		var zero T
		v := fn()
		return v, v != zero
	}
}

// sleep waits for d or until ctx is done; it reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
