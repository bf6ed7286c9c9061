// Package retry implements the backoff policy shared by every
// token-acquisition path: a short fixed delay with jitter for transient
// failures, server-supplied hints for throttled ones, and a hard cap on
// both the hint and the attempt count.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// DefaultInterval is the pause between attempts when the server gave
	// no better hint.
	DefaultInterval = 50 * time.Millisecond

	// MaxAttempts bounds the total number of attempts per Run call.
	MaxAttempts = 10

	// MaxServerHint clamps any server-supplied retry-after value so a
	// misbehaving provider cannot park callers for minutes.
	MaxServerHint = 10 * time.Second

	jitterFraction = 0.1
)

// State is the outcome of a backoff decision: whether another attempt is
// warranted and how long to wait before it.
type State struct {
	Retry bool
	After time.Duration
}

// Stop is the canonical zero-retry sentinel.
var Stop = State{}

// Next returns the backoff state for the given zero-based retry count.
func Next(retryCount int) State {
	if retryCount >= MaxAttempts {
		return Stop
	}
	return State{Retry: true, After: DefaultInterval}
}

// FromServerHint derives a backoff state from an explicit server hint: a
// relative delta (Retry-After: 3) or an absolute time (Retry-After: <date>).
// Hints are clamped to MaxServerHint. With no usable hint it falls back to
// the default policy.
func FromServerHint(delta time.Duration, at time.Time) State {
	switch {
	case delta > 0:
		return State{Retry: true, After: clamp(delta)}
	case !at.IsZero():
		return State{Retry: true, After: clamp(time.Until(at))}
	default:
		return Next(0)
	}
}

func clamp(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > MaxServerHint {
		return MaxServerHint
	}
	return d
}

// WithJitter spreads a delay uniformly across [d, 1.1*d] so concurrent
// callers that failed together do not retry in lockstep.
func WithJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(int64(float64(d)*jitterFraction)+1))
}

// Permanent marks err as non-retryable; Run stops immediately and returns it.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// After marks err as retryable no sooner than d from now, overriding the
// default interval. Used to propagate throttle hints into the retry loop.
func After(d time.Duration, err error) error {
	return &delayedError{err: err, after: clamp(d)}
}

type delayedError struct {
	err   error
	after time.Duration
}

func (e *delayedError) Error() string { return e.err.Error() }

// Unwrap exposes both the domain error and the backoff hint so errors.As
// finds either.
func (e *delayedError) Unwrap() []error {
	return []error{e.err, &backoff.RetryAfterError{Duration: e.after}}
}

// fixedWithJitter is the default backoff: a constant short interval with
// jitter, relied on when an attempt error carries no explicit hint.
type fixedWithJitter struct{}

func (fixedWithJitter) NextBackOff() time.Duration { return WithJitter(DefaultInterval) }
func (fixedWithJitter) Reset()                     {}

// Run executes op until it succeeds, returns a permanent error, the context
// is done, or MaxAttempts attempts have been made. On exhaustion the
// returned error aggregates every attempt's failure.
func Run[T any](ctx context.Context, op func() (T, error)) (T, error) {
	var attempts []error

	v, err := backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil {
			attempts = append(attempts, err)
		}
		return v, err
	},
		backoff.WithBackOff(fixedWithJitter{}),
		backoff.WithMaxTries(MaxAttempts),
	)
	if err == nil {
		return v, nil
	}

	var perm *backoff.PermanentError
	if errors.As(err, &perm) || len(attempts) <= 1 {
		return v, err
	}
	return v, errors.Join(attempts...)
}
