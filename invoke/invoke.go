// Package invoke wraps side-effecting capability calls with bounded
// exponential-backoff retry. Retryable failures (timeouts, transient
// unavailability) are retried transparently and stay invisible to the
// routing graph; non-retryable failures abort the enclosing turn
// immediately. Tasks must be idempotent under at-least-once execution since
// a retried call may have partially succeeded upstream.
package invoke

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/wealthmesh/wealthmesh/logging"
)

// Retry policy defaults, matching the policy applied to data-store tasks in
// the production deployment this module grew out of.
const (
	DefaultInitialInterval = 1 * time.Second
	DefaultMultiplier      = 2.0
	DefaultMaxInterval     = 30 * time.Second
	DefaultMaxElapsed      = 2 * time.Minute
)

// nonRetryableError marks an error that must not be retried.
type nonRetryableError struct{ err error }

func (e *nonRetryableError) Error() string { return e.err.Error() }
func (e *nonRetryableError) Unwrap() error { return e.err }

// NonRetryable wraps err so the invoker aborts immediately instead of
// retrying (e.g. a required endpoint configuration is absent).
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetryableError{err: err}
}

// IsNonRetryable reports whether err (or anything it wraps) was marked
// non-retryable.
func IsNonRetryable(err error) bool {
	var nr *nonRetryableError
	return errors.As(err, &nr)
}

// Op is a side-effecting operation executed under retry.
type Op func(ctx context.Context) (any, error)

// Invoker executes operations with bounded multiplicative backoff.
type Invoker struct {
	initialInterval time.Duration
	multiplier      float64
	maxInterval     time.Duration
	maxElapsed      time.Duration
	logger          logging.Logger
}

// Options holds overrides passed to New.
type Options struct {
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
	// MaxElapsed bounds the total wait across attempts; once exceeded the
	// last error is surfaced as fatal.
	MaxElapsed time.Duration
	Logger     logging.Logger
}

// New constructs an Invoker with optional overrides.
func New(optFns ...func(o *Options)) *Invoker {
	opts := Options{
		InitialInterval: DefaultInitialInterval,
		Multiplier:      DefaultMultiplier,
		MaxInterval:     DefaultMaxInterval,
		MaxElapsed:      DefaultMaxElapsed,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Invoker{
		initialInterval: opts.InitialInterval,
		multiplier:      opts.Multiplier,
		maxInterval:     opts.MaxInterval,
		maxElapsed:      opts.MaxElapsed,
		logger:          opts.Logger,
	}
}

// Invoke runs op until it succeeds, declares itself non-retryable, the
// bounded total wait is exceeded, or ctx is cancelled. A panic inside op is
// recovered and surfaced as a non-retryable error.
func (i *Invoker) Invoke(ctx context.Context, name string, op Op) (any, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = i.initialInterval
	policy.Multiplier = i.multiplier
	policy.MaxInterval = i.maxInterval
	policy.MaxElapsedTime = i.maxElapsed
	policy.Reset()

	var result any
	attempt := 0

	operation := func() error {
		attempt++
		var err error
		func() {
			defer func() {
				if r := recover(); r != nil {
					i.logger.Error("invoke.panic", "task", name, "recover", r, "stack", string(debug.Stack()))
					err = NonRetryable(fmt.Errorf("task %s panicked: %v", name, r))
				}
			}()
			result, err = op(ctx)
		}()
		if err == nil {
			return nil
		}
		if IsNonRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		i.logger.Warn("invoke.retry", "task", name, "attempt", attempt, "next_backoff", next, "error", err.Error())
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify); err != nil {
		i.logger.Error("invoke.failed", "task", name, "attempts", attempt, "error", err.Error())
		return nil, fmt.Errorf("task %s: %w", name, err)
	}

	i.logger.Debug("invoke.success", "task", name, "attempts", attempt)
	return result, nil
}
