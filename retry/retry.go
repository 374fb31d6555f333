package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/uptimekit/sitesync/bus"
	"github.com/uptimekit/sitesync/logging"
)

// Backoff selects how the delay between attempts grows.
type Backoff string

const (
	// BackoffFixed waits BaseDelay between every attempt.
	BackoffFixed Backoff = "fixed"

	// BackoffExponential waits BaseDelay * 2^(attempt-1).
	BackoffExponential Backoff = "exponential"
)

// maxBackoffInterval caps the exponential schedule so a high attempt
// count cannot produce an unbounded wait.
const maxBackoffInterval = 30 * time.Second

// Policy bounds a single Run call. It is immutable per call: the caller
// supplies it and the runner never mutates or stores it.
type Policy struct {
	// MaxAttempts is the total number of invocations, at least 1.
	// A value of 1 disables retrying but still emits lifecycle events.
	MaxAttempts int

	// Backoff is the delay schedule between attempts.
	Backoff Backoff

	// BaseDelay seeds the schedule. Zero is legal and retries
	// immediately, which keeps tests fast.
	BaseDelay time.Duration
}

// DefaultPolicy returns the policy used when a caller supplies none.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Backoff:     BackoffExponential,
		BaseDelay:   100 * time.Millisecond,
	}
}

// Validate validates the policy.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return ErrInvalidPolicy
	}
	if p.Backoff != BackoffFixed && p.Backoff != BackoffExponential {
		return ErrInvalidPolicy
	}
	if p.BaseDelay < 0 {
		return ErrInvalidPolicy
	}
	return nil
}

// schedule builds the delay iterator for one Run call. Randomization is
// pinned to zero so the emitted delays follow the documented schedule
// exactly.
func (p Policy) schedule() backoff.BackOff {
	var b backoff.BackOff
	switch p.Backoff {
	case BackoffExponential:
		b = &backoff.ExponentialBackOff{
			InitialInterval:     p.BaseDelay,
			RandomizationFactor: 0,
			Multiplier:          2,
			MaxInterval:         maxBackoffInterval,
		}
	default:
		b = backoff.NewConstantBackOff(p.BaseDelay)
	}
	b.Reset()
	return b
}

// ErrInvalidPolicy is returned when a retry policy is invalid.
var ErrInvalidPolicy = newError("invalid retry policy")

func newError(msg string) error {
	return &retryError{msg: msg}
}

type retryError struct {
	msg string
}

func (e *retryError) Error() string {
	return e.msg
}

// Result is the tagged outcome of a Run call. Err == nil means success.
// Run never panics and never returns an error any other way, so a
// caller cannot forget to observe a failure: it is plain data.
type Result[T any] struct {
	Value    T
	Err      error
	Attempts int
}

// Succeeded reports whether the operation eventually succeeded.
func (r Result[T]) Succeeded() bool {
	return r.Err == nil
}

// Runner wraps fallible operations with bounded retry and lifecycle
// event emission. It holds no per-operation state; one Runner serves
// any number of concurrent Run calls.
type Runner struct {
	bus    *bus.Bus
	logger logging.Logger
}

// NewRunner creates a runner publishing lifecycle events on b.
func NewRunner(b *bus.Bus, logger logging.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if b == nil {
		b = bus.New(logger, 0)
	}
	return &Runner{bus: b, logger: logger}
}

// Run states. The control flow is an explicit machine rather than a
// recursion of timer callbacks: Attempting moves to Done on success or
// exhaustion, to Waiting while attempts remain, and Waiting returns to
// Attempting once the delay elapses.
type runState int

const (
	stateIdle runState = iota
	stateAttempting
	stateWaiting
	stateDone
)

// Run invokes op until it succeeds or policy.MaxAttempts is exhausted,
// emitting pending/retry/success/failure events along the way. The
// returned Result is the only failure channel. Cancelling ctx aborts
// the wait between attempts and surfaces the context error as the
// operation error; op itself owns any per-attempt timeout.
func Run[T any](ctx context.Context, r *Runner, operationName string, op func(context.Context) (T, error), policy Policy, opContext map[string]any) Result[T] {
	var result Result[T]

	if err := policy.Validate(); err != nil {
		result.Err = err
		return result
	}

	delays := policy.schedule()

	var lastErr error
	attempt := 0
	state := stateIdle

	for state != stateDone {
		switch state {
		case stateIdle:
			r.bus.Publish(bus.TopicOperationPending, map[string]any{
				"operationName": operationName,
				"context":       opContext,
			})
			state = stateAttempting

		case stateAttempting:
			attempt++
			value, err := op(ctx)
			if err == nil {
				result = Result[T]{Value: value, Attempts: attempt}
				r.bus.Publish(bus.TopicOperationSuccess, map[string]any{
					"operationName": operationName,
					"attempts":      attempt,
					"context":       opContext,
				})
				state = stateDone
				break
			}

			lastErr = err
			if attempt < policy.MaxAttempts {
				r.logger.Debug("operation failed, will retry",
					"operation", operationName, "attempt", attempt, "error", err)
				r.bus.Publish(bus.TopicOperationRetry, map[string]any{
					"operationName": operationName,
					"attempt":       attempt,
					"error":         err,
					"context":       opContext,
				})
				state = stateWaiting
				break
			}

			result = Result[T]{Err: err, Attempts: attempt}
			r.logger.Warn("operation failed, attempts exhausted",
				"operation", operationName, "attempts", attempt, "error", err)
			r.bus.Publish(bus.TopicOperationFailure, map[string]any{
				"operationName": operationName,
				"attempts":      attempt,
				"error":         err,
				"context":       opContext,
			})
			state = stateDone

		case stateWaiting:
			if err := sleep(ctx, delays.NextBackOff()); err != nil {
				result = Result[T]{Err: err, Attempts: attempt}
				r.bus.Publish(bus.TopicOperationFailure, map[string]any{
					"operationName": operationName,
					"attempts":      attempt,
					"error":         err,
					"lastError":     lastErr,
					"context":       opContext,
				})
				state = stateDone
				break
			}
			state = stateAttempting
		}
	}

	return result
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
