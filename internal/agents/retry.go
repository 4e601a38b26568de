package agents

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// GeneratorError is the typed failure surfaced by the generator after its
// retry budget is exhausted, or by a single non-retryable call.
type GeneratorError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *GeneratorError) Error() string {
	return fmt.Sprintf("generator %s: %v", e.Op, e.Err)
}

func (e *GeneratorError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient generator failure.
func IsRetryable(err error) bool {
	var ge *GeneratorError
	if errors.As(err, &ge) {
		return ge.Retryable
	}
	return false
}

// RetryPolicy is an explicit retry schedule composed around a plain call:
// a bounded number of attempts with doubling backoff up to a cap, no
// jitter, gated by a retryable-error predicate.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Retryable      func(error) bool
}

// DefaultRetryPolicy matches the generator contract: 4 attempts, doubling
// from 1s capped at 8s, retrying only transport-class failures.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    4,
		InitialBackoff: time.Second,
		MaxBackoff:     8 * time.Second,
		Retryable:      IsRetryable,
	}
}

// Do runs fn under the policy, sleeping between attempts. A non-retryable
// error or an exhausted budget returns the last error; context cancellation
// wins over the schedule.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.InitialBackoff

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
			if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
				backoff = p.MaxBackoff
			}
		}
		if err = fn(); err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
	}
	return err
}
