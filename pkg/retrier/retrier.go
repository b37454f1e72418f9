// Package retrier is the bounded retry combinator used around optimistic
// balance updates. Only errors explicitly marked with Retryable are retried.
package retrier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

var ErrExhausted = errors.New("retries exhausted")

type Policy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultPolicy retries three times after the first attempt with 2ms, 4ms, 8ms pauses.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  2 * time.Millisecond,
		MaxDelay:   50 * time.Millisecond,
	}
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Retryable marks err as worth another attempt.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// ExhaustedError is returned when every attempt ended in a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrExhausted, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() []error { return []error{ErrExhausted, e.Err} }

func (p Policy) backoff() retry.Backoff {
	var b retry.Backoff
	if p.BaseDelay <= 0 {
		b = retry.BackoffFunc(func() (time.Duration, bool) { return 0, false })
	} else {
		b = retry.NewExponential(p.BaseDelay)
		if p.MaxDelay > 0 {
			b = retry.WithCappedDuration(p.MaxDelay, b)
		}
	}
	return retry.WithMaxRetries(p.MaxRetries, b)
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// policy runs out. Context cancellation stops the loop with ctx.Err().
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := 0
	err := retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempts++
		err := fn(ctx)
		var rerr *retryableError
		if errors.As(err, &rerr) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err == nil {
		return nil
	}

	var rerr *retryableError
	if errors.As(err, &rerr) {
		return &ExhaustedError{Attempts: attempts, Err: rerr.err}
	}
	return err
}
