// Package retry provides a bounded exponential-backoff retry policy.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Policy bounds how often and how long Do keeps retrying.
type Policy struct {
	// MaxAttempts is the total number of tries including the first one.
	MaxAttempts int

	// BaseDelay is the pause before the second attempt. Each further
	// pause is multiplied by Multiplier and capped at MaxDelay.
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// Default returns the policy used across this module unless a caller
// overrides it: 5 attempts with pauses of 1s, 2s, 4s, 8s.
func Default() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    32 * time.Second,
		Multiplier:  2.0,
	}
}

// ExhaustedError reports that every attempt failed. It unwraps to the
// error of the last attempt.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retried %d times and failed: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do runs op until it succeeds, p is exhausted, a non-retryable error
// occurs, or ctx is done. retryable decides whether an error is worth
// another attempt; nil retries every error. Non-retryable errors return
// immediately and unwrapped. Pauses between attempts honor ctx.
func Do(ctx context.Context, p Policy, op func(context.Context) error, retryable func(error) bool) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	delay := p.BaseDelay
	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt >= p.MaxAttempts {
			return &ExhaustedError{Attempts: attempt, Err: err}
		}

		log.Ctx(ctx).Debug().Msgf("attempt %d/%d failed, retrying in %s: %v", attempt, p.MaxAttempts, delay, err)
		if err := sleep(ctx, delay); err != nil {
			return err
		}

		delay = time.Duration(float64(delay) * p.Multiplier)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
