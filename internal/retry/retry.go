// Package retry provides the shared backoff policy for transient
// failures. Every I/O component that defines a transient-failure class
// (embedding calls, index upserts, lock acquisition) reuses this policy
// rather than rolling its own loop.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/notedex/notedex/internal/domain"
)

// Policy is an exponential-backoff retry policy: successive delays
// double from Base up to Max, for at most MaxAttempts total attempts.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Default is the policy used when config leaves retry unset:
// 4 attempts, 500ms base, 8s cap.
func Default() Policy {
	return Policy{MaxAttempts: 4, Base: 500 * time.Millisecond, Max: 8 * time.Second}
}

// New creates a policy. Non-positive values fall back to Default's.
func New(maxAttempts int, base, maxDelay time.Duration) Policy {
	d := Default()
	if maxAttempts > 0 {
		d.MaxAttempts = maxAttempts
	}
	if base > 0 {
		d.Base = base
	}
	if maxDelay > 0 {
		d.Max = maxDelay
	}
	return d
}

// WithSleep returns a copy using the given sleep function (tests).
func (p Policy) WithSleep(sleep func(ctx context.Context, d time.Duration) error) Policy {
	p.sleep = sleep
	return p
}

// Do runs fn, retrying transient failures (domain.Retryable) with
// exponential backoff. The last error is returned after the attempt
// budget is exhausted. Non-retryable errors return immediately.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	delay := p.Base
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !domain.Retryable(err) {
			return err
		}
		if attempt >= p.MaxAttempts {
			return fmt.Errorf("%s: %d attempts exhausted: %w", op, p.MaxAttempts, err)
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return fmt.Errorf("%s: %w", op, sleepErr)
		}
		delay *= 2
		if delay > p.Max {
			delay = p.Max
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
