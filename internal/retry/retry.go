// Package retry implements the bounded retry loop wrapped around a single
// stage execution: fixed or exponential backoff between attempts, a
// per-attempt timeout, and a structured log entry on the stage for every
// attempt outcome.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/klikkflow/pipeline-engine/internal/ctxlog"
	"github.com/klikkflow/pipeline-engine/internal/pipeline"
)

// Attempt is the unit of work the controller re-invokes. The context it
// receives carries the per-attempt deadline when the stage declares a
// timeout.
type Attempt func(ctx context.Context) error

// Execute runs fn under the stage's retry policy. The inter-attempt sleep
// suspends only the calling goroutine, so sibling stages in a concurrent
// group keep making progress. If every attempt fails, the last error is
// returned wrapped with the attempt count.
func Execute(ctx context.Context, st *pipeline.Stage, fn Attempt) error {
	logger := ctxlog.FromContext(ctx).With("stage", st.Name)
	attempts := st.Retry.MaxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := runAttempt(ctx, st.Timeout, fn)
		if err == nil {
			if attempt > 1 {
				st.Logf("attempt %d/%d succeeded", attempt, attempts)
			}
			return nil
		}
		lastErr = err

		st.Logf("attempt %d/%d failed: %v", attempt, attempts, err)
		logger.Warn("Stage attempt failed.", "attempt", attempt, "attempts", attempts, "error", err)

		if attempt == attempts {
			break
		}

		delay := backoff(st.Retry, attempt)
		st.Logf("retrying in %s", delay)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("stage %q failed after %d attempt(s): %w", st.Name, attempts, lastErr)
}

// backoff computes the wait before the next attempt. With exponential
// backoff enabled the delay doubles per attempt: delay * 2^(attempt-1).
func backoff(policy pipeline.RetryPolicy, attempt int) time.Duration {
	delay := policy.Delay
	if policy.ExponentialBackoff {
		delay = policy.Delay * (1 << (attempt - 1))
	}
	return delay
}

// runAttempt applies the per-attempt timeout, if declared, and invokes fn.
func runAttempt(ctx context.Context, timeout time.Duration, fn Attempt) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := fn(attemptCtx); err != nil {
		if attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return fmt.Errorf("stage timed out after %s: %w", timeout, err)
		}
		return err
	}
	return nil
}

// sleep waits for the backoff delay, honoring cancellation.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
