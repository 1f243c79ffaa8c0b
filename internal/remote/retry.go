package remote

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy controls how throttled remote calls are retried. One policy is
// shared by every adapter instead of each rolling its own backoff loop.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy matches the remote API's observed throttling windows.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
	}
}

type retryingAPI struct {
	next   API
	policy RetryPolicy
	logger *slog.Logger
}

// WithRetry wraps an API so that throttled calls are retried with
// exponential backoff up to the policy's attempt limit. Non-transient
// failures are surfaced immediately; exhausting the attempts returns the
// last throttle error for the caller to record against the record.
func WithRetry(next API, policy RetryPolicy, logger *slog.Logger) API {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}
	return &retryingAPI{next: next, policy: policy, logger: logger}
}

func (r *retryingAPI) Query(ctx context.Context, operation string, variables map[string]any, out any) error {
	attempt := 0

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = r.policy.BaseDelay
	expo.MaxInterval = r.policy.MaxDelay

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := r.next.Query(ctx, operation, variables, out)
		if err == nil {
			return struct{}{}, nil
		}
		if !IsThrottled(err) {
			return struct{}{}, backoff.Permanent(err)
		}

		r.logger.Warn("Remote call throttled, backing off",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", r.policy.MaxAttempts),
			slog.String("error", err.Error()),
		)
		return struct{}{}, err
	},
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(r.policy.MaxAttempts)),
	)
	return err
}
