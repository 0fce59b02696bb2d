package retrier

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/100monkeys-ai/monkey-troop/pkg/lib/backoff"
	"github.com/100monkeys-ai/monkey-troop/pkg/models"
)

// Policy controls how many times an operation is attempted and how long to
// wait between attempts.
type Policy struct {
	MaxAttempts int
	Backoff     backoff.Backoff
}

// DefaultPolicy retries transient failures up to three attempts total,
// waiting 1s, 2s, 4s between them.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: models.MaxRetryAttempts,
		Backoff:     backoff.NewExponential(models.BaseRetryDelay, models.MaxRetryDelay),
	}
}

// Do invokes op, retrying on transient failures according to the policy.
// Failures that are not retryable, such as a rejected authorization or
// malformed input, propagate immediately without further attempts. The last
// failure is returned once attempts are exhausted. Context cancellation
// aborts the loop between attempts.
func Do[T any](ctx context.Context, policy Policy, operationName string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			policy.Backoff.Backoff(ctx, attempt-1)
			if ctx.Err() != nil {
				return zero, ctx.Err()
			}
		}

		result, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.Ctx(ctx).Debug().
					Str("operation", operationName).
					Int("attempt", attempt).
					Msg("operation succeeded after retry")
			}
			return result, nil
		}

		if !models.IsRetryable(err) {
			return zero, err
		}

		lastErr = err
		if attempt < policy.MaxAttempts {
			log.Ctx(ctx).Debug().
				Err(err).
				Str("operation", operationName).
				Int("attempt", attempt).
				Dur("backoff", policy.Backoff.BackoffDuration(attempt)).
				Msg("transient failure, will retry")
		}
	}

	return zero, lastErr
}
