package backoff

import (
	"context"
	"time"
)

// Backoff is implemented by strategies that decide how long to wait between
// retry attempts. Backoff blocks for the computed duration or until the
// context is canceled, whichever comes first.
type Backoff interface {
	Backoff(ctx context.Context, attempts int)
	BackoffDuration(attempts int) time.Duration
}
