package ledger

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
)

type SweeperParams struct {
	Ledger   *Ledger
	Interval time.Duration
	Clock    clock.Clock
}

// Sweeper periodically refunds expired reservations so credit held by jobs
// that never settled returns to the requester without operator action.
type Sweeper struct {
	ledger   *Ledger
	interval time.Duration
	clock    clock.Clock
}

func NewSweeper(params SweeperParams) *Sweeper {
	if params.Clock == nil {
		params.Clock = clock.New()
	}
	return &Sweeper{
		ledger:   params.Ledger,
		interval: params.Interval,
		clock:    params.Clock,
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := s.ledger.SweepExpired(ctx)
			if err != nil {
				log.Ctx(ctx).Error().Err(err).Msg("reservation sweep failed")
			}
		}
	}
}
