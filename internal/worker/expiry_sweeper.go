package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// SweepBatch bounds how many sessions one sweep run expires.
const SweepBatch = 200

// Expirer forces overdue sessions into AUTO_SUBMITTED.
type Expirer interface {
	ExpireOverdue(ctx context.Context, limit int) (int, error)
}

// ExpirySweeper periodically closes sessions whose deadline passed while
// nobody touched them. Lazy expiry on access stays authoritative; the sweep
// only keeps stored state tidy for reporting.
type ExpirySweeper struct {
	expirer Expirer
	spec    string
	log     zerolog.Logger
}

func NewExpirySweeper(expirer Expirer, spec string, log zerolog.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		expirer: expirer,
		spec:    spec,
		log:     log.With().Str("component", "expiry_sweeper").Logger(),
	}
}

// Start schedules the sweep and blocks until ctx is cancelled.
func (s *ExpirySweeper) Start(ctx context.Context) error {
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(s.spec, func() { s.RunOnce(ctx) }); err != nil {
		return err
	}

	c.Start()
	s.log.Info().Str("schedule", s.spec).Msg("ExpirySweeper started")

	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info().Msg("ExpirySweeper stopped")
	return nil
}

// RunOnce expires overdue sessions in batches until none remain.
func (s *ExpirySweeper) RunOnce(ctx context.Context) {
	total := 0
	for ctx.Err() == nil {
		n, err := s.expirer.ExpireOverdue(ctx, SweepBatch)
		if err != nil {
			s.log.Error().Err(err).Msg("Expiry sweep failed")
			return
		}
		total += n
		if n < SweepBatch {
			break
		}
	}
	if total > 0 {
		s.log.Info().Int("expired", total).Msg("Overdue sessions auto-submitted")
	}
}
