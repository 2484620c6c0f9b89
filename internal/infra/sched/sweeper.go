package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// SweepFunc removes stale state and reports how many items it dropped.
type SweepFunc func(ctx context.Context) (int, error)

// Sweeper runs a SweepFunc on a fixed interval until its context ends.
type Sweeper struct {
	name     string
	interval time.Duration
	sweep    SweepFunc
	log      *zerolog.Logger
}

func NewSweeper(name string, interval time.Duration, sweep SweepFunc, logger *zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	l := logger.With().Str("component", "Sweeper").Str("sweeper", name).Logger()
	return &Sweeper{
		name:     name,
		interval: interval,
		sweep:    sweep,
		log:      &l,
	}
}

// Run blocks until ctx is done and returns ctx.Err().
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.Info().Dur("interval", s.interval).Msg("starting sweeper")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("stopping sweeper")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	n, err := s.sweep(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("sweep failed")
	}
	if n > 0 {
		s.log.Info().Int("count", n).Msg("swept")
	}
}
