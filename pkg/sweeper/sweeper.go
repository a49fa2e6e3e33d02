// Package sweeper periodically marks orders whose expiration boundary has
// passed.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Expirer is the part of the lifecycle manager the sweeper drives.
type Expirer interface {
	ExpireDue(ctx context.Context) (int, error)
}

// Sweeper drives an Expirer on a fixed interval.
type Sweeper struct {
	Interval time.Duration
	Logger   *zap.SugaredLogger

	expirer Expirer
}

// New returns a sweeper with a nop logger.
func New(expirer Expirer, interval time.Duration) *Sweeper {
	return &Sweeper{
		Interval: interval,
		Logger:   zap.NewNop().Sugar(),
		expirer:  expirer,
	}
}

// Run sweeps once immediately and then every Interval until ctx is done.
// A failed sweep is logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Logger.Infow("sweeper_started", "interval_ms", s.Interval.Milliseconds())
	total := 0
	for {
		total += s.Sweep(ctx)
		select {
		case <-ctx.Done():
			s.Logger.Infow("sweeper_stopped", "expired_total", total)
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep runs a single pass and returns how many orders it expired.
func (s *Sweeper) Sweep(ctx context.Context) int {
	n, err := s.expirer.ExpireDue(ctx)
	if err != nil && ctx.Err() == nil {
		s.Logger.Warnw("sweep_failed", "expired", n, "err", err)
	}
	if n > 0 {
		s.Logger.Debugw("sweep_done", "expired", n)
	}
	return n
}
