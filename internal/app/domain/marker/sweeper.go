package marker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pinpoint/internal/app/observability/metrics"
)

// Sweeper periodically purges logically expired markers and refreshes the
// active-marker gauge. Expiry is also enforced lazily on every read, so the
// sweep is storage hygiene, not correctness.
type Sweeper struct {
	svc      Service
	logger   *zap.Logger
	interval time.Duration
}

func NewSweeper(svc Service, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{svc: svc, logger: logger, interval: interval}
}

func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	// Run once immediately
	s.sweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	start := time.Now()

	purged, err := s.svc.PurgeExpired(ctx)
	if err != nil {
		s.logger.Warn("Sweep failed to purge expired markers", zap.Error(err))
		return
	}
	if purged > 0 {
		metrics.Get().MarkersPurgedTotal.Add(ctx, purged)
	}

	active, err := s.svc.CountActive(ctx)
	if err != nil {
		s.logger.Warn("Sweep failed to count active markers", zap.Error(err))
	} else {
		metrics.Get().MarkersActive.Record(ctx, active)
	}

	s.logger.Debug("Sweep complete",
		zap.Int64("purged", purged),
		zap.Int64("active", active),
		zap.Duration("took", time.Since(start)))
}
