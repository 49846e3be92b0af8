package policy

import (
	"context"
	"fmt"
	"time"

	logpkg "github.com/benvon/mentra/internal/logger"
	"go.uber.org/zap"
)

// DefaultSweepInterval is how often expired override rules are pruned.
const DefaultSweepInterval = time.Hour

// OverridePruner deletes override rules that expired at or before now.
type OverridePruner interface {
	DeleteExpiredOverrides(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper periodically removes expired override rules. Expired rules are
// already ignored by Decide; the sweep only reclaims storage.
type Sweeper struct {
	pruner   OverridePruner
	interval time.Duration
	log      *zap.Logger
	now      func() time.Time
}

// NewSweeper creates a Sweeper. interval <= 0 selects DefaultSweepInterval.
func NewSweeper(pruner OverridePruner, interval time.Duration, log *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{pruner: pruner, interval: interval, log: log, now: time.Now}
}

// Start sweeps once immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil {
		s.log.Warn("override_sweep_failed", zap.String("error", logpkg.SanitizeError(err)))
	}
}

// Sweep deletes expired rules once and returns how many were removed.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	if s.pruner == nil {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	n, err := s.pruner.DeleteExpiredOverrides(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("override sweep: %w", err)
	}
	if n > 0 {
		s.log.Info("override_sweep_completed", zap.Int64("deleted", n))
	}
	return n, nil
}
