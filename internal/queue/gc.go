package queue

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const purgeTimeout = 2 * time.Minute

// GarbageCollector drops dead-lettered rollover jobs once they are older
// than retention. Such a job is past its NotAfter and would only be
// discarded on redelivery.
type GarbageCollector struct {
	dlqPurger DLQPurger
	interval  time.Duration
	retention time.Duration
	logger    *zap.Logger
	purged    atomic.Int64
}

// NewGarbageCollector creates a collector that sweeps every interval.
// retention <= 0 selects RolloverJobLifetime.
func NewGarbageCollector(purger DLQPurger, interval, retention time.Duration, logger *zap.Logger) *GarbageCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retention <= 0 {
		retention = RolloverJobLifetime
	}
	return &GarbageCollector{
		dlqPurger: purger,
		interval:  interval,
		retention: retention,
		logger:    logger,
	}
}

// Retention is the age past which dead-lettered jobs are dropped.
func (gc *GarbageCollector) Retention() time.Duration { return gc.retention }

// Purged is the number of jobs dropped since the collector was created.
func (gc *GarbageCollector) Purged() int64 { return gc.purged.Load() }

// Start sweeps once, then every interval until ctx is cancelled. Failed
// sweeps are logged and retried on the next tick.
func (gc *GarbageCollector) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	gc.sweep(ctx)

	ticker := time.NewTicker(gc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			gc.sweep(ctx)
		}
	}
}

func (gc *GarbageCollector) sweep(ctx context.Context) {
	if err := gc.collect(ctx); err != nil {
		gc.logger.Error("dlq_gc_failed", zap.Error(err))
	}
}

func (gc *GarbageCollector) collect(ctx context.Context) error {
	if gc.dlqPurger == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, purgeTimeout)
	defer cancel()
	n, err := gc.dlqPurger.PurgeOlderThan(ctx, gc.retention)
	if err != nil {
		return fmt.Errorf("purge dead-lettered rollover jobs: %w", err)
	}
	if n > 0 {
		total := gc.purged.Add(int64(n))
		gc.logger.Info("dlq_gc_purged",
			zap.Int("count", n),
			zap.Int64("total", total),
			zap.Duration("retention", gc.retention),
		)
	}
	return nil
}
