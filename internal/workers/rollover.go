package workers

import (
	"context"
	"errors"
	"fmt"

	"github.com/benvon/mentra/internal/database"
	logpkg "github.com/benvon/mentra/internal/logger"
	"github.com/benvon/mentra/internal/queue"
	"go.uber.org/zap"
)

// RolloverProcessor closes out a user's day in the stats store.
type RolloverProcessor struct {
	stats  database.StatsRepositoryInterface
	logger *zap.Logger
}

// NewRolloverProcessor creates a rollover processor.
func NewRolloverProcessor(stats database.StatsRepositoryInterface, logger *zap.Logger) *RolloverProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RolloverProcessor{stats: stats, logger: logger}
}

// Register adds the daily_rollover processor to d.
func (p *RolloverProcessor) Register(d *Dispatcher) {
	d.Register(queue.JobTypeDailyRollover, p.ProcessRolloverJob)
}

// ProcessRolloverJob advances the streak when the day had activity and
// zeroes the daily counters. A user with no stats row has nothing to roll.
func (p *RolloverProcessor) ProcessRolloverJob(ctx context.Context, job *queue.Job) error {
	if job.UserID == "" {
		return fmt.Errorf("%w: user_id is required for rollover job", ErrPermanent)
	}
	stats, err := p.stats.Rollover(ctx, job.UserID)
	if errors.Is(err, database.ErrNotFound) {
		p.logger.Debug("rollover_skipped_no_stats",
			zap.String("user_id", logpkg.SanitizeUserID(job.UserID)),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("rollover: %w", err)
	}
	p.logger.Info("rollover_completed",
		zap.String("user_id", logpkg.SanitizeUserID(job.UserID)),
		zap.String("date", job.Date),
		zap.Int("streak", stats.Streak),
	)
	return nil
}
