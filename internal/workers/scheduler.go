package workers

import (
	"context"
	"fmt"
	"time"

	logpkg "github.com/benvon/mentra/internal/logger"
	"github.com/benvon/mentra/internal/queue"
	"go.uber.org/zap"
)

// UserLister lists every user that has stats to roll over.
type UserLister interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

// RolloverScheduler enqueues one daily_rollover job per user each midnight.
type RolloverScheduler struct {
	users    UserLister
	jobQueue queue.JobQueue
	logger   *zap.Logger
	now      func() time.Time
}

// NewRolloverScheduler creates a scheduler working in local time.
func NewRolloverScheduler(users UserLister, jobQueue queue.JobQueue, logger *zap.Logger) *RolloverScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RolloverScheduler{users: users, jobQueue: jobQueue, logger: logger, now: time.Now}
}

// ScheduleRollovers enqueues rollover jobs for the day that ends at midnight.
// It returns the number of jobs enqueued; a failure for one user does not stop the rest.
func (s *RolloverScheduler) ScheduleRollovers(ctx context.Context, day time.Time, midnight time.Time) (int, error) {
	userIDs, err := s.users.ListUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list users: %w", err)
	}

	enqueued := 0
	for _, userID := range userIDs {
		job := queue.NewDailyRolloverJob(userID, day, midnight)
		if err := s.jobQueue.Enqueue(ctx, job); err != nil {
			s.logger.Warn("failed_to_schedule_rollover_job",
				zap.String("user_id", logpkg.SanitizeUserID(userID)),
				zap.Error(err),
			)
			continue
		}
		enqueued++
	}

	s.logger.Info("scheduled_rollover_jobs",
		zap.Int("user_count", len(userIDs)),
		zap.Int("enqueued", enqueued),
		zap.String("date", day.Format(queue.DateLayout)),
	)
	return enqueued, nil
}

// Start waits for each local midnight and schedules the rollovers for the
// day that just ended, until ctx is cancelled.
func (s *RolloverScheduler) Start(ctx context.Context) error {
	for {
		now := s.now()
		midnight := queue.NextMidnight(now)
		timer := time.NewTimer(midnight.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if _, err := s.ScheduleRollovers(ctx, now, midnight); err != nil {
			s.logger.Error("rollover_scheduling_failed", zap.Error(err))
		}
	}
}
