package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	logpkg "github.com/benvon/mentra/internal/logger"
	"github.com/benvon/mentra/internal/queue"
	"go.uber.org/zap"
)

// JobProcessor handles one decoded job.
type JobProcessor func(ctx context.Context, job *queue.Job) error

// ErrPermanent marks a job failure that a retry cannot fix.
var ErrPermanent = errors.New("permanent job failure")

// DefaultRetryBase is the delay before the first retry; each further retry doubles it.
const DefaultRetryBase = 30 * time.Second

// Dispatcher routes jobs to the processor registered for their type.
type Dispatcher struct {
	registry  map[queue.JobType]JobProcessor
	jobQueue  queue.JobQueue
	logger    *zap.Logger
	retryBase time.Duration
}

// NewDispatcher creates a dispatcher. jobQueue is used to re-enqueue failed
// jobs with a delay and may be nil, in which case failures go straight to the DLQ.
func NewDispatcher(jobQueue queue.JobQueue, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		registry:  make(map[queue.JobType]JobProcessor),
		jobQueue:  jobQueue,
		logger:    logger,
		retryBase: DefaultRetryBase,
	}
}

// Register sets the processor for a job type.
func (d *Dispatcher) Register(typ queue.JobType, proc JobProcessor) {
	d.registry[typ] = proc
}

// ProcessJob runs the job's processor and settles the message.
func (d *Dispatcher) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()
	jobID := job.ID.String()

	if !job.ShouldProcess() {
		fields := []zap.Field{zap.String("job_id", jobID)}
		if job.NotBefore != nil {
			fields = append(fields, zap.Time("not_before", *job.NotBefore))
		}
		d.logger.Debug("job_not_ready", fields...)
		if nackErr := msg.Nack(!job.IsExpired()); nackErr != nil {
			d.logger.Warn("failed_to_nack_job_not_ready",
				zap.String("job_id", jobID),
				zap.String("error", logpkg.SanitizeError(nackErr)),
			)
		}
		return nil
	}

	proc, ok := d.registry[job.Type]
	if !ok {
		if nackErr := msg.Nack(false); nackErr != nil {
			d.logger.Error("failed_to_nack_unknown_job_type",
				zap.String("job_id", jobID),
				zap.String("job_type", string(job.Type)),
				zap.String("error", logpkg.SanitizeError(nackErr)),
			)
		}
		return fmt.Errorf("unknown job type: %s", job.Type)
	}

	if err := proc(ctx, job); err != nil {
		return d.handleJobError(ctx, msg, job, err)
	}
	if ackErr := msg.Ack(); ackErr != nil {
		return fmt.Errorf("failed to ack job: %w", ackErr)
	}
	return nil
}

// handleJobError re-enqueues a failed job with exponential backoff while it
// has retries left and dead-letters it otherwise.
func (d *Dispatcher) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, err error) error {
	d.logger.Error("job_failed",
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(job.Type)),
		zap.String("user_id", logpkg.SanitizeUserID(job.UserID)),
		zap.Int("retry_count", job.RetryCount),
		zap.String("error", logpkg.SanitizeError(err)),
	)

	if !errors.Is(err, ErrPermanent) && job.CanRetry() && d.jobQueue != nil {
		retry := *job
		retry.IncrementRetry()
		notBefore := time.Now().Add(d.retryDelay(job.RetryCount))
		retry.NotBefore = &notBefore

		enqueueErr := d.jobQueue.Enqueue(ctx, &retry)
		if enqueueErr == nil {
			if ackErr := msg.Ack(); ackErr != nil {
				d.logger.Warn("failed_to_ack_retried_job",
					zap.String("job_id", job.ID.String()),
					zap.String("error", logpkg.SanitizeError(ackErr)),
				)
			}
			d.logger.Info("job_requeued",
				zap.String("job_id", job.ID.String()),
				zap.Int("retry_count", retry.RetryCount),
				zap.Time("not_before", notBefore),
			)
			return fmt.Errorf("job %s will be retried: %w", job.ID, err)
		}
		d.logger.Warn("failed_to_requeue_job",
			zap.String("job_id", job.ID.String()),
			zap.String("error", logpkg.SanitizeError(enqueueErr)),
		)
	}

	if nackErr := msg.Nack(false); nackErr != nil {
		d.logger.Warn("failed_to_nack_job",
			zap.String("job_id", job.ID.String()),
			zap.String("error", logpkg.SanitizeError(nackErr)),
		)
	}
	return fmt.Errorf("job %s sent to DLQ: %w", job.ID, err)
}

func (d *Dispatcher) retryDelay(retryCount int) time.Duration {
	delay := d.retryBase
	for i := 0; i < retryCount && delay < time.Hour; i++ {
		delay *= 2
	}
	return min(delay, time.Hour)
}
