package queue

import (
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeDailyRollover closes out one user's day: the streak advances when
	// the day saw activity and the daily counters return to zero.
	JobTypeDailyRollover JobType = "daily_rollover"
)

// DateLayout is the calendar-day format carried in Job.Date.
const DateLayout = "2006-01-02"

// RolloverJobLifetime is how long a rollover job stays processable after
// its day ends. A dead-lettered rollover older than this can never run.
const RolloverJobLifetime = 24 * time.Hour

// Job represents a job in the queue
type Job struct {
	ID         uuid.UUID      `json:"id"`
	Type       JobType        `json:"type"`
	UserID     string         `json:"user_id"`
	Date       string         `json:"date,omitempty"`       // Day being closed, in DateLayout
	NotBefore  *time.Time     `json:"not_before,omitempty"` // Earliest time to process job (nil = immediate)
	NotAfter   *time.Time     `json:"not_after,omitempty"`  // Latest time to process job (nil = no expiration)
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	RetryCount int            `json:"retry_count"`
	MaxRetries int            `json:"max_retries"`
}

// NewJob creates a new job
func NewJob(jobType JobType, userID string) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       jobType,
		UserID:     userID,
		Metadata:   make(map[string]any),
		CreatedAt:  time.Now(),
		RetryCount: 0,
		MaxRetries: 3,
	}
}

// NewDailyRolloverJob creates a rollover job for the day that ends at notBefore.
// The job expires a day later so a backlog never rolls a user over twice.
func NewDailyRolloverJob(userID string, day time.Time, notBefore time.Time) *Job {
	job := NewJob(JobTypeDailyRollover, userID)
	job.Date = day.Format(DateLayout)
	nb := notBefore
	na := notBefore.Add(RolloverJobLifetime)
	job.NotBefore = &nb
	job.NotAfter = &na
	return job
}

// ShouldProcess checks if the job should be processed now
func (j *Job) ShouldProcess() bool {
	now := time.Now()

	if j.NotBefore != nil && now.Before(*j.NotBefore) {
		return false
	}
	if j.NotAfter != nil && now.After(*j.NotAfter) {
		return false
	}
	return true
}

// IsExpired checks if the job has expired
func (j *Job) IsExpired() bool {
	if j.NotAfter == nil {
		return false
	}
	return time.Now().After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// IncrementRetry increments the retry count
func (j *Job) IncrementRetry() {
	j.RetryCount++
}

// NextMidnight returns the start of the day after t in t's location.
func NextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}
