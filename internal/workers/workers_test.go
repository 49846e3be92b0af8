package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benvon/mentra/internal/database"
	"github.com/benvon/mentra/internal/models"
	"github.com/benvon/mentra/internal/queue"
)

type mockJobQueue struct {
	mu         sync.Mutex
	enqueued   []*queue.Job
	enqueueErr func(job *queue.Job) error
}

func (m *mockJobQueue) Enqueue(_ context.Context, job *queue.Job) error {
	if m.enqueueErr != nil {
		if err := m.enqueueErr(job); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueued = append(m.enqueued, job)
	return nil
}

func (m *mockJobQueue) Consume(context.Context, int) (<-chan *queue.Message, <-chan error, error) {
	return nil, nil, errors.New("not implemented")
}

func (m *mockJobQueue) Close() error                      { return nil }
func (m *mockJobQueue) HealthCheck(context.Context) error { return nil }

var _ queue.JobQueue = (*mockJobQueue)(nil)

type mockMessage struct {
	job     *queue.Job
	acked   bool
	nacked  bool
	requeue bool
}

func (m *mockMessage) Ack() error {
	m.acked = true
	return nil
}

func (m *mockMessage) Nack(requeue bool) error {
	m.nacked = true
	m.requeue = requeue
	return nil
}

func (m *mockMessage) GetJob() *queue.Job { return m.job }

var _ queue.MessageInterface = (*mockMessage)(nil)

func TestDispatcher_ProcessJob(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name         string
		job          *queue.Job
		proc         JobProcessor
		queue        *mockJobQueue
		wantErr      bool
		wantAck      bool
		wantNack     bool
		wantRequeue  bool
		wantEnqueued int
	}{
		{
			name:    "success acks",
			job:     queue.NewJob(queue.JobTypeDailyRollover, "u1"),
			proc:    func(context.Context, *queue.Job) error { return nil },
			queue:   &mockJobQueue{},
			wantAck: true,
		},
		{
			name:     "unknown type dead-letters",
			job:      queue.NewJob(queue.JobType("mystery"), "u1"),
			queue:    &mockJobQueue{},
			wantErr:  true,
			wantNack: true,
		},
		{
			name:        "not ready requeues",
			job:         &queue.Job{Type: queue.JobTypeDailyRollover, UserID: "u1", NotBefore: &future},
			queue:       &mockJobQueue{},
			wantNack:    true,
			wantRequeue: true,
		},
		{
			name:     "expired dead-letters",
			job:      &queue.Job{Type: queue.JobTypeDailyRollover, UserID: "u1", NotAfter: &past},
			queue:    &mockJobQueue{},
			wantNack: true,
		},
		{
			name:         "failure with retries left is re-enqueued",
			job:          queue.NewJob(queue.JobTypeDailyRollover, "u1"),
			proc:         func(context.Context, *queue.Job) error { return errBoom },
			queue:        &mockJobQueue{},
			wantErr:      true,
			wantAck:      true,
			wantEnqueued: 1,
		},
		{
			name:     "permanent failure dead-letters",
			job:      queue.NewJob(queue.JobTypeDailyRollover, "u1"),
			proc:     func(context.Context, *queue.Job) error { return ErrPermanent },
			queue:    &mockJobQueue{},
			wantErr:  true,
			wantNack: true,
		},
		{
			name: "failed re-enqueue dead-letters",
			job:  queue.NewJob(queue.JobTypeDailyRollover, "u1"),
			proc: func(context.Context, *queue.Job) error { return errBoom },
			queue: &mockJobQueue{enqueueErr: func(*queue.Job) error {
				return errors.New("broker down")
			}},
			wantErr:  true,
			wantNack: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := NewDispatcher(tt.queue, nil)
			if tt.proc != nil {
				d.Register(queue.JobTypeDailyRollover, tt.proc)
			}
			msg := &mockMessage{job: tt.job}

			err := d.ProcessJob(context.Background(), msg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ProcessJob() error = %v, wantErr %v", err, tt.wantErr)
			}
			if msg.acked != tt.wantAck {
				t.Errorf("acked = %v, want %v", msg.acked, tt.wantAck)
			}
			if msg.nacked != tt.wantNack {
				t.Errorf("nacked = %v, want %v", msg.nacked, tt.wantNack)
			}
			if msg.requeue != tt.wantRequeue {
				t.Errorf("requeue = %v, want %v", msg.requeue, tt.wantRequeue)
			}
			if len(tt.queue.enqueued) != tt.wantEnqueued {
				t.Errorf("enqueued %d jobs, want %d", len(tt.queue.enqueued), tt.wantEnqueued)
			}
		})
	}
}

func TestDispatcher_RetryCarriesCountAndDelay(t *testing.T) {
	t.Parallel()

	q := &mockJobQueue{}
	d := NewDispatcher(q, nil)
	d.Register(queue.JobTypeDailyRollover, func(context.Context, *queue.Job) error {
		return errors.New("transient")
	})
	job := queue.NewJob(queue.JobTypeDailyRollover, "u1")
	job.RetryCount = 1

	before := time.Now()
	_ = d.ProcessJob(context.Background(), &mockMessage{job: job})

	if len(q.enqueued) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(q.enqueued))
	}
	retry := q.enqueued[0]
	if retry.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", retry.RetryCount)
	}
	if retry.ID != job.ID {
		t.Error("retry should keep the job id")
	}
	if retry.NotBefore == nil || retry.NotBefore.Before(before.Add(2*DefaultRetryBase)) {
		t.Errorf("NotBefore = %v, want at least %v from now", retry.NotBefore, 2*DefaultRetryBase)
	}
	if job.RetryCount != 1 {
		t.Error("original job must not be mutated")
	}
}

func TestDispatcher_RetryDelayCapped(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(nil, nil)
	if got := d.retryDelay(0); got != DefaultRetryBase {
		t.Errorf("retryDelay(0) = %v, want %v", got, DefaultRetryBase)
	}
	if got := d.retryDelay(50); got != time.Hour {
		t.Errorf("retryDelay(50) = %v, want 1h", got)
	}
}

func TestRolloverProcessor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	stats := database.NewMemoryStatsRepository()
	focus, distractions := 40, 3
	if _, err := stats.Apply(ctx, "active", models.StatsUpdate{FocusTime: &focus, Distractions: &distractions}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	p := NewRolloverProcessor(stats, nil)

	if err := p.ProcessRolloverJob(ctx, queue.NewJob(queue.JobTypeDailyRollover, "active")); err != nil {
		t.Fatalf("ProcessRolloverJob: %v", err)
	}
	got, err := stats.Get(ctx, "active")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Streak != 1 || got.FocusTime != 0 || got.Distractions != 0 {
		t.Errorf("after rollover got %+v, want streak 1 and zeroed counters", got)
	}

	if err := p.ProcessRolloverJob(ctx, queue.NewJob(queue.JobTypeDailyRollover, "unknown")); err != nil {
		t.Errorf("user without stats should be skipped, got %v", err)
	}

	err = p.ProcessRolloverJob(ctx, queue.NewJob(queue.JobTypeDailyRollover, ""))
	if !errors.Is(err, ErrPermanent) {
		t.Errorf("empty user id error = %v, want ErrPermanent", err)
	}
}

func TestRolloverProcessor_ThroughDispatcher(t *testing.T) {
	t.Parallel()

	stats := database.NewMemoryStatsRepository()
	d := NewDispatcher(nil, nil)
	NewRolloverProcessor(stats, nil).Register(d)

	msg := &mockMessage{job: queue.NewJob(queue.JobTypeDailyRollover, "u1")}
	if err := d.ProcessJob(context.Background(), msg); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}
	if !msg.acked {
		t.Error("rollover job should be acked")
	}
}

type staticUsers struct {
	ids []string
	err error
}

func (s staticUsers) ListUserIDs(context.Context) ([]string, error) { return s.ids, s.err }

func TestRolloverScheduler_ScheduleRollovers(t *testing.T) {
	t.Parallel()

	day := time.Date(2026, 5, 1, 22, 0, 0, 0, time.UTC)
	midnight := queue.NextMidnight(day)

	q := &mockJobQueue{enqueueErr: func(job *queue.Job) error {
		if job.UserID == "bad" {
			return errors.New("publish failed")
		}
		return nil
	}}
	s := NewRolloverScheduler(staticUsers{ids: []string{"a", "bad", "b"}}, q, nil)

	n, err := s.ScheduleRollovers(context.Background(), day, midnight)
	if err != nil {
		t.Fatalf("ScheduleRollovers: %v", err)
	}
	if n != 2 || len(q.enqueued) != 2 {
		t.Fatalf("enqueued %d (%d recorded), want 2", n, len(q.enqueued))
	}
	for _, job := range q.enqueued {
		if job.Type != queue.JobTypeDailyRollover || job.Date != "2026-05-01" {
			t.Errorf("unexpected job %+v", job)
		}
		if job.NotBefore == nil || !job.NotBefore.Equal(midnight) {
			t.Errorf("NotBefore = %v, want %v", job.NotBefore, midnight)
		}
	}
}

func TestRolloverScheduler_ListError(t *testing.T) {
	t.Parallel()

	s := NewRolloverScheduler(staticUsers{err: errors.New("db down")}, &mockJobQueue{}, nil)
	if _, err := s.ScheduleRollovers(context.Background(), time.Now(), time.Now()); err == nil {
		t.Fatal("expected error when listing users fails")
	}
}

func TestRolloverScheduler_StartStopsOnCancel(t *testing.T) {
	t.Parallel()

	s := NewRolloverScheduler(staticUsers{}, &mockJobQueue{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Start() = %v, want context.Canceled", err)
	}
}
