package queue

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type ackCall struct {
	tag     uint64
	kind    string
	requeue bool
}

type fakeAcknowledger struct {
	mu    sync.Mutex
	calls []ackCall
}

func (f *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ackCall{tag: tag, kind: "ack"})
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ackCall{tag: tag, kind: "nack", requeue: requeue})
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ackCall{tag: tag, kind: "reject", requeue: requeue})
	return nil
}

func (f *fakeAcknowledger) last(t *testing.T) ackCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatal("no acknowledgement recorded")
	}
	return f.calls[len(f.calls)-1]
}

func TestMessage_AckNack(t *testing.T) {
	t.Parallel()

	ack := &fakeAcknowledger{}
	job := NewJob(JobTypeDailyRollover, "user-1")
	msg := &Message{Job: job, DeliveryTag: 7, Channel: ack}

	if msg.GetJob() != job {
		t.Error("GetJob returned a different job")
	}
	if err := msg.Ack(); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if got := ack.last(t); got.kind != "ack" || got.tag != 7 {
		t.Errorf("got %+v, want ack of tag 7", got)
	}
	if err := msg.Nack(true); err != nil {
		t.Fatalf("Nack: %v", err)
	}
	if got := ack.last(t); got.kind != "nack" || !got.requeue {
		t.Errorf("got %+v, want requeued nack", got)
	}
}

func TestRabbitMQQueue_Decode(t *testing.T) {
	t.Parallel()

	now := time.Now()
	encode := func(job *Job) []byte {
		b, err := json.Marshal(job)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return b
	}
	due := NewDailyRolloverJob("user-1", now.Add(-time.Hour), now.Add(-time.Minute))
	future := NewDailyRolloverJob("user-1", now, now.Add(time.Hour))
	expired := NewJob(JobTypeDailyRollover, "user-1")
	expired.NotAfter = timePtr(now.Add(-time.Minute))

	tests := []struct {
		name        string
		body        []byte
		wantReady   bool
		wantKind    string
		wantRequeue bool
		wantErr     bool
	}{
		{name: "due job", body: encode(due), wantReady: true},
		{name: "not due yet", body: encode(future), wantKind: "nack", wantRequeue: true},
		{name: "expired", body: encode(expired), wantKind: "nack"},
		{name: "invalid json", body: []byte("{"), wantKind: "nack", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			q := &RabbitMQQueue{logger: zap.NewNop()}
			ack := &fakeAcknowledger{}
			errs := make(chan error, 1)
			d := amqp.Delivery{Acknowledger: ack, DeliveryTag: 3, Body: tt.body}

			msg, ready := q.decode(d, ack, errs)
			if ready != tt.wantReady {
				t.Fatalf("ready = %v, want %v", ready, tt.wantReady)
			}
			if tt.wantReady {
				if msg == nil || msg.DeliveryTag != 3 || msg.Job.UserID != "user-1" {
					t.Errorf("unexpected message %+v", msg)
				}
				return
			}
			got := ack.last(t)
			if got.kind != tt.wantKind || got.requeue != tt.wantRequeue {
				t.Errorf("got %+v, want %s requeue=%v", got, tt.wantKind, tt.wantRequeue)
			}
			if tt.wantErr && len(errs) == 0 {
				t.Error("expected a decode error on the error channel")
			}
		})
	}
}
