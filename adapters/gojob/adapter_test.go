package gojob

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-connections/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

func TestMessageMappingRoundTrip(t *testing.T) {
	original := &core.JobExecutionMessage{
		JobID:          JobIDNotification,
		ScriptPath:     "connections.notification.send",
		Parameters:     map[string]any{"uid": "u1", "provider": "facebook", "target": "123"},
		IdempotencyKey: "idem-1",
		DedupPolicy:    "drop",
	}

	converted := ToExecutionMessage(original)
	if converted == nil {
		t.Fatalf("expected converted message")
	}
	roundTrip := FromExecutionMessage(converted)
	if roundTrip.JobID != original.JobID {
		t.Fatalf("expected job id %q, got %q", original.JobID, roundTrip.JobID)
	}
	if roundTrip.IdempotencyKey != original.IdempotencyKey {
		t.Fatalf("expected idempotency key %q, got %q", original.IdempotencyKey, roundTrip.IdempotencyKey)
	}
	if roundTrip.DedupPolicy != original.DedupPolicy {
		t.Fatalf("expected dedup policy %q, got %q", original.DedupPolicy, roundTrip.DedupPolicy)
	}
	if roundTrip.Parameters["target"] != "123" {
		t.Fatalf("expected parameters to survive mapping")
	}
	original.Parameters["target"] = "mutated"
	if converted.Parameters["target"] != "123" {
		t.Fatalf("expected parameters to be copied")
	}
}

func TestEnqueueAndDequeueAdapters(t *testing.T) {
	ctx := context.Background()
	enqueuer := &stubQueueEnqueuer{}
	enqueueAdapter := NewEnqueuerAdapter(enqueuer)

	msg := &core.JobExecutionMessage{
		JobID:          JobIDNotification,
		ScriptPath:     "connections.notification.send",
		Parameters:     map[string]any{"uid": "u1"},
		IdempotencyKey: "idem-notify",
		DedupPolicy:    "drop",
	}
	if err := enqueueAdapter.Enqueue(ctx, msg); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if enqueuer.last == nil || enqueuer.last.JobID != JobIDNotification {
		t.Fatalf("expected mapped go-job message")
	}
	if err := enqueueAdapter.Enqueue(ctx, nil); err == nil {
		t.Fatalf("expected nil message to fail")
	}

	dequeuer := &stubQueueDequeuer{delivery: &stubQueueDelivery{msg: enqueuer.last}}
	dequeueAdapter := NewDequeuerAdapter(dequeuer, RetryPolicy{})
	delivery, err := dequeueAdapter.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	got := delivery.Message()
	if got == nil || got.JobID != JobIDNotification {
		t.Fatalf("expected mapped core message")
	}
	if err := delivery.Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if !dequeuer.delivery.(*stubQueueDelivery).acked {
		t.Fatalf("expected ack on underlying delivery")
	}
}

func TestNackRetryPolicyBoundaries(t *testing.T) {
	ctx := context.Background()
	rawDelivery := &stubQueueDelivery{
		msg: &job.ExecutionMessage{JobID: JobIDNotification},
	}
	adapter := NewDeliveryAdapter(rawDelivery, RetryPolicyFromConfig(core.JobsConfig{
		MaxAttempts: 3,
		MaxDelay:    10 * time.Second,
	}))

	if err := adapter.NackForAttempt(ctx, core.JobNackOptions{
		Delay:   30 * time.Second,
		Requeue: true,
		Reason:  "upstream 503",
	}, 1); err != nil {
		t.Fatalf("nack attempt 1: %v", err)
	}
	if rawDelivery.nackOpts.Delay != 10*time.Second {
		t.Fatalf("expected delay to be bounded, got %s", rawDelivery.nackOpts.Delay)
	}
	if rawDelivery.nackOpts.Disposition != queue.NackDispositionRetry {
		t.Fatalf("expected message to be retried before max attempts, got %q", rawDelivery.nackOpts.Disposition)
	}

	if err := adapter.NackForAttempt(ctx, core.JobNackOptions{
		Delay:   time.Second,
		Requeue: true,
		Reason:  "still failing",
	}, 3); err != nil {
		t.Fatalf("nack max attempt: %v", err)
	}
	if rawDelivery.nackOpts.Disposition != queue.NackDispositionDeadLetter {
		t.Fatalf("expected dead letter on max attempts, got %q", rawDelivery.nackOpts.Disposition)
	}
	if rawDelivery.nackOpts.Delay != 0 {
		t.Fatalf("expected no delay on a dead letter, got %s", rawDelivery.nackOpts.Delay)
	}
}

func TestRetryPolicyApply_DefaultsToRequeue(t *testing.T) {
	opts := RetryPolicy{}.Apply(core.JobNackOptions{Delay: -time.Second}, 1)
	if !opts.Requeue || opts.Delay != 0 {
		t.Fatalf("expected requeue with zero delay, got %#v", opts)
	}
	mapped := FromNackOptions(ToNackOptions(core.JobNackOptions{DeadLetter: true, Reason: "bad"}))
	if !mapped.DeadLetter || mapped.Reason != "bad" {
		t.Fatalf("unexpected nack mapping: %#v", mapped)
	}
}

func TestDeliveryAdapter_NackUsesCarriedAttempt(t *testing.T) {
	raw := &stubQueueDelivery{msg: &job.ExecutionMessage{
		JobID:      JobIDNotification,
		Parameters: map[string]any{attemptParameter: 2},
	}}
	delivery := NewDeliveryAdapter(raw, RetryPolicy{MaxAttempts: 2})
	if delivery.Attempt() != 2 {
		t.Fatalf("expected attempt 2, got %d", delivery.Attempt())
	}
	if err := delivery.Nack(context.Background(), core.JobNackOptions{Requeue: true, Reason: "upstream 502"}); err != nil {
		t.Fatalf("nack: %v", err)
	}
	if raw.nackOpts.Disposition != queue.NackDispositionDeadLetter {
		t.Fatalf("expected the last attempt to dead-letter, got %#v", raw.nackOpts)
	}
}

func TestNackOptionsDisposition(t *testing.T) {
	cases := []struct {
		name string
		in   core.JobNackOptions
		want queue.NackDisposition
	}{
		{name: "requeue", in: core.JobNackOptions{Requeue: true, Delay: time.Second}, want: queue.NackDispositionRetry},
		{name: "dead letter wins", in: core.JobNackOptions{Requeue: true, DeadLetter: true}, want: queue.NackDispositionDeadLetter},
		{name: "neither", in: core.JobNackOptions{Reason: "bad payload"}, want: queue.NackDispositionFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ToNackOptions(tc.in)
			if got.Disposition != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got.Disposition)
			}
			if err := queue.ValidateNackOptions(got); err != nil {
				t.Fatalf("expected valid nack options: %v", err)
			}
		})
	}

	for _, disposition := range []queue.NackDisposition{queue.NackDispositionFailed, queue.NackDispositionCanceled} {
		if mapped := FromNackOptions(queue.NackOptions{Disposition: disposition}); !mapped.DeadLetter || mapped.Requeue {
			t.Fatalf("expected %q to map to dead letter, got %#v", disposition, mapped)
		}
	}
	retry := FromNackOptions(queue.NackOptions{Disposition: queue.NackDispositionRetry, Delay: time.Second})
	if !retry.Requeue || retry.Delay != time.Second {
		t.Fatalf("unexpected retry mapping: %#v", retry)
	}
}

func TestEnqueuerAdapter_RequiresJobID(t *testing.T) {
	adapter := NewEnqueuerAdapter(&stubQueueEnqueuer{})
	if err := adapter.Enqueue(context.Background(), &core.JobExecutionMessage{}); err == nil {
		t.Fatalf("expected missing job id to fail")
	}
}

type stubQueueEnqueuer struct {
	last *job.ExecutionMessage
}

func (s *stubQueueEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	s.last = msg
	return queue.EnqueueReceipt{DispatchID: "dispatch-1", EnqueuedAt: time.Now()}, nil
}

type stubQueueDequeuer struct {
	delivery queue.Delivery
}

func (s *stubQueueDequeuer) Dequeue(context.Context) (queue.Delivery, error) {
	return s.delivery, nil
}

type stubQueueDelivery struct {
	msg      *job.ExecutionMessage
	acked    bool
	nackOpts queue.NackOptions
}

func (s *stubQueueDelivery) Message() *job.ExecutionMessage {
	return s.msg
}

func (s *stubQueueDelivery) Ack(context.Context) error {
	s.acked = true
	return nil
}

func (s *stubQueueDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	s.nackOpts = opts
	return nil
}
