package gojob

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/goliatone/go-connections/core"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

func notificationMessage(key string) *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID:          JobIDNotification,
		ScriptPath:     "connections.notification.send",
		Parameters:     map[string]any{"uid": "u1", "provider": "facebook", "target": "123", "text": "hi"},
		IdempotencyKey: key,
		DedupPolicy:    job.DeduplicationPolicy(dedupPolicyDrop),
	}
}

func dequeueWithin(t *testing.T, q queue.Dequeuer, wait time.Duration) queue.Delivery {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	delivery, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	return delivery
}

func TestMemoryQueue_DropsDuplicateIdempotencyKeys(t *testing.T) {
	q := NewMemoryQueue(4)
	t.Cleanup(func() { _ = q.Close() })
	ctx := context.Background()

	receipt, err := q.Enqueue(ctx, notificationMessage("k1"))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if receipt.DispatchID == "" || receipt.EnqueuedAt.IsZero() {
		t.Fatalf("expected a dispatch receipt, got %#v", receipt)
	}
	duplicate, err := q.Enqueue(ctx, notificationMessage("k1"))
	if err != nil {
		t.Fatalf("enqueue duplicate: %v", err)
	}
	if duplicate.DispatchID != "" {
		t.Fatalf("expected no dispatch for a dropped duplicate, got %q", duplicate.DispatchID)
	}
	if q.Pending() != 1 {
		t.Fatalf("expected duplicate to be dropped, pending=%d", q.Pending())
	}
}

func TestMemoryQueue_RequeueIncrementsAttempt(t *testing.T) {
	q := NewMemoryQueue(4)
	t.Cleanup(func() { _ = q.Close() })
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, notificationMessage("k1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	first := dequeueWithin(t, q, time.Second)
	if err := first.Nack(ctx, queue.NackOptions{Disposition: queue.NackDispositionRetry}); err != nil {
		t.Fatalf("nack: %v", err)
	}
	if err := first.Ack(ctx); err != nil {
		t.Fatalf("ack after nack should be harmless: %v", err)
	}

	second := dequeueWithin(t, q, time.Second)
	if attemptOf(second.Message()) != 2 {
		t.Fatalf("expected attempt 2, got %v", second.Message().Parameters[attemptParameter])
	}
	if err := second.Nack(ctx, queue.NackOptions{Disposition: queue.NackDispositionDeadLetter, Reason: "gave up"}); err != nil {
		t.Fatalf("dead letter: %v", err)
	}
	if dead := q.DeadLetters(); len(dead) != 1 || dead[0].IdempotencyKey != "k1" {
		t.Fatalf("expected one dead letter, got %#v", dead)
	}
}

func TestMemoryQueue_NackDispositions(t *testing.T) {
	q := NewMemoryQueue(4)
	t.Cleanup(func() { _ = q.Close() })
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, notificationMessage("")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	delivery := dequeueWithin(t, q, time.Second)
	if err := delivery.Nack(ctx, queue.NackOptions{}); err == nil {
		t.Fatalf("expected a nack without disposition to fail")
	}
	if err := delivery.Nack(ctx, queue.NackOptions{Disposition: queue.NackDispositionCanceled}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if dead := q.DeadLetters(); len(dead) != 1 {
		t.Fatalf("expected a canceled job to be dead-lettered, got %d", len(dead))
	}
	if q.Pending() != 0 {
		t.Fatalf("expected a canceled job not to be retried")
	}
	if _, err := q.Enqueue(ctx, &job.ExecutionMessage{}); err == nil {
		t.Fatalf("expected a message without job id to fail")
	}
}

func TestMemoryQueue_DelayedRequeue(t *testing.T) {
	q := NewMemoryQueue(4)
	t.Cleanup(func() { _ = q.Close() })
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, notificationMessage("")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	delivery := dequeueWithin(t, q, time.Second)
	if err := delivery.Nack(ctx, queue.NackOptions{Disposition: queue.NackDispositionRetry, Delay: 20 * time.Millisecond}); err != nil {
		t.Fatalf("nack: %v", err)
	}
	if q.Pending() != 0 {
		t.Fatalf("expected delayed message to wait")
	}
	dequeueWithin(t, q, 2*time.Second)
}

func TestMemoryQueue_DequeueHonoursContext(t *testing.T) {
	q := NewMemoryQueue(1)
	t.Cleanup(func() { _ = q.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := q.Dequeue(ctx); err == nil {
		t.Fatalf("expected context error")
	}
	_ = q.Close()
	if _, err := q.Enqueue(context.Background(), notificationMessage("late")); err == nil {
		t.Fatalf("expected enqueue on closed queue to fail")
	}
}

func TestNewFromConfig(t *testing.T) {
	jobs, err := NewFromConfig(context.Background(), core.JobsConfig{Backend: "memory", MaxAttempts: 2}, nil)
	if err != nil {
		t.Fatalf("memory backend: %v", err)
	}
	t.Cleanup(func() { _ = jobs.Close() })
	if jobs.Enqueuer == nil || jobs.Dequeuer == nil {
		t.Fatalf("expected adapters to be wired")
	}
	if _, err := NewFromConfig(context.Background(), core.JobsConfig{Backend: "kafka"}, nil); err == nil {
		t.Fatalf("expected unsupported backend to fail")
	}
	if _, err := NewFromConfig(context.Background(), core.JobsConfig{Backend: "redis"}, nil); err == nil {
		t.Fatalf("expected missing redis address to fail")
	}
}

func TestRedisQueue_RoundTrip(t *testing.T) {
	addr := os.Getenv("CONNECTIONS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CONNECTIONS_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	q, err := NewRedisQueue(client, "connections-test:jobs:"+uuid.NewString())
	if err != nil {
		t.Fatalf("new redis queue: %v", err)
	}
	q.poll = 50 * time.Millisecond
	t.Cleanup(func() { _ = q.Close() })
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, notificationMessage("k1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Enqueue(ctx, notificationMessage("k1")); err != nil {
		t.Fatalf("enqueue duplicate: %v", err)
	}
	if n, _ := client.LLen(ctx, q.key).Result(); n != 1 {
		t.Fatalf("expected one ready message, got %d", n)
	}

	delivery := dequeueWithin(t, q, 2*time.Second)
	if delivery.Message().Parameters["target"] != "123" {
		t.Fatalf("unexpected payload: %#v", delivery.Message().Parameters)
	}
	if err := delivery.Nack(ctx, queue.NackOptions{Disposition: queue.NackDispositionRetry, Delay: 10 * time.Millisecond}); err != nil {
		t.Fatalf("nack: %v", err)
	}
	retried := dequeueWithin(t, q, 2*time.Second)
	if attemptOf(retried.Message()) != 2 {
		t.Fatalf("expected attempt 2, got %v", retried.Message().Parameters[attemptParameter])
	}
	if err := retried.Nack(ctx, queue.NackOptions{Disposition: queue.NackDispositionDeadLetter}); err != nil {
		t.Fatalf("dead letter: %v", err)
	}
	if n, _ := client.LLen(ctx, q.deadKey()).Result(); n != 1 {
		t.Fatalf("expected one dead letter, got %d", n)
	}
}
