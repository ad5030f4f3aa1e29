package gojob

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
)

const (
	dedupPolicyDrop     = "drop"
	defaultDedupWindow  = 24 * time.Hour
	defaultMemoryBuffer = 256
	attemptParameter    = "attempt"
)

// MemoryQueue is an in-process go-job queue for single-node deployments.
// Idempotency keys with the drop policy are remembered for a day.
type MemoryQueue struct {
	ready  chan *job.ExecutionMessage
	seen   *ttlcache.Cache[string, struct{}]
	logger job.Logger

	mu     sync.Mutex
	dead   []*job.ExecutionMessage
	timers []*time.Timer
	closed bool
}

func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = defaultMemoryBuffer
	}
	seen := ttlcache.New[string, struct{}](
		ttlcache.WithTTL[string, struct{}](defaultDedupWindow),
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	)
	go seen.Start()
	return &MemoryQueue{
		ready: make(chan *job.ExecutionMessage, buffer),
		seen:  seen,
	}
}

// Enqueue accepts msg and returns its dispatch receipt. A duplicate dropped
// by its idempotency key gets an empty receipt and no error.
func (q *MemoryQueue) Enqueue(ctx context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	if err := queue.ValidateRequiredMessage(msg); err != nil {
		return queue.EnqueueReceipt{}, err
	}
	if q.isClosed() {
		return queue.EnqueueReceipt{}, fmt.Errorf("gojob: queue is closed")
	}
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" && string(msg.DedupPolicy) == dedupPolicyDrop {
		if _, loaded := q.seen.GetOrSet(key, struct{}{}); loaded {
			return queue.EnqueueReceipt{}, nil
		}
	}
	if err := q.push(ctx, cloneExecutionMessage(msg)); err != nil {
		return queue.EnqueueReceipt{}, err
	}
	return newReceipt(), nil
}

// Dequeue blocks until a message is ready or ctx is done.
func (q *MemoryQueue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-q.ready:
		if !ok {
			return nil, fmt.Errorf("gojob: queue is closed")
		}
		return &memoryDelivery{queue: q, msg: msg}, nil
	}
}

// SetLogger reports dead-lettered messages to logger.
func (q *MemoryQueue) SetLogger(logger job.Logger) {
	q.logger = logger
}

// DeadLetters returns the messages that exhausted their retries.
func (q *MemoryQueue) DeadLetters() []*job.ExecutionMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*job.ExecutionMessage, len(q.dead))
	copy(out, q.dead)
	return out
}

// Pending reports how many messages are waiting to be dequeued.
func (q *MemoryQueue) Pending() int {
	return len(q.ready)
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	for _, timer := range q.timers {
		timer.Stop()
	}
	q.seen.Stop()
	close(q.ready)
	return nil
}

func (q *MemoryQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *MemoryQueue) push(ctx context.Context, msg *job.ExecutionMessage) (err error) {
	defer func() {
		// send on a queue closed mid-flight
		if recover() != nil {
			err = fmt.Errorf("gojob: queue is closed")
		}
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ready <- msg:
		return nil
	}
}

func (q *MemoryQueue) requeue(msg *job.ExecutionMessage, delay time.Duration) {
	if delay <= 0 {
		_ = q.push(context.Background(), msg)
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.timers = append(q.timers, time.AfterFunc(delay, func() {
		_ = q.push(context.Background(), msg)
	}))
}

func (q *MemoryQueue) deadLetter(msg *job.ExecutionMessage, reason string) {
	q.mu.Lock()
	q.dead = append(q.dead, msg)
	q.mu.Unlock()
	logDeadLetter(q.logger, msg, reason)
}

type memoryDelivery struct {
	queue *MemoryQueue
	msg   *job.ExecutionMessage
	done  bool
}

func (d *memoryDelivery) Message() *job.ExecutionMessage {
	return d.msg
}

func (d *memoryDelivery) Ack(context.Context) error {
	d.done = true
	return nil
}

func (d *memoryDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	if d.done {
		return fmt.Errorf("gojob: delivery already settled")
	}
	if err := queue.ValidateNackOptions(opts); err != nil {
		return err
	}
	d.done = true
	if opts.Disposition != queue.NackDispositionRetry {
		d.queue.deadLetter(d.msg, nackReason(opts))
		return nil
	}
	d.queue.requeue(nextAttempt(d.msg), opts.Delay)
	return nil
}

func newReceipt() queue.EnqueueReceipt {
	return queue.EnqueueReceipt{DispatchID: uuid.NewString(), EnqueuedAt: time.Now().UTC()}
}

// nackReason falls back to the disposition so every dead letter says why.
func nackReason(opts queue.NackOptions) string {
	if reason := strings.TrimSpace(opts.Reason); reason != "" {
		return reason
	}
	return string(opts.Disposition)
}

func logDeadLetter(logger job.Logger, msg *job.ExecutionMessage, reason string) {
	if logger == nil || msg == nil {
		return
	}
	logger.Info("job dead-lettered",
		"job_id", msg.JobID,
		"idempotency_key", msg.IdempotencyKey,
		"attempt", attemptOf(msg),
		"reason", reason,
	)
}

// nextAttempt copies msg with the attempt parameter incremented.
func nextAttempt(msg *job.ExecutionMessage) *job.ExecutionMessage {
	next := cloneExecutionMessage(msg)
	next.Parameters[attemptParameter] = attemptOf(msg) + 1
	return next
}

func attemptOf(msg *job.ExecutionMessage) int {
	if msg == nil {
		return 1
	}
	switch value := msg.Parameters[attemptParameter].(type) {
	case int:
		if value > 0 {
			return value
		}
	case float64:
		if value > 0 {
			return int(value)
		}
	}
	return 1
}

func cloneExecutionMessage(msg *job.ExecutionMessage) *job.ExecutionMessage {
	out := *msg
	out.Parameters = cloneParameters(msg.Parameters)
	return &out
}

var (
	_ queue.Enqueuer = (*MemoryQueue)(nil)
	_ queue.Dequeuer = (*MemoryQueue)(nil)
	_ queue.Delivery = (*memoryDelivery)(nil)
)
