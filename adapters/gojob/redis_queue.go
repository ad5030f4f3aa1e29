package gojob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisQueueKey = "connections:jobs"
	defaultPollInterval  = time.Second
	promoteBatch         = 100
)

// RedisQueue keeps ready messages in a list, delayed retries in a sorted set
// scored by due time, and dead letters in a second list.
type RedisQueue struct {
	client redis.UniversalClient
	key    string
	poll   time.Duration
	now    func() time.Time
	logger job.Logger
}

type queuedMessage struct {
	JobID          string         `json:"job_id"`
	ScriptPath     string         `json:"script_path"`
	Parameters     map[string]any `json:"parameters"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	DedupPolicy    string         `json:"dedup_policy,omitempty"`
}

func NewRedisQueue(client redis.UniversalClient, key string) (*RedisQueue, error) {
	if client == nil {
		return nil, fmt.Errorf("gojob: redis client is required")
	}
	key = strings.TrimRight(strings.TrimSpace(key), ":")
	if key == "" {
		key = defaultRedisQueueKey
	}
	return &RedisQueue{
		client: client,
		key:    key,
		poll:   defaultPollInterval,
		now:    time.Now,
	}, nil
}

// NewRedisQueueFromAddr dials addr and checks it with a PING.
func NewRedisQueueFromAddr(ctx context.Context, addr string, key string) (*RedisQueue, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("gojob: redis address is required")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("gojob: ping redis %s: %w", addr, err)
	}
	return NewRedisQueue(client, key)
}

// SetLogger reports dead-lettered messages to logger.
func (q *RedisQueue) SetLogger(logger job.Logger) {
	q.logger = logger
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) delayedKey() string { return q.key + ":delayed" }
func (q *RedisQueue) deadKey() string    { return q.key + ":dead" }
func (q *RedisQueue) dedupKey(key string) string {
	return q.key + ":dedup:" + key
}

func (q *RedisQueue) Enqueue(ctx context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	if err := queue.ValidateRequiredMessage(msg); err != nil {
		return queue.EnqueueReceipt{}, err
	}
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" && string(msg.DedupPolicy) == dedupPolicyDrop {
		fresh, err := q.client.SetNX(ctx, q.dedupKey(key), "1", defaultDedupWindow).Result()
		if err != nil {
			return queue.EnqueueReceipt{}, fmt.Errorf("gojob: dedup check: %w", err)
		}
		if !fresh {
			return queue.EnqueueReceipt{}, nil
		}
	}
	payload, err := encodeMessage(msg)
	if err != nil {
		return queue.EnqueueReceipt{}, err
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return queue.EnqueueReceipt{}, fmt.Errorf("gojob: enqueue: %w", err)
	}
	return newReceipt(), nil
}

// Dequeue promotes due retries, then blocks on the ready list until a message
// arrives or ctx is done.
func (q *RedisQueue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := q.promoteDue(ctx); err != nil {
			return nil, err
		}
		result, err := q.client.BRPop(ctx, q.poll, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("gojob: dequeue: %w", err)
		}
		if len(result) != 2 {
			continue
		}
		msg, err := decodeMessage(result[1])
		if err != nil {
			// unreadable payloads go straight to the dead letter list
			_ = q.client.LPush(ctx, q.deadKey(), result[1]).Err()
			continue
		}
		return &redisDelivery{queue: q, msg: msg}, nil
	}
}

func (q *RedisQueue) promoteDue(ctx context.Context) error {
	due, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(q.now().UnixMilli(), 10),
		Count: promoteBatch,
	}).Result()
	if err != nil {
		return fmt.Errorf("gojob: read delayed: %w", err)
	}
	for _, payload := range due {
		removed, err := q.client.ZRem(ctx, q.delayedKey(), payload).Result()
		if err != nil {
			return fmt.Errorf("gojob: promote delayed: %w", err)
		}
		if removed == 0 {
			// another consumer promoted it
			continue
		}
		if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
			return fmt.Errorf("gojob: promote delayed: %w", err)
		}
	}
	return nil
}

func (q *RedisQueue) requeue(ctx context.Context, msg *job.ExecutionMessage, delay time.Duration) error {
	payload, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	if delay <= 0 {
		return q.client.LPush(ctx, q.key, payload).Err()
	}
	return q.client.ZAdd(ctx, q.delayedKey(), redis.Z{
		Score:  float64(q.now().Add(delay).UnixMilli()),
		Member: payload,
	}).Err()
}

func (q *RedisQueue) deadLetter(ctx context.Context, msg *job.ExecutionMessage, reason string) error {
	payload, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.deadKey(), payload).Err(); err != nil {
		return fmt.Errorf("gojob: dead letter: %w", err)
	}
	logDeadLetter(q.logger, msg, reason)
	return nil
}

type redisDelivery struct {
	queue *RedisQueue
	msg   *job.ExecutionMessage
}

func (d *redisDelivery) Message() *job.ExecutionMessage {
	return d.msg
}

// Ack is a no-op: BRPOP already removed the message.
func (d *redisDelivery) Ack(context.Context) error {
	return nil
}

func (d *redisDelivery) Nack(ctx context.Context, opts queue.NackOptions) error {
	if err := queue.ValidateNackOptions(opts); err != nil {
		return err
	}
	if opts.Disposition != queue.NackDispositionRetry {
		return d.queue.deadLetter(ctx, d.msg, nackReason(opts))
	}
	return d.queue.requeue(ctx, nextAttempt(d.msg), opts.Delay)
}

func encodeMessage(msg *job.ExecutionMessage) (string, error) {
	data, err := json.Marshal(queuedMessage{
		JobID:          msg.JobID,
		ScriptPath:     msg.ScriptPath,
		Parameters:     msg.Parameters,
		IdempotencyKey: msg.IdempotencyKey,
		DedupPolicy:    string(msg.DedupPolicy),
	})
	if err != nil {
		return "", fmt.Errorf("gojob: encode message: %w", err)
	}
	return string(data), nil
}

func decodeMessage(payload string) (*job.ExecutionMessage, error) {
	var queued queuedMessage
	if err := json.Unmarshal([]byte(payload), &queued); err != nil {
		return nil, fmt.Errorf("gojob: decode message: %w", err)
	}
	return &job.ExecutionMessage{
		JobID:          queued.JobID,
		ScriptPath:     queued.ScriptPath,
		Parameters:     cloneParameters(queued.Parameters),
		IdempotencyKey: queued.IdempotencyKey,
		DedupPolicy:    job.DeduplicationPolicy(queued.DedupPolicy),
	}, nil
}

var (
	_ queue.Enqueuer = (*RedisQueue)(nil)
	_ queue.Dequeuer = (*RedisQueue)(nil)
	_ queue.Delivery = (*redisDelivery)(nil)
)
