package gojob

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-connections/core"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Queue is a go-job enqueuer and dequeuer that owns its connection.
type Queue interface {
	queue.Enqueuer
	queue.Dequeuer
	SetLogger(logger job.Logger)
	Close() error
}

// Jobs bundles the core-facing adapters over one queue.
type Jobs struct {
	Queue    Queue
	Enqueuer *EnqueuerAdapter
	Dequeuer *DequeuerAdapter
}

func (j *Jobs) Close() error {
	if j == nil || j.Queue == nil {
		return nil
	}
	return j.Queue.Close()
}

// NewFromConfig picks the backend named by jobs.backend. logger may be nil.
func NewFromConfig(ctx context.Context, cfg core.JobsConfig, logger job.Logger) (*Jobs, error) {
	var (
		q   Queue
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		q = NewMemoryQueue(0)
	case BackendRedis:
		q, err = NewRedisQueueFromAddr(ctx, cfg.RedisAddr, cfg.Queue)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("gojob: unsupported backend %q", cfg.Backend)
	}
	if logger != nil {
		q.SetLogger(logger)
	}
	policy := RetryPolicyFromConfig(cfg)
	return &Jobs{
		Queue:    q,
		Enqueuer: NewEnqueuerAdapter(q),
		Dequeuer: NewDequeuerAdapter(q, policy),
	}, nil
}
