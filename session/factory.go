package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-connections/core"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Store is a SessionStore that owns background resources.
type Store interface {
	core.SessionStore
	Close() error
}

// NewFromConfig picks the backend named by session.backend.
func NewFromConfig(ctx context.Context, cfg core.SessionConfig) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		return NewMemoryStore(cfg.TTL), nil
	case BackendRedis:
		return NewRedisStoreFromAddr(ctx, cfg.RedisAddr, cfg.TTL)
	default:
		return nil, fmt.Errorf("session: unsupported backend %q", cfg.Backend)
	}
}
