package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-connections/core"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "connections:session"

// RedisStore shares session values across processes. Keys expire through
// Redis TTLs.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("session: redis client is required")
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}, nil
}

// NewRedisStoreFromAddr dials addr and checks it with a PING.
func NewRedisStoreFromAddr(ctx context.Context, addr string, ttl time.Duration) (*RedisStore, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("session: redis address is required")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("session: ping redis %s: %w", addr, err)
	}
	return NewRedisStore(client, defaultRedisPrefix, ttl)
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(suffix string) string {
	return s.prefix + ":" + suffix
}

func (s *RedisStore) SaveState(ctx context.Context, sessionID string, provider core.ProviderKind, state string) error {
	if err := requireSessionID(sessionID); err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(stateKey(sessionID, provider)), state, s.ttl).Err(); err != nil {
		return fmt.Errorf("session: save state: %w", err)
	}
	return nil
}

func (s *RedisStore) LoadState(ctx context.Context, sessionID string, provider core.ProviderKind) (string, bool, error) {
	return s.get(ctx, s.key(stateKey(sessionID, provider)))
}

func (s *RedisStore) ClearState(ctx context.Context, sessionID string, provider core.ProviderKind) error {
	if err := s.client.Del(ctx, s.key(stateKey(sessionID, provider))).Err(); err != nil {
		return fmt.Errorf("session: clear state: %w", err)
	}
	return nil
}

// TakeState uses GETDEL so concurrent callbacks cannot both read the state.
func (s *RedisStore) TakeState(ctx context.Context, sessionID string, provider core.ProviderKind) (string, bool, error) {
	key := s.key(stateKey(sessionID, provider))
	value, err := s.client.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("session: take state: %w", err)
	}
	return value, true, nil
}

func (s *RedisStore) BindUser(ctx context.Context, sessionID string, uid string) error {
	if err := requireSessionID(sessionID); err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(userKey(sessionID)), strings.TrimSpace(uid), s.ttl).Err(); err != nil {
		return fmt.Errorf("session: bind user: %w", err)
	}
	return nil
}

func (s *RedisStore) BoundUser(ctx context.Context, sessionID string) (string, bool, error) {
	return s.get(ctx, s.key(userKey(sessionID)))
}

func (s *RedisStore) get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("session: read %s: %w", key, err)
	}
	return value, true, nil
}

var _ core.SessionStore = (*RedisStore)(nil)
