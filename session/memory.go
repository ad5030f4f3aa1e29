package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-connections/core"
	"github.com/jellydator/ttlcache/v3"
)

// MemoryStore keeps session values in process. Entries expire after the
// configured TTL; reads do not extend it.
type MemoryStore struct {
	cache *ttlcache.Cache[string, string]
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[string, string](ttl),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go cache.Start()
	return &MemoryStore{cache: cache}
}

// Close stops the expiry loop.
func (s *MemoryStore) Close() error {
	s.cache.Stop()
	return nil
}

func (s *MemoryStore) SaveState(_ context.Context, sessionID string, provider core.ProviderKind, state string) error {
	if err := requireSessionID(sessionID); err != nil {
		return err
	}
	s.cache.Set(stateKey(sessionID, provider), state, ttlcache.DefaultTTL)
	return nil
}

func (s *MemoryStore) LoadState(_ context.Context, sessionID string, provider core.ProviderKind) (string, bool, error) {
	return s.get(stateKey(sessionID, provider))
}

func (s *MemoryStore) ClearState(_ context.Context, sessionID string, provider core.ProviderKind) error {
	s.cache.Delete(stateKey(sessionID, provider))
	return nil
}

func (s *MemoryStore) TakeState(_ context.Context, sessionID string, provider core.ProviderKind) (string, bool, error) {
	item, ok := s.cache.GetAndDelete(stateKey(sessionID, provider))
	if !ok || item == nil || item.IsExpired() {
		return "", false, nil
	}
	return item.Value(), true, nil
}

func (s *MemoryStore) BindUser(_ context.Context, sessionID string, uid string) error {
	if err := requireSessionID(sessionID); err != nil {
		return err
	}
	s.cache.Set(userKey(sessionID), strings.TrimSpace(uid), ttlcache.DefaultTTL)
	return nil
}

func (s *MemoryStore) BoundUser(_ context.Context, sessionID string) (string, bool, error) {
	return s.get(userKey(sessionID))
}

func (s *MemoryStore) get(key string) (string, bool, error) {
	item := s.cache.Get(key)
	if item == nil {
		return "", false, nil
	}
	return item.Value(), true, nil
}

func requireSessionID(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session: session id is required")
	}
	return nil
}

var _ core.SessionStore = (*MemoryStore)(nil)
