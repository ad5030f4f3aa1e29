package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-connections/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const userCacheKeyPrefix = "go-connections::user::v1"

// OwnedUserStore is a user store that can resolve which user owns a provider
// resource. The cache needs it to invalidate after correlation writes.
type OwnedUserStore interface {
	core.UserStore
	ResourceOwner(ctx context.Context, provider core.ProviderKind, resourceID string) (string, bool, error)
}

// CachedUserStore reads users through a cache keyed by uid. Writes go to the
// base store and evict the affected entry. Evictions are local to this
// process; run it only where a single process writes the users table.
type CachedUserStore struct {
	base  OwnedUserStore
	cache repositorycache.CacheService
	// writes is bumped before every eviction. A read that overlaps a write
	// may have cached the old row, so it drops the entry and reads again.
	writes atomic.Uint64
}

func NewCachedUserStore(base OwnedUserStore, cacheService repositorycache.CacheService) (*CachedUserStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base user store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: user cache service is required")
	}
	return &CachedUserStore{base: base, cache: cacheService}, nil
}

// NewUserCacheService builds the in-memory cache service used by
// CachedUserStore.
func NewUserCacheService(ttl time.Duration) (repositorycache.CacheService, error) {
	config := repositorycache.DefaultConfig()
	if ttl > 0 {
		config.TTL = ttl
	}
	return repositorycache.NewCacheService(config)
}

// UserCacheKey returns go-connections::user::v1::<uid> with the uid path
// escaped.
func UserCacheKey(uid string) (string, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return "", fmt.Errorf("sqlstore: uid is required for cache key")
	}
	return userCacheKeyPrefix + "::" + url.PathEscape(uid), nil
}

func (s *CachedUserStore) FindByUID(ctx context.Context, uid string) (core.User, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.User{}, fmt.Errorf("sqlstore: cached user store is not configured")
	}
	cacheKey, err := UserCacheKey(uid)
	if err != nil {
		return core.User{}, err
	}
	seen := s.writes.Load()
	user, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.User, error) {
		fetched, fetchErr := s.base.FindByUID(ctx, uid)
		if fetchErr != nil {
			return core.User{}, fetchErr
		}
		return core.CloneUser(fetched), nil
	})
	if err != nil {
		return core.User{}, err
	}
	if s.writes.Load() != seen {
		if err := s.cache.Delete(ctx, cacheKey); err != nil {
			return core.User{}, err
		}
		return s.base.FindByUID(ctx, uid)
	}
	return core.CloneUser(user), nil
}

// FindByUIDConsistent skips the cache.
func (s *CachedUserStore) FindByUIDConsistent(ctx context.Context, uid string) (core.User, error) {
	if s == nil || s.base == nil {
		return core.User{}, fmt.Errorf("sqlstore: cached user store is not configured")
	}
	return s.base.FindByUID(ctx, uid)
}

func (s *CachedUserStore) FindByEmail(ctx context.Context, email string) (core.User, error) {
	if s == nil || s.base == nil {
		return core.User{}, fmt.Errorf("sqlstore: cached user store is not configured")
	}
	return s.base.FindByEmail(ctx, email)
}

func (s *CachedUserStore) UpsertOnInsert(ctx context.Context, in core.RegisterUserInput, defaults core.Settings) (core.User, bool, error) {
	if s == nil || s.base == nil {
		return core.User{}, false, fmt.Errorf("sqlstore: cached user store is not configured")
	}
	user, created, err := s.base.UpsertOnInsert(ctx, in, defaults)
	if err != nil {
		return core.User{}, false, err
	}
	if created {
		if err := s.evict(ctx, user.UID); err != nil {
			return core.User{}, false, err
		}
	}
	return user, created, nil
}

func (s *CachedUserStore) ReplaceConnection(ctx context.Context, uid string, connection core.Connection) (core.User, error) {
	if s == nil || s.base == nil {
		return core.User{}, fmt.Errorf("sqlstore: cached user store is not configured")
	}
	user, err := s.base.ReplaceConnection(ctx, uid, connection)
	if evictErr := s.evict(ctx, uid); evictErr != nil && err == nil {
		err = evictErr
	}
	return user, err
}

func (s *CachedUserStore) RemoveConnection(ctx context.Context, uid string, provider core.ProviderKind) (bool, error) {
	if s == nil || s.base == nil {
		return false, fmt.Errorf("sqlstore: cached user store is not configured")
	}
	removed, err := s.base.RemoveConnection(ctx, uid, provider)
	if err != nil {
		return false, err
	}
	if removed {
		if err := s.evict(ctx, uid); err != nil {
			return false, err
		}
	}
	return removed, nil
}

func (s *CachedUserStore) UpdateCorrelation(ctx context.Context, provider core.ProviderKind, resourceID string, field string, value string, at time.Time) (bool, error) {
	if s == nil || s.base == nil {
		return false, fmt.Errorf("sqlstore: cached user store is not configured")
	}
	owner, found, err := s.base.ResourceOwner(ctx, provider, resourceID)
	if err != nil {
		return false, err
	}
	updated, err := s.base.UpdateCorrelation(ctx, provider, resourceID, field, value, at)
	if err != nil || !updated {
		return updated, err
	}
	if found {
		if err := s.evict(ctx, owner); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *CachedUserStore) UpdateProfile(ctx context.Context, uid string, update core.ProfileUpdate) (core.User, error) {
	if s == nil || s.base == nil {
		return core.User{}, fmt.Errorf("sqlstore: cached user store is not configured")
	}
	user, err := s.base.UpdateProfile(ctx, uid, update)
	if err != nil {
		return core.User{}, err
	}
	if err := s.evict(ctx, uid); err != nil {
		return core.User{}, err
	}
	return user, nil
}

func (s *CachedUserStore) ResourceOwner(ctx context.Context, provider core.ProviderKind, resourceID string) (string, bool, error) {
	if s == nil || s.base == nil {
		return "", false, fmt.Errorf("sqlstore: cached user store is not configured")
	}
	return s.base.ResourceOwner(ctx, provider, resourceID)
}

func (s *CachedUserStore) evict(ctx context.Context, uid string) error {
	cacheKey, err := UserCacheKey(uid)
	if err != nil {
		return err
	}
	s.writes.Add(1)
	return s.cache.Delete(ctx, cacheKey)
}
