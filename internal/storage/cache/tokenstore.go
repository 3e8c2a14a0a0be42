package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-crowdship-push/pkg/dispatch"
)

// CacheClient is the slice of Redis the device cache needs.
type CacheClient interface {
	LoadJSON(ctx context.Context, key string, dest any) (hit bool, err error)
	SaveJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// CachedDeviceStore adds read-aside caching to any DeviceStore. The real store
// is authoritative: cache failures are logged and never fail a call.
type CachedDeviceStore struct {
	realStore dispatch.DeviceStore
	cache     CacheClient
	ttl       time.Duration
	logger    *slog.Logger
}

func NewCachedDeviceStore(realStore dispatch.DeviceStore, cache CacheClient, ttl time.Duration, logger *slog.Logger) *CachedDeviceStore {
	return &CachedDeviceStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
		logger:    logger.With("component", "CachedDeviceStore"),
	}
}

// --- READ PATH ---

func (s *CachedDeviceStore) Fetch(ctx context.Context, userID string) ([]dispatch.Device, error) {
	key := s.cacheKey(userID)

	var cached []dispatch.Device
	hit, err := s.cache.LoadJSON(ctx, key, &cached)
	if err != nil {
		s.logger.Warn("Cache read failed; using real store", "user_id", userID, "err", err)
	}
	if hit {
		return cached, nil
	}

	fresh, err := s.realStore.Fetch(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SaveJSON(ctx, key, fresh, s.ttl); err != nil {
		s.logger.Warn("Cache fill failed", "user_id", userID, "err", err)
	}
	return fresh, nil
}

// --- WRITE PATHS (invalidate on write) ---

func (s *CachedDeviceStore) Register(ctx context.Context, userID string, device dispatch.Device) error {
	if err := s.realStore.Register(ctx, userID, device); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// Unregister drops the cached entry so fan-out stops targeting the token.
func (s *CachedDeviceStore) Unregister(ctx context.Context, userID string, token string) error {
	if err := s.realStore.Unregister(ctx, userID, token); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// invalidate is best effort; a stale entry lives at most one TTL.
func (s *CachedDeviceStore) invalidate(ctx context.Context, userID string) {
	if err := s.cache.Del(ctx, s.cacheKey(userID)); err != nil {
		s.logger.Error("Cache invalidation failed; entry stays until TTL", "user_id", userID, "ttl", s.ttl, "err", err)
	}
}

func (s *CachedDeviceStore) cacheKey(userID string) string {
	return "push:tokens:" + userID
}
