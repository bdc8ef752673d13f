package storage

import (
	"context"
	"fmt"
	"time"

	"triage/core"
	"triage/metrics"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// RedisWhitelistStore serves the global whitelists from Redis lists keyed by
// core.WhitelistKey. Fetched lists are cached in memory for ttl.
type RedisWhitelistStore struct {
	cache  *RedisCache
	lists  *expirable.LRU[core.IndicatorCategory, []string]
	logger *zap.SugaredLogger
}

// NewRedisWhitelistStore creates a whitelist store on cache. A zero ttl disables
// the in-memory cache.
func NewRedisWhitelistStore(cache *RedisCache, size int, ttl time.Duration, logger *zap.SugaredLogger) *RedisWhitelistStore {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if size <= 0 {
		size = len(core.WhitelistCategories)
	}
	s := &RedisWhitelistStore{cache: cache, logger: logger}
	if ttl > 0 {
		s.lists = expirable.NewLRU[core.IndicatorCategory, []string](size, nil, ttl)
	}
	return s
}

// Whitelist returns the whitelist of category. A missing key is an empty list.
func (s *RedisWhitelistStore) Whitelist(ctx context.Context, category core.IndicatorCategory) ([]string, error) {
	if s.lists != nil {
		if list, ok := s.lists.Get(category); ok {
			metrics.CacheHits.WithLabelValues(string(category)).Inc()
			return list, nil
		}
		metrics.CacheMisses.WithLabelValues(string(category)).Inc()
	}

	list, err := s.cache.ListRange(ctx, core.WhitelistKey(category))
	if err != nil {
		return nil, err
	}
	if s.lists != nil {
		s.lists.Add(category, list)
	}
	return list, nil
}

// List returns the stored whitelist of category, bypassing the cache
func (s *RedisWhitelistStore) List(ctx context.Context, category core.IndicatorCategory) ([]string, error) {
	if err := validCategory(category); err != nil {
		return nil, err
	}
	return s.cache.ListRange(ctx, core.WhitelistKey(category))
}

// Add appends values to the whitelist of category, skipping values already listed
func (s *RedisWhitelistStore) Add(ctx context.Context, category core.IndicatorCategory, values ...string) error {
	cleaned, err := cleanWhitelistValues(category, values)
	if err != nil {
		return err
	}
	if err := s.cache.ListAddUnique(ctx, core.WhitelistKey(category), cleaned...); err != nil {
		return fmt.Errorf("failed to add %s whitelist entries: %w", category, err)
	}
	s.Invalidate(category)
	s.logger.Infow("Whitelist entries added", "category", category, "count", len(cleaned))
	return nil
}

// Remove deletes values from the whitelist of category
func (s *RedisWhitelistStore) Remove(ctx context.Context, category core.IndicatorCategory, values ...string) error {
	cleaned, err := cleanWhitelistValues(category, values)
	if err != nil {
		return err
	}
	if err := s.cache.ListRemove(ctx, core.WhitelistKey(category), cleaned...); err != nil {
		return fmt.Errorf("failed to remove %s whitelist entries: %w", category, err)
	}
	s.Invalidate(category)
	s.logger.Infow("Whitelist entries removed", "category", category, "count", len(cleaned))
	return nil
}

// Invalidate drops the cached lists of the given categories, or all of them
func (s *RedisWhitelistStore) Invalidate(categories ...core.IndicatorCategory) {
	if s.lists == nil {
		return
	}
	if len(categories) == 0 {
		s.lists.Purge()
		return
	}
	for _, c := range categories {
		s.lists.Remove(c)
	}
}
