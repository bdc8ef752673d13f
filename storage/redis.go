package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"triage/metrics"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache key prefixes
const (
	CacheKeyAuditPrefix = "audit:"
)

// maxValueSize bounds single values written to Redis (10MB)
const maxValueSize = 10 * 1024 * 1024

// RedisCache wraps the Redis connection shared by the whitelist store and the audit sink
type RedisCache struct {
	client *redis.Client
	logger *zap.SugaredLogger
}

// NewRedisCache creates a new Redis cache instance
func NewRedisCache(addr, password string, db, poolSize int, logger *zap.SugaredLogger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})

	return &RedisCache{
		client: client,
		logger: logger,
	}
}

// Ping tests the Redis connection
func (rc *RedisCache) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// Set stores a value as JSON with expiration
func (rc *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		rc.logger.Errorf("Failed to marshal cache value for key %s: %v", key, err)
		metrics.CacheErrors.WithLabelValues("marshal").Inc()
		return err
	}

	if len(data) > maxValueSize {
		rc.logger.Warnf("Cache value for key %s exceeds size limit (%d bytes > %d bytes), rejecting", key, len(data), maxValueSize)
		metrics.CacheErrors.WithLabelValues("size_limit").Inc()
		return fmt.Errorf("cache value size %d bytes exceeds maximum allowed size %d bytes", len(data), maxValueSize)
	}

	if err := rc.client.Set(ctx, key, data, expiration).Err(); err != nil {
		metrics.CacheErrors.WithLabelValues("set").Inc()
		return err
	}
	return nil
}

// Get decodes the JSON value stored under key into dest. A missing key is (false, nil).
func (rc *RedisCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := rc.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		rc.logger.Errorf("Failed to get cache value for key %s: %v", key, err)
		metrics.CacheErrors.WithLabelValues("get").Inc()
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		rc.logger.Errorf("Failed to unmarshal cache value for key %s: %v", key, err)
		metrics.CacheErrors.WithLabelValues("unmarshal").Inc()
		return false, err
	}
	return true, nil
}

// Delete removes a key from the cache
func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	return rc.client.Del(ctx, key).Err()
}

// Exists checks if a key exists in the cache
func (rc *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	count, err := rc.client.Exists(ctx, key).Result()
	return count > 0, err
}

// ListRange returns all members of the list stored under key. A missing key is an empty list.
func (rc *RedisCache) ListRange(ctx context.Context, key string) ([]string, error) {
	values, err := rc.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		metrics.CacheErrors.WithLabelValues("lrange").Inc()
		return nil, fmt.Errorf("failed to read list %s: %w", key, err)
	}
	return values, nil
}

// ListAddUnique appends the values not yet in the list stored under key
func (rc *RedisCache) ListAddUnique(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	_, err := rc.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, v := range values {
			pipe.LRem(ctx, key, 0, v)
			pipe.RPush(ctx, key, v)
		}
		return nil
	})
	if err != nil {
		metrics.CacheErrors.WithLabelValues("rpush").Inc()
		return fmt.Errorf("failed to add to list %s: %w", key, err)
	}
	return nil
}

// ListRemove removes every occurrence of values from the list stored under key
func (rc *RedisCache) ListRemove(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	_, err := rc.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, v := range values {
			pipe.LRem(ctx, key, 0, v)
		}
		return nil
	})
	if err != nil {
		metrics.CacheErrors.WithLabelValues("lrem").Inc()
		return fmt.Errorf("failed to remove from list %s: %w", key, err)
	}
	return nil
}

// GetAuditCacheKey generates the key a case's audit entries are listed under
func GetAuditCacheKey(caseID string) string {
	return CacheKeyAuditPrefix + caseID
}
