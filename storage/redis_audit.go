package storage

import (
	"context"
	"fmt"

	"triage/core"
	"triage/metrics"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// RedisAuditSink appends every audit entry of a case to the Redis list audit:<case>,
// msgpack encoded. The list keeps the full history, pending entries included.
type RedisAuditSink struct {
	cache  *RedisCache
	logger *zap.SugaredLogger
}

// NewRedisAuditSink creates an audit sink on cache
func NewRedisAuditSink(cache *RedisCache, logger *zap.SugaredLogger) *RedisAuditSink {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RedisAuditSink{cache: cache, logger: logger}
}

// Append pushes the entry to the case's audit list
func (s *RedisAuditSink) Append(ctx context.Context, caseID string, entry *core.AuditLog) error {
	if entry == nil {
		return fmt.Errorf("%w: audit entry must not be nil", core.ErrType)
	}
	data, err := msgpack.Marshal(entry.Record(caseID))
	if err != nil {
		metrics.AuditSinkWrites.WithLabelValues("redis", "error").Inc()
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}
	if err := s.cache.client.RPush(ctx, GetAuditCacheKey(caseID), data).Err(); err != nil {
		metrics.AuditSinkWrites.WithLabelValues("redis", "error").Inc()
		return fmt.Errorf("failed to push audit entry: %w", err)
	}
	metrics.AuditSinkWrites.WithLabelValues("redis", "success").Inc()
	return nil
}

// ListAudit returns the entries appended for caseID, oldest first
func (s *RedisAuditSink) ListAudit(ctx context.Context, caseID string) ([]core.AuditRecord, error) {
	raw, err := s.cache.client.LRange(ctx, GetAuditCacheKey(caseID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read audit list: %w", err)
	}

	records := make([]core.AuditRecord, 0, len(raw))
	for i, item := range raw {
		var r core.AuditRecord
		if err := msgpack.Unmarshal([]byte(item), &r); err != nil {
			s.logger.Warnw("Skipping undecodable audit entry", "case", caseID, "index", i, "error", err)
			continue
		}
		records = append(records, r)
	}
	return records, nil
}
