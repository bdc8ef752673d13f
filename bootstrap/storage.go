package bootstrap

import (
	"context"
	"fmt"
	"time"

	"triage/config"
	"triage/core"
	"triage/soar"
	"triage/storage"

	"go.uber.org/zap"
)

// clickHouseRetryDelays spaces the ClickHouse connection attempts
var clickHouseRetryDelays = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

// StorageComponents holds the stores the engine was wired with. Disabled or skipped
// stores are nil.
type StorageComponents struct {
	SQLite     *storage.SQLite
	Redis      *storage.RedisCache
	ClickHouse *storage.ClickHouse
	MongoDB    *storage.MongoDB

	// Whitelist serves the global whitelists; WhitelistAdmin is nil for the read-only static backend
	Whitelist      core.WhitelistStore
	WhitelistAdmin storage.WhitelistAdmin

	// AuditSink fans out to every configured sink
	AuditSink   core.AuditSink
	AuditReader storage.AuditReader
	FileAudit   *storage.FileAuditSink
	SQLiteAudit *storage.SQLiteAuditSink
	Archive     *storage.MongoCaseArchive
	Retention   *storage.RetentionManager
}

// skipOrFail applies the startup mode to a store that failed to initialize
func skipOrFail(cfg *config.Config, sugar *zap.SugaredLogger, store string, err error) error {
	if cfg.IsGracefulMode() {
		sugar.Warnw("Store unavailable, continuing without it", "store", store, "error", err)
		return nil
	}
	return fmt.Errorf("failed to initialize %s: %w", store, err)
}

// InitSQLite opens the embedded database and applies its migrations
func InitSQLite(cfg *config.Config, sugar *zap.SugaredLogger) (*storage.SQLite, error) {
	if !cfg.SQLite.Enabled {
		return nil, nil
	}
	db, err := storage.NewSQLite(cfg.SQLite.Path, sugar)
	if err != nil {
		sugar.Error(ClassifySQLiteError(err, cfg.SQLite.Path))
		return nil, err
	}
	sugar.Infow("SQLite initialized", "path", cfg.SQLite.Path)
	return db, nil
}

// InitRedis connects to Redis and checks it answers
func InitRedis(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (*storage.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	cache := storage.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, sugar)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cache.Ping(pingCtx); err != nil {
		_ = cache.Close()
		sugar.Error(ClassifyConnectionError(err, "Redis", cfg.Redis.Addr))
		return nil, err
	}
	sugar.Infow("Redis initialized", "addr", cfg.Redis.Addr)
	return cache, nil
}

// InitClickHouse connects to ClickHouse, retrying while the server starts up
func InitClickHouse(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (*storage.ClickHouse, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}

	var (
		clickhouse *storage.ClickHouse
		lastErr    error
	)
	for attempt := 0; attempt <= len(clickHouseRetryDelays); attempt++ {
		if attempt > 0 {
			delay := clickHouseRetryDelays[attempt-1]
			sugar.Infow("Retrying ClickHouse connection",
				"attempt", attempt,
				"max_retries", len(clickHouseRetryDelays),
				"delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		clickhouse, lastErr = storage.NewClickHouse(cfg.ClickHouse, sugar)
		if lastErr == nil {
			break
		}
		sugar.Warnw("ClickHouse connection attempt failed", "attempt", attempt+1, "error", lastErr)
	}
	if lastErr != nil {
		sugar.Error(ClassifyConnectionError(lastErr, "ClickHouse", cfg.ClickHouse.Addr))
		return nil, lastErr
	}
	sugar.Infow("ClickHouse initialized", "addr", cfg.ClickHouse.Addr, "database", cfg.ClickHouse.Database)
	return clickhouse, nil
}

// InitMongoDB connects to the case archive database
func InitMongoDB(cfg *config.Config, sugar *zap.SugaredLogger) (*storage.MongoDB, error) {
	if !cfg.MongoDB.Enabled {
		return nil, nil
	}
	m, err := storage.NewMongoDB(cfg.MongoDB.URI, cfg.MongoDB.Database, cfg.MongoDB.MaxPoolSize, sugar)
	if err != nil {
		sugar.Error(ClassifyConnectionError(err, "MongoDB", cfg.MongoDB.URI))
		return nil, err
	}
	sugar.Infow("MongoDB initialized", "database", cfg.MongoDB.Database)
	return m, nil
}

// InitStorage opens every enabled store and builds the whitelist store and the audit
// sink chain on top of them. In graceful mode a store that fails is skipped.
func InitStorage(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (*StorageComponents, error) {
	sc := &StorageComponents{}
	var err error

	if sc.SQLite, err = InitSQLite(cfg, sugar); err != nil {
		if err := skipOrFail(cfg, sugar, "sqlite", err); err != nil {
			return nil, err
		}
	}
	if sc.Redis, err = InitRedis(ctx, cfg, sugar); err != nil {
		if err := skipOrFail(cfg, sugar, "redis", err); err != nil {
			sc.Close(sugar)
			return nil, err
		}
	}
	if sc.ClickHouse, err = InitClickHouse(ctx, cfg, sugar); err != nil {
		if err := skipOrFail(cfg, sugar, "clickhouse", err); err != nil {
			sc.Close(sugar)
			return nil, err
		}
	}
	if sc.MongoDB, err = InitMongoDB(cfg, sugar); err != nil {
		if err := skipOrFail(cfg, sugar, "mongodb", err); err != nil {
			sc.Close(sugar)
			return nil, err
		}
	}
	if sc.MongoDB != nil {
		sc.Archive = storage.NewMongoCaseArchive(sc.MongoDB, cfg.MongoDB.Collection, sugar)
	}

	if err := sc.initWhitelist(cfg, sugar); err != nil {
		sc.Close(sugar)
		return nil, err
	}
	if err := sc.initAuditSinks(ctx, cfg, sugar); err != nil {
		sc.Close(sugar)
		return nil, err
	}

	if sc.SQLiteAudit != nil && cfg.Audit.RetentionDays > 0 {
		sc.Retention = storage.NewRetentionManager(sc.SQLiteAudit, cfg.Audit.RetentionDays, sugar)
	}
	return sc, nil
}

func (sc *StorageComponents) initWhitelist(cfg *config.Config, sugar *zap.SugaredLogger) error {
	switch cfg.Whitelist.Backend {
	case config.WhitelistBackendRedis:
		if sc.Redis != nil {
			store := storage.NewRedisWhitelistStore(sc.Redis, cfg.Whitelist.CacheSize, cfg.Whitelist.CacheTTL, sugar)
			sc.Whitelist, sc.WhitelistAdmin = store, store
		}
	case config.WhitelistBackendSQLite:
		if sc.SQLite != nil {
			store := storage.NewSQLiteWhitelistStore(sc.SQLite)
			sc.Whitelist, sc.WhitelistAdmin = store, store
		}
	case config.WhitelistBackendStatic:
		store, err := storage.LoadStaticWhitelist(cfg.Whitelist.File)
		if err != nil {
			if err := skipOrFail(cfg, sugar, "static whitelist", err); err != nil {
				return err
			}
		} else {
			sc.Whitelist = store
		}
	}

	if sc.Whitelist == nil {
		// Only reachable in graceful mode: the backend's store was skipped
		sugar.Warnw("Whitelist backend unavailable, no indicator will be whitelisted", "backend", cfg.Whitelist.Backend)
		sc.Whitelist = core.MapWhitelistStore{}
		return nil
	}
	sugar.Infow("Whitelist store initialized", "backend", cfg.Whitelist.Backend)
	return nil
}

func (sc *StorageComponents) initAuditSinks(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) error {
	breaker := soar.DefaultCircuitBreakerConfig()
	breaker.MaxFailures = cfg.Audit.CircuitBreaker.MaxFailures
	breaker.Timeout = cfg.Audit.CircuitBreaker.Timeout

	// guard wraps the sinks that talk to a remote server
	guard := func(name string, sink core.AuditSink) (core.AuditSink, error) {
		wrapped, err := soar.NewCircuitBreakerAuditSink(name, sink, breaker, sugar)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s audit sink breaker: %w", name, err)
		}
		return wrapped, nil
	}

	var sinks []core.AuditSink
	for _, name := range cfg.Audit.Sinks {
		switch name {
		case config.AuditSinkFile:
			fileSink, err := storage.NewFileAuditSink(cfg.Audit.File)
			if err != nil {
				if err := skipOrFail(cfg, sugar, "file audit sink", err); err != nil {
					return err
				}
				continue
			}
			sc.FileAudit = fileSink
			sinks = append(sinks, fileSink)
		case config.AuditSinkSQLite:
			if sc.SQLite == nil {
				continue
			}
			sc.SQLiteAudit = storage.NewSQLiteAuditSink(sc.SQLite)
			sinks = append(sinks, sc.SQLiteAudit)
			if sc.AuditReader == nil {
				sc.AuditReader = sc.SQLiteAudit
			}
		case config.AuditSinkRedis:
			if sc.Redis == nil {
				continue
			}
			redisSink := storage.NewRedisAuditSink(sc.Redis, sugar)
			guarded, err := guard(name, redisSink)
			if err != nil {
				return err
			}
			sinks = append(sinks, guarded)
			if sc.AuditReader == nil {
				sc.AuditReader = redisSink
			}
		case config.AuditSinkClickHouse:
			if sc.ClickHouse == nil {
				continue
			}
			chSink, err := storage.NewClickHouseAuditSink(ctx, sc.ClickHouse, sugar)
			if err != nil {
				if err := skipOrFail(cfg, sugar, "clickhouse audit sink", err); err != nil {
					return err
				}
				continue
			}
			guarded, err := guard(name, chSink)
			if err != nil {
				return err
			}
			sinks = append(sinks, guarded)
			if sc.AuditReader == nil {
				sc.AuditReader = chSink
			}
		}
	}

	var sink core.AuditSink = soar.NewMultiAuditSink(sinks...)
	if cfg.Audit.RateLimit > 0 {
		sink = soar.NewRateLimitedAuditSink(sink, cfg.Audit.RateLimit, cfg.Audit.Burst)
	}
	sc.AuditSink = sink
	sugar.Infow("Audit sinks initialized", "sinks", len(sinks), "rate_limit", cfg.Audit.RateLimit)
	return nil
}

// Close releases every open store
func (sc *StorageComponents) Close(sugar *zap.SugaredLogger) {
	if sc.Retention != nil {
		sc.Retention.Stop()
	}
	if sc.FileAudit != nil {
		if err := sc.FileAudit.Close(); err != nil {
			sugar.Errorw("Failed to close audit file", "error", err)
		}
	}
	if sc.ClickHouse != nil {
		if err := sc.ClickHouse.Close(); err != nil {
			sugar.Errorw("Failed to close ClickHouse connection", "error", err)
		}
	}
	if sc.MongoDB != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sc.MongoDB.Close(ctx); err != nil {
			sugar.Errorw("Failed to close MongoDB connection", "error", err)
		}
	}
	if sc.Redis != nil {
		if err := sc.Redis.Close(); err != nil {
			sugar.Errorw("Failed to close Redis connection", "error", err)
		}
	}
	if sc.SQLite != nil {
		if err := sc.SQLite.Close(); err != nil {
			sugar.Errorw("Failed to close SQLite database", "error", err)
		}
	}
}
