package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"regexp"
	"time"

	"triage/config"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

var (
	// validDatabaseNameRegex ensures database names are safe identifiers
	validDatabaseNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
)

// ClickHouse holds the ClickHouse connection
type ClickHouse struct {
	Conn   driver.Conn
	Config config.ClickHouseConfig
	Logger *zap.SugaredLogger
}

// NewClickHouse connects to ClickHouse and ensures the configured database exists
func NewClickHouse(cfg config.ClickHouseConfig, logger *zap.SugaredLogger) (*ClickHouse, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if err := validateDatabaseName(cfg.Database); err != nil {
		return nil, fmt.Errorf("invalid database name: %w", err)
	}
	poolSize := cfg.MaxPoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	options := &clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			// connect to default; the audit database may not exist yet
			Database: "default",
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 10 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		MaxOpenConns:     poolSize,
		MaxIdleConns:     max(poolSize/2, 1),
		ConnMaxLifetime:  1 * time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
		DialContext: func(ctx context.Context, addr string) (net.Conn, error) {
			var d net.Dialer
			d.Timeout = 10 * time.Second
			d.KeepAlive = 30 * time.Second
			return d.DialContext(ctx, "tcp", addr)
		},
	}

	if cfg.TLS {
		options.TLS = &tls.Config{MinVersion: tls.VersionTLS13}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	logger.Info("Connected to ClickHouse successfully")

	if err := ensureDatabase(ctx, conn, cfg.Database, logger); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ensure database exists: %w", err)
	}

	return &ClickHouse{
		Conn:   conn,
		Config: cfg,
		Logger: logger,
	}, nil
}

// validateDatabaseName ensures the database name is safe to interpolate
func validateDatabaseName(database string) error {
	if database == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if len(database) > 64 {
		return fmt.Errorf("database name too long (max 64 characters)")
	}
	if !validDatabaseNameRegex.MatchString(database) {
		return fmt.Errorf("database name contains invalid characters (only alphanumeric and underscore allowed)")
	}
	return nil
}

// ensureDatabase creates the database if it doesn't exist
func ensureDatabase(ctx context.Context, conn driver.Conn, database string, logger *zap.SugaredLogger) error {
	query := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", database)
	if err := conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	logger.Infof("Database '%s' is ready", database)
	return nil
}

// HealthCheck performs a health check on the ClickHouse connection
func (ch *ClickHouse) HealthCheck(ctx context.Context) error {
	return ch.Conn.Ping(ctx)
}

// Close closes the ClickHouse connection
func (ch *ClickHouse) Close() error {
	return ch.Conn.Close()
}

// GetVersion returns the ClickHouse server version
func (ch *ClickHouse) GetVersion(ctx context.Context) (string, error) {
	var version string
	if err := ch.Conn.QueryRow(ctx, "SELECT version()").Scan(&version); err != nil {
		return "", fmt.Errorf("failed to get version: %w", err)
	}
	return version, nil
}
