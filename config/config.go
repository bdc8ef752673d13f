package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// StartupMode defines how triage handles store initialization failures
type StartupMode string

const (
	// StartupModeStrict fails fast on any initialization error (default)
	StartupModeStrict StartupMode = "strict"
	// StartupModeGraceful skips stores that cannot be reached, logging warnings
	StartupModeGraceful StartupMode = "graceful"
)

// Whitelist backends
const (
	WhitelistBackendRedis  = "redis"
	WhitelistBackendSQLite = "sqlite"
	WhitelistBackendStatic = "static"
)

// Audit sink names
const (
	AuditSinkFile       = "file"
	AuditSinkRedis      = "redis"
	AuditSinkSQLite     = "sqlite"
	AuditSinkClickHouse = "clickhouse"
)

// LoggingConfig configures the process logger
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

// RedisConfig holds the Redis connection used for whitelists and audit lists
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0,lte=15"`
	PoolSize int    `mapstructure:"pool_size" validate:"gte=0"`
}

// SQLiteConfig holds the embedded database settings
type SQLiteConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ClickHouseConfig holds the ClickHouse connection used for the audit history
type ClickHouseConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Addr        string `mapstructure:"addr" validate:"required_if=Enabled true"`
	Database    string `mapstructure:"database"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TLS         bool   `mapstructure:"tls"`
	MaxPoolSize int    `mapstructure:"max_pool_size" validate:"gte=0"`
	// TTLDays is how long audit rows are kept; zero keeps them forever
	TTLDays int `mapstructure:"ttl_days" validate:"gte=0"`
}

// MongoDBConfig holds the case archive connection
type MongoDBConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	URI         string `mapstructure:"uri"`
	Database    string `mapstructure:"database"`
	Collection  string `mapstructure:"collection"`
	MaxPoolSize uint64 `mapstructure:"max_pool_size"`
}

// WhitelistConfig selects and tunes the global whitelist store
type WhitelistConfig struct {
	Backend   string        `mapstructure:"backend" validate:"oneof=redis sqlite static"`
	File      string        `mapstructure:"file"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
	CacheSize int           `mapstructure:"cache_size" validate:"gte=0"`
}

// AuditConfig selects the audit sinks every recorded entry is written to
type AuditConfig struct {
	Sinks     []string `mapstructure:"sinks" validate:"dive,oneof=file redis sqlite clickhouse"`
	File      string   `mapstructure:"file"`
	RateLimit float64  `mapstructure:"rate_limit" validate:"gte=0"`
	Burst     int      `mapstructure:"burst" validate:"gte=0"`
	// RetentionDays purges SQLite rows of completed playbooks; zero keeps them
	RetentionDays int `mapstructure:"retention_days" validate:"gte=0"`
	// CircuitBreaker guards the remote sinks
	CircuitBreaker struct {
		MaxFailures uint32        `mapstructure:"max_failures"`
		Timeout     time.Duration `mapstructure:"timeout"`
	} `mapstructure:"circuit_breaker"`
}

// PlaybooksConfig tunes the stage runner
type PlaybooksConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent" validate:"gte=1"`
	StageTimeout  time.Duration `mapstructure:"stage_timeout" validate:"gte=0"`
	MaxRetries    int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
	MaxTries      int           `mapstructure:"max_tries" validate:"gte=0"`
}

// IngestConfig bounds detection documents accepted by the loader
type IngestConfig struct {
	MaxDocumentSize int64 `mapstructure:"max_document_size" validate:"gte=1"`
	// Strict rejects documents with fields outside the detection schema
	Strict bool `mapstructure:"strict"`
}

// SecretsConfig selects where store passwords are resolved from
type SecretsConfig struct {
	Provider string `mapstructure:"provider" validate:"omitempty,oneof=env vault aws"`
	Vault    struct {
		Address string `mapstructure:"address"`
		Token   string `mapstructure:"token"`
		Path    string `mapstructure:"path"`
	} `mapstructure:"vault"`
	AWS struct {
		Region    string `mapstructure:"region"`
		AccessKey string `mapstructure:"access_key"`
		SecretKey string `mapstructure:"secret_key"`
		SecretID  string `mapstructure:"secret_id"`
	} `mapstructure:"aws"`
}

// Config holds all configuration for triage
type Config struct {
	// StartupMode controls how store initialization failures are handled
	// "strict" (default): Fail fast on any error
	// "graceful": Skip the failing store, log warnings
	StartupMode StartupMode `mapstructure:"startup_mode" validate:"oneof=strict graceful"`
	DataDir     string      `mapstructure:"data_dir"`

	Logging    LoggingConfig    `mapstructure:"logging"`
	Redis      RedisConfig      `mapstructure:"redis"`
	SQLite     SQLiteConfig     `mapstructure:"sqlite"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
	MongoDB    MongoDBConfig    `mapstructure:"mongodb"`
	Whitelist  WhitelistConfig  `mapstructure:"whitelist"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Playbooks  PlaybooksConfig  `mapstructure:"playbooks"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Secrets    SecretsConfig    `mapstructure:"secrets"`
}

func setDefaults() {
	viper.SetDefault("startup_mode", string(StartupModeStrict))
	viper.SetDefault("data_dir", "./data")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)

	viper.SetDefault("sqlite.enabled", true)
	viper.SetDefault("sqlite.path", "") // Empty = derive from data_dir

	viper.SetDefault("clickhouse.enabled", false)
	viper.SetDefault("clickhouse.addr", "localhost:9000")
	viper.SetDefault("clickhouse.database", "triage")
	viper.SetDefault("clickhouse.username", "default")
	viper.SetDefault("clickhouse.password", "")
	viper.SetDefault("clickhouse.tls", false)
	viper.SetDefault("clickhouse.max_pool_size", 10)
	viper.SetDefault("clickhouse.ttl_days", 365)

	viper.SetDefault("mongodb.enabled", false)
	viper.SetDefault("mongodb.uri", "mongodb://localhost:27017")
	viper.SetDefault("mongodb.database", "triage")
	viper.SetDefault("mongodb.collection", "cases")
	viper.SetDefault("mongodb.max_pool_size", 10)

	viper.SetDefault("whitelist.backend", WhitelistBackendSQLite)
	viper.SetDefault("whitelist.file", "")
	viper.SetDefault("whitelist.cache_ttl", 5*time.Minute)
	viper.SetDefault("whitelist.cache_size", 16)

	viper.SetDefault("audit.sinks", []string{AuditSinkFile, AuditSinkSQLite})
	viper.SetDefault("audit.file", "") // Empty = derive from data_dir
	viper.SetDefault("audit.rate_limit", 0)
	viper.SetDefault("audit.burst", 50)
	viper.SetDefault("audit.retention_days", 0)
	viper.SetDefault("audit.circuit_breaker.max_failures", 5)
	viper.SetDefault("audit.circuit_breaker.timeout", 30*time.Second)

	viper.SetDefault("playbooks.max_concurrent", 10)
	viper.SetDefault("playbooks.stage_timeout", 5*time.Minute)
	viper.SetDefault("playbooks.max_retries", 3)
	viper.SetDefault("playbooks.retry_delay", 1*time.Second)
	viper.SetDefault("playbooks.max_tries", 3)

	viper.SetDefault("ingest.max_document_size", 1<<20) // 1MB
	viper.SetDefault("ingest.strict", false)

	viper.SetDefault("secrets.provider", "env")
}

// loadFromEnv sets up environment variable loading
func loadFromEnv() {
	viper.SetEnvPrefix("TRIAGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("data_dir", "TRIAGE_DATA_DIR")
	_ = viper.BindEnv("sqlite.path", "TRIAGE_SQLITE_PATH")
}

// LoadConfig loads configuration from file and environment variables.
// A missing config file is not an error; defaults and environment apply.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/triage")

	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	config.ResolveDataPaths()

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

// LoadConfigFile loads configuration from an explicit file path
func LoadConfigFile(path string) (*Config, error) {
	viper.SetConfigFile(path)
	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	config.ResolveDataPaths()

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

// ResolveDataPaths derives the file paths left empty from DataDir
func (c *Config) ResolveDataPaths() {
	dataDir := c.DataDir
	if dataDir == "" {
		dataDir = "./data"
	}
	if c.SQLite.Path == "" {
		c.SQLite.Path = filepath.Join(dataDir, "triage.db")
	} else if !filepath.IsAbs(c.SQLite.Path) {
		c.SQLite.Path = filepath.Clean(c.SQLite.Path)
	}
	if c.Audit.File == "" {
		c.Audit.File = filepath.Join(dataDir, "audit.log")
	}
	c.DataDir = dataDir
}

// IsGracefulMode returns true if graceful startup mode is enabled
func (c *Config) IsGracefulMode() bool {
	return c.StartupMode == StartupModeGraceful
}

// HasAuditSink reports whether name is one of the configured audit sinks
func (c *Config) HasAuditSink(name string) bool {
	for _, s := range c.Audit.Sinks {
		if s == name {
			return true
		}
	}
	return false
}

func validateConfig(config *Config) error {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return err
	}

	if config.MongoDB.Enabled {
		if !strings.HasPrefix(config.MongoDB.URI, "mongodb://") && !strings.HasPrefix(config.MongoDB.URI, "mongodb+srv://") {
			return fmt.Errorf("invalid MongoDB URI: must start with mongodb:// or mongodb+srv://")
		}
		parsed, err := url.Parse(config.MongoDB.URI)
		if err != nil {
			return fmt.Errorf("invalid MongoDB URI: %w", err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("invalid MongoDB URI: missing host")
		}
		if config.MongoDB.Database == "" {
			return fmt.Errorf("MongoDB database cannot be empty")
		}
	}

	if config.ClickHouse.Enabled {
		if err := validateDatabaseName(config.ClickHouse.Database); err != nil {
			return fmt.Errorf("invalid ClickHouse database: %w", err)
		}
	}

	switch config.Whitelist.Backend {
	case WhitelistBackendRedis:
		if !config.Redis.Enabled {
			return fmt.Errorf("whitelist backend redis requires redis.enabled")
		}
	case WhitelistBackendSQLite:
		if !config.SQLite.Enabled {
			return fmt.Errorf("whitelist backend sqlite requires sqlite.enabled")
		}
	case WhitelistBackendStatic:
		if config.Whitelist.File == "" {
			return fmt.Errorf("whitelist backend static requires whitelist.file")
		}
	}

	for _, sink := range config.Audit.Sinks {
		switch sink {
		case AuditSinkRedis:
			if !config.Redis.Enabled {
				return fmt.Errorf("audit sink redis requires redis.enabled")
			}
		case AuditSinkSQLite:
			if !config.SQLite.Enabled {
				return fmt.Errorf("audit sink sqlite requires sqlite.enabled")
			}
		case AuditSinkClickHouse:
			if !config.ClickHouse.Enabled {
				return fmt.Errorf("audit sink clickhouse requires clickhouse.enabled")
			}
		}
	}

	if config.Audit.CircuitBreaker.MaxFailures == 0 {
		return fmt.Errorf("audit circuit breaker max_failures must be positive")
	}
	if config.Audit.CircuitBreaker.Timeout <= 0 {
		return fmt.Errorf("audit circuit breaker timeout must be positive")
	}
	return nil
}

// validateDatabaseName ensures the database name is safe to use as an identifier
func validateDatabaseName(database string) error {
	if database == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if len(database) > 64 {
		return fmt.Errorf("database name too long (max 64 characters)")
	}
	for _, r := range database {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return fmt.Errorf("database name contains invalid characters (only alphanumeric and underscore allowed)")
		}
	}
	return nil
}
