package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestConfig returns a valid Config for testing
func newTestConfig() Config {
	viper.Reset()
	setDefaults()
	var c Config
	if err := viper.Unmarshal(&c); err != nil {
		panic(err)
	}
	c.ResolveDataPaths()
	return c
}

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, StartupModeStrict, cfg.StartupMode)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, WhitelistBackendSQLite, cfg.Whitelist.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Whitelist.CacheTTL)
	assert.Equal(t, []string{AuditSinkFile, AuditSinkSQLite}, cfg.Audit.Sinks)
	assert.Equal(t, 10, cfg.Playbooks.MaxConcurrent)
	assert.Equal(t, filepath.Join("data", "triage.db"), filepath.Clean(cfg.SQLite.Path))
	assert.Equal(t, filepath.Join("data", "audit.log"), filepath.Clean(cfg.Audit.File))
	assert.False(t, cfg.IsGracefulMode())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	viper.Reset()
	t.Chdir(t.TempDir())
	t.Setenv("TRIAGE_LOGGING_LEVEL", "debug")
	t.Setenv("TRIAGE_PLAYBOOKS_MAX_CONCURRENT", "3")
	t.Setenv("TRIAGE_DATA_DIR", "/var/lib/triage")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 3, cfg.Playbooks.MaxConcurrent)
	assert.Equal(t, "/var/lib/triage/triage.db", cfg.SQLite.Path)
}

func TestLoadConfigFile(t *testing.T) {
	viper.Reset()
	path := filepath.Join(t.TempDir(), "triage.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
startup_mode: graceful
redis:
  enabled: true
  addr: redis:6379
whitelist:
  backend: redis
  cache_ttl: 30s
audit:
  sinks: [file, redis]
`), 0o600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.True(t, cfg.IsGracefulMode())
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 30*time.Second, cfg.Whitelist.CacheTTL)
	assert.True(t, cfg.HasAuditSink(AuditSinkRedis))
	assert.False(t, cfg.HasAuditSink(AuditSinkClickHouse))
}

func TestLoadConfigFile_Missing(t *testing.T) {
	viper.Reset()
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"bad_log_level", func(c *Config) { c.Logging.Level = "verbose" }, "Level"},
		{"bad_startup_mode", func(c *Config) { c.StartupMode = "lenient" }, "StartupMode"},
		{"unknown_sink", func(c *Config) { c.Audit.Sinks = []string{"kafka"} }, "Sinks"},
		{"redis_sink_disabled", func(c *Config) { c.Audit.Sinks = []string{AuditSinkRedis} }, "requires redis.enabled"},
		{"clickhouse_sink_disabled", func(c *Config) { c.Audit.Sinks = []string{AuditSinkClickHouse} }, "requires clickhouse.enabled"},
		{"redis_whitelist_disabled", func(c *Config) { c.Whitelist.Backend = WhitelistBackendRedis }, "requires redis.enabled"},
		{"static_whitelist_no_file", func(c *Config) { c.Whitelist.Backend = WhitelistBackendStatic }, "requires whitelist.file"},
		{"zero_concurrency", func(c *Config) { c.Playbooks.MaxConcurrent = 0 }, "MaxConcurrent"},
		{"redis_without_addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }, "Addr"},
		{"mongodb_bad_uri", func(c *Config) { c.MongoDB.Enabled = true; c.MongoDB.URI = "http://x" }, "invalid MongoDB URI"},
		{"mongodb_no_host", func(c *Config) { c.MongoDB.Enabled = true; c.MongoDB.URI = "mongodb://" }, "missing host"},
		{"clickhouse_bad_database", func(c *Config) {
			c.ClickHouse.Enabled = true
			c.ClickHouse.Database = "triage; DROP"
		}, "invalid characters"},
		{"breaker_zero_failures", func(c *Config) { c.Audit.CircuitBreaker.MaxFailures = 0 }, "max_failures"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestConfig()
			tt.mutate(&c)
			err := validateConfig(&c)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateDatabaseName(t *testing.T) {
	assert.NoError(t, validateDatabaseName("triage_audit"))
	assert.Error(t, validateDatabaseName(""))
	assert.Error(t, validateDatabaseName("a-b"))
	assert.Error(t, validateDatabaseName(string(make([]byte, 65))))
}
