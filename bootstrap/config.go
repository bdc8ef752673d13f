package bootstrap

import (
	"fmt"
	"os"
	"strings"

	"triage/config"
	"triage/core"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger builds the process logger. format "json" writes production JSON lines;
// anything else writes colored console output.
func InitLogger(level, format string) (*zap.Logger, *zap.SugaredLogger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}

	var encoder zapcore.Encoder
	if format == "json" {
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	// Logs go to stderr so command output on stdout stays parseable
	zcore := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), lvl)
	logger := zap.New(zcore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, logger.Sugar(), nil
}

// InitConfig loads the configuration from path, or from the default search paths
// when path is empty.
func InitConfig(path string, sugar *zap.SugaredLogger) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadConfigFile(path)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if viper.ConfigFileUsed() == "" {
		sugar.Info("No config file found, using defaults and env vars")
	}

	sugar.Infow("Startup mode",
		"mode", string(cfg.StartupMode),
		"description", func() string {
			if cfg.IsGracefulMode() {
				return "will skip stores that fail to initialize"
			}
			return "will fail fast on any initialization error"
		}())

	sugar.Infow("Config loaded",
		"data_dir", cfg.DataDir,
		"sqlite_path", cfg.SQLite.Path,
		"whitelist_backend", cfg.Whitelist.Backend,
		"audit_sinks", cfg.Audit.Sinks)
	return cfg, nil
}

// InitSecrets resolves store credentials from the configured secret provider.
// A provider that cannot be created only matters in strict mode.
func InitSecrets(cfg *config.Config, sugar *zap.SugaredLogger) error {
	manager, err := config.NewSecretManager(cfg)
	if err != nil {
		if cfg.IsGracefulMode() {
			sugar.Warnw("Secret provider unavailable, using configured credentials", "provider", cfg.Secrets.Provider, "error", err)
			return nil
		}
		return fmt.Errorf("failed to initialize secret provider: %w", err)
	}
	config.LoadSecrets(cfg, manager)
	sugar.Debugw("Secrets resolved", "provider", cfg.Secrets.Provider)
	return nil
}

// InitEngineLogger routes core construction warnings and traces to sugar
func InitEngineLogger(sugar *zap.SugaredLogger) {
	core.SetLogger(sugar.Named("core"))
}
