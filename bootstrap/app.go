package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"triage/config"
	"triage/core"
	"triage/ingest"
	"triage/soar"

	"go.uber.org/zap"
)

// Options override how NewApp builds its logger and finds its config
type Options struct {
	ConfigPath string
	// LogLevel and LogFormat override the logging section when set
	LogLevel  string
	LogFormat string
}

// App is a fully wired triage engine
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	Storage   *StorageComponents
	Loader    *ingest.Loader
	DLQ       *ingest.DLQ
	Runner    *soar.Runner
	Playbooks []*soar.Playbook

	shutdownOnce sync.Once
}

// TriageResult is the outcome of running the playbooks over one case
type TriageResult struct {
	Case        *core.CaseFile
	Results     []*soar.PlaybookResult
	Whitelisted bool
	Archived    bool
}

// NewApp loads the configuration and wires every component
func NewApp(ctx context.Context, opts Options) (*App, error) {
	// Bootstrap logger until the configured one exists
	_, sugar, err := InitLogger(opts.LogLevel, opts.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := InitConfig(opts.ConfigPath, sugar)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.Logging.Format = opts.LogFormat
	}

	logger, sugar, err := InitLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return NewAppWithConfig(ctx, cfg, logger)
}

// NewAppWithConfig wires the components described by cfg
func NewAppWithConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sugar := logger.Sugar()
	app := &App{Config: cfg, Logger: logger, Sugar: sugar}
	InitEngineLogger(sugar)

	if err := EnsureDataDirectories(cfg, sugar); err != nil {
		return nil, fmt.Errorf("pre-flight check failed: %w", err)
	}
	if err := InitSecrets(cfg, sugar); err != nil {
		return nil, err
	}

	sc, err := InitStorage(ctx, cfg, sugar)
	if err != nil {
		return nil, err
	}
	app.Storage = sc

	app.Loader, app.DLQ, err = InitLoader(cfg, sc.SQLite, sugar)
	if err != nil {
		sc.Close(sugar)
		return nil, fmt.Errorf("failed to initialize loader: %w", err)
	}
	app.Runner = InitRunner(cfg, sc.AuditSink, sugar)
	app.Playbooks = DefaultPlaybooks(cfg, sc.Whitelist)
	return app, nil
}

// Start starts the background services
func (a *App) Start(ctx context.Context) {
	if a.Storage.Retention != nil {
		a.Storage.Retention.Start(ctx)
		a.Sugar.Infow("Audit retention started", "retention_days", a.Config.Audit.RetentionDays)
	}
}

// LoadDetections loads every path; the first failure aborts
func (a *App) LoadDetections(paths ...string) ([]*core.Detection, error) {
	detections := make([]*core.Detection, 0, len(paths))
	for _, p := range paths {
		d, err := a.Loader.LoadFile(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		detections = append(detections, d)
	}
	return detections, nil
}

// TriageFiles loads the detections in paths into one case and triages it
func (a *App) TriageFiles(ctx context.Context, paths ...string) (*TriageResult, error) {
	detections, err := a.LoadDetections(paths...)
	if err != nil {
		return nil, err
	}
	return a.Triage(ctx, detections...)
}

// Triage builds a case from detections and runs every playbook over it. Later
// playbooks are skipped once the case turns out whitelisted. The case is archived
// afterwards when an archive is configured.
func (a *App) Triage(ctx context.Context, detections ...*core.Detection) (*TriageResult, error) {
	cf, err := core.NewCaseFile(detections...)
	if err != nil {
		return nil, fmt.Errorf("failed to create case: %w", err)
	}
	res := &TriageResult{Case: cf}

	var errs []error
	for _, pb := range a.Playbooks {
		if res.Whitelisted {
			a.Sugar.Infow("Case whitelisted, skipping playbook", "case", cf.UUID(), "playbook", pb.Name)
			continue
		}
		pr, err := a.Runner.RunPlaybook(ctx, cf, pb)
		if pr != nil {
			res.Results = append(res.Results, pr)
			res.Whitelisted = res.Whitelisted || reportsWhitelisted(pr)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	if a.Storage.Archive != nil {
		archived, err := a.Storage.Archive.Save(ctx, cf)
		if err != nil {
			errs = append(errs, err)
		}
		res.Archived = archived
	}
	return res, errors.Join(errs...)
}

// reportsWhitelisted looks for the whitelist stage's hit in the resolved entries
func reportsWhitelisted(pr *soar.PlaybookResult) bool {
	for _, entry := range pr.Entries {
		data, ok := entry.ResultData[core.ResultDataSuccess].(map[string]interface{})
		if !ok {
			continue
		}
		if hit, _ := data["whitelisted"].(bool); hit {
			return true
		}
	}
	return false
}

// WaitForShutdown blocks until a shutdown signal is received or ctx is done
func (a *App) WaitForShutdown(ctx context.Context) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)
	select {
	case <-c:
	case <-ctx.Done():
	}
}

// Shutdown stops background services and closes every store. It is safe to call twice.
func (a *App) Shutdown() {
	a.shutdownOnce.Do(func() {
		a.Sugar.Info("Shutting down...")
		if a.Storage != nil {
			a.Storage.Close(a.Sugar)
		}
		a.Sugar.Info("Shutdown complete")
		_ = a.Logger.Sync()
	})
}
