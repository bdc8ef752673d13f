package bootstrap

import (
	"triage/config"
	"triage/core"
	"triage/ingest"
	"triage/soar"
	"triage/storage"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// WhitelistPlaybook is the name of the built-in global whitelist playbook
const WhitelistPlaybook = "global-whitelist"

// InitLoader creates the detection loader. Rejected documents go to the DLQ when
// SQLite is available.
func InitLoader(cfg *config.Config, sqlite *storage.SQLite, sugar *zap.SugaredLogger) (*ingest.Loader, *ingest.DLQ, error) {
	opts := []ingest.LoaderOption{
		ingest.WithMaxDocumentSize(cfg.Ingest.MaxDocumentSize),
		ingest.WithStrict(cfg.Ingest.Strict),
	}
	var dlq *ingest.DLQ
	if sqlite != nil {
		dlq = ingest.NewDLQ(sqlite.WriteDB, sugar.Named("dlq"))
		opts = append(opts, ingest.WithDLQ(dlq))
	}
	loader, err := ingest.NewLoader(sugar.Named("ingest"), opts...)
	if err != nil {
		return nil, nil, err
	}
	sugar.Infow("Detection loader initialized",
		"max_document_size", cfg.Ingest.MaxDocumentSize,
		"strict", cfg.Ingest.Strict,
		"dlq", dlq != nil)
	return loader, dlq, nil
}

// InitRunner creates the playbook runner writing to sink
func InitRunner(cfg *config.Config, sink core.AuditSink, sugar *zap.SugaredLogger) *soar.Runner {
	retry := soar.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Playbooks.MaxRetries + 1
	if cfg.Playbooks.RetryDelay > 0 {
		retry.BaseDelay = cfg.Playbooks.RetryDelay
	}
	retry.Logger = sugar

	return soar.NewRunner(cfg.Playbooks.MaxConcurrent, sink, sugar.Named("soar"),
		soar.WithRetryConfig(retry),
		soar.WithTracer(otel.Tracer("triage/soar")),
	)
}

// DefaultPlaybooks returns the playbooks every case is run through
func DefaultPlaybooks(cfg *config.Config, whitelist core.WhitelistStore) []*soar.Playbook {
	stage := soar.WhitelistStage(1, whitelist)
	stage.Timeout = cfg.Playbooks.StageTimeout
	return []*soar.Playbook{
		{
			Name:        WhitelistPlaybook,
			Description: "Drop cases whose indicators are on a global whitelist",
			MaxTries:    cfg.Playbooks.MaxTries,
			Stages:      []soar.Stage{stage},
		},
	}
}
