package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ContextsAttached = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_contexts_attached_total",
			Help: "Total number of contexts attached to case files",
		},
		[]string{"kind"},
	)

	ContextsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_contexts_rejected_total",
			Help: "Total number of contexts rejected on attachment",
		},
		[]string{"kind", "reason"},
	)

	IndicatorsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_indicators_extracted_total",
			Help: "Total number of indicators extracted from contexts, before deduplication",
		},
		[]string{"category"},
	)

	WhitelistChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_whitelist_checks_total",
			Help: "Total number of whitelist checks",
		},
		[]string{"result"},
	)

	WhitelistHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_whitelist_hits_total",
			Help: "Total number of whitelist matches by indicator category",
		},
		[]string{"category"},
	)

	AuditUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_audit_updates_total",
			Help: "Total number of audit trail updates",
		},
		[]string{"state"},
	)

	DetectionsLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_detections_loaded_total",
			Help: "Total number of detection documents loaded",
		},
		[]string{"source"},
	)

	DetectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_detections_rejected_total",
			Help: "Total number of detection documents rejected during loading",
		},
		[]string{"reason"},
	)
)

// Audit sink and stage runner metrics.
//
// Sink errors never fail an audit update; these counters are the only
// place such failures surface besides the log.
var (
	// AuditSinkWrites counts audit entries handed to a sink.
	// Labels:
	//   - sink: "redis", "sqlite", "clickhouse", "file", ...
	//   - result: "success" or "error"
	AuditSinkWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "audit_sink",
			Name:      "writes_total",
			Help:      "Total number of audit entries written to sinks",
		},
		[]string{"sink", "result"},
	)

	// AuditSinkErrors counts sink failures swallowed by CaseFile.UpdateAudit.
	AuditSinkErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "audit_sink",
			Name:      "errors_total",
			Help:      "Total number of audit sink failures during audit updates",
		},
	)

	// AuditSinkBreakerTransitions counts circuit breaker state changes of remote sinks.
	// Labels:
	//   - sink: sink name
	//   - from, to: "closed", "open" or "half_open"
	AuditSinkBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "audit_sink",
			Name:      "breaker_transitions_total",
			Help:      "Total number of audit sink circuit breaker state changes",
		},
		[]string{"sink", "from", "to"},
	)

	// AuditSinkBreakerOpen is 1 while a sink's circuit is open and 0 otherwise.
	AuditSinkBreakerOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "triage",
			Subsystem: "audit_sink",
			Name:      "breaker_open",
			Help:      "Whether the audit sink circuit breaker is open",
		},
		[]string{"sink"},
	)

	// StageExecutions counts playbook stage runs.
	// Labels:
	//   - playbook: playbook name
	//   - result: "success", "warning", "error" or "skipped"
	StageExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "playbook",
			Name:      "stage_executions_total",
			Help:      "Total number of playbook stage executions",
		},
		[]string{"playbook", "result"},
	)

	// StageDuration measures stage execution time including retries.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "triage",
			Subsystem: "playbook",
			Name:      "stage_duration_seconds",
			Help:      "Time spent executing playbook stages",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"playbook"},
	)

	// PlaybookQueueDepth is the number of free playbook execution slots.
	PlaybookQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "triage",
			Subsystem: "playbook",
			Name:      "queue_free_slots",
			Help:      "Number of free playbook execution slots",
		},
	)

	// PlaybookRuns counts playbook runs by outcome.
	// Labels:
	//   - playbook: playbook name
	//   - result: "done", "failed", "rejected"
	PlaybookRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "playbook",
			Name:      "runs_total",
			Help:      "Total number of playbook runs",
		},
		[]string{"playbook", "result"},
	)

	// CacheHits counts whitelist cache hits.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of whitelist cache hits",
		},
		[]string{"category"},
	)

	// CacheMisses counts whitelist cache misses.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of whitelist cache misses",
		},
		[]string{"category"},
	)

	// CacheErrors counts failed reads from the backing cache.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "cache",
			Name:      "errors_total",
			Help:      "Total number of cache operation errors",
		},
		[]string{"operation"},
	)
)
