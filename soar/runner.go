package soar

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"triage/core"
	"triage/metrics"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const tracerName = "triage/soar"

// ErrQueueFull is returned when every execution slot is taken
var ErrQueueFull = errors.New("playbook execution queue full")

// Runner executes playbook stages against case files and keeps the case audit trail
// in step: every stage is recorded as a pending entry before it runs and resolved
// once it finishes.
type Runner struct {
	sink          core.AuditSink
	retry         RetryConfig
	tracer        trace.Tracer
	maxConcurrent int
	semaphore     chan struct{}
	activeCount   int
	activeMu      sync.Mutex
	tries         map[string]int
	triesMu       sync.Mutex
	logger        *zap.SugaredLogger
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithTracer sets the tracer stage and playbook spans are recorded with
func WithTracer(t trace.Tracer) RunnerOption {
	return func(r *Runner) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithRetryConfig replaces the default stage retry configuration
func WithRetryConfig(c RetryConfig) RunnerOption {
	return func(r *Runner) { r.retry = c }
}

// NewRunner creates a runner allowing maxConcurrent playbooks at a time (default 10).
// A nil sink discards audit entries after they are recorded on the case.
func NewRunner(maxConcurrent int, sink core.AuditSink, logger *zap.SugaredLogger, opts ...RunnerOption) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if sink == nil {
		sink = NoOpAuditSink{}
	}

	r := &Runner{
		sink:          sink,
		retry:         DefaultRetryConfig(),
		tracer:        noop.NewTracerProvider().Tracer(tracerName),
		maxConcurrent: maxConcurrent,
		semaphore:     make(chan struct{}, maxConcurrent),
		tries:         make(map[string]int),
		logger:        logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	metrics.PlaybookQueueDepth.Set(float64(maxConcurrent))
	return r
}

func (r *Runner) acquire(ctx context.Context, playbook string) (func(), error) {
	select {
	case r.semaphore <- struct{}{}:
		r.trackActive(1)
		return func() {
			<-r.semaphore
			r.trackActive(-1)
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		r.logger.Warnf("Playbook execution queue full, rejecting execution for playbook %s", playbook)
		return nil, fmt.Errorf("%w (max: %d)", ErrQueueFull, r.maxConcurrent)
	}
}

func (r *Runner) trackActive(delta int) {
	r.activeMu.Lock()
	r.activeCount += delta
	free := r.maxConcurrent - r.activeCount
	r.activeMu.Unlock()
	metrics.PlaybookQueueDepth.Set(float64(free))
}

// Tries returns how often playbook was started on the case, counting both runs of this
// runner and stage 0 entries already on the case's audit trail.
func (r *Runner) Tries(cf *core.CaseFile, playbook string) int {
	r.triesMu.Lock()
	n := r.tries[cf.UUID()+"/"+playbook]
	r.triesMu.Unlock()
	return max(n, cf.TriesByPlaybook(playbook))
}

func (r *Runner) countTry(cf *core.CaseFile, playbook string) {
	r.triesMu.Lock()
	r.tries[cf.UUID()+"/"+playbook]++
	r.triesMu.Unlock()
}

// RunStage runs a single stage outside of a playbook run
func (r *Runner) RunStage(ctx context.Context, cf *core.CaseFile, playbook string, stage Stage) (*core.AuditLog, error) {
	if cf == nil {
		return nil, fmt.Errorf("%w: case file must not be nil", core.ErrType)
	}
	if stage.Run == nil {
		return nil, fmt.Errorf("%w: stage %d has no function", ErrInvalidPlaybook, stage.Number)
	}
	release, err := r.acquire(ctx, playbook)
	if err != nil {
		return nil, err
	}
	defer release()
	return r.runStage(ctx, cf, playbook, stage, false)
}

func (r *Runner) runStage(ctx context.Context, cf *core.CaseFile, playbook string, stage Stage, last bool) (*core.AuditLog, error) {
	ctx, span := r.tracer.Start(ctx, "soar.stage", trace.WithAttributes(
		attribute.String("triage.case", cf.UUID()),
		attribute.String("triage.playbook", playbook),
		attribute.Int("triage.stage", stage.Number),
	))
	defer span.End()

	entry, err := core.NewAuditLog(core.AuditLog{
		Playbook:        playbook,
		Stage:           stage.Number,
		Title:           stage.Title,
		Description:     stage.Description,
		IsTicketRelated: stage.IsTicketRelated,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	// The case keeps the pending copy until the resolved entry replaces it.
	if err := cf.UpdateAudit(ctx, entry.Clone(), r.sink); err != nil {
		return nil, err
	}

	runCtx := ctx
	if stage.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, stage.Timeout)
		defer cancel()
	}
	retry := r.retry
	if stage.Retry != nil {
		retry = *stage.Retry
	}
	if retry.Logger == nil {
		retry.Logger = r.logger
	}

	r.logger.Infow("Executing playbook stage",
		"case", cf.UUID(),
		"playbook", playbook,
		"stage", stage.Number,
		"title", stage.Title,
		"timeout", stage.Timeout)

	start := time.Now()
	var result StageResult
	stageName := fmt.Sprintf("%s/%d", playbook, stage.Number)
	runErr := ExecuteWithRetry(runCtx, func() error {
		return callStage(stageName, r.logger, func() error {
			var err error
			result, err = stage.Run(runCtx, cf)
			return err
		})
	}, retry)
	duration := time.Since(start)
	metrics.StageDuration.WithLabelValues(playbook).Observe(duration.Seconds())

	var outcome string
	switch {
	case runErr != nil:
		entry.SetError(false, "", runErr.Error(), runErr)
		outcome = "error"
	case result.Warning != "":
		entry.SetWarning(result.TicketNumber != "", result.Warning, result.Data)
		if result.TicketNumber != "" {
			entry.RelatedTicketNumber = result.TicketNumber
		}
		outcome = "warning"
	default:
		entry.SetSuccessful(result.Message, result.Data, result.TicketNumber)
		outcome = "success"
	}
	entry.PlaybookDone = last && runErr == nil

	if err := cf.UpdateAudit(ctx, entry, r.sink); err != nil {
		return nil, err
	}
	metrics.StageExecutions.WithLabelValues(playbook, outcome).Inc()
	span.SetAttributes(attribute.String("triage.stage.result", outcome))

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		r.logger.Warnw("Playbook stage failed",
			"case", cf.UUID(),
			"playbook", playbook,
			"stage", stage.Number,
			"duration", duration,
			"error", runErr)
		return entry.Clone(), fmt.Errorf("stage %d of %s failed: %w", stage.Number, playbook, runErr)
	}

	r.logger.Infow("Playbook stage executed",
		"case", cf.UUID(),
		"playbook", playbook,
		"stage", stage.Number,
		"result", outcome,
		"duration", duration)
	return entry.Clone(), nil
}

// RunPlaybook runs the stages of pb in stage order and stops at the first failing stage.
// The last stage marks the playbook done. A playbook that already completed on the case,
// or that used up its MaxTries, is rejected without touching the audit trail.
func (r *Runner) RunPlaybook(ctx context.Context, cf *core.CaseFile, pb *Playbook) (*PlaybookResult, error) {
	if cf == nil {
		return nil, fmt.Errorf("%w: case file must not be nil", core.ErrType)
	}
	if err := pb.Validate(); err != nil {
		return nil, err
	}
	if slices.Contains(cf.HandledByPlaybooks(), pb.Name) {
		metrics.PlaybookRuns.WithLabelValues(pb.Name, "rejected").Inc()
		return nil, fmt.Errorf("%w: %s on case %s", ErrPlaybookHandled, pb.Name, cf.UUID())
	}
	if tries := r.Tries(cf, pb.Name); pb.MaxTries > 0 && tries >= pb.MaxTries {
		r.logger.Warnw("Playbook exceeded maximum tries",
			"case", cf.UUID(),
			"playbook", pb.Name,
			"tries", tries,
			"max_tries", pb.MaxTries)
		metrics.PlaybookRuns.WithLabelValues(pb.Name, "rejected").Inc()
		return nil, fmt.Errorf("%w: %s tried %d of %d times", ErrMaxTriesExceeded, pb.Name, tries, pb.MaxTries)
	}

	release, err := r.acquire(ctx, pb.Name)
	if err != nil {
		metrics.PlaybookRuns.WithLabelValues(pb.Name, "rejected").Inc()
		return nil, err
	}
	defer release()
	r.countTry(cf, pb.Name)

	ctx, span := r.tracer.Start(ctx, "soar.playbook", trace.WithAttributes(
		attribute.String("triage.case", cf.UUID()),
		attribute.String("triage.playbook", pb.Name),
	))
	defer span.End()

	result := &PlaybookResult{
		Playbook:  pb.Name,
		CaseID:    cf.UUID(),
		StartedAt: time.Now(),
	}
	r.logger.Infow("Starting playbook execution",
		"case", cf.UUID(),
		"playbook", pb.Name,
		"stages", len(pb.Stages))

	stages := slices.Clone(pb.Stages)
	slices.SortStableFunc(stages, func(a, b Stage) int { return a.Number - b.Number })

	for i, stage := range stages {
		entry, err := r.runStage(ctx, cf, pb.Name, stage, i == len(stages)-1)
		if entry != nil {
			result.Entries = append(result.Entries, entry)
		}
		if err != nil {
			result.Duration = time.Since(result.StartedAt)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			metrics.PlaybookRuns.WithLabelValues(pb.Name, "failed").Inc()
			return result, fmt.Errorf("playbook %s failed: %w", pb.Name, err)
		}
	}

	result.Done = true
	result.Duration = time.Since(result.StartedAt)
	metrics.PlaybookRuns.WithLabelValues(pb.Name, "done").Inc()
	r.logger.Infow("Playbook completed",
		"case", cf.UUID(),
		"playbook", pb.Name,
		"duration", result.Duration)
	return result, nil
}
