package soar

import (
	"context"
	"errors"
	"fmt"

	"triage/core"

	"golang.org/x/time/rate"
)

// NoOpAuditSink discards all audit entries
type NoOpAuditSink struct{}

// Append discards the entry
func (NoOpAuditSink) Append(context.Context, string, *core.AuditLog) error {
	return nil
}

// MultiAuditSink hands every entry to each of its sinks in order. All sinks are
// tried; their errors are joined.
type MultiAuditSink []core.AuditSink

// NewMultiAuditSink drops nil sinks
func NewMultiAuditSink(sinks ...core.AuditSink) MultiAuditSink {
	out := make(MultiAuditSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Append writes entry to every sink
func (m MultiAuditSink) Append(ctx context.Context, caseID string, entry *core.AuditLog) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(ctx, caseID, entry); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", s, err))
		}
	}
	return errors.Join(errs...)
}

// RateLimitedAuditSink throttles writes to a slow or metered sink.
// Append blocks until the limiter admits the write or ctx is done.
type RateLimitedAuditSink struct {
	next    core.AuditSink
	limiter *rate.Limiter
}

// NewRateLimitedAuditSink allows perSecond writes per second with the given burst
func NewRateLimitedAuditSink(next core.AuditSink, perSecond float64, burst int) *RateLimitedAuditSink {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedAuditSink{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Append waits for the limiter and forwards the entry
func (s *RateLimitedAuditSink) Append(ctx context.Context, caseID string, entry *core.AuditLog) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("audit sink rate limit: %w", err)
	}
	return s.next.Append(ctx, caseID, entry)
}
