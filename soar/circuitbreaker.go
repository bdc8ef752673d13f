package soar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"triage/core"
	"triage/metrics"

	"go.uber.org/zap"
)

// CircuitBreakerState is the state of an audit sink's breaker
type CircuitBreakerState string

const (
	CircuitBreakerStateClosed   CircuitBreakerState = "closed"
	CircuitBreakerStateOpen     CircuitBreakerState = "open"
	CircuitBreakerStateHalfOpen CircuitBreakerState = "half_open"
)

var (
	// ErrCircuitBreakerOpen is matched by every *SinkUnavailableError
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

	// ErrTooManyRequests is returned while the trial writes of a half-open breaker are in flight
	ErrTooManyRequests = errors.New("too many requests")

	ErrInvalidCircuitBreakerConfig = errors.New("invalid circuit breaker configuration")
)

// CircuitBreakerConfig holds the audit sink breaker settings
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive sink errors that open the circuit
	MaxFailures uint32
	// Timeout is how long an open circuit rejects writes before a trial write goes through
	Timeout time.Duration
	// MaxHalfOpenRequests is the number of concurrent trial writes
	MaxHalfOpenRequests uint32
}

// Validate checks the breaker settings
func (c *CircuitBreakerConfig) Validate() error {
	switch {
	case c.MaxFailures == 0:
		return errors.New("MaxFailures must be greater than 0")
	case c.Timeout <= 0:
		return errors.New("Timeout must be greater than 0")
	case c.MaxHalfOpenRequests == 0:
		return errors.New("MaxHalfOpenRequests must be greater than 0")
	}
	return nil
}

// DefaultCircuitBreakerConfig returns the defaults used for audit sinks
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures:         5,
		Timeout:             30 * time.Second,
		MaxHalfOpenRequests: 1,
	}
}

// SinkUnavailableError is returned by a CircuitBreakerAuditSink whose circuit is open.
// It carries the sink error that opened the circuit.
type SinkUnavailableError struct {
	Sink    string
	Cause   error
	RetryAt time.Time
}

func (e *SinkUnavailableError) Error() string {
	return fmt.Sprintf("audit sink %s unavailable until %s: %v", e.Sink, e.RetryAt.Format(time.RFC3339), e.Cause)
}

// Unwrap reports ErrCircuitBreakerOpen so callers need not know the cause
func (e *SinkUnavailableError) Unwrap() error {
	return ErrCircuitBreakerOpen
}

type breakerTransition struct {
	from, to CircuitBreakerState
}

// sinkBreaker counts consecutive failed writes of one sink. Writes the caller cancelled
// are not the sink's fault and leave the count alone.
type sinkBreaker struct {
	mu       sync.Mutex
	config   CircuitBreakerConfig
	state    CircuitBreakerState
	failures uint32
	openedAt time.Time
	cause    error
	trials   uint32
	now      func() time.Time
}

// admit reports whether a write may go to the sink
func (b *sinkBreaker) admit(sink string) (*breakerTransition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitBreakerStateOpen:
		retryAt := b.openedAt.Add(b.config.Timeout)
		if !b.now().After(retryAt) {
			return nil, &SinkUnavailableError{Sink: sink, Cause: b.cause, RetryAt: retryAt}
		}
		b.trials = 1
		return b.move(CircuitBreakerStateHalfOpen), nil
	case CircuitBreakerStateHalfOpen:
		if b.trials >= b.config.MaxHalfOpenRequests {
			return nil, ErrTooManyRequests
		}
		b.trials++
	}
	return nil, nil
}

// settle records the outcome of an admitted write. A nil err closes a half-open circuit.
func (b *sinkBreaker) settle(err error, cancelled bool) *breakerTransition {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == CircuitBreakerStateHalfOpen && b.trials > 0 {
		b.trials--
	}
	switch {
	case cancelled:
		return nil
	case err == nil:
		b.failures = 0
		b.cause = nil
		if b.state == CircuitBreakerStateHalfOpen {
			return b.move(CircuitBreakerStateClosed)
		}
		return nil
	}

	b.failures++
	b.cause = err
	if b.state == CircuitBreakerStateHalfOpen || b.failures >= b.config.MaxFailures {
		b.openedAt = b.now()
		if b.state != CircuitBreakerStateOpen {
			return b.move(CircuitBreakerStateOpen)
		}
	}
	return nil
}

// move must be called with mu held
func (b *sinkBreaker) move(to CircuitBreakerState) *breakerTransition {
	t := &breakerTransition{from: b.state, to: to}
	b.state = to
	if to != CircuitBreakerStateHalfOpen {
		b.trials = 0
	}
	return t
}

// CircuitBreakerAuditSink stops calling a failing sink until it had time to recover.
// While the circuit is open, Append fails fast with a *SinkUnavailableError naming the
// last sink error. Every state change is logged and counted in
// metrics.AuditSinkBreakerTransitions.
type CircuitBreakerAuditSink struct {
	name    string
	next    core.AuditSink
	breaker *sinkBreaker
	logger  *zap.SugaredLogger
}

// NewCircuitBreakerAuditSink wraps the sink called name with a circuit breaker
func NewCircuitBreakerAuditSink(name string, next core.AuditSink, config CircuitBreakerConfig, logger *zap.SugaredLogger) (*CircuitBreakerAuditSink, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCircuitBreakerConfig, err)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	breaker := &sinkBreaker{
		config: config,
		state:  CircuitBreakerStateClosed,
		now:    time.Now,
	}
	metrics.AuditSinkBreakerOpen.WithLabelValues(name).Set(0)
	return &CircuitBreakerAuditSink{name: name, next: next, breaker: breaker, logger: logger}, nil
}

// Append forwards the entry when the breaker allows it
func (s *CircuitBreakerAuditSink) Append(ctx context.Context, caseID string, entry *core.AuditLog) error {
	t, err := s.breaker.admit(s.name)
	s.report(t, nil)
	if err != nil {
		return err
	}

	err = s.next.Append(ctx, caseID, entry)
	s.report(s.breaker.settle(err, err != nil && ctx.Err() != nil), err)
	return err
}

func (s *CircuitBreakerAuditSink) report(t *breakerTransition, cause error) {
	if t == nil {
		return
	}
	metrics.AuditSinkBreakerTransitions.WithLabelValues(s.name, string(t.from), string(t.to)).Inc()
	if t.to == CircuitBreakerStateOpen {
		metrics.AuditSinkBreakerOpen.WithLabelValues(s.name).Set(1)
		s.logger.Warnw("Audit sink circuit opened",
			"sink", s.name,
			"from", t.from,
			"retry_after", s.breaker.config.Timeout,
			"error", cause)
		return
	}
	metrics.AuditSinkBreakerOpen.WithLabelValues(s.name).Set(0)
	s.logger.Infow("Audit sink circuit state changed", "sink", s.name, "from", t.from, "to", t.to)
}

// Name returns the name the sink was registered with
func (s *CircuitBreakerAuditSink) Name() string {
	return s.name
}

// State returns the breaker state
func (s *CircuitBreakerAuditSink) State() CircuitBreakerState {
	s.breaker.mu.Lock()
	defer s.breaker.mu.Unlock()
	return s.breaker.state
}

// LastError returns the most recent sink error, or nil once a write succeeded again
func (s *CircuitBreakerAuditSink) LastError() error {
	s.breaker.mu.Lock()
	defer s.breaker.mu.Unlock()
	return s.breaker.cause
}

// Failures returns the number of consecutive failed writes
func (s *CircuitBreakerAuditSink) Failures() uint32 {
	s.breaker.mu.Lock()
	defer s.breaker.mu.Unlock()
	return s.breaker.failures
}

// Reset closes the circuit and forgets the failures
func (s *CircuitBreakerAuditSink) Reset() {
	s.breaker.mu.Lock()
	var t *breakerTransition
	if s.breaker.state != CircuitBreakerStateClosed {
		t = s.breaker.move(CircuitBreakerStateClosed)
	}
	s.breaker.failures = 0
	s.breaker.cause = nil
	s.breaker.mu.Unlock()
	s.report(t, nil)
}
