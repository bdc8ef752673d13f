package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"triage/core"
	"triage/metrics"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FileAuditSink writes one JSON line per audit entry to an append-only file,
// keyed by case UUID.
type FileAuditSink struct {
	path   string
	file   *os.File
	logger *zap.Logger
	mu     sync.Mutex
	closed bool
}

// NewFileAuditSink opens (and creates) the audit log at path
func NewFileAuditSink(path string) (*FileAuditSink, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create audit log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "logged_at"
	encoderConfig.MessageKey = "event"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.LevelKey = ""
	encoderConfig.CallerKey = ""

	zcore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(f),
		zapcore.InfoLevel,
	)
	return &FileAuditSink{path: path, file: f, logger: zap.New(zcore)}, nil
}

// Path returns the audit log location
func (s *FileAuditSink) Path() string { return s.path }

// Append writes the entry as a JSON line
func (s *FileAuditSink) Append(_ context.Context, caseID string, entry *core.AuditLog) error {
	if entry == nil {
		return fmt.Errorf("%w: audit entry must not be nil", core.ErrType)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		metrics.AuditSinkWrites.WithLabelValues("file", "error").Inc()
		return ErrDatabaseClosed
	}

	event := "audit_pending"
	if entry.StageDone() {
		event = "audit_resolved"
	}
	s.logger.Info(event,
		zap.String("case", caseID),
		zap.Any("entry", entry.Projection()),
	)
	metrics.AuditSinkWrites.WithLabelValues("file", "success").Inc()
	return nil
}

// Close flushes and closes the file
func (s *FileAuditSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.logger.Sync()
	return s.file.Close()
}
