package core

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	loggerMu  sync.RWMutex
	pkgLogger = zap.NewNop().Sugar()
)

// SetLogger sets the logger used for construction warnings and engine debug output.
// Passing nil restores the no-op logger.
func SetLogger(l *zap.SugaredLogger) {
	if l == nil {
		l = zap.NewNop().Sugar()
	}
	loggerMu.Lock()
	pkgLogger = l
	loggerMu.Unlock()
}

func logger() *zap.SugaredLogger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return pkgLogger
}

// warnings collects non-fatal construction anomalies for an entity.
type warnings struct {
	list []string
}

func (w *warnings) warn(entity, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	w.list = append(w.list, msg)
	logger().Warnw(msg, "entity", entity)
}

// Warnings returns the non-fatal anomalies recorded while the entity was constructed.
func (w *warnings) Warnings() []string {
	if len(w.list) == 0 {
		return nil
	}
	out := make([]string, len(w.list))
	copy(out, w.list)
	return out
}
