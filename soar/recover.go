package soar

import (
	"errors"
	"fmt"
	"runtime"

	"go.uber.org/zap"
)

const stackTraceBufferSize = 4096

// ErrStagePanic is returned when a stage action panics.
var ErrStagePanic = errors.New("playbook stage panicked")

// callStage runs a stage action and turns a panic into a permanent error.
// The stack trace is logged, not stored in the audit trail.
func callStage(name string, logger *zap.SugaredLogger, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, stackTraceBufferSize)
			n := runtime.Stack(buf, false)
			logger.Errorw("Playbook stage panic recovered",
				"stage", name,
				"panic", r,
				"stack", string(buf[:n]))
			err = Permanent(fmt.Errorf("%w: %v", ErrStagePanic, r))
		}
	}()
	return fn()
}
