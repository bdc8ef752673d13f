package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PurgeCompleted deletes the audit rows of playbooks that completed on a case and
// were last updated before cutoff. Rows of unfinished playbooks are kept so retries
// can still be found.
func (s *SQLiteAuditSink) PurgeCompleted(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.WriteDB.ExecContext(ctx, `
		DELETE FROM case_audit
		WHERE updated_at < ?
		AND (case_id, playbook) IN (
			SELECT case_id, playbook FROM case_audit WHERE playbook_done = 1
		)`, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit entries: %w", err)
	}
	return res.RowsAffected()
}

// RetentionManager periodically purges completed audit history from SQLite
type RetentionManager struct {
	sink          *SQLiteAuditSink
	days          int
	checkInterval time.Duration
	logger        *zap.SugaredLogger
	stopCh        chan struct{}
	wg            sync.WaitGroup
	now           func() time.Time
}

// NewRetentionManager creates a retention manager keeping days of history
func NewRetentionManager(sink *SQLiteAuditSink, days int, logger *zap.SugaredLogger) *RetentionManager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RetentionManager{
		sink:          sink,
		days:          days,
		checkInterval: 24 * time.Hour,
		logger:        logger,
		stopCh:        make(chan struct{}),
		now:           time.Now,
	}
}

// Start runs a cleanup immediately and then once per check interval
func (rm *RetentionManager) Start(ctx context.Context) {
	rm.wg.Add(1)
	go rm.run(ctx)
}

func (rm *RetentionManager) run(ctx context.Context) {
	defer rm.wg.Done()
	ticker := time.NewTicker(rm.checkInterval)
	defer ticker.Stop()

	rm.Cleanup(ctx)
	for {
		select {
		case <-ticker.C:
			rm.Cleanup(ctx)
		case <-ctx.Done():
			return
		case <-rm.stopCh:
			return
		}
	}
}

// Stop stops the manager and waits for a running cleanup to finish
func (rm *RetentionManager) Stop() {
	close(rm.stopCh)
	rm.wg.Wait()
}

// Cleanup performs one retention pass
func (rm *RetentionManager) Cleanup(ctx context.Context) int64 {
	if rm.days <= 0 {
		return 0
	}
	cutoff := rm.now().AddDate(0, 0, -rm.days)
	n, err := rm.sink.PurgeCompleted(ctx, cutoff)
	if err != nil {
		rm.logger.Errorf("Failed to purge audit history: %v", err)
		return 0
	}
	if n > 0 {
		rm.logger.Infow("Purged completed audit history", "rows", n, "cutoff", cutoff)
	}
	return n
}
