package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRetentionManager_PurgesCompletedPlaybooksOnly(t *testing.T) {
	sink := NewSQLiteAuditSink(setupTestSQLite(t))
	ctx := context.Background()

	require.NoError(t, sink.Append(ctx, "case-done", pendingEntry(t, "enrich", 0)))
	last := pendingEntry(t, "enrich", 1)
	last.PlaybookDone = true
	last.SetSuccessful("", nil, "")
	require.NoError(t, sink.Append(ctx, "case-done", last))

	require.NoError(t, sink.Append(ctx, "case-open", pendingEntry(t, "enrich", 0)))

	rm := NewRetentionManager(sink, 7, zaptest.NewLogger(t).Sugar())
	rm.now = func() time.Time { return time.Now().AddDate(0, 0, 30) }

	assert.Equal(t, int64(2), rm.Cleanup(ctx))

	records, err := sink.ListAudit(ctx, "case-done")
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = sink.ListAudit(ctx, "case-open")
	require.NoError(t, err)
	assert.Len(t, records, 1, "unfinished playbooks are kept")
}

func TestRetentionManager_RecentHistoryKept(t *testing.T) {
	sink := NewSQLiteAuditSink(setupTestSQLite(t))
	ctx := context.Background()

	entry := pendingEntry(t, "enrich", 0)
	entry.PlaybookDone = true
	entry.SetSuccessful("", nil, "")
	require.NoError(t, sink.Append(ctx, "case-1", entry))

	rm := NewRetentionManager(sink, 7, nil)
	assert.Zero(t, rm.Cleanup(ctx))
}

func TestRetentionManager_Disabled(t *testing.T) {
	rm := NewRetentionManager(NewSQLiteAuditSink(setupTestSQLite(t)), 0, nil)
	assert.Zero(t, rm.Cleanup(context.Background()))
}

func TestRetentionManager_StartStop(t *testing.T) {
	rm := NewRetentionManager(NewSQLiteAuditSink(setupTestSQLite(t)), 1, nil)
	rm.Start(context.Background())
	rm.Stop()
}
