package storage

import (
	"path/filepath"
	"testing"
	"time"

	"triage/core"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// setupTestRedis starts a miniredis server and returns a cache connected to it
func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := NewRedisCache(mr.Addr(), "", 0, 5, zaptest.NewLogger(t).Sugar())
	t.Cleanup(func() { _ = cache.Close() })
	return cache, mr
}

// setupTestSQLite creates a file-backed database under the test's temp dir
func setupTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	db, err := NewSQLite(filepath.Join(t.TempDir(), "triage.db"), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func pendingEntry(t *testing.T, playbook string, stage int) *core.AuditLog {
	t.Helper()
	entry, err := core.NewAuditLog(core.AuditLog{
		Playbook:    playbook,
		Stage:       stage,
		Title:       "Enrich indicators",
		Description: "Look up indicators in threat intel",
		StartTime:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return entry
}

func newTestCase(t *testing.T) *core.CaseFile {
	t.Helper()
	return newFlowCase(t, "10.0.0.7", "8.8.8.8")
}

func newFlowCase(t *testing.T, src, dst string) *core.CaseFile {
	t.Helper()
	d, err := core.NewDetection(core.Detection{
		Name:      "Beaconing to rare domain",
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	flow, err := core.NewContextFlow(core.ContextFlow{
		Timestamp:       time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		SourceIP:        src,
		SourcePort:      51000,
		DestinationIP:   dst,
		DestinationPort: 53,
		Protocol:        "UDP",
	})
	require.NoError(t, err)
	require.NoError(t, d.SetContext(flow))

	cf, err := core.NewCaseFile(d)
	require.NoError(t, err)
	return cf
}
