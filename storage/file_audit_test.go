package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readJSONLines(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var line map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestFileAuditSink_WritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "audit.log")
	sink, err := NewFileAuditSink(path)
	require.NoError(t, err)
	assert.Equal(t, path, sink.Path())

	ctx := context.Background()
	entry := pendingEntry(t, "enrich", 2)
	require.NoError(t, sink.Append(ctx, "case-1", entry))
	entry.SetSuccessful("lookup complete", nil, "")
	require.NoError(t, sink.Append(ctx, "case-1", entry))
	require.NoError(t, sink.Close())

	lines := readJSONLines(t, path)
	require.Len(t, lines, 2)

	assert.Equal(t, "audit_pending", lines[0]["event"])
	assert.Equal(t, "case-1", lines[0]["case"])
	pending := lines[0]["entry"].(map[string]interface{})
	assert.Equal(t, "enrich", pending["playbook"])
	assert.Equal(t, float64(2), pending["stage"])
	assert.Equal(t, false, pending["stage_done"])
	assert.NotContains(t, pending, "result_message", "pending entries carry no result fields")

	assert.Equal(t, "audit_resolved", lines[1]["event"])
	resolved := lines[1]["entry"].(map[string]interface{})
	assert.Equal(t, "lookup complete", resolved["result_message"])
	assert.Equal(t, true, resolved["stage_done"])
}

func TestFileAuditSink_AppendsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		sink, err := NewFileAuditSink(path)
		require.NoError(t, err)
		require.NoError(t, sink.Append(ctx, "case-1", pendingEntry(t, "enrich", i)))
		require.NoError(t, sink.Close())
	}
	assert.Len(t, readJSONLines(t, path), 2)
}

func TestFileAuditSink_ClosedSink(t *testing.T) {
	sink, err := NewFileAuditSink(filepath.Join(t.TempDir(), "audit.log"))
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close(), "closing twice is a no-op")

	err = sink.Append(context.Background(), "case-1", pendingEntry(t, "enrich", 0))
	assert.ErrorIs(t, err, ErrDatabaseClosed)
}
