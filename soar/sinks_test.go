package soar

import (
	"context"
	"testing"
	"time"

	"triage/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSinkEntry(t *testing.T) *core.AuditLog {
	t.Helper()
	entry, err := core.NewAuditLog(core.AuditLog{Playbook: "contain", Stage: 1, Title: "Isolate host"})
	require.NoError(t, err)
	return entry
}

func TestNoOpAuditSink(t *testing.T) {
	assert.NoError(t, NoOpAuditSink{}.Append(context.Background(), "case", newSinkEntry(t)))
}

func TestMultiAuditSink(t *testing.T) {
	first := &recordingSink{}
	failing := &recordingSink{err: errSinkDown}
	last := &recordingSink{}

	sink := NewMultiAuditSink(first, nil, failing, last)
	require.Len(t, sink, 3)

	err := sink.Append(context.Background(), "case-1", newSinkEntry(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, errSinkDown)
	assert.Contains(t, err.Error(), "*soar.recordingSink")

	// a failing sink does not stop later sinks
	assert.Len(t, first.Entries(), 1)
	assert.Len(t, last.Entries(), 1)
	assert.Equal(t, []string{"case-1"}, last.cases)

	assert.NoError(t, NewMultiAuditSink().Append(context.Background(), "case-1", newSinkEntry(t)))
}

func TestRateLimitedAuditSink(t *testing.T) {
	next := &recordingSink{}
	sink := NewRateLimitedAuditSink(next, 1, 0)

	require.NoError(t, sink.Append(context.Background(), "case", newSinkEntry(t)))

	// the burst of one is used up; the next write must wait about a second
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := sink.Append(ctx, "case", newSinkEntry(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit sink rate limit")
	assert.Len(t, next.Entries(), 1)
}
