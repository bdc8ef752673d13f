package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	testSHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	testMD5    = "d41d8cd98f00b204e9800998ecf8427e"
)

func at(offset time.Duration) time.Time { return baseTime.Add(offset) }

func newTestFlow(t *testing.T, src, dst string, ts time.Time) *ContextFlow {
	t.Helper()
	f, err := NewContextFlow(ContextFlow{
		Timestamp:       ts,
		SourceIP:        src,
		SourcePort:      5000,
		DestinationIP:   dst,
		DestinationPort: 443,
		Protocol:        "TCP",
	})
	require.NoError(t, err)
	return f
}

func newTestProcess(t *testing.T, id string, ts time.Time) *ContextProcess {
	t.Helper()
	p, err := NewContextProcess(ContextProcess{
		ProcessUUID: id,
		Timestamp:   ts,
		Name:        "powershell.exe",
		PID:         intPtr(4242),
		SHA256:      testSHA256,
	})
	require.NoError(t, err)
	return p
}

func newTestDetection(t *testing.T, name string, contexts ...Context) *Detection {
	t.Helper()
	d, err := NewDetection(Detection{Name: name, Timestamp: baseTime})
	require.NoError(t, err)
	for _, c := range contexts {
		require.NoError(t, d.SetContext(c))
	}
	return d
}

// recordingSink captures every entry handed to it
type recordingSink struct {
	mu      sync.Mutex
	entries []*AuditLog
	err     error
}

func (s *recordingSink) Append(_ context.Context, _ string, entry *AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return s.err
}

func (s *recordingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// failingStore fails every lookup
type failingStore struct{ calls int }

func (s *failingStore) Whitelist(context.Context, IndicatorCategory) ([]string, error) {
	s.calls++
	return nil, errors.New("connection refused")
}

// countingStore records which categories were fetched
type countingStore struct {
	lists   MapWhitelistStore
	fetched []IndicatorCategory
}

func (s *countingStore) Whitelist(ctx context.Context, category IndicatorCategory) ([]string, error) {
	s.fetched = append(s.fetched, category)
	return s.lists.Whitelist(ctx, category)
}
