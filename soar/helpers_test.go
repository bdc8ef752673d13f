package soar

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"triage/core"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// recordingSink captures every entry handed to it
type recordingSink struct {
	mu      sync.Mutex
	entries []*core.AuditLog
	cases   []string
	err     error
}

func (s *recordingSink) Append(_ context.Context, caseID string, entry *core.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	s.cases = append(s.cases, caseID)
	return s.err
}

func (s *recordingSink) Entries() []*core.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*core.AuditLog(nil), s.entries...)
}

var errSinkDown = errors.New("sink down")

func newTestCase(t *testing.T) *core.CaseFile {
	t.Helper()
	d, err := core.NewDetection(core.Detection{
		Name:      "Suspicious PowerShell",
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	flow, err := core.NewContextFlow(core.ContextFlow{
		Timestamp:       time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		SourceIP:        "192.168.1.5",
		SourcePort:      5000,
		DestinationIP:   "1.1.1.1",
		DestinationPort: 443,
		Protocol:        "TCP",
	})
	require.NoError(t, err)
	require.NoError(t, d.SetContext(flow))

	cf, err := core.NewCaseFile(d)
	require.NoError(t, err)
	return cf
}

func newTestRunner(t *testing.T, sink core.AuditSink, opts ...RunnerOption) *Runner {
	t.Helper()
	opts = append([]RunnerOption{WithRetryConfig(fastRetryConfig(t, 0))}, opts...)
	return NewRunner(2, sink, zaptest.NewLogger(t).Sugar(), opts...)
}

func okStage(number int, title string) Stage {
	return Stage{
		Number: number,
		Title:  title,
		Run: func(context.Context, *core.CaseFile) (StageResult, error) {
			return StageResult{Message: title + " done"}, nil
		},
	}
}

func failingStage(number int, title string, err error) Stage {
	return Stage{
		Number: number,
		Title:  title,
		Run: func(context.Context, *core.CaseFile) (StageResult, error) {
			return StageResult{}, err
		},
	}
}
