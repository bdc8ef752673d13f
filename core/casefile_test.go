package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"triage/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewCaseFile(t *testing.T) {
	SetLogger(zaptest.NewLogger(t).Sugar())
	defer SetLogger(nil)

	d := newTestDetection(t, "Beaconing host", newTestFlow(t, "10.0.0.5", "8.8.8.8", baseTime))
	cf, err := NewCaseFile(d)
	require.NoError(t, err)

	assert.NotEmpty(t, cf.UUID())
	assert.Equal(t, "Beaconing host", cf.Title())
	assert.Len(t, cf.Timeline(KindFlow), 1)

	trail := cf.AuditTrail()
	require.Len(t, trail, 1)
	assert.Equal(t, InitialPlaybook, trail[0].Playbook)
	assert.Equal(t, InitialTitle, trail[0].Title)
	assert.True(t, trail[0].StageDone())
	out, _ := trail[0].Outcome()
	assert.Equal(t, InitialMessage, out.Message)
}

func TestNewCaseFileErrors(t *testing.T) {
	_, err := NewCaseFile()
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewCaseFile(nil)
	assert.ErrorIs(t, err, ErrType)

	undated, err := NewContextProcess(ContextProcess{ProcessUUID: "proc-undated"})
	require.NoError(t, err)
	_, err = NewCaseFile(newTestDetection(t, "Undated", undated))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCaseFileTimelineOrdering(t *testing.T) {
	late := newTestFlow(t, "10.0.0.3", "8.8.8.8", at(3*time.Minute))
	cf, err := NewCaseFile(newTestDetection(t, "Flows", late))
	require.NoError(t, err)

	early := newTestFlow(t, "10.0.0.1", "8.8.8.8", at(1*time.Minute))
	mid := newTestFlow(t, "10.0.0.2", "8.8.8.8", at(2*time.Minute))
	require.NoError(t, cf.AddContext(early))
	require.NoError(t, cf.AddContext(mid))

	flows := TimelineOf[*ContextFlow](cf)
	require.Len(t, flows, 3)
	assert.Same(t, early, flows[0])
	assert.Same(t, mid, flows[1])
	assert.Same(t, late, flows[2])
}

func TestCaseFileHashIndexedOnce(t *testing.T) {
	proc := newTestProcess(t, "proc-1", baseTime)
	cf, err := NewCaseFile(newTestDetection(t, "Process alert", proc))
	require.NoError(t, err)

	require.NoError(t, cf.AddContext(proc))

	assert.Equal(t, []string{testSHA256}, cf.Indicators().Get(IndicatorHash))
	assert.Len(t, cf.Timeline(KindProcess), 1)
}

func TestCaseFileAddContextErrors(t *testing.T) {
	cf, err := NewCaseFile(newTestDetection(t, "Flows", newTestFlow(t, "10.0.0.1", "8.8.8.8", baseTime)))
	require.NoError(t, err)

	var nilFlow *ContextFlow
	assert.ErrorIs(t, cf.AddContext(nilFlow), ErrType)
	assert.ErrorIs(t, cf.AddContext(nil), ErrType)

	undated, err := NewContextProcess(ContextProcess{ProcessUUID: "proc-undated"})
	require.NoError(t, err)
	assert.ErrorIs(t, cf.AddContext(undated), ErrValidation)
	assert.Empty(t, cf.Timeline(KindProcess))
}

func TestCaseFileAddDetectionIsAtomic(t *testing.T) {
	cf, err := NewCaseFile(newTestDetection(t, "First", newTestFlow(t, "10.0.0.1", "8.8.8.8", baseTime)))
	require.NoError(t, err)

	undated, err := NewContextProcess(ContextProcess{ProcessUUID: "proc-undated"})
	require.NoError(t, err)
	bad := newTestDetection(t, "Second", newTestFlow(t, "10.0.0.9", "9.9.9.9", at(time.Minute)), undated)

	assert.ErrorIs(t, cf.AddDetection(bad), ErrValidation)
	assert.Len(t, cf.Detections(), 1)
	assert.Len(t, cf.Timeline(KindFlow), 1)
	assert.False(t, cf.Indicators().Contains(IndicatorIP, "9.9.9.9"))

	good := newTestDetection(t, "Third", newTestFlow(t, "10.0.0.9", "9.9.9.9", at(time.Minute)))
	require.NoError(t, cf.AddDetection(good))
	require.NoError(t, cf.AddDetection(good))
	assert.Len(t, cf.Detections(), 2)
	assert.Equal(t, "First", cf.Title())
}

func TestCaseFileContextByUUID(t *testing.T) {
	flow := newTestFlow(t, "10.0.0.1", "8.8.8.8", baseTime)
	proc := newTestProcess(t, "proc-1", baseTime)
	cf, err := NewCaseFile(newTestDetection(t, "Mixed", flow, proc))
	require.NoError(t, err)

	found, ok := cf.ContextByUUID(flow.UUID, KindAny)
	require.True(t, ok)
	assert.Same(t, flow, found)

	_, ok = cf.ContextByUUID(flow.UUID, KindProcess)
	assert.False(t, ok)

	found, ok = cf.ContextByUUID("proc-1", KindProcess)
	require.True(t, ok)
	assert.Same(t, proc, found)

	_, ok = cf.ContextByUUID("missing", KindAny)
	assert.False(t, ok)
}

// =============================================================================
// Audit trail
// =============================================================================

func TestUpdateAuditUpserts(t *testing.T) {
	cf, err := NewCaseFile(newTestDetection(t, "Audit case", newTestFlow(t, "10.0.0.1", "8.8.8.8", baseTime)))
	require.NoError(t, err)
	ctx := context.Background()

	first := newTestAudit(t, "p", 1).SetSuccessful("first", nil, "")
	second := newTestAudit(t, "p", 1).SetSuccessful("second", nil, "")
	require.NoError(t, cf.UpdateAudit(ctx, first, nil))
	require.NoError(t, cf.UpdateAudit(ctx, second, nil))

	entries := cf.AuditByPlaybookStage("p", 1)
	require.Len(t, entries, 1)
	out, _ := entries[0].Outcome()
	assert.Equal(t, "second", out.Message)
	assert.Equal(t, "Audit case", entries[0].ResultData[ResultDataDetectionName])
	assert.Len(t, cf.AuditTrail(), 2)
}

func TestUpdateAuditPendingThenResolved(t *testing.T) {
	cf, err := NewCaseFile(newTestDetection(t, "Audit case", newTestFlow(t, "10.0.0.1", "8.8.8.8", baseTime)))
	require.NoError(t, err)
	ctx := context.Background()
	sink := &recordingSink{}

	entry := newTestAudit(t, "PB_010", 0)
	require.NoError(t, cf.UpdateAudit(ctx, entry, sink))
	require.NoError(t, cf.UpdateAudit(ctx, entry.SetSuccessful("", nil, ""), sink))

	require.Equal(t, 2, sink.Len())
	assert.False(t, sink.entries[0].StageDone())
	assert.True(t, sink.entries[1].StageDone())
	assert.Len(t, cf.AuditByPlaybook("PB_010"), 1)
}

func TestTriesAndRetries(t *testing.T) {
	cf, err := NewCaseFile(newTestDetection(t, "Audit case", newTestFlow(t, "10.0.0.1", "8.8.8.8", baseTime)))
	require.NoError(t, err)
	ctx := context.Background()

	assert.Equal(t, 0, cf.TriesByPlaybook("PB_030"))
	require.NoError(t, cf.UpdateAudit(ctx, newTestAudit(t, "PB_030", 0).SetError(false, "", nil, nil), nil))
	require.NoError(t, cf.UpdateAudit(ctx, newTestAudit(t, "PB_030", 0).SetError(false, "", nil, nil), nil))
	require.NoError(t, cf.UpdateAudit(ctx, newTestAudit(t, "PB_030", 1), nil))
	assert.Equal(t, 1, cf.TriesByPlaybook("PB_030"))
	assert.Equal(t, []string{"PB_030"}, cf.PlaybooksToRetry())

	done := newTestAudit(t, "PB_030", 2)
	done.PlaybookDone = true
	require.NoError(t, cf.UpdateAudit(ctx, done.SetSuccessful("", nil, ""), nil))
	require.NoError(t, cf.UpdateAudit(ctx, done, nil))
	assert.Equal(t, []string{"PB_030"}, cf.HandledByPlaybooks())
}

func TestUpdateAuditSinkErrorIsSwallowed(t *testing.T) {
	cf, err := NewCaseFile(newTestDetection(t, "Audit case", newTestFlow(t, "10.0.0.1", "8.8.8.8", baseTime)))
	require.NoError(t, err)
	sink := &recordingSink{err: errors.New("disk full")}

	before := testutil.ToFloat64(metrics.AuditSinkErrors)
	err = cf.UpdateAudit(context.Background(), newTestAudit(t, "PB_010", 1), sink)
	assert.NoError(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.AuditSinkErrors))
	assert.Len(t, cf.AuditByPlaybook("PB_010"), 1)
}

func TestUpdateAuditNil(t *testing.T) {
	cf, err := NewCaseFile(newTestDetection(t, "Audit case", newTestFlow(t, "10.0.0.1", "8.8.8.8", baseTime)))
	require.NoError(t, err)
	assert.ErrorIs(t, cf.UpdateAudit(context.Background(), nil, nil), ErrType)
}

func TestUpdateAuditConcurrent(t *testing.T) {
	cf, err := NewCaseFile(newTestDetection(t, "Audit case", newTestFlow(t, "10.0.0.1", "8.8.8.8", baseTime)))
	require.NoError(t, err)
	sink := &recordingSink{}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(stage int) {
			defer wg.Done()
			a, err := NewAuditLog(AuditLog{Playbook: "PB_PAR", Stage: stage % 5, Title: "parallel"})
			if err != nil {
				return
			}
			_ = cf.UpdateAudit(context.Background(), a.SetSuccessful("", nil, ""), sink)
		}(i)
	}
	wg.Wait()

	assert.Len(t, cf.AuditByPlaybook("PB_PAR"), 5)
	assert.Equal(t, 20, sink.Len())
}

func TestCaseFileRender(t *testing.T) {
	cf, err := NewCaseFile(newTestDetection(t, "Render me", newTestFlow(t, "10.0.0.1", "8.8.8.8", baseTime)))
	require.NoError(t, err)

	out := cf.String()
	assert.Contains(t, out, `"title": "Render me"`)
	assert.Contains(t, out, `"context_flows"`)
	assert.NotContains(t, out, `"context_processes"`)
	assert.Contains(t, out, InitialPlaybook)
}

func TestAuditQueriesReturnCopies(t *testing.T) {
	cf, err := NewCaseFile(newTestDetection(t, "Audit case", newTestFlow(t, "10.0.0.1", "8.8.8.8", baseTime)))
	require.NoError(t, err)
	ctx := context.Background()

	entry := newTestAudit(t, "p", 1).SetSuccessful("recorded", nil, "")
	require.NoError(t, cf.UpdateAudit(ctx, entry, nil))

	// changes to the caller's entry or to query results stay out of the trail
	entry.SetError(false, "changed after update", nil, nil)
	cf.AuditByPlaybook("p")[0].SetError(false, "changed via playbook query", nil, nil)
	cf.AuditByPlaybookStage("p", 1)[0].PlaybookDone = true
	cf.AuditTrail()[1].ResultData["injected"] = true

	stored := cf.AuditByPlaybookStage("p", 1)
	require.Len(t, stored, 1)
	out, ok := stored[0].Outcome()
	require.True(t, ok)
	assert.Equal(t, "recorded", out.Message)
	assert.False(t, out.HadErrors)
	assert.False(t, stored[0].PlaybookDone)
	assert.NotContains(t, stored[0].ResultData, "injected")
	assert.Empty(t, cf.PlaybooksToRetry())
}
