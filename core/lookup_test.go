package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupProcessTree(t *testing.T) {
	parent := newTestProcess(t, "parent-uuid", baseTime)
	parent.Children = []string{"child-uuid", "missing-uuid"}

	child, err := NewContextProcess(ContextProcess{
		ProcessUUID: "child-uuid",
		Timestamp:   at(time.Second),
		Name:        "cmd.exe",
		Parent:      "parent-uuid",
	})
	require.NoError(t, err)

	cf, err := NewCaseFile(newTestDetection(t, "Process tree", parent))
	require.NoError(t, err)
	require.NoError(t, cf.AddContext(child))

	got, ok := Lookup[*ContextProcess](cf, "child-uuid")
	require.True(t, ok)
	assert.Same(t, child, got)

	_, ok = Lookup[*ContextFlow](cf, "child-uuid")
	assert.False(t, ok)

	p, ok := cf.ParentProcess(child)
	require.True(t, ok)
	assert.Same(t, parent, p)

	_, ok = cf.ParentProcess(parent)
	assert.False(t, ok)

	children := cf.ChildProcesses(parent)
	require.Len(t, children, 1)
	assert.Same(t, child, children[0])

	assert.Len(t, TimelineOf[*ContextProcess](cf), 2)
	assert.Empty(t, TimelineOf[*ContextFlow](cf))
}

func TestLookupNilCase(t *testing.T) {
	_, ok := Lookup[*ContextProcess](nil, "x")
	assert.False(t, ok)
}
