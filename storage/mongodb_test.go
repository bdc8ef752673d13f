package storage

import (
	"context"
	"testing"

	"triage/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewArchivedCase(t *testing.T) {
	cf := newTestCase(t)

	doc, err := NewArchivedCase(cf)
	require.NoError(t, err)
	assert.Equal(t, cf.UUID(), doc.UUID)
	assert.Equal(t, cf.Title(), doc.Title)
	assert.True(t, cf.CreatedAt().Equal(doc.CreatedAt))
	assert.Len(t, doc.Checksum, 16)
	assert.Contains(t, doc.Indicators[core.IndicatorIP], "8.8.8.8")
	assert.NotEmpty(t, doc.Rendered)
	require.NotEmpty(t, doc.Audit, "the seed entry is archived")
	assert.Equal(t, cf.UUID(), doc.Audit[0].CaseID)
}

func TestNewArchivedCase_ChecksumTracksChanges(t *testing.T) {
	cf := newTestCase(t)

	first, err := NewArchivedCase(cf)
	require.NoError(t, err)
	again, err := NewArchivedCase(cf)
	require.NoError(t, err)
	assert.Equal(t, first.Checksum, again.Checksum)

	entry := pendingEntry(t, "enrich", 0)
	entry.PlaybookDone = true
	entry.SetSuccessful("", nil, "")
	require.NoError(t, cf.UpdateAudit(context.Background(), entry, nil))

	changed, err := NewArchivedCase(cf)
	require.NoError(t, err)
	assert.NotEqual(t, first.Checksum, changed.Checksum)
	assert.Equal(t, []string{"enrich"}, changed.Handled)
}

func TestNewArchivedCase_Nil(t *testing.T) {
	_, err := NewArchivedCase(nil)
	assert.ErrorIs(t, err, core.ErrType)
}
