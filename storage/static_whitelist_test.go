package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"triage/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const whitelistYAML = `
ip:
  - 10.0.0.1
  - " 10.0.0.2"
domain:
  - "*.corp.example.com"
hash: []
email:
  - soc@example.com
`

func TestParseStaticWhitelist(t *testing.T) {
	store, err := ParseStaticWhitelist([]byte(whitelistYAML))
	require.NoError(t, err)

	ctx := context.Background()
	ips, err := store.Whitelist(ctx, core.IndicatorIP)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, ips)

	domains, err := store.Whitelist(ctx, core.IndicatorDomain)
	require.NoError(t, err)
	assert.Equal(t, []string{"corp.example.com"}, domains)

	urls, err := store.Whitelist(ctx, core.IndicatorURL)
	require.NoError(t, err)
	assert.Empty(t, urls)
}

func TestParseStaticWhitelist_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"unknown category", "countries: [DE]", ErrInvalidCategory},
		{"bad ip", "ip: [999.1.1.1]", core.ErrValidation},
		{"bad hash", "hash: [xyz]", core.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseStaticWhitelist([]byte(tt.data))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := ParseStaticWhitelist([]byte("ip: [unterminated"))
	assert.Error(t, err)
}

func TestLoadStaticWhitelist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "whitelist.yaml")
	require.NoError(t, os.WriteFile(path, []byte(whitelistYAML), 0o600))

	store, err := LoadStaticWhitelist(path)
	require.NoError(t, err)
	assert.Len(t, store.Categories()[core.IndicatorIP], 2)

	_, err = LoadStaticWhitelist(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestStaticWhitelistStore_CategoriesIsACopy(t *testing.T) {
	store, err := ParseStaticWhitelist([]byte(whitelistYAML))
	require.NoError(t, err)

	cats := store.Categories()
	cats[core.IndicatorIP][0] = "changed"

	ips, err := store.Whitelist(context.Background(), core.IndicatorIP)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", ips[0])
}

func TestStaticWhitelistStore_Import(t *testing.T) {
	store, err := ParseStaticWhitelist([]byte(whitelistYAML))
	require.NoError(t, err)
	target := NewSQLiteWhitelistStore(setupTestSQLite(t))
	ctx := context.Background()

	n, err := store.Import(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	ips, err := target.List(ctx, core.IndicatorIP)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, ips)

	emails, err := target.List(ctx, core.IndicatorEmail)
	require.NoError(t, err)
	assert.Equal(t, []string{"soc@example.com"}, emails)
}
