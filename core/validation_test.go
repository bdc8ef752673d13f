package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePercentage(t *testing.T) {
	tests := []struct {
		name    string
		value   *int
		wantErr bool
	}{
		{"nil is allowed", nil, false},
		{"lower bound", Percent(0), false},
		{"upper bound", Percent(100), false},
		{"above range", Percent(101), true},
		{"below range", Percent(-1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePercentage("certainty", tt.value)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRelevanceDefault(t *testing.T) {
	loc, err := NewLocation(Location{Country: "DE"})
	require.NoError(t, err)
	assert.Equal(t, DefaultRelevance, loc.Relevance())

	_, err = NewLocation(Location{Country: "DE", DetectionRelevance: Percent(150)})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestValidateHashes(t *testing.T) {
	tests := []struct {
		name              string
		md5, sha1, sha256 string
		wantErr           bool
	}{
		{name: "all empty"},
		{name: "valid md5", md5: testMD5},
		{name: "valid sha256", sha256: testSHA256},
		{name: "md5 too short", md5: "d41d8cd9", wantErr: true},
		{name: "sha1 wrong length", sha1: testMD5, wantErr: true},
		{name: "sha256 not hex", sha256: "zz" + testSHA256[2:], wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateHashes("file", tt.md5, tt.sha1, tt.sha256)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	assert.True(t, IsPrivateIP("10.0.0.5"))
	assert.True(t, IsPrivateIP("192.168.1.5"))
	assert.True(t, IsPrivateIP("127.0.0.1"))
	assert.True(t, IsPrivateIP("fd00::1"))
	assert.False(t, IsPrivateIP("8.8.8.8"))
	assert.False(t, IsPrivateIP("not-an-ip"))
}

func TestParseOptionalIP(t *testing.T) {
	ip, err := parseOptionalIP("ip", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultIP, ip)

	ip, err = parseOptionalIP("ip", "::ffff:10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", ip)

	_, err = parseOptionalIP("ip", "300.1.1.1")
	assert.ErrorIs(t, err, ErrValidation)
}
