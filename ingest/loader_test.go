package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"triage/core"
	"triage/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const jsonDetection = `{
	"name": "Suspicious PowerShell",
	"timestamp": "2024-03-01T12:00:00Z",
	"rules": [{"id": "rule-1", "name": "Encoded command line", "severity": 80}],
	"process": {
		"process_uuid": "proc-1",
		"timestamp": "2024-03-01T11:59:00Z",
		"name": "powershell.exe",
		"command_line": "powershell -enc SQBFAFgA",
		"sha256": "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
	},
	"device": {"name": "ws-114", "local_ip": "10.0.0.7"}
}`

func newTestLoader(t *testing.T, opts ...LoaderOption) *Loader {
	t.Helper()
	l, err := NewLoader(zaptest.NewLogger(t).Sugar(), opts...)
	require.NoError(t, err)
	return l
}

func TestLoadDetection_JSON(t *testing.T) {
	l := newTestLoader(t)

	d, err := l.LoadDetection([]byte(jsonDetection), FormatJSON)
	require.NoError(t, err)

	assert.Equal(t, "Suspicious PowerShell", d.Name)
	assert.NotEmpty(t, d.UUID)
	require.Len(t, d.Rules, 1)
	assert.Equal(t, "rule-1", d.Rules[0].ID)
	require.NotNil(t, d.Process)
	assert.Equal(t, "proc-1", d.Process.ProcessUUID)
	require.NotNil(t, d.Device)
	assert.True(t, d.Indicators().Contains(core.IndicatorHash,
		"9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"))
}

func TestLoadFile_YAML(t *testing.T) {
	l := newTestLoader(t)
	before := testutil.ToFloat64(metrics.DetectionsLoaded.WithLabelValues(string(FormatYAML)))

	d, err := l.LoadFile(filepath.Join("testdata", "beacon.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "Beaconing to rare domain", d.Name)
	require.Len(t, d.Rules, 1)
	assert.Equal(t, "42", d.Rules[0].ID, "numeric rule ids are coerced to strings")
	require.NotNil(t, d.Flow)
	require.NotNil(t, d.Flow.HTTP)
	assert.Equal(t, core.HTTPMethod("GET"), d.Flow.HTTP.Method)
	assert.True(t, d.Indicators().Contains(core.IndicatorIP, "8.8.8.8"))
	assert.True(t, d.Indicators().Contains(core.IndicatorDomain, "updates.example.net"))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.DetectionsLoaded.WithLabelValues(string(FormatYAML))))
}

func TestLoadDetection_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		format  Format
		reason  string
		wantErr error
	}{
		{
			name:    "unsupported format",
			data:    jsonDetection,
			format:  Format("toml"),
			reason:  "format",
			wantErr: ErrUnsupportedFormat,
		},
		{
			name:    "malformed json",
			data:    `{"name": "x",`,
			format:  FormatJSON,
			reason:  "parse",
			wantErr: ErrMalformed,
		},
		{
			name:    "malformed yaml",
			data:    "name: [unterminated",
			format:  FormatYAML,
			reason:  "parse",
			wantErr: ErrMalformed,
		},
		{
			name:    "missing timestamp",
			data:    `{"name": "No time"}`,
			format:  FormatJSON,
			reason:  "schema",
			wantErr: ErrSchema,
		},
		{
			name:    "fractional rule id",
			data:    `{"name": "x", "timestamp": "2024-03-01T12:00:00Z", "rules": [{"id": 4.5, "name": "r"}]}`,
			format:  FormatJSON,
			reason:  "schema",
			wantErr: ErrSchema,
		},
		{
			name: "bad flow address",
			data: `{"name": "x", "timestamp": "2024-03-01T12:00:00Z",
				"flow": {"timestamp": "2024-03-01T12:00:00Z", "source_ip": "999.1.1.1", "destination_ip": "8.8.8.8"}}`,
			format:  FormatJSON,
			reason:  "validation",
			wantErr: core.ErrValidation,
		},
		{
			name: "dns answer without response",
			data: `{"name": "x", "timestamp": "2024-03-01T12:00:00Z",
				"flow": {"timestamp": "2024-03-01T12:00:00Z", "source_ip": "10.0.0.7", "destination_ip": "8.8.8.8",
					"dns": {"type": "A", "query": "example.com", "query_response": "1.2.3.4"}}}`,
			format:  FormatJSON,
			reason:  "construct",
			wantErr: core.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLoader(t)
			before := testutil.ToFloat64(metrics.DetectionsRejected.WithLabelValues(tt.reason))

			d, err := l.LoadDetection([]byte(tt.data), tt.format)
			require.Error(t, err)
			assert.Nil(t, d)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, core.ErrValidation)
			assert.Equal(t, before+1, testutil.ToFloat64(metrics.DetectionsRejected.WithLabelValues(tt.reason)))
		})
	}
}

func TestLoadDetection_TooLarge(t *testing.T) {
	l := newTestLoader(t, WithMaxDocumentSize(64))

	_, err := l.LoadDetection([]byte(jsonDetection), FormatJSON)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDocumentTooLarge))
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestLoadFile_TooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.json")
	require.NoError(t, os.WriteFile(path, []byte(jsonDetection), 0o600))
	l := newTestLoader(t, WithMaxDocumentSize(64))

	_, err := l.LoadFile(path)
	assert.ErrorIs(t, err, ErrDocumentTooLarge)
}

func TestLoadFile_Missing(t *testing.T) {
	l := newTestLoader(t)
	_, err := l.LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, core.ErrValidation))
}

func TestLoadDetection_Strict(t *testing.T) {
	doc := strings.Replace(jsonDetection, `"name": "Suspicious PowerShell",`,
		`"name": "Suspicious PowerShell", "vendor_extra": true,`, 1)

	_, err := newTestLoader(t).LoadDetection([]byte(doc), FormatJSON)
	require.NoError(t, err, "unknown fields are ignored by default")

	_, err = newTestLoader(t, WithStrict(true)).LoadDetection([]byte(doc), FormatJSON)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestLoadDetection_HTTPFileFallback(t *testing.T) {
	doc := `{"name": "Download", "timestamp": "2024-03-01T12:00:00Z",
		"flow": {"timestamp": "2024-03-01T12:00:00Z", "source_ip": "10.0.0.7", "destination_ip": "93.184.216.34",
			"http": {"method": "GET", "type": "HTTP", "host": "example.com",
				"file": {"name": "payload.exe", "md5": "d41d8cd98f00b204e9800998ecf8427e"}}}}`

	d, err := newTestLoader(t).LoadDetection([]byte(doc), FormatJSON)
	require.NoError(t, err)
	require.NotNil(t, d.File)
	assert.Equal(t, "payload.exe", d.File.Name)
	assert.True(t, d.Indicators().Contains(core.IndicatorHash, "d41d8cd98f00b204e9800998ecf8427e"))
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatYAML, FormatFromPath("a/b.yaml"))
	assert.Equal(t, FormatYAML, FormatFromPath("B.YML"))
	assert.Equal(t, FormatJSON, FormatFromPath("c.json"))
	assert.Equal(t, FormatJSON, FormatFromPath("no-extension"))
}

func TestCoerceRuleID(t *testing.T) {
	id, coerced, err := coerceRuleID("  r-1 ")
	require.NoError(t, err)
	assert.Equal(t, "r-1", id)
	assert.False(t, coerced)

	_, _, err = coerceRuleID(nil)
	assert.ErrorIs(t, err, core.ErrValidation)

	_, _, err = coerceRuleID(true)
	assert.ErrorIs(t, err, core.ErrType)
}
