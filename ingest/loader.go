package ingest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"triage/core"
	"triage/metrics"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed detection_schema.json
var detectionSchema []byte

// DefaultMaxDocumentSize bounds documents when no limit is configured
const DefaultMaxDocumentSize = 1 << 20

// Format is the encoding of a detection document
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from a file extension; anything but .yaml/.yml is JSON
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// Loader errors. Each also matches core.ErrValidation.
var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrDocumentTooLarge  = errors.New("document exceeds maximum size")
	ErrMalformed         = errors.New("malformed document")
	ErrSchema            = errors.New("document does not match detection schema")
)

// Loader turns detection documents into core detections. Documents are checked
// against the detection JSON schema, then struct-validated, then built through the
// core constructors.
type Loader struct {
	schema   *gojsonschema.Schema
	validate *validator.Validate
	maxSize  int64
	strict   bool
	dlq      *DLQ
	logger   *zap.SugaredLogger
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithMaxDocumentSize rejects documents larger than n bytes
func WithMaxDocumentSize(n int64) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.maxSize = n
		}
	}
}

// WithStrict rejects fields the document types do not know
func WithStrict(strict bool) LoaderOption {
	return func(l *Loader) { l.strict = strict }
}

// WithDLQ records rejected documents in dlq
func WithDLQ(dlq *DLQ) LoaderOption {
	return func(l *Loader) { l.dlq = dlq }
}

// NewLoader compiles the detection schema and returns a loader
func NewLoader(logger *zap.SugaredLogger, opts ...LoaderOption) (*Loader, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(detectionSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile detection schema: %w", err)
	}
	l := &Loader{
		schema:   schema,
		validate: validator.New(),
		maxSize:  DefaultMaxDocumentSize,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// LoadFile reads path and loads it in the format its extension names
func (l *Loader) LoadFile(path string) (*core.Detection, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat detection file: %w", err)
	}
	if info.Size() > l.maxSize {
		return nil, l.reject("too_large", path, nil,
			fmt.Errorf("%w: %s is %d bytes (max %d): %w", ErrDocumentTooLarge, path, info.Size(), l.maxSize, core.ErrValidation))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read detection file: %w", err)
	}
	return l.load(data, FormatFromPath(path), path)
}

// LoadDetection parses, validates and builds the detection held in data
func (l *Loader) LoadDetection(data []byte, format Format) (*core.Detection, error) {
	return l.load(data, format, "inline")
}

func (l *Loader) load(data []byte, format Format, source string) (*core.Detection, error) {
	if int64(len(data)) > l.maxSize {
		return nil, l.reject("too_large", source, data,
			fmt.Errorf("%w: %d bytes (max %d): %w", ErrDocumentTooLarge, len(data), l.maxSize, core.ErrValidation))
	}

	jsonData, err := toJSON(data, format)
	if err != nil {
		reason := "parse"
		if errors.Is(err, ErrUnsupportedFormat) {
			reason = "format"
		}
		return nil, l.reject(reason, source, data, err)
	}

	result, err := l.schema.Validate(gojsonschema.NewBytesLoader(jsonData))
	if err != nil {
		return nil, l.reject("parse", source, data, fmt.Errorf("%w: %v: %w", ErrMalformed, err, core.ErrValidation))
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, l.reject("schema", source, data,
			fmt.Errorf("%w: %s: %w", ErrSchema, strings.Join(problems, "; "), core.ErrValidation))
	}

	var doc DetectionDocument
	dec := json.NewDecoder(bytes.NewReader(jsonData))
	dec.UseNumber()
	if l.strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&doc); err != nil {
		return nil, l.reject("parse", source, data, fmt.Errorf("%w: %v: %w", ErrMalformed, err, core.ErrValidation))
	}

	if err := l.validate.Struct(&doc); err != nil {
		return nil, l.reject("validation", source, data, fmt.Errorf("%w: %v", core.ErrValidation, err))
	}

	d, err := l.build(&doc)
	if err != nil {
		return nil, l.reject("construct", source, data, err)
	}

	metrics.DetectionsLoaded.WithLabelValues(string(format)).Inc()
	l.logger.Debugw("Loaded detection", "uuid", d.UUID, "name", d.Name, "source", source)
	return d, nil
}

// reject counts the rejection, hands the document to the DLQ and returns err
func (l *Loader) reject(reason, source string, data []byte, err error) error {
	metrics.DetectionsRejected.WithLabelValues(reason).Inc()
	l.logger.Warnw("Rejected detection document", "source", source, "reason", reason, "error", err)
	if l.dlq != nil {
		dlqErr := l.dlq.Add(&RejectedDocument{
			Source:       source,
			RawDocument:  string(data),
			ErrorReason:  reason,
			ErrorDetails: err.Error(),
		})
		if dlqErr != nil {
			l.logger.Warnf("Failed to write document to DLQ: %v (original error: %v)", dlqErr, err)
		}
	}
	return err
}

// toJSON normalizes a document to JSON so both formats share one schema and decoder
func toJSON(data []byte, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		if !json.Valid(data) {
			return nil, fmt.Errorf("%w: invalid JSON: %w", ErrMalformed, core.ErrValidation)
		}
		return data, nil
	case FormatYAML:
		var raw interface{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v: %w", ErrMalformed, err, core.ErrValidation)
		}
		out, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: YAML cannot be represented as JSON: %v: %w", ErrMalformed, err, core.ErrValidation)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w %q: %w", ErrUnsupportedFormat, format, core.ErrValidation)
}
