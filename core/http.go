package core

import (
	"strings"
	"time"
)

// HTTPMethod is an HTTP request method
type HTTPMethod string

const (
	HTTPMethodGet     HTTPMethod = "GET"
	HTTPMethodPost    HTTPMethod = "POST"
	HTTPMethodPut     HTTPMethod = "PUT"
	HTTPMethodDelete  HTTPMethod = "DELETE"
	HTTPMethodHead    HTTPMethod = "HEAD"
	HTTPMethodOptions HTTPMethod = "OPTIONS"
	HTTPMethodPatch   HTTPMethod = "PATCH"
)

// IsValid checks if the method is supported
func (m HTTPMethod) IsValid() bool {
	switch m {
	case HTTPMethodGet, HTTPMethodPost, HTTPMethodPut, HTTPMethodDelete,
		HTTPMethodHead, HTTPMethodOptions, HTTPMethodPatch:
		return true
	}
	return false
}

// HTTPType distinguishes plain from TLS transactions
type HTTPType string

const (
	HTTPTypeHTTP  HTTPType = "HTTP"
	HTTPTypeHTTPS HTTPType = "HTTPS"
)

// IsValid checks if the type is supported
func (t HTTPType) IsValid() bool {
	return t == HTTPTypeHTTP || t == HTTPTypeHTTPS
}

// DefaultUserAgent is used when a transaction carries no user agent
const DefaultUserAgent = "Unknown"

// HTTPTransaction is one HTTP request/response pair
type HTTPTransaction struct {
	RelatedDetectionUUID string
	Method               HTTPMethod
	Type                 HTTPType
	Host                 string
	StatusCode           int
	Path                 string
	// FullURL is derived from type, host and path when empty
	FullURL         string
	UserAgent       string
	Referer         string
	StatusMessage   string
	RequestBody     string
	ResponseBody    string
	RequestHeaders  []string
	ResponseHeaders []string
	HTTPVersion     string
	// Certificate is only permitted for HTTPS
	Certificate        *Certificate
	File               *ContextFile
	Timestamp          time.Time
	UUID               string
	DetectionRelevance *int

	warnings
}

// NewHTTPTransaction validates h, derives the path and full URL, and returns the transaction
func NewHTTPTransaction(h HTTPTransaction) (*HTTPTransaction, error) {
	h.warnings = warnings{}

	if !h.Method.IsValid() {
		return nil, invalidf("method must be one of GET, POST, PUT, DELETE, HEAD, OPTIONS, PATCH (got %q)", h.Method)
	}
	if !h.Type.IsValid() {
		return nil, invalidf("type must be one of HTTP, HTTPS (got %q)", h.Type)
	}
	if h.Host == "" {
		return nil, invalidf("host must not be empty")
	}
	if h.StatusCode < 0 || h.StatusCode > 999 {
		return nil, invalidf("status_code must be between 0 and 999 (got %d)", h.StatusCode)
	}

	if !strings.Contains(h.Path, "/") {
		h.warn("HTTPTransaction", "path does not contain any '/': %q", h.Path)
	}
	if !strings.HasPrefix(h.Path, "/") {
		h.Path = "/" + h.Path
	}

	derived := strings.ToLower(string(h.Type)) + "://" + h.Host + h.Path
	if h.FullURL == "" {
		h.FullURL = derived
	} else if h.FullURL != derived {
		h.warn("HTTPTransaction", "full_url %q does not match type, host and/or path (expected %q)", h.FullURL, derived)
	}

	if h.UserAgent == "" {
		h.UserAgent = DefaultUserAgent
	}

	if h.HTTPVersion != "" && !validHTTPVersion(h.HTTPVersion) {
		return nil, invalidf("http_version must be one of 1.x, 2.x, 3.x (got %q)", h.HTTPVersion)
	}

	if h.Certificate != nil {
		if h.Type != HTTPTypeHTTPS {
			return nil, invalidf("certificate is only permitted when type is HTTPS")
		}
		if !h.Certificate.Covers(h.Host) {
			h.warn("HTTPTransaction", "host %q matches neither certificate subject nor subject_alternative_names", h.Host)
		}
	}

	relevance, err := relevanceOrDefault(h.DetectionRelevance)
	if err != nil {
		return nil, err
	}
	h.DetectionRelevance = relevance
	h.UUID = newUUIDIfEmpty(h.UUID)
	h.Timestamp = timeOrNow(h.Timestamp)
	return &h, nil
}

func validHTTPVersion(v string) bool {
	v = strings.TrimPrefix(strings.ToUpper(v), "HTTP/")
	for _, major := range []string{"1.", "2.", "3."} {
		if strings.HasPrefix(v, major) {
			return true
		}
	}
	return v == "2" || v == "3"
}

func (h *HTTPTransaction) Projection() Projection {
	return Projection{
		{"related_detection_uuid", h.RelatedDetectionUUID},
		{"method", string(h.Method)},
		{"type", string(h.Type)},
		{"host", h.Host},
		{"status_code", h.StatusCode},
		{"path", h.Path},
		{"full_url", h.FullURL},
		{"user_agent", h.UserAgent},
		{"referer", h.Referer},
		{"status_message", h.StatusMessage},
		{"request_body", h.RequestBody},
		{"response_body", h.ResponseBody},
		{"request_headers", h.RequestHeaders},
		{"response_headers", h.ResponseHeaders},
		{"http_version", h.HTTPVersion},
		{"certificate", nested(h.Certificate)},
		{"file", nested(h.File)},
		{"timestamp", optionalTime(h.Timestamp)},
		{"detection_relevance", h.DetectionRelevance},
		{"uuid", h.UUID},
	}
}

func (h *HTTPTransaction) String() string { return Render(h) }
