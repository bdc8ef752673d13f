package core

import "time"

// ContextLog is a generic log line, used when no more specific context applies.
// Either SourceIP or SourceDevice must identify where the log came from.
type ContextLog struct {
	RelatedDetectionUUID string
	Timestamp            time.Time
	Message              string
	SourceName           string
	// SourceIP defaults to DefaultIP
	SourceIP           string
	SourceDevice       *ContextDevice
	Flow               *ContextFlow
	Protocol           string
	Type               string
	Severity           string
	Facility           string
	Tags               []string
	CustomFields       map[string]interface{}
	UUID               string
	DetectionRelevance *int
}

// NewContextLog validates l and applies defaults
func NewContextLog(l ContextLog) (*ContextLog, error) {
	var err error
	if l.SourceIP, err = parseOptionalIP("log_source_ip", l.SourceIP); err != nil {
		return nil, err
	}
	if l.SourceDevice == nil && l.SourceIP == DefaultIP {
		return nil, invalidf("either log_source_device or log_source_ip must be set")
	}

	relevance, err := relevanceOrDefault(l.DetectionRelevance)
	if err != nil {
		return nil, err
	}
	l.DetectionRelevance = relevance
	l.UUID = newUUIDIfEmpty(l.UUID)
	return &l, nil
}

// Relevance returns the detection relevance percentage
func (l *ContextLog) Relevance() int { return relevanceValue(l.DetectionRelevance) }

func (l *ContextLog) Projection() Projection {
	var sourceIP interface{}
	if l.SourceIP != DefaultIP {
		sourceIP = l.SourceIP
	}
	return Projection{
		{"related_detection_uuid", l.RelatedDetectionUUID},
		{"detection_relevance", l.DetectionRelevance},
		{"timestamp", optionalTime(l.Timestamp)},
		{"log_message", l.Message},
		{"log_source_name", l.SourceName},
		{"log_source_ip", sourceIP},
		{"log_source_device", nested(l.SourceDevice)},
		{"log_flow", nested(l.Flow)},
		{"log_protocol", l.Protocol},
		{"log_type", l.Type},
		{"log_severity", l.Severity},
		{"log_facility", l.Facility},
		{"log_tags", l.Tags},
		{"log_custom_fields", l.CustomFields},
		{"uuid", l.UUID},
	}
}

func (l *ContextLog) String() string { return Render(l) }
