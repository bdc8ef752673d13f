package core

import (
	"strings"
	"time"
)

// RegistryAction is the operation performed on a registry key or value
type RegistryAction string

const (
	RegistryCreated  RegistryAction = "created"
	RegistryModified RegistryAction = "modified"
	RegistryDeleted  RegistryAction = "deleted"
	RegistryRead     RegistryAction = "read"
)

// IsValid checks if the action is supported
func (a RegistryAction) IsValid() bool {
	switch a {
	case RegistryCreated, RegistryModified, RegistryDeleted, RegistryRead:
		return true
	}
	return false
}

var registryHives = map[string]struct{}{
	"HKEY_LOCAL_MACHINE":  {},
	"HKEY_CURRENT_USER":   {},
	"HKEY_CLASSES_ROOT":   {},
	"HKEY_USERS":          {},
	"HKEY_CURRENT_CONFIG": {},
	"HKLM":                {},
	"HKCU":                {},
	"HKCR":                {},
	"HKU":                 {},
	"HKCC":                {},
}

// ContextRegistry is a Windows registry event
type ContextRegistry struct {
	RelatedDetectionUUID string
	Timestamp            time.Time
	Action               RegistryAction
	Key                  string
	Value                string
	Data                 string
	DataType             string
	Hive                 string
	Path                 string
	UUID                 string
	DetectionRelevance   *int

	warnings
}

// NewContextRegistry validates r and applies defaults
func NewContextRegistry(r ContextRegistry) (*ContextRegistry, error) {
	r.warnings = warnings{}

	if r.Timestamp.IsZero() {
		return nil, invalidf("registry timestamp is required")
	}
	if strings.TrimSpace(r.Key) == "" {
		return nil, invalidf("registry_key cannot be empty")
	}
	if r.Action != "" {
		r.Action = RegistryAction(strings.ToLower(string(r.Action)))
		if !r.Action.IsValid() {
			return nil, invalidf("registry_action must be one of created, modified, deleted, read (got %q)", r.Action)
		}
	}
	if r.Hive != "" {
		r.Hive = strings.ToUpper(r.Hive)
		if _, ok := registryHives[r.Hive]; !ok {
			r.warn("ContextRegistry", "unknown registry hive: %q", r.Hive)
		}
	}

	relevance, err := relevanceOrDefault(r.DetectionRelevance)
	if err != nil {
		return nil, err
	}
	r.DetectionRelevance = relevance
	r.UUID = newUUIDIfEmpty(r.UUID)
	return &r, nil
}

// Relevance returns the detection relevance percentage
func (r *ContextRegistry) Relevance() int { return relevanceValue(r.DetectionRelevance) }

func (r *ContextRegistry) Projection() Projection {
	return Projection{
		{"related_detection_uuid", r.RelatedDetectionUUID},
		{"detection_relevance", r.DetectionRelevance},
		{"timestamp", optionalTime(r.Timestamp)},
		{"registry_action", string(r.Action)},
		{"registry_key", r.Key},
		{"registry_value", r.Value},
		{"registry_data", r.Data},
		{"registry_data_type", r.DataType},
		{"registry_hive", r.Hive},
		{"registry_path", r.Path},
		{"uuid", r.UUID},
	}
}

func (r *ContextRegistry) String() string { return Render(r) }
