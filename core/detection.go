package core

import (
	"strings"
	"time"
)

// Detection is one normalized alert: the rules that fired, when, and at most one
// context of each kind.
type Detection struct {
	VendorID    string
	Name        string
	Rules       []*Rule
	Timestamp   time.Time
	Description string
	Tags        []string
	Raw         string
	Source      string
	Severity    *int

	Log         *ContextLog
	Process     *ContextProcess
	Flow        *ContextFlow
	ThreatIntel *ContextThreatIntel
	Location    *Location
	Device      *ContextDevice
	User        *Person
	// File falls back to Flow.HTTP.File when unset
	File     *ContextFile
	Registry *ContextRegistry

	UUID string

	indicators Indicators
}

// NewDetection validates d, resolves the file fallback and derives the indicators
func NewDetection(d Detection) (*Detection, error) {
	if strings.TrimSpace(d.Name) == "" {
		return nil, invalidf("detection name cannot be empty")
	}
	if d.Timestamp.IsZero() {
		return nil, invalidf("detection timestamp is required")
	}
	for _, r := range d.Rules {
		if r == nil {
			return nil, typef("rules must not contain nil rules")
		}
	}
	if err := ValidatePercentage("severity", d.Severity); err != nil {
		return nil, err
	}
	if d.File == nil && d.Flow != nil && d.Flow.HTTP != nil && d.Flow.HTTP.File != nil {
		d.File = d.Flow.HTTP.File
	}

	d.UUID = newUUIDIfEmpty(d.UUID)
	d.indicators = NewIndicators()
	for _, c := range d.Contexts() {
		d.indicators.Merge(ExtractIndicators(c))
	}
	logger().Debugw("Created detection",
		"uuid", d.UUID,
		"name", d.Name,
		"indicators", d.indicators.Count())
	return &d, nil
}

// Indicators returns a copy of the derived indicators
func (d *Detection) Indicators() Indicators {
	return d.indicators.Clone()
}

// Contexts returns the attached contexts in slot order
func (d *Detection) Contexts() []Context {
	var out []Context
	appendIf := func(c Context) {
		if !isNilContext(c) {
			out = append(out, c)
		}
	}
	appendIf(d.Log)
	appendIf(d.Process)
	appendIf(d.Flow)
	appendIf(d.ThreatIntel)
	appendIf(d.Location)
	appendIf(d.Device)
	appendIf(d.User)
	appendIf(d.File)
	appendIf(d.Registry)
	return out
}

// SetContext places c into the slot of its kind, replacing any previous context of
// that kind, and re-derives the indicators from the attached contexts.
func (d *Detection) SetContext(c Context) error {
	if isNilContext(c) {
		return typef("context must not be nil")
	}
	switch v := c.(type) {
	case *ContextLog:
		d.Log = v
	case *ContextProcess:
		d.Process = v
	case *ContextFlow:
		if d.Flow != nil && d.Flow.HTTP != nil && d.File == d.Flow.HTTP.File {
			// the file came from the replaced flow
			d.File = nil
		}
		d.Flow = v
		if d.File == nil && v.HTTP != nil && v.HTTP.File != nil {
			d.File = v.HTTP.File
		}
	case *ContextThreatIntel:
		d.ThreatIntel = v
	case *Location:
		d.Location = v
	case *ContextDevice:
		d.Device = v
	case *Person:
		d.User = v
	case *ContextFile:
		d.File = v
	case *ContextRegistry:
		d.Registry = v
	default:
		return typef("unsupported context type %T", c)
	}
	// A replaced context takes its indicators with it
	d.indicators = NewIndicators()
	for _, attached := range d.Contexts() {
		d.indicators.Merge(ExtractIndicators(attached))
	}
	return nil
}

// ContextByUUID returns the attached context with the given UUID
func (d *Detection) ContextByUUID(id string) (Context, bool) {
	for _, c := range d.Contexts() {
		if c.ContextUUID() == id {
			return c, true
		}
	}
	return nil, false
}

func (d *Detection) Projection() Projection {
	rules := make([]Projection, 0, len(d.Rules))
	for _, r := range d.Rules {
		rules = append(rules, r.Projection())
	}
	return Projection{
		{"id", d.VendorID},
		{"name", d.Name},
		{"description", d.Description},
		{"timestamp", optionalTime(d.Timestamp)},
		{"source", d.Source},
		{"severity", d.Severity},
		{"tags", d.Tags},
		{"raw", d.Raw},
		{"rules", rules},
		{"log", nested(d.Log)},
		{"process", nested(d.Process)},
		{"flow", nested(d.Flow)},
		{"threat_intel", nested(d.ThreatIntel)},
		{"location", nested(d.Location)},
		{"device", nested(d.Device)},
		{"user", nested(d.User)},
		{"file", nested(d.File)},
		{"registry", nested(d.Registry)},
		{"uuid", d.UUID},
	}
}

func (d *Detection) String() string { return Render(d) }
