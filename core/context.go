package core

import "time"

// ContextKind identifies one variant of the Context sum type.
type ContextKind string

const (
	// KindAny disables kind filtering in lookups.
	KindAny         ContextKind = ""
	KindLog         ContextKind = "ContextLog"
	KindProcess     ContextKind = "ContextProcess"
	KindFlow        ContextKind = "ContextFlow"
	KindThreatIntel ContextKind = "ContextThreatIntel"
	KindLocation    ContextKind = "Location"
	KindDevice      ContextKind = "ContextDevice"
	KindPerson      ContextKind = "Person"
	KindFile        ContextKind = "ContextFile"
	KindRegistry    ContextKind = "ContextRegistry"
)

// AllContextKinds lists every context variant in the order CaseFile scans them.
var AllContextKinds = []ContextKind{
	KindLog, KindProcess, KindFlow, KindThreatIntel, KindLocation,
	KindDevice, KindPerson, KindFile, KindRegistry,
}

// IsValid checks if the kind names a context variant
func (k ContextKind) IsValid() bool {
	for _, valid := range AllContextKinds {
		if k == valid {
			return true
		}
	}
	return false
}

// Context is the closed set of evidence kinds that can be attached to a Detection or CaseFile.
// Only types in this package implement it.
type Context interface {
	Projector
	Kind() ContextKind
	ContextUUID() string
	// EventTime is the time used for timeline ordering. A zero value means undated.
	EventTime() time.Time
	isContext()
}

func (*ContextLog) Kind() ContextKind         { return KindLog }
func (*ContextProcess) Kind() ContextKind     { return KindProcess }
func (*ContextFlow) Kind() ContextKind        { return KindFlow }
func (*ContextThreatIntel) Kind() ContextKind { return KindThreatIntel }
func (*Location) Kind() ContextKind           { return KindLocation }
func (*ContextDevice) Kind() ContextKind      { return KindDevice }
func (*Person) Kind() ContextKind             { return KindPerson }
func (*ContextFile) Kind() ContextKind        { return KindFile }
func (*ContextRegistry) Kind() ContextKind    { return KindRegistry }

func (*ContextLog) isContext()         {}
func (*ContextProcess) isContext()     {}
func (*ContextFlow) isContext()        {}
func (*ContextThreatIntel) isContext() {}
func (*Location) isContext()           {}
func (*ContextDevice) isContext()      {}
func (*Person) isContext()             {}
func (*ContextFile) isContext()        {}
func (*ContextRegistry) isContext()    {}

func (c *ContextLog) ContextUUID() string         { return c.UUID }
func (c *ContextProcess) ContextUUID() string     { return c.ProcessUUID }
func (c *ContextFlow) ContextUUID() string        { return c.UUID }
func (c *ContextThreatIntel) ContextUUID() string { return c.UUID }
func (c *Location) ContextUUID() string           { return c.UUID }
func (c *ContextDevice) ContextUUID() string      { return c.UUID }
func (c *Person) ContextUUID() string             { return c.UUID }
func (c *ContextFile) ContextUUID() string        { return c.UUID }
func (c *ContextRegistry) ContextUUID() string    { return c.UUID }

func (c *ContextLog) EventTime() time.Time         { return c.Timestamp }
func (c *ContextProcess) EventTime() time.Time     { return c.Timestamp }
func (c *ContextFlow) EventTime() time.Time        { return c.Timestamp }
func (c *ContextThreatIntel) EventTime() time.Time { return c.Timestamp }
func (c *Location) EventTime() time.Time           { return c.timestamp }
func (c *ContextDevice) EventTime() time.Time      { return c.timestamp }
func (c *Person) EventTime() time.Time             { return c.timestamp }
func (c *ContextFile) EventTime() time.Time        { return c.LastModified }
func (c *ContextRegistry) EventTime() time.Time    { return c.Timestamp }

// isNilContext reports whether c is nil or a typed nil pointer.
func isNilContext(c Context) bool {
	return isNilProjector(c)
}
