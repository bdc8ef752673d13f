package core

import (
	"context"
	"slices"
	"sync"
	"time"

	"triage/metrics"
)

// Seed entry of every audit trail
const (
	InitialPlaybook = "None/Initial"
	InitialTitle    = "Initializing CaseFile"
	InitialMessage  = "Initializing CaseFile was successful."
)

// CaseFile aggregates one or more detections with the context gathered for them,
// their merged indicators and the audit trail of playbook actions.
//
// Every exported method takes the case lock, so a CaseFile may be shared between
// workers; each call is one unit of work.
type CaseFile struct {
	mu sync.Mutex

	uuid       string
	createdAt  time.Time
	detections []*Detection
	timelines  map[ContextKind][]Context
	indicators Indicators

	auditTrail         []*AuditLog
	handledByPlaybooks []string
	playbooksToRetry   []string
}

// NewCaseFile opens a case for the given detections and attaches all of their contexts
func NewCaseFile(detections ...*Detection) (*CaseFile, error) {
	return NewCaseFileWithID("", detections...)
}

// NewCaseFileWithID is NewCaseFile with a caller-chosen case UUID, e.g. when a case is
// restored from an archive. An empty id generates one.
func NewCaseFileWithID(id string, detections ...*Detection) (*CaseFile, error) {
	if len(detections) == 0 {
		return nil, invalidf("a case file requires at least one detection")
	}
	for _, d := range detections {
		if d == nil {
			return nil, typef("detections must not contain nil detections")
		}
	}

	seed, err := NewAuditLog(AuditLog{
		Playbook:    InitialPlaybook,
		Stage:       0,
		Title:       InitialTitle,
		Description: "Initializing the CaseFile object",
	})
	if err != nil {
		return nil, fatalf("seed audit entry: %v", err)
	}
	seed.SetSuccessful(InitialMessage, "CaseFile was initialized successfully.", "")

	cf := &CaseFile{
		uuid:       newUUIDIfEmpty(id),
		createdAt:  now(),
		timelines:  make(map[ContextKind][]Context, len(AllContextKinds)),
		indicators: NewIndicators(),
		auditTrail: []*AuditLog{seed},
	}
	for _, d := range detections {
		if err := cf.addDetection(d); err != nil {
			return nil, err
		}
	}
	logger().Infow("Opened case file",
		"case", cf.uuid,
		"detections", len(cf.detections),
		"title", cf.title())
	return cf, nil
}

// UUID returns the case identity
func (cf *CaseFile) UUID() string { return cf.uuid }

// CreatedAt returns when the case was opened
func (cf *CaseFile) CreatedAt() time.Time { return cf.createdAt }

// Title is the name of the case's primary (first) detection
func (cf *CaseFile) Title() string {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	return cf.title()
}

func (cf *CaseFile) title() string {
	if len(cf.detections) == 0 {
		return ""
	}
	return cf.detections[0].Name
}

// Detections returns the detections of the case in the order they were added
func (cf *CaseFile) Detections() []*Detection {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	return slices.Clone(cf.detections)
}

// AddDetection adds a detection and its contexts. Adding a detection that is already
// part of the case is a no-op, and contexts already on a timeline are not added twice.
func (cf *CaseFile) AddDetection(d *Detection) error {
	if d == nil {
		return typef("detection must not be nil")
	}
	cf.mu.Lock()
	defer cf.mu.Unlock()
	return cf.addDetection(d)
}

func (cf *CaseFile) addDetection(d *Detection) error {
	for _, existing := range cf.detections {
		if existing.UUID == d.UUID {
			logger().Debugw("Detection already part of case", "case", cf.uuid, "detection", d.UUID)
			return nil
		}
	}

	// Stage every insertion first so a bad context leaves the case untouched.
	staged := make(map[ContextKind][]Context, len(cf.timelines))
	for k, v := range cf.timelines {
		staged[k] = v
	}
	added := NewIndicators()
	var attached []Context
	for _, c := range d.Contexts() {
		if containsContext(staged[c.Kind()], c.ContextUUID()) {
			continue
		}
		list, err := InsertTimeline(slices.Clone(staged[c.Kind()]), c)
		if err != nil {
			metrics.ContextsRejected.WithLabelValues(string(c.Kind()), "timeline").Inc()
			return err
		}
		staged[c.Kind()] = list
		added.Merge(ExtractIndicators(c))
		attached = append(attached, c)
	}

	cf.timelines = staged
	cf.mergeIndicators(added)
	cf.detections = append(cf.detections, d)
	for _, c := range attached {
		metrics.ContextsAttached.WithLabelValues(string(c.Kind())).Inc()
	}
	return nil
}

// AddContext places c on the timeline of its kind and merges its indicators.
// A context already on the timeline (same UUID) is ignored. On error the case is unchanged.
func (cf *CaseFile) AddContext(c Context) error {
	if isNilContext(c) {
		metrics.ContextsRejected.WithLabelValues("unknown", "nil").Inc()
		return typef("context must not be nil")
	}
	kind := c.Kind()
	if !kind.IsValid() {
		return typef("unsupported context type %T", c)
	}

	cf.mu.Lock()
	defer cf.mu.Unlock()

	if containsContext(cf.timelines[kind], c.ContextUUID()) {
		logger().Debugw("Context already on case timeline", "case", cf.uuid, "kind", kind, "uuid", c.ContextUUID())
		return nil
	}
	list, err := InsertTimeline(cf.timelines[kind], c)
	if err != nil {
		metrics.ContextsRejected.WithLabelValues(string(kind), "timeline").Inc()
		return err
	}
	cf.timelines[kind] = list
	cf.mergeIndicators(ExtractIndicators(c))
	metrics.ContextsAttached.WithLabelValues(string(kind)).Inc()
	return nil
}

func (cf *CaseFile) mergeIndicators(in Indicators) {
	for c, values := range in {
		if len(values) > 0 {
			metrics.IndicatorsExtracted.WithLabelValues(string(c)).Add(float64(len(values)))
		}
	}
	cf.indicators.Merge(in)
}

func containsContext(list []Context, id string) bool {
	for _, c := range list {
		if c.ContextUUID() == id {
			return true
		}
	}
	return false
}

// Timeline returns the contexts of one kind in timestamp order
func (cf *CaseFile) Timeline(kind ContextKind) []Context {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	return slices.Clone(cf.timelines[kind])
}

// Indicators returns a copy of the merged indicator index
func (cf *CaseFile) Indicators() Indicators {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	return cf.indicators.Clone()
}

// ContextByUUID finds a context on the case's timelines. KindAny searches every kind.
func (cf *CaseFile) ContextByUUID(id string, filter ContextKind) (Context, bool) {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	for _, kind := range AllContextKinds {
		if filter != KindAny && filter != kind {
			continue
		}
		for _, c := range cf.timelines[kind] {
			if c.ContextUUID() == id {
				return c, true
			}
		}
	}
	return nil, false
}

// CheckWhitelist reports whether any of the case's merged indicators is on a global whitelist
func (cf *CaseFile) CheckWhitelist(ctx context.Context, store WhitelistStore) (bool, error) {
	cf.mu.Lock()
	in := cf.indicators.Clone()
	id := cf.uuid
	cf.mu.Unlock()

	match, err := checkWhitelist(ctx, in, store, logger().With("case", id))
	return match != nil, err
}

// UpdateAudit records entry in the audit trail, replacing any entry with the same
// playbook and stage, and then hands a copy to sink. Sink failures are logged and
// counted but do not undo the update.
func (cf *CaseFile) UpdateAudit(ctx context.Context, entry *AuditLog, sink AuditSink) error {
	if entry == nil {
		return typef("audit entry must not be nil")
	}

	cf.mu.Lock()
	if entry.PlaybookDone && !slices.Contains(cf.handledByPlaybooks, entry.Playbook) {
		cf.handledByPlaybooks = append(cf.handledByPlaybooks, entry.Playbook)
	}
	if entry.RequestRetry() && !slices.Contains(cf.playbooksToRetry, entry.Playbook) {
		cf.playbooksToRetry = append(cf.playbooksToRetry, entry.Playbook)
	}
	entry.setResultData(ResultDataDetectionName, cf.title())

	key := entry.Key()
	cf.auditTrail = slices.DeleteFunc(cf.auditTrail, func(a *AuditLog) bool {
		return a.Key() == key
	})
	// The trail keeps its own copy so the caller's entry can be resolved further
	cf.auditTrail = append(cf.auditTrail, entry.Clone())

	snapshot := entry.Clone()
	caseID := cf.uuid
	cf.mu.Unlock()

	state := "pending"
	if snapshot.StageDone() {
		state = "resolved"
	}
	metrics.AuditUpdates.WithLabelValues(state).Inc()

	if sink == nil {
		return nil
	}
	if err := sink.Append(ctx, caseID, snapshot); err != nil {
		logger().Errorw("Failed to write audit entry to sink",
			"case", caseID,
			"playbook", snapshot.Playbook,
			"stage", snapshot.Stage,
			"error", err)
		metrics.AuditSinkErrors.Inc()
	}
	return nil
}

// AuditTrail returns copies of the audit entries in the order they were last recorded
func (cf *CaseFile) AuditTrail() []*AuditLog {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	out := make([]*AuditLog, 0, len(cf.auditTrail))
	for _, a := range cf.auditTrail {
		out = append(out, a.Clone())
	}
	return out
}

// AuditByPlaybook returns copies of every entry recorded for playbook
func (cf *CaseFile) AuditByPlaybook(playbook string) []*AuditLog {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	var out []*AuditLog
	for _, a := range cf.auditTrail {
		if a.Playbook == playbook {
			out = append(out, a.Clone())
		}
	}
	return out
}

// AuditByPlaybookStage returns a copy of the entry recorded for a playbook stage, if any.
// The trail holds at most one entry per stage, so the result has length zero or one.
func (cf *CaseFile) AuditByPlaybookStage(playbook string, stage int) []*AuditLog {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	var out []*AuditLog
	for _, a := range cf.auditTrail {
		if a.Playbook == playbook && a.Stage == stage {
			out = append(out, a.Clone())
		}
	}
	return out
}

// TriesByPlaybook counts the stage 0 entries of playbook
func (cf *CaseFile) TriesByPlaybook(playbook string) int {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	n := 0
	for _, a := range cf.auditTrail {
		if a.Playbook == playbook && a.Stage == 0 {
			n++
		}
	}
	return n
}

// HandledByPlaybooks lists the playbooks that reported completion
func (cf *CaseFile) HandledByPlaybooks() []string {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	return slices.Clone(cf.handledByPlaybooks)
}

// PlaybooksToRetry lists the playbooks that requested a retry
func (cf *CaseFile) PlaybooksToRetry() []string {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	return slices.Clone(cf.playbooksToRetry)
}

func (cf *CaseFile) Projection() Projection {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	detections := make([]string, 0, len(cf.detections))
	for _, d := range cf.detections {
		detections = append(detections, Render(d))
	}
	audit := make([]Projection, 0, len(cf.auditTrail))
	for _, a := range cf.auditTrail {
		audit = append(audit, a.Projection())
	}
	return Projection{
		{"uuid", cf.uuid},
		{"title", cf.title()},
		{"created_at", optionalTime(cf.createdAt)},
		{"detections", detections},
		{"handled_by_playbooks", slices.Clone(cf.handledByPlaybooks)},
		{"playbooks_to_retry", slices.Clone(cf.playbooksToRetry)},
		{"context_logs", nestedList(cf.timelines[KindLog])},
		{"context_processes", nestedList(cf.timelines[KindProcess])},
		{"context_flows", nestedList(cf.timelines[KindFlow])},
		{"context_threat_intel", nestedList(cf.timelines[KindThreatIntel])},
		{"context_locations", nestedList(cf.timelines[KindLocation])},
		{"context_devices", nestedList(cf.timelines[KindDevice])},
		{"context_persons", nestedList(cf.timelines[KindPerson])},
		{"context_files", nestedList(cf.timelines[KindFile])},
		{"context_registries", nestedList(cf.timelines[KindRegistry])},
		{"indicators", cf.indicators.Projection()},
		{"audit_trail", audit},
	}
}

func (cf *CaseFile) String() string { return Render(cf) }
