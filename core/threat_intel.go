package core

import (
	"strings"
	"time"
)

// HitType classifies a positive verdict
type HitType string

const (
	HitMalicious  HitType = "malicious"
	HitSuspicious HitType = "suspicious"
	HitUnknown    HitType = "unknown"
)

// IsValid checks if the hit type is supported
func (h HitType) IsValid() bool {
	return h == HitMalicious || h == HitSuspicious || h == HitUnknown
}

// ThreatIntel is the verdict of a single engine (e.g. one AV vendor) on an indicator
type ThreatIntel struct {
	TimeRequested time.Time
	Engine        string
	IsKnown       bool
	IsHit         bool
	// HitType is lowercased at construction
	HitType             HitType
	ThreatName          string
	Confidence          *int
	EngineVersion       string
	EngineLastUpdated   time.Time
	DetectionLastSeen   time.Time
	DetectionLastUpdate time.Time
}

// NewThreatIntel validates the verdict. An engine that does not know the indicator
// cannot report a hit, hit type, threat name or confidence.
func NewThreatIntel(t ThreatIntel) (*ThreatIntel, error) {
	if !t.IsKnown {
		switch {
		case t.IsHit:
			return nil, invalidf("is_hit must be false if is_known is false")
		case t.HitType != "":
			return nil, invalidf("hit_type must be empty if is_known is false")
		case t.ThreatName != "":
			return nil, invalidf("threat_name must be empty if is_known is false")
		case t.Confidence != nil:
			return nil, invalidf("confidence must be empty if is_known is false")
		}
	}
	t.HitType = HitType(strings.ToLower(string(t.HitType)))
	if t.IsHit && !t.HitType.IsValid() {
		return nil, invalidf("hit_type must be one of malicious, suspicious or unknown if is_hit is true (got %q)", t.HitType)
	}
	if err := ValidatePercentage("confidence", t.Confidence); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *ThreatIntel) Projection() Projection {
	return Projection{
		{"time_requested", optionalTime(t.TimeRequested)},
		{"engine", t.Engine},
		{"is_known", t.IsKnown},
		{"is_hit", t.IsHit},
		{"hit_type", string(t.HitType)},
		{"threat_name", t.ThreatName},
		{"confidence", t.Confidence},
		{"engine_version", t.EngineVersion},
		{"engine_update", optionalTime(t.EngineLastUpdated)},
		{"detection_last_seen", optionalTime(t.DetectionLastSeen)},
		{"detection_last_update", optionalTime(t.DetectionLastUpdate)},
	}
}

func (t *ThreatIntel) String() string { return Render(t) }

// IndicatorKind names the variant held by a ThreatIntelIndicator
type IndicatorKind string

const (
	IndicatorKindIP             IndicatorKind = "IP"
	IndicatorKindHTTP           IndicatorKind = "HTTP"
	IndicatorKindDNSQuery       IndicatorKind = "DNSQuery"
	IndicatorKindContextFile    IndicatorKind = "ContextFile"
	IndicatorKindContextProcess IndicatorKind = "ContextProcess"
)

// ThreatIntelIndicator is the closed set of things a threat intel lookup can be about:
// IPAddress, *HTTPTransaction, *DNSQuery, *ContextFile or *ContextProcess.
type ThreatIntelIndicator interface {
	IndicatorKind() IndicatorKind
	indicatorValue() interface{}
}

// IPAddress is an address looked up in threat intel
type IPAddress string

func (IPAddress) IndicatorKind() IndicatorKind        { return IndicatorKindIP }
func (*HTTPTransaction) IndicatorKind() IndicatorKind { return IndicatorKindHTTP }
func (*DNSQuery) IndicatorKind() IndicatorKind        { return IndicatorKindDNSQuery }
func (*ContextFile) IndicatorKind() IndicatorKind     { return IndicatorKindContextFile }
func (*ContextProcess) IndicatorKind() IndicatorKind  { return IndicatorKindContextProcess }

func (ip IPAddress) indicatorValue() interface{}       { return string(ip) }
func (h *HTTPTransaction) indicatorValue() interface{} { return nested(h) }
func (q *DNSQuery) indicatorValue() interface{}        { return nested(q) }
func (f *ContextFile) indicatorValue() interface{}     { return nested(f) }
func (p *ContextProcess) indicatorValue() interface{}  { return nested(p) }

// ContextThreatIntel aggregates the verdicts of several engines on one indicator
type ContextThreatIntel struct {
	Indicator            ThreatIntelIndicator
	Source               string
	Timestamp            time.Time
	Verdicts             []*ThreatIntel
	ScoreHit             *int
	ScoreTotal           *int
	ScoreHitSus          *int
	ScoreHitMal          *int
	ScoreKnown           *int
	ScoreUnknown         *int
	RelatedDetectionUUID string
	UUID                 string
	DetectionRelevance   *int
}

// NewContextThreatIntel validates the indicator and verdicts and fills in every score.
// Scores supplied by the caller are cross-checked; missing ones are counted from the verdicts.
func NewContextThreatIntel(c ContextThreatIntel) (*ContextThreatIntel, error) {
	if c.Indicator == nil || isNilIndicator(c.Indicator) {
		return nil, typef("indicator must be one of IP, HTTP, DNSQuery, ContextFile or ContextProcess")
	}
	if ip, ok := c.Indicator.(IPAddress); ok {
		canonical, err := parseIP("indicator", string(ip))
		if err != nil {
			return nil, err
		}
		c.Indicator = IPAddress(canonical)
	}
	for _, v := range c.Verdicts {
		if v == nil {
			return nil, typef("threat_intel_detections must not contain nil verdicts")
		}
	}

	var hit, total, sus, mal int
	if c.ScoreHit != nil && c.ScoreTotal != nil && c.ScoreHitSus != nil && c.ScoreHitMal != nil {
		hit, total = *c.ScoreHit, *c.ScoreTotal
		if total < 0 {
			return nil, invalidf("score_total must be greater or equal to 0")
		}
		if hit < 0 {
			return nil, invalidf("score_hit must be greater or equal to 0")
		}
		if hit > total {
			return nil, invalidf("score_hit (%d) must be smaller or equal to score_total (%d)", hit, total)
		}
	} else {
		total = len(c.Verdicts)
		for _, v := range c.Verdicts {
			if !v.IsHit {
				continue
			}
			hit++
			switch v.HitType {
			case HitSuspicious:
				sus++
			case HitMalicious:
				mal++
			}
		}
	}

	if c.ScoreHitSus != nil {
		if *c.ScoreHitSus < 0 {
			return nil, invalidf("score_hit_sus must be greater or equal to 0")
		}
		if *c.ScoreHitSus > hit {
			return nil, invalidf("score_hit_sus (%d) must be smaller or equal to score_hit (%d)", *c.ScoreHitSus, hit)
		}
		sus = *c.ScoreHitSus
	}
	if c.ScoreHitMal != nil {
		if *c.ScoreHitMal < 0 {
			return nil, invalidf("score_hit_mal must be greater or equal to 0")
		}
		if *c.ScoreHitMal > hit {
			return nil, invalidf("score_hit_mal (%d) must be smaller or equal to score_hit (%d)", *c.ScoreHitMal, hit)
		}
		mal = *c.ScoreHitMal
	}

	var known int
	if c.ScoreKnown != nil {
		known = *c.ScoreKnown
		if known < 0 {
			return nil, invalidf("score_known must be greater or equal to 0")
		}
		if known > total {
			return nil, invalidf("score_known (%d) must be smaller or equal to score_total (%d)", known, total)
		}
	} else {
		for _, v := range c.Verdicts {
			if v.IsKnown {
				known++
			}
		}
	}

	var unknown int
	if c.ScoreUnknown != nil {
		unknown = *c.ScoreUnknown
		if unknown < 0 {
			return nil, invalidf("score_unknown must be greater or equal to 0")
		}
		if unknown > total {
			return nil, invalidf("score_unknown (%d) must be smaller or equal to score_total (%d)", unknown, total)
		}
		if c.ScoreKnown != nil && unknown != total-known {
			return nil, invalidf("score_unknown (%d) must equal score_total - score_known (%d)", unknown, total-known)
		}
	} else {
		unknown = total - known
		if unknown < 0 {
			logger().Errorw("Implicit score_unknown came out negative",
				"score_total", total, "score_known", known, "source", c.Source)
			return nil, fatalf("score_unknown cannot be derived: score_total %d is smaller than score_known %d", total, known)
		}
	}

	c.ScoreHit, c.ScoreTotal = intPtr(hit), intPtr(total)
	c.ScoreHitSus, c.ScoreHitMal = intPtr(sus), intPtr(mal)
	c.ScoreKnown, c.ScoreUnknown = intPtr(known), intPtr(unknown)

	relevance, err := relevanceOrDefault(c.DetectionRelevance)
	if err != nil {
		return nil, err
	}
	c.DetectionRelevance = relevance
	c.UUID = newUUIDIfEmpty(c.UUID)
	return &c, nil
}

func isNilIndicator(i ThreatIntelIndicator) bool {
	if _, ok := i.(IPAddress); ok {
		return false
	}
	p, ok := i.(Projector)
	return !ok || isNilProjector(p)
}

// IndicatorKind returns the kind of the wrapped indicator
func (c *ContextThreatIntel) IndicatorKind() IndicatorKind { return c.Indicator.IndicatorKind() }

// RiskScore is the share of engines knowing the indicator that reported a hit, in percent.
// It is 0 when no engine knows the indicator.
func (c *ContextThreatIntel) RiskScore() int {
	if c.ScoreKnown == nil || *c.ScoreKnown == 0 || c.ScoreHit == nil {
		return 0
	}
	return *c.ScoreHit * 100 / *c.ScoreKnown
}

// Relevance returns the detection relevance percentage
func (c *ContextThreatIntel) Relevance() int { return relevanceValue(c.DetectionRelevance) }

func (c *ContextThreatIntel) Projection() Projection {
	var kind, indicator interface{}
	if c.Indicator != nil {
		kind = string(c.Indicator.IndicatorKind())
		indicator = c.Indicator.indicatorValue()
	}
	return Projection{
		{"type", kind},
		{"indicator", indicator},
		{"source", c.Source},
		{"timestamp", optionalTime(c.Timestamp)},
		{"threat_intel_detections", nestedList(c.Verdicts)},
		{"score_hit", c.ScoreHit},
		{"score_total", c.ScoreTotal},
		{"score_hit_sus", c.ScoreHitSus},
		{"score_hit_mal", c.ScoreHitMal},
		{"score_known", c.ScoreKnown},
		{"score_unknown", c.ScoreUnknown},
		{"related_detection_uuid", c.RelatedDetectionUUID},
		{"detection_relevance", c.DetectionRelevance},
		{"uuid", c.UUID},
	}
}

func (c *ContextThreatIntel) String() string { return Render(c) }
