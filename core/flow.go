package core

import (
	"math/rand/v2"
	"time"
)

// FlowDirection describes which side of the perimeter each flow endpoint sits on
type FlowDirection string

const (
	FlowLocalToRemote  FlowDirection = "L2R"
	FlowRemoteToLocal  FlowDirection = "R2L"
	FlowLocalToLocal   FlowDirection = "L2L"
	FlowRemoteToRemote FlowDirection = "R2R"
)

// IsValid checks if the direction is supported
func (d FlowDirection) IsValid() bool {
	switch d {
	case FlowLocalToRemote, FlowRemoteToLocal, FlowLocalToLocal, FlowRemoteToRemote:
		return true
	}
	return false
}

// DeriveFlowDirection classifies a flow by whether each endpoint is private.
func DeriveFlowDirection(sourceIP, destinationIP string) FlowDirection {
	srcPrivate := IsPrivateIP(sourceIP)
	dstPrivate := IsPrivateIP(destinationIP)
	switch {
	case srcPrivate && dstPrivate:
		return FlowLocalToLocal
	case srcPrivate:
		return FlowLocalToRemote
	case dstPrivate:
		return FlowRemoteToLocal
	default:
		return FlowRemoteToRemote
	}
}

// Flow defaults
const (
	DefaultFlowCategory    = "Generic Flow"
	DefaultFlowSubCategory = "Generic HTTP(S) Traffic"
	MaxFlowID              = 1000000000
)

// ContextFlow is a network connection observed between two endpoints
type ContextFlow struct {
	RelatedDetectionUUID string
	Timestamp            time.Time
	Integration          string
	SourceIP             string
	SourcePort           int
	DestinationIP        string
	DestinationPort      int
	Protocol             string
	Application          string
	Data                 string
	SourceMAC            string
	DestinationMAC       string
	SourceHostname       string
	DestinationHostname  string
	Category             string
	SubCategory          string
	// FlowDirection is derived from the endpoints when empty
	FlowDirection FlowDirection
	// FlowID is drawn at random from [1, MaxFlowID] when zero
	FlowID              int
	Interface           string
	Network             string
	NetworkType         string
	FlowSource          string
	SourceLocation      *Location
	DestinationLocation *Location
	HTTP                *HTTPTransaction
	DNSQuery            *DNSQuery
	ProcessName         string
	ProcessID           *int
	SourceBytes         *int64
	DestinationBytes    *int64
	FirewallAction      string
	FirewallRuleID      string
	UUID                string
	DetectionRelevance  *int
}

// NewContextFlow validates f, applies defaults and derives the flow direction
func NewContextFlow(f ContextFlow) (*ContextFlow, error) {
	if f.Timestamp.IsZero() {
		return nil, invalidf("flow timestamp is required")
	}

	var err error
	if f.SourceIP, err = parseIP("source_ip", f.SourceIP); err != nil {
		return nil, err
	}
	if f.DestinationIP, err = parseIP("destination_ip", f.DestinationIP); err != nil {
		return nil, err
	}
	if err := validatePort("source_port", f.SourcePort); err != nil {
		return nil, err
	}
	if err := validatePort("destination_port", f.DestinationPort); err != nil {
		return nil, err
	}

	if f.FlowID == 0 {
		f.FlowID = rand.IntN(MaxFlowID) + 1
	}
	if f.FlowID < 1 || f.FlowID > MaxFlowID {
		return nil, invalidf("flow_id must be between 1 and %d (got %d)", MaxFlowID, f.FlowID)
	}

	if f.FlowDirection == "" {
		f.FlowDirection = DeriveFlowDirection(f.SourceIP, f.DestinationIP)
	} else if !f.FlowDirection.IsValid() {
		return nil, invalidf("flow_direction must be one of L2R, R2L, L2L, R2R (got %q)", f.FlowDirection)
	}

	if f.SourceLocation != nil && !f.SourceLocation.IsValid() {
		return nil, invalidf("source_location is not valid")
	}
	if f.DestinationLocation != nil && !f.DestinationLocation.IsValid() {
		return nil, invalidf("destination_location is not valid")
	}
	if f.SourceBytes != nil && *f.SourceBytes < 0 {
		return nil, invalidf("source_bytes cannot be negative")
	}
	if f.DestinationBytes != nil && *f.DestinationBytes < 0 {
		return nil, invalidf("destination_bytes cannot be negative")
	}

	if f.Category == "" {
		f.Category = DefaultFlowCategory
	}
	if f.SubCategory == "" {
		f.SubCategory = DefaultFlowSubCategory
	}

	relevance, err := relevanceOrDefault(f.DetectionRelevance)
	if err != nil {
		return nil, err
	}
	f.DetectionRelevance = relevance
	f.UUID = newUUIDIfEmpty(f.UUID)
	return &f, nil
}

// Relevance returns the detection relevance percentage
func (f *ContextFlow) Relevance() int { return relevanceValue(f.DetectionRelevance) }

func (f *ContextFlow) Projection() Projection {
	return Projection{
		{"related_detection_uuid", f.RelatedDetectionUUID},
		{"detection_relevance", f.DetectionRelevance},
		{"timestamp", optionalTime(f.Timestamp)},
		{"data", f.Data},
		{"integration", f.Integration},
		{"source_ip", f.SourceIP},
		{"source_location", nested(f.SourceLocation)},
		{"source_port", f.SourcePort},
		{"destination_ip", f.DestinationIP},
		{"destination_location", nested(f.DestinationLocation)},
		{"destination_port", f.DestinationPort},
		{"protocol", f.Protocol},
		{"application", f.Application},
		{"source_mac", f.SourceMAC},
		{"destination_mac", f.DestinationMAC},
		{"source_hostname", f.SourceHostname},
		{"destination_hostname", f.DestinationHostname},
		{"category", f.Category},
		{"sub_category", f.SubCategory},
		{"flow_direction", string(f.FlowDirection)},
		{"flow_id", f.FlowID},
		{"interface", f.Interface},
		{"network", f.Network},
		{"network_type", f.NetworkType},
		{"flow_source", f.FlowSource},
		{"http", nested(f.HTTP)},
		{"dns_query", nested(f.DNSQuery)},
		{"process_name", f.ProcessName},
		{"process_id", f.ProcessID},
		{"source_bytes", f.SourceBytes},
		{"destination_bytes", f.DestinationBytes},
		{"firewall_action", f.FirewallAction},
		{"firewall_rule_id", f.FirewallRuleID},
		{"uuid", f.UUID},
	}
}

func (f *ContextFlow) String() string { return Render(f) }
