package core

import "time"

// DNSQueryType is a DNS resource record type
type DNSQueryType string

const (
	DNSTypeA     DNSQueryType = "A"
	DNSTypeAAAA  DNSQueryType = "AAAA"
	DNSTypeCNAME DNSQueryType = "CNAME"
	DNSTypeMX    DNSQueryType = "MX"
	DNSTypeNS    DNSQueryType = "NS"
	DNSTypePTR   DNSQueryType = "PTR"
	DNSTypeSOA   DNSQueryType = "SOA"
	DNSTypeSRV   DNSQueryType = "SRV"
	DNSTypeTXT   DNSQueryType = "TXT"
)

// IsValid checks if the record type is supported
func (t DNSQueryType) IsValid() bool {
	switch t {
	case DNSTypeA, DNSTypeAAAA, DNSTypeCNAME, DNSTypeMX, DNSTypeNS,
		DNSTypePTR, DNSTypeSOA, DNSTypeSRV, DNSTypeTXT:
		return true
	}
	return false
}

// DefaultRcode is used when a query carries no response code
const DefaultRcode = "NOERROR"

// DNSQuery is a single DNS lookup and, optionally, its answer
type DNSQuery struct {
	RelatedDetectionUUID string
	Type                 DNSQueryType
	Query                string
	HasResponse          bool
	// QueryResponse is DefaultIP when there was no answer
	QueryResponse      string
	Rcode              string
	Timestamp          time.Time
	UUID               string
	DetectionRelevance *int

	warnings
}

// NewDNSQuery validates q and returns the constructed query
func NewDNSQuery(q DNSQuery) (*DNSQuery, error) {
	if !q.Type.IsValid() {
		return nil, invalidf("type must be one of A, AAAA, CNAME, MX, NS, PTR, SOA, SRV, TXT (got %q)", q.Type)
	}
	if q.QueryResponse == "" {
		q.QueryResponse = DefaultIP
	}
	q.warnings = warnings{}
	if !q.HasResponse && q.QueryResponse != DefaultIP {
		return nil, invalidf("query_response must be the no-answer sentinel when has_response is false")
	}
	if q.HasResponse && q.QueryResponse == DefaultIP {
		q.warn("DNSQuery", "query_response is still the no-answer sentinel while has_response is true (query %q)", q.Query)
	}
	if q.Rcode == "" {
		q.Rcode = DefaultRcode
	}
	relevance, err := relevanceOrDefault(q.DetectionRelevance)
	if err != nil {
		return nil, err
	}

	q.DetectionRelevance = relevance
	q.UUID = newUUIDIfEmpty(q.UUID)
	q.Timestamp = timeOrNow(q.Timestamp)
	return &q, nil
}

func (q *DNSQuery) Projection() Projection {
	return Projection{
		{"related_detection_uuid", q.RelatedDetectionUUID},
		{"type", string(q.Type)},
		{"query", q.Query},
		{"has_response", q.HasResponse},
		{"query_response", q.QueryResponse},
		{"rcode", q.Rcode},
		{"timestamp", optionalTime(q.Timestamp)},
		{"detection_relevance", q.DetectionRelevance},
		{"uuid", q.UUID},
	}
}

func (q *DNSQuery) String() string { return Render(q) }
