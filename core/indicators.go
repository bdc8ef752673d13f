package core

import (
	"fmt"
	"net/mail"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
)

// =============================================================================
// Indicator Categories
// =============================================================================

// IndicatorCategory is the bucket an indicator value is stored under
type IndicatorCategory string

const (
	IndicatorIP        IndicatorCategory = "ip"
	IndicatorDomain    IndicatorCategory = "domain"
	IndicatorURL       IndicatorCategory = "url"
	IndicatorHash      IndicatorCategory = "hash" // MD5, SHA1, SHA256
	IndicatorEmail     IndicatorCategory = "email"
	IndicatorCountries IndicatorCategory = "countries"
	IndicatorOther     IndicatorCategory = "other" // file names, request bodies
)

// AllIndicatorCategories returns all categories in rendering order
var AllIndicatorCategories = []IndicatorCategory{
	IndicatorIP, IndicatorDomain, IndicatorURL, IndicatorHash,
	IndicatorEmail, IndicatorCountries, IndicatorOther,
}

// WhitelistCategories are the categories checked against global whitelists, in scan order
var WhitelistCategories = []IndicatorCategory{
	IndicatorIP, IndicatorDomain, IndicatorHash, IndicatorURL, IndicatorEmail,
}

// IsValid checks if the category is known
func (c IndicatorCategory) IsValid() bool {
	for _, valid := range AllIndicatorCategories {
		if c == valid {
			return true
		}
	}
	return false
}

// IsWhitelistable reports whether global whitelists exist for the category
func (c IndicatorCategory) IsWhitelistable() bool {
	for _, valid := range WhitelistCategories {
		if c == valid {
			return true
		}
	}
	return false
}

// =============================================================================
// Indicator Value Validation
// =============================================================================

var (
	// Domain pattern - ReDoS-safe
	domainPattern = regexp.MustCompile(`^(?:[a-z0-9](?:[a-z0-9_-]{0,61}[a-z0-9])?\.)+[a-z]{2,}$`)
	// Hash pattern - MD5(32), SHA1(40), SHA256(64)
	hashPattern = regexp.MustCompile(`^[a-fA-F0-9]{32}$|^[a-fA-F0-9]{40}$|^[a-fA-F0-9]{64}$`)
)

// MaxIndicatorValueLength bounds whitelist entries
const MaxIndicatorValueLength = 4096

// ValidateIndicator validates a value against the format of its category.
// Countries and other accept any non-empty value.
func ValidateIndicator(category IndicatorCategory, value string) error {
	if value == "" {
		return invalidf("indicator value cannot be empty")
	}
	if len(value) > MaxIndicatorValueLength {
		return invalidf("indicator value exceeds maximum length of %d characters", MaxIndicatorValueLength)
	}

	normalized := strings.TrimSpace(value)

	switch category {
	case IndicatorIP:
		if _, err := netip.ParseAddr(normalized); err != nil {
			return invalidf("invalid IP address format: %q", value)
		}
	case IndicatorDomain:
		if !domainPattern.MatchString(strings.ToLower(StripWildcard(normalized))) {
			return invalidf("invalid domain format: %q", value)
		}
	case IndicatorHash:
		if !hashPattern.MatchString(normalized) {
			return invalidf("invalid hash format (must be MD5/SHA1/SHA256): %q", value)
		}
	case IndicatorURL:
		parsed, err := url.ParseRequestURI(normalized)
		if err != nil {
			return fmt.Errorf("%w: invalid URL format: %v", ErrValidation, err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return invalidf("URL must use http or https scheme")
		}
	case IndicatorEmail:
		if _, err := mail.ParseAddress(normalized); err != nil {
			return fmt.Errorf("%w: invalid email format: %v", ErrValidation, err)
		}
	case IndicatorCountries, IndicatorOther:
	default:
		return invalidf("unknown indicator category: %s", category)
	}
	return nil
}

// NormalizeIndicator normalizes a whitelist entry for consistent storage.
// Matching itself is exact, so entries must be stored the way extraction produces them.
func NormalizeIndicator(category IndicatorCategory, value string) string {
	normalized := strings.TrimSpace(value)

	switch category {
	case IndicatorIP:
		if addr, err := netip.ParseAddr(normalized); err == nil {
			return addr.Unmap().String()
		}
		return normalized
	case IndicatorDomain:
		return strings.ToLower(StripWildcard(normalized))
	case IndicatorHash:
		return strings.ToLower(normalized)
	case IndicatorEmail:
		// Local part is case-sensitive, domain is not
		if at := strings.LastIndex(normalized, "@"); at > 0 {
			return normalized[:at] + strings.ToLower(normalized[at:])
		}
		return normalized
	default:
		return normalized
	}
}

// StripWildcard removes a leading "*." from a domain. Only that literal two-character prefix
// is removed; no other wildcard syntax is interpreted.
func StripWildcard(domain string) string {
	if strings.HasPrefix(domain, "*.") {
		return domain[2:]
	}
	return domain
}

// =============================================================================
// Indicator Index
// =============================================================================

// Indicators is the per-category indicator index of a Detection or CaseFile
type Indicators map[IndicatorCategory][]string

// NewIndicators returns an index with every category present and empty
func NewIndicators() Indicators {
	in := make(Indicators, len(AllIndicatorCategories))
	for _, c := range AllIndicatorCategories {
		in[c] = []string{}
	}
	return in
}

// Get returns a copy of the values stored for a category
func (in Indicators) Get(category IndicatorCategory) []string {
	values := in[category]
	out := make([]string, len(values))
	copy(out, values)
	return out
}

// Contains reports whether value is stored under category
func (in Indicators) Contains(category IndicatorCategory, value string) bool {
	for _, v := range in[category] {
		if v == value {
			return true
		}
	}
	return false
}

// Count returns the number of values across all categories
func (in Indicators) Count() int {
	n := 0
	for _, values := range in {
		n += len(values)
	}
	return n
}

// Clone returns a deep copy
func (in Indicators) Clone() Indicators {
	out := make(Indicators, len(in))
	for c, values := range in {
		cp := make([]string, len(values))
		copy(cp, values)
		out[c] = cp
	}
	return out
}

// Merge appends every value of other and re-normalizes the index
func (in Indicators) Merge(other Indicators) {
	for _, c := range AllIndicatorCategories {
		in.add(c, other[c]...)
	}
	in.normalize()
}

func (in Indicators) add(category IndicatorCategory, values ...string) {
	for _, v := range values {
		if v == "" {
			continue
		}
		in[category] = append(in[category], v)
	}
}

// normalize strips domain wildcards and removes duplicates within each category,
// keeping first-seen order.
func (in Indicators) normalize() {
	if domains, ok := in[IndicatorDomain]; ok {
		for i, d := range domains {
			if strings.HasPrefix(d, "*.") {
				logger().Debugf("Removing '*.' from domain indicator: %s", d)
				domains[i] = StripWildcard(d)
			}
		}
	}
	for c, values := range in {
		seen := make(map[string]struct{}, len(values))
		deduped := values[:0]
		for _, v := range values {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			deduped = append(deduped, v)
		}
		in[c] = deduped
	}
}

// Projection renders the index with categories in declared order
func (in Indicators) Projection() Projection {
	p := make(Projection, 0, len(AllIndicatorCategories))
	for _, c := range AllIndicatorCategories {
		p = append(p, Field{Key: string(c), Value: in.Get(c)})
	}
	return p
}

// =============================================================================
// Extraction
// =============================================================================

// ExtractIndicators derives the indicators a single context contributes.
func ExtractIndicators(c Context) Indicators {
	in := NewIndicators()
	if isNilContext(c) {
		return in
	}

	switch v := c.(type) {
	case *ContextFlow:
		in.addFlow(v)
	case *ContextLog:
		if v.Flow != nil {
			in.addFlowAddresses(v.Flow)
		}
	case *ContextProcess:
		if v.Flow != nil {
			in.addFlowAddresses(v.Flow)
		}
		in.add(IndicatorHash, v.MD5, v.SHA1, v.SHA256)
	case *ContextFile:
		in.addFile(v)
	case *Location:
		in.add(IndicatorCountries, v.Country)
	case *ContextDevice:
		if v.LocalIP != DefaultIP {
			in.add(IndicatorIP, v.LocalIP)
		}
		if v.GlobalIP != DefaultIP {
			in.add(IndicatorIP, v.GlobalIP)
		}
	case *ContextThreatIntel, *Person, *ContextRegistry:
		// no indicator-bearing fields
	}

	in.normalize()
	return in
}

func (in Indicators) addFlowAddresses(f *ContextFlow) {
	in.add(IndicatorIP, f.SourceIP, f.DestinationIP)
}

func (in Indicators) addFlow(f *ContextFlow) {
	in.addFlowAddresses(f)
	if f.HTTP != nil {
		in.addHTTP(f.HTTP)
	}
	if f.DNSQuery != nil {
		in.addDNS(f.DNSQuery)
	}
}

func (in Indicators) addHTTP(h *HTTPTransaction) {
	in.add(IndicatorDomain, h.Host)
	in.add(IndicatorURL, h.FullURL)
	in.add(IndicatorOther, h.RequestBody)
	if h.File != nil {
		in.addFile(h.File)
	}
	if h.Certificate != nil {
		in.addCertificate(h.Certificate)
	}
}

func (in Indicators) addDNS(d *DNSQuery) {
	in.add(IndicatorDomain, d.Query)
	if d.HasResponse && d.QueryResponse != DefaultIP && isIP(d.QueryResponse) {
		in.add(IndicatorIP, d.QueryResponse)
	}
}

func (in Indicators) addCertificate(c *Certificate) {
	in.add(IndicatorDomain, c.Subject)
	in.add(IndicatorDomain, c.SubjectAlternativeNames...)
}

func (in Indicators) addFile(f *ContextFile) {
	in.add(IndicatorOther, f.Name)
	in.add(IndicatorHash, f.MD5, f.SHA1, f.SHA256)
}
