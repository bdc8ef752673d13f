package core

import (
	"strings"
	"time"
)

// Certificate is an X.509 certificate observed in a TLS session or as a file signature
type Certificate struct {
	RelatedDetectionUUID      string
	Subject                   string
	Issuer                    string
	IssuerCommonName          string
	IssuerOrganization        string
	IssuerOrganizationalUnit  string
	SerialNumber              string
	SubjectCommonName         string
	SubjectOrganization       string
	SubjectOrganizationalUnit string
	SubjectAlternativeNames   []string
	ValidFrom                 time.Time
	ValidTo                   time.Time
	Version                   string
	SignatureAlgorithm        string
	PublicKeyAlgorithm        string
	PublicKeySize             *int
	IsTrusted                 *bool
	UUID                      string
	DetectionRelevance        *int

	timestamp time.Time
	warnings
}

// NewCertificate validates c and returns the constructed certificate
func NewCertificate(c Certificate) (*Certificate, error) {
	if !c.ValidFrom.IsZero() && !c.ValidTo.IsZero() && c.ValidFrom.After(c.ValidTo) {
		return nil, invalidf("valid_from (%s) must be before valid_to (%s)", c.ValidFrom, c.ValidTo)
	}
	if c.PublicKeySize != nil && *c.PublicKeySize < 0 {
		return nil, invalidf("public_key_size must be positive")
	}
	relevance, err := relevanceOrDefault(c.DetectionRelevance)
	if err != nil {
		return nil, err
	}

	c.DetectionRelevance = relevance
	c.UUID = newUUIDIfEmpty(c.UUID)
	c.timestamp = now()
	c.warnings = warnings{}
	return &c, nil
}

// Covers reports whether host appears in the subject or the subject alternative names
func (c *Certificate) Covers(host string) bool {
	if host == "" {
		return false
	}
	if strings.Contains(c.Subject, host) {
		return true
	}
	for _, san := range c.SubjectAlternativeNames {
		if san == host || StripWildcard(san) == host {
			return true
		}
	}
	return false
}

// CreatedAt is the time the certificate entity was constructed
func (c *Certificate) CreatedAt() time.Time { return c.timestamp }

func (c *Certificate) Projection() Projection {
	return Projection{
		{"related_detection_uuid", c.RelatedDetectionUUID},
		{"subject", c.Subject},
		{"issuer", c.Issuer},
		{"issuer_common_name", c.IssuerCommonName},
		{"issuer_organization", c.IssuerOrganization},
		{"issuer_organizational_unit", c.IssuerOrganizationalUnit},
		{"serial_number", c.SerialNumber},
		{"subject_common_name", c.SubjectCommonName},
		{"subject_organization", c.SubjectOrganization},
		{"subject_organizational_unit", c.SubjectOrganizationalUnit},
		{"subject_alternative_names", c.SubjectAlternativeNames},
		{"valid_from", optionalTime(c.ValidFrom)},
		{"valid_to", optionalTime(c.ValidTo)},
		{"version", c.Version},
		{"signature_algorithm", c.SignatureAlgorithm},
		{"public_key_algorithm", c.PublicKeyAlgorithm},
		{"public_key_size", c.PublicKeySize},
		{"is_trusted", c.IsTrusted},
		{"detection_relevance", c.DetectionRelevance},
		{"uuid", c.UUID},
	}
}

func (c *Certificate) String() string { return Render(c) }
