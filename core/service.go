package core

import (
	"regexp"
	"strings"
	"time"
)

// Service is a network service or software component running on a device
type Service struct {
	Name                   string
	Vendor                 string
	Description            string
	Tags                   []string
	CreatedAt              time.Time
	UpdatedAt              time.Time
	CurrentVulnerabilities []*Vulnerability
	FixedVulnerabilities   []*Vulnerability
	InstalledVersion       string
	LatestVersion          string
	Outdated               *bool
	Ports                  []int
	Protocol               string
	// Percentages in [0,100]
	RequiredAvailability      *int
	RequiredConfidentiality   *int
	RequiredIntegrity         *int
	CollateralDamagePotential *int
	ImpactScore               *int
	RiskScore                 *int
	RiskScoreVector           string
	ChildServices             []*Service
	ParentServices            []*Service
	UUID                      string
	DetectionRelevance        *int
}

// NewService validates s and returns the constructed service
func NewService(s Service) (*Service, error) {
	if strings.TrimSpace(s.Name) == "" {
		return nil, invalidf("service name must not be empty")
	}
	for _, p := range s.Ports {
		if err := validatePort("ports", p); err != nil {
			return nil, err
		}
	}
	percentages := []struct {
		field string
		value *int
	}{
		{"required_availability", s.RequiredAvailability},
		{"required_confidentiality", s.RequiredConfidentiality},
		{"required_integrity", s.RequiredIntegrity},
		{"collateral_damage_potential", s.CollateralDamagePotential},
		{"impact_score", s.ImpactScore},
		{"risk_score", s.RiskScore},
	}
	for _, p := range percentages {
		if err := ValidatePercentage(p.field, p.value); err != nil {
			return nil, err
		}
	}
	for _, child := range s.ChildServices {
		if child == nil {
			return nil, typef("child_services must not contain nil services")
		}
	}
	for _, parent := range s.ParentServices {
		if parent == nil {
			return nil, typef("parent_services must not contain nil services")
		}
	}
	relevance, err := relevanceOrDefault(s.DetectionRelevance)
	if err != nil {
		return nil, err
	}
	s.DetectionRelevance = relevance
	s.UUID = newUUIDIfEmpty(s.UUID)
	return &s, nil
}

func (s *Service) Projection() Projection {
	return Projection{
		{"name", s.Name},
		{"vendor", s.Vendor},
		{"description", s.Description},
		{"tags", s.Tags},
		{"created_at", optionalTime(s.CreatedAt)},
		{"updated_at", optionalTime(s.UpdatedAt)},
		{"current_vulnerabilities", nestedList(s.CurrentVulnerabilities)},
		{"fixed_vulnerabilities", nestedList(s.FixedVulnerabilities)},
		{"installed_version", s.InstalledVersion},
		{"latest_version", s.LatestVersion},
		{"outdated", s.Outdated},
		{"ports", s.Ports},
		{"protocol", s.Protocol},
		{"required_availability", s.RequiredAvailability},
		{"required_confidentiality", s.RequiredConfidentiality},
		{"required_integrity", s.RequiredIntegrity},
		{"collateral_damage_potential", s.CollateralDamagePotential},
		{"impact_score", s.ImpactScore},
		{"risk_score", s.RiskScore},
		{"risk_score_vector", s.RiskScoreVector},
		{"child_services", serviceRefs(s.ChildServices)},
		{"parent_services", serviceRefs(s.ParentServices)},
		{"detection_relevance", s.DetectionRelevance},
		{"uuid", s.UUID},
	}
}

func (s *Service) String() string { return Render(s) }

// serviceRefs renders related services by name and UUID only, so parent/child links
// cannot recurse.
func serviceRefs(services []*Service) []string {
	if len(services) == 0 {
		return nil
	}
	out := make([]string, 0, len(services))
	for _, s := range services {
		if s == nil {
			continue
		}
		out = append(out, s.Name+" ("+s.UUID+")")
	}
	return out
}

var cvePattern = regexp.MustCompile(`^CVE-\d{4}-\d{4,}$`)

// Vulnerability is a known weakness (CVE) affecting one or more services
type Vulnerability struct {
	CVE                 string
	Description         string
	Tags                []string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	CVSS                *float64
	CVSSVector          string
	CVSS3               *float64
	CVSS3Vector         string
	CWE                 string
	References          []string
	ExploitAvailable    *bool
	ExploitFrameworks   []string
	ExploitMitigations  []string
	ExploitabilityEase  string
	PublishedAt         time.Time
	LastModifiedAt      time.Time
	PatchedAt           time.Time
	Solution            string
	SolutionDate        time.Time
	SolutionType        string
	SolutionURL         string
	SolutionAdvisory    string
	SolutionAdvisoryURL string
	// ServicesVulnerable defaults to ServicesAffected when empty, and vice versa
	ServicesAffected      []*Service
	ServicesVulnerable    []*Service
	AttackVector          string
	AttackComplexity      string
	PrivilegesRequired    string
	UserInteraction       string
	ConfidentialityImpact string
	IntegrityImpact       string
	AvailabilityImpact    string
	Scope                 string
	Version               string
	UUID                  string
	DetectionRelevance    *int
}

// NewVulnerability validates v and returns the constructed vulnerability
func NewVulnerability(v Vulnerability) (*Vulnerability, error) {
	v.CVE = strings.ToUpper(strings.TrimSpace(v.CVE))
	if !cvePattern.MatchString(v.CVE) {
		return nil, invalidf("invalid CVE format (must be CVE-YYYY-NNNNN): %q", v.CVE)
	}
	for _, score := range []struct {
		field string
		value *float64
	}{{"cvss", v.CVSS}, {"cvss3", v.CVSS3}} {
		if score.value != nil && (*score.value < 0 || *score.value > 10) {
			return nil, invalidf("%s must be between 0 and 10 (got %.1f)", score.field, *score.value)
		}
	}
	for _, s := range append(append([]*Service{}, v.ServicesAffected...), v.ServicesVulnerable...) {
		if s == nil {
			return nil, typef("affected and vulnerable services must not contain nil services")
		}
	}
	if len(v.ServicesVulnerable) == 0 {
		v.ServicesVulnerable = v.ServicesAffected
	}
	if len(v.ServicesAffected) == 0 {
		v.ServicesAffected = v.ServicesVulnerable
	}
	relevance, err := relevanceOrDefault(v.DetectionRelevance)
	if err != nil {
		return nil, err
	}
	v.DetectionRelevance = relevance
	v.UUID = newUUIDIfEmpty(v.UUID)
	return &v, nil
}

func (v *Vulnerability) Projection() Projection {
	return Projection{
		{"cve", v.CVE},
		{"description", v.Description},
		{"tags", v.Tags},
		{"created_at", optionalTime(v.CreatedAt)},
		{"updated_at", optionalTime(v.UpdatedAt)},
		{"cvss", v.CVSS},
		{"cvss_vector", v.CVSSVector},
		{"cvss3", v.CVSS3},
		{"cvss3_vector", v.CVSS3Vector},
		{"cwe", v.CWE},
		{"references", v.References},
		{"exploit_available", v.ExploitAvailable},
		{"exploit_frameworks", v.ExploitFrameworks},
		{"exploit_mitigations", v.ExploitMitigations},
		{"exploitability_ease", v.ExploitabilityEase},
		{"published_at", optionalTime(v.PublishedAt)},
		{"last_modified_at", optionalTime(v.LastModifiedAt)},
		{"patched_at", optionalTime(v.PatchedAt)},
		{"solution", v.Solution},
		{"solution_date", optionalTime(v.SolutionDate)},
		{"solution_type", v.SolutionType},
		{"solution_url", v.SolutionURL},
		{"solution_advisory", v.SolutionAdvisory},
		{"solution_advisory_url", v.SolutionAdvisoryURL},
		{"services_affected", serviceRefs(v.ServicesAffected)},
		{"services_vulnerable", serviceRefs(v.ServicesVulnerable)},
		{"attack_vector", v.AttackVector},
		{"attack_complexity", v.AttackComplexity},
		{"privileges_required", v.PrivilegesRequired},
		{"user_interaction", v.UserInteraction},
		{"confidentiality_impact", v.ConfidentialityImpact},
		{"integrity_impact", v.IntegrityImpact},
		{"availability_impact", v.AvailabilityImpact},
		{"scope", v.Scope},
		{"version", v.Version},
		{"detection_relevance", v.DetectionRelevance},
		{"uuid", v.UUID},
	}
}

func (v *Vulnerability) String() string { return Render(v) }
