package core

import (
	"strings"
	"time"
)

// Rule is the metadata of a detection rule that triggered an alert
type Rule struct {
	ID              string    `json:"id" bson:"id" yaml:"id"`
	Name            string    `json:"name" bson:"name" yaml:"name"`
	Severity        int       `json:"severity" bson:"severity" yaml:"severity"`
	Description     string    `json:"description,omitempty" bson:"description,omitempty" yaml:"description,omitempty"`
	Tags            []string  `json:"tags,omitempty" bson:"tags,omitempty" yaml:"tags,omitempty"`
	Raw             string    `json:"raw,omitempty" bson:"raw,omitempty" yaml:"raw,omitempty"`
	CreatedAt       time.Time `json:"created_at,omitempty" bson:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt       time.Time `json:"updated_at,omitempty" bson:"updated_at,omitempty" yaml:"updated_at,omitempty"`
	FalsePositives  []string  `json:"known_false_positives,omitempty" bson:"known_false_positives,omitempty" yaml:"known_false_positives,omitempty"`
	Query           string    `json:"query,omitempty" bson:"query,omitempty" yaml:"query,omitempty"`
	MitreTactics    []string  `json:"mitre_tactics,omitempty" bson:"mitre_tactics,omitempty" yaml:"mitre_tactics,omitempty"`
	MitreTechniques []string  `json:"mitre_techniques,omitempty" bson:"mitre_techniques,omitempty" yaml:"mitre_techniques,omitempty"`
}

// NewRule validates r. Severity is a percentage like every other score.
func NewRule(r Rule) (*Rule, error) {
	if strings.TrimSpace(r.ID) == "" {
		return nil, invalidf("rule id cannot be empty")
	}
	if strings.TrimSpace(r.Name) == "" {
		return nil, invalidf("rule name cannot be empty")
	}
	if err := ValidatePercentage("severity", &r.Severity); err != nil {
		return nil, err
	}
	for i, t := range r.MitreTechniques {
		r.MitreTechniques[i] = strings.ToUpper(strings.TrimSpace(t))
	}
	return &r, nil
}

func (r *Rule) Projection() Projection {
	return Projection{
		{"id", r.ID},
		{"name", r.Name},
		{"description", r.Description},
		{"severity", r.Severity},
		{"tags", r.Tags},
		{"raw", r.Raw},
		{"created_at", optionalTime(r.CreatedAt)},
		{"updated_at", optionalTime(r.UpdatedAt)},
		{"known_false_positives", r.FalsePositives},
		{"query", r.Query},
		{"mitre_tactics", r.MitreTactics},
		{"mitre_techniques", r.MitreTechniques},
	}
}

func (r *Rule) String() string { return Render(r) }
