package core

import (
	"net/mail"
	"strings"
	"time"
)

// Person is a user, owner or other human actor related to a detection
type Person struct {
	Name            string
	Email           string
	Phone           string
	Tags            []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PrimaryLocation *Location
	Locations       []*Location
	Roles           []string
	// AccessTo holds the UUIDs of devices the person can access
	AccessTo           []string
	UUID               string
	DetectionRelevance *int

	timestamp time.Time
	warnings
}

// NewPerson validates p. The event time is updated_at, or the construction time.
func NewPerson(p Person) (*Person, error) {
	p.warnings = warnings{}

	if strings.TrimSpace(p.Name) == "" {
		return nil, invalidf("person name cannot be empty")
	}
	if p.Email != "" {
		if _, err := mail.ParseAddress(p.Email); err != nil {
			p.warn("Person", "email does not look like an address: %q", p.Email)
		}
	}
	for _, l := range p.Locations {
		if l == nil {
			return nil, typef("locations must not contain nil locations")
		}
	}

	relevance, err := relevanceOrDefault(p.DetectionRelevance)
	if err != nil {
		return nil, err
	}
	p.DetectionRelevance = relevance
	p.UUID = newUUIDIfEmpty(p.UUID)
	p.timestamp = timeOrNow(p.UpdatedAt)
	return &p, nil
}

// Relevance returns the detection relevance percentage
func (p *Person) Relevance() int { return relevanceValue(p.DetectionRelevance) }

func (p *Person) Projection() Projection {
	return Projection{
		{"name", p.Name},
		{"email", p.Email},
		{"phone", p.Phone},
		{"tags", p.Tags},
		{"created_at", optionalTime(p.CreatedAt)},
		{"updated_at", optionalTime(p.UpdatedAt)},
		{"primary_location", nested(p.PrimaryLocation)},
		{"locations", nestedList(p.Locations)},
		{"roles", p.Roles},
		{"access_to", p.AccessTo},
		{"detection_relevance", p.DetectionRelevance},
		{"uuid", p.UUID},
	}
}

func (p *Person) String() string { return Render(p) }
