package core

import "time"

// Location is a geographic or network location of an address, device or person
type Location struct {
	Country        string
	City           string
	Latitude       *float64
	Longitude      *float64
	Timezone       string
	ASN            *int
	ASNDescription string
	Org            string
	// Certainty is a percentage in [0,100]
	Certainty          *int
	LastUpdated        time.Time
	UUID               string
	DetectionRelevance *int

	timestamp time.Time
	warnings
}

// NewLocation validates l and returns the constructed location.
// At least one of country, city, latitude+longitude or org must be set.
func NewLocation(l Location) (*Location, error) {
	hasCoordinates := l.Latitude != nil && l.Longitude != nil
	if l.Country == "" && l.City == "" && !hasCoordinates && l.Org == "" {
		return nil, invalidf("location requires at least one of country, city, latitude+longitude or org")
	}
	if l.Latitude != nil && (*l.Latitude < -90 || *l.Latitude > 90) {
		return nil, invalidf("latitude must be between -90 and 90 (got %f)", *l.Latitude)
	}
	if l.Longitude != nil && (*l.Longitude < -180 || *l.Longitude > 180) {
		return nil, invalidf("longitude must be between -180 and 180 (got %f)", *l.Longitude)
	}
	if l.ASN != nil && *l.ASN < 0 {
		return nil, invalidf("asn cannot be negative")
	}
	if err := ValidatePercentage("certainty", l.Certainty); err != nil {
		return nil, err
	}
	relevance, err := relevanceOrDefault(l.DetectionRelevance)
	if err != nil {
		return nil, err
	}

	l.DetectionRelevance = relevance
	l.UUID = newUUIDIfEmpty(l.UUID)
	l.timestamp = timeOrNow(l.LastUpdated)
	l.warnings = warnings{}
	return &l, nil
}

// IsValid reports whether the location is precise enough to be used:
// a country, both coordinates, or an organization.
func (l *Location) IsValid() bool {
	if l == nil {
		return false
	}
	return l.Country != "" || (l.Latitude != nil && l.Longitude != nil) || l.Org != ""
}

// Relevance returns the detection relevance percentage
func (l *Location) Relevance() int { return relevanceValue(l.DetectionRelevance) }

func (l *Location) Projection() Projection {
	return Projection{
		{"country", l.Country},
		{"city", l.City},
		{"latitude", l.Latitude},
		{"longitude", l.Longitude},
		{"timezone", l.Timezone},
		{"asn", l.ASN},
		{"asn_description", l.ASNDescription},
		{"org", l.Org},
		{"certainty", l.Certainty},
		{"last_updated", optionalTime(l.LastUpdated)},
		{"detection_relevance", l.DetectionRelevance},
		{"uuid", l.UUID},
	}
}

func (l *Location) String() string { return Render(l) }
