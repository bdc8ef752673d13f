package core

import (
	"net/netip"
	"time"
)

// ContextDevice is an asset: a host, appliance or virtual machine
type ContextDevice struct {
	Name string
	// LocalIP and GlobalIP default to DefaultIP; at least one must be a real address
	LocalIP      string
	GlobalIP     string
	IPs          []string
	MAC          string
	Vendor       string
	OS           string
	OSVersion    string
	OSFamily     string
	OSLastUpdate time.Time
	// InScope and InUse default to true
	InScope            *bool
	Tags               []string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	InUse              *bool
	Type               string
	Owner              *Person
	Aliases            []string
	Description        string
	Location           *Location
	Notes              string
	LastSeen           time.Time
	FirstSeen          time.Time
	LastScan           time.Time
	LastUpdate         time.Time
	Users              []*Person
	Group              string
	AuthTypes          []string
	AuthStoredIn       []string
	StoredCredentials  []string
	ShouldState        string
	IsState            string
	IsStateReason      string
	Hypervisor         *ContextDevice
	VirtualizationType string
	VirtualLocations   []string
	Services           []*Service
	Vulnerabilities    []*Vulnerability
	Domains            []string
	// Network is a CIDR prefix such as 10.0.0.0/24
	Network            string
	Interfaces         []string
	Ports              []int
	Protocols          []string
	UUID               string
	DetectionRelevance *int

	timestamp time.Time
}

// NewContextDevice validates d. The event time is last_update, or the construction time.
func NewContextDevice(d ContextDevice) (*ContextDevice, error) {
	var err error
	if d.LocalIP, err = parseOptionalIP("local_ip", d.LocalIP); err != nil {
		return nil, err
	}
	if d.GlobalIP, err = parseOptionalIP("global_ip", d.GlobalIP); err != nil {
		return nil, err
	}
	if d.LocalIP == DefaultIP && d.GlobalIP == DefaultIP {
		return nil, invalidf("no IP address was specified for device %q", d.Name)
	}
	if len(d.IPs) > 0 {
		ips := make([]string, len(d.IPs))
		for i, ip := range d.IPs {
			if ips[i], err = parseIP("ips", ip); err != nil {
				return nil, err
			}
		}
		d.IPs = ips
	}
	if d.Location != nil && !d.Location.IsValid() {
		return nil, invalidf("location is not valid")
	}
	if d.Network != "" {
		prefix, err := netip.ParsePrefix(d.Network)
		if err != nil {
			return nil, invalidf("network must be a CIDR prefix (got %q)", d.Network)
		}
		d.Network = prefix.Masked().String()
	}
	for _, p := range d.Ports {
		if err := validatePort("ports", p); err != nil {
			return nil, err
		}
	}
	for _, u := range d.Users {
		if u == nil {
			return nil, typef("users must not contain nil persons")
		}
	}
	for _, s := range d.Services {
		if s == nil {
			return nil, typef("services must not contain nil services")
		}
	}
	for _, v := range d.Vulnerabilities {
		if v == nil {
			return nil, typef("vulnerabilities must not contain nil vulnerabilities")
		}
	}
	if d.InScope == nil {
		d.InScope = boolPtr(true)
	}
	if d.InUse == nil {
		d.InUse = boolPtr(true)
	}

	relevance, err := relevanceOrDefault(d.DetectionRelevance)
	if err != nil {
		return nil, err
	}
	d.DetectionRelevance = relevance
	d.UUID = newUUIDIfEmpty(d.UUID)
	d.timestamp = timeOrNow(d.LastUpdate)
	return &d, nil
}

func boolPtr(b bool) *bool { return &b }

// Relevance returns the detection relevance percentage
func (d *ContextDevice) Relevance() int { return relevanceValue(d.DetectionRelevance) }

func (d *ContextDevice) Projection() Projection {
	return Projection{
		{"name", d.Name},
		{"local_ip", d.LocalIP},
		{"global_ip", d.GlobalIP},
		{"ips", d.IPs},
		{"mac", d.MAC},
		{"vendor", d.Vendor},
		{"os", d.OS},
		{"os_version", d.OSVersion},
		{"os_family", d.OSFamily},
		{"os_last_update", optionalTime(d.OSLastUpdate)},
		{"in_scope", d.InScope},
		{"tags", d.Tags},
		{"created_at", optionalTime(d.CreatedAt)},
		{"updated_at", optionalTime(d.UpdatedAt)},
		{"in_use", d.InUse},
		{"type", d.Type},
		{"owner", nested(d.Owner)},
		{"uuid", d.UUID},
		{"aliases", d.Aliases},
		{"description", d.Description},
		{"location", nested(d.Location)},
		{"notes", d.Notes},
		{"last_seen", optionalTime(d.LastSeen)},
		{"first_seen", optionalTime(d.FirstSeen)},
		{"last_scan", optionalTime(d.LastScan)},
		{"last_update", optionalTime(d.LastUpdate)},
		{"user", nestedList(d.Users)},
		{"group", d.Group},
		{"auth_types", d.AuthTypes},
		{"auth_stored_in", d.AuthStoredIn},
		{"stored_credentials", d.StoredCredentials},
		{"should_state", d.ShouldState},
		{"is_state", d.IsState},
		{"is_state_reason", d.IsStateReason},
		{"hypervisor", nested(d.Hypervisor)},
		{"virtualization_type", d.VirtualizationType},
		{"virtual_locations", d.VirtualLocations},
		{"services", nestedList(d.Services)},
		{"vulnerabilities", nestedList(d.Vulnerabilities)},
		{"domains", d.Domains},
		{"network", d.Network},
		{"interfaces", d.Interfaces},
		{"ports", d.Ports},
		{"protocols", d.Protocols},
		{"detection_relevance", d.DetectionRelevance},
	}
}

func (d *ContextDevice) String() string { return Render(d) }
