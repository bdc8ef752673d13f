package ingest

import "time"

// DetectionDocument is the vendor-neutral wire form of a detection. JSON and YAML
// documents share these field names.
type DetectionDocument struct {
	VendorID    string            `json:"vendor_id,omitempty"`
	Name        string            `json:"name" validate:"required"`
	Timestamp   time.Time         `json:"timestamp" validate:"required"`
	Description string            `json:"description,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Raw         string            `json:"raw,omitempty"`
	Source      string            `json:"source,omitempty"`
	Severity    *int              `json:"severity,omitempty" validate:"omitempty,min=0,max=100"`
	Rules       []RuleDocument    `json:"rules,omitempty" validate:"dive"`
	Flow        *FlowDocument     `json:"flow,omitempty"`
	Process     *ProcessDocument  `json:"process,omitempty"`
	File        *FileDocument     `json:"file,omitempty"`
	Log         *LogDocument      `json:"log,omitempty"`
	Device      *DeviceDocument   `json:"device,omitempty"`
	Location    *LocationDocument `json:"location,omitempty"`
	User        *PersonDocument   `json:"user,omitempty"`
	Registry    *RegistryDocument `json:"registry,omitempty"`
}

// RuleDocument describes a rule that fired. ID may arrive as a number and is
// coerced to a string.
type RuleDocument struct {
	ID              interface{} `json:"id" validate:"required"`
	Name            string      `json:"name" validate:"required"`
	Severity        int         `json:"severity" validate:"min=0,max=100"`
	Description     string      `json:"description,omitempty"`
	Tags            []string    `json:"tags,omitempty"`
	Raw             string      `json:"raw,omitempty"`
	CreatedAt       time.Time   `json:"created_at,omitempty"`
	UpdatedAt       time.Time   `json:"updated_at,omitempty"`
	FalsePositives  []string    `json:"known_false_positives,omitempty"`
	Query           string      `json:"query,omitempty"`
	MitreTactics    []string    `json:"mitre_tactics,omitempty"`
	MitreTechniques []string    `json:"mitre_techniques,omitempty"`
}

type FlowDocument struct {
	Timestamp           time.Time     `json:"timestamp" validate:"required"`
	Integration         string        `json:"integration,omitempty"`
	SourceIP            string        `json:"source_ip" validate:"required,ip"`
	SourcePort          int           `json:"source_port" validate:"min=0,max=65535"`
	DestinationIP       string        `json:"destination_ip" validate:"required,ip"`
	DestinationPort     int           `json:"destination_port" validate:"min=0,max=65535"`
	Protocol            string        `json:"protocol,omitempty"`
	Application         string        `json:"application,omitempty"`
	SourceHostname      string        `json:"source_hostname,omitempty"`
	DestinationHostname string        `json:"destination_hostname,omitempty"`
	SourceBytes         *int64        `json:"source_bytes,omitempty" validate:"omitempty,min=0"`
	DestinationBytes    *int64        `json:"destination_bytes,omitempty" validate:"omitempty,min=0"`
	FirewallAction      string        `json:"firewall_action,omitempty"`
	HTTP                *HTTPDocument `json:"http,omitempty"`
	DNS                 *DNSDocument  `json:"dns,omitempty"`
	DetectionRelevance  *int          `json:"detection_relevance,omitempty" validate:"omitempty,min=0,max=100"`
}

type HTTPDocument struct {
	Method        string        `json:"method" validate:"required"`
	Type          string        `json:"type" validate:"required,oneof=HTTP HTTPS"`
	Host          string        `json:"host" validate:"required"`
	Path          string        `json:"path,omitempty"`
	FullURL       string        `json:"full_url,omitempty"`
	StatusCode    int           `json:"status_code,omitempty" validate:"min=0,max=999"`
	UserAgent     string        `json:"user_agent,omitempty"`
	Referer       string        `json:"referer,omitempty"`
	RequestBody   string        `json:"request_body,omitempty"`
	ResponseBody  string        `json:"response_body,omitempty"`
	StatusMessage string        `json:"status_message,omitempty"`
	File          *FileDocument `json:"file,omitempty"`
}

type DNSDocument struct {
	Type          string `json:"type" validate:"required"`
	Query         string `json:"query" validate:"required"`
	HasResponse   bool   `json:"has_response"`
	QueryResponse string `json:"query_response,omitempty" validate:"omitempty,ip"`
	Rcode         string `json:"rcode,omitempty"`
}

type ProcessDocument struct {
	ProcessUUID        string    `json:"process_uuid" validate:"required"`
	Timestamp          time.Time `json:"timestamp,omitempty"`
	Name               string    `json:"name,omitempty"`
	PID                *int      `json:"pid,omitempty" validate:"omitempty,min=-1"`
	ParentName         string    `json:"parent_name,omitempty"`
	ParentPID          int       `json:"parent_pid,omitempty" validate:"min=0"`
	Path               string    `json:"path,omitempty"`
	CommandLine        string    `json:"command_line,omitempty"`
	Username           string    `json:"username,omitempty"`
	MD5                string    `json:"md5,omitempty" validate:"omitempty,len=32,hexadecimal"`
	SHA1               string    `json:"sha1,omitempty" validate:"omitempty,len=40,hexadecimal"`
	SHA256             string    `json:"sha256,omitempty" validate:"omitempty,len=64,hexadecimal"`
	Parent             string    `json:"parent,omitempty"`
	Children           []string  `json:"children,omitempty" validate:"dive,required"`
	Arguments          []string  `json:"arguments,omitempty"`
	DetectionRelevance *int      `json:"detection_relevance,omitempty" validate:"omitempty,min=0,max=100"`
}

type FileDocument struct {
	Name               string `json:"name" validate:"required"`
	Path               string `json:"path,omitempty"`
	Size               int64  `json:"size,omitempty" validate:"min=0"`
	MD5                string `json:"md5,omitempty" validate:"omitempty,len=32,hexadecimal"`
	SHA1               string `json:"sha1,omitempty" validate:"omitempty,len=40,hexadecimal"`
	SHA256             string `json:"sha256,omitempty" validate:"omitempty,len=64,hexadecimal"`
	Type               string `json:"type,omitempty"`
	Extension          string `json:"extension,omitempty"`
	Action             string `json:"action,omitempty"`
	DetectionRelevance *int   `json:"detection_relevance,omitempty" validate:"omitempty,min=0,max=100"`
}

type LogDocument struct {
	Timestamp          time.Time              `json:"timestamp,omitempty"`
	Message            string                 `json:"message,omitempty"`
	SourceName         string                 `json:"source_name,omitempty"`
	SourceIP           string                 `json:"source_ip,omitempty" validate:"omitempty,ip"`
	Protocol           string                 `json:"protocol,omitempty"`
	Type               string                 `json:"type,omitempty"`
	Severity           string                 `json:"severity,omitempty"`
	Facility           string                 `json:"facility,omitempty"`
	Tags               []string               `json:"tags,omitempty"`
	CustomFields       map[string]interface{} `json:"custom_fields,omitempty"`
	DetectionRelevance *int                   `json:"detection_relevance,omitempty" validate:"omitempty,min=0,max=100"`
}

type DeviceDocument struct {
	Name               string   `json:"name,omitempty"`
	LocalIP            string   `json:"local_ip,omitempty" validate:"omitempty,ip"`
	GlobalIP           string   `json:"global_ip,omitempty" validate:"omitempty,ip"`
	IPs                []string `json:"ips,omitempty" validate:"dive,ip"`
	MAC                string   `json:"mac,omitempty" validate:"omitempty,mac"`
	OS                 string   `json:"os,omitempty"`
	OSVersion          string   `json:"os_version,omitempty"`
	Type               string   `json:"type,omitempty"`
	Domains            []string `json:"domains,omitempty"`
	Network            string   `json:"network,omitempty" validate:"omitempty,cidr"`
	Tags               []string `json:"tags,omitempty"`
	DetectionRelevance *int     `json:"detection_relevance,omitempty" validate:"omitempty,min=0,max=100"`
}

type LocationDocument struct {
	Country            string   `json:"country,omitempty"`
	City               string   `json:"city,omitempty"`
	Latitude           *float64 `json:"latitude,omitempty" validate:"omitempty,min=-90,max=90"`
	Longitude          *float64 `json:"longitude,omitempty" validate:"omitempty,min=-180,max=180"`
	Timezone           string   `json:"timezone,omitempty"`
	ASN                *int     `json:"asn,omitempty" validate:"omitempty,min=0"`
	Org                string   `json:"org,omitempty"`
	Certainty          *int     `json:"certainty,omitempty" validate:"omitempty,min=0,max=100"`
	DetectionRelevance *int     `json:"detection_relevance,omitempty" validate:"omitempty,min=0,max=100"`
}

type PersonDocument struct {
	Name               string   `json:"name" validate:"required"`
	Email              string   `json:"email,omitempty" validate:"omitempty,email"`
	Phone              string   `json:"phone,omitempty"`
	Roles              []string `json:"roles,omitempty"`
	Tags               []string `json:"tags,omitempty"`
	DetectionRelevance *int     `json:"detection_relevance,omitempty" validate:"omitempty,min=0,max=100"`
}

type RegistryDocument struct {
	Timestamp          time.Time `json:"timestamp" validate:"required"`
	Action             string    `json:"action,omitempty"`
	Key                string    `json:"key" validate:"required"`
	Value              string    `json:"value,omitempty"`
	Data               string    `json:"data,omitempty"`
	DataType           string    `json:"data_type,omitempty"`
	Hive               string    `json:"hive,omitempty"`
	Path               string    `json:"path,omitempty"`
	DetectionRelevance *int      `json:"detection_relevance,omitempty" validate:"omitempty,min=0,max=100"`
}
