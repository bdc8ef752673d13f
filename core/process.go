package core

import "time"

// UnknownPID marks a process whose id was not reported
const UnknownPID = -1

// DefaultParentProcessName is used when the parent process name is unknown
const DefaultParentProcessName = "N/A"

// ContextProcess is a process execution observed on an endpoint.
// Parent and child processes are referenced by their process UUID and resolved
// through ContextByUUID on demand.
type ContextProcess struct {
	// ProcessUUID is the vendor entity id of the process and its identity in a case
	ProcessUUID          string
	Timestamp            time.Time
	RelatedDetectionUUID string
	Name                 string
	// PID is UnknownPID when nil at construction
	PID                        *int
	ParentName                 string
	ParentPID                  int
	ParentArguments            []string
	Path                       string
	MD5                        string
	SHA1                       string
	SHA256                     string
	CommandLine                string
	Username                   string
	IntegrityLevel             string
	IsElevatedToken            bool
	TokenElevationType         string
	TokenElevationTypeFull     string
	TokenIntegrityLevel        string
	TokenIntegrityLevelFull    string
	Privileges                 string
	Owner                      string
	GroupID                    *int
	GroupName                  string
	LogonGUID                  string
	LogonID                    string
	LogonType                  string
	LogonTypeFull              string
	LogonTime                  time.Time
	StartTime                  time.Time
	ParentStartTime            time.Time
	CurrentDirectory           string
	ImageFileDevice            string
	ImageFileDirectory         string
	ImageFileName              string
	ImageFilePath              string
	DNS                        *DNSQuery
	Signature                  *Certificate
	HTTP                       *HTTPTransaction
	Flow                       *ContextFlow
	Parent                     string
	Children                   []string
	EnvironmentVariables       []string
	Arguments                  []string
	Modules                    []string
	Thread                     string
	CreatedFiles               []*ContextFile
	DeletedFiles               []*ContextFile
	ModifiedFiles              []*ContextFile
	CreatedRegistryKeys        []string
	DeletedRegistryKeys        []string
	ModifiedRegistryKeys       []string
	IOBytesRead                *int64
	IOBytesWritten             *int64
	IOText                     string
	IsComplete                 bool
	DetectionRelevance         *int

	warnings
}

// NewContextProcess validates p and applies defaults.
// The timestamp may be left unset; such a process cannot be placed on a case timeline.
func NewContextProcess(p ContextProcess) (*ContextProcess, error) {
	p.warnings = warnings{}

	if p.ProcessUUID == "" {
		return nil, invalidf("process_uuid cannot be empty")
	}
	if len(p.ProcessUUID) < 36 {
		p.warn("ContextProcess", "given process_uuid seems too short: %q", p.ProcessUUID)
	}

	if p.PID == nil {
		p.PID = intPtr(UnknownPID)
	}
	if *p.PID < UnknownPID {
		return nil, invalidf("process_id cannot be negative (except %d for 'unknown')", UnknownPID)
	}
	if p.ParentName == "" {
		p.ParentName = DefaultParentProcessName
	}
	if p.ParentPID < 0 {
		return nil, invalidf("parent_process_id cannot be negative")
	}
	if p.GroupID != nil && *p.GroupID < 0 {
		return nil, invalidf("process_group_id cannot be negative")
	}
	if err := validateHashes("process", p.MD5, p.SHA1, p.SHA256); err != nil {
		return nil, err
	}
	for _, child := range p.Children {
		if child == "" {
			return nil, invalidf("process_children must hold process UUIDs, got an empty reference")
		}
	}
	for _, files := range [][]*ContextFile{p.CreatedFiles, p.DeletedFiles, p.ModifiedFiles} {
		for _, f := range files {
			if f == nil {
				return nil, typef("created, deleted and modified files must not contain nil files")
			}
		}
	}
	if p.IOBytesRead != nil && *p.IOBytesRead < 0 {
		return nil, invalidf("io_bytes_read cannot be negative")
	}
	if p.IOBytesWritten != nil && *p.IOBytesWritten < 0 {
		return nil, invalidf("io_bytes_written cannot be negative")
	}

	if p.IsComplete {
		if p.Name == "" {
			return nil, invalidf("process_name cannot be empty if is_complete is true")
		}
		if *p.PID == UnknownPID {
			return nil, invalidf("process_id cannot be unknown if is_complete is true")
		}
		if p.Path == "" {
			p.warn("ContextProcess", "process_path should not be empty if is_complete is true")
		}
		if p.MD5 == "" && p.SHA256 == "" {
			p.warn("ContextProcess", "process_md5 or process_sha256 should be set if is_complete is true")
		}
		if p.CommandLine == "" {
			p.warn("ContextProcess", "process_command_line should not be empty if is_complete is true")
		}
	}

	relevance, err := relevanceOrDefault(p.DetectionRelevance)
	if err != nil {
		return nil, err
	}
	p.DetectionRelevance = relevance
	return &p, nil
}

// ProcessID returns the pid, or UnknownPID
func (p *ContextProcess) ProcessID() int {
	if p.PID == nil {
		return UnknownPID
	}
	return *p.PID
}

// Relevance returns the detection relevance percentage
func (p *ContextProcess) Relevance() int { return relevanceValue(p.DetectionRelevance) }

func (p *ContextProcess) Projection() Projection {
	return Projection{
		{"timestamp", optionalTime(p.Timestamp)},
		{"related_detection_uuid", p.RelatedDetectionUUID},
		{"detection_relevance", p.DetectionRelevance},
		{"process_name", p.Name},
		{"process_id", p.PID},
		{"parent_process_name", p.ParentName},
		{"parent_process_id", p.ParentPID},
		{"process_path", p.Path},
		{"process_md5", p.MD5},
		{"process_sha1", p.SHA1},
		{"process_sha256", p.SHA256},
		{"process_command_line", p.CommandLine},
		{"process_username", p.Username},
		{"process_integrity_level", p.IntegrityLevel},
		{"process_is_elevated_token", p.IsElevatedToken},
		{"process_token_elevation_type", p.TokenElevationType},
		{"process_token_elevation_type_full", p.TokenElevationTypeFull},
		{"process_token_integrity_level", p.TokenIntegrityLevel},
		{"process_token_integrity_level_full", p.TokenIntegrityLevelFull},
		{"process_privileges", p.Privileges},
		{"process_owner", p.Owner},
		{"process_group_id", p.GroupID},
		{"process_group_name", p.GroupName},
		{"process_logon_guid", p.LogonGUID},
		{"process_logon_id", p.LogonID},
		{"process_logon_type", p.LogonType},
		{"process_logon_type_full", p.LogonTypeFull},
		{"process_logon_time", optionalTime(p.LogonTime)},
		{"process_start_time", optionalTime(p.StartTime)},
		{"process_parent_start_time", optionalTime(p.ParentStartTime)},
		{"process_current_directory", p.CurrentDirectory},
		{"process_image_file_device", p.ImageFileDevice},
		{"process_image_file_directory", p.ImageFileDirectory},
		{"process_image_file_name", p.ImageFileName},
		{"process_image_file_path", p.ImageFilePath},
		{"process_dns", nested(p.DNS)},
		{"process_signature", nested(p.Signature)},
		{"process_http", nested(p.HTTP)},
		{"process_flow", nested(p.Flow)},
		{"process_parent", p.Parent},
		{"process_children", p.Children},
		{"process_environment_variables", p.EnvironmentVariables},
		{"process_arguments", p.Arguments},
		{"parent_process_arguments", p.ParentArguments},
		{"process_modules", p.Modules},
		{"process_thread", p.Thread},
		{"created_files", nestedList(p.CreatedFiles)},
		{"deleted_files", nestedList(p.DeletedFiles)},
		{"modified_files", nestedList(p.ModifiedFiles)},
		{"created_registry_keys", p.CreatedRegistryKeys},
		{"deleted_registry_keys", p.DeletedRegistryKeys},
		{"modified_registry_keys", p.ModifiedRegistryKeys},
		{"process_io_bytes_read", p.IOBytesRead},
		{"process_io_bytes_written", p.IOBytesWritten},
		{"process_io_text", p.IOText},
		{"is_complete", p.IsComplete},
		{"uuid", p.ProcessUUID},
	}
}

func (p *ContextProcess) String() string { return Render(p) }
