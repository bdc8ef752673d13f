package core

import (
	"strings"
	"time"
)

// FileEpoch is the last-modified time assigned to files that report none
var FileEpoch = time.Unix(0, 0).UTC()

// FileFlags are the boolean attributes reported for a file
type FileFlags struct {
	Encrypted  bool
	Compressed bool
	Archive    bool
	Executable bool
	Readable   bool
	Writable   bool
	Hidden     bool
	System     bool
	Temporary  bool
	Virtual    bool
	Directory  bool
	Symlink    bool
	// Special covers sockets, pipes, pid files and similar
	Special bool
	Unknown bool
}

// ContextFile is a file seen on disk, in transit or as a process artifact
type ContextFile struct {
	RelatedDetectionUUID string
	Name                 string
	Path                 string
	Size                 int64
	MD5                  string
	SHA1                 string
	SHA256               string
	Type                 string
	// Extension is stored without the leading dot
	Extension    string
	Signature    *Certificate
	LastModified time.Time
	Flags        FileFlags
	Action       string
	OriginalName string
	OriginalPath string
	// HeaderBytes holds the leading bytes of the file, hex encoded
	HeaderBytes        string
	Entropy            *float64
	UUID               string
	DetectionRelevance *int
}

// NewContextFile validates f and applies defaults
func NewContextFile(f ContextFile) (*ContextFile, error) {
	if strings.TrimSpace(f.Name) == "" {
		return nil, invalidf("file_name cannot be empty")
	}
	if f.Size < 0 {
		return nil, invalidf("file_size must not be negative")
	}
	if err := validateHashes("file", f.MD5, f.SHA1, f.SHA256); err != nil {
		return nil, err
	}
	if f.Entropy != nil && (*f.Entropy < 0 || *f.Entropy > 8) {
		return nil, invalidf("file_entropy must be between 0 and 8 (got %f)", *f.Entropy)
	}
	f.Extension = strings.TrimPrefix(f.Extension, ".")
	if f.LastModified.IsZero() {
		f.LastModified = FileEpoch
	}

	relevance, err := relevanceOrDefault(f.DetectionRelevance)
	if err != nil {
		return nil, err
	}
	f.DetectionRelevance = relevance
	f.UUID = newUUIDIfEmpty(f.UUID)
	return &f, nil
}

// Relevance returns the detection relevance percentage
func (f *ContextFile) Relevance() int { return relevanceValue(f.DetectionRelevance) }

// Hashes returns the non-empty hashes of the file
func (f *ContextFile) Hashes() []string {
	var out []string
	for _, h := range []string{f.MD5, f.SHA1, f.SHA256} {
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}

func (f *ContextFile) Projection() Projection {
	return Projection{
		{"related_detection_uuid", f.RelatedDetectionUUID},
		{"detection_relevance", f.DetectionRelevance},
		{"file_name", f.Name},
		{"file_path", f.Path},
		{"file_size", f.Size},
		{"file_md5", f.MD5},
		{"file_sha1", f.SHA1},
		{"file_sha256", f.SHA256},
		{"file_type", f.Type},
		{"file_extension", f.Extension},
		{"file_signature", nested(f.Signature)},
		{"is_encrypted", f.Flags.Encrypted},
		{"is_compressed", f.Flags.Compressed},
		{"is_archive", f.Flags.Archive},
		{"is_executable", f.Flags.Executable},
		{"is_readable", f.Flags.Readable},
		{"is_writable", f.Flags.Writable},
		{"is_hidden", f.Flags.Hidden},
		{"is_system", f.Flags.System},
		{"is_temporary", f.Flags.Temporary},
		{"is_virtual", f.Flags.Virtual},
		{"is_directory", f.Flags.Directory},
		{"is_symlink", f.Flags.Symlink},
		{"is_special", f.Flags.Special},
		{"is_unknown", f.Flags.Unknown},
		{"action", f.Action},
		{"original_name", f.OriginalName},
		{"original_path", f.OriginalPath},
		{"header_bytes", f.HeaderBytes},
		{"entropy", f.Entropy},
		{"last_modified", optionalTime(f.LastModified)},
		{"timestamp", optionalTime(f.LastModified)},
		{"uuid", f.UUID},
	}
}

func (f *ContextFile) String() string { return Render(f) }
