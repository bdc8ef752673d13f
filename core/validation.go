package core

import (
	"net/netip"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// DefaultIP is the sentinel address meaning "no address supplied" (and, for DNS, "no answer").
const DefaultIP = "127.0.0.1"

// DefaultRelevance is applied when an entity is constructed without a detection relevance.
const DefaultRelevance = 50

// Expected hex lengths of supported file hashes
const (
	MD5Length    = 32
	SHA1Length   = 40
	SHA256Length = 64
)

var hexPattern = regexp.MustCompile(`^[a-fA-F0-9]+$`)

// Percent returns a pointer to v, for optional percentage fields.
func Percent(v int) *int {
	return &v
}

func intPtr(v int) *int { return &v }

// ValidatePercentage checks that an optional percentage lies within [0,100].
func ValidatePercentage(field string, v *int) error {
	if v == nil {
		return nil
	}
	if *v > 100 {
		return invalidf("%s cannot be higher than 100 (got %d)", field, *v)
	}
	if *v < 0 {
		return invalidf("%s cannot be lower than 0 (got %d)", field, *v)
	}
	return nil
}

func relevanceOrDefault(v *int) (*int, error) {
	if v == nil {
		return Percent(DefaultRelevance), nil
	}
	if err := ValidatePercentage("detection_relevance", v); err != nil {
		return nil, err
	}
	out := *v
	return &out, nil
}

func relevanceValue(v *int) int {
	if v == nil {
		return DefaultRelevance
	}
	return *v
}

func validateHash(field, value string, length int) error {
	if value == "" {
		return nil
	}
	if len(value) != length {
		return invalidf("%s must be %d characters (got %d)", field, length, len(value))
	}
	if !hexPattern.MatchString(value) {
		return invalidf("%s must be hexadecimal", field)
	}
	return nil
}

func validateHashes(prefix, md5, sha1, sha256 string) error {
	if err := validateHash(prefix+"_md5", md5, MD5Length); err != nil {
		return err
	}
	if err := validateHash(prefix+"_sha1", sha1, SHA1Length); err != nil {
		return err
	}
	return validateHash(prefix+"_sha256", sha256, SHA256Length)
}

// parseIP validates an address and returns its canonical text form.
func parseIP(field, value string) (string, error) {
	if value == "" {
		return "", invalidf("%s must not be empty", field)
	}
	addr, err := netip.ParseAddr(value)
	if err != nil {
		return "", invalidf("invalid ip address for %s: %q", field, value)
	}
	return addr.Unmap().String(), nil
}

// parseOptionalIP treats an empty value as the DefaultIP sentinel.
func parseOptionalIP(field, value string) (string, error) {
	if value == "" || value == DefaultIP {
		return DefaultIP, nil
	}
	return parseIP(field, value)
}

// IsPrivateIP reports whether an address is internal: RFC 1918/4193, loopback or link-local.
// Unparseable input is reported as not private.
func IsPrivateIP(value string) bool {
	addr, err := netip.ParseAddr(value)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsUnspecified()
}

func isIP(value string) bool {
	_, err := netip.ParseAddr(value)
	return err == nil
}

func validatePort(field string, port int) error {
	if port < 0 || port > 65535 {
		return invalidf("%s must be between 0 and 65535 (got %d)", field, port)
	}
	return nil
}

func newUUIDIfEmpty(id string) string {
	if id == "" {
		return uuid.New().String()
	}
	return id
}

func now() time.Time {
	return time.Now().UTC()
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return now()
	}
	return t
}

func optionalTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
