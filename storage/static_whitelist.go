package storage

import (
	"context"
	"fmt"
	"os"

	"triage/core"

	"gopkg.in/yaml.v3"
)

// StaticWhitelistStore serves whitelists loaded once from a YAML file of the form
//
//	ip: [10.0.0.1]
//	domain: [example.com]
//	hash: []
//	url: []
//	email: []
type StaticWhitelistStore struct {
	core.MapWhitelistStore
}

// LoadStaticWhitelist reads and validates a whitelist file
func LoadStaticWhitelist(path string) (*StaticWhitelistStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read whitelist file: %w", err)
	}
	return ParseStaticWhitelist(data)
}

// ParseStaticWhitelist parses whitelist YAML. Unknown categories and invalid entries
// are rejected.
func ParseStaticWhitelist(data []byte) (*StaticWhitelistStore, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse whitelist YAML: %w", err)
	}

	store := core.MapWhitelistStore{}
	for key, values := range raw {
		category := core.IndicatorCategory(key)
		cleaned, err := cleanWhitelistValues(category, values)
		if err != nil {
			return nil, fmt.Errorf("whitelist %s: %w", key, err)
		}
		store[category] = cleaned
	}
	return &StaticWhitelistStore{MapWhitelistStore: store}, nil
}

// Categories returns the loaded lists keyed by category, for export
func (s *StaticWhitelistStore) Categories() map[core.IndicatorCategory][]string {
	out := make(map[core.IndicatorCategory][]string, len(s.MapWhitelistStore))
	for k, v := range s.MapWhitelistStore {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Import adds every list of s to admin
func (s *StaticWhitelistStore) Import(ctx context.Context, admin WhitelistAdmin) (int, error) {
	total := 0
	for _, category := range core.WhitelistCategories {
		values := s.MapWhitelistStore[category]
		if len(values) == 0 {
			continue
		}
		if err := admin.Add(ctx, category, values...); err != nil {
			return total, err
		}
		total += len(values)
	}
	return total, nil
}
