package core

import (
	"context"
	"fmt"

	"triage/metrics"

	"go.uber.org/zap"
)

// WhitelistStore serves the global allow-lists, one per whitelistable indicator category.
// A missing list is returned as nil with a nil error; errors are reserved for store failures.
type WhitelistStore interface {
	Whitelist(ctx context.Context, category IndicatorCategory) ([]string, error)
}

// WhitelistKey is the cache key a category's global whitelist is stored under
func WhitelistKey(category IndicatorCategory) string {
	switch category {
	case IndicatorIP:
		return "global_whitelist_ips"
	case IndicatorDomain:
		return "global_whitelist_domains"
	case IndicatorHash:
		return "global_whitelist_hashes"
	case IndicatorURL:
		return "global_whitelist_urls"
	case IndicatorEmail:
		return "global_whitelist_emails"
	}
	return "global_whitelist_" + string(category)
}

// WhitelistMatch describes the first indicator found on a whitelist
type WhitelistMatch struct {
	Category IndicatorCategory
	Value    string
}

// checkWhitelist scans the whitelist categories in order and stops at the first
// indicator that is a member of its category's list.
func checkWhitelist(ctx context.Context, in Indicators, store WhitelistStore, log *zap.SugaredLogger) (*WhitelistMatch, error) {
	if store == nil {
		return nil, typef("whitelist store must not be nil")
	}
	for _, category := range WhitelistCategories {
		values := in[category]
		if len(values) == 0 {
			continue
		}
		list, err := store.Whitelist(ctx, category)
		if err != nil {
			metrics.WhitelistChecks.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("failed to fetch %s whitelist: %w", category, err)
		}
		members := cleanWhitelist(list)
		log.Debugf("Found %d %s entries in global whitelist.", len(members), category)

		for _, v := range values {
			if _, ok := members[v]; ok {
				log.Infow("Indicator is whitelisted", "category", category, "value", v)
				metrics.WhitelistChecks.WithLabelValues("hit").Inc()
				metrics.WhitelistHits.WithLabelValues(string(category)).Inc()
				return &WhitelistMatch{Category: category, Value: v}, nil
			}
		}
	}
	log.Debug("Indicators are not whitelisted in the global whitelist.")
	metrics.WhitelistChecks.WithLabelValues("miss").Inc()
	return nil, nil
}

// cleanWhitelist deduplicates a fetched list and drops empty entries
func cleanWhitelist(list []string) map[string]struct{} {
	members := make(map[string]struct{}, len(list))
	for _, v := range list {
		if v == "" {
			continue
		}
		members[v] = struct{}{}
	}
	return members
}

// CheckWhitelist reports whether any of the detection's indicators is on a global
// whitelist. Categories are scanned ip, domain, hash, url, email and the first hit wins.
func (d *Detection) CheckWhitelist(ctx context.Context, store WhitelistStore) (bool, error) {
	match, err := d.WhitelistMatch(ctx, store)
	return match != nil, err
}

// WhitelistMatch returns the first whitelisted indicator of the detection, or nil
func (d *Detection) WhitelistMatch(ctx context.Context, store WhitelistStore) (*WhitelistMatch, error) {
	return checkWhitelist(ctx, d.indicators, store, logger().With("detection", d.UUID))
}

// MapWhitelistStore is an in-memory WhitelistStore
type MapWhitelistStore map[IndicatorCategory][]string

// Whitelist returns the list stored for category
func (m MapWhitelistStore) Whitelist(_ context.Context, category IndicatorCategory) ([]string, error) {
	return m[category], nil
}
