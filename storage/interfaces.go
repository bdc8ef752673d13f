package storage

import (
	"context"
	"fmt"
	"strings"

	"triage/core"
)

// WhitelistAdmin manages the global whitelists served to the engine
type WhitelistAdmin interface {
	core.WhitelistStore
	Add(ctx context.Context, category core.IndicatorCategory, values ...string) error
	Remove(ctx context.Context, category core.IndicatorCategory, values ...string) error
	List(ctx context.Context, category core.IndicatorCategory) ([]string, error)
}

// AuditReader reads back the audit trail a sink persisted for a case
type AuditReader interface {
	ListAudit(ctx context.Context, caseID string) ([]core.AuditRecord, error)
}

// AuditStore is a sink that can also be read back
type AuditStore interface {
	core.AuditSink
	AuditReader
}

func validCategory(category core.IndicatorCategory) error {
	if !category.IsWhitelistable() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}
	return nil
}

// cleanWhitelistValues validates values and trims them. IPs are canonicalized and domain
// wildcards stripped the same way they are on extracted indicators; membership of every
// other value stays exact.
func cleanWhitelistValues(category core.IndicatorCategory, values []string) ([]string, error) {
	if err := validCategory(category); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if err := core.ValidateIndicator(category, v); err != nil {
			return nil, err
		}
		v = strings.TrimSpace(v)
		switch category {
		case core.IndicatorIP:
			// extraction stores addresses in canonical form
			v = core.NormalizeIndicator(category, v)
		case core.IndicatorDomain:
			v = core.StripWildcard(v)
		}
		out = append(out, v)
	}
	return out, nil
}
