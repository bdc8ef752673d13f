package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"triage/core"

	"go.uber.org/zap"
)

// SQLiteWhitelistStore keeps the global whitelists in the whitelist_entries table
type SQLiteWhitelistStore struct {
	db     *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteWhitelistStore creates a whitelist store on db
func NewSQLiteWhitelistStore(db *SQLite) *SQLiteWhitelistStore {
	return &SQLiteWhitelistStore{db: db, logger: db.Logger}
}

// Whitelist returns the entries of category in insertion order
func (s *SQLiteWhitelistStore) Whitelist(ctx context.Context, category core.IndicatorCategory) ([]string, error) {
	rows, err := s.db.ReadDB.QueryContext(ctx,
		`SELECT value FROM whitelist_entries WHERE category = ? ORDER BY rowid`, string(category))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s whitelist: %w", category, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan whitelist entry: %w", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// List is Whitelist restricted to whitelistable categories
func (s *SQLiteWhitelistStore) List(ctx context.Context, category core.IndicatorCategory) ([]string, error) {
	if err := validCategory(category); err != nil {
		return nil, err
	}
	return s.Whitelist(ctx, category)
}

// Add inserts values into the whitelist of category; existing entries are kept
func (s *SQLiteWhitelistStore) Add(ctx context.Context, category core.IndicatorCategory, values ...string) error {
	cleaned, err := cleanWhitelistValues(category, values)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	err = s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR IGNORE INTO whitelist_entries (category, value, created_at) VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, v := range cleaned {
			if _, err := stmt.ExecContext(ctx, string(category), v, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to add %s whitelist entries: %w", category, err)
	}
	s.logger.Infow("Whitelist entries added", "category", category, "count", len(cleaned))
	return nil
}

// Remove deletes values from the whitelist of category
func (s *SQLiteWhitelistStore) Remove(ctx context.Context, category core.IndicatorCategory, values ...string) error {
	cleaned, err := cleanWhitelistValues(category, values)
	if err != nil {
		return err
	}
	err = s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, v := range cleaned {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM whitelist_entries WHERE category = ? AND value = ?`, string(category), v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove %s whitelist entries: %w", category, err)
	}
	s.logger.Infow("Whitelist entries removed", "category", category, "count", len(cleaned))
	return nil
}
