package storage

import (
	"database/sql"
	"fmt"
)

// RegisterSQLiteMigrations registers the schema of the audit, whitelist and DLQ tables
func RegisterSQLiteMigrations(runner *MigrationRunner) {
	runner.Register(Migration{
		Version:     "1.0.0",
		Name:        "initial_schema",
		Description: "case_audit and whitelist_entries tables",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
			CREATE TABLE IF NOT EXISTS case_audit (
				case_id TEXT NOT NULL,
				playbook TEXT NOT NULL,
				stage INTEGER NOT NULL,
				title TEXT NOT NULL,
				stage_done INTEGER NOT NULL DEFAULT 0,
				playbook_done INTEGER NOT NULL DEFAULT 0,
				request_retry INTEGER NOT NULL DEFAULT 0,
				record TEXT NOT NULL, -- JSON AuditRecord
				updated_at TEXT NOT NULL,
				PRIMARY KEY (case_id, playbook, stage)
			);

			CREATE TABLE IF NOT EXISTS whitelist_entries (
				category TEXT NOT NULL,
				value TEXT NOT NULL,
				created_at TEXT NOT NULL,
				PRIMARY KEY (category, value)
			);`)
			return err
		},
	})

	runner.Register(Migration{
		Version:     "1.1.0",
		Name:        "index_audit_playbook",
		Description: "Index audit rows by playbook and retry state for retry scans",
		Up: func(tx *sql.Tx) error {
			return createIndexIfNotExists(tx, "idx_case_audit_playbook_retry", "case_audit", "playbook, request_retry")
		},
	})

	runner.Register(Migration{
		Version:     "1.2.0",
		Name:        "index_audit_updated_at",
		Description: "Index audit rows by update time for retention",
		Up: func(tx *sql.Tx) error {
			return createIndexIfNotExists(tx, "idx_case_audit_updated_at", "case_audit", "updated_at")
		},
	})

	runner.Register(Migration{
		Version:     "1.3.0",
		Name:        "rejected_documents",
		Description: "Dead-letter queue for detection documents the loader rejected",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
			CREATE TABLE IF NOT EXISTS rejected_documents (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				source TEXT NOT NULL,
				raw_document TEXT NOT NULL,
				error_reason TEXT NOT NULL,
				error_details TEXT NOT NULL,
				retries INTEGER NOT NULL DEFAULT 0,
				status TEXT NOT NULL DEFAULT 'pending',
				created_at TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_rejected_documents_status ON rejected_documents(status);`)
			return err
		},
	})
}

// migrate brings the schema of s up to date
func (s *SQLite) migrate() error {
	runner, err := NewMigrationRunner(s.WriteDB, s.Logger)
	if err != nil {
		return err
	}
	RegisterSQLiteMigrations(runner)
	if err := runner.Run(); err != nil {
		return err
	}

	issues, err := runner.VerifyIntegrity()
	if err != nil {
		return fmt.Errorf("failed to verify migrations: %w", err)
	}
	for _, issue := range issues {
		s.Logger.Warnf("Schema migration integrity issue: %s", issue)
	}
	return nil
}
