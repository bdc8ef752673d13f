package storage

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// Migration is one versioned schema change
type Migration struct {
	Version     string // semantic version, e.g. "1.0.0"
	Name        string
	Description string
	Up          func(*sql.Tx) error
	Checksum    string
}

// MigrationRecord is a row of schema_migrations
type MigrationRecord struct {
	Version   string
	Name      string
	Checksum  string
	AppliedAt time.Time
	Duration  int64 // milliseconds
}

// MigrationRunner applies registered migrations in version order, each in its own transaction
type MigrationRunner struct {
	db         *sql.DB
	logger     *zap.SugaredLogger
	migrations []Migration
}

// NewMigrationRunner creates a runner on db and ensures schema_migrations exists
func NewMigrationRunner(db *sql.DB, logger *zap.SugaredLogger) (*MigrationRunner, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	r := &MigrationRunner{db: db, logger: logger}
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		checksum TEXT NOT NULL,
		applied_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0
	)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}
	return r, nil
}

// Register adds a migration. The checksum defaults to a hash of version and name.
func (r *MigrationRunner) Register(m Migration) {
	if m.Checksum == "" {
		m.Checksum = fmt.Sprintf("%016x", xxhash.Sum64String(m.Version+":"+m.Name))
	}
	r.migrations = append(r.migrations, m)
}

// Applied returns the applied migrations, oldest version first
func (r *MigrationRunner) Applied() ([]MigrationRecord, error) {
	rows, err := r.db.Query(`SELECT version, name, checksum, applied_at, duration_ms FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	var records []MigrationRecord
	for rows.Next() {
		var (
			rec       MigrationRecord
			appliedAt string
		)
		if err := rows.Scan(&rec.Version, &rec.Name, &rec.Checksum, &appliedAt, &rec.Duration); err != nil {
			return nil, fmt.Errorf("failed to scan migration record: %w", err)
		}
		rec.AppliedAt, _ = time.Parse(time.RFC3339Nano, appliedAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return compareVersions(records[i].Version, records[j].Version) < 0
	})
	return records, nil
}

// Pending returns the registered migrations not applied yet, in version order
func (r *MigrationRunner) Pending() ([]Migration, error) {
	applied, err := r.Applied()
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(applied))
	for _, rec := range applied {
		done[rec.Version] = true
	}

	var pending []Migration
	for _, m := range r.migrations {
		if !done[m.Version] {
			pending = append(pending, m)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return compareVersions(pending[i].Version, pending[j].Version) < 0
	})
	return pending, nil
}

// Run applies all pending migrations and stops at the first failure
func (r *MigrationRunner) Run() error {
	pending, err := r.Pending()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		r.logger.Debug("No pending migrations")
		return nil
	}

	r.logger.Infof("Running %d pending migrations", len(pending))
	for _, m := range pending {
		if err := r.apply(m); err != nil {
			return fmt.Errorf("migration %s (%s) failed: %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// apply runs one migration; a panicking Up is rolled back and reported as an error
func (r *MigrationRunner) apply(m Migration) (err error) {
	start := time.Now()
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("migration panicked: %v", p)
		}
	}()

	if err := m.Up(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	duration := time.Since(start).Milliseconds()
	_, err = tx.Exec(`INSERT INTO schema_migrations (version, name, checksum, applied_at, duration_ms) VALUES (?, ?, ?, ?, ?)`,
		m.Version, m.Name, m.Checksum, time.Now().UTC().Format(time.RFC3339Nano), duration)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to record migration: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	r.logger.Infof("Migration %s (%s) applied in %dms", m.Version, m.Name, duration)
	return nil
}

// VerifyIntegrity reports applied migrations that are no longer registered or whose
// checksum changed
func (r *MigrationRunner) VerifyIntegrity() ([]string, error) {
	applied, err := r.Applied()
	if err != nil {
		return nil, err
	}
	registered := make(map[string]Migration, len(r.migrations))
	for _, m := range r.migrations {
		registered[m.Version] = m
	}

	var issues []string
	for _, rec := range applied {
		m, ok := registered[rec.Version]
		switch {
		case !ok:
			issues = append(issues, fmt.Sprintf("migration %s was applied but is not registered", rec.Version))
		case m.Checksum != rec.Checksum:
			issues = append(issues, fmt.Sprintf("migration %s checksum mismatch: applied=%s, registered=%s",
				rec.Version, rec.Checksum, m.Checksum))
		}
	}
	return issues, nil
}

// compareVersions compares two dotted versions numerically
func compareVersions(a, b string) int {
	partsA := strings.Split(a, ".")
	partsB := strings.Split(b, ".")
	n := max(len(partsA), len(partsB))

	for i := 0; i < n; i++ {
		var numA, numB int
		if i < len(partsA) {
			fmt.Sscanf(partsA[i], "%d", &numA)
		}
		if i < len(partsB) {
			fmt.Sscanf(partsB[i], "%d", &numB)
		}
		if numA != numB {
			if numA < numB {
				return -1
			}
			return 1
		}
	}
	return 0
}

// validateSQLIdentifier rejects anything but letters, digits and underscores
func validateSQLIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("SQL identifier cannot be empty")
	}
	if !(name[0] >= 'a' && name[0] <= 'z' || name[0] >= 'A' && name[0] <= 'Z' || name[0] == '_') {
		return fmt.Errorf("invalid SQL identifier %q: must start with letter or underscore", name)
	}
	for i := 1; i < len(name); i++ {
		c := name[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_') {
			return fmt.Errorf("invalid SQL identifier %q: contains invalid character at position %d", name, i)
		}
	}
	return nil
}

func createIndexIfNotExists(tx *sql.Tx, indexName, table, columns string) error {
	for _, ident := range append([]string{indexName, table}, strings.Split(columns, ",")...) {
		if err := validateSQLIdentifier(strings.TrimSpace(ident)); err != nil {
			return err
		}
	}
	_, err := tx.Exec(fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", indexName, table, columns))
	return err
}
