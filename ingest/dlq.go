package ingest

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DLQ statuses
const (
	DLQStatusPending   = "pending"
	DLQStatusReplayed  = "replayed"
	DLQStatusDiscarded = "discarded"
)

// RejectedDocument is a detection document the loader refused
type RejectedDocument struct {
	Source       string // file path, or "inline"
	RawDocument  string
	ErrorReason  string // metric reason label, e.g. "schema" or "construct"
	ErrorDetails string
}

// DLQEntry is a stored rejected document
type DLQEntry struct {
	ID           int64
	Source       string
	RawDocument  string
	ErrorReason  string
	ErrorDetails string
	Retries      int
	Status       string
	CreatedAt    time.Time
}

// DLQ is a dead-letter queue for rejected detection documents, kept in the
// rejected_documents table of the SQLite database
type DLQ struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewDLQ creates a DLQ on db
func NewDLQ(db *sql.DB, logger *zap.SugaredLogger) *DLQ {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &DLQ{db: db, logger: logger}
}

// Add stores a rejected document as pending
func (d *DLQ) Add(doc *RejectedDocument) error {
	_, err := d.db.Exec(`
		INSERT INTO rejected_documents (source, raw_document, error_reason, error_details, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		doc.Source, doc.RawDocument, doc.ErrorReason, doc.ErrorDetails, DLQStatusPending,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		d.logger.Errorf("Failed to write document to DLQ: %v (source: %s, reason: %s)", err, doc.Source, doc.ErrorReason)
		return fmt.Errorf("failed to write document to DLQ: %w", err)
	}
	d.logger.Debugf("Document written to DLQ: source=%s, reason=%s", doc.Source, doc.ErrorReason)
	return nil
}

// Get retrieves a DLQ entry by ID
func (d *DLQ) Get(id int64) (*DLQEntry, error) {
	row := d.db.QueryRow(`
		SELECT id, source, raw_document, error_reason, error_details, retries, status, created_at
		FROM rejected_documents WHERE id = ?`, id)
	entry, err := scanDLQEntry(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("DLQ entry not found: id=%d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get DLQ entry: %w", err)
	}
	return entry, nil
}

// List returns entries with the given status (all when empty), newest first
func (d *DLQ) List(status string, limit int) ([]*DLQEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, source, raw_document, error_reason, error_details, retries, status, created_at
		FROM rejected_documents`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query DLQ entries: %w", err)
	}
	defer rows.Close()

	var entries []*DLQEntry
	for rows.Next() {
		entry, err := scanDLQEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan DLQ entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// UpdateStatus sets the status of an entry
func (d *DLQ) UpdateStatus(id int64, status string) error {
	switch status {
	case DLQStatusPending, DLQStatusReplayed, DLQStatusDiscarded:
	default:
		return fmt.Errorf("invalid DLQ status %q", status)
	}
	if _, err := d.db.Exec(`UPDATE rejected_documents SET status = ? WHERE id = ?`, status, id); err != nil {
		return fmt.Errorf("failed to update DLQ entry status: %w", err)
	}
	return nil
}

// Replay loads a pending entry again. A successful load marks it replayed; a failed
// one increments its retry counter.
func (d *DLQ) Replay(id int64, loader *Loader) error {
	entry, err := d.Get(id)
	if err != nil {
		return err
	}
	format := FormatJSON
	if entry.Source != "inline" {
		format = FormatFromPath(entry.Source)
	}
	// replays must not enqueue a second copy
	replayer := *loader
	replayer.dlq = nil
	if _, err := replayer.LoadDetection([]byte(entry.RawDocument), format); err != nil {
		if _, incErr := d.db.Exec(`UPDATE rejected_documents SET retries = retries + 1 WHERE id = ?`, id); incErr != nil {
			d.logger.Warnf("Failed to increment DLQ retries: %v", incErr)
		}
		return err
	}
	return d.UpdateStatus(id, DLQStatusReplayed)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDLQEntry(row rowScanner) (*DLQEntry, error) {
	var (
		e         DLQEntry
		createdAt string
	)
	if err := row.Scan(&e.ID, &e.Source, &e.RawDocument, &e.ErrorReason, &e.ErrorDetails,
		&e.Retries, &e.Status, &createdAt); err != nil {
		return nil, err
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &e, nil
}
