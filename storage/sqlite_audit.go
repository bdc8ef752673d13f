package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"triage/core"
	"triage/metrics"
)

// SQLiteAuditSink keeps the latest entry per (case, playbook, stage), mirroring the
// upsert semantics of the in-memory audit trail.
type SQLiteAuditSink struct {
	db *SQLite
}

// NewSQLiteAuditSink creates an audit sink on db
func NewSQLiteAuditSink(db *SQLite) *SQLiteAuditSink {
	return &SQLiteAuditSink{db: db}
}

// Append upserts the entry under caseID
func (s *SQLiteAuditSink) Append(ctx context.Context, caseID string, entry *core.AuditLog) error {
	if entry == nil {
		return fmt.Errorf("%w: audit entry must not be nil", core.ErrType)
	}
	record := entry.Record(caseID)
	data, err := json.Marshal(record)
	if err != nil {
		metrics.AuditSinkWrites.WithLabelValues("sqlite", "error").Inc()
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}

	query := `
		INSERT INTO case_audit (case_id, playbook, stage, title, stage_done, playbook_done, request_retry, record, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(case_id, playbook, stage) DO UPDATE SET
			title = excluded.title,
			stage_done = excluded.stage_done,
			playbook_done = excluded.playbook_done,
			request_retry = excluded.request_retry,
			record = excluded.record,
			updated_at = excluded.updated_at
	`
	_, err = s.db.WriteDB.ExecContext(ctx, query,
		caseID,
		record.Playbook,
		record.Stage,
		record.Title,
		record.StageDone,
		record.PlaybookDone,
		record.RequestRetry,
		string(data),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		metrics.AuditSinkWrites.WithLabelValues("sqlite", "error").Inc()
		return fmt.Errorf("failed to upsert audit entry: %w", err)
	}
	metrics.AuditSinkWrites.WithLabelValues("sqlite", "success").Inc()
	return nil
}

// ListAudit returns the entries of caseID in the order their slots were first written
func (s *SQLiteAuditSink) ListAudit(ctx context.Context, caseID string) ([]core.AuditRecord, error) {
	rows, err := s.db.ReadDB.QueryContext(ctx,
		`SELECT record FROM case_audit WHERE case_id = ? ORDER BY rowid`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	return scanAuditRecords(rows)
}

// ListByPlaybook returns the entries written by playbook across all cases
func (s *SQLiteAuditSink) ListByPlaybook(ctx context.Context, playbook string) ([]core.AuditRecord, error) {
	rows, err := s.db.ReadDB.QueryContext(ctx,
		`SELECT record FROM case_audit WHERE playbook = ? ORDER BY case_id, stage`, playbook)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	return scanAuditRecords(rows)
}

// PendingRetries lists the cases whose playbook requested a retry and has not completed since
func (s *SQLiteAuditSink) PendingRetries(ctx context.Context, playbook string) ([]string, error) {
	rows, err := s.db.ReadDB.QueryContext(ctx, `
		SELECT DISTINCT case_id FROM case_audit
		WHERE playbook = ? AND request_retry = 1
		AND case_id NOT IN (SELECT case_id FROM case_audit WHERE playbook = ? AND playbook_done = 1)
		ORDER BY case_id`, playbook, playbook)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending retries: %w", err)
	}
	defer rows.Close()

	var cases []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan case id: %w", err)
		}
		cases = append(cases, id)
	}
	return cases, rows.Err()
}

func scanAuditRecords(rows *sql.Rows) ([]core.AuditRecord, error) {
	defer rows.Close()

	var records []core.AuditRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		var r core.AuditRecord
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("failed to decode audit entry: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit rows: %w", err)
	}
	return records, nil
}
