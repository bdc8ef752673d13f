package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"triage/core"
	"triage/metrics"

	"go.uber.org/zap"
)

// AuditFilters narrows an audit history query
type AuditFilters struct {
	CaseID    string
	Playbook  string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

// ClickHouseAuditSink keeps the full audit history of all cases in ClickHouse.
// Every write is a new row, so both the pending and the resolved version of an
// entry are kept.
type ClickHouseAuditSink struct {
	clickhouse *ClickHouse
	table      string
	logger     *zap.SugaredLogger
}

// NewClickHouseAuditSink creates the sink and ensures its table exists
func NewClickHouseAuditSink(ctx context.Context, clickhouse *ClickHouse, logger *zap.SugaredLogger) (*ClickHouseAuditSink, error) {
	if clickhouse == nil || clickhouse.Conn == nil {
		return nil, fmt.Errorf("ClickHouse %w", ErrConnectionUnavailable)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &ClickHouseAuditSink{
		clickhouse: clickhouse,
		table:      fmt.Sprintf("`%s`.soar_case_audit", clickhouse.Config.Database),
		logger:     logger,
	}
	if err := s.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure audit table: %w", err)
	}
	return s, nil
}

func (s *ClickHouseAuditSink) ensureTable(ctx context.Context) error {
	ttl := ""
	if days := s.clickhouse.Config.TTLDays; days > 0 {
		ttl = fmt.Sprintf("TTL toDateTime(recorded_at) + INTERVAL %d DAY", days)
	}
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		recorded_at DateTime64(3, 'UTC') DEFAULT now64(),
		case_id String,
		playbook LowCardinality(String),
		stage Int32,
		title String,
		description String,
		start_time DateTime64(3, 'UTC'),
		related_ticket_number String,
		is_ticket_related Bool,
		playbook_done Bool,
		stage_done Bool,
		had_warnings Bool,
		had_errors Bool,
		request_retry Bool,
		message String,
		result_data String, -- JSON, secrets redacted
		in_ticket Bool,
		result_time Nullable(DateTime64(3, 'UTC')),
		exception String,
		warning_messages Array(String)
	) ENGINE = MergeTree()
	ORDER BY (case_id, playbook, stage, recorded_at)
	PARTITION BY toYYYYMM(recorded_at)
	%s
	SETTINGS index_granularity = 8192
	`, s.table, ttl)

	if err := s.clickhouse.Conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create soar_case_audit table: %w", err)
	}
	s.logger.Info("SOAR case audit table ensured in ClickHouse")
	return nil
}

// Append inserts the entry as a new history row
func (s *ClickHouseAuditSink) Append(ctx context.Context, caseID string, entry *core.AuditLog) error {
	if entry == nil {
		return fmt.Errorf("%w: audit entry must not be nil", core.ErrType)
	}
	r := entry.Record(caseID)

	resultData, err := json.Marshal(redactSecrets(r.ResultData))
	if err != nil {
		metrics.AuditSinkWrites.WithLabelValues("clickhouse", "error").Inc()
		return fmt.Errorf("failed to marshal result data: %w", err)
	}
	var resultTime *time.Time
	if !r.ResultTime.IsZero() {
		t := r.ResultTime.UTC()
		resultTime = &t
	}
	warnings := r.WarningMessages
	if warnings == nil {
		warnings = []string{}
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (
			recorded_at, case_id, playbook, stage, title, description, start_time,
			related_ticket_number, is_ticket_related, playbook_done, stage_done,
			had_warnings, had_errors, request_retry, message, result_data,
			in_ticket, result_time, exception, warning_messages
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.table)

	err = s.clickhouse.Conn.Exec(ctx, query,
		time.Now().UTC(),
		r.CaseID,
		r.Playbook,
		int32(r.Stage),
		r.Title,
		r.Description,
		r.StartTime.UTC(),
		r.RelatedTicketNumber,
		r.IsTicketRelated,
		r.PlaybookDone,
		r.StageDone,
		r.HadWarnings,
		r.HadErrors,
		r.RequestRetry,
		r.Message,
		string(resultData),
		r.InTicket,
		resultTime,
		r.Exception,
		warnings,
	)
	if err != nil {
		metrics.AuditSinkWrites.WithLabelValues("clickhouse", "error").Inc()
		s.logger.Errorw("Failed to write audit entry", "error", err, "case", caseID, "playbook", r.Playbook)
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	metrics.AuditSinkWrites.WithLabelValues("clickhouse", "success").Inc()
	return nil
}

// ListAudit returns the full history of caseID, oldest first
func (s *ClickHouseAuditSink) ListAudit(ctx context.Context, caseID string) ([]core.AuditRecord, error) {
	records, _, err := s.Query(ctx, AuditFilters{CaseID: caseID, Limit: 1000})
	if err != nil {
		return nil, err
	}
	// Query returns newest first
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// Query returns history rows matching filters, newest first, and the total match count
func (s *ClickHouseAuditSink) Query(ctx context.Context, filters AuditFilters) ([]core.AuditRecord, int64, error) {
	whereClauses := []string{}
	params := []interface{}{}

	if filters.CaseID != "" {
		whereClauses = append(whereClauses, "case_id = ?")
		params = append(params, filters.CaseID)
	}
	if filters.Playbook != "" {
		whereClauses = append(whereClauses, "playbook = ?")
		params = append(params, filters.Playbook)
	}
	if !filters.StartTime.IsZero() {
		whereClauses = append(whereClauses, "recorded_at >= ?")
		params = append(params, filters.StartTime)
	}
	if !filters.EndTime.IsZero() {
		whereClauses = append(whereClauses, "recorded_at <= ?")
		params = append(params, filters.EndTime)
	}

	whereClause := ""
	if len(whereClauses) > 0 {
		whereClause = "WHERE " + strings.Join(whereClauses, " AND ")
	}

	var totalCount uint64
	countQuery := fmt.Sprintf("SELECT count() FROM %s %s", s.table, whereClause)
	if err := s.clickhouse.Conn.QueryRow(ctx, countQuery, params...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit entries: %w", err)
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	offset := max(filters.Offset, 0)

	dataQuery := fmt.Sprintf(`
		SELECT
			case_id, playbook, stage, title, description, start_time,
			related_ticket_number, is_ticket_related, playbook_done, stage_done,
			had_warnings, had_errors, request_retry, message, result_data,
			in_ticket, result_time, exception, warning_messages
		FROM %s
		%s
		ORDER BY recorded_at DESC
		LIMIT ? OFFSET ?
	`, s.table, whereClause)
	params = append(params, limit, offset)

	rows, err := s.clickhouse.Conn.Query(ctx, dataQuery, params...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var records []core.AuditRecord
	for rows.Next() {
		var (
			r          core.AuditRecord
			stage      int32
			resultData string
			resultTime *time.Time
		)
		err := rows.Scan(
			&r.CaseID,
			&r.Playbook,
			&stage,
			&r.Title,
			&r.Description,
			&r.StartTime,
			&r.RelatedTicketNumber,
			&r.IsTicketRelated,
			&r.PlaybookDone,
			&r.StageDone,
			&r.HadWarnings,
			&r.HadErrors,
			&r.RequestRetry,
			&r.Message,
			&resultData,
			&r.InTicket,
			&resultTime,
			&r.Exception,
			&r.WarningMessages,
		)
		if err != nil {
			s.logger.Errorw("Failed to scan audit row", "error", err)
			continue
		}
		r.Stage = int(stage)
		if resultTime != nil {
			r.ResultTime = *resultTime
		}
		if resultData != "" && resultData != "null" {
			if err := json.Unmarshal([]byte(resultData), &r.ResultData); err != nil {
				s.logger.Warnw("Failed to unmarshal result data", "error", err)
			}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating audit rows: %w", err)
	}
	return records, int64(totalCount), nil
}

// redactSecrets masks values whose keys look like credentials, recursing into nested maps
func redactSecrets(params map[string]interface{}) map[string]interface{} {
	if params == nil {
		return nil
	}

	redacted := make(map[string]interface{}, len(params))
	sensitiveKeys := []string{"password", "api_key", "token", "secret", "auth", "credentials", "apikey"}

	for k, v := range params {
		keyLower := strings.ToLower(k)
		isSensitive := false
		for _, sensitive := range sensitiveKeys {
			if strings.Contains(keyLower, sensitive) {
				isSensitive = true
				break
			}
		}

		switch {
		case isSensitive:
			redacted[k] = "[REDACTED]"
		default:
			if nested, ok := v.(map[string]interface{}); ok {
				redacted[k] = redactSecrets(nested)
			} else {
				redacted[k] = v
			}
		}
	}
	return redacted
}
