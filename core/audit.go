package core

import (
	"context"
	"strings"
	"time"
)

// Default result messages
const (
	DefaultSuccessMessage = "The action taken was successful."
	DefaultWarningMessage = "The action taken had warnings, but succeeded"
	DefaultErrorMessage   = "The action taken had errors and failed. Requested retry."
)

// Reserved result_data keys
const (
	ResultDataSuccess       = "success"
	ResultDataWarnings      = "warnings"
	ResultDataError         = "error"
	ResultDataDetectionName = "detection_name"
)

// AuditSink receives every audit entry recorded on a case. Implementations must not
// retain entry beyond the call.
type AuditSink interface {
	Append(ctx context.Context, caseID string, entry *AuditLog) error
}

// AuditOutcome is the result part of a resolved audit entry
type AuditOutcome struct {
	HadWarnings     bool
	HadErrors       bool
	RequestRetry    bool
	Message         string
	InTicket        bool
	Time            time.Time
	Exception       string
	WarningMessages []string
}

// AuditLog records one attempt of a playbook stage against a case.
//
// An entry starts pending, with only its descriptive fields set. SetSuccessful,
// SetWarning or SetError resolve it; a resolved entry carries an AuditOutcome and
// counts as stage done.
type AuditLog struct {
	Playbook            string
	Stage               int
	Title               string
	Description         string
	StartTime           time.Time
	RelatedTicketNumber string
	IsTicketRelated     bool
	PlaybookDone        bool
	ResultData          map[string]interface{}

	outcome *AuditOutcome
}

// NewAuditLog validates a pending entry. StartTime defaults to now.
func NewAuditLog(a AuditLog) (*AuditLog, error) {
	if strings.TrimSpace(a.Playbook) == "" {
		return nil, invalidf("audit log playbook cannot be empty")
	}
	if a.Stage < 0 {
		return nil, invalidf("audit log stage cannot be negative (got %d)", a.Stage)
	}
	if strings.TrimSpace(a.Title) == "" {
		return nil, invalidf("audit log title cannot be empty")
	}
	a.StartTime = timeOrNow(a.StartTime)
	if a.ResultData == nil {
		a.ResultData = make(map[string]interface{})
	}
	a.outcome = nil
	return &a, nil
}

// Key identifies the (playbook, stage) slot the entry occupies in an audit trail
func (a *AuditLog) Key() AuditKey {
	return AuditKey{Playbook: a.Playbook, Stage: a.Stage}
}

// AuditKey is the upsert key of the audit trail
type AuditKey struct {
	Playbook string
	Stage    int
}

// StageDone reports whether the entry has been resolved
func (a *AuditLog) StageDone() bool { return a.outcome != nil }

// Outcome returns the result of a resolved entry
func (a *AuditLog) Outcome() (AuditOutcome, bool) {
	if a.outcome == nil {
		return AuditOutcome{}, false
	}
	out := *a.outcome
	out.WarningMessages = append([]string(nil), a.outcome.WarningMessages...)
	return out, true
}

// RequestRetry reports whether the resolved entry asks for the playbook to be retried
func (a *AuditLog) RequestRetry() bool {
	return a.outcome != nil && a.outcome.RequestRetry
}

func (a *AuditLog) setResultData(key string, data interface{}) {
	if a.ResultData == nil {
		a.ResultData = make(map[string]interface{})
	}
	a.ResultData[key] = data
}

// SetSuccessful resolves the entry as successful. A non-empty ticket number marks
// the result as written to that ticket.
func (a *AuditLog) SetSuccessful(message string, data interface{}, ticketNumber string) *AuditLog {
	if message == "" {
		message = DefaultSuccessMessage
	}
	out := &AuditOutcome{
		Message: message,
		Time:    now(),
	}
	if ticketNumber != "" {
		out.InTicket = true
		a.RelatedTicketNumber = ticketNumber
	}
	a.setResultData(ResultDataSuccess, data)
	a.outcome = out
	return a
}

// SetWarning resolves the entry as succeeded with warnings; no retry is requested.
// Warnings accumulate when an entry is resolved with warnings more than once.
func (a *AuditLog) SetWarning(inTicket bool, warning string, data interface{}) *AuditLog {
	if warning == "" {
		warning = DefaultWarningMessage
	}
	out := &AuditOutcome{
		HadWarnings: true,
		InTicket:    inTicket,
		Time:        now(),
	}
	if a.outcome != nil {
		out.Message = a.outcome.Message
		if a.outcome.HadWarnings {
			out.WarningMessages = append(out.WarningMessages, a.outcome.WarningMessages...)
		}
	}
	out.WarningMessages = append(out.WarningMessages, warning)
	a.setResultData(ResultDataWarnings, data)
	a.outcome = out
	return a
}

// SetError resolves the entry as failed and requests a retry of the playbook
func (a *AuditLog) SetError(inTicket bool, message string, data interface{}, err error) *AuditLog {
	if message == "" {
		message = DefaultErrorMessage
	}
	out := &AuditOutcome{
		HadErrors:    true,
		RequestRetry: true,
		Message:      message,
		InTicket:     inTicket,
		Time:         now(),
	}
	if err != nil {
		out.Exception = err.Error()
	}
	a.setResultData(ResultDataError, data)
	a.outcome = out
	return a
}

// Clone returns a deep copy of the entry. ResultData values are copied shallowly.
func (a *AuditLog) Clone() *AuditLog {
	cp := *a
	if a.ResultData != nil {
		cp.ResultData = make(map[string]interface{}, len(a.ResultData))
		for k, v := range a.ResultData {
			cp.ResultData[k] = v
		}
	}
	if a.outcome != nil {
		out := *a.outcome
		out.WarningMessages = append([]string(nil), a.outcome.WarningMessages...)
		cp.outcome = &out
	}
	return &cp
}

// Projection renders the entry. Result fields only appear once the entry is resolved.
func (a *AuditLog) Projection() Projection {
	p := Projection{
		{"playbook", a.Playbook},
		{"stage", a.Stage},
		{"title", a.Title},
		{"description", a.Description},
		{"start_time", optionalTime(a.StartTime)},
		{"related_ticket_number", a.RelatedTicketNumber},
	}
	if a.outcome != nil {
		p = append(p,
			Field{"result_had_warnings", a.outcome.HadWarnings},
			Field{"result_had_errors", a.outcome.HadErrors},
			Field{"result_request_retry", a.outcome.RequestRetry},
			Field{"result_message", a.outcome.Message},
			Field{"result_data", a.ResultData},
			Field{"result_exception", a.outcome.Exception},
			Field{"result_warning_messages", a.outcome.WarningMessages},
			Field{"result_in_ticket", a.outcome.InTicket},
			Field{"result_time", optionalTime(a.outcome.Time)},
		)
	}
	return append(p,
		Field{"playbook_done", a.PlaybookDone},
		Field{"stage_done", a.StageDone()},
	)
}

func (a *AuditLog) String() string { return Render(a) }

// AuditRecord is the flat, storable form of an AuditLog
type AuditRecord struct {
	CaseID              string                 `json:"case_id" msgpack:"case_id" bson:"case_id"`
	Playbook            string                 `json:"playbook" msgpack:"playbook" bson:"playbook"`
	Stage               int                    `json:"stage" msgpack:"stage" bson:"stage"`
	Title               string                 `json:"title" msgpack:"title" bson:"title"`
	Description         string                 `json:"description,omitempty" msgpack:"description,omitempty" bson:"description,omitempty"`
	StartTime           time.Time              `json:"start_time" msgpack:"start_time" bson:"start_time"`
	RelatedTicketNumber string                 `json:"related_ticket_number,omitempty" msgpack:"related_ticket_number,omitempty" bson:"related_ticket_number,omitempty"`
	IsTicketRelated     bool                   `json:"is_ticket_related" msgpack:"is_ticket_related" bson:"is_ticket_related"`
	PlaybookDone        bool                   `json:"playbook_done" msgpack:"playbook_done" bson:"playbook_done"`
	StageDone           bool                   `json:"stage_done" msgpack:"stage_done" bson:"stage_done"`
	HadWarnings         bool                   `json:"result_had_warnings" msgpack:"result_had_warnings" bson:"result_had_warnings"`
	HadErrors           bool                   `json:"result_had_errors" msgpack:"result_had_errors" bson:"result_had_errors"`
	RequestRetry        bool                   `json:"result_request_retry" msgpack:"result_request_retry" bson:"result_request_retry"`
	Message             string                 `json:"result_message,omitempty" msgpack:"result_message,omitempty" bson:"result_message,omitempty"`
	ResultData          map[string]interface{} `json:"result_data,omitempty" msgpack:"result_data,omitempty" bson:"result_data,omitempty"`
	InTicket            bool                   `json:"result_in_ticket" msgpack:"result_in_ticket" bson:"result_in_ticket"`
	ResultTime          time.Time              `json:"result_time,omitempty" msgpack:"result_time,omitempty" bson:"result_time,omitempty"`
	Exception           string                 `json:"result_exception,omitempty" msgpack:"result_exception,omitempty" bson:"result_exception,omitempty"`
	WarningMessages     []string               `json:"result_warning_messages,omitempty" msgpack:"result_warning_messages,omitempty" bson:"result_warning_messages,omitempty"`
}

// Record flattens the entry for storage under caseID
func (a *AuditLog) Record(caseID string) AuditRecord {
	r := AuditRecord{
		CaseID:              caseID,
		Playbook:            a.Playbook,
		Stage:               a.Stage,
		Title:               a.Title,
		Description:         a.Description,
		StartTime:           a.StartTime,
		RelatedTicketNumber: a.RelatedTicketNumber,
		IsTicketRelated:     a.IsTicketRelated,
		PlaybookDone:        a.PlaybookDone,
		ResultData:          a.Clone().ResultData,
	}
	if a.outcome != nil {
		r.StageDone = true
		r.HadWarnings = a.outcome.HadWarnings
		r.HadErrors = a.outcome.HadErrors
		r.RequestRetry = a.outcome.RequestRetry
		r.Message = a.outcome.Message
		r.InTicket = a.outcome.InTicket
		r.ResultTime = a.outcome.Time
		r.Exception = a.outcome.Exception
		r.WarningMessages = append([]string(nil), a.outcome.WarningMessages...)
	}
	return r
}

// AuditLog rebuilds the entry a record was taken from
func (r AuditRecord) AuditLog() *AuditLog {
	a := &AuditLog{
		Playbook:            r.Playbook,
		Stage:               r.Stage,
		Title:               r.Title,
		Description:         r.Description,
		StartTime:           r.StartTime,
		RelatedTicketNumber: r.RelatedTicketNumber,
		IsTicketRelated:     r.IsTicketRelated,
		PlaybookDone:        r.PlaybookDone,
		ResultData:          r.ResultData,
	}
	if a.ResultData == nil {
		a.ResultData = make(map[string]interface{})
	}
	if r.StageDone {
		a.outcome = &AuditOutcome{
			HadWarnings:     r.HadWarnings,
			HadErrors:       r.HadErrors,
			RequestRetry:    r.RequestRetry,
			Message:         r.Message,
			InTicket:        r.InTicket,
			Time:            r.ResultTime,
			Exception:       r.Exception,
			WarningMessages: r.WarningMessages,
		}
	}
	return a
}
