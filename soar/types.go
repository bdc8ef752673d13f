package soar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"triage/core"
)

var (
	// ErrMaxTriesExceeded is returned when a playbook has used up its tries on a case
	ErrMaxTriesExceeded = errors.New("playbook exceeded its maximum number of tries")

	// ErrPlaybookHandled is returned when a playbook already completed on a case
	ErrPlaybookHandled = errors.New("playbook already handled the case")

	// ErrInvalidPlaybook is returned for playbooks that cannot be run
	ErrInvalidPlaybook = errors.New("invalid playbook")
)

// StageFunc performs the work of one playbook stage against a case.
// It is called again on retryable errors, so it should be idempotent.
type StageFunc func(ctx context.Context, cf *core.CaseFile) (StageResult, error)

// StageResult is what a stage reports back when it returns without error
type StageResult struct {
	// Message is the result message; empty uses the default success message
	Message string
	// Warning resolves the stage as succeeded with warnings when set
	Warning string
	// Data is stored in the audit entry's result_data
	Data interface{}
	// TicketNumber marks the result as written to that ticket
	TicketNumber string
}

// Stage is one step of a playbook
type Stage struct {
	Number          int
	Title           string
	Description     string
	IsTicketRelated bool
	// Timeout bounds a single stage run including retries; zero means no timeout
	Timeout time.Duration
	// Retry overrides the runner's retry configuration
	Retry *RetryConfig
	Run   StageFunc
}

// Playbook is an ordered set of stages run against a case
type Playbook struct {
	Name        string
	Description string
	// MaxTries is how often the playbook may start on the same case; zero is unlimited
	MaxTries int
	Stages   []Stage
}

// Validate checks that the playbook can be run
func (p *Playbook) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: playbook must not be nil", ErrInvalidPlaybook)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidPlaybook)
	}
	if p.MaxTries < 0 {
		return fmt.Errorf("%w: max tries cannot be negative", ErrInvalidPlaybook)
	}
	if len(p.Stages) == 0 {
		return fmt.Errorf("%w: %s has no stages", ErrInvalidPlaybook, p.Name)
	}
	seen := make(map[int]struct{}, len(p.Stages))
	for _, s := range p.Stages {
		if s.Number < 0 {
			return fmt.Errorf("%w: %s stage %d has a negative number", ErrInvalidPlaybook, p.Name, s.Number)
		}
		if _, dup := seen[s.Number]; dup {
			return fmt.Errorf("%w: %s has more than one stage %d", ErrInvalidPlaybook, p.Name, s.Number)
		}
		seen[s.Number] = struct{}{}
		if strings.TrimSpace(s.Title) == "" {
			return fmt.Errorf("%w: %s stage %d has no title", ErrInvalidPlaybook, p.Name, s.Number)
		}
		if s.Run == nil {
			return fmt.Errorf("%w: %s stage %d has no function", ErrInvalidPlaybook, p.Name, s.Number)
		}
	}
	return nil
}

// PlaybookResult summarizes one run of a playbook
type PlaybookResult struct {
	Playbook string
	CaseID   string
	// Entries holds the resolved audit entry of every stage that ran, in order
	Entries   []*core.AuditLog
	Done      bool
	StartedAt time.Time
	Duration  time.Duration
}
