package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"triage/bootstrap"
	"triage/core"
	"triage/ingest"
)

// renderWhitelists prints the lists of categories in scan order
func renderWhitelists(w io.Writer, categories []core.IndicatorCategory, lists map[string][]string) {
	headerColor.Fprintln(w, "GLOBAL WHITELISTS")
	headerColor.Fprintln(w, strings.Repeat("=", 60))
	for _, category := range categories {
		values := lists[string(category)]
		infoColor.Fprintf(w, "%s (%d)\n", category, len(values))
		if len(values) == 0 {
			warningColor.Fprintln(w, "  (empty)")
			continue
		}
		for _, v := range values {
			fmt.Fprintf(w, "  %s\n", v)
		}
	}
}

// auditStatus summarizes the result of an audit record
func auditStatus(r core.AuditRecord) string {
	switch {
	case !r.StageDone:
		return "pending"
	case r.HadErrors:
		return "error"
	case r.HadWarnings:
		return "warning"
	}
	return "success"
}

func colorStatus(w io.Writer, format, status string) {
	switch status {
	case "success":
		successColor.Fprintf(w, format, status)
	case "error":
		errorColor.Fprintf(w, format, status)
	case "warning", "pending":
		warningColor.Fprintf(w, format, status)
	default:
		fmt.Fprintf(w, format, status)
	}
}

// renderAuditTable prints the audit trail of a case
func renderAuditTable(w io.Writer, caseID string, records []core.AuditRecord) {
	if len(records) == 0 {
		warningColor.Fprintf(w, "No audit entries recorded for case %s\n", caseID)
		return
	}

	headerColor.Fprintf(w, "AUDIT TRAIL %s\n", caseID)
	headerColor.Fprintln(w, strings.Repeat("=", 110))
	fmt.Fprintf(w, "%-20s %-6s %-30s %-9s %-6s %-6s %s\n",
		"Playbook", "Stage", "Title", "Status", "Retry", "Done", "Started")
	fmt.Fprintln(w, strings.Repeat("-", 110))

	for _, r := range records {
		title := r.Title
		if len(title) > 29 {
			title = title[:26] + "..."
		}
		fmt.Fprintf(w, "%-20s %-6d %-30s ", truncate(r.Playbook, 19), r.Stage, title)
		colorStatus(w, "%-9s ", auditStatus(r))
		fmt.Fprintf(w, "%-6s %-6s %s\n",
			formatBool(r.RequestRetry), formatBool(r.PlaybookDone), formatTimeSince(r.StartTime))
		if r.Message != "" {
			fmt.Fprintf(w, "    %s\n", r.Message)
		}
		if r.Exception != "" {
			errorColor.Fprintf(w, "    exception: %s\n", r.Exception)
		}
		for _, warning := range r.WarningMessages {
			warningColor.Fprintf(w, "    warning: %s\n", warning)
		}
	}
	fmt.Fprintln(w, strings.Repeat("=", 110))
}

// renderTriageResult prints the outcome of a check run
func renderTriageResult(w io.Writer, res *bootstrap.TriageResult) {
	headerColor.Fprintf(w, "Case %s\n", res.Case.UUID())
	fmt.Fprintf(w, "  Title:       %s\n", res.Case.Title())

	in := res.Case.Indicators()
	fmt.Fprintf(w, "  Indicators:  %d\n", in.Count())
	for _, category := range core.AllIndicatorCategories {
		if values := in.Get(category); len(values) > 0 {
			fmt.Fprintf(w, "    %-10s %s\n", category, strings.Join(values, ", "))
		}
	}

	if res.Whitelisted {
		successColor.Fprintln(w, "  Whitelisted: yes")
	} else {
		infoColor.Fprintln(w, "  Whitelisted: no")
	}
	if res.Archived {
		fmt.Fprintln(w, "  Archived:    yes")
	}

	for _, pr := range res.Results {
		status := "done"
		if !pr.Done {
			status = "error"
		}
		fmt.Fprintf(w, "  Playbook %-20s ", pr.Playbook)
		if pr.Done {
			successColor.Fprintf(w, "%s", status)
		} else {
			errorColor.Fprintf(w, "%s", status)
		}
		fmt.Fprintf(w, " (%d stages, %s)\n", len(pr.Entries), pr.Duration.Round(time.Millisecond))
	}
}

// renderDLQTable prints rejected documents
func renderDLQTable(w io.Writer, entries []*ingest.DLQEntry) {
	if len(entries) == 0 {
		warningColor.Fprintln(w, "No rejected documents")
		return
	}
	headerColor.Fprintln(w, "DEAD-LETTER QUEUE")
	headerColor.Fprintln(w, strings.Repeat("=", 100))
	fmt.Fprintf(w, "%-6s %-30s %-11s %-10s %-8s %s\n", "ID", "Source", "Reason", "Status", "Retries", "Created")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, e := range entries {
		fmt.Fprintf(w, "%-6d %-30s %-11s %-10s %-8d %s\n",
			e.ID, truncate(e.Source, 29), e.ErrorReason, e.Status, e.Retries, formatTimeSince(e.CreatedAt))
		fmt.Fprintf(w, "       %s\n", truncate(e.ErrorDetails, 92))
	}
	fmt.Fprintln(w, strings.Repeat("=", 100))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func formatBool(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// formatTimeSince formats a time as a relative duration
func formatTimeSince(t time.Time) string {
	if t.IsZero() {
		return "Never"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "Just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
	return t.Format("2006-01-02")
}
