package cmd

import (
	"context"
	"errors"
	"fmt"

	"triage/bootstrap"

	"github.com/spf13/cobra"
)

func newAuditCmd() *cobra.Command {
	audit := &cobra.Command{
		Use:   "audit",
		Short: "Inspect case audit trails",
	}
	audit.AddCommand(newAuditShowCmd())
	audit.AddCommand(newAuditRetriesCmd())
	return audit
}

func newAuditShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <case-uuid>",
		Short: "Show the audit trail recorded for a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				if app.Storage.AuditReader == nil {
					return errors.New("no readable audit sink configured (audit.sinks needs sqlite, redis or clickhouse)")
				}
				records, err := app.Storage.AuditReader.ListAudit(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to read audit trail: %w", err)
				}
				if outputJSON {
					return outputAsJSON(cmd.OutOrStdout(), records)
				}
				renderAuditTable(cmd.OutOrStdout(), args[0], records)
				return nil
			})
		},
	}
}

func newAuditRetriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retries <playbook>",
		Short: "List cases whose last run of a playbook requested a retry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				if app.Storage.SQLiteAudit == nil {
					return errors.New("retry lookup needs the sqlite audit sink")
				}
				cases, err := app.Storage.SQLiteAudit.PendingRetries(ctx, args[0])
				if err != nil {
					return err
				}
				if outputJSON {
					return outputAsJSON(cmd.OutOrStdout(), cases)
				}
				if len(cases) == 0 {
					warningColor.Fprintf(cmd.OutOrStdout(), "No case awaits a retry of %s\n", args[0])
					return nil
				}
				for _, id := range cases {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
	}
}
