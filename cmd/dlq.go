package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"triage/bootstrap"
	"triage/ingest"

	"github.com/spf13/cobra"
)

var errNoDLQ = errors.New("the dead-letter queue needs sqlite.enabled")

func newDLQCmd() *cobra.Command {
	dlq := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and replay rejected detection documents",
	}
	dlq.AddCommand(newDLQListCmd())
	dlq.AddCommand(newDLQReplayCmd())
	dlq.AddCommand(newDLQDiscardCmd())
	return dlq
}

func newDLQListCmd() *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List rejected documents",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				if app.DLQ == nil {
					return errNoDLQ
				}
				entries, err := app.DLQ.List(status, limit)
				if err != nil {
					return err
				}
				if outputJSON {
					return outputAsJSON(cmd.OutOrStdout(), entries)
				}
				renderDLQTable(cmd.OutOrStdout(), entries)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", ingest.DLQStatusPending, "Filter by status (pending, replayed, discarded; empty for all)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of entries")
	return cmd
}

func parseDLQID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid DLQ entry id %q", arg)
	}
	return id, nil
}

func newDLQReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <id>",
		Short: "Load a rejected document again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDLQID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				if app.DLQ == nil {
					return errNoDLQ
				}
				if err := app.DLQ.Replay(id, app.Loader); err != nil {
					return fmt.Errorf("replay of entry %d failed: %w", id, err)
				}
				if !quiet && !outputJSON {
					successColor.Fprintf(cmd.OutOrStdout(), "✓ Entry %d loads cleanly now\n", id)
				}
				return nil
			})
		},
	}
}

func newDLQDiscardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discard <id>",
		Short: "Mark a rejected document as discarded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDLQID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				if app.DLQ == nil {
					return errNoDLQ
				}
				if err := app.DLQ.UpdateStatus(id, ingest.DLQStatusDiscarded); err != nil {
					return err
				}
				if !quiet && !outputJSON {
					successColor.Fprintf(cmd.OutOrStdout(), "✓ Entry %d discarded\n", id)
				}
				return nil
			})
		},
	}
}
