package cmd

import (
	"fmt"

	"triage/core"
	"triage/ingest"

	"github.com/spf13/cobra"
)

func newRenderCmd() *cobra.Command {
	var (
		asCase bool
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "render <detection-file>",
		Short: "Validate a detection document and print its normalized form",
		Long: `Validate a detection document (JSON or YAML) and print the normalized detection
with its extracted indicators. No store is touched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := ingest.NewLoader(nil, ingest.WithStrict(strict))
			if err != nil {
				return err
			}
			d, err := loader.LoadFile(args[0])
			if err != nil {
				return fmt.Errorf("invalid detection: %w", err)
			}

			if asCase {
				cf, err := core.NewCaseFile(d)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cf.String())
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), d.String())
			return nil
		},
	}

	cmd.Flags().BoolVar(&asCase, "case", false, "Render the detection wrapped in a new case")
	cmd.Flags().BoolVar(&strict, "strict", false, "Reject fields outside the detection schema")
	return cmd
}
