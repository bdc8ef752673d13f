package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"triage/bootstrap"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

// checkOutput is the JSON form of a triage result
type checkOutput struct {
	Case        string           `json:"case"`
	Title       string           `json:"title"`
	Whitelisted bool             `json:"whitelisted"`
	Archived    bool             `json:"archived"`
	Playbooks   []playbookOutput `json:"playbooks"`
	Error       string           `json:"error,omitempty"`
	Rendered    json.RawMessage  `json:"rendered,omitempty"`
}

type playbookOutput struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Stages   int    `json:"stages"`
	Duration string `json:"duration"`
}

func newCheckCmd() *cobra.Command {
	var (
		showProgress bool
		showCase     bool
	)

	cmd := &cobra.Command{
		Use:   "check <detection-file>...",
		Short: "Build a case from detection files and run the playbooks over it",
		Long: `Load one or more detection documents (JSON or YAML), correlate them into a
single case, and run every playbook against it. Documents that fail validation are
recorded in the dead-letter queue.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				var s *spinner.Spinner
				if showProgress && !outputJSON && !quiet {
					s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
					s.Suffix = " Triaging case..."
					s.Start()
				}

				app.Start(ctx)
				res, err := app.TriageFiles(ctx, args...)

				if s != nil {
					s.Stop()
				}
				if res == nil {
					return err
				}

				if outputJSON {
					out := checkOutput{
						Case:        res.Case.UUID(),
						Title:       res.Case.Title(),
						Whitelisted: res.Whitelisted,
						Archived:    res.Archived,
					}
					for _, pr := range res.Results {
						out.Playbooks = append(out.Playbooks, playbookOutput{
							Name:     pr.Playbook,
							Done:     pr.Done,
							Stages:   len(pr.Entries),
							Duration: pr.Duration.String(),
						})
					}
					if err != nil {
						out.Error = err.Error()
					}
					if showCase {
						out.Rendered = json.RawMessage(res.Case.String())
					}
					if encErr := outputAsJSON(cmd.OutOrStdout(), out); encErr != nil {
						return encErr
					}
					return err
				}

				renderTriageResult(cmd.OutOrStdout(), res)
				if showCase {
					headerColor.Fprintln(cmd.OutOrStdout(), "CASE")
					fmt.Fprintln(cmd.OutOrStdout(), res.Case.String())
				}
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&showProgress, "progress", true, "Show progress indicator")
	cmd.Flags().BoolVar(&showCase, "show-case", false, "Print the rendered case")
	return cmd
}
