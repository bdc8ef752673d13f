// Package cmd provides the command-line interface of triage.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"triage/bootstrap"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// Global flags
var (
	outputJSON bool
	configFile string
	noColor    bool
	quiet      bool
	logLevel   string
)

const defaultTimeout = 5 * time.Minute

// newApp builds the engine the store-backed commands run against. Tests replace it.
var newApp = func(ctx context.Context) (*bootstrap.App, error) {
	return bootstrap.NewApp(ctx, bootstrap.Options{
		ConfigPath: configFile,
		LogLevel:   logLevel,
	})
}

// NewRootCmd creates the triage command with all subcommands
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "triage",
		Short: "Correlate and triage security detections",
		Long: `triage normalizes detections from security tools into cases, extracts their
indicators, checks them against the global whitelists and keeps an audit trail of
every playbook stage run against a case.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}

	root.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	root.PersistentFlags().StringVar(&configFile, "config", "", "Config file path (default: search ./config.yaml, /etc/triage)")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	root.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress non-essential output")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	root.AddCommand(newWhitelistCmd())
	root.AddCommand(newAuditCmd())
	root.AddCommand(newCheckCmd())
	root.AddCommand(newRenderCmd())
	root.AddCommand(newDLQCmd())
	return root
}

// withApp runs fn against a freshly wired app and shuts it down afterwards
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *bootstrap.App) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
	defer cancel()

	app, err := newApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer app.Shutdown()
	return fn(ctx, app)
}

// outputAsJSON writes data as indented JSON
func outputAsJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
