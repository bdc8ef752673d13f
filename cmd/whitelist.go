package cmd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"triage/bootstrap"
	"triage/core"
	"triage/storage"

	"github.com/spf13/cobra"
)

var errReadOnlyWhitelist = errors.New("the configured whitelist backend is read-only (whitelist.backend: static)")

func newWhitelistCmd() *cobra.Command {
	wl := &cobra.Command{
		Use:   "whitelist",
		Short: "Manage the global indicator whitelists",
		Long: `Manage the global whitelists indicators are checked against.

Categories: ip, domain, hash, url, email. Domain entries may carry a leading
wildcard ("*.example.com"), which is stripped.`,
	}
	wl.AddCommand(newWhitelistAddCmd())
	wl.AddCommand(newWhitelistRemoveCmd())
	wl.AddCommand(newWhitelistListCmd())
	wl.AddCommand(newWhitelistImportCmd())
	return wl
}

func whitelistAdmin(app *bootstrap.App) (storage.WhitelistAdmin, error) {
	if app.Storage.WhitelistAdmin == nil {
		return nil, errReadOnlyWhitelist
	}
	return app.Storage.WhitelistAdmin, nil
}

func parseCategory(arg string) (core.IndicatorCategory, error) {
	category := core.IndicatorCategory(strings.ToLower(strings.TrimSpace(arg)))
	if !category.IsWhitelistable() {
		return "", fmt.Errorf("%w: %q", storage.ErrInvalidCategory, arg)
	}
	return category, nil
}

func newWhitelistAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "add <category> <value>...",
		Short:   "Add values to a whitelist",
		Example: "  triage whitelist add ip 10.0.0.1 10.0.0.2\n  triage whitelist add domain '*.corp.example'",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := parseCategory(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				admin, err := whitelistAdmin(app)
				if err != nil {
					return err
				}
				if err := admin.Add(ctx, category, args[1:]...); err != nil {
					return fmt.Errorf("failed to add to %s whitelist: %w", category, err)
				}
				if !quiet && !outputJSON {
					successColor.Fprintf(cmd.OutOrStdout(), "✓ Added %d %s entries\n", len(args)-1, category)
				}
				return nil
			})
		},
	}
}

func newWhitelistRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <category> <value>...",
		Aliases: []string{"rm"},
		Short:   "Remove values from a whitelist",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := parseCategory(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				admin, err := whitelistAdmin(app)
				if err != nil {
					return err
				}
				if err := admin.Remove(ctx, category, args[1:]...); err != nil {
					return fmt.Errorf("failed to remove from %s whitelist: %w", category, err)
				}
				if !quiet && !outputJSON {
					successColor.Fprintf(cmd.OutOrStdout(), "✓ Removed %d %s entries\n", len(args)-1, category)
				}
				return nil
			})
		},
	}
}

func newWhitelistListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list [category]",
		Aliases: []string{"ls"},
		Short:   "List whitelist entries",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			categories := core.WhitelistCategories
			if len(args) == 1 {
				category, err := parseCategory(args[0])
				if err != nil {
					return err
				}
				categories = []core.IndicatorCategory{category}
			}
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				lists := make(map[string][]string, len(categories))
				for _, category := range categories {
					values, err := app.Storage.Whitelist.Whitelist(ctx, category)
					if err != nil {
						return fmt.Errorf("failed to list %s whitelist: %w", category, err)
					}
					sorted := append([]string(nil), values...)
					sort.Strings(sorted)
					lists[string(category)] = sorted
				}
				if outputJSON {
					return outputAsJSON(cmd.OutOrStdout(), lists)
				}
				renderWhitelists(cmd.OutOrStdout(), categories, lists)
				return nil
			})
		},
	}
}

func newWhitelistImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import whitelists from a YAML file",
		Long: `Import whitelists from a YAML file mapping categories to values:

  ip:
    - 10.0.0.1
  domain:
    - "*.corp.example"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			static, err := storage.LoadStaticWhitelist(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				admin, err := whitelistAdmin(app)
				if err != nil {
					return err
				}
				n, err := static.Import(ctx, admin)
				if err != nil {
					return fmt.Errorf("failed to import whitelist: %w", err)
				}
				if outputJSON {
					return outputAsJSON(cmd.OutOrStdout(), map[string]int{"imported": n})
				}
				if !quiet {
					successColor.Fprintf(cmd.OutOrStdout(), "✓ Imported %d entries from %s\n", n, args[0])
				}
				return nil
			})
		},
	}
}
