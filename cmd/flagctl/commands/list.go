package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flagdeck/flagdeck/internal/cli"
	"github.com/flagdeck/flagdeck/internal/store"
)

var (
	listEnabledOnly    bool
	listIncludeDeleted bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all feature flags",
	Long: `List all feature flags known to the server.

Examples:
  flagctl list
  flagctl list --format json
  flagctl list --enabled-only`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		flags, err := c.ListFlags(context.Background(), listIncludeDeleted)
		if err != nil {
			return fmt.Errorf("failed to list flags: %w", err)
		}

		if listEnabledOnly {
			var enabled []store.Flag
			for _, f := range flags {
				if f.Enabled {
					enabled = append(enabled, f)
				}
			}
			flags = enabled
		}

		if !quiet {
			if len(flags) == 0 {
				fmt.Println("No flags found")
				return nil
			}
			return cli.PrintFlags(flags, cli.OutputFormat(format))
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().BoolVar(&listEnabledOnly, "enabled-only", false, "Show only enabled flags")
	listCmd.Flags().BoolVar(&listIncludeDeleted, "include-deleted", false, "Include soft-deleted flags")
}
