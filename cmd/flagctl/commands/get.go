package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flagdeck/flagdeck/internal/cli"
)

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a feature flag by key",
	Long: `Get a single feature flag with its variants and targeting rules.

Examples:
  flagctl get new-checkout
  flagctl get new-checkout --format yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		flag, err := c.GetFlag(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get flag: %w", err)
		}

		if !quiet {
			return cli.PrintFlag(flag, cli.OutputFormat(format))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
