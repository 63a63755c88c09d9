package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flagdeck/flagdeck/internal/cli"
	"github.com/flagdeck/flagdeck/internal/store"
)

var (
	updateRollout     int
	updateType        string
	updateDescription string
)

var updateCmd = &cobra.Command{
	Use:   "update <key>",
	Short: "Update a feature flag",
	Long: `Update the mutable fields of a flag. Only explicitly set flags change;
everything else keeps its stored value.

Examples:
  flagctl update new-checkout --rollout 75
  flagctl update new-checkout --description "Gradual checkout rollout"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		params := store.UpdateParams{Key: args[0]}
		if cmd.Flags().Changed("rollout") {
			params.RolloutPercentage = &updateRollout
		}
		if cmd.Flags().Changed("type") {
			flagType := store.FlagType(updateType)
			params.Type = &flagType
		}
		if cmd.Flags().Changed("description") {
			params.Description = &updateDescription
		}
		if params.RolloutPercentage == nil && params.Type == nil && params.Description == nil {
			return fmt.Errorf("nothing to update: set --rollout, --type or --description")
		}

		updated, err := c.UpdateFlag(context.Background(), args[0], params)
		if err != nil {
			return fmt.Errorf("failed to update flag: %w", err)
		}

		if !quiet {
			return cli.PrintFlag(updated, cli.OutputFormat(format))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)

	updateCmd.Flags().IntVar(&updateRollout, "rollout", 0, "Rollout percentage (0-100)")
	updateCmd.Flags().StringVar(&updateType, "type", "", "Flag type")
	updateCmd.Flags().StringVar(&updateDescription, "description", "", "Flag description")
}
