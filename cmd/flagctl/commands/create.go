package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flagdeck/flagdeck/internal/store"
)

var (
	createEnabled     bool
	createRollout     int
	createType        string
	createDescription string
)

var createCmd = &cobra.Command{
	Use:   "create <key>",
	Short: "Create a new feature flag",
	Long: `Create a new feature flag with the specified key and options.

Examples:
  flagctl create new-checkout --type boolean --enabled --rollout 50
  flagctl create theme --type multivariate --description "Theme experiment"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]

		c, err := newClient()
		if err != nil {
			return err
		}

		flag := store.Flag{
			Key:               key,
			Description:       createDescription,
			Enabled:           createEnabled,
			Type:              store.FlagType(createType),
			RolloutPercentage: createRollout,
		}

		if _, err := c.CreateFlag(context.Background(), flag); err != nil {
			return fmt.Errorf("failed to create flag: %w", err)
		}

		if !quiet {
			fmt.Printf("Successfully created flag '%s'\n", key)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().BoolVar(&createEnabled, "enabled", false, "Enable the flag")
	createCmd.Flags().IntVar(&createRollout, "rollout", 100, "Rollout percentage (0-100)")
	createCmd.Flags().StringVar(&createType, "type", "boolean", "Flag type (boolean, string, number, json, multivariate)")
	createCmd.Flags().StringVar(&createDescription, "description", "", "Flag description")
}
