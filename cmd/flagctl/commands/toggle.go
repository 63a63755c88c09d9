package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var toggleCmd = &cobra.Command{
	Use:   "toggle <key> <on|off>",
	Short: "Enable or disable a feature flag",
	Long: `Flip the global kill switch of a flag.

Examples:
  flagctl toggle new-checkout on
  flagctl toggle new-checkout off`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var enabled bool
		switch args[1] {
		case "on":
			enabled = true
		case "off":
			enabled = false
		default:
			return fmt.Errorf("state must be 'on' or 'off', got '%s'", args[1])
		}

		c, err := newClient()
		if err != nil {
			return err
		}

		if _, err := c.ToggleFlag(context.Background(), args[0], enabled); err != nil {
			return fmt.Errorf("failed to toggle flag: %w", err)
		}

		if !quiet {
			fmt.Printf("Flag '%s' is now %s\n", args[0], args[1])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(toggleCmd)
}
