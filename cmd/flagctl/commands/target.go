package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flagdeck/flagdeck/internal/store"
)

var (
	targetPercentage int
	targetVariant    string
	targetPriority   int
)

var targetCmd = &cobra.Command{
	Use:   "target",
	Short: "Manage targeting rules",
}

var targetAddCmd = &cobra.Command{
	Use:   "add <flag-key> <type> <value>",
	Short: "Add a targeting rule to a flag",
	Long: `Add a targeting rule. Type is one of: user, role, email, organization,
group, custom. Custom rules match attribute pairs written as key=value.

Examples:
  flagctl target add new-checkout user user-42
  flagctl target add new-checkout role beta --percentage 50 --priority 10
  flagctl target add theme group vip --variant dark
  flagctl target add pricing custom plan=enterprise`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		target := store.Target{
			Type:     store.TargetType(args[1]),
			Value:    args[2],
			Enabled:  true,
			Priority: targetPriority,
		}
		if cmd.Flags().Changed("percentage") {
			target.Percentage = &targetPercentage
		}
		if targetVariant != "" {
			target.VariantKey = &targetVariant
		}

		if _, err := c.AddTarget(context.Background(), args[0], target); err != nil {
			return fmt.Errorf("failed to add target: %w", err)
		}

		if !quiet {
			fmt.Printf("Added %s target '%s' to flag '%s'\n", args[1], args[2], args[0])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(targetCmd)
	targetCmd.AddCommand(targetAddCmd)

	targetAddCmd.Flags().IntVar(&targetPercentage, "percentage", 0, "Percentage gate (0-100)")
	targetAddCmd.Flags().StringVar(&targetVariant, "variant", "", "Pin matched subjects to this variant")
	targetAddCmd.Flags().IntVar(&targetPriority, "priority", 0, "Rule priority (higher first)")
}
