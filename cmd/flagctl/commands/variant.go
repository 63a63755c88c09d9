package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flagdeck/flagdeck/internal/store"
)

var (
	variantValue  string
	variantWeight int
)

var variantCmd = &cobra.Command{
	Use:   "variant",
	Short: "Manage flag variants",
}

var variantAddCmd = &cobra.Command{
	Use:   "add <flag-key> <variant-key>",
	Short: "Add a variant to a flag",
	Long: `Add a named variant with an optional JSON value and weight.

Examples:
  flagctl variant add theme dark --value '{"bg":"#000"}' --weight 50
  flagctl variant add theme light --value '{"bg":"#fff"}' --weight 50`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		variant := store.Variant{
			Key:    args[1],
			Value:  variantValue,
			Weight: variantWeight,
		}
		if _, err := c.AddVariant(context.Background(), args[0], variant); err != nil {
			return fmt.Errorf("failed to add variant: %w", err)
		}

		if !quiet {
			fmt.Printf("Added variant '%s' to flag '%s'\n", args[1], args[0])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(variantCmd)
	variantCmd.AddCommand(variantAddCmd)

	variantAddCmd.Flags().StringVar(&variantValue, "value", "", "Variant value (JSON or raw string)")
	variantAddCmd.Flags().IntVar(&variantWeight, "weight", 0, "Variant weight")
}
