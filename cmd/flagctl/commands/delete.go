package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a feature flag",
	Long: `Soft-delete a feature flag. The flag disappears from reads and
evaluation but its audit trail is preserved.

Examples:
  flagctl delete old-experiment
  flagctl delete old-experiment --force`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]

		if !deleteForce {
			fmt.Printf("Delete flag '%s'? [y/N]: ", key)
			reader := bufio.NewReader(os.Stdin)
			answer, _ := reader.ReadString('\n')
			if answer = strings.TrimSpace(strings.ToLower(answer)); answer != "y" && answer != "yes" {
				fmt.Println("Aborted")
				return nil
			}
		}

		c, err := newClient()
		if err != nil {
			return err
		}

		if err := c.DeleteFlag(context.Background(), key); err != nil {
			return fmt.Errorf("failed to delete flag: %w", err)
		}

		if !quiet {
			fmt.Printf("Successfully deleted flag '%s'\n", key)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)

	deleteCmd.Flags().BoolVar(&deleteForce, "force", false, "Skip the confirmation prompt")
}
