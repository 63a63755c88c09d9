package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flagdeck/flagdeck/internal/audit"
	"github.com/flagdeck/flagdeck/internal/cli"
)

var (
	auditActor string
	auditLimit int
)

var auditCmd = &cobra.Command{
	Use:   "audit [key]",
	Short: "Show the audit trail",
	Long: `Show audit entries, newest first. With a flag key the trail is
limited to that flag; otherwise recent entries across all flags are shown.

Examples:
  flagctl audit new-checkout
  flagctl audit --actor alice
  flagctl audit --limit 20 --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		ctx := context.Background()
		var entries []audit.Entry
		if len(args) == 1 {
			entries, err = c.FlagAudit(ctx, args[0], auditLimit)
		} else {
			entries, err = c.RecentAudit(ctx, auditActor, auditLimit)
		}
		if err != nil {
			return fmt.Errorf("failed to fetch audit trail: %w", err)
		}

		if !quiet {
			if len(entries) == 0 {
				fmt.Println("No audit entries found")
				return nil
			}
			return cli.PrintAuditEntries(entries, cli.OutputFormat(format))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().StringVar(&auditActor, "actor", "", "Filter by actor")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 0, "Maximum entries to return")
}
