package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flagdeck/flagdeck/internal/engine"
)

var (
	evalUser   string
	evalEmail  string
	evalOrg    string
	evalRoles  []string
	evalGroups []string
	evalAttrs  []string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <key>",
	Short: "Evaluate a feature flag for a context",
	Long: `Evaluate a flag against an evaluation context and print the decision
with its reason.

Examples:
  flagctl evaluate new-checkout --user user-42
  flagctl evaluate theme --user vip-1 --roles beta,admin
  flagctl evaluate pricing --attr plan=enterprise`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		ectx := &engine.Context{
			UserID:         evalUser,
			Email:          evalEmail,
			OrganizationID: evalOrg,
			Roles:          evalRoles,
			Groups:         evalGroups,
		}
		for _, attr := range evalAttrs {
			key, value, ok := strings.Cut(attr, "=")
			if !ok {
				return fmt.Errorf("invalid attribute '%s', expected key=value", attr)
			}
			if ectx.Attributes == nil {
				ectx.Attributes = make(map[string]string)
			}
			ectx.Attributes[key] = value
		}

		result, err := c.Evaluate(context.Background(), args[0], ectx)
		if err != nil {
			return fmt.Errorf("evaluation failed: %w", err)
		}

		if quiet {
			return nil
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVar(&evalUser, "user", "", "User ID")
	evaluateCmd.Flags().StringVar(&evalEmail, "email", "", "User email")
	evaluateCmd.Flags().StringVar(&evalOrg, "org", "", "Organization ID")
	evaluateCmd.Flags().StringSliceVar(&evalRoles, "roles", nil, "User roles")
	evaluateCmd.Flags().StringSliceVar(&evalGroups, "groups", nil, "User groups")
	evaluateCmd.Flags().StringArrayVar(&evalAttrs, "attr", nil, "Custom attribute (key=value, repeatable)")
}
