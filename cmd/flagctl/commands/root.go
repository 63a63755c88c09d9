package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flagdeck/flagdeck/internal/cli"
	"github.com/flagdeck/flagdeck/internal/client"
)

var (
	// Global flags
	baseURL string
	apiKey  string
	profile string
	format  string
	actor   string
	quiet   bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "flagctl",
	Short: "CLI tool for managing feature flags",
	Long: `Flagctl is a command-line tool for managing feature flags in a flagdeck server.

It provides commands for creating, reading, updating, and deleting flags,
as well as evaluating flags and inspecting the audit trail.

Examples:
  flagctl list
  flagctl create new-checkout --type boolean --enabled --rollout 50
  flagctl get new-checkout --format json
  flagctl evaluate new-checkout --user user-42
  flagctl audit new-checkout`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Base URL of the flagdeck API")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for authentication")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "Config profile to use")
	rootCmd.PersistentFlags().StringVar(&format, "format", "table", "Output format (table, json, yaml)")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "Actor recorded on the audit trail")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress output")
}

// newClient builds an API client from flags, environment and the config file.
func newClient() (*client.Client, error) {
	p, err := cli.GetProfile(profile, baseURL, apiKey)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	c := client.NewClient(p.BaseURL, p.APIKey)
	c.ActorID = actor
	return c, nil
}
