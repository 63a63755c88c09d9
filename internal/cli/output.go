package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/flagdeck/flagdeck/internal/audit"
	"github.com/flagdeck/flagdeck/internal/store"
)

// OutputFormat specifies the output format for CLI commands
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// PrintFlags outputs flags in the specified format
func PrintFlags(flags []store.Flag, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(flags)
	case FormatYAML:
		return printYAML(flags)
	case FormatTable:
		return printFlagTable(flags)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintFlag outputs a single flag in the specified format
func PrintFlag(flag *store.Flag, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(flag)
	case FormatYAML:
		return printYAML(flag)
	case FormatTable:
		return printFlagTable([]store.Flag{*flag})
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintAuditEntries outputs audit entries in the specified format
func PrintAuditEntries(entries []audit.Entry, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(entries)
	case FormatYAML:
		return printYAML(entries)
	case FormatTable:
		return printAuditTable(entries)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func printJSON(data interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	// Wrap slices of store.Flag in a "flags" key for consistency with the API
	if flags, ok := data.([]store.Flag); ok {
		return encoder.Encode(map[string][]store.Flag{"flags": flags})
	}
	return encoder.Encode(data)
}

func printYAML(data interface{}) error {
	encoder := yaml.NewEncoder(os.Stdout)
	defer encoder.Close()
	encoder.SetIndent(2)
	return encoder.Encode(data)
}

func printFlagTable(flags []store.Flag) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Key", "Type", "Enabled", "Rollout", "Variants", "Targets", "Description", "Updated At")

	for _, flag := range flags {
		enabled := "false"
		if flag.Enabled {
			enabled = "true"
		}

		description := flag.Description
		if len(description) > 40 {
			description = description[:37] + "..."
		}

		table.Append(
			flag.Key,
			string(flag.Type),
			enabled,
			fmt.Sprintf("%d%%", flag.RolloutPercentage),
			fmt.Sprintf("%d", len(flag.Variants)),
			fmt.Sprintf("%d", len(flag.Targets)),
			description,
			flag.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}

	return table.Render()
}

func printAuditTable(entries []audit.Entry) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Time", "Flag", "Action", "Actor", "Payload")

	for _, entry := range entries {
		actor := ""
		if entry.ActorID != nil {
			actor = *entry.ActorID
		}

		payload := ""
		if len(entry.Payload) > 0 {
			raw, err := json.Marshal(entry.Payload)
			if err == nil {
				payload = string(raw)
			}
			if len(payload) > 50 {
				payload = payload[:47] + "..."
			}
		}

		table.Append(
			entry.CreatedAt.Format("2006-01-02 15:04:05"),
			entry.FlagKey,
			strings.ReplaceAll(entry.Action, "_", " "),
			actor,
			payload,
		)
	}

	return table.Render()
}
