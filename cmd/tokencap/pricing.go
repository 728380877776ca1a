package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"mercator-hq/tokencap/pkg/cli"
	"mercator-hq/tokencap/pkg/config"
	"mercator-hq/tokencap/pkg/pricing"
)

var pricingFlags struct {
	provider string
	format   string
}

var pricingCmd = &cobra.Command{
	Use:   "pricing",
	Short: "Inspect the pricing catalog",
	Long: `Inspect the pricing catalog the gateway estimates costs from.

The catalog starts from the built-in table and merges the overrides file
configured under pricing.overrides_path, so the output reflects exactly
what a running gateway would charge.

Subcommands:
  list - List pricing rows
  show - Resolve one model name the way the gateway would

Examples:
  # List all models
  tokencap pricing list

  # List one provider's models as JSON
  tokencap pricing list --provider openai --format json

  # Export the catalog as CSV
  tokencap pricing list --format csv

  # See which row a model name resolves to
  tokencap pricing show gpt-4o-mini`,
}

var pricingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pricing rows",
	Long:  `List the pricing rows the gateway resolves models against.`,
	RunE:  listPricing,
}

var pricingShowCmd = &cobra.Command{
	Use:   "show <model>",
	Short: "Resolve one model's pricing",
	Long: `Resolve a model name to its pricing row, reporting how it matched
(exact, model, alias, prefix, or fallback).`,
	Args: cobra.ExactArgs(1),
	RunE: showPricing,
}

func init() {
	rootCmd.AddCommand(pricingCmd)
	pricingCmd.AddCommand(pricingListCmd, pricingShowCmd)

	pricingListCmd.Flags().StringVar(&pricingFlags.provider, "provider", "", "filter by provider")
	pricingListCmd.Flags().StringVar(&pricingFlags.format, "format", "text", "output format: text, json, csv")

	pricingShowCmd.Flags().StringVar(&pricingFlags.provider, "provider", "", "provider hint for resolution")
	pricingShowCmd.Flags().StringVar(&pricingFlags.format, "format", "text", "output format: text, json")
}

// loadCatalog builds the pricing catalog exactly as the gateway would:
// built-in table plus the configured overrides file.
func loadCatalog(cmd *cobra.Command) (*pricing.Catalog, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	catalog := pricing.NewCatalog()
	if cfg.Pricing.OverridesPath != "" {
		overrides, err := pricing.LoadOverrides(cfg.Pricing.OverridesPath)
		if err != nil {
			return nil, nil, cli.NewConfigError("pricing.overrides_path", err.Error())
		}
		if err := catalog.ApplyOverrides(overrides); err != nil {
			return nil, nil, cli.NewConfigError("pricing.overrides_path", err.Error())
		}
	}
	return catalog, cfg, nil
}

func listPricing(cmd *cobra.Command, args []string) error {
	catalog, _, err := loadCatalog(cmd)
	if err != nil {
		return err
	}

	rows := catalog.Rows()
	if pricingFlags.provider != "" {
		filtered := rows[:0]
		for _, row := range rows {
			if strings.EqualFold(row.Provider, pricingFlags.provider) {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Provider != rows[j].Provider {
			return rows[i].Provider < rows[j].Provider
		}
		return rows[i].Model < rows[j].Model
	})

	switch pricingFlags.format {
	case "json":
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, map[string]interface{}{
			"models":   rows,
			"fallback": catalog.Fallback(),
			"count":    len(rows),
		})
	case "csv":
		return cli.NewFormatter(cli.FormatCSV).FormatTo(os.Stdout, pricingTable(rows))
	default:
		return printPricingText(rows, catalog.Fallback())
	}
}

func printPricingText(rows []pricing.ModelPricing, fallback pricing.ModelPricing) error {
	fmt.Printf("%-12s %-34s %12s %12s %10s\n", "PROVIDER", "MODEL", "IN $/MTOK", "OUT $/MTOK", "CONTEXT")
	for _, row := range rows {
		model := row.Model
		if row.Deprecated {
			model += " (deprecated)"
		}
		fmt.Printf("%-12s %-34s %12.2f %12.2f %10d\n",
			row.Provider, model, row.InputPerMTok, row.OutputPerMTok, row.ContextWindow)
	}

	fmt.Println()
	fmt.Printf("Fallback: %s/%s ($%.2f in, $%.2f out per MTok)\n",
		fallback.Provider, fallback.Model, fallback.InputPerMTok, fallback.OutputPerMTok)
	fmt.Printf("Total rows: %d\n", len(rows))
	return nil
}

func showPricing(cmd *cobra.Command, args []string) error {
	catalog, _, err := loadCatalog(cmd)
	if err != nil {
		return err
	}

	model := args[0]
	row, match := catalog.Resolve(pricingFlags.provider, model)

	if pricingFlags.format == "json" {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, map[string]interface{}{
			"requested": model,
			"match":     match,
			"pricing":   row,
		})
	}

	fmt.Printf("Requested: %s\n", model)
	fmt.Printf("Resolved: %s/%s (%s match)\n", row.Provider, row.Model, match)
	fmt.Printf("Input: $%.2f per MTok\n", row.InputPerMTok)
	fmt.Printf("Output: $%.2f per MTok\n", row.OutputPerMTok)
	fmt.Printf("Context window: %d tokens\n", row.ContextWindow)
	if row.DefaultMaxOutput > 0 {
		fmt.Printf("Default max output: %d tokens\n", row.DefaultMaxOutput)
	}
	if row.Deprecated {
		fmt.Println("Deprecated: yes")
	}
	if match == pricing.MatchFallback {
		fmt.Println()
		fmt.Println("Unknown model: fallback pricing applies.")
	}
	return nil
}

// pricingTable adapts catalog rows for CSV output.
type pricingTable []pricing.ModelPricing

func (t pricingTable) Header() []string {
	return []string{"provider", "model", "input_per_mtok", "output_per_mtok", "context_window", "default_max_output"}
}

func (t pricingTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, p := range t {
		rows = append(rows, []string{
			p.Provider,
			p.Model,
			strconv.FormatFloat(p.InputPerMTok, 'f', -1, 64),
			strconv.FormatFloat(p.OutputPerMTok, 'f', -1, 64),
			strconv.Itoa(p.ContextWindow),
			strconv.Itoa(p.DefaultMaxOutput),
		})
	}
	return rows
}
