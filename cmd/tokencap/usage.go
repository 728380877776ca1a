package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"mercator-hq/tokencap/pkg/cli"
	"mercator-hq/tokencap/pkg/config"
	"mercator-hq/tokencap/pkg/ledger"
	"mercator-hq/tokencap/pkg/pricing"
)

var usageFlags struct {
	project string
	limit   int
	format  string
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Query the usage ledger",
	Long: `Query the usage ledger the gateway charges requests to.

Commands read the ledger database configured under database.path, so they
see exactly what a running gateway has recorded.

Subcommands:
  summary - Aggregate totals and budget state for a project
  history - Recent charged requests for a project

Examples:
  # Summarize the default project
  tokencap usage summary

  # Summarize a named project
  tokencap usage summary --project powertrain

  # Show the last 20 charges as JSON
  tokencap usage history --project powertrain --limit 20 --format json

  # Export history as CSV
  tokencap usage history --format csv > usage.csv`,
}

var usageSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Aggregate a project's recorded spend",
	Long:  `Aggregate request counts, token totals, cost, and budget state for a project.`,
	RunE:  summarizeUsage,
}

var usageHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List a project's recent charges",
	Long:  `List the most recent usage records charged to a project, newest first.`,
	RunE:  listUsageHistory,
}

func init() {
	rootCmd.AddCommand(usageCmd)
	usageCmd.AddCommand(usageSummaryCmd, usageHistoryCmd)

	usageCmd.PersistentFlags().StringVar(&usageFlags.project, "project", "", "project ID (uses defaults.project_id if not specified)")
	usageCmd.PersistentFlags().StringVar(&usageFlags.format, "format", "text", "output format: text, json, csv")

	usageHistoryCmd.Flags().IntVar(&usageFlags.limit, "limit", 50, "max records")
}

// openLedger opens the configured ledger database for CLI queries.
func openLedger(cmd *cobra.Command) (*ledger.Store, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	store, err := ledger.Open(&ledger.Config{
		Path:         cfg.Database.Path,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		BusyTimeout:  cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, nil, cli.NewCommandError(cmd.Name(), fmt.Errorf("failed to open ledger: %w", err))
	}
	return store, cfg, nil
}

func summarizeUsage(cmd *cobra.Command, args []string) error {
	store, cfg, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	project := usageFlags.project
	if project == "" {
		project = cfg.Defaults.ProjectID
	}

	summary, err := store.GetUsageSummary(context.Background(), project)
	if err != nil {
		return cli.NewCommandError("usage", fmt.Errorf("summary query failed: %w", err))
	}

	if usageFlags.format == "json" {
		summary.TotalCostUSD = pricing.RoundUSD(summary.TotalCostUSD)
		if summary.Budget != nil {
			rounded := *summary.Budget
			rounded.LimitUSD = pricing.RoundUSD(rounded.LimitUSD)
			rounded.SpentUSD = pricing.RoundUSD(rounded.SpentUSD)
			summary.Budget = &rounded
		}
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, summary)
	}

	fmt.Printf("Project: %s\n", summary.ProjectID)
	fmt.Printf("Requests: %d\n", summary.TotalRequests)
	fmt.Printf("Input tokens: %d\n", summary.TotalInputTokens)
	fmt.Printf("Output tokens: %d\n", summary.TotalOutputTokens)
	fmt.Printf("Total cost: $%s\n", pricing.FormatUSD(summary.TotalCostUSD))

	fmt.Println()
	if b := summary.Budget; b != nil {
		fmt.Printf("Budget limit: $%s\n", pricing.FormatUSD(b.LimitUSD))
		fmt.Printf("Budget spent: $%s\n", pricing.FormatUSD(b.SpentUSD))
		fmt.Printf("Budget remaining: $%s\n", pricing.FormatUSD(b.Remaining()))
		if b.PeriodEnd != nil {
			fmt.Printf("Period ends: %s\n", b.PeriodEnd.Format(time.RFC3339))
		}
	} else {
		fmt.Println("No budget set for this project.")
	}
	return nil
}

func listUsageHistory(cmd *cobra.Command, args []string) error {
	store, cfg, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	project := usageFlags.project
	if project == "" {
		project = cfg.Defaults.ProjectID
	}

	records, err := store.GetRecentUsage(context.Background(), project, usageFlags.limit)
	if err != nil {
		return cli.NewCommandError("usage", fmt.Errorf("history query failed: %w", err))
	}

	switch usageFlags.format {
	case "json":
		for i := range records {
			records[i].CostUSD = pricing.RoundUSD(records[i].CostUSD)
		}
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, map[string]interface{}{
			"projectId": project,
			"records":   records,
			"count":     len(records),
		})
	case "csv":
		return cli.NewFormatter(cli.FormatCSV).FormatTo(os.Stdout, usageTable(records))
	default:
		return printUsageText(project, records)
	}
}

func printUsageText(project string, records []ledger.UsageRecord) error {
	fmt.Printf("Project: %s\n", project)
	fmt.Printf("Records: %d\n", len(records))
	fmt.Println()

	if len(records) == 0 {
		fmt.Println("No usage recorded.")
		return nil
	}

	for i, rec := range records {
		if i > 0 {
			fmt.Println()
		}
		fmt.Printf("Request ID: %s\n", rec.RequestID)
		fmt.Printf("Timestamp: %s\n", rec.CreatedAt.Format(time.RFC3339))
		fmt.Printf("Provider: %s\n", rec.Provider)
		fmt.Printf("Model: %s\n", rec.Model)
		fmt.Printf("Tokens: %d in, %d out\n", rec.InputTokens, rec.OutputTokens)
		fmt.Printf("Cost: $%s\n", pricing.FormatUSD(rec.CostUSD))
		if rec.Flagged {
			fmt.Println("Flagged: charged without an upstream usage report")
		}
	}
	return nil
}

// usageTable adapts ledger records for CSV output.
type usageTable []ledger.UsageRecord

func (t usageTable) Header() []string {
	return []string{"request_id", "created_at", "project_id", "provider", "model", "input_tokens", "output_tokens", "cost_usd", "flagged"}
}

func (t usageTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, rec := range t {
		rows = append(rows, []string{
			rec.RequestID,
			rec.CreatedAt.Format(time.RFC3339),
			rec.ProjectID,
			rec.Provider,
			rec.Model,
			strconv.Itoa(rec.InputTokens),
			strconv.Itoa(rec.OutputTokens),
			pricing.FormatUSD(rec.CostUSD),
			strconv.FormatBool(rec.Flagged),
		})
	}
	return rows
}
