package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"mercator-hq/tokencap/pkg/cli"
	"mercator-hq/tokencap/pkg/ledger"
	"mercator-hq/tokencap/pkg/pricing"
)

var budgetFlags struct {
	project    string
	limitUSD   float64
	periodDays int
	format     string
}

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Manage project budgets",
	Long: `Manage per-project spend budgets in the ledger database.

These commands write to the same database a running gateway reads, so a
budget set here takes effect on the next request. Use the HTTP admin API
instead when the gateway should stay the only writer.

Subcommands:
  set    - Create or replace a project's budget
  show   - Show a project's budget
  list   - List all budgets
  reset  - Zero a project's spent counter and restart its period
  delete - Remove a project's budget

Examples:
  # Cap a project at $100 for rolling 30-day periods
  tokencap budget set --project powertrain --limit 100 --period-days 30

  # Cap a project at $5 with no period
  tokencap budget set --project scratch --limit 5

  # Start a fresh period after raising the limit
  tokencap budget reset --project powertrain`,
}

var budgetSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create or replace a project's budget",
	Long: `Create or replace a project's budget. Setting a budget restarts the
period and zeroes the spent counter.`,
	RunE: setBudget,
}

var budgetShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a project's budget",
	RunE:  showBudget,
}

var budgetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all budgets",
	RunE:  listBudgets,
}

var budgetResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Zero a project's spent counter",
	Long:  `Zero a project's spent counter and restart its budget period.`,
	RunE:  resetBudget,
}

var budgetDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove a project's budget",
	Long:  `Remove a project's budget. The project's requests pass unchecked afterwards.`,
	RunE:  deleteBudget,
}

func init() {
	rootCmd.AddCommand(budgetCmd)
	budgetCmd.AddCommand(budgetSetCmd, budgetShowCmd, budgetListCmd, budgetResetCmd, budgetDeleteCmd)

	budgetCmd.PersistentFlags().StringVar(&budgetFlags.project, "project", "", "project ID")
	budgetCmd.PersistentFlags().StringVar(&budgetFlags.format, "format", "text", "output format: text, json")

	budgetSetCmd.Flags().Float64Var(&budgetFlags.limitUSD, "limit", 0, "spend limit in USD")
	budgetSetCmd.Flags().IntVar(&budgetFlags.periodDays, "period-days", 0, "budget period length in days (0 for none)")
}

// requireProject enforces an explicit --project on mutating budget commands.
func requireProject() (string, error) {
	if budgetFlags.project == "" {
		return "", cli.NewConfigError("project", "required: pass --project")
	}
	return budgetFlags.project, nil
}

func setBudget(cmd *cobra.Command, args []string) error {
	project, err := requireProject()
	if err != nil {
		return err
	}
	if budgetFlags.limitUSD < 0 {
		return cli.NewConfigError("limit", "must be non-negative")
	}
	if budgetFlags.periodDays < 0 {
		return cli.NewConfigError("period-days", "must be non-negative")
	}

	store, _, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	budget, err := store.SetBudget(context.Background(), project, budgetFlags.limitUSD, budgetFlags.periodDays)
	if err != nil {
		return cli.NewCommandError("budget", fmt.Errorf("set failed: %w", err))
	}

	if budgetFlags.format == "json" {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, budget)
	}
	fmt.Printf("✓ Budget set: %s capped at $%s", budget.ProjectID, pricing.FormatUSD(budget.LimitUSD))
	if budget.PeriodEnd != nil {
		fmt.Printf(" until %s", budget.PeriodEnd.Format(time.RFC3339))
	}
	fmt.Println()
	return nil
}

func showBudget(cmd *cobra.Command, args []string) error {
	store, cfg, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	project := budgetFlags.project
	if project == "" {
		project = cfg.Defaults.ProjectID
	}

	budget, err := store.GetBudget(context.Background(), project)
	if err != nil {
		return cli.NewCommandError("budget", fmt.Errorf("lookup failed: %w", err))
	}
	if budget == nil {
		fmt.Printf("No budget set for project %q.\n", project)
		return nil
	}

	if budgetFlags.format == "json" {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, budget)
	}
	printBudgetText(budget)
	return nil
}

func listBudgets(cmd *cobra.Command, args []string) error {
	store, _, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	budgets, err := store.ListBudgets(context.Background())
	if err != nil {
		return cli.NewCommandError("budget", fmt.Errorf("list failed: %w", err))
	}

	if budgetFlags.format == "json" {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, map[string]interface{}{
			"budgets": budgets,
			"count":   len(budgets),
		})
	}

	if len(budgets) == 0 {
		fmt.Println("No budgets set.")
		return nil
	}
	fmt.Printf("%-24s %14s %14s %14s\n", "PROJECT", "LIMIT USD", "SPENT USD", "REMAINING")
	for i := range budgets {
		b := &budgets[i]
		fmt.Printf("%-24s %14s %14s %14s\n",
			b.ProjectID,
			pricing.FormatUSD(b.LimitUSD),
			pricing.FormatUSD(b.SpentUSD),
			pricing.FormatUSD(b.Remaining()),
		)
	}
	return nil
}

func resetBudget(cmd *cobra.Command, args []string) error {
	project, err := requireProject()
	if err != nil {
		return err
	}

	store, _, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.ResetBudgetSpent(context.Background(), project); err != nil {
		if errors.Is(err, ledger.ErrBudgetNotFound) {
			return fmt.Errorf("no budget set for project %q", project)
		}
		return cli.NewCommandError("budget", fmt.Errorf("reset failed: %w", err))
	}

	fmt.Printf("✓ Budget reset for project %s\n", project)
	return nil
}

func deleteBudget(cmd *cobra.Command, args []string) error {
	project, err := requireProject()
	if err != nil {
		return err
	}

	store, _, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	deleted, err := store.DeleteBudget(context.Background(), project)
	if err != nil {
		return cli.NewCommandError("budget", fmt.Errorf("delete failed: %w", err))
	}
	if !deleted {
		fmt.Printf("No budget set for project %q.\n", project)
		return nil
	}

	fmt.Printf("✓ Budget deleted for project %s\n", project)
	return nil
}

func printBudgetText(b *ledger.Budget) {
	fmt.Printf("Project: %s\n", b.ProjectID)
	fmt.Printf("Limit: $%s\n", pricing.FormatUSD(b.LimitUSD))
	fmt.Printf("Spent: $%s\n", pricing.FormatUSD(b.SpentUSD))
	fmt.Printf("Remaining: $%s\n", pricing.FormatUSD(b.Remaining()))
	fmt.Printf("Period start: %s\n", b.PeriodStart.Format(time.RFC3339))
	if b.PeriodEnd != nil {
		fmt.Printf("Period end: %s\n", b.PeriodEnd.Format(time.RFC3339))
		if b.Expired(time.Now().UTC()) {
			fmt.Println("Period expired: charges still pass with an advisory")
		}
	}
}
