package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"mercator-hq/tokencap/pkg/cli"
	"mercator-hq/tokencap/pkg/config"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "tokencap",
	Short: "Tokencap - cost-governing gateway for LLM APIs",
	Long: `Tokencap is a cost-governing gateway that fronts LLM provider APIs.

It accepts OpenAI- and Anthropic-shaped HTTP requests, estimates what each
one will cost before forwarding, and refuses requests that would push a
project past its budget:
  - Pre-execution cost estimation (tokenizer-backed token counts)
  - Per-project budgets with hard rejections
  - Durable usage ledger with retention maintenance
  - Streaming relay with usage interception
  - Cost headers on every forwarded response

For more information, visit: https://github.com/mercator-hq/tokencap`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.CompletionOptions.DisableDefaultCmd = false
}

// loadConfig initializes the global configuration from --config. When the
// flag was left at its default and the file does not exist, defaults plus
// environment overrides are used instead, so the CLI works without a
// configuration file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := cfgFile
	if flag := cmd.Flag("config"); flag != nil && !flag.Changed {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = ""
		}
	}
	if err := config.Initialize(path); err != nil {
		return nil, cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	return config.GetConfig(), nil
}
