package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"mercator-hq/tokencap/pkg/cli"
	"mercator-hq/tokencap/pkg/pricing"
	"mercator-hq/tokencap/pkg/tokens"
	"mercator-hq/tokencap/pkg/upstream"
)

var estimateFlags struct {
	provider  string
	model     string
	prompt    string
	system    string
	maxTokens int
	file      string
	format    string
}

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate a request's cost without forwarding it",
	Long: `Estimate what a request would cost, using the same token counting and
pricing resolution as a running gateway. Nothing is forwarded upstream and
nothing is charged.

The request is either composed from flags or read as a raw provider-shaped
JSON body with --file ("-" reads stdin).

Examples:
  # Estimate an ad-hoc prompt
  tokencap estimate --model gpt-4o-mini --prompt "Summarize our Q3 results"

  # Estimate an Anthropic request with an output cap
  tokencap estimate --provider anthropic --model claude-sonnet-4-5 \
      --prompt "Draft a release note" --max-tokens 1024

  # Estimate a captured request body
  tokencap estimate --provider openai --file request.json`,
	RunE: estimateCost,
}

func init() {
	rootCmd.AddCommand(estimateCmd)

	estimateCmd.Flags().StringVar(&estimateFlags.provider, "provider", "openai", "provider family: openai, anthropic")
	estimateCmd.Flags().StringVar(&estimateFlags.model, "model", "", "model identifier")
	estimateCmd.Flags().StringVar(&estimateFlags.prompt, "prompt", "", "user message")
	estimateCmd.Flags().StringVar(&estimateFlags.system, "system", "", "system prompt")
	estimateCmd.Flags().IntVar(&estimateFlags.maxTokens, "max-tokens", 0, "output token cap")
	estimateCmd.Flags().StringVarP(&estimateFlags.file, "file", "f", "", "raw JSON request body (\"-\" for stdin)")
	estimateCmd.Flags().StringVar(&estimateFlags.format, "format", "text", "output format: text, json")
}

func estimateCost(cmd *cobra.Command, args []string) error {
	catalog, cfg, err := loadCatalog(cmd)
	if err != nil {
		return err
	}

	estimator := pricing.NewEstimator(catalog, cfg.Defaults.OutputTokens)
	defer tokens.ReleaseEncoders()

	provider := strings.ToLower(estimateFlags.provider)
	if provider != upstream.ProviderOpenAI && provider != upstream.ProviderAnthropic {
		return cli.NewConfigError("provider", fmt.Sprintf("unknown provider %q", estimateFlags.provider))
	}

	req, err := buildEstimateRequest(provider)
	if err != nil {
		return err
	}

	est, count, err := estimator.Estimate(provider, req)
	if err != nil {
		return cli.NewCommandError("estimate", err)
	}

	if estimateFlags.format == "json" {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, map[string]interface{}{
			"provider":               est.Provider,
			"model":                  est.Model,
			"pricingMatch":           est.PricingMatch,
			"inputTokens":            est.InputTokens,
			"systemTokens":           count.SystemTokens,
			"messageTokens":          count.MessageTokens,
			"toolTokens":             count.ToolTokens,
			"overheadTokens":         count.OverheadTokens,
			"estimatedOutputTokens":  est.EstimatedOutputTokens,
			"inputCostUsd":           pricing.RoundUSD(est.InputCostUSD),
			"estimatedOutputCostUsd": pricing.RoundUSD(est.EstimatedOutputCostUSD),
			"estimatedTotalUsd":      pricing.RoundUSD(est.TotalCostUSD),
			"confidence":             est.Confidence,
		})
	}

	fmt.Printf("Provider: %s\n", est.Provider)
	fmt.Printf("Model: %s (%s pricing match)\n", est.Model, est.PricingMatch)
	fmt.Println()
	fmt.Printf("Input tokens: %d\n", est.InputTokens)
	if count.SystemTokens > 0 {
		fmt.Printf("  system: %d\n", count.SystemTokens)
	}
	fmt.Printf("  messages: %d\n", count.MessageTokens)
	if count.ToolTokens > 0 {
		fmt.Printf("  tools: %d\n", count.ToolTokens)
	}
	fmt.Printf("  overhead: %d\n", count.OverheadTokens)
	fmt.Printf("Estimated output tokens: %d\n", est.EstimatedOutputTokens)
	fmt.Println()
	fmt.Printf("Input cost: $%s\n", pricing.FormatUSD(est.InputCostUSD))
	fmt.Printf("Estimated output cost: $%s\n", pricing.FormatUSD(est.EstimatedOutputCostUSD))
	fmt.Printf("Estimated total: $%s\n", pricing.FormatUSD(est.TotalCostUSD))
	fmt.Printf("Confidence: %s\n", est.Confidence)
	if est.PricingMatch == pricing.MatchFallback {
		fmt.Println()
		fmt.Println("Unknown model: fallback pricing applies.")
	}
	return nil
}

// buildEstimateRequest assembles the parsed request either from a raw body
// file or from the flag shorthand.
func buildEstimateRequest(provider string) (upstream.Request, error) {
	if estimateFlags.file != "" {
		body, err := readEstimateBody(estimateFlags.file)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		return parseEstimateBody(provider, body)
	}

	if estimateFlags.model == "" || estimateFlags.prompt == "" {
		return nil, cli.NewConfigError("", "either --file or both --model and --prompt are required")
	}

	switch provider {
	case upstream.ProviderAnthropic:
		// The Anthropic family requires max_tokens on every request.
		maxTokens := estimateFlags.maxTokens
		if maxTokens <= 0 {
			maxTokens = tokens.DefaultOutputEstimate
		}
		req := &upstream.MessagesRequest{
			ModelID:    estimateFlags.model,
			MaxTokensV: maxTokens,
			Messages: []upstream.AnthropicMessage{{
				Role:    upstream.RoleUser,
				Content: jsonString(estimateFlags.prompt),
			}},
		}
		if estimateFlags.system != "" {
			req.System = jsonString(estimateFlags.system)
		}
		return req, nil

	default:
		var messages []upstream.ChatMessage
		if estimateFlags.system != "" {
			messages = append(messages, upstream.ChatMessage{
				Role:    upstream.RoleSystem,
				Content: jsonString(estimateFlags.system),
			})
		}
		messages = append(messages, upstream.ChatMessage{
			Role:    upstream.RoleUser,
			Content: jsonString(estimateFlags.prompt),
		})
		return &upstream.ChatRequest{
			ModelID:    estimateFlags.model,
			Messages:   messages,
			MaxTokensV: estimateFlags.maxTokens,
		}, nil
	}
}

func readEstimateBody(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func parseEstimateBody(provider string, body []byte) (upstream.Request, error) {
	switch provider {
	case upstream.ProviderAnthropic:
		var req upstream.MessagesRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, fmt.Errorf("parse request body: %w", err)
		}
		if err := req.Validate(); err != nil {
			return nil, fmt.Errorf("invalid request body: %w", err)
		}
		return &req, nil

	default:
		var req upstream.ChatRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, fmt.Errorf("parse request body: %w", err)
		}
		if err := req.Validate(); err != nil {
			return nil, fmt.Errorf("invalid request body: %w", err)
		}
		return &req, nil
	}
}

// jsonString renders a plain string as raw JSON message content.
func jsonString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
