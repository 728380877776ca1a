// Tokencap is a cost-governing gateway for LLM HTTP APIs.
//
// It sits between applications and provider APIs, estimating what each
// request will cost before it is forwarded, enforcing per-project budgets,
// and recording actual spend in a durable ledger:
//   - Pre-execution cost estimation with tokenizer-backed counts
//   - Per-project budget admission with hard rejections
//   - Verbatim forwarding for OpenAI- and Anthropic-shaped requests
//   - Streaming (SSE) relay with usage interception
//   - Cost and budget headers on every forwarded response
//
// Usage:
//
//	# Start the gateway with default configuration
//	tokencap run
//
//	# Start with a custom configuration file
//	tokencap run --config /path/to/config.yaml
//
//	# Show version information
//	tokencap version
//
//	# Inspect the pricing catalog
//	tokencap pricing list
//
//	# Summarize a project's recorded spend
//	tokencap usage summary --project powertrain
//
// For complete documentation, see: https://github.com/mercator-hq/tokencap
package main

func main() {
	Execute()
}
