package pricing

// Builtin catalog data. Prices are USD per million tokens, current as of the
// 2025-Q3 published rate cards. Overrides files can add or replace rows at
// runtime without rebuilding.
//
// Declaration order matters: model-only lookups take the first declared row
// with that model name.
var builtinRows = []ModelPricing{
	// OpenAI GPT-4o family
	{Provider: "openai", Model: "gpt-4o", InputPerMTok: 2.50, OutputPerMTok: 10.00, ContextWindow: 128_000, DefaultMaxOutput: 16_384},
	{Provider: "openai", Model: "gpt-4o-mini", InputPerMTok: 0.15, OutputPerMTok: 0.60, ContextWindow: 128_000, DefaultMaxOutput: 16_384},
	{Provider: "openai", Model: "chatgpt-4o-latest", InputPerMTok: 5.00, OutputPerMTok: 15.00, ContextWindow: 128_000, DefaultMaxOutput: 16_384},

	// OpenAI GPT-4.1 family
	{Provider: "openai", Model: "gpt-4.1", InputPerMTok: 2.00, OutputPerMTok: 8.00, ContextWindow: 1_047_576, DefaultMaxOutput: 32_768},
	{Provider: "openai", Model: "gpt-4.1-mini", InputPerMTok: 0.40, OutputPerMTok: 1.60, ContextWindow: 1_047_576, DefaultMaxOutput: 32_768},
	{Provider: "openai", Model: "gpt-4.1-nano", InputPerMTok: 0.10, OutputPerMTok: 0.40, ContextWindow: 1_047_576, DefaultMaxOutput: 32_768},

	// OpenAI GPT-5 family
	{Provider: "openai", Model: "gpt-5", InputPerMTok: 1.25, OutputPerMTok: 10.00, ContextWindow: 400_000, DefaultMaxOutput: 128_000},
	{Provider: "openai", Model: "gpt-5-mini", InputPerMTok: 0.25, OutputPerMTok: 2.00, ContextWindow: 400_000, DefaultMaxOutput: 128_000},
	{Provider: "openai", Model: "gpt-5-nano", InputPerMTok: 0.05, OutputPerMTok: 0.40, ContextWindow: 400_000, DefaultMaxOutput: 128_000},

	// OpenAI reasoning family
	{Provider: "openai", Model: "o1", InputPerMTok: 15.00, OutputPerMTok: 60.00, ContextWindow: 200_000, DefaultMaxOutput: 100_000},
	{Provider: "openai", Model: "o1-mini", InputPerMTok: 1.10, OutputPerMTok: 4.40, ContextWindow: 128_000, DefaultMaxOutput: 65_536},
	{Provider: "openai", Model: "o1-preview", InputPerMTok: 15.00, OutputPerMTok: 60.00, ContextWindow: 128_000, DefaultMaxOutput: 32_768, Deprecated: true},
	{Provider: "openai", Model: "o3", InputPerMTok: 2.00, OutputPerMTok: 8.00, ContextWindow: 200_000, DefaultMaxOutput: 100_000},
	{Provider: "openai", Model: "o3-mini", InputPerMTok: 1.10, OutputPerMTok: 4.40, ContextWindow: 200_000, DefaultMaxOutput: 100_000},
	{Provider: "openai", Model: "o4-mini", InputPerMTok: 1.10, OutputPerMTok: 4.40, ContextWindow: 200_000, DefaultMaxOutput: 100_000},

	// OpenAI legacy
	{Provider: "openai", Model: "gpt-4-turbo", InputPerMTok: 10.00, OutputPerMTok: 30.00, ContextWindow: 128_000, DefaultMaxOutput: 4_096},
	{Provider: "openai", Model: "gpt-4", InputPerMTok: 30.00, OutputPerMTok: 60.00, ContextWindow: 8_192, DefaultMaxOutput: 8_192},
	{Provider: "openai", Model: "gpt-4-32k", InputPerMTok: 60.00, OutputPerMTok: 120.00, ContextWindow: 32_768, DefaultMaxOutput: 32_768, Deprecated: true},
	{Provider: "openai", Model: "gpt-3.5-turbo", InputPerMTok: 0.50, OutputPerMTok: 1.50, ContextWindow: 16_385, DefaultMaxOutput: 4_096},
	{Provider: "openai", Model: "gpt-3.5-turbo-0301", InputPerMTok: 1.50, OutputPerMTok: 2.00, ContextWindow: 4_096, DefaultMaxOutput: 4_096, Deprecated: true},
	{Provider: "openai", Model: "gpt-3.5-turbo-instruct", InputPerMTok: 1.50, OutputPerMTok: 2.00, ContextWindow: 4_096, DefaultMaxOutput: 4_096},

	// Anthropic Claude 4 family
	{Provider: "anthropic", Model: "claude-opus-4-1-20250805", InputPerMTok: 15.00, OutputPerMTok: 75.00, ContextWindow: 200_000, DefaultMaxOutput: 32_000},
	{Provider: "anthropic", Model: "claude-opus-4-20250514", InputPerMTok: 15.00, OutputPerMTok: 75.00, ContextWindow: 200_000, DefaultMaxOutput: 32_000},
	{Provider: "anthropic", Model: "claude-sonnet-4-20250514", InputPerMTok: 3.00, OutputPerMTok: 15.00, ContextWindow: 200_000, DefaultMaxOutput: 64_000},

	// Anthropic Claude 3.x family
	{Provider: "anthropic", Model: "claude-3-7-sonnet-latest", InputPerMTok: 3.00, OutputPerMTok: 15.00, ContextWindow: 200_000, DefaultMaxOutput: 8_192},
	{Provider: "anthropic", Model: "claude-3-5-sonnet-latest", InputPerMTok: 3.00, OutputPerMTok: 15.00, ContextWindow: 200_000, DefaultMaxOutput: 8_192},
	{Provider: "anthropic", Model: "claude-3-5-haiku-latest", InputPerMTok: 0.80, OutputPerMTok: 4.00, ContextWindow: 200_000, DefaultMaxOutput: 8_192},
	{Provider: "anthropic", Model: "claude-3-opus-latest", InputPerMTok: 15.00, OutputPerMTok: 75.00, ContextWindow: 200_000, DefaultMaxOutput: 4_096, Deprecated: true},
	{Provider: "anthropic", Model: "claude-3-haiku-20240307", InputPerMTok: 0.25, OutputPerMTok: 1.25, ContextWindow: 200_000, DefaultMaxOutput: 4_096},

	// Google Gemini family (no adapter yet; priced for estimation parity)
	{Provider: "google", Model: "gemini-2.5-pro", InputPerMTok: 1.25, OutputPerMTok: 10.00, ContextWindow: 1_048_576, DefaultMaxOutput: 65_536},
	{Provider: "google", Model: "gemini-2.5-flash", InputPerMTok: 0.30, OutputPerMTok: 2.50, ContextWindow: 1_048_576, DefaultMaxOutput: 65_536},
	{Provider: "google", Model: "gemini-2.0-flash", InputPerMTok: 0.10, OutputPerMTok: 0.40, ContextWindow: 1_048_576, DefaultMaxOutput: 8_192},
	{Provider: "google", Model: "gemini-1.5-pro", InputPerMTok: 1.25, OutputPerMTok: 5.00, ContextWindow: 2_097_152, DefaultMaxOutput: 8_192},
	{Provider: "google", Model: "gemini-1.5-flash", InputPerMTok: 0.075, OutputPerMTok: 0.30, ContextWindow: 1_048_576, DefaultMaxOutput: 8_192},
}

// builtinFallback is the row used when every lookup step misses. GPT-4o
// pricing is a conservative middle of the current market; resolving here
// demotes estimate confidence to low but never fails a request.
var builtinFallback = ModelPricing{
	Provider:         "openai",
	Model:            "gpt-4o",
	InputPerMTok:     2.50,
	OutputPerMTok:    10.00,
	ContextWindow:    128_000,
	DefaultMaxOutput: 16_384,
}

// builtinAliases maps colloquial or shorthand names to canonical rows.
// Keys are matched case-insensitively after trimming.
var builtinAliases = map[string]rowKey{
	"4o":                  {"openai", "gpt-4o"},
	"gpt4o":               {"openai", "gpt-4o"},
	"4o-mini":             {"openai", "gpt-4o-mini"},
	"gpt4o-mini":          {"openai", "gpt-4o-mini"},
	"gpt4":                {"openai", "gpt-4"},
	"gpt-4-turbo-preview": {"openai", "gpt-4-turbo"},
	"gpt-3.5":             {"openai", "gpt-3.5-turbo"},
	"opus":                {"anthropic", "claude-opus-4-1-20250805"},
	"sonnet":              {"anthropic", "claude-sonnet-4-20250514"},
	"haiku":               {"anthropic", "claude-3-5-haiku-latest"},
	"claude-3.5-sonnet":   {"anthropic", "claude-3-5-sonnet-latest"},
	"claude-3.5-haiku":    {"anthropic", "claude-3-5-haiku-latest"},
	"gemini-pro":          {"google", "gemini-2.5-pro"},
	"gemini-flash":        {"google", "gemini-2.5-flash"},
}

// builtinPrefixes maps dated or suffixed variants onto their canonical rows,
// e.g. gpt-4o-2024-11-20 or claude-3-5-sonnet-20241022. Rules are sorted
// longest-prefix-first per provider at catalog build time, so declaration
// order here does not matter.
var builtinPrefixes = []prefixRule{
	{Provider: "openai", Prefix: "gpt-4o-mini", Model: "gpt-4o-mini"},
	{Provider: "openai", Prefix: "gpt-4o", Model: "gpt-4o"},
	{Provider: "openai", Prefix: "chatgpt-4o", Model: "chatgpt-4o-latest"},
	{Provider: "openai", Prefix: "gpt-4.1-mini", Model: "gpt-4.1-mini"},
	{Provider: "openai", Prefix: "gpt-4.1-nano", Model: "gpt-4.1-nano"},
	{Provider: "openai", Prefix: "gpt-4.1", Model: "gpt-4.1"},
	{Provider: "openai", Prefix: "gpt-5-mini", Model: "gpt-5-mini"},
	{Provider: "openai", Prefix: "gpt-5-nano", Model: "gpt-5-nano"},
	{Provider: "openai", Prefix: "gpt-5", Model: "gpt-5"},
	{Provider: "openai", Prefix: "gpt-4-turbo", Model: "gpt-4-turbo"},
	{Provider: "openai", Prefix: "gpt-4-32k", Model: "gpt-4-32k"},
	{Provider: "openai", Prefix: "gpt-4", Model: "gpt-4"},
	{Provider: "openai", Prefix: "gpt-3.5-turbo-instruct", Model: "gpt-3.5-turbo-instruct"},
	{Provider: "openai", Prefix: "gpt-3.5-turbo", Model: "gpt-3.5-turbo"},
	{Provider: "openai", Prefix: "o1-mini", Model: "o1-mini"},
	{Provider: "openai", Prefix: "o1-preview", Model: "o1-preview"},
	{Provider: "openai", Prefix: "o1", Model: "o1"},
	{Provider: "openai", Prefix: "o3-mini", Model: "o3-mini"},
	{Provider: "openai", Prefix: "o3", Model: "o3"},
	{Provider: "openai", Prefix: "o4-mini", Model: "o4-mini"},

	{Provider: "anthropic", Prefix: "claude-opus-4-1", Model: "claude-opus-4-1-20250805"},
	{Provider: "anthropic", Prefix: "claude-opus-4", Model: "claude-opus-4-20250514"},
	{Provider: "anthropic", Prefix: "claude-sonnet-4", Model: "claude-sonnet-4-20250514"},
	{Provider: "anthropic", Prefix: "claude-3-7-sonnet", Model: "claude-3-7-sonnet-latest"},
	{Provider: "anthropic", Prefix: "claude-3-5-sonnet", Model: "claude-3-5-sonnet-latest"},
	{Provider: "anthropic", Prefix: "claude-3-5-haiku", Model: "claude-3-5-haiku-latest"},
	{Provider: "anthropic", Prefix: "claude-3-opus", Model: "claude-3-opus-latest"},
	{Provider: "anthropic", Prefix: "claude-3-haiku", Model: "claude-3-haiku-20240307"},

	{Provider: "google", Prefix: "gemini-2.5-pro", Model: "gemini-2.5-pro"},
	{Provider: "google", Prefix: "gemini-2.5-flash", Model: "gemini-2.5-flash"},
	{Provider: "google", Prefix: "gemini-2.0-flash", Model: "gemini-2.0-flash"},
	{Provider: "google", Prefix: "gemini-1.5-pro", Model: "gemini-1.5-pro"},
	{Provider: "google", Prefix: "gemini-1.5-flash", Model: "gemini-1.5-flash"},
}
