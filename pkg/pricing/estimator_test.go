package pricing

import (
	"encoding/json"
	"testing"

	"mercator-hq/tokencap/pkg/tokens"
	"mercator-hq/tokencap/pkg/upstream"
)

func chatReq(model string, maxTokens int, texts ...string) *upstream.ChatRequest {
	req := &upstream.ChatRequest{ModelID: model, MaxTokensV: maxTokens}
	for _, text := range texts {
		content, _ := json.Marshal(text)
		req.Messages = append(req.Messages, upstream.ChatMessage{Role: upstream.RoleUser, Content: content})
	}
	return req
}

func messagesReq(model string, maxTokens int, texts ...string) *upstream.MessagesRequest {
	req := &upstream.MessagesRequest{ModelID: model, MaxTokensV: maxTokens}
	for _, text := range texts {
		content, _ := json.Marshal(text)
		req.Messages = append(req.Messages, upstream.AnthropicMessage{Role: upstream.RoleUser, Content: content})
	}
	return req
}

func TestEstimator_Estimate_Chat(t *testing.T) {
	est := NewEstimator(NewCatalog(), 0)

	req := chatReq("gpt-4o-mini", 100, "Summarize the quarterly report in two sentences.")

	ce, count, err := est.Estimate(upstream.ProviderOpenAI, req)
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}

	if ce.Provider != upstream.ProviderOpenAI {
		t.Errorf("expected provider openai, got %q", ce.Provider)
	}
	if ce.Model != "gpt-4o-mini" {
		t.Errorf("expected model gpt-4o-mini, got %q", ce.Model)
	}
	if count == nil || count.InputTokens == 0 {
		t.Fatal("expected a non-zero token count")
	}
	if ce.InputTokens != count.InputTokens {
		t.Errorf("estimate input tokens %d != count %d", ce.InputTokens, count.InputTokens)
	}

	// 75% of the client's max_tokens, high confidence.
	if ce.EstimatedOutputTokens != 75 {
		t.Errorf("expected 75 estimated output tokens, got %d", ce.EstimatedOutputTokens)
	}
	if ce.Confidence != tokens.ConfidenceHigh {
		t.Errorf("expected high confidence, got %q", ce.Confidence)
	}
	if ce.PricingMatch != MatchExact {
		t.Errorf("expected exact pricing match, got %q", ce.PricingMatch)
	}

	// Costs follow the resolved row.
	row, _ := est.Catalog().Resolve(upstream.ProviderOpenAI, "gpt-4o-mini")
	if ce.InputCostUSD != row.InputCost(ce.InputTokens) {
		t.Errorf("input cost %v does not match row pricing", ce.InputCostUSD)
	}
	if ce.EstimatedOutputCostUSD != row.OutputCost(75) {
		t.Errorf("output cost %v does not match row pricing", ce.EstimatedOutputCostUSD)
	}
	if ce.TotalCostUSD != ce.InputCostUSD+ce.EstimatedOutputCostUSD {
		t.Errorf("total %v != input %v + output %v", ce.TotalCostUSD, ce.InputCostUSD, ce.EstimatedOutputCostUSD)
	}
	if ce.FallbackPricing() {
		t.Error("known model should not report fallback pricing")
	}
}

func TestEstimator_Estimate_Messages(t *testing.T) {
	est := NewEstimator(NewCatalog(), 0)

	req := messagesReq("claude-sonnet-4-20250514", 200, "Explain backpressure in one paragraph.")

	ce, _, err := est.Estimate(upstream.ProviderAnthropic, req)
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}

	// The Anthropic count is an approximation, so medium caps the confidence
	// even with an explicit max_tokens.
	if ce.Confidence != tokens.ConfidenceMedium {
		t.Errorf("expected medium confidence, got %q", ce.Confidence)
	}
	if ce.EstimatedOutputTokens != 150 {
		t.Errorf("expected 150 estimated output tokens, got %d", ce.EstimatedOutputTokens)
	}
	if ce.PricingMatch != MatchExact {
		t.Errorf("expected exact pricing match, got %q", ce.PricingMatch)
	}
}

func TestEstimator_Estimate_NoMaxTokens(t *testing.T) {
	est := NewEstimator(NewCatalog(), 0)

	req := chatReq("gpt-4o-mini", 0, "hello")

	ce, _, err := est.Estimate(upstream.ProviderOpenAI, req)
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}

	// Half the model's documented default output cap (16384), medium.
	if ce.EstimatedOutputTokens != 8192 {
		t.Errorf("expected 8192 estimated output tokens, got %d", ce.EstimatedOutputTokens)
	}
	if ce.Confidence != tokens.ConfidenceMedium {
		t.Errorf("expected medium confidence, got %q", ce.Confidence)
	}
}

func TestEstimator_Estimate_FallbackForcesLow(t *testing.T) {
	est := NewEstimator(NewCatalog(), 0)

	req := chatReq("experimental-model-v9", 1000, "hello")

	ce, _, err := est.Estimate(upstream.ProviderOpenAI, req)
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}

	if ce.PricingMatch != MatchFallback {
		t.Fatalf("expected fallback match, got %q", ce.PricingMatch)
	}
	if !ce.FallbackPricing() {
		t.Error("expected FallbackPricing() true")
	}
	// Explicit max_tokens would be high confidence, but fallback pricing
	// demotes the whole estimate.
	if ce.Confidence != tokens.ConfidenceLow {
		t.Errorf("expected low confidence, got %q", ce.Confidence)
	}
}

func TestEstimator_Estimate_ConfiguredDefaultOutput(t *testing.T) {
	catalog := NewCatalog()
	// A row with no documented output cap exercises the configured fallback.
	err := catalog.ApplyOverrides(&Overrides{
		Models: []ModelPricing{
			{Provider: "openai", Model: "internal-experiment", InputPerMTok: 1.00, OutputPerMTok: 2.00, ContextWindow: 32_000},
		},
	})
	if err != nil {
		t.Fatalf("ApplyOverrides() error = %v", err)
	}

	est := NewEstimator(catalog, 512)

	req := chatReq("internal-experiment", 0, "hello")

	ce, _, err := est.Estimate(upstream.ProviderOpenAI, req)
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}

	if ce.PricingMatch != MatchExact {
		t.Fatalf("expected exact match on override row, got %q", ce.PricingMatch)
	}
	if ce.EstimatedOutputTokens != 512 {
		t.Errorf("expected configured default 512, got %d", ce.EstimatedOutputTokens)
	}
	if ce.Confidence != tokens.ConfidenceLow {
		t.Errorf("expected low confidence for configured default, got %q", ce.Confidence)
	}
}

func TestEstimator_ActualCost(t *testing.T) {
	est := NewEstimator(NewCatalog(), 0)

	usage := upstream.Usage{InputTokens: 1000, OutputTokens: 500, Reported: true}
	cost, row := est.ActualCost(upstream.ProviderOpenAI, "gpt-4o", usage)

	if row.Model != "gpt-4o" {
		t.Errorf("expected gpt-4o row, got %q", row.Model)
	}
	// 1000 * $2.50/M + 500 * $10.00/M
	if got := FormatUSD(cost); got != "0.007500" {
		t.Errorf("expected 0.007500, got %v", got)
	}

	// Dated variants charge at the canonical row.
	cost2, row2 := est.ActualCost(upstream.ProviderOpenAI, "gpt-4o-2024-11-20", usage)
	if row2.Model != "gpt-4o" {
		t.Errorf("expected prefix resolution to gpt-4o, got %q", row2.Model)
	}
	if cost2 != cost {
		t.Errorf("expected identical cost for dated variant, got %v vs %v", cost2, cost)
	}
}

func TestEstimator_Estimate_CountError(t *testing.T) {
	est := NewEstimator(NewCatalog(), 0)

	_, _, err := est.Estimate(upstream.ProviderOpenAI, nil)
	if err == nil {
		t.Fatal("expected error for unsupported request type")
	}
}
