package tokens

import (
	"fmt"

	"mercator-hq/tokencap/pkg/upstream"
)

// Chat-markup accounting constants for OpenAI-shaped requests. Every message
// carries a fixed wrapper overhead, names cost one extra token, and the
// assistant reply is primed with a fixed trailer.
const (
	chatMessageOverhead       = 3
	chatMessageOverheadLegacy = 4 // gpt-3.5-turbo-0301 used a longer wrapper
	chatNameOverhead          = 1
	chatReplyPriming          = 3
	chatToolOverhead          = 10
	chatToolsEnvelope         = 3
)

// Accounting constants for the Anthropic approximation.
const (
	anthropicMessageOverhead = 4
	anthropicSystemOverhead  = 4
	anthropicToolOverhead    = 10
)

const legacyChatModel = "gpt-3.5-turbo-0301"

// Estimate is the detailed result of counting a request's input tokens.
type Estimate struct {
	// InputTokens is the total input token count including all overheads.
	InputTokens int

	// SystemTokens counts system-prompt content.
	SystemTokens int

	// MessageTokens counts user/assistant/tool message content.
	MessageTokens int

	// ToolTokens counts tool definitions.
	ToolTokens int

	// OverheadTokens counts fixed markup overhead (message wrappers, names,
	// reply priming).
	OverheadTokens int

	// Model is the model the count was produced for.
	Model string

	// Confidence labels the counting method: high for the native BPE path,
	// medium for the Anthropic approximation.
	Confidence Confidence
}

// CountRequest counts input tokens for any parsed request the gateway
// understands.
func CountRequest(req upstream.Request) (*Estimate, error) {
	switch r := req.(type) {
	case *upstream.ChatRequest:
		return CountChat(r)
	case *upstream.MessagesRequest:
		return CountMessages(r)
	default:
		return nil, fmt.Errorf("unsupported request type %T", req)
	}
}

// CountChat counts input tokens for an OpenAI-shaped chat request using the
// encoder matching the requested model.
func CountChat(req *upstream.ChatRequest) (*Estimate, error) {
	if req == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}

	perMessage := chatMessageOverhead
	if req.ModelID == legacyChatModel {
		perMessage = chatMessageOverheadLegacy
	}

	est := &Estimate{Model: req.ModelID, Confidence: ConfidenceHigh}

	for i, msg := range req.Messages {
		roleTokens, err := CountText(req.ModelID, msg.Role)
		if err != nil {
			return nil, fmt.Errorf("messages[%d] role: %w", i, err)
		}
		contentTokens, err := CountText(req.ModelID, msg.ContentText())
		if err != nil {
			return nil, fmt.Errorf("messages[%d] content: %w", i, err)
		}

		body := roleTokens + contentTokens
		overhead := perMessage
		if msg.Name != "" {
			nameTokens, err := CountText(req.ModelID, msg.Name)
			if err != nil {
				return nil, fmt.Errorf("messages[%d] name: %w", i, err)
			}
			body += nameTokens
			overhead += chatNameOverhead
		}

		if msg.Role == upstream.RoleSystem {
			est.SystemTokens += body
		} else {
			est.MessageTokens += body
		}
		est.OverheadTokens += overhead
	}

	if len(req.Tools) > 0 {
		toolTokens, err := countChatTools(req.ModelID, req.Tools)
		if err != nil {
			return nil, err
		}
		est.ToolTokens = toolTokens
		est.OverheadTokens += chatToolsEnvelope
	}

	est.OverheadTokens += chatReplyPriming
	est.InputTokens = est.SystemTokens + est.MessageTokens + est.ToolTokens + est.OverheadTokens
	return est, nil
}

func countChatTools(model string, tools []upstream.ChatTool) (int, error) {
	total := 0
	for i, tool := range tools {
		nameTokens, err := CountText(model, tool.Function.Name)
		if err != nil {
			return 0, fmt.Errorf("tools[%d] name: %w", i, err)
		}
		descTokens, err := CountText(model, tool.Function.Description)
		if err != nil {
			return 0, fmt.Errorf("tools[%d] description: %w", i, err)
		}
		paramTokens := 0
		if len(tool.Function.Parameters) > 0 {
			paramTokens, err = CountText(model, string(tool.Function.Parameters))
			if err != nil {
				return 0, fmt.Errorf("tools[%d] parameters: %w", i, err)
			}
		}
		total += nameTokens + descTokens + paramTokens + chatToolOverhead
	}
	return total, nil
}

// CountMessages approximates input tokens for an Anthropic-shaped request
// with the cl100k encoder. The vendor's tokenizer is not public, so the
// result is labelled medium confidence.
func CountMessages(req *upstream.MessagesRequest) (*Estimate, error) {
	if req == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}

	est := &Estimate{Model: req.ModelID, Confidence: ConfidenceMedium}

	if system := req.SystemText(); system != "" {
		n, err := CountText(req.ModelID, system)
		if err != nil {
			return nil, fmt.Errorf("system: %w", err)
		}
		est.SystemTokens = n
		est.OverheadTokens += anthropicSystemOverhead
	}

	for i, msg := range req.Messages {
		body, err := countAnthropicMessage(req.ModelID, &msg)
		if err != nil {
			return nil, fmt.Errorf("messages[%d]: %w", i, err)
		}
		est.MessageTokens += body
		est.OverheadTokens += anthropicMessageOverhead
	}

	for i, tool := range req.Tools {
		nameTokens, err := CountText(req.ModelID, tool.Name)
		if err != nil {
			return nil, fmt.Errorf("tools[%d] name: %w", i, err)
		}
		descTokens, err := CountText(req.ModelID, tool.Description)
		if err != nil {
			return nil, fmt.Errorf("tools[%d] description: %w", i, err)
		}
		schemaTokens := 0
		if len(tool.InputSchema) > 0 {
			schemaTokens, err = CountText(req.ModelID, string(tool.InputSchema))
			if err != nil {
				return nil, fmt.Errorf("tools[%d] input_schema: %w", i, err)
			}
		}
		est.ToolTokens += nameTokens + descTokens + schemaTokens + anthropicToolOverhead
	}

	est.InputTokens = est.SystemTokens + est.MessageTokens + est.ToolTokens + est.OverheadTokens
	return est, nil
}

// countAnthropicMessage counts one message's content. Block arrays
// contribute text blocks, tool_use name+input, and tool_result text
// recursively; plain strings count directly.
func countAnthropicMessage(model string, msg *upstream.AnthropicMessage) (int, error) {
	blocks, ok := msg.Blocks()
	if !ok {
		return CountText(model, msg.ContentText())
	}

	total := 0
	for _, b := range blocks {
		switch b.Type {
		case "tool_use":
			n, err := CountText(model, b.Name)
			if err != nil {
				return 0, err
			}
			total += n
			if len(b.Input) > 0 {
				n, err = CountText(model, string(b.Input))
				if err != nil {
					return 0, err
				}
				total += n
			}
		default:
			text := b.Text
			if b.Type == "tool_result" && len(b.Content) > 0 {
				m := upstream.AnthropicMessage{Content: b.Content}
				text += m.ContentText()
			}
			n, err := CountText(model, text)
			if err != nil {
				return 0, err
			}
			total += n
		}
	}
	return total, nil
}
