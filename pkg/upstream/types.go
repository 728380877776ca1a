package upstream

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Provider family identifiers. These name the wire shape of a request, not a
// deployment: any OpenAI-compatible upstream is "openai" here.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Message roles shared by both provider families.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Usage holds token counts observed from an upstream response, either from a
// buffered usage object or accumulated while intercepting a stream.
type Usage struct {
	// InputTokens is the number of prompt tokens reported or observed.
	InputTokens int

	// OutputTokens is the number of completion tokens reported or observed.
	OutputTokens int

	// Reported is true when the numbers came from the upstream's own usage
	// fields rather than gateway-side counting.
	Reported bool
}

// Request is the provider-agnostic view of a parsed inbound request. The
// pipeline needs just enough to estimate, admit, and route; everything else
// stays in the raw body, which is forwarded verbatim.
type Request interface {
	// Model returns the requested model identifier.
	Model() string

	// MaxTokens returns the client-supplied output cap, or 0 if absent.
	MaxTokens() int

	// Stream reports whether the client requested a streaming response.
	Stream() bool
}

// ChatMessage is one message in an OpenAI-shaped chat request. Content is
// kept raw because clients send either a string or an array of typed parts.
type ChatMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content,omitempty"`
	Name    string          `json:"name,omitempty"`
}

// ContentText extracts the textual content of a message. String content is
// returned as-is; content-part arrays contribute their text parts
// concatenated. Non-text parts (images, audio) contribute nothing.
func (m *ChatMessage) ContentText() string {
	return rawContentText(m.Content)
}

// ChatTool is a tool definition in an OpenAI-shaped request.
type ChatTool struct {
	Type     string             `json:"type"`
	Function ChatToolDefinition `json:"function"`
}

// ChatToolDefinition describes one callable function.
type ChatToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ChatRequest is the parsed form of an OpenAI-shaped chat completion
// request. Only fields the gateway inspects are declared; the raw body is
// what actually reaches the upstream.
type ChatRequest struct {
	ModelID     string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Tools       []ChatTool    `json:"tools,omitempty"`
	MaxTokensV  int           `json:"max_tokens,omitempty"`
	MaxOutput   int           `json:"max_completion_tokens,omitempty"`
	StreamFlag  bool          `json:"stream,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	User        string        `json:"user,omitempty"`
}

// Model implements Request.
func (r *ChatRequest) Model() string { return r.ModelID }

// MaxTokens implements Request. max_completion_tokens supersedes the legacy
// max_tokens field when both are present.
func (r *ChatRequest) MaxTokens() int {
	if r.MaxOutput > 0 {
		return r.MaxOutput
	}
	return r.MaxTokensV
}

// Stream implements Request.
func (r *ChatRequest) Stream() bool { return r.StreamFlag }

// Validate checks the structural requirements of a chat request.
func (r *ChatRequest) Validate() error {
	if strings.TrimSpace(r.ModelID) == "" {
		return fmt.Errorf("model is required")
	}
	if len(r.Messages) == 0 {
		return fmt.Errorf("messages must not be empty")
	}
	for i, m := range r.Messages {
		if m.Role == "" {
			return fmt.Errorf("messages[%d]: role is required", i)
		}
	}
	return nil
}

// ContentBlock is one block in an Anthropic-shaped message content array.
// A single struct covers text, tool_use, and tool_result blocks; unused
// fields stay zero.
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

// AnthropicMessage is one message in an Anthropic-shaped request. Content is
// raw for the same reason as ChatMessage: string or block array.
type AnthropicMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// Blocks parses the content array form. The bool is false for plain string
// content.
func (m *AnthropicMessage) Blocks() ([]ContentBlock, bool) {
	if len(m.Content) == 0 || m.Content[0] != '[' {
		return nil, false
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(m.Content, &blocks); err != nil {
		return nil, false
	}
	return blocks, true
}

// ContentText extracts the textual content of an Anthropic message,
// concatenating text blocks and recursing into tool_result content.
func (m *AnthropicMessage) ContentText() string {
	return rawContentText(m.Content)
}

// AnthropicTool is a tool definition in an Anthropic-shaped request.
type AnthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// MessagesRequest is the parsed form of an Anthropic-shaped messages
// request. That family requires max_tokens on every request.
type MessagesRequest struct {
	ModelID    string             `json:"model"`
	Messages   []AnthropicMessage `json:"messages"`
	System     json.RawMessage    `json:"system,omitempty"`
	Tools      []AnthropicTool    `json:"tools,omitempty"`
	MaxTokensV int                `json:"max_tokens"`
	StreamFlag bool               `json:"stream,omitempty"`
}

// Model implements Request.
func (r *MessagesRequest) Model() string { return r.ModelID }

// MaxTokens implements Request.
func (r *MessagesRequest) MaxTokens() int { return r.MaxTokensV }

// Stream implements Request.
func (r *MessagesRequest) Stream() bool { return r.StreamFlag }

// SystemText extracts the system prompt as text. Anthropic accepts either a
// string or an array of text blocks here.
func (r *MessagesRequest) SystemText() string {
	return rawContentText(r.System)
}

// Validate checks the structural requirements of a messages request.
func (r *MessagesRequest) Validate() error {
	if strings.TrimSpace(r.ModelID) == "" {
		return fmt.Errorf("model is required")
	}
	if len(r.Messages) == 0 {
		return fmt.Errorf("messages must not be empty")
	}
	if r.MaxTokensV <= 0 {
		return fmt.Errorf("max_tokens is required and must be positive")
	}
	return nil
}

// rawContentText flattens raw JSON content into plain text. Handles the
// three shapes both APIs use: a JSON string, an array of typed blocks, or
// nothing.
func rawContentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case '[':
		var blocks []ContentBlock
		if err := json.Unmarshal(raw, &blocks); err != nil {
			return ""
		}
		var sb strings.Builder
		for _, b := range blocks {
			if b.Text != "" {
				sb.WriteString(b.Text)
			}
			if b.Type == "tool_result" && len(b.Content) > 0 {
				sb.WriteString(rawContentText(b.Content))
			}
		}
		return sb.String()
	default:
		return ""
	}
}
