// Package openai adapts the gateway to OpenAI's chat completions API:
// Bearer auth, a usage block with prompt/completion token counts on buffered
// responses, and an SSE stream of delta chunks terminated by "[DONE]".
//
// Streamed responses normally omit the usage block, so output tokens are
// counted by BPE-encoding each content delta with the request model's
// encoder. When a terminal chunk does carry usage (stream_options'
// include_usage), the reported numbers win.
package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"mercator-hq/tokencap/pkg/upstream"
)

// Path is the upstream chat completions endpoint.
const Path = "/v1/chat/completions"

// Adapter forwards OpenAI-shaped requests and reads usage from responses.
type Adapter struct {
	client *upstream.Client
}

// New creates an adapter over the given upstream client.
func New(client *upstream.Client) *Adapter {
	return &Adapter{client: client}
}

// Provider returns "openai".
func (a *Adapter) Provider() string {
	return upstream.ProviderOpenAI
}

// Path returns the chat completions endpoint path.
func (a *Adapter) Path() string {
	return Path
}

// ParseRequest decodes a chat completions body.
func (a *Adapter) ParseRequest(body []byte) (upstream.Request, error) {
	var req upstream.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &upstream.ParseError{Upstream: a.Provider(), Cause: err}
	}
	if err := req.Validate(); err != nil {
		return nil, &upstream.ParseError{Upstream: a.Provider(), Cause: err}
	}
	return &req, nil
}

// Forward sends the body verbatim with Bearer auth swapped in.
func (a *Adapter) Forward(ctx context.Context, body []byte, inbound http.Header, stream bool) (*http.Response, error) {
	cred, err := upstream.ExtractCredential(inbound, a.client.DefaultAPIKey())
	if err != nil {
		return nil, err
	}
	headers := upstream.ForwardHeaders(inbound)
	headers.Set("Authorization", "Bearer "+cred.Key)
	if stream {
		return a.client.Stream(ctx, http.MethodPost, Path, body, headers)
	}
	return a.client.Do(ctx, http.MethodPost, Path, body, headers)
}

// usageBlock is the canonical usage object of a buffered response or a
// terminal stream chunk.
type usageBlock struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ExtractUsage reads the usage block from a buffered response body.
func (a *Adapter) ExtractUsage(body []byte) (upstream.Usage, bool) {
	var resp struct {
		Usage *usageBlock `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Usage == nil {
		return upstream.Usage{}, false
	}
	return upstream.Usage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Reported:     true,
	}, true
}

// InterceptStream relays the SSE stream verbatim while counting output
// tokens from content deltas, preferring a reported usage block if one
// arrives.
func (a *Adapter) InterceptStream(dst *upstream.FlushWriter, src io.Reader, model string) (upstream.Usage, error) {
	tap := &streamTap{model: model}
	err := upstream.RelaySSE(dst, src, tap.observe)
	return tap.usage(), err
}
