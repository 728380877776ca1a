// Package anthropic adapts the gateway to Anthropic's messages API:
// x-api-key auth with a required anthropic-version header, usage reported
// as input_tokens/output_tokens, and an SSE stream whose events carry their
// type inside the JSON payload.
//
// Unlike OpenAI, Anthropic reports usage on every stream: message_start
// carries the input token count and message_delta carries a running output
// count, so no client-side token counting is needed during relay.
package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"mercator-hq/tokencap/pkg/upstream"
)

// Path is the upstream messages endpoint.
const Path = "/v1/messages"

// defaultVersion is sent when the inbound request carries no
// anthropic-version header of its own.
const defaultVersion = "2023-06-01"

// Adapter forwards Anthropic-shaped requests and reads usage from responses.
type Adapter struct {
	client *upstream.Client
}

// New creates an adapter over the given upstream client.
func New(client *upstream.Client) *Adapter {
	return &Adapter{client: client}
}

// Provider returns "anthropic".
func (a *Adapter) Provider() string {
	return upstream.ProviderAnthropic
}

// Path returns the messages endpoint path.
func (a *Adapter) Path() string {
	return Path
}

// ParseRequest decodes a messages body.
func (a *Adapter) ParseRequest(body []byte) (upstream.Request, error) {
	var req upstream.MessagesRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &upstream.ParseError{Upstream: a.Provider(), Cause: err}
	}
	if err := req.Validate(); err != nil {
		return nil, &upstream.ParseError{Upstream: a.Provider(), Cause: err}
	}
	return &req, nil
}

// Forward sends the body verbatim with x-api-key auth swapped in.
func (a *Adapter) Forward(ctx context.Context, body []byte, inbound http.Header, stream bool) (*http.Response, error) {
	cred, err := upstream.ExtractCredential(inbound, a.client.DefaultAPIKey())
	if err != nil {
		return nil, err
	}
	headers := upstream.ForwardHeaders(inbound)
	headers.Set("x-api-key", cred.Key)
	if headers.Get("anthropic-version") == "" {
		headers.Set("anthropic-version", defaultVersion)
	}
	if stream {
		return a.client.Stream(ctx, http.MethodPost, Path, body, headers)
	}
	return a.client.Do(ctx, http.MethodPost, Path, body, headers)
}

// usageBlock is Anthropic's usage object, present on buffered responses and
// inside message_start / message_delta stream events.
type usageBlock struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
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
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		Reported:     true,
	}, true
}

// InterceptStream relays the SSE stream verbatim while reading usage out of
// message_start and message_delta events. The model parameter is unused;
// Anthropic streams self-report their counts.
func (a *Adapter) InterceptStream(dst *upstream.FlushWriter, src io.Reader, model string) (upstream.Usage, error) {
	tap := &streamTap{}
	err := upstream.RelaySSE(dst, src, tap.observe)
	return tap.usage(), err
}
