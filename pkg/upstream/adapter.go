package upstream

import (
	"context"
	"io"
	"net/http"
)

// Adapter translates between the gateway and one provider's chat API.
//
// Implementations live in subpackages (openai, anthropic) and hold a pooled
// Client for their upstream. The gateway pipeline drives them through four
// steps: parse the inbound body, forward it, then read usage out of either
// a buffered response or a relayed stream.
type Adapter interface {
	// Provider returns the canonical provider name ("openai", "anthropic").
	Provider() string

	// Path returns the upstream endpoint this adapter forwards to.
	Path() string

	// ParseRequest decodes an inbound body into the provider's request
	// shape. A malformed body yields a ParseError.
	ParseRequest(body []byte) (Request, error)

	// Forward sends the body verbatim to the upstream, carrying over the
	// inbound headers minus hop-by-hop and credential headers and adding
	// the provider's own auth scheme. stream selects the exchange's
	// deadline policy: a buffered call is capped end to end, a streaming
	// call only between chunks. Returns ErrNoCredentials when no key is
	// available, a ForwardError when the upstream is unreachable, and
	// otherwise the upstream response unread regardless of status.
	Forward(ctx context.Context, body []byte, inbound http.Header, stream bool) (*http.Response, error)

	// ExtractUsage reads provider-reported token counts from a buffered
	// (non-streaming) response body. ok is false when the body carries no
	// usage block.
	ExtractUsage(body []byte) (usage Usage, ok bool)

	// InterceptStream relays the upstream SSE stream to dst verbatim while
	// accumulating token usage for the given model. The returned Usage is
	// best-effort: on a mid-stream disconnect it holds whatever was
	// counted up to that point, alongside a ClientGoneError.
	InterceptStream(dst *FlushWriter, src io.Reader, model string) (Usage, error)
}
