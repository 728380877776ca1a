// Package upstreams provides a mock provider server for gateway tests.
//
// The canned bodies reproduce the exact wire shapes the forwarding path
// reads usage from: OpenAI chat completions (buffered usage block, SSE
// chunks with an optional terminal usage chunk and a [DONE] sentinel) and
// Anthropic messages (buffered usage block, event-framed SSE with
// message_start and message_delta usage). Tests configure one response per
// path and inspect the recorded exchanges to assert what the gateway
// actually sent upstream.
package upstreams

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// Exchange is one request the mock received, captured before responding.
type Exchange struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// Response configures what the mock returns for a path. StreamBody, when
// set, takes precedence over Body and is written as a text/event-stream
// with a flush at every event boundary.
type Response struct {
	StatusCode int
	Body       interface{}
	Headers    map[string]string
	StreamBody string
	Delay      time.Duration

	// StreamChunkDelay paces a StreamBody: the mock sleeps this long after
	// flushing each event, simulating a provider that generates slowly.
	StreamChunkDelay time.Duration
}

// MockUpstream is an httptest server that plays the role of a provider API.
type MockUpstream struct {
	server *httptest.Server

	mu        sync.Mutex
	responses map[string]Response
	exchanges []Exchange
}

// NewMockUpstream starts a mock with no canned responses. Paths without a
// configured response return 404.
func NewMockUpstream() *MockUpstream {
	m := &MockUpstream{responses: make(map[string]Response)}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the base URL of the mock server.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// Close shuts the mock server down.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// Respond sets the canned response for a path, replacing any previous one.
func (m *MockUpstream) Respond(path string, resp Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[path] = resp
}

// Exchanges returns a copy of every recorded request.
func (m *MockUpstream) Exchanges() []Exchange {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Exchange, len(m.exchanges))
	copy(out, m.exchanges)
	return out
}

// LastExchange returns the most recent request, or nil if none arrived.
func (m *MockUpstream) LastExchange() *Exchange {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.exchanges) == 0 {
		return nil
	}
	ex := m.exchanges[len(m.exchanges)-1]
	return &ex
}

// RequestCount returns how many requests the mock has received.
func (m *MockUpstream) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.exchanges)
}

// Reset clears recorded exchanges and canned responses.
func (m *MockUpstream) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exchanges = nil
	m.responses = make(map[string]Response)
}

func (m *MockUpstream) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	m.mu.Lock()
	m.exchanges = append(m.exchanges, Exchange{
		Method: r.Method,
		Path:   r.URL.Path,
		Header: r.Header.Clone(),
		Body:   body,
	})
	resp, ok := m.responses[r.URL.Path]
	m.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}

	if resp.StreamBody != "" {
		m.writeStream(w, resp)
		return
	}

	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	switch v := resp.Body.(type) {
	case nil:
	case string:
		_, _ = io.WriteString(w, v)
	case []byte:
		_, _ = w.Write(v)
	default:
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeStream emits the canned SSE body line by line, flushing at event
// boundaries the way a real provider does.
func (m *MockUpstream) writeStream(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	flusher, _ := w.(http.Flusher)
	for _, line := range strings.SplitAfter(resp.StreamBody, "\n") {
		if line == "" {
			continue
		}
		_, _ = io.WriteString(w, line)
		if line == "\n" && flusher != nil {
			flusher.Flush()
			if resp.StreamChunkDelay > 0 {
				time.Sleep(resp.StreamChunkDelay)
			}
		}
	}
	if flusher != nil {
		flusher.Flush()
	}
}

// OpenAIChatResponse builds a buffered chat completion carrying a usage
// block, the shape the gateway settles charges from.
func OpenAIChatResponse(model, content string, promptTokens, completionTokens int) map[string]interface{} {
	return map[string]interface{}{
		"id":      "chatcmpl-mock",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]interface{}{
			{
				"index": 0,
				"message": map[string]interface{}{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]interface{}{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
		},
	}
}

// OpenAIChatResponseNoUsage builds a valid completion with the usage block
// absent, which forces the gateway onto its estimated-charge path.
func OpenAIChatResponseNoUsage(model, content string) map[string]interface{} {
	resp := OpenAIChatResponse(model, content, 0, 0)
	delete(resp, "usage")
	return resp
}

// OpenAIStreamBody builds a chat completion SSE stream: one chunk per
// delta, an optional terminal usage chunk (the stream_options
// include_usage shape), and the [DONE] sentinel.
func OpenAIStreamBody(model string, deltas []string, promptTokens, completionTokens int, includeUsage bool) string {
	var sb strings.Builder
	for _, delta := range deltas {
		chunk := map[string]interface{}{
			"id":     "chatcmpl-mock",
			"object": "chat.completion.chunk",
			"model":  model,
			"choices": []map[string]interface{}{
				{
					"index": 0,
					"delta": map[string]interface{}{"content": delta},
				},
			},
		}
		writeEvent(&sb, "", chunk)
	}
	if includeUsage {
		chunk := map[string]interface{}{
			"id":      "chatcmpl-mock",
			"object":  "chat.completion.chunk",
			"model":   model,
			"choices": []map[string]interface{}{},
			"usage": map[string]interface{}{
				"prompt_tokens":     promptTokens,
				"completion_tokens": completionTokens,
				"total_tokens":      promptTokens + completionTokens,
			},
		}
		writeEvent(&sb, "", chunk)
	}
	sb.WriteString("data: [DONE]\n\n")
	return sb.String()
}

// AnthropicMessageResponse builds a buffered messages response carrying a
// usage block.
func AnthropicMessageResponse(model, content string, inputTokens, outputTokens int) map[string]interface{} {
	return map[string]interface{}{
		"id":   "msg_mock",
		"type": "message",
		"role": "assistant",
		"content": []map[string]interface{}{
			{"type": "text", "text": content},
		},
		"model":       model,
		"stop_reason": "end_turn",
		"usage": map[string]interface{}{
			"input_tokens":  inputTokens,
			"output_tokens": outputTokens,
		},
	}
}

// AnthropicStreamBody builds a messages SSE stream in the event-framed
// shape: message_start carrying the input token count, one
// content_block_delta per text chunk, a message_delta carrying the final
// output count, and message_stop.
func AnthropicStreamBody(model string, deltas []string, inputTokens, outputTokens int) string {
	var sb strings.Builder
	writeEvent(&sb, "message_start", map[string]interface{}{
		"type": "message_start",
		"message": map[string]interface{}{
			"id":    "msg_mock",
			"type":  "message",
			"role":  "assistant",
			"model": model,
			"usage": map[string]interface{}{
				"input_tokens":  inputTokens,
				"output_tokens": 1,
			},
		},
	})
	for i, delta := range deltas {
		writeEvent(&sb, "content_block_delta", map[string]interface{}{
			"type":  "content_block_delta",
			"index": i,
			"delta": map[string]interface{}{"type": "text_delta", "text": delta},
		})
	}
	writeEvent(&sb, "message_delta", map[string]interface{}{
		"type":  "message_delta",
		"delta": map[string]interface{}{"stop_reason": "end_turn"},
		"usage": map[string]interface{}{"output_tokens": outputTokens},
	})
	writeEvent(&sb, "message_stop", map[string]interface{}{
		"type": "message_stop",
	})
	return sb.String()
}

// ProviderError builds the error envelope both providers use for non-2xx
// responses.
func ProviderError(errType, message string) map[string]interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"type":    errType,
			"message": message,
		},
	}
}

// writeEvent appends one SSE event to sb. An empty event name writes a
// bare data line, the OpenAI framing; otherwise an event line precedes it.
func writeEvent(sb *strings.Builder, event string, payload interface{}) {
	if event != "" {
		fmt.Fprintf(sb, "event: %s\n", event)
	}
	data, _ := json.Marshal(payload)
	fmt.Fprintf(sb, "data: %s\n\n", data)
}
