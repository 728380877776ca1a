package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"mercator-hq/tokencap/internal/upstreams"
	"mercator-hq/tokencap/pkg/upstream"
)

func newTestAdapter(t *testing.T, mock *upstreams.MockUpstream, defaultKey string) *Adapter {
	t.Helper()

	client := upstream.NewClient(upstream.ClientConfig{
		Name:    "anthropic",
		BaseURL: mock.URL(),
		APIKey:  defaultKey,
	})
	t.Cleanup(client.Close)
	return New(client)
}

func TestAdapter_Identity(t *testing.T) {
	a := New(nil)
	if a.Provider() != upstream.ProviderAnthropic {
		t.Errorf("expected provider anthropic, got %q", a.Provider())
	}
	if a.Path() != "/v1/messages" {
		t.Errorf("expected messages path, got %q", a.Path())
	}
}

func TestParseRequest(t *testing.T) {
	a := New(nil)

	body := `{"model":"claude-sonnet-4-20250514","max_tokens":1024,"system":"be brief","messages":[{"role":"user","content":"hello"}]}`
	req, err := a.ParseRequest([]byte(body))
	if err != nil {
		t.Fatalf("ParseRequest() failed: %v", err)
	}

	if req.Model() != "claude-sonnet-4-20250514" {
		t.Errorf("expected claude model, got %q", req.Model())
	}
	if req.MaxTokens() != 1024 {
		t.Errorf("expected max tokens 1024, got %d", req.MaxTokens())
	}
	if req.Stream() {
		t.Error("expected stream false")
	}

	mr, ok := req.(*upstream.MessagesRequest)
	if !ok {
		t.Fatalf("expected *upstream.MessagesRequest, got %T", req)
	}
	if mr.SystemText() != "be brief" {
		t.Errorf("expected system text, got %q", mr.SystemText())
	}
}

func TestParseRequest_Invalid(t *testing.T) {
	a := New(nil)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"model"`},
		{name: "missing max_tokens", body: `{"model":"claude-sonnet-4-20250514","messages":[{"role":"user","content":"hi"}]}`},
		{name: "no messages", body: `{"model":"claude-sonnet-4-20250514","max_tokens":100,"messages":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.ParseRequest([]byte(tt.body))
			if err == nil {
				t.Fatal("expected parse error, got nil")
			}
			if !upstream.IsParseError(err) {
				t.Errorf("expected ParseError, got %T: %v", err, err)
			}
		})
	}
}

func TestForward_APIKeyAuth(t *testing.T) {
	mock := upstreams.NewMockUpstream()
	defer mock.Close()
	mock.Respond(Path, upstreams.Response{Body: upstreams.AnthropicMessageResponse("claude-sonnet-4-20250514", "hi", 10, 5)})

	a := newTestAdapter(t, mock, "")

	inbound := http.Header{}
	inbound.Set("X-API-Key", "sk-ant-client")

	body := []byte(`{"model":"claude-sonnet-4-20250514","max_tokens":64,"messages":[{"role":"user","content":"hello"}]}`)
	resp, err := a.Forward(context.Background(), body, inbound, false)
	if err != nil {
		t.Fatalf("Forward() failed: %v", err)
	}
	resp.Body.Close()

	ex := mock.LastExchange()
	if ex == nil {
		t.Fatal("expected the mock to receive a request")
	}
	if got := ex.Header.Get("x-api-key"); got != "sk-ant-client" {
		t.Errorf("expected x-api-key auth, got %q", got)
	}
	if got := ex.Header.Get("Authorization"); got != "" {
		t.Errorf("expected no Authorization header, got %q", got)
	}
	if got := ex.Header.Get("anthropic-version"); got != "2023-06-01" {
		t.Errorf("expected default anthropic-version, got %q", got)
	}
	if !bytes.Equal(ex.Body, body) {
		t.Errorf("body altered in transit: %s", ex.Body)
	}
}

func TestForward_VersionHeaderPreserved(t *testing.T) {
	mock := upstreams.NewMockUpstream()
	defer mock.Close()
	mock.Respond(Path, upstreams.Response{Body: upstreams.AnthropicMessageResponse("claude-sonnet-4-20250514", "hi", 10, 5)})

	a := newTestAdapter(t, mock, "sk-ant-default")

	inbound := http.Header{}
	inbound.Set("anthropic-version", "2024-10-22")

	resp, err := a.Forward(context.Background(), []byte(`{}`), inbound, false)
	if err != nil {
		t.Fatalf("Forward() failed: %v", err)
	}
	resp.Body.Close()

	ex := mock.LastExchange()
	if got := ex.Header.Get("anthropic-version"); got != "2024-10-22" {
		t.Errorf("expected client version preserved, got %q", got)
	}
	if got := ex.Header.Get("x-api-key"); got != "sk-ant-default" {
		t.Errorf("expected server default key, got %q", got)
	}
}

func TestForward_BearerAccepted(t *testing.T) {
	mock := upstreams.NewMockUpstream()
	defer mock.Close()
	mock.Respond(Path, upstreams.Response{Body: upstreams.AnthropicMessageResponse("claude-sonnet-4-20250514", "hi", 10, 5)})

	a := newTestAdapter(t, mock, "")

	// Clients speaking the OpenAI idiom send Bearer; the adapter maps it to
	// the provider's scheme.
	inbound := http.Header{}
	inbound.Set("Authorization", "Bearer sk-ant-bearer")

	resp, err := a.Forward(context.Background(), []byte(`{}`), inbound, false)
	if err != nil {
		t.Fatalf("Forward() failed: %v", err)
	}
	resp.Body.Close()

	ex := mock.LastExchange()
	if got := ex.Header.Get("x-api-key"); got != "sk-ant-bearer" {
		t.Errorf("expected bearer key mapped to x-api-key, got %q", got)
	}
}

func TestForward_NoCredentials(t *testing.T) {
	mock := upstreams.NewMockUpstream()
	defer mock.Close()

	a := newTestAdapter(t, mock, "")

	_, err := a.Forward(context.Background(), []byte(`{}`), http.Header{}, false)
	if !errors.Is(err, upstream.ErrNoCredentials) {
		t.Errorf("expected ErrNoCredentials, got %v", err)
	}
	if mock.RequestCount() != 0 {
		t.Error("expected nothing sent upstream without credentials")
	}
}

func TestExtractUsage(t *testing.T) {
	a := New(nil)

	body, err := json.Marshal(upstreams.AnthropicMessageResponse("claude-sonnet-4-20250514", "hello", 80, 32))
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}

	usage, ok := a.ExtractUsage(body)
	if !ok {
		t.Fatal("expected usage block to be found")
	}
	if usage.InputTokens != 80 || usage.OutputTokens != 32 {
		t.Errorf("expected 80/32 tokens, got %d/%d", usage.InputTokens, usage.OutputTokens)
	}
	if !usage.Reported {
		t.Error("expected usage marked reported")
	}
}

func TestExtractUsage_Absent(t *testing.T) {
	a := New(nil)

	if _, ok := a.ExtractUsage([]byte(`{"id":"msg_1","content":[]}`)); ok {
		t.Error("expected no usage from a response without a usage block")
	}
	if _, ok := a.ExtractUsage([]byte(`garbage`)); ok {
		t.Error("expected no usage from malformed body")
	}
}

func TestInterceptStream_ReadsEventUsage(t *testing.T) {
	a := New(nil)
	model := "claude-sonnet-4-20250514"
	src := upstreams.AnthropicStreamBody(model, []string{"Hello", " there"}, 200, 150)

	var dst bytes.Buffer
	usage, err := a.InterceptStream(upstream.NewFlushWriter(&dst), strings.NewReader(src), model)
	if err != nil {
		t.Fatalf("InterceptStream() failed: %v", err)
	}

	if dst.String() != src {
		t.Error("stream bytes altered during relay")
	}
	if !usage.Reported {
		t.Error("expected reported usage from stream events")
	}
	if usage.InputTokens != 200 {
		t.Errorf("expected 200 input tokens from message_start, got %d", usage.InputTokens)
	}
	if usage.OutputTokens != 150 {
		t.Errorf("expected 150 output tokens from message_delta, got %d", usage.OutputTokens)
	}
}

func TestInterceptStream_NoUsageEvents(t *testing.T) {
	a := New(nil)

	// A stream carrying only content deltas yields nothing to settle from.
	src := "event: content_block_delta\n" +
		"data: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"hi\"}}\n" +
		"\n"

	var dst bytes.Buffer
	usage, err := a.InterceptStream(upstream.NewFlushWriter(&dst), strings.NewReader(src), "claude-sonnet-4-20250514")
	if err != nil {
		t.Fatalf("InterceptStream() failed: %v", err)
	}

	if usage.Reported {
		t.Error("expected no reported usage without usage events")
	}
	if usage.InputTokens != 0 || usage.OutputTokens != 0 {
		t.Errorf("expected zero counts, got %d/%d", usage.InputTokens, usage.OutputTokens)
	}
}
