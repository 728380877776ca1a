package openai

import (
	"bytes"
	"encoding/json"

	"mercator-hq/tokencap/pkg/tokens"
	"mercator-hq/tokencap/pkg/upstream"
)

var doneSentinel = []byte("[DONE]")

// streamChunk is the subset of an SSE chunk the tap cares about: content
// deltas for counting and the optional usage block.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *usageBlock `json:"usage"`
}

// streamTap accumulates output tokens from a relayed stream. It never
// fails: unparseable chunks are skipped, since the relay's job is to keep
// bytes flowing regardless of what we can read out of them.
type streamTap struct {
	model      string
	counted    int
	reported   *usageBlock
	skipped    int
	countError error
}

func (t *streamTap) observe(data []byte) {
	if bytes.Equal(data, doneSentinel) {
		return
	}
	var chunk streamChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		t.skipped++
		return
	}
	if chunk.Usage != nil {
		t.reported = chunk.Usage
	}
	for _, choice := range chunk.Choices {
		if choice.Delta.Content == "" {
			continue
		}
		n, err := tokens.CountText(t.model, choice.Delta.Content)
		if err != nil {
			t.countError = err
			continue
		}
		t.counted += n
	}
}

// usage resolves the accumulated counts. A reported usage block wins over
// the delta count; with neither, the zero counted value stands and the
// caller falls back to its estimate.
func (t *streamTap) usage() upstream.Usage {
	if t.reported != nil {
		return upstream.Usage{
			InputTokens:  t.reported.PromptTokens,
			OutputTokens: t.reported.CompletionTokens,
			Reported:     true,
		}
	}
	return upstream.Usage{OutputTokens: t.counted}
}
