package anthropic

import (
	"encoding/json"

	"mercator-hq/tokencap/pkg/upstream"
)

// streamEvent is the subset of an Anthropic stream event the tap reads.
// message_start nests usage under message; message_delta carries a
// top-level usage with the running output count.
type streamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Usage *usageBlock `json:"usage"`
	} `json:"message"`
	Usage *usageBlock `json:"usage"`
}

// streamTap accumulates usage from a relayed stream. Output counts in
// message_delta events are cumulative, so the last observed value wins.
type streamTap struct {
	input    int
	output   int
	sawUsage bool
	skipped  int
}

func (t *streamTap) observe(data []byte) {
	var event streamEvent
	if err := json.Unmarshal(data, &event); err != nil {
		t.skipped++
		return
	}
	switch event.Type {
	case "message_start":
		if event.Message != nil && event.Message.Usage != nil {
			t.input = event.Message.Usage.InputTokens
			if event.Message.Usage.OutputTokens > 0 {
				t.output = event.Message.Usage.OutputTokens
			}
			t.sawUsage = true
		}
	case "message_delta":
		if event.Usage != nil {
			if event.Usage.OutputTokens > 0 {
				t.output = event.Usage.OutputTokens
			}
			if event.Usage.InputTokens > 0 {
				t.input = event.Usage.InputTokens
			}
			t.sawUsage = true
		}
	}
}

func (t *streamTap) usage() upstream.Usage {
	return upstream.Usage{
		InputTokens:  t.input,
		OutputTokens: t.output,
		Reported:     t.sawUsage,
	}
}
