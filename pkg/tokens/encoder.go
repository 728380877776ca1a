package tokens

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// o200kPrefixes lists model-name prefixes served by the 200k-vocabulary
// encoder. Everything else falls back to cl100k.
var o200kPrefixes = []string{
	"gpt-4o",
	"chatgpt-4o",
	"gpt-4.1",
	"gpt-5",
	"o1",
	"o3",
	"o4",
}

// EncodingForModel selects the BPE encoding for a model identifier.
func EncodingForModel(model string) tokenizer.Encoding {
	m := strings.ToLower(strings.TrimSpace(model))
	for _, p := range o200kPrefixes {
		if strings.HasPrefix(m, p) {
			return tokenizer.O200kBase
		}
	}
	return tokenizer.Cl100kBase
}

// encoderCache holds lazily constructed codecs. Construction parses the
// embedded vocabulary, which is slow enough to do exactly once per encoding.
type encoderCache struct {
	mu     sync.Mutex
	codecs map[tokenizer.Encoding]tokenizer.Codec
}

var encoders = &encoderCache{codecs: make(map[tokenizer.Encoding]tokenizer.Codec)}

func (c *encoderCache) get(enc tokenizer.Encoding) (tokenizer.Codec, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if codec, ok := c.codecs[enc]; ok {
		return codec, nil
	}
	codec, err := tokenizer.Get(enc)
	if err != nil {
		return nil, fmt.Errorf("construct %s encoder: %w", enc, err)
	}
	c.codecs[enc] = codec
	return codec, nil
}

func (c *encoderCache) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codecs = make(map[tokenizer.Encoding]tokenizer.Codec)
}

// CountText returns the BPE token count of text under the encoder selected
// for model. Empty text is zero tokens.
func CountText(model, text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	codec, err := encoders.get(EncodingForModel(model))
	if err != nil {
		return 0, err
	}
	n, err := codec.Count(text)
	if err != nil {
		return 0, fmt.Errorf("count tokens: %w", err)
	}
	return n, nil
}

// ReleaseEncoders drops all cached codecs so their vocabularies can be
// collected. Intended for shutdown; the next CountText rebuilds on demand.
func ReleaseEncoders() {
	encoders.release()
}
