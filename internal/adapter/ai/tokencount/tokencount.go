// Package tokencount counts chat prompt tokens with tiktoken so the tag
// extractor can budget a batch before sending it.
package tokencount

import (
	"log/slog"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Counter caches tiktoken encodings per model. Safe for concurrent use.
type Counter struct {
	encodingCache map[string]*tiktoken.Tiktoken
	mu            sync.RWMutex
}

// NewCounter returns an empty Counter.
func NewCounter() *Counter {
	return &Counter{
		encodingCache: make(map[string]*tiktoken.Tiktoken),
	}
}

// getEncodingForModel resolves and caches the encoding for a model, falling
// back to cl100k_base for models tiktoken does not know.
func (c *Counter) getEncodingForModel(model string) (*tiktoken.Tiktoken, error) {
	key := normalizeModelName(model)

	c.mu.RLock()
	if enc, ok := c.encodingCache[key]; ok {
		c.mu.RUnlock()
		return enc, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if enc, ok := c.encodingCache[key]; ok {
		return enc, nil
	}

	enc, err := tiktoken.EncodingForModel(key)
	if err != nil {
		slog.Debug("falling back to cl100k_base encoding",
			slog.String("model", model),
			slog.String("normalized", key),
			slog.Any("error", err))
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}

	c.encodingCache[key] = enc
	return enc, nil
}

// normalizeModelName maps deployment-specific model IDs onto the base names
// tiktoken knows. Gateway deployments prefix the vendor: "openai/gpt-4o".
func normalizeModelName(model string) string {
	model = strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	return model
}

// CountTokens counts the tokens in text for the given model.
func (c *Counter) CountTokens(text, model string) (int, error) {
	enc, err := c.getEncodingForModel(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// CountChatTokens counts a two-message chat prompt including the per-message
// framing overhead of OpenAI-compatible APIs: 3 tokens per message, 1 per
// role, and 3 priming the reply.
func (c *Counter) CountChatTokens(systemPrompt, userPrompt, model string) (int, error) {
	enc, err := c.getEncodingForModel(model)
	if err != nil {
		return 0, err
	}

	const tokensPerMessage = 3
	const tokensPerRole = 1

	n := 0
	n += tokensPerMessage + tokensPerRole
	n += len(enc.Encode("system", nil, nil))
	n += len(enc.Encode(systemPrompt, nil, nil))
	n += tokensPerMessage + tokensPerRole
	n += len(enc.Encode("user", nil, nil))
	n += len(enc.Encode(userPrompt, nil, nil))
	n += 3
	return n, nil
}

// Truncate returns text cut to at most maxTokens tokens for the given model.
func (c *Counter) Truncate(text, model string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		return "", nil
	}
	enc, err := c.getEncodingForModel(model)
	if err != nil {
		return "", err
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text, nil
	}
	return enc.Decode(tokens[:maxTokens]), nil
}
