package prompt

import (
	"log/slog"

	"github.com/pkoukk/tiktoken-go"

	"github.com/kadirpekel/conductor/pkg/llms"
)

// messageOverhead approximates the per-message framing tokens of chat APIs.
const messageOverhead = 4

// TokenCounter estimates prompt sizes. When no BPE encoding can be loaded
// it degrades to a bytes/4 approximation rather than failing.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter returns a counter for the model's encoding, falling back
// to cl100k_base and then to approximation.
func NewTokenCounter(model string) *TokenCounter {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		slog.Warn("Token encoding unavailable, using approximate counts", "model", model, "error", err)
		return &TokenCounter{}
	}
	return &TokenCounter{enc: enc}
}

// CountText returns the token count of one string.
func (c *TokenCounter) CountText(s string) int {
	if c == nil || c.enc == nil {
		return (len(s) + 3) / 4
	}
	return len(c.enc.Encode(s, nil, nil))
}

// CountMessages estimates the token size of a full prompt.
func (c *TokenCounter) CountMessages(messages []llms.Message) int {
	total := 0
	for _, m := range messages {
		total += messageOverhead + c.CountText(m.Content)
	}
	return total
}
