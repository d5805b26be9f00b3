// Package budget estimates token counts and caps the retrieved context sent
// to the chat model. The default counter uses a conservative character
// heuristic (1 token ≈ 4 characters) because the service supports several
// backends with different tokenizers; a tiktoken encoding can be selected
// when the backend is known to be OpenAI-compatible.
package budget

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultContextTokens is the default budget for retrieved context.
	DefaultContextTokens = 6000
)

// Counter counts tokens in a string.
type Counter interface {
	Count(s string) int
}

// Heuristic counts tokens with the 4-characters-per-token rule.
type Heuristic struct{}

// Count implements Counter.
func (Heuristic) Count(s string) int { return Estimate(s) }

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// Tiktoken counts tokens with a BPE encoding. It is safe for concurrent use.
type Tiktoken struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// Count implements Counter.
func (t *Tiktoken) Count(s string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.enc.Encode(s, nil, nil))
}

// NewCounter returns the counter named by tokenizer: "" or "heuristic" for
// the character heuristic, an encoding name such as "cl100k_base", or a
// model name such as "gpt-4o-mini".
func NewCounter(tokenizer string) (Counter, error) {
	if tokenizer == "" || tokenizer == "heuristic" {
		return Heuristic{}, nil
	}
	enc, err := tiktoken.GetEncoding(tokenizer)
	if err != nil {
		enc, err = tiktoken.EncodingForModel(tokenizer)
	}
	if err != nil {
		return nil, fmt.Errorf("budget: unknown tokenizer %q: %w", tokenizer, err)
	}
	return &Tiktoken{enc: enc}, nil
}

// Fit returns the longest prefix of items whose combined token count is
// within maxTokens. When even the first item exceeds the budget it is
// truncated so the result is never empty for non-empty input. maxTokens <= 0
// disables the cap.
func Fit(c Counter, items []string, maxTokens int) []string {
	if maxTokens <= 0 || len(items) == 0 {
		return items
	}
	used := 0
	for i, it := range items {
		n := c.Count(it)
		if used+n > maxTokens {
			if i == 0 {
				return []string{truncate(it, maxTokens)}
			}
			return items[:i]
		}
		used += n
	}
	return items
}

// truncate cuts s to roughly maxTokens tokens by the character heuristic.
func truncate(s string, maxTokens int) string {
	r := []rune(s)
	limit := maxTokens * charsPerToken
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
