package embedder

import (
	"fmt"
	"log/slog"
	"strings"
)

// chatModelMarkers identify chat models that are not suitable for embedding.
var chatModelMarkers = []string{
	"gpt-4", "gpt-3.5", "gpt-35", "o1", "o3",
	"llama3", "llama2", "llama-3", "llama-2",
	"mistral", "mixtral", "gemma", "phi-", "phi3",
	"claude", "command-r", "deepseek", "qwen", "gemini-",
}

// nativeDimensions lists the fixed output size of common embedding models.
// A vector index created with any other size rejects every upsert.
var nativeDimensions = map[string]int{
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"text-embedding-004":     768,
	"text-embedding-ada-002": 1536,
}

// looksLikeChatModel reports whether model resembles a chat model rather
// than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	if strings.Contains(lower, "embed") {
		return false
	}
	for _, m := range chatModelMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// dimensionMismatch returns the native size of s.Model when it is known and
// differs from s.Dimensions. The text-embedding-3 family accepts a requested
// size, so it never mismatches.
func dimensionMismatch(s Settings) (int, bool) {
	name, _, _ := strings.Cut(strings.ToLower(s.Model), ":")
	native, ok := nativeDimensions[name]
	if !ok || s.Dimensions <= 0 {
		return 0, false
	}
	return native, native != s.Dimensions
}

// finding is one pre-flight warning.
type finding struct {
	msg   string
	attrs []any
}

// check returns pre-flight findings for settings that resolve but are likely
// wrong.
func check(s Settings, explicitProvider bool) []finding {
	var out []finding
	if !explicitProvider && s.Backend != "ollama" {
		out = append(out, finding{
			msg:   "embedder: EMBEDDING_PROVIDER is not set, inheriting MODEL_PROVIDER as embedding backend",
			attrs: []any{slog.String("backend", s.Backend), slog.String("hint", "set EMBEDDING_PROVIDER to be explicit")},
		})
	}
	if looksLikeChatModel(s.Model) {
		out = append(out, finding{
			msg:   "embedder: EMBEDDING_MODEL looks like a chat model, embeddings will likely be poor",
			attrs: []any{slog.String("model", s.Model), slog.String("hint", "use a dedicated embedding model e.g. nomic-embed-text, text-embedding-3-small")},
		})
	}
	if native, bad := dimensionMismatch(s); bad {
		out = append(out, finding{
			msg: "embedder: EMBEDDING_DIMENSIONS does not match the model's output size",
			attrs: []any{
				slog.String("model", s.Model),
				slog.Int("configured", s.Dimensions),
				slog.Int("native", native),
				slog.String("hint", fmt.Sprintf("set EMBEDDING_DIMENSIONS=%d or unset it", native)),
			},
		})
	}
	return out
}

// Warn logs the pre-flight findings for s.
func Warn(log *slog.Logger, s Settings, explicitProvider bool) {
	for _, f := range check(s, explicitProvider) {
		log.Warn(f.msg, f.attrs...)
	}
}
