package embedder

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// OllamaEmbedder implements rag.Embedder against a local Ollama server's
// batch /api/embed endpoint. No API key is involved.
type OllamaEmbedder struct {
	url    string
	model  string
	client *http.Client
}

// OllamaConfig holds the settings for constructing an OllamaEmbedder.
type OllamaConfig struct {
	Host    string        // default http://localhost:11434
	Model   string        // default nomic-embed-text
	Timeout time.Duration // default 60s; local models can be slow on first load
}

// NewOllamaEmbedder constructs an OllamaEmbedder, filling in defaults.
func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	host := strings.TrimRight(cfg.Host, "/")
	if host == "" {
		host = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OllamaEmbedder{url: host + "/api/embed", model: model, client: &http.Client{Timeout: timeout}}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

func (r *ollamaEmbedResponse) message() string { return r.Error }

// Embed converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input slice.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var result ollamaEmbedResponse
	req := ollamaEmbedRequest{Model: e.model, Input: texts}
	if err := postJSON(ctx, e.client, "ollama", e.url, nil, req, &result); err != nil {
		return nil, err
	}
	if err := checkVectors("ollama", result.Embeddings, len(texts)); err != nil {
		return nil, err
	}
	return result.Embeddings, nil
}
