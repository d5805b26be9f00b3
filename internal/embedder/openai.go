// Package embedder provides implementations of the rag.Embedder interface for
// converting text into dense vector embeddings. The Ollama and OpenAI/Azure
// backends talk plain HTTP; the Gemini backend uses the genai SDK that the
// chat provider already depends on.
package embedder

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// OpenAIEmbedder implements rag.Embedder against the OpenAI embeddings API
// or an Azure OpenAI deployment. It is safe for concurrent use.
type OpenAIEmbedder struct {
	// url is the fully resolved embeddings endpoint.
	url string
	// header carries the auth header for the chosen flavour.
	header     http.Header
	model      string
	dimensions int
	client     *http.Client
}

// OpenAIConfig holds the settings for constructing an OpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL is "https://api.openai.com/v1" for OpenAI or
	// "https://<resource>.openai.azure.com/openai" for Azure.
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int // 0 keeps the model's native size
	// Azure switches to the deployment URL layout and the api-key header.
	Azure      bool
	APIVersion string
	Timeout    time.Duration // default 30s
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder from the given config.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	e := &OpenAIEmbedder{
		url:        cfg.BaseURL + "/embeddings",
		header:     http.Header{},
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: timeout},
	}
	if cfg.Azure {
		e.url = fmt.Sprintf("%s/deployments/%s/embeddings?api-version=%s",
			cfg.BaseURL, url.PathEscape(cfg.Model), url.QueryEscape(cfg.APIVersion))
		e.header.Set("api-key", cfg.APIKey)
	} else {
		e.header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	return e
}

type openaiEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (r *openaiEmbedResponse) message() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Message
}

// Embed converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input slice.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var result openaiEmbedResponse
	req := openaiEmbedRequest{Input: texts, Model: e.model, Dimensions: e.dimensions}
	if err := postJSON(ctx, e.client, "openai", e.url, e.header, req, &result); err != nil {
		return nil, err
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("openai embedder: expected %d embeddings, got %d: %w", len(texts), len(result.Data), ErrProvider)
	}

	// Data may arrive out of order; place by index.
	embeddings := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("openai embedder: index %d out of range [0, %d): %w", d.Index, len(texts), ErrProvider)
		}
		embeddings[d.Index] = d.Embedding
	}
	if err := checkVectors("openai", embeddings, len(texts)); err != nil {
		return nil, err
	}
	return embeddings, nil
}
