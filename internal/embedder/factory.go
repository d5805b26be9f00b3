package embedder

import (
	"context"
	"fmt"
	"strings"

	"github.com/54b3r/docchat-go/internal/config"
	"github.com/54b3r/docchat-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultGeminiModel = "text-embedding-004"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
	// defaultGeminiDimensions is the output dimension of text-embedding-004.
	defaultGeminiDimensions = 768
)

// Settings is the resolved embedding configuration.
type Settings struct {
	Backend    string
	Model      string
	APIKey     string
	Endpoint   string
	APIVersion string
	Dimensions int
}

// DefaultDimensions returns the embedding vector size for the given backend.
// Callers that pre-configure a vector index should use this rather than
// hardcoding a value. EMBEDDING_DIMENSIONS always takes precedence when set.
func DefaultDimensions(backend string) int {
	if v := config.Int("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case "ollama":
		return defaultOllamaDimensions
	case "gemini":
		return defaultGeminiDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// ResolveSettings reads the embedding configuration from the environment,
// inheriting credentials from the chat provider when embedding-specific
// overrides are not set.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER, else MODEL_PROVIDER, else openai
//  2. EMBEDDING_MODEL overrides the backend default model
//  3. EMBEDDING_API_KEY overrides the inherited API key
//  4. EMBEDDING_ENDPOINT overrides the inherited endpoint
//  5. EMBEDDING_DIMENSIONS overrides the backend default dimension
func ResolveSettings() (Settings, error) {
	backend := config.String("EMBEDDING_PROVIDER", config.String("MODEL_PROVIDER", "openai"))
	s := Settings{
		Backend:    backend,
		APIKey:     config.String("EMBEDDING_API_KEY", ""),
		Endpoint:   config.String("EMBEDDING_ENDPOINT", ""),
		Dimensions: DefaultDimensions(backend),
	}

	switch backend {
	case "ollama":
		s.Model = config.String("EMBEDDING_MODEL", defaultOllamaModel)
		if s.Endpoint == "" {
			s.Endpoint = config.String("OLLAMA_HOST", "http://localhost:11434")
		}

	case "openai":
		s.Model = config.String("EMBEDDING_MODEL", defaultOpenAIModel)
		if s.APIKey == "" {
			s.APIKey = config.String("OPENAI_API_KEY", "")
		}
		if s.APIKey == "" {
			return s, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if s.Endpoint == "" {
			s.Endpoint = config.String("OPENAI_BASE_URL", "https://api.openai.com/v1")
		}

	case "azure":
		s.Model = config.String("EMBEDDING_MODEL", defaultOpenAIModel)
		if s.APIKey == "" {
			s.APIKey = config.String("AZURE_OPENAI_API_KEY", "")
		}
		if s.APIKey == "" {
			return s, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if s.Endpoint == "" {
			s.Endpoint = config.String("AZURE_OPENAI_ENDPOINT", "")
		}
		if s.Endpoint == "" {
			return s, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		s.APIVersion = config.String("AZURE_OPENAI_API_VERSION", "2025-04-01-preview")

	case "gemini":
		s.Model = config.String("EMBEDDING_MODEL", defaultGeminiModel)
		if s.APIKey == "" {
			s.APIKey = config.String("GOOGLE_API_KEY", "")
		}
		if s.APIKey == "" {
			return s, fmt.Errorf("embedder: gemini requires GOOGLE_API_KEY or EMBEDDING_API_KEY")
		}

	default:
		return s, fmt.Errorf("embedder: unknown backend %q, valid values: ollama, openai, azure, gemini", backend)
	}
	return s, nil
}

// New constructs the embedder described by s.
func New(ctx context.Context, s Settings) (rag.Embedder, error) {
	switch s.Backend {
	case "ollama":
		return NewOllamaEmbedder(&OllamaConfig{Host: s.Endpoint, Model: s.Model}), nil
	case "openai":
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimRight(s.Endpoint, "/"),
			APIKey:     s.APIKey,
			Model:      s.Model,
			Dimensions: s.Dimensions,
		}), nil
	case "azure":
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimRight(s.Endpoint, "/") + "/openai",
			APIKey:     s.APIKey,
			Model:      s.Model,
			Dimensions: s.Dimensions,
			Azure:      true,
			APIVersion: s.APIVersion,
		}), nil
	case "gemini":
		return NewGeminiEmbedder(ctx, &GeminiConfig{APIKey: s.APIKey, Model: s.Model, Dimensions: s.Dimensions})
	default:
		return nil, fmt.Errorf("embedder: unknown backend %q", s.Backend)
	}
}

// NewFromEnv resolves settings from the environment and constructs the
// embedder. It returns the settings too so callers can size the vector index.
func NewFromEnv(ctx context.Context) (rag.Embedder, Settings, error) {
	s, err := ResolveSettings()
	if err != nil {
		return nil, s, err
	}
	e, err := New(ctx, s)
	return e, s, err
}
