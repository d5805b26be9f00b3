// Package config provides file-based configuration for docchat.
// Configuration is loaded with a layered precedence: defaults → config file → .env → env vars.
// Environment variables always win, so container deployments can override
// any file value without editing it.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. DOCCHAT_CONFIG environment variable
//  3. ~/.docchat/config.yaml
//  4. ./docchat.yaml
//
// Files ending in .toml are parsed as TOML; everything else as YAML.
// If no file is found the system runs entirely from env vars.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration file structure.
// Field names mirror the env var naming (lowercase, underscored).
type Config struct {
	// Model configures the LLM chat model provider.
	Model ModelConfig `yaml:"model" toml:"model"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding" toml:"embedding"`

	// Vector configures the vector index backend.
	Vector VectorConfig `yaml:"vector" toml:"vector"`

	// RAG configures chunking, retrieval and answer composition.
	RAG RAGConfig `yaml:"rag" toml:"rag"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server" toml:"server"`

	// Auth configures access token issuance.
	Auth AuthConfig `yaml:"auth" toml:"auth"`

	// Store configures the SQLite metadata store.
	Store StoreConfig `yaml:"store" toml:"store"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging" toml:"logging"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing" toml:"tracing"`
}

// ModelConfig holds LLM chat model settings.
type ModelConfig struct {
	// Provider selects the backend: ollama, openai, azure, ark, gemini.
	Provider string `yaml:"provider" toml:"provider"`
	// MaxTokens is the default response cap for the chat model.
	MaxTokens int `yaml:"max_tokens" toml:"max_tokens"`
	// Temperature controls response randomness (0.0 to 1.0).
	Temperature float32 `yaml:"temperature" toml:"temperature"`

	Ollama OllamaConfig `yaml:"ollama" toml:"ollama"`
	OpenAI OpenAIConfig `yaml:"openai" toml:"openai"`
	Azure  AzureConfig  `yaml:"azure" toml:"azure"`
	Ark    ArkConfig    `yaml:"ark" toml:"ark"`
	Gemini GeminiConfig `yaml:"gemini" toml:"gemini"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	Host  string `yaml:"host" toml:"host"`
	Model string `yaml:"model" toml:"model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey  string `yaml:"api_key" toml:"api_key"`
	Model   string `yaml:"model" toml:"model"`
	BaseURL string `yaml:"base_url" toml:"base_url"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	APIKey     string `yaml:"api_key" toml:"api_key"`
	Endpoint   string `yaml:"endpoint" toml:"endpoint"`
	Deployment string `yaml:"deployment" toml:"deployment"`
	APIVersion string `yaml:"api_version" toml:"api_version"`
}

// ArkConfig holds Volcengine Ark provider settings.
type ArkConfig struct {
	APIKey  string `yaml:"api_key" toml:"api_key"`
	Model   string `yaml:"model" toml:"model"`
	BaseURL string `yaml:"base_url" toml:"base_url"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	APIKey string `yaml:"api_key" toml:"api_key"`
	Model  string `yaml:"model" toml:"model"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (ollama, openai, azure).
	Provider string `yaml:"provider" toml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model" toml:"model"`
	// Dimensions is the embedding vector size and the collection dimension.
	Dimensions int `yaml:"dimensions" toml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key" toml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint" toml:"endpoint"`
}

// VectorConfig holds vector index settings.
type VectorConfig struct {
	// Backend selects the index: qdrant, pgvector, memory.
	Backend string `yaml:"backend" toml:"backend"`
	// Qdrant holds Qdrant connection settings.
	Qdrant QdrantConfig `yaml:"qdrant" toml:"qdrant"`
	// PgVector holds PostgreSQL/pgvector settings.
	PgVector PgVectorConfig `yaml:"pgvector" toml:"pgvector"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	Host       string `yaml:"host" toml:"host"`
	Port       int    `yaml:"port" toml:"port"`
	Collection string `yaml:"collection" toml:"collection"`
	APIKey     string `yaml:"api_key" toml:"api_key"`
	TLS        bool   `yaml:"tls" toml:"tls"`
}

// PgVectorConfig holds pgvector settings.
type PgVectorConfig struct {
	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn" toml:"dsn"`
	// Table is the chunk table name.
	Table string `yaml:"table" toml:"table"`
}

// RAGConfig holds retrieval pipeline tuning.
type RAGConfig struct {
	TopK             int      `yaml:"top_k" toml:"top_k"`
	// ScoreFloor and AnswerTemp are pointers so an explicit 0 in the file
	// is exported rather than dropped.
	ScoreFloor       *float32 `yaml:"score_floor" toml:"score_floor"`
	ChunkSize        int      `yaml:"chunk_size" toml:"chunk_size"`
	ChunkOverlap     int      `yaml:"chunk_overlap" toml:"chunk_overlap"`
	EmbedBatch       int      `yaml:"embed_batch" toml:"embed_batch"`
	EmbedConcurrency int      `yaml:"embed_concurrency" toml:"embed_concurrency"`
	EmbedRPS         float32  `yaml:"embed_rps" toml:"embed_rps"`
	ReplaceExisting  bool     `yaml:"replace_existing" toml:"replace_existing"`
	Tokenizer        string   `yaml:"tokenizer" toml:"tokenizer"`
	AnswerMaxTokens  int      `yaml:"answer_max_tokens" toml:"answer_max_tokens"`
	AnswerTemp       *float32 `yaml:"answer_temperature" toml:"answer_temperature"`
	ContextTokens    int      `yaml:"context_tokens" toml:"context_tokens"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host      string  `yaml:"host" toml:"host"`
	Port      int     `yaml:"port" toml:"port"`
	RateLimit float32 `yaml:"rate_limit" toml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst" toml:"rate_burst"`
	// UploadMaxMB caps the size of an uploaded document.
	UploadMaxMB int `yaml:"upload_max_mb" toml:"upload_max_mb"`
}

// AuthConfig holds token settings.
type AuthConfig struct {
	// Secret is the HMAC signing key. Prefer env var JWT_SECRET.
	Secret string `yaml:"secret" toml:"secret"`
	// TTL is the token lifetime as a Go duration string (e.g. "30m").
	TTL string `yaml:"ttl" toml:"ttl"`
}

// StoreConfig holds metadata store settings.
type StoreConfig struct {
	// DBPath is the SQLite database path.
	DBPath string `yaml:"db_path" toml:"db_path"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	PublicKey string `yaml:"public_key" toml:"public_key"`
	SecretKey string `yaml:"secret_key" toml:"secret_key"`
	Host      string `yaml:"host" toml:"host"`
}

// envMapping maps config file fields to their corresponding env var names.
// Only non-empty file values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"OPENAI_BASE_URL", func(c *Config) string { return c.Model.OpenAI.BaseURL }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"ARK_BASE_URL", func(c *Config) string { return c.Model.Ark.BaseURL }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"VECTOR_BACKEND", func(c *Config) string { return c.Vector.Backend }},
	{"QDRANT_HOST", func(c *Config) string { return c.Vector.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Vector.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Vector.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Vector.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Vector.Qdrant.TLS) }},
	{"PGVECTOR_DSN", func(c *Config) string { return c.Vector.PgVector.DSN }},
	{"PGVECTOR_TABLE", func(c *Config) string { return c.Vector.PgVector.Table }},
	{"RAG_TOP_K", func(c *Config) string { return intStr(c.RAG.TopK) }},
	{"RAG_SCORE_FLOOR", func(c *Config) string { return float32PtrStr(c.RAG.ScoreFloor) }},
	{"RAG_CHUNK_SIZE", func(c *Config) string { return intStr(c.RAG.ChunkSize) }},
	{"RAG_CHUNK_OVERLAP", func(c *Config) string { return intStr(c.RAG.ChunkOverlap) }},
	{"RAG_EMBED_BATCH", func(c *Config) string { return intStr(c.RAG.EmbedBatch) }},
	{"RAG_EMBED_CONCURRENCY", func(c *Config) string { return intStr(c.RAG.EmbedConcurrency) }},
	{"RAG_EMBED_RPS", func(c *Config) string { return float32Str(c.RAG.EmbedRPS) }},
	{"RAG_REPLACE_EXISTING", func(c *Config) string { return boolStr(c.RAG.ReplaceExisting) }},
	{"RAG_TOKENIZER", func(c *Config) string { return c.RAG.Tokenizer }},
	{"ANSWER_MAX_TOKENS", func(c *Config) string { return intStr(c.RAG.AnswerMaxTokens) }},
	{"ANSWER_TEMPERATURE", func(c *Config) string { return float32PtrStr(c.RAG.AnswerTemp) }},
	{"ANSWER_CONTEXT_TOKENS", func(c *Config) string { return intStr(c.RAG.ContextTokens) }},
	{"DOCCHAT_HOST", func(c *Config) string { return c.Server.Host }},
	{"DOCCHAT_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"DOCCHAT_RATE_LIMIT", func(c *Config) string { return float32Str(c.Server.RateLimit) }},
	{"DOCCHAT_RATE_BURST", func(c *Config) string { return intStr(c.Server.RateBurst) }},
	{"DOCCHAT_UPLOAD_MAX_MB", func(c *Config) string { return intStr(c.Server.UploadMaxMB) }},
	{"JWT_SECRET", func(c *Config) string { return c.Auth.Secret }},
	{"JWT_TTL", func(c *Config) string { return c.Auth.TTL }},
	{"DOCCHAT_DB_PATH", func(c *Config) string { return c.Store.DBPath }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// LoadDotEnv loads KEY=VALUE pairs from the given .env files into the
// process environment without overriding variables that are already set.
// Missing files are skipped. With no arguments ./.env is tried.
func LoadDotEnv(log *slog.Logger, paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("config: failed to load %s: %w", p, err)
		}
		log.Debug("config: loaded dotenv file", slog.String("path", p))
	}
	return nil
}

// Load reads a YAML or TOML config file and applies non-empty values as
// environment variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	cfg, err := parse(path, data)
	if err != nil {
		return "", err
	}

	applied := 0
	for _, m := range envMapping {
		fileVal := m.value(cfg)
		if fileVal == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env wins
		}
		if err := os.Setenv(m.envKey, fileVal); err != nil {
			return "", fmt.Errorf("config: set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded config file",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// parse decodes data as TOML when path has a .toml extension, YAML otherwise.
func parse(path string, data []byte) (*Config, error) {
	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
		return &cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return &cfg, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("DOCCHAT_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".docchat", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("docchat.yaml"); err == nil {
		return "docchat.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// float32PtrStr converts a set float32 to string, including zero; nil
// gives "".
func float32PtrStr(v *float32) string {
	if v == nil {
		return ""
	}
	if *v == 0 {
		return "0"
	}
	return float32Str(*v)
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
