// Package audit records which configuration a docchat command started with.
// Secrets are logged as presence/absence only, and connection strings have
// their credentials masked.
package audit

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"strings"
)

// exposure says how much of a value may be logged.
type exposure int

const (
	// plain values are logged as-is.
	plain exposure = iota
	// secret values are reduced to "set" or "unset".
	secret
	// dsn values are logged with any password replaced by "xxxxx".
	dsn
)

// auditEntry is one environment variable included in the audit record.
type auditEntry struct {
	// key is the environment variable name.
	key string
	// exp controls redaction.
	exp exposure
}

// auditKeys is the ordered list of env vars included in every audit log entry.
var auditKeys = []auditEntry{
	{"MODEL_PROVIDER", plain},
	{"OLLAMA_HOST", plain},
	{"OLLAMA_MODEL", plain},
	{"OPENAI_API_KEY", secret},
	{"OPENAI_MODEL", plain},
	{"OPENAI_BASE_URL", plain},
	{"AZURE_OPENAI_API_KEY", secret},
	{"AZURE_OPENAI_ENDPOINT", plain},
	{"AZURE_OPENAI_DEPLOYMENT", plain},
	{"ARK_API_KEY", secret},
	{"ARK_MODEL", plain},
	{"GOOGLE_API_KEY", secret},
	{"GEMINI_MODEL", plain},
	{"EMBEDDING_PROVIDER", plain},
	{"EMBEDDING_MODEL", plain},
	{"EMBEDDING_DIMENSIONS", plain},
	{"EMBEDDING_API_KEY", secret},
	{"VECTOR_BACKEND", plain},
	{"QDRANT_HOST", plain},
	{"QDRANT_PORT", plain},
	{"QDRANT_COLLECTION", plain},
	{"QDRANT_API_KEY", secret},
	{"PGVECTOR_DSN", dsn},
	{"PGVECTOR_TABLE", plain},
	{"RAG_TOP_K", plain},
	{"RAG_SCORE_FLOOR", plain},
	{"RAG_CHUNK_SIZE", plain},
	{"RAG_CHUNK_OVERLAP", plain},
	{"JWT_SECRET", secret},
	{"JWT_TTL", plain},
	{"DOCCHAT_DB_PATH", plain},
	{"LOG_LEVEL", plain},
	{"LOG_FORMAT", plain},
	{"LANGFUSE_PUBLIC_KEY", secret},
	{"LANGFUSE_SECRET_KEY", secret},
}

// exposureOf maps every audited key to its redaction rule.
var exposureOf = func() map[string]exposure {
	m := make(map[string]exposure, len(auditKeys))
	for _, e := range auditKeys {
		m[e.key] = e.exp
	}
	return m
}()

// LogCommandStart emits a structured audit log entry when a CLI command begins.
// It records the command name, config file source, and sanitised environment.
func LogCommandStart(ctx context.Context, log *slog.Logger, command string, configPath string) {
	attrs := make([]slog.Attr, 0, len(auditKeys)+2)
	attrs = append(attrs,
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	)
	for _, e := range auditKeys {
		attrs = append(attrs, slog.String(e.key, SanitiseKey(e.key, os.Getenv(e.key))))
	}
	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey returns the loggable form of an env var value: "set"/"unset"
// for secrets, a masked URL for connection strings, and the value otherwise.
func SanitiseKey(key, value string) string {
	switch exposureOf[key] {
	case secret:
		return presence(value)
	case dsn:
		return maskDSN(value)
	default:
		return valOrUnset(value)
	}
}

// maskDSN hides the password of a postgres:// style connection string.
// Key/value DSNs cannot be parsed safely and are reduced to "set".
func maskDSN(v string) string {
	if v == "" {
		return "unset"
	}
	u, err := url.Parse(v)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "set"
	}
	return u.Redacted()
}

// presence returns "set" if the value is non-empty, "unset" otherwise.
func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// valOrUnset returns the value if non-empty, "unset" otherwise.
func valOrUnset(v string) string {
	if v != "" {
		return v
	}
	return "unset"
}

// sanitiseConfigPath returns the config path or "none" if empty.
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	// Redact home directory for privacy in logs.
	home, err := os.UserHomeDir()
	if err == nil && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
