// Package tracing wires optional Langfuse tracing into the eino callback
// system so every chat model and embedder call made by docchat is traced.
package tracing

import (
	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/docchat-go/internal/config"
	"github.com/54b3r/docchat-go/internal/version"
)

// defaultHost is the self-hosted Langfuse address used when LANGFUSE_HOST is unset.
const defaultHost = "http://localhost:3000"

// Settings are the resolved Langfuse connection parameters.
type Settings struct {
	Host      string
	PublicKey string
	SecretKey string
}

// Enabled reports whether both keys are present.
func (s Settings) Enabled() bool {
	return s.PublicKey != "" && s.SecretKey != ""
}

// SettingsFromEnv reads LANGFUSE_* through the config layer.
func SettingsFromEnv() Settings {
	return Settings{
		Host:      config.String("LANGFUSE_HOST", defaultHost),
		PublicKey: config.String("LANGFUSE_PUBLIC_KEY", ""),
		SecretKey: config.String("LANGFUSE_SECRET_KEY", ""),
	}
}

// Setup initialises the Langfuse callback handler if LANGFUSE_PUBLIC_KEY and
// LANGFUSE_SECRET_KEY are set. The returned flush function must be called
// before process exit so buffered traces are sent. When Langfuse is not
// configured the handler and flush function are nil and ok is false.
func Setup() (handler callbacks.Handler, flush func(), ok bool) {
	s := SettingsFromEnv()
	if !s.Enabled() {
		return nil, nil, false
	}
	handler, flush = langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      s.Host,
		PublicKey: s.PublicKey,
		SecretKey: s.SecretKey,
		Name:      "docchat",
		Release:   version.Version,
	})
	return handler, flush, true
}
