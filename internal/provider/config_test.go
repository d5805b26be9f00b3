package provider

import (
	"context"
	"strings"
	"testing"
)

// providerEnv lists every variable ConfigFromEnv reads, so each case starts
// from a clean slate regardless of the host environment.
var providerEnv = []string{
	"MODEL_PROVIDER", "MODEL_MAX_TOKENS", "MODEL_TEMPERATURE",
	"OLLAMA_HOST", "OLLAMA_MODEL",
	"OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL",
	"AZURE_OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT", "AZURE_OPENAI_DEPLOYMENT", "AZURE_OPENAI_API_VERSION",
	"ARK_API_KEY", "ARK_MODEL", "ARK_BASE_URL",
	"GOOGLE_API_KEY", "GEMINI_MODEL",
}

func setProviderEnv(t *testing.T, env map[string]string) {
	t.Helper()
	for _, k := range providerEnv {
		t.Setenv(k, env[k])
	}
}

// TestConfigFromEnv_Validate resolves each backend from the environment and
// checks that Validate names exactly the variables still missing.
func TestConfigFromEnv_Validate(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		wantModel string
		wantErr   string
	}{
		{name: "default backend is openai", env: map[string]string{"OPENAI_API_KEY": "sk-test"}, wantModel: "gpt-4o-mini"},
		{name: "openai without key", env: nil, wantErr: "openai backend requires OPENAI_API_KEY"},
		{name: "ollama defaults", env: map[string]string{"MODEL_PROVIDER": "ollama"}, wantModel: "llama3"},
		{name: "ollama model override", env: map[string]string{"MODEL_PROVIDER": "ollama", "OLLAMA_MODEL": "qwen2.5"}, wantModel: "qwen2.5"},
		{
			name:      "azure complete",
			env:       map[string]string{"MODEL_PROVIDER": "azure", "AZURE_OPENAI_API_KEY": "k", "AZURE_OPENAI_ENDPOINT": "https://x.openai.azure.com", "AZURE_OPENAI_DEPLOYMENT": "gpt-4.1"},
			wantModel: "gpt-4.1",
		},
		{name: "azure lists every gap", env: map[string]string{"MODEL_PROVIDER": "azure", "AZURE_OPENAI_API_KEY": "k"}, wantErr: "AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT"},
		{name: "ark has no default model", env: map[string]string{"MODEL_PROVIDER": "ark", "ARK_API_KEY": "k"}, wantErr: "ARK_MODEL"},
		{name: "ark complete", env: map[string]string{"MODEL_PROVIDER": "ark", "ARK_API_KEY": "k", "ARK_MODEL": "doubao-pro-32k"}, wantModel: "doubao-pro-32k"},
		{name: "gemini without key", env: map[string]string{"MODEL_PROVIDER": "gemini"}, wantErr: "GOOGLE_API_KEY"},
		{name: "gemini default model", env: map[string]string{"MODEL_PROVIDER": "gemini", "GOOGLE_API_KEY": "AIza"}, wantModel: "gemini-2.0-flash"},
		{name: "unknown backend", env: map[string]string{"MODEL_PROVIDER": "bedrock"}, wantErr: "unknown backend \"bedrock\""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setProviderEnv(t, tc.env)
			cfg := ConfigFromEnv()
			err := cfg.Validate()
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("Validate() = %v, want error containing %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error: %v", err)
			}
			if got := cfg.ModelName(); got != tc.wantModel {
				t.Errorf("ModelName() = %q, want %q", got, tc.wantModel)
			}
		})
	}
}

func TestConfigFromEnv_Tuning(t *testing.T) {
	setProviderEnv(t, map[string]string{"MODEL_PROVIDER": "azure", "MODEL_MAX_TOKENS": "2048", "MODEL_TEMPERATURE": "0.7"})
	cfg := ConfigFromEnv()
	if cfg.AzureOpenAI.APIVersion != "2024-06-01" {
		t.Errorf("APIVersion default = %q", cfg.AzureOpenAI.APIVersion)
	}
	if cfg.Tuning.MaxTokens != 2048 || cfg.Tuning.Temperature != 0.7 {
		t.Errorf("Tuning = %+v", cfg.Tuning)
	}

	setProviderEnv(t, nil)
	cfg = ConfigFromEnv()
	if cfg.Tuning.MaxTokens != 1000 || cfg.Tuning.Temperature != 0.1 {
		t.Errorf("default Tuning = %+v", cfg.Tuning)
	}
}

// TestNew_RejectsInvalidConfig checks that construction validates before
// touching any backend.
func TestNew_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	_, err := New(context.Background(), &Config{Backend: BackendGemini, Gemini: ProviderGemini{Model: "gemini-2.0-flash"}})
	if err == nil || !strings.Contains(err.Error(), "GOOGLE_API_KEY") {
		t.Fatalf("New() = %v, want missing GOOGLE_API_KEY", err)
	}
}

func TestIsAzureReasoningModel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		deployment string
		want       bool
	}{
		{"o1", true},
		{"o1-mini", true},
		{"o3-mini", true},
		{"o4-mini", true},
		{"O3-Mini", true},
		{"codex-mini", true},
		{"gpt-5.2-codex", false},
		{"gpt-4o", false},
		{"gpt-4.1", false},
		{"gpt-35-turbo", false},
		{"", false},
	}

	for _, tc := range tests {
		t.Run(tc.deployment, func(t *testing.T) {
			t.Parallel()
			if got := isAzureReasoningModel(tc.deployment); got != tc.want {
				t.Errorf("isAzureReasoningModel(%q) = %v, want %v", tc.deployment, got, tc.want)
			}
		})
	}
}
