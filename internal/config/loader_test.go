package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	moderr "github.com/lizzyg/llmbridge/errors"
)

func TestLoadMissingFile(t *testing.T) {
	ResetForTest()
	t.Setenv("LLM_CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFrom(t *testing.T) {
	t.Setenv("GEMINI_KEY", "secret")
	t.Setenv("LLM__MODELS__flash__max_output_tokens", "2048")
	path := writeConfig(t, `
llm:
  models:
    flash:
      provider: gemini
      model: gemini-2.5-flash
      api_key: ${GEMINI_KEY}
      timeout: 30s
      max_retries: 2
      temperature: 0.2
      max_output_tokens: 1024
      safety_settings:
        HARM_CATEGORY_HARASSMENT: BLOCK_NONE
    cf:
      provider: cloudflare
      model: "@cf/meta/llama-3.1-8b-instruct"
      api_key: token
      account_id: acct
`)
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	flash := cfg.Models["flash"]
	if flash.APIKey != "secret" {
		t.Fatalf("env var not resolved: %q", flash.APIKey)
	}
	if flash.Timeout != 30*time.Second {
		t.Fatalf("unexpected timeout: %v", flash.Timeout)
	}
	if flash.MaxRetries == nil || *flash.MaxRetries != 2 {
		t.Fatalf("unexpected max retries: %v", flash.MaxRetries)
	}
	if flash.Temperature == nil || *flash.Temperature != 0.2 {
		t.Fatalf("unexpected temperature: %v", flash.Temperature)
	}
	if flash.MaxOutputTokens != 2048 {
		t.Fatalf("env override not applied: %d", flash.MaxOutputTokens)
	}
	if flash.SafetySettings["harassment"] == "" && flash.SafetySettings["HARM_CATEGORY_HARASSMENT"] == "" {
		t.Fatalf("safety settings not loaded: %v", flash.SafetySettings)
	}
	if cfg.Models["cf"].AccountID != "acct" {
		t.Fatalf("unexpected cloudflare entry: %+v", cfg.Models["cf"])
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     LLMConfig
		wantErr string
	}{
		{
			name: "valid",
			cfg: LLMConfig{Models: map[string]ModelConfig{
				"g": {Provider: ProviderGemini, Model: "gemini-2.5-flash", APIKey: "k"},
			}},
		},
		{
			name:    "no models",
			cfg:     LLMConfig{},
			wantErr: "Models",
		},
		{
			name: "unknown provider",
			cfg: LLMConfig{Models: map[string]ModelConfig{
				"x": {Provider: "acme", Model: "m", APIKey: "k"},
			}},
			wantErr: "must be one of",
		},
		{
			name: "missing api key",
			cfg: LLMConfig{Models: map[string]ModelConfig{
				"g": {Provider: ProviderGemini, Model: "m"},
			}},
			wantErr: "APIKey",
		},
		{
			name: "cloudflare without account",
			cfg: LLMConfig{Models: map[string]ModelConfig{
				"cf": {Provider: ProviderCloudflare, Model: "m", APIKey: "k"},
			}},
			wantErr: "AccountID",
		},
		{
			name: "bad modality",
			cfg: LLMConfig{Models: map[string]ModelConfig{
				"g": {Provider: ProviderGemini, Model: "m", APIKey: "k", ResponseModalities: []string{"SMELL"}},
			}},
			wantErr: "ResponseModalities",
		},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected err: %v", err)
				}
				return
			}
			if !errors.Is(err, moderr.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected %q in %v", tt.wantErr, err)
			}
		})
	}
}

func TestResolveEnvString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		env      map[string]string
		expected string
	}{
		{
			name:     "replaces set environment variable",
			input:    "api-${API_KEY}-suffix",
			env:      map[string]string{"API_KEY": "test123"},
			expected: "api-test123-suffix",
		},
		{
			name:     "handles empty environment variable",
			input:    "prefix-${EMPTY_VAR}-suffix",
			env:      map[string]string{"EMPTY_VAR": ""},
			expected: "prefix--suffix",
		},
		{
			name:     "handles unset environment variable",
			input:    "prefix-${LLMBRIDGE_UNSET_VAR}-suffix",
			expected: "prefix--suffix",
		},
		{
			name:     "handles multiple variables",
			input:    "${HOST}:${PORT}",
			env:      map[string]string{"HOST": "localhost", "PORT": ""},
			expected: "localhost:",
		},
		{
			name:     "no substitution needed",
			input:    "no-vars-here",
			expected: "no-vars-here",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			result := resolveEnvString(tt.input)
			if result != tt.expected {
				t.Errorf("resolveEnvString(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
