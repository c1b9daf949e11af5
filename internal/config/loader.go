package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	kenv "github.com/knadh/koanf/providers/env"
	kfile "github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	moderr "github.com/lizzyg/llmbridge/errors"
)

const (
	ProviderGemini     = "gemini"
	ProviderCloudflare = "cloudflare"
)

// LLMConfig is the root config structure.
type LLMConfig struct {
	Models map[string]ModelConfig `koanf:"models" validate:"required,min=1,dive"`
}

// ModelConfig defines a single model entry in config.
type ModelConfig struct {
	Provider  string        `koanf:"provider" validate:"required,oneof=gemini cloudflare"`
	Model     string        `koanf:"model" validate:"required"`
	APIKey    string        `koanf:"api_key" validate:"required"`
	BaseURL   string        `koanf:"base_url" validate:"omitempty,url"`
	AccountID string        `koanf:"account_id" validate:"required_if=Provider cloudflare"`
	Timeout   time.Duration `koanf:"timeout"`
	// MaxRetries is the number of retries after the first attempt. Unset uses the retry default.
	MaxRetries *int `koanf:"max_retries" validate:"omitempty,min=0"`

	WebVariant               string `koanf:"web_variant"`
	SupportsWebSearch        bool   `koanf:"supports_web_search"`
	SupportsTools            bool   `koanf:"supports_tools"`
	SupportsStructuredOutput bool   `koanf:"supports_structured_output"`
	ContextWindow            int    `koanf:"context_window"`

	// Generation defaults
	Temperature     *float64          `koanf:"temperature" validate:"omitempty,min=0,max=2"`
	TopK            *int              `koanf:"top_k" validate:"omitempty,min=1"`
	TopP            *float64          `koanf:"top_p" validate:"omitempty,min=0,max=1"`
	MaxOutputTokens int               `koanf:"max_output_tokens" validate:"min=0"`
	StopSequences   []string          `koanf:"stop_sequences"`
	SafetySettings  map[string]string `koanf:"safety_settings"`
	ThinkingBudget  *int              `koanf:"thinking_budget"`
	IncludeThoughts bool              `koanf:"include_thoughts"`
	CachedContent   string            `koanf:"cached_content"`

	// Built-in tools
	AllowCodeExecution         bool `koanf:"allow_code_execution"`
	IncludeCodeExecutionOutput bool `koanf:"include_code_execution_output"`
	AllowGoogleSearch          bool `koanf:"allow_google_search"`
	AllowURLContext            bool `koanf:"allow_url_context"`
	AllowGoogleMaps            bool `koanf:"allow_google_maps"`

	// Embeddings
	TaskType             string `koanf:"task_type"`
	TitleMetadataKey     string `koanf:"title_metadata_key"`
	OutputDimensionality *int   `koanf:"output_dimensionality" validate:"omitempty,min=1"`

	// Images and live sessions
	ResponseModalities []string `koanf:"response_modalities" validate:"dive,oneof=TEXT IMAGE AUDIO"`
	AspectRatio        string   `koanf:"aspect_ratio"`
	ImageSize          string   `koanf:"image_size"`
	ImageWidth         int      `koanf:"image_width" validate:"min=0"`
	ImageHeight        int      `koanf:"image_height" validate:"min=0"`
	NumSteps           int      `koanf:"num_steps" validate:"min=0"`
	VoiceName          string   `koanf:"voice_name"`

	LogRequests  bool `koanf:"log_requests"`
	LogResponses bool `koanf:"log_responses"`
}

// Load loads configuration from path or default locations. Load is safe for
// repeated calls and re-reads only when the resolved path changes.
//
// Priority:
// 1. LLM_CONFIG_PATH if set
// 2. ./config.yaml
//
// A .env file in the working directory is read first; variables already set
// in the environment win.
func Load() (*LLMConfig, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	path := os.Getenv("LLM_CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	return loaded.get(path, LoadFrom)
}

// LoadFrom reads, resolves and validates the config file at path without caching.
func LoadFrom(path string) (*LLMConfig, error) {
	k := koanf.New(".")

	if err := k.Load(kfile.Provider(path), yaml.Parser()); err != nil {
		return nil, err
	}

	// Environment overrides: LLM__MODELS__flash__api_key=...
	// Double underscore splits levels.
	if err := k.Load(kenv.Provider("LLM__", "__", strings.ToLower), nil); err != nil {
		return nil, err
	}

	var cfg LLMConfig
	if err := k.Unmarshal("llm", &cfg); err != nil {
		return nil, err
	}

	resolveEnvVars(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks required fields and value ranges of every model entry.
func Validate(cfg *LLMConfig) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			messages := make([]string, 0, len(verrs))
			for _, e := range verrs {
				messages = append(messages, formatFieldError(e))
			}
			return fmt.Errorf("%w: %s", moderr.ErrInvalidConfig, strings.Join(messages, "; "))
		}
		return fmt.Errorf("%w: %v", moderr.ErrInvalidConfig, err)
	}
	return nil
}

func formatFieldError(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("field '%s' is required", e.Namespace())
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of: %s", e.Namespace(), e.Param())
	case "min", "max":
		return fmt.Sprintf("field '%s' must be %s %s", e.Namespace(), e.Tag(), e.Param())
	default:
		return fmt.Sprintf("field '%s' failed validation: %s", e.Namespace(), e.Tag())
	}
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// resolveEnvVars resolves ${VAR} patterns in config string fields
func resolveEnvVars(cfg *LLMConfig) {
	for key, model := range cfg.Models {
		model.APIKey = resolveEnvString(model.APIKey)
		model.Provider = resolveEnvString(model.Provider)
		model.Model = resolveEnvString(model.Model)
		model.BaseURL = resolveEnvString(model.BaseURL)
		model.AccountID = resolveEnvString(model.AccountID)
		model.CachedContent = resolveEnvString(model.CachedContent)
		cfg.Models[key] = model
	}
}

// resolveEnvString replaces ${VAR} with environment variable values; unset
// variables resolve to the empty string.
func resolveEnvString(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}
