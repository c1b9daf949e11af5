package providers

import (
	"fmt"
	"log/slog"
	"net/http"

	moderr "github.com/lizzyg/llmbridge/errors"
	"github.com/lizzyg/llmbridge/internal/config"
	"github.com/lizzyg/llmbridge/internal/core"
	"github.com/lizzyg/llmbridge/internal/metrics"
	"github.com/lizzyg/llmbridge/internal/providers/cloudflare"
	"github.com/lizzyg/llmbridge/internal/providers/gemini"
)

// NewClient builds the adapter for one configured model. Every adapter is a
// chat model; use As to reach the other capabilities.
func NewClient(mc config.ModelConfig, hc *http.Client, logger *slog.Logger, rec *metrics.Recorder) (core.ChatModel, error) {
	switch mc.Provider {
	case config.ProviderGemini:
		return gemini.New(mc, hc, logger, rec), nil
	case config.ProviderCloudflare:
		return cloudflare.New(mc, hc, logger, rec), nil
	default:
		return nil, fmt.Errorf("%w: %q", moderr.ErrUnknownProvider, mc.Provider)
	}
}

// As returns client as T, or ErrUnsupportedOperation when the provider does
// not offer op.
func As[T any](client any, provider, op string) (T, error) {
	t, ok := client.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s on %s", moderr.ErrUnsupportedOperation, op, provider)
	}
	return t, nil
}
