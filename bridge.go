package llmbridge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	moderr "github.com/lizzyg/llmbridge/errors"
	"github.com/lizzyg/llmbridge/internal/config"
	"github.com/lizzyg/llmbridge/internal/core"
	"github.com/lizzyg/llmbridge/internal/metrics"
	"github.com/lizzyg/llmbridge/internal/providers"
	"github.com/lizzyg/llmbridge/internal/providers/gemini"
)

// Bridge hands out provider adapters for configured model keys. Adapters are
// built on first use and shared afterwards.
type Bridge struct {
	models     map[string]config.ModelConfig
	logger     *slog.Logger
	httpClient *http.Client
	registerer prometheus.Registerer
	metrics    *metrics.Recorder

	mu      sync.Mutex
	clients map[string]core.ChatModel // model key -> adapter
}

// Option allows functional configuration.
type Option func(*Bridge)

// WithLogger sets a custom slog logger.
func WithLogger(l *slog.Logger) Option { return func(b *Bridge) { b.logger = l } }

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(c *http.Client) Option { return func(b *Bridge) { b.httpClient = c } }

// WithMetricsRegisterer registers call metrics on reg instead of a private registry.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(b *Bridge) { b.registerer = reg }
}

// NewFromFile loads config via internal/config.Load and returns a Bridge.
func NewFromFile(opts ...Option) (*Bridge, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return New(*cfg, opts...)
}

// New builds a bridge from config and options.
func New(cfg config.LLMConfig, opts ...Option) (*Bridge, error) {
	if err := config.Validate(&cfg); err != nil {
		return nil, err
	}
	b := &Bridge{
		models:     cfg.Models,
		clients:    make(map[string]core.ChatModel),
		logger:     slog.Default(),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, o := range opts {
		o(b)
	}
	rec, err := metrics.New(b.registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	b.metrics = rec
	return b, nil
}

// MetricsHandler serves the call metrics in the Prometheus text format.
func (b *Bridge) MetricsHandler() http.Handler { return b.metrics.Handler() }

// WriteMetrics writes the call metrics to w in the Prometheus text format.
func (b *Bridge) WriteMetrics(w io.Writer) error { return b.metrics.WriteText(w) }

// ModelKeys returns the configured model keys in sorted order.
func (b *Bridge) ModelKeys() []string {
	keys := make([]string, 0, len(b.models))
	for k := range b.models {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (b *Bridge) client(key string) (core.ChatModel, config.ModelConfig, error) {
	mc, ok := b.models[key]
	if !ok {
		return nil, config.ModelConfig{}, fmt.Errorf("%w: %q", moderr.ErrNoMatchingModel, key)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.clients[key]; ok {
		return c, mc, nil
	}
	c, err := providers.NewClient(mc, b.httpClient, b.logger.With(slog.String("model_key", key)), b.metrics)
	if err != nil {
		return nil, config.ModelConfig{}, err
	}
	b.clients[key] = c
	return c, mc, nil
}

func capability[T any](b *Bridge, key, op string) (T, error) {
	c, mc, err := b.client(key)
	if err != nil {
		var zero T
		return zero, err
	}
	return providers.As[T](c, mc.Provider, op)
}

func (b *Bridge) ChatModel(key string) (ChatModel, error) {
	c, _, err := b.client(key)
	return c, err
}

func (b *Bridge) StreamingChatModel(key string) (StreamingChatModel, error) {
	return capability[StreamingChatModel](b, key, "streaming chat")
}

func (b *Bridge) TokenCounter(key string) (TokenCounter, error) {
	return capability[TokenCounter](b, key, "token counting")
}

func (b *Bridge) EmbeddingModel(key string) (EmbeddingModel, error) {
	return capability[EmbeddingModel](b, key, "embeddings")
}

func (b *Bridge) ImageModel(key string) (ImageModel, error) {
	return capability[ImageModel](b, key, "image generation")
}

func (b *Bridge) BatchChatModel(key string) (*gemini.BatchChat, error) {
	g, err := capability[*gemini.Client](b, key, "batch chat")
	if err != nil {
		return nil, err
	}
	return g.BatchChatModel(), nil
}

func (b *Bridge) BatchEmbeddingModel(key string) (*gemini.BatchEmbedding, error) {
	g, err := capability[*gemini.Client](b, key, "batch embeddings")
	if err != nil {
		return nil, err
	}
	return g.BatchEmbeddingModel(), nil
}

func (b *Bridge) BatchImageModel(key string) (*gemini.BatchImage, error) {
	g, err := capability[*gemini.Client](b, key, "batch images")
	if err != nil {
		return nil, err
	}
	return g.BatchImageModel(), nil
}

func (b *Bridge) Files(key string) (*Files, error) {
	g, err := capability[*gemini.Client](b, key, "files")
	if err != nil {
		return nil, err
	}
	return g.Files(), nil
}

func (b *Bridge) CachedContents(key string) (*CachedContents, error) {
	g, err := capability[*gemini.Client](b, key, "cached contents")
	if err != nil {
		return nil, err
	}
	return g.CachedContents(), nil
}

// Live opens a realtime session against the model configured under key.
func (b *Bridge) Live(ctx context.Context, key, systemInstruction string, h LiveHandlers) (*LiveSession, error) {
	g, err := capability[*gemini.Client](b, key, "live sessions")
	if err != nil {
		return nil, err
	}
	return g.Live(ctx, systemInstruction, h)
}

// selectModel resolves a model key. An explicit key must exist; when web
// search is wanted its WebVariant is used if set. Without a key the first
// model in key order that satisfies the request is chosen.
func (b *Bridge) selectModel(key string, allowWebSearch bool) (config.ModelConfig, string, error) {
	if key != "" {
		mc, ok := b.models[key]
		if !ok {
			return config.ModelConfig{}, "", fmt.Errorf("%w: %q", moderr.ErrNoMatchingModel, key)
		}
		if !allowWebSearch || mc.SupportsWebSearch {
			return mc, key, nil
		}
		if mc.WebVariant != "" {
			webModel, ok := b.models[mc.WebVariant]
			if ok && webModel.SupportsWebSearch {
				return webModel, mc.WebVariant, nil
			}
		}
		return config.ModelConfig{}, "", fmt.Errorf("%w: %q has no web search", moderr.ErrNoMatchingModel, key)
	}

	for _, k := range b.ModelKeys() {
		mc := b.models[k]
		if allowWebSearch && !mc.SupportsWebSearch {
			continue
		}
		return mc, k, nil
	}
	return config.ModelConfig{}, "", moderr.ErrNoMatchingModel
}
