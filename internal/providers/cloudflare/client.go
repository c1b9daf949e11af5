// Package cloudflare adapts Cloudflare Workers AI models to the chat,
// streaming, embedding and image interfaces.
package cloudflare

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lizzyg/llmbridge/internal/config"
	"github.com/lizzyg/llmbridge/internal/core"
	"github.com/lizzyg/llmbridge/internal/metrics"
	"github.com/lizzyg/llmbridge/internal/providers/retry"
	"github.com/lizzyg/llmbridge/internal/providers/transport"
)

const (
	DefaultBaseURLTemplate = "https://api.cloudflare.com/client/v4/accounts/%s/ai/run/"
	providerName           = "cloudflare"
)

// Client serves one configured Workers AI model.
type Client struct {
	tc      *transport.Client
	baseURL string
	cfg     config.ModelConfig
	model   string
	logger  *slog.Logger
	metrics *metrics.Recorder
}

func New(mc config.ModelConfig, hc *http.Client, logger *slog.Logger, rec *metrics.Recorder) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	rc := retry.DefaultConfig()
	if mc.MaxRetries != nil {
		rc = retry.ConfigForRetries(*mc.MaxRetries)
	}
	apiKey := mc.APIKey
	tc := &transport.Client{
		HTTP:     hc,
		Logger:   logger,
		Metrics:  rec,
		Provider: providerName,
		Retry:    rc,
		Authorize: func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+apiKey)
		},
		DecodeError:  decodeError,
		LogRequests:  mc.LogRequests,
		LogResponses: mc.LogResponses,
	}
	baseURL := mc.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf(DefaultBaseURLTemplate, mc.AccountID)
	}
	return &Client{
		tc:      tc,
		baseURL: strings.TrimSuffix(baseURL, "/") + "/",
		cfg:     mc,
		model:   mc.Model,
		logger:  logger,
		metrics: rec,
	}
}

// decodeError fills the vendor code and message from the errors array.
func decodeError(status int, body []byte) error {
	he := retry.NewHTTPStatusError(status, string(body), providerName)
	var env envelope[json.RawMessage]
	if err := json.Unmarshal(body, &env); err == nil && len(env.Errors) > 0 {
		he.Code = env.Errors[0].Code
		he.Message = (&APIError{Errors: env.Errors}).Error()
	}
	return he
}

// modelURL appends the model name as is; Workers AI names such as
// @cf/meta/llama-3.1-8b-instruct are path segments.
func (c *Client) modelURL(model string) string {
	return c.baseURL + strings.TrimPrefix(model, "/")
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, c.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// run posts in to the model and unwraps the result envelope into out.
func (c *Client) run(ctx context.Context, op, model string, in any, out any) error {
	var env envelope[json.RawMessage]
	if err := c.tc.DoJSON(ctx, op, http.MethodPost, c.modelURL(model), in, &env); err != nil {
		return err
	}
	if !env.Success {
		return &APIError{Errors: env.Errors}
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("cloudflare decode %s result: %w", op, err)
	}
	return nil
}

func (c *Client) record(op, model string, usage core.TokenUsage, elapsed time.Duration) {
	c.logger.Info("llm call",
		slog.String("provider", providerName),
		slog.String("operation", op),
		slog.String("model", model),
		slog.Duration("duration", elapsed),
		slog.Int("input_tokens", usage.InputTokens),
		slog.Int("output_tokens", usage.OutputTokens),
	)
	c.metrics.AddTokens(providerName, model, "input", usage.InputTokens)
	c.metrics.AddTokens(providerName, model, "output", usage.OutputTokens)
}

func toTokenUsage(u *usage) core.TokenUsage {
	if u == nil {
		return core.TokenUsage{}
	}
	return core.TokenUsage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
}
