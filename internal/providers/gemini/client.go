package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/lizzyg/llmbridge/internal/config"
	"github.com/lizzyg/llmbridge/internal/core"
	"github.com/lizzyg/llmbridge/internal/metrics"
	"github.com/lizzyg/llmbridge/internal/providers/retry"
	"github.com/lizzyg/llmbridge/internal/providers/transport"
)

// Client serves one configured Gemini model. It implements the chat,
// streaming, token counting, embedding and image interfaces; which of them
// make sense depends on the configured model.
type Client struct {
	svc     *Service
	cfg     config.ModelConfig
	model   string
	http    *http.Client
	logger  *slog.Logger
	metrics *metrics.Recorder
	mapper  *contentMapper
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
	tc := &transport.Client{
		HTTP:         hc,
		Logger:       logger,
		Metrics:      rec,
		Retry:        rc,
		LogRequests:  mc.LogRequests,
		LogResponses: mc.LogResponses,
	}
	return &Client{
		svc:     NewService(mc.BaseURL, mc.APIKey, tc),
		cfg:     mc,
		model:   mc.Model,
		http:    hc,
		logger:  logger,
		metrics: rec,
		mapper:  &contentMapper{http: hc, includeCodeExecutionOutput: mc.IncludeCodeExecutionOutput},
	}
}

// Service exposes the raw REST calls for callers that need them.
func (c *Client) Service() *Service { return c.svc }

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, c.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

func (c *Client) modelFor(req core.ChatRequest) string {
	if req.ModelName != "" {
		return req.ModelName
	}
	return c.model
}

func (c *Client) Chat(ctx context.Context, req core.ChatRequest) (core.ChatResponse, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	model := c.modelFor(req)
	greq, err := c.buildRequest(ctx, req)
	if err != nil {
		return core.ChatResponse{}, err
	}
	start := time.Now()
	gresp, err := c.svc.GenerateContent(ctx, model, greq)
	if err != nil {
		return core.ChatResponse{}, err
	}
	resp, err := c.mapper.toChatResponse(gresp, model)
	if err != nil {
		return core.ChatResponse{}, err
	}
	c.record("chat", model, resp.Metadata.TokenUsage, time.Since(start))
	return resp, nil
}

// CountTokens counts the tokens of a conversation. System messages are sent
// as a system instruction through the generateContentRequest form.
func (c *Client) CountTokens(ctx context.Context, messages []core.ChatMessage) (int, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	system, contents, err := c.mapper.toContents(ctx, messages)
	if err != nil {
		return 0, err
	}
	req := &CountTokensRequest{Contents: contents}
	if system != nil {
		req = &CountTokensRequest{GenerateContentRequest: &GenerateContentRequest{
			Model:             modelPath(c.model),
			Contents:          contents,
			SystemInstruction: system,
		}}
	}
	resp, err := c.svc.CountTokens(ctx, c.model, req)
	if err != nil {
		return 0, err
	}
	return resp.TotalTokens, nil
}

// buildRequest merges request parameters over the configured defaults.
func (c *Client) buildRequest(ctx context.Context, req core.ChatRequest) (*GenerateContentRequest, error) {
	system, contents, err := c.mapper.toContents(ctx, req.Messages)
	if err != nil {
		return nil, err
	}
	gc := &GenerationConfig{
		Temperature:        firstNonNil(req.Temperature, c.cfg.Temperature),
		TopP:               firstNonNil(req.TopP, c.cfg.TopP),
		TopK:               firstNonNil(req.TopK, c.cfg.TopK),
		MaxOutputTokens:    req.MaxOutputTokens,
		StopSequences:      req.StopSequences,
		CandidateCount:     req.CandidateCount,
		Seed:               req.Seed,
		PresencePenalty:    req.PresencePenalty,
		FrequencyPenalty:   req.FrequencyPenalty,
		ResponseModalities: c.cfg.ResponseModalities,
	}
	if gc.MaxOutputTokens == nil && c.cfg.MaxOutputTokens > 0 {
		gc.MaxOutputTokens = core.Ptr(c.cfg.MaxOutputTokens)
	}
	if gc.StopSequences == nil {
		gc.StopSequences = c.cfg.StopSequences
	}
	if c.cfg.ThinkingBudget != nil || c.cfg.IncludeThoughts {
		gc.ThinkingConfig = &ThinkingConfig{ThinkingBudget: c.cfg.ThinkingBudget, IncludeThoughts: c.cfg.IncludeThoughts}
	}
	if rf := req.ResponseFormat; rf != nil {
		gc.ResponseMimeType = ResponseMimeType(rf)
		if rf.Type == core.ResponseFormatJSON && rf.Schema != nil {
			schema, err := ToGeminiSchema(rf.Schema.Root)
			if err != nil {
				return nil, fmt.Errorf("response schema: %w", err)
			}
			gc.ResponseSchema = schema
		}
	}

	tools, err := ToGeminiTools(req.ToolSpecifications, BuiltinTools{
		CodeExecution: c.cfg.AllowCodeExecution,
		GoogleSearch:  c.cfg.AllowGoogleSearch,
		URLContext:    c.cfg.AllowURLContext,
		GoogleMaps:    c.cfg.AllowGoogleMaps,
	})
	if err != nil {
		return nil, err
	}
	out := &GenerateContentRequest{
		Contents:          contents,
		SystemInstruction: system,
		GenerationConfig:  gc,
		Tools:             tools,
		SafetySettings:    safetySettings(c.cfg.SafetySettings),
		CachedContent:     c.cfg.CachedContent,
	}
	if len(req.ToolSpecifications) > 0 {
		out.ToolConfig = ToToolConfig(req.ToolChoice, req.AllowedFunctionNames)
	}
	return out, nil
}

func safetySettings(m map[string]string) []SafetySetting {
	if len(m) == 0 {
		return nil
	}
	out := make([]SafetySetting, 0, len(m))
	for category, threshold := range m {
		out = append(out, SafetySetting{Category: category, Threshold: threshold})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

func firstNonNil[T any](vals ...*T) *T {
	for _, v := range vals {
		if v != nil {
			return v
		}
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
	c.metrics.AddTokens(providerName, model, "thoughts", usage.ThoughtsTokens)
}
