package cloudflare

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/launchdarkly/eventsource"

	moderr "github.com/lizzyg/llmbridge/errors"
	"github.com/lizzyg/llmbridge/internal/core"
	"github.com/lizzyg/llmbridge/internal/providers/transport"
)

const streamDone = "[DONE]"

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
	creq, err := c.buildRequest(req)
	if err != nil {
		return core.ChatResponse{}, err
	}
	start := time.Now()
	var res chatResult
	if err := c.run(ctx, "chat", model, creq, &res); err != nil {
		return core.ChatResponse{}, err
	}
	resp := core.ChatResponse{
		AIMessage: core.AIMessage(res.text()),
		Metadata: core.ChatResponseMetadata{
			ModelName:    model,
			TokenUsage:   toTokenUsage(res.Usage),
			FinishReason: core.FinishStop,
		},
	}
	c.record("chat", model, resp.Metadata.TokenUsage, time.Since(start))
	return resp, nil
}

// ChatStream streams response deltas until the [DONE] event and returns the
// aggregated response.
func (c *Client) ChatStream(ctx context.Context, req core.ChatRequest, h core.StreamingHandler) (core.ChatResponse, error) {
	resp, err := c.chatStream(ctx, req, h)
	if err != nil {
		h.Error(err)
		return core.ChatResponse{}, err
	}
	h.CompleteResponse(resp)
	return resp, nil
}

func (c *Client) chatStream(ctx context.Context, req core.ChatRequest, h core.StreamingHandler) (core.ChatResponse, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	model := c.modelFor(req)
	creq, err := c.buildRequest(req)
	if err != nil {
		return core.ChatResponse{}, err
	}
	creq.Stream = true
	payload, err := json.Marshal(creq)
	if err != nil {
		return core.ChatResponse{}, fmt.Errorf("cloudflare encode chat_stream request: %w", err)
	}
	start := time.Now()
	httpResp, err := c.tc.Stream(ctx, "chat_stream", transport.JSONRequest(http.MethodPost, c.modelURL(model), payload))
	if err != nil {
		return core.ChatResponse{}, err
	}
	defer httpResp.Body.Close()

	var (
		text strings.Builder
		last *usage
	)
	dec := eventsource.NewDecoder(httpResp.Body)
	for {
		ev, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return core.ChatResponse{}, fmt.Errorf("cloudflare stream: %w", err)
		}
		data := strings.TrimSpace(ev.Data())
		if data == streamDone {
			break
		}
		if data == "" {
			continue
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return core.ChatResponse{}, fmt.Errorf("cloudflare stream chunk: %w", err)
		}
		if chunk.Usage != nil {
			last = chunk.Usage
		}
		text.WriteString(chunk.Response)
		h.PartialResponse(chunk.Response)
	}

	resp := core.ChatResponse{
		AIMessage: core.AIMessage(text.String()),
		Metadata: core.ChatResponseMetadata{
			ModelName:    model,
			TokenUsage:   toTokenUsage(last),
			FinishReason: core.FinishStop,
		},
	}
	c.record("chat_stream", model, resp.Metadata.TokenUsage, time.Since(start))
	return resp, nil
}

// buildRequest merges request parameters over the configured defaults.
// Workers AI text models take plain role/content messages, so tool calls and
// tool results are folded into text.
func (c *Client) buildRequest(req core.ChatRequest) (*chatRequest, error) {
	if len(req.ToolSpecifications) > 0 {
		return nil, fmt.Errorf("%w: cloudflare tool calling", moderr.ErrUnsupportedOperation)
	}
	msgs, err := toMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	out := &chatRequest{
		Messages:         msgs,
		MaxTokens:        req.MaxOutputTokens,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		TopK:             req.TopK,
		Seed:             req.Seed,
		PresencePenalty:  req.PresencePenalty,
		FrequencyPenalty: req.FrequencyPenalty,
	}
	if out.MaxTokens == nil && c.cfg.MaxOutputTokens > 0 {
		out.MaxTokens = core.Ptr(c.cfg.MaxOutputTokens)
	}
	if out.Temperature == nil {
		out.Temperature = c.cfg.Temperature
	}
	if out.TopP == nil {
		out.TopP = c.cfg.TopP
	}
	if out.TopK == nil {
		out.TopK = c.cfg.TopK
	}
	if rf := req.ResponseFormat; rf != nil && rf.Type == core.ResponseFormatJSON {
		out.ResponseFormat = &responseFormat{Type: "json_object"}
		if rf.Schema != nil {
			schema, err := core.MarshalJSONSchema(rf.Schema.Root)
			if err != nil {
				return nil, fmt.Errorf("response schema: %w", err)
			}
			out.ResponseFormat = &responseFormat{Type: "json_schema", JSONSchema: schema}
		}
	}
	return out, nil
}

func toMessages(msgs []core.ChatMessage) ([]message, error) {
	out := make([]message, 0, len(msgs))
	for i, m := range msgs {
		switch m.Role {
		case core.RoleSystem:
			out = append(out, message{Role: "system", Content: m.Text()})
		case core.RoleUser:
			for _, c := range m.Contents {
				if c.Type != core.ContentText {
					return nil, fmt.Errorf("message %d: %w: %s", i, moderr.ErrUnsupportedContent, c.Type)
				}
			}
			out = append(out, message{Role: "user", Content: m.Text()})
		case core.RoleAssistant:
			text := m.Text()
			for _, call := range m.ToolCalls {
				if text != "" {
					text += "\n"
				}
				text += fmt.Sprintf("Calling tool %s with arguments %s", call.Name, call.Arguments)
			}
			out = append(out, message{Role: "assistant", Content: text})
		case core.RoleTool:
			out = append(out, message{Role: "user", Content: fmt.Sprintf("Result of tool %s: %s", m.ToolName, m.Text())})
		default:
			return nil, fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
	}
	return out, nil
}
