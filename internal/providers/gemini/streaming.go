package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/launchdarkly/eventsource"

	moderr "github.com/lizzyg/llmbridge/errors"
	"github.com/lizzyg/llmbridge/internal/core"
)

// ChatStream streams a response over server-sent events, forwarding partial
// text and thinking to h, and returns the aggregated response.
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
	greq, err := c.buildRequest(ctx, req)
	if err != nil {
		return core.ChatResponse{}, err
	}
	start := time.Now()
	httpResp, err := c.svc.StreamGenerateContent(ctx, model, greq)
	if err != nil {
		return core.ChatResponse{}, err
	}
	defer httpResp.Body.Close()

	agg := &streamAggregator{mapper: c.mapper}
	dec := eventsource.NewDecoder(httpResp.Body)
	for {
		ev, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return core.ChatResponse{}, fmt.Errorf("gemini stream: %w", err)
		}
		data := strings.TrimSpace(ev.Data())
		if data == "" {
			continue
		}
		var chunk GenerateContentResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return core.ChatResponse{}, fmt.Errorf("gemini stream chunk: %w", err)
		}
		if err := blockedError(&chunk); err != nil {
			return core.ChatResponse{}, err
		}
		text, thinking := agg.add(&chunk)
		h.PartialThinking(thinking)
		h.PartialResponse(text)
	}

	resp, err := agg.response(model)
	if err != nil {
		return core.ChatResponse{}, err
	}
	c.record("chat_stream", model, resp.Metadata.TokenUsage, time.Since(start))
	return resp, nil
}

// streamAggregator folds streamed chunks into one response.
type streamAggregator struct {
	mapper       *contentMapper
	text         strings.Builder
	thinking     strings.Builder
	calls        []*FunctionCall
	usage        *UsageMetadata
	finishReason string
	grounding    *GroundingMetadata
	responseID   string
	modelVersion string
	sawCandidate bool
}

// add records a chunk and returns its text and thinking deltas.
func (a *streamAggregator) add(chunk *GenerateContentResponse) (string, string) {
	if chunk.UsageMetadata != nil {
		a.usage = chunk.UsageMetadata
	}
	if chunk.ResponseID != "" {
		a.responseID = chunk.ResponseID
	}
	if chunk.ModelVersion != "" {
		a.modelVersion = chunk.ModelVersion
	}
	if len(chunk.Candidates) == 0 {
		return "", ""
	}
	a.sawCandidate = true
	cand := chunk.Candidates[0]
	if cand.FinishReason != "" {
		a.finishReason = cand.FinishReason
	}
	if cand.GroundingMetadata != nil {
		a.grounding = cand.GroundingMetadata
	}
	if cand.Content == nil {
		return "", ""
	}
	parsed := a.mapper.fromParts(cand.Content.Parts)
	a.text.WriteString(parsed.text)
	a.thinking.WriteString(parsed.thinking)
	a.calls = append(a.calls, parsed.calls...)
	return parsed.text, parsed.thinking
}

func (a *streamAggregator) response(model string) (core.ChatResponse, error) {
	if !a.sawCandidate {
		return core.ChatResponse{}, moderr.ErrNoCandidates
	}
	calls, err := FromFunctionCalls(a.calls)
	if err != nil {
		return core.ChatResponse{}, err
	}
	msg := core.AIMessage(a.text.String())
	if len(calls) > 0 {
		msg = core.AIMessageWithToolCalls(a.text.String(), calls...)
	}
	msg.Thinking = a.thinking.String()
	meta := core.ChatResponseMetadata{
		ID:                a.responseID,
		ModelName:         model,
		TokenUsage:        toTokenUsage(a.usage),
		FinishReason:      FromFinishReason(a.finishReason, len(calls) > 0),
		GroundingMetadata: toGroundingMetadata(a.grounding),
	}
	if a.modelVersion != "" {
		meta.ModelName = a.modelVersion
	}
	return core.ChatResponse{AIMessage: msg, Metadata: meta}, nil
}
