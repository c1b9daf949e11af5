package gemini

import (
	"fmt"

	moderr "github.com/lizzyg/llmbridge/errors"
	"github.com/lizzyg/llmbridge/internal/core"
)

// FromFinishReason maps a Gemini finish reason. Function calls in the
// candidate always report tool execution.
func FromFinishReason(reason string, hasFunctionCalls bool) core.FinishReason {
	if hasFunctionCalls {
		return core.FinishToolExecution
	}
	switch reason {
	case "STOP":
		return core.FinishStop
	case "MAX_TOKENS":
		return core.FinishLength
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII", "IMAGE_SAFETY":
		return core.FinishContentFilter
	}
	return core.FinishOther
}

func toTokenUsage(u *UsageMetadata) core.TokenUsage {
	if u == nil {
		return core.TokenUsage{}
	}
	return core.TokenUsage{
		InputTokens:    u.PromptTokenCount,
		OutputTokens:   u.CandidatesTokenCount,
		TotalTokens:    u.TotalTokenCount,
		CachedTokens:   u.CachedContentTokenCount,
		ThoughtsTokens: u.ThoughtsTokenCount,
	}
}

func toGroundingMetadata(g *GroundingMetadata) *core.GroundingMetadata {
	if g == nil {
		return nil
	}
	out := &core.GroundingMetadata{WebSearchQueries: g.WebSearchQueries}
	for _, c := range g.GroundingChunks {
		switch {
		case c.Web != nil:
			out.Sources = append(out.Sources, core.GroundingSource{URI: c.Web.URI, Title: c.Web.Title})
		case c.Maps != nil:
			out.Sources = append(out.Sources, core.GroundingSource{URI: c.Maps.URI, Title: c.Maps.Title, PlaceID: c.Maps.PlaceID})
		}
	}
	if g.SearchEntryPoint != nil {
		out.SearchEntryPoint = g.SearchEntryPoint.RenderedContent
	}
	return out
}

// blockedError reports a prompt rejected before any candidate was produced.
func blockedError(resp *GenerateContentResponse) error {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return fmt.Errorf("%w: %s", moderr.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	return nil
}

// toChatResponse maps the first candidate of a response.
func (m *contentMapper) toChatResponse(resp *GenerateContentResponse, model string) (core.ChatResponse, error) {
	if err := blockedError(resp); err != nil {
		return core.ChatResponse{}, err
	}
	if len(resp.Candidates) == 0 {
		return core.ChatResponse{}, moderr.ErrNoCandidates
	}
	cand := resp.Candidates[0]
	meta := core.ChatResponseMetadata{
		ID:                resp.ResponseID,
		ModelName:         model,
		TokenUsage:        toTokenUsage(resp.UsageMetadata),
		GroundingMetadata: toGroundingMetadata(cand.GroundingMetadata),
	}
	if resp.ModelVersion != "" {
		meta.ModelName = resp.ModelVersion
	}

	if cand.Content == nil {
		meta.FinishReason = FromFinishReason(cand.FinishReason, false)
		msg := core.AIMessage(fmt.Sprintf("No text was returned by the model. "+
			"The model finished generating because of the following reason: %s", meta.FinishReason))
		return core.ChatResponse{AIMessage: msg, Metadata: meta}, nil
	}

	parsed := m.fromParts(cand.Content.Parts)
	calls, err := FromFunctionCalls(parsed.calls)
	if err != nil {
		return core.ChatResponse{}, err
	}
	msg := core.AIMessageWithToolCalls(parsed.text, calls...)
	if len(calls) == 0 {
		msg = core.AIMessage(parsed.text)
	}
	msg.Thinking = parsed.thinking
	meta.FinishReason = FromFinishReason(cand.FinishReason, len(calls) > 0)
	return core.ChatResponse{AIMessage: msg, Metadata: meta}, nil
}
