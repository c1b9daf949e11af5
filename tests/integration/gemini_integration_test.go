//go:build integration
// +build integration

package integration

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	llm "github.com/lizzyg/llmbridge"
)

func geminiBridge(t *testing.T) *llm.Bridge {
	requireEnv(t, "GEMINI_API_KEY")
	return bridgeFromYAML(t, `llm:
  models:
    flash:
      provider: gemini
      model: gemini-2.5-flash
      api_key: `+os.Getenv("GEMINI_API_KEY")+`
      supports_structured_output: true
      max_output_tokens: 400
    embed:
      provider: gemini
      model: gemini-embedding-001
      api_key: `+os.Getenv("GEMINI_API_KEY")+`
      output_dimensionality: 256
`)
}

func TestGemini_Execute_TypedJSON(t *testing.T) {
	b := geminiBridge(t)

	type Answer struct {
		Message string `json:"message"`
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	temp := 0.0
	got, err := llm.Execute[Answer](ctx, b, llm.Request{
		Model:       "flash",
		Messages:    []llm.ChatMessage{llm.UserMessage("Respond ONLY as JSON: {\"message\": \"ok\"}")},
		Temperature: &temp,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got.Message != "ok" {
		t.Fatalf("unexpected message: %q", got.Message)
	}
}

func TestGemini_ChatStream(t *testing.T) {
	b := geminiBridge(t)
	sm, err := b.StreamingChatModel("flash")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var partial strings.Builder
	resp, err := sm.ChatStream(ctx, llm.ChatRequest{
		Messages: []llm.ChatMessage{llm.UserMessage("Count from 1 to 5 separated by spaces.")},
	}, llm.StreamingHandler{OnPartialResponse: func(s string) { partial.WriteString(s) }})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if partial.String() != resp.Text() {
		t.Fatalf("partials %q differ from final text %q", partial.String(), resp.Text())
	}
	if resp.Metadata.TokenUsage.TotalTokens == 0 {
		t.Fatalf("expected token usage, got %+v", resp.Metadata.TokenUsage)
	}
}

func TestGemini_EmbedAll(t *testing.T) {
	b := geminiBridge(t)
	em, err := b.EmbeddingModel("embed")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := em.EmbedAll(ctx, []llm.TextSegment{llm.TextSegmentOf("hello"), llm.TextSegmentOf("world")})
	if err != nil {
		t.Fatalf("EmbedAll: %v", err)
	}
	if len(resp.Content) != 2 || resp.Content[0].Dimension() != 256 {
		t.Fatalf("unexpected embeddings: %d vectors", len(resp.Content))
	}
}
