//go:build integration
// +build integration

package integration

import (
	"context"
	"os"
	"testing"
	"time"

	llm "github.com/lizzyg/llmbridge"
)

func TestCloudflare_ChatAndEmbed(t *testing.T) {
	requireEnv(t, "CLOUDFLARE_API_TOKEN", "CLOUDFLARE_ACCOUNT_ID")
	b := bridgeFromYAML(t, `llm:
  models:
    llama:
      provider: cloudflare
      model: "@cf/meta/llama-3.1-8b-instruct"
      api_key: `+os.Getenv("CLOUDFLARE_API_TOKEN")+`
      account_id: `+os.Getenv("CLOUDFLARE_ACCOUNT_ID")+`
      max_output_tokens: 200
    bge:
      provider: cloudflare
      model: "@cf/baai/bge-base-en-v1.5"
      api_key: `+os.Getenv("CLOUDFLARE_API_TOKEN")+`
      account_id: `+os.Getenv("CLOUDFLARE_ACCOUNT_ID")+`
`)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	got, err := llm.Execute[string](ctx, b, llm.Request{
		Model:    "llama",
		Messages: []llm.ChatMessage{llm.UserMessage("Say hello in one word.")},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got == "" {
		t.Fatal("empty answer")
	}

	em, err := b.EmbeddingModel("bge")
	if err != nil {
		t.Fatal(err)
	}
	resp, err := em.Embed(ctx, llm.TextSegmentOf("hello"))
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if resp.Content.Dimension() == 0 {
		t.Fatal("empty embedding")
	}
}
