package cloudflare

import (
	"context"
	"fmt"
	"time"

	"github.com/lizzyg/llmbridge/internal/core"
)

// maxEmbeddingBatch is the most texts Workers AI embeds per call.
const maxEmbeddingBatch = 100

func (c *Client) Embed(ctx context.Context, segment core.TextSegment) (core.Response[core.Embedding], error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	vectors, err := c.embed(ctx, "embed", []string{segment.Text})
	if err != nil {
		return core.Response[core.Embedding]{}, err
	}
	if len(vectors) != 1 {
		return core.Response[core.Embedding]{}, fmt.Errorf("cloudflare embed: expected 1 vector, got %d", len(vectors))
	}
	c.record("embed", c.model, core.TokenUsage{}, time.Since(start))
	return core.Response[core.Embedding]{Content: core.Embedding{Vector: vectors[0]}}, nil
}

// EmbedAll embeds segments in batches of maxEmbeddingBatch, preserving order.
func (c *Client) EmbedAll(ctx context.Context, segments []core.TextSegment) (core.Response[[]core.Embedding], error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	out := make([]core.Embedding, 0, len(segments))
	for lo := 0; lo < len(segments); lo += maxEmbeddingBatch {
		hi := min(lo+maxEmbeddingBatch, len(segments))
		texts := make([]string, 0, hi-lo)
		for _, s := range segments[lo:hi] {
			texts = append(texts, s.Text)
		}
		vectors, err := c.embed(ctx, "embed_all", texts)
		if err != nil {
			return core.Response[[]core.Embedding]{}, err
		}
		if len(vectors) != len(texts) {
			return core.Response[[]core.Embedding]{}, fmt.Errorf("cloudflare embed: expected %d vectors, got %d", len(texts), len(vectors))
		}
		for _, v := range vectors {
			out = append(out, core.Embedding{Vector: v})
		}
	}
	c.record("embed_all", c.model, core.TokenUsage{}, time.Since(start))
	return core.Response[[]core.Embedding]{Content: out}, nil
}

func (c *Client) embed(ctx context.Context, op string, texts []string) ([][]float32, error) {
	var res embeddingResult
	if err := c.run(ctx, op, c.model, embeddingRequest{Text: texts}, &res); err != nil {
		return nil, err
	}
	return res.Data, nil
}
