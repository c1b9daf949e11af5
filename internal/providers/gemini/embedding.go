package gemini

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lizzyg/llmbridge/internal/core"
)

const (
	maxEmbeddingBatch       = 100
	embeddingConcurrency    = 4
	taskRetrievalDocument   = "RETRIEVAL_DOCUMENT"
	defaultTitleMetadataKey = "title"
)

func (c *Client) titleMetadataKey() string {
	if c.cfg.TitleMetadataKey != "" {
		return c.cfg.TitleMetadataKey
	}
	return defaultTitleMetadataKey
}

// embedRequest builds the request for one segment. The title is only sent
// for RETRIEVAL_DOCUMENT embeddings.
func (c *Client) embedRequest(seg core.TextSegment) EmbedContentRequest {
	req := EmbedContentRequest{
		Model:                modelPath(c.model),
		Content:              Content{Parts: []Part{{Text: seg.Text}}},
		TaskType:             c.cfg.TaskType,
		OutputDimensionality: c.cfg.OutputDimensionality,
	}
	if c.cfg.TaskType == taskRetrievalDocument {
		req.Title = seg.Metadata[c.titleMetadataKey()]
	}
	return req
}

func (c *Client) Embed(ctx context.Context, seg core.TextSegment) (core.Response[core.Embedding], error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	req := c.embedRequest(seg)
	resp, err := c.svc.EmbedContent(ctx, c.model, &req)
	if err != nil {
		return core.Response[core.Embedding]{}, err
	}
	c.record("embed", c.model, core.TokenUsage{}, time.Since(start))
	return core.Response[core.Embedding]{Content: core.Embedding{Vector: resp.Embedding.Values}}, nil
}

// EmbedAll embeds segments in chunks of 100 through batchEmbedContents,
// running a few chunks concurrently. Output order matches input order.
func (c *Client) EmbedAll(ctx context.Context, segs []core.TextSegment) (core.Response[[]core.Embedding], error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	out := make([]core.Embedding, len(segs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embeddingConcurrency)
	for lo := 0; lo < len(segs); lo += maxEmbeddingBatch {
		hi := min(lo+maxEmbeddingBatch, len(segs))
		g.Go(func() error {
			batch := &BatchEmbedContentsRequest{Requests: make([]EmbedContentRequest, 0, hi-lo)}
			for _, seg := range segs[lo:hi] {
				batch.Requests = append(batch.Requests, c.embedRequest(seg))
			}
			resp, err := c.svc.BatchEmbedContents(gctx, c.model, batch)
			if err != nil {
				return err
			}
			if len(resp.Embeddings) != hi-lo {
				return fmt.Errorf("gemini embed: expected %d embeddings, got %d", hi-lo, len(resp.Embeddings))
			}
			for i, e := range resp.Embeddings {
				out[lo+i] = core.Embedding{Vector: e.Values}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return core.Response[[]core.Embedding]{}, err
	}
	c.record("embed_all", c.model, core.TokenUsage{}, time.Since(start))
	return core.Response[[]core.Embedding]{Content: out}, nil
}
