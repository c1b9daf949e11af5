package gemini

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/lizzyg/llmbridge/internal/config"
	"github.com/lizzyg/llmbridge/internal/core"
)

func TestEmbed(t *testing.T) {
	var got EmbedContentRequest
	c, _ := newTestClient(t, config.ModelConfig{
		Model:                "text-embedding-004",
		TaskType:             "RETRIEVAL_DOCUMENT",
		TitleMetadataKey:     "doc_title",
		OutputDimensionality: core.Ptr(3),
	}, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/text-embedding-004:embedContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		decodeBody(t, r, &got)
		writeJSON(w, map[string]any{"embedding": map[string]any{"values": []float32{0.1, 0.2, 0.3}}})
	})

	resp, err := c.Embed(context.Background(), core.TextSegment{
		Text:     "hello",
		Metadata: map[string]string{"doc_title": "Greeting"},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if resp.Content.Dimension() != 3 {
		t.Fatalf("unexpected dimension %d", resp.Content.Dimension())
	}
	if got.Model != "models/text-embedding-004" || got.TaskType != "RETRIEVAL_DOCUMENT" {
		t.Fatalf("unexpected request %+v", got)
	}
	if got.Title != "Greeting" {
		t.Fatalf("expected title from metadata, got %q", got.Title)
	}
	if got.OutputDimensionality == nil || *got.OutputDimensionality != 3 {
		t.Fatalf("output dimensionality not sent")
	}
}

func TestEmbedRequest_Title(t *testing.T) {
	seg := core.TextSegment{Text: "x", Metadata: map[string]string{"title": "T"}}
	tests := []struct {
		name      string
		taskType  string
		wantTitle string
	}{
		{"retrieval document uses default key", "RETRIEVAL_DOCUMENT", "T"},
		{"query ignores title", "RETRIEVAL_QUERY", ""},
		{"no task type", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(config.ModelConfig{Model: "m", TaskType: tt.taskType}, nil, testLogger(), nil)
			if got := c.embedRequest(seg).Title; got != tt.wantTitle {
				t.Fatalf("title = %q, want %q", got, tt.wantTitle)
			}
		})
	}
}

func TestEmbedAll_ChunksPreserveOrder(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, config.ModelConfig{}, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":batchEmbedContents") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		atomic.AddInt32(&calls, 1)
		var req BatchEmbedContentsRequest
		decodeBody(t, r, &req)
		if len(req.Requests) > maxEmbeddingBatch {
			t.Errorf("chunk too large: %d", len(req.Requests))
		}
		out := make([]map[string]any, 0, len(req.Requests))
		for _, r := range req.Requests {
			n, _ := strconv.Atoi(r.Content.Parts[0].Text)
			out = append(out, map[string]any{"values": []float32{float32(n)}})
		}
		writeJSON(w, map[string]any{"embeddings": out})
	})

	segs := make([]core.TextSegment, 250)
	for i := range segs {
		segs[i] = core.TextSegmentOf(strconv.Itoa(i))
	}
	resp, err := c.EmbedAll(context.Background(), segs)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 batch calls, got %d", calls)
	}
	if len(resp.Content) != 250 {
		t.Fatalf("expected 250 embeddings, got %d", len(resp.Content))
	}
	for i, e := range resp.Content {
		if int(e.Vector[0]) != i {
			t.Fatalf("embedding %d out of order: %v", i, e.Vector)
		}
	}
}

func TestEmbedAll_Error(t *testing.T) {
	c, _ := newTestClient(t, config.ModelConfig{}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"bad","status":"INVALID_ARGUMENT"}}`))
	})
	if _, err := c.EmbedAll(context.Background(), []core.TextSegment{core.TextSegmentOf("a")}); err == nil {
		t.Fatal("expected error")
	}
}

func TestEmbedAll_CountMismatch(t *testing.T) {
	c, _ := newTestClient(t, config.ModelConfig{}, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"embeddings": []any{map[string]any{"values": []float32{1}}}})
	})
	segs := []core.TextSegment{core.TextSegmentOf("a"), core.TextSegmentOf("b"), core.TextSegmentOf("c")}
	_, err := c.EmbedAll(context.Background(), segs)
	if err == nil || !strings.Contains(err.Error(), "expected 3 embeddings, got 1") {
		t.Fatalf("expected count mismatch error, got %v", err)
	}
}
