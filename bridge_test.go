package llmbridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	moderr "github.com/lizzyg/llmbridge/errors"
	"github.com/lizzyg/llmbridge/internal/config"
	"github.com/lizzyg/llmbridge/internal/core"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestBridge(t *testing.T, models map[string]config.ModelConfig) *Bridge {
	t.Helper()
	b, err := New(config.LLMConfig{Models: models}, WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	return b
}

func geminiModel(model string) config.ModelConfig {
	return config.ModelConfig{Provider: config.ProviderGemini, Model: model, APIKey: "k"}
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(config.LLMConfig{Models: map[string]config.ModelConfig{
		"cf": {Provider: config.ProviderCloudflare, Model: "@cf/x", APIKey: "k"},
	}})
	if !errors.Is(err, moderr.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for missing account id, got %v", err)
	}
}

func TestSelectModel(t *testing.T) {
	flash := geminiModel("gemini-2.5-flash")
	flash.WebVariant = "flash-web"
	web := geminiModel("gemini-2.5-flash")
	web.SupportsWebSearch = true
	web.AllowGoogleSearch = true
	b := newTestBridge(t, map[string]config.ModelConfig{
		"zebra":     geminiModel("gemini-2.5-pro"),
		"flash":     flash,
		"flash-web": web,
	})

	tests := []struct {
		name      string
		key       string
		webSearch bool
		wantKey   string
		wantErr   error
	}{
		{"explicit", "zebra", false, "zebra", nil},
		{"missing", "nope", false, "", moderr.ErrNoMatchingModel},
		{"web variant", "flash", true, "flash-web", nil},
		{"no web variant", "zebra", true, "", moderr.ErrNoMatchingModel},
		{"auto is alphabetical", "", false, "flash", nil},
		{"auto with web search", "", true, "flash-web", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 5; i++ {
				_, key, err := b.selectModel(tt.key, tt.webSearch)
				if tt.wantErr != nil {
					if !errors.Is(err, tt.wantErr) {
						t.Fatalf("expected %v, got %v", tt.wantErr, err)
					}
					return
				}
				if err != nil || key != tt.wantKey {
					t.Fatalf("got %q, %v; want %q", key, err, tt.wantKey)
				}
			}
		})
	}
}

func TestCapabilities(t *testing.T) {
	b := newTestBridge(t, map[string]config.ModelConfig{
		"g":  geminiModel("gemini-2.5-flash"),
		"cf": {Provider: config.ProviderCloudflare, Model: "@cf/meta/llama-3.1-8b-instruct", APIKey: "k", AccountID: "acc"},
	})

	first, err := b.ChatModel("g")
	if err != nil {
		t.Fatalf("chat model: %v", err)
	}
	second, _ := b.ChatModel("g")
	if first != second {
		t.Fatal("adapter should be reused")
	}
	if _, err := b.ChatModel("missing"); !errors.Is(err, moderr.ErrNoMatchingModel) {
		t.Fatalf("expected ErrNoMatchingModel, got %v", err)
	}

	tests := []struct {
		name    string
		get     func(key string) error
		cfWorks bool
	}{
		{"streaming", func(k string) error { _, err := b.StreamingChatModel(k); return err }, true},
		{"embedding", func(k string) error { _, err := b.EmbeddingModel(k); return err }, true},
		{"image", func(k string) error { _, err := b.ImageModel(k); return err }, true},
		{"tokens", func(k string) error { _, err := b.TokenCounter(k); return err }, false},
		{"batch chat", func(k string) error { _, err := b.BatchChatModel(k); return err }, false},
		{"batch embedding", func(k string) error { _, err := b.BatchEmbeddingModel(k); return err }, false},
		{"batch image", func(k string) error { _, err := b.BatchImageModel(k); return err }, false},
		{"files", func(k string) error { _, err := b.Files(k); return err }, false},
		{"cache", func(k string) error { _, err := b.CachedContents(k); return err }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.get("g"); err != nil {
				t.Fatalf("gemini: unexpected err: %v", err)
			}
			err := tt.get("cf")
			if tt.cfWorks && err != nil {
				t.Fatalf("cloudflare: unexpected err: %v", err)
			}
			if !tt.cfWorks && !errors.Is(err, moderr.ErrUnsupportedOperation) {
				t.Fatalf("cloudflare: expected ErrUnsupportedOperation, got %v", err)
			}
		})
	}
	if _, err := b.Live(context.Background(), "cf", "", LiveHandlers{}); !errors.Is(err, moderr.ErrUnsupportedOperation) {
		t.Fatalf("expected ErrUnsupportedOperation for live on cloudflare, got %v", err)
	}
}

// geminiAnswer serves a single generateContent answer and records the request.
func geminiAnswer(t *testing.T, text string, got *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got != nil {
			json.NewDecoder(r.Body).Decode(got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content":      map[string]any{"role": "model", "parts": []any{map[string]any{"text": text}}},
				"finishReason": "STOP",
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func bridgeFor(t *testing.T, srv *httptest.Server, structured bool) *Bridge {
	mc := geminiModel("gemini-test")
	mc.BaseURL = srv.URL + "/v1beta"
	mc.MaxRetries = core.Ptr(0)
	mc.SupportsStructuredOutput = structured
	return newTestBridge(t, map[string]config.ModelConfig{"g": mc})
}

type weather struct {
	City string `json:"city"`
	Temp int    `json:"temp"`
}

func TestExecute_Structured(t *testing.T) {
	var got map[string]any
	srv := geminiAnswer(t, `{"city":"Portland","temp":18}`, &got)
	b := bridgeFor(t, srv, true)

	out, err := Execute[weather](context.Background(), b, Request{Model: "g", Messages: []ChatMessage{UserMessage("weather?")}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.City != "Portland" || out.Temp != 18 {
		t.Fatalf("unexpected: %+v", out)
	}
	gc, _ := got["generationConfig"].(map[string]any)
	if gc["responseMimeType"] != "application/json" || gc["responseSchema"] == nil {
		t.Fatalf("expected response schema in request, got %v", gc)
	}
	schema, _ := json.Marshal(gc["responseSchema"])
	if !strings.Contains(string(schema), `"city"`) {
		t.Fatalf("schema misses fields: %s", schema)
	}
}

func TestExecute_Lenient(t *testing.T) {
	tests := []struct {
		name    string
		answer  string
		want    weather
		wantErr error
	}{
		{"fenced json is repaired", "```json\n{\"city\":\"Oslo\",\"temp\":2}\n```", weather{City: "Oslo", Temp: 2}, nil},
		{"not json", "it is sunny", weather{}, moderr.ErrStructuredOutput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]any
			b := bridgeFor(t, geminiAnswer(t, tt.answer, &got), false)
			out, err := Execute[weather](context.Background(), b, Request{Model: "g", Messages: []ChatMessage{UserMessage("weather?")}})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil || out != tt.want {
				t.Fatalf("got %+v, %v", out, err)
			}
			if gc, _ := got["generationConfig"].(map[string]any); gc["responseSchema"] != nil {
				t.Fatal("schema sent to a model without structured output")
			}
		})
	}
}

type sky string

func TestExecute_RepairsAgainstSchema(t *testing.T) {
	t.Run("array root", func(t *testing.T) {
		b := bridgeFor(t, geminiAnswer(t, "Here you go {as asked}: [{\"city\":\"Oslo\",\"temp\":2},]", nil), false)
		out, err := Execute[[]weather](context.Background(), b, Request{Model: "g", Messages: []ChatMessage{UserMessage("weather?")}})
		if err != nil || len(out) != 1 || out[0] != (weather{City: "Oslo", Temp: 2}) {
			t.Fatalf("got %+v, %v", out, err)
		}
	})
	t.Run("bare string answer", func(t *testing.T) {
		b := bridgeFor(t, geminiAnswer(t, "clear", nil), false)
		out, err := Execute[sky](context.Background(), b, Request{Model: "g", Messages: []ChatMessage{UserMessage("sky?")}})
		if err != nil || out != "clear" {
			t.Fatalf("got %q, %v", out, err)
		}
	})
}

func TestExecute_String(t *testing.T) {
	b := bridgeFor(t, geminiAnswer(t, "plain words", nil), true)
	out, err := Execute[string](context.Background(), b, Request{Model: "g", Messages: []ChatMessage{UserMessage("hi")}})
	if err != nil || out != "plain words" {
		t.Fatalf("got %q, %v", out, err)
	}
}

func TestMetricsHandler(t *testing.T) {
	b := bridgeFor(t, geminiAnswer(t, "ok", nil), false)
	if _, err := Execute[string](context.Background(), b, Request{Model: "g", Messages: []ChatMessage{UserMessage("hi")}}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	rr := httptest.NewRecorder()
	b.MetricsHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rr.Body.String(), `llmbridge_requests_total{operation="generateContent",outcome="success",provider="gemini"} 1`) {
		t.Fatalf("request not counted:\n%s", rr.Body.String())
	}
}
