package gemini

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
	"github.com/lizzyg/llmbridge/internal/metrics"
	"github.com/lizzyg/llmbridge/internal/providers/retry"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// newTestClient points a client at an httptest server with retries disabled.
func newTestClient(t *testing.T, mc config.ModelConfig, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	mc.Provider = config.ProviderGemini
	mc.BaseURL = srv.URL + "/v1beta"
	if mc.APIKey == "" {
		mc.APIKey = "test-key"
	}
	if mc.Model == "" {
		mc.Model = "gemini-test"
	}
	mc.MaxRetries = core.Ptr(0)
	rec, err := metrics.New(nil)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	return New(mc, srv.Client(), testLogger(), rec), srv
}

func decodeBody(t *testing.T, r *http.Request, v any) {
	t.Helper()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClient(t *testing.T) {
	c := New(config.ModelConfig{APIKey: "test", Model: "gemini-2.5-flash"}, nil, nil, nil)
	if c == nil {
		t.Fatal("expected client")
	}
	if c.Service() == nil {
		t.Fatal("expected service")
	}
}

func TestChat_RequestAndResponse(t *testing.T) {
	var got GenerateContentRequest
	c, _ := newTestClient(t, config.ModelConfig{Temperature: core.Ptr(0.2), SafetySettings: map[string]string{
		"HARM_CATEGORY_HARASSMENT":  "BLOCK_NONE",
		"HARM_CATEGORY_HATE_SPEECH": "BLOCK_ONLY_HIGH",
	}}, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-test:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		decodeBody(t, r, &got)
		writeJSON(w, map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{"role": "model", "parts": []any{
					map[string]any{"text": "thinking...", "thought": true},
					map[string]any{"text": "Calling the tool."},
					map[string]any{"functionCall": map[string]any{"name": "get_weather", "args": map[string]any{"city": "Paris"}}},
				}},
				"finishReason": "STOP",
			}},
			"usageMetadata": map[string]any{"promptTokenCount": 10, "candidatesTokenCount": 5, "totalTokenCount": 15},
			"modelVersion":  "gemini-test-001",
			"responseId":    "resp-1",
		})
	})

	params := core.NewObjectSchema("").AddStringProperty("city", "city name").WithRequired("city")
	resp, err := c.Chat(context.Background(), core.ChatRequest{
		Messages: []core.ChatMessage{
			core.SystemMessage("be brief"),
			core.UserMessage("weather in Paris?"),
		},
		ToolSpecifications: []core.ToolSpecification{{Name: "get_weather", Description: "weather", Parameters: params}},
		ToolChoice:         core.ToolChoiceRequired,
		MaxOutputTokens:    core.Ptr(64),
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if got.SystemInstruction == nil || got.SystemInstruction.Parts[0].Text != "be brief" {
		t.Fatalf("system instruction not sent: %+v", got.SystemInstruction)
	}
	if len(got.Contents) != 1 || got.Contents[0].Role != roleUser {
		t.Fatalf("unexpected contents: %+v", got.Contents)
	}
	if got.GenerationConfig.Temperature == nil || *got.GenerationConfig.Temperature != 0.2 {
		t.Fatalf("config temperature not applied: %+v", got.GenerationConfig)
	}
	if *got.GenerationConfig.MaxOutputTokens != 64 {
		t.Fatalf("max output tokens not sent")
	}
	if len(got.Tools) != 1 || got.Tools[0].FunctionDeclarations[0].Parameters.Properties["city"].Type != TypeString {
		t.Fatalf("unexpected tools: %+v", got.Tools)
	}
	if got.ToolConfig.FunctionCallingConfig.Mode != ModeAny {
		t.Fatalf("expected ANY mode, got %+v", got.ToolConfig.FunctionCallingConfig)
	}
	if len(got.SafetySettings) != 2 || got.SafetySettings[0].Category != "HARM_CATEGORY_HARASSMENT" {
		t.Fatalf("safety settings not sorted: %+v", got.SafetySettings)
	}

	if resp.Text() != "Calling the tool." {
		t.Fatalf("unexpected text %q", resp.Text())
	}
	if resp.AIMessage.Thinking != "thinking..." {
		t.Fatalf("unexpected thinking %q", resp.AIMessage.Thinking)
	}
	if len(resp.AIMessage.ToolCalls) != 1 || resp.AIMessage.ToolCalls[0].Name != "get_weather" {
		t.Fatalf("unexpected tool calls: %+v", resp.AIMessage.ToolCalls)
	}
	if resp.AIMessage.ToolCalls[0].ID == "" {
		t.Fatal("expected generated tool call id")
	}
	if string(resp.AIMessage.ToolCalls[0].Arguments) != `{"city":"Paris"}` {
		t.Fatalf("unexpected args %s", resp.AIMessage.ToolCalls[0].Arguments)
	}
	if resp.Metadata.FinishReason != core.FinishToolExecution {
		t.Fatalf("unexpected finish reason %q", resp.Metadata.FinishReason)
	}
	if resp.Metadata.ModelName != "gemini-test-001" || resp.Metadata.ID != "resp-1" {
		t.Fatalf("unexpected metadata %+v", resp.Metadata)
	}
	if resp.Metadata.TokenUsage.TotalTokens != 15 {
		t.Fatalf("unexpected usage %+v", resp.Metadata.TokenUsage)
	}
}

func TestChat_ResponseFormat(t *testing.T) {
	var got GenerateContentRequest
	c, _ := newTestClient(t, config.ModelConfig{}, func(w http.ResponseWriter, r *http.Request) {
		decodeBody(t, r, &got)
		writeJSON(w, map[string]any{"candidates": []any{map[string]any{
			"content":      map[string]any{"parts": []any{map[string]any{"text": `{"name":"x"}`}}},
			"finishReason": "STOP",
		}}})
	})
	schema := core.NewObjectSchema("").AddStringProperty("name", "").WithRequired("name")
	_, err := c.Chat(context.Background(), core.ChatRequest{
		Messages:       []core.ChatMessage{core.UserMessage("hi")},
		ResponseFormat: &core.ResponseFormat{Type: core.ResponseFormatJSON, Schema: &core.JSONSchema{Name: "out", Root: schema}},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	gc := got.GenerationConfig
	if gc.ResponseMimeType != "application/json" {
		t.Fatalf("unexpected mime %q", gc.ResponseMimeType)
	}
	if gc.ResponseSchema == nil || gc.ResponseSchema.Type != TypeObject || gc.ResponseSchema.Required[0] != "name" {
		t.Fatalf("unexpected schema %+v", gc.ResponseSchema)
	}
	if got.Tools != nil || got.ToolConfig != nil {
		t.Fatalf("no tools expected")
	}
}

func TestChat_NoContent(t *testing.T) {
	c, _ := newTestClient(t, config.ModelConfig{}, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"candidates": []any{map[string]any{"finishReason": "SAFETY"}}})
	})
	resp, err := c.Chat(context.Background(), core.ChatRequest{Messages: []core.ChatMessage{core.UserMessage("hi")}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if resp.Metadata.FinishReason != core.FinishContentFilter {
		t.Fatalf("unexpected finish reason %q", resp.Metadata.FinishReason)
	}
	if !strings.Contains(resp.Text(), "No text was returned by the model") {
		t.Fatalf("unexpected text %q", resp.Text())
	}
}

func TestChat_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"blocked prompt", 200, `{"promptFeedback":{"blockReason":"SAFETY"}}`, moderr.ErrContentBlocked},
		{"no candidates", 200, `{"candidates":[]}`, moderr.ErrNoCandidates},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, config.ModelConfig{}, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := c.Chat(context.Background(), core.ChatRequest{Messages: []core.ChatMessage{core.UserMessage("hi")}})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestChat_APIErrorDecoded(t *testing.T) {
	c, _ := newTestClient(t, config.ModelConfig{}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`))
	})
	_, err := c.Chat(context.Background(), core.ChatRequest{Messages: []core.ChatMessage{core.UserMessage("hi")}})
	var he *retry.HTTPStatusError
	if !errors.As(err, &he) {
		t.Fatalf("expected HTTPStatusError, got %v", err)
	}
	if he.Status != 400 || he.VendorStatus != "INVALID_ARGUMENT" || he.Message != "API key not valid" {
		t.Fatalf("unexpected error fields %+v", he)
	}
	if retry.IsTransient(err) {
		t.Fatal("400 must not be transient")
	}
}

func TestChat_ModelOverride(t *testing.T) {
	c, _ := newTestClient(t, config.ModelConfig{}, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/other-model:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeJSON(w, map[string]any{"candidates": []any{map[string]any{
			"content": map[string]any{"parts": []any{map[string]any{"text": "ok"}}},
		}}})
	})
	resp, err := c.Chat(context.Background(), core.ChatRequest{ModelName: "other-model", Messages: []core.ChatMessage{core.UserMessage("hi")}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if resp.Metadata.ModelName != "other-model" {
		t.Fatalf("unexpected model %q", resp.Metadata.ModelName)
	}
}

func TestCountTokens(t *testing.T) {
	tests := []struct {
		name       string
		messages   []core.ChatMessage
		wantNested bool
	}{
		{"plain contents", []core.ChatMessage{core.UserMessage("hello")}, false},
		{"system uses generate request", []core.ChatMessage{core.SystemMessage("sys"), core.UserMessage("hello")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, config.ModelConfig{}, func(w http.ResponseWriter, r *http.Request) {
				if !strings.HasSuffix(r.URL.Path, ":countTokens") {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				var req CountTokensRequest
				decodeBody(t, r, &req)
				if (req.GenerateContentRequest != nil) != tt.wantNested {
					t.Errorf("nested request = %v, want %v", req.GenerateContentRequest != nil, tt.wantNested)
				}
				writeJSON(w, map[string]any{"totalTokens": 7})
			})
			n, err := c.CountTokens(context.Background(), tt.messages)
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if n != 7 {
				t.Fatalf("expected 7, got %d", n)
			}
		})
	}
}

func TestBuildRequest_ThinkingAndBuiltins(t *testing.T) {
	c := New(config.ModelConfig{
		Model:              "m",
		ThinkingBudget:     core.Ptr(128),
		IncludeThoughts:    true,
		AllowCodeExecution: true,
		AllowGoogleSearch:  true,
		CachedContent:      "cachedContents/abc",
		StopSequences:      []string{"END"},
	}, nil, testLogger(), nil)
	req, err := c.buildRequest(context.Background(), core.ChatRequest{Messages: []core.ChatMessage{core.UserMessage("hi")}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	tc := req.GenerationConfig.ThinkingConfig
	if tc == nil || *tc.ThinkingBudget != 128 || !tc.IncludeThoughts {
		t.Fatalf("unexpected thinking config %+v", tc)
	}
	if len(req.Tools) != 1 || req.Tools[0].CodeExecution == nil || req.Tools[0].GoogleSearch == nil {
		t.Fatalf("builtin tools missing: %+v", req.Tools)
	}
	if req.ToolConfig != nil {
		t.Fatal("tool config only applies to function declarations")
	}
	if req.CachedContent != "cachedContents/abc" {
		t.Fatalf("cached content not referenced")
	}
	if len(req.GenerationConfig.StopSequences) != 1 {
		t.Fatalf("config stop sequences not applied")
	}
}
