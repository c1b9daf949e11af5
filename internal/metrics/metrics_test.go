package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := New(reg)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	rec.ObserveRequest("gemini", "generateContent", nil, 120*time.Millisecond)
	rec.ObserveRequest("gemini", "generateContent", errors.New("boom"), time.Second)
	rec.AddTokens("gemini", "gemini-2.5-flash", "input", 10)
	rec.AddTokens("gemini", "gemini-2.5-flash", "input", 0)

	if got := testutil.ToFloat64(rec.requests.WithLabelValues("gemini", "generateContent", OutcomeSuccess)); got != 1 {
		t.Fatalf("expected 1 success, got %v", got)
	}
	if got := testutil.ToFloat64(rec.requests.WithLabelValues("gemini", "generateContent", OutcomeError)); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
	if got := testutil.ToFloat64(rec.tokens.WithLabelValues("gemini", "gemini-2.5-flash", "input")); got != 10 {
		t.Fatalf("expected 10 tokens, got %v", got)
	}

	w := httptest.NewRecorder()
	rec.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(w.Body.String(), "llmbridge_requests_total") {
		t.Fatalf("metrics output missing counter: %s", w.Body.String())
	}
}

func TestRecorder_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := New(reg)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	b, err := New(reg)
	if err != nil {
		t.Fatalf("second recorder should reuse collectors: %v", err)
	}
	a.ObserveRequest("cloudflare", "run", nil, time.Millisecond)
	b.ObserveRequest("cloudflare", "run", nil, time.Millisecond)
	if got := testutil.ToFloat64(a.requests.WithLabelValues("cloudflare", "run", OutcomeSuccess)); got != 2 {
		t.Fatalf("expected shared counter at 2, got %v", got)
	}
}

func TestNilRecorder(t *testing.T) {
	var rec *Recorder
	rec.ObserveRequest("gemini", "x", nil, time.Millisecond)
	rec.AddTokens("gemini", "m", "input", 5)
	w := httptest.NewRecorder()
	rec.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != 404 {
		t.Fatalf("expected 404 from nil recorder, got %d", w.Code)
	}
}

func TestWriteText(t *testing.T) {
	rec, err := New(nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	rec.AddTokens("cloudflare", "@cf/m", "output", 3)
	var sb strings.Builder
	if err := rec.WriteText(&sb); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(sb.String(), `llmbridge_tokens_total{kind="output",model="@cf/m",provider="cloudflare"} 3`) {
		t.Fatalf("unexpected output:\n%s", sb.String())
	}
}
