package core

import "testing"

func TestChatMessage_Text(t *testing.T) {
	m := UserMessageWithContents(TextContent("a"), ImageURLContent("https://x/y.png"), TextContent("b"))
	if m.Text() != "a\nb" {
		t.Fatalf("unexpected text: %q", m.Text())
	}
	if m.HasToolCalls() {
		t.Fatalf("user message has no tool calls")
	}
	ai := AIMessageWithToolCalls("", ToolExecutionRequest{ID: "1", Name: "f", Arguments: []byte(`{}`)})
	if !ai.HasToolCalls() || len(ai.Contents) != 0 {
		t.Fatalf("unexpected ai message: %+v", ai)
	}
	tr := ToolResultMessage("1", "f", "42")
	if tr.Role != RoleTool || tr.ToolName != "f" || tr.Text() != "42" {
		t.Fatalf("unexpected tool result: %+v", tr)
	}
}

func TestTokenUsage_Add(t *testing.T) {
	a := TokenUsage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3, CachedTokens: 4, ThoughtsTokens: 5}
	got := a.Add(a)
	want := TokenUsage{InputTokens: 2, OutputTokens: 4, TotalTokens: 6, CachedTokens: 8, ThoughtsTokens: 10}
	if got != want {
		t.Fatalf("want %+v got %+v", want, got)
	}
}
