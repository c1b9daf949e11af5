package core

import (
	"encoding/json"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentAudio ContentType = "audio"
	ContentVideo ContentType = "video"
	ContentPDF   ContentType = "pdf"
)

// Content is one part of a user message. Binary content carries either
// Base64Data with MimeType, or a URL (http(s) or a provider file URI).
type Content struct {
	Type       ContentType
	Text       string
	Base64Data string
	MimeType   string
	URL        string
}

func TextContent(text string) Content { return Content{Type: ContentText, Text: text} }

func ImageContent(base64Data, mimeType string) Content {
	return Content{Type: ContentImage, Base64Data: base64Data, MimeType: mimeType}
}

func ImageURLContent(url string) Content { return Content{Type: ContentImage, URL: url} }

func AudioContent(base64Data, mimeType string) Content {
	return Content{Type: ContentAudio, Base64Data: base64Data, MimeType: mimeType}
}

func AudioURLContent(url string) Content { return Content{Type: ContentAudio, URL: url} }

func VideoContent(base64Data, mimeType string) Content {
	return Content{Type: ContentVideo, Base64Data: base64Data, MimeType: mimeType}
}

func VideoURLContent(url string) Content { return Content{Type: ContentVideo, URL: url} }

func PDFContent(base64Data string) Content {
	return Content{Type: ContentPDF, Base64Data: base64Data, MimeType: "application/pdf"}
}

func PDFURLContent(url string) Content { return Content{Type: ContentPDF, URL: url} }

// ToolExecutionRequest is a function call requested by the model.
type ToolExecutionRequest struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ChatMessage is a single conversation turn.
//
// User messages carry Contents. System and assistant messages carry their text
// as a single text content. Tool result messages set ToolCallID and ToolName.
type ChatMessage struct {
	Role       Role
	Contents   []Content
	ToolCalls  []ToolExecutionRequest
	ToolCallID string
	ToolName   string
	Thinking   string
}

func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Contents: []Content{TextContent(text)}}
}

func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: RoleUser, Contents: []Content{TextContent(text)}}
}

func UserMessageWithContents(contents ...Content) ChatMessage {
	return ChatMessage{Role: RoleUser, Contents: contents}
}

func AIMessage(text string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Contents: []Content{TextContent(text)}}
}

func AIMessageWithToolCalls(text string, calls ...ToolExecutionRequest) ChatMessage {
	m := ChatMessage{Role: RoleAssistant, ToolCalls: calls}
	if text != "" {
		m.Contents = []Content{TextContent(text)}
	}
	return m
}

func ToolResultMessage(callID, toolName, result string) ChatMessage {
	return ChatMessage{
		Role:       RoleTool,
		ToolCallID: callID,
		ToolName:   toolName,
		Contents:   []Content{TextContent(result)},
	}
}

// Text joins the message's text contents with newlines.
func (m ChatMessage) Text() string {
	var parts []string
	for _, c := range m.Contents {
		if c.Type == ContentText {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func (m ChatMessage) HasToolCalls() bool { return len(m.ToolCalls) > 0 }
