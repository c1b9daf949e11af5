package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	moderr "github.com/lizzyg/llmbridge/errors"
	"github.com/lizzyg/llmbridge/internal/core"
)

const maxDownloadBytes = 20 << 20

// contentMapper converts chat messages to Gemini contents and back.
type contentMapper struct {
	http                       *http.Client
	includeCodeExecutionOutput bool
}

// toContents splits system messages into the system instruction and maps the
// rest of the conversation. Consecutive tool results share one user content.
func (m *contentMapper) toContents(ctx context.Context, msgs []core.ChatMessage) (*Content, []Content, error) {
	var system *Content
	contents := make([]Content, 0, len(msgs))
	for i, msg := range msgs {
		switch msg.Role {
		case core.RoleSystem:
			if system == nil {
				system = &Content{}
			}
			system.Parts = append(system.Parts, Part{Text: msg.Text()})
		case core.RoleUser:
			parts, err := m.userParts(ctx, msg.Contents)
			if err != nil {
				return nil, nil, fmt.Errorf("message %d: %w", i, err)
			}
			contents = append(contents, Content{Role: roleUser, Parts: parts})
		case core.RoleAssistant:
			var parts []Part
			if text := msg.Text(); text != "" {
				parts = append(parts, Part{Text: text})
			}
			for _, call := range msg.ToolCalls {
				fc, err := ToFunctionCall(call)
				if err != nil {
					return nil, nil, fmt.Errorf("message %d: %w", i, err)
				}
				parts = append(parts, Part{FunctionCall: fc})
			}
			if len(parts) == 0 {
				parts = []Part{{Text: ""}}
			}
			contents = append(contents, Content{Role: roleModel, Parts: parts})
		case core.RoleTool:
			part := Part{FunctionResponse: &FunctionResponse{
				Name:     msg.ToolName,
				Response: map[string]any{"response": msg.Text()},
			}}
			if n := len(contents); n > 0 && isFunctionResponseContent(contents[n-1]) {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
				continue
			}
			contents = append(contents, Content{Role: roleUser, Parts: []Part{part}})
		default:
			return nil, nil, fmt.Errorf("message %d: unknown role %q", i, msg.Role)
		}
	}
	return system, contents, nil
}

func isFunctionResponseContent(c Content) bool {
	if c.Role != roleUser || len(c.Parts) == 0 {
		return false
	}
	for _, p := range c.Parts {
		if p.FunctionResponse == nil {
			return false
		}
	}
	return true
}

func (m *contentMapper) userParts(ctx context.Context, contents []core.Content) ([]Part, error) {
	parts := make([]Part, 0, len(contents))
	for _, c := range contents {
		switch c.Type {
		case core.ContentText:
			parts = append(parts, Part{Text: c.Text})
		case core.ContentImage, core.ContentAudio, core.ContentVideo, core.ContentPDF:
			p, err := m.mediaPart(ctx, c)
			if err != nil {
				return nil, err
			}
			parts = append(parts, p)
		default:
			return nil, fmt.Errorf("%w: %q", moderr.ErrUnsupportedContent, c.Type)
		}
	}
	return parts, nil
}

func (m *contentMapper) mediaPart(ctx context.Context, c core.Content) (Part, error) {
	if c.Base64Data != "" {
		mimeType := c.MimeType
		if mimeType == "" {
			if data, err := base64.StdEncoding.DecodeString(c.Base64Data); err == nil {
				mimeType = detectMime(data, c.Type)
			}
		}
		if mimeType == "" {
			mimeType = defaultMimeType(c.Type)
		}
		return Part{InlineData: &Blob{MimeType: mimeType, Data: c.Base64Data}}, nil
	}
	if c.URL == "" {
		return Part{}, fmt.Errorf("%w: %s content without data or url", moderr.ErrUnsupportedContent, c.Type)
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return Part{}, fmt.Errorf("%w: %v", moderr.ErrUnsupportedContent, err)
	}
	mimeType := c.MimeType
	if mimeType == "" {
		mimeType = mimeFromPath(u.Path, c.Type)
	}
	if c.Type == core.ContentImage && (u.Scheme == "http" || u.Scheme == "https") {
		data, detected, err := m.download(ctx, c.URL)
		if err != nil {
			return Part{}, err
		}
		if c.MimeType == "" {
			if detected == "" {
				detected = detectMime(data, c.Type)
			}
			if detected != "" {
				mimeType = detected
			}
		}
		return Part{InlineData: &Blob{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(data)}}, nil
	}
	return Part{FileData: &FileData{MimeType: mimeType, FileURI: c.URL}}, nil
}

func (m *contentMapper) download(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	hc := m.http
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("download %s: http %d", rawURL, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", rawURL, err)
	}
	ct, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if ct == "application/octet-stream" {
		ct = ""
	}
	return data, ct, nil
}

func defaultMimeType(t core.ContentType) string {
	switch t {
	case core.ContentImage:
		return "image/png"
	case core.ContentAudio:
		return "audio/mpeg"
	case core.ContentVideo:
		return "video/mp4"
	case core.ContentPDF:
		return "application/pdf"
	}
	return "application/octet-stream"
}

// detectMime sniffs data and returns its media type without parameters,
// or "" when the result does not belong to the content type.
func detectMime(data []byte, t core.ContentType) string {
	mt := sniffMime(data)
	switch t {
	case core.ContentImage:
		if strings.HasPrefix(mt, "image/") {
			return mt
		}
	case core.ContentAudio:
		if strings.HasPrefix(mt, "audio/") {
			return mt
		}
	case core.ContentVideo:
		if strings.HasPrefix(mt, "video/") {
			return mt
		}
	case core.ContentPDF:
		if mt == "application/pdf" {
			return mt
		}
	}
	return ""
}

func sniffMime(data []byte) string {
	mt, _, _ := strings.Cut(mimetype.Detect(data).String(), ";")
	return mt
}

// mimeFromPath covers file URIs, where no bytes are available to sniff.
func mimeFromPath(p string, t core.ContentType) string {
	if ext := path.Ext(p); ext != "" {
		if mt := mime.TypeByExtension(ext); mt != "" {
			mt, _, _ = mime.ParseMediaType(mt)
			return mt
		}
	}
	return defaultMimeType(t)
}

// parsedParts is the result of reading a candidate's parts.
type parsedParts struct {
	text     string
	thinking string
	calls    []*FunctionCall
}

// fromParts concatenates text parts with blank lines between them, routes
// thought parts into thinking, and optionally renders code execution.
func (m *contentMapper) fromParts(parts []Part) parsedParts {
	var text, thinking strings.Builder
	var out parsedParts
	for _, p := range parts {
		if p.ExecutableCode != nil && m.includeCodeExecutionOutput {
			if text.Len() > 0 {
				text.WriteString("\n\n")
			}
			text.WriteString("Code executed:\n```")
			text.WriteString(strings.ToLower(p.ExecutableCode.Language))
			text.WriteString("\n")
			text.WriteString(p.ExecutableCode.Code)
			text.WriteString("\n```\n")
		}
		if r := p.CodeExecutionResult; r != nil && m.includeCodeExecutionOutput {
			if r.Outcome != "OUTCOME_OK" {
				text.WriteString("Code execution failed: **")
				text.WriteString(r.Outcome)
				text.WriteString("**\n")
			} else {
				text.WriteString("Output:\n```\n")
				text.WriteString(r.Output)
				text.WriteString("```\n")
			}
		}
		if p.Text != "" {
			b := &text
			if p.Thought {
				b = &thinking
			}
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(p.Text)
		}
		if p.FunctionCall != nil {
			out.calls = append(out.calls, p.FunctionCall)
		}
	}
	out.text = text.String()
	out.thinking = thinking.String()
	return out
}
