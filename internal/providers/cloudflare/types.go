package cloudflare

import (
	"encoding/json"
	"strings"
)

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string          `json:"type"`
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

type chatRequest struct {
	Messages         []message       `json:"messages"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	TopK             *int            `json:"top_k,omitempty"`
	Seed             *int            `json:"seed,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	ResponseFormat   *responseFormat `json:"response_format,omitempty"`
	Stream           bool            `json:"stream,omitempty"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// envelope is the v4 API wrapper around every JSON result.
type envelope[T any] struct {
	Result  T             `json:"result"`
	Success bool          `json:"success"`
	Errors  []ErrorDetail `json:"errors"`
}

type chatResult struct {
	// Response is a string, or an object when a JSON schema was requested.
	Response json.RawMessage `json:"response"`
	Usage    *usage          `json:"usage,omitempty"`
}

// text returns the response as text. JSON mode answers are returned verbatim.
func (r chatResult) text() string {
	raw := strings.TrimSpace(string(r.Response))
	if raw == "" || raw == "null" {
		return ""
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(r.Response, &s); err == nil {
			return s
		}
	}
	return raw
}

type streamChunk struct {
	Response string `json:"response"`
	Usage    *usage `json:"usage,omitempty"`
}

type embeddingRequest struct {
	Text []string `json:"text"`
}

type embeddingResult struct {
	Shape []int       `json:"shape"`
	Data  [][]float32 `json:"data"`
}

type imageRequest struct {
	Prompt   string `json:"prompt"`
	Height   int    `json:"height,omitempty"`
	Width    int    `json:"width,omitempty"`
	NumSteps int    `json:"num_steps,omitempty"`
	ImageB64 string `json:"image_b64,omitempty"`
}

type imageResult struct {
	Image string `json:"image"`
}

// ErrorDetail is one entry of the errors array.
type ErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// APIError is returned when a 2xx response reports success=false.
type APIError struct {
	Errors []ErrorDetail
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return "cloudflare: request failed without error details"
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, d := range e.Errors {
		msgs = append(msgs, d.Message)
	}
	return "cloudflare: " + strings.Join(msgs, "; ")
}
