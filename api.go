// Package llmbridge exposes Google Gemini and Cloudflare Workers AI models
// behind provider-neutral chat, streaming, embedding, image and batch
// interfaces.
package llmbridge

import (
	"context"
	"encoding/json"
	"time"

	moderr "github.com/lizzyg/llmbridge/errors"
	"github.com/lizzyg/llmbridge/internal/core"
	"github.com/lizzyg/llmbridge/internal/providers/gemini"
	"github.com/lizzyg/llmbridge/internal/util"
)

type (
	Role                 = core.Role
	ContentType          = core.ContentType
	Content              = core.Content
	ChatMessage          = core.ChatMessage
	ToolExecutionRequest = core.ToolExecutionRequest
	ToolSpecification    = core.ToolSpecification
	ToolChoice           = core.ToolChoice
	ResponseFormat       = core.ResponseFormat
	JSONSchema           = core.JSONSchema
	JSONSchemaElement    = core.JSONSchemaElement
	JSONObjectSchema     = core.JSONObjectSchema
	ChatRequest          = core.ChatRequest
	ChatResponse         = core.ChatResponse
	ChatResponseMetadata = core.ChatResponseMetadata
	FinishReason         = core.FinishReason
	TokenUsage           = core.TokenUsage
	StreamingHandler     = core.StreamingHandler
	TextSegment          = core.TextSegment
	Embedding            = core.Embedding
	Image                = core.Image
	Response[T any]      = core.Response[T]

	ChatModel           = core.ChatModel
	StreamingChatModel  = core.StreamingChatModel
	TokenCounter        = core.TokenCounter
	EmbeddingModel      = core.EmbeddingModel
	ImageModel          = core.ImageModel
	BatchChatModel      = core.BatchChatModel
	BatchEmbeddingModel = core.BatchEmbeddingModel
	BatchImageModel     = core.BatchImageModel

	BatchName              = core.BatchName
	BatchState             = core.BatchState
	BatchResponse[T any]   = core.BatchResponse[T]
	BatchIncomplete[T any] = core.BatchIncomplete[T]
	BatchSuccess[T any]    = core.BatchSuccess[T]
	BatchError[T any]      = core.BatchError[T]
	BatchList[T any]       = core.BatchList[T]

	Files          = gemini.Files
	File           = gemini.File
	CachedContents = gemini.CachedContents
	CachedContent  = gemini.CachedContent
	CacheRequest   = gemini.CacheRequest
	LiveSession    = gemini.LiveSession
	LiveHandlers   = gemini.LiveHandlers
)

var (
	SystemMessage           = core.SystemMessage
	UserMessage             = core.UserMessage
	UserMessageWithContents = core.UserMessageWithContents
	AIMessage               = core.AIMessage
	AIMessageWithToolCalls  = core.AIMessageWithToolCalls
	ToolResultMessage       = core.ToolResultMessage
	TextContent             = core.TextContent
	ImageContent            = core.ImageContent
	ImageURLContent         = core.ImageURLContent
	AudioContent            = core.AudioContent
	VideoContent            = core.VideoContent
	PDFContent              = core.PDFContent
	TextSegmentOf           = core.TextSegmentOf
	NewBatchName            = core.NewBatchName
	ParseJSONSchema         = core.ParseJSONSchema
	MarshalJSONSchema       = core.MarshalJSONSchema
	ToolParameters          = util.ToolParameters

	TextFormat = core.TextFormat
	JSONFormat = core.JSONFormat
)

// Request describes a single typed request for Execute.
type Request struct {
	// Model is a configured model key. Empty selects the first suitable model.
	Model           string
	Messages        []ChatMessage
	AllowWebSearch  bool
	MaxOutputTokens *int
	Temperature     *float64
	TopP            *float64

	// Optional overrides
	Timeout time.Duration
}

// Execute sends the request and parses the final answer into T. If T is
// string, the raw text is returned. Models configured with structured output
// support receive the JSON schema reflected from T. Answers that do not
// parse are repaired against that schema before giving up.
func Execute[T any](ctx context.Context, b *Bridge, req Request) (T, error) {
	var zero T
	mc, key, err := b.selectModel(req.Model, req.AllowWebSearch)
	if err != nil {
		return zero, err
	}
	cm, err := b.ChatModel(key)
	if err != nil {
		return zero, err
	}

	creq := ChatRequest{
		Messages:        req.Messages,
		MaxOutputTokens: req.MaxOutputTokens,
		Temperature:     req.Temperature,
		TopP:            req.TopP,
	}
	isString := util.IsStringType[T]()
	var root JSONSchemaElement
	if !isString {
		var zeroPtr *T
		root, err = util.SchemaFromType(zeroPtr)
		if err != nil && mc.SupportsStructuredOutput {
			return zero, err
		}
		if root != nil && mc.SupportsStructuredOutput {
			creq.ResponseFormat = &ResponseFormat{Type: core.ResponseFormatJSON, Schema: &JSONSchema{Root: root}}
		}
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	resp, err := cm.Chat(ctx, creq)
	if err != nil {
		return zero, err
	}
	s := resp.Text()
	if isString {
		anyVal := any(s)
		return anyVal.(T), nil
	}
	var out T
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		if repaired, ok := util.RepairJSON(s, root); ok {
			if err2 := json.Unmarshal([]byte(repaired), &out); err2 == nil {
				return out, nil
			}
		}
		return zero, moderr.ErrStructuredOutput
	}
	return out, nil
}
