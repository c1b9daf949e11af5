package core

import "context"

// ChatModel is implemented by provider adapters.
type ChatModel interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// StreamingHandler receives partial output while a streamed response is
// produced. Nil callbacks are skipped.
type StreamingHandler struct {
	OnPartialResponse  func(text string)
	OnPartialThinking  func(text string)
	OnCompleteResponse func(resp ChatResponse)
	OnError            func(err error)
}

func (h StreamingHandler) PartialResponse(text string) {
	if h.OnPartialResponse != nil && text != "" {
		h.OnPartialResponse(text)
	}
}

func (h StreamingHandler) PartialThinking(text string) {
	if h.OnPartialThinking != nil && text != "" {
		h.OnPartialThinking(text)
	}
}

func (h StreamingHandler) CompleteResponse(resp ChatResponse) {
	if h.OnCompleteResponse != nil {
		h.OnCompleteResponse(resp)
	}
}

func (h StreamingHandler) Error(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

// StreamingChatModel streams partial output to the handler and returns the
// aggregated response. Errors are returned and also passed to OnError.
type StreamingChatModel interface {
	ChatStream(ctx context.Context, req ChatRequest, h StreamingHandler) (ChatResponse, error)
}

type TokenCounter interface {
	CountTokens(ctx context.Context, messages []ChatMessage) (int, error)
}

type EmbeddingModel interface {
	Embed(ctx context.Context, segment TextSegment) (Response[Embedding], error)
	EmbedAll(ctx context.Context, segments []TextSegment) (Response[[]Embedding], error)
}

type ImageModel interface {
	Generate(ctx context.Context, prompt string) (Response[Image], error)
	Edit(ctx context.Context, image Image, prompt string) (Response[Image], error)
}

// BatchModel submits requests of type Req for asynchronous processing and
// reports results of type Resp.
type BatchModel[Req, Resp any] interface {
	CreateBatch(ctx context.Context, displayName string, priority *int64, requests []Req) (BatchResponse[Resp], error)
	RetrieveBatchResults(ctx context.Context, name BatchName) (BatchResponse[Resp], error)
	CancelBatchJob(ctx context.Context, name BatchName) error
	DeleteBatchJob(ctx context.Context, name BatchName) error
	ListBatchJobs(ctx context.Context, pageSize int, pageToken string) (BatchList[Resp], error)
}

type (
	BatchChatModel      = BatchModel[ChatRequest, ChatResponse]
	BatchEmbeddingModel = BatchModel[TextSegment, Embedding]
	BatchImageModel     = BatchModel[string, Image]
)
