package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	moderr "github.com/lizzyg/llmbridge/errors"
	"github.com/lizzyg/llmbridge/internal/core"
)

const (
	methodBatchGenerateContent   = "batchGenerateContent"
	methodAsyncBatchEmbedContent = "asyncBatchEmbedContent"

	// codeInternal is google.rpc.Code INTERNAL.
	codeInternal = 13

	DefaultPollInterval = 10 * time.Second
)

type BatchStats struct {
	RequestCount           int64 `json:"requestCount,omitempty,string"`
	SuccessfulRequestCount int64 `json:"successfulRequestCount,omitempty,string"`
	FailedRequestCount     int64 `json:"failedRequestCount,omitempty,string"`
	PendingRequestCount    int64 `json:"pendingRequestCount,omitempty,string"`
}

// Wire shapes of a batch operation, generic over the per-request response.
type (
	batchOperation[W any] struct {
		Name     string            `json:"name"`
		Metadata *batchMetadata[W] `json:"metadata,omitempty"`
		Done     bool              `json:"done,omitempty"`
		Response *batchOutput[W]   `json:"response,omitempty"`
		Error    *Status           `json:"error,omitempty"`
	}
	batchMetadata[W any] struct {
		Model       string          `json:"model,omitempty"`
		DisplayName string          `json:"displayName,omitempty"`
		State       string          `json:"state,omitempty"`
		CreateTime  string          `json:"createTime,omitempty"`
		UpdateTime  string          `json:"updateTime,omitempty"`
		EndTime     string          `json:"endTime,omitempty"`
		BatchStats  *BatchStats     `json:"batchStats,omitempty"`
		Output      *batchOutput[W] `json:"output,omitempty"`
	}
	batchOutput[W any] struct {
		ResponsesFile    string               `json:"responsesFile,omitempty"`
		InlinedResponses *inlinedResponses[W] `json:"inlinedResponses,omitempty"`
	}
	inlinedResponses[W any] struct {
		InlinedResponses []inlinedResponse[W] `json:"inlinedResponses"`
	}
	inlinedResponse[W any] struct {
		Response *W             `json:"response,omitempty"`
		Error    *Status        `json:"error,omitempty"`
		Metadata map[string]any `json:"metadata,omitempty"`
	}
	// fileResponseLine is one line of a responses file.
	fileResponseLine[W any] struct {
		Key      string  `json:"key,omitempty"`
		Response *W      `json:"response,omitempty"`
		Error    *Status `json:"error,omitempty"`
	}
	listOperationsResponse[W any] struct {
		Operations    []batchOperation[W] `json:"operations"`
		NextPageToken string              `json:"nextPageToken,omitempty"`
	}
)

// Create request shapes, generic over the inlined request.
type (
	batchCreateRequest[I any] struct {
		Batch batchSpec[I] `json:"batch"`
	}
	batchSpec[I any] struct {
		DisplayName string              `json:"displayName"`
		InputConfig batchInputConfig[I] `json:"inputConfig"`
		Priority    *int64              `json:"priority,omitempty"`
	}
	batchInputConfig[I any] struct {
		FileName string              `json:"fileName,omitempty"`
		Requests *inlinedRequests[I] `json:"requests,omitempty"`
	}
	inlinedRequests[I any] struct {
		Requests []inlinedRequest[I] `json:"requests"`
	}
	inlinedRequest[I any] struct {
		Request  I                 `json:"request"`
		Metadata map[string]string `json:"metadata,omitempty"`
	}
)

// BatchProcessor drives the batch lifecycle for one model. Req is the caller
// request, I the inlined wire request, W the wire response of one item and
// Resp the converted result.
type BatchProcessor[Req, I, W, Resp any] struct {
	svc     *Service
	model   string
	method  string
	logger  *slog.Logger
	prepare func(ctx context.Context, r Req) (I, error)
	convert func(w *W) (Resp, error)
}

type (
	BatchChat      = BatchProcessor[core.ChatRequest, *GenerateContentRequest, GenerateContentResponse, core.ChatResponse]
	BatchEmbedding = BatchProcessor[core.TextSegment, EmbedContentRequest, EmbedContentResponse, core.Embedding]
	BatchImage     = BatchProcessor[string, *GenerateContentRequest, GenerateContentResponse, core.Image]
)

// BatchChatModel submits chat requests through batchGenerateContent.
func (c *Client) BatchChatModel() *BatchChat {
	return &BatchChat{
		svc:     c.svc,
		model:   c.model,
		method:  methodBatchGenerateContent,
		logger:  c.logger,
		prepare: c.buildRequest,
		convert: func(w *GenerateContentResponse) (core.ChatResponse, error) {
			return c.mapper.toChatResponse(w, c.model)
		},
	}
}

// BatchEmbeddingModel submits segments through asyncBatchEmbedContent.
func (c *Client) BatchEmbeddingModel() *BatchEmbedding {
	return &BatchEmbedding{
		svc:    c.svc,
		model:  c.model,
		method: methodAsyncBatchEmbedContent,
		logger: c.logger,
		prepare: func(_ context.Context, seg core.TextSegment) (EmbedContentRequest, error) {
			return c.embedRequest(seg), nil
		},
		convert: func(w *EmbedContentResponse) (core.Embedding, error) {
			return core.Embedding{Vector: w.Embedding.Values}, nil
		},
	}
}

// BatchImageModel submits prompts as image generation requests.
func (c *Client) BatchImageModel() *BatchImage {
	return &BatchImage{
		svc:    c.svc,
		model:  c.model,
		method: methodBatchGenerateContent,
		logger: c.logger,
		prepare: func(_ context.Context, prompt string) (*GenerateContentRequest, error) {
			return c.imageRequest(Content{Role: roleUser, Parts: []Part{{Text: prompt}}}), nil
		},
		convert: func(w *GenerateContentResponse) (core.Image, error) {
			r, err := toImageResponse(w)
			return r.Content, err
		},
	}
}

// CreateBatch submits requests inline. Each request carries its index as key.
func (p *BatchProcessor[Req, I, W, Resp]) CreateBatch(ctx context.Context, displayName string, priority *int64, requests []Req) (core.BatchResponse[Resp], error) {
	inlined := make([]inlinedRequest[I], 0, len(requests))
	for i, r := range requests {
		ir, err := p.prepare(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("batch request %d: %w", i, err)
		}
		inlined = append(inlined, inlinedRequest[I]{
			Request:  ir,
			Metadata: map[string]string{"key": strconv.Itoa(i)},
		})
	}
	return p.create(ctx, batchSpec[I]{
		DisplayName: displayName,
		InputConfig: batchInputConfig[I]{Requests: &inlinedRequests[I]{Requests: inlined}},
		Priority:    priority,
	})
}

// CreateBatchFromFile submits a JSONL file previously uploaded through the
// Files API, e.g. "files/abc".
func (p *BatchProcessor[Req, I, W, Resp]) CreateBatchFromFile(ctx context.Context, displayName string, priority *int64, fileName string) (core.BatchResponse[Resp], error) {
	return p.create(ctx, batchSpec[I]{
		DisplayName: displayName,
		InputConfig: batchInputConfig[I]{FileName: fileName},
		Priority:    priority,
	})
}

func (p *BatchProcessor[Req, I, W, Resp]) create(ctx context.Context, spec batchSpec[I]) (core.BatchResponse[Resp], error) {
	var op batchOperation[W]
	if err := p.svc.CreateBatch(ctx, p.model, p.method, batchCreateRequest[I]{Batch: spec}, &op); err != nil {
		return nil, err
	}
	p.logger.Info("batch created",
		slog.String("provider", providerName),
		slog.String("model", p.model),
		slog.String("batch", op.Name),
	)
	return p.toBatchResponse(ctx, &op, true)
}

// WriteBatchToFile writes requests as JSONL lines of {key, request} ready
// for upload.
func (p *BatchProcessor[Req, I, W, Resp]) WriteBatchToFile(ctx context.Context, w io.Writer, requests []core.BatchFileRequest[Req]) error {
	lines := make([]core.BatchFileRequest[I], 0, len(requests))
	for _, r := range requests {
		ir, err := p.prepare(ctx, r.Request)
		if err != nil {
			return fmt.Errorf("batch request %q: %w", r.Key, err)
		}
		lines = append(lines, core.BatchFileRequest[I]{Key: r.Key, Request: ir})
	}
	return core.WriteJSONL(w, lines)
}

func (p *BatchProcessor[Req, I, W, Resp]) RetrieveBatchResults(ctx context.Context, name core.BatchName) (core.BatchResponse[Resp], error) {
	var op batchOperation[W]
	if err := p.svc.GetBatch(ctx, name.String(), &op); err != nil {
		return nil, err
	}
	return p.toBatchResponse(ctx, &op, true)
}

func (p *BatchProcessor[Req, I, W, Resp]) CancelBatchJob(ctx context.Context, name core.BatchName) error {
	return p.svc.CancelBatch(ctx, name.String())
}

func (p *BatchProcessor[Req, I, W, Resp]) DeleteBatchJob(ctx context.Context, name core.BatchName) error {
	return p.svc.DeleteBatch(ctx, name.String())
}

func (p *BatchProcessor[Req, I, W, Resp]) ListBatchJobs(ctx context.Context, pageSize int, pageToken string) (core.BatchList[Resp], error) {
	var out listOperationsResponse[W]
	if err := p.svc.ListBatches(ctx, pageSize, pageToken, &out); err != nil {
		return core.BatchList[Resp]{}, err
	}
	list := core.BatchList[Resp]{NextPageToken: out.NextPageToken}
	for i := range out.Operations {
		r, err := p.toBatchResponse(ctx, &out.Operations[i], false)
		if err != nil {
			return core.BatchList[Resp]{}, err
		}
		list.Responses = append(list.Responses, r)
	}
	return list, nil
}

// Wait polls until the job reaches a terminal state. A state that moves
// backwards, such as SUCCEEDED followed by RUNNING, fails with
// ErrIllegalBatchTransition.
func (p *BatchProcessor[Req, I, W, Resp]) Wait(ctx context.Context, name core.BatchName, interval time.Duration) (core.BatchResponse[Resp], error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	prev := core.BatchStateUnspecified
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		r, err := p.RetrieveBatchResults(ctx, name)
		if err != nil {
			return nil, err
		}
		cur := r.BatchState()
		if !prev.CanTransitionTo(cur) {
			return nil, fmt.Errorf("%w: %s -> %s", moderr.ErrIllegalBatchTransition, prev, cur)
		}
		if cur == core.BatchStateUnspecified {
			cur = prev
		}
		if cur != prev {
			p.logger.Debug("batch state",
				slog.String("batch", name.String()),
				slog.String("state", string(cur)),
			)
		}
		if cur.IsTerminal() {
			return r, nil
		}
		prev = cur
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// toBatchResponse maps an operation to a batch response. Results files are
// only downloaded when readFile is set.
func (p *BatchProcessor[Req, I, W, Resp]) toBatchResponse(ctx context.Context, op *batchOperation[W], readFile bool) (core.BatchResponse[Resp], error) {
	name, err := core.NewBatchName(op.Name)
	if err != nil {
		return nil, err
	}
	state := core.BatchStateUnspecified
	if op.Metadata != nil {
		state = core.ParseBatchState(op.Metadata.State)
	}

	if op.Error != nil {
		if !state.IsTerminal() || state == core.BatchStateSucceeded {
			state = core.BatchStateFailed
		}
		return &core.BatchError[Resp]{
			Name:    name,
			Code:    op.Error.Code,
			Message: op.Error.Message,
			State:   state,
			Details: op.Error.Details,
		}, nil
	}

	switch state {
	case core.BatchStateSucceeded:
		return p.toSuccess(ctx, name, op, readFile)
	case core.BatchStateFailed, core.BatchStateCancelled, core.BatchStateExpired:
		return &core.BatchError[Resp]{
			Name:    name,
			Code:    codeInternal,
			Message: fmt.Sprintf("%s failed without error", name),
			State:   state,
		}, nil
	}
	if op.Done && op.Response != nil {
		return p.toSuccess(ctx, name, op, readFile)
	}
	return &core.BatchIncomplete[Resp]{Name: name, State: state}, nil
}

func (p *BatchProcessor[Req, I, W, Resp]) toSuccess(ctx context.Context, name core.BatchName, op *batchOperation[W], readFile bool) (*core.BatchSuccess[Resp], error) {
	out := &core.BatchSuccess[Resp]{Name: name}
	output := op.Response
	if output == nil && op.Metadata != nil {
		output = op.Metadata.Output
	}
	if output == nil {
		return out, nil
	}
	if output.InlinedResponses != nil {
		for i, item := range output.InlinedResponses.InlinedResponses {
			p.collect(out, i, metadataKey(item.Metadata), item.Response, item.Error)
		}
	}
	out.ResponsesFile = output.ResponsesFile
	if output.ResponsesFile != "" && readFile {
		data, err := p.svc.DownloadFile(ctx, output.ResponsesFile)
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", output.ResponsesFile, err)
		}
		if err := p.collectFile(out, data); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *BatchProcessor[Req, I, W, Resp]) collect(out *core.BatchSuccess[Resp], index int, key string, resp *W, status *Status) {
	if status != nil {
		out.Errors = append(out.Errors, core.BatchItemError{
			Index:   index,
			Key:     key,
			Code:    status.Code,
			Message: status.Message,
			Details: status.Details,
		})
		return
	}
	if resp == nil {
		return
	}
	r, err := p.convert(resp)
	if err != nil {
		out.Errors = append(out.Errors, core.BatchItemError{Index: index, Key: key, Code: codeInternal, Message: err.Error()})
		return
	}
	out.Responses = append(out.Responses, r)
}

func (p *BatchProcessor[Req, I, W, Resp]) collectFile(out *core.BatchSuccess[Resp], data []byte) error {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 64<<20)
	index := 0
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var l fileResponseLine[W]
		if err := json.Unmarshal(line, &l); err != nil {
			return fmt.Errorf("responses file line %d: %w", index+1, err)
		}
		p.collect(out, index, l.Key, l.Response, l.Error)
		index++
	}
	return sc.Err()
}

func metadataKey(m map[string]any) string {
	if k, ok := m["key"].(string); ok {
		return k
	}
	return ""
}
