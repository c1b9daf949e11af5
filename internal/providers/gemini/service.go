package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/lizzyg/llmbridge/internal/providers/retry"
	"github.com/lizzyg/llmbridge/internal/providers/transport"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	providerName   = "gemini"
	userAgent      = "llmbridge"
)

// Service issues raw calls against the Generative Language REST API.
type Service struct {
	baseURL string
	client  *transport.Client
}

// NewService wires API key headers and Gemini error decoding into tc.
func NewService(baseURL, apiKey string, tc *transport.Client) *Service {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	tc.Provider = providerName
	tc.Authorize = func(r *http.Request) {
		r.Header.Set("x-goog-api-key", apiKey)
		r.Header.Set("User-Agent", userAgent)
	}
	tc.DecodeError = decodeError
	return &Service{baseURL: strings.TrimSuffix(baseURL, "/"), client: tc}
}

// decodeError reads the google.rpc.Status envelope when present.
func decodeError(status int, body []byte) error {
	he := retry.NewHTTPStatusError(status, string(body), providerName)
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		he.Code = env.Error.Code
		he.VendorStatus = env.Error.Status
		he.Message = env.Error.Message
		he.Details = env.Error.Details
	}
	return he
}

func modelPath(model string) string {
	if strings.HasPrefix(model, "models/") || strings.HasPrefix(model, "tunedModels/") {
		return model
	}
	return "models/" + model
}

func (s *Service) url(p string) string { return s.baseURL + "/" + strings.TrimPrefix(p, "/") }

// prefixedURL inserts prefix before the API version path, e.g.
// https://host/v1beta -> https://host/upload/v1beta.
func (s *Service) prefixedURL(prefix, p string) string {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return s.url(p)
	}
	u.Path = "/" + prefix + u.Path
	return strings.TrimSuffix(u.String(), "/") + "/" + strings.TrimPrefix(p, "/")
}

func (s *Service) GenerateContent(ctx context.Context, model string, req *GenerateContentRequest) (*GenerateContentResponse, error) {
	var out GenerateContentResponse
	err := s.client.DoJSON(ctx, "generateContent", http.MethodPost, s.url(modelPath(model)+":generateContent"), req, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// StreamGenerateContent opens a server-sent event stream; the caller closes the body.
func (s *Service) StreamGenerateContent(ctx context.Context, model string, req *GenerateContentRequest) (*http.Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("gemini encode stream request: %w", err)
	}
	u := s.url(modelPath(model) + ":streamGenerateContent?alt=sse")
	return s.client.Stream(ctx, "streamGenerateContent", transport.JSONRequest(http.MethodPost, u, payload))
}

func (s *Service) CountTokens(ctx context.Context, model string, req *CountTokensRequest) (*CountTokensResponse, error) {
	var out CountTokensResponse
	err := s.client.DoJSON(ctx, "countTokens", http.MethodPost, s.url(modelPath(model)+":countTokens"), req, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) EmbedContent(ctx context.Context, model string, req *EmbedContentRequest) (*EmbedContentResponse, error) {
	var out EmbedContentResponse
	err := s.client.DoJSON(ctx, "embedContent", http.MethodPost, s.url(modelPath(model)+":embedContent"), req, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) BatchEmbedContents(ctx context.Context, model string, req *BatchEmbedContentsRequest) (*BatchEmbedContentsResponse, error) {
	var out BatchEmbedContentsResponse
	err := s.client.DoJSON(ctx, "batchEmbedContents", http.MethodPost, s.url(modelPath(model)+":batchEmbedContents"), req, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateBatch posts a batch job via method, e.g. "batchGenerateContent" or
// "asyncBatchEmbedContent", and decodes the returned operation into out.
func (s *Service) CreateBatch(ctx context.Context, model, method string, body, out any) error {
	return s.client.DoJSON(ctx, method, http.MethodPost, s.url(modelPath(model)+":"+method), body, out)
}

func (s *Service) GetBatch(ctx context.Context, name string, out any) error {
	return s.client.DoJSON(ctx, "getBatch", http.MethodGet, s.url(name), nil, out)
}

func (s *Service) CancelBatch(ctx context.Context, name string) error {
	return s.client.DoJSON(ctx, "cancelBatch", http.MethodPost, s.url(name+":cancel"), nil, nil)
}

func (s *Service) DeleteBatch(ctx context.Context, name string) error {
	return s.client.DoJSON(ctx, "deleteBatch", http.MethodDelete, s.url(name), nil, nil)
}

func (s *Service) ListBatches(ctx context.Context, pageSize int, pageToken string, out any) error {
	q := url.Values{}
	if pageSize > 0 {
		q.Set("pageSize", strconv.Itoa(pageSize))
	}
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}
	u := s.url("batches")
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return s.client.DoJSON(ctx, "listBatches", http.MethodGet, u, nil, out)
}

// DownloadFile fetches the media of a file resource such as a batch
// responses file ("files/abc").
func (s *Service) DownloadFile(ctx context.Context, name string) ([]byte, error) {
	u := s.prefixedURL("download", name+":download?alt=media")
	_, body, err := s.client.Do(ctx, "downloadFile", transport.JSONRequest(http.MethodGet, u, nil))
	return body, err
}
