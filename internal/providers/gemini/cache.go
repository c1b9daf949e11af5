package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lizzyg/llmbridge/internal/core"
)

// CachedContent is a cachedContents resource. Chat requests reference it by
// Name through the cached_content model setting.
type CachedContent struct {
	Name              string         `json:"name,omitempty"`
	DisplayName       string         `json:"displayName,omitempty"`
	Model             string         `json:"model,omitempty"`
	Contents          []Content      `json:"contents,omitempty"`
	Tools             []Tool         `json:"tools,omitempty"`
	ToolConfig        *ToolConfig    `json:"toolConfig,omitempty"`
	SystemInstruction *Content       `json:"systemInstruction,omitempty"`
	TTL               string         `json:"ttl,omitempty"`
	ExpireTime        string         `json:"expireTime,omitempty"`
	CreateTime        string         `json:"createTime,omitempty"`
	UpdateTime        string         `json:"updateTime,omitempty"`
	UsageMetadata     *UsageMetadata `json:"usageMetadata,omitempty"`
}

// CacheRequest describes the conversation prefix to cache.
type CacheRequest struct {
	DisplayName string
	Messages    []core.ChatMessage
	Tools       []core.ToolSpecification
	TTL         time.Duration
}

// CachedContents manages context caches for one model.
type CachedContents struct {
	client *Client
}

func (c *Client) CachedContents() *CachedContents { return &CachedContents{client: c} }

func (cc *CachedContents) Create(ctx context.Context, req CacheRequest) (*CachedContent, error) {
	c := cc.client
	system, contents, err := c.mapper.toContents(ctx, req.Messages)
	if err != nil {
		return nil, err
	}
	tools, err := ToGeminiTools(req.Tools, BuiltinTools{})
	if err != nil {
		return nil, err
	}
	body := &CachedContent{
		DisplayName:       req.DisplayName,
		Model:             modelPath(c.model),
		Contents:          contents,
		Tools:             tools,
		SystemInstruction: system,
		TTL:               formatTTL(req.TTL),
	}
	var out CachedContent
	if err := c.svc.client.DoJSON(ctx, "createCachedContent", http.MethodPost, c.svc.url("cachedContents"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get fetches a cache by name, e.g. "cachedContents/abc".
func (cc *CachedContents) Get(ctx context.Context, name string) (*CachedContent, error) {
	svc := cc.client.svc
	var out CachedContent
	if err := svc.client.DoJSON(ctx, "getCachedContent", http.MethodGet, svc.url(cachedContentName(name)), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (cc *CachedContents) Delete(ctx context.Context, name string) error {
	svc := cc.client.svc
	return svc.client.DoJSON(ctx, "deleteCachedContent", http.MethodDelete, svc.url(cachedContentName(name)), nil, nil)
}

func cachedContentName(name string) string {
	if strings.HasPrefix(name, "cachedContents/") {
		return name
	}
	return "cachedContents/" + name
}

// formatTTL renders a protobuf Duration ("3600s"). Zero leaves the server default.
func formatTTL(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return fmt.Sprintf("%ss", strconv.FormatFloat(d.Seconds(), 'f', -1, 64))
}
