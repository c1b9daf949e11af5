package cloudflare

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	moderr "github.com/lizzyg/llmbridge/errors"
	"github.com/lizzyg/llmbridge/internal/core"
	"github.com/lizzyg/llmbridge/internal/providers/transport"
)

const defaultImageMime = "image/png"

// Generate runs a text-to-image model.
func (c *Client) Generate(ctx context.Context, prompt string) (core.Response[core.Image], error) {
	return c.generateImage(ctx, "image_generate", c.imageRequest(prompt))
}

// Edit runs an image-to-image model with image as the starting point. The
// image must carry base64 data.
func (c *Client) Edit(ctx context.Context, image core.Image, prompt string) (core.Response[core.Image], error) {
	if image.Base64Data == "" {
		return core.Response[core.Image]{}, fmt.Errorf("%w: cloudflare image edit needs base64 data", moderr.ErrUnsupportedContent)
	}
	req := c.imageRequest(prompt)
	req.ImageB64 = image.Base64Data
	return c.generateImage(ctx, "image_edit", req)
}

func (c *Client) imageRequest(prompt string) imageRequest {
	return imageRequest{
		Prompt:   prompt,
		Height:   c.cfg.ImageHeight,
		Width:    c.cfg.ImageWidth,
		NumSteps: c.cfg.NumSteps,
	}
}

// generateImage accepts either raw image bytes or a JSON envelope carrying a
// base64 image, depending on the model.
func (c *Client) generateImage(ctx context.Context, op string, req imageRequest) (core.Response[core.Image], error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	payload, err := json.Marshal(req)
	if err != nil {
		return core.Response[core.Image]{}, fmt.Errorf("cloudflare encode %s request: %w", op, err)
	}
	start := time.Now()
	resp, body, err := c.tc.Do(ctx, op, transport.JSONRequest(http.MethodPost, c.modelURL(c.model), payload))
	if err != nil {
		return core.Response[core.Image]{}, err
	}
	img, err := decodeImage(resp.Header.Get("Content-Type"), body)
	if err != nil {
		return core.Response[core.Image]{}, err
	}
	c.record(op, c.model, core.TokenUsage{}, time.Since(start))
	return core.Response[core.Image]{Content: img}, nil
}

func decodeImage(contentType string, body []byte) (core.Image, error) {
	mt, _, _ := mime.ParseMediaType(contentType)
	if strings.HasPrefix(mt, "image/") {
		return core.Image{Base64Data: base64.StdEncoding.EncodeToString(body), MimeType: mt}, nil
	}
	if mt != "application/json" && !json.Valid(body) {
		return core.Image{Base64Data: base64.StdEncoding.EncodeToString(body), MimeType: imageMime(body)}, nil
	}
	var env envelope[imageResult]
	if err := json.Unmarshal(body, &env); err != nil {
		return core.Image{}, fmt.Errorf("cloudflare decode image response: %w", err)
	}
	if !env.Success {
		return core.Image{}, &APIError{Errors: env.Errors}
	}
	if env.Result.Image == "" {
		return core.Image{}, moderr.ErrNoImage
	}
	mimeType := defaultImageMime
	if data, err := base64.StdEncoding.DecodeString(env.Result.Image); err == nil {
		mimeType = imageMime(data)
	}
	return core.Image{Base64Data: env.Result.Image, MimeType: mimeType}, nil
}

// imageMime sniffs image bytes, assuming PNG when they are not recognised.
func imageMime(data []byte) string {
	if m := mimetype.Detect(data); strings.HasPrefix(m.String(), "image/") {
		mt, _, _ := strings.Cut(m.String(), ";")
		return mt
	}
	return defaultImageMime
}
