package gemini

import (
	"context"
	"strings"
	"time"

	moderr "github.com/lizzyg/llmbridge/errors"
	"github.com/lizzyg/llmbridge/internal/core"
)

const (
	modalityImage    = "IMAGE"
	defaultImageMime = "image/png"
)

func (c *Client) Generate(ctx context.Context, prompt string) (core.Response[core.Image], error) {
	return c.generateImage(ctx, "image_generate", Content{Role: roleUser, Parts: []Part{{Text: prompt}}})
}

// Edit asks the model to modify image according to prompt.
func (c *Client) Edit(ctx context.Context, image core.Image, prompt string) (core.Response[core.Image], error) {
	return c.EditWithMask(ctx, image, nil, prompt)
}

// EditWithMask sends the mask as a second image after the source image.
func (c *Client) EditWithMask(ctx context.Context, image core.Image, mask *core.Image, prompt string) (core.Response[core.Image], error) {
	parts := []Part{{Text: prompt}, imagePart(image)}
	if mask != nil {
		parts = append(parts, imagePart(*mask))
	}
	return c.generateImage(ctx, "image_edit", Content{Role: roleUser, Parts: parts})
}

func imagePart(img core.Image) Part {
	mt := img.MimeType
	if strings.TrimSpace(mt) == "" {
		mt = defaultImageMime
	}
	if img.URL != "" {
		return Part{FileData: &FileData{MimeType: mt, FileURI: img.URL}}
	}
	return Part{InlineData: &Blob{MimeType: mt, Data: img.Base64Data}}
}

// imageRequest builds the generateContent body used for image generation.
func (c *Client) imageRequest(content Content) *GenerateContentRequest {
	gc := &GenerationConfig{ResponseModalities: []string{modalityImage}}
	if len(c.cfg.ResponseModalities) > 0 {
		gc.ResponseModalities = c.cfg.ResponseModalities
	}
	if c.cfg.AspectRatio != "" || c.cfg.ImageSize != "" {
		gc.ImageConfig = &ImageConfig{AspectRatio: c.cfg.AspectRatio, ImageSize: c.cfg.ImageSize}
	}
	req := &GenerateContentRequest{
		Contents:         []Content{content},
		GenerationConfig: gc,
		SafetySettings:   safetySettings(c.cfg.SafetySettings),
	}
	if c.cfg.AllowGoogleSearch {
		req.Tools = []Tool{{GoogleSearch: &GoogleSearch{}}}
	}
	return req
}

func (c *Client) generateImage(ctx context.Context, op string, content Content) (core.Response[core.Image], error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	resp, err := c.svc.GenerateContent(ctx, c.model, c.imageRequest(content))
	if err != nil {
		return core.Response[core.Image]{}, err
	}
	out, err := toImageResponse(resp)
	if err != nil {
		return core.Response[core.Image]{}, err
	}
	c.record(op, c.model, *out.TokenUsage, time.Since(start))
	return out, nil
}

// toImageResponse returns the first inline image of the first candidate.
func toImageResponse(resp *GenerateContentResponse) (core.Response[core.Image], error) {
	if err := blockedError(resp); err != nil {
		return core.Response[core.Image]{}, err
	}
	img, ok := extractImage(resp)
	if !ok {
		return core.Response[core.Image]{}, moderr.ErrNoImage
	}
	usage := toTokenUsage(resp.UsageMetadata)
	out := core.Response[core.Image]{Content: img, TokenUsage: &usage}
	cand := resp.Candidates[0]
	out.FinishReason = FromFinishReason(cand.FinishReason, false)
	if g := toGroundingMetadata(cand.GroundingMetadata); g != nil {
		out.Metadata = map[string]any{"groundingMetadata": g}
	}
	return out, nil
}

func extractImage(resp *GenerateContentResponse) (core.Image, bool) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return core.Image{}, false
	}
	var revised []string
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Text != "" && !p.Thought {
			revised = append(revised, p.Text)
		}
	}
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.InlineData != nil && !p.Thought {
			return core.Image{
				Base64Data:    p.InlineData.Data,
				MimeType:      p.InlineData.MimeType,
				RevisedPrompt: strings.Join(revised, "\n"),
			}, true
		}
	}
	return core.Image{}, false
}
