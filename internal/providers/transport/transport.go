// Package transport holds the HTTP plumbing shared by provider adapters:
// JSON encoding, retries, request logging and call metrics.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/lizzyg/llmbridge/internal/metrics"
	"github.com/lizzyg/llmbridge/internal/providers/retry"
)

const maxLoggedBody = 4096

// RequestFunc builds a fresh request for each attempt.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// Client wraps an *http.Client for one provider.
type Client struct {
	HTTP     *http.Client
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
	Provider string
	Retry    retry.Config

	// Authorize adds credentials to every outgoing request.
	Authorize func(*http.Request)
	// DecodeError turns a non-2xx response into an error. Defaults to a
	// plain *retry.HTTPStatusError.
	DecodeError func(status int, body []byte) error

	LogRequests  bool
	LogResponses bool
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) decodeError(status int, body []byte) error {
	if c.DecodeError != nil {
		return c.DecodeError(status, body)
	}
	return retry.NewHTTPStatusError(status, string(body), c.Provider)
}

// Do sends the request built by newReq, retrying transient failures, and
// returns the response together with its fully read body.
func (c *Client) Do(ctx context.Context, op string, newReq RequestFunc) (*http.Response, []byte, error) {
	var (
		resp *http.Response
		body []byte
	)
	start := time.Now()
	err := retry.WithRetryConfig(ctx, func() error {
		r, err := c.send(ctx, op, newReq)
		if err != nil {
			return err
		}
		defer r.Body.Close()
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return fmt.Errorf("%s read body: %w", c.Provider, err)
		}
		if c.LogResponses {
			c.logger().Debug("http response",
				slog.String("provider", c.Provider),
				slog.String("operation", op),
				slog.Int("status", r.StatusCode),
				slog.String("body", truncate(b)))
		}
		if r.StatusCode < 200 || r.StatusCode >= 300 {
			return c.decodeError(r.StatusCode, b)
		}
		resp, body = r, b
		return nil
	}, c.retryConfig())
	c.Metrics.ObserveRequest(c.Provider, op, err, time.Since(start))
	if err != nil {
		return nil, nil, err
	}
	return resp, body, nil
}

// Stream sends the request and returns the open response once a 2xx status
// arrives. The caller must close the body.
func (c *Client) Stream(ctx context.Context, op string, newReq RequestFunc) (*http.Response, error) {
	var resp *http.Response
	start := time.Now()
	err := retry.WithRetryConfig(ctx, func() error {
		r, err := c.send(ctx, op, newReq)
		if err != nil {
			return err
		}
		if r.StatusCode < 200 || r.StatusCode >= 300 {
			defer r.Body.Close()
			b, _ := io.ReadAll(r.Body)
			return c.decodeError(r.StatusCode, b)
		}
		resp = r
		return nil
	}, c.retryConfig())
	c.Metrics.ObserveRequest(c.Provider, op, err, time.Since(start))
	return resp, err
}

// DoJSON posts in as JSON (when non-nil) and decodes the response into out
// (when non-nil).
func (c *Client) DoJSON(ctx context.Context, op, method, rawURL string, in, out any) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s encode %s request: %w", c.Provider, op, err)
		}
		payload = b
	}
	_, body, err := c.Do(ctx, op, JSONRequest(method, rawURL, payload))
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s decode %s response: %w", c.Provider, op, err)
	}
	return nil
}

// JSONRequest returns a RequestFunc for a JSON body. A nil payload sends no body.
func JSONRequest(method, rawURL string, payload []byte) RequestFunc {
	return func(ctx context.Context) (*http.Request, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	}
}

func (c *Client) send(ctx context.Context, op string, newReq RequestFunc) (*http.Response, error) {
	req, err := newReq(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s build %s request: %w", c.Provider, op, err)
	}
	if c.Authorize != nil {
		c.Authorize(req)
	}
	if c.LogRequests {
		attrs := []any{
			slog.String("provider", c.Provider),
			slog.String("operation", op),
			slog.String("method", req.Method),
			slog.String("url", RedactURL(req.URL)),
		}
		if req.GetBody != nil {
			if rc, err := req.GetBody(); err == nil {
				b, _ := io.ReadAll(rc)
				rc.Close()
				attrs = append(attrs, slog.String("body", truncate(b)))
			}
		}
		c.logger().Debug("http request", attrs...)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", c.Provider, op, err)
	}
	return resp, nil
}

func (c *Client) retryConfig() retry.Config {
	if c.Retry.MaxAttempts == 0 {
		return retry.DefaultConfig()
	}
	return c.Retry
}

// RedactURL hides the "key" query parameter.
func RedactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		cp := *u
		cp.RawQuery = q.Encode()
		return cp.String()
	}
	return u.String()
}

func truncate(b []byte) string {
	if len(b) > maxLoggedBody {
		return string(b[:maxLoggedBody]) + "...(truncated)"
	}
	return string(b)
}
