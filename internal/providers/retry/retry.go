package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"time"
)

// Config holds retry configuration parameters
type Config struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
	MaxDelay    time.Duration `json:"max_delay"`
	JitterRatio float64       `json:"jitter_ratio"`
}

// DefaultConfig returns the default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    3 * time.Second,
		JitterRatio: 0.25,
	}
}

// ConfigForRetries returns the default configuration allowing maxRetries
// retries after the first attempt. Negative values keep the default.
func ConfigForRetries(maxRetries int) Config {
	c := DefaultConfig()
	if maxRetries >= 0 {
		c.MaxAttempts = maxRetries + 1
	}
	return c
}

// WithRetry performs exponential backoff retries on transient errors.
func WithRetry(ctx context.Context, fn func() error) error {
	return WithRetryConfig(ctx, fn, DefaultConfig())
}

// WithRetryConfig performs exponential backoff retries with custom configuration.
func WithRetryConfig(ctx context.Context, fn func() error, config Config) error {
	var attempt int
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		attempt++
		if attempt >= config.MaxAttempts {
			return err
		}
		delay := time.Duration(float64(config.BaseDelay) * math.Pow(2, float64(attempt-1)))
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
		jitter := time.Duration(rand.Float64() * config.JitterRatio * float64(delay))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay + jitter):
		}
	}
}

// HTTPStatusError is returned for non-2xx vendor responses. Code, VendorStatus,
// Message and Details are filled when the body carries a structured error.
type HTTPStatusError struct {
	Status       int              `json:"status"`
	Body         string           `json:"body"`
	Source       string           `json:"source"` // e.g., "gemini", "cloudflare"
	Code         int              `json:"code,omitempty"`
	VendorStatus string           `json:"vendor_status,omitempty"`
	Message      string           `json:"message,omitempty"`
	Details      []map[string]any `json:"details,omitempty"`
}

// NewHTTPStatusError creates a new HTTP status error
func NewHTTPStatusError(status int, body, source string) *HTTPStatusError {
	return &HTTPStatusError{
		Status: status,
		Body:   body,
		Source: source,
	}
}

func (e *HTTPStatusError) Error() string {
	if e.Message != "" {
		if e.VendorStatus != "" {
			return fmt.Sprintf("%s http %d %s: %s", e.Source, e.Status, e.VendorStatus, e.Message)
		}
		return fmt.Sprintf("%s http %d: %s", e.Source, e.Status, e.Message)
	}
	return fmt.Sprintf("%s http %d: %s", e.Source, e.Status, e.Body)
}

// IsTransient determines if an error is worth retrying using proper error type checking.
func IsTransient(err error) bool {
	var he *HTTPStatusError
	if errors.As(err, &he) {
		return he.Status == http.StatusTooManyRequests ||
			he.Status == http.StatusRequestTimeout ||
			he.Status >= 500
	}

	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return true
		}
	}
	return false
}
