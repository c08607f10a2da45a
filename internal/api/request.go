package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"github.com/carlmjohnson/requests"
)

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 4 << 10

// errRateLimit wraps limiter failures, which are never retried.
var errRateLimit = errors.New("rate limit")

// APIError represents an HTTP error returned by a provider.
type APIError struct {
	StatusCode int
	Message    string
	URL        string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// IsNotFound reports whether the provider has no document at the URL.
// Providers answer 404 for dates that are not published yet.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

func checkStatus(fullURL string) requests.ResponseHandler {
	return func(resp *http.Response) error {
		if resp.StatusCode < 400 {
			return nil
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			URL:        fullURL,
			Body:       body,
		}
	}
}

func (c *Client) url(path string, query url.Values) string {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}
	return fullURL
}

// doRequest performs a single GET for path.
func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", errRateLimit, err)
		}
	}

	fullURL := c.url(path, query)
	var buf bytes.Buffer
	err := requests.
		URL(fullURL).
		Client(c.httpClient).
		Header("User-Agent", c.userAgent).
		AddValidator(checkStatus(fullURL)).
		ToBytesBuffer(&buf).
		Fetch(ctx)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, fmt.Errorf("do request: %w", err)
	}

	return buf.Bytes(), nil
}

// doWithRetry performs a request with exponential backoff retry.
func (c *Client) doWithRetry(ctx context.Context, path string, query url.Values) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Add jitter: backoff * (0.5 to 1.5)
			jitter := backoff/2 + time.Duration(rand.Int64N(int64(backoff)+1))
			c.logger.Debug("retrying request",
				"attempt", attempt,
				"backoff", jitter,
				"path", path,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter):
			}

			backoff *= 2
		}

		body, err := c.doRequest(ctx, path, query)
		if err == nil {
			return body, nil
		}

		lastErr = err
		if !retryable(ctx, err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// retryable reports whether a failed attempt should be repeated: 5xx and
// 429 responses and transport errors are, cancellation and limiter
// failures are not.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, errRateLimit) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	return true
}

// Get fetches path with retries and returns the raw body.
func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return c.doWithRetry(ctx, path, query)
}

// GetJSON fetches path with retries and decodes the JSON body into result.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, result any) error {
	body, err := c.doWithRetry(ctx, path, query)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	return nil
}
