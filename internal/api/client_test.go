package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/brmarket-history/internal/version"
)

// TestNewClient tests client construction with various options.
func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("https://www.anbima.com.br/")

		if c.baseURL != "https://www.anbima.com.br" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "https://www.anbima.com.br")
		}
		if c.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 30*time.Second)
		}
		if c.maxRetries != 3 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 3)
		}
		if c.retryBackoff != time.Second {
			t.Errorf("retryBackoff = %v, want %v", c.retryBackoff, time.Second)
		}
		if c.limiter != nil {
			t.Error("limiter should be nil by default")
		}
		if c.userAgent != version.UserAgent() {
			t.Errorf("userAgent = %q, want %q", c.userAgent, version.UserAgent())
		}
	})

	t.Run("with timeout option", func(t *testing.T) {
		c := NewClient("https://example.com", WithTimeout(5*time.Second))
		if c.httpClient.Timeout != 5*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 5*time.Second)
		}
	})

	t.Run("zero timeout keeps default", func(t *testing.T) {
		c := NewClient("https://example.com", WithTimeout(0))
		if c.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 30*time.Second)
		}
	})

	t.Run("with retries option", func(t *testing.T) {
		c := NewClient("https://example.com", WithRetries(5, 2*time.Second))
		if c.maxRetries != 5 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 5)
		}
		if c.retryBackoff != 2*time.Second {
			t.Errorf("retryBackoff = %v, want %v", c.retryBackoff, 2*time.Second)
		}
	})

	t.Run("with rate limit option", func(t *testing.T) {
		c := NewClient("https://example.com", WithRateLimit(2, 0))
		if c.limiter == nil {
			t.Fatal("limiter not set")
		}
		if c.limiter.Burst() != 1 {
			t.Errorf("Burst = %d, want 1", c.limiter.Burst())
		}

		c = NewClient("https://example.com", WithRateLimit(0, 5))
		if c.limiter != nil {
			t.Error("non-positive rate should disable the limiter")
		}
	})

	t.Run("with logger option", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		c := NewClient("https://example.com", WithLogger(logger))
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
	})

	t.Run("with custom HTTP client", func(t *testing.T) {
		customClient := &http.Client{Timeout: 10 * time.Second}
		c := NewClient("https://example.com", WithHTTPClient(customClient))
		if c.httpClient != customClient {
			t.Error("custom HTTP client not set")
		}
	})
}

// TestAPIError tests the APIError type.
func TestAPIError(t *testing.T) {
	t.Run("Error method", func(t *testing.T) {
		err := &APIError{StatusCode: 404, Message: "Not Found"}
		expected := "provider error 404: Not Found"
		if err.Error() != expected {
			t.Errorf("Error() = %q, want %q", err.Error(), expected)
		}
		if !err.IsNotFound() {
			t.Error("IsNotFound() = false, want true")
		}
	})

	t.Run("IsRetryable", func(t *testing.T) {
		tests := []struct {
			code     int
			expected bool
		}{
			{500, true},
			{502, true},
			{503, true},
			{429, true},
			{400, false},
			{403, false},
			{404, false},
			{499, false},
		}

		for _, tt := range tests {
			err := &APIError{StatusCode: tt.code}
			if got := err.IsRetryable(); got != tt.expected {
				t.Errorf("IsRetryable() for status %d = %v, want %v", tt.code, got, tt.expected)
			}
		}
	})
}

// TestDoRequest tests a single request.
func TestDoRequest(t *testing.T) {
	t.Run("successful request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/informacoes/merc-sec/arqs/ms250813.txt" {
				t.Errorf("path = %q", r.URL.Path)
			}
			if got := r.Header.Get("User-Agent"); got != "brhist-test" {
				t.Errorf("User-Agent = %q, want %q", got, "brhist-test")
			}
			w.Write([]byte("ANBIMA@body"))
		}))
		defer server.Close()

		c := NewClient(server.URL, WithUserAgent("brhist-test"))
		body, err := c.doRequest(context.Background(), "/informacoes/merc-sec/arqs/ms250813.txt", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != "ANBIMA@body" {
			t.Errorf("body = %q, want %q", string(body), "ANBIMA@body")
		}
	})

	t.Run("request with query parameters", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("Mercadoria"); got != "DI1" {
				t.Errorf("Mercadoria = %q, want %q", got, "DI1")
			}
			if got := r.URL.Query().Get("Data"); got != "13/08/2025" {
				t.Errorf("Data = %q, want %q", got, "13/08/2025")
			}
			w.Write([]byte(`<html></html>`))
		}))
		defer server.Close()

		c := NewClient(server.URL)
		query := url.Values{"Mercadoria": {"DI1"}, "Data": {"13/08/2025"}}
		if _, err := c.doRequest(context.Background(), "/x", query); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("4xx error returns APIError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`arquivo nao encontrado`))
		}))
		defer server.Close()

		c := NewClient(server.URL)
		_, err := c.doRequest(context.Background(), "/missing", nil)
		if err == nil {
			t.Fatal("expected error, got nil")
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if apiErr.StatusCode != 404 {
			t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, 404)
		}
		if !strings.Contains(string(apiErr.Body), "nao encontrado") {
			t.Errorf("Body should contain 'nao encontrado', got %q", string(apiErr.Body))
		}
		if !strings.HasSuffix(apiErr.URL, "/missing") {
			t.Errorf("URL = %q, want suffix /missing", apiErr.URL)
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
		}))
		defer server.Close()

		c := NewClient(server.URL)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := c.doRequest(ctx, "/test", nil)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error should wrap context.Canceled, got %v", err)
		}
	})
}

// TestDoWithRetry tests the retry logic.
func TestDoWithRetry(t *testing.T) {
	t.Run("retries on 5xx and succeeds", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&attempts, 1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(`ok`))
		}))
		defer server.Close()

		c := NewClient(server.URL, WithRetries(3, 10*time.Millisecond))
		body, err := c.Get(context.Background(), "/test", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != "ok" {
			t.Errorf("body = %q, want %q", string(body), "ok")
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("retries on 429 and succeeds", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&attempts, 1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Write([]byte(`ok`))
		}))
		defer server.Close()

		c := NewClient(server.URL, WithRetries(3, 10*time.Millisecond))
		if _, err := c.Get(context.Background(), "/test", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if attempts != 2 {
			t.Errorf("attempts = %d, want 2", attempts)
		}
	})

	t.Run("does not retry on 4xx", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		c := NewClient(server.URL, WithRetries(3, 10*time.Millisecond))
		_, err := c.Get(context.Background(), "/test", nil)
		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.IsNotFound() {
			t.Fatalf("expected not-found APIError, got %v", err)
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})

	t.Run("max retries exceeded", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		c := NewClient(server.URL, WithRetries(2, 10*time.Millisecond))
		_, err := c.Get(context.Background(), "/test", nil)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "max retries exceeded") {
			t.Errorf("error should contain 'max retries exceeded', got %v", err)
		}
		// 1 initial + 2 retries = 3 attempts
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("retries on transport error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`ok`))
		}))
		defer server.Close()

		rt := &flakyTransport{failures: 2, next: http.DefaultTransport}
		c := NewClient(server.URL,
			WithHTTPClient(&http.Client{Transport: rt}),
			WithRetries(3, 10*time.Millisecond),
		)
		body, err := c.Get(context.Background(), "/test", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != "ok" {
			t.Errorf("body = %q, want %q", string(body), "ok")
		}
		if got := rt.calls.Load(); got != 3 {
			t.Errorf("calls = %d, want 3", got)
		}
	})

	t.Run("transport error exhausts retries", func(t *testing.T) {
		rt := &flakyTransport{failures: 100}
		c := NewClient("http://provider.invalid",
			WithHTTPClient(&http.Client{Transport: rt}),
			WithRetries(2, 10*time.Millisecond),
		)
		_, err := c.Get(context.Background(), "/test", nil)
		if err == nil || !strings.Contains(err.Error(), "max retries exceeded") {
			t.Fatalf("err = %v, want max retries exceeded", err)
		}
		if got := rt.calls.Load(); got != 3 {
			t.Errorf("calls = %d, want 3", got)
		}
	})

	t.Run("negative retry settings do not panic", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		c := NewClient(server.URL, WithRetries(-1, -time.Second))
		if _, err := c.Get(context.Background(), "/test", nil); err == nil {
			t.Fatal("expected error, got nil")
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})

	t.Run("context cancellation during retry", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		c := NewClient(server.URL, WithRetries(5, time.Second))
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := c.Get(ctx, "/test", nil)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want context.DeadlineExceeded", err)
		}
	})
}

// flakyTransport fails the first failures round trips with a connection
// error, then delegates to next.
type flakyTransport struct {
	failures int32
	calls    atomic.Int32
	next     http.RoundTripper
}

func (f *flakyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, errors.New("connection reset by peer")
	}
	return f.next.RoundTrip(r)
}

// TestGetJSON tests JSON decoding.
func TestGetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"titulo":"IPCA"}]}`))
	}))
	defer server.Close()

	var out struct {
		Items []struct {
			Titulo string `json:"titulo"`
		} `json:"items"`
	}
	c := NewClient(server.URL)
	if err := c.GetJSON(context.Background(), "/calendario/", nil, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Items) != 1 || out.Items[0].Titulo != "IPCA" {
		t.Errorf("items = %+v", out.Items)
	}

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer bad.Close()

	if err := NewClient(bad.URL).GetJSON(context.Background(), "/", nil, &out); err == nil {
		t.Error("expected unmarshal error, got nil")
	}
}

// TestRateLimit checks that the limiter paces consecutive requests.
func TestRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`ok`))
	}))
	defer server.Close()

	c := NewClient(server.URL, WithRateLimit(20, 1))
	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := c.Get(context.Background(), "/", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	// Two waits of 50ms each after the first token.
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 80ms", elapsed)
	}
}
