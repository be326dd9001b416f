// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Configuration constants for the remote API.
const (
	// DefaultBaseURL is the remote API address used by the original deployment.
	DefaultBaseURL = "http://127.0.0.1:80/v1"

	// DefaultTimeout is the default timeout for non-streaming requests.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the default number of attempts for idempotent reads.
	DefaultMaxRetries = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024
)

var (
	// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
	sharedTransport = &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	// sharedStreamingClient has no timeout; streams are bounded by context
	// and the idle-read timeout of the protocol reader.
	sharedStreamingClient = &http.Client{Transport: sharedTransport}
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIKey     string // Optional; the local proxy injects its own key
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	Logger     *slog.Logger
}

// Client talks to the remote API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	userAgent  string
	maxRetries int
	httpClient *http.Client
	streamHTTP *http.Client
	logger     *slog.Logger
}

// New creates a Client. Zero fields of cfg take their defaults.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "difychat"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		userAgent:  cfg.UserAgent,
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{Transport: sharedTransport, Timeout: cfg.Timeout},
		streamHTTP: sharedStreamingClient,
		logger:     cfg.Logger.With("component", "gateway"),
	}
}

// WithHTTPClient replaces both underlying HTTP clients.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	c.streamHTTP = hc
	return c
}

// BaseURL returns the API base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HasAPIKey reports whether requests carry an Authorization header.
func (c *Client) HasAPIKey() bool {
	return c.apiKey != ""
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// setHeaders sets the headers every request carries.
func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	return req, nil
}

// readResponse reads the response body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// doJSON performs one request and decodes a 2xx JSON answer into out.
func (c *Client) doJSON(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}

	start := time.Now()
	c.logger.Debug("API request", "op", op, "method", method, "path", req.URL.Path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	c.logger.Debug("API response", "op", op, "status", resp.StatusCode, "duration", time.Since(start))

	raw, err := readResponse(resp)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return handleErrorResponse(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: failed to parse response: %v", ErrIncomplete, err)
	}
	return nil
}

// doWithRetry runs an idempotent doJSON with exponential backoff.
func (c *Client) doWithRetry(ctx context.Context, op, path string, query url.Values, out any) error {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := calculateBackoff(attempt)
			c.logger.Debug("retrying request", "op", op, "attempt", attempt+1, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return &TransportError{Op: op, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		err := c.doJSON(ctx, op, http.MethodGet, path, query, nil, out)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// calculateBackoff returns the delay before the given attempt: 500ms, 1s,
// 2s and so on, capped at retryMaxDelay, with up to 20% jitter.
func calculateBackoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	jitter := time.Duration(rand.Int64N(int64(delay) / 5))
	return delay + jitter
}

// normalize applies NFC so visually equal queries and names are sent
// byte-identical.
func normalize(s string) string {
	return norm.NFC.String(s)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// =============================================================================
// RAW FORWARDING
// =============================================================================

// Forward sends a request and returns the raw response for the caller to
// relay. The caller must close the body. Streaming chat requests go through
// the client without a timeout.
func (c *Client) Forward(ctx context.Context, method, path string, query url.Values, body any, streaming bool) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}
	hc := c.httpClient
	if streaming {
		req.Header.Set("Accept", "text/event-stream")
		hc = c.streamHTTP
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "forward " + path, Err: err}
	}
	return resp, nil
}
