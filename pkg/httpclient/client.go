// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httpclient is the retrying transport shared by the MCP HTTP/SSE
// connection (pkg/mcptool) and the model-serving client (pkg/llmclient):
// connection-level failures and 429/5xx responses are retried with
// exponential backoff, honoring a standard Retry-After header when the
// peer sends one. A JSON-RPC error carried inside a 200 response (an MCP
// tools/call failure, say) is not retried here — only the caller knows
// whether that's a protocol-level failure worth surfacing as-is.
package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// RetryStrategy is the outcome of classifying one attempt.
type RetryStrategy int

const (
	// NoRetry means the response (or error) should be returned as-is.
	NoRetry RetryStrategy = iota
	// Retry means the attempt failed transiently and should be repeated
	// with backoff.
	Retry
)

// Client wraps http.Client with retry and exponential backoff.
type Client struct {
	client     *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client (timeout, transport, ...).
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.client = client }
}

// WithMaxRetries sets the maximum number of retries after the first attempt.
func WithMaxRetries(max int) Option {
	return func(c *Client) { c.maxRetries = max }
}

// WithBaseDelay sets the base delay for exponential backoff.
func WithBaseDelay(delay time.Duration) Option {
	return func(c *Client) { c.baseDelay = delay }
}

// New creates a new Client with the given options.
func New(opts ...Option) *Client {
	c := &Client{
		client:     &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
		baseDelay:  2 * time.Second,
		maxDelay:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// classify decides whether an attempt is worth retrying. A transport-level
// error (subprocess/HTTP disconnect, dial failure) is always transient from
// this layer's point of view — the caller's orcherr classification happens
// above, once retries are exhausted. Among status codes, only 408, 429,
// 500, 502, 503 and 504 are retried; any other 4xx is the peer telling us
// the request itself is bad, and retrying it changes nothing.
func classify(resp *http.Response, err error) RetryStrategy {
	if err != nil {
		return Retry
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusRequestTimeout,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return Retry
	default:
		return NoRetry
	}
}

// Do executes req, retrying transient failures with exponential backoff.
// The request body is buffered up front so it can be replayed across
// attempts — MCP tools/call and tools/list bodies are small JSON-RPC
// envelopes, never streamed uploads, so buffering the whole thing is cheap.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("httpclient: read request body: %w", err)
		}
		req.Body.Close()
	}

	var resp *http.Response
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			req.ContentLength = int64(len(bodyBytes))
		}

		resp, err = c.client.Do(req)
		if classify(resp, err) == NoRetry {
			return resp, err
		}

		if attempt >= c.maxRetries {
			break
		}

		delay := retryAfter(resp)
		if delay <= 0 {
			delay = c.backoff(attempt)
		}
		slog.Warn("httpclient: retrying after transient failure",
			"method", req.Method, "url", req.URL.String(),
			"attempt", attempt+1, "max", c.maxRetries, "delay", delay, "error", err)
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(delay)
	}

	if err != nil {
		return nil, &RetryableError{StatusCode: statusCode(resp), Err: err}
	}
	return resp, &RetryableError{
		StatusCode: statusCode(resp),
		Err:        fmt.Errorf("max retries (%d) exceeded", c.maxRetries),
	}
}

func statusCode(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

// retryAfter parses the standard Retry-After response header (RFC 7231) as
// either delay-seconds or an HTTP-date, returning 0 when absent or already
// elapsed so the caller falls back to its own backoff schedule.
func retryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func (c *Client) backoff(attempt int) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt))) * c.baseDelay
	jitter := time.Duration(rand.Float64() * float64(delay) * 0.1)
	return min(delay+jitter, c.maxDelay)
}

// RetryableError reports that a request ultimately failed after exhausting
// retries, carrying the last status code (0 if the failure was never a
// successfully-received response) for callers that branch on it.
type RetryableError struct {
	StatusCode int
	Err        error
}

func (e *RetryableError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("httpclient: http %d after retries: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("httpclient: %v", e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }
