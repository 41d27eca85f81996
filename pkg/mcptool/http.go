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

package mcptool

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/matsci/orchestrator/pkg/httpclient"
	"github.com/matsci/orchestrator/pkg/orcherr"
)

const defaultSSETimeout = 5 * time.Minute

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonRPCError `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// httpConnection speaks JSON-RPC over a long-lived HTTPS connection
// (SSE/streamable-http). A response sent as an event stream is read up to
// its first complete JSON-RPC event; no stream is held open for
// server-initiated messages, and later events are not read.
// Session identity is carried via the mcp-session-id header; requests go
// through pkg/httpclient so transient connection resets and the status codes
// httpclient retries (408, 429, 500, 502, 503, 504) are retried with backoff
// before surfacing as a TransportError.
type httpConnection struct {
	name   string
	params Params
	client *httpclient.Client

	sessionMu sync.RWMutex
	sessionID string
}

func newHTTPConnection(name string, p Params) *httpConnection {
	if p.MaxRetries == 0 {
		p.MaxRetries = 3
	}
	if p.SSETimeout == 0 {
		p.SSETimeout = int(defaultSSETimeout / time.Second)
	}
	return &httpConnection{name: name, params: p}
}

func (c *httpConnection) Open(ctx context.Context) error {
	c.client = httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
		httpclient.WithMaxRetries(c.params.MaxRetries),
		httpclient.WithBaseDelay(2*time.Second),
	)

	resp, err := c.request(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"clientInfo":      map[string]any{"name": "orchestrator", "version": "1.0.0"},
		"capabilities":    map[string]any{},
	})
	if err != nil {
		return orcherr.Transport(c.name, "initialize http MCP session", err)
	}
	if resp.Error != nil {
		return orcherr.Protocol(c.name, "initialize error: "+resp.Error.Message, nil)
	}
	return nil
}

func (c *httpConnection) ListTools(ctx context.Context) ([]RemoteTool, error) {
	resp, err := c.request(ctx, "tools/list", nil)
	if err != nil {
		return nil, orcherr.Transport(c.name, "list_tools failed", err)
	}
	if resp.Error != nil {
		return nil, orcherr.Protocol(c.name, "list_tools error: "+resp.Error.Message, nil)
	}

	resultMap, ok := resp.Result.(map[string]any)
	if !ok {
		return nil, orcherr.Protocol(c.name, "list_tools: unexpected result shape", nil)
	}
	rawTools, ok := resultMap["tools"].([]any)
	if !ok {
		return nil, orcherr.Protocol(c.name, "list_tools: missing tools array", nil)
	}

	out := make([]RemoteTool, 0, len(rawTools))
	for _, raw := range rawTools {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		desc, _ := m["description"].(string)
		var schema map[string]any
		if s, ok := m["inputSchema"].(map[string]any); ok {
			schema = s
		}
		out = append(out, RemoteTool{Name: name, Description: desc, InputSchema: schema})
	}
	return out, nil
}

func (c *httpConnection) CallTool(ctx context.Context, remoteName string, args map[string]any) (CallResult, error) {
	resp, err := c.request(ctx, "tools/call", map[string]any{"name": remoteName, "arguments": args})
	if err != nil {
		return CallResult{}, orcherr.Transport(c.name, fmt.Sprintf("call_tool %s", remoteName), err)
	}
	if resp.Error != nil {
		return CallResult{
			IsError: true,
			Content: []ContentPart{{Type: "text", Text: resp.Error.Message}},
		}, nil
	}

	resultMap, ok := resp.Result.(map[string]any)
	if !ok {
		return CallResult{Content: []ContentPart{{Type: "json", JSON: map[string]any{"result": resp.Result}}}}, nil
	}

	result := CallResult{}
	if isErr, _ := resultMap["isError"].(bool); isErr {
		result.IsError = true
	}
	if content, ok := resultMap["content"].([]any); ok {
		for _, raw := range content {
			cm, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if cm["type"] == "text" {
				if text, ok := cm["text"].(string); ok {
					result.Content = append(result.Content, ContentPart{Type: "text", Text: text})
				}
			}
		}
	}
	return result, nil
}

func (c *httpConnection) Close() error {
	c.client = nil
	return nil
}

func (c *httpConnection) request(ctx context.Context, method string, params any) (*jsonRPCResponse, error) {
	reqBody, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.params.URL, strings.NewReader(string(reqBody)))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	for k, v := range c.params.Headers {
		httpReq.Header.Set(k, v)
	}

	c.sessionMu.RLock()
	sessionID := c.sessionID
	c.sessionMu.RUnlock()
	if sessionID != "" {
		httpReq.Header.Set("mcp-session-id", sessionID)
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if newSessionID := httpResp.Header.Get("mcp-session-id"); newSessionID != "" {
		c.sessionMu.Lock()
		c.sessionID = newSessionID
		c.sessionMu.Unlock()
	}

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("http status %d: %s", httpResp.StatusCode, string(body))
	}

	if strings.Contains(httpResp.Header.Get("Content-Type"), "text/event-stream") {
		return c.readSSE(httpResp)
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var resp jsonRPCResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &resp, nil
}

// readSSE reads the first complete JSON-RPC event from an SSE body, with a
// per-connection timeout so a stalled server can't hang the bridge loop.
func (c *httpConnection) readSSE(httpResp *http.Response) (*jsonRPCResponse, error) {
	type outcome struct {
		resp *jsonRPCResponse
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		defer httpResp.Body.Close()
		reader := bufio.NewReader(httpResp.Body)
		var data strings.Builder

		flush := func() (*jsonRPCResponse, bool) {
			if data.Len() == 0 {
				return nil, false
			}
			var resp jsonRPCResponse
			if err := json.Unmarshal([]byte(data.String()), &resp); err != nil {
				data.Reset()
				return nil, false
			}
			return &resp, true
		}

		for {
			line, err := reader.ReadBytes('\n')
			trimmed := strings.TrimSpace(string(line))
			if trimmed == "" && err == nil {
				if resp, ok := flush(); ok {
					done <- outcome{resp: resp}
					return
				}
				continue
			}
			if strings.HasPrefix(trimmed, "data:") {
				data.WriteString(strings.TrimSpace(strings.TrimPrefix(trimmed, "data:")))
			}
			if err != nil {
				if resp, ok := flush(); ok {
					done <- outcome{resp: resp}
					return
				}
				done <- outcome{err: fmt.Errorf("sse stream ended without a complete message")}
				return
			}
		}
	}()

	select {
	case o := <-done:
		return o.resp, o.err
	case <-time.After(time.Duration(c.params.SSETimeout) * time.Second):
		return nil, fmt.Errorf("timeout reading sse response after %ds", c.params.SSETimeout)
	}
}
