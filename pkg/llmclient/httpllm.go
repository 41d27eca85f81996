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

// Package llmclient is the minimal concrete binding for the language-model
// client spec §1 treats as an external black box (query(dialog) -> reply).
// No model SDK lives in this pack for that out-of-scope concern, so this
// package speaks a small HTTP/JSON contract to whatever model-serving
// endpoint the deployment points it at, reusing the teacher's retrying
// pkg/httpclient transport rather than a bare net/http call.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/matsci/orchestrator/pkg/agent"
	"github.com/matsci/orchestrator/pkg/httpclient"
	"github.com/matsci/orchestrator/pkg/orcherr"
	"github.com/matsci/orchestrator/pkg/planner"
)

// Client satisfies both agent.LLM and planner.LLM against one HTTP
// endpoint: POST a JSON request body, receive a JSON reply.
type Client struct {
	endpoint string
	apiKey   string
	http     *httpclient.Client
}

// New constructs a Client. endpoint is the full URL of the model-serving
// request handler; apiKey (may be empty) is sent as a Bearer token.
func New(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 120 * time.Second}),
			httpclient.WithMaxRetries(3),
			httpclient.WithBaseDelay(2*time.Second),
		),
	}
}

type dialogRequest struct {
	Messages agent.Dialog `json:"messages"`
}

type dialogReply struct {
	Content   string           `json:"content"`
	ToolCalls []agent.ToolCall `json:"tool_calls,omitempty"`
}

// Query implements agent.LLM: the full dialog goes out, a reply with
// optional tool calls comes back.
func (c *Client) Query(ctx context.Context, dialog agent.Dialog) (agent.Reply, error) {
	var reply dialogReply
	if err := c.post(ctx, dialogRequest{Messages: dialog}, &reply); err != nil {
		return agent.Reply{}, err
	}
	return agent.Reply{Content: reply.Content, ToolCalls: reply.ToolCalls}, nil
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

type promptReply struct {
	Text string `json:"text"`
}

// QueryText implements planner.LLM: a single prompt string goes out, plain
// text comes back (the planner extracts its own JSON from it).
func (c *Client) QueryText(ctx context.Context, prompt string) (string, error) {
	var reply promptReply
	if err := c.post(ctx, promptRequest{Prompt: prompt}, &reply); err != nil {
		return "", err
	}
	return reply.Text, nil
}

func (c *Client) post(ctx context.Context, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("llmclient: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("llmclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return orcherr.Transport("llm", "request failed", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return orcherr.Protocol("llm", "decode reply", err)
	}
	return nil
}

var _ agent.LLM = (*Client)(nil)

// PlannerAdapter exposes a *Client as a planner.LLM, whose Query signature
// (single prompt string in, text out) differs from agent.LLM's — Go allows
// only one method named Query per type, so the planner-facing shape lives
// on this thin wrapper instead of Client itself.
type PlannerAdapter struct {
	*Client
}

// Query implements planner.LLM.
func (a PlannerAdapter) Query(ctx context.Context, prompt string) (string, error) {
	return a.Client.QueryText(ctx, prompt)
}

var _ planner.LLM = PlannerAdapter{}
