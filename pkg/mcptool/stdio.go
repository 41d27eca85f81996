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
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/matsci/orchestrator/pkg/orcherr"
)

const protocolVersion = "2024-11-05"

// stdioConnection speaks to a tool-provider subprocess over newline-
// delimited JSON-RPC via mark3labs/mcp-go's stdio client.
type stdioConnection struct {
	name   string
	params Params

	mu     sync.Mutex
	client *client.Client
}

func newStdioConnection(name string, p Params) *stdioConnection {
	return &stdioConnection{name: name, params: p}
}

func (c *stdioConnection) Open(ctx context.Context) error {
	env := make([]string, 0, len(c.params.Env))
	for k, v := range c.params.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	mcpClient, err := client.NewStdioMCPClient(c.params.Command, env, c.params.Args...)
	if err != nil {
		return orcherr.Transport(c.name, "spawn stdio subprocess", err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return orcherr.Transport(c.name, "start stdio subprocess", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "orchestrator", Version: "1.0.0"}
	initReq.Params.ProtocolVersion = protocolVersion

	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return orcherr.Transport(c.name, "initialize stdio MCP session", err)
	}

	c.mu.Lock()
	c.client = mcpClient
	c.mu.Unlock()
	return nil
}

func (c *stdioConnection) ListTools(ctx context.Context) ([]RemoteTool, error) {
	c.mu.Lock()
	cli := c.client
	c.mu.Unlock()
	if cli == nil {
		return nil, orcherr.Transport(c.name, "list_tools on closed connection", nil)
	}

	resp, err := cli.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, orcherr.Protocol(c.name, "list_tools failed", err)
	}

	out := make([]RemoteTool, 0, len(resp.Tools))
	for _, t := range resp.Tools {
		out = append(out, RemoteTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schemaToMap(t.InputSchema),
		})
	}
	return out, nil
}

func (c *stdioConnection) CallTool(ctx context.Context, remoteName string, args map[string]any) (CallResult, error) {
	c.mu.Lock()
	cli := c.client
	c.mu.Unlock()
	if cli == nil {
		return CallResult{}, orcherr.Transport(c.name, "call_tool on closed connection", nil)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = remoteName
	req.Params.Arguments = args

	resp, err := cli.CallTool(ctx, req)
	if err != nil {
		return CallResult{}, orcherr.Transport(c.name, fmt.Sprintf("call_tool %s", remoteName), err)
	}

	result := CallResult{IsError: resp.IsError}
	for _, part := range resp.Content {
		if text, ok := part.(mcp.TextContent); ok {
			result.Content = append(result.Content, ContentPart{Type: "text", Text: text.Text})
		}
	}
	return result, nil
}

func (c *stdioConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// schemaToMap round-trips an mcp.ToolInputSchema through JSON to produce a
// plain map[string]any suitable for jsonschema validation and for the
// registry's ToolDescriptor.
func schemaToMap(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
