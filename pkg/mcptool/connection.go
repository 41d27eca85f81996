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

// Package mcptool implements one transport-specific client per tool-provider
// server: stdio subprocess (via mark3labs/mcp-go) or HTTP/SSE/streamable-http
// (a small retrying JSON-RPC client). Both satisfy the same Connection
// contract the supervisor drives.
package mcptool

import (
	"context"
)

// RemoteTool describes one tool as advertised by a provider, before the
// supervisor prefixes it with the server name to form a qualified name.
type RemoteTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ContentPart is one element of a call_tool result. Exactly one of Text,
// JSON, or ImageData/ImageMIME is populated, matching the four shapes the
// protocol allows: a text part, a bare JSON object, an image part, or a
// plain string (represented here as Text too).
type ContentPart struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	JSON      map[string]any `json:"json,omitempty"`
	ImageData string         `json:"image_data,omitempty"`
	ImageMIME string         `json:"image_mime,omitempty"`
}

// CallResult is the outcome of call_tool: a sequence of content parts and
// whether the provider itself reported an error (isError).
type CallResult struct {
	Content []ContentPart
	IsError bool
}

// Connection is the transport-specific client contract from spec §4.B.
// Close must be idempotent; the supervisor is the only caller permitted to
// invoke it, and only after unwinding its scoped acquisition.
type Connection interface {
	Open(ctx context.Context) error
	ListTools(ctx context.Context) ([]RemoteTool, error)
	CallTool(ctx context.Context, remoteName string, args map[string]any) (CallResult, error)
	Close() error
}

// Transport identifies which wire protocol a server uses.
type Transport string

const (
	TransportStdio          Transport = "stdio"
	TransportHTTP           Transport = "http"
	TransportSSE            Transport = "sse"
	TransportStreamableHTTP Transport = "streamable-http"
)

// Params configures a Connection regardless of transport; only the fields
// relevant to the chosen Transport are read.
type Params struct {
	Transport Transport

	// stdio
	Command string
	Args    []string
	Env     map[string]string

	// http / sse / streamable-http
	URL        string
	Headers    map[string]string
	MaxRetries int
	SSETimeout int // seconds; 0 uses the package default
}

// Dial constructs the appropriate Connection for p.Transport. It does not
// open the connection; callers invoke Open separately so the supervisor
// fiber can bind open/close to its own scoped acquisition.
func Dial(name string, p Params) (Connection, error) {
	if p.Transport == TransportStdio {
		return newStdioConnection(name, p), nil
	}
	return newHTTPConnection(name, p), nil
}
