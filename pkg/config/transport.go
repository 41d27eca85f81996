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

// Package config loads the MCP transport config JSON and writes the
// effective-config snapshot. Config *loading* beyond this transport shape is
// an external collaborator's concern; this package only parses the literal
// JSON shape the runtime depends on and snapshots whatever struct callers
// hand it.
package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/matsci/orchestrator/pkg/orcherr"
)

// WorkspacesPlaceholder is replaced, wherever it appears in the transport
// config JSON, with the absolute path to {run_dir}/workspaces before use.
const WorkspacesPlaceholder = "__EVOMASTER_WORKSPACES__"

// ServerConfig is one entry under "mcpServers". Exactly one of the stdio
// fields (Command) or the network fields (Transport/URL) is populated,
// depending on which transport the server uses.
type ServerConfig struct {
	// stdio
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	// http / sse / streamable-http
	Transport string            `json:"transport,omitempty"`
	URL       string            `json:"url,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`

	// ToolIncludeOnly restricts which of this server's tools are projected
	// into the registry, by remote name. Empty/absent means every tool the
	// server advertises is included, per the original's tool_include_only.
	ToolIncludeOnly []string `json:"tool_include_only,omitempty"`
}

// IsStdio reports whether this server is configured for stdio transport
// (no explicit Transport value, or Transport == "stdio").
func (s ServerConfig) IsStdio() bool {
	return s.Transport == "" || s.Transport == "stdio"
}

// TransportConfig is the top-level `{"mcpServers": {...}}` document.
type TransportConfig struct {
	MCPServers map[string]ServerConfig `json:"mcpServers"`
}

// LoadTransportConfig parses raw transport config JSON and substitutes
// WorkspacesPlaceholder with workspacesDir everywhere it occurs.
func LoadTransportConfig(raw []byte, workspacesDir string) (*TransportConfig, error) {
	substituted := strings.ReplaceAll(string(raw), WorkspacesPlaceholder, workspacesDir)

	var cfg TransportConfig
	if err := json.Unmarshal([]byte(substituted), &cfg); err != nil {
		return nil, orcherr.Configuration("parse transport config", err)
	}
	for name, server := range cfg.MCPServers {
		if !server.IsStdio() && server.URL == "" {
			return nil, orcherr.Configuration(
				fmt.Sprintf("server %q: transport %q requires url", name, server.Transport), nil)
		}
		if server.IsStdio() && server.Command == "" {
			return nil, orcherr.Configuration(fmt.Sprintf("server %q: stdio transport requires command", name), nil)
		}
	}
	return &cfg, nil
}
