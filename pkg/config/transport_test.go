package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadTransportConfigStdio(t *testing.T) {
	raw := []byte(`{"mcpServers": {"s": {"command": "echo_tool", "args": ["--n=2"]}}}`)
	cfg, err := LoadTransportConfig(raw, "/tmp/run/workspaces")
	require.NoError(t, err)
	require.Len(t, cfg.MCPServers, 1)
	s := cfg.MCPServers["s"]
	require.True(t, s.IsStdio())
	require.Equal(t, "echo_tool", s.Command)
	require.Equal(t, []string{"--n=2"}, s.Args)
}

func TestLoadTransportConfigHTTP(t *testing.T) {
	raw := []byte(`{"mcpServers": {"h": {"transport": "http", "url": "https://tools.example/mcp"}}}`)
	cfg, err := LoadTransportConfig(raw, "/tmp/run/workspaces")
	require.NoError(t, err)
	s := cfg.MCPServers["h"]
	require.False(t, s.IsStdio())
	require.Equal(t, "https://tools.example/mcp", s.URL)
}

func TestLoadTransportConfigPlaceholderSubstitution(t *testing.T) {
	raw := []byte(`{"mcpServers": {"s": {"command": "tool", "env": {"WORKDIR": "__EVOMASTER_WORKSPACES__"}}}}`)
	cfg, err := LoadTransportConfig(raw, "/tmp/run-xyz/workspaces")
	require.NoError(t, err)
	require.Equal(t, "/tmp/run-xyz/workspaces", cfg.MCPServers["s"].Env["WORKDIR"])
}

func TestLoadTransportConfigRejectsMissingCommand(t *testing.T) {
	raw := []byte(`{"mcpServers": {"s": {}}}`)
	_, err := LoadTransportConfig(raw, "/tmp/ws")
	require.Error(t, err)
}

func TestLoadTransportConfigRejectsMissingURL(t *testing.T) {
	raw := []byte(`{"mcpServers": {"h": {"transport": "sse"}}}`)
	_, err := LoadTransportConfig(raw, "/tmp/ws")
	require.Error(t, err)
}

func TestLoadTransportConfigInvalidJSON(t *testing.T) {
	_, err := LoadTransportConfig([]byte(`not json`), "/tmp/ws")
	require.Error(t, err)
}
