package mcptool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func jsonRPCHandler(t *testing.T, handlers map[string]func(id int) any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req jsonRPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		h, ok := handlers[req.Method]
		require.True(t, ok, "unexpected method %s", req.Method)

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("mcp-session-id", "sess-1")
		resp := jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: h(req.ID)}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}
}

func TestHTTPConnectionOpenListCall(t *testing.T) {
	srv := httptest.NewServer(jsonRPCHandler(t, map[string]func(int) any{
		"initialize": func(int) any { return map[string]any{"ok": true} },
		"tools/list": func(int) any {
			return map[string]any{
				"tools": []any{
					map[string]any{
						"name":        "echo",
						"description": "echoes input",
						"inputSchema": map[string]any{"type": "object", "properties": map[string]any{}},
					},
				},
			}
		},
		"tools/call": func(int) any {
			return map[string]any{
				"content": []any{map[string]any{"type": "text", "text": "hello"}},
			}
		},
	}))
	defer srv.Close()

	conn := newHTTPConnection("s", Params{Transport: TransportHTTP, URL: srv.URL})
	ctx := context.Background()

	require.NoError(t, conn.Open(ctx))

	tools, err := conn.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	require.Equal(t, "echo", tools[0].Name)

	result, err := conn.CallTool(ctx, "echo", map[string]any{"x": 1})
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Equal(t, "hello", result.Content[0].Text)

	require.NoError(t, conn.Close())
}

func TestHTTPConnectionPropagatesRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jsonRPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		resp := jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Error: &jsonRPCError{Code: -32000, Message: "boom"}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	conn := newHTTPConnection("s", Params{Transport: TransportHTTP, URL: srv.URL})
	err := conn.Open(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
}

func TestHTTPConnectionNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "nope")
	}))
	defer srv.Close()

	conn := newHTTPConnection("s", Params{Transport: TransportHTTP, URL: srv.URL, MaxRetries: 1})
	err := conn.Open(context.Background())
	require.Error(t, err)
}
