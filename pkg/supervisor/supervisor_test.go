package supervisor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matsci/orchestrator/pkg/adaptor"
	"github.com/matsci/orchestrator/pkg/bridge"
	"github.com/matsci/orchestrator/pkg/mcptool"
	"github.com/matsci/orchestrator/pkg/registry"
)

type fakeConn struct {
	tools   []mcptool.RemoteTool
	closed  bool
	openErr error
}

func (f *fakeConn) Open(ctx context.Context) error { return f.openErr }
func (f *fakeConn) ListTools(ctx context.Context) ([]mcptool.RemoteTool, error) {
	return f.tools, nil
}
func (f *fakeConn) CallTool(ctx context.Context, remoteName string, args map[string]any) (mcptool.CallResult, error) {
	return mcptool.CallResult{Content: []mcptool.ContentPart{{Type: "text", Text: "ok:" + remoteName}}}, nil
}
func (f *fakeConn) Close() error { f.closed = true; return nil }

func newTestSupervisor(t *testing.T, conn *fakeConn) (*Supervisor, *registry.ToolDirectory, *bridge.Bridge) {
	br := bridge.New(0)
	t.Cleanup(br.Stop)
	dir := registry.NewToolDirectory()
	ad := adaptor.New(adaptor.Config{WorkspaceRoot: t.TempDir()})
	sup := New(br, dir, ad, WithDialer(func(name string, params mcptool.Params) (mcptool.Connection, error) {
		return conn, nil
	}))
	return sup, dir, br
}

func TestE2EStdioServerAddRemove(t *testing.T) {
	conn := &fakeConn{tools: []mcptool.RemoteTool{
		{Name: "a", InputSchema: map[string]any{"properties": map[string]any{}}},
		{Name: "b", InputSchema: map[string]any{"properties": map[string]any{}}},
	}}
	sup, dir, _ := newTestSupervisor(t, conn)

	require.NoError(t, sup.AddServer(context.Background(), "s", mcptool.Params{Transport: mcptool.TransportStdio, Command: "echo_tool", Args: []string{"--n=2"}}, nil))

	require.ElementsMatch(t, []string{"s_a", "s_b"}, dir.Names())

	require.NoError(t, sup.RemoveServer("s"))
	require.Empty(t, dir.Names())
	require.True(t, conn.closed)
}

func TestAddServerAlreadyExists(t *testing.T) {
	conn := &fakeConn{}
	sup, _, _ := newTestSupervisor(t, conn)

	require.NoError(t, sup.AddServer(context.Background(), "s", mcptool.Params{}, nil))
	err := sup.AddServer(context.Background(), "s", mcptool.Params{}, nil)
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestAddServerFailurePurgesState(t *testing.T) {
	failing := &fakeConn{openErr: errAlways{}}
	sup, _, _ := newTestSupervisor(t, failing)

	err := sup.AddServer(context.Background(), "s", mcptool.Params{}, nil)
	require.Error(t, err)
	require.Empty(t, sup.ServerNames())
}

type errAlways struct{}

func (errAlways) Error() string { return "boom" }

func TestRemoveServerNotFound(t *testing.T) {
	sup, _, _ := newTestSupervisor(t, &fakeConn{})
	err := sup.RemoveServer("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCleanupIsBestEffort(t *testing.T) {
	conn := &fakeConn{tools: []mcptool.RemoteTool{{Name: "a"}}}
	sup, dir, _ := newTestSupervisor(t, conn)

	require.NoError(t, sup.AddServer(context.Background(), "s1", mcptool.Params{}, nil))
	require.NoError(t, sup.AddServer(context.Background(), "s2", mcptool.Params{}, nil))

	require.NoError(t, sup.Cleanup())
	require.Empty(t, dir.Names())
	require.Empty(t, sup.ServerNames())
}

func TestAllowlistFiltersProjectedTools(t *testing.T) {
	conn := &fakeConn{tools: []mcptool.RemoteTool{{Name: "a"}, {Name: "b"}}}
	sup, dir, _ := newTestSupervisor(t, conn)

	require.NoError(t, sup.AddServer(context.Background(), "s", mcptool.Params{}, []string{"a"}))
	require.ElementsMatch(t, []string{"s_a"}, dir.Names())
}

func TestInvokeComposesAdaptorAndConnection(t *testing.T) {
	conn := &fakeConn{tools: []mcptool.RemoteTool{
		{Name: "echo", InputSchema: map[string]any{"properties": map[string]any{}}},
	}}
	sup, dir, _ := newTestSupervisor(t, conn)
	require.NoError(t, sup.AddServer(context.Background(), "s", mcptool.Params{}, nil))

	obs, meta, err := dir.Invoke(context.Background(), "s_echo", []byte(`{"x":1}`))
	require.NoError(t, err)
	require.Equal(t, "ok:echo", obs.Text)
	require.Equal(t, "s", meta.OriginServer)
}
