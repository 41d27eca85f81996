package registry

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matsci/orchestrator/pkg/mcptool"
)

func TestToolDirectoryRegisterGetInvoke(t *testing.T) {
	dir := NewToolDirectory()
	desc := DescriptorFromRemote("s", mcptool.RemoteTool{Name: "a", Description: "tool a"})
	require.Equal(t, "s_a", desc.QualifiedName)

	err := dir.Register(desc, func(ctx context.Context, raw json.RawMessage) (Observation, Meta, error) {
		return Observation{Text: "ok"}, Meta{OriginServer: "s", RemoteName: "a"}, nil
	})
	require.NoError(t, err)

	got, invoke, ok := dir.Get("s_a")
	require.True(t, ok)
	require.Equal(t, "tool a", got.Description)

	obs, meta, err := invoke(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "ok", obs.Text)
	require.Equal(t, "s", meta.OriginServer)
}

func TestToolDirectoryRegisterIdempotent(t *testing.T) {
	dir := NewToolDirectory()
	desc := DescriptorFromRemote("s", mcptool.RemoteTool{Name: "a"})
	require.NoError(t, dir.Register(desc, noopInvoke))
	require.Error(t, dir.Register(desc, noopInvoke))
}

func TestToolDirectoryAddRemovePairLeavesSetUnchanged(t *testing.T) {
	dir := NewToolDirectory()
	before := dir.Count()

	desc := DescriptorFromRemote("s", mcptool.RemoteTool{Name: "a"})
	require.NoError(t, dir.Register(desc, noopInvoke))
	dir.RemoveServer("s")

	require.Equal(t, before, dir.Count())
}

func TestToolDirectoryRemoveServerOnlyRemovesItsTools(t *testing.T) {
	dir := NewToolDirectory()
	require.NoError(t, dir.Register(DescriptorFromRemote("s1", mcptool.RemoteTool{Name: "a"}), noopInvoke))
	require.NoError(t, dir.Register(DescriptorFromRemote("s2", mcptool.RemoteTool{Name: "b"}), noopInvoke))

	dir.RemoveServer("s1")

	_, _, ok := dir.Get("s1_a")
	require.False(t, ok)
	_, _, ok = dir.Get("s2_b")
	require.True(t, ok)
}

func TestToolDirectoryInvokeUnknownTool(t *testing.T) {
	dir := NewToolDirectory()
	_, _, err := dir.Invoke(context.Background(), "missing", nil)
	require.Error(t, err)
}

func noopInvoke(ctx context.Context, raw json.RawMessage) (Observation, Meta, error) {
	return Observation{}, Meta{}, nil
}
