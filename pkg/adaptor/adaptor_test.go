package adaptor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	uploaded []string
}

func (f *fakeUploader) Upload(ctx context.Context, localPath string) (string, error) {
	f.uploaded = append(f.uploaded, localPath)
	return fmt.Sprintf("https://bucket.h/x/%s", filepath.Base(localPath)), nil
}

func newTestAdaptor(t *testing.T, uploader Uploader) (*Adaptor, string) {
	ws := t.TempDir()
	a := New(Config{
		WorkspaceRoot:     ws,
		Uploader:          uploader,
		StorageDescriptor: map[string]any{"endpoint": "https://store.example", "bucket": "b"},
		Executor: ExecutorPolicy{
			SyncTools: map[string]bool{"local_tool": true},
			Template:  map[string]any{"type": "bohrium", "machine": "c2_m4_cpu"},
		},
	})
	return a, ws
}

func TestResolvePathRewrite(t *testing.T) {
	up := &fakeUploader{}
	a, ws := newTestAdaptor(t, up)

	require.NoError(t, os.WriteFile(filepath.Join(ws, "ok.cif"), []byte("data"), 0o644))

	effective, err := a.Resolve(context.Background(), Request{
		QualifiedName: "calc_optimize_structure",
		OriginServer:  "calc",
		RemoteName:    "optimize_structure",
		InputSchema:   map[string]any{"properties": map[string]any{}},
		RawArgs:       map[string]any{"input_structure": "/workspace/ok.cif"},
	})
	require.NoError(t, err)
	require.Equal(t, "https://bucket.h/x/ok.cif", effective["input_structure"])
	require.NotNil(t, effective["executor"])
	require.NotNil(t, effective["storage"])
	require.Len(t, up.uploaded, 1)
}

func TestResolveIdempotentOnExistingURL(t *testing.T) {
	up := &fakeUploader{}
	a, _ := newTestAdaptor(t, up)

	effective, err := a.Resolve(context.Background(), Request{
		RemoteName:  "optimize_structure",
		InputSchema: map[string]any{"properties": map[string]any{}},
		RawArgs:     map[string]any{"input_structure": "https://bucket.h/x/ok.cif"},
	})
	require.NoError(t, err)
	require.Equal(t, "https://bucket.h/x/ok.cif", effective["input_structure"])
	require.Empty(t, up.uploaded)
}

func TestResolveMissingFileIsFatal(t *testing.T) {
	up := &fakeUploader{}
	a, _ := newTestAdaptor(t, up)

	_, err := a.Resolve(context.Background(), Request{
		RemoteName:  "optimize_structure",
		InputSchema: map[string]any{"properties": map[string]any{}},
		RawArgs:     map[string]any{"input_structure": "/workspace/missing.cif"},
	})
	require.Error(t, err)
}

func TestResolveSyncToolGetsExecutorNone(t *testing.T) {
	up := &fakeUploader{}
	a, _ := newTestAdaptor(t, up)

	effective, err := a.Resolve(context.Background(), Request{
		RemoteName:  "local_tool",
		InputSchema: map[string]any{"properties": map[string]any{}},
		RawArgs:     map[string]any{},
	})
	require.NoError(t, err)
	require.Equal(t, "none", effective["executor"])
}

func TestResolveUnionsHandTableAndSchemaHeuristic(t *testing.T) {
	up := &fakeUploader{}
	a, ws := newTestAdaptor(t, up)
	require.NoError(t, os.WriteFile(filepath.Join(ws, "extra.pdb"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ws, "ok.cif"), []byte("data"), 0o644))

	effective, err := a.Resolve(context.Background(), Request{
		RemoteName: "optimize_structure", // hand table: input_structure
		InputSchema: map[string]any{
			"properties": map[string]any{
				"extra_file_path": map[string]any{"description": "path to an extra file"},
			},
		},
		RawArgs: map[string]any{"input_structure": "/workspace/ok.cif", "extra_file_path": "/workspace/extra.pdb"},
	})
	require.NoError(t, err)
	require.Equal(t, "https://bucket.h/x/ok.cif", effective["input_structure"])
	require.Equal(t, "https://bucket.h/x/extra.pdb", effective["extra_file_path"])
}

func TestResolveDenylistedSchemaKeyNeverTreatedAsPath(t *testing.T) {
	up := &fakeUploader{}
	a, _ := newTestAdaptor(t, up)

	effective, err := a.Resolve(context.Background(), Request{
		RemoteName: "some_tool",
		InputSchema: map[string]any{
			"properties": map[string]any{
				"output_file": map[string]any{"description": "output file path"},
			},
		},
		RawArgs: map[string]any{"output_file": "relative/out.txt"},
	})
	require.NoError(t, err)
	require.Equal(t, "relative/out.txt", effective["output_file"])
}

func TestResolveServerAllowlistSkipsOtherServers(t *testing.T) {
	up := &fakeUploader{}
	ws := t.TempDir()
	a := New(Config{
		WorkspaceRoot:   ws,
		Uploader:        up,
		ServerAllowlist: map[string]bool{"calc": true},
	})

	raw := map[string]any{"input_structure": "/workspace/missing.cif"}
	effective, err := a.Resolve(context.Background(), Request{
		OriginServer: "other",
		RemoteName:   "optimize_structure",
		RawArgs:      raw,
	})
	require.NoError(t, err)
	require.Equal(t, raw["input_structure"], effective["input_structure"])
}
