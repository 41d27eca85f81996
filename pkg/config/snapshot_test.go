package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matsci/orchestrator/pkg/rundir"
)

func TestWriteSnapshot(t *testing.T) {
	dir, err := rundir.New(t.TempDir())
	require.NoError(t, err)

	effective := map[string]any{
		"mode":     "planner",
		"max_turns": 20,
	}
	require.NoError(t, WriteSnapshot(dir, effective))

	data, err := os.ReadFile(dir.ConfigSnapshotPath())
	require.NoError(t, err)
	require.Contains(t, string(data), "mode: planner")
}
