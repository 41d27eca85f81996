package skill

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvolveRegistersPassingCandidate(t *testing.T) {
	ws := t.TempDir()
	newSkillDir := filepath.Join(ws, "new_skill")
	writeSkill(t, ws, "new_skill", "operator", "Parse a vendor-specific output format", map[string]string{
		"parse.py": "print('ok')",
	})

	reg := NewRegistry(t.TempDir())
	entry, err := Evolve(context.Background(), reg, FileSandboxTester{}, newSkillDir)
	require.NoError(t, err)
	require.Equal(t, "new_skill", entry.Name)

	got, ok := reg.Get("new_skill")
	require.True(t, ok)
	require.Equal(t, entry, got)
}

func TestEvolveRejectsOperatorSkillWithEmptyScript(t *testing.T) {
	ws := t.TempDir()
	newSkillDir := filepath.Join(ws, "new_skill")
	writeSkill(t, ws, "new_skill", "operator", "Broken operator skill", map[string]string{
		"parse.py": "",
	})

	reg := NewRegistry(t.TempDir())
	_, err := Evolve(context.Background(), reg, FileSandboxTester{}, newSkillDir)
	require.Error(t, err)

	_, ok := reg.Get("new_skill")
	require.False(t, ok, "a failing candidate must never reach the registry")
}

func TestEvolveRejectsUnparsableCandidate(t *testing.T) {
	ws := t.TempDir()
	newSkillDir := filepath.Join(ws, "new_skill")
	require.NoError(t, os.MkdirAll(newSkillDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(newSkillDir, Filename), []byte("garbage"), 0o644))

	reg := NewRegistry(t.TempDir())
	_, err := Evolve(context.Background(), reg, FileSandboxTester{}, newSkillDir)
	require.Error(t, err)
}
