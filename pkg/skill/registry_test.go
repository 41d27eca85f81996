package skill

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeSkill(t *testing.T, dir, name, skillType, description string, scripts map[string]string) string {
	t.Helper()
	skillDir := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(skillDir, 0o755))

	content := "---\n" +
		"name: " + name + "\n" +
		"description: " + description + "\n" +
		"skill_type: " + skillType + "\n" +
		"---\n" +
		"# " + name + "\n\nBody text.\n"
	require.NoError(t, os.WriteFile(filepath.Join(skillDir, Filename), []byte(content), 0o644))

	if len(scripts) > 0 {
		scriptsDir := filepath.Join(skillDir, "scripts")
		require.NoError(t, os.MkdirAll(scriptsDir, 0o755))
		for name, body := range scripts {
			require.NoError(t, os.WriteFile(filepath.Join(scriptsDir, name), []byte(body), 0o755))
		}
	}
	return skillDir
}

func TestDiscoverAndGet(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "relax-structure", "operator", "Relax a crystal structure with DFT", map[string]string{
		"run.py": "print('relax')",
	})
	writeSkill(t, root, "phonon-theory", "knowledge", "Background on phonon dispersion analysis", nil)

	reg := NewRegistry(root)
	require.NoError(t, reg.Discover())

	e, ok := reg.Get("relax-structure")
	require.True(t, ok)
	require.Equal(t, TypeOperator, e.SkillType)
	require.Len(t, e.Scripts, 1)

	_, ok = reg.Get("does-not-exist")
	require.False(t, ok)
}

func TestSearchBySubstring(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "relax-structure", "operator", "Relax a crystal structure with DFT", nil)
	writeSkill(t, root, "phonon-theory", "knowledge", "Background on phonon dispersion analysis", nil)

	reg := NewRegistry(root)
	require.NoError(t, reg.Discover())

	results := reg.Search("phonon")
	require.Len(t, results, 1)
	require.Equal(t, "phonon-theory", results[0].Name)

	results = reg.Search("dft")
	require.Len(t, results, 1)
	require.Equal(t, "relax-structure", results[0].Name)

	require.Empty(t, reg.Search("nonexistent-topic"))
}

func TestDiscoverSkipsInvalidSkillDirectories(t *testing.T) {
	root := t.TempDir()
	badDir := filepath.Join(root, "broken")
	require.NoError(t, os.MkdirAll(badDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(badDir, Filename), []byte("not valid front matter"), 0o644))

	writeSkill(t, root, "good-skill", "knowledge", "A valid skill", nil)

	reg := NewRegistry(root)
	require.NoError(t, reg.Discover())

	require.Len(t, reg.List(), 1)
	_, ok := reg.Get("good-skill")
	require.True(t, ok)
}
