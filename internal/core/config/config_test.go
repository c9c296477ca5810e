package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, []string{"."}, cfg.Project.SourceRoots)
	assert.True(t, cfg.Analysis.Strict())
	assert.Positive(t, cfg.Analysis.Workers)
	assert.Equal(t, 50, cfg.Risk.MaxFiles)
	assert.Equal(t, 500, cfg.Risk.MaxEdits)
	assert.Equal(t, "syntax", cfg.Verify.DefaultLevel)
	assert.Equal(t, 5*time.Minute, cfg.Verify.Timeout)
	assert.Contains(t, cfg.Exclude.Dirs, ".venv")
	assert.NoError(t, Validate(cfg))
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
[project]
source_roots = ["src"]

[exclude]
dirs = [".git", "fixtures/**"]
files = ["*_pb2.py"]

[analysis]
workers = 3
strict_reexports = false

[risk]
max_files = 10

[verify]
default_level = "tests"
timeout = "30s"
tests_command = ["pytest", "-q"]

[watch]
debounce = "1s"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"src"}, cfg.Project.SourceRoots)
	assert.Equal(t, []string{".git", "fixtures/**"}, cfg.Exclude.Dirs)
	assert.Equal(t, 3, cfg.Analysis.Workers)
	assert.False(t, cfg.Analysis.Strict())
	assert.Equal(t, 10, cfg.Risk.MaxFiles)
	assert.Equal(t, 500, cfg.Risk.MaxEdits)
	assert.Equal(t, 30*time.Second, cfg.Verify.Timeout)
	assert.Equal(t, []string{"pytest", "-q"}, cfg.Verify.TestsCommand)
	assert.Equal(t, time.Second, cfg.Watch.Debounce)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"unknown key":      "[analysis]\nworkerz = 2\n",
		"bad level":        "[verify]\ndefault_level = \"lint\"\n",
		"missing command":  "[verify]\ndefault_level = \"typecheck\"\n",
		"escaping root":    "[project]\nsource_roots = [\"../other\"]\n",
		"duplicate root":   "[project]\nsource_roots = [\"src\", \"src/\"]\n",
		"bad glob":         "[exclude]\nfiles = [\"[a-\"]\n",
		"version":          "version = 3\n",
		"malformed toml":   "[risk\n",
		"too many workers": "[analysis]\nworkers = 1000\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, t.TempDir(), content))
			assert.Error(t, err)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PYRENAME_RISK_MAX_EDITS", "42")
	t.Setenv("PYRENAME_ANALYSIS_STRICT_REEXPORTS", "false")
	t.Setenv("PYRENAME_VERIFY_TESTS_COMMAND", "python -m pytest -x")
	t.Setenv("PYRENAME_PROJECT_SOURCE_ROOTS", "src, lib")
	t.Setenv("PYRENAME_WATCH_DEBOUNCE", "bogus")

	cfg := DefaultConfig()
	ApplyEnvOverrides(cfg)
	assert.Equal(t, 42, cfg.Risk.MaxEdits)
	assert.False(t, cfg.Analysis.Strict())
	assert.Equal(t, []string{"python", "-m", "pytest", "-x"}, cfg.Verify.TestsCommand)
	assert.Equal(t, []string{"src", "lib"}, cfg.Project.SourceRoots)
	assert.Equal(t, 300*time.Millisecond, cfg.Watch.Debounce)
}

func TestLoadProject(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "[risk]\nmax_files = 7\n")
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("PYRENAME_RISK_MAX_EDITS=9\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("PYRENAME_RISK_MAX_EDITS") })

	cfg, err := LoadProject(root, "")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Risk.MaxFiles)
	assert.Equal(t, 9, cfg.Risk.MaxEdits)

	empty, err := LoadProject(t.TempDir(), "")
	require.NoError(t, err)
	assert.Equal(t, 50, empty.Risk.MaxFiles)
}

func TestResolvePaths(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "pyproject.toml"), nil, 0o644))
	nested := filepath.Join(root, "src", "pkg")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	cfg := DefaultConfig()
	cfg.Project.SourceRoots = []string{".", "src/"}
	cfg.Snapshot.Dir = ".pyrename/snapshots"

	resolved, err := ResolvePaths(cfg, "", nested)
	require.NoError(t, err)
	want, _ := filepath.EvalSymlinks(root)
	got, _ := filepath.EvalSymlinks(resolved.ProjectRoot)
	assert.Equal(t, want, got)
	assert.Equal(t, []string{"", "src"}, resolved.SourceRoots)
	assert.Equal(t, filepath.Join(resolved.ProjectRoot, ".pyrename", "snapshots"), resolved.SnapshotDir)
	assert.Equal(t, filepath.Join(resolved.ProjectRoot, ".pyrename", "history.db"), resolved.HistoryPath)

	_, err = ResolvePaths(cfg, filepath.Join(root, "missing"), root)
	assert.Error(t, err)
}
