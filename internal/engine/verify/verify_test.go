package verify

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyrename/internal/core/errors"
	"pyrename/internal/engine/parser"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// fixture creates a project with one edited file staged in a snapshot area.
func fixture(t *testing.T, edited string) Target {
	t.Helper()
	project := t.TempDir()
	snap := t.TempDir()
	writeFile(t, filepath.Join(project, "pkg", "__init__.py"), "")
	writeFile(t, filepath.Join(project, "pkg", "utils.py"), "def process_data():\n    pass\n")
	writeFile(t, filepath.Join(project, "main.py"), "from pkg.utils import process_data\n")
	writeFile(t, filepath.Join(snap, "files", "pkg", "utils.py"), edited)
	return Target{
		ProjectRoot: project,
		FilesDir:    filepath.Join(snap, "files"),
		ScratchDir:  snap,
		Files:       []string{"pkg/utils.py"},
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"": LevelSyntax, "Syntax": LevelSyntax, "tests": LevelTests, " typecheck ": LevelTypecheck} {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseLevel("lint")
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))
}

func TestSyntaxLevel(t *testing.T) {
	v := New(parser.NewParser(), Options{})

	res, err := v.Verify(context.Background(), LevelSyntax, fixture(t, "def transform_data():\n    pass\n"))
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Empty(t, res.Output)

	res, err = v.Verify(context.Background(), LevelSyntax, fixture(t, "def transform_data(:\n    pass\n"))
	require.NoError(t, err)
	assert.False(t, res.Passed)
	require.NotEmpty(t, res.Diagnostics)
	assert.Equal(t, "pkg/utils.py", res.Diagnostics[0].Position.File)
	assert.Contains(t, res.Output, "pkg/utils.py:1:")
}

func TestMirrorLayout(t *testing.T) {
	target := fixture(t, "def transform_data():\n    pass\n")
	root, err := BuildMirror(target)
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(root, "pkg", "utils.py"))
	require.NoError(t, err)
	assert.Equal(t, "def transform_data():\n    pass\n", string(got))

	info, err := os.Lstat(filepath.Join(root, "main.py"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink)

	info, err = os.Lstat(filepath.Join(root, "pkg"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	original, err := os.ReadFile(filepath.Join(target.ProjectRoot, "pkg", "utils.py"))
	require.NoError(t, err)
	assert.Equal(t, "def process_data():\n    pass\n", string(original))
}

func TestCommandLevels(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	ctx := context.Background()
	target := fixture(t, "def transform_data():\n    pass\n")

	v := New(parser.NewParser(), Options{
		TestsCommand:     []string{"sh", "-c", "grep -q transform_data pkg/utils.py && echo ok"},
		TypecheckCommand: []string{"sh", "-c", "echo broken >&2; exit 3"},
	})
	res, err := v.Verify(ctx, LevelTests, target)
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, "ok\n", res.Output)

	res, err = v.Verify(ctx, LevelTypecheck, target)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, "broken\n", res.Output)
}

func TestCommandEnvironment(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	v := New(parser.NewParser(), Options{TestsCommand: []string{"sh", "-c", "echo $PYTHONDONTWRITEBYTECODE"}})
	res, err := v.Verify(context.Background(), LevelTests, fixture(t, "x = 1\n"))
	require.NoError(t, err)
	assert.Equal(t, "1\n", res.Output)
}

func TestCommandTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	v := New(parser.NewParser(), Options{
		TestsCommand: []string{"sh", "-c", "sleep 5"},
		Timeout:      100 * time.Millisecond,
	})
	res, err := v.Verify(context.Background(), LevelTests, fixture(t, "x = 1\n"))
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Output, "timed out")
}

func TestMissingCommand(t *testing.T) {
	v := New(parser.NewParser(), Options{})
	_, err := v.Verify(context.Background(), LevelTypecheck, fixture(t, "x = 1\n"))
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))
}
