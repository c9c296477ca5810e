package transaction

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyrename/internal/core/errors"
	"pyrename/internal/engine/parser"
	"pyrename/internal/engine/planner"
	"pyrename/internal/engine/references"
	"pyrename/internal/engine/verify"
)

var workspace = map[string]string{
	"pkg/__init__.py": "from .utils import process_data\n\n__all__ = [\"process_data\"]\n",
	"pkg/utils.py":    "\"\"\"Utilities.\"\"\"\nimport os\n\ndef process_data():\n    return os.getcwd()\n",
	"main.py":         "from pkg import process_data\n\nresult = process_data()\n",
}

func writeWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range workspace {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func readWorkspace(t *testing.T, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	require.NoError(t, filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		content, err := os.ReadFile(path)
		out[filepath.ToSlash(rel)] = string(content)
		return err
	}))
	return out
}

// planFor marks every occurrence of name in the workspace as a reference.
func planFor(t *testing.T, name, newName string) *planner.Plan {
	t.Helper()
	res := &references.Result{Symbol: references.Symbol{Name: name}}
	for _, rel := range []string{"main.py", "pkg/__init__.py", "pkg/utils.py"} {
		content := workspace[rel]
		for off := 0; ; {
			i := strings.Index(content[off:], name)
			if i < 0 {
				break
			}
			start := off + i
			res.References = append(res.References, references.Reference{
				Span: parser.Span{
					File:  rel,
					Start: parser.Position{File: rel, Offset: start},
					End:   parser.Position{File: rel, Offset: start + len(name)},
				},
				Text: name,
			})
			off = start + len(name)
		}
	}
	plan, err := planner.Build(res, newName, planner.DefaultThresholds())
	require.NoError(t, err)
	return plan
}

func begin(t *testing.T, root string, plan *planner.Plan) *Transaction {
	t.Helper()
	tx := Begin(root, plan, Options{SnapshotDir: t.TempDir(), Workers: 2})
	t.Cleanup(func() { _ = tx.Discard() })
	return tx
}

func TestApplyEditsReverseOrder(t *testing.T) {
	content := []byte("n = n + n\n")
	edits := []planner.Edit{
		{Span: parser.Span{Start: parser.Position{Offset: 0}, End: parser.Position{Offset: 1}}, Original: "n", Replacement: "count"},
		{Span: parser.Span{Start: parser.Position{Offset: 4}, End: parser.Position{Offset: 5}}, Original: "n", Replacement: "count"},
		{Span: parser.Span{Start: parser.Position{Offset: 8}, End: parser.Position{Offset: 9}}, Original: "n", Replacement: "count"},
	}
	out, err := ApplyEdits("a.py", content, edits)
	require.NoError(t, err)
	assert.Equal(t, "count = count + count\n", string(out))
	assert.Equal(t, "n = n + n\n", string(content))
}

func TestApplyEditsDetectsStaleContent(t *testing.T) {
	edits := []planner.Edit{
		{Span: parser.Span{Start: parser.Position{Offset: 0}, End: parser.Position{Offset: 1}}, Original: "n", Replacement: "m"},
	}
	_, err := ApplyEdits("a.py", []byte("x = 1\n"), edits)
	assert.True(t, errors.IsCode(err, errors.CodeApplyFailed))

	edits[0].Span.End.Offset = 40
	_, err = ApplyEdits("a.py", []byte("n = 1\n"), edits)
	assert.True(t, errors.IsCode(err, errors.CodeApplyFailed))
}

func TestCommitReplacesFiles(t *testing.T) {
	ctx := context.Background()
	root := writeWorkspace(t)
	tx := begin(t, root, planFor(t, "process_data", "transform_data"))

	require.NoError(t, tx.Snapshot(ctx))
	assert.Equal(t, StateSnapshotted, tx.State)
	require.Len(t, tx.Changes(), 3)
	snapDir := tx.snap.Dir
	assert.DirExists(t, snapDir)

	res, err := tx.Verify(ctx, verify.New(parser.NewParser(), verify.Options{}), verify.LevelSyntax)
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, StateVerified, tx.State)

	require.NoError(t, tx.Commit(ctx))
	assert.Equal(t, StateCommitted, tx.State)
	assert.NoDirExists(t, snapDir)

	after := readWorkspace(t, root)
	assert.Len(t, after, 3)
	assert.Equal(t, "from pkg import transform_data\n\nresult = transform_data()\n", after["main.py"])
	assert.Equal(t, "from .utils import transform_data\n\n__all__ = [\"transform_data\"]\n", after["pkg/__init__.py"])
	assert.Contains(t, after["pkg/utils.py"], "def transform_data():")
	assert.NotContains(t, strings.Join([]string{after["main.py"], after["pkg/utils.py"]}, ""), "process_data")
}

func TestVerificationFailureLeavesWorkspaceUntouched(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	ctx := context.Background()
	root := writeWorkspace(t)
	before := readWorkspace(t, root)

	tx := begin(t, root, planFor(t, "process_data", "transform_data"))
	require.NoError(t, tx.Snapshot(ctx))
	snapDir := tx.snap.Dir

	v := verify.New(parser.NewParser(), verify.Options{TestsCommand: []string{"sh", "-c", "echo 1 failed; exit 1"}})
	res, err := tx.Verify(ctx, v, verify.LevelTests)
	require.Error(t, err)
	assert.Equal(t, errors.ExitVerificationFailed, errors.ExitCode(err))
	assert.Equal(t, "1 failed\n", res.Output)
	assert.Equal(t, StateVerificationFailed, tx.State)

	require.Error(t, tx.Commit(ctx))
	require.NoError(t, tx.Discard())
	assert.Equal(t, StateDiscarded, tx.State)
	assert.NoDirExists(t, snapDir)
	assert.Equal(t, before, readWorkspace(t, root))
}

func TestCommitFailureRestoresReplacedFiles(t *testing.T) {
	ctx := context.Background()
	root := writeWorkspace(t)
	before := readWorkspace(t, root)

	tx := begin(t, root, planFor(t, "process_data", "transform_data"))
	require.NoError(t, tx.Snapshot(ctx))
	_, err := tx.Verify(ctx, verify.New(parser.NewParser(), verify.Options{}), verify.LevelSyntax)
	require.NoError(t, err)

	failing := tx.Changes()[1].AbsPath
	rename = func(oldpath, newpath string) error {
		if newpath == failing {
			return os.ErrPermission
		}
		return os.Rename(oldpath, newpath)
	}
	t.Cleanup(func() { rename = os.Rename })

	err = tx.Commit(ctx)
	require.Error(t, err)
	assert.Equal(t, errors.ExitApplyFailed, errors.ExitCode(err))
	assert.Equal(t, StateApplyFailed, tx.State)
	assert.Equal(t, before, readWorkspace(t, root), "replaced files restored and staged files removed")
}

func TestConcurrentModificationAbortsCommit(t *testing.T) {
	ctx := context.Background()
	root := writeWorkspace(t)
	tx := begin(t, root, planFor(t, "process_data", "transform_data"))
	require.NoError(t, tx.Snapshot(ctx))
	_, err := tx.Verify(ctx, verify.New(parser.NewParser(), verify.Options{}), verify.LevelSyntax)
	require.NoError(t, err)

	edited := filepath.Join(root, "main.py")
	require.NoError(t, os.WriteFile(edited, []byte("# changed elsewhere\n"), 0o644))
	before := readWorkspace(t, root)

	err = tx.Commit(ctx)
	assert.True(t, errors.IsCode(err, errors.CodeApplyFailed))
	assert.Equal(t, before, readWorkspace(t, root))
}

func TestStaleFileFailsSnapshot(t *testing.T) {
	root := writeWorkspace(t)
	plan := planFor(t, "process_data", "transform_data")
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.py"), []byte("x = 1\n"), 0o644))

	tx := begin(t, root, plan)
	err := tx.Snapshot(context.Background())
	assert.True(t, errors.IsCode(err, errors.CodeApplyFailed))
	assert.Equal(t, StateApplyFailed, tx.State)
}

func TestInvalidTransitions(t *testing.T) {
	tx := begin(t, writeWorkspace(t), planFor(t, "process_data", "transform_data"))
	err := tx.Commit(context.Background())
	assert.True(t, errors.IsCode(err, errors.CodeInternal))
	assert.Equal(t, StatePlanned, tx.State)
}

func TestModePreserved(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix modes")
	}
	ctx := context.Background()
	root := writeWorkspace(t)
	script := filepath.Join(root, "main.py")
	require.NoError(t, os.Chmod(script, 0o755))

	tx := begin(t, root, planFor(t, "process_data", "transform_data"))
	require.NoError(t, tx.Snapshot(ctx))
	_, err := tx.Verify(ctx, verify.New(parser.NewParser(), verify.Options{}), verify.LevelSyntax)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	info, err := os.Stat(script)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}
