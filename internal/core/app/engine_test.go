package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyrename/internal/core/config"
	"pyrename/internal/core/errors"
	"pyrename/internal/data/history"
	"pyrename/internal/engine/parser"
	"pyrename/internal/engine/transaction"
	"pyrename/internal/engine/verify"
)

var scenario = map[string]string{
	"pkg/utils.py": `"""Utilities."""
import os

def process_data():
    return os.getcwd()
`,
	"pkg/__init__.py": `from .utils import process_data

__all__ = ["process_data"]
`,
	"main.py": `from pkg import process_data

result = process_data()
`,
}

type memoryJournal struct {
	mu      sync.Mutex
	entries []history.Entry
}

func (j *memoryJournal) Record(entry history.Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
	return nil
}

func (j *memoryJournal) last(t *testing.T) history.Entry {
	t.Helper()
	j.mu.Lock()
	defer j.mu.Unlock()
	require.NotEmpty(t, j.entries)
	return j.entries[len(j.entries)-1]
}

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func readProject(t *testing.T, root string, files map[string]string) map[string]string {
	t.Helper()
	out := make(map[string]string, len(files))
	for rel := range files {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		require.NoError(t, err)
		out[rel] = string(data)
	}
	return out
}

func newEngine(t *testing.T, root string, tweak func(*config.Config)) (*Engine, *memoryJournal) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Analysis.Workers = 2
	cfg.Snapshot.Dir = t.TempDir()
	if tweak != nil {
		tweak(cfg)
	}
	paths, err := config.ResolvePaths(cfg, root, root)
	require.NoError(t, err)
	journal := &memoryJournal{}
	e, err := New(Options{Config: cfg, Paths: paths, Journal: journal})
	require.NoError(t, err)
	return e, journal
}

func renameRequest(newName string) Request {
	return Request{
		Position: parser.Position{File: "pkg/utils.py", Line: 4, Column: 5},
		NewName:  newName,
	}
}

func TestAnalyzeReportsImpact(t *testing.T) {
	root := writeProject(t, scenario)
	e, journal := newEngine(t, root, nil)

	out, err := e.Analyze(context.Background(), renameRequest("transform_data"))
	require.NoError(t, err)
	require.NotNil(t, out.Report)

	r := out.Report
	assert.Equal(t, "process_data", r.Symbol.Name)
	assert.Equal(t, "pkg.utils", r.Symbol.Module)
	assert.Equal(t, 3, r.FilesAffected)
	assert.Equal(t, 5, r.EditsEstimated)
	assert.Equal(t, []string{"main.py", "pkg/__init__.py", "pkg/utils.py"}, r.AffectedFiles())
	assert.Equal(t, transaction.StatePlanned, out.State)
	assert.Empty(t, journal.entries, "analyze is not journaled")

	assert.Equal(t, scenario, readProject(t, root, scenario))
}

func TestAnalyzePreviewComputesContents(t *testing.T) {
	root := writeProject(t, scenario)
	e, _ := newEngine(t, root, nil)

	req := renameRequest("transform_data")
	req.Preview = true
	out, err := e.Analyze(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, out.Changes, 3)
	assert.Equal(t, "main.py", out.Changes[0].Path)
	assert.Equal(t, scenario["main.py"], string(out.Changes[0].Original))
	assert.Equal(t, "from pkg import transform_data\n\nresult = transform_data()\n", string(out.Changes[0].Updated))
	assert.Equal(t, 2, out.Changes[0].Edits)

	assert.Equal(t, scenario, readProject(t, root, scenario))
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	root := writeProject(t, scenario)
	e, _ := newEngine(t, root, nil)

	first, err := e.Analyze(context.Background(), renameRequest("transform_data"))
	require.NoError(t, err)
	second, err := e.Analyze(context.Background(), renameRequest("transform_data"))
	require.NoError(t, err)
	assert.Equal(t, first.Report, second.Report)
	assert.Equal(t, first.Edits, second.Edits)
}

func TestAnalyzeAcceptsAbsolutePosition(t *testing.T) {
	root := writeProject(t, scenario)
	e, _ := newEngine(t, root, nil)

	req := renameRequest("transform_data")
	req.Position.File = filepath.Join(root, "main.py")
	req.Position.Line, req.Position.Column = 3, 10
	out, err := e.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "pkg.utils", out.Report.Symbol.Module)
}

func TestAnalyzeRejectsBadRequests(t *testing.T) {
	root := writeProject(t, scenario)
	e, _ := newEngine(t, root, nil)

	tests := []struct {
		name string
		req  Request
		code errors.ErrorCode
	}{
		{
			name: "keyword",
			req:  renameRequest("class"),
			code: errors.CodeValidationError,
		},
		{
			name: "not an identifier",
			req:  renameRequest("2fast"),
			code: errors.CodeValidationError,
		},
		{
			name: "same name",
			req:  renameRequest("process_data"),
			code: errors.CodeValidationError,
		},
		{
			name: "outside root",
			req:  Request{Position: parser.Position{File: filepath.Join(filepath.Dir(root), "x.py"), Line: 1, Column: 1}, NewName: "y"},
			code: errors.CodeValidationError,
		},
		{
			name: "no symbol",
			req:  Request{Position: parser.Position{File: "pkg/utils.py", Line: 3, Column: 1}, NewName: "y"},
			code: errors.CodeSymbolNotFound,
		},
		{
			name: "external symbol",
			req:  Request{Position: parser.Position{File: "pkg/utils.py", Line: 5, Column: 15}, NewName: "y"},
			code: errors.CodeSymbolNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Analyze(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.CodeOf(err))
		})
	}
}

func TestDryRunLeavesWorkspaceUntouched(t *testing.T) {
	root := writeProject(t, scenario)
	e, journal := newEngine(t, root, nil)

	out, err := e.DryRun(context.Background(), renameRequest("transform_data"))
	require.NoError(t, err)
	require.NotNil(t, out.Verification)
	assert.True(t, out.Verification.Passed)
	assert.Equal(t, verify.LevelSyntax, out.Verification.Level)
	assert.Equal(t, transaction.StateVerified, out.State)
	require.Len(t, out.Changes, 3)
	assert.Contains(t, string(out.Changes[0].Updated), "transform_data")

	assert.Equal(t, scenario, readProject(t, root, scenario))
	entry := journal.last(t)
	assert.Equal(t, "dry-run", entry.Command)
	assert.Equal(t, out.ID, entry.ID)
	assert.Equal(t, "verified", entry.State)
}

func TestApplyCommitsRename(t *testing.T) {
	root := writeProject(t, scenario)
	e, journal := newEngine(t, root, nil)

	out, err := e.Apply(context.Background(), renameRequest("transform_data"))
	require.NoError(t, err)
	assert.Equal(t, transaction.StateCommitted, out.State)

	assert.Equal(t, map[string]string{
		"pkg/utils.py": `"""Utilities."""
import os

def transform_data():
    return os.getcwd()
`,
		"pkg/__init__.py": `from .utils import transform_data

__all__ = ["transform_data"]
`,
		"main.py": `from pkg import transform_data

result = transform_data()
`,
	}, readProject(t, root, scenario))

	entry := journal.last(t)
	assert.Equal(t, "apply", entry.Command)
	assert.Equal(t, "committed", entry.State)
	assert.Equal(t, "process_data", entry.Symbol)
	assert.Equal(t, 3, entry.FilesAffected)
	assert.Empty(t, entry.Error)

	// The index was invalidated, so the new name resolves right away.
	again, err := e.Analyze(context.Background(), Request{
		Position: parser.Position{File: "main.py", Line: 3, Column: 10},
		NewName:  "process_data",
	})
	require.NoError(t, err)
	assert.Equal(t, "transform_data", again.Report.Symbol.Name)
}

func TestApplyVerificationFailureKeepsWorkspace(t *testing.T) {
	root := writeProject(t, scenario)
	e, journal := newEngine(t, root, func(cfg *config.Config) {
		cfg.Verify.TestsCommand = []string{"sh", "-c", "echo 'boom' >&2; exit 3"}
	})

	req := renameRequest("transform_data")
	req.Level = verify.LevelTests
	out, err := e.Apply(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeVerificationFailed))
	assert.Equal(t, 5, errors.ExitCode(err))
	require.NotNil(t, out.Verification)
	assert.False(t, out.Verification.Passed)
	assert.Contains(t, out.Verification.Output, "boom")
	assert.Equal(t, transaction.StateVerificationFailed, out.State)

	assert.Equal(t, scenario, readProject(t, root, scenario))
	entry := journal.last(t)
	assert.Equal(t, "verification_failed", entry.State)
	assert.Equal(t, "tests", entry.Level)
	assert.NotEmpty(t, entry.Error)
}

func TestApplyLargePlanNeedsConfirmation(t *testing.T) {
	root := writeProject(t, scenario)
	e, _ := newEngine(t, root, func(cfg *config.Config) {
		cfg.Risk.MaxFiles = 1
	})

	out, err := e.Apply(context.Background(), renameRequest("transform_data"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeConfirmationRequired))
	assert.Equal(t, 2, errors.ExitCode(err))
	assert.True(t, out.Report.NeedsConfirmation())
	assert.Equal(t, scenario, readProject(t, root, scenario))

	req := renameRequest("transform_data")
	req.Confirmed = true
	out, err = e.Apply(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, transaction.StateCommitted, out.State)
}

func TestIndexReusesUnchangedTrees(t *testing.T) {
	root := writeProject(t, scenario)
	e, _ := newEngine(t, root, nil)
	ctx := context.Background()

	g1, err := e.Index().Graph(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, e.Index().Cached())

	g2, err := e.Index().Graph(ctx)
	require.NoError(t, err)
	assert.Same(t, g1, g2)

	main := filepath.Join(root, "main.py")
	require.NoError(t, os.WriteFile(main, []byte("from pkg import process_data\nprocess_data()\nprocess_data()\n"), 0o644))
	e.Index().Invalidate(main)

	g3, err := e.Index().Graph(ctx)
	require.NoError(t, err)
	assert.NotSame(t, g1, g3)
	before, _ := g1.ModuleByName("pkg.utils")
	after, _ := g3.ModuleByName("pkg.utils")
	assert.Same(t, before.Tree, after.Tree, "unchanged module reuses its cached tree")

	out, err := e.Analyze(ctx, renameRequest("transform_data"))
	require.NoError(t, err)
	assert.Equal(t, 6, out.Report.EditsEstimated)
}

func TestIndexHonoursExcludes(t *testing.T) {
	files := map[string]string{
		"app.py":                 "def run():\n    pass\n",
		"venv/lib/site.py":       "from app import run\nrun()\n",
		"tests/fixtures/copy.py": "from app import run\nrun()\n",
		"gen/api_pb2.py":         "from app import run\n",
		"use.py":                 "from app import run\nrun()\n",
	}
	root := writeProject(t, files)
	e, _ := newEngine(t, root, func(cfg *config.Config) {
		cfg.Exclude.Dirs = append(cfg.Exclude.Dirs, "tests/fixtures")
		cfg.Exclude.Files = []string{"*_pb2.py"}
	})

	out, err := e.Analyze(context.Background(), Request{
		Position: parser.Position{File: "app.py", Line: 1, Column: 5},
		NewName:  "start",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"app.py", "use.py"}, out.Report.AffectedFiles())
}

func TestWatchReanalysesOnChange(t *testing.T) {
	root := writeProject(t, scenario)
	e, _ := newEngine(t, root, func(cfg *config.Config) {
		cfg.Watch.Debounce = 50 * time.Millisecond
		cfg.Watch.MaxRate = 100
	})

	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan *Outcome, 4)
	done := make(chan error, 1)
	go func() {
		done <- e.Watch(ctx, renameRequest("transform_data"), func(out *Outcome, err error) {
			if err == nil {
				results <- out
			}
		})
	}()

	select {
	case out := <-results:
		assert.Equal(t, 5, out.Report.EditsEstimated)
	case <-time.After(5 * time.Second):
		t.Fatal("no initial analysis")
	}

	// Give the watcher time to register before changing a file.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.py"),
		[]byte("from pkg import process_data\n\nresult = process_data()\nagain = process_data()\n"), 0o644))

	select {
	case out := <-results:
		assert.Equal(t, 6, out.Report.EditsEstimated)
	case <-time.After(5 * time.Second):
		t.Fatal("no re-analysis after change")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
