package transaction

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"pyrename/internal/core/errors"
	"pyrename/internal/engine/parser"
	"pyrename/internal/engine/planner"
	"pyrename/internal/engine/verify"
)

// FileChange is one edited file: the bytes read from the workspace and the
// bytes that will replace them.
type FileChange struct {
	Path     string
	AbsPath  string
	Original []byte
	Updated  []byte
	Hash     uint64
	Mode     os.FileMode
	Edits    int
}

// Snapshot is the private working area of one transaction. It holds copies of
// exactly the edited files under FilesDir.
type Snapshot struct {
	ID       string
	Dir      string
	FilesDir string
	Changes  []*FileChange
}

func (s *Snapshot) Target(projectRoot string) verify.Target {
	files := make([]string, len(s.Changes))
	for i, c := range s.Changes {
		files[i] = c.Path
	}
	return verify.Target{
		ProjectRoot: projectRoot,
		FilesDir:    s.FilesDir,
		ScratchDir:  s.Dir,
		Files:       files,
	}
}

// release removes the snapshot directory. Safe to call more than once.
func (s *Snapshot) release() error {
	if s == nil || s.Dir == "" {
		return nil
	}
	err := os.RemoveAll(s.Dir)
	s.Dir = ""
	return err
}

func createSnapshot(ctx context.Context, id, root, base string, workers int, plan *planner.Plan) (*Snapshot, error) {
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.CodeApplyFailed, "create snapshot base")
	}
	snap := &Snapshot{ID: id, Dir: filepath.Join(base, "pyrename-"+id)}
	snap.FilesDir = filepath.Join(snap.Dir, "files")
	if err := os.MkdirAll(snap.FilesDir, 0o700); err != nil {
		return nil, errors.Wrap(err, errors.CodeApplyFailed, "create snapshot")
	}

	byFile := plan.ByFile()
	files := plan.Report.AffectedFiles()
	snap.Changes = make([]*FileChange, len(files))

	eg, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		eg.SetLimit(workers)
	}
	for i, rel := range files {
		i, rel := i, rel
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			change, err := snapshotFile(root, snap.FilesDir, rel, byFile[rel])
			if err != nil {
				return err
			}
			snap.Changes[i] = change
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		_ = snap.release()
		return nil, err
	}
	return snap, nil
}

func snapshotFile(root, filesDir, rel string, edits []planner.Edit) (*FileChange, error) {
	abs := filepath.Join(root, filepath.FromSlash(rel))
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeApplyFailed, "stat source file"), errors.CtxPath, rel)
	}
	original, err := os.ReadFile(abs)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeApplyFailed, "read source file"), errors.CtxPath, rel)
	}
	updated, err := ApplyEdits(rel, original, edits)
	if err != nil {
		return nil, err
	}

	dst := filepath.Join(filesDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
		return nil, fmt.Errorf("create snapshot dir for %s: %w", rel, err)
	}
	if err := os.WriteFile(dst, updated, info.Mode().Perm()); err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeApplyFailed, "write snapshot file"), errors.CtxPath, rel)
	}
	return &FileChange{
		Path:     rel,
		AbsPath:  abs,
		Original: original,
		Updated:  updated,
		Hash:     parser.HashContent(original),
		Mode:     info.Mode().Perm(),
		Edits:    len(edits),
	}, nil
}
