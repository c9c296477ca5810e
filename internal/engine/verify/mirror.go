package verify

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BuildMirror lays out a tree under ScratchDir that looks like the project
// with the edits applied: directories on the path to an edited file are real,
// edited files are copies from FilesDir and every other entry is a symlink
// into the project. Commands can then run against it without touching the
// workspace.
func BuildMirror(t Target) (string, error) {
	edited := make(map[string]bool, len(t.Files))
	ancestors := make(map[string]bool)
	for _, f := range t.Files {
		rel := filepath.FromSlash(f)
		edited[rel] = true
		for d := filepath.Dir(rel); d != "." && d != string(filepath.Separator); d = filepath.Dir(d) {
			ancestors[d] = true
		}
	}
	root := filepath.Join(t.ScratchDir, "mirror")
	if err := os.RemoveAll(root); err != nil {
		return "", err
	}
	if err := mirrorDir(t, root, ".", edited, ancestors); err != nil {
		return "", err
	}
	return root, nil
}

func mirrorDir(t Target, root, rel string, edited, ancestors map[string]bool) error {
	if err := os.MkdirAll(filepath.Join(root, rel), 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(filepath.Join(t.ProjectRoot, rel))
	if err != nil {
		return err
	}
	for _, e := range entries {
		child := filepath.Join(rel, e.Name())
		src := filepath.Join(t.ProjectRoot, child)
		dst := filepath.Join(root, child)
		switch {
		case edited[child]:
			if err := copyEdited(t, child, src, dst); err != nil {
				return err
			}
		case ancestors[child] && e.IsDir():
			if err := mirrorDir(t, root, child, edited, ancestors); err != nil {
				return err
			}
		case within(src, t.ScratchDir):
			// The snapshot area lives inside the project; never link it into itself.
		default:
			if err := os.Symlink(src, dst); err != nil {
				return fmt.Errorf("link %s: %w", child, err)
			}
		}
	}
	return nil
}

func copyEdited(t Target, rel, src, dst string) error {
	content, err := os.ReadFile(filepath.Join(t.FilesDir, rel))
	if err != nil {
		return err
	}
	mode := os.FileMode(0o644)
	if info, err := os.Stat(src); err == nil {
		mode = info.Mode().Perm()
	}
	return os.WriteFile(dst, content, mode)
}

// within reports whether path is dir or lies below it.
func within(dir, path string) bool {
	dir, _ = filepath.Abs(dir)
	path, _ = filepath.Abs(path)
	if dir == path {
		return true
	}
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}
