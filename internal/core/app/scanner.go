package app

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"

	"github.com/gobwas/glob"

	"pyrename/internal/engine/parser"
	"pyrename/internal/shared/util"
)

// excludeMatcher tests project-relative, slash-separated paths. A pattern
// matches either the base name or the whole relative path.
type excludeMatcher struct {
	dirs  []glob.Glob
	files []glob.Glob
}

func compileExcludes(excludeDirs, excludeFiles []string) (*excludeMatcher, error) {
	m := &excludeMatcher{
		dirs:  make([]glob.Glob, 0, len(excludeDirs)),
		files: make([]glob.Glob, 0, len(excludeFiles)),
	}
	for _, p := range excludeDirs {
		g, err := glob.Compile(util.NormalizePatternPath(p), '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude dir pattern %q: %w", p, err)
		}
		m.dirs = append(m.dirs, g)
	}
	for _, p := range excludeFiles {
		g, err := glob.Compile(util.NormalizePatternPath(p), '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude file pattern %q: %w", p, err)
		}
		m.files = append(m.files, g)
	}
	return m, nil
}

func (m *excludeMatcher) dir(rel string) bool {
	return matchAny(m.dirs, rel)
}

func (m *excludeMatcher) file(rel string) bool {
	return matchAny(m.files, rel)
}

func matchAny(globs []glob.Glob, rel string) bool {
	base := path.Base(rel)
	for _, g := range globs {
		if g.Match(base) || g.Match(rel) {
			return true
		}
	}
	return false
}

// scanProject lists the Python files under root as sorted project-relative
// slash paths. Symlinks are not followed.
func scanProject(root string, ex *excludeMatcher) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && ex.dir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !parser.IsPythonPath(p) {
			return nil
		}
		if ex.file(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
