package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type ResolvedPaths struct {
	ProjectRoot string
	SourceRoots []string // slash-separated, relative to ProjectRoot
	SnapshotDir string
	HistoryPath string
}

// ResolvePaths anchors relative configuration paths. root is the project root
// chosen by the caller; an empty root means the configured project.root, or
// the nearest directory above cwd holding a project marker.
func ResolvePaths(cfg *Config, root, cwd string) (ResolvedPaths, error) {
	if strings.TrimSpace(cwd) == "" {
		return ResolvedPaths{}, fmt.Errorf("cwd must not be empty")
	}

	projectRoot := strings.TrimSpace(root)
	if projectRoot == "" {
		projectRoot = strings.TrimSpace(cfg.Project.Root)
	}
	if projectRoot != "" {
		projectRoot = ResolveRelative(cwd, projectRoot)
	} else {
		detected, err := DetectProjectRoot([]string{cwd})
		if err != nil {
			return ResolvedPaths{}, err
		}
		projectRoot = detected
	}
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		return ResolvedPaths{}, err
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return ResolvedPaths{}, fmt.Errorf("project root %q is not a directory", abs)
	}

	resolved := ResolvedPaths{ProjectRoot: abs}
	for _, sr := range cfg.Project.SourceRoots {
		clean := filepath.ToSlash(filepath.Clean(sr))
		if clean == "." {
			clean = ""
		}
		resolved.SourceRoots = append(resolved.SourceRoots, clean)
	}
	if dir := strings.TrimSpace(cfg.Snapshot.Dir); dir != "" {
		resolved.SnapshotDir = ResolveRelative(abs, dir)
	}
	resolved.HistoryPath = ResolveRelative(abs, cfg.History.Path)
	return resolved, nil
}

func ResolveRelative(base, value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw)
	}
	return filepath.Clean(filepath.Join(base, raw))
}

// DetectProjectRoot walks up from each candidate looking for a Python project
// marker, falling back to the working directory.
func DetectProjectRoot(candidates []string) (string, error) {
	markers := []string{
		FileName,
		"pyproject.toml",
		"setup.py",
		"setup.cfg",
		".git",
	}

	for _, candidate := range candidates {
		if strings.TrimSpace(candidate) == "" {
			continue
		}

		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		root := abs
		if info, err := os.Stat(abs); err == nil && !info.IsDir() {
			root = filepath.Dir(abs)
		}

		for {
			for _, marker := range markers {
				if _, err := os.Stat(filepath.Join(root, marker)); err == nil {
					return filepath.Clean(root), nil
				}
			}
			parent := filepath.Dir(root)
			if parent == root {
				break
			}
			root = parent
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Clean(cwd), nil
}
