package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	meta, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config key %q in %s", undecoded[0].String(), path)
	}

	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadProject loads configuration for a project root: an explicit path wins,
// then <root>/pyrename.toml, then defaults. A .env file in the root is loaded
// before environment overrides are applied; variables already set in the
// process environment are kept.
func LoadProject(root, explicit string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(root, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	path := explicit
	if path == "" {
		candidate := filepath.Join(root, FileName)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}

	cfg := DefaultConfig()
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	ApplyEnvOverrides(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if len(cfg.Project.SourceRoots) == 0 {
		cfg.Project.SourceRoots = []string{"."}
	}

	if cfg.Exclude.Dirs == nil {
		cfg.Exclude.Dirs = []string{".git", ".hg", ".venv", "venv", "__pycache__", ".tox", ".mypy_cache", "node_modules", "build", "dist", ".pyrename"}
	}

	if cfg.Analysis.Workers <= 0 {
		cfg.Analysis.Workers = defaultWorkers()
	}
	if cfg.Analysis.CacheSize <= 0 {
		cfg.Analysis.CacheSize = 4096
	}

	if cfg.Risk.MaxFiles <= 0 {
		cfg.Risk.MaxFiles = 50
	}
	if cfg.Risk.MaxEdits <= 0 {
		cfg.Risk.MaxEdits = 500
	}

	if strings.TrimSpace(cfg.Verify.DefaultLevel) == "" {
		cfg.Verify.DefaultLevel = "syntax"
	}
	if cfg.Verify.Timeout <= 0 {
		cfg.Verify.Timeout = 5 * time.Minute
	}

	if strings.TrimSpace(cfg.History.Path) == "" {
		cfg.History.Path = ".pyrename/history.db"
	}
	if strings.TrimSpace(cfg.Observability.OTLPEndpoint) == "" {
		cfg.Observability.OTLPEndpoint = "localhost:4317"
	}

	if cfg.Watch.Debounce <= 0 {
		cfg.Watch.Debounce = 300 * time.Millisecond
	}
	if cfg.Watch.MaxRate <= 0 {
		cfg.Watch.MaxRate = 2
	}
}
