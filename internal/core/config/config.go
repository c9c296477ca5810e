package config

import (
	"runtime"
	"time"
)

// FileName is the configuration file looked up in the project root.
const FileName = "pyrename.toml"

type Config struct {
	Version       int           `toml:"version"`
	Project       Project       `toml:"project"`
	Exclude       Exclude       `toml:"exclude"`
	Analysis      Analysis      `toml:"analysis"`
	Risk          Risk          `toml:"risk"`
	Verify        Verify        `toml:"verify"`
	Snapshot      Snapshot      `toml:"snapshot"`
	History       History       `toml:"history"`
	Observability Observability `toml:"observability"`
	Watch         Watch         `toml:"watch"`
}

type Project struct {
	Root string `toml:"root"`
	// SourceRoots are the directories module names are computed from,
	// relative to Root. The first matching root wins.
	SourceRoots []string `toml:"source_roots"`
}

type Exclude struct {
	Dirs  []string `toml:"dirs"`
	Files []string `toml:"files"`
}

type Analysis struct {
	Workers         int   `toml:"workers"`
	StrictReexports *bool `toml:"strict_reexports"`
	CacheSize       int   `toml:"cache_size"`
}

// Strict reports whether re-exports require the name in the export surface.
func (a Analysis) Strict() bool {
	return a.StrictReexports == nil || *a.StrictReexports
}

type Risk struct {
	MaxFiles int `toml:"max_files"`
	MaxEdits int `toml:"max_edits"`
}

type Verify struct {
	DefaultLevel     string        `toml:"default_level"`
	Timeout          time.Duration `toml:"timeout"`
	TestsCommand     []string      `toml:"tests_command"`
	TypecheckCommand []string      `toml:"typecheck_command"`
}

type Snapshot struct {
	Dir string `toml:"dir"`
}

type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type Observability struct {
	MetricsAddr  string `toml:"metrics_addr"`
	Tracing      bool   `toml:"tracing"`
	OTLPEndpoint string `toml:"otlp_endpoint"`
	OTLPInsecure bool   `toml:"otlp_insecure"`
}

type Watch struct {
	Debounce time.Duration `toml:"debounce"`
	// MaxRate caps re-analysis runs per second in watch mode.
	MaxRate float64 `toml:"max_rate"`
}

// DefaultConfig is used when the project has no pyrename.toml.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func defaultWorkers() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	return n
}
