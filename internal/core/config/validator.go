package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// Validate checks a configuration after defaults have been applied.
func Validate(cfg *Config) error {
	if err := validateVersion(cfg); err != nil {
		return err
	}
	if err := validateProject(cfg); err != nil {
		return err
	}
	if err := validateExclude(cfg); err != nil {
		return err
	}
	if err := validateAnalysis(cfg); err != nil {
		return err
	}
	if err := validateVerify(cfg); err != nil {
		return err
	}
	return validateObservability(cfg)
}

func validateVersion(cfg *Config) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported config version %d; supported version is 1", cfg.Version)
	}
	return nil
}

func validateProject(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Project.SourceRoots))
	for i, root := range cfg.Project.SourceRoots {
		clean := filepath.ToSlash(filepath.Clean(strings.TrimSpace(root)))
		if clean == "" {
			return fmt.Errorf("project.source_roots[%d] must not be empty", i)
		}
		if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
			return fmt.Errorf("project.source_roots[%d] must be relative to the project root, got %q", i, root)
		}
		if seen[clean] {
			return fmt.Errorf("duplicate project.source_roots entry %q", root)
		}
		seen[clean] = true
	}
	return nil
}

func validateExclude(cfg *Config) error {
	for field, patterns := range map[string][]string{"exclude.dirs": cfg.Exclude.Dirs, "exclude.files": cfg.Exclude.Files} {
		for _, p := range patterns {
			if strings.TrimSpace(p) == "" {
				return fmt.Errorf("%s entries must not be empty", field)
			}
			if _, err := glob.Compile(p, '/'); err != nil {
				return fmt.Errorf("%s: invalid pattern %q: %w", field, p, err)
			}
		}
	}
	return nil
}

func validateAnalysis(cfg *Config) error {
	if cfg.Analysis.Workers > 256 {
		return fmt.Errorf("analysis.workers must be at most 256, got %d", cfg.Analysis.Workers)
	}
	if cfg.Risk.MaxFiles < 1 || cfg.Risk.MaxEdits < 1 {
		return fmt.Errorf("risk thresholds must be positive")
	}
	return nil
}

func validateVerify(cfg *Config) error {
	switch strings.ToLower(strings.TrimSpace(cfg.Verify.DefaultLevel)) {
	case "syntax", "tests", "typecheck":
	default:
		return fmt.Errorf("verify.default_level must be one of: syntax, tests, typecheck")
	}
	if cfg.Verify.DefaultLevel == "tests" && len(cfg.Verify.TestsCommand) == 0 {
		return fmt.Errorf("verify.tests_command is required when verify.default_level=tests")
	}
	if cfg.Verify.DefaultLevel == "typecheck" && len(cfg.Verify.TypecheckCommand) == 0 {
		return fmt.Errorf("verify.typecheck_command is required when verify.default_level=typecheck")
	}
	return nil
}

func validateObservability(cfg *Config) error {
	if cfg.Observability.Tracing && strings.TrimSpace(cfg.Observability.OTLPEndpoint) == "" {
		return fmt.Errorf("observability.otlp_endpoint must not be empty when tracing is enabled")
	}
	return nil
}
