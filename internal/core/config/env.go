package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: PYRENAME_[SECTION]_[KEY] (e.g., PYRENAME_RISK_MAX_FILES).
// List values are comma separated; commands are split on whitespace.
func ApplyEnvOverrides(cfg *Config) {
	// Project
	setEnvString(&cfg.Project.Root, "PYRENAME_PROJECT_ROOT")
	setEnvList(&cfg.Project.SourceRoots, "PYRENAME_PROJECT_SOURCE_ROOTS")

	// Analysis
	setEnvInt(&cfg.Analysis.Workers, "PYRENAME_ANALYSIS_WORKERS")
	setEnvInt(&cfg.Analysis.CacheSize, "PYRENAME_ANALYSIS_CACHE_SIZE")
	if val, ok := os.LookupEnv("PYRENAME_ANALYSIS_STRICT_REEXPORTS"); ok {
		if b, err := strconv.ParseBool(strings.ToLower(val)); err == nil {
			logOverride("PYRENAME_ANALYSIS_STRICT_REEXPORTS", val)
			cfg.Analysis.StrictReexports = &b
		}
	}

	// Risk
	setEnvInt(&cfg.Risk.MaxFiles, "PYRENAME_RISK_MAX_FILES")
	setEnvInt(&cfg.Risk.MaxEdits, "PYRENAME_RISK_MAX_EDITS")

	// Verify
	setEnvString(&cfg.Verify.DefaultLevel, "PYRENAME_VERIFY_DEFAULT_LEVEL")
	setEnvDuration(&cfg.Verify.Timeout, "PYRENAME_VERIFY_TIMEOUT")
	setEnvCommand(&cfg.Verify.TestsCommand, "PYRENAME_VERIFY_TESTS_COMMAND")
	setEnvCommand(&cfg.Verify.TypecheckCommand, "PYRENAME_VERIFY_TYPECHECK_COMMAND")

	// Snapshot
	setEnvString(&cfg.Snapshot.Dir, "PYRENAME_SNAPSHOT_DIR")

	// History
	setEnvBool(&cfg.History.Enabled, "PYRENAME_HISTORY_ENABLED")
	setEnvString(&cfg.History.Path, "PYRENAME_HISTORY_PATH")

	// Observability
	setEnvString(&cfg.Observability.MetricsAddr, "PYRENAME_OBSERVABILITY_METRICS_ADDR")
	setEnvBool(&cfg.Observability.Tracing, "PYRENAME_OBSERVABILITY_TRACING")
	setEnvString(&cfg.Observability.OTLPEndpoint, "PYRENAME_OBSERVABILITY_OTLP_ENDPOINT")
	setEnvBool(&cfg.Observability.OTLPInsecure, "PYRENAME_OBSERVABILITY_OTLP_INSECURE")

	// Watch
	setEnvDuration(&cfg.Watch.Debounce, "PYRENAME_WATCH_DEBOUNCE")
	setEnvFloat64(&cfg.Watch.MaxRate, "PYRENAME_WATCH_MAX_RATE")
}

func logOverride(key, val string) {
	slog.Debug("applying env override", "key", key, "value", val)
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		logOverride(key, val)
		*target = val
	}
}

func setEnvList(target *[]string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		logOverride(key, val)
		var out []string
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*target = out
	}
}

func setEnvCommand(target *[]string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		logOverride(key, val)
		*target = strings.Fields(val)
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			logOverride(key, val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			logOverride(key, val)
			*target = b
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			logOverride(key, val)
			*target = f
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			logOverride(key, val)
			*target = d
		}
	}
}
