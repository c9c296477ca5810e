package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"pyrename/internal/core/app"
	"pyrename/internal/core/config"
	"pyrename/internal/core/errors"
	"pyrename/internal/core/ports"
	"pyrename/internal/data/history"
	"pyrename/internal/shared/observability"
)

func configureLogging(w io.Writer, verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
}

// session is everything one command invocation needs, built from the
// project configuration.
type session struct {
	cfg     *config.Config
	paths   config.ResolvedPaths
	engine  *app.Engine
	history ports.HistoryReader
	closers []func(context.Context) error
}

func newSession(ctx context.Context, opts cliOptions, cwd string) (*session, error) {
	guess := strings.TrimSpace(opts.root)
	if guess != "" {
		guess = config.ResolveRelative(cwd, guess)
	} else {
		detected, err := config.DetectProjectRoot([]string{cwd})
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "detect project root")
		}
		guess = detected
	}

	configPath := opts.configPath
	if configPath != "" {
		configPath = config.ResolveRelative(cwd, configPath)
	}
	cfg, err := config.LoadProject(guess, configPath)
	if err != nil {
		where := configPath
		if where == "" {
			where = guess
		}
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeValidationError, "load config"), errors.CtxPath, where)
	}
	paths, err := config.ResolvePaths(cfg, opts.root, cwd)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeValidationError, "resolve project paths")
	}

	s := &session{cfg: cfg, paths: paths}

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:  cfg.Observability.Tracing,
		Endpoint: cfg.Observability.OTLPEndpoint,
		Insecure: cfg.Observability.OTLPInsecure,
		Version:  versionString,
	})
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
	} else {
		s.closers = append(s.closers, shutdown)
	}

	addr := opts.metricsAddr
	if addr == "" {
		addr = cfg.Observability.MetricsAddr
	}
	if addr != "" {
		srv := NewObservabilityServer(addr, paths.ProjectRoot)
		if err := srv.Start(ctx); err != nil {
			s.Close()
			return nil, errors.AddContext(errors.Wrap(err, errors.CodeValidationError, "start metrics server"), "addr", addr)
		}
		s.closers = append(s.closers, srv.Stop)
	}

	var store *history.Store
	if cfg.History.Enabled || opts.command == "history" {
		store, err = history.Open(paths.HistoryPath)
		if err != nil {
			s.Close()
			return nil, errors.AddContext(errors.Wrap(err, errors.CodeInternal, "open history"), errors.CtxPath, paths.HistoryPath)
		}
		s.history = store
		s.closers = append(s.closers, func(context.Context) error { return store.Close() })
	}

	if opts.command == "history" {
		return s, nil
	}

	engineOpts := app.Options{Config: cfg, Paths: paths}
	if store != nil && cfg.History.Enabled {
		engineOpts.Journal = store
	}
	engine, err := app.New(engineOpts)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.engine = engine
	return s, nil
}

// Close runs the closers in reverse order.
func (s *session) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			slog.Warn("shutdown step failed", "error", err)
		}
	}
	s.closers = nil
}

func getwd() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "detect working directory")
	}
	return cwd, nil
}
