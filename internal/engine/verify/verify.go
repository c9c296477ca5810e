package verify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"pyrename/internal/core/errors"
	"pyrename/internal/engine/parser"
	"pyrename/internal/shared/observability"
)

type Level string

const (
	LevelSyntax    Level = "syntax"
	LevelTests     Level = "tests"
	LevelTypecheck Level = "typecheck"
)

func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case "", LevelSyntax:
		return LevelSyntax, nil
	case LevelTests:
		return LevelTests, nil
	case LevelTypecheck:
		return LevelTypecheck, nil
	}
	return "", errors.AddContext(
		errors.New(errors.CodeValidationError, fmt.Sprintf("unknown verification level %q", s)),
		errors.CtxLevel, s)
}

// Result is the outcome of one verification gate. Output holds the
// diagnostics of the failing level verbatim.
type Result struct {
	Level       Level                `json:"level"`
	Passed      bool                 `json:"passed"`
	Output      string               `json:"output,omitempty"`
	Duration    time.Duration        `json:"duration"`
	Diagnostics []parser.SyntaxError `json:"diagnostics,omitempty"`
}

// Target is a snapshot to verify. FilesDir holds the edited files at their
// project-relative paths; ScratchDir is free space owned by the snapshot.
type Target struct {
	ProjectRoot string
	FilesDir    string
	ScratchDir  string
	Files       []string
}

type Options struct {
	TestsCommand     []string
	TypecheckCommand []string
	Timeout          time.Duration
}

type Verifier struct {
	parser *parser.Parser
	opts   Options
	logger *slog.Logger
}

func New(p *parser.Parser, opts Options) *Verifier {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	return &Verifier{parser: p, opts: opts, logger: slog.Default().With("component", "verify")}
}

// Verify runs one gate. A failing gate is reported through Result.Passed; the
// error is reserved for a gate that could not run at all.
func (v *Verifier) Verify(ctx context.Context, level Level, t Target) (*Result, error) {
	ctx, span := observability.Tracer.Start(ctx, "verify.Verify",
		trace.WithAttributes(attribute.String("level", string(level)), attribute.Int("files", len(t.Files))))
	defer span.End()

	if level == "" {
		level = LevelSyntax
	}
	start := time.Now()
	var (
		res *Result
		err error
	)
	switch level {
	case LevelSyntax:
		res, err = v.syntax(t)
	case LevelTests:
		res, err = v.command(ctx, level, v.opts.TestsCommand, t)
	case LevelTypecheck:
		res, err = v.command(ctx, level, v.opts.TypecheckCommand, t)
	default:
		_, err = ParseLevel(string(level))
	}
	if err != nil {
		return nil, err
	}
	res.Duration = time.Since(start)
	observability.VerificationDuration.WithLabelValues(string(level)).Observe(res.Duration.Seconds())
	span.SetAttributes(attribute.Bool("passed", res.Passed))
	v.logger.Debug("verification finished", "level", level, "passed", res.Passed, "duration", res.Duration)
	return res, nil
}

func (v *Verifier) syntax(t Target) (*Result, error) {
	res := &Result{Level: LevelSyntax, Passed: true}
	var out strings.Builder
	for _, rel := range t.Files {
		abs := filepath.Join(t.FilesDir, filepath.FromSlash(rel))
		content, err := os.ReadFile(abs)
		if err != nil {
			return nil, errors.AddContext(
				errors.Wrap(err, errors.CodeInternal, "read snapshot file"), errors.CtxPath, rel)
		}
		file, err := v.parser.Parse(rel, abs, content)
		if err != nil {
			return nil, err
		}
		if file.HasErrors() {
			res.Passed = false
			for _, d := range file.SyntaxErrors(20) {
				res.Diagnostics = append(res.Diagnostics, d)
				fmt.Fprintf(&out, "%s: %s\n", d.Position, d.Message)
			}
		}
		file.Close()
	}
	res.Output = out.String()
	return res, nil
}

func (v *Verifier) command(ctx context.Context, level Level, argv []string, t Target) (*Result, error) {
	if len(argv) == 0 {
		return nil, errors.AddContext(
			errors.New(errors.CodeValidationError, fmt.Sprintf("no %s command configured", level)),
			errors.CtxLevel, string(level))
	}
	root, err := BuildMirror(t)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "build verification tree")
	}

	cmdCtx, cancel := context.WithTimeout(ctx, v.opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, argv[0], argv[1:]...)
	cmd.Dir = root
	// Children that inherit the output pipe must not hold Run open past the timeout.
	cmd.WaitDelay = 2 * time.Second
	cmd.Env = append(os.Environ(), "PYTHONDONTWRITEBYTECODE=1")
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	res := &Result{Level: level}
	runErr := cmd.Run()
	switch {
	case cmdCtx.Err() == context.DeadlineExceeded:
		fmt.Fprintf(&output, "\n%s command timed out after %s\n", level, v.opts.Timeout)
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case runErr != nil:
		if _, ok := runErr.(*exec.ExitError); !ok {
			fmt.Fprintf(&output, "%v\n", runErr)
		}
	default:
		res.Passed = true
	}
	res.Output = output.String()
	return res, nil
}
