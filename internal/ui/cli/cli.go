package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"pyrename/internal/core/app"
	"pyrename/internal/core/errors"
	"pyrename/internal/data/history"
	"pyrename/internal/engine/verify"
	"pyrename/internal/shared/util"
	"pyrename/internal/ui/report"
)

// reviewer is replaced in tests; the real one needs a terminal.
var reviewer = runReview

func Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, args, os.Stdin, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, err := parseOptions(args, stderr)
	if err != nil {
		if err == flag.ErrHelp {
			return errors.ExitOK
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return errors.ExitCode(err)
	}
	if opts.command == "version" {
		fmt.Fprintf(stdout, "pyrename v%s\n", versionString)
		return errors.ExitOK
	}
	format, err := report.ParseFormat(opts.format)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return errors.ExitCode(err)
	}

	configureLogging(stderr, opts.verbose)

	c := &command{
		opts:   opts,
		format: format,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}
	c.cwd, err = getwd()
	if err == nil {
		c.session, err = newSession(ctx, opts, c.cwd)
	}
	if err != nil {
		_ = c.emit(nil, err)
		return errors.ExitCode(err)
	}
	defer c.session.Close()

	return errors.ExitCode(c.dispatch(ctx))
}

type command struct {
	opts    cliOptions
	format  report.Format
	cwd     string
	session *session
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
}

func (c *command) dispatch(ctx context.Context) error {
	if c.opts.command == "history" {
		return c.history()
	}

	req, err := c.request()
	if err != nil {
		return c.finish(nil, err)
	}
	engine := c.session.engine
	switch c.opts.command {
	case "analyze":
		if c.opts.watch {
			return engine.Watch(ctx, req, func(out *app.Outcome, err error) {
				if emitErr := c.emit(out, err); emitErr != nil {
					slog.Warn("failed to write report", "error", emitErr)
				}
			})
		}
		return c.finish(engine.Analyze(ctx, req))
	case "dry-run":
		return c.finish(engine.DryRun(ctx, req))
	case "apply":
		return c.apply(ctx, req)
	}
	return errors.New(errors.CodeValidationError, fmt.Sprintf("unknown command %q", c.opts.command))
}

func (c *command) request() (app.Request, error) {
	pos, err := parsePosition(c.opts.at)
	if err != nil {
		return app.Request{}, err
	}
	if !filepath.IsAbs(pos.File) {
		pos.File = filepath.Join(c.cwd, pos.File)
	}
	req := app.Request{
		Position:  pos,
		NewName:   c.opts.to,
		Confirmed: c.opts.yes,
	}
	// Text and diff output show edited lines, which analyze only has when
	// it previews.
	req.Preview = c.format != report.FormatJSON
	if c.opts.level != "" {
		level, err := verify.ParseLevel(c.opts.level)
		if err != nil {
			return app.Request{}, err
		}
		req.Level = level
	}
	return req, nil
}

func (c *command) apply(ctx context.Context, req app.Request) error {
	engine := c.session.engine
	if c.opts.review && !c.opts.yes {
		preview, err := engine.Analyze(ctx, req)
		if err != nil {
			return c.finish(preview, err)
		}
		ok, err := reviewer(preview.Report, c.stdin, c.stderr)
		if err != nil {
			return c.finish(preview, errors.Wrap(err, errors.CodeInternal, "run review"))
		}
		if !ok {
			return c.finish(preview, errors.AddContext(
				errors.New(errors.CodeConfirmationRequired, "rename cancelled at review"),
				errors.CtxSymbol, preview.Report.Symbol.Name))
		}
		req.Confirmed = true
	}
	return c.finish(engine.Apply(ctx, req))
}

// finish reports the outcome and hands back the operation error, which
// decides the exit status.
func (c *command) finish(out *app.Outcome, opErr error) error {
	if err := c.emit(out, opErr); err != nil {
		if opErr != nil {
			return opErr
		}
		return err
	}
	return opErr
}

func (c *command) emit(out *app.Outcome, opErr error) error {
	var buf bytes.Buffer
	if err := (report.Printer{Out: &buf, Err: c.stderr, Format: c.format}).Print(out, opErr); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "render report")
	}
	return c.write(buf.Bytes())
}

// write sends a rendered document to --output or stdout.
func (c *command) write(data []byte) error {
	if c.opts.output == "" {
		_, err := c.stdout.Write(data)
		return err
	}
	path := c.opts.output
	if !filepath.IsAbs(path) && c.cwd != "" {
		path = filepath.Join(c.cwd, path)
	}
	if err := util.WriteFileWithDirs(path, data, 0o644); err != nil {
		return errors.AddContext(errors.Wrap(err, errors.CodeInternal, "write report"), errors.CtxPath, path)
	}
	return nil
}

func (c *command) history() error {
	since, err := parseSince(c.opts.since)
	if err != nil {
		return c.finish(nil, err)
	}
	entries, err := c.session.history.List(c.opts.limit, since)
	if err != nil {
		return c.finish(nil, errors.Wrap(err, errors.CodeInternal, "list history"))
	}

	var buf bytes.Buffer
	if c.format == report.FormatJSON {
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if entries == nil {
			entries = []history.Entry{}
		}
		if err := enc.Encode(struct {
			Entries []history.Entry `json:"entries"`
		}{entries}); err != nil {
			return errors.Wrap(err, errors.CodeInternal, "encode history")
		}
		return c.write(buf.Bytes())
	}

	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tCOMMAND\tSTATE\tRENAME\tFILES\tEDITS\tID")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s.%s -> %s\t%d\t%d\t%s\n",
			e.Started.Local().Format("2006-01-02 15:04:05"), e.Command, e.State,
			e.Module, e.Symbol, e.NewName, e.FilesAffected, e.Edits, e.ID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return c.write(buf.Bytes())
}
