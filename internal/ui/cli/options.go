package cli

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"pyrename/internal/core/errors"
	"pyrename/internal/engine/parser"
)

const versionString = "0.4.0"

const usage = `usage: pyrename <command> [flags]

commands:
  analyze   report every reference the rename would touch
  dry-run   plan, snapshot and verify without writing the workspace
  apply     verify and commit the rename
  history   list journaled dry-run and apply operations
  version   print the version

run "pyrename <command> -h" for the flags of a command
`

type cliOptions struct {
	command     string
	configPath  string
	root        string
	at          string
	to          string
	level       string
	format      string
	output      string
	metricsAddr string
	since       string
	limit       int
	yes         bool
	review      bool
	watch       bool
	verbose     bool
}

var commands = map[string]bool{
	"analyze": true,
	"dry-run": true,
	"apply":   true,
	"history": true,
	"version": true,
}

func parseOptions(args []string, stderr io.Writer) (cliOptions, error) {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return cliOptions{}, errors.New(errors.CodeValidationError, "missing command")
	}
	opts := cliOptions{command: args[0]}
	if opts.command == "-h" || opts.command == "--help" || opts.command == "help" {
		fmt.Fprint(stderr, usage)
		return cliOptions{}, flag.ErrHelp
	}
	if opts.command == "--version" {
		opts.command = "version"
	}
	if !commands[opts.command] {
		fmt.Fprint(stderr, usage)
		return cliOptions{}, errors.New(errors.CodeValidationError, fmt.Sprintf("unknown command %q", opts.command))
	}

	fs := flag.NewFlagSet("pyrename "+opts.command, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to config file (default <root>/pyrename.toml)")
	fs.StringVar(&opts.root, "root", "", "Project root (default: detected from the working directory)")
	fs.StringVar(&opts.format, "format", "text", "Output format: text, json or diff")
	fs.StringVar(&opts.output, "output", "", "Write the report to this file instead of stdout")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics and health on this address")
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")

	switch opts.command {
	case "analyze", "dry-run", "apply":
		fs.StringVar(&opts.at, "at", "", "Cursor position FILE:LINE:COL (1-based)")
		fs.StringVar(&opts.to, "to", "", "New identifier")
	}
	switch opts.command {
	case "dry-run", "apply":
		fs.StringVar(&opts.level, "verify", "", "Verification level: syntax, tests or typecheck (default from config)")
	}
	switch opts.command {
	case "analyze":
		fs.BoolVar(&opts.watch, "watch", false, "Re-run the analysis whenever Python files change")
	case "apply":
		fs.BoolVar(&opts.yes, "yes", false, "Confirm large renames without prompting")
		fs.BoolVar(&opts.review, "review", false, "Review the affected files interactively before applying")
	case "history":
		fs.IntVar(&opts.limit, "limit", 20, "Maximum number of entries")
		fs.StringVar(&opts.since, "since", "", "Only entries started at/after this timestamp (RFC3339 or YYYY-MM-DD)")
	}

	if err := fs.Parse(args[1:]); err != nil {
		if err == flag.ErrHelp {
			return cliOptions{}, err
		}
		return cliOptions{}, errors.Wrap(err, errors.CodeValidationError, "invalid flags")
	}
	if fs.NArg() > 0 {
		return cliOptions{}, errors.New(errors.CodeValidationError, fmt.Sprintf("unexpected argument %q", fs.Arg(0)))
	}

	switch opts.command {
	case "analyze", "dry-run", "apply":
		if strings.TrimSpace(opts.at) == "" || strings.TrimSpace(opts.to) == "" {
			return cliOptions{}, errors.New(errors.CodeValidationError, "--at and --to are required")
		}
	}
	if opts.watch && opts.format == "diff" {
		return cliOptions{}, errors.New(errors.CodeValidationError, "--watch cannot be combined with --format diff")
	}
	return opts, nil
}

// parsePosition splits FILE:LINE:COL from the right, so file names may
// contain colons.
func parsePosition(s string) (parser.Position, error) {
	invalid := func() error {
		return errors.AddContext(
			errors.New(errors.CodeValidationError, "position must be FILE:LINE:COL"),
			errors.CtxPosition, s)
	}
	colIdx := strings.LastIndex(s, ":")
	if colIdx <= 0 {
		return parser.Position{}, invalid()
	}
	lineIdx := strings.LastIndex(s[:colIdx], ":")
	if lineIdx <= 0 {
		return parser.Position{}, invalid()
	}
	line, err := strconv.Atoi(s[lineIdx+1 : colIdx])
	if err != nil {
		return parser.Position{}, invalid()
	}
	col, err := strconv.Atoi(s[colIdx+1:])
	if err != nil {
		return parser.Position{}, invalid()
	}
	return parser.Position{File: s[:lineIdx], Line: line, Column: col}, nil
}

func parseSince(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse("2006-01-02", value); err == nil {
		return ts, nil
	}
	return time.Time{}, errors.New(errors.CodeValidationError, fmt.Sprintf("invalid --since %q (want RFC3339 or YYYY-MM-DD)", raw))
}
