package report

import (
	"fmt"
	"io"
	"strings"

	"pyrename/internal/core/app"
	"pyrename/internal/core/errors"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatDiff Format = "diff"
	FormatText Format = "text"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatJSON, FormatDiff, FormatText:
		return f, nil
	}
	return "", errors.New(errors.CodeValidationError, fmt.Sprintf("unknown output format %q (want json, diff or text)", s))
}

// Printer writes operation outcomes in one format. Out receives the
// document; Err receives summaries that must not pollute a diff.
type Printer struct {
	Out    io.Writer
	Err    io.Writer
	Format Format
}

// Print renders out, or err when the operation failed before producing
// anything. Both may be set: a verification failure still carries its
// outcome.
func (p Printer) Print(out *app.Outcome, err error) error {
	switch p.Format {
	case FormatJSON:
		return writeJSON(p.Out, out, err)
	case FormatDiff:
		return p.printDiff(out, err)
	default:
		return writeText(p.Out, out, err)
	}
}

func (p Printer) printDiff(out *app.Outcome, err error) error {
	if out != nil {
		body, derr := UnifiedDiff(out.Changes)
		if derr != nil {
			return derr
		}
		if _, werr := p.Out.Write(body); werr != nil {
			return werr
		}
		if out.Report != nil && p.Err != nil {
			fmt.Fprintf(p.Err, "files_affected: %d\n", out.Report.FilesAffected)
			for _, file := range out.Report.AffectedFiles() {
				fmt.Fprintf(p.Err, "  %s\n", file)
			}
		}
	}
	if err != nil && p.Err != nil {
		fmt.Fprintf(p.Err, "error: %v\n", err)
	}
	return nil
}
