package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"pyrename/internal/core/app"
	"pyrename/internal/core/errors"
	"pyrename/internal/engine/planner"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true)

	fileStyle = lipgloss.NewStyle().Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F87171")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FBBF24")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			Italic(true)
)

func writeText(w io.Writer, out *app.Outcome, err error) error {
	var b strings.Builder
	if out != nil && out.Report != nil {
		writeReport(&b, out)
	}
	if out != nil && out.Verification != nil {
		v := out.Verification
		if v.Passed {
			fmt.Fprintf(&b, "%s %s (%s)\n", successStyle.Render("verification passed:"), v.Level, v.Duration.Round(time.Millisecond))
		} else {
			fmt.Fprintf(&b, "%s %s (%s)\n", errorStyle.Render("verification failed:"), v.Level, v.Duration.Round(time.Millisecond))
			for _, d := range v.Diagnostics {
				fmt.Fprintf(&b, "  %s\n", d.Message)
			}
			if s := strings.TrimSpace(v.Output); s != "" {
				for _, l := range strings.Split(s, "\n") {
					fmt.Fprintf(&b, "  | %s\n", l)
				}
			}
		}
	}
	if out != nil && out.State != "" {
		b.WriteString(statusStyle.Render(fmt.Sprintf("%s %s", out.State, out.ID)))
		b.WriteByte('\n')
	}
	if err != nil {
		fmt.Fprintf(&b, "%s %s (exit %d)\n", errorStyle.Render(string(errors.CodeOf(err))), err.Error(), errors.ExitCode(err))
	}
	_, werr := io.WriteString(w, b.String())
	return werr
}

func writeReport(b *strings.Builder, out *app.Outcome) {
	r := out.Report
	sources := make(map[string][]byte, len(out.Changes))
	for _, c := range out.Changes {
		sources[c.Path] = c.Original
	}

	fmt.Fprintf(b, "%s %s -> %s\n", titleStyle.Render("rename"), r.Symbol.Name, r.NewName)
	fmt.Fprintf(b, "  %s in %s (scope %s), defined at %s\n", r.Symbol.Kind, r.Symbol.Module, r.Symbol.Scope, r.Symbol.Definition.Start)
	risk := string(r.Risk)
	if r.Risk == planner.RiskLarge {
		risk = warnStyle.Render(risk)
	}
	fmt.Fprintf(b, "  %d files, %d edits, risk %s\n\n", r.FilesAffected, r.EditsEstimated, risk)

	for _, f := range r.Files {
		fmt.Fprintf(b, "%s (%s)\n", fileStyle.Render(f.File), f.Module)
		for _, ref := range f.References {
			start := ref.Span.Start
			tag := ref.Kind.String()
			if ref.Alias {
				tag += ", alias kept"
			}
			fmt.Fprintf(b, "  %d:%d %-20s %s\n", start.Line, start.Column, tag, strings.TrimSpace(sourceLine(sources[f.File], start.Line)))
		}
	}

	if len(r.Warnings) > 0 {
		b.WriteByte('\n')
		for _, wn := range r.Warnings {
			fmt.Fprintf(b, "%s %s: %s\n", warnStyle.Render("warning"), wn.Position, wn.Message)
		}
	}
	if len(r.Conflicts) > 0 {
		b.WriteByte('\n')
		for _, c := range r.Conflicts {
			fmt.Fprintf(b, "%s %s: %s\n", errorStyle.Render("conflict"), c.Span.Start, c.Message)
		}
	}
	b.WriteByte('\n')
}
