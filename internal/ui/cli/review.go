package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pyrename/internal/engine/planner"
)

var (
	titleStyle = lipgloss.NewStyle().
			MarginLeft(2).
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true).
			Render

	docStyle = lipgloss.NewStyle().Margin(1, 2)

	riskStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F87171")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FBBF24")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			Italic(true)
)

type item struct {
	title, desc string
}

func (i item) Title() string       { return i.title }
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.title }

// reviewModel lists the files a rename touches and waits for a decision.
type reviewModel struct {
	list      list.Model
	report    *planner.ImpactReport
	confirmed bool
	decided   bool
}

func newReviewModel(r *planner.ImpactReport) reviewModel {
	items := make([]list.Item, 0, len(r.Files))
	for _, f := range r.Files {
		var at []string
		edits := 0
		for _, ref := range f.References {
			if ref.Alias {
				continue
			}
			edits++
			at = append(at, fmt.Sprintf("%d:%d", ref.Span.Start.Line, ref.Span.Start.Column))
		}
		if edits == 0 {
			continue
		}
		items = append(items, item{
			title: f.File,
			desc:  fmt.Sprintf("%d edits at %s", edits, strings.Join(at, ", ")),
		})
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Affected Files"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)

	return reviewModel{list: l, report: r}
}

func (m reviewModel) Init() tea.Cmd {
	return nil
}

func (m reviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "y", "enter":
			m.confirmed = true
			m.decided = true
			return m, tea.Quit
		case "n", "q", "esc", "ctrl+c":
			m.decided = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		m.list.SetSize(msg.Width-h, msg.Height-v-5)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m reviewModel) View() string {
	r := m.report
	risk := successStyle.Render(string(r.Risk))
	if r.NeedsConfirmation() {
		risk = riskStyle.Render(string(r.Risk))
	}
	status := statusStyle.Render(fmt.Sprintf("%s in %s | %d files | %d edits",
		r.Symbol.Kind, r.Symbol.Module, r.FilesAffected, r.EditsEstimated))

	header := fmt.Sprintf("%s\n%s | risk %s\n", titleStyle(fmt.Sprintf("Rename %s -> %s", r.Symbol.Name, r.NewName)), status, risk)
	if n := len(r.Warnings) + len(r.Conflicts); n > 0 {
		header += warningStyle.Render(fmt.Sprintf("%d warnings", n)) + "\n"
	}
	footer := statusStyle.Render("y/enter apply | n/esc cancel")
	return docStyle.Render(header + "\n" + m.list.View() + "\n" + footer)
}

// runReview shows the review screen and reports whether the user confirmed.
func runReview(r *planner.ImpactReport, in io.Reader, out io.Writer) (bool, error) {
	p := tea.NewProgram(newReviewModel(r), tea.WithInput(in), tea.WithOutput(out), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return false, err
	}
	m, ok := final.(reviewModel)
	return ok && m.confirmed, nil
}
