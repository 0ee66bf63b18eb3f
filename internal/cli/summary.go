package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ppiankov/lemmata/internal/model"
	"github.com/ppiankov/lemmata/internal/research"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB347"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#767676"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1)
)

func banner(w io.Writer, title string) {
	fmt.Fprintln(w, titleStyle.Render("═══ "+title+" ═══"))
}

func statusLabel(s research.Status) string {
	if s == research.StatusOk {
		return okStyle.Render(s.String())
	}
	return warnStyle.Render(s.String())
}

// printExploration writes the stage table and counts of one research pass
func printExploration(w io.Writer, e *research.Exploration) {
	var b strings.Builder
	fmt.Fprintf(&b, "Run:        %s\n", e.RunID)
	fmt.Fprintf(&b, "Literature: %d results\n", len(e.Literature.Items))
	fmt.Fprintf(&b, "Candidates: %d predicted, %d novel\n", len(e.Candidates), len(e.Novel))
	fmt.Fprintf(&b, "Proved:     %d\n", len(e.Results))
	b.WriteString("\n")
	for _, s := range e.Stages {
		line := fmt.Sprintf("  %-11s %s", s.Stage, statusLabel(s.Status))
		if s.Err != nil {
			line += " " + dimStyle.Render(model.Truncate(s.Err.Error(), 90))
		}
		b.WriteString(line + "\n")
	}
	fmt.Fprintln(w, boxStyle.Render(strings.TrimRight(b.String(), "\n")))
}

// printProved lists accepted statements, one per line
func printProved(w io.Writer, results []model.ProvenResult) {
	for _, r := range results {
		fmt.Fprintf(w, "%s %s\n", okStyle.Render("✓"), model.Truncate(r.Statement, 100))
	}
}
