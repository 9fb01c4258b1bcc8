package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/dgallion1/docsum/internal/apperr"
	"github.com/dgallion1/docsum/internal/pipeline"
	"github.com/dgallion1/docsum/internal/report"
	"github.com/dgallion1/docsum/internal/usage"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1)
)

// printSummary renders the end-of-run report: totals, one line per file, and
// the per-stage model usage.
func printSummary(w io.Writer, meta report.Meta, outcomes []pipeline.Outcome, snap usage.Snapshot) {
	var lines []string
	for _, row := range meta.Rows() {
		lines = append(lines, fmt.Sprintf("%s %s", dimStyle.Render(row[0]+":"), row[1]))
	}
	fmt.Fprintln(w, boxStyle.Render(titleStyle.Render("docsum")+"\n"+strings.Join(lines, "\n")))

	for _, o := range outcomes {
		fmt.Fprintln(w, fileLine(o))
	}

	rows := report.UsageRows(snap)
	if len(rows) == 0 {
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers("Stage", "Calls", "Successes", "Retries", "Failures", "Tokens")
	for _, r := range rows {
		cells := make([]string, len(r))
		for i, v := range r {
			cells[i] = fmt.Sprint(v)
		}
		t.Row(cells...)
	}
	fmt.Fprintln(w, t.String())
	if snap.Latency.Count > 0 {
		fmt.Fprintf(w, "%s p50 %.0fms  p95 %.0fms\n", dimStyle.Render("Latency:"), snap.Latency.P50Ms, snap.Latency.P95Ms)
	}
}

func fileLine(o pipeline.Outcome) string {
	switch {
	case !o.OK():
		return fmt.Sprintf("%s %s %s", errorStyle.Render("✗"), o.File, dimStyle.Render(errorKind(o.Err)))
	case len(o.Result.FailedChunks) > 0:
		return fmt.Sprintf("%s %s %s", warnStyle.Render("!"), o.File,
			dimStyle.Render(fmt.Sprintf("%s, %d/%d chunks", o.Result.Strategy, o.Result.Chunks-len(o.Result.FailedChunks), o.Result.Chunks)))
	default:
		return fmt.Sprintf("%s %s %s", successStyle.Render("✓"), o.File,
			dimStyle.Render(fmt.Sprintf("%s, %d chunks", o.Result.Strategy, o.Result.Chunks)))
	}
}

func errorKind(err error) string {
	if ae, ok := apperr.As(err); ok {
		return string(ae.Kind)
	}
	return err.Error()
}
