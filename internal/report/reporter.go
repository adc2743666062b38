package report

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/mir/fiddle-test-cov/internal/coverage"
	"github.com/mir/fiddle-test-cov/internal/pipeline"
)

// Reporter writes user-facing progress lines. Status words are colored only
// when w is a terminal.
type Reporter struct {
	w    io.Writer
	ok   lipgloss.Style
	fail lipgloss.Style
	skip lipgloss.Style
	head lipgloss.Style
}

// NewReporter creates a Reporter writing to w.
func NewReporter(w io.Writer) *Reporter {
	r := lipgloss.NewRenderer(w)
	return &Reporter{
		w:    w,
		ok:   r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		fail: r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		skip: r.NewStyle().Foreground(lipgloss.Color("3")),
		head: r.NewStyle().Foreground(lipgloss.Color("4")).Bold(true),
	}
}

// Printf writes a formatted line fragment.
func (r *Reporter) Printf(format string, args ...any) {
	fmt.Fprintf(r.w, format, args...)
}

// Heading writes a highlighted line.
func (r *Reporter) Heading(format string, args ...any) {
	fmt.Fprintln(r.w, r.head.Render(fmt.Sprintf(format, args...)))
}

// Status renders a pipeline status with its color.
func (r *Reporter) Status(s pipeline.Status) string {
	switch {
	case s.OK():
		return r.ok.Render(string(s))
	case s.Skipped():
		return r.skip.Render(string(s))
	default:
		return r.fail.Render(string(s))
	}
}

// DiffStatus renders a diff status tag string; "ok" is green, anything else yellow.
func (r *Reporter) DiffStatus(s string) string {
	if s == "ok" {
		return r.ok.Render(s)
	}
	return r.skip.Render(s)
}

// RepoStarted announces a repository before its pipeline runs.
func (r *Reporter) RepoStarted(phase pipeline.Phase, repo string) {
	fmt.Fprintf(r.w, "[%s] %s\n", phase, repo)
}

// RepoDone writes the progress line for a finished repository.
func (r *Reporter) RepoDone(phase pipeline.Phase, res pipeline.RepoResult) {
	fmt.Fprintf(r.w, "[%s] %s — %s — %s\n", phase, res.Name, r.Status(res.Status), CoverageLine(res.CoverageTotals))
}

// CoverageLine renders "covered/total lines (pct%)" or the unavailable placeholder.
func CoverageLine(t *coverage.Totals) string {
	if t == nil || !t.HasCounts() || t.PercentCovered == nil {
		return "coverage totals unavailable"
	}
	return fmt.Sprintf("%d/%d lines (%.2f%%)", *t.CoveredLines, *t.NumStatements, *t.PercentCovered)
}
