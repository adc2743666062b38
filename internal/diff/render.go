package diff

import (
	"fmt"
	"time"

	"github.com/mir/fiddle-test-cov/internal/pipeline"
)

// FormatRepoLine renders one repository as
// "name: baseline c/t (p%) | generated c/t (p%) | Δlines +n | Δpct +p% | status=s".
func FormatRepoLine(d RepoDiff) string {
	return RepoLineBody(d) + " | status=" + d.Status
}

// RepoLineBody is FormatRepoLine without the status suffix.
func RepoLineBody(d RepoDiff) string {
	return fmt.Sprintf("%s: baseline %s | generated %s | Δlines %s | Δpct %s",
		d.Name, d.Baseline, d.Generated, signedInt(d.DeltaLines()), signedPct(d.DeltaPercent()))
}

// FormatAggregate renders the aggregate block, one line per entry.
func FormatAggregate(a Aggregate) []string {
	return []string{
		fmt.Sprintf("Baseline covered: %s (%s)", plainInt(a.Baseline.CoveredLines), plainPct(a.Baseline.PercentCovered)),
		fmt.Sprintf("Generated covered: %s (%s)", plainInt(a.Generated.CoveredLines), plainPct(a.Generated.PercentCovered)),
		fmt.Sprintf("Delta lines: %s | Delta pct: %s", signedInt(a.Delta.CoveredLines), signedPct(a.Delta.PercentCovered)),
		fmt.Sprintf("Total statements: %s", plainInt(a.TotalStatements)),
	}
}

func signedInt(v *int) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%+d", *v)
}

func signedPct(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%+.2f%%", *v)
}

func plainInt(v *int) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%d", *v)
}

func plainPct(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", *v)
}

// Document is the machine-readable diff written with --output.
type Document struct {
	GeneratedAt  string     `json:"generated_at"`
	BaselineDir  string     `json:"baseline_dir"`
	GeneratedDir string     `json:"generated_dir"`
	Aggregate    Aggregate  `json:"aggregate"`
	Repositories []RepoDiff `json:"repositories"`
}

// NewDocument builds the output document for a result.
func NewDocument(res *Result, now time.Time) *Document {
	return &Document{
		GeneratedAt:  pipeline.Timestamp(now),
		BaselineDir:  res.BaselineDir,
		GeneratedDir: res.GeneratedDir,
		Aggregate:    res.Aggregate,
		Repositories: res.Records,
	}
}

// SaveJSON writes the result document to path, creating parent directories.
func SaveJSON(path string, res *Result, now time.Time) error {
	if err := pipeline.WriteJSON(path, NewDocument(res, now)); err != nil {
		return fmt.Errorf("write diff %s: %w", path, err)
	}
	return nil
}
