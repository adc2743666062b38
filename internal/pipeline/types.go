package pipeline

import (
	"fmt"
	"time"

	"github.com/mir/fiddle-test-cov/internal/coverage"
	"github.com/mir/fiddle-test-cov/internal/runner"
	"github.com/mir/fiddle-test-cov/internal/testrun"
)

// Phase is one of the two points in the workflow being compared.
type Phase string

const (
	PhaseBaseline  Phase = "baseline"
	PhaseGenerated Phase = "generated"
)

// ParsePhase validates a phase name.
func ParsePhase(s string) (Phase, error) {
	switch Phase(s) {
	case PhaseBaseline, PhaseGenerated:
		return Phase(s), nil
	}
	return "", fmt.Errorf("invalid phase %q: must be %q or %q", s, PhaseBaseline, PhaseGenerated)
}

// DirName is the phase's directory under the artifacts root.
func (p Phase) DirName() string {
	if p == PhaseBaseline {
		return "coverage_reports_before"
	}
	return "coverage_reports_after"
}

// RepoResult is the outcome of one repository's pipeline in one phase.
type RepoResult struct {
	Name           string           `json:"name"`
	Status         Status           `json:"status"`
	Commands       []runner.Result  `json:"commands"`
	Artifacts      []string         `json:"artifacts"`
	CoverageTotals *coverage.Totals `json:"coverage_totals"`
	Tests          *testrun.Outcome `json:"tests,omitempty"`
	StartedAt      string           `json:"started_at"`
	FinishedAt     string           `json:"finished_at"`
}

// Metadata is the structured per-repository document written next to the log.
type Metadata struct {
	Phase          Phase            `json:"phase"`
	Repository     string           `json:"repository"`
	Status         Status           `json:"status"`
	Commands       []runner.Result  `json:"commands"`
	Artifacts      []string         `json:"artifacts"`
	CoverageTotals *coverage.Totals `json:"coverage_totals"`
	Tests          *testrun.Outcome `json:"tests,omitempty"`
	IsolationImage string           `json:"isolation_image"`
	CacheDir       string           `json:"cache_dir,omitempty"`
	StartedAt      string           `json:"started_at"`
	FinishedAt     string           `json:"finished_at"`
}

// Summary is the phase-level document listing every repository result.
type Summary struct {
	Phase          Phase        `json:"phase"`
	RunID          string       `json:"run_id"`
	GeneratedAt    string       `json:"generated_at"`
	ArtifactsRoot  string       `json:"artifacts_root"`
	ReposRoot      string       `json:"repos_root"`
	IsolationImage string       `json:"isolation_image"`
	CacheDir       string       `json:"cache_dir,omitempty"`
	Results        []RepoResult `json:"results"`
}

// Timestamp formats t as ISO-8601 UTC with second precision.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
