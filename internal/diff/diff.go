// Package diff compares the baseline and generated coverage artifacts of a
// run, per repository and as a statement-weighted aggregate.
package diff

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mir/fiddle-test-cov/internal/coverage"
	"github.com/mir/fiddle-test-cov/internal/pipeline"
)

var (
	// ErrPhaseDirMissing means a phase was never collected.
	ErrPhaseDirMissing = errors.New("phase directory missing")
	// ErrNoRepositories means neither phase holds any repository.
	ErrNoRepositories = errors.New("no repositories found under the provided artifact paths")
)

// Flag is one condition tag of a repository diff.
type Flag string

const (
	FlagMissingBaseline  Flag = "missing_baseline"
	FlagMissingGenerated Flag = "missing_generated"
	FlagNoBaselineData   Flag = "no_baseline_data"
	FlagNoGeneratedData  Flag = "no_generated_data"
)

// StatusOK is the status of a repository with no condition flags.
const StatusOK = "ok"

// JoinFlags renders flags in the fixed order, or "ok" when none are set.
func JoinFlags(flags map[Flag]bool) string {
	var parts []string
	for _, f := range []Flag{FlagMissingBaseline, FlagMissingGenerated, FlagNoBaselineData, FlagNoGeneratedData} {
		if flags[f] {
			parts = append(parts, string(f))
		}
	}
	if len(parts) == 0 {
		return StatusOK
	}
	return strings.Join(parts, ",")
}

// RepoDiff pairs a repository's baseline and generated totals.
type RepoDiff struct {
	Name      string
	Baseline  coverage.Totals
	Generated coverage.Totals
	Status    string
}

// DeltaLines is generated minus baseline covered lines, nil unless both are known.
func (d RepoDiff) DeltaLines() *int {
	if d.Baseline.CoveredLines == nil || d.Generated.CoveredLines == nil {
		return nil
	}
	v := *d.Generated.CoveredLines - *d.Baseline.CoveredLines
	return &v
}

// DeltaPercent is generated minus baseline percent, nil unless both are known.
func (d RepoDiff) DeltaPercent() *float64 {
	if d.Baseline.PercentCovered == nil || d.Generated.PercentCovered == nil {
		return nil
	}
	v := *d.Generated.PercentCovered - *d.Baseline.PercentCovered
	return &v
}

type repoDiffJSON struct {
	Name         string          `json:"name"`
	Baseline     coverage.Totals `json:"baseline"`
	Generated    coverage.Totals `json:"generated"`
	Status       string          `json:"status"`
	DeltaLines   *int            `json:"delta_lines"`
	DeltaPercent *float64        `json:"delta_percent"`
}

// MarshalJSON includes both deltas.
func (d RepoDiff) MarshalJSON() ([]byte, error) {
	return json.Marshal(repoDiffJSON{
		Name:         d.Name,
		Baseline:     d.Baseline,
		Generated:    d.Generated,
		Status:       d.Status,
		DeltaLines:   d.DeltaLines(),
		DeltaPercent: d.DeltaPercent(),
	})
}

// UnmarshalJSON reads the record form; deltas are recomputed, not stored.
func (d *RepoDiff) UnmarshalJSON(data []byte) error {
	var raw repoDiffJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = RepoDiff{Name: raw.Name, Baseline: raw.Baseline, Generated: raw.Generated, Status: raw.Status}
	return nil
}

// CollectRepositories returns the sorted union of repository directories in
// both phase directories.
func CollectRepositories(baselineDir, generatedDir string) ([]string, error) {
	seen := make(map[string]bool)
	for _, dir := range []string{baselineDir, generatedDir} {
		names, err := pipeline.ListDirs(dir)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", dir, err)
		}
		for _, n := range names {
			seen[n] = true
		}
	}
	repos := make([]string, 0, len(seen))
	for n := range seen {
		repos = append(repos, n)
	}
	sort.Strings(repos)
	return repos, nil
}

// LoadRepoDiff loads both sides of one repository. Missing directories or
// reports become status flags, never errors.
func LoadRepoDiff(repo, baselineDir, generatedDir string) RepoDiff {
	basePath := filepath.Join(baselineDir, repo)
	genPath := filepath.Join(generatedDir, repo)

	d := RepoDiff{
		Name:      repo,
		Baseline:  coverage.LoadFile(filepath.Join(basePath, pipeline.CoverageJSON)),
		Generated: coverage.LoadFile(filepath.Join(genPath, pipeline.CoverageJSON)),
	}
	d.Status = JoinFlags(map[Flag]bool{
		FlagMissingBaseline:  !exists(basePath),
		FlagMissingGenerated: !exists(genPath),
		FlagNoBaselineData:   d.Baseline.CoveredLines == nil,
		FlagNoGeneratedData:  d.Generated.CoveredLines == nil,
	})
	return d
}

// Result is a complete comparison of two phases.
type Result struct {
	BaselineDir  string
	GeneratedDir string
	Records      []RepoDiff
	Aggregate    Aggregate
}

// Compute compares every repository found in either phase directory.
func Compute(baselineDir, generatedDir string) (*Result, error) {
	for _, dir := range []string{baselineDir, generatedDir} {
		if !exists(dir) {
			return nil, fmt.Errorf("%s: %w", dir, ErrPhaseDirMissing)
		}
	}

	repos, err := CollectRepositories(baselineDir, generatedDir)
	if err != nil {
		return nil, err
	}
	if len(repos) == 0 {
		return nil, ErrNoRepositories
	}

	records := make([]RepoDiff, 0, len(repos))
	for _, repo := range repos {
		records = append(records, LoadRepoDiff(repo, baselineDir, generatedDir))
	}
	return &Result{
		BaselineDir:  baselineDir,
		GeneratedDir: generatedDir,
		Records:      records,
		Aggregate:    ComputeAggregate(records),
	}, nil
}

// ComputeStore compares the two phases of an artifacts store.
func ComputeStore(store *pipeline.Store) (*Result, error) {
	return Compute(store.PhaseDir(pipeline.PhaseBaseline), store.PhaseDir(pipeline.PhaseGenerated))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
