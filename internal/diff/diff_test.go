package diff

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mir/fiddle-test-cov/internal/coverage"
	"github.com/mir/fiddle-test-cov/internal/pipeline"
)

func totals(covered, statements int) coverage.Totals {
	t := coverage.Totals{CoveredLines: coverage.Int(covered), NumStatements: coverage.Int(statements)}
	if statements != 0 {
		t.PercentCovered = coverage.Float(float64(covered) / float64(statements) * 100)
	}
	return t
}

// writeReport creates <dir>/<repo>/coverage.json; an empty body creates only the directory.
func writeReport(t *testing.T, dir, repo, body string) {
	t.Helper()
	repoDir := filepath.Join(dir, repo)
	require.NoError(t, os.MkdirAll(repoDir, 0o755))
	if body != "" {
		require.NoError(t, os.WriteFile(filepath.Join(repoDir, pipeline.CoverageJSON), []byte(body), 0o644))
	}
}

func report(covered, statements int) string {
	b, _ := json.Marshal(map[string]any{"totals": map[string]int{"covered_lines": covered, "num_statements": statements}})
	return string(b)
}

func phaseDirs(t *testing.T) (string, string) {
	t.Helper()
	store := pipeline.NewStore(t.TempDir())
	base, gen := store.PhaseDir(pipeline.PhaseBaseline), store.PhaseDir(pipeline.PhaseGenerated)
	require.NoError(t, os.MkdirAll(base, 0o755))
	require.NoError(t, os.MkdirAll(gen, 0o755))
	return base, gen
}

func TestJoinFlagsOrder(t *testing.T) {
	assert.Equal(t, "ok", JoinFlags(nil))
	assert.Equal(t, "missing_baseline,no_baseline_data", JoinFlags(map[Flag]bool{
		FlagNoBaselineData:  true,
		FlagMissingBaseline: true,
	}))
	assert.Equal(t, "missing_generated,no_generated_data", JoinFlags(map[Flag]bool{
		FlagNoGeneratedData:  true,
		FlagMissingGenerated: true,
		FlagNoBaselineData:   false,
	}))
}

func TestDeltas(t *testing.T) {
	d := RepoDiff{Baseline: totals(50, 100), Generated: totals(70, 120)}
	require.NotNil(t, d.DeltaLines())
	assert.Equal(t, 20, *d.DeltaLines())
	require.NotNil(t, d.DeltaPercent())
	assert.InDelta(t, 8.3333, *d.DeltaPercent(), 0.001)

	half := RepoDiff{Baseline: totals(50, 100)}
	assert.Nil(t, half.DeltaLines())
	assert.Nil(t, half.DeltaPercent())

	// counts without a percent: line delta defined, percent delta not
	noPct := RepoDiff{Baseline: totals(0, 0), Generated: totals(3, 0)}
	require.NotNil(t, noPct.DeltaLines())
	assert.Equal(t, 3, *noPct.DeltaLines())
	assert.Nil(t, noPct.DeltaPercent())
}

func TestLoadRepoDiffMissingGenerated(t *testing.T) {
	base, gen := phaseDirs(t)
	writeReport(t, base, "R", report(10, 20))

	d := LoadRepoDiff("R", base, gen)

	assert.Equal(t, "missing_generated,no_generated_data", d.Status)
	assert.Nil(t, d.DeltaLines())
	assert.Nil(t, d.DeltaPercent())
}

func TestLoadRepoDiffStatuses(t *testing.T) {
	base, gen := phaseDirs(t)
	writeReport(t, base, "ok", report(1, 2))
	writeReport(t, gen, "ok", report(2, 2))
	writeReport(t, base, "nodata", "")
	writeReport(t, gen, "nodata", "{not json")
	writeReport(t, gen, "newonly", report(5, 10))

	assert.Equal(t, "ok", LoadRepoDiff("ok", base, gen).Status)
	assert.Equal(t, "no_baseline_data,no_generated_data", LoadRepoDiff("nodata", base, gen).Status)
	assert.Equal(t, "missing_baseline,no_baseline_data", LoadRepoDiff("newonly", base, gen).Status)
}

func TestAggregateWeighting(t *testing.T) {
	records := []RepoDiff{
		{Name: "a", Baseline: totals(50, 100), Generated: totals(70, 120)},
		{Name: "b", Baseline: totals(0, 0)},
	}

	agg := ComputeAggregate(records)

	require.NotNil(t, agg.TotalStatements)
	assert.Equal(t, 120, *agg.TotalStatements, "weight is the larger statement count")
	assert.Equal(t, 50, *agg.Baseline.CoveredLines)
	assert.Equal(t, 70, *agg.Generated.CoveredLines)
	assert.InDelta(t, 58.33, *agg.Generated.PercentCovered, 0.01)
	assert.InDelta(t, 41.67, *agg.Baseline.PercentCovered, 0.01)
	assert.Equal(t, 20, *agg.Delta.CoveredLines)
	assert.InDelta(t, *agg.Generated.PercentCovered-*agg.Baseline.PercentCovered, *agg.Delta.PercentCovered, 1e-9)
}

func TestAggregateSameDenominatorPerSide(t *testing.T) {
	agg := ComputeAggregate([]RepoDiff{
		{Baseline: totals(50, 100), Generated: totals(70, 100)},
		{Baseline: totals(10, 50), Generated: totals(40, 50)},
	})
	assert.Equal(t, 150, *agg.TotalStatements)
	assert.InDelta(t, 40.0, *agg.Baseline.PercentCovered, 1e-9)
	assert.InDelta(t, 73.333, *agg.Generated.PercentCovered, 0.001)
}

func TestAggregateNothingQualifies(t *testing.T) {
	agg := ComputeAggregate([]RepoDiff{
		{Baseline: totals(5, 10)},
		{Generated: coverage.Totals{CoveredLines: coverage.Int(3)}},
	})
	assert.Equal(t, Aggregate{}, agg)

	b, err := json.Marshal(agg)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"baseline": {"covered_lines": null, "percent_covered": null},
		"generated": {"covered_lines": null, "percent_covered": null},
		"delta": {"covered_lines": null, "percent_covered": null},
		"total_statements": null
	}`, string(b))
}

func TestComputeHardErrors(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "coverage_reports_before")
	gen := filepath.Join(root, "coverage_reports_after")

	_, err := Compute(base, gen)
	assert.True(t, errors.Is(err, ErrPhaseDirMissing), "got %v", err)

	require.NoError(t, os.MkdirAll(base, 0o755))
	_, err = Compute(base, gen)
	assert.True(t, errors.Is(err, ErrPhaseDirMissing), "got %v", err)

	require.NoError(t, os.MkdirAll(gen, 0o755))
	// files are not repositories
	require.NoError(t, os.WriteFile(filepath.Join(base, pipeline.SummaryFile), []byte("{}"), 0o644))
	_, err = Compute(base, gen)
	assert.True(t, errors.Is(err, ErrNoRepositories), "got %v", err)
}

func TestComputeUnion(t *testing.T) {
	base, gen := phaseDirs(t)
	writeReport(t, base, "zeta", report(50, 100))
	writeReport(t, gen, "zeta", report(70, 120))
	writeReport(t, base, "alpha", report(0, 0))
	writeReport(t, gen, "beta", report(1, 1))

	res, err := Compute(base, gen)
	require.NoError(t, err)

	var names []string
	for _, r := range res.Records {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"alpha", "beta", "zeta"}, names)
	assert.Equal(t, "missing_generated,no_generated_data", res.Records[0].Status)
	assert.Equal(t, 120, *res.Aggregate.TotalStatements)
}

func TestComputeStore(t *testing.T) {
	store := pipeline.NewStore(t.TempDir())
	writeReport(t, store.PhaseDir(pipeline.PhaseBaseline), "r", report(1, 4))
	writeReport(t, store.PhaseDir(pipeline.PhaseGenerated), "r", report(2, 4))

	res, err := ComputeStore(store)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "ok", res.Records[0].Status)
}

func TestFormatRepoLine(t *testing.T) {
	d := RepoDiff{Name: "taiga-back", Baseline: totals(50, 100), Generated: totals(70, 120), Status: "ok"}
	assert.Equal(t,
		"taiga-back: baseline 50/100 (50.00%) | generated 70/120 (58.33%) | Δlines +20 | Δpct +8.33% | status=ok",
		FormatRepoLine(d))

	down := RepoDiff{Name: "r", Baseline: totals(5, 10), Generated: totals(4, 10), Status: "ok"}
	assert.Contains(t, FormatRepoLine(down), "Δlines -1 | Δpct -10.00%")

	missing := RepoDiff{Name: "r", Baseline: totals(5, 10), Status: "missing_generated,no_generated_data"}
	assert.Equal(t,
		"r: baseline 5/10 (50.00%) | generated n/a | Δlines n/a | Δpct n/a | status=missing_generated,no_generated_data",
		FormatRepoLine(missing))
}

func TestFormatAggregate(t *testing.T) {
	lines := FormatAggregate(ComputeAggregate([]RepoDiff{{Baseline: totals(50, 100), Generated: totals(70, 100)}}))
	assert.Equal(t, []string{
		"Baseline covered: 50 (50.00%)",
		"Generated covered: 70 (70.00%)",
		"Delta lines: +20 | Delta pct: +20.00%",
		"Total statements: 100",
	}, lines)

	empty := strings.Join(FormatAggregate(Aggregate{}), "\n")
	assert.Equal(t, 7, strings.Count(empty, "n/a"), "every field renders as n/a")
}

func TestSaveJSON(t *testing.T) {
	base, gen := phaseDirs(t)
	writeReport(t, base, "r", report(50, 100))
	res, err := Compute(base, gen)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "nested", "diff.json")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, SaveJSON(out, res, now))

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "2026-03-01T12:00:00Z", doc["generated_at"])
	assert.Equal(t, base, doc["baseline_dir"])
	assert.Equal(t, gen, doc["generated_dir"])

	repos := doc["repositories"].([]any)
	require.Len(t, repos, 1)
	rec := repos[0].(map[string]any)
	assert.Equal(t, "missing_generated,no_generated_data", rec["status"])
	assert.Nil(t, rec["delta_lines"])
	assert.Nil(t, rec["delta_percent"])
	assert.Contains(t, rec, "baseline")

	agg := doc["aggregate"].(map[string]any)
	assert.Nil(t, agg["total_statements"])

	var back Document
	require.NoError(t, json.Unmarshal(data, &back))
	require.Len(t, back.Repositories, 1)
	assert.Equal(t, 50, *back.Repositories[0].Baseline.CoveredLines)
}
