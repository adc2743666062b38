package diff

// Side is one column of the aggregate.
type Side struct {
	CoveredLines   *int     `json:"covered_lines"`
	PercentCovered *float64 `json:"percent_covered"`
}

// Aggregate is the statement-weighted summary across repositories. Every
// field is nil when no repository qualifies.
type Aggregate struct {
	Baseline        Side `json:"baseline"`
	Generated       Side `json:"generated"`
	Delta           Side `json:"delta"`
	TotalStatements *int `json:"total_statements"`
}

// ComputeAggregate sums covered lines per side over repositories that have
// both counts on both sides. Each repository weighs the larger of its two
// statement counts.
func ComputeAggregate(records []RepoDiff) Aggregate {
	var baseCovered, genCovered, statements int
	for _, r := range records {
		if !r.Baseline.HasCounts() || !r.Generated.HasCounts() {
			continue
		}
		baseCovered += *r.Baseline.CoveredLines
		genCovered += *r.Generated.CoveredLines
		statements += max(*r.Baseline.NumStatements, *r.Generated.NumStatements)
	}
	if statements == 0 {
		return Aggregate{}
	}

	basePct := float64(baseCovered) / float64(statements) * 100
	genPct := float64(genCovered) / float64(statements) * 100
	deltaLines := genCovered - baseCovered
	deltaPct := genPct - basePct

	return Aggregate{
		Baseline:        Side{CoveredLines: &baseCovered, PercentCovered: &basePct},
		Generated:       Side{CoveredLines: &genCovered, PercentCovered: &genPct},
		Delta:           Side{CoveredLines: &deltaLines, PercentCovered: &deltaPct},
		TotalStatements: &statements,
	}
}
