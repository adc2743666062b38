// Package coverage normalizes coverage.py JSON reports into a single
// {covered, total, percent} statistic.
package coverage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Totals is the canonical coverage statistic. Every field is optional
// because partial or malformed reports must not break aggregation.
type Totals struct {
	CoveredLines   *int     `json:"covered_lines"`
	NumStatements  *int     `json:"num_statements"`
	PercentCovered *float64 `json:"percent_covered"`
}

// summaryKeys are the top-level keys that hold the totals object, in lookup order.
// Older coverage.py releases wrote "summary".
var summaryKeys = []string{"totals", "summary"}

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// IsEmpty reports whether no field is set.
func (t Totals) IsEmpty() bool {
	return t.CoveredLines == nil && t.NumStatements == nil && t.PercentCovered == nil
}

// HasCounts reports whether both line counts are present.
func (t Totals) HasCounts() bool {
	return t.CoveredLines != nil && t.NumStatements != nil
}

// String renders "covered/total (pct%)" or "n/a" when a count is missing.
func (t Totals) String() string {
	if !t.HasCounts() {
		return "n/a"
	}
	pct := 0.0
	if t.PercentCovered != nil {
		pct = *t.PercentCovered
	}
	return fmt.Sprintf("%d/%d (%.2f%%)", *t.CoveredLines, *t.NumStatements, pct)
}

// FromJSON parses a coverage report payload. It never fails: empty,
// unparsable, or oddly shaped input yields an empty Totals.
func FromJSON(data []byte) Totals {
	if len(bytes.TrimSpace(data)) == 0 {
		return Totals{}
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return Totals{}
	}

	var summary map[string]json.RawMessage
	for _, key := range summaryKeys {
		raw, ok := doc[key]
		if !ok {
			continue
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil || len(obj) == 0 {
			continue
		}
		summary = obj
		break
	}
	if summary == nil {
		return Totals{}
	}

	t := Totals{
		CoveredLines:   intField(summary, "covered_lines"),
		NumStatements:  intField(summary, "num_statements"),
		PercentCovered: floatField(summary, "percent_covered"),
	}
	if t.PercentCovered == nil && t.CoveredLines != nil && t.NumStatements != nil && *t.NumStatements != 0 {
		pct := float64(*t.CoveredLines) / float64(*t.NumStatements) * 100
		t.PercentCovered = &pct
	}
	return t
}

// LoadFile reads and normalizes a coverage.json file. A missing or
// unreadable file yields an empty Totals.
func LoadFile(path string) Totals {
	data, err := os.ReadFile(path)
	if err != nil {
		return Totals{}
	}
	return FromJSON(data)
}

func floatField(obj map[string]json.RawMessage, key string) *float64 {
	raw, ok := obj[key]
	if !ok {
		return nil
	}
	var v *float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

// intField accepts integral JSON numbers only; 12.0 is tolerated, 12.5 is not.
func intField(obj map[string]json.RawMessage, key string) *int {
	f := floatField(obj, key)
	if f == nil || math.Trunc(*f) != *f || math.IsInf(*f, 0) {
		return nil
	}
	v := int(*f)
	return &v
}
