// Package testrun extracts test counts from a test runner's terminal output.
package testrun

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Outcome holds the counts from pytest's final summary line.
type Outcome struct {
	Passed     int    `json:"passed"`
	Failed     int    `json:"failed"`
	Errors     int    `json:"errors"`
	Skipped    int    `json:"skipped"`
	XFailed    int    `json:"xfailed,omitempty"`
	XPassed    int    `json:"xpassed,omitempty"`
	Deselected int    `json:"deselected,omitempty"`
	Warnings   int    `json:"warnings,omitempty"`
	Duration   string `json:"duration,omitempty"`
	Summary    string `json:"summary"`
}

var (
	countRe    = regexp.MustCompile(`(\d+) (passed|failed|errors?|skipped|xfailed|xpassed|deselected|warnings?)\b`)
	durationRe = regexp.MustCompile(`\bin ([\d.]+s(?: \([\d:]+\))?)`)
	noTestsRe  = regexp.MustCompile(`\bno tests ran\b`)
)

// Total is the number of tests that ran.
func (o Outcome) Total() int {
	return o.Passed + o.Failed + o.Errors + o.XFailed + o.XPassed
}

func (o Outcome) String() string {
	return o.Summary
}

// Parse finds the last pytest summary line in stdout, falling back to stderr.
// It returns nil when neither contains one, e.g. for a custom run command.
func Parse(stdout, stderr string) *Outcome {
	if o := parse(stdout); o != nil {
		return o
	}
	return parse(stderr)
}

func parse(out string) *Outcome {
	lines := strings.Split(out, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.Trim(strings.TrimSpace(lines[i]), "= ")
		if line == "" || !durationRe.MatchString(line) {
			continue
		}
		matches := countRe.FindAllStringSubmatch(line, -1)
		if len(matches) == 0 && !noTestsRe.MatchString(line) {
			continue
		}

		o := &Outcome{Summary: line}
		if m := durationRe.FindStringSubmatch(line); m != nil {
			o.Duration = m[1]
		}
		for _, m := range matches {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			switch m[2] {
			case "passed":
				o.Passed = n
			case "failed":
				o.Failed = n
			case "error", "errors":
				o.Errors = n
			case "skipped":
				o.Skipped = n
			case "xfailed":
				o.XFailed = n
			case "xpassed":
				o.XPassed = n
			case "deselected":
				o.Deselected = n
			case "warning", "warnings":
				o.Warnings = n
			}
		}
		return o
	}
	return nil
}

// Brief renders "N passed, M failed" style counts, omitting zero fields.
func (o Outcome) Brief() string {
	parts := []string{fmt.Sprintf("%d passed", o.Passed)}
	if o.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", o.Failed))
	}
	if o.Errors > 0 {
		parts = append(parts, fmt.Sprintf("%d errors", o.Errors))
	}
	if o.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", o.Skipped))
	}
	return strings.Join(parts, ", ")
}
