package testrun

import (
	"testing"
)

func TestParse_FullSummary(t *testing.T) {
	stdout := `============================= test session starts ==============================
collected 15 items

tests/test_api.py ..F.s.........E                                         [100%]

=========================== short test summary info ============================
FAILED tests/test_api.py::test_login - AssertionError
====== 1 failed, 12 passed, 1 skipped, 1 error, 3 warnings in 4.21s ======
`
	o := Parse(stdout, "")
	if o == nil {
		t.Fatal("expected an outcome")
	}
	if o.Passed != 12 || o.Failed != 1 || o.Skipped != 1 || o.Errors != 1 || o.Warnings != 3 {
		t.Errorf("counts = %+v", o)
	}
	if o.Duration != "4.21s" {
		t.Errorf("Duration = %q", o.Duration)
	}
	if o.Summary != "1 failed, 12 passed, 1 skipped, 1 error, 3 warnings in 4.21s" {
		t.Errorf("Summary = %q", o.Summary)
	}
	if o.Total() != 14 {
		t.Errorf("Total = %d, want 14", o.Total())
	}
	if got := o.Brief(); got != "12 passed, 1 failed, 1 errors, 1 skipped" {
		t.Errorf("Brief = %q", got)
	}
}

func TestParse_QuietMode(t *testing.T) {
	o := Parse("........\n8 passed in 0.52s\n", "")
	if o == nil || o.Passed != 8 || o.Failed != 0 {
		t.Fatalf("outcome = %+v", o)
	}
	if o.Brief() != "8 passed" {
		t.Errorf("Brief = %q", o.Brief())
	}
}

func TestParse_LongDuration(t *testing.T) {
	o := Parse("==== 200 passed in 125.01s (0:02:05) ====", "")
	if o == nil || o.Duration != "125.01s (0:02:05)" {
		t.Fatalf("outcome = %+v", o)
	}
}

func TestParse_NoTestsRan(t *testing.T) {
	o := Parse("===== no tests ran in 0.01s =====\n", "")
	if o == nil {
		t.Fatal("expected an outcome")
	}
	if o.Total() != 0 || o.Summary != "no tests ran in 0.01s" {
		t.Errorf("outcome = %+v", o)
	}
}

func TestParse_FallsBackToStderr(t *testing.T) {
	o := Parse("", "3 failed, 1 passed in 1.00s")
	if o == nil || o.Failed != 3 || o.Passed != 1 {
		t.Fatalf("outcome = %+v", o)
	}
}

func TestParse_NoSummary(t *testing.T) {
	cases := []string{
		"",
		"Ran 5 tests in 0.003s\n\nOK\n",
		"ERROR: file or directory not found: tests\n",
	}
	for _, c := range cases {
		if o := Parse(c, c); o != nil {
			t.Errorf("Parse(%q) = %+v, want nil", c, o)
		}
	}
}
