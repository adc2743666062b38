package pipeline

import "github.com/mir/fiddle-test-cov/internal/runner"

// Status is the terminal state of a repository pipeline.
type Status string

const (
	StatusCompleted            Status = "completed"
	StatusDependencySyncFailed Status = "dependency_sync_failed"
	StatusTestsFailed          Status = "tests_failed"
	StatusExportFailed         Status = "export_failed"
	StatusMissingRepository    Status = "missing_repository"
	StatusSkippedNoProject     Status = "skipped_no_python_project"
)

// Fail records a step failure of kind next. Only completed moves; the first
// failure recorded for a run sticks.
func (s Status) Fail(next Status) Status {
	if s == StatusCompleted {
		return next
	}
	return s
}

// Observe folds one step outcome into the status.
func (s Status) Observe(res runner.Result, onFail Status) Status {
	if res.Failed() {
		return s.Fail(onFail)
	}
	return s
}

// OK reports whether the pipeline finished without any failure.
func (s Status) OK() bool {
	return s == StatusCompleted
}

// Skipped reports whether the repository was never processed.
func (s Status) Skipped() bool {
	return s == StatusMissingRepository || s == StatusSkippedNoProject
}
