package suite

import (
	"time"

	"github.com/tidewater-io/datavet/pkg/metric"
)

// ConstraintResult is the verdict for one constraint.
type ConstraintResult struct {
	ConstraintName string
	Status         Status
	Severity       Severity
	Metric         metric.Value
	Message        string
}

// CheckResult aggregates the constraint results of one check. Status is the
// worst constraint status: Failure > Skipped > Success.
type CheckResult struct {
	CheckName         string
	Severity          Severity
	Status            Status
	ConstraintResults []ConstraintResult
}

// Issue is one user-facing entry for a non-success constraint.
type Issue struct {
	Severity Severity
	Check    string
	Message  string
}

// Totals counts constraint outcomes across the suite.
type Totals struct {
	Total   int
	Passed  int
	Failed  int
	Skipped int
}

// Report is the full verdict of a suite run.
type Report struct {
	SuiteName string
	Timestamp time.Time
	Checks    []CheckResult
	Totals    Totals
	Issues    []Issue
}

// IsSuccess reports whether no error-severity constraint failed.
func (r *Report) IsSuccess() bool {
	for _, check := range r.Checks {
		for _, cr := range check.ConstraintResults {
			if cr.Status == StatusFailure && cr.Severity == SeverityError {
				return false
			}
		}
	}

	return true
}
