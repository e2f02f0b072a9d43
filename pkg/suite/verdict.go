package suite

import (
	"errors"
	"fmt"

	"github.com/tidewater-io/datavet/pkg/analyzer"
	"github.com/tidewater-io/datavet/pkg/metric"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

// partOutcome is the evaluation of a single constraint part.
type partOutcome struct {
	status  Status
	message string
	value   metric.Value
}

// Evaluate applies the suite's assertions to a metric snapshot and produces
// the report. Evaluation is pure: running it twice over the same snapshot
// yields identical reports. Constraint results follow the suite's declared
// order.
func Evaluate(s *Suite, repo *analyzer.Repository) *Report {
	report := &Report{
		SuiteName: s.Name(),
		Timestamp: repo.Timestamp(),
	}

	for _, check := range s.Checks() {
		checkResult := CheckResult{
			CheckName: check.Name(),
			Severity:  check.Severity(),
			Status:    StatusSuccess,
		}

		// The check status is the worst constraint status, weighted by
		// severity: among equally bad statuses the higher-severity
		// constraint decides (Error > Warning > Info).
		worstSeverity := SeverityInfo

		for _, constraint := range check.Constraints() {
			severity := constraint.EffectiveSeverity(check.Severity())
			result := evaluateConstraint(constraint, severity, repo)

			checkResult.ConstraintResults = append(checkResult.ConstraintResults, result)

			if outranks(result.Status, severity, checkResult.Status, worstSeverity) {
				checkResult.Status = result.Status
				worstSeverity = severity
			}

			report.Totals.Total++

			switch result.Status {
			case StatusSuccess:
				report.Totals.Passed++
			case StatusFailure:
				report.Totals.Failed++
			case StatusSkipped:
				report.Totals.Skipped++
			}

			if result.Status != StatusSuccess {
				report.Issues = append(report.Issues, Issue{
					Severity: severity,
					Check:    check.Name(),
					Message:  result.ConstraintName + ": " + result.Message,
				})
			}
		}

		report.Checks = append(report.Checks, checkResult)
	}

	return report
}

// evaluateConstraint folds part outcomes under the constraint's combine mode.
func evaluateConstraint(c Constraint, severity Severity, repo *analyzer.Repository) ConstraintResult {
	outcomes := make([]partOutcome, 0, len(c.Parts()))
	for _, part := range c.Parts() {
		outcomes = append(outcomes, evaluatePart(part, severity, repo))
	}

	var folded partOutcome

	if c.Combine() == CombineAny {
		folded = foldAny(outcomes)
	} else {
		folded = foldAll(outcomes)
	}

	return ConstraintResult{
		ConstraintName: c.Name(),
		Status:         folded.status,
		Severity:       severity,
		Metric:         folded.value,
		Message:        folded.message,
	}
}

// evaluatePart resolves one analyzer metric and applies the assertion.
//
// Outcome policy: a column elided at schema pre-flight and an analyzer that
// timed out are always Skipped; an analyzer that returned NoData or failed
// otherwise follows the severity rule — Failure at error severity, Skipped
// otherwise.
func evaluatePart(part Part, severity Severity, repo *analyzer.Repository) partOutcome {
	key := part.Analyzer.MetricKey()
	fp := part.Analyzer.Descriptor().Fingerprint()

	outcome, ok := repo.Get(fp)
	if !ok {
		return partOutcome{
			status:  StatusFailure,
			message: fmt.Sprintf("%s: metric missing from snapshot", key),
		}
	}

	if outcome.Err != nil {
		return errorOutcome(key, outcome.Err, severity)
	}

	value, numeric := outcome.Value.AsDouble()
	if !numeric {
		return partOutcome{
			status:  StatusFailure,
			value:   outcome.Value,
			message: fmt.Sprintf("%s: metric %s is not numeric", key, outcome.Value),
		}
	}

	if part.Transform != nil {
		value = part.Transform(value)
	}

	if part.Assertion.Holds(value) {
		return partOutcome{
			status:  StatusSuccess,
			value:   outcome.Value,
			message: fmt.Sprintf("%s = %g satisfies %s", key, value, part.Assertion),
		}
	}

	return partOutcome{
		status:  StatusFailure,
		value:   outcome.Value,
		message: fmt.Sprintf("%s = %g does not satisfy %s", key, value, part.Assertion),
	}
}

// errorOutcome classifies an analyzer error into a part outcome.
func errorOutcome(key string, err error, severity Severity) partOutcome {
	if errors.Is(err, verrors.ErrSchemaMismatch) || errors.Is(err, verrors.ErrTimeout) {
		return partOutcome{
			status:  StatusSkipped,
			message: fmt.Sprintf("%s: skipped (%v)", key, err),
		}
	}

	if severity == SeverityError {
		return partOutcome{
			status:  StatusFailure,
			message: fmt.Sprintf("%s: %v", key, err),
		}
	}

	return partOutcome{
		status:  StatusSkipped,
		message: fmt.Sprintf("%s: skipped (%v)", key, err),
	}
}

// foldAll combines outcomes as a conjunction: Failure dominates, then
// Skipped, then Success.
func foldAll(outcomes []partOutcome) partOutcome {
	folded := outcomes[0]

	for _, o := range outcomes[1:] {
		if statusRank(o.status) > statusRank(folded.status) {
			folded = o
		}
	}

	return folded
}

// foldAny combines outcomes as a disjunction: Success dominates, then
// Skipped, then Failure.
func foldAny(outcomes []partOutcome) partOutcome {
	folded := outcomes[0]

	for _, o := range outcomes[1:] {
		if statusRank(o.status) < statusRank(folded.status) {
			folded = o
		}
	}

	return folded
}

// statusRank orders statuses by badness for folding.
func statusRank(s Status) int {
	switch s {
	case StatusSuccess:
		return 0
	case StatusSkipped:
		return 1
	case StatusFailure:
		return 2
	default:
		return 3
	}
}

// outranks reports whether outcome (status, severity) is worse than the
// current worst: status badness first, severity as the tie-break.
func outranks(status Status, severity Severity, worstStatus Status, worstSeverity Severity) bool {
	if statusRank(status) != statusRank(worstStatus) {
		return statusRank(status) > statusRank(worstStatus)
	}

	return severity < worstSeverity
}
