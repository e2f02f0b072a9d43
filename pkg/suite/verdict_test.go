package suite

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewater-io/datavet/pkg/analyzer"
	"github.com/tidewater-io/datavet/pkg/metric"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

// snapshotFor builds a metric snapshot keyed by the constraints' analyzers.
func snapshotFor(outcomes map[string]analyzer.Outcome, constraints ...Constraint) *analyzer.Repository {
	repo := analyzer.NewRepository(time.Unix(1700000000, 0))

	for _, c := range constraints {
		for _, a := range c.Analyzers() {
			if outcome, ok := outcomes[a.MetricKey()]; ok {
				repo.Put(a.Descriptor().Fingerprint(), outcome)
			}
		}
	}

	return repo
}

func buildSuite(t *testing.T, severity Severity, constraints ...Constraint) *Suite {
	t.Helper()

	builder := NewCheck("check", severity)
	for _, c := range constraints {
		builder.Constraint(c)
	}

	check, err := builder.Build()
	require.NoError(t, err)

	s, err := New("test_suite").Check(check).Build()
	require.NoError(t, err)

	return s
}

func TestEvaluate_CompletenessThresholds(t *testing.T) {
	t.Parallel()

	pass := HasCompleteness("email", 0.5)
	fail := HasCompleteness("email", 0.9)

	repo := snapshotFor(map[string]analyzer.Outcome{
		"completeness.email": {Value: metric.Double(0.75)},
	}, pass, fail)

	report := Evaluate(buildSuite(t, SeverityError, pass, fail), repo)

	require.Len(t, report.Checks, 1)
	results := report.Checks[0].ConstraintResults
	require.Len(t, results, 2)

	assert.Equal(t, StatusSuccess, results[0].Status)
	assert.Equal(t, StatusFailure, results[1].Status)
	assert.False(t, report.IsSuccess())
	assert.Equal(t, Totals{Total: 2, Passed: 1, Failed: 1}, report.Totals)
	require.Len(t, report.Issues, 1)
}

func TestEvaluate_SizeOnEmptyDataset(t *testing.T) {
	t.Parallel()

	equalsZero := HasSize(Equals(0))
	greaterZero := HasSize(GreaterThan(0))

	repo := snapshotFor(map[string]analyzer.Outcome{
		"size": {Value: metric.Long(0)},
	}, equalsZero, greaterZero)

	report := Evaluate(buildSuite(t, SeverityError, equalsZero, greaterZero), repo)

	results := report.Checks[0].ConstraintResults
	assert.Equal(t, StatusSuccess, results[0].Status)
	assert.Equal(t, StatusFailure, results[1].Status)
}

func TestEvaluate_SeverityMonotonicityOnNoData(t *testing.T) {
	t.Parallel()

	noData := map[string]analyzer.Outcome{
		"mean.amount": {Err: verrors.ErrNoData},
	}

	for _, tc := range []struct {
		severity Severity
		want     Status
	}{
		{SeverityError, StatusFailure},
		{SeverityWarning, StatusSkipped},
		{SeverityInfo, StatusSkipped},
	} {
		c := HasMean("amount", GreaterThan(0))
		repo := snapshotFor(noData, c)

		report := Evaluate(buildSuite(t, tc.severity, c), repo)

		assert.Equal(t, tc.want, report.Checks[0].ConstraintResults[0].Status, tc.severity)
	}
}

func TestEvaluate_MissingColumnAlwaysSkips(t *testing.T) {
	t.Parallel()

	c := IsComplete("ghost")
	repo := snapshotFor(map[string]analyzer.Outcome{
		"completeness.ghost": {Err: fmt.Errorf("%w: column ghost", verrors.ErrSchemaMismatch)},
	}, c)

	report := Evaluate(buildSuite(t, SeverityError, c), repo)

	assert.Equal(t, StatusSkipped, report.Checks[0].ConstraintResults[0].Status)
	assert.True(t, report.IsSuccess())
}

func TestEvaluate_ConstraintSeverityOverride(t *testing.T) {
	t.Parallel()

	c := HasMean("amount", GreaterThan(0)).WithSeverity(SeverityWarning)
	repo := snapshotFor(map[string]analyzer.Outcome{
		"mean.amount": {Err: verrors.ErrNoData},
	}, c)

	report := Evaluate(buildSuite(t, SeverityError, c), repo)

	result := report.Checks[0].ConstraintResults[0]
	assert.Equal(t, StatusSkipped, result.Status)
	assert.Equal(t, SeverityWarning, result.Severity)
}

func TestEvaluate_CorrelationMagnitude(t *testing.T) {
	t.Parallel()

	c := HasCorrelation("x", "y", 0.8)
	repo := snapshotFor(map[string]analyzer.Outcome{
		"correlation.x,y": {Value: metric.Double(-0.95)},
	}, c)

	report := Evaluate(buildSuite(t, SeverityError, c), repo)

	assert.Equal(t, StatusSuccess, report.Checks[0].ConstraintResults[0].Status)
}

func TestEvaluate_ConjunctionSkippedMasks(t *testing.T) {
	t.Parallel()

	c, err := Statistics("amount", StatisticsOptions{
		Min:  ptr(GreaterThanOrEqual(0)),
		Mean: ptr(GreaterThan(1)),
	})
	require.NoError(t, err)

	repo := snapshotFor(map[string]analyzer.Outcome{
		"minimum.amount": {Value: metric.Double(5)},
		"mean.amount":    {Err: verrors.ErrNoData},
	}, c)

	report := Evaluate(buildSuite(t, SeverityWarning, c), repo)

	assert.Equal(t, StatusSkipped, report.Checks[0].ConstraintResults[0].Status)
}

func TestEvaluate_ConjunctionFailureDominates(t *testing.T) {
	t.Parallel()

	c, err := Statistics("amount", StatisticsOptions{
		Min:  ptr(GreaterThanOrEqual(100)),
		Mean: ptr(GreaterThan(1)),
	})
	require.NoError(t, err)

	repo := snapshotFor(map[string]analyzer.Outcome{
		"minimum.amount": {Value: metric.Double(5)},
		"mean.amount":    {Err: verrors.ErrNoData},
	}, c)

	report := Evaluate(buildSuite(t, SeverityWarning, c), repo)

	assert.Equal(t, StatusFailure, report.Checks[0].ConstraintResults[0].Status)
}

func TestEvaluate_AnyCompleteness(t *testing.T) {
	t.Parallel()

	c := HaveAnyCompleteness([]string{"a", "b"}, 0.9)
	repo := snapshotFor(map[string]analyzer.Outcome{
		"completeness.a": {Value: metric.Double(0.2)},
		"completeness.b": {Value: metric.Double(0.95)},
	}, c)

	report := Evaluate(buildSuite(t, SeverityError, c), repo)

	assert.Equal(t, StatusSuccess, report.Checks[0].ConstraintResults[0].Status)
}

func TestEvaluate_AllCompleteness(t *testing.T) {
	t.Parallel()

	c := HaveAllCompleteness([]string{"a", "b"}, 0.9)
	repo := snapshotFor(map[string]analyzer.Outcome{
		"completeness.a": {Value: metric.Double(0.2)},
		"completeness.b": {Value: metric.Double(0.95)},
	}, c)

	report := Evaluate(buildSuite(t, SeverityError, c), repo)

	assert.Equal(t, StatusFailure, report.Checks[0].ConstraintResults[0].Status)
}

func TestEvaluate_MissingMetricIsFailure(t *testing.T) {
	t.Parallel()

	c := HasSize(Equals(1))
	repo := analyzer.NewRepository(time.Unix(1700000000, 0))

	report := Evaluate(buildSuite(t, SeverityWarning, c), repo)

	assert.Equal(t, StatusFailure, report.Checks[0].ConstraintResults[0].Status)
}

func TestEvaluate_Idempotent(t *testing.T) {
	t.Parallel()

	pass := HasCompleteness("email", 0.5)
	fail := HasCompleteness("email", 0.9)
	skip := HasMean("amount", GreaterThan(0))

	repo := snapshotFor(map[string]analyzer.Outcome{
		"completeness.email": {Value: metric.Double(0.75)},
		"mean.amount":        {Err: verrors.ErrNoData},
	}, pass, fail, skip)

	s := buildSuite(t, SeverityWarning, pass, fail, skip)

	first := Evaluate(s, repo)
	second := Evaluate(s, repo)

	assert.Equal(t, first, second)
}

func TestCheckBuilder_PropagatesConstructorErrors(t *testing.T) {
	t.Parallel()

	_, err := NewCheck("bad", SeverityError).
		HasPattern("email", "([", 0.9).
		Build()

	require.ErrorIs(t, err, verrors.ErrInvalidConfiguration)
}

func TestSuiteBuilder_RejectsEmptySuite(t *testing.T) {
	t.Parallel()

	_, err := New("empty").Build()
	require.ErrorIs(t, err, verrors.ErrInvalidConfiguration)
}

func TestSuite_FingerprintStable(t *testing.T) {
	t.Parallel()

	build := func() *Suite {
		check, err := NewCheck("c", SeverityError).IsComplete("email").Build()
		require.NoError(t, err)

		s, err := New("s").Check(check).Build()
		require.NoError(t, err)

		return s
	}

	assert.Equal(t, build().Fingerprint(), build().Fingerprint())
}

func ptr[T any](v T) *T {
	return &v
}
