package suite

import (
	"fmt"
	"math"
	"strings"

	"github.com/tidewater-io/datavet/pkg/analyzer"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

// Severity ranks how a constraint failure affects the suite verdict.
type Severity uint8

// Severities, most severe first.
const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	default:
		return "unknown"
	}
}

// Status is a per-constraint outcome.
type Status uint8

// Statuses.
const (
	StatusSuccess Status = iota
	StatusFailure
	StatusSkipped
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// CombineMode selects how a multi-part constraint folds part outcomes.
type CombineMode uint8

const (
	// CombineAll requires every part to hold (conjunction). Skipped parts
	// mask through as Skipped unless another part failed.
	CombineAll CombineMode = iota

	// CombineAny requires at least one part to hold (disjunction).
	CombineAny
)

// Part is one analyzer reference with the predicate applied to its metric.
type Part struct {
	// Analyzer produces the metric this part asserts on.
	Analyzer analyzer.Analyzer

	// Assertion is the numeric predicate.
	Assertion Assertion

	// Transform optionally maps the metric before assertion (e.g. absolute
	// value for correlation magnitude). Nil means identity.
	Transform func(float64) float64
}

// Constraint is a named assertion over one or more analyzer metrics.
type Constraint struct {
	name        string
	description string
	parts       []Part
	combine     CombineMode
	severity    *Severity
}

// Name returns the constraint name.
func (c Constraint) Name() string {
	return c.name
}

// Description returns the optional description.
func (c Constraint) Description() string {
	return c.description
}

// Parts returns the analyzer-assertion pairs.
func (c Constraint) Parts() []Part {
	return c.parts
}

// Combine returns the part combination mode.
func (c Constraint) Combine() CombineMode {
	return c.combine
}

// EffectiveSeverity resolves the constraint severity against the holding
// check's default.
func (c Constraint) EffectiveSeverity(checkSeverity Severity) Severity {
	if c.severity != nil {
		return *c.severity
	}

	return checkSeverity
}

// WithSeverity overrides the severity the holding check would propagate.
func (c Constraint) WithSeverity(severity Severity) Constraint {
	c.severity = &severity

	return c
}

// WithDescription attaches a description.
func (c Constraint) WithDescription(description string) Constraint {
	c.description = description

	return c
}

// Analyzers returns the analyzers this constraint depends on.
func (c Constraint) Analyzers() []analyzer.Analyzer {
	out := make([]analyzer.Analyzer, 0, len(c.parts))
	for _, p := range c.parts {
		out = append(out, p.Analyzer)
	}

	return out
}

// singlePart wraps one analyzer and assertion into a constraint.
func singlePart(name string, a analyzer.Analyzer, assertion Assertion) Constraint {
	return Constraint{
		name:  name,
		parts: []Part{{Analyzer: a, Assertion: assertion}},
	}
}

// IsComplete requires the column to have no nulls.
func IsComplete(column string) Constraint {
	return singlePart(
		"is_complete("+column+")",
		analyzer.NewCompleteness(column),
		GreaterThanOrEqual(1.0-equalityEpsilon),
	)
}

// HasCompleteness requires the column's non-null ratio to reach threshold.
func HasCompleteness(column string, threshold float64) Constraint {
	return singlePart(
		fmt.Sprintf("has_completeness(%s,%g)", column, threshold),
		analyzer.NewCompleteness(column),
		GreaterThanOrEqual(threshold),
	)
}

// IsUnique requires every value combination of the columns to be distinct.
func IsUnique(columns ...string) Constraint {
	return singlePart(
		"is_unique("+strings.Join(columns, ",")+")",
		analyzer.NewUniqueness(columns...),
		Equals(1.0),
	)
}

// HasUniqueness requires the distinct-to-rows ratio to reach threshold.
func HasUniqueness(columns []string, threshold float64) Constraint {
	return singlePart(
		fmt.Sprintf("has_uniqueness(%s,%g)", strings.Join(columns, ","), threshold),
		analyzer.NewUniqueness(columns...),
		GreaterThanOrEqual(threshold),
	)
}

// HasSize asserts on the dataset row count.
func HasSize(assertion Assertion) Constraint {
	return singlePart("has_size("+assertion.String()+")", analyzer.NewSize(), assertion)
}

// HasMin asserts on the column minimum.
func HasMin(column string, assertion Assertion) Constraint {
	return singlePart("has_min("+column+")", analyzer.NewMinimum(column), assertion)
}

// HasMax asserts on the column maximum.
func HasMax(column string, assertion Assertion) Constraint {
	return singlePart("has_max("+column+")", analyzer.NewMaximum(column), assertion)
}

// HasMean asserts on the column mean.
func HasMean(column string, assertion Assertion) Constraint {
	return singlePart("has_mean("+column+")", analyzer.NewMean(column), assertion)
}

// HasStdDev asserts on the column population standard deviation.
func HasStdDev(column string, assertion Assertion) Constraint {
	return singlePart("has_stddev("+column+")", analyzer.NewStdDev(column), assertion)
}

// HasSum asserts on the column sum.
func HasSum(column string, assertion Assertion) Constraint {
	return singlePart("has_sum("+column+")", analyzer.NewSum(column), assertion)
}

// HasEntropy asserts on the column's Shannon entropy.
func HasEntropy(column string, assertion Assertion) Constraint {
	return singlePart("has_entropy("+column+")", analyzer.NewEntropy(column), assertion)
}

// HasApproxQuantile asserts on an approximate column quantile.
func HasApproxQuantile(column string, q float64, assertion Assertion) (Constraint, error) {
	a, err := analyzer.NewQuantile(column, q)
	if err != nil {
		return Constraint{}, err
	}

	return singlePart(fmt.Sprintf("has_approx_quantile(%s,%g)", column, q), a, assertion), nil
}

// Satisfies requires the fraction of rows passing the SQL predicate to reach
// threshold.
func Satisfies(name, predicate string, threshold float64) (Constraint, error) {
	a, err := analyzer.NewCustomRatio(name, predicate)
	if err != nil {
		return Constraint{}, err
	}

	return singlePart(
		fmt.Sprintf("satisfies(%s,%g)", name, threshold),
		a,
		GreaterThanOrEqual(threshold),
	), nil
}

// IsContainedIn requires the fraction of values inside the allowed set to
// reach threshold. Use threshold 1.0 for strict containment.
func IsContainedIn(column string, allowed []string, threshold float64) (Constraint, error) {
	a, err := analyzer.NewContainment(column, allowed)
	if err != nil {
		return Constraint{}, err
	}

	return singlePart(
		fmt.Sprintf("is_contained_in(%s,%g)", column, threshold),
		a,
		GreaterThanOrEqual(threshold),
	), nil
}

// HasPattern requires the fraction of values matching the regular expression
// to reach threshold.
func HasPattern(column, pattern string, threshold float64) (Constraint, error) {
	a, err := analyzer.NewCompliance(column, pattern)
	if err != nil {
		return Constraint{}, err
	}

	return singlePart(
		fmt.Sprintf("has_pattern(%s,%g)", column, threshold),
		a,
		GreaterThanOrEqual(threshold),
	), nil
}

// HasFormat requires the fraction of values matching a well-known format to
// reach threshold.
func HasFormat(column string, format Format, threshold float64) (Constraint, error) {
	pattern, err := format.Pattern()
	if err != nil {
		return Constraint{}, err
	}

	c, err := HasPattern(column, pattern, threshold)
	if err != nil {
		return Constraint{}, err
	}

	c.name = fmt.Sprintf("has_format(%s,%s,%g)", column, format, threshold)

	return c, nil
}

// HasCorrelation requires the magnitude of the Pearson correlation between
// the columns to reach threshold.
func HasCorrelation(first, second string, threshold float64) Constraint {
	c := singlePart(
		fmt.Sprintf("has_correlation(%s,%s,%g)", first, second, threshold),
		analyzer.NewCorrelation(first, second),
		GreaterThanOrEqual(threshold),
	)
	c.parts[0].Transform = math.Abs

	return c
}

// HasMutualInformation asserts on the mutual information of a column pair.
func HasMutualInformation(first, second string, assertion Assertion) Constraint {
	return singlePart(
		"has_mutual_information("+first+","+second+")",
		analyzer.NewMutualInformation(first, second),
		assertion,
	)
}

// HasDistinctness asserts on the approximate distinct-to-non-null ratio.
func HasDistinctness(column string, assertion Assertion) Constraint {
	return singlePart("has_distinctness("+column+")", analyzer.NewDistinctness(column), assertion)
}

// HaveAllCompleteness requires every listed column to reach the completeness
// threshold. One completeness analyzer is emitted per column; results
// combine as a conjunction.
func HaveAllCompleteness(columns []string, threshold float64) Constraint {
	return multiCompleteness("have_all_completeness", columns, threshold, CombineAll)
}

// HaveAnyCompleteness requires at least one listed column to reach the
// completeness threshold.
func HaveAnyCompleteness(columns []string, threshold float64) Constraint {
	return multiCompleteness("have_any_completeness", columns, threshold, CombineAny)
}

// multiCompleteness expands a column list into per-column completeness parts.
func multiCompleteness(kind string, columns []string, threshold float64, mode CombineMode) Constraint {
	parts := make([]Part, 0, len(columns))
	for _, col := range columns {
		parts = append(parts, Part{
			Analyzer:  analyzer.NewCompleteness(col),
			Assertion: GreaterThanOrEqual(threshold),
		})
	}

	return Constraint{
		name:    fmt.Sprintf("%s(%s,%g)", kind, strings.Join(columns, ","), threshold),
		parts:   parts,
		combine: mode,
	}
}

// IsPrimaryKey requires every key column to be complete and the column tuple
// to be unique.
func IsPrimaryKey(columns ...string) Constraint {
	parts := make([]Part, 0, len(columns)+1)

	for _, col := range columns {
		parts = append(parts, Part{
			Analyzer:  analyzer.NewCompleteness(col),
			Assertion: GreaterThanOrEqual(1.0 - equalityEpsilon),
		})
	}

	parts = append(parts, Part{
		Analyzer:  analyzer.NewUniqueness(columns...),
		Assertion: Equals(1.0),
	})

	return Constraint{
		name:  "is_primary_key(" + strings.Join(columns, ",") + ")",
		parts: parts,
	}
}

// StatisticsOptions selects which statistics a Statistics constraint asserts
// on. Nil fields are not checked.
type StatisticsOptions struct {
	Min    *Assertion
	Max    *Assertion
	Mean   *Assertion
	StdDev *Assertion
}

// Statistics asserts on several statistics of one column as a single
// conjunction constraint. Skipped parts mask through as Skipped.
func Statistics(column string, opts StatisticsOptions) (Constraint, error) {
	var parts []Part

	if opts.Min != nil {
		parts = append(parts, Part{Analyzer: analyzer.NewMinimum(column), Assertion: *opts.Min})
	}

	if opts.Max != nil {
		parts = append(parts, Part{Analyzer: analyzer.NewMaximum(column), Assertion: *opts.Max})
	}

	if opts.Mean != nil {
		parts = append(parts, Part{Analyzer: analyzer.NewMean(column), Assertion: *opts.Mean})
	}

	if opts.StdDev != nil {
		parts = append(parts, Part{Analyzer: analyzer.NewStdDev(column), Assertion: *opts.StdDev})
	}

	if len(parts) == 0 {
		return Constraint{}, fmt.Errorf("%w: statistics(%s) selects no assertions", verrors.ErrInvalidConfiguration, column)
	}

	return Constraint{
		name:  "statistics(" + column + ")",
		parts: parts,
	}, nil
}
