package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tidewater-io/datavet/pkg/suite"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

// suiteSpec is the YAML shape of a suite definition file.
type suiteSpec struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Optimizer   *bool       `yaml:"optimizer"`
	Checks      []checkSpec `yaml:"checks"`
}

// checkSpec is one check in a suite file.
type checkSpec struct {
	Name        string           `yaml:"name"`
	Severity    string           `yaml:"severity"`
	Description string           `yaml:"description"`
	Constraints []constraintSpec `yaml:"constraints"`
}

// constraintSpec is the tagged union for constraint declarations.
type constraintSpec struct {
	Type      string         `yaml:"type"`
	Column    string         `yaml:"column"`
	Columns   []string       `yaml:"columns"`
	Threshold *float64       `yaml:"threshold"`
	Pattern   string         `yaml:"pattern"`
	Format    string         `yaml:"format"`
	Values    []string       `yaml:"values"`
	Name      string         `yaml:"name"`
	Predicate string         `yaml:"predicate"`
	Assertion *assertionSpec `yaml:"assertion"`
	Severity  string         `yaml:"severity"`
}

// assertionSpec declares a numeric predicate.
type assertionSpec struct {
	Op    string  `yaml:"op"`
	Value float64 `yaml:"value"`
	Lo    float64 `yaml:"lo"`
	Hi    float64 `yaml:"hi"`
}

// LoadSuite reads and builds a validation suite from a YAML file.
func LoadSuite(path string) (*suite.Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read suite file: %w", verrors.ErrInvalidConfiguration, err)
	}

	return ParseSuite(data)
}

// ParseSuite builds a validation suite from YAML bytes.
func ParseSuite(data []byte) (*suite.Suite, error) {
	var spec suiteSpec

	decodeErr := yaml.Unmarshal(data, &spec)
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: parse suite file: %w", verrors.ErrInvalidConfiguration, decodeErr)
	}

	if spec.Name == "" {
		return nil, fmt.Errorf("%w: suite file needs a name", verrors.ErrInvalidConfiguration)
	}

	builder := suite.New(spec.Name)
	if spec.Description != "" {
		builder.Description(spec.Description)
	}

	if spec.Optimizer != nil {
		builder.OptimizerEnabled(*spec.Optimizer)
	}

	for _, cs := range spec.Checks {
		check, err := buildCheck(cs)
		if err != nil {
			return nil, err
		}

		builder.Check(check)
	}

	return builder.Build()
}

// parseSeverity maps the YAML severity names.
func parseSeverity(name string) (suite.Severity, error) {
	switch name {
	case "error", "":
		return suite.SeverityError, nil
	case "warning":
		return suite.SeverityWarning, nil
	case "info":
		return suite.SeverityInfo, nil
	default:
		return suite.SeverityError, fmt.Errorf("%w: unknown severity %q", verrors.ErrInvalidConfiguration, name)
	}
}

// parseAssertion maps an assertion spec to the engine predicate.
func parseAssertion(spec *assertionSpec) (suite.Assertion, error) {
	if spec == nil {
		return suite.Assertion{}, fmt.Errorf("%w: constraint needs an assertion", verrors.ErrInvalidConfiguration)
	}

	switch spec.Op {
	case "eq":
		return suite.Equals(spec.Value), nil
	case "ne":
		return suite.NotEquals(spec.Value), nil
	case "gt":
		return suite.GreaterThan(spec.Value), nil
	case "gte":
		return suite.GreaterThanOrEqual(spec.Value), nil
	case "lt":
		return suite.LessThan(spec.Value), nil
	case "lte":
		return suite.LessThanOrEqual(spec.Value), nil
	case "between":
		return suite.Between(spec.Lo, spec.Hi), nil
	case "not_between":
		return suite.NotBetween(spec.Lo, spec.Hi), nil
	default:
		return suite.Assertion{}, fmt.Errorf("%w: unknown assertion op %q", verrors.ErrInvalidConfiguration, spec.Op)
	}
}

// buildCheck assembles one check from its spec.
func buildCheck(cs checkSpec) (suite.Check, error) {
	severity, err := parseSeverity(cs.Severity)
	if err != nil {
		return suite.Check{}, err
	}

	builder := suite.NewCheck(cs.Name, severity)
	if cs.Description != "" {
		builder.Description(cs.Description)
	}

	for _, spec := range cs.Constraints {
		constraint, buildErr := buildConstraint(spec)
		if buildErr != nil {
			return suite.Check{}, fmt.Errorf("check %q: %w", cs.Name, buildErr)
		}

		if spec.Severity != "" {
			override, sevErr := parseSeverity(spec.Severity)
			if sevErr != nil {
				return suite.Check{}, sevErr
			}

			constraint = constraint.WithSeverity(override)
		}

		builder.Constraint(constraint)
	}

	return builder.Build()
}

// threshold returns the declared threshold or a default.
func (c constraintSpec) threshold(fallback float64) float64 {
	if c.Threshold != nil {
		return *c.Threshold
	}

	return fallback
}

// buildConstraint lowers one constraint spec.
func buildConstraint(spec constraintSpec) (suite.Constraint, error) {
	switch spec.Type {
	case "is_complete":
		return suite.IsComplete(spec.Column), nil
	case "has_completeness":
		return suite.HasCompleteness(spec.Column, spec.threshold(1)), nil
	case "is_unique":
		return suite.IsUnique(spec.columns()...), nil
	case "has_uniqueness":
		return suite.HasUniqueness(spec.columns(), spec.threshold(1)), nil
	case "is_primary_key":
		return suite.IsPrimaryKey(spec.columns()...), nil
	case "has_size":
		assertion, err := parseAssertion(spec.Assertion)
		if err != nil {
			return suite.Constraint{}, err
		}

		return suite.HasSize(assertion), nil
	case "has_min", "has_max", "has_mean", "has_stddev", "has_sum", "has_entropy":
		return buildStatConstraint(spec)
	case "satisfies":
		return suite.Satisfies(spec.Name, spec.Predicate, spec.threshold(1))
	case "is_contained_in":
		return suite.IsContainedIn(spec.Column, spec.Values, spec.threshold(1))
	case "has_pattern":
		return suite.HasPattern(spec.Column, spec.Pattern, spec.threshold(1))
	case "has_format":
		return suite.HasFormat(spec.Column, suite.Format(spec.Format), spec.threshold(1))
	case "has_correlation":
		cols := spec.columns()
		if len(cols) != 2 {
			return suite.Constraint{}, fmt.Errorf("%w: has_correlation needs exactly two columns", verrors.ErrInvalidConfiguration)
		}

		return suite.HasCorrelation(cols[0], cols[1], spec.threshold(0.5)), nil
	case "have_all_completeness":
		return suite.HaveAllCompleteness(spec.Columns, spec.threshold(1)), nil
	case "have_any_completeness":
		return suite.HaveAnyCompleteness(spec.Columns, spec.threshold(1)), nil
	default:
		return suite.Constraint{}, fmt.Errorf("%w: unknown constraint type %q", verrors.ErrInvalidConfiguration, spec.Type)
	}
}

// buildStatConstraint lowers single-statistic constraints.
func buildStatConstraint(spec constraintSpec) (suite.Constraint, error) {
	assertion, err := parseAssertion(spec.Assertion)
	if err != nil {
		return suite.Constraint{}, err
	}

	switch spec.Type {
	case "has_min":
		return suite.HasMin(spec.Column, assertion), nil
	case "has_max":
		return suite.HasMax(spec.Column, assertion), nil
	case "has_mean":
		return suite.HasMean(spec.Column, assertion), nil
	case "has_stddev":
		return suite.HasStdDev(spec.Column, assertion), nil
	case "has_sum":
		return suite.HasSum(spec.Column, assertion), nil
	case "has_entropy":
		return suite.HasEntropy(spec.Column, assertion), nil
	default:
		return suite.Constraint{}, fmt.Errorf("%w: unknown statistic %q", verrors.ErrInvalidConfiguration, spec.Type)
	}
}

// columns returns Columns or falls back to the single Column field.
func (c constraintSpec) columns() []string {
	if len(c.Columns) > 0 {
		return c.Columns
	}

	if c.Column != "" {
		return []string{c.Column}
	}

	return nil
}
