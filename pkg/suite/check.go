package suite

// Check is an immutable named group of constraints sharing a severity.
type Check struct {
	name        string
	description string
	severity    Severity
	constraints []Constraint
}

// Name returns the check name.
func (c Check) Name() string {
	return c.name
}

// Description returns the optional description.
func (c Check) Description() string {
	return c.description
}

// Severity returns the severity propagated to constraints without an
// override.
func (c Check) Severity() Severity {
	return c.severity
}

// Constraints returns the constraints in declared order.
func (c Check) Constraints() []Constraint {
	out := make([]Constraint, len(c.constraints))
	copy(out, c.constraints)

	return out
}

// CheckBuilder assembles a check. Constructor errors (bad patterns, empty
// sets) are deferred to Build so call chains stay flat.
type CheckBuilder struct {
	check Check
	err   error
}

// NewCheck starts a check with the given name and severity.
func NewCheck(name string, severity Severity) *CheckBuilder {
	return &CheckBuilder{check: Check{name: name, severity: severity}}
}

// Description sets the check description.
func (b *CheckBuilder) Description(description string) *CheckBuilder {
	b.check.description = description

	return b
}

// Constraint appends an already-built constraint.
func (b *CheckBuilder) Constraint(c Constraint) *CheckBuilder {
	b.check.constraints = append(b.check.constraints, c)

	return b
}

// ConstraintE appends the result of an errorful constraint constructor,
// keeping the first error for Build.
func (b *CheckBuilder) ConstraintE(c Constraint, err error) *CheckBuilder {
	if err != nil {
		if b.err == nil {
			b.err = err
		}

		return b
	}

	return b.Constraint(c)
}

// IsComplete appends an is_complete constraint.
func (b *CheckBuilder) IsComplete(column string) *CheckBuilder {
	return b.Constraint(IsComplete(column))
}

// HasCompleteness appends a has_completeness constraint.
func (b *CheckBuilder) HasCompleteness(column string, threshold float64) *CheckBuilder {
	return b.Constraint(HasCompleteness(column, threshold))
}

// IsUnique appends an is_unique constraint.
func (b *CheckBuilder) IsUnique(columns ...string) *CheckBuilder {
	return b.Constraint(IsUnique(columns...))
}

// HasUniqueness appends a has_uniqueness constraint.
func (b *CheckBuilder) HasUniqueness(columns []string, threshold float64) *CheckBuilder {
	return b.Constraint(HasUniqueness(columns, threshold))
}

// HasSize appends a has_size constraint.
func (b *CheckBuilder) HasSize(assertion Assertion) *CheckBuilder {
	return b.Constraint(HasSize(assertion))
}

// HasMin appends a has_min constraint.
func (b *CheckBuilder) HasMin(column string, assertion Assertion) *CheckBuilder {
	return b.Constraint(HasMin(column, assertion))
}

// HasMax appends a has_max constraint.
func (b *CheckBuilder) HasMax(column string, assertion Assertion) *CheckBuilder {
	return b.Constraint(HasMax(column, assertion))
}

// HasMean appends a has_mean constraint.
func (b *CheckBuilder) HasMean(column string, assertion Assertion) *CheckBuilder {
	return b.Constraint(HasMean(column, assertion))
}

// HasStdDev appends a has_stddev constraint.
func (b *CheckBuilder) HasStdDev(column string, assertion Assertion) *CheckBuilder {
	return b.Constraint(HasStdDev(column, assertion))
}

// HasSum appends a has_sum constraint.
func (b *CheckBuilder) HasSum(column string, assertion Assertion) *CheckBuilder {
	return b.Constraint(HasSum(column, assertion))
}

// Satisfies appends a custom SQL predicate constraint.
func (b *CheckBuilder) Satisfies(name, predicate string, threshold float64) *CheckBuilder {
	return b.ConstraintE(Satisfies(name, predicate, threshold))
}

// IsContainedIn appends a containment constraint.
func (b *CheckBuilder) IsContainedIn(column string, allowed []string, threshold float64) *CheckBuilder {
	return b.ConstraintE(IsContainedIn(column, allowed, threshold))
}

// HasPattern appends a pattern conformance constraint.
func (b *CheckBuilder) HasPattern(column, pattern string, threshold float64) *CheckBuilder {
	return b.ConstraintE(HasPattern(column, pattern, threshold))
}

// HasFormat appends a named-format conformance constraint.
func (b *CheckBuilder) HasFormat(column string, format Format, threshold float64) *CheckBuilder {
	return b.ConstraintE(HasFormat(column, format, threshold))
}

// HasCorrelation appends a correlation magnitude constraint.
func (b *CheckBuilder) HasCorrelation(first, second string, threshold float64) *CheckBuilder {
	return b.Constraint(HasCorrelation(first, second, threshold))
}

// IsPrimaryKey appends a primary key constraint.
func (b *CheckBuilder) IsPrimaryKey(columns ...string) *CheckBuilder {
	return b.Constraint(IsPrimaryKey(columns...))
}

// Statistics appends a combined statistics constraint.
func (b *CheckBuilder) Statistics(column string, opts StatisticsOptions) *CheckBuilder {
	return b.ConstraintE(Statistics(column, opts))
}

// HaveAllCompleteness appends an all-columns completeness constraint.
func (b *CheckBuilder) HaveAllCompleteness(columns []string, threshold float64) *CheckBuilder {
	return b.Constraint(HaveAllCompleteness(columns, threshold))
}

// HaveAnyCompleteness appends an any-column completeness constraint.
func (b *CheckBuilder) HaveAnyCompleteness(columns []string, threshold float64) *CheckBuilder {
	return b.Constraint(HaveAnyCompleteness(columns, threshold))
}

// Build finalizes the check.
func (b *CheckBuilder) Build() (Check, error) {
	if b.err != nil {
		return Check{}, b.err
	}

	return b.check, nil
}
