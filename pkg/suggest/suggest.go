// Package suggest derives candidate constraints from column profiles through
// a stateless rule pipeline. Suggestions are advisory; nothing is executed.
package suggest

import (
	"fmt"
	"sort"

	"github.com/tidewater-io/datavet/pkg/analyzer"
	"github.com/tidewater-io/datavet/pkg/profile"
)

// Priority orders suggestions for presentation.
type Priority uint8

// Priorities, highest first.
const (
	PriorityHigh Priority = iota
	PriorityMedium
	PriorityLow
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Suggestion is one candidate constraint with its rationale.
type Suggestion struct {
	CheckKind  string
	Column     string
	Parameters map[string]string
	Rationale  string
	Confidence float64
	Priority   Priority
}

// Rule inspects a profile and proposes zero or more suggestions.
type Rule interface {
	Name() string
	Evaluate(p *profile.ColumnProfile) []Suggestion
}

// defaultConfidenceThreshold filters weak suggestions.
const defaultConfidenceThreshold = 0.6

// Engine runs rules over profiles and filters by confidence.
type Engine struct {
	rules     []Rule
	threshold float64
}

// NewEngine creates an engine with the default rule set and threshold.
func NewEngine() *Engine {
	return &Engine{
		rules: []Rule{
			CompletenessRule{},
			UniquenessRule{},
			PatternRule{},
			RangeRule{},
			DataTypeRule{},
			CardinalityRule{},
		},
		threshold: defaultConfidenceThreshold,
	}
}

// WithRules replaces the rule set.
func (e *Engine) WithRules(rules ...Rule) *Engine {
	e.rules = rules

	return e
}

// WithThreshold replaces the confidence threshold.
func (e *Engine) WithThreshold(threshold float64) *Engine {
	e.threshold = threshold

	return e
}

// Suggest evaluates every rule against the profile, filters by confidence,
// and sorts by priority then confidence.
func (e *Engine) Suggest(p *profile.ColumnProfile) []Suggestion {
	var out []Suggestion

	for _, rule := range e.rules {
		for _, s := range rule.Evaluate(p) {
			if s.Confidence >= e.threshold {
				out = append(out, s)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}

		return out[i].Confidence > out[j].Confidence
	})

	return out
}

// CompletenessRule proposes completeness constraints from observed null
// ratios.
type CompletenessRule struct{}

// Name implements Rule.
func (CompletenessRule) Name() string { return "completeness" }

// Evaluate implements Rule.
func (CompletenessRule) Evaluate(p *profile.ColumnProfile) []Suggestion {
	if p.RowCount == 0 {
		return nil
	}

	if p.NullCount == 0 {
		return []Suggestion{{
			CheckKind:  "is_complete",
			Column:     p.Column,
			Rationale:  "column has no nulls in the profiled data",
			Confidence: 0.95,
			Priority:   PriorityHigh,
		}}
	}

	if p.Completeness >= 0.9 {
		// Leave headroom below the observed ratio so the suggestion does
		// not flap on the next partition.
		threshold := p.Completeness * 0.95

		return []Suggestion{{
			CheckKind: "has_completeness",
			Column:    p.Column,
			Parameters: map[string]string{
				"threshold": fmt.Sprintf("%.2f", threshold),
			},
			Rationale:  fmt.Sprintf("column is %.1f%% complete", p.Completeness*100),
			Confidence: 0.75,
			Priority:   PriorityMedium,
		}}
	}

	return nil
}

// UniquenessRule proposes key constraints from distinctness.
type UniquenessRule struct{}

// Name implements Rule.
func (UniquenessRule) Name() string { return "uniqueness" }

// Evaluate implements Rule.
func (UniquenessRule) Evaluate(p *profile.ColumnProfile) []Suggestion {
	const minRowsForKey = 100

	if p.RowCount < minRowsForKey || p.Distinctness < 0.99 {
		return nil
	}

	confidence := 0.7
	if p.NullCount == 0 {
		confidence = 0.85
	}

	return []Suggestion{{
		CheckKind:  "is_unique",
		Column:     p.Column,
		Rationale:  fmt.Sprintf("%.1f%% of non-null values are distinct", p.Distinctness*100),
		Confidence: confidence,
		Priority:   PriorityHigh,
	}}
}

// PatternRule proposes format conformance checks from profiled match
// ratios.
type PatternRule struct{}

// Name implements Rule.
func (PatternRule) Name() string { return "pattern" }

// Evaluate implements Rule.
func (PatternRule) Evaluate(p *profile.ColumnProfile) []Suggestion {
	const minMatchRatio = 0.9

	var (
		bestFormat string
		bestRatio  float64
	)

	for format, ratio := range p.PatternMatches {
		if ratio > bestRatio {
			bestFormat = format
			bestRatio = ratio
		}
	}

	if bestFormat == "" || bestRatio < minMatchRatio {
		return nil
	}

	confidence := 0.65
	if bestRatio >= 0.99 {
		confidence = 0.85
	}

	// Leave headroom below the observed ratio so the suggestion does not
	// flap on the next partition.
	threshold := bestRatio * 0.95

	return []Suggestion{{
		CheckKind: "has_format",
		Column:    p.Column,
		Parameters: map[string]string{
			"format":    bestFormat,
			"threshold": fmt.Sprintf("%.2f", threshold),
		},
		Rationale:  fmt.Sprintf("%.1f%% of values match the %s format", bestRatio*100, bestFormat),
		Confidence: confidence,
		Priority:   PriorityMedium,
	}}
}

// RangeRule proposes bounds for numeric columns.
type RangeRule struct{}

// Name implements Rule.
func (RangeRule) Name() string { return "range" }

// Evaluate implements Rule.
func (RangeRule) Evaluate(p *profile.ColumnProfile) []Suggestion {
	if p.Min == nil || p.Max == nil {
		return nil
	}

	return []Suggestion{{
		CheckKind: "has_min",
		Column:    p.Column,
		Parameters: map[string]string{
			"assertion": fmt.Sprintf("greater than or equal to %g", *p.Min),
		},
		Rationale:  fmt.Sprintf("observed minimum is %g", *p.Min),
		Confidence: 0.65,
		Priority:   PriorityLow,
	}, {
		CheckKind: "has_max",
		Column:    p.Column,
		Parameters: map[string]string{
			"assertion": fmt.Sprintf("less than or equal to %g", *p.Max),
		},
		Rationale:  fmt.Sprintf("observed maximum is %g", *p.Max),
		Confidence: 0.65,
		Priority:   PriorityLow,
	}}
}

// DataTypeRule proposes type-conformance checks for cleanly typed columns.
type DataTypeRule struct{}

// Name implements Rule.
func (DataTypeRule) Name() string { return "data_type" }

// Evaluate implements Rule.
func (DataTypeRule) Evaluate(p *profile.ColumnProfile) []Suggestion {
	switch p.DataType {
	case analyzer.TypeInteger, analyzer.TypeFloat, analyzer.TypeBoolean, analyzer.TypeDate:
		return []Suggestion{{
			CheckKind: "has_data_type",
			Column:    p.Column,
			Parameters: map[string]string{
				"type": p.DataType,
			},
			Rationale:  fmt.Sprintf("all profiled values parse as %s", p.DataType),
			Confidence: 0.8,
			Priority:   PriorityMedium,
		}}
	default:
		return nil
	}
}

// CardinalityRule proposes containment checks for low-cardinality columns.
type CardinalityRule struct{}

// Name implements Rule.
func (CardinalityRule) Name() string { return "cardinality" }

// Evaluate implements Rule.
func (CardinalityRule) Evaluate(p *profile.ColumnProfile) []Suggestion {
	const (
		maxCategoricalValues = 20
		minRows              = 100
	)

	if p.RowCount < minRows || p.ApproxDistinct == 0 || p.ApproxDistinct > maxCategoricalValues {
		return nil
	}

	return []Suggestion{{
		CheckKind: "is_contained_in",
		Column:    p.Column,
		Parameters: map[string]string{
			"distinct_values": fmt.Sprintf("%d", p.ApproxDistinct),
		},
		Rationale:  fmt.Sprintf("column holds roughly %d distinct values", p.ApproxDistinct),
		Confidence: 0.7,
		Priority:   PriorityMedium,
	}}
}
