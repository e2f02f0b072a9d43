package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/tidewater-io/datavet/pkg/metric"
	"github.com/tidewater-io/datavet/pkg/query"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

// Compliance measures the fraction of non-null values matching a regular
// expression. The pattern is compiled once at construction, so compilation
// is naturally cached for the lifetime of the run that owns the analyzer.
type Compliance struct {
	column  string
	pattern *regexp.Regexp
}

// NewCompliance creates a compliance analyzer. The pattern must be a valid
// RE2 expression.
func NewCompliance(column, pattern string) (Compliance, error) {
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return Compliance{}, fmt.Errorf("%w: pattern %q: %w", verrors.ErrInvalidConfiguration, pattern, err)
	}

	return Compliance{column: column, pattern: compiled}, nil
}

// ComplianceState counts matching values against non-null values.
type ComplianceState struct {
	Matches int64 `json:"matches"`
	NonNull int64 `json:"non_null"`
}

// IsEmpty implements State.
func (s *ComplianceState) IsEmpty() bool {
	return s.NonNull == 0
}

// Ratio returns matches/non-null; false when no values were observed.
func (s *ComplianceState) Ratio() (float64, bool) {
	if s.NonNull == 0 {
		return 0, false
	}

	return float64(s.Matches) / float64(s.NonNull), true
}

// Descriptor implements Analyzer. The pattern digest keeps fingerprints
// compact regardless of pattern length.
func (a Compliance) Descriptor() Descriptor {
	digest := sha256.Sum256([]byte(a.pattern.String()))

	return Descriptor{
		Name:         "compliance",
		Columns:      []string{a.column},
		ParamsDigest: hex.EncodeToString(digest[:8]),
	}
}

// MetricKey implements Analyzer.
func (a Compliance) MetricKey() string {
	return "compliance." + a.column
}

// Entity implements Analyzer.
func (a Compliance) Entity() metric.Entity {
	return metric.ColumnEntity(a.column)
}

// KindTag implements Analyzer.
func (Compliance) KindTag() uint16 {
	return KindCompliance
}

// ComputeState implements Analyzer by matching streamed values in-process;
// the executor is not required to support regular expressions.
func (a Compliance) ComputeState(ctx context.Context, qc query.Context) (State, error) {
	state := &ComplianceState{}

	err := scanColumns(ctx, qc, []string{a.column}, func(row []any) error {
		value, present := query.AsString(row[0])
		if !present {
			return nil
		}

		state.NonNull++

		if a.pattern.MatchString(value) {
			state.Matches++
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return state, nil
}

// Merge implements Analyzer.
func (Compliance) Merge(states []State) (State, error) {
	typed, err := castStates[*ComplianceState](states)
	if err != nil {
		return nil, err
	}

	merged := &ComplianceState{}
	for _, s := range typed {
		merged.Matches += s.Matches
		merged.NonNull += s.NonNull
	}

	return merged, nil
}

// Metric implements Analyzer.
func (Compliance) Metric(state State) (metric.Value, error) {
	s, ok := state.(*ComplianceState)
	if !ok {
		return metric.Null(), fmt.Errorf("%w: unexpected state type %T", verrors.ErrInternal, state)
	}

	ratio, has := s.Ratio()
	if !has {
		return metric.Null(), verrors.ErrNoData
	}

	return metric.Double(ratio), nil
}

// EncodeState implements Analyzer.
func (Compliance) EncodeState(state State) ([]byte, error) {
	return marshalState(state)
}

// DecodeState implements Analyzer.
func (Compliance) DecodeState(payload []byte) (State, error) {
	var s ComplianceState

	err := unmarshalState(payload, &s)
	if err != nil {
		return nil, err
	}

	return &s, nil
}
