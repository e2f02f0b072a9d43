package analyzer

import (
	"context"
	"fmt"

	"github.com/tidewater-io/datavet/pkg/metric"
	"github.com/tidewater-io/datavet/pkg/query"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

// Completeness measures the fraction of non-null values in a column. NaN in
// the data behaves as null.
type Completeness struct {
	column string
}

// NewCompleteness creates a completeness analyzer for the column.
func NewCompleteness(column string) Completeness {
	return Completeness{column: column}
}

// CompletenessState counts non-null values against the total row count.
type CompletenessState struct {
	NonNull int64 `json:"non_null"`
	Total   int64 `json:"total"`
}

// IsEmpty implements State.
func (s *CompletenessState) IsEmpty() bool {
	return s.Total == 0
}

// Ratio returns the completeness fraction; false when no rows were observed.
func (s *CompletenessState) Ratio() (float64, bool) {
	if s.Total == 0 {
		return 0, false
	}

	return float64(s.NonNull) / float64(s.Total), true
}

// Descriptor implements Analyzer.
func (a Completeness) Descriptor() Descriptor {
	return Descriptor{Name: "completeness", Columns: []string{a.column}}
}

// MetricKey implements Analyzer.
func (a Completeness) MetricKey() string {
	return "completeness." + a.column
}

// Entity implements Analyzer.
func (a Completeness) Entity() metric.Entity {
	return metric.ColumnEntity(a.column)
}

// KindTag implements Analyzer.
func (Completeness) KindTag() uint16 {
	return KindCompleteness
}

// AggregateExprs implements Aggregate. The non-null count excludes NaN
// through the self-equality guard: NaN is the only value where col <> col.
func (a Completeness) AggregateExprs() []string {
	quoted := query.QuoteIdent(a.column)

	return []string{
		"COUNT(CASE WHEN " + quoted + " IS NOT NULL AND " + quoted + " = " + quoted + " THEN 1 END)",
		"COUNT(*)",
	}
}

// StateFromRow implements Aggregate.
func (Completeness) StateFromRow(row []any) (State, error) {
	if row == nil {
		return &CompletenessState{}, nil
	}

	nonNull, okNonNull := query.AsInt(row[0])
	total, okTotal := query.AsInt(row[1])

	if !okNonNull || !okTotal {
		return nil, fmt.Errorf("%w: completeness counts", verrors.ErrInvalidData)
	}

	return &CompletenessState{NonNull: nonNull, Total: total}, nil
}

// ComputeState implements Analyzer.
func (a Completeness) ComputeState(ctx context.Context, qc query.Context) (State, error) {
	return ComputeAggregate(ctx, qc, a)
}

// Merge implements Analyzer.
func (Completeness) Merge(states []State) (State, error) {
	typed, err := castStates[*CompletenessState](states)
	if err != nil {
		return nil, err
	}

	merged := &CompletenessState{}
	for _, s := range typed {
		merged.NonNull += s.NonNull
		merged.Total += s.Total
	}

	return merged, nil
}

// Metric implements Analyzer.
func (Completeness) Metric(state State) (metric.Value, error) {
	s, ok := state.(*CompletenessState)
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
func (Completeness) EncodeState(state State) ([]byte, error) {
	return marshalState(state)
}

// DecodeState implements Analyzer.
func (Completeness) DecodeState(payload []byte) (State, error) {
	var s CompletenessState

	err := unmarshalState(payload, &s)
	if err != nil {
		return nil, err
	}

	return &s, nil
}
