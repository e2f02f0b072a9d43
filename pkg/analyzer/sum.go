package analyzer

import (
	"context"
	"fmt"

	"github.com/tidewater-io/datavet/pkg/metric"
	"github.com/tidewater-io/datavet/pkg/query"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

// Sum totals a numeric column.
type Sum struct {
	column string
}

// NewSum creates a sum analyzer for the column.
func NewSum(column string) Sum {
	return Sum{column: column}
}

// SumState carries the running total and non-null count.
type SumState struct {
	Sum   float64 `json:"sum"`
	Count int64   `json:"count"`
}

// IsEmpty implements State.
func (s *SumState) IsEmpty() bool {
	return s.Count == 0
}

// Descriptor implements Analyzer.
func (a Sum) Descriptor() Descriptor {
	return Descriptor{Name: "sum", Columns: []string{a.column}}
}

// MetricKey implements Analyzer.
func (a Sum) MetricKey() string {
	return "sum." + a.column
}

// Entity implements Analyzer.
func (a Sum) Entity() metric.Entity {
	return metric.ColumnEntity(a.column)
}

// KindTag implements Analyzer.
func (Sum) KindTag() uint16 {
	return KindSum
}

// AggregateExprs implements Aggregate.
func (a Sum) AggregateExprs() []string {
	quoted := query.QuoteIdent(a.column)

	return []string{"SUM(" + quoted + ")", "COUNT(" + quoted + ")"}
}

// StateFromRow implements Aggregate.
func (Sum) StateFromRow(row []any) (State, error) {
	if row == nil {
		return &SumState{}, nil
	}

	count, okCount := query.AsInt(row[1])
	if !okCount {
		return nil, fmt.Errorf("%w: sum count", verrors.ErrInvalidData)
	}

	sum, _ := query.AsFloat(row[0])

	return &SumState{Sum: sum, Count: count}, nil
}

// ComputeState implements Analyzer.
func (a Sum) ComputeState(ctx context.Context, qc query.Context) (State, error) {
	return ComputeAggregate(ctx, qc, a)
}

// Merge implements Analyzer.
func (Sum) Merge(states []State) (State, error) {
	typed, err := castStates[*SumState](states)
	if err != nil {
		return nil, err
	}

	merged := &SumState{}
	for _, s := range typed {
		merged.Sum += s.Sum
		merged.Count += s.Count
	}

	return merged, nil
}

// Metric implements Analyzer.
func (Sum) Metric(state State) (metric.Value, error) {
	s, ok := state.(*SumState)
	if !ok {
		return metric.Null(), fmt.Errorf("%w: unexpected state type %T", verrors.ErrInternal, state)
	}

	if s.Count == 0 {
		return metric.Null(), verrors.ErrNoData
	}

	return metric.Double(s.Sum), nil
}

// EncodeState implements Analyzer.
func (Sum) EncodeState(state State) ([]byte, error) {
	return marshalState(state)
}

// DecodeState implements Analyzer.
func (Sum) DecodeState(payload []byte) (State, error) {
	var s SumState

	err := unmarshalState(payload, &s)
	if err != nil {
		return nil, err
	}

	return &s, nil
}
