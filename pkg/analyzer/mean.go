package analyzer

import (
	"context"
	"fmt"

	"github.com/tidewater-io/datavet/pkg/metric"
	"github.com/tidewater-io/datavet/pkg/query"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

// Mean computes the average of a numeric column.
type Mean struct {
	column string
}

// NewMean creates a mean analyzer for the column.
func NewMean(column string) Mean {
	return Mean{column: column}
}

// MeanState carries the running sum and non-null count.
type MeanState struct {
	Sum   float64 `json:"sum"`
	Count int64   `json:"count"`
}

// IsEmpty implements State.
func (s *MeanState) IsEmpty() bool {
	return s.Count == 0
}

// Mean returns sum/count; false when count is zero.
func (s *MeanState) Mean() (float64, bool) {
	if s.Count == 0 {
		return 0, false
	}

	return s.Sum / float64(s.Count), true
}

// Descriptor implements Analyzer.
func (a Mean) Descriptor() Descriptor {
	return Descriptor{Name: "mean", Columns: []string{a.column}}
}

// MetricKey implements Analyzer.
func (a Mean) MetricKey() string {
	return "mean." + a.column
}

// Entity implements Analyzer.
func (a Mean) Entity() metric.Entity {
	return metric.ColumnEntity(a.column)
}

// KindTag implements Analyzer.
func (Mean) KindTag() uint16 {
	return KindMean
}

// AggregateExprs implements Aggregate.
func (a Mean) AggregateExprs() []string {
	quoted := query.QuoteIdent(a.column)

	return []string{"SUM(" + quoted + ")", "COUNT(" + quoted + ")"}
}

// StateFromRow implements Aggregate.
func (Mean) StateFromRow(row []any) (State, error) {
	if row == nil {
		return &MeanState{}, nil
	}

	count, okCount := query.AsInt(row[1])
	if !okCount {
		return nil, fmt.Errorf("%w: mean count", verrors.ErrInvalidData)
	}

	// SUM over zero non-null values is NULL.
	sum, _ := query.AsFloat(row[0])

	return &MeanState{Sum: sum, Count: count}, nil
}

// ComputeState implements Analyzer.
func (a Mean) ComputeState(ctx context.Context, qc query.Context) (State, error) {
	return ComputeAggregate(ctx, qc, a)
}

// Merge implements Analyzer.
func (Mean) Merge(states []State) (State, error) {
	typed, err := castStates[*MeanState](states)
	if err != nil {
		return nil, err
	}

	merged := &MeanState{}
	for _, s := range typed {
		merged.Sum += s.Sum
		merged.Count += s.Count
	}

	return merged, nil
}

// Metric implements Analyzer.
func (Mean) Metric(state State) (metric.Value, error) {
	s, ok := state.(*MeanState)
	if !ok {
		return metric.Null(), fmt.Errorf("%w: unexpected state type %T", verrors.ErrInternal, state)
	}

	mean, has := s.Mean()
	if !has {
		return metric.Null(), verrors.ErrNoData
	}

	return metric.Double(mean), nil
}

// EncodeState implements Analyzer.
func (Mean) EncodeState(state State) ([]byte, error) {
	return marshalState(state)
}

// DecodeState implements Analyzer.
func (Mean) DecodeState(payload []byte) (State, error) {
	var s MeanState

	err := unmarshalState(payload, &s)
	if err != nil {
		return nil, err
	}

	return &s, nil
}
