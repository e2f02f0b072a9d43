package analyzer

import (
	"context"
	"fmt"

	"github.com/tidewater-io/datavet/pkg/metric"
	"github.com/tidewater-io/datavet/pkg/query"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

// Size counts the rows of the dataset.
type Size struct{}

// NewSize creates a size analyzer.
func NewSize() Size {
	return Size{}
}

// SizeState is the row count. Zero rows is a valid observation: size of an
// empty dataset is 0, not NoData.
type SizeState struct {
	Count int64 `json:"count"`
}

// IsEmpty implements State.
func (s *SizeState) IsEmpty() bool {
	return s.Count == 0
}

// Descriptor implements Analyzer.
func (Size) Descriptor() Descriptor {
	return Descriptor{Name: "size"}
}

// MetricKey implements Analyzer.
func (Size) MetricKey() string {
	return "size"
}

// Entity implements Analyzer.
func (Size) Entity() metric.Entity {
	return metric.DatasetEntity()
}

// KindTag implements Analyzer.
func (Size) KindTag() uint16 {
	return KindSize
}

// AggregateExprs implements Aggregate.
func (Size) AggregateExprs() []string {
	return []string{"COUNT(*)"}
}

// StateFromRow implements Aggregate.
func (Size) StateFromRow(row []any) (State, error) {
	if row == nil {
		return &SizeState{}, nil
	}

	count, ok := query.AsInt(row[0])
	if !ok {
		return nil, fmt.Errorf("%w: size count", verrors.ErrInvalidData)
	}

	return &SizeState{Count: count}, nil
}

// ComputeState implements Analyzer.
func (a Size) ComputeState(ctx context.Context, qc query.Context) (State, error) {
	return ComputeAggregate(ctx, qc, a)
}

// Merge implements Analyzer.
func (Size) Merge(states []State) (State, error) {
	typed, err := castStates[*SizeState](states)
	if err != nil {
		return nil, err
	}

	merged := &SizeState{}
	for _, s := range typed {
		merged.Count += s.Count
	}

	return merged, nil
}

// Metric implements Analyzer.
func (Size) Metric(state State) (metric.Value, error) {
	s, ok := state.(*SizeState)
	if !ok {
		return metric.Null(), fmt.Errorf("%w: unexpected state type %T", verrors.ErrInternal, state)
	}

	return metric.Long(s.Count), nil
}

// EncodeState implements Analyzer.
func (Size) EncodeState(state State) ([]byte, error) {
	return marshalState(state)
}

// DecodeState implements Analyzer.
func (Size) DecodeState(payload []byte) (State, error) {
	var s SizeState

	err := unmarshalState(payload, &s)
	if err != nil {
		return nil, err
	}

	return &s, nil
}
