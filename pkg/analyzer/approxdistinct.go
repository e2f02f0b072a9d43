package analyzer

import (
	"context"
	"fmt"

	"github.com/tidewater-io/datavet/pkg/alg/hll"
	"github.com/tidewater-io/datavet/pkg/metric"
	"github.com/tidewater-io/datavet/pkg/query"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

// ApproxDistinct estimates the distinct value count of a column with a
// HyperLogLog sketch.
type ApproxDistinct struct {
	column    string
	precision uint8
}

// NewApproxDistinct creates an approximate-distinct analyzer with the
// default sketch precision.
func NewApproxDistinct(column string) ApproxDistinct {
	return ApproxDistinct{column: column, precision: hll.DefaultPrecision}
}

// ApproxDistinctState wraps the sketch.
type ApproxDistinctState struct {
	Sketch *hll.Sketch
}

// IsEmpty implements State.
func (s *ApproxDistinctState) IsEmpty() bool {
	return s.Sketch.IsEmpty()
}

// Descriptor implements Analyzer.
func (a ApproxDistinct) Descriptor() Descriptor {
	return Descriptor{
		Name:         "approx_distinct",
		Columns:      []string{a.column},
		ParamsDigest: fmt.Sprintf("p=%d", a.precision),
	}
}

// MetricKey implements Analyzer.
func (a ApproxDistinct) MetricKey() string {
	return "approx_distinct." + a.column
}

// Entity implements Analyzer.
func (a ApproxDistinct) Entity() metric.Entity {
	return metric.ColumnEntity(a.column)
}

// KindTag implements Analyzer.
func (ApproxDistinct) KindTag() uint16 {
	return KindApproxDistinct
}

// ComputeState implements Analyzer.
func (a ApproxDistinct) ComputeState(ctx context.Context, qc query.Context) (State, error) {
	sketch, err := hll.New(a.precision)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", verrors.ErrStateComputation, err)
	}

	state := &ApproxDistinctState{Sketch: sketch}

	err = scanColumns(ctx, qc, []string{a.column}, func(row []any) error {
		value, present := query.AsString(row[0])
		if !present {
			return nil
		}

		state.Sketch.AddString(value)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return state, nil
}

// Merge implements Analyzer.
func (a ApproxDistinct) Merge(states []State) (State, error) {
	typed, err := castStates[*ApproxDistinctState](states)
	if err != nil {
		return nil, err
	}

	sketch, err := hll.New(a.precision)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", verrors.ErrStateMerge, err)
	}

	merged := &ApproxDistinctState{Sketch: sketch}

	for _, s := range typed {
		mergeErr := merged.Sketch.Merge(s.Sketch)
		if mergeErr != nil {
			return nil, fmt.Errorf("%w: %w", verrors.ErrStateMerge, mergeErr)
		}
	}

	return merged, nil
}

// Metric implements Analyzer. An empty column legitimately has zero distinct
// values, so this never reports NoData.
func (ApproxDistinct) Metric(state State) (metric.Value, error) {
	s, ok := state.(*ApproxDistinctState)
	if !ok {
		return metric.Null(), fmt.Errorf("%w: unexpected state type %T", verrors.ErrInternal, state)
	}

	return metric.Long(int64(s.Sketch.Count())), nil
}

// EncodeState implements Analyzer.
func (ApproxDistinct) EncodeState(state State) ([]byte, error) {
	s, ok := state.(*ApproxDistinctState)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected state type %T", verrors.ErrInternal, state)
	}

	data, err := s.Sketch.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", verrors.ErrSerialization, err)
	}

	return data, nil
}

// DecodeState implements Analyzer.
func (ApproxDistinct) DecodeState(payload []byte) (State, error) {
	var sketch hll.Sketch

	err := sketch.UnmarshalBinary(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", verrors.ErrStateDeserialize, err)
	}

	return &ApproxDistinctState{Sketch: &sketch}, nil
}
