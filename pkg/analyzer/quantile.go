package analyzer

import (
	"context"
	"fmt"

	"github.com/tidewater-io/datavet/pkg/alg/kll"
	"github.com/tidewater-io/datavet/pkg/metric"
	"github.com/tidewater-io/datavet/pkg/query"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

// Quantile estimates a quantile of a numeric column with a KLL sketch.
type Quantile struct {
	column string
	q      float64
	k      int
}

// NewQuantile creates a quantile analyzer. q must be in [0, 1].
func NewQuantile(column string, q float64) (Quantile, error) {
	if q < 0 || q > 1 {
		return Quantile{}, fmt.Errorf("%w: quantile %g outside [0, 1]", verrors.ErrInvalidConfiguration, q)
	}

	return Quantile{column: column, q: q, k: kll.DefaultK}, nil
}

// QuantileState wraps the sketch.
type QuantileState struct {
	Sketch *kll.Sketch
}

// IsEmpty implements State.
func (s *QuantileState) IsEmpty() bool {
	return s.Sketch.IsEmpty()
}

// Descriptor implements Analyzer.
func (a Quantile) Descriptor() Descriptor {
	return Descriptor{
		Name:         "quantile",
		Columns:      []string{a.column},
		ParamsDigest: fmt.Sprintf("q=%g,k=%d", a.q, a.k),
	}
}

// MetricKey implements Analyzer.
func (a Quantile) MetricKey() string {
	return fmt.Sprintf("quantile_%g.%s", a.q, a.column)
}

// Entity implements Analyzer.
func (a Quantile) Entity() metric.Entity {
	return metric.ColumnEntity(a.column)
}

// KindTag implements Analyzer.
func (Quantile) KindTag() uint16 {
	return KindQuantile
}

// ComputeState implements Analyzer by streaming values into the sketch.
func (a Quantile) ComputeState(ctx context.Context, qc query.Context) (State, error) {
	sketch, err := kll.New(a.k)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", verrors.ErrStateComputation, err)
	}

	state := &QuantileState{Sketch: sketch}

	err = scanColumns(ctx, qc, []string{a.column}, func(row []any) error {
		value, present := query.AsFloat(row[0])
		if !present {
			return nil
		}

		state.Sketch.Add(value)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return state, nil
}

// Merge implements Analyzer.
func (a Quantile) Merge(states []State) (State, error) {
	typed, err := castStates[*QuantileState](states)
	if err != nil {
		return nil, err
	}

	sketch, err := kll.New(a.k)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", verrors.ErrStateMerge, err)
	}

	merged := &QuantileState{Sketch: sketch}

	for _, s := range typed {
		mergeErr := merged.Sketch.Merge(s.Sketch)
		if mergeErr != nil {
			return nil, fmt.Errorf("%w: %w", verrors.ErrStateMerge, mergeErr)
		}
	}

	return merged, nil
}

// Metric implements Analyzer.
func (a Quantile) Metric(state State) (metric.Value, error) {
	s, ok := state.(*QuantileState)
	if !ok {
		return metric.Null(), fmt.Errorf("%w: unexpected state type %T", verrors.ErrInternal, state)
	}

	value, err := s.Sketch.Quantile(a.q)
	if err != nil {
		return metric.Null(), verrors.ErrNoData
	}

	return metric.Double(value), nil
}

// EncodeState implements Analyzer.
func (Quantile) EncodeState(state State) ([]byte, error) {
	s, ok := state.(*QuantileState)
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
func (Quantile) DecodeState(payload []byte) (State, error) {
	var sketch kll.Sketch

	err := sketch.UnmarshalBinary(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", verrors.ErrStateDeserialize, err)
	}

	return &QuantileState{Sketch: &sketch}, nil
}
