package analyzer

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/tidewater-io/datavet/pkg/alg/hll"
	"github.com/tidewater-io/datavet/pkg/metric"
	"github.com/tidewater-io/datavet/pkg/query"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

// sketchCountHeader is the byte width of the count prefix in serialized
// sketch states.
const sketchCountHeader = 8

// Distinctness estimates the ratio of distinct values to non-null values in
// a column using a HyperLogLog sketch, so the state stays small on
// high-cardinality columns and merges across partitions.
type Distinctness struct {
	column    string
	precision uint8
}

// NewDistinctness creates a distinctness analyzer with the default sketch
// precision.
func NewDistinctness(column string) Distinctness {
	return Distinctness{column: column, precision: hll.DefaultPrecision}
}

// DistinctnessState pairs the cardinality sketch with the observed non-null
// row count.
type DistinctnessState struct {
	Sketch  *hll.Sketch
	NonNull int64
}

// IsEmpty implements State.
func (s *DistinctnessState) IsEmpty() bool {
	return s.NonNull == 0
}

// Descriptor implements Analyzer.
func (a Distinctness) Descriptor() Descriptor {
	return Descriptor{
		Name:         "distinctness",
		Columns:      []string{a.column},
		ParamsDigest: fmt.Sprintf("p=%d", a.precision),
	}
}

// MetricKey implements Analyzer.
func (a Distinctness) MetricKey() string {
	return "distinctness." + a.column
}

// Entity implements Analyzer.
func (a Distinctness) Entity() metric.Entity {
	return metric.ColumnEntity(a.column)
}

// KindTag implements Analyzer.
func (Distinctness) KindTag() uint16 {
	return KindDistinctness
}

// ComputeState implements Analyzer by streaming column values into the sketch.
func (a Distinctness) ComputeState(ctx context.Context, qc query.Context) (State, error) {
	sketch, err := hll.New(a.precision)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", verrors.ErrStateComputation, err)
	}

	state := &DistinctnessState{Sketch: sketch}

	err = scanColumns(ctx, qc, []string{a.column}, func(row []any) error {
		value, present := query.AsString(row[0])
		if !present {
			return nil
		}

		state.Sketch.AddString(value)
		state.NonNull++

		return nil
	})
	if err != nil {
		return nil, err
	}

	return state, nil
}

// Merge implements Analyzer by register-wise sketch union.
func (a Distinctness) Merge(states []State) (State, error) {
	typed, err := castStates[*DistinctnessState](states)
	if err != nil {
		return nil, err
	}

	sketch, err := hll.New(a.precision)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", verrors.ErrStateMerge, err)
	}

	merged := &DistinctnessState{Sketch: sketch}

	for _, s := range typed {
		mergeErr := merged.Sketch.Merge(s.Sketch)
		if mergeErr != nil {
			return nil, fmt.Errorf("%w: %w", verrors.ErrStateMerge, mergeErr)
		}

		merged.NonNull += s.NonNull
	}

	return merged, nil
}

// Metric implements Analyzer.
func (Distinctness) Metric(state State) (metric.Value, error) {
	s, ok := state.(*DistinctnessState)
	if !ok {
		return metric.Null(), fmt.Errorf("%w: unexpected state type %T", verrors.ErrInternal, state)
	}

	if s.NonNull == 0 {
		return metric.Null(), verrors.ErrNoData
	}

	ratio := float64(s.Sketch.Count()) / float64(s.NonNull)

	// The estimator can overshoot the exact count slightly.
	if ratio > 1 {
		ratio = 1
	}

	return metric.Double(ratio), nil
}

// EncodeState implements Analyzer: non-null count followed by the sketch.
func (Distinctness) EncodeState(state State) ([]byte, error) {
	s, ok := state.(*DistinctnessState)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected state type %T", verrors.ErrInternal, state)
	}

	sketchBytes, err := s.Sketch.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", verrors.ErrSerialization, err)
	}

	out := make([]byte, 0, sketchCountHeader+len(sketchBytes))
	out = binary.BigEndian.AppendUint64(out, uint64(s.NonNull))
	out = append(out, sketchBytes...)

	return out, nil
}

// DecodeState implements Analyzer.
func (Distinctness) DecodeState(payload []byte) (State, error) {
	if len(payload) < sketchCountHeader {
		return nil, fmt.Errorf("%w: distinctness payload too short", verrors.ErrStateDeserialize)
	}

	nonNull := int64(binary.BigEndian.Uint64(payload[:sketchCountHeader]))

	var sketch hll.Sketch

	err := sketch.UnmarshalBinary(payload[sketchCountHeader:])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", verrors.ErrStateDeserialize, err)
	}

	return &DistinctnessState{Sketch: &sketch, NonNull: nonNull}, nil
}
