package analyzer

import (
	"context"
	"fmt"
	"math"

	"github.com/tidewater-io/datavet/pkg/metric"
	"github.com/tidewater-io/datavet/pkg/query"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

// StdDev computes the population standard deviation of a numeric column
// using Welford's online algorithm, which keeps the state mergeable across
// partitions without numeric blow-up.
type StdDev struct {
	column string
}

// NewStdDev creates a standard deviation analyzer for the column.
func NewStdDev(column string) StdDev {
	return StdDev{column: column}
}

// StdDevState is the Welford triple.
type StdDevState struct {
	Count int64   `json:"count"`
	Mean  float64 `json:"mean"`
	M2    float64 `json:"m2"`
}

// IsEmpty implements State.
func (s *StdDevState) IsEmpty() bool {
	return s.Count == 0
}

// observe folds one value into the triple.
func (s *StdDevState) observe(value float64) {
	s.Count++
	delta := value - s.Mean
	s.Mean += delta / float64(s.Count)
	s.M2 += delta * (value - s.Mean)
}

// combine merges another triple using the parallel-Welford formulas.
func (s *StdDevState) combine(other *StdDevState) {
	if other.Count == 0 {
		return
	}

	if s.Count == 0 {
		*s = *other

		return
	}

	total := s.Count + other.Count
	delta := other.Mean - s.Mean

	s.M2 += other.M2 + delta*delta*float64(s.Count)*float64(other.Count)/float64(total)
	s.Mean += delta * float64(other.Count) / float64(total)
	s.Count = total
}

// StdDev returns the population standard deviation; false when no values
// were observed.
func (s *StdDevState) StdDev() (float64, bool) {
	if s.Count == 0 {
		return 0, false
	}

	return math.Sqrt(s.M2 / float64(s.Count)), true
}

// Descriptor implements Analyzer.
func (a StdDev) Descriptor() Descriptor {
	return Descriptor{Name: "stddev", Columns: []string{a.column}}
}

// MetricKey implements Analyzer.
func (a StdDev) MetricKey() string {
	return "stddev." + a.column
}

// Entity implements Analyzer.
func (a StdDev) Entity() metric.Entity {
	return metric.ColumnEntity(a.column)
}

// KindTag implements Analyzer.
func (StdDev) KindTag() uint16 {
	return KindStdDev
}

// ComputeState implements Analyzer by streaming the column through the
// Welford update.
func (a StdDev) ComputeState(ctx context.Context, qc query.Context) (State, error) {
	state := &StdDevState{}

	err := scanColumns(ctx, qc, []string{a.column}, func(row []any) error {
		value, present := query.AsFloat(row[0])
		if !present {
			return nil
		}

		state.observe(value)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return state, nil
}

// Merge implements Analyzer.
func (StdDev) Merge(states []State) (State, error) {
	typed, err := castStates[*StdDevState](states)
	if err != nil {
		return nil, err
	}

	merged := &StdDevState{}
	for _, s := range typed {
		merged.combine(s)
	}

	return merged, nil
}

// Metric implements Analyzer.
func (StdDev) Metric(state State) (metric.Value, error) {
	s, ok := state.(*StdDevState)
	if !ok {
		return metric.Null(), fmt.Errorf("%w: unexpected state type %T", verrors.ErrInternal, state)
	}

	stddev, has := s.StdDev()
	if !has {
		return metric.Null(), verrors.ErrNoData
	}

	return metric.Double(stddev), nil
}

// EncodeState implements Analyzer.
func (StdDev) EncodeState(state State) ([]byte, error) {
	return marshalState(state)
}

// DecodeState implements Analyzer.
func (StdDev) DecodeState(payload []byte) (State, error) {
	var s StdDevState

	err := unmarshalState(payload, &s)
	if err != nil {
		return nil, err
	}

	return &s, nil
}
