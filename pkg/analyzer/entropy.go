package analyzer

import (
	"context"
	"fmt"
	"math"

	"github.com/tidewater-io/datavet/pkg/metric"
	"github.com/tidewater-io/datavet/pkg/query"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

// Entropy computes the Shannon entropy (natural log) of a column's value
// distribution. Nulls are excluded.
type Entropy struct {
	column string
}

// NewEntropy creates an entropy analyzer for the column.
func NewEntropy(column string) Entropy {
	return Entropy{column: column}
}

// EntropyState keeps exact value counts so partition merges are exact.
type EntropyState struct {
	Counts map[string]int64 `json:"counts"`
	Total  int64            `json:"total"`
}

// NewEntropyState returns the merge identity.
func NewEntropyState() *EntropyState {
	return &EntropyState{Counts: map[string]int64{}}
}

// IsEmpty implements State.
func (s *EntropyState) IsEmpty() bool {
	return s.Total == 0
}

// Entropy returns −Σ pᵢ·ln(pᵢ); false when no values were observed.
func (s *EntropyState) Entropy() (float64, bool) {
	if s.Total == 0 {
		return 0, false
	}

	var entropy float64

	for _, count := range s.Counts {
		if count == 0 {
			continue
		}

		p := float64(count) / float64(s.Total)
		entropy -= p * math.Log(p)
	}

	return entropy, true
}

// Descriptor implements Analyzer.
func (a Entropy) Descriptor() Descriptor {
	return Descriptor{Name: "entropy", Columns: []string{a.column}}
}

// MetricKey implements Analyzer.
func (a Entropy) MetricKey() string {
	return "entropy." + a.column
}

// Entity implements Analyzer.
func (a Entropy) Entity() metric.Entity {
	return metric.ColumnEntity(a.column)
}

// KindTag implements Analyzer.
func (Entropy) KindTag() uint16 {
	return KindEntropy
}

// ComputeState implements Analyzer via a GROUP BY over the column.
func (a Entropy) ComputeState(ctx context.Context, qc query.Context) (State, error) {
	state := NewEntropyState()

	err := scanGrouped(ctx, qc, []string{a.column}, func(row []any, count int64) error {
		value, present := query.AsString(row[0])
		if !present {
			return nil
		}

		state.Counts[value] += count
		state.Total += count

		return nil
	})
	if err != nil {
		return nil, err
	}

	return state, nil
}

// Merge implements Analyzer.
func (Entropy) Merge(states []State) (State, error) {
	typed, err := castStates[*EntropyState](states)
	if err != nil {
		return nil, err
	}

	merged := NewEntropyState()
	for _, s := range typed {
		for value, count := range s.Counts {
			merged.Counts[value] += count
		}

		merged.Total += s.Total
	}

	return merged, nil
}

// Metric implements Analyzer.
func (Entropy) Metric(state State) (metric.Value, error) {
	s, ok := state.(*EntropyState)
	if !ok {
		return metric.Null(), fmt.Errorf("%w: unexpected state type %T", verrors.ErrInternal, state)
	}

	entropy, has := s.Entropy()
	if !has {
		return metric.Null(), verrors.ErrNoData
	}

	return metric.Double(entropy), nil
}

// EncodeState implements Analyzer.
func (Entropy) EncodeState(state State) ([]byte, error) {
	return marshalState(state)
}

// DecodeState implements Analyzer.
func (Entropy) DecodeState(payload []byte) (State, error) {
	s := NewEntropyState()

	err := unmarshalState(payload, s)
	if err != nil {
		return nil, err
	}

	if s.Counts == nil {
		s.Counts = map[string]int64{}
	}

	return s, nil
}
