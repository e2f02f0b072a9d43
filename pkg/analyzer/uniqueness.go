package analyzer

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidewater-io/datavet/pkg/metric"
	"github.com/tidewater-io/datavet/pkg/query"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

// Group-key encoding markers. The unit separator joins column values; the
// null marker keeps SQL NULL distinct from the empty string.
const (
	groupKeySep  = "\x1f"
	groupKeyNull = "\x00"
)

// Uniqueness measures the ratio of distinct value combinations to rows for a
// column group. The state keeps exact value frequencies so that partition
// merges stay exact.
type Uniqueness struct {
	columns []string
}

// NewUniqueness creates a uniqueness analyzer over one or more columns.
// Multi-column uniqueness treats the column tuple as a composite key.
func NewUniqueness(columns ...string) Uniqueness {
	copied := make([]string, len(columns))
	copy(copied, columns)

	return Uniqueness{columns: copied}
}

// UniquenessState maps encoded group keys to their occurrence counts.
type UniquenessState struct {
	Counts map[string]int64 `json:"counts"`
	Rows   int64            `json:"rows"`
}

// NewUniquenessState returns the merge identity.
func NewUniquenessState() *UniquenessState {
	return &UniquenessState{Counts: map[string]int64{}}
}

// IsEmpty implements State.
func (s *UniquenessState) IsEmpty() bool {
	return s.Rows == 0
}

// Ratio returns distinct/rows; false when no rows were observed.
func (s *UniquenessState) Ratio() (float64, bool) {
	if s.Rows == 0 {
		return 0, false
	}

	return float64(len(s.Counts)) / float64(s.Rows), true
}

// Descriptor implements Analyzer.
func (a Uniqueness) Descriptor() Descriptor {
	return Descriptor{Name: "uniqueness", Columns: a.columns}
}

// MetricKey implements Analyzer.
func (a Uniqueness) MetricKey() string {
	return "uniqueness." + strings.Join(a.columns, ",")
}

// Entity implements Analyzer.
func (a Uniqueness) Entity() metric.Entity {
	if len(a.columns) == 1 {
		return metric.ColumnEntity(a.columns[0])
	}

	return metric.MultiColumnEntity(a.columns)
}

// KindTag implements Analyzer.
func (Uniqueness) KindTag() uint16 {
	return KindUniqueness
}

// ComputeState implements Analyzer via a GROUP BY over the column group.
func (a Uniqueness) ComputeState(ctx context.Context, qc query.Context) (State, error) {
	state := NewUniquenessState()

	err := scanGrouped(ctx, qc, a.columns, func(row []any, count int64) error {
		state.Counts[encodeGroupKey(row)] += count
		state.Rows += count

		return nil
	})
	if err != nil {
		return nil, err
	}

	return state, nil
}

// Merge implements Analyzer.
func (Uniqueness) Merge(states []State) (State, error) {
	typed, err := castStates[*UniquenessState](states)
	if err != nil {
		return nil, err
	}

	merged := NewUniquenessState()
	for _, s := range typed {
		for key, count := range s.Counts {
			merged.Counts[key] += count
		}

		merged.Rows += s.Rows
	}

	return merged, nil
}

// Metric implements Analyzer.
func (Uniqueness) Metric(state State) (metric.Value, error) {
	s, ok := state.(*UniquenessState)
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
func (Uniqueness) EncodeState(state State) ([]byte, error) {
	return marshalState(state)
}

// DecodeState implements Analyzer.
func (Uniqueness) DecodeState(payload []byte) (State, error) {
	s := NewUniquenessState()

	err := unmarshalState(payload, s)
	if err != nil {
		return nil, err
	}

	if s.Counts == nil {
		s.Counts = map[string]int64{}
	}

	return s, nil
}

// encodeGroupKey renders a group-value tuple as a stable string key.
func encodeGroupKey(row []any) string {
	parts := make([]string, len(row))

	for i, v := range row {
		s, present := query.AsString(v)
		if !present {
			parts[i] = groupKeyNull

			continue
		}

		parts[i] = s
	}

	return strings.Join(parts, groupKeySep)
}
