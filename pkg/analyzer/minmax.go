package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/tidewater-io/datavet/pkg/metric"
	"github.com/tidewater-io/datavet/pkg/query"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

// extremum selects which side of a MinMaxState an analyzer reports.
type extremum uint8

const (
	extremumMin extremum = iota
	extremumMax
)

// MinMax computes the minimum or maximum of a numeric column. Both sides are
// tracked in one state; the mode only selects which side becomes the metric.
type MinMax struct {
	column string
	mode   extremum
}

// NewMinimum creates a minimum analyzer for the column.
func NewMinimum(column string) MinMax {
	return MinMax{column: column, mode: extremumMin}
}

// NewMaximum creates a maximum analyzer for the column.
func NewMaximum(column string) MinMax {
	return MinMax{column: column, mode: extremumMax}
}

// MinMaxState tracks both extremes with +Inf/-Inf identities so that merging
// with an empty state is a no-op.
type MinMaxState struct {
	Min   float64
	Max   float64
	Count int64
}

// NewMinMaxState returns the merge identity.
func NewMinMaxState() *MinMaxState {
	return &MinMaxState{Min: math.Inf(1), Max: math.Inf(-1)}
}

// IsEmpty implements State.
func (s *MinMaxState) IsEmpty() bool {
	return s.Count == 0
}

// minMaxStateJSON is the serialized form; infinities are not representable
// in JSON numbers, so the extremes travel as strings.
type minMaxStateJSON struct {
	Min   string `json:"min"`
	Max   string `json:"max"`
	Count int64  `json:"count"`
}

// MarshalJSON implements json.Marshaler.
func (s *MinMaxState) MarshalJSON() ([]byte, error) {
	return json.Marshal(minMaxStateJSON{
		Min:   strconv.FormatFloat(s.Min, 'g', -1, 64),
		Max:   strconv.FormatFloat(s.Max, 'g', -1, 64),
		Count: s.Count,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *MinMaxState) UnmarshalJSON(data []byte) error {
	var raw minMaxStateJSON

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}

	minVal, err := strconv.ParseFloat(raw.Min, 64)
	if err != nil {
		return fmt.Errorf("minmax min: %w", err)
	}

	maxVal, err := strconv.ParseFloat(raw.Max, 64)
	if err != nil {
		return fmt.Errorf("minmax max: %w", err)
	}

	s.Min = minVal
	s.Max = maxVal
	s.Count = raw.Count

	return nil
}

// name returns the analyzer name for the selected mode.
func (a MinMax) name() string {
	if a.mode == extremumMin {
		return "minimum"
	}

	return "maximum"
}

// Descriptor implements Analyzer.
func (a MinMax) Descriptor() Descriptor {
	return Descriptor{Name: a.name(), Columns: []string{a.column}}
}

// MetricKey implements Analyzer.
func (a MinMax) MetricKey() string {
	return a.name() + "." + a.column
}

// Entity implements Analyzer.
func (a MinMax) Entity() metric.Entity {
	return metric.ColumnEntity(a.column)
}

// KindTag implements Analyzer.
func (MinMax) KindTag() uint16 {
	return KindMinMax
}

// AggregateExprs implements Aggregate.
func (a MinMax) AggregateExprs() []string {
	quoted := query.QuoteIdent(a.column)

	return []string{"MIN(" + quoted + ")", "MAX(" + quoted + ")", "COUNT(" + quoted + ")"}
}

// StateFromRow implements Aggregate.
func (MinMax) StateFromRow(row []any) (State, error) {
	state := NewMinMaxState()
	if row == nil {
		return state, nil
	}

	count, okCount := query.AsInt(row[2])
	if !okCount {
		return nil, fmt.Errorf("%w: minmax count", verrors.ErrInvalidData)
	}

	if count == 0 {
		return state, nil
	}

	minVal, okMin := query.AsFloat(row[0])
	maxVal, okMax := query.AsFloat(row[1])

	if !okMin || !okMax {
		return nil, fmt.Errorf("%w: minmax extremes", verrors.ErrInvalidData)
	}

	state.Min = minVal
	state.Max = maxVal
	state.Count = count

	return state, nil
}

// ComputeState implements Analyzer.
func (a MinMax) ComputeState(ctx context.Context, qc query.Context) (State, error) {
	return ComputeAggregate(ctx, qc, a)
}

// Merge implements Analyzer.
func (MinMax) Merge(states []State) (State, error) {
	typed, err := castStates[*MinMaxState](states)
	if err != nil {
		return nil, err
	}

	merged := NewMinMaxState()
	for _, s := range typed {
		merged.Min = math.Min(merged.Min, s.Min)
		merged.Max = math.Max(merged.Max, s.Max)
		merged.Count += s.Count
	}

	return merged, nil
}

// Metric implements Analyzer.
func (a MinMax) Metric(state State) (metric.Value, error) {
	s, ok := state.(*MinMaxState)
	if !ok {
		return metric.Null(), fmt.Errorf("%w: unexpected state type %T", verrors.ErrInternal, state)
	}

	if s.Count == 0 {
		return metric.Null(), verrors.ErrNoData
	}

	if a.mode == extremumMin {
		return metric.Double(s.Min), nil
	}

	return metric.Double(s.Max), nil
}

// EncodeState implements Analyzer.
func (MinMax) EncodeState(state State) ([]byte, error) {
	return marshalState(state)
}

// DecodeState implements Analyzer.
func (MinMax) DecodeState(payload []byte) (State, error) {
	s := NewMinMaxState()

	err := unmarshalState(payload, s)
	if err != nil {
		return nil, err
	}

	return s, nil
}
