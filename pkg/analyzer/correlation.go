package analyzer

import (
	"context"
	"fmt"
	"math"

	"github.com/tidewater-io/datavet/pkg/metric"
	"github.com/tidewater-io/datavet/pkg/query"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

// Correlation computes the Pearson correlation of two numeric columns over
// rows where both are non-null.
type Correlation struct {
	first  string
	second string
}

// NewCorrelation creates a correlation analyzer for the column pair.
func NewCorrelation(first, second string) Correlation {
	return Correlation{first: first, second: second}
}

// CorrelationState carries the componentwise sums of the pairwise scan.
type CorrelationState struct {
	N     int64   `json:"n"`
	SumX  float64 `json:"sum_x"`
	SumY  float64 `json:"sum_y"`
	SumXX float64 `json:"sum_xx"`
	SumYY float64 `json:"sum_yy"`
	SumXY float64 `json:"sum_xy"`
}

// IsEmpty implements State.
func (s *CorrelationState) IsEmpty() bool {
	return s.N == 0
}

// Pearson returns the correlation coefficient; false when undefined (no
// pairs, or a zero-variance side).
func (s *CorrelationState) Pearson() (float64, bool) {
	if s.N == 0 {
		return 0, false
	}

	n := float64(s.N)
	cov := s.SumXY - s.SumX*s.SumY/n
	varX := s.SumXX - s.SumX*s.SumX/n
	varY := s.SumYY - s.SumY*s.SumY/n

	denom := math.Sqrt(varX * varY)
	if denom == 0 || math.IsNaN(denom) {
		return 0, false
	}

	return cov / denom, true
}

// Descriptor implements Analyzer.
func (a Correlation) Descriptor() Descriptor {
	return Descriptor{Name: "correlation", Columns: []string{a.first, a.second}}
}

// MetricKey implements Analyzer.
func (a Correlation) MetricKey() string {
	return "correlation." + a.first + "," + a.second
}

// Entity implements Analyzer.
func (a Correlation) Entity() metric.Entity {
	return metric.MultiColumnEntity([]string{a.first, a.second})
}

// KindTag implements Analyzer.
func (Correlation) KindTag() uint16 {
	return KindCorrelation
}

// bothPresent guards every aggregate term on pairwise presence.
func (a Correlation) bothPresent() string {
	return query.QuoteIdent(a.first) + " IS NOT NULL AND " + query.QuoteIdent(a.second) + " IS NOT NULL"
}

// AggregateExprs implements Aggregate.
func (a Correlation) AggregateExprs() []string {
	x := query.QuoteIdent(a.first)
	y := query.QuoteIdent(a.second)
	guard := a.bothPresent()

	pick := func(expr string) string {
		return "SUM(CASE WHEN " + guard + " THEN " + expr + " ELSE NULL END)"
	}

	return []string{
		"SUM(CASE WHEN " + guard + " THEN 1 ELSE 0 END)",
		pick(x),
		pick(y),
		pick(x + " * " + x),
		pick(y + " * " + y),
		pick(x + " * " + y),
	}
}

// StateFromRow implements Aggregate.
func (Correlation) StateFromRow(row []any) (State, error) {
	if row == nil {
		return &CorrelationState{}, nil
	}

	n, okN := query.AsInt(row[0])
	if !okN {
		return nil, fmt.Errorf("%w: correlation pair count", verrors.ErrInvalidData)
	}

	state := &CorrelationState{N: n}
	if n == 0 {
		return state, nil
	}

	state.SumX, _ = query.AsFloat(row[1])
	state.SumY, _ = query.AsFloat(row[2])
	state.SumXX, _ = query.AsFloat(row[3])
	state.SumYY, _ = query.AsFloat(row[4])
	state.SumXY, _ = query.AsFloat(row[5])

	return state, nil
}

// ComputeState implements Analyzer.
func (a Correlation) ComputeState(ctx context.Context, qc query.Context) (State, error) {
	return ComputeAggregate(ctx, qc, a)
}

// Merge implements Analyzer.
func (Correlation) Merge(states []State) (State, error) {
	typed, err := castStates[*CorrelationState](states)
	if err != nil {
		return nil, err
	}

	merged := &CorrelationState{}
	for _, s := range typed {
		merged.N += s.N
		merged.SumX += s.SumX
		merged.SumY += s.SumY
		merged.SumXX += s.SumXX
		merged.SumYY += s.SumYY
		merged.SumXY += s.SumXY
	}

	return merged, nil
}

// Metric implements Analyzer.
func (Correlation) Metric(state State) (metric.Value, error) {
	s, ok := state.(*CorrelationState)
	if !ok {
		return metric.Null(), fmt.Errorf("%w: unexpected state type %T", verrors.ErrInternal, state)
	}

	rho, has := s.Pearson()
	if !has {
		return metric.Null(), verrors.ErrNoData
	}

	return metric.Double(rho), nil
}

// EncodeState implements Analyzer.
func (Correlation) EncodeState(state State) ([]byte, error) {
	return marshalState(state)
}

// DecodeState implements Analyzer.
func (Correlation) DecodeState(payload []byte) (State, error) {
	var s CorrelationState

	err := unmarshalState(payload, &s)
	if err != nil {
		return nil, err
	}

	return &s, nil
}
