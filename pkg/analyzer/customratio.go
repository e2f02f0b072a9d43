package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/tidewater-io/datavet/pkg/metric"
	"github.com/tidewater-io/datavet/pkg/query"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

// CustomRatio measures the fraction of rows satisfying a caller-supplied SQL
// predicate expression. The predicate text comes from the suite author and
// runs with the author's privileges; it is not a hardening boundary.
type CustomRatio struct {
	name      string
	predicate string
}

// NewCustomRatio creates a custom predicate analyzer. name labels the metric;
// predicate is a boolean SQL expression over the bound table's columns.
func NewCustomRatio(name, predicate string) (CustomRatio, error) {
	if strings.TrimSpace(predicate) == "" {
		return CustomRatio{}, fmt.Errorf("%w: empty custom predicate", verrors.ErrInvalidConfiguration)
	}

	if strings.TrimSpace(name) == "" {
		return CustomRatio{}, fmt.Errorf("%w: custom predicate needs a name", verrors.ErrInvalidConfiguration)
	}

	return CustomRatio{name: name, predicate: predicate}, nil
}

// CustomRatioState counts passing rows against all rows.
type CustomRatioState struct {
	Passing int64 `json:"passing"`
	Total   int64 `json:"total"`
}

// IsEmpty implements State.
func (s *CustomRatioState) IsEmpty() bool {
	return s.Total == 0
}

// Ratio returns passing/total; false when no rows were observed.
func (s *CustomRatioState) Ratio() (float64, bool) {
	if s.Total == 0 {
		return 0, false
	}

	return float64(s.Passing) / float64(s.Total), true
}

// Descriptor implements Analyzer.
func (a CustomRatio) Descriptor() Descriptor {
	digest := sha256.Sum256([]byte(a.predicate))

	return Descriptor{
		Name:         "custom_ratio." + a.name,
		ParamsDigest: hex.EncodeToString(digest[:8]),
	}
}

// MetricKey implements Analyzer.
func (a CustomRatio) MetricKey() string {
	return "custom_ratio." + a.name
}

// Entity implements Analyzer.
func (CustomRatio) Entity() metric.Entity {
	return metric.DatasetEntity()
}

// KindTag implements Analyzer.
func (CustomRatio) KindTag() uint16 {
	return KindCustomRatio
}

// AggregateExprs implements Aggregate.
func (a CustomRatio) AggregateExprs() []string {
	return []string{
		"SUM(CASE WHEN (" + a.predicate + ") THEN 1 ELSE 0 END)",
		"COUNT(*)",
	}
}

// StateFromRow implements Aggregate.
func (CustomRatio) StateFromRow(row []any) (State, error) {
	if row == nil {
		return &CustomRatioState{}, nil
	}

	total, okTotal := query.AsInt(row[1])
	if !okTotal {
		return nil, fmt.Errorf("%w: custom ratio total", verrors.ErrInvalidData)
	}

	// SUM over zero rows is NULL.
	passing, _ := query.AsInt(row[0])

	return &CustomRatioState{Passing: passing, Total: total}, nil
}

// ComputeState implements Analyzer.
func (a CustomRatio) ComputeState(ctx context.Context, qc query.Context) (State, error) {
	return ComputeAggregate(ctx, qc, a)
}

// Merge implements Analyzer.
func (CustomRatio) Merge(states []State) (State, error) {
	typed, err := castStates[*CustomRatioState](states)
	if err != nil {
		return nil, err
	}

	merged := &CustomRatioState{}
	for _, s := range typed {
		merged.Passing += s.Passing
		merged.Total += s.Total
	}

	return merged, nil
}

// Metric implements Analyzer.
func (CustomRatio) Metric(state State) (metric.Value, error) {
	s, ok := state.(*CustomRatioState)
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
func (CustomRatio) EncodeState(state State) ([]byte, error) {
	return marshalState(state)
}

// DecodeState implements Analyzer.
func (CustomRatio) DecodeState(payload []byte) (State, error) {
	var s CustomRatioState

	err := unmarshalState(payload, &s)
	if err != nil {
		return nil, err
	}

	return &s, nil
}
