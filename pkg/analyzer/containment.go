package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/tidewater-io/datavet/pkg/metric"
	"github.com/tidewater-io/datavet/pkg/query"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

// Containment measures the fraction of non-null values that fall inside an
// allowed value set.
type Containment struct {
	column  string
	allowed map[string]struct{}
	sorted  []string
}

// NewContainment creates a containment analyzer over the allowed set. The
// set must not be empty.
func NewContainment(column string, allowed []string) (Containment, error) {
	if len(allowed) == 0 {
		return Containment{}, fmt.Errorf("%w: containment needs a non-empty value set", verrors.ErrInvalidConfiguration)
	}

	set := make(map[string]struct{}, len(allowed))
	for _, v := range allowed {
		set[v] = struct{}{}
	}

	sorted := make([]string, 0, len(set))
	for v := range set {
		sorted = append(sorted, v)
	}

	slices.Sort(sorted)

	return Containment{column: column, allowed: set, sorted: sorted}, nil
}

// ContainmentState counts contained values against non-null values.
type ContainmentState struct {
	Contained int64 `json:"contained"`
	NonNull   int64 `json:"non_null"`
}

// IsEmpty implements State.
func (s *ContainmentState) IsEmpty() bool {
	return s.NonNull == 0
}

// Ratio returns contained/non-null; false when no values were observed.
func (s *ContainmentState) Ratio() (float64, bool) {
	if s.NonNull == 0 {
		return 0, false
	}

	return float64(s.Contained) / float64(s.NonNull), true
}

// Descriptor implements Analyzer. The set digest is order-independent.
func (a Containment) Descriptor() Descriptor {
	digest := sha256.Sum256([]byte(strings.Join(a.sorted, groupKeySep)))

	return Descriptor{
		Name:         "containment",
		Columns:      []string{a.column},
		ParamsDigest: hex.EncodeToString(digest[:8]),
	}
}

// MetricKey implements Analyzer.
func (a Containment) MetricKey() string {
	return "containment." + a.column
}

// Entity implements Analyzer.
func (a Containment) Entity() metric.Entity {
	return metric.ColumnEntity(a.column)
}

// KindTag implements Analyzer.
func (Containment) KindTag() uint16 {
	return KindContainment
}

// ComputeState implements Analyzer via a GROUP BY: only distinct values are
// shipped back, not every row.
func (a Containment) ComputeState(ctx context.Context, qc query.Context) (State, error) {
	state := &ContainmentState{}

	err := scanGrouped(ctx, qc, []string{a.column}, func(row []any, count int64) error {
		value, present := query.AsString(row[0])
		if !present {
			return nil
		}

		state.NonNull += count

		if _, ok := a.allowed[value]; ok {
			state.Contained += count
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return state, nil
}

// Merge implements Analyzer.
func (Containment) Merge(states []State) (State, error) {
	typed, err := castStates[*ContainmentState](states)
	if err != nil {
		return nil, err
	}

	merged := &ContainmentState{}
	for _, s := range typed {
		merged.Contained += s.Contained
		merged.NonNull += s.NonNull
	}

	return merged, nil
}

// Metric implements Analyzer.
func (Containment) Metric(state State) (metric.Value, error) {
	s, ok := state.(*ContainmentState)
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
func (Containment) EncodeState(state State) ([]byte, error) {
	return marshalState(state)
}

// DecodeState implements Analyzer.
func (Containment) DecodeState(payload []byte) (State, error) {
	var s ContainmentState

	err := unmarshalState(payload, &s)
	if err != nil {
		return nil, err
	}

	return &s, nil
}
