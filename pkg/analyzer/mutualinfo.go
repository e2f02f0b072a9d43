package analyzer

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/tidewater-io/datavet/pkg/metric"
	"github.com/tidewater-io/datavet/pkg/query"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

// MutualInformation computes the mutual information (natural log) between
// two columns over rows where both are non-null. The joint distribution is
// kept exactly; marginals are derived from it.
type MutualInformation struct {
	first  string
	second string
}

// NewMutualInformation creates a mutual information analyzer for the pair.
func NewMutualInformation(first, second string) MutualInformation {
	return MutualInformation{first: first, second: second}
}

// MutualInformationState holds joint value-pair counts keyed by the encoded
// pair.
type MutualInformationState struct {
	Joint map[string]int64 `json:"joint"`
	Total int64            `json:"total"`
}

// NewMutualInformationState returns the merge identity.
func NewMutualInformationState() *MutualInformationState {
	return &MutualInformationState{Joint: map[string]int64{}}
}

// IsEmpty implements State.
func (s *MutualInformationState) IsEmpty() bool {
	return s.Total == 0
}

// MutualInformation returns Σ p(x,y)·ln(p(x,y)/(p(x)·p(y))); false when no
// pairs were observed.
func (s *MutualInformationState) MutualInformation() (float64, bool) {
	if s.Total == 0 {
		return 0, false
	}

	left := map[string]int64{}
	right := map[string]int64{}

	for key, count := range s.Joint {
		x, y, ok := splitPairKey(key)
		if !ok {
			continue
		}

		left[x] += count
		right[y] += count
	}

	total := float64(s.Total)

	var mi float64

	for key, count := range s.Joint {
		x, y, ok := splitPairKey(key)
		if !ok {
			continue
		}

		pxy := float64(count) / total
		px := float64(left[x]) / total
		py := float64(right[y]) / total

		mi += pxy * math.Log(pxy/(px*py))
	}

	// Float rounding can push an independent pair fractionally negative.
	if mi < 0 {
		mi = 0
	}

	return mi, true
}

// Descriptor implements Analyzer.
func (a MutualInformation) Descriptor() Descriptor {
	return Descriptor{Name: "mutual_information", Columns: []string{a.first, a.second}}
}

// MetricKey implements Analyzer.
func (a MutualInformation) MetricKey() string {
	return "mutual_information." + a.first + "," + a.second
}

// Entity implements Analyzer.
func (a MutualInformation) Entity() metric.Entity {
	return metric.MultiColumnEntity([]string{a.first, a.second})
}

// KindTag implements Analyzer.
func (MutualInformation) KindTag() uint16 {
	return KindMutualInfo
}

// ComputeState implements Analyzer via a pairwise GROUP BY.
func (a MutualInformation) ComputeState(ctx context.Context, qc query.Context) (State, error) {
	state := NewMutualInformationState()

	err := scanGrouped(ctx, qc, []string{a.first, a.second}, func(row []any, count int64) error {
		x, okX := query.AsString(row[0])
		y, okY := query.AsString(row[1])

		if !okX || !okY {
			return nil
		}

		state.Joint[x+groupKeySep+y] += count
		state.Total += count

		return nil
	})
	if err != nil {
		return nil, err
	}

	return state, nil
}

// Merge implements Analyzer.
func (MutualInformation) Merge(states []State) (State, error) {
	typed, err := castStates[*MutualInformationState](states)
	if err != nil {
		return nil, err
	}

	merged := NewMutualInformationState()
	for _, s := range typed {
		for key, count := range s.Joint {
			merged.Joint[key] += count
		}

		merged.Total += s.Total
	}

	return merged, nil
}

// Metric implements Analyzer.
func (MutualInformation) Metric(state State) (metric.Value, error) {
	s, ok := state.(*MutualInformationState)
	if !ok {
		return metric.Null(), fmt.Errorf("%w: unexpected state type %T", verrors.ErrInternal, state)
	}

	mi, has := s.MutualInformation()
	if !has {
		return metric.Null(), verrors.ErrNoData
	}

	return metric.Double(mi), nil
}

// EncodeState implements Analyzer.
func (MutualInformation) EncodeState(state State) ([]byte, error) {
	return marshalState(state)
}

// DecodeState implements Analyzer.
func (MutualInformation) DecodeState(payload []byte) (State, error) {
	s := NewMutualInformationState()

	err := unmarshalState(payload, s)
	if err != nil {
		return nil, err
	}

	if s.Joint == nil {
		s.Joint = map[string]int64{}
	}

	return s, nil
}

// splitPairKey splits an encoded pair key back into its halves.
func splitPairKey(key string) (x, y string, ok bool) {
	idx := strings.Index(key, groupKeySep)
	if idx < 0 {
		return "", "", false
	}

	return key[:idx], key[idx+len(groupKeySep):], true
}
