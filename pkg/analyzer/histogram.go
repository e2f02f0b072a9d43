package analyzer

import (
	"context"
	"fmt"
	"strconv"

	"github.com/tidewater-io/datavet/pkg/metric"
	"github.com/tidewater-io/datavet/pkg/query"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

// Histogram buckets a numeric column into a fixed number of equal-width
// bins over [lo, hi). Values outside the range land in dedicated underflow
// and overflow bins so counts always total the non-null rows.
type Histogram struct {
	column  string
	lo      float64
	hi      float64
	buckets int
}

// NewHistogram creates a fixed-bucket histogram analyzer. buckets must be
// positive and hi must exceed lo.
func NewHistogram(column string, lo, hi float64, buckets int) (Histogram, error) {
	if buckets <= 0 {
		return Histogram{}, fmt.Errorf("%w: histogram needs at least one bucket", verrors.ErrInvalidConfiguration)
	}

	if hi <= lo {
		return Histogram{}, fmt.Errorf("%w: histogram range [%g, %g) is empty", verrors.ErrInvalidConfiguration, lo, hi)
	}

	return Histogram{column: column, lo: lo, hi: hi, buckets: buckets}, nil
}

// HistogramState holds per-bin counts: Bins[0] is underflow,
// Bins[len-1] overflow, the rest the equal-width bins in order.
type HistogramState struct {
	Bins  []int64 `json:"bins"`
	Total int64   `json:"total"`
}

// IsEmpty implements State.
func (s *HistogramState) IsEmpty() bool {
	return s.Total == 0
}

// Descriptor implements Analyzer.
func (a Histogram) Descriptor() Descriptor {
	return Descriptor{
		Name:         "histogram",
		Columns:      []string{a.column},
		ParamsDigest: fmt.Sprintf("lo=%g,hi=%g,n=%d", a.lo, a.hi, a.buckets),
	}
}

// MetricKey implements Analyzer.
func (a Histogram) MetricKey() string {
	return "histogram." + a.column
}

// Entity implements Analyzer.
func (a Histogram) Entity() metric.Entity {
	return metric.ColumnEntity(a.column)
}

// KindTag implements Analyzer.
func (Histogram) KindTag() uint16 {
	return KindHistogram
}

// binCount returns the bin slice length including underflow and overflow.
func (a Histogram) binCount() int {
	return a.buckets + 2
}

// binFor maps a value to its bin index.
func (a Histogram) binFor(value float64) int {
	if value < a.lo {
		return 0
	}

	if value >= a.hi {
		return a.binCount() - 1
	}

	width := (a.hi - a.lo) / float64(a.buckets)
	idx := int((value - a.lo) / width)

	// Guard the hi-adjacent edge against float rounding.
	if idx >= a.buckets {
		idx = a.buckets - 1
	}

	return idx + 1
}

// ComputeState implements Analyzer.
func (a Histogram) ComputeState(ctx context.Context, qc query.Context) (State, error) {
	state := &HistogramState{Bins: make([]int64, a.binCount())}

	err := scanColumns(ctx, qc, []string{a.column}, func(row []any) error {
		value, present := query.AsFloat(row[0])
		if !present {
			return nil
		}

		state.Bins[a.binFor(value)]++
		state.Total++

		return nil
	})
	if err != nil {
		return nil, err
	}

	return state, nil
}

// Merge implements Analyzer by vector addition.
func (a Histogram) Merge(states []State) (State, error) {
	typed, err := castStates[*HistogramState](states)
	if err != nil {
		return nil, err
	}

	merged := &HistogramState{Bins: make([]int64, a.binCount())}

	for _, s := range typed {
		if len(s.Bins) != len(merged.Bins) {
			return nil, fmt.Errorf("%w: histogram bin count mismatch", verrors.ErrStateMerge)
		}

		for i, count := range s.Bins {
			merged.Bins[i] += count
		}

		merged.Total += s.Total
	}

	return merged, nil
}

// Metric implements Analyzer, producing a labelled distribution.
func (a Histogram) Metric(state State) (metric.Value, error) {
	s, ok := state.(*HistogramState)
	if !ok {
		return metric.Null(), fmt.Errorf("%w: unexpected state type %T", verrors.ErrInternal, state)
	}

	if s.Total == 0 {
		return metric.Null(), verrors.ErrNoData
	}

	width := (a.hi - a.lo) / float64(a.buckets)
	buckets := make([]metric.Bucket, 0, len(s.Bins))

	buckets = append(buckets, metric.Bucket{
		Label: "(-inf," + formatBound(a.lo) + ")",
		Count: s.Bins[0],
	})

	for i := range a.buckets {
		lo := a.lo + float64(i)*width
		hi := lo + width
		buckets = append(buckets, metric.Bucket{
			Label: "[" + formatBound(lo) + "," + formatBound(hi) + ")",
			Count: s.Bins[i+1],
		})
	}

	buckets = append(buckets, metric.Bucket{
		Label: "[" + formatBound(a.hi) + ",+inf)",
		Count: s.Bins[len(s.Bins)-1],
	})

	return metric.Distribution(buckets), nil
}

// EncodeState implements Analyzer.
func (Histogram) EncodeState(state State) ([]byte, error) {
	return marshalState(state)
}

// DecodeState implements Analyzer.
func (Histogram) DecodeState(payload []byte) (State, error) {
	var s HistogramState

	err := unmarshalState(payload, &s)
	if err != nil {
		return nil, err
	}

	return &s, nil
}

// formatBound renders a bucket boundary compactly.
func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
