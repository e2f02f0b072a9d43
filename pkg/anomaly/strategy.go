// Package anomaly detects unusual movements in historical metric series.
//
// A detector maps metric-key patterns to strategies. Each strategy compares
// the current metric point against the stored history and emits an Anomaly
// with a clamped confidence when the movement exceeds its threshold.
package anomaly

import (
	"fmt"
	"math"

	"github.com/tidewater-io/datavet/pkg/alg/stats"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

// divisionEpsilon floors denominators in relative comparisons.
const divisionEpsilon = 1e-10

// DefaultZScoreWindow is the number of trailing points a z-score strategy
// considers.
const DefaultZScoreWindow = 30

// Anomaly is one detected irregularity.
type Anomaly struct {
	MetricKey    string
	Value        float64
	ExpectedLow  float64
	ExpectedHigh float64
	Confidence   float64
	Strategy     string
	Description  string
}

// Strategy decides whether the current point is anomalous given its history.
// History is ordered oldest first. A nil result means no anomaly.
type Strategy interface {
	Name() string
	Detect(history []MetricDataPoint, current MetricDataPoint) *Anomaly
}

// RelativeRateOfChange flags points whose relative change from the previous
// point exceeds MaxRatio.
type RelativeRateOfChange struct {
	MaxRatio float64
}

// NewRelativeRateOfChange creates the strategy. MaxRatio must be positive.
func NewRelativeRateOfChange(maxRatio float64) (RelativeRateOfChange, error) {
	if maxRatio <= 0 {
		return RelativeRateOfChange{}, fmt.Errorf("%w: max ratio must be positive", verrors.ErrInvalidConfiguration)
	}

	return RelativeRateOfChange{MaxRatio: maxRatio}, nil
}

// Name implements Strategy.
func (RelativeRateOfChange) Name() string {
	return "relative_rate_of_change"
}

// Detect implements Strategy.
func (s RelativeRateOfChange) Detect(history []MetricDataPoint, current MetricDataPoint) *Anomaly {
	if len(history) == 0 {
		return nil
	}

	prev := history[len(history)-1].Value
	deviation := math.Abs(current.Value-prev) / math.Max(math.Abs(prev), divisionEpsilon)

	if deviation <= s.MaxRatio {
		return nil
	}

	span := math.Abs(prev) * s.MaxRatio

	return &Anomaly{
		MetricKey:    current.Key,
		Value:        current.Value,
		ExpectedLow:  prev - span,
		ExpectedHigh: prev + span,
		Confidence:   stats.Clamp((deviation-s.MaxRatio)/s.MaxRatio, 0, 1),
		Strategy:     s.Name(),
		Description: fmt.Sprintf("relative change %.4f from previous value %g exceeds %g",
			deviation, prev, s.MaxRatio),
	}
}

// AbsoluteChange flags points whose absolute change from the previous point
// exceeds MaxDelta.
type AbsoluteChange struct {
	MaxDelta float64
}

// NewAbsoluteChange creates the strategy. MaxDelta must be positive.
func NewAbsoluteChange(maxDelta float64) (AbsoluteChange, error) {
	if maxDelta <= 0 {
		return AbsoluteChange{}, fmt.Errorf("%w: max delta must be positive", verrors.ErrInvalidConfiguration)
	}

	return AbsoluteChange{MaxDelta: maxDelta}, nil
}

// Name implements Strategy.
func (AbsoluteChange) Name() string {
	return "absolute_change"
}

// Detect implements Strategy.
func (s AbsoluteChange) Detect(history []MetricDataPoint, current MetricDataPoint) *Anomaly {
	if len(history) == 0 {
		return nil
	}

	prev := history[len(history)-1].Value
	deviation := math.Abs(current.Value - prev)

	if deviation <= s.MaxDelta {
		return nil
	}

	return &Anomaly{
		MetricKey:    current.Key,
		Value:        current.Value,
		ExpectedLow:  prev - s.MaxDelta,
		ExpectedHigh: prev + s.MaxDelta,
		Confidence:   stats.Clamp((deviation-s.MaxDelta)/s.MaxDelta, 0, 1),
		Strategy:     s.Name(),
		Description: fmt.Sprintf("absolute change %g from previous value %g exceeds %g",
			deviation, prev, s.MaxDelta),
	}
}

// ZScore flags points further than Threshold sample standard deviations from
// the rolling window mean. No anomaly is reported when the window deviation
// collapses below the division floor.
type ZScore struct {
	Threshold float64
	Window    int
}

// NewZScore creates the strategy with the default window. Threshold must be
// positive.
func NewZScore(threshold float64) (ZScore, error) {
	return NewZScoreWithWindow(threshold, DefaultZScoreWindow)
}

// NewZScoreWithWindow creates the strategy with an explicit window size.
func NewZScoreWithWindow(threshold float64, window int) (ZScore, error) {
	if threshold <= 0 {
		return ZScore{}, fmt.Errorf("%w: z-score threshold must be positive", verrors.ErrInvalidConfiguration)
	}

	if window < 2 {
		return ZScore{}, fmt.Errorf("%w: z-score window must be at least 2", verrors.ErrInvalidConfiguration)
	}

	return ZScore{Threshold: threshold, Window: window}, nil
}

// Name implements Strategy.
func (ZScore) Name() string {
	return "zscore"
}

// Detect implements Strategy.
func (s ZScore) Detect(history []MetricDataPoint, current MetricDataPoint) *Anomaly {
	if len(history) < 2 {
		return nil
	}

	start := max(0, len(history)-s.Window)
	window := make([]float64, 0, len(history)-start)

	for _, point := range history[start:] {
		window = append(window, point.Value)
	}

	mean, sigma := sampleMeanStdDev(window)
	if sigma <= divisionEpsilon {
		return nil
	}

	z := math.Abs(current.Value-mean) / sigma
	if z <= s.Threshold {
		return nil
	}

	span := s.Threshold * sigma

	return &Anomaly{
		MetricKey:    current.Key,
		Value:        current.Value,
		ExpectedLow:  mean - span,
		ExpectedHigh: mean + span,
		Confidence:   stats.Clamp((z-s.Threshold)/s.Threshold, 0, 1),
		Strategy:     s.Name(),
		Description: fmt.Sprintf("z-score %.2f against window mean %g (stddev %g) exceeds %g",
			z, mean, sigma, s.Threshold),
	}
}

// sampleMeanStdDev returns the mean and the sample (÷(n−1)) standard
// deviation, the conventional estimator for small trend windows.
func sampleMeanStdDev(values []float64) (mean, stddev float64) {
	n := len(values)

	mean, population := stats.MeanStdDev(values)
	if n < 2 {
		return mean, population
	}

	return mean, population * math.Sqrt(float64(n)/float64(n-1))
}
