package anomaly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewater-io/datavet/pkg/verrors"
)

func points(key string, values ...float64) []MetricDataPoint {
	out := make([]MetricDataPoint, 0, len(values))
	base := time.Unix(1700000000, 0)

	for i, v := range values {
		out = append(out, MetricDataPoint{
			Key:       key,
			Value:     v,
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		})
	}

	return out
}

func TestZScore_SpikeDetectedWithClampedConfidence(t *testing.T) {
	t.Parallel()

	s, err := NewZScore(3.0)
	require.NoError(t, err)

	history := points("size", 100, 102, 98, 101, 99)
	current := MetricDataPoint{Key: "size", Value: 150}

	anomaly := s.Detect(history, current)

	require.NotNil(t, anomaly)
	assert.InDelta(t, 1.0, anomaly.Confidence, 1e-9)
	assert.Equal(t, "zscore", anomaly.Strategy)
	assert.Less(t, anomaly.ExpectedHigh, 150.0)
}

func TestZScore_StableSeriesNoAnomaly(t *testing.T) {
	t.Parallel()

	s, err := NewZScore(3.0)
	require.NoError(t, err)

	history := points("size", 100, 102, 98, 101, 99)

	assert.Nil(t, s.Detect(history, MetricDataPoint{Key: "size", Value: 101}))
}

func TestZScore_ZeroVarianceNoAnomaly(t *testing.T) {
	t.Parallel()

	s, err := NewZScore(3.0)
	require.NoError(t, err)

	history := points("size", 5, 5, 5, 5)

	assert.Nil(t, s.Detect(history, MetricDataPoint{Key: "size", Value: 100}))
}

func TestZScore_ShortHistoryNoAnomaly(t *testing.T) {
	t.Parallel()

	s, err := NewZScore(3.0)
	require.NoError(t, err)

	assert.Nil(t, s.Detect(points("size", 5), MetricDataPoint{Key: "size", Value: 100}))
}

func TestZScore_RejectsBadConfig(t *testing.T) {
	t.Parallel()

	_, err := NewZScore(0)
	require.ErrorIs(t, err, verrors.ErrInvalidConfiguration)

	_, err = NewZScoreWithWindow(3, 1)
	require.ErrorIs(t, err, verrors.ErrInvalidConfiguration)
}

func TestRelativeRateOfChange(t *testing.T) {
	t.Parallel()

	s, err := NewRelativeRateOfChange(0.1)
	require.NoError(t, err)

	history := points("completeness.email", 0.95)

	assert.Nil(t, s.Detect(history, MetricDataPoint{Key: "completeness.email", Value: 0.93}))

	anomaly := s.Detect(history, MetricDataPoint{Key: "completeness.email", Value: 0.5})
	require.NotNil(t, anomaly)
	assert.Positive(t, anomaly.Confidence)
}

func TestRelativeRateOfChange_EmptyHistory(t *testing.T) {
	t.Parallel()

	s, err := NewRelativeRateOfChange(0.1)
	require.NoError(t, err)

	assert.Nil(t, s.Detect(nil, MetricDataPoint{Key: "k", Value: 1}))
}

func TestAbsoluteChange(t *testing.T) {
	t.Parallel()

	s, err := NewAbsoluteChange(10)
	require.NoError(t, err)

	history := points("size", 100)

	assert.Nil(t, s.Detect(history, MetricDataPoint{Key: "size", Value: 109}))

	anomaly := s.Detect(history, MetricDataPoint{Key: "size", Value: 130})
	require.NotNil(t, anomaly)
	assert.InDelta(t, 90, anomaly.ExpectedLow, 1e-9)
	assert.InDelta(t, 110, anomaly.ExpectedHigh, 1e-9)
	assert.InDelta(t, 1.0, anomaly.Confidence, 1e-9)
}

func TestDetector_PatternRoutingAndAppend(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepository()
	ctx := t.Context()

	for _, p := range points("size", 100, 102, 98, 101, 99) {
		require.NoError(t, repo.Append(ctx, p))
	}

	cfg, err := NewConfig(repo)
	require.NoError(t, err)

	zscore, err := NewZScore(3.0)
	require.NoError(t, err)
	require.NoError(t, cfg.AddPattern(`^size$`, zscore))

	detector := NewDetector(cfg)

	anomalies, err := detector.Detect(ctx, []MetricDataPoint{
		{Key: "size", Value: 150, Timestamp: time.Unix(1700100000, 0)},
		{Key: "completeness.email", Value: 0.01, Timestamp: time.Unix(1700100000, 0)},
	})
	require.NoError(t, err)

	// Only the size point matches the pattern.
	require.Len(t, anomalies, 1)
	assert.Equal(t, "size", anomalies[0].MetricKey)

	// Both points were appended to history.
	history, err := repo.History(ctx, "size", 0)
	require.NoError(t, err)
	assert.Len(t, history, 6)

	other, err := repo.History(ctx, "completeness.email", 0)
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestDetector_RejectsBadPattern(t *testing.T) {
	t.Parallel()

	cfg, err := NewConfig(NewMemoryRepository())
	require.NoError(t, err)

	zscore, err := NewZScore(3.0)
	require.NoError(t, err)

	require.ErrorIs(t, cfg.AddPattern("([", zscore), verrors.ErrInvalidConfiguration)
}

func TestMemoryRepository_CapacityEviction(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepositoryWithCapacity(3)
	ctx := t.Context()

	for _, p := range points("k", 1, 2, 3, 4, 5) {
		require.NoError(t, repo.Append(ctx, p))
	}

	history, err := repo.History(ctx, "k", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.InDelta(t, 3.0, history[0].Value, 1e-12)

	limited, err := repo.History(ctx, "k", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.InDelta(t, 4.0, limited[0].Value, 1e-12)
}
