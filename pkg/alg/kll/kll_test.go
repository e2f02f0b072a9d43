package kll

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidK(t *testing.T) {
	t.Parallel()

	_, err := New(2)
	require.ErrorIs(t, err, ErrInvalidK)
}

func TestSketch_QuantileUniform(t *testing.T) {
	t.Parallel()

	s, err := New(DefaultK)
	require.NoError(t, err)

	const n = 10000

	for i := range n {
		s.Add(float64(i))
	}

	require.EqualValues(t, n, s.Count())

	median, err := s.Quantile(0.5)
	require.NoError(t, err)
	assert.InDelta(t, n/2, median, n*0.05)

	p95, err := s.Quantile(0.95)
	require.NoError(t, err)
	assert.InDelta(t, n*0.95, p95, n*0.05)
}

func TestSketch_QuantileExtremes(t *testing.T) {
	t.Parallel()

	s, err := New(DefaultK)
	require.NoError(t, err)

	for i := 1; i <= 100; i++ {
		s.Add(float64(i))
	}

	lo, err := s.Quantile(0)
	require.NoError(t, err)
	assert.InDelta(t, 1, lo, 5)

	hi, err := s.Quantile(1)
	require.NoError(t, err)
	assert.InDelta(t, 100, hi, 5)
}

func TestSketch_Empty(t *testing.T) {
	t.Parallel()

	s, err := New(DefaultK)
	require.NoError(t, err)

	assert.True(t, s.IsEmpty())

	_, err = s.Quantile(0.5)
	require.ErrorIs(t, err, ErrEmptySketch)
}

func TestSketch_IgnoresNaN(t *testing.T) {
	t.Parallel()

	s, err := New(DefaultK)
	require.NoError(t, err)

	s.Add(math.NaN())
	assert.True(t, s.IsEmpty())
}

func TestSketch_MergeMatchesSingleStream(t *testing.T) {
	t.Parallel()

	left, err := New(DefaultK)
	require.NoError(t, err)
	right, err := New(DefaultK)
	require.NoError(t, err)
	whole, err := New(DefaultK)
	require.NoError(t, err)

	const n = 5000

	for i := range n {
		left.Add(float64(i))
		whole.Add(float64(i))
	}

	for i := n; i < 2*n; i++ {
		right.Add(float64(i))
		whole.Add(float64(i))
	}

	require.NoError(t, left.Merge(right))
	require.Equal(t, whole.Count(), left.Count())

	mergedMedian, err := left.Quantile(0.5)
	require.NoError(t, err)
	wholeMedian, err := whole.Quantile(0.5)
	require.NoError(t, err)

	assert.InDelta(t, wholeMedian, mergedMedian, 2*n*0.05)
}

func TestSketch_MergeKMismatch(t *testing.T) {
	t.Parallel()

	a, err := New(100)
	require.NoError(t, err)
	b, err := New(200)
	require.NoError(t, err)

	require.ErrorIs(t, a.Merge(b), ErrKMismatch)
}

func TestSketch_MergeIdentity(t *testing.T) {
	t.Parallel()

	s, err := New(DefaultK)
	require.NoError(t, err)

	for i := range 1000 {
		s.Add(float64(i))
	}

	before, err := s.Quantile(0.5)
	require.NoError(t, err)

	empty, err := New(DefaultK)
	require.NoError(t, err)
	require.NoError(t, s.Merge(empty))

	after, err := s.Quantile(0.5)
	require.NoError(t, err)

	assert.InDelta(t, before, after, 1e-9)
}

func TestSketch_BinaryRoundTrip(t *testing.T) {
	t.Parallel()

	s, err := New(DefaultK)
	require.NoError(t, err)

	for i := range 3000 {
		s.Add(float64(i % 500))
	}

	data, err := s.MarshalBinary()
	require.NoError(t, err)

	var restored Sketch
	require.NoError(t, restored.UnmarshalBinary(data))

	assert.Equal(t, s.Count(), restored.Count())
	assert.Equal(t, s.K(), restored.K())

	orig, err := s.Quantile(0.5)
	require.NoError(t, err)
	back, err := restored.Quantile(0.5)
	require.NoError(t, err)
	assert.InDelta(t, orig, back, 1e-9)
}

func TestSketch_UnmarshalCorrupt(t *testing.T) {
	t.Parallel()

	var s Sketch

	require.ErrorIs(t, s.UnmarshalBinary(nil), ErrCorruptSketch)
	require.ErrorIs(t, s.UnmarshalBinary(make([]byte, 4)), ErrCorruptSketch)
}
