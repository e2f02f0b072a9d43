package hll

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_PrecisionBounds(t *testing.T) {
	t.Parallel()

	_, err := New(3)
	require.ErrorIs(t, err, ErrPrecisionOutOfRange)

	_, err = New(19)
	require.ErrorIs(t, err, ErrPrecisionOutOfRange)

	s, err := New(DefaultPrecision)
	require.NoError(t, err)
	assert.Equal(t, uint8(DefaultPrecision), s.Precision())
}

func TestSketch_CountAccuracy(t *testing.T) {
	t.Parallel()

	s, err := New(DefaultPrecision)
	require.NoError(t, err)

	const distinct = 10000

	for i := range distinct {
		s.AddString(fmt.Sprintf("value-%d", i))
		// Duplicates must not change the estimate.
		s.AddString(fmt.Sprintf("value-%d", i))
	}

	estimate := float64(s.Count())
	assert.InEpsilon(t, float64(distinct), estimate, 0.05)
}

func TestSketch_Empty(t *testing.T) {
	t.Parallel()

	s, err := New(DefaultPrecision)
	require.NoError(t, err)

	assert.True(t, s.IsEmpty())
	assert.Zero(t, s.Count())
}

func TestSketch_MergeMatchesUnion(t *testing.T) {
	t.Parallel()

	left, err := New(12)
	require.NoError(t, err)
	right, err := New(12)
	require.NoError(t, err)
	union, err := New(12)
	require.NoError(t, err)

	for i := range 5000 {
		v := fmt.Sprintf("left-%d", i)
		left.AddString(v)
		union.AddString(v)
	}

	for i := range 5000 {
		v := fmt.Sprintf("right-%d", i)
		right.AddString(v)
		union.AddString(v)
	}

	require.NoError(t, left.Merge(right))
	assert.Equal(t, union.Count(), left.Count())
}

func TestSketch_MergePrecisionMismatch(t *testing.T) {
	t.Parallel()

	a, err := New(10)
	require.NoError(t, err)
	b, err := New(12)
	require.NoError(t, err)

	require.ErrorIs(t, a.Merge(b), ErrPrecisionMismatch)
}

func TestSketch_MergeIdentity(t *testing.T) {
	t.Parallel()

	s, err := New(12)
	require.NoError(t, err)

	for i := range 1000 {
		s.AddString(fmt.Sprintf("v%d", i))
	}

	before := s.Count()

	empty, err := New(12)
	require.NoError(t, err)
	require.NoError(t, s.Merge(empty))

	assert.Equal(t, before, s.Count())
}

func TestSketch_BinaryRoundTrip(t *testing.T) {
	t.Parallel()

	s, err := New(10)
	require.NoError(t, err)

	for i := range 2000 {
		s.AddString(fmt.Sprintf("v%d", i))
	}

	data, err := s.MarshalBinary()
	require.NoError(t, err)

	var restored Sketch
	require.NoError(t, restored.UnmarshalBinary(data))

	assert.Equal(t, s.Count(), restored.Count())
	assert.Equal(t, s.Precision(), restored.Precision())
}

func TestSketch_UnmarshalCorrupt(t *testing.T) {
	t.Parallel()

	var s Sketch

	require.ErrorIs(t, s.UnmarshalBinary(nil), ErrCorruptSketch)
	require.ErrorIs(t, s.UnmarshalBinary([]byte{99}), ErrCorruptSketch)
	require.ErrorIs(t, s.UnmarshalBinary([]byte{10, 1, 2, 3}), ErrCorruptSketch)
}
