package statestore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewater-io/datavet/pkg/analyzer"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

func newFSStore(t *testing.T) *FSStore {
	t.Helper()

	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	return store
}

func TestFSStore_PutGetRoundTrip(t *testing.T) {
	t.Parallel()

	store := newFSStore(t)
	a := analyzer.NewMean("amount")
	fp := a.Descriptor().Fingerprint()
	ctx := t.Context()

	state := &analyzer.MeanState{Sum: 100, Count: 10}
	require.NoError(t, store.Put(ctx, fp, "2024-01-01", a, state))

	got, ok, err := store.Get(ctx, fp, "2024-01-01", a)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, state, got)
}

func TestFSStore_GetMissing(t *testing.T) {
	t.Parallel()

	store := newFSStore(t)
	a := analyzer.NewMean("amount")

	_, ok, err := store.Get(t.Context(), a.Descriptor().Fingerprint(), "nope", a)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFSStore_RejectsUnsafePartition(t *testing.T) {
	t.Parallel()

	store := newFSStore(t)
	a := analyzer.NewMean("amount")
	fp := a.Descriptor().Fingerprint()

	err := store.Put(t.Context(), fp, "../escape", a, &analyzer.MeanState{})
	require.ErrorIs(t, err, verrors.ErrInvalidConfiguration)
}

func TestFSStore_MergeAllIncremental(t *testing.T) {
	t.Parallel()

	store := newFSStore(t)
	a := analyzer.NewMean("amount")
	fp := a.Descriptor().Fingerprint()
	ctx := t.Context()

	// Partition A: 10 rows sum 100; partition B: 20 rows sum 300.
	require.NoError(t, store.Put(ctx, fp, "part-a", a, &analyzer.MeanState{Sum: 100, Count: 10}))
	require.NoError(t, store.Put(ctx, fp, "part-b", a, &analyzer.MeanState{Sum: 300, Count: 20}))

	merged, ok, err := store.MergeAll(ctx, fp, a)
	require.NoError(t, err)
	require.True(t, ok)

	value, err := a.Metric(merged)
	require.NoError(t, err)

	mean, numeric := value.AsDouble()
	require.True(t, numeric)
	assert.InDelta(t, 400.0/30.0, mean, 1e-9)
}

func TestFSStore_PartitionRewriteSwaps(t *testing.T) {
	t.Parallel()

	store := newFSStore(t)
	a := analyzer.NewSum("amount")
	fp := a.Descriptor().Fingerprint()
	ctx := t.Context()

	require.NoError(t, store.Put(ctx, fp, "p1", a, &analyzer.SumState{Sum: 5, Count: 1}))
	require.NoError(t, store.Put(ctx, fp, "p1", a, &analyzer.SumState{Sum: 9, Count: 2}))

	got, ok, err := store.Get(ctx, fp, "p1", a)
	require.NoError(t, err)
	require.True(t, ok)

	typed, isSum := got.(*analyzer.SumState)
	require.True(t, isSum)
	assert.InDelta(t, 9.0, typed.Sum, 1e-12)

	partitions, err := store.ListPartitions(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, partitions)
}

func TestFSStore_ConcurrentPutSameKey(t *testing.T) {
	t.Parallel()

	store := newFSStore(t)
	a := analyzer.NewSum("amount")
	fp := a.Descriptor().Fingerprint()
	ctx := t.Context()

	var wg sync.WaitGroup

	for i := range 16 {
		wg.Add(1)

		go func(n int) {
			defer wg.Done()

			_ = store.Put(ctx, fp, "shared", a, &analyzer.SumState{Sum: float64(n), Count: 1})
		}(i)
	}

	wg.Wait()

	// Whichever writer won, the stored frame must decode cleanly.
	got, ok, err := store.Get(ctx, fp, "shared", a)
	require.NoError(t, err)
	require.True(t, ok)

	typed, isSum := got.(*analyzer.SumState)
	require.True(t, isSum)
	assert.EqualValues(t, 1, typed.Count)
}

func TestFSStore_Compact(t *testing.T) {
	t.Parallel()

	store := newFSStore(t)
	a := analyzer.NewSize()
	fp := a.Descriptor().Fingerprint()
	ctx := t.Context()

	require.NoError(t, store.Put(ctx, fp, "p1", a, &analyzer.SizeState{Count: 2}))
	require.NoError(t, store.Put(ctx, fp, "p2", a, &analyzer.SizeState{Count: 3}))

	require.NoError(t, store.Compact(ctx, fp, a))

	partitions, err := store.ListPartitions(ctx, fp)
	require.NoError(t, err)
	require.Len(t, partitions, 1)

	merged, ok, err := store.MergeAll(ctx, fp, a)
	require.NoError(t, err)
	require.True(t, ok)

	typed, isSize := merged.(*analyzer.SizeState)
	require.True(t, isSize)
	assert.EqualValues(t, 5, typed.Count)
}

func TestFSStore_WrongAnalyzerKindRejected(t *testing.T) {
	t.Parallel()

	store := newFSStore(t)
	mean := analyzer.NewMean("amount")
	size := analyzer.NewSize()
	fp := mean.Descriptor().Fingerprint()
	ctx := t.Context()

	require.NoError(t, store.Put(ctx, fp, "p1", mean, &analyzer.MeanState{Sum: 1, Count: 1}))

	_, _, err := store.Get(ctx, fp, "p1", size)
	require.ErrorIs(t, err, verrors.ErrStateDeserialize)
}

func TestMemoryStore_MatchesFSBehaviour(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	a := analyzer.NewMean("amount")
	fp := a.Descriptor().Fingerprint()
	ctx := t.Context()

	require.NoError(t, store.Put(ctx, fp, "a", a, &analyzer.MeanState{Sum: 100, Count: 10}))
	require.NoError(t, store.Put(ctx, fp, "b", a, &analyzer.MeanState{Sum: 300, Count: 20}))

	merged, ok, err := store.MergeAll(ctx, fp, a)
	require.NoError(t, err)
	require.True(t, ok)

	value, err := a.Metric(merged)
	require.NoError(t, err)

	mean, numeric := value.AsDouble()
	require.True(t, numeric)
	assert.InDelta(t, 400.0/30.0, mean, 1e-9)

	require.NoError(t, store.Compact(ctx, fp, a))

	partitions, err := store.ListPartitions(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, []string{"gen-0"}, partitions)
}
