package runner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewater-io/datavet/pkg/analyzer"
)

func TestStatsCache_SetGet(t *testing.T) {
	t.Parallel()

	cache := NewStatsCache()

	cache.Set("rowcount:users", 42)

	got, ok := cache.Get("rowcount:users")
	require.True(t, ok)
	assert.InDelta(t, 42.0, got, 1e-12)

	_, ok = cache.Get("missing")
	assert.False(t, ok)
}

func TestStatsCache_TTLExpiry(t *testing.T) {
	t.Parallel()

	cache := NewStatsCacheWithConfig(10*time.Millisecond, 10)

	cache.Set("k", 1)

	_, ok := cache.Get("k")
	require.True(t, ok)

	time.Sleep(25 * time.Millisecond)

	_, ok = cache.Get("k")
	assert.False(t, ok)
}

func TestStatsCache_CapacityEviction(t *testing.T) {
	t.Parallel()

	cache := NewStatsCacheWithConfig(time.Minute, 2)

	cache.Set("a", 1)
	time.Sleep(time.Millisecond)
	cache.Set("b", 2)
	time.Sleep(time.Millisecond)
	cache.Set("c", 3)

	assert.Equal(t, 2, cache.Len())

	_, ok := cache.Get("a")
	assert.False(t, ok, "oldest entry should be evicted")

	_, ok = cache.Get("c")
	assert.True(t, ok)
}

func planFixture() ([]analyzer.Fingerprint, map[analyzer.Fingerprint]analyzer.Analyzer) {
	items := []analyzer.Analyzer{
		analyzer.NewSize(),
		analyzer.NewCompleteness("email"),
		analyzer.NewUniqueness("id"),
		analyzer.NewMean("age"),
	}

	var order []analyzer.Fingerprint

	analyzers := map[analyzer.Fingerprint]analyzer.Analyzer{}

	for _, a := range items {
		fp := a.Descriptor().Fingerprint()
		order = append(order, fp)
		analyzers[fp] = a
	}

	return order, analyzers
}

func TestPlan_GroupsAggregates(t *testing.T) {
	t.Parallel()

	order, analyzers := planFixture()

	units := plan(order, analyzers, true, nil)

	// size+completeness+mean fuse into one group; uniqueness stays single.
	require.Len(t, units, 2)

	var fingerprints int
	for _, u := range units {
		fingerprints += len(u.fingerprints())
	}

	assert.Equal(t, 4, fingerprints)
}

func TestPlan_OptimizerDisabledRunsIndividually(t *testing.T) {
	t.Parallel()

	order, analyzers := planFixture()

	units := plan(order, analyzers, false, nil)

	assert.Len(t, units, 4)
}

func TestPlan_SmallTableHintDisablesGrouping(t *testing.T) {
	t.Parallel()

	order, analyzers := planFixture()

	small := float64(10)
	units := plan(order, analyzers, true, &small)

	assert.Len(t, units, 4)
}

func TestPlan_ChunksByExpressionBudget(t *testing.T) {
	t.Parallel()

	var order []analyzer.Fingerprint

	analyzers := map[analyzer.Fingerprint]analyzer.Analyzer{}

	// 40 completeness analyzers at 2 expressions each exceed one 64-expr
	// group.
	for i := range 40 {
		a := analyzer.NewCompleteness(columnName(i))
		fp := a.Descriptor().Fingerprint()
		order = append(order, fp)
		analyzers[fp] = a
	}

	units := plan(order, analyzers, true, nil)

	require.Greater(t, len(units), 1)

	var fingerprints int
	for _, u := range units {
		fingerprints += len(u.fingerprints())
	}

	assert.Equal(t, 40, fingerprints)
}

func columnName(i int) string {
	return string(rune('a'+i%26)) + string(rune('0'+i/26))
}
