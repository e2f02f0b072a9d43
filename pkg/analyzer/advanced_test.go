package analyzer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewater-io/datavet/pkg/query"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

func numericTable(t *testing.T, values []float64) ([][]any, []query.Field) {
	t.Helper()

	rows := make([][]any, len(values))
	for i, v := range values {
		rows[i] = []any{v}
	}

	return rows, []query.Field{{Name: "x", Type: "REAL"}}
}

func TestStdDev_MatchesPopulationFormula(t *testing.T) {
	t.Parallel()

	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	rows, fields := numericTable(t, values)
	ctx, qc := newTestTable(t, "nums", fields, rows)

	a := NewStdDev("x")

	state, err := a.ComputeState(ctx, qc)
	require.NoError(t, err)

	value, err := a.Metric(state)
	require.NoError(t, err)

	stddev, ok := value.AsDouble()
	require.True(t, ok)
	assert.InDelta(t, 2.0, stddev, 1e-9)
}

func TestStdDev_ParallelMergeMatchesWhole(t *testing.T) {
	t.Parallel()

	left := []float64{1, 2, 3, 4, 5}
	right := []float64{10, 20, 30}
	whole := append(append([]float64{}, left...), right...)

	a := NewStdDev("x")

	rowsL, fields := numericTable(t, left)
	rowsR, _ := numericTable(t, right)
	rowsW, _ := numericTable(t, whole)

	ctxL, qcL := newTestTable(t, "nums", fields, rowsL)
	ctxR, qcR := newTestTable(t, "nums", fields, rowsR)
	ctxW, qcW := newTestTable(t, "nums", fields, rowsW)

	stateL, err := a.ComputeState(ctxL, qcL)
	require.NoError(t, err)
	stateR, err := a.ComputeState(ctxR, qcR)
	require.NoError(t, err)
	stateW, err := a.ComputeState(ctxW, qcW)
	require.NoError(t, err)

	merged, err := a.Merge([]State{stateL, stateR})
	require.NoError(t, err)

	mergedValue, err := a.Metric(merged)
	require.NoError(t, err)
	wholeValue, err := a.Metric(stateW)
	require.NoError(t, err)

	mergedStdDev, _ := mergedValue.AsDouble()
	wholeStdDev, _ := wholeValue.AsDouble()
	assert.InDelta(t, wholeStdDev, mergedStdDev, 1e-9)
}

func TestEntropy_UniformDistribution(t *testing.T) {
	t.Parallel()

	ctx, qc := newTestTable(t, "t",
		[]query.Field{{Name: "v", Type: "TEXT"}},
		[][]any{{"a"}, {"b"}, {"a"}, {"b"}})

	a := NewEntropy("v")

	state, err := a.ComputeState(ctx, qc)
	require.NoError(t, err)

	value, err := a.Metric(state)
	require.NoError(t, err)

	entropy, ok := value.AsDouble()
	require.True(t, ok)
	assert.InDelta(t, math.Log(2), entropy, 1e-9)
}

func TestHistogram_BucketsAndMerge(t *testing.T) {
	t.Parallel()

	a, err := NewHistogram("x", 0, 10, 2)
	require.NoError(t, err)

	rows, fields := numericTable(t, []float64{-1, 0, 4.9, 5, 9.9, 10, 42})
	ctx, qc := newTestTable(t, "nums", fields, rows)

	state, err := a.ComputeState(ctx, qc)
	require.NoError(t, err)

	typed, ok := state.(*HistogramState)
	require.True(t, ok)
	// underflow, [0,5), [5,10), overflow
	assert.Equal(t, []int64{1, 2, 2, 2}, typed.Bins)

	merged, err := a.Merge([]State{state, state})
	require.NoError(t, err)

	mergedTyped, ok := merged.(*HistogramState)
	require.True(t, ok)
	assert.Equal(t, []int64{2, 4, 4, 4}, mergedTyped.Bins)

	value, err := a.Metric(state)
	require.NoError(t, err)

	buckets, ok := value.AsDistribution()
	require.True(t, ok)
	require.Len(t, buckets, 4)
}

func TestHistogram_RejectsBadConfig(t *testing.T) {
	t.Parallel()

	_, err := NewHistogram("x", 0, 10, 0)
	require.ErrorIs(t, err, verrors.ErrInvalidConfiguration)

	_, err = NewHistogram("x", 10, 10, 4)
	require.ErrorIs(t, err, verrors.ErrInvalidConfiguration)
}

func TestQuantile_Median(t *testing.T) {
	t.Parallel()

	values := make([]float64, 1000)
	for i := range values {
		values[i] = float64(i)
	}

	rows, fields := numericTable(t, values)
	ctx, qc := newTestTable(t, "nums", fields, rows)

	a, err := NewQuantile("x", 0.5)
	require.NoError(t, err)

	state, err := a.ComputeState(ctx, qc)
	require.NoError(t, err)

	value, err := a.Metric(state)
	require.NoError(t, err)

	median, ok := value.AsDouble()
	require.True(t, ok)
	assert.InDelta(t, 500, median, 50)
}

func TestQuantile_RejectsOutOfRange(t *testing.T) {
	t.Parallel()

	_, err := NewQuantile("x", 1.5)
	require.ErrorIs(t, err, verrors.ErrInvalidConfiguration)
}

func TestCorrelation_PerfectlyLinear(t *testing.T) {
	t.Parallel()

	fields := []query.Field{{Name: "x", Type: "REAL"}, {Name: "y", Type: "REAL"}}
	rows := [][]any{{1.0, 2.0}, {2.0, 4.0}, {3.0, 6.0}, {4.0, 8.0}}

	ctx, qc := newTestTable(t, "pairs", fields, rows)

	a := NewCorrelation("x", "y")

	state, err := a.ComputeState(ctx, qc)
	require.NoError(t, err)

	value, err := a.Metric(state)
	require.NoError(t, err)

	rho, ok := value.AsDouble()
	require.True(t, ok)
	assert.InDelta(t, 1.0, rho, 1e-9)
}

func TestCorrelation_SkipsNullPairs(t *testing.T) {
	t.Parallel()

	fields := []query.Field{{Name: "x", Type: "REAL"}, {Name: "y", Type: "REAL"}}
	rows := [][]any{{1.0, 2.0}, {nil, 100.0}, {2.0, nil}, {3.0, 6.0}}

	ctx, qc := newTestTable(t, "pairs", fields, rows)

	a := NewCorrelation("x", "y")

	state, err := a.ComputeState(ctx, qc)
	require.NoError(t, err)

	typed, ok := state.(*CorrelationState)
	require.True(t, ok)
	assert.EqualValues(t, 2, typed.N)
}

func TestCorrelation_ZeroVarianceIsNoData(t *testing.T) {
	t.Parallel()

	fields := []query.Field{{Name: "x", Type: "REAL"}, {Name: "y", Type: "REAL"}}
	rows := [][]any{{1.0, 2.0}, {1.0, 4.0}, {1.0, 6.0}}

	ctx, qc := newTestTable(t, "pairs", fields, rows)

	a := NewCorrelation("x", "y")

	state, err := a.ComputeState(ctx, qc)
	require.NoError(t, err)

	_, err = a.Metric(state)
	require.ErrorIs(t, err, verrors.ErrNoData)
}

func TestMutualInformation_IndependentIsNearZero(t *testing.T) {
	t.Parallel()

	fields := []query.Field{{Name: "a", Type: "TEXT"}, {Name: "b", Type: "TEXT"}}
	rows := [][]any{
		{"x", "p"}, {"x", "q"}, {"y", "p"}, {"y", "q"},
	}

	ctx, qc := newTestTable(t, "pairs", fields, rows)

	a := NewMutualInformation("a", "b")

	state, err := a.ComputeState(ctx, qc)
	require.NoError(t, err)

	value, err := a.Metric(state)
	require.NoError(t, err)

	mi, ok := value.AsDouble()
	require.True(t, ok)
	assert.InDelta(t, 0, mi, 1e-9)
}

func TestMutualInformation_DeterministicPair(t *testing.T) {
	t.Parallel()

	fields := []query.Field{{Name: "a", Type: "TEXT"}, {Name: "b", Type: "TEXT"}}
	rows := [][]any{
		{"x", "p"}, {"x", "p"}, {"y", "q"}, {"y", "q"},
	}

	ctx, qc := newTestTable(t, "pairs", fields, rows)

	a := NewMutualInformation("a", "b")

	state, err := a.ComputeState(ctx, qc)
	require.NoError(t, err)

	value, err := a.Metric(state)
	require.NoError(t, err)

	// Fully dependent binary pair: MI equals the marginal entropy ln(2).
	mi, ok := value.AsDouble()
	require.True(t, ok)
	assert.InDelta(t, math.Log(2), mi, 1e-9)
}

func TestCompliance_MatchRatio(t *testing.T) {
	t.Parallel()

	ctx, qc := newTestTable(t, "users",
		[]query.Field{{Name: "email", Type: "TEXT"}},
		[][]any{{"a@x.io"}, {"bad"}, {nil}, {"c@y.io"}})

	a, err := NewCompliance("email", `^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	require.NoError(t, err)

	state, err := a.ComputeState(ctx, qc)
	require.NoError(t, err)

	value, err := a.Metric(state)
	require.NoError(t, err)

	ratio, ok := value.AsDouble()
	require.True(t, ok)
	assert.InDelta(t, 2.0/3.0, ratio, 1e-9)
}

func TestCompliance_RejectsBadPattern(t *testing.T) {
	t.Parallel()

	_, err := NewCompliance("email", "([")
	require.ErrorIs(t, err, verrors.ErrInvalidConfiguration)
}

func TestContainment_Ratio(t *testing.T) {
	t.Parallel()

	ctx, qc := newTestTable(t, "orders",
		[]query.Field{{Name: "status", Type: "TEXT"}},
		[][]any{{"open"}, {"closed"}, {"weird"}, {nil}})

	a, err := NewContainment("status", []string{"open", "closed"})
	require.NoError(t, err)

	state, err := a.ComputeState(ctx, qc)
	require.NoError(t, err)

	value, err := a.Metric(state)
	require.NoError(t, err)

	ratio, ok := value.AsDouble()
	require.True(t, ok)
	assert.InDelta(t, 2.0/3.0, ratio, 1e-9)
}

func TestCustomRatio_Predicate(t *testing.T) {
	t.Parallel()

	ctx, qc := newTestTable(t, "people",
		[]query.Field{{Name: "age", Type: "INTEGER"}},
		[][]any{{10}, {20}, {30}, {40}})

	a, err := NewCustomRatio("adults", `"age" >= 18`)
	require.NoError(t, err)

	state, err := a.ComputeState(ctx, qc)
	require.NoError(t, err)

	value, err := a.Metric(state)
	require.NoError(t, err)

	ratio, ok := value.AsDouble()
	require.True(t, ok)
	assert.InDelta(t, 0.75, ratio, 1e-9)
}

func TestDataType_InferInteger(t *testing.T) {
	t.Parallel()

	ctx, qc := newTestTable(t, "t",
		[]query.Field{{Name: "v", Type: "TEXT"}},
		[][]any{{"1"}, {"2"}, {"-3"}, {nil}})

	a := NewDataType("v")

	state, err := a.ComputeState(ctx, qc)
	require.NoError(t, err)

	typed, ok := state.(*DataTypeState)
	require.True(t, ok)
	assert.Equal(t, TypeInteger, typed.InferredType())

	value, err := a.Metric(state)
	require.NoError(t, err)

	buckets, ok := value.AsDistribution()
	require.True(t, ok)
	require.Len(t, buckets, 6)
}

func TestDataType_MixedNumericReadsAsFloat(t *testing.T) {
	t.Parallel()

	ctx, qc := newTestTable(t, "t",
		[]query.Field{{Name: "v", Type: "TEXT"}},
		[][]any{{"1"}, {"2.5"}, {"3"}})

	a := NewDataType("v")

	state, err := a.ComputeState(ctx, qc)
	require.NoError(t, err)

	typed, ok := state.(*DataTypeState)
	require.True(t, ok)
	assert.Equal(t, TypeFloat, typed.InferredType())
}

func TestDistinctness_ApproximateRatio(t *testing.T) {
	t.Parallel()

	rows := make([][]any, 0, 1000)
	for i := range 1000 {
		rows = append(rows, []any{i % 100})
	}

	ctx, qc := newTestTable(t, "t", []query.Field{{Name: "v", Type: "INTEGER"}}, rows)

	a := NewDistinctness("v")

	state, err := a.ComputeState(ctx, qc)
	require.NoError(t, err)

	value, err := a.Metric(state)
	require.NoError(t, err)

	ratio, ok := value.AsDouble()
	require.True(t, ok)
	assert.InDelta(t, 0.1, ratio, 0.02)
}

func TestApproxDistinct_CountAndMerge(t *testing.T) {
	t.Parallel()

	fields := []query.Field{{Name: "v", Type: "INTEGER"}}

	rowsA := make([][]any, 0, 500)
	rowsB := make([][]any, 0, 500)

	for i := range 500 {
		rowsA = append(rowsA, []any{i})
		rowsB = append(rowsB, []any{i + 250})
	}

	ctxA, qcA := newTestTable(t, "t", fields, rowsA)
	ctxB, qcB := newTestTable(t, "t", fields, rowsB)

	a := NewApproxDistinct("v")

	stateA, err := a.ComputeState(ctxA, qcA)
	require.NoError(t, err)
	stateB, err := a.ComputeState(ctxB, qcB)
	require.NoError(t, err)

	merged, err := a.Merge([]State{stateA, stateB})
	require.NoError(t, err)

	value, err := a.Metric(merged)
	require.NoError(t, err)

	count, ok := value.AsLong()
	require.True(t, ok)
	assert.InDelta(t, 750, float64(count), 750*0.05)
}
