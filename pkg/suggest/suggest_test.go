package suggest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewater-io/datavet/pkg/analyzer"
	"github.com/tidewater-io/datavet/pkg/profile"
)

func float(v float64) *float64 {
	return &v
}

func TestEngine_CompleteUniqueKeyColumn(t *testing.T) {
	t.Parallel()

	p := &profile.ColumnProfile{
		Column:         "id",
		DataType:       analyzer.TypeInteger,
		RowCount:       1000,
		NullCount:      0,
		Completeness:   1,
		ApproxDistinct: 1000,
		Distinctness:   1,
		Min:            float(1),
		Max:            float(1000),
	}

	suggestions := NewEngine().Suggest(p)
	require.NotEmpty(t, suggestions)

	kinds := map[string]bool{}
	for _, s := range suggestions {
		kinds[s.CheckKind] = true
	}

	assert.True(t, kinds["is_complete"])
	assert.True(t, kinds["is_unique"])
	assert.True(t, kinds["has_data_type"])
	assert.True(t, kinds["has_min"])
	assert.True(t, kinds["has_max"])
}

func TestEngine_MostlyCompleteColumn(t *testing.T) {
	t.Parallel()

	p := &profile.ColumnProfile{
		Column:       "email",
		DataType:     analyzer.TypeString,
		RowCount:     1000,
		NullCount:    50,
		Completeness: 0.95,
	}

	suggestions := NewEngine().Suggest(p)
	require.NotEmpty(t, suggestions)
	assert.Equal(t, "has_completeness", suggestions[0].CheckKind)
}

func TestEngine_CategoricalColumn(t *testing.T) {
	t.Parallel()

	p := &profile.ColumnProfile{
		Column:         "status",
		DataType:       analyzer.TypeString,
		RowCount:       5000,
		Completeness:   1,
		ApproxDistinct: 4,
		Distinctness:   0.0008,
	}

	suggestions := NewEngine().Suggest(p)

	var found bool
	for _, s := range suggestions {
		if s.CheckKind == "is_contained_in" {
			found = true
		}
	}

	assert.True(t, found)
}

func TestEngine_PatternColumn(t *testing.T) {
	t.Parallel()

	p := &profile.ColumnProfile{
		Column:       "email",
		DataType:     analyzer.TypeString,
		RowCount:     1000,
		NullCount:    20,
		Completeness: 0.98,
		PatternMatches: map[string]float64{
			"email": 0.99,
			"url":   0.01,
		},
	}

	suggestions := NewEngine().Suggest(p)
	require.NotEmpty(t, suggestions)

	var found *Suggestion

	for i := range suggestions {
		if suggestions[i].CheckKind == "has_format" {
			found = &suggestions[i]
		}
	}

	require.NotNil(t, found)
	assert.Equal(t, "email", found.Parameters["format"])
	assert.InDelta(t, 0.85, found.Confidence, 1e-9)
}

func TestPatternRule_IgnoresWeakMatches(t *testing.T) {
	t.Parallel()

	p := &profile.ColumnProfile{
		Column:         "notes",
		DataType:       analyzer.TypeString,
		RowCount:       1000,
		PatternMatches: map[string]float64{"email": 0.3},
	}

	assert.Empty(t, PatternRule{}.Evaluate(p))
}

func TestEngine_ConfidenceThresholdFilters(t *testing.T) {
	t.Parallel()

	p := &profile.ColumnProfile{
		Column:       "notes",
		DataType:     analyzer.TypeString,
		RowCount:     1000,
		NullCount:    0,
		Completeness: 1,
	}

	strict := NewEngine().WithThreshold(0.99).Suggest(p)
	assert.Empty(t, strict)

	lenient := NewEngine().WithThreshold(0.5).Suggest(p)
	assert.NotEmpty(t, lenient)
}

func TestEngine_SortedByPriorityThenConfidence(t *testing.T) {
	t.Parallel()

	p := &profile.ColumnProfile{
		Column:         "id",
		DataType:       analyzer.TypeInteger,
		RowCount:       1000,
		Completeness:   1,
		ApproxDistinct: 1000,
		Distinctness:   1,
		Min:            float(1),
		Max:            float(1000),
	}

	suggestions := NewEngine().Suggest(p)
	require.Greater(t, len(suggestions), 1)

	for i := 1; i < len(suggestions); i++ {
		prev, cur := suggestions[i-1], suggestions[i]

		ordered := prev.Priority < cur.Priority ||
			(prev.Priority == cur.Priority && prev.Confidence >= cur.Confidence)
		assert.True(t, ordered, "suggestions out of order at %d", i)
	}
}

func TestEngine_EmptyProfileNoSuggestions(t *testing.T) {
	t.Parallel()

	p := &profile.ColumnProfile{Column: "v"}

	assert.Empty(t, NewEngine().Suggest(p))
}
