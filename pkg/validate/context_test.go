package validate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewater-io/datavet/pkg/verrors"
)

func TestNewContext_AcceptsIdentifiers(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"orders", "Orders_2024", "_staging", "t1"} {
		vc, err := NewContext(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, vc.TableName())
		assert.NotEmpty(t, vc.RunID())
	}
}

func TestNewContext_RejectsUnsafeNames(t *testing.T) {
	t.Parallel()

	unsafe := []string{
		"",
		"1table",
		"orders; DROP TABLE users",
		"orders--",
		"orders/*",
		"orders\x00",
		"orders\n",
		"orders\r",
		`orders"`,
		"orders'",
		"two words",
		"emoji🙂",
	}

	for _, name := range unsafe {
		_, err := NewContext(name)
		require.ErrorIs(t, err, verrors.ErrInvalidTableName, "%q", name)
	}
}

func TestContext_QuotedTable(t *testing.T) {
	t.Parallel()

	vc, err := NewContext("orders")
	require.NoError(t, err)

	assert.Equal(t, `"orders"`, vc.QuotedTable())
}

func TestContext_RoundTripThroughContext(t *testing.T) {
	t.Parallel()

	vc, err := NewContextWithRunID("orders", "run-7")
	require.NoError(t, err)

	ctx := Into(context.Background(), vc)

	got, err := FromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "orders", got.TableName())
	assert.Equal(t, "run-7", got.RunID())
}

func TestFromContext_Unbound(t *testing.T) {
	t.Parallel()

	_, err := FromContext(context.Background())
	require.ErrorIs(t, err, verrors.ErrInternal)
}

func TestContext_IsolationAcrossScopes(t *testing.T) {
	t.Parallel()

	a, err := NewContext("table_a")
	require.NoError(t, err)
	b, err := NewContext("table_b")
	require.NoError(t, err)

	ctxA := Into(context.Background(), a)
	ctxB := Into(context.Background(), b)

	gotA, err := FromContext(ctxA)
	require.NoError(t, err)
	gotB, err := FromContext(ctxB)
	require.NoError(t, err)

	assert.Equal(t, "table_a", gotA.TableName())
	assert.Equal(t, "table_b", gotB.TableName())
}
