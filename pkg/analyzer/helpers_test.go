package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tidewater-io/datavet/pkg/query"
	"github.com/tidewater-io/datavet/pkg/validate"
)

// newTestTable loads rows into a fresh in-memory executor and returns a
// context bound to the table.
func newTestTable(t *testing.T, table string, fields []query.Field, rows [][]any) (context.Context, *query.SQLContext) {
	t.Helper()

	qc, err := query.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = qc.Close() })

	require.NoError(t, qc.RegisterRows(t.Context(), table, fields, rows))

	vc, err := validate.NewContext(table)
	require.NoError(t, err)

	return validate.Into(t.Context(), vc), qc
}
