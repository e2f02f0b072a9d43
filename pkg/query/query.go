// Package query defines the columnar query capability the engine consumes.
//
// The engine never owns storage: it issues aggregate SQL through a Context
// and receives columnar batches back. Concrete adapters (SQLite here, others
// elsewhere) own connection handling, retries, and registration.
package query

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidewater-io/datavet/pkg/verrors"
)

// Field describes one column of a batch or table schema.
type Field struct {
	Name string
	Type string
}

// Batch is a columnar chunk of query results. Columns[i] parallels Fields[i]
// and all columns have equal length.
type Batch struct {
	Fields  []Field
	Columns [][]any
}

// NumRows returns the row count of the batch.
func (b Batch) NumRows() int {
	if len(b.Columns) == 0 {
		return 0
	}

	return len(b.Columns[0])
}

// Column returns the values of the named column.
func (b Batch) Column(name string) ([]any, bool) {
	for i, f := range b.Fields {
		if f.Name == name {
			return b.Columns[i], true
		}
	}

	return nil, false
}

// Context is the capability the engine requires from a query executor:
// execute SQL returning columnar batches, and resolve a table to its schema.
// Implementations must be safe for concurrent use.
type Context interface {
	// RunSQL executes the statement and returns its full result as batches.
	RunSQL(ctx context.Context, sql string, args ...any) ([]Batch, error)

	// Schema resolves a table name to its ordered field list.
	Schema(ctx context.Context, table string) ([]Field, error)
}

// QuoteIdent wraps an already-validated identifier in the executor's quoted
// form so it cannot collide with keywords.
func QuoteIdent(name string) string {
	return `"` + name + `"`
}

// FirstRow returns the first row across batches as a value slice, or false
// when the result set is empty.
func FirstRow(batches []Batch) ([]any, bool) {
	for _, b := range batches {
		if b.NumRows() == 0 {
			continue
		}

		row := make([]any, len(b.Columns))
		for i, col := range b.Columns {
			row[i] = col[0]
		}

		return row, true
	}

	return nil, false
}

// EachRow invokes fn for every row across batches, stopping on error.
func EachRow(batches []Batch, fn func(row []any) error) error {
	for _, b := range batches {
		rows := b.NumRows()
		for r := range rows {
			row := make([]any, len(b.Columns))
			for c, col := range b.Columns {
				row[c] = col[r]
			}

			err := fn(row)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// AsFloat coerces a driver value to float64. NaN is reported as absent, the
// same as SQL NULL: NaN in data behaves like a missing value.
func AsFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		if math.IsNaN(t) {
			return 0, false
		}

		return t, true
	case float32:
		return AsFloat(float64(t))
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case []byte:
		parsed, err := strconv.ParseFloat(string(t), 64)
		if err != nil {
			return 0, false
		}

		return AsFloat(parsed)
	case string:
		parsed, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}

		return AsFloat(parsed)
	default:
		return 0, false
	}
}

// AsInt coerces a driver value to int64.
func AsInt(v any) (int64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		if math.IsNaN(t) {
			return 0, false
		}

		return int64(t), true
	case []byte:
		parsed, err := strconv.ParseInt(strings.TrimSpace(string(t)), 10, 64)
		if err != nil {
			return 0, false
		}

		return parsed, true
	default:
		return 0, false
	}
}

// AsString coerces a driver value to its string form. NULL is reported as
// absent.
func AsString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case []byte:
		return string(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		if math.IsNaN(t) {
			return "", false
		}

		return strconv.FormatFloat(t, 'g', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return fmt.Sprintf("%v", t), true
	}
}

// ScalarFloat extracts the single float value of a one-row, one-column
// aggregate result. A NULL aggregate (for example SUM over zero rows) is
// reported as absent without error.
func ScalarFloat(batches []Batch) (float64, bool, error) {
	row, ok := FirstRow(batches)
	if !ok {
		return 0, false, nil
	}

	if len(row) != 1 {
		return 0, false, fmt.Errorf("%w: expected one column, got %d", verrors.ErrInvalidData, len(row))
	}

	f, present := AsFloat(row[0])

	return f, present, nil
}
