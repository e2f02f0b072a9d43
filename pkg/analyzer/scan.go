package analyzer

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/tidewater-io/datavet/pkg/query"
	"github.com/tidewater-io/datavet/pkg/validate"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

// Aggregate is implemented by analyzers whose state is expressible as a row
// of SQL aggregate expressions over a shared scan. The optimizer groups such
// analyzers into one physical query; correctness is independent of grouping.
type Aggregate interface {
	Analyzer

	// AggregateExprs returns the SQL aggregate expressions, with quoted
	// identifiers, this analyzer needs from a SELECT over the bound table.
	AggregateExprs() []string

	// StateFromRow builds the state from the values of this analyzer's
	// expressions. A nil row means the scan returned nothing.
	StateFromRow(row []any) (State, error)
}

// ComputeAggregate runs a single-analyzer aggregate query against the bound
// table. Grouped execution of multiple aggregates lives in the runner.
func ComputeAggregate(ctx context.Context, qc query.Context, a Aggregate) (State, error) {
	vc, err := validate.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	sqlText, args, err := sq.Select(a.AggregateExprs()...).From(vc.QuotedTable()).ToSql()
	if err != nil {
		return nil, wrapInternal(err)
	}

	batches, err := qc.RunSQL(ctx, sqlText, args...)
	if err != nil {
		return nil, mapQueryErr(ctx, err)
	}

	row, _ := query.FirstRow(batches)

	return a.StateFromRow(row)
}

// scanColumns streams every row of the given columns (quoted identifiers)
// through fn.
func scanColumns(ctx context.Context, qc query.Context, columns []string, fn func(row []any) error) error {
	vc, err := validate.FromContext(ctx)
	if err != nil {
		return err
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = query.QuoteIdent(c)
	}

	sqlText, args, err := sq.Select(quoted...).From(vc.QuotedTable()).ToSql()
	if err != nil {
		return wrapInternal(err)
	}

	batches, err := qc.RunSQL(ctx, sqlText, args...)
	if err != nil {
		return mapQueryErr(ctx, err)
	}

	return query.EachRow(batches, fn)
}

// scanGrouped streams (group values..., count) rows of a GROUP BY over the
// given columns through fn.
func scanGrouped(ctx context.Context, qc query.Context, columns []string, fn func(row []any, count int64) error) error {
	vc, err := validate.FromContext(ctx)
	if err != nil {
		return err
	}

	quoted := make([]string, 0, len(columns)+1)
	for _, c := range columns {
		quoted = append(quoted, query.QuoteIdent(c))
	}

	selectExprs := append(append([]string{}, quoted...), "COUNT(*)")

	sqlText, args, err := sq.Select(selectExprs...).
		From(vc.QuotedTable()).
		GroupBy(quoted...).
		ToSql()
	if err != nil {
		return wrapInternal(err)
	}

	batches, err := qc.RunSQL(ctx, sqlText, args...)
	if err != nil {
		return mapQueryErr(ctx, err)
	}

	return query.EachRow(batches, func(row []any) error {
		count, ok := query.AsInt(row[len(row)-1])
		if !ok {
			return wrapInvalidData("group count is not an integer")
		}

		return fn(row[:len(row)-1], count)
	})
}

// mapQueryErr prefers the context verdict (timeout, cancellation) over the
// underlying driver error.
func mapQueryErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return verrors.FromContext(ctxErr)
	}

	return err
}

// wrapInternal tags SQL construction failures as engine bugs.
func wrapInternal(err error) error {
	return fmt.Errorf("%w: %w", verrors.ErrInternal, err)
}

// wrapInvalidData tags malformed result shapes.
func wrapInvalidData(msg string) error {
	return fmt.Errorf("%w: %s", verrors.ErrInvalidData, msg)
}
