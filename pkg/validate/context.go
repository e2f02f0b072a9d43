// Package validate provides the task-scoped validation context: the logical
// table name and run id a suite run is bound to.
//
// The context travels through context.Context so that two overlapping runs
// against different tables cannot interfere. There is no process-wide
// current-table state; analyzers read the binding at query-construction time.
package validate

import (
	"context"
	"fmt"
	"regexp"

	"github.com/google/uuid"

	"github.com/tidewater-io/datavet/pkg/query"
	"github.com/tidewater-io/datavet/pkg/verrors"
)

// tableNamePattern accepts unquoted SQL identifiers only: letters, digits and
// underscore, not starting with a digit. Everything else — embedded SQL,
// whitespace, quotes, control characters — is rejected at construction.
var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Context carries the per-run binding analyzers read when composing queries.
type Context struct {
	tableName string
	runID     string
}

// NewContext validates the table identifier and binds a fresh run id.
func NewContext(tableName string) (*Context, error) {
	if !tableNamePattern.MatchString(tableName) {
		return nil, fmt.Errorf("%w: %q", verrors.ErrInvalidTableName, tableName)
	}

	return &Context{
		tableName: tableName,
		runID:     uuid.NewString(),
	}, nil
}

// NewContextWithRunID validates the table identifier and binds the given run
// id, for callers correlating runs with external systems.
func NewContextWithRunID(tableName, runID string) (*Context, error) {
	vc, err := NewContext(tableName)
	if err != nil {
		return nil, err
	}

	vc.runID = runID

	return vc, nil
}

// TableName returns the validated logical table name.
func (c *Context) TableName() string {
	return c.tableName
}

// QuotedTable returns the table name in the executor's quoted-identifier
// form, safe to splice into SQL text.
func (c *Context) QuotedTable() string {
	return query.QuoteIdent(c.tableName)
}

// RunID returns the run identifier bound at construction.
func (c *Context) RunID() string {
	return c.runID
}

// ctxKey is the private context.Context key for the validation context.
type ctxKey struct{}

// Into binds the validation context into ctx; spawned analyzer tasks inherit
// it.
func Into(ctx context.Context, vc *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, vc)
}

// FromContext returns the bound validation context. Analyzers treat an
// unbound context as an engine invariant violation.
func FromContext(ctx context.Context) (*Context, error) {
	vc, ok := ctx.Value(ctxKey{}).(*Context)
	if !ok || vc == nil {
		return nil, fmt.Errorf("%w: no validation context bound", verrors.ErrInternal)
	}

	return vc, nil
}
