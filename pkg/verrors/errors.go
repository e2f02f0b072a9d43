// Package verrors defines the error taxonomy shared by the validation engine.
//
// All engine packages signal failure through these sentinel errors, wrapped
// with fmt.Errorf("...: %w", err) so callers can classify outcomes with
// errors.Is without string matching.
package verrors

import (
	"context"
	"errors"
)

// Sentinel errors for analyzer and runner failures.
var (
	// ErrSchemaMismatch is returned when a referenced column is absent from
	// the bound table's schema.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrInvalidTableName is returned when a table identifier fails validation.
	ErrInvalidTableName = errors.New("invalid table name")

	// ErrQueryExecution is returned when the query context fails to execute a query.
	ErrQueryExecution = errors.New("query execution failed")

	// ErrStateComputation is returned when an analyzer cannot compute its state.
	ErrStateComputation = errors.New("state computation failed")

	// ErrStateMerge is returned when analyzer states cannot be merged.
	ErrStateMerge = errors.New("state merge failed")

	// ErrStateDeserialize is returned when a persisted state cannot be decoded.
	ErrStateDeserialize = errors.New("state deserialize failed")

	// ErrUnknownStateKind is returned when a persisted state carries an
	// unrecognized kind tag. Unknown kinds are rejected, never zeroed.
	ErrUnknownStateKind = errors.New("unknown state kind")

	// ErrTimeout is returned when an analyzer exceeds its deadline.
	ErrTimeout = errors.New("analyzer timed out")

	// ErrCancelled is returned when a suite run is cancelled.
	ErrCancelled = errors.New("run cancelled")

	// ErrInvalidConfiguration is returned for rejected run options.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidData is returned when query results have an unexpected shape or type.
	ErrInvalidData = errors.New("invalid data")

	// ErrNoData is returned by state-to-metric conversion when the state is
	// empty. It is a normal outcome, not a failure, above the analyzer
	// boundary: the verdict engine translates it to Skipped or Failure
	// depending on severity.
	ErrNoData = errors.New("no data available")

	// ErrSerialization is returned when state or metric encoding fails.
	ErrSerialization = errors.New("serialization failed")

	// ErrInternal is returned for invariant violations inside the engine.
	ErrInternal = errors.New("internal error")
)

// FromContext maps a context error to the engine taxonomy. Deadline expiry
// becomes ErrTimeout, explicit cancellation becomes ErrCancelled. Any other
// error is returned unchanged.
func FromContext(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, context.Canceled):
		return ErrCancelled
	default:
		return err
	}
}
