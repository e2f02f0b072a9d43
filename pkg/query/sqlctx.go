package query

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/jmoiron/sqlx"

	// SQLite is the bundled executor backend.
	_ "github.com/mattn/go-sqlite3"

	"github.com/tidewater-io/datavet/pkg/verrors"
)

// batchSize bounds how many rows a single returned batch holds.
const batchSize = 1024

// SQLContext adapts a sqlx database to the engine's Context capability.
type SQLContext struct {
	db *sqlx.DB
}

// NewSQLContext wraps an existing sqlx database.
func NewSQLContext(db *sqlx.DB) *SQLContext {
	return &SQLContext{db: db}
}

// OpenSQLite opens a SQLite database file as a query context.
func OpenSQLite(path string) (*SQLContext, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	return &SQLContext{db: db}, nil
}

// memorySeq distinguishes in-memory databases opened within one process.
var memorySeq atomic.Uint64

// OpenMemory opens a private in-memory SQLite database, used by tests and
// fixture loading.
func OpenMemory() (*SQLContext, error) {
	name := fmt.Sprintf("file:datavet_mem_%d?mode=memory&cache=shared", memorySeq.Add(1))

	db, err := sqlx.Open("sqlite3", name)
	if err != nil {
		return nil, fmt.Errorf("open in-memory sqlite: %w", err)
	}

	// A shared-cache memory database disappears when its last connection
	// closes; pin one open.
	db.SetMaxIdleConns(2)

	return &SQLContext{db: db}, nil
}

// Close releases the underlying database.
func (s *SQLContext) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for fixture setup.
func (s *SQLContext) DB() *sqlx.DB {
	return s.db
}

// RunSQL implements Context by executing the statement and converting the
// row-oriented result into columnar batches.
func (s *SQLContext) RunSQL(ctx context.Context, sql string, args ...any) ([]Batch, error) {
	rows, err := s.db.QueryxContext(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", verrors.ErrQueryExecution, err)
	}
	defer rows.Close()

	colNames, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", verrors.ErrQueryExecution, err)
	}

	fields := make([]Field, len(colNames))
	for i, name := range colNames {
		fields[i] = Field{Name: name}
	}

	var batches []Batch

	current := newBatch(fields)

	for rows.Next() {
		row, scanErr := rows.SliceScan()
		if scanErr != nil {
			return nil, fmt.Errorf("%w: %w", verrors.ErrQueryExecution, scanErr)
		}

		for c := range fields {
			current.Columns[c] = append(current.Columns[c], row[c])
		}

		if current.NumRows() >= batchSize {
			batches = append(batches, current)
			current = newBatch(fields)
		}
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", verrors.ErrQueryExecution, err)
	}

	if current.NumRows() > 0 || len(batches) == 0 {
		batches = append(batches, current)
	}

	return batches, nil
}

// Schema implements Context via SQLite's table_info pragma.
func (s *SQLContext) Schema(ctx context.Context, table string) ([]Field, error) {
	rows, err := s.db.QueryxContext(ctx, `SELECT name, type FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", verrors.ErrQueryExecution, err)
	}
	defer rows.Close()

	var fields []Field

	for rows.Next() {
		var name, typ string

		scanErr := rows.Scan(&name, &typ)
		if scanErr != nil {
			return nil, fmt.Errorf("%w: %w", verrors.ErrQueryExecution, scanErr)
		}

		fields = append(fields, Field{Name: name, Type: typ})
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", verrors.ErrQueryExecution, err)
	}

	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: table %q not found", verrors.ErrSchemaMismatch, table)
	}

	return fields, nil
}

// RegisterRows creates the table and loads the given rows. Used by tests and
// CLI fixture loading; production tables are expected to already exist.
func (s *SQLContext) RegisterRows(ctx context.Context, table string, fields []Field, rows [][]any) error {
	cols := make([]string, len(fields))
	placeholders := make([]string, len(fields))

	for i, f := range fields {
		typ := f.Type
		if typ == "" {
			typ = "TEXT"
		}

		cols[i] = QuoteIdent(f.Name) + " " + typ
		placeholders[i] = "?"
	}

	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", QuoteIdent(table), strings.Join(cols, ", "))

	_, err := s.db.ExecContext(ctx, create)
	if err != nil {
		return fmt.Errorf("%w: %w", verrors.ErrQueryExecution, err)
	}

	insert := fmt.Sprintf("INSERT INTO %s VALUES (%s)", QuoteIdent(table), strings.Join(placeholders, ", "))

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", verrors.ErrQueryExecution, err)
	}

	for _, row := range rows {
		_, execErr := tx.ExecContext(ctx, insert, row...)
		if execErr != nil {
			_ = tx.Rollback()

			return fmt.Errorf("%w: %w", verrors.ErrQueryExecution, execErr)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("%w: %w", verrors.ErrQueryExecution, err)
	}

	return nil
}

// newBatch allocates an empty batch for the given fields.
func newBatch(fields []Field) Batch {
	return Batch{
		Fields:  fields,
		Columns: make([][]any, len(fields)),
	}
}
