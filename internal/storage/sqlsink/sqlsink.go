// Package sqlsink implements storage.Sink over database/sql for dialects that
// load through batched multi-row INSERT statements (sqlite, mysql, mssql).
//
// Every output column is created as nullable text. Table attributes are kept
// in AttributesTable as (table_name, name, value) rows.
//
// Tables with an empty header (objects that never had a field and carry no
// parent link) are not created and their rows are counted but not written,
// since none of these databases accept a zero-column table.
package sqlsink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"jsonflat/internal/storage"
)

// AttributesTable stores table attributes.
const AttributesTable = "jsonflat_table_attributes"

// DefaultBatchSize is the number of buffered rows per table before a flush.
const DefaultBatchSize = 500

// Dialect captures the SQL differences between backends.
type Dialect interface {
	// Quote returns a quoted identifier.
	Quote(ident string) string
	// Placeholder returns the n-th (1-based) bind placeholder.
	Placeholder(n int) string
	// CreateTableSQL returns an idempotent CREATE TABLE for text columns.
	CreateTableSQL(table string, columns []string) string
	// MaxParams is the bind-parameter limit per statement.
	MaxParams() int
}

// dbConn is the subset of *sql.DB the sink uses.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Close() error
}

// Sink writes tables through a Dialect.
type Sink struct {
	db        dbConn
	d         Dialect
	batchSize int

	mu         sync.Mutex
	tables     []*Table
	attrsReady bool
}

// New wraps an open database handle. The sink owns db and closes it in Close.
func New(db *sql.DB, d Dialect, batchSize int) *Sink {
	return newSink(db, d, batchSize)
}

func newSink(db dbConn, d Dialect, batchSize int) *Sink {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Sink{db: db, d: d, batchSize: batchSize}
}

// CreateTable creates the table if missing and records its attributes.
func (s *Sink) CreateTable(ctx context.Context, spec storage.TableSpec) (storage.Table, error) {
	t := &Table{BaseTable: storage.NewBaseTable(spec), sink: s}
	if len(spec.Columns) > 0 {
		if _, err := s.db.ExecContext(ctx, s.d.CreateTableSQL(spec.Name, spec.Columns)); err != nil {
			return nil, fmt.Errorf("create table %s: %w", spec.Name, err)
		}
	}
	if err := s.writeAttributes(ctx, spec); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.tables = append(s.tables, t)
	s.mu.Unlock()
	return t, nil
}

func (s *Sink) writeAttributes(ctx context.Context, spec storage.TableSpec) error {
	if len(spec.Attributes) == 0 {
		return nil
	}
	if !s.attrsReady {
		q := s.d.CreateTableSQL(AttributesTable, []string{"table_name", "name", "value"})
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table %s: %w", AttributesTable, err)
		}
		s.attrsReady = true
	}

	del := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		s.d.Quote(AttributesTable), s.d.Quote("table_name"), s.d.Placeholder(1))
	if _, err := s.db.ExecContext(ctx, del, spec.Name); err != nil {
		return fmt.Errorf("reset attributes %s: %w", spec.Name, err)
	}

	rows := make([][]any, 0, len(spec.Attributes))
	for _, k := range sortedKeys(spec.Attributes) {
		rows = append(rows, []any{spec.Name, k, spec.Attributes[k]})
	}
	q, args := BuildInsertSQL(s.d, AttributesTable, []string{"table_name", "name", "value"}, rows)
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("write attributes %s: %w", spec.Name, err)
	}
	return nil
}

// Close flushes every table and closes the database handle.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	tables := s.tables
	s.tables = nil
	s.mu.Unlock()

	var errs []error
	for _, t := range tables {
		errs = append(errs, t.flush(ctx))
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}

// Table buffers rows and flushes them in chunks.
type Table struct {
	storage.BaseTable

	sink    *Sink
	pending [][]any
	written int64
}

// Written returns the number of rows flushed so far.
func (t *Table) Written() int64 { return t.written }

// AppendRow buffers row and flushes once the batch is full.
func (t *Table) AppendRow(ctx context.Context, row storage.Row) error {
	if len(t.Columns) == 0 {
		return nil
	}
	t.pending = append(t.pending, storage.Values(t.Columns, row))
	if len(t.pending) >= t.sink.batchSize {
		return t.flush(ctx)
	}
	return nil
}

func (t *Table) flush(ctx context.Context) error {
	if len(t.pending) == 0 {
		return nil
	}
	rows := t.pending
	t.pending = nil

	for _, chunk := range ChunkRows(rows, len(t.Columns), t.sink.d.MaxParams()) {
		q, args := BuildInsertSQL(t.sink.d, t.TableName, t.Columns, chunk)
		if _, err := t.sink.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert into %s (%d rows): %w", t.TableName, len(chunk), err)
		}
		t.written += int64(len(chunk))
	}
	return nil
}

// BuildInsertSQL builds one multi-row INSERT and its bind args.
//
// Constraints:
//   - columns must be non-empty; every row must have len(columns) values.
func BuildInsertSQL(d Dialect, table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.Quote(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Quote(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.Placeholder(p))
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	return b.String(), args
}

// ChunkRows splits rows so no chunk binds more than maxParams values.
func ChunkRows(rows [][]any, width, maxParams int) [][][]any {
	if width <= 0 || len(rows) == 0 {
		return nil
	}
	per := len(rows)
	if maxParams > 0 {
		per = maxParams / width
		if per < 1 {
			per = 1
		}
	}
	out := make([][][]any, 0, (len(rows)+per-1)/per)
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var _ storage.Sink = (*Sink)(nil)
