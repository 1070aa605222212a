// Package postgres registers the "postgres" sink kind.
//
// Rows are buffered per table and loaded with COPY (pgx CopyFrom). Every
// column is nullable text. The fullDisplayName attribute is also written as
// the table comment.
//
// Options:
//   - schema: target schema (default: the connection's search_path).
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"jsonflat/internal/storage"
	"jsonflat/internal/storage/sqlsink"
)

// DefaultBatchSize is the number of buffered rows per COPY.
const DefaultBatchSize = 5000

func init() {
	storage.Register("postgres", New)
}

// pgConn is the subset of *pgxpool.Pool the sink uses.
type pgConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
	Close()
}

// Sink writes tables to Postgres.
type Sink struct {
	conn      pgConn
	schema    string
	batchSize int

	mu         sync.Mutex
	tables     []*Table
	attrsReady bool
}

// New connects a pool and returns a sink over it.
func New(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres: dsn is required")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return newSink(pool, cfg.Options.String("schema", ""), cfg.BatchSize), nil
}

func newSink(conn pgConn, schema string, batchSize int) *Sink {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Sink{conn: conn, schema: schema, batchSize: batchSize}
}

func (s *Sink) ident(name string) pgx.Identifier {
	if s.schema == "" {
		return pgx.Identifier{name}
	}
	return pgx.Identifier{s.schema, name}
}

// CreateTable creates the table if missing and records its attributes.
func (s *Sink) CreateTable(ctx context.Context, spec storage.TableSpec) (storage.Table, error) {
	id := s.ident(spec.Name)
	if s.schema != "" {
		if _, err := s.conn.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{s.schema}.Sanitize()); err != nil {
			return nil, fmt.Errorf("create schema %s: %w", s.schema, err)
		}
	}
	if _, err := s.conn.Exec(ctx, buildCreateTableSQL(id, spec.Columns)); err != nil {
		return nil, fmt.Errorf("create table %s: %w", spec.Name, err)
	}
	if display, ok := spec.Attributes[storage.AttrFullDisplayName]; ok {
		if _, err := s.conn.Exec(ctx, buildCommentSQL(id, display)); err != nil {
			return nil, fmt.Errorf("comment table %s: %w", spec.Name, err)
		}
	}
	if err := s.writeAttributes(ctx, spec); err != nil {
		return nil, err
	}

	t := &Table{BaseTable: storage.NewBaseTable(spec), sink: s, id: id}
	s.mu.Lock()
	s.tables = append(s.tables, t)
	s.mu.Unlock()
	return t, nil
}

func (s *Sink) writeAttributes(ctx context.Context, spec storage.TableSpec) error {
	if len(spec.Attributes) == 0 {
		return nil
	}
	attrs := s.ident(sqlsink.AttributesTable)
	if !s.attrsReady {
		if _, err := s.conn.Exec(ctx, buildCreateTableSQL(attrs, []string{"table_name", "name", "value"})); err != nil {
			return fmt.Errorf("create table %s: %w", sqlsink.AttributesTable, err)
		}
		s.attrsReady = true
	}
	del := fmt.Sprintf(`DELETE FROM %s WHERE "table_name" = $1`, attrs.Sanitize())
	if _, err := s.conn.Exec(ctx, del, spec.Name); err != nil {
		return fmt.Errorf("reset attributes %s: %w", spec.Name, err)
	}

	keys := make([]string, 0, len(spec.Attributes))
	for k := range spec.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]any, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []any{spec.Name, k, spec.Attributes[k]})
	}
	_, err := s.conn.CopyFrom(ctx, attrs, []string{"table_name", "name", "value"}, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("write attributes %s: %w", spec.Name, err)
	}
	return nil
}

// Close flushes every table and closes the pool.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	tables := s.tables
	s.tables = nil
	s.mu.Unlock()

	var errs []error
	for _, t := range tables {
		errs = append(errs, t.flush(ctx))
	}
	s.conn.Close()
	return errors.Join(errs...)
}

// Table buffers rows for COPY.
type Table struct {
	storage.BaseTable

	sink    *Sink
	id      pgx.Identifier
	pending [][]any
	written int64
}

// Written returns the number of rows copied so far.
func (t *Table) Written() int64 { return t.written }

// AppendRow buffers row and copies once the batch is full.
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

	n, err := t.sink.conn.CopyFrom(ctx, t.id, t.Columns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy into %s (%d rows): %w", t.TableName, len(rows), err)
	}
	t.written += n
	return nil
}

// buildCreateTableSQL returns an idempotent CREATE TABLE with text columns.
// Postgres accepts a table without columns.
func buildCreateTableSQL(id pgx.Identifier, columns []string) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = pgx.Identifier{c}.Sanitize() + " text"
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", id.Sanitize(), strings.Join(defs, ", "))
}

// buildCommentSQL returns COMMENT ON TABLE with text as an escaped literal.
// COMMENT does not take bind parameters.
func buildCommentSQL(id pgx.Identifier, text string) string {
	return fmt.Sprintf("COMMENT ON TABLE %s IS '%s'", id.Sanitize(), strings.ReplaceAll(text, "'", "''"))
}

var _ storage.Sink = (*Sink)(nil)
