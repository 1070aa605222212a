// Package memory is an in-process sink. It is the engine default and the
// backend used by tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"jsonflat/internal/storage"
)

func init() {
	storage.Register("memory", func(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
		return New(), nil
	})
}

// Sink keeps every table and row in memory.
type Sink struct {
	mu     sync.Mutex
	tables map[string]*Table
	order  []string
	closed bool
}

// New returns an empty sink.
func New() *Sink {
	return &Sink{tables: map[string]*Table{}}
}

// CreateTable creates a table. Creating an existing name returns an error.
func (s *Sink) CreateTable(ctx context.Context, spec storage.TableSpec) (storage.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[spec.Name]; ok {
		return nil, fmt.Errorf("memory: table %q already exists", spec.Name)
	}
	t := &Table{BaseTable: storage.NewBaseTable(spec)}
	s.tables[spec.Name] = t
	s.order = append(s.order, spec.Name)
	return t, nil
}

// Close marks the sink closed. Tables stay readable.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Table returns the named table.
func (s *Sink) Table(name string) (*Table, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[name]
	return t, ok
}

// Names returns table names in creation order.
func (s *Sink) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Table is an in-memory table.
type Table struct {
	storage.BaseTable

	mu   sync.Mutex
	rows []storage.Row
}

// AppendRow stores a copy of row.
func (t *Table) AppendRow(ctx context.Context, row storage.Row) error {
	cp := make(storage.Row, len(row))
	for k, v := range row {
		cp[k] = v
	}
	t.mu.Lock()
	t.rows = append(t.rows, cp)
	t.mu.Unlock()
	return nil
}

// Rows returns the stored rows in append order.
func (t *Table) Rows() []storage.Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]storage.Row, len(t.rows))
	copy(out, t.rows)
	return out
}

// Records renders every row as text ordered by header; nil cells become "".
func (t *Table) Records() [][]string {
	rows := t.Rows()
	out := make([][]string, len(rows))
	for i, r := range rows {
		rec := make([]string, len(t.Columns))
		for j, c := range t.Columns {
			rec[j], _ = storage.Text(r[c])
		}
		out[i] = rec
	}
	return out
}

var _ storage.Sink = (*Sink)(nil)
