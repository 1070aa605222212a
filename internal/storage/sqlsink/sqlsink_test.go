package sqlsink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"jsonflat/internal/storage"
)

type qmarkDialect struct{}

func (qmarkDialect) Quote(s string) string  { return `"` + s + `"` }
func (qmarkDialect) Placeholder(int) string { return "?" }
func (qmarkDialect) MaxParams() int         { return 6 }
func (qmarkDialect) CreateTableSQL(t string, cols []string) string {
	return fmt.Sprintf("CREATE %s %s", t, strings.Join(cols, ","))
}

type fakeConn struct {
	queries []string
	args    [][]any
	failOn  string
	closed  bool
}

func (f *fakeConn) ExecContext(ctx context.Context, q string, args ...any) (sql.Result, error) {
	f.queries = append(f.queries, q)
	f.args = append(f.args, args)
	if f.failOn != "" && strings.Contains(q, f.failOn) {
		return nil, errors.New("boom")
	}
	return nil, nil
}

func (f *fakeConn) Close() error { f.closed = true; return nil }

func TestBuildInsertSQL(t *testing.T) {
	q, args := BuildInsertSQL(qmarkDialect{}, "root", []string{"a", "b"}, [][]any{{"1", nil}, {"2", "x"}})
	want := `INSERT INTO "root" ("a", "b") VALUES (?, ?), (?, ?)`
	if q != want {
		t.Fatalf("sql=%q, want %q", q, want)
	}
	if len(args) != 4 || args[1] != nil || args[3] != "x" {
		t.Fatalf("args=%#v", args)
	}
}

func TestChunkRows(t *testing.T) {
	rows := make([][]any, 5)
	chunks := ChunkRows(rows, 2, 6)
	if len(chunks) != 2 || len(chunks[0]) != 3 || len(chunks[1]) != 2 {
		t.Fatalf("chunks=%d/%v", len(chunks), chunks)
	}
	if got := ChunkRows(rows, 10, 6); len(got) != 5 {
		t.Fatalf("wide rows: got %d chunks, want 5", len(got))
	}
	if ChunkRows(nil, 2, 6) != nil {
		t.Fatalf("empty rows should yield nil")
	}
}

func TestSinkBuffersAndFlushesOnClose(t *testing.T) {
	ctx := context.Background()
	conn := &fakeConn{}
	s := newSink(conn, qmarkDialect{}, 10)

	tbl, err := s.CreateTable(ctx, storage.TableSpec{
		Name:       "root",
		Columns:    []string{"a", "b"},
		Attributes: map[string]string{storage.AttrFullDisplayName: "root"},
	})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	for i := 0; i < 4; i++ {
		if err := tbl.AppendRow(ctx, storage.Row{"a": fmt.Sprint(i)}); err != nil {
			t.Fatalf("AppendRow: %v", err)
		}
	}
	before := len(conn.queries)
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	inserts := conn.queries[before:]
	// 4 rows x 2 cols with MaxParams=6 -> chunks of 3 and 1.
	if len(inserts) != 2 {
		t.Fatalf("inserts=%d (%v), want 2", len(inserts), inserts)
	}
	if got := tbl.(*Table).Written(); got != 4 {
		t.Fatalf("Written()=%d, want 4", got)
	}
	if !conn.closed {
		t.Fatalf("db not closed")
	}
}

func TestSinkWrapsInsertErrors(t *testing.T) {
	ctx := context.Background()
	conn := &fakeConn{failOn: `INSERT INTO "root"`}
	s := newSink(conn, qmarkDialect{}, 1)
	tbl, err := s.CreateTable(ctx, storage.TableSpec{Name: "root", Columns: []string{"a"}})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	err = tbl.AppendRow(ctx, storage.Row{"a": "1"})
	if err == nil || !strings.Contains(err.Error(), "insert into root") {
		t.Fatalf("AppendRow err=%v, want wrapped insert error", err)
	}
}

func TestSinkSkipsZeroColumnTables(t *testing.T) {
	ctx := context.Background()
	conn := &fakeConn{}
	s := newSink(conn, qmarkDialect{}, 1)
	tbl, err := s.CreateTable(ctx, storage.TableSpec{Name: "root"})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := tbl.AppendRow(ctx, storage.Row{}); err != nil {
		t.Fatalf("AppendRow: %v", err)
	}
	if len(conn.queries) != 0 {
		t.Fatalf("queries=%v, want none", conn.queries)
	}
}
