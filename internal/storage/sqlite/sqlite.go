// Package sqlite registers the "sqlite" sink kind backed by modernc.org/sqlite.
//
// The DSN is a file path (or ":memory:"); an empty DSN writes tables.db inside
// the run's temporary directory.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"jsonflat/internal/storage"
	"jsonflat/internal/storage/sqlsink"
	"jsonflat/internal/temp"
)

func init() {
	storage.Register("sqlite", New)
}

// Dialect is the SQLite flavor of sqlsink.Dialect.
type Dialect struct{}

func (Dialect) Quote(id string) string { return sqlIdent(id) }

func (Dialect) Placeholder(int) string { return "?" }

// MaxParams matches SQLITE_MAX_VARIABLE_NUMBER of SQLite >= 3.32.
func (Dialect) MaxParams() int { return 32766 }

func (Dialect) CreateTableSQL(table string, columns []string) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = sqlIdent(c) + " TEXT"
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", sqlIdent(table), strings.Join(defs, ", "))
}

// New opens the database and returns a sink over it.
func New(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
	dsn := cfg.DSN
	if dsn == "" {
		t := cfg.Temp
		if t == nil {
			t = temp.New("json-parser-data")
		}
		dir, err := t.Dir()
		if err != nil {
			return nil, err
		}
		dsn = dir + "/tables.db"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sqlsink.New(db, Dialect{}, cfg.BatchSize), nil
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
