// Package mssql registers the "mssql" sink kind for SQL Server.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"jsonflat/internal/storage"
	"jsonflat/internal/storage/sqlsink"
)

func init() {
	storage.Register("mssql", New)
}

// Dialect is the SQL Server flavor of sqlsink.Dialect.
type Dialect struct{}

func (Dialect) Quote(id string) string { return mssqlIdent(id) }

func (Dialect) Placeholder(n int) string { return "@p" + strconv.Itoa(n) }

// MaxParams stays under the 2100 parameter limit of an RPC call.
func (Dialect) MaxParams() int { return 2000 }

func (Dialect) CreateTableSQL(table string, columns []string) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = mssqlIdent(c) + " NVARCHAR(MAX) NULL"
	}
	return wrapCreateIfMissing(table, strings.Join(defs, ", "))
}

// New opens a connection pool and returns a sink over it.
func New(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("mssql: dsn is required")
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(8)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sqlsink.New(db, Dialect{}, cfg.BatchSize), nil
}

// wrapCreateIfMissing guards CREATE TABLE with OBJECT_ID since SQL Server has
// no CREATE TABLE IF NOT EXISTS.
func wrapCreateIfMissing(table, defs string) string {
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		strings.ReplaceAll(mssqlIdent(table), "'", "''"),
		mssqlIdent(table),
		defs,
	)
}

func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}
