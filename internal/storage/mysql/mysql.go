// Package mysql registers the "mysql" sink kind (MySQL and MariaDB).
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	driver "github.com/go-sql-driver/mysql"

	"jsonflat/internal/storage"
	"jsonflat/internal/storage/sqlsink"
)

func init() {
	storage.Register("mysql", New)
}

// Dialect is the MySQL flavor of sqlsink.Dialect.
type Dialect struct{}

func (Dialect) Quote(id string) string { return mysqlIdent(id) }

func (Dialect) Placeholder(int) string { return "?" }

func (Dialect) MaxParams() int { return 65535 }

func (Dialect) CreateTableSQL(table string, columns []string) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = mysqlIdent(c) + " LONGTEXT NULL"
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s) DEFAULT CHARSET=utf8mb4",
		mysqlIdent(table), strings.Join(defs, ", "))
}

// New parses the DSN, opens a pool and returns a sink over it.
func New(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("mysql: dsn is required")
	}
	mc, err := driver.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mysql: %w", err)
	}
	connector, err := driver.NewConnector(mc)
	if err != nil {
		return nil, fmt.Errorf("mysql: %w", err)
	}

	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sqlsink.New(db, Dialect{}, cfg.BatchSize), nil
}

func mysqlIdent(id string) string {
	return "`" + strings.ReplaceAll(id, "`", "``") + "`"
}
