// Package all registers every sink backend.
package all

import (
	_ "jsonflat/internal/storage/csvfile"
	_ "jsonflat/internal/storage/memory"
	_ "jsonflat/internal/storage/mongo"
	_ "jsonflat/internal/storage/mssql"
	_ "jsonflat/internal/storage/mysql"
	_ "jsonflat/internal/storage/postgres"
	_ "jsonflat/internal/storage/sqlite"
)
