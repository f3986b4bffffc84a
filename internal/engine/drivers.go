package engine

// Engine drivers. Each registers itself with database/sql under the name
// used in the engine configuration.
import (
	_ "github.com/go-sql-driver/mysql" // "mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // "pgx"
	_ "github.com/mattn/go-sqlite3"    // "sqlite3"
	_ "modernc.org/sqlite"             // "sqlite"
)
