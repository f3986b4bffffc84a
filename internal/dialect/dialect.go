// Package dialect describes the SQL engines worlddb can talk to: which
// database/sql driver to use, how to build a connection string for a node
// address, how placeholders are written and how to introspect the catalog.
package dialect

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/go-sql-driver/mysql"

	werrors "github.com/arkilian/worlddb/internal/errors"
)

// PlaceholderStyle is the bind-parameter syntax accepted by a driver.
type PlaceholderStyle int

const (
	// StyleQuestion uses "?" for every parameter (sqlite, mysql).
	StyleQuestion PlaceholderStyle = iota
	// StyleDollar uses "$1", "$2", ... (postgres).
	StyleDollar
)

// Family groups dialects that share SQL syntax.
type Family string

const (
	FamilySQLite   Family = "sqlite"
	FamilyPostgres Family = "postgres"
	FamilyMySQL    Family = "mysql"
)

// Endpoint holds what is needed to reach one node of the engine.
type Endpoint struct {
	Address  string
	Database string
	User     string
	Password string
	Params   map[string]string
}

// Dialect describes one supported driver.
type Dialect struct {
	// Driver is the database/sql driver name.
	Driver string
	// Family is the SQL syntax family.
	Family Family
	// Style is the placeholder syntax.
	Style PlaceholderStyle

	dsn func(Endpoint) string
}

var registry = map[string]*Dialect{
	"sqlite3": {Driver: "sqlite3", Family: FamilySQLite, Style: StyleQuestion, dsn: sqliteDSN},
	"sqlite":  {Driver: "sqlite", Family: FamilySQLite, Style: StyleQuestion, dsn: sqliteDSN},
	"pgx":     {Driver: "pgx", Family: FamilyPostgres, Style: StyleDollar, dsn: postgresDSN},
	"mysql":   {Driver: "mysql", Family: FamilyMySQL, Style: StyleQuestion, dsn: mysqlDSN},
}

// Lookup returns the dialect registered for a driver name.
func Lookup(driver string) (*Dialect, error) {
	d, ok := registry[strings.ToLower(driver)]
	if !ok {
		return nil, werrors.NewConnectionError(werrors.CodeUnsupportedDriver,
			fmt.Sprintf("unsupported driver %q (supported: %s)", driver, strings.Join(Drivers(), ", ")), nil)
	}
	return d, nil
}

// Drivers returns the supported driver names, sorted.
func Drivers() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DSN builds the connection string for one endpoint.
func (d *Dialect) DSN(ep Endpoint) string {
	return d.dsn(ep)
}

// Placeholder renders the n-th (1-based) bind parameter.
func (d *Dialect) Placeholder(n int) string {
	if d.Style == StyleDollar {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// TablesQuery lists user tables of the connected schema, one name per row.
func (d *Dialect) TablesQuery() string {
	switch d.Family {
	case FamilyPostgres:
		return "SELECT table_name FROM information_schema.tables " +
			"WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name"
	case FamilyMySQL:
		return "SELECT table_name FROM information_schema.tables " +
			"WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE' ORDER BY table_name"
	default:
		return "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
	}
}

// ColumnsQuery returns a query yielding (column_name, key_position) for a
// table, in declaration order. key_position is 0 for non-key columns and the
// 1-based position inside the primary key otherwise. The query takes the
// table name as its only parameter.
func (d *Dialect) ColumnsQuery() string {
	switch d.Family {
	case FamilyPostgres:
		return `SELECT c.column_name, COALESCE(k.ordinal_position, 0)
FROM information_schema.columns c
LEFT JOIN information_schema.table_constraints tc
  ON tc.table_schema = c.table_schema AND tc.table_name = c.table_name AND tc.constraint_type = 'PRIMARY KEY'
LEFT JOIN information_schema.key_column_usage k
  ON k.constraint_name = tc.constraint_name AND k.table_schema = c.table_schema
  AND k.table_name = c.table_name AND k.column_name = c.column_name
WHERE c.table_schema = current_schema() AND c.table_name = $1
ORDER BY c.ordinal_position`
	case FamilyMySQL:
		return `SELECT c.column_name, COALESCE(k.ordinal_position, 0)
FROM information_schema.columns c
LEFT JOIN information_schema.key_column_usage k
  ON k.table_schema = c.table_schema AND k.table_name = c.table_name
  AND k.column_name = c.column_name AND k.constraint_name = 'PRIMARY'
WHERE c.table_schema = DATABASE() AND c.table_name = ?
ORDER BY c.ordinal_position`
	default:
		return "SELECT name, pk FROM pragma_table_info(?) ORDER BY cid"
	}
}

// NormalizeTableName folds an unquoted identifier the way the engine does.
func (d *Dialect) NormalizeTableName(name string) string {
	if d.Family == FamilyPostgres {
		return strings.ToLower(name)
	}
	return name
}

// sqliteDSN treats the address as a database file path or URI.
func sqliteDSN(ep Endpoint) string {
	addr := ep.Address
	if addr == ":memory:" {
		addr = "file::memory:"
	}
	if !strings.HasPrefix(addr, "file:") {
		addr = "file:" + addr
	}
	if len(ep.Params) == 0 {
		return addr
	}
	sep := "?"
	if strings.Contains(addr, "?") {
		sep = "&"
	}
	return addr + sep + encodeParams(ep.Params)
}

func postgresDSN(ep Endpoint) string {
	u := url.URL{
		Scheme:   "postgres",
		Host:     ep.Address,
		Path:     "/" + ep.Database,
		RawQuery: encodeParams(ep.Params),
	}
	if ep.User != "" {
		if ep.Password != "" {
			u.User = url.UserPassword(ep.User, ep.Password)
		} else {
			u.User = url.User(ep.User)
		}
	}
	return u.String()
}

func mysqlDSN(ep Endpoint) string {
	cfg := mysql.NewConfig()
	cfg.User = ep.User
	cfg.Passwd = ep.Password
	cfg.Net = "tcp"
	cfg.Addr = ep.Address
	cfg.DBName = ep.Database
	if len(ep.Params) > 0 {
		cfg.Params = make(map[string]string, len(ep.Params))
		for k, v := range ep.Params {
			cfg.Params[k] = v
		}
	}
	return cfg.FormatDSN()
}

// encodeParams renders params with sorted keys so DSNs are stable.
func encodeParams(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	return values.Encode()
}
