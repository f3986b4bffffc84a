// Package engine is the data-access facade over a remote SQL engine.
//
// A Session is opened once per process and shared by every caller. It
// offers three ways to read the same tables: whole records through a
// RecordView, key/value pairs through a KeyValueView and declarative SQL
// through SQL().
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arkilian/worlddb/internal/dialect"
	werrors "github.com/arkilian/worlddb/internal/errors"
	"github.com/arkilian/worlddb/internal/observability"
)

// Config holds the connection settings of a session.
type Config struct {
	// Driver is the database/sql driver name: sqlite3, sqlite, pgx or mysql.
	Driver string
	// Addresses are the engine nodes, tried in order.
	Addresses []string
	Database  string
	User      string
	Password  string
	// Params are extra driver connection parameters.
	Params map[string]string

	// ConnectTimeout bounds the ping of each address.
	ConnectTimeout time.Duration

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConnectTimeout is used when Config.ConnectTimeout is zero.
const DefaultConnectTimeout = 5 * time.Second

// Session is a connection to the engine.
type Session struct {
	db      *sql.DB
	dialect *dialect.Dialect
	cluster *Cluster
	closed  atomic.Bool

	mu     sync.Mutex
	tables map[string]*Table
}

// Open connects to the first configured address that answers a ping.
// When none answers, the returned error lists the failure of every address.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	d, err := dialect.Lookup(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if len(cfg.Addresses) == 0 {
		return nil, werrors.NewValidationError(werrors.CodeInvalidConfig, "engine: no addresses configured")
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	var failures []string
	for i, addr := range cfg.Addresses {
		db, err := connect(ctx, d, cfg, addr, timeout)
		if err != nil {
			log.Printf("Engine node %s unreachable: %v", addr, err)
			failures = append(failures, fmt.Sprintf("%s: %v", addr, err))
			continue
		}
		configurePool(db, cfg)
		log.Printf("Connected to %s engine at %s", d.Driver, addr)
		return newSession(db, d, newCluster(d.Driver, cfg.Addresses, i)), nil
	}

	return nil, werrors.NewConnectionError(werrors.CodeNoReachableNode,
		fmt.Sprintf("no engine node reachable (%s)", strings.Join(failures, "; ")), nil)
}

func connect(ctx context.Context, d *dialect.Dialect, cfg Config, addr string, timeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open(d.Driver, d.DSN(dialect.Endpoint{
		Address:  addr,
		Database: cfg.Database,
		User:     cfg.User,
		Password: cfg.Password,
		Params:   cfg.Params,
	}))
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func configurePool(db *sql.DB, cfg Config) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

// FromDB wraps an already opened pool. The session takes ownership of db.
func FromDB(db *sql.DB, driver string) (*Session, error) {
	d, err := dialect.Lookup(driver)
	if err != nil {
		return nil, err
	}
	return newSession(db, d, newCluster(d.Driver, []string{"local"}, 0)), nil
}

func newSession(db *sql.DB, d *dialect.Dialect, c *Cluster) *Session {
	return &Session{
		db:      db,
		dialect: d,
		cluster: c,
		tables:  make(map[string]*Table),
	}
}

// DB returns the underlying pool, for libraries that need a *sql.DB.
func (s *Session) DB() *sql.DB {
	return s.db
}

// Dialect returns the dialect of the connected engine.
func (s *Session) Dialect() *dialect.Dialect {
	return s.dialect
}

// Cluster returns the configured engine topology.
func (s *Session) Cluster() *Cluster {
	return s.cluster
}

// Close releases the connection pool. Closing twice is a no-op.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

// Ping checks that the active node still answers.
func (s *Session) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return errSessionClosed()
	}
	return s.db.PingContext(ctx)
}

// Tables returns the table names of the connected schema.
func (s *Session) Tables(ctx context.Context) (names []string, err error) {
	start := time.Now()
	defer func() { observability.ObserveEngine("tables", start, err) }()

	if s.closed.Load() {
		return nil, errSessionClosed()
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.TablesQuery())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Table returns a handle on a table, introspecting its columns and primary
// key on first use.
func (s *Session) Table(ctx context.Context, name string) (*Table, error) {
	if s.closed.Load() {
		return nil, errSessionClosed()
	}
	name = s.dialect.NormalizeTableName(name)

	s.mu.Lock()
	t, ok := s.tables[name]
	s.mu.Unlock()
	if ok {
		return t, nil
	}

	t, err := s.introspect(ctx, name)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if cached, ok := s.tables[name]; ok {
		t = cached
	} else {
		s.tables[name] = t
	}
	s.mu.Unlock()
	return t, nil
}

func (s *Session) introspect(ctx context.Context, name string) (*Table, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.ColumnsQuery(), name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	t := &Table{session: s, name: name}
	keyPos := make(map[string]int64)
	for rows.Next() {
		var (
			col string
			pos int64
		)
		if err := rows.Scan(&col, &pos); err != nil {
			return nil, err
		}
		t.columns = append(t.columns, col)
		if pos > 0 {
			keyPos[col] = pos
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(t.columns) == 0 {
		return nil, werrors.NewQueryError(werrors.CodeTableNotFound, fmt.Sprintf("table %q not found", name))
	}
	t.keys = orderKeys(t.columns, keyPos)
	return t, nil
}

// orderKeys returns the key columns ordered by their position in the key.
func orderKeys(columns []string, keyPos map[string]int64) []string {
	keys := make([]string, len(keyPos))
	for _, col := range columns {
		if pos, ok := keyPos[col]; ok && int(pos) <= len(keys) {
			keys[pos-1] = col
		}
	}
	out := keys[:0]
	for _, k := range keys {
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

// querier is implemented by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// on returns where a read runs: the explicit transaction, or the pool for
// implicit auto-commit when tx is nil.
func (s *Session) on(tx *Transaction) (querier, error) {
	if s.closed.Load() {
		return nil, errSessionClosed()
	}
	if tx == nil {
		return s.db, nil
	}
	if tx.done.Load() {
		return nil, werrors.NewQueryError(werrors.CodeSessionClosed, "transaction already finished")
	}
	return tx.tx, nil
}

func errSessionClosed() error {
	return werrors.NewConnectionError(werrors.CodeSessionClosed, "session is closed", nil)
}
