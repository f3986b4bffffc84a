package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/arkilian/worlddb/internal/observability"
	"github.com/arkilian/worlddb/internal/query/parser"
)

// Named binds a value to a :name placeholder.
func Named(name string, value interface{}) sql.NamedArg {
	return sql.Named(name, value)
}

// Statement is a prepared description of a query. It is not bound to a
// connection and can be executed any number of times.
type Statement struct {
	Query   string
	Timeout time.Duration
}

// StatementBuilder assembles a Statement.
type StatementBuilder struct {
	stmt Statement
}

// Query sets the SQL text. Placeholders are "?" or ":name".
func (b *StatementBuilder) Query(query string) *StatementBuilder {
	b.stmt.Query = query
	return b
}

// Timeout bounds each execution of the statement. Zero means no bound.
func (b *StatementBuilder) Timeout(d time.Duration) *StatementBuilder {
	b.stmt.Timeout = d
	return b
}

// Build returns the statement.
func (b *StatementBuilder) Build() Statement {
	return b.stmt
}

// SQL is the declarative query surface of a session.
type SQL struct {
	session *Session
}

// SQL returns the declarative query surface.
func (s *Session) SQL() *SQL {
	return &SQL{session: s}
}

// StatementBuilder starts a new statement.
func (q *SQL) StatementBuilder() *StatementBuilder {
	return &StatementBuilder{}
}

// Execute runs a query and returns a lazily iterated result set. Arguments
// are positional for "?" placeholders or Named values for ":name"
// placeholders. The caller must close the result set.
func (q *SQL) Execute(ctx context.Context, tx *Transaction, stmt Statement, args ...interface{}) (rs *ResultSet, err error) {
	start := time.Now()
	defer func() { observability.ObserveEngine("sql", start, err) }()

	conn, err := q.session.on(tx)
	if err != nil {
		return nil, err
	}
	query, bound, err := parser.Bind(stmt.Query, q.session.dialect.Style, args, parser.ForDialect(q.session.dialect))
	if err != nil {
		return nil, err
	}

	cancel := context.CancelFunc(func() {})
	if stmt.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, stmt.Timeout)
	}
	rows, err := conn.QueryContext(ctx, query, bound...)
	if err != nil {
		cancel()
		return nil, err
	}
	return newResultSet(rows, cancel), nil
}

// Exec runs a statement that returns no rows and reports the number of
// affected rows.
func (q *SQL) Exec(ctx context.Context, tx *Transaction, stmt Statement, args ...interface{}) (n int64, err error) {
	start := time.Now()
	defer func() { observability.ObserveEngine("sql", start, err) }()

	conn, err := q.session.on(tx)
	if err != nil {
		return 0, err
	}
	query, bound, err := parser.Bind(stmt.Query, q.session.dialect.Style, args, parser.ForDialect(q.session.dialect))
	if err != nil {
		return 0, err
	}
	if stmt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, stmt.Timeout)
		defer cancel()
	}
	res, err := conn.ExecContext(ctx, query, bound...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
