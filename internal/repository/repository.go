// Package repository provides typed repositories over the engine: lookups
// by key through the record view, derived queries compiled from criteria
// and explicit SQL projections.
package repository

import (
	"context"
	"fmt"

	"github.com/arkilian/worlddb/internal/engine"
	werrors "github.com/arkilian/worlddb/internal/errors"
	"github.com/arkilian/worlddb/internal/mapping"
	"github.com/arkilian/worlddb/internal/query"
	"github.com/arkilian/worlddb/internal/query/parser"
	"github.com/arkilian/worlddb/pkg/types"
)

// Repository gives typed access to the table T is mapped to.
type Repository[T any] struct {
	session *engine.Session
	table   *mapping.Table
	all     *Derived[T]
	count   *query.Compiled
}

// New creates a repository for T. It fails if T has an invalid mapping.
func New[T any](s *engine.Session) (*Repository[T], error) {
	t, err := mapping.Of[T]()
	if err != nil {
		return nil, err
	}
	r := &Repository[T]{session: s, table: t}
	if r.all, err = Derive[T](s, query.Select(t)); err != nil {
		return nil, err
	}
	if r.count, err = query.Count(t).Compile(); err != nil {
		return nil, err
	}
	return r, nil
}

// Table returns the mapping of T.
func (r *Repository[T]) Table() *mapping.Table {
	return r.table
}

// FindByID returns the entity with the given key, given in key column
// order. A missing entity is reported as (zero, false, nil).
func (r *Repository[T]) FindByID(ctx context.Context, key ...interface{}) (T, bool, error) {
	var zero T
	view, keyTuple, err := r.recordView(ctx, key)
	if err != nil {
		return zero, false, err
	}
	row, ok, err := view.Get(ctx, nil, keyTuple)
	if err != nil || !ok {
		return zero, false, err
	}
	entity, err := mapping.Decode[T](row)
	if err != nil {
		return zero, false, err
	}
	return entity, true, nil
}

// ExistsByID reports whether an entity with the given key exists.
func (r *Repository[T]) ExistsByID(ctx context.Context, key ...interface{}) (bool, error) {
	view, keyTuple, err := r.recordView(ctx, key)
	if err != nil {
		return false, err
	}
	return view.Contains(ctx, nil, keyTuple)
}

func (r *Repository[T]) recordView(ctx context.Context, key []interface{}) (*engine.RecordView, *types.Tuple, error) {
	keyTuple, err := mapping.KeyTuple(r.table, key...)
	if err != nil {
		return nil, nil, err
	}
	t, err := r.session.Table(ctx, r.table.Name)
	if err != nil {
		return nil, nil, err
	}
	return t.RecordView(), keyTuple, nil
}

// FindAll returns every entity.
func (r *Repository[T]) FindAll(ctx context.Context) ([]T, error) {
	return r.all.Find(ctx)
}

// Count returns the number of entities.
func (r *Repository[T]) Count(ctx context.Context) (int64, error) {
	rs, err := r.session.SQL().Execute(ctx, nil, engine.Statement{Query: r.count.SQL})
	if err != nil {
		return 0, err
	}
	var n int64
	err = engine.ForEach(rs, func(row *types.Tuple) error {
		n = row.Int64(row.ColumnName(0))
		return engine.ErrStop
	})
	return n, err
}

// Derived is a compiled derived query returning entities.
type Derived[T any] struct {
	session  *engine.Session
	compiled *query.Compiled
}

// Derive compiles criteria into a derived query. Compilation errors surface
// here, so repositories building their queries up front fail at startup.
func Derive[T any](s *engine.Session, c *query.Criteria) (*Derived[T], error) {
	compiled, err := c.Compile()
	if err != nil {
		return nil, err
	}
	return &Derived[T]{session: s, compiled: compiled}, nil
}

// Name returns the derived-method name of the query.
func (d *Derived[T]) Name() string {
	return d.compiled.Name
}

// SQL returns the compiled SQL.
func (d *Derived[T]) SQL() string {
	return d.compiled.SQL
}

// Find runs the query with one argument per parameter, in order.
func (d *Derived[T]) Find(ctx context.Context, args ...interface{}) ([]T, error) {
	if len(args) != d.compiled.Params {
		return nil, werrors.NewValidationError(werrors.CodeMissingArgument,
			fmt.Sprintf("%s takes %d argument(s), got %d", d.compiled.Name, d.compiled.Params, len(args)))
	}
	return collect(ctx, d.session, engine.Statement{Query: d.compiled.SQL}, args, mapping.Decode[T])
}

// Projection is an explicit SQL query whose rows map onto P by alias.
type Projection[P any] struct {
	session *engine.Session
	stmt    engine.Statement
}

// NewProjection validates the query's placeholders and returns the
// projection.
func NewProjection[P any](s *engine.Session, sql string) (*Projection[P], error) {
	if _, err := parser.Inspect(sql, parser.ForDialect(s.Dialect())); err != nil {
		return nil, err
	}
	return &Projection[P]{session: s, stmt: engine.Statement{Query: sql}}, nil
}

// List runs the projection. Arguments are positional values or
// engine.Named values, matching the query's placeholders.
func (p *Projection[P]) List(ctx context.Context, args ...interface{}) ([]P, error) {
	return collect(ctx, p.session, p.stmt, args, mapping.DecodeProjection[P])
}

func collect[V any](ctx context.Context, s *engine.Session, stmt engine.Statement, args []interface{}, decode func(*types.Tuple) (V, error)) ([]V, error) {
	rs, err := s.SQL().Execute(ctx, nil, stmt, args...)
	if err != nil {
		return nil, err
	}
	out := []V{}
	err = engine.ForEach(rs, func(row *types.Tuple) error {
		v, err := decode(row)
		if err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
