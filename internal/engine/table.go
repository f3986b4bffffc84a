package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	werrors "github.com/arkilian/worlddb/internal/errors"
	"github.com/arkilian/worlddb/internal/observability"
	"github.com/arkilian/worlddb/internal/query/parser"
	"github.com/arkilian/worlddb/pkg/types"
)

// Table is an introspected engine table.
type Table struct {
	session *Session
	name    string
	columns []string
	keys    []string
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Columns returns every column in declaration order.
func (t *Table) Columns() []string { return append([]string(nil), t.columns...) }

// KeyColumns returns the primary key columns in key order.
func (t *Table) KeyColumns() []string { return append([]string(nil), t.keys...) }

// ValueColumns returns the non-key columns in declaration order.
func (t *Table) ValueColumns() []string {
	var out []string
	for _, c := range t.columns {
		if !t.isKey(c) {
			out = append(out, c)
		}
	}
	return out
}

func (t *Table) isKey(col string) bool {
	for _, k := range t.keys {
		if strings.EqualFold(k, col) {
			return true
		}
	}
	return false
}

// RecordView returns whole-record access to the table.
func (t *Table) RecordView() *RecordView {
	return &RecordView{table: t}
}

// KeyValueView returns key/value access to the table.
func (t *Table) KeyValueView() *KeyValueView {
	return &KeyValueView{table: t}
}

// keyArgs validates that key holds every key column and returns the values
// in key order.
func (t *Table) keyArgs(key *types.Tuple) ([]interface{}, error) {
	if len(t.keys) == 0 {
		return nil, werrors.NewValidationError(werrors.CodeMissingKeyColumn,
			fmt.Sprintf("table %s has no primary key", t.name))
	}
	args := make([]interface{}, len(t.keys))
	for i, k := range t.keys {
		v, ok := key.Value(k)
		if !ok {
			return nil, werrors.NewValidationError(werrors.CodeMissingKeyColumn,
				fmt.Sprintf("key for %s is missing column %s", t.name, k))
		}
		args[i] = v
	}
	return args, nil
}

func (t *Table) selectByKey(columns []string) string {
	conds := make([]string, len(t.keys))
	for i, k := range t.keys {
		conds[i] = k + " = ?"
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(columns, ", "), t.name, strings.Join(conds, " AND "))
}

// lookup fetches the given columns of the row identified by key.
func (t *Table) lookup(ctx context.Context, tx *Transaction, surface string, columns []string, key *types.Tuple) (row *types.Tuple, found bool, err error) {
	start := time.Now()
	defer func() { observability.ObserveEngine(surface, start, err) }()

	args, err := t.keyArgs(key)
	if err != nil {
		return nil, false, err
	}
	q, err := t.session.on(tx)
	if err != nil {
		return nil, false, err
	}
	query, args, err := parser.Bind(t.selectByKey(columns), t.session.dialect.Style, args, parser.ForDialect(t.session.dialect))
	if err != nil {
		return nil, false, err
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, err
	}
	rs := newResultSet(rows, nil)
	defer rs.Close()
	if !rs.Next() {
		return nil, false, rs.Err()
	}
	return rs.Row(), true, nil
}

// RecordView reads whole rows by key.
type RecordView struct {
	table *Table
}

// Get returns the full row for key. A missing row is reported as
// (nil, false, nil).
func (v *RecordView) Get(ctx context.Context, tx *Transaction, key *types.Tuple) (*types.Tuple, bool, error) {
	return v.table.lookup(ctx, tx, "record", v.table.columns, key)
}

// GetAll returns the rows for keys in key order. Absent keys are skipped.
func (v *RecordView) GetAll(ctx context.Context, tx *Transaction, keys []*types.Tuple) ([]*types.Tuple, error) {
	out := make([]*types.Tuple, 0, len(keys))
	for _, key := range keys {
		row, ok, err := v.Get(ctx, tx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

// Contains reports whether a row exists for key.
func (v *RecordView) Contains(ctx context.Context, tx *Transaction, key *types.Tuple) (bool, error) {
	_, ok, err := v.table.lookup(ctx, tx, "record", v.table.keys, key)
	return ok, err
}

// KeyValueView reads the non-key part of rows by key.
type KeyValueView struct {
	table *Table
}

// Get returns the value columns of the row for key. A missing row is
// reported as (nil, false, nil).
func (v *KeyValueView) Get(ctx context.Context, tx *Transaction, key *types.Tuple) (*types.Tuple, bool, error) {
	cols := v.table.ValueColumns()
	if len(cols) == 0 {
		cols = v.table.keys
	}
	return v.table.lookup(ctx, tx, "keyvalue", cols, key)
}

// Contains reports whether a row exists for key.
func (v *KeyValueView) Contains(ctx context.Context, tx *Transaction, key *types.Tuple) (bool, error) {
	_, ok, err := v.table.lookup(ctx, tx, "keyvalue", v.table.keys, key)
	return ok, err
}
