package engine

import (
	"context"
	"database/sql"
	"errors"

	"github.com/arkilian/worlddb/pkg/types"
)

// ErrStop ends ForEach early without reporting an error.
var ErrStop = errors.New("engine: stop iteration")

// ResultSet is a forward-only cursor over query results.
type ResultSet struct {
	rows    *sql.Rows
	cancel  context.CancelFunc
	columns []string
	row     *types.Tuple
	err     error
	closed  bool
}

func newResultSet(rows *sql.Rows, cancel context.CancelFunc) *ResultSet {
	rs := &ResultSet{rows: rows, cancel: cancel}
	rs.columns, rs.err = rows.Columns()
	return rs
}

// Columns returns the result column names.
func (rs *ResultSet) Columns() []string {
	return append([]string(nil), rs.columns...)
}

// Next advances to the next row. It returns false at the end of the
// results, on error and after Close.
func (rs *ResultSet) Next() bool {
	if rs.closed || rs.err != nil {
		return false
	}
	if !rs.rows.Next() {
		rs.err = rs.rows.Err()
		rs.row = nil
		return false
	}

	values := make([]interface{}, len(rs.columns))
	ptrs := make([]interface{}, len(values))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rs.rows.Scan(ptrs...); err != nil {
		rs.err = err
		rs.row = nil
		return false
	}

	row := types.NewTuple()
	for i, col := range rs.columns {
		v := values[i]
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		row.Set(col, v)
	}
	rs.row = row
	return true
}

// Row returns the current row, or nil before the first Next and after the
// end of the results.
func (rs *ResultSet) Row() *types.Tuple {
	if rs.closed {
		return nil
	}
	return rs.row
}

// Err returns the error that stopped iteration, if any.
func (rs *ResultSet) Err() error {
	return rs.err
}

// Close releases the cursor. It is safe to call more than once.
func (rs *ResultSet) Close() error {
	if rs.closed {
		return nil
	}
	rs.closed = true
	rs.row = nil
	err := rs.rows.Close()
	if rs.cancel != nil {
		rs.cancel()
	}
	return err
}

// ForEach calls fn for every remaining row and closes the result set on
// every path. Returning ErrStop from fn ends iteration without error.
func ForEach(rs *ResultSet, fn func(row *types.Tuple) error) error {
	defer rs.Close()
	for rs.Next() {
		if err := fn(rs.Row()); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	return rs.Err()
}

// Collect reads every remaining row and closes the result set.
func Collect(rs *ResultSet) ([]*types.Tuple, error) {
	var out []*types.Tuple
	err := ForEach(rs, func(row *types.Tuple) error {
		out = append(out, row)
		return nil
	})
	return out, err
}
