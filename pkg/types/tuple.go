// Package types provides core data types shared by the worlddb engine,
// mappers and repositories.
package types

import (
	"fmt"
	"strings"
)

// Tuple is an ordered, loosely-typed set of named column values.
// Column lookup is case-insensitive: "name", "Name" and "NAME" address the
// same column. A Tuple is used both for keys and for full or partial rows.
type Tuple struct {
	names  []string
	values []interface{}
	index  map[string]int
}

// NewTuple creates an empty tuple.
func NewTuple() *Tuple {
	return &Tuple{index: make(map[string]int)}
}

// TupleOf creates a tuple from alternating name/value pairs.
// It panics if pairs has odd length or a name is not a string.
func TupleOf(pairs ...interface{}) *Tuple {
	if len(pairs)%2 != 0 {
		panic("types: TupleOf requires name/value pairs")
	}
	t := NewTuple()
	for i := 0; i < len(pairs); i += 2 {
		name, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("types: TupleOf name at %d is %T, not string", i, pairs[i]))
		}
		t.Set(name, pairs[i+1])
	}
	return t
}

// normalize returns the lookup key for a column name.
func normalize(name string) string {
	return strings.ToUpper(name)
}

// Set assigns a column value, replacing any previous value of the same column.
func (t *Tuple) Set(name string, value interface{}) *Tuple {
	key := normalize(name)
	if i, ok := t.index[key]; ok {
		t.values[i] = value
		return t
	}
	t.index[key] = len(t.names)
	t.names = append(t.names, name)
	t.values = append(t.values, value)
	return t
}

// Value returns the value of a column and whether the column exists.
func (t *Tuple) Value(name string) (interface{}, bool) {
	if t == nil {
		return nil, false
	}
	i, ok := t.index[normalize(name)]
	if !ok {
		return nil, false
	}
	return t.values[i], true
}

// Has reports whether the tuple holds the column.
func (t *Tuple) Has(name string) bool {
	_, ok := t.Value(name)
	return ok
}

// ColumnCount returns the number of columns.
func (t *Tuple) ColumnCount() int {
	if t == nil {
		return 0
	}
	return len(t.names)
}

// ColumnName returns the name of the column at index i as it was set.
func (t *Tuple) ColumnName(i int) string {
	return t.names[i]
}

// ColumnIndex returns the index of a column, or -1.
func (t *Tuple) ColumnIndex(name string) int {
	if t == nil {
		return -1
	}
	if i, ok := t.index[normalize(name)]; ok {
		return i
	}
	return -1
}

// ValueAt returns the value at index i.
func (t *Tuple) ValueAt(i int) interface{} {
	return t.values[i]
}

// IsNull reports whether the column is absent or holds NULL.
func (t *Tuple) IsNull(name string) bool {
	v, ok := t.Value(name)
	return !ok || v == nil
}

// String returns the column value as a string, or "" when absent or NULL.
func (t *Tuple) String(name string) string {
	v, _ := t.Value(name)
	s, _ := AsString(v)
	return s
}

// Int64 returns the column value as an int64, or 0 when absent, NULL or
// not convertible.
func (t *Tuple) Int64(name string) int64 {
	v, _ := t.Value(name)
	n, _ := AsInt64(v)
	return n
}

// Int returns the column value as an int.
func (t *Tuple) Int(name string) int {
	return int(t.Int64(name))
}

// Float64 returns the column value as a float64, or 0 when absent, NULL or
// not convertible.
func (t *Tuple) Float64(name string) float64 {
	v, _ := t.Value(name)
	f, _ := AsFloat64(v)
	return f
}

// Map returns a copy of the tuple keyed by the column names as set.
func (t *Tuple) Map() map[string]interface{} {
	m := make(map[string]interface{}, t.ColumnCount())
	for i, name := range t.names {
		m[name] = t.values[i]
	}
	return m
}

// Project returns a new tuple holding only the named columns, in the given
// order. Columns missing from t are skipped.
func (t *Tuple) Project(names ...string) *Tuple {
	out := NewTuple()
	for _, name := range names {
		if v, ok := t.Value(name); ok {
			out.Set(t.names[t.index[normalize(name)]], v)
		}
	}
	return out
}

// Equal reports whether both tuples hold the same columns (case-insensitive,
// any order) with equal values.
func (t *Tuple) Equal(other *Tuple) bool {
	if t.ColumnCount() != other.ColumnCount() {
		return false
	}
	for i, name := range t.names {
		v, ok := other.Value(name)
		if !ok || fmt.Sprint(v) != fmt.Sprint(t.values[i]) {
			return false
		}
	}
	return true
}

// GoString renders the tuple for logging.
func (t *Tuple) GoString() string {
	if t == nil {
		return "Tuple(nil)"
	}
	var b strings.Builder
	b.WriteString("Tuple{")
	for i, name := range t.names {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", name, t.values[i])
	}
	b.WriteString("}")
	return b.String()
}
