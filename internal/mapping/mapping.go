// Package mapping binds Go structs to engine tables.
//
// A struct describes its table with `db` tags:
//
//	type City struct {
//		ID          int64  `db:"ID,key"`
//		CountryCode string `db:"COUNTRYCODE,affinity"`
//		Name        string `db:"NAME"`
//	}
//
// Fields without a tag are ignored; a tag of "-" skips the field explicitly.
// The table name is taken from a TableName() string method when present,
// otherwise from the lower-cased type name.
package mapping

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	werrors "github.com/arkilian/worlddb/internal/errors"
)

// Column is one mapped struct field.
type Column struct {
	// Name is the engine column name.
	Name string
	// Field is the Go field name.
	Field string
	// Key marks a primary key column.
	Key bool
	// Affinity marks the colocation column.
	Affinity bool

	index int
	typ   reflect.Type
}

// Table is the parsed mapping of a struct type.
type Table struct {
	// Name is the engine table name.
	Name string
	// Columns are the mapped columns in field declaration order.
	Columns []Column

	typ     reflect.Type
	byCol   map[string]int
	byField map[string]int
}

// tableNamer lets a struct choose its table name.
type tableNamer interface {
	TableName() string
}

var cache sync.Map // reflect.Type -> *Table

// Of returns the mapping of struct type T.
func Of[T any]() (*Table, error) {
	var zero T
	return mappingFor(reflect.TypeOf(zero))
}

// MustOf is like Of but panics on an invalid mapping. It is meant for
// package-level mapping variables.
func MustOf[T any]() *Table {
	t, err := Of[T]()
	if err != nil {
		panic(err)
	}
	return t
}

func mappingFor(typ reflect.Type) (*Table, error) {
	if typ == nil || typ.Kind() != reflect.Struct {
		return nil, werrors.NewMappingError(werrors.CodeInvalidMapping,
			fmt.Sprintf("mapping requires a struct type, got %v", typ))
	}
	if cached, ok := cache.Load(typ); ok {
		return cached.(*Table), nil
	}
	t, err := parse(typ)
	if err != nil {
		return nil, err
	}
	actual, _ := cache.LoadOrStore(typ, t)
	return actual.(*Table), nil
}

func parse(typ reflect.Type) (*Table, error) {
	t := &Table{
		Name:    strings.ToLower(typ.Name()),
		typ:     typ,
		byCol:   make(map[string]int),
		byField: make(map[string]int),
	}
	if namer, ok := reflect.New(typ).Elem().Interface().(tableNamer); ok {
		t.Name = namer.TableName()
	}

	affinity := 0
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag, ok := f.Tag.Lookup("db")
		if !ok || tag == "-" || !f.IsExported() {
			continue
		}
		parts := strings.Split(tag, ",")
		col := Column{Name: strings.TrimSpace(parts[0]), Field: f.Name, index: i, typ: f.Type}
		if col.Name == "" {
			col.Name = strings.ToUpper(f.Name)
		}
		for _, opt := range parts[1:] {
			switch strings.TrimSpace(opt) {
			case "key":
				col.Key = true
			case "affinity":
				col.Affinity = true
				affinity++
			case "":
			default:
				return nil, werrors.NewMappingError(werrors.CodeInvalidMapping,
					fmt.Sprintf("%s.%s: unknown tag option %q", typ.Name(), f.Name, opt))
			}
		}
		norm := strings.ToUpper(col.Name)
		if _, dup := t.byCol[norm]; dup {
			return nil, werrors.NewMappingError(werrors.CodeInvalidMapping,
				fmt.Sprintf("%s: column %s mapped twice", typ.Name(), col.Name))
		}
		t.byCol[norm] = len(t.Columns)
		t.byField[strings.ToUpper(f.Name)] = len(t.Columns)
		t.Columns = append(t.Columns, col)
	}

	if len(t.Columns) == 0 {
		return nil, werrors.NewMappingError(werrors.CodeInvalidMapping,
			fmt.Sprintf("%s has no db-tagged fields", typ.Name()))
	}
	if len(t.KeyColumns()) == 0 {
		return nil, werrors.NewMappingError(werrors.CodeInvalidMapping,
			fmt.Sprintf("%s has no key column", typ.Name()))
	}
	if affinity > 1 {
		return nil, werrors.NewMappingError(werrors.CodeInvalidMapping,
			fmt.Sprintf("%s declares %d affinity columns", typ.Name(), affinity))
	}
	return t, nil
}

// Type returns the mapped struct type.
func (t *Table) Type() reflect.Type {
	return t.typ
}

// ColumnNames returns every mapped column name in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// KeyColumns returns the key column names in order.
func (t *Table) KeyColumns() []string {
	var names []string
	for _, c := range t.Columns {
		if c.Key {
			names = append(names, c.Name)
		}
	}
	return names
}

// ValueColumns returns the non-key column names in order.
func (t *Table) ValueColumns() []string {
	var names []string
	for _, c := range t.Columns {
		if !c.Key {
			names = append(names, c.Name)
		}
	}
	return names
}

// AffinityColumn returns the colocation column. Tables without an explicit
// affinity column colocate by their first key column.
func (t *Table) AffinityColumn() string {
	for _, c := range t.Columns {
		if c.Affinity {
			return c.Name
		}
	}
	return t.KeyColumns()[0]
}

// Column looks up a column by engine name, case-insensitively.
func (t *Table) Column(name string) (Column, bool) {
	i, ok := t.byCol[strings.ToUpper(name)]
	if !ok {
		return Column{}, false
	}
	return t.Columns[i], true
}

// ColumnForField resolves a Go field name (or a column name) to its column.
func (t *Table) ColumnForField(field string) (string, error) {
	if i, ok := t.byField[strings.ToUpper(field)]; ok {
		return t.Columns[i].Name, nil
	}
	if c, ok := t.Column(field); ok {
		return c.Name, nil
	}
	return "", werrors.NewMappingError(werrors.CodeUnknownField,
		fmt.Sprintf("%s has no field %q", t.typ.Name(), field))
}
