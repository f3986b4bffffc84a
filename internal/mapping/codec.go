package mapping

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	werrors "github.com/arkilian/worlddb/internal/errors"
	"github.com/arkilian/worlddb/pkg/types"
)

var timeType = reflect.TypeOf(time.Time{})

// Decode builds a T from a tuple. Columns missing from the tuple leave the
// field at its zero value, so a value-only tuple decodes into a struct with
// an empty key.
func Decode[T any](tuple *types.Tuple) (T, error) {
	var out T
	t, err := Of[T]()
	if err != nil {
		return out, err
	}
	err = DecodeInto(t, tuple, &out)
	return out, err
}

// DecodeInto fills the struct pointed to by dst from a tuple.
func DecodeInto(t *Table, tuple *types.Tuple, dst interface{}) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Type() != t.typ {
		return werrors.NewMappingError(werrors.CodeInvalidMapping,
			fmt.Sprintf("decode target must be *%s, got %T", t.typ.Name(), dst))
	}
	sv := rv.Elem()
	for _, c := range t.Columns {
		v, ok := tuple.Value(c.Name)
		if !ok {
			continue
		}
		if err := assign(sv.Field(c.index), v); err != nil {
			return werrors.Wrap(werrors.ErrCategoryMapping, werrors.CodeTypeMismatch,
				fmt.Sprintf("%s.%s", t.Name, c.Name), err)
		}
	}
	return nil
}

// Encode converts a struct (or pointer to struct) of the mapped type into a
// tuple holding every mapped column. Nil pointers become NULL.
func Encode(t *Table, value interface{}) (*types.Tuple, error) {
	rv := reflect.Indirect(reflect.ValueOf(value))
	if !rv.IsValid() || rv.Type() != t.typ {
		return nil, werrors.NewMappingError(werrors.CodeInvalidMapping,
			fmt.Sprintf("encode expects %s, got %T", t.typ.Name(), value))
	}
	tuple := types.NewTuple()
	for _, c := range t.Columns {
		f := rv.Field(c.index)
		if f.Kind() == reflect.Ptr {
			if f.IsNil() {
				tuple.Set(c.Name, nil)
				continue
			}
			f = f.Elem()
		}
		tuple.Set(c.Name, f.Interface())
	}
	return tuple, nil
}

// KeyTuple builds a key tuple from values given in key column order.
func KeyTuple(t *Table, values ...interface{}) (*types.Tuple, error) {
	keys := t.KeyColumns()
	if len(values) != len(keys) {
		return nil, werrors.NewValidationError(werrors.CodeMissingKeyColumn,
			fmt.Sprintf("%s key has %d column(s) %v, got %d value(s)", t.Name, len(keys), keys, len(values)))
	}
	tuple := types.NewTuple()
	for i, k := range keys {
		tuple.Set(k, values[i])
	}
	return tuple, nil
}

// DecodeProjection maps a result row onto a struct by alias convention:
// a column matches a field when both are equal ignoring case and
// underscores, so CITY_NAME fills CityName. Unknown columns are ignored and
// unmatched fields keep their zero value.
func DecodeProjection[T any](row *types.Tuple) (T, error) {
	var out T
	rv := reflect.ValueOf(&out).Elem()
	if rv.Kind() != reflect.Struct {
		return out, werrors.NewMappingError(werrors.CodeInvalidMapping,
			fmt.Sprintf("projection requires a struct type, got %T", out))
	}
	fields := projectionFields(rv.Type())
	for i := 0; i < row.ColumnCount(); i++ {
		idx, ok := fields[aliasKey(row.ColumnName(i))]
		if !ok {
			continue
		}
		if err := assign(rv.Field(idx), row.ValueAt(i)); err != nil {
			return out, werrors.Wrap(werrors.ErrCategoryMapping, werrors.CodeTypeMismatch,
				fmt.Sprintf("projection column %s", row.ColumnName(i)), err)
		}
	}
	return out, nil
}

func projectionFields(typ reflect.Type) map[string]int {
	fields := make(map[string]int, typ.NumField())
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if !f.IsExported() {
			continue
		}
		fields[aliasKey(f.Name)] = i
	}
	return fields
}

func aliasKey(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", ""))
}

// assign stores a driver value into a struct field, converting between the
// representations drivers use for the same SQL type.
func assign(field reflect.Value, v interface{}) error {
	if v == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	if field.Kind() == reflect.Ptr {
		elem := reflect.New(field.Type().Elem())
		if err := assign(elem.Elem(), v); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		s, ok := types.AsString(v)
		if !ok {
			return mismatch(field, v)
		}
		field.SetString(s)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := types.AsInt64(v)
		if !ok || field.OverflowInt(n) {
			return mismatch(field, v)
		}
		field.SetInt(n)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, ok := types.AsInt64(v)
		if !ok || n < 0 || field.OverflowUint(uint64(n)) {
			return mismatch(field, v)
		}
		field.SetUint(uint64(n))
		return nil
	case reflect.Float32, reflect.Float64:
		f, ok := types.AsFloat64(v)
		if !ok || field.OverflowFloat(f) {
			return mismatch(field, v)
		}
		field.SetFloat(f)
		return nil
	case reflect.Bool:
		b, ok := types.AsBool(v)
		if !ok {
			return mismatch(field, v)
		}
		field.SetBool(b)
		return nil
	}

	src := reflect.ValueOf(v)
	if field.Type() == timeType {
		if src.Type() == timeType {
			field.Set(src)
			return nil
		}
		return mismatch(field, v)
	}
	if src.Type().AssignableTo(field.Type()) {
		field.Set(src)
		return nil
	}
	if src.Type().ConvertibleTo(field.Type()) {
		field.Set(src.Convert(field.Type()))
		return nil
	}
	return mismatch(field, v)
}

func mismatch(field reflect.Value, v interface{}) error {
	return fmt.Errorf("cannot store %T (%v) in %s", v, v, field.Type())
}
