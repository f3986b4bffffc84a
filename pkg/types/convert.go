package types

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// AsString converts a driver value to a string.
// Drivers differ in how they surface text: sqlite returns string, mysql
// returns []byte, pgx may return numerics as strings.
func AsString(v interface{}) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case []byte:
		return string(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case int:
		return strconv.Itoa(x), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	case time.Time:
		return x.Format(time.RFC3339Nano), true
	case fmt.Stringer:
		return x.String(), true
	default:
		return fmt.Sprint(x), true
	}
}

// AsInt64 converts a driver value to an int64.
// Floats are accepted only when integral.
func AsInt64(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int16:
		return int64(x), true
	case int8:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case float64:
		if x != math.Trunc(x) {
			return 0, false
		}
		return int64(x), true
	case float32:
		return AsInt64(float64(x))
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		return parseInt(x)
	case []byte:
		return parseInt(string(x))
	default:
		return 0, false
	}
}

func parseInt(s string) (int64, bool) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

// AsFloat64 converts a driver value to a float64.
func AsFloat64(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(string(x), 64)
		return f, err == nil
	default:
		if n, ok := AsInt64(v); ok {
			return float64(n), true
		}
		return 0, false
	}
}

// AsBool converts a driver value to a bool.
func AsBool(v interface{}) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		b, err := strconv.ParseBool(x)
		return b, err == nil
	case []byte:
		b, err := strconv.ParseBool(string(x))
		return b, err == nil
	default:
		if n, ok := AsInt64(v); ok {
			return n != 0, true
		}
		return false, false
	}
}
