// Package convert provides the value coercion rules shared by the function
// engine and schema validation.
//
// Property values are dynamically typed. Values decoded from JSON arrive as
// float64 or json.Number while values built in Go are usually int, int64 or
// float64, so arithmetic and comparison have to agree on one set of rules:
//
//   - integers (any width, signed or unsigned) stay integers: Add(2, 3) is int64(5)
//   - as soon as one operand is a float the result is a float64
//   - strings compare lexically with strings, never with numbers
//
// All functions report success with a boolean instead of panicking so callers
// can turn a mismatch into a descriptive error.
package convert

import (
	"encoding/json"
	"time"
)

// ToFloat64 converts any numeric value to float64.
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case int16:
		return float64(val), true
	case int8:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint64:
		return float64(val), true
	case uint32:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	}
	return 0, false
}

// ToInt64 converts an integer value to int64. Floats are accepted only when
// they hold a whole number, which is what JSON decoding produces for integers.
func ToInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case int16:
		return int64(val), true
	case int8:
		return int64(val), true
	case uint:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		return int64(val), true
	case float64:
		if val == float64(int64(val)) {
			return int64(val), true
		}
	case float32:
		if val == float32(int64(val)) {
			return int64(val), true
		}
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, true
		}
	}
	return 0, false
}

// IsInteger reports whether v is one of Go's integer kinds.
func IsInteger(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint32, uint64:
		return true
	case json.Number:
		_, err := v.(json.Number).Int64()
		return err == nil
	}
	return false
}

// IsNumeric reports whether v can take part in arithmetic.
func IsNumeric(v any) bool {
	_, ok := ToFloat64(v)
	return ok
}

// Add sums two numeric values. Integer operands produce int64, anything
// involving a float produces float64.
func Add(a, b any) (any, bool) {
	if IsInteger(a) && IsInteger(b) {
		x, _ := ToInt64(a)
		y, _ := ToInt64(b)
		return x + y, true
	}
	x, ok := ToFloat64(a)
	if !ok {
		return nil, false
	}
	y, ok := ToFloat64(b)
	if !ok {
		return nil, false
	}
	return x + y, true
}

// Compare orders two values of compatible kinds. It returns -1, 0 or 1 and
// false when the values cannot be compared (mixed strings and numbers,
// unsupported types).
func Compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return x.Compare(y), true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	}

	if IsInteger(a) && IsInteger(b) {
		x, _ := ToInt64(a)
		y, _ := ToInt64(b)
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	x, ok := ToFloat64(a)
	if !ok {
		return 0, false
	}
	y, ok := ToFloat64(b)
	if !ok {
		return 0, false
	}
	switch {
	case x < y:
		return -1, true
	case x > y:
		return 1, true
	}
	return 0, true
}

// Normalize converts json.Number values into int64 or float64 so decoded
// properties compare equal to the values they were encoded from.
func Normalize(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
