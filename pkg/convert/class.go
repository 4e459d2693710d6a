package convert

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownClass is returned by CheckClass for an unrecognised class name.
var ErrUnknownClass = errors.New("unknown type class")

// Type class names accepted by CheckClass. Names are case-insensitive and
// the aliases in parentheses are accepted too.
const (
	ClassString   = "string"
	ClassInteger  = "integer"  // (int, long)
	ClassFloat    = "float"    // (double, number)
	ClassBoolean  = "boolean"  // (bool)
	ClassDateTime = "datetime" // (date, time)
	ClassList     = "list"
	ClassMap      = "map"
	ClassAny      = "any"
)

var classAliases = map[string]string{
	"string":   ClassString,
	"integer":  ClassInteger,
	"int":      ClassInteger,
	"long":     ClassInteger,
	"float":    ClassFloat,
	"double":   ClassFloat,
	"number":   ClassFloat,
	"boolean":  ClassBoolean,
	"bool":     ClassBoolean,
	"datetime": ClassDateTime,
	"date":     ClassDateTime,
	"time":     ClassDateTime,
	"list":     ClassList,
	"map":      ClassMap,
	"any":      ClassAny,
}

// CanonicalClass resolves an alias to its class name.
func CanonicalClass(class string) (string, bool) {
	c, ok := classAliases[strings.ToLower(class)]
	return c, ok
}

// CheckClass checks that value belongs to class. Nil is valid for every
// class. Whole floats pass as integers since JSON decoding may produce them.
func CheckClass(value any, class string) error {
	canonical, ok := CanonicalClass(class)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownClass, class)
	}
	if value == nil {
		return nil
	}

	switch canonical {
	case ClassString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
	case ClassInteger:
		if _, ok := ToInt64(value); !ok {
			return fmt.Errorf("expected integer, got %T", value)
		}
	case ClassFloat:
		if !IsNumeric(value) {
			return fmt.Errorf("expected float, got %T", value)
		}
	case ClassBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", value)
		}
	case ClassDateTime:
		switch v := value.(type) {
		case time.Time:
		case string:
			if _, err := time.Parse(time.RFC3339, v); err != nil {
				return fmt.Errorf("expected RFC 3339 datetime, got %q", v)
			}
		default:
			return fmt.Errorf("expected datetime, got %T", value)
		}
	case ClassList:
		if _, ok := value.([]any); !ok {
			return fmt.Errorf("expected list, got %T", value)
		}
	case ClassMap:
		if _, ok := value.(map[string]any); !ok {
			return fmt.Errorf("expected map, got %T", value)
		}
	}
	return nil
}
