package operation

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// ValidationResult collects human-readable validation errors.
type ValidationResult struct {
	errs map[string]struct{}
}

// AddError records one error message.
func (r *ValidationResult) AddError(format string, args ...any) {
	if r.errs == nil {
		r.errs = make(map[string]struct{})
	}
	r.errs[fmt.Sprintf(format, args...)] = struct{}{}
}

// Add merges other into r.
func (r *ValidationResult) Add(other ValidationResult) {
	for msg := range other.errs {
		r.AddError("%s", msg)
	}
}

// IsValid reports whether no errors were recorded.
func (r ValidationResult) IsValid() bool {
	return len(r.errs) == 0
}

// Errors returns the messages, sorted.
func (r ValidationResult) Errors() []string {
	out := make([]string, 0, len(r.errs))
	for msg := range r.errs {
		out = append(out, msg)
	}
	sort.Strings(out)
	return out
}

// Err returns nil when valid, otherwise an error wrapping
// ErrInvalidOperation that lists every message.
func (r ValidationResult) Err() error {
	if r.IsValid() {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidOperation, strings.Join(r.Errors(), "; "))
}

// ValidateRequired checks every field tagged `required:"true"` on op (a
// struct or pointer to struct, embedded structs included) and reports
// "<name> is required" for zero values and empty lists. The name is taken
// from the json tag when present.
func ValidateRequired(op any) ValidationResult {
	var r ValidationResult
	rv := reflect.ValueOf(op)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			r.AddError("operation is required")
			return r
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return r
	}
	checkRequired(rv, &r)
	return r
}

func checkRequired(rv reflect.Value, r *ValidationResult) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		v := rv.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			checkRequired(v, r)
			continue
		}
		if f.Tag.Get("required") != "true" {
			continue
		}
		if isEmpty(v) {
			r.AddError("%s is required", fieldName(f))
		}
	}
}

func isEmpty(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return v.Len() == 0
	}
	return v.IsZero()
}

func fieldName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if name, _, _ := strings.Cut(tag, ","); name != "" && name != "-" {
		return name
	}
	return f.Name
}
