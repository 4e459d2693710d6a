package element

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/gadgetlabs/Gaffer/pkg/convert"
)

// Properties is an insertion-ordered map from property name to a
// dynamically typed value.
//
// The zero value and a nil *Properties are both valid empty property sets for
// reads. Properties are NOT safe for concurrent mutation; elements are owned by
// one goroutine at a time while they flow through a handler.
type Properties struct {
	keys   []string
	values map[string]any
}

// NewProperties creates a property set from alternating name/value pairs.
//
// Example:
//
//	props := element.NewProperties("count", 3, "label", "a")
func NewProperties(pairs ...any) *Properties {
	p := &Properties{}
	for i := 0; i+1 < len(pairs); i += 2 {
		name, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("element: property name must be a string, got %T", pairs[i]))
		}
		p.Put(name, pairs[i+1])
	}
	return p
}

// Get returns the value stored under name, or nil.
func (p *Properties) Get(name string) any {
	if p == nil || p.values == nil {
		return nil
	}
	return p.values[name]
}

// Lookup returns the value stored under name and whether it is present.
func (p *Properties) Lookup(name string) (any, bool) {
	if p == nil || p.values == nil {
		return nil, false
	}
	v, ok := p.values[name]
	return v, ok
}

// Has reports whether name is present.
func (p *Properties) Has(name string) bool {
	_, ok := p.Lookup(name)
	return ok
}

// Put stores value under name. An existing name keeps its position.
func (p *Properties) Put(name string, value any) {
	if p.values == nil {
		p.values = make(map[string]any)
	}
	if _, exists := p.values[name]; !exists {
		p.keys = append(p.keys, name)
	}
	p.values[name] = value
}

// Remove deletes name if present.
func (p *Properties) Remove(name string) {
	if p == nil || p.values == nil {
		return
	}
	if _, exists := p.values[name]; !exists {
		return
	}
	delete(p.values, name)
	for i, k := range p.keys {
		if k == name {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
}

// Keep removes every property whose name is not listed.
func (p *Properties) Keep(names ...string) {
	if p == nil {
		return
	}
	keep := make(map[string]struct{}, len(names))
	for _, n := range names {
		keep[n] = struct{}{}
	}
	for _, k := range p.Keys() {
		if _, ok := keep[k]; !ok {
			p.Remove(k)
		}
	}
}

// Keys returns the property names in insertion order.
func (p *Properties) Keys() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Len returns the number of properties.
func (p *Properties) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// IsEmpty reports whether there are no properties.
func (p *Properties) IsEmpty() bool {
	return p.Len() == 0
}

// Range calls fn for each property in insertion order until fn returns false.
func (p *Properties) Range(fn func(name string, value any) bool) {
	if p == nil {
		return
	}
	for _, k := range p.keys {
		if !fn(k, p.values[k]) {
			return
		}
	}
}

// Clone returns an independent copy of the container. Values are copied by
// assignment.
func (p *Properties) Clone() *Properties {
	out := &Properties{}
	if p == nil {
		return out
	}
	out.keys = make([]string, len(p.keys))
	copy(out.keys, p.keys)
	out.values = make(map[string]any, len(p.values))
	for k, v := range p.values {
		out.values[k] = v
	}
	return out
}

// Equal compares two property sets structurally. Order is not significant
// and numeric values compare by value, so int(3) equals int64(3).
func (p *Properties) Equal(other *Properties) bool {
	if p.Len() != other.Len() {
		return false
	}
	equal := true
	p.Range(func(name string, value any) bool {
		ov, ok := other.Lookup(name)
		if !ok || !ValuesEqual(value, ov) {
			equal = false
		}
		return equal
	})
	return equal
}

// String renders the properties for logs and test failures.
func (p *Properties) String() string {
	var buf bytes.Buffer
	buf.WriteByte('{')
	i := 0
	p.Range(func(name string, value any) bool {
		if i > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(&buf, "%s=%v", name, value)
		i++
		return true
	})
	buf.WriteByte('}')
	return buf.String()
}

// MarshalJSON encodes the properties as a JSON object in insertion order.
func (p *Properties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	var err error
	i := 0
	p.Range(func(name string, value any) bool {
		if i > 0 {
			buf.WriteByte(',')
		}
		i++
		var kb, vb []byte
		if kb, err = json.Marshal(name); err != nil {
			return false
		}
		if vb, err = json.Marshal(value); err != nil {
			err = fmt.Errorf("property %q: %w", name, err)
			return false
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
		return true
	})
	if err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping the document order. Integer
// numbers decode to int64 and other numbers to float64.
func (p *Properties) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*p = Properties{}
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("properties: expected object, got %v", tok)
	}

	out := Properties{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("properties: expected name, got %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("property %q: %w", name, err)
		}
		out.Put(name, normalizeJSON(value))
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*p = out
	return nil
}

// ValuesEqual compares two property values. Numbers are compared by value
// across Go numeric kinds; everything else uses deep equality.
func ValuesEqual(a, b any) bool {
	if convert.IsNumeric(a) && convert.IsNumeric(b) {
		c, ok := convert.Compare(a, b)
		return ok && c == 0
	}
	return reflect.DeepEqual(a, b)
}

// normalizeJSON converts the json.Number values produced by a UseNumber
// decoder, recursing into lists and objects.
func normalizeJSON(v any) any {
	switch val := v.(type) {
	case json.Number:
		return convert.Normalize(val)
	case []any:
		for i := range val {
			val[i] = normalizeJSON(val[i])
		}
		return val
	case map[string]any:
		for k := range val {
			val[k] = normalizeJSON(val[k])
		}
		return val
	}
	return v
}
