package function

import (
	"fmt"

	"github.com/gadgetlabs/Gaffer/pkg/element"
)

// PredicateBinding binds a selection to a predicate.
type PredicateBinding struct {
	Selection []string
	Function  PredicateFunction
}

// Filter tests an element against every binding; all must pass.
type Filter struct {
	bindings []PredicateBinding
}

// FilterBuilder assembles a Filter.
type FilterBuilder struct {
	bindings []PredicateBinding
	pending  []string
	err      error
}

// NewFilterBuilder returns an empty builder.
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{}
}

// Select sets the property names for the next Execute.
func (b *FilterBuilder) Select(names ...string) *FilterBuilder {
	b.pending = copyNames(names)
	return b
}

// Execute binds fn to the current selection.
func (b *FilterBuilder) Execute(fn PredicateFunction) *FilterBuilder {
	if len(b.pending) == 0 && b.err == nil {
		b.err = ErrEmptySelection
	}
	b.bindings = append(b.bindings, PredicateBinding{Selection: b.pending, Function: fn})
	b.pending = nil
	return b
}

// Build returns the filter or the first construction error.
func (b *FilterBuilder) Build() (*Filter, error) {
	if b.err != nil {
		return nil, b.err
	}
	out := make([]PredicateBinding, len(b.bindings))
	copy(out, b.bindings)
	return &Filter{bindings: out}, nil
}

// NewFilter builds a filter from existing bindings.
func NewFilter(bindings ...PredicateBinding) (*Filter, error) {
	b := NewFilterBuilder()
	for _, binding := range bindings {
		b.Select(binding.Selection...).Execute(binding.Function)
	}
	return b.Build()
}

// Bindings returns a copy of the bindings in order.
func (f *Filter) Bindings() []PredicateBinding {
	if f == nil {
		return nil
	}
	out := make([]PredicateBinding, len(f.bindings))
	copy(out, f.bindings)
	return out
}

// IsEmpty reports whether the filter has no bindings.
func (f *Filter) IsEmpty() bool {
	return f == nil || len(f.bindings) == 0
}

// Selections returns every selected property name in binding order.
func (f *Filter) Selections() []string {
	var out []string
	for _, b := range f.Bindings() {
		out = append(out, b.Selection...)
	}
	return out
}

// ValidateSelection fails with ErrUndeclaredProperty when any selection
// names a property outside declared.
func (f *Filter) ValidateSelection(declared []string) error {
	return validateSelection(f.Selections(), declared)
}

// Test reports whether el passes every binding. A nil or empty filter
// passes everything.
func (f *Filter) Test(el element.Element) (bool, error) {
	if f.IsEmpty() {
		return true, nil
	}
	return f.TestProperties(el.Properties())
}

// TestProperties is Test over a bare property set.
func (f *Filter) TestProperties(p *element.Properties) (bool, error) {
	if f.IsEmpty() {
		return true, nil
	}
	for _, b := range f.bindings {
		ok, err := b.Function.Test(extract(p, b.Selection))
		if err != nil {
			return false, fmt.Errorf("selection %v: %w", b.Selection, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// And returns a filter holding the bindings of f followed by other.
func (f *Filter) And(other *Filter) *Filter {
	out := &Filter{}
	out.bindings = append(out.bindings, f.Bindings()...)
	out.bindings = append(out.bindings, other.Bindings()...)
	return out
}
