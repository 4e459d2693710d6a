package function

import (
	"fmt"

	"github.com/gadgetlabs/Gaffer/pkg/element"
)

// AggregateBinding binds a selection to an aggregate function.
type AggregateBinding struct {
	Selection []string
	Function  AggregateFunction
}

// Aggregator merges two elements of the same group.
type Aggregator struct {
	bindings []AggregateBinding
}

// AggregatorBuilder assembles an Aggregator binding by binding.
type AggregatorBuilder struct {
	bindings []AggregateBinding
	pending  []string
	err      error
}

// NewAggregatorBuilder returns an empty builder.
func NewAggregatorBuilder() *AggregatorBuilder {
	return &AggregatorBuilder{}
}

// Select sets the property names for the next Execute.
func (b *AggregatorBuilder) Select(names ...string) *AggregatorBuilder {
	b.pending = copyNames(names)
	return b
}

// Execute binds fn to the current selection.
func (b *AggregatorBuilder) Execute(fn AggregateFunction) *AggregatorBuilder {
	if len(b.pending) == 0 && b.err == nil {
		b.err = ErrEmptySelection
	}
	b.bindings = append(b.bindings, AggregateBinding{Selection: b.pending, Function: fn})
	b.pending = nil
	return b
}

// Build returns the aggregator or the first construction error.
func (b *AggregatorBuilder) Build() (*Aggregator, error) {
	if b.err != nil {
		return nil, b.err
	}
	out := make([]AggregateBinding, len(b.bindings))
	copy(out, b.bindings)
	return &Aggregator{bindings: out}, nil
}

// NewAggregator builds an aggregator from existing bindings.
func NewAggregator(bindings ...AggregateBinding) (*Aggregator, error) {
	b := NewAggregatorBuilder()
	for _, binding := range bindings {
		b.Select(binding.Selection...).Execute(binding.Function)
	}
	return b.Build()
}

// Bindings returns a copy of the bindings in order.
func (a *Aggregator) Bindings() []AggregateBinding {
	if a == nil {
		return nil
	}
	out := make([]AggregateBinding, len(a.bindings))
	copy(out, a.bindings)
	return out
}

// IsEmpty reports whether the aggregator has no bindings.
func (a *Aggregator) IsEmpty() bool {
	return a == nil || len(a.bindings) == 0
}

// Selections returns every selected property name in binding order.
func (a *Aggregator) Selections() []string {
	var out []string
	for _, b := range a.Bindings() {
		out = append(out, b.Selection...)
	}
	return out
}

// ValidateSelection fails with ErrUndeclaredProperty when any selection
// names a property outside declared.
func (a *Aggregator) ValidateSelection(declared []string) error {
	return validateSelection(a.Selections(), declared)
}

// Aggregate merges left into right and returns right. With no bindings
// right is returned as is. Both operands must belong to the same group.
func (a *Aggregator) Aggregate(left, right element.Element) (element.Element, error) {
	if left == nil {
		return right, nil
	}
	if right == nil {
		if a.IsEmpty() {
			return right, nil
		}
		return left, nil
	}
	if left.Group() != right.Group() {
		return nil, fmt.Errorf("%w: %q into %q", ErrGroupMismatch, left.Group(), right.Group())
	}
	if a.IsEmpty() {
		return right, nil
	}
	if _, err := a.AggregateProperties(left.Properties(), right.Properties()); err != nil {
		return nil, fmt.Errorf("aggregating group %q: %w", right.Group(), err)
	}
	return right, nil
}

// AggregateProperties merges left into right and returns right.
//
// Selected values are replaced by the function result. Unbound properties
// only present on the left are copied into right; right wins on conflict.
func (a *Aggregator) AggregateProperties(left, right *element.Properties) (*element.Properties, error) {
	if a.IsEmpty() {
		return right, nil
	}
	if right == nil {
		return left, nil
	}

	bound := make(map[string]struct{})
	for _, b := range a.bindings {
		for _, name := range b.Selection {
			bound[name] = struct{}{}
		}
		lt := extract(left, b.Selection)
		rt := extract(right, b.Selection)
		if allNil(lt) && allNil(rt) {
			continue
		}
		out, err := b.Function.Aggregate(lt, rt)
		if err != nil {
			return nil, fmt.Errorf("selection %v: %w", b.Selection, err)
		}
		if len(out) != len(b.Selection) {
			return nil, fmt.Errorf("selection %v: %w: function returned %d values", b.Selection, ErrArity, len(out))
		}
		for i, name := range b.Selection {
			if out[i] == nil && !right.Has(name) {
				continue
			}
			right.Put(name, out[i])
		}
	}

	left.Range(func(name string, value any) bool {
		if _, ok := bound[name]; ok {
			return true
		}
		if !right.Has(name) {
			right.Put(name, value)
		}
		return true
	})
	return right, nil
}
