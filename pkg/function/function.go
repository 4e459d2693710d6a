// Package function is the selection + function composition engine.
//
// Aggregators, filters and transformers are ordered lists of bindings. Each
// binding selects one or more property names and binds them to a function:
//
//	agg, err := function.NewAggregatorBuilder().
//		Select("count").Execute(function.Sum()).
//		Select("min", "max").Execute(rangeFn).
//		Build()
//
// Aggregation is a left fold where the right-hand operand is the running
// state: Aggregate(next, state) writes its results into state and returns
// it. The engine does not check that a function is commutative or
// associative. Backends that merge duplicates out of order rely on the
// schema author supplying functions that are.
package function

import (
	"errors"
	"fmt"

	"github.com/gadgetlabs/Gaffer/pkg/element"
)

var (
	// ErrEmptySelection is returned by Build when a function was bound to
	// an empty selection.
	ErrEmptySelection = errors.New("function bound to an empty selection")

	// ErrUndeclaredProperty is returned when a selection names a property
	// the group does not declare.
	ErrUndeclaredProperty = errors.New("selection references an undeclared property")

	// ErrNotSerialisable is returned when encoding a binding whose function
	// was not built from the catalog.
	ErrNotSerialisable = errors.New("function is not serialisable")

	// ErrUnknownFunction is returned by the catalog for unregistered names.
	ErrUnknownFunction = errors.New("unknown function")

	// ErrArity is returned when a function receives or produces a tuple of
	// the wrong length.
	ErrArity = errors.New("wrong number of values")

	// ErrTypeMismatch is returned when a function receives a value of a
	// type it cannot handle.
	ErrTypeMismatch = errors.New("value type mismatch")

	// ErrInvalidArgs is returned by the catalog for bad function arguments.
	ErrInvalidArgs = errors.New("invalid function arguments")

	// ErrGroupMismatch is returned when elements of different groups are
	// aggregated together.
	ErrGroupMismatch = errors.New("elements belong to different groups")
)

// Tuple holds the selected values of one element, in selection order.
// Absent properties are nil.
type Tuple []any

// AggregateFunction merges the selected values of two elements. The
// returned tuple replaces the right-hand values positionally.
type AggregateFunction interface {
	Aggregate(left, right Tuple) (Tuple, error)
}

// PredicateFunction tests the selected values of one element.
type PredicateFunction interface {
	Test(values Tuple) (bool, error)
}

// TransformFunction maps the selected values of one element to the values
// written under the projection.
type TransformFunction interface {
	Transform(values Tuple) (Tuple, error)
}

// Described is implemented by functions that can be encoded as a Spec.
type Described interface {
	FunctionSpec() Spec
}

// BinaryOperator reduces two instances of a single property. A nil operand
// means the property is absent and the other operand is returned untouched.
type BinaryOperator func(a, b any) (any, error)

func (f BinaryOperator) Aggregate(left, right Tuple) (Tuple, error) {
	if len(left) != 1 || len(right) != 1 {
		return nil, fmt.Errorf("%w: binary operator expects 1 value per side, got %d and %d", ErrArity, len(left), len(right))
	}
	a, b := left[0], right[0]
	if a == nil {
		return Tuple{b}, nil
	}
	if b == nil {
		return Tuple{a}, nil
	}
	v, err := f(a, b)
	if err != nil {
		return nil, err
	}
	return Tuple{v}, nil
}

// TupleOperator merges multi-property selections.
type TupleOperator func(left, right Tuple) (Tuple, error)

func (f TupleOperator) Aggregate(left, right Tuple) (Tuple, error) {
	return f(left, right)
}

// Predicate tests a single selected value.
type Predicate func(v any) (bool, error)

func (f Predicate) Test(values Tuple) (bool, error) {
	if len(values) != 1 {
		return false, fmt.Errorf("%w: predicate expects 1 value, got %d", ErrArity, len(values))
	}
	return f(values[0])
}

// TuplePredicate tests a multi-property selection.
type TuplePredicate func(values Tuple) (bool, error)

func (f TuplePredicate) Test(values Tuple) (bool, error) {
	return f(values)
}

// TransformFunc adapts a plain function to TransformFunction.
type TransformFunc func(values Tuple) (Tuple, error)

func (f TransformFunc) Transform(values Tuple) (Tuple, error) {
	return f(values)
}

// Reduce lifts a typed reducer into a BinaryOperator. Operands of any other
// type fail with ErrTypeMismatch.
func Reduce[T any](fn func(a, b T) T) BinaryOperator {
	return func(a, b any) (any, error) {
		x, ok := a.(T)
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrTypeMismatch, a)
		}
		y, ok := b.(T)
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrTypeMismatch, b)
		}
		return fn(x, y), nil
	}
}

func extract(p *element.Properties, selection []string) Tuple {
	t := make(Tuple, len(selection))
	for i, name := range selection {
		t[i] = p.Get(name)
	}
	return t
}

func allNil(t Tuple) bool {
	for _, v := range t {
		if v != nil {
			return false
		}
	}
	return true
}

func validateSelection(selection []string, declared []string) error {
	set := make(map[string]struct{}, len(declared))
	for _, d := range declared {
		set[d] = struct{}{}
	}
	for _, name := range selection {
		if _, ok := set[name]; !ok {
			return fmt.Errorf("%w: %q", ErrUndeclaredProperty, name)
		}
	}
	return nil
}

func copyNames(names []string) []string {
	out := make([]string, len(names))
	copy(out, names)
	return out
}
