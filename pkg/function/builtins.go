package function

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gadgetlabs/Gaffer/pkg/convert"
	"github.com/gadgetlabs/Gaffer/pkg/element"
)

// Sum adds numeric values. Integers stay integers.
func Sum() BinaryOperator {
	return func(a, b any) (any, error) {
		v, ok := convert.Add(a, b)
		if !ok {
			return nil, fmt.Errorf("%w: sum of %T and %T", ErrTypeMismatch, a, b)
		}
		return v, nil
	}
}

// Max keeps the larger value.
func Max() BinaryOperator {
	return func(a, b any) (any, error) {
		c, ok := convert.Compare(a, b)
		if !ok {
			return nil, fmt.Errorf("%w: max of %T and %T", ErrTypeMismatch, a, b)
		}
		if c > 0 {
			return a, nil
		}
		return b, nil
	}
}

// Min keeps the smaller value.
func Min() BinaryOperator {
	return func(a, b any) (any, error) {
		c, ok := convert.Compare(a, b)
		if !ok {
			return nil, fmt.Errorf("%w: min of %T and %T", ErrTypeMismatch, a, b)
		}
		if c < 0 {
			return a, nil
		}
		return b, nil
	}
}

// First keeps the established value (the right-hand state).
func First() BinaryOperator {
	return func(_, b any) (any, error) { return b, nil }
}

// Last keeps the incoming value (the left-hand operand).
func Last() BinaryOperator {
	return func(a, _ any) (any, error) { return a, nil }
}

// Concat joins strings, established value first.
func Concat(separator string) BinaryOperator {
	return Reduce(func(a, b string) string { return b + separator + a })
}

// And is logical conjunction.
func And() BinaryOperator {
	return Reduce(func(a, b bool) bool { return a && b })
}

// Or is logical disjunction.
func Or() BinaryOperator {
	return Reduce(func(a, b bool) bool { return a || b })
}

// Elementwise applies a single-value operator to each position of a
// selection of any width.
func Elementwise(op BinaryOperator) TupleOperator {
	return func(left, right Tuple) (Tuple, error) {
		if len(left) != len(right) {
			return nil, fmt.Errorf("%w: %d and %d values", ErrArity, len(left), len(right))
		}
		out := make(Tuple, len(left))
		for i := range left {
			v, err := op.Aggregate(Tuple{left[i]}, Tuple{right[i]})
			if err != nil {
				return nil, err
			}
			out[i] = v[0]
		}
		return out, nil
	}
}

// Exists passes non-nil values.
func Exists() Predicate {
	return func(v any) (bool, error) { return v != nil, nil }
}

// IsEqual passes values equal to want.
func IsEqual(want any) Predicate {
	return func(v any) (bool, error) { return element.ValuesEqual(v, want), nil }
}

// IsMoreThan passes values greater than (or equal to) bound. Absent or
// incomparable values fail.
func IsMoreThan(bound any, orEqualTo bool) Predicate {
	return func(v any) (bool, error) {
		if v == nil {
			return false, nil
		}
		c, ok := convert.Compare(v, bound)
		if !ok {
			return false, nil
		}
		return c > 0 || (orEqualTo && c == 0), nil
	}
}

// IsLessThan passes values less than (or equal to) bound.
func IsLessThan(bound any, orEqualTo bool) Predicate {
	return func(v any) (bool, error) {
		if v == nil {
			return false, nil
		}
		c, ok := convert.Compare(v, bound)
		if !ok {
			return false, nil
		}
		return c < 0 || (orEqualTo && c == 0), nil
	}
}

// IsIn passes values equal to one of allowed.
func IsIn(allowed ...any) Predicate {
	return func(v any) (bool, error) {
		for _, a := range allowed {
			if element.ValuesEqual(v, a) {
				return true, nil
			}
		}
		return false, nil
	}
}

// Regex passes strings matching re.
func Regex(re *regexp.Regexp) Predicate {
	return func(v any) (bool, error) {
		s, ok := v.(string)
		if !ok {
			return false, nil
		}
		return re.MatchString(s), nil
	}
}

// IsA passes non-nil values of the named type class.
func IsA(class string) (Predicate, error) {
	if _, ok := convert.CanonicalClass(class); !ok {
		return nil, fmt.Errorf("%w: %v: %s", ErrInvalidArgs, convert.ErrUnknownClass, class)
	}
	return func(v any) (bool, error) { return v != nil && convert.CheckClass(v, class) == nil, nil }, nil
}

// Not negates p.
func Not(p PredicateFunction) TuplePredicate {
	return func(values Tuple) (bool, error) {
		ok, err := p.Test(values)
		return !ok, err
	}
}

func registerBuiltins(c *Catalog) {
	single := func(op func(args Args) (BinaryOperator, error)) AggregatorFactory {
		return func(args Args, selection []string) (AggregateFunction, error) {
			fn, err := op(args)
			if err != nil {
				return nil, err
			}
			if len(selection) <= 1 {
				return fn, nil
			}
			return Elementwise(fn), nil
		}
	}
	fixed := func(op BinaryOperator) func(Args) (BinaryOperator, error) {
		return func(Args) (BinaryOperator, error) { return op, nil }
	}

	c.RegisterAggregator("sum", single(fixed(Sum())))
	c.RegisterAggregator("max", single(fixed(Max())))
	c.RegisterAggregator("min", single(fixed(Min())))
	c.RegisterAggregator("first", single(fixed(First())))
	c.RegisterAggregator("last", single(fixed(Last())))
	c.RegisterAggregator("and", single(fixed(And())))
	c.RegisterAggregator("or", single(fixed(Or())))
	c.RegisterAggregator("concat", single(func(args Args) (BinaryOperator, error) {
		sep, err := args.String("separator", ",")
		if err != nil {
			return nil, err
		}
		return Concat(sep), nil
	}))
	c.RegisterAggregator("cel", newCELAggregator)

	unary := func(build func(args Args) (Predicate, error)) PredicateFactory {
		return func(_ *Catalog, args Args, selection []string) (PredicateFunction, error) {
			if len(selection) > 1 {
				return nil, fmt.Errorf("%w: expects a single property, got %d", ErrArity, len(selection))
			}
			return build(args)
		}
	}

	c.RegisterPredicate("exists", unary(func(Args) (Predicate, error) { return Exists(), nil }))
	c.RegisterPredicate("isEqual", unary(func(args Args) (Predicate, error) {
		v, ok := args.Value("value")
		if !ok {
			return nil, fmt.Errorf("%w: %q is required", ErrInvalidArgs, "value")
		}
		return IsEqual(v), nil
	}))
	c.RegisterPredicate("isMoreThan", unary(func(args Args) (Predicate, error) {
		v, ok := args.Value("value")
		if !ok {
			return nil, fmt.Errorf("%w: %q is required", ErrInvalidArgs, "value")
		}
		orEqual, err := args.Bool("orEqualTo")
		if err != nil {
			return nil, err
		}
		return IsMoreThan(v, orEqual), nil
	}))
	c.RegisterPredicate("isLessThan", unary(func(args Args) (Predicate, error) {
		v, ok := args.Value("value")
		if !ok {
			return nil, fmt.Errorf("%w: %q is required", ErrInvalidArgs, "value")
		}
		orEqual, err := args.Bool("orEqualTo")
		if err != nil {
			return nil, err
		}
		return IsLessThan(v, orEqual), nil
	}))
	c.RegisterPredicate("isIn", unary(func(args Args) (Predicate, error) {
		values, err := args.List("values")
		if err != nil {
			return nil, err
		}
		return IsIn(values...), nil
	}))
	c.RegisterPredicate("regex", unary(func(args Args) (Predicate, error) {
		pattern, err := args.String("pattern", "")
		if err != nil {
			return nil, err
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
		}
		return Regex(re), nil
	}))
	c.RegisterPredicate("isA", unary(func(args Args) (Predicate, error) {
		class, err := args.String("type", "")
		if err != nil {
			return nil, err
		}
		return IsA(class)
	}))
	c.RegisterPredicate("not", func(cat *Catalog, args Args, selection []string) (PredicateFunction, error) {
		inner, err := args.Spec("predicate")
		if err != nil {
			return nil, err
		}
		p, err := cat.Predicate(inner, selection)
		if err != nil {
			return nil, err
		}
		return Not(p), nil
	})
	c.RegisterPredicate("cel", func(_ *Catalog, args Args, selection []string) (PredicateFunction, error) {
		return newCELPredicate(args, selection)
	})

	c.RegisterTransform("concat", func(args Args, selection []string) (TransformFunction, error) {
		sep, err := args.String("separator", ",")
		if err != nil {
			return nil, err
		}
		return TransformFunc(func(values Tuple) (Tuple, error) {
			parts := make([]string, 0, len(values))
			for _, v := range values {
				if v != nil {
					parts = append(parts, fmt.Sprint(v))
				}
			}
			return Tuple{strings.Join(parts, sep)}, nil
		}), nil
	})
	c.RegisterTransform("cel", newCELTransform)
}
