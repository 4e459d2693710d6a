package function

import (
	"fmt"
	"reflect"
	"regexp"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
)

var celIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var celReserved = map[string]bool{
	"value": true, "values": true, "left": true, "right": true,
	"in": true, "as": true, "break": true, "const": true, "continue": true, "else": true,
	"for": true, "function": true, "if": true, "import": true, "let": true, "loop": true,
	"package": true, "namespace": true, "return": true, "var": true, "void": true,
	"while": true, "true": true, "false": true, "null": true,
}

// celProgram is a compiled expression evaluated against a selection.
type celProgram struct {
	prg       cel.Program
	selection []string
}

func compileCEL(args Args, selection []string, vars ...cel.EnvOption) (*celProgram, error) {
	expr, err := args.String("expression", "")
	if err != nil {
		return nil, err
	}
	if expr == "" {
		return nil, fmt.Errorf("%w: %q is required", ErrInvalidArgs, "expression")
	}

	opts := []cel.EnvOption{cel.CrossTypeNumericComparisons(true)}
	opts = append(opts, vars...)
	for _, name := range selection {
		if celIdent.MatchString(name) && !celReserved[name] {
			opts = append(opts, cel.Variable(name, cel.DynType))
		}
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("cel environment: %w", err)
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w: compiling %q: %v", ErrInvalidArgs, expr, iss.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return &celProgram{prg: prg, selection: copyNames(selection)}, nil
}

func (p *celProgram) bindSelection(activation map[string]any, values Tuple) {
	for i, name := range p.selection {
		if i < len(values) && celIdent.MatchString(name) && !celReserved[name] {
			activation[name] = values[i]
		}
	}
}

func (p *celProgram) eval(activation map[string]any) (ref.Val, error) {
	out, _, err := p.prg.Eval(activation)
	if err != nil {
		return nil, fmt.Errorf("cel: %w", err)
	}
	return out, nil
}

// celTuple converts an expression result into a tuple of width n. A scalar
// result is accepted for single-value selections.
func celTuple(v ref.Val, n int) (Tuple, error) {
	if l, ok := v.(traits.Lister); ok {
		native, err := l.ConvertToNative(reflect.TypeOf([]any{}))
		if err != nil {
			return nil, fmt.Errorf("cel: %w", err)
		}
		out := Tuple(native.([]any))
		if len(out) != n {
			return nil, fmt.Errorf("%w: expression returned %d values, expected %d", ErrArity, len(out), n)
		}
		return out, nil
	}
	if n != 1 {
		return nil, fmt.Errorf("%w: expression must return a list of %d values", ErrArity, n)
	}
	return Tuple{celNative(v)}, nil
}

func celNative(v ref.Val) any {
	if _, ok := v.(types.Null); ok {
		return nil
	}
	return v.Value()
}

func newCELPredicate(args Args, selection []string) (PredicateFunction, error) {
	p, err := compileCEL(args, selection,
		cel.Variable("value", cel.DynType),
		cel.Variable("values", cel.ListType(cel.DynType)),
	)
	if err != nil {
		return nil, err
	}
	return TuplePredicate(func(values Tuple) (bool, error) {
		activation := map[string]any{"values": []any(values)}
		activation["value"] = nil
		if len(values) > 0 {
			activation["value"] = values[0]
		}
		p.bindSelection(activation, values)
		out, err := p.eval(activation)
		if err != nil {
			return false, err
		}
		b, ok := out.Value().(bool)
		if !ok {
			return false, fmt.Errorf("%w: predicate expression returned %T", ErrTypeMismatch, out.Value())
		}
		return b, nil
	}), nil
}

func newCELAggregator(args Args, selection []string) (AggregateFunction, error) {
	p, err := compileCEL(args, nil,
		cel.Variable("left", cel.ListType(cel.DynType)),
		cel.Variable("right", cel.ListType(cel.DynType)),
	)
	if err != nil {
		return nil, err
	}
	return TupleOperator(func(left, right Tuple) (Tuple, error) {
		out, err := p.eval(map[string]any{"left": []any(left), "right": []any(right)})
		if err != nil {
			return nil, err
		}
		return celTuple(out, len(right))
	}), nil
}

func newCELTransform(args Args, selection []string) (TransformFunction, error) {
	p, err := compileCEL(args, selection,
		cel.Variable("value", cel.DynType),
		cel.Variable("values", cel.ListType(cel.DynType)),
	)
	if err != nil {
		return nil, err
	}
	return TransformFunc(func(values Tuple) (Tuple, error) {
		activation := map[string]any{"values": []any(values)}
		activation["value"] = nil
		if len(values) > 0 {
			activation["value"] = values[0]
		}
		p.bindSelection(activation, values)
		out, err := p.eval(activation)
		if err != nil {
			return nil, err
		}
		if l, ok := out.(traits.Lister); ok {
			native, err := l.ConvertToNative(reflect.TypeOf([]any{}))
			if err != nil {
				return nil, fmt.Errorf("cel: %w", err)
			}
			return Tuple(native.([]any)), nil
		}
		return Tuple{celNative(out)}, nil
	}), nil
}
