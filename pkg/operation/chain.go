package operation

import (
	"fmt"
	"reflect"
)

// Chain is an ordered list of operations. It does not execute itself.
type Chain struct {
	Base
	Operations []Operation `json:"operations"`
}

// NewChain wraps ops in a chain without checking types. Use the builder or
// Validate before running it.
func NewChain(ops ...Operation) *Chain {
	return &Chain{Operations: ops}
}

// Clone returns a chain holding copies of the steps. Nested chains are
// cloned too.
func (c *Chain) Clone() *Chain {
	out := &Chain{Base: Base{Opts: cloneOptions(c.Opts)}}
	out.Operations = make([]Operation, len(c.Operations))
	for i, op := range c.Operations {
		if nested, ok := op.(*Chain); ok {
			out.Operations[i] = nested.Clone()
			continue
		}
		out.Operations[i] = Copy(op)
	}
	return out
}

// Copy returns a shallow copy of op with its own option map. Operations that
// are not pointers to structs are returned as they are.
func Copy(op Operation) Operation {
	v := reflect.ValueOf(op)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return op
	}
	c := reflect.New(v.Elem().Type())
	c.Elem().Set(v.Elem())
	out, ok := c.Interface().(Operation)
	if !ok {
		return op
	}
	if f := c.Elem().FieldByName("Opts"); f.IsValid() && f.CanSet() && f.Type() == optionsType {
		f.Set(reflect.ValueOf(cloneOptions(op.Options())))
	}
	return out
}

var optionsType = reflect.TypeOf(map[string]string(nil))

func cloneOptions(opts map[string]string) map[string]string {
	if opts == nil {
		return nil
	}
	out := make(map[string]string, len(opts))
	for k, v := range opts {
		out[k] = v
	}
	return out
}

// Validate checks every step and the type compatibility between steps.
func (c *Chain) Validate() ValidationResult {
	var r ValidationResult
	if len(c.Operations) == 0 {
		r.AddError("operations is required")
		return r
	}
	for i, op := range c.Operations {
		if op == nil {
			r.AddError("operation %d is nil", i)
			continue
		}
		for _, msg := range op.Validate().Errors() {
			r.AddError("operation %d (%s): %s", i, Name(op), msg)
		}
	}
	if r.IsValid() {
		r.Add(c.validateTypes())
	}
	return r
}

func (c *Chain) validateTypes() ValidationResult {
	var r ValidationResult
	var current reflect.Type
	for i, op := range c.Operations {
		if in, ok := op.(Input); ok && i > 0 {
			if !Compatible(current, in.InputType()) {
				r.AddError("operation %d (%s) cannot take %s as input, it requires %s",
					i, Name(op), typeName(current), typeName(in.InputType()))
				return r
			}
		}
		if _, ok := op.(PassThrough); ok && i > 0 {
			continue
		}
		current = nil
		if out, ok := op.(Output); ok {
			current = out.OutputType()
		}
	}
	return r
}

// OutputType returns the type produced by the last step, following
// pass-through steps back to the producer. Nil means no output.
func (c *Chain) OutputType() reflect.Type {
	var current reflect.Type
	for i, op := range c.Operations {
		if _, ok := op.(PassThrough); ok && i > 0 {
			continue
		}
		current = nil
		if out, ok := op.(Output); ok {
			current = out.OutputType()
		}
	}
	return current
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "no output"
	}
	return t.String()
}

// ChainBuilder assembles a chain step by step.
type ChainBuilder struct {
	ops []Operation
}

// NewChainBuilder returns an empty builder.
func NewChainBuilder() *ChainBuilder {
	return &ChainBuilder{}
}

// First sets the first step, replacing any steps added so far.
func (b *ChainBuilder) First(op Operation) *ChainBuilder {
	b.ops = []Operation{op}
	return b
}

// Then appends a step.
func (b *ChainBuilder) Then(op Operation) *ChainBuilder {
	b.ops = append(b.ops, op)
	return b
}

// Build returns the chain, or an error wrapping ErrInvalidOperation when a
// step cannot consume the output of the step before it.
func (b *ChainBuilder) Build() (*Chain, error) {
	if len(b.ops) == 0 {
		return nil, fmt.Errorf("%w: chain has no operations", ErrInvalidOperation)
	}
	c := &Chain{Operations: append([]Operation(nil), b.ops...)}
	for i, op := range c.Operations {
		if op == nil {
			return nil, fmt.Errorf("%w: operation %d is nil", ErrInvalidOperation, i)
		}
	}
	if err := c.validateTypes().Err(); err != nil {
		return nil, err
	}
	return c, nil
}
