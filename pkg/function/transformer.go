package function

import (
	"fmt"

	"github.com/gadgetlabs/Gaffer/pkg/element"
)

// TransformBinding reads Selection, applies Function and writes the result
// under Projection. An empty projection writes back to the selection.
type TransformBinding struct {
	Selection  []string
	Function   TransformFunction
	Projection []string
}

// Transformer rewrites element properties in place.
type Transformer struct {
	bindings []TransformBinding
}

// TransformerBuilder assembles a Transformer.
type TransformerBuilder struct {
	bindings []TransformBinding
	pending  []string
	err      error
}

// NewTransformerBuilder returns an empty builder.
func NewTransformerBuilder() *TransformerBuilder {
	return &TransformerBuilder{}
}

// Select sets the property names for the next Execute.
func (b *TransformerBuilder) Select(names ...string) *TransformerBuilder {
	b.pending = copyNames(names)
	return b
}

// Execute binds fn to the current selection and writes to project. With no
// projection names the selection is overwritten.
func (b *TransformerBuilder) Execute(fn TransformFunction, project ...string) *TransformerBuilder {
	if len(b.pending) == 0 && b.err == nil {
		b.err = ErrEmptySelection
	}
	projection := copyNames(project)
	if len(projection) == 0 {
		projection = b.pending
	}
	b.bindings = append(b.bindings, TransformBinding{Selection: b.pending, Function: fn, Projection: projection})
	b.pending = nil
	return b
}

// Build returns the transformer or the first construction error.
func (b *TransformerBuilder) Build() (*Transformer, error) {
	if b.err != nil {
		return nil, b.err
	}
	out := make([]TransformBinding, len(b.bindings))
	copy(out, b.bindings)
	return &Transformer{bindings: out}, nil
}

// Bindings returns a copy of the bindings in order.
func (t *Transformer) Bindings() []TransformBinding {
	if t == nil {
		return nil
	}
	out := make([]TransformBinding, len(t.bindings))
	copy(out, t.bindings)
	return out
}

// IsEmpty reports whether the transformer has no bindings.
func (t *Transformer) IsEmpty() bool {
	return t == nil || len(t.bindings) == 0
}

// Apply transforms el in place and returns it.
func (t *Transformer) Apply(el element.Element) (element.Element, error) {
	if t.IsEmpty() {
		return el, nil
	}
	props := el.Properties()
	for _, b := range t.bindings {
		out, err := b.Function.Transform(extract(props, b.Selection))
		if err != nil {
			return nil, fmt.Errorf("transforming %v: %w", b.Selection, err)
		}
		if len(out) != len(b.Projection) {
			return nil, fmt.Errorf("transforming %v: %w: expected %d values, got %d", b.Selection, ErrArity, len(b.Projection), len(out))
		}
		for i, name := range b.Projection {
			props.Put(name, out[i])
		}
	}
	return el, nil
}
