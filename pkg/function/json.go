package function

import (
	"encoding/json"
	"fmt"
)

// BindingSpec is the serialised form of one binding.
type BindingSpec struct {
	Selection  []string `json:"selection" yaml:"selection"`
	Function   Spec     `json:"function" yaml:"function"`
	Projection []string `json:"projection,omitempty" yaml:"projection,omitempty"`
}

func describe(fn any, selection []string) (Spec, error) {
	d, ok := fn.(Described)
	if !ok {
		return Spec{}, fmt.Errorf("%w: binding on %v uses %T", ErrNotSerialisable, selection, fn)
	}
	return d.FunctionSpec(), nil
}

// Specs returns the serialised bindings.
func (a *Aggregator) Specs() ([]BindingSpec, error) {
	out := make([]BindingSpec, 0, len(a.Bindings()))
	for _, b := range a.Bindings() {
		s, err := describe(b.Function, b.Selection)
		if err != nil {
			return nil, err
		}
		out = append(out, BindingSpec{Selection: b.Selection, Function: s})
	}
	return out, nil
}

func (a *Aggregator) MarshalJSON() ([]byte, error) {
	specs, err := a.Specs()
	if err != nil {
		return nil, err
	}
	return json.Marshal(specs)
}

// UnmarshalJSON decodes bindings with the default catalog.
func (a *Aggregator) UnmarshalJSON(data []byte) error {
	out, err := Default().DecodeAggregator(data)
	if err != nil {
		return err
	}
	*a = *out
	return nil
}

// Specs returns the serialised bindings.
func (f *Filter) Specs() ([]BindingSpec, error) {
	out := make([]BindingSpec, 0, len(f.Bindings()))
	for _, b := range f.Bindings() {
		s, err := describe(b.Function, b.Selection)
		if err != nil {
			return nil, err
		}
		out = append(out, BindingSpec{Selection: b.Selection, Function: s})
	}
	return out, nil
}

func (f *Filter) MarshalJSON() ([]byte, error) {
	specs, err := f.Specs()
	if err != nil {
		return nil, err
	}
	return json.Marshal(specs)
}

// UnmarshalJSON decodes bindings with the default catalog.
func (f *Filter) UnmarshalJSON(data []byte) error {
	out, err := Default().DecodeFilter(data)
	if err != nil {
		return err
	}
	*f = *out
	return nil
}

// Specs returns the serialised bindings.
func (t *Transformer) Specs() ([]BindingSpec, error) {
	out := make([]BindingSpec, 0, len(t.Bindings()))
	for _, b := range t.Bindings() {
		s, err := describe(b.Function, b.Selection)
		if err != nil {
			return nil, err
		}
		out = append(out, BindingSpec{Selection: b.Selection, Function: s, Projection: b.Projection})
	}
	return out, nil
}

func (t *Transformer) MarshalJSON() ([]byte, error) {
	specs, err := t.Specs()
	if err != nil {
		return nil, err
	}
	return json.Marshal(specs)
}

// UnmarshalJSON decodes bindings with the default catalog.
func (t *Transformer) UnmarshalJSON(data []byte) error {
	out, err := Default().DecodeTransformer(data)
	if err != nil {
		return err
	}
	*t = *out
	return nil
}

// BuildAggregator builds an aggregator from binding specs.
func (c *Catalog) BuildAggregator(specs []BindingSpec) (*Aggregator, error) {
	b := NewAggregatorBuilder()
	for _, s := range specs {
		fn, err := c.Aggregator(s.Function, s.Selection)
		if err != nil {
			return nil, err
		}
		b.Select(s.Selection...).Execute(fn)
	}
	return b.Build()
}

// BuildFilter builds a filter from binding specs.
func (c *Catalog) BuildFilter(specs []BindingSpec) (*Filter, error) {
	b := NewFilterBuilder()
	for _, s := range specs {
		fn, err := c.Predicate(s.Function, s.Selection)
		if err != nil {
			return nil, err
		}
		b.Select(s.Selection...).Execute(fn)
	}
	return b.Build()
}

// BuildTransformer builds a transformer from binding specs.
func (c *Catalog) BuildTransformer(specs []BindingSpec) (*Transformer, error) {
	b := NewTransformerBuilder()
	for _, s := range specs {
		fn, err := c.Transform(s.Function, s.Selection)
		if err != nil {
			return nil, err
		}
		b.Select(s.Selection...).Execute(fn, s.Projection...)
	}
	return b.Build()
}

// DecodeAggregator decodes a JSON list of bindings.
func (c *Catalog) DecodeAggregator(data []byte) (*Aggregator, error) {
	var specs []BindingSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, err
	}
	return c.BuildAggregator(specs)
}

// DecodeFilter decodes a JSON list of bindings.
func (c *Catalog) DecodeFilter(data []byte) (*Filter, error) {
	var specs []BindingSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, err
	}
	return c.BuildFilter(specs)
}

// DecodeTransformer decodes a JSON list of bindings.
func (c *Catalog) DecodeTransformer(data []byte) (*Transformer, error) {
	var specs []BindingSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, err
	}
	return c.BuildTransformer(specs)
}
