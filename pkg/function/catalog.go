package function

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/gadgetlabs/Gaffer/pkg/element"
)

// Spec names a catalog function and its arguments. It is the serialised
// form of every function built from a Catalog.
type Spec struct {
	Function string `json:"function" yaml:"function"`
	Args     Args   `json:"args,omitempty" yaml:"args,omitempty"`
}

// UnmarshalJSON keeps integer arguments as int64.
func (s *Spec) UnmarshalJSON(data []byte) error {
	var raw struct {
		Function string          `json:"function"`
		Args     json.RawMessage `json:"args"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Function = raw.Function
	s.Args = nil
	if len(raw.Args) > 0 && string(raw.Args) != "null" {
		v, err := element.DecodeValue(raw.Args)
		if err != nil {
			return err
		}
		m, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: args must be an object", ErrInvalidArgs)
		}
		s.Args = m
	}
	return nil
}

// Args are the named arguments of a function Spec.
type Args map[string]any

// Value returns the raw argument.
func (a Args) Value(name string) (any, bool) {
	v, ok := a[name]
	return v, ok
}

// String returns a string argument or def when absent.
func (a Args) String(name, def string) (string, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %q must be a string, got %T", ErrInvalidArgs, name, v)
	}
	return s, nil
}

// Bool returns a boolean argument or false when absent.
func (a Args) Bool(name string) (bool, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %q must be a boolean, got %T", ErrInvalidArgs, name, v)
	}
	return b, nil
}

// List returns a list argument.
func (a Args) List(name string) ([]any, error) {
	v, ok := a[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q is required", ErrInvalidArgs, name)
	}
	l, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %q must be a list, got %T", ErrInvalidArgs, name, v)
	}
	return l, nil
}

// Spec decodes a nested function spec argument.
func (a Args) Spec(name string) (Spec, error) {
	v, ok := a[name]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q is required", ErrInvalidArgs, name)
	}
	if s, ok := v.(Spec); ok {
		return s, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Spec{}, fmt.Errorf("%w: %q: %v", ErrInvalidArgs, name, err)
	}
	var s Spec
	if err := json.Unmarshal(data, &s); err != nil {
		return Spec{}, fmt.Errorf("%w: %q: %v", ErrInvalidArgs, name, err)
	}
	return s, nil
}

// AggregatorFactory builds an aggregate function for a selection.
type AggregatorFactory func(args Args, selection []string) (AggregateFunction, error)

// PredicateFactory builds a predicate for a selection.
type PredicateFactory func(c *Catalog, args Args, selection []string) (PredicateFunction, error)

// TransformFactory builds a transform function for a selection.
type TransformFactory func(args Args, selection []string) (TransformFunction, error)

// Catalog maps function names to factories. Functions built from a catalog
// remember their Spec so bindings can be encoded.
type Catalog struct {
	mu          sync.RWMutex
	aggregators map[string]AggregatorFactory
	predicates  map[string]PredicateFactory
	transforms  map[string]TransformFactory
}

// NewCatalog returns a catalog holding the built-in functions.
func NewCatalog() *Catalog {
	c := &Catalog{
		aggregators: make(map[string]AggregatorFactory),
		predicates:  make(map[string]PredicateFactory),
		transforms:  make(map[string]TransformFactory),
	}
	registerBuiltins(c)
	return c
}

var defaultCatalog = NewCatalog()

// Default returns the process-wide catalog used when none is supplied.
func Default() *Catalog {
	return defaultCatalog
}

// RegisterAggregator adds or replaces an aggregate function.
func (c *Catalog) RegisterAggregator(name string, f AggregatorFactory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aggregators[name] = f
}

// RegisterPredicate adds or replaces a predicate.
func (c *Catalog) RegisterPredicate(name string, f PredicateFactory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.predicates[name] = f
}

// RegisterTransform adds or replaces a transform function.
func (c *Catalog) RegisterTransform(name string, f TransformFactory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transforms[name] = f
}

// Aggregator builds the aggregate function described by spec.
func (c *Catalog) Aggregator(spec Spec, selection []string) (AggregateFunction, error) {
	c.mu.RLock()
	f, ok := c.aggregators[spec.Function]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: aggregator %q", ErrUnknownFunction, spec.Function)
	}
	fn, err := f(spec.Args, selection)
	if err != nil {
		return nil, fmt.Errorf("aggregator %q: %w", spec.Function, err)
	}
	return describedAggregate{fn: fn, spec: spec}, nil
}

// Predicate builds the predicate described by spec.
func (c *Catalog) Predicate(spec Spec, selection []string) (PredicateFunction, error) {
	c.mu.RLock()
	f, ok := c.predicates[spec.Function]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: predicate %q", ErrUnknownFunction, spec.Function)
	}
	fn, err := f(c, spec.Args, selection)
	if err != nil {
		return nil, fmt.Errorf("predicate %q: %w", spec.Function, err)
	}
	return describedPredicate{fn: fn, spec: spec}, nil
}

// Transform builds the transform function described by spec.
func (c *Catalog) Transform(spec Spec, selection []string) (TransformFunction, error) {
	c.mu.RLock()
	f, ok := c.transforms[spec.Function]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: transform %q", ErrUnknownFunction, spec.Function)
	}
	fn, err := f(spec.Args, selection)
	if err != nil {
		return nil, fmt.Errorf("transform %q: %w", spec.Function, err)
	}
	return describedTransform{fn: fn, spec: spec}, nil
}

// Names lists the registered names of each kind, sorted.
func (c *Catalog) Names() (aggregators, predicates, transforms []string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for n := range c.aggregators {
		aggregators = append(aggregators, n)
	}
	for n := range c.predicates {
		predicates = append(predicates, n)
	}
	for n := range c.transforms {
		transforms = append(transforms, n)
	}
	sort.Strings(aggregators)
	sort.Strings(predicates)
	sort.Strings(transforms)
	return aggregators, predicates, transforms
}

type describedAggregate struct {
	fn   AggregateFunction
	spec Spec
}

func (d describedAggregate) Aggregate(left, right Tuple) (Tuple, error) {
	return d.fn.Aggregate(left, right)
}
func (d describedAggregate) FunctionSpec() Spec { return d.spec }

type describedPredicate struct {
	fn   PredicateFunction
	spec Spec
}

func (d describedPredicate) Test(values Tuple) (bool, error) { return d.fn.Test(values) }
func (d describedPredicate) FunctionSpec() Spec              { return d.spec }

type describedTransform struct {
	fn   TransformFunction
	spec Spec
}

func (d describedTransform) Transform(values Tuple) (Tuple, error) { return d.fn.Transform(values) }
func (d describedTransform) FunctionSpec() Spec                    { return d.spec }
