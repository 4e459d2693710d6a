// Package schema describes the groups a graph may hold and how their
// elements are validated and aggregated.
//
// A schema is usually loaded from YAML (JSON is accepted as well):
//
//	types:
//	  count.long:
//	    class: long
//	    aggregateFunction: {function: sum}
//	    validateFunctions:
//	      - {function: isMoreThan, args: {value: 0, orEqualTo: true}}
//	  vertex.string:
//	    class: string
//	entities:
//	  person:
//	    vertex: vertex.string
//	    properties:
//	      count: count.long
//	edges:
//	  knows:
//	    source: vertex.string
//	    destination: vertex.string
//	    properties:
//	      count: count.long
//	visibilityProperty: visibility
//
// Loading checks the schema for consistency and compiles an Aggregator and
// a validating Filter per group. Loading fails with ErrSchemaInconsistent
// when a selection names an undeclared property, a property refers to an
// unknown type, or an aggregated group lacks an aggregate function.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/gadgetlabs/Gaffer/pkg/convert"
	"github.com/gadgetlabs/Gaffer/pkg/element"
	"github.com/gadgetlabs/Gaffer/pkg/function"
)

var (
	// ErrSchemaInconsistent is returned when a schema fails its consistency
	// checks.
	ErrSchemaInconsistent = errors.New("schema is inconsistent")

	// ErrUnknownGroup is returned when an element's group is not declared.
	ErrUnknownGroup = errors.New("unknown group")

	// ErrInvalidElement is returned when an element fails validation.
	ErrInvalidElement = errors.New("invalid element")
)

// TypeDefinition describes a property or vertex type.
type TypeDefinition struct {
	Class             string          `json:"class" yaml:"class"`
	AggregateFunction *function.Spec  `json:"aggregateFunction,omitempty" yaml:"aggregateFunction,omitempty"`
	ValidateFunctions []function.Spec `json:"validateFunctions,omitempty" yaml:"validateFunctions,omitempty"`
	Description       string          `json:"description,omitempty" yaml:"description,omitempty"`
}

// ElementDefinition describes one entity or edge group.
type ElementDefinition struct {
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Vertex is the vertex type of an entity group.
	Vertex string `json:"vertex,omitempty" yaml:"vertex,omitempty"`
	// Source and Destination are the vertex types of an edge group.
	Source      string `json:"source,omitempty" yaml:"source,omitempty"`
	Destination string `json:"destination,omitempty" yaml:"destination,omitempty"`

	// Properties maps property name to type name.
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`

	// GroupBy properties take part in aggregation identity: elements that
	// differ in any of them are not merged.
	GroupBy []string `json:"groupBy,omitempty" yaml:"groupBy,omitempty"`

	// Aggregate defaults to true.
	Aggregate *bool `json:"aggregate,omitempty" yaml:"aggregate,omitempty"`

	// AggregateFunctions replaces the per-type aggregate functions.
	AggregateFunctions []function.BindingSpec `json:"aggregateFunctions,omitempty" yaml:"aggregateFunctions,omitempty"`

	// ValidateFunctions are checked in addition to the per-type ones.
	ValidateFunctions []function.BindingSpec `json:"validateFunctions,omitempty" yaml:"validateFunctions,omitempty"`
}

// IsAggregated reports whether elements of the group are merged.
func (d *ElementDefinition) IsAggregated() bool {
	return d.Aggregate == nil || *d.Aggregate
}

// PropertyNames returns the declared property names, sorted.
func (d *ElementDefinition) PropertyNames() []string {
	names := make([]string, 0, len(d.Properties))
	for name := range d.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *ElementDefinition) isGroupBy(name string) bool {
	for _, g := range d.GroupBy {
		if g == name {
			return true
		}
	}
	return false
}

// Schema is the compiled set of groups of a graph. It is read-only after
// loading and safe for concurrent use.
type Schema struct {
	Types              map[string]*TypeDefinition    `json:"types,omitempty" yaml:"types,omitempty"`
	Entities           map[string]*ElementDefinition `json:"entities,omitempty" yaml:"entities,omitempty"`
	Edges              map[string]*ElementDefinition `json:"edges,omitempty" yaml:"edges,omitempty"`
	VisibilityProperty string                        `json:"visibilityProperty,omitempty" yaml:"visibilityProperty,omitempty"`

	catalog     *function.Catalog
	aggregators map[string]*function.Aggregator
	validators  map[string]*function.Filter
}

// Option configures loading.
type Option func(*Schema)

// WithCatalog resolves function specs against c instead of the default
// catalog.
func WithCatalog(c *function.Catalog) Option {
	return func(s *Schema) {
		s.catalog = c
	}
}

// Load parses a YAML or JSON schema document and compiles it.
func Load(data []byte, opts ...Option) (*Schema, error) {
	s := &Schema{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("%w: parsing schema: %v", ErrSchemaInconsistent, err)
	}
	if err := s.Compile(opts...); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadFiles loads and merges the schema parts in paths.
func LoadFiles(paths []string, opts ...Option) (*Schema, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no schema files", ErrSchemaInconsistent)
	}
	var merged *Schema
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading schema %s: %w", path, err)
		}
		part := &Schema{}
		if err := yaml.Unmarshal(data, part); err != nil {
			return nil, fmt.Errorf("%w: parsing %s: %v", ErrSchemaInconsistent, path, err)
		}
		if merged == nil {
			merged = part
			continue
		}
		if merged, err = mergeDefinitions(merged, part); err != nil {
			return nil, fmt.Errorf("merging %s: %w", path, err)
		}
	}
	if err := merged.Compile(opts...); err != nil {
		return nil, err
	}
	return merged, nil
}

// Merge combines two schemas. Identical duplicate definitions are allowed;
// conflicting ones fail with ErrSchemaInconsistent.
func Merge(a, b *Schema, opts ...Option) (*Schema, error) {
	out, err := mergeDefinitions(a, b)
	if err != nil {
		return nil, err
	}
	if a.catalog != nil {
		opts = append([]Option{WithCatalog(a.catalog)}, opts...)
	}
	if err := out.Compile(opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func mergeDefinitions(a, b *Schema) (*Schema, error) {
	out := &Schema{
		Types:              map[string]*TypeDefinition{},
		Entities:           map[string]*ElementDefinition{},
		Edges:              map[string]*ElementDefinition{},
		VisibilityProperty: a.VisibilityProperty,
	}
	if b.VisibilityProperty != "" {
		if out.VisibilityProperty != "" && out.VisibilityProperty != b.VisibilityProperty {
			return nil, fmt.Errorf("%w: conflicting visibility properties %q and %q", ErrSchemaInconsistent, a.VisibilityProperty, b.VisibilityProperty)
		}
		out.VisibilityProperty = b.VisibilityProperty
	}
	if err := mergeMap(out.Types, a.Types, b.Types, "type"); err != nil {
		return nil, err
	}
	if err := mergeMap(out.Entities, a.Entities, b.Entities, "entity"); err != nil {
		return nil, err
	}
	if err := mergeMap(out.Edges, a.Edges, b.Edges, "edge"); err != nil {
		return nil, err
	}
	return out, nil
}

func mergeMap[V any](dst, a, b map[string]V, kind string) error {
	for k, v := range a {
		dst[k] = v
	}
	for k, v := range b {
		if existing, ok := dst[k]; ok {
			ej, _ := json.Marshal(existing)
			vj, _ := json.Marshal(v)
			if string(ej) != string(vj) {
				return fmt.Errorf("%w: conflicting definitions of %s %q", ErrSchemaInconsistent, kind, k)
			}
			continue
		}
		dst[k] = v
	}
	return nil
}

// Compile checks consistency and builds the per-group aggregators and
// validators. Load calls it; schemas assembled in code must call it before
// use.
func (s *Schema) Compile(opts ...Option) error {
	for _, opt := range opts {
		opt(s)
	}
	if s.catalog == nil {
		s.catalog = function.Default()
	}
	if s.Types == nil {
		s.Types = map[string]*TypeDefinition{}
	}
	if s.Entities == nil {
		s.Entities = map[string]*ElementDefinition{}
	}
	if s.Edges == nil {
		s.Edges = map[string]*ElementDefinition{}
	}

	for name, t := range s.Types {
		if t == nil {
			return fmt.Errorf("%w: type %q is empty", ErrSchemaInconsistent, name)
		}
		if _, ok := convert.CanonicalClass(t.Class); !ok {
			return fmt.Errorf("%w: type %q has unknown class %q", ErrSchemaInconsistent, name, t.Class)
		}
	}
	for group := range s.Entities {
		if _, ok := s.Edges[group]; ok {
			return fmt.Errorf("%w: group %q is declared as both entity and edge", ErrSchemaInconsistent, group)
		}
	}

	s.aggregators = make(map[string]*function.Aggregator)
	s.validators = make(map[string]*function.Filter)
	for _, group := range s.Groups() {
		def, _ := s.Element(group)
		if def == nil {
			return fmt.Errorf("%w: group %q is empty", ErrSchemaInconsistent, group)
		}
		if err := s.compileGroup(group, def); err != nil {
			return err
		}
	}
	return nil
}

func (s *Schema) compileGroup(group string, def *ElementDefinition) error {
	for _, vt := range []string{def.Vertex, def.Source, def.Destination} {
		if vt == "" {
			continue
		}
		if _, ok := s.Types[vt]; !ok {
			return fmt.Errorf("%w: group %q uses undeclared vertex type %q", ErrSchemaInconsistent, group, vt)
		}
	}
	for _, prop := range def.PropertyNames() {
		if _, ok := s.Types[def.Properties[prop]]; !ok {
			return fmt.Errorf("%w: group %q property %q uses undeclared type %q", ErrSchemaInconsistent, group, prop, def.Properties[prop])
		}
	}
	declared := def.PropertyNames()
	for _, g := range def.GroupBy {
		if _, ok := def.Properties[g]; !ok {
			return fmt.Errorf("%w: group %q: groupBy property %q is not declared", ErrSchemaInconsistent, group, g)
		}
	}

	agg, err := s.buildAggregator(group, def)
	if err != nil {
		return err
	}
	if err := agg.ValidateSelection(declared); err != nil {
		return fmt.Errorf("%w: group %q aggregator: %v", ErrSchemaInconsistent, group, err)
	}
	s.aggregators[group] = agg

	val, err := s.buildValidator(group, def)
	if err != nil {
		return err
	}
	if err := val.ValidateSelection(declared); err != nil {
		return fmt.Errorf("%w: group %q validator: %v", ErrSchemaInconsistent, group, err)
	}
	s.validators[group] = val
	return nil
}

func (s *Schema) buildAggregator(group string, def *ElementDefinition) (*function.Aggregator, error) {
	if !def.IsAggregated() {
		return function.NewAggregatorBuilder().Build()
	}
	if len(def.AggregateFunctions) > 0 {
		agg, err := s.catalog.BuildAggregator(def.AggregateFunctions)
		if err != nil {
			return nil, fmt.Errorf("%w: group %q: %v", ErrSchemaInconsistent, group, err)
		}
		return agg, nil
	}

	b := function.NewAggregatorBuilder()
	for _, prop := range def.PropertyNames() {
		if def.isGroupBy(prop) {
			continue
		}
		t := s.Types[def.Properties[prop]]
		if t.AggregateFunction == nil {
			return nil, fmt.Errorf("%w: group %q is aggregated but property %q has no aggregate function", ErrSchemaInconsistent, group, prop)
		}
		fn, err := s.catalog.Aggregator(*t.AggregateFunction, []string{prop})
		if err != nil {
			return nil, fmt.Errorf("%w: group %q property %q: %v", ErrSchemaInconsistent, group, prop, err)
		}
		b.Select(prop).Execute(fn)
	}
	return b.Build()
}

func (s *Schema) buildValidator(group string, def *ElementDefinition) (*function.Filter, error) {
	b := function.NewFilterBuilder()
	for _, prop := range def.PropertyNames() {
		t := s.Types[def.Properties[prop]]
		for _, spec := range t.ValidateFunctions {
			fn, err := s.catalog.Predicate(spec, []string{prop})
			if err != nil {
				return nil, fmt.Errorf("%w: group %q property %q: %v", ErrSchemaInconsistent, group, prop, err)
			}
			b.Select(prop).Execute(skipAbsent(fn))
		}
	}
	for _, bs := range def.ValidateFunctions {
		fn, err := s.catalog.Predicate(bs.Function, bs.Selection)
		if err != nil {
			return nil, fmt.Errorf("%w: group %q: %v", ErrSchemaInconsistent, group, err)
		}
		b.Select(bs.Selection...).Execute(fn)
	}
	f, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("%w: group %q: %v", ErrSchemaInconsistent, group, err)
	}
	return f, nil
}

// skipAbsent passes elements that do not carry the property; type-level
// validation only applies to values that are present.
func skipAbsent(p function.PredicateFunction) function.TuplePredicate {
	return func(values function.Tuple) (bool, error) {
		if len(values) == 1 && values[0] == nil {
			return true, nil
		}
		return p.Test(values)
	}
}

// Catalog returns the function catalog the schema was compiled with.
func (s *Schema) Catalog() *function.Catalog {
	if s.catalog == nil {
		return function.Default()
	}
	return s.catalog
}

// Groups returns every entity and edge group, sorted.
func (s *Schema) Groups() []string {
	groups := append(s.EntityGroups(), s.EdgeGroups()...)
	sort.Strings(groups)
	return groups
}

// EntityGroups returns the entity groups, sorted.
func (s *Schema) EntityGroups() []string {
	return sortedKeys(s.Entities)
}

// EdgeGroups returns the edge groups, sorted.
func (s *Schema) EdgeGroups() []string {
	return sortedKeys(s.Edges)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Element returns the definition of an entity or edge group.
func (s *Schema) Element(group string) (*ElementDefinition, bool) {
	if d, ok := s.Entities[group]; ok {
		return d, true
	}
	d, ok := s.Edges[group]
	return d, ok
}

// IsEntity reports whether group is an entity group.
func (s *Schema) IsEntity(group string) bool {
	_, ok := s.Entities[group]
	return ok
}

// IsEdge reports whether group is an edge group.
func (s *Schema) IsEdge(group string) bool {
	_, ok := s.Edges[group]
	return ok
}

// Aggregator returns the compiled aggregator of group. Unknown groups get
// an empty aggregator.
func (s *Schema) Aggregator(group string) *function.Aggregator {
	if agg, ok := s.aggregators[group]; ok {
		return agg
	}
	return &function.Aggregator{}
}

// Validator returns the compiled validating filter of group.
func (s *Schema) Validator(group string) *function.Filter {
	if f, ok := s.validators[group]; ok {
		return f
	}
	return &function.Filter{}
}

// IsAggregated reports whether elements of group are merged.
func (s *Schema) IsAggregated(group string) bool {
	d, ok := s.Element(group)
	return ok && d.IsAggregated()
}

// AggregationKey identifies the elements that aggregate together: same
// group, same coordinates and same groupBy values.
func (s *Schema) AggregationKey(el element.Element) string {
	key := el.Key()
	d, ok := s.Element(el.Group())
	if !ok || len(d.GroupBy) == 0 {
		return key
	}
	for _, g := range d.GroupBy {
		key += "|" + element.VertexKey(el.Property(g))
	}
	return key
}

// ToJSON encodes the schema definition. Map keys are sorted so equal
// schemas encode to identical bytes.
func (s *Schema) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}
