// Package view restricts what a query returns: which groups, which
// properties, and the filters and transforms applied on the way out.
package view

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gadgetlabs/Gaffer/pkg/element"
	"github.com/gadgetlabs/Gaffer/pkg/function"
	"github.com/gadgetlabs/Gaffer/pkg/schema"
)

// ErrInvalidView is returned when a view does not fit the schema.
var ErrInvalidView = errors.New("invalid view")

// ElementDefinition is the per-group part of a view.
type ElementDefinition struct {
	PreAggregationFilter  *function.Filter      `json:"preAggregationFilterFunctions,omitempty"`
	PostAggregationFilter *function.Filter      `json:"postAggregationFilterFunctions,omitempty"`
	Transformer           *function.Transformer `json:"transformFunctions,omitempty"`
	PostTransformFilter   *function.Filter      `json:"postTransformFilterFunctions,omitempty"`

	// Properties, when set, is the only set of properties returned.
	Properties []string `json:"properties,omitempty"`
	// ExcludeProperties are removed from returned elements.
	ExcludeProperties []string `json:"excludeProperties,omitempty"`
}

// View maps groups to their definitions. A nil view includes every group
// with all properties.
type View struct {
	Entities map[string]*ElementDefinition `json:"entities,omitempty"`
	Edges    map[string]*ElementDefinition `json:"edges,omitempty"`
}

// Builder assembles a View.
type Builder struct {
	v View
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{v: View{Entities: map[string]*ElementDefinition{}, Edges: map[string]*ElementDefinition{}}}
}

// Entity adds an entity group. A nil definition includes the group as is.
func (b *Builder) Entity(group string, def *ElementDefinition) *Builder {
	if def == nil {
		def = &ElementDefinition{}
	}
	b.v.Entities[group] = def
	return b
}

// Edge adds an edge group. A nil definition includes the group as is.
func (b *Builder) Edge(group string, def *ElementDefinition) *Builder {
	if def == nil {
		def = &ElementDefinition{}
	}
	b.v.Edges[group] = def
	return b
}

// Build returns the view.
func (b *Builder) Build() *View {
	out := b.v
	return &out
}

// Element returns the definition for group. With a nil view every group
// is included with an empty definition.
func (v *View) Element(group string) (*ElementDefinition, bool) {
	if v == nil {
		return &ElementDefinition{}, true
	}
	if d, ok := v.Entities[group]; ok {
		return orEmpty(d), true
	}
	if d, ok := v.Edges[group]; ok {
		return orEmpty(d), true
	}
	return nil, false
}

func orEmpty(d *ElementDefinition) *ElementDefinition {
	if d == nil {
		return &ElementDefinition{}
	}
	return d
}

// Includes reports whether elements of group are visible.
func (v *View) Includes(group string) bool {
	_, ok := v.Element(group)
	return ok
}

// IncludesEntities reports whether any entity may be returned.
func (v *View) IncludesEntities() bool {
	return v == nil || len(v.Entities) > 0
}

// IncludesEdges reports whether any edge may be returned.
func (v *View) IncludesEdges() bool {
	return v == nil || len(v.Edges) > 0
}

// Groups returns the groups named by the view, sorted. A nil view returns
// nil, meaning all groups.
func (v *View) Groups() []string {
	if v == nil {
		return nil
	}
	out := make([]string, 0, len(v.Entities)+len(v.Edges))
	for g := range v.Entities {
		out = append(out, g)
	}
	for g := range v.Edges {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// Project removes the properties the view hides for el's group.
func (v *View) Project(el element.Element) {
	def, ok := v.Element(el.Group())
	if !ok {
		return
	}
	props := el.Properties()
	if def.Properties != nil {
		props.Keep(def.Properties...)
	}
	for _, name := range def.ExcludeProperties {
		props.Remove(name)
	}
}

// Validate checks that the view's groups exist in s with the same kind and
// that filters only select declared properties. Transformer projections may
// introduce new names, which later filters may select.
func (v *View) Validate(s *schema.Schema) error {
	if v == nil {
		return nil
	}
	for group, def := range v.Entities {
		if !s.IsEntity(group) {
			return fmt.Errorf("%w: entity group %q is not in the schema", ErrInvalidView, group)
		}
		if err := validateDefinition(s, group, orEmpty(def)); err != nil {
			return err
		}
	}
	for group, def := range v.Edges {
		if !s.IsEdge(group) {
			return fmt.Errorf("%w: edge group %q is not in the schema", ErrInvalidView, group)
		}
		if err := validateDefinition(s, group, orEmpty(def)); err != nil {
			return err
		}
	}
	return nil
}

func validateDefinition(s *schema.Schema, group string, def *ElementDefinition) error {
	sd, _ := s.Element(group)
	declared := sd.PropertyNames()
	if s.VisibilityProperty != "" {
		declared = append(declared, s.VisibilityProperty)
	}
	if err := def.PreAggregationFilter.ValidateSelection(declared); err != nil {
		return fmt.Errorf("%w: %s pre-aggregation filter: %v", ErrInvalidView, group, err)
	}
	if err := def.PostAggregationFilter.ValidateSelection(declared); err != nil {
		return fmt.Errorf("%w: %s post-aggregation filter: %v", ErrInvalidView, group, err)
	}
	transformed := append([]string(nil), declared...)
	for _, b := range def.Transformer.Bindings() {
		for _, name := range b.Selection {
			if !contains(declared, name) {
				return fmt.Errorf("%w: %s transformer selects undeclared property %q", ErrInvalidView, group, name)
			}
		}
		transformed = append(transformed, b.Projection...)
	}
	if err := def.PostTransformFilter.ValidateSelection(transformed); err != nil {
		return fmt.Errorf("%w: %s post-transform filter: %v", ErrInvalidView, group, err)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
