package store

import (
	"fmt"
	"strings"

	"github.com/gadgetlabs/Gaffer/pkg/element"
	"github.com/gadgetlabs/Gaffer/pkg/operation"
	"github.com/gadgetlabs/Gaffer/pkg/schema"
	"github.com/gadgetlabs/Gaffer/pkg/view"
)

// ============================================================================
// Seed matching
// ============================================================================

// SeedOptions are the GetElements settings that decide whether an element
// matches a seed.
type SeedOptions struct {
	Matching     operation.SeedMatching
	InOut        operation.IncludeIncomingOutgoing
	DirectedType element.DirectedType
}

// SeedOptionsOf returns the seed options of a GetElements operation.
func SeedOptionsOf(op *operation.GetElements) SeedOptions {
	return SeedOptions{Matching: op.Matching(), InOut: op.IncludeIncomingOutgoing, DirectedType: op.DirectedType}
}

// MatchSeed reports whether el matches seed and, for edges matched through
// an entity seed, which end matched.
//
//   - An entity seed matches entities on its vertex. With RELATED matching
//     it also matches edges touching the vertex, subject to the direction
//     options.
//   - An edge seed matches edges with the same ends and compatible
//     directedness. With RELATED matching it also matches entities on
//     either end.
func MatchSeed(el element.Element, seed element.ID, o SeedOptions) (element.MatchedVertex, bool) {
	related := o.Matching != operation.SeedMatchingEqual
	switch s := seed.(type) {
	case element.EntitySeed:
		switch e := el.(type) {
		case *element.Entity:
			return element.MatchedNone, element.VerticesEqual(e.Vertex(), s.Vertex)
		case *element.Edge:
			if !related || !o.DirectedType.Accepts(e.Directed()) {
				return element.MatchedNone, false
			}
			srcMatch := element.VerticesEqual(e.Source(), s.Vertex)
			dstMatch := element.VerticesEqual(e.Destination(), s.Vertex)
			if e.Directed() {
				switch o.InOut {
				case operation.IncludeOutgoing:
					dstMatch = false
				case operation.IncludeIncoming:
					srcMatch = false
				}
			}
			if srcMatch {
				return element.MatchedSource, true
			}
			if dstMatch {
				return element.MatchedDestination, true
			}
		}
	case element.EdgeSeed:
		switch e := el.(type) {
		case *element.Edge:
			if !o.DirectedType.Accepts(e.Directed()) {
				return element.MatchedNone, false
			}
			return element.MatchedNone, s.MatchesEdge(e)
		case *element.Entity:
			if !related {
				return element.MatchedNone, false
			}
			return element.MatchedNone, element.VerticesEqual(e.Vertex(), s.Source) ||
				element.VerticesEqual(e.Vertex(), s.Destination)
		}
	case element.Element:
		return MatchSeed(el, s.ID(), o)
	}
	return element.MatchedNone, false
}

// MatchSeeds returns the first seed el matches, with the matched end
// annotated on edges. Matching elements are returned as clones.
func MatchSeeds(el element.Element, seeds []element.ID, o SeedOptions) (element.Element, bool) {
	for _, seed := range seeds {
		if mv, ok := MatchSeed(el, seed, o); ok {
			out := el.Clone()
			if e, isEdge := out.(*element.Edge); isEdge {
				e.SetMatchedVertex(mv)
			}
			return out, true
		}
	}
	return nil, false
}

// AdjacentIDs returns the far ends of edges matched through entity seeds,
// deduplicated in first-seen order.
func AdjacentIDs(edges []element.Element, seeds []element.ID, o SeedOptions) []element.ID {
	o.Matching = operation.SeedMatchingRelated
	seen := make(map[string]struct{})
	var out []element.ID
	for _, el := range edges {
		e, ok := el.(*element.Edge)
		if !ok {
			continue
		}
		for _, seed := range seeds {
			mv, ok := MatchSeed(e, seed, o)
			if !ok {
				continue
			}
			var far any
			switch mv {
			case element.MatchedSource:
				far = e.Destination()
			case element.MatchedDestination:
				far = e.Source()
			default:
				continue
			}
			key := element.VertexKey(far)
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				out = append(out, element.EntitySeed{Vertex: far})
			}
		}
	}
	return out
}

// ============================================================================
// Element pipeline
// ============================================================================

// Pipeline applies the query-time behaviour a backend does not implement
// itself. Each stage runs unless the backend declares the matching trait;
// view projection always runs.
type Pipeline struct {
	Schema *schema.Schema
	Traits TraitSet
	View   *view.View
	User   User
}

// Run processes els, which are modified in place, and returns the
// survivors in input order.
func (p Pipeline) Run(els []element.Element) ([]element.Element, error) {
	out := make([]element.Element, 0, len(els))
	for _, el := range els {
		if !p.View.Includes(el.Group()) {
			continue
		}
		if !p.Traits.Has(Visibility) && !p.visible(el) {
			continue
		}
		if !p.Traits.Has(PreAggregationFiltering) {
			ok, err := p.def(el).PreAggregationFilter.Test(el)
			if err != nil {
				return nil, fmt.Errorf("pre-aggregation filter: %w", err)
			}
			if !ok {
				continue
			}
		}
		out = append(out, el)
	}

	if !p.Traits.Has(IngestAggregation) {
		var err error
		if out, err = p.aggregate(out); err != nil {
			return nil, err
		}
	}

	kept := out[:0]
	for _, el := range out {
		def := p.def(el)
		if !p.Traits.Has(PostAggregationFiltering) {
			ok, err := def.PostAggregationFilter.Test(el)
			if err != nil {
				return nil, fmt.Errorf("post-aggregation filter: %w", err)
			}
			if !ok {
				continue
			}
		}
		if !p.Traits.Has(Transformation) {
			if _, err := def.Transformer.Apply(el); err != nil {
				return nil, fmt.Errorf("transformation: %w", err)
			}
		}
		if !p.Traits.Has(PostTransformationFiltering) {
			ok, err := def.PostTransformFilter.Test(el)
			if err != nil {
				return nil, fmt.Errorf("post-transformation filter: %w", err)
			}
			if !ok {
				continue
			}
		}
		p.View.Project(el)
		kept = append(kept, el)
	}
	return kept, nil
}

func (p Pipeline) def(el element.Element) *view.ElementDefinition {
	def, ok := p.View.Element(el.Group())
	if !ok {
		return &view.ElementDefinition{}
	}
	return def
}

// aggregate merges duplicates of aggregated groups, keeping the position
// of each first occurrence.
func (p Pipeline) aggregate(els []element.Element) ([]element.Element, error) {
	if p.Schema == nil {
		return els, nil
	}
	index := make(map[string]int)
	out := make([]element.Element, 0, len(els))
	for _, el := range els {
		if !p.Schema.IsAggregated(el.Group()) {
			out = append(out, el)
			continue
		}
		key := p.Schema.AggregationKey(el)
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, el)
			continue
		}
		merged, err := p.Schema.Aggregator(el.Group()).Aggregate(el, out[i])
		if err != nil {
			return nil, err
		}
		out[i] = merged
	}
	return out, nil
}

// visible evaluates the element's visibility expression against the
// user's data auths. The expression is a disjunction of conjunctions:
// "public|private&finance". An empty or missing value is visible to all.
func (p Pipeline) visible(el element.Element) bool {
	if p.Schema == nil || p.Schema.VisibilityProperty == "" {
		return true
	}
	expr, _ := el.Property(p.Schema.VisibilityProperty).(string)
	return VisibleTo(expr, p.User)
}

// VisibleTo reports whether user may see an element labelled expr.
func VisibleTo(expr string, user User) bool {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true
	}
	for _, alt := range strings.Split(expr, "|") {
		all := true
		for _, term := range strings.Split(alt, "&") {
			if !user.HasDataAuth(strings.TrimSpace(term)) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// FilterDirected drops edges whose directedness dt rejects.
func FilterDirected(els []element.Element, dt element.DirectedType) []element.Element {
	if dt == "" || dt == element.Either {
		return els
	}
	out := els[:0]
	for _, el := range els {
		if e, ok := el.(*element.Edge); ok && !dt.Accepts(e.Directed()) {
			continue
		}
		out = append(out, el)
	}
	return out
}

// annotateMatchedVertex sets on each edge the end that matched a seed.
func annotateMatchedVertex(els []element.Element, seeds []element.ID, o SeedOptions) {
	for _, el := range els {
		e, ok := el.(*element.Edge)
		if !ok {
			continue
		}
		e.SetMatchedVertex(element.MatchedNone)
		for _, seed := range seeds {
			if mv, ok := MatchSeed(e, seed, o); ok {
				e.SetMatchedVertex(mv)
				break
			}
		}
	}
}
