package element

// MatchedVertex records which end of an edge matched the seed that found it.
type MatchedVertex string

const (
	MatchedNone        MatchedVertex = ""
	MatchedSource      MatchedVertex = "SOURCE"
	MatchedDestination MatchedVertex = "DESTINATION"
)

// Edge connects a source and a destination vertex.
//
// Undirected edges store their ends in canonical order (by VertexKey) so an
// undirected (a,b) and (b,a) are the same element.
type Edge struct {
	group         string
	source        any
	destination   any
	directed      bool
	matchedVertex MatchedVertex
	properties    *Properties
}

// NewEdge creates an edge with an empty property set.
func NewEdge(group string, source, destination any, directed bool) *Edge {
	e := &Edge{group: group, source: source, destination: destination, directed: directed, properties: &Properties{}}
	e.orderEnds()
	return e
}

func (e *Edge) orderEnds() {
	if !e.directed && VertexKey(e.source) > VertexKey(e.destination) {
		e.source, e.destination = e.destination, e.source
		switch e.matchedVertex {
		case MatchedSource:
			e.matchedVertex = MatchedDestination
		case MatchedDestination:
			e.matchedVertex = MatchedSource
		}
	}
}

// WithProperty sets a property and returns the edge for chaining.
func (e *Edge) WithProperty(name string, value any) *Edge {
	e.PutProperty(name, value)
	return e
}

// WithProperties replaces the property container.
func (e *Edge) WithProperties(p *Properties) *Edge {
	if p == nil {
		p = &Properties{}
	}
	e.properties = p
	return e
}

func (e *Edge) Group() string { return e.group }

// Source returns the source vertex.
func (e *Edge) Source() any { return e.source }

// Destination returns the destination vertex.
func (e *Edge) Destination() any { return e.destination }

// Directed reports whether the edge is directed.
func (e *Edge) Directed() bool { return e.directed }

// MatchedVertex reports which end matched the query seed, if known.
func (e *Edge) MatchedVertex() MatchedVertex { return e.matchedVertex }

// SetMatchedVertex annotates the edge with the end that matched a seed.
func (e *Edge) SetMatchedVertex(m MatchedVertex) { e.matchedVertex = m }

// MatchedVertexValue returns the vertex at the matched end, defaulting to
// the source.
func (e *Edge) MatchedVertexValue() any {
	if e.matchedVertex == MatchedDestination {
		return e.destination
	}
	return e.source
}

// AdjacentVertexValue returns the vertex opposite the matched end.
func (e *Edge) AdjacentVertexValue() any {
	if e.matchedVertex == MatchedDestination {
		return e.source
	}
	return e.destination
}

func (e *Edge) Properties() *Properties {
	if e.properties == nil {
		e.properties = &Properties{}
	}
	return e.properties
}

func (e *Edge) Property(name string) any { return e.properties.Get(name) }

func (e *Edge) PutProperty(name string, value any) { e.Properties().Put(name, value) }

func (e *Edge) Key() string {
	dir := "u"
	if e.directed {
		dir = "d"
	}
	return "edge|" + groupKey(e.group) + "|" + VertexKey(e.source) + "|" + VertexKey(e.destination) + "|" + dir
}

func (*Edge) isID() {}

func (e *Edge) ID() ID {
	dt := Undirected
	if e.directed {
		dt = Directed
	}
	return EdgeSeed{Source: e.source, Destination: e.destination, DirectedType: dt}
}

func (e *Edge) Clone() Element {
	return &Edge{
		group:         e.group,
		source:        e.source,
		destination:   e.destination,
		directed:      e.directed,
		matchedVertex: e.matchedVertex,
		properties:    e.properties.Clone(),
	}
}

// Equal compares group, ends, directedness and properties. The matched
// vertex annotation is not part of equality.
func (e *Edge) Equal(other Element) bool {
	o, ok := other.(*Edge)
	if !ok || o == nil {
		return false
	}
	return e.group == o.group &&
		e.directed == o.directed &&
		VerticesEqual(e.source, o.source) &&
		VerticesEqual(e.destination, o.destination) &&
		e.properties.Equal(o.properties)
}

func (e *Edge) String() string {
	return "Edge[group=" + e.group + ",source=" + VertexKey(e.source) + ",destination=" + VertexKey(e.destination) +
		",directed=" + boolString(e.directed) + ",properties=" + e.properties.String() + "]"
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
