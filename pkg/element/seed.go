package element

// DirectedType restricts which edges a seed or query matches.
type DirectedType string

const (
	Either     DirectedType = "EITHER"
	Directed   DirectedType = "DIRECTED"
	Undirected DirectedType = "UNDIRECTED"
)

// Accepts reports whether an edge with the given directedness passes. The
// empty value behaves like Either.
func (d DirectedType) Accepts(directed bool) bool {
	switch d {
	case Directed:
		return directed
	case Undirected:
		return !directed
	}
	return true
}

// EntitySeed identifies a vertex. It matches entities on that vertex and,
// for related queries, edges touching it.
type EntitySeed struct {
	Vertex any
}

func (s EntitySeed) Key() string { return VertexKey(s.Vertex) }

func (EntitySeed) isID() {}

// EdgeSeed identifies an edge by its ends.
type EdgeSeed struct {
	Source       any
	Destination  any
	DirectedType DirectedType
}

// NewEdgeSeed creates an edge seed for a directed or undirected edge.
func NewEdgeSeed(source, destination any, directed bool) EdgeSeed {
	dt := Undirected
	if directed {
		dt = Directed
	}
	return EdgeSeed{Source: source, Destination: destination, DirectedType: dt}
}

func (s EdgeSeed) Key() string {
	return VertexKey(s.Source) + "|" + VertexKey(s.Destination) + "|" + string(s.DirectedType)
}

func (EdgeSeed) isID() {}

// MatchesEdge reports whether the seed identifies edge, ignoring group.
// Undirected seeds and edges match either orientation.
func (s EdgeSeed) MatchesEdge(e *Edge) bool {
	if !s.DirectedType.Accepts(e.Directed()) {
		return false
	}
	if VerticesEqual(s.Source, e.Source()) && VerticesEqual(s.Destination, e.Destination()) {
		return true
	}
	if !e.Directed() {
		return VerticesEqual(s.Source, e.Destination()) && VerticesEqual(s.Destination, e.Source())
	}
	return false
}
