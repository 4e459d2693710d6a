package element

// Entity is a vertex-bound element.
type Entity struct {
	group      string
	vertex     any
	properties *Properties
}

// NewEntity creates an entity with an empty property set.
func NewEntity(group string, vertex any) *Entity {
	return &Entity{group: group, vertex: vertex, properties: &Properties{}}
}

// WithProperty sets a property and returns the entity for chaining.
func (e *Entity) WithProperty(name string, value any) *Entity {
	e.PutProperty(name, value)
	return e
}

// WithProperties replaces the property container.
func (e *Entity) WithProperties(p *Properties) *Entity {
	if p == nil {
		p = &Properties{}
	}
	e.properties = p
	return e
}

func (e *Entity) Group() string { return e.group }

// Vertex returns the entity's vertex.
func (e *Entity) Vertex() any { return e.vertex }

func (e *Entity) Properties() *Properties {
	if e.properties == nil {
		e.properties = &Properties{}
	}
	return e.properties
}

func (e *Entity) Property(name string) any { return e.properties.Get(name) }

func (e *Entity) PutProperty(name string, value any) { e.Properties().Put(name, value) }

func (e *Entity) Key() string { return "entity|" + groupKey(e.group) + "|" + VertexKey(e.vertex) }

func (*Entity) isID() {}

func (e *Entity) ID() ID { return EntitySeed{Vertex: e.vertex} }

func (e *Entity) Clone() Element {
	return &Entity{group: e.group, vertex: e.vertex, properties: e.properties.Clone()}
}

func (e *Entity) Equal(other Element) bool {
	o, ok := other.(*Entity)
	if !ok || o == nil {
		return false
	}
	return e.group == o.group && VerticesEqual(e.vertex, o.vertex) && e.properties.Equal(o.properties)
}

func (e *Entity) String() string {
	return "Entity[group=" + e.group + ",vertex=" + VertexKey(e.vertex) + ",properties=" + e.properties.String() + "]"
}
