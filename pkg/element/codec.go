package element

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JSON classes used in the "class" field of encoded elements and seeds.
const (
	ClassEntity     = "Entity"
	ClassEdge       = "Edge"
	ClassEntitySeed = "EntitySeed"
	ClassEdgeSeed   = "EdgeSeed"
)

type envelope struct {
	Class         string          `json:"class"`
	Group         string          `json:"group,omitempty"`
	Vertex        json.RawMessage `json:"vertex,omitempty"`
	Source        json.RawMessage `json:"source,omitempty"`
	Destination   json.RawMessage `json:"destination,omitempty"`
	Directed      *bool           `json:"directed,omitempty"`
	DirectedType  DirectedType    `json:"directedType,omitempty"`
	MatchedVertex MatchedVertex   `json:"matchedVertex,omitempty"`
	Properties    *Properties     `json:"properties,omitempty"`
}

type entityJSON struct {
	Class      string      `json:"class"`
	Group      string      `json:"group"`
	Vertex     any         `json:"vertex"`
	Properties *Properties `json:"properties"`
}

type edgeJSON struct {
	Class         string        `json:"class"`
	Group         string        `json:"group"`
	Source        any           `json:"source"`
	Destination   any           `json:"destination"`
	Directed      bool          `json:"directed"`
	MatchedVertex MatchedVertex `json:"matchedVertex,omitempty"`
	Properties    *Properties   `json:"properties"`
}

type entitySeedJSON struct {
	Class  string `json:"class"`
	Vertex any    `json:"vertex"`
}

type edgeSeedJSON struct {
	Class        string       `json:"class"`
	Source       any          `json:"source"`
	Destination  any          `json:"destination"`
	DirectedType DirectedType `json:"directedType,omitempty"`
}

func (e *Entity) MarshalJSON() ([]byte, error) {
	return json.Marshal(entityJSON{Class: ClassEntity, Group: e.group, Vertex: e.vertex, Properties: e.Properties()})
}

func (e *Entity) UnmarshalJSON(data []byte) error {
	el, err := UnmarshalElement(data)
	if err != nil {
		return err
	}
	ent, ok := el.(*Entity)
	if !ok {
		return fmt.Errorf("%w: expected %s", ErrInvalidData, ClassEntity)
	}
	*e = *ent
	return nil
}

func (e *Edge) MarshalJSON() ([]byte, error) {
	return json.Marshal(edgeJSON{
		Class:         ClassEdge,
		Group:         e.group,
		Source:        e.source,
		Destination:   e.destination,
		Directed:      e.directed,
		MatchedVertex: e.matchedVertex,
		Properties:    e.Properties(),
	})
}

func (e *Edge) UnmarshalJSON(data []byte) error {
	el, err := UnmarshalElement(data)
	if err != nil {
		return err
	}
	edge, ok := el.(*Edge)
	if !ok {
		return fmt.Errorf("%w: expected %s", ErrInvalidData, ClassEdge)
	}
	*e = *edge
	return nil
}

func (s EntitySeed) MarshalJSON() ([]byte, error) {
	return json.Marshal(entitySeedJSON{Class: ClassEntitySeed, Vertex: s.Vertex})
}

func (s EdgeSeed) MarshalJSON() ([]byte, error) {
	return json.Marshal(edgeSeedJSON{Class: ClassEdgeSeed, Source: s.Source, Destination: s.Destination, DirectedType: s.DirectedType})
}

// UnmarshalElement decodes an Entity or Edge from its JSON envelope.
func UnmarshalElement(data []byte) (Element, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	switch env.Class {
	case ClassEntity:
		vertex, err := decodeValue(env.Vertex)
		if err != nil {
			return nil, err
		}
		return NewEntity(env.Group, vertex).WithProperties(env.Properties), nil
	case ClassEdge:
		src, err := decodeValue(env.Source)
		if err != nil {
			return nil, err
		}
		dst, err := decodeValue(env.Destination)
		if err != nil {
			return nil, err
		}
		directed := env.Directed != nil && *env.Directed
		edge := &Edge{group: env.Group, source: src, destination: dst, directed: directed, matchedVertex: env.MatchedVertex}
		edge.orderEnds()
		return edge.WithProperties(env.Properties), nil
	case "":
		return nil, fmt.Errorf("%w: missing class", ErrInvalidData)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownClass, env.Class)
}

// UnmarshalID decodes a seed. Encoded elements are accepted and yield their
// own seed.
func UnmarshalID(data []byte) (ID, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	switch env.Class {
	case ClassEntitySeed:
		vertex, err := decodeValue(env.Vertex)
		if err != nil {
			return nil, err
		}
		return EntitySeed{Vertex: vertex}, nil
	case ClassEdgeSeed:
		src, err := decodeValue(env.Source)
		if err != nil {
			return nil, err
		}
		dst, err := decodeValue(env.Destination)
		if err != nil {
			return nil, err
		}
		dt := env.DirectedType
		if dt == "" && env.Directed != nil {
			dt = Undirected
			if *env.Directed {
				dt = Directed
			}
		}
		if dt == "" {
			dt = Either
		}
		return EdgeSeed{Source: src, Destination: dst, DirectedType: dt}, nil
	case ClassEntity, ClassEdge:
		el, err := UnmarshalElement(data)
		if err != nil {
			return nil, err
		}
		return el.ID(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownClass, env.Class)
}

// Elements is a list of elements with envelope-aware JSON decoding.
type Elements []Element

func (l *Elements) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	out := make(Elements, 0, len(raws))
	for i, raw := range raws {
		el, err := UnmarshalElement(raw)
		if err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, el)
	}
	*l = out
	return nil
}

// IDs is a list of seeds with envelope-aware JSON decoding.
type IDs []ID

func (l *IDs) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	out := make(IDs, 0, len(raws))
	for i, raw := range raws {
		id, err := UnmarshalID(raw)
		if err != nil {
			return fmt.Errorf("seed %d: %w", i, err)
		}
		out = append(out, id)
	}
	*l = out
	return nil
}

// DecodeValue decodes an arbitrary JSON value with integer numbers kept as
// int64.
func DecodeValue(raw []byte) (any, error) {
	return decodeValue(raw)
}

func decodeValue(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return normalizeJSON(v), nil
}
