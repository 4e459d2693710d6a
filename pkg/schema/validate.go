package schema

import (
	"fmt"

	"github.com/gadgetlabs/Gaffer/pkg/convert"
	"github.com/gadgetlabs/Gaffer/pkg/element"
)

// Validate checks an element against its group definition: the group must
// exist with the right kind, every property must be declared and of the
// declared class, and the group's validate functions must pass.
func (s *Schema) Validate(el element.Element) error {
	var def *ElementDefinition
	switch e := el.(type) {
	case *element.Entity:
		d, ok := s.Entities[e.Group()]
		if !ok {
			return fmt.Errorf("%w: entity group %q", ErrUnknownGroup, e.Group())
		}
		def = d
		if err := s.checkVertex(def.Vertex, e.Vertex()); err != nil {
			return fmt.Errorf("%w: %s vertex: %v", ErrInvalidElement, e.Group(), err)
		}
	case *element.Edge:
		d, ok := s.Edges[e.Group()]
		if !ok {
			return fmt.Errorf("%w: edge group %q", ErrUnknownGroup, e.Group())
		}
		def = d
		if err := s.checkVertex(def.Source, e.Source()); err != nil {
			return fmt.Errorf("%w: %s source: %v", ErrInvalidElement, e.Group(), err)
		}
		if err := s.checkVertex(def.Destination, e.Destination()); err != nil {
			return fmt.Errorf("%w: %s destination: %v", ErrInvalidElement, e.Group(), err)
		}
	default:
		return fmt.Errorf("%w: unsupported element %T", ErrInvalidElement, el)
	}

	var err error
	el.Properties().Range(func(name string, value any) bool {
		if name == s.VisibilityProperty {
			return true
		}
		typeName, ok := def.Properties[name]
		if !ok {
			err = fmt.Errorf("%w: %s property %q is not declared", ErrInvalidElement, el.Group(), name)
			return false
		}
		if cerr := convert.CheckClass(value, s.Types[typeName].Class); cerr != nil {
			err = fmt.Errorf("%w: %s property %q: %v", ErrInvalidElement, el.Group(), name, cerr)
			return false
		}
		return true
	})
	if err != nil {
		return err
	}

	ok, err := s.Validator(el.Group()).Test(el)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidElement, el.Group(), err)
	}
	if !ok {
		return fmt.Errorf("%w: %s failed validation", ErrInvalidElement, el.Group())
	}
	return nil
}

func (s *Schema) checkVertex(typeName string, v any) error {
	if typeName == "" {
		return nil
	}
	if v == nil {
		return fmt.Errorf("vertex is required")
	}
	return convert.CheckClass(v, s.Types[typeName].Class)
}
