// Package element defines the graph data model: entities, edges, their
// properties and the seeds used to look them up.
//
// An element is identified by its group and coordinates. Two elements with
// the same Key are "the same element" and are merged by the schema's
// aggregator when stored or returned together; properties never take part in
// identity.
//
// Example:
//
//	e := element.NewEntity("person", "alice").WithProperty("age", 42)
//	edge := element.NewEdge("knows", "alice", "bob", true).WithProperty("weight", 1.5)
package element

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Errors returned by the element codec.
var (
	ErrUnknownClass = errors.New("unknown element class")
	ErrInvalidData  = errors.New("invalid element data")
)

// Element is the common interface of Entity and Edge. Elements are IDs too,
// so a list of elements can seed a query.
type Element interface {
	ID

	// Group returns the element's group name.
	Group() string
	// Properties returns the live property container. Mutating it mutates
	// the element.
	Properties() *Properties
	// Property returns one property value or nil.
	Property(name string) any
	// PutProperty sets one property value.
	PutProperty(name string, value any)
	// ID returns the seed that identifies this element. Key on an element
	// renders group and coordinates.
	ID() ID
	// Clone returns a copy with an independent property container.
	Clone() Element
	// Equal compares identity and properties.
	Equal(other Element) bool
}

// ID is implemented by the seeds used to look elements up and by elements
// themselves.
type ID interface {
	// Key renders the identity the value refers to.
	Key() string
	isID()
}

// VertexKey renders a vertex so that equal vertices of different numeric
// widths render identically and values of different kinds never collide.
// Strings are quoted, so a rendered key never contains a bare separator and
// keys joined with "|" stay unambiguous.
func VertexKey(v any) string {
	switch val := v.(type) {
	case nil:
		return "n:"
	case string:
		return "s:" + strconv.Quote(val)
	case bool:
		return "b:" + strconv.FormatBool(val)
	case int:
		return "i:" + strconv.FormatInt(int64(val), 10)
	case int8:
		return "i:" + strconv.FormatInt(int64(val), 10)
	case int16:
		return "i:" + strconv.FormatInt(int64(val), 10)
	case int32:
		return "i:" + strconv.FormatInt(int64(val), 10)
	case int64:
		return "i:" + strconv.FormatInt(val, 10)
	case uint:
		return "i:" + strconv.FormatUint(uint64(val), 10)
	case uint32:
		return "i:" + strconv.FormatUint(uint64(val), 10)
	case uint64:
		return "i:" + strconv.FormatUint(val, 10)
	case float32:
		return floatKey(float64(val))
	case float64:
		return floatKey(val)
	}
	return "x:" + strconv.Quote(fmt.Sprintf("%T:%v", v, v))
}

// groupKey renders a group name for use inside an identity key.
func groupKey(group string) string { return strconv.Quote(group) }

func floatKey(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return "i:" + strconv.FormatInt(int64(f), 10)
	}
	return "f:" + strconv.FormatFloat(f, 'g', -1, 64)
}

// VerticesEqual reports whether two vertices render to the same key.
func VerticesEqual(a, b any) bool {
	return VertexKey(a) == VertexKey(b)
}
