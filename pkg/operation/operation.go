// Package operation defines the typed command layer: operations, the
// capability contracts they implement, and chains of operations.
//
// An operation declares what it consumes through Input and what it produces
// through Output. Chains check at build time that each step's output type
// can feed the next step's input type, so a mismatched chain never runs.
//
// Operations carry no behaviour. The store resolves a handler per
// operation type and threads results from one step to the next.
package operation

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/gadgetlabs/Gaffer/pkg/element"
	"github.com/gadgetlabs/Gaffer/pkg/jobs"
)

// ErrInvalidOperation is returned for operations or chains that fail
// validation.
var ErrInvalidOperation = errors.New("invalid operation")

// Operation is implemented by every operation.
type Operation interface {
	// Validate checks required fields and option values.
	Validate() ValidationResult
	// Options returns the string side-channel map. It may be nil.
	Options() map[string]string
	// SetOption sets one option.
	SetOption(key, value string)
}

// Input is implemented by operations that consume the previous step's
// output.
type Input interface {
	Operation
	// InputType is the static type accepted by SetInput.
	InputType() reflect.Type
	// GetInput returns the current input.
	GetInput() any
	// SetInput replaces the input, converting compatible slices.
	SetInput(v any) error
}

// MultiInput is implemented by operations whose input is a list.
type MultiInput interface {
	Input
	// InputItems returns the input as a generic list.
	InputItems() []any
}

// Output is implemented by operations that produce a result.
type Output interface {
	Operation
	// OutputType is the static type of the result.
	OutputType() reflect.Type
}

// PassThrough is implemented by operations whose output is their input.
// A chain carries the previous step's output type across them.
type PassThrough interface {
	Input
	passThrough()
}

// Static types used by the built-in operations.
var (
	TypeAny        = reflect.TypeOf((*any)(nil)).Elem()
	TypeAnySlice   = reflect.TypeOf([]any(nil))
	TypeElements   = reflect.TypeOf([]element.Element(nil))
	TypeIDs        = reflect.TypeOf([]element.ID(nil))
	TypeJobDetail  = reflect.TypeOf((*jobs.JobDetail)(nil))
	TypeJobDetails = reflect.TypeOf([]*jobs.JobDetail(nil))
)

// Base holds the options map shared by every operation. Embed it.
type Base struct {
	Opts map[string]string `json:"options,omitempty"`
}

func (b *Base) Options() map[string]string {
	return b.Opts
}

func (b *Base) SetOption(key, value string) {
	if b.Opts == nil {
		b.Opts = make(map[string]string)
	}
	b.Opts[key] = value
}

// Option returns one option value or "".
func (b *Base) Option(key string) string {
	return b.Opts[key]
}

// Compatible reports whether a value of type out can be the input of a step
// accepting in. Interface types accept any implementation, slices are
// compared element-wise, and the empty interface on either side defers the
// check to run time.
func Compatible(out, in reflect.Type) bool {
	if out == nil || in == nil {
		return false
	}
	if in == TypeAny || out == TypeAny {
		return true
	}
	if out.AssignableTo(in) {
		return true
	}
	if out.Kind() == reflect.Slice && in.Kind() == reflect.Slice {
		return Compatible(out.Elem(), in.Elem())
	}
	return false
}

// ToSlice converts any slice into []any.
func ToSlice(v any) ([]any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.([]any); ok {
		return s, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: expected a list, got %T", ErrInvalidOperation, v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

// ToElements converts a list of elements of any static type.
func ToElements(v any) ([]element.Element, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case []element.Element:
		return val, nil
	case element.Elements:
		return val, nil
	}
	items, err := ToSlice(v)
	if err != nil {
		return nil, err
	}
	out := make([]element.Element, 0, len(items))
	for i, item := range items {
		el, ok := item.(element.Element)
		if !ok {
			return nil, fmt.Errorf("%w: item %d is %T, not an element", ErrInvalidOperation, i, item)
		}
		out = append(out, el)
	}
	return out, nil
}

// ToIDs converts a list of seeds or elements of any static type.
func ToIDs(v any) ([]element.ID, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case []element.ID:
		return val, nil
	case element.IDs:
		return val, nil
	}
	items, err := ToSlice(v)
	if err != nil {
		return nil, err
	}
	out := make([]element.ID, 0, len(items))
	for i, item := range items {
		id, ok := item.(element.ID)
		if !ok {
			return nil, fmt.Errorf("%w: item %d is %T, not a seed", ErrInvalidOperation, i, item)
		}
		out = append(out, id)
	}
	return out, nil
}
