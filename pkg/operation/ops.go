package operation

import (
	"reflect"

	"github.com/gadgetlabs/Gaffer/pkg/element"
	"github.com/gadgetlabs/Gaffer/pkg/view"
)

// SeedMatching selects how seeds match elements.
type SeedMatching string

const (
	// SeedMatchingRelated matches entities on the seed vertex and edges
	// touching it. It is the default.
	SeedMatchingRelated SeedMatching = "RELATED"
	// SeedMatchingEqual matches only elements whose identity equals the
	// seed.
	SeedMatchingEqual SeedMatching = "EQUAL"
)

// IncludeIncomingOutgoing restricts directed edges relative to the seed.
type IncludeIncomingOutgoing string

const (
	IncludeEither   IncludeIncomingOutgoing = "EITHER"
	IncludeIncoming IncludeIncomingOutgoing = "INCOMING"
	IncludeOutgoing IncludeIncomingOutgoing = "OUTGOING"
)

// DefaultExportKey is the result cache key used when none is given.
const DefaultExportKey = "ALL"

// ============================================================================
// ToSet / Limit
// ============================================================================

// ToSet removes duplicates from its input, keeping first occurrences.
type ToSet struct {
	Base
	Input []any `json:"input,omitempty"`
}

func (o *ToSet) Validate() ValidationResult { return ValidateRequired(o) }
func (o *ToSet) InputType() reflect.Type    { return TypeAnySlice }
func (o *ToSet) OutputType() reflect.Type   { return TypeAnySlice }
func (o *ToSet) GetInput() any              { return o.Input }
func (o *ToSet) InputItems() []any          { return o.Input }

func (o *ToSet) SetInput(v any) error {
	items, err := ToSlice(v)
	if err != nil {
		return err
	}
	o.Input = items
	return nil
}

// Limit truncates its input to ResultLimit items.
type Limit struct {
	Base
	Input       []any `json:"input,omitempty"`
	ResultLimit int   `json:"resultLimit" required:"true"`
}

func (o *Limit) Validate() ValidationResult {
	r := ValidateRequired(o)
	if o.ResultLimit < 0 {
		r.AddError("resultLimit must not be negative")
	}
	return r
}

func (o *Limit) InputType() reflect.Type  { return TypeAnySlice }
func (o *Limit) OutputType() reflect.Type { return TypeAnySlice }
func (o *Limit) GetInput() any            { return o.Input }
func (o *Limit) InputItems() []any        { return o.Input }

func (o *Limit) SetInput(v any) error {
	items, err := ToSlice(v)
	if err != nil {
		return err
	}
	o.Input = items
	return nil
}

// ============================================================================
// AddElements
// ============================================================================

// AddElements stores its input elements.
type AddElements struct {
	Base
	Input element.Elements `json:"input,omitempty"`

	// ValidateInput defaults to true: elements are checked against the
	// schema before they are stored.
	ValidateInput *bool `json:"validate,omitempty"`

	// SkipInvalidElements drops invalid elements instead of failing.
	SkipInvalidElements bool `json:"skipInvalidElements,omitempty"`
}

func (o *AddElements) Validate() ValidationResult { return ValidateRequired(o) }
func (o *AddElements) InputType() reflect.Type    { return TypeElements }
func (o *AddElements) GetInput() any              { return []element.Element(o.Input) }

func (o *AddElements) InputItems() []any {
	out := make([]any, len(o.Input))
	for i, el := range o.Input {
		out[i] = el
	}
	return out
}

func (o *AddElements) SetInput(v any) error {
	els, err := ToElements(v)
	if err != nil {
		return err
	}
	o.Input = els
	return nil
}

// ShouldValidate reports whether input elements are validated.
func (o *AddElements) ShouldValidate() bool {
	return o.ValidateInput == nil || *o.ValidateInput
}

// ============================================================================
// GetElements / GetAllElements / GetAdjacentIds
// ============================================================================

// GetElements returns the elements matching its seeds.
type GetElements struct {
	Base
	Input                   element.IDs             `json:"input,omitempty"`
	View                    *view.View              `json:"view,omitempty"`
	SeedMatching            SeedMatching            `json:"seedMatching,omitempty"`
	IncludeIncomingOutgoing IncludeIncomingOutgoing `json:"includeIncomingOutGoing,omitempty"`
	DirectedType            element.DirectedType    `json:"directedType,omitempty"`
}

func (o *GetElements) Validate() ValidationResult {
	r := ValidateRequired(o)
	validateEnums(&r, o.SeedMatching, o.IncludeIncomingOutgoing, o.DirectedType)
	return r
}

func (o *GetElements) InputType() reflect.Type  { return TypeIDs }
func (o *GetElements) OutputType() reflect.Type { return TypeElements }
func (o *GetElements) GetInput() any            { return []element.ID(o.Input) }

func (o *GetElements) InputItems() []any {
	out := make([]any, len(o.Input))
	for i, id := range o.Input {
		out[i] = id
	}
	return out
}

func (o *GetElements) SetInput(v any) error {
	ids, err := ToIDs(v)
	if err != nil {
		return err
	}
	o.Input = ids
	return nil
}

// Matching returns the effective seed matching.
func (o *GetElements) Matching() SeedMatching {
	if o.SeedMatching == "" {
		return SeedMatchingRelated
	}
	return o.SeedMatching
}

// GetAllElements returns every element visible through the view.
type GetAllElements struct {
	Base
	View         *view.View           `json:"view,omitempty"`
	DirectedType element.DirectedType `json:"directedType,omitempty"`
}

func (o *GetAllElements) Validate() ValidationResult {
	var r ValidationResult
	validateEnums(&r, "", "", o.DirectedType)
	return r
}

func (o *GetAllElements) OutputType() reflect.Type { return TypeElements }

// GetAdjacentIds returns the vertices one hop away from its seeds as
// entity seeds.
type GetAdjacentIds struct {
	Base
	Input                   element.IDs             `json:"input,omitempty"`
	View                    *view.View              `json:"view,omitempty"`
	IncludeIncomingOutgoing IncludeIncomingOutgoing `json:"includeIncomingOutGoing,omitempty"`
	DirectedType            element.DirectedType    `json:"directedType,omitempty"`
}

func (o *GetAdjacentIds) Validate() ValidationResult {
	r := ValidateRequired(o)
	validateEnums(&r, "", o.IncludeIncomingOutgoing, o.DirectedType)
	for _, id := range o.Input {
		if _, ok := id.(element.EdgeSeed); ok {
			r.AddError("input must only contain entity seeds")
			break
		}
	}
	return r
}

func (o *GetAdjacentIds) InputType() reflect.Type  { return TypeIDs }
func (o *GetAdjacentIds) OutputType() reflect.Type { return TypeIDs }
func (o *GetAdjacentIds) GetInput() any            { return []element.ID(o.Input) }

func (o *GetAdjacentIds) InputItems() []any {
	out := make([]any, len(o.Input))
	for i, id := range o.Input {
		out[i] = id
	}
	return out
}

func (o *GetAdjacentIds) SetInput(v any) error {
	ids, err := ToIDs(v)
	if err != nil {
		return err
	}
	o.Input = ids
	return nil
}

func validateEnums(r *ValidationResult, sm SeedMatching, inout IncludeIncomingOutgoing, dt element.DirectedType) {
	switch sm {
	case "", SeedMatchingEqual, SeedMatchingRelated:
	default:
		r.AddError("seedMatching %q is not one of EQUAL, RELATED", sm)
	}
	switch inout {
	case "", IncludeEither, IncludeIncoming, IncludeOutgoing:
	default:
		r.AddError("includeIncomingOutGoing %q is not one of INCOMING, OUTGOING, EITHER", inout)
	}
	switch dt {
	case "", element.Either, element.Directed, element.Undirected:
	default:
		r.AddError("directedType %q is not one of DIRECTED, UNDIRECTED, EITHER", dt)
	}
}

// ============================================================================
// Jobs
// ============================================================================

// GetJobDetails returns one job. An empty JobID means the current job.
type GetJobDetails struct {
	Base
	JobID string `json:"jobId,omitempty"`
}

func (o *GetJobDetails) Validate() ValidationResult { return ValidateRequired(o) }
func (o *GetJobDetails) OutputType() reflect.Type   { return TypeJobDetail }

// GetAllJobDetails returns every tracked job.
type GetAllJobDetails struct {
	Base
}

func (o *GetAllJobDetails) Validate() ValidationResult { return ValidateRequired(o) }
func (o *GetAllJobDetails) OutputType() reflect.Type   { return TypeJobDetails }

// ============================================================================
// Result cache export
// ============================================================================

// ExportToResultCache stores its input under (job id, Key) and passes the
// input through unchanged.
type ExportToResultCache struct {
	Base
	Input any    `json:"input,omitempty"`
	Key   string `json:"key,omitempty"`
}

func (o *ExportToResultCache) Validate() ValidationResult { return ValidateRequired(o) }
func (o *ExportToResultCache) InputType() reflect.Type    { return TypeAny }
func (o *ExportToResultCache) OutputType() reflect.Type   { return TypeAny }
func (o *ExportToResultCache) GetInput() any              { return o.Input }
func (o *ExportToResultCache) passThrough()               {}

func (o *ExportToResultCache) SetInput(v any) error {
	o.Input = v
	return nil
}

// ExportKey returns Key or DefaultExportKey.
func (o *ExportToResultCache) ExportKey() string {
	if o.Key == "" {
		return DefaultExportKey
	}
	return o.Key
}

// GetResultCacheExport reads back an export. An empty JobID means the
// current job.
type GetResultCacheExport struct {
	Base
	Key   string `json:"key,omitempty"`
	JobID string `json:"jobId,omitempty"`
}

func (o *GetResultCacheExport) Validate() ValidationResult { return ValidateRequired(o) }
func (o *GetResultCacheExport) OutputType() reflect.Type   { return TypeAnySlice }

// ExportKey returns Key or DefaultExportKey.
func (o *GetResultCacheExport) ExportKey() string {
	if o.Key == "" {
		return DefaultExportKey
	}
	return o.Key
}
