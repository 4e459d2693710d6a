package operation

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gadgetlabs/Gaffer/pkg/element"
	"github.com/gadgetlabs/Gaffer/pkg/view"
)

// requiredOp declares its required fields through tags.
type requiredOp struct {
	Base
	Field1 string   `json:"requiredField1" required:"true"`
	Field2 []string `json:"requiredField2" required:"true"`
	Field3 int      `required:"true"`
	Other  string   `json:"other"`
}

func (o *requiredOp) Validate() ValidationResult { return ValidateRequired(o) }

// ============================================================================
// Validation
// ============================================================================

func TestValidateRequired(t *testing.T) {
	r := (&requiredOp{Field1: "x"}).Validate()
	assert.False(t, r.IsValid())
	assert.Equal(t, []string{"Field3 is required", "requiredField2 is required"}, r.Errors())
	assert.ErrorIs(t, r.Err(), ErrInvalidOperation)

	r = (&requiredOp{Field1: "x", Field2: []string{"y"}, Field3: 1}).Validate()
	assert.True(t, r.IsValid())
	assert.NoError(t, r.Err())
}

func TestValidate_BuiltinOperations(t *testing.T) {
	tests := []struct {
		name  string
		op    Operation
		valid bool
	}{
		{"limit without limit", &Limit{}, false},
		{"limit", &Limit{ResultLimit: 3}, true},
		{"negative limit", &Limit{ResultLimit: -1}, false},
		{"get elements", &GetElements{SeedMatching: SeedMatchingEqual}, true},
		{"bad seed matching", &GetElements{SeedMatching: "FUZZY"}, false},
		{"bad directed type", &GetAllElements{DirectedType: "SIDEWAYS"}, false},
		{"adjacent ids with edge seed", &GetAdjacentIds{Input: element.IDs{element.NewEdgeSeed("a", "b", true)}}, false},
		{"adjacent ids", &GetAdjacentIds{Input: element.IDs{element.EntitySeed{Vertex: "a"}}}, true},
		{"to set", &ToSet{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.op.Validate().IsValid(), tt.op.Validate().Errors())
		})
	}
}

func TestOptions(t *testing.T) {
	op := &GetAllElements{}
	assert.Nil(t, op.Options())
	op.SetOption("gaffer.federatedstore.graphIds", "a")
	assert.Equal(t, "a", op.Option("gaffer.federatedstore.graphIds"))
}

// ============================================================================
// Types & chains
// ============================================================================

func TestCompatible(t *testing.T) {
	tests := []struct {
		name    string
		out, in reflect.Type
		want    bool
	}{
		{"same", TypeElements, TypeElements, true},
		{"elements as ids", TypeElements, TypeIDs, true},
		{"ids as elements", TypeIDs, TypeElements, false},
		{"elements as any list", TypeElements, TypeAnySlice, true},
		{"any list as elements", TypeAnySlice, TypeElements, true},
		{"any", TypeJobDetail, TypeAny, true},
		{"job detail as list", TypeJobDetail, TypeAnySlice, false},
		{"no output", nil, TypeElements, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compatible(tt.out, tt.in))
		})
	}
}

func TestChainBuilder_TypeMismatchRejected(t *testing.T) {
	_, err := NewChainBuilder().
		First(&GetAllJobDetails{}).
		Then(&GetElements{}).
		Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidOperation)
	assert.Contains(t, err.Error(), "GetElements")

	_, err = NewChainBuilder().First(&AddElements{}).Then(&ToSet{}).Build()
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestChainBuilder_Valid(t *testing.T) {
	ch, err := NewChainBuilder().
		First(&GetAllElements{}).
		Then(&ExportToResultCache{}).
		Then(&GetElements{}).
		Then(&ToSet{}).
		Build()
	require.NoError(t, err)
	assert.Len(t, ch.Operations, 4)
	assert.Equal(t, TypeAnySlice, ch.OutputType())
	assert.True(t, ch.Validate().IsValid())

	single, err := NewChainBuilder().First(&GetAllJobDetails{}).Build()
	require.NoError(t, err)
	assert.Equal(t, TypeJobDetails, single.OutputType())

	noInput, err := NewChainBuilder().First(&GetAllElements{}).Then(&GetJobDetails{}).Build()
	require.NoError(t, err)
	assert.Equal(t, TypeJobDetail, noInput.OutputType())

	passThroughOutput, err := NewChainBuilder().First(&GetAllElements{}).Then(&ExportToResultCache{}).Build()
	require.NoError(t, err)
	assert.Equal(t, TypeElements, passThroughOutput.OutputType())
}

func TestChain_CloneCopiesSteps(t *testing.T) {
	limit := &Limit{ResultLimit: 2}
	limit.SetOption("k", "v")
	inner := NewChain(&ToSet{})
	ch := NewChain(limit, inner)

	clone := ch.Clone()
	require.Len(t, clone.Operations, 2)
	copied := clone.Operations[0].(*Limit)
	assert.NotSame(t, limit, copied)
	assert.Equal(t, 2, copied.ResultLimit)
	assert.NotSame(t, inner, clone.Operations[1])

	require.NoError(t, copied.SetInput([]any{1, 2, 3}))
	copied.SetOption("k", "changed")
	assert.Nil(t, limit.Input)
	assert.Equal(t, "v", limit.Options()["k"])
}

func TestChain_ValidateCollectsStepErrors(t *testing.T) {
	ch := NewChain(&GetAllElements{}, &Limit{})
	r := ch.Validate()
	assert.False(t, r.IsValid())
	assert.Equal(t, []string{"operation 1 (Limit): resultLimit is required"}, r.Errors())

	assert.False(t, NewChain().Validate().IsValid())
}

func TestSetInput_Conversions(t *testing.T) {
	add := &AddElements{}
	require.NoError(t, add.SetInput([]any{element.NewEntity("g", "v")}))
	assert.Len(t, add.Input, 1)
	assert.Error(t, add.SetInput([]any{"not an element"}))

	get := &GetElements{}
	require.NoError(t, get.SetInput([]element.Element{element.NewEntity("g", "v")}))
	require.Len(t, get.Input, 1)

	set := &ToSet{}
	require.NoError(t, set.SetInput([]element.ID{element.EntitySeed{Vertex: 1}}))
	assert.Equal(t, []any{element.EntitySeed{Vertex: 1}}, set.Input)
	assert.Error(t, set.SetInput(42))
}

// ============================================================================
// Codec
// ============================================================================

func TestCodec_OperationRoundTrip(t *testing.T) {
	codec := NewCodec()
	op := &GetElements{
		Input:        element.IDs{element.EntitySeed{Vertex: "a"}, element.NewEdgeSeed("a", "b", true)},
		View:         view.NewBuilder().Entity("person", nil).Build(),
		SeedMatching: SeedMatchingEqual,
		DirectedType: element.Directed,
	}
	op.SetOption("k", "v")

	data, err := codec.Encode(op)
	require.NoError(t, err)

	var head map[string]any
	require.NoError(t, json.Unmarshal(data, &head))
	assert.Equal(t, "GetElements", head["class"])

	decoded, err := codec.Decode(data)
	require.NoError(t, err)
	got, ok := decoded.(*GetElements)
	require.True(t, ok)
	assert.Equal(t, op.Input, got.Input)
	assert.Equal(t, SeedMatchingEqual, got.SeedMatching)
	assert.Equal(t, "v", got.Option("k"))
	assert.True(t, got.View.Includes("person"))
}

func TestCodec_EmptyOperation(t *testing.T) {
	data, err := NewCodec().Encode(&GetAllJobDetails{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"class":"GetAllJobDetails"}`, string(data))
}

func TestCodec_ChainRoundTrip(t *testing.T) {
	codec := NewCodec()
	ch, err := NewChainBuilder().
		First(&AddElements{Input: element.Elements{element.NewEntity("g", "v").WithProperty("count", 1)}}).
		Then(&GetAllElements{}).
		Then(&Limit{ResultLimit: 5}).
		Build()
	require.NoError(t, err)

	data, err := codec.Encode(ch)
	require.NoError(t, err)
	decoded, err := codec.DecodeChain(data)
	require.NoError(t, err)
	require.Len(t, decoded.Operations, 3)

	add := decoded.Operations[0].(*AddElements)
	assert.True(t, add.Input[0].Equal(element.NewEntity("g", "v").WithProperty("count", 1)))
	assert.Equal(t, 5, decoded.Operations[2].(*Limit).ResultLimit)
}

func TestCodec_SingleOperationAsChain(t *testing.T) {
	ch, err := NewCodec().DecodeChain([]byte(`{"class":"GetAllElements"}`))
	require.NoError(t, err)
	require.Len(t, ch.Operations, 1)
	assert.IsType(t, &GetAllElements{}, ch.Operations[0])
}

func TestCodec_UnknownClass(t *testing.T) {
	_, err := NewCodec().Decode([]byte(`{"class":"DeleteEverything"}`))
	assert.ErrorIs(t, err, ErrInvalidOperation)

	_, err = NewCodec().Encode(&requiredOp{})
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestCodec_Register(t *testing.T) {
	codec := NewCodec()
	codec.Register("Custom", func() Operation { return &requiredOp{} })
	data, err := codec.Encode(&requiredOp{Field1: "x"})
	require.NoError(t, err)

	op, err := codec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "x", op.(*requiredOp).Field1)
	assert.Contains(t, codec.Classes(), "Custom")
}
