package view

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gadgetlabs/Gaffer/pkg/element"
	"github.com/gadgetlabs/Gaffer/pkg/function"
	"github.com/gadgetlabs/Gaffer/pkg/schema"
)

const viewSchema = `
types:
  s: {class: string}
  n: {class: long, aggregateFunction: {function: sum}}
entities:
  person: {vertex: s, properties: {count: n, other: n}}
edges:
  knows: {source: s, destination: s, properties: {count: n}}
`

func TestView_NilIncludesEverything(t *testing.T) {
	var v *View
	assert.True(t, v.Includes("anything"))
	assert.True(t, v.IncludesEntities())
	assert.Nil(t, v.Groups())

	el := element.NewEntity("g", "v").WithProperty("a", 1)
	v.Project(el)
	assert.Equal(t, 1, el.Property("a"))
}

func TestView_GroupsAndProjection(t *testing.T) {
	v := NewBuilder().
		Entity("person", &ElementDefinition{Properties: []string{"count"}}).
		Edge("knows", &ElementDefinition{ExcludeProperties: []string{"count"}}).
		Build()

	assert.Equal(t, []string{"knows", "person"}, v.Groups())
	assert.False(t, v.Includes("other"))

	p := element.NewEntity("person", "a").WithProperty("count", 1).WithProperty("other", 2)
	v.Project(p)
	assert.Equal(t, []string{"count"}, p.Properties().Keys())

	e := element.NewEdge("knows", "a", "b", true).WithProperty("count", 1)
	v.Project(e)
	assert.True(t, e.Properties().IsEmpty())
}

func TestView_Validate(t *testing.T) {
	s, err := schema.Load([]byte(viewSchema))
	require.NoError(t, err)

	exists, err := function.NewFilterBuilder().Select("missing").Execute(function.Exists()).Build()
	require.NoError(t, err)

	tests := []struct {
		name    string
		view    *View
		wantErr bool
	}{
		{"nil", nil, false},
		{"valid", NewBuilder().Entity("person", nil).Edge("knows", nil).Build(), false},
		{"unknown group", NewBuilder().Entity("animal", nil).Build(), true},
		{"wrong kind", NewBuilder().Edge("person", nil).Build(), true},
		{"undeclared filter property", NewBuilder().Entity("person", &ElementDefinition{PreAggregationFilter: exists}).Build(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.view.Validate(s)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidView)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestView_JSON(t *testing.T) {
	data := []byte(`{
		"entities": {
			"person": {
				"preAggregationFilterFunctions": [
					{"selection": ["count"], "function": {"function": "isMoreThan", "args": {"value": 1}}}
				],
				"properties": ["count"]
			}
		},
		"edges": {"knows": {}}
	}`)
	var v View
	require.NoError(t, json.Unmarshal(data, &v))

	def, ok := v.Element("person")
	require.True(t, ok)
	pass, err := def.PreAggregationFilter.Test(element.NewEntity("person", "a").WithProperty("count", 2))
	require.NoError(t, err)
	assert.True(t, pass)
	assert.True(t, v.Includes("knows"))

	out, err := json.Marshal(&v)
	require.NoError(t, err)
	var again View
	require.NoError(t, json.Unmarshal(out, &again))
	assert.Equal(t, v.Groups(), again.Groups())
}
