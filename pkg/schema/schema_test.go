package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gadgetlabs/Gaffer/pkg/element"
)

const testSchema = `
types:
  vertex.string:
    class: string
  count.long:
    class: long
    aggregateFunction: {function: sum}
    validateFunctions:
      - {function: isMoreThan, args: {value: 0, orEqualTo: true}}
  max.long:
    class: long
    aggregateFunction: {function: max}
  label.string:
    class: string
    aggregateFunction: {function: first}
  visibility.string:
    class: string
    aggregateFunction: {function: first}
entities:
  person:
    vertex: vertex.string
    properties:
      count: count.long
      best: max.long
edges:
  knows:
    source: vertex.string
    destination: vertex.string
    properties:
      count: count.long
      label: label.string
    groupBy: [label]
  raw:
    source: vertex.string
    destination: vertex.string
    aggregate: false
    properties:
      label: label.string
visibilityProperty: visibility
`

func loadTestSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := Load([]byte(testSchema))
	require.NoError(t, err)
	return s
}

// ============================================================================
// Loading & consistency
// ============================================================================

func TestLoad_Groups(t *testing.T) {
	s := loadTestSchema(t)
	assert.Equal(t, []string{"person"}, s.EntityGroups())
	assert.Equal(t, []string{"knows", "raw"}, s.EdgeGroups())
	assert.Equal(t, []string{"knows", "person", "raw"}, s.Groups())
	assert.True(t, s.IsEntity("person"))
	assert.True(t, s.IsEdge("knows"))
	assert.Equal(t, "visibility", s.VisibilityProperty)
}

func TestLoad_AcceptsJSON(t *testing.T) {
	s, err := Load([]byte(`{"types":{"s":{"class":"string"}},"entities":{"e":{"vertex":"s","aggregate":false}}}`))
	require.NoError(t, err)
	assert.True(t, s.IsEntity("e"))
	assert.False(t, s.IsAggregated("e"))
}

func TestLoad_Inconsistent(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"undeclared property type", `
types: {s: {class: string}}
entities: {e: {vertex: s, aggregate: false, properties: {p: missing}}}`},
		{"unknown class", `
types: {s: {class: uuid}}`},
		{"undeclared vertex type", `
types: {s: {class: string}}
entities: {e: {vertex: nope}}`},
		{"aggregated without function", `
types: {s: {class: string}}
entities: {e: {vertex: s, properties: {p: s}}}`},
		{"custom aggregator on undeclared property", `
types: {s: {class: string}}
entities:
  e:
    vertex: s
    properties: {p: s}
    aggregateFunctions:
      - {selection: [q], function: {function: first}}`},
		{"validator on undeclared property", `
types: {s: {class: string}}
entities:
  e:
    vertex: s
    aggregate: false
    properties: {p: s}
    validateFunctions:
      - {selection: [q], function: {function: exists}}`},
		{"group is entity and edge", `
types: {s: {class: string}}
entities: {g: {vertex: s}}
edges: {g: {source: s, destination: s}}`},
		{"groupBy not declared", `
types: {s: {class: string, aggregateFunction: {function: first}}}
entities: {e: {vertex: s, groupBy: [x]}}`},
		{"unknown function", `
types: {s: {class: string, aggregateFunction: {function: median}}}
entities: {e: {vertex: s, properties: {p: s}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrSchemaInconsistent)
		})
	}
}

func TestLoadFiles_Merges(t *testing.T) {
	dir := t.TempDir()
	types := filepath.Join(dir, "types.yaml")
	elements := filepath.Join(dir, "elements.yaml")
	require.NoError(t, os.WriteFile(types, []byte(`
types:
  s: {class: string}
  n: {class: long, aggregateFunction: {function: sum}}`), 0o644))
	require.NoError(t, os.WriteFile(elements, []byte(`
entities:
  e: {vertex: s, properties: {count: n}}`), 0o644))

	s, err := LoadFiles([]string{types, elements})
	require.NoError(t, err)
	assert.True(t, s.IsAggregated("e"))
}

func TestMerge_Conflict(t *testing.T) {
	a, err := Load([]byte(`types: {s: {class: string}}`))
	require.NoError(t, err)
	b, err := Load([]byte(`types: {s: {class: long}}`))
	require.NoError(t, err)

	_, err = Merge(a, b)
	assert.ErrorIs(t, err, ErrSchemaInconsistent)

	same, err := Merge(a, a)
	require.NoError(t, err)
	assert.Len(t, same.Types, 1)
}

func TestToJSON_Deterministic(t *testing.T) {
	s1 := loadTestSchema(t)
	s2 := loadTestSchema(t)
	j1, err := s1.ToJSON()
	require.NoError(t, err)
	j2, err := s2.ToJSON()
	require.NoError(t, err)
	assert.Equal(t, string(j1), string(j2))

	reloaded, err := Load(j1)
	require.NoError(t, err)
	if diff := cmp.Diff(s1.Groups(), reloaded.Groups()); diff != "" {
		t.Errorf("groups mismatch after reload (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(s1.EdgeGroups(), reloaded.EdgeGroups()); diff != "" {
		t.Errorf("edge groups mismatch after reload (-want +got):\n%s", diff)
	}
}

// ============================================================================
// Aggregation
// ============================================================================

func TestAggregator_FromTypes(t *testing.T) {
	s := loadTestSchema(t)
	agg := s.Aggregator("person")
	assert.Equal(t, []string{"best", "count"}, agg.Selections())

	state := element.NewEntity("person", "a").WithProperty("count", 2).WithProperty("best", 5)
	next := element.NewEntity("person", "a").WithProperty("count", 3).WithProperty("best", 9)
	out, err := agg.Aggregate(next, state)
	require.NoError(t, err)
	assert.Equal(t, int64(5), out.Property("count"))
	assert.Equal(t, 9, out.Property("best"))
}

func TestAggregator_NonAggregatedGroupIsEmpty(t *testing.T) {
	s := loadTestSchema(t)
	assert.True(t, s.Aggregator("raw").IsEmpty())
	assert.True(t, s.Aggregator("unknown").IsEmpty())
}

func TestAggregationKey_GroupBy(t *testing.T) {
	s := loadTestSchema(t)
	a := element.NewEdge("knows", "x", "y", true).WithProperty("label", "work")
	b := element.NewEdge("knows", "x", "y", true).WithProperty("label", "home")
	c := element.NewEdge("knows", "x", "y", true).WithProperty("label", "work").WithProperty("count", 4)

	assert.NotEqual(t, s.AggregationKey(a), s.AggregationKey(b))
	assert.Equal(t, s.AggregationKey(a), s.AggregationKey(c))

	p := element.NewEntity("person", "x")
	assert.Equal(t, p.Key(), s.AggregationKey(p))

	sep1 := element.NewEdge("knows", "x", "y", true).WithProperty("label", "a|s:b")
	sep2 := element.NewEdge("knows", "x", "y|s:\"a", true).WithProperty("label", "b")
	assert.NotEqual(t, s.AggregationKey(sep1), s.AggregationKey(sep2))
}

// ============================================================================
// Validation
// ============================================================================

func TestValidate(t *testing.T) {
	s := loadTestSchema(t)
	tests := []struct {
		name    string
		el      element.Element
		wantErr error
	}{
		{"valid entity", element.NewEntity("person", "a").WithProperty("count", 1), nil},
		{"valid edge", element.NewEdge("knows", "a", "b", true).WithProperty("label", "x"), nil},
		{"visibility allowed", element.NewEntity("person", "a").WithProperty("visibility", "public"), nil},
		{"absent property passes type validators", element.NewEntity("person", "a"), nil},
		{"unknown group", element.NewEntity("animal", "a"), ErrUnknownGroup},
		{"edge group used as entity", element.NewEntity("knows", "a"), ErrUnknownGroup},
		{"undeclared property", element.NewEntity("person", "a").WithProperty("age", 1), ErrInvalidElement},
		{"wrong class", element.NewEntity("person", "a").WithProperty("count", "many"), ErrInvalidElement},
		{"validator fails", element.NewEntity("person", "a").WithProperty("count", -1), ErrInvalidElement},
		{"wrong vertex class", element.NewEntity("person", 7), ErrInvalidElement},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Validate(tt.el)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
