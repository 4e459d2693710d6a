package kvstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gadgetlabs/Gaffer/pkg/element"
	"github.com/gadgetlabs/Gaffer/pkg/function"
	"github.com/gadgetlabs/Gaffer/pkg/operation"
	"github.com/gadgetlabs/Gaffer/pkg/schema"
	"github.com/gadgetlabs/Gaffer/pkg/store"
	"github.com/gadgetlabs/Gaffer/pkg/view"
)

const testSchema = `
types:
  vertex.string:
    class: string
  count.long:
    class: long
    aggregateFunction: {function: sum}
entities:
  person:
    vertex: vertex.string
    properties:
      count: count.long
edges:
  knows:
    source: vertex.string
    destination: vertex.string
    properties:
      count: count.long
visibilityProperty: visibility
`

func loadSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.Load([]byte(testSchema))
	require.NoError(t, err)
	return s
}

func openStore(t *testing.T, backend store.Backend, props *store.Properties) *store.Store {
	t.Helper()
	s, err := store.New("graph1", loadSchema(t), props, backend)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func backends(t *testing.T) map[string]func() *store.Store {
	return map[string]func() *store.Store{
		ClassMemory: func() *store.Store {
			return openStore(t, NewMemory(), store.NewProperties(store.KeyStoreClass, ClassMemory))
		},
		ClassBadger: func() *store.Store {
			return openStore(t, NewBadger(), store.NewProperties(
				store.KeyStoreClass, ClassBadger, store.KeyBadgerInMemory, "true"))
		},
	}
}

func run(t *testing.T, s *store.Store, ops ...operation.Operation) any {
	t.Helper()
	out, err := s.Execute(operation.NewChain(ops...), store.NewContext(store.User{UserID: "test", DataAuths: []string{"public"}}))
	require.NoError(t, err)
	return out
}

func seed(t *testing.T, s *store.Store) {
	t.Helper()
	run(t, s, &operation.AddElements{Input: element.Elements{
		element.NewEntity("person", "alice").WithProperty("count", int64(1)),
		element.NewEntity("person", "alice").WithProperty("count", int64(2)),
		element.NewEntity("person", "bob").WithProperty("count", int64(1)),
		element.NewEdge("knows", "alice", "bob", true).WithProperty("count", int64(1)),
		element.NewEdge("knows", "carol", "alice", true).WithProperty("count", int64(1)),
		element.NewEdge("knows", "carol", "alice", true).WithProperty("count", int64(1)),
		element.NewEntity("person", "secret").WithProperty("visibility", "private"),
	}})
}

// ============================================================================
// Store operations
// ============================================================================

func TestBackend_AggregatesOnIngest(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			seed(t, s)

			count, err := s.ExecuteOperation(&CountAllElements{}, nil)
			require.NoError(t, err)
			assert.Equal(t, int64(5), count)

			all := run(t, s, &operation.GetAllElements{}).([]element.Element)
			assert.Len(t, all, 4, "invisible element is filtered")
			for _, el := range all {
				if e, ok := el.(*element.Entity); ok && e.Vertex() == "alice" {
					assert.Equal(t, int64(3), e.Property("count"))
				}
			}
		})
	}
}

func TestBackend_GetElements(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			seed(t, s)

			got := run(t, s, &operation.GetElements{Input: element.IDs{element.EntitySeed{Vertex: "alice"}}}).([]element.Element)
			require.Len(t, got, 3)

			matched := map[string]element.MatchedVertex{}
			for _, el := range got {
				if e, ok := el.(*element.Edge); ok {
					matched[element.VertexKey(e.Source())] = e.MatchedVertex()
				}
			}
			assert.Equal(t, element.MatchedSource, matched[element.VertexKey("alice")])
			assert.Equal(t, element.MatchedDestination, matched[element.VertexKey("carol")])

			equal := run(t, s, &operation.GetElements{
				Input:        element.IDs{element.EntitySeed{Vertex: "alice"}},
				SeedMatching: operation.SeedMatchingEqual,
			}).([]element.Element)
			assert.Len(t, equal, 1)

			outgoing := run(t, s, &operation.GetElements{
				Input:                   element.IDs{element.EntitySeed{Vertex: "alice"}},
				IncludeIncomingOutgoing: operation.IncludeOutgoing,
			}).([]element.Element)
			assert.Len(t, outgoing, 2)

			edge := run(t, s, &operation.GetElements{
				Input: element.IDs{element.NewEdgeSeed("carol", "alice", true)},
				View:  view.NewBuilder().Edge("knows", nil).Build(),
			}).([]element.Element)
			require.Len(t, edge, 1)
			assert.Equal(t, int64(2), edge[0].Property("count"))
		})
	}
}

func TestBackend_GetElementsAppliesView(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			seed(t, s)

			filter, err := function.NewFilterBuilder().Select("count").Execute(function.IsMoreThan(int64(1), false)).Build()
			require.NoError(t, err)
			v := view.NewBuilder().Entity("person", &view.ElementDefinition{PreAggregationFilter: filter}).Build()

			got := run(t, s, &operation.GetElements{
				Input: element.IDs{element.EntitySeed{Vertex: "alice"}, element.EntitySeed{Vertex: "bob"}},
				View:  v,
			}).([]element.Element)
			require.Len(t, got, 1)
			assert.Equal(t, "alice", got[0].(*element.Entity).Vertex())
		})
	}
}

func TestBackend_GetAdjacentIds(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			seed(t, s)

			ids := run(t, s, &operation.GetAdjacentIds{Input: element.IDs{element.EntitySeed{Vertex: "alice"}}}).([]element.ID)
			assert.ElementsMatch(t, []element.ID{element.EntitySeed{Vertex: "bob"}, element.EntitySeed{Vertex: "carol"}}, ids)

			in := run(t, s, &operation.GetAdjacentIds{
				Input:                   element.IDs{element.EntitySeed{Vertex: "alice"}},
				IncludeIncomingOutgoing: operation.IncludeIncoming,
			}).([]element.ID)
			assert.Equal(t, []element.ID{element.EntitySeed{Vertex: "carol"}}, in)
		})
	}
}

func TestBackend_ChainHops(t *testing.T) {
	s := backends(t)[ClassMemory]()
	seed(t, s)

	out := run(t, s,
		&operation.GetAdjacentIds{Input: element.IDs{element.EntitySeed{Vertex: "carol"}}},
		&operation.GetElements{View: view.NewBuilder().Entity("person", nil).Build()},
	).([]element.Element)
	require.Len(t, out, 1)
	assert.Equal(t, int64(3), out[0].Property("count"))
}

func TestBackend_Traits(t *testing.T) {
	s := backends(t)[ClassMemory]()
	assert.True(t, s.Traits().Has(store.IngestAggregation))
	assert.True(t, s.Traits().Has(store.Ordered))
	assert.False(t, s.Traits().Has(store.Visibility))
}

// ============================================================================
// Badger persistence
// ============================================================================

func TestBadger_PersistsAcrossStores(t *testing.T) {
	dir := t.TempDir()
	props := func() *store.Properties {
		return store.NewProperties(store.KeyStoreClass, ClassBadger, store.KeyDataDir, dir)
	}

	s, err := store.New("graph1", loadSchema(t), props(), NewBadger())
	require.NoError(t, err)
	run(t, s, &operation.AddElements{Input: element.Elements{element.NewEntity("person", "a").WithProperty("count", int64(2))}})
	require.NoError(t, s.Close())

	s = openStore(t, NewBadger(), props())
	run(t, s, &operation.AddElements{Input: element.Elements{element.NewEntity("person", "a").WithProperty("count", int64(5))}})

	all := run(t, s, &operation.GetAllElements{}).([]element.Element)
	require.Len(t, all, 1)
	assert.Equal(t, int64(7), all[0].Property("count"))
}

func TestBadger_RequiresDataDir(t *testing.T) {
	_, err := store.New("graph1", loadSchema(t), store.NewProperties(store.KeyStoreClass, ClassBadger), NewBadger())
	assert.ErrorIs(t, err, store.ErrInitialisation)
}

func TestRegisterOperations(t *testing.T) {
	c := operation.NewCodec()
	RegisterOperations(c)

	op, err := c.Decode([]byte(`{"class":"CountAllElements"}`))
	require.NoError(t, err)
	assert.IsType(t, &CountAllElements{}, op)
}
