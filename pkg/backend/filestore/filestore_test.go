package filestore

import (
	"context"
	"os"
	"path/filepath"
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

func openStore(t *testing.T, dir string) *store.Store {
	t.Helper()
	props := store.NewProperties(store.KeyStoreClass, Class, store.KeyDataDir, dir, store.KeyFileReaders, "2")
	s, err := store.New("graph1", loadSchema(t), props, New())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func execute(s *store.Store, ops ...operation.Operation) (any, error) {
	return s.Execute(operation.NewChain(ops...), store.NewContext(store.User{UserID: "test", DataAuths: []string{"public"}}))
}

func run(t *testing.T, s *store.Store, ops ...operation.Operation) any {
	t.Helper()
	out, err := execute(s, ops...)
	require.NoError(t, err)
	return out
}

func seed(t *testing.T, s *store.Store) {
	t.Helper()
	run(t, s, &operation.AddElements{Input: element.Elements{
		element.NewEntity("person", "alice").WithProperty("count", int64(1)),
		element.NewEntity("person", "bob").WithProperty("count", int64(1)),
		element.NewEdge("knows", "alice", "bob", true).WithProperty("count", int64(1)),
		element.NewEdge("knows", "carol", "alice", true).WithProperty("count", int64(1)),
	}})
	run(t, s, &operation.AddElements{Input: element.Elements{
		element.NewEntity("person", "alice").WithProperty("count", int64(2)),
		element.NewEdge("knows", "carol", "alice", true).WithProperty("count", int64(1)),
		element.NewEntity("person", "secret").WithProperty("visibility", "private"),
	}})
}

func countOf(t *testing.T, els []element.Element, vertex string) any {
	t.Helper()
	for _, el := range els {
		if e, ok := el.(*element.Entity); ok && e.Vertex() == vertex {
			return e.Property("count")
		}
	}
	t.Fatalf("no entity for %s", vertex)
	return nil
}

// ============================================================================
// Store operations
// ============================================================================

func TestBackend_AggregatesAtQueryTime(t *testing.T) {
	s := openStore(t, t.TempDir())
	seed(t, s)

	all := run(t, s, &operation.GetAllElements{}).([]element.Element)
	assert.Len(t, all, 4, "partitions merged, invisible element filtered")
	assert.Equal(t, int64(3), countOf(t, all, "alice"))
}

func TestBackend_PreAggregationFilterRunsInReaders(t *testing.T) {
	s := openStore(t, t.TempDir())
	seed(t, s)

	filter, err := function.NewFilterBuilder().Select("count").Execute(function.IsMoreThan(int64(1), false)).Build()
	require.NoError(t, err)
	v := view.NewBuilder().Entity("person", &view.ElementDefinition{PreAggregationFilter: filter}).Build()

	got := run(t, s, &operation.GetElements{
		Input: element.IDs{element.EntitySeed{Vertex: "alice"}, element.EntitySeed{Vertex: "bob"}},
		View:  v,
	}).([]element.Element)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].Property("count"), "filter sees the stored values before aggregation")
}

func TestBackend_GetElements(t *testing.T) {
	s := openStore(t, t.TempDir())
	seed(t, s)

	got := run(t, s, &operation.GetElements{Input: element.IDs{element.EntitySeed{Vertex: "alice"}}}).([]element.Element)
	require.Len(t, got, 3)

	edge := run(t, s, &operation.GetElements{
		Input: element.IDs{element.NewEdgeSeed("carol", "alice", true)},
		View:  view.NewBuilder().Edge("knows", nil).Build(),
	}).([]element.Element)
	require.Len(t, edge, 1)
	assert.Equal(t, int64(2), edge[0].Property("count"))
	assert.Equal(t, element.MatchedNone, edge[0].(*element.Edge).MatchedVertex())
}

func TestBackend_GetAdjacentIds(t *testing.T) {
	s := openStore(t, t.TempDir())
	seed(t, s)

	ids := run(t, s, &operation.GetAdjacentIds{Input: element.IDs{element.EntitySeed{Vertex: "alice"}}}).([]element.ID)
	assert.ElementsMatch(t, []element.ID{element.EntitySeed{Vertex: "bob"}, element.EntitySeed{Vertex: "carol"}}, ids)

	out := run(t, s, &operation.GetAdjacentIds{
		Input:                   element.IDs{element.EntitySeed{Vertex: "alice"}},
		IncludeIncomingOutgoing: operation.IncludeOutgoing,
	}).([]element.ID)
	assert.Equal(t, []element.ID{element.EntitySeed{Vertex: "bob"}}, out)
}

func TestBackend_Traits(t *testing.T) {
	s := openStore(t, t.TempDir())
	assert.True(t, s.Traits().Has(store.PreAggregationFiltering))
	assert.False(t, s.Traits().Has(store.IngestAggregation))
}

func TestBackend_RequiresDataDir(t *testing.T) {
	_, err := store.New("graph1", loadSchema(t), store.NewProperties(store.KeyStoreClass, Class), New())
	assert.ErrorIs(t, err, store.ErrInitialisation)
}

// ============================================================================
// Partitions
// ============================================================================

func TestBackend_PartitionsPersist(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)
	seed(t, s)
	require.NoError(t, s.Close())

	s = openStore(t, dir)
	run(t, s, &operation.AddElements{Input: element.Elements{
		element.NewEntity("person", "alice").WithProperty("count", int64(4)),
	}})

	entries, err := os.ReadDir(filepath.Join(dir, "graph1"))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{partitionName(0), partitionName(1), partitionName(2)}, names, "no temporary files remain")

	all := run(t, s, &operation.GetAllElements{}).([]element.Element)
	assert.Equal(t, int64(7), countOf(t, all, "alice"))
}

func TestBackend_CorruptPartitionFailsQuery(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)
	seed(t, s)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "graph1", partitionName(7)), []byte("{not json\n"), 0o644))

	_, err := execute(s, &operation.GetAllElements{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptPartition)
	var se *store.Error
	assert.ErrorAs(t, err, &se)
}

func TestReadPartitions_FailureLeaksNothing(t *testing.T) {
	for _, limit := range []int{1, 2, 8} {
		b := &Backend{dir: t.TempDir()}
		for i := 0; i < 5; i++ {
			_, err := b.writePartition([]element.Element{
				element.NewEntity("person", i).WithProperty("count", int64(1)),
				element.NewEntity("person", i+100).WithProperty("count", int64(1)),
			})
			require.NoError(t, err)
		}
		require.NoError(t, os.WriteFile(filepath.Join(b.dir, partitionName(3)), []byte(`{"class":"entity","group":"person","vertex":1}`+"\nbroken\n"), 0o644))

		parts, err := b.partitions()
		require.NoError(t, err)
		require.Len(t, parts, 5)

		c := NewConduit()
		err = readPartitions(context.Background(), parts, limit, nil, keepAll, c)
		assert.ErrorIs(t, err, ErrCorruptPartition, "limit %d", limit)
		assert.Zero(t, c.Len(), "limit %d", limit)
		assert.Empty(t, c.Drain())
	}
}

func TestReadPartitions_Cancelled(t *testing.T) {
	b := &Backend{dir: t.TempDir()}
	_, err := b.writePartition([]element.Element{element.NewEntity("person", "a")})
	require.NoError(t, err)
	parts, err := b.partitions()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewConduit()
	assert.ErrorIs(t, readPartitions(ctx, parts, 1, nil, keepAll, c), context.Canceled)
	assert.Zero(t, c.Len())
}

// ============================================================================
// Conduit
// ============================================================================

func TestConduit(t *testing.T) {
	c := NewConduit()
	a := element.NewEntity("person", "a")
	b := element.NewEntity("person", "b")

	batch := []element.Element{b}
	require.True(t, c.Publish(2, batch))
	require.True(t, c.Publish(1, []element.Element{a}))
	batch[0] = nil
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []element.Element{a, b}, c.Drain(), "ordered by index, batches copied")
	assert.Zero(t, c.Len())

	c.Publish(1, []element.Element{a})
	c.Discard()
	assert.False(t, c.Publish(3, []element.Element{b}))
	assert.Empty(t, c.Drain())
}
