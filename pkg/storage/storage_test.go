package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gadgetlabs/Gaffer/pkg/element"
	"github.com/gadgetlabs/Gaffer/pkg/schema"
)

const testSchema = `
types:
  vertex.string:
    class: string
  count.long:
    class: long
    aggregateFunction: {function: sum}
  label.string:
    class: string
    aggregateFunction: {function: first}
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
      label: label.string
    groupBy: [label]
  raw:
    source: vertex.string
    destination: vertex.string
    aggregate: false
    properties:
      label: label.string
`

func loadSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.Load([]byte(testSchema))
	require.NoError(t, err)
	return s
}

type engineFactory func(t *testing.T, sch *schema.Schema) Engine

func engines() map[string]engineFactory {
	return map[string]engineFactory{
		"memory": func(t *testing.T, sch *schema.Schema) Engine {
			e := NewMemoryEngine(sch)
			t.Cleanup(func() { _ = e.Close() })
			return e
		},
		"badger": func(t *testing.T, sch *schema.Schema) Engine {
			e, err := NewBadgerEngineInMemory(sch)
			require.NoError(t, err)
			t.Cleanup(func() { _ = e.Close() })
			return e
		},
	}
}

func forEachEngine(t *testing.T, fn func(t *testing.T, e Engine)) {
	for name, factory := range engines() {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t, loadSchema(t)))
		})
	}
}

// ============================================================================
// Ingest aggregation
// ============================================================================

func TestEngine_IngestAggregation(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		require.NoError(t, e.Put([]element.Element{
			element.NewEntity("person", "alice").WithProperty("count", int64(1)),
			element.NewEntity("person", "alice").WithProperty("count", int64(2)),
		}))
		require.NoError(t, e.Put([]element.Element{
			element.NewEntity("person", "alice").WithProperty("count", int64(4)),
		}))

		all, err := e.All()
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, int64(7), all[0].Property("count"))
	})
}

func TestEngine_GroupByKeepsSeparateElements(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		require.NoError(t, e.Put([]element.Element{
			element.NewEdge("knows", "alice", "bob", true).WithProperty("label", "work").WithProperty("count", int64(1)),
			element.NewEdge("knows", "alice", "bob", true).WithProperty("label", "home").WithProperty("count", int64(1)),
			element.NewEdge("knows", "alice", "bob", true).WithProperty("label", "work").WithProperty("count", int64(1)),
		}))

		n, err := e.Count()
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})
}

func TestEngine_SeparatorsInVerticesKeepEdgesApart(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		require.NoError(t, e.Put([]element.Element{
			element.NewEdge("knows", "a|s:b", "c", true).WithProperty("count", int64(1)),
			element.NewEdge("knows", "a", "b|s:c", true).WithProperty("count", int64(2)),
		}))

		all, err := e.All()
		require.NoError(t, err)
		require.Len(t, all, 2)
		counts := map[any]any{}
		for _, el := range all {
			counts[el.(*element.Edge).Source()] = el.Property("count")
		}
		assert.Equal(t, map[any]any{"a|s:b": int64(1), "a": int64(2)}, counts)

		require.NoError(t, e.Put([]element.Element{
			element.NewEntity("person", "x"),
			element.NewEntity("person", "x\x00y"),
		}))
		x, err := e.ByVertices("x")
		require.NoError(t, err)
		require.Len(t, x, 1)
		assert.Equal(t, "x", x[0].(*element.Entity).Vertex())
	})
}

func TestEngine_NonAggregatedGroupKeepsEveryWrite(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		edge := element.NewEdge("raw", "alice", "bob", true).WithProperty("label", "x")
		require.NoError(t, e.Put([]element.Element{edge, edge}))
		require.NoError(t, e.Put([]element.Element{edge}))

		n, err := e.Count()
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})
}

func TestEngine_UndirectedEdgesMergeRegardlessOfOrder(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		require.NoError(t, e.Put([]element.Element{
			element.NewEdge("knows", "bob", "alice", false).WithProperty("count", int64(1)),
			element.NewEdge("knows", "alice", "bob", false).WithProperty("count", int64(1)),
		}))
		all, err := e.All()
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, int64(2), all[0].Property("count"))
	})
}

func TestEngine_NilSchemaReplaces(t *testing.T) {
	for name, factory := range engines() {
		t.Run(name, func(t *testing.T) {
			e := factory(t, nil)
			require.NoError(t, e.Put([]element.Element{element.NewEntity("person", "a").WithProperty("count", int64(1))}))
			require.NoError(t, e.Put([]element.Element{element.NewEntity("person", "a").WithProperty("count", int64(5))}))
			all, err := e.All()
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.Equal(t, int64(5), all[0].Property("count"))
		})
	}
}

// ============================================================================
// Reads
// ============================================================================

func TestEngine_ByVertices(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		require.NoError(t, e.Put([]element.Element{
			element.NewEntity("person", "alice"),
			element.NewEntity("person", "bob"),
			element.NewEdge("knows", "alice", "bob", true),
			element.NewEdge("knows", "carol", "dave", true),
			element.NewEdge("knows", "alice", "alice", true),
		}))

		alice, err := e.ByVertices("alice")
		require.NoError(t, err)
		assert.Len(t, alice, 3)

		bob, err := e.ByVertices("bob")
		require.NoError(t, err)
		assert.Len(t, bob, 2)

		none, err := e.ByVertices("zed")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestEngine_ReturnsCopies(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		require.NoError(t, e.Put([]element.Element{element.NewEntity("person", "a").WithProperty("count", int64(1))}))

		first, err := e.All()
		require.NoError(t, err)
		first[0].PutProperty("count", int64(99))

		again, err := e.Get(first[0].Key())
		require.NoError(t, err)
		assert.Equal(t, int64(1), again.Property("count"))
	})
}

func TestEngine_GetMissing(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		_, err := e.Get("nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestEngine_DropsMatchedVertex(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		edge := element.NewEdge("knows", "a", "b", true)
		edge.SetMatchedVertex(element.MatchedSource)
		require.NoError(t, e.Put([]element.Element{edge}))

		all, err := e.All()
		require.NoError(t, err)
		assert.Equal(t, element.MatchedNone, all[0].(*element.Edge).MatchedVertex())
		assert.Equal(t, element.MatchedSource, edge.MatchedVertex(), "input is not modified")
	})
}

func TestEngine_Stream(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		require.NoError(t, e.Put([]element.Element{
			element.NewEntity("person", "a"), element.NewEntity("person", "b"), element.NewEntity("person", "c"),
		}))

		var seen []any
		err := e.Stream(context.Background(), func(el element.Element) error {
			seen = append(seen, el.(*element.Entity).Vertex())
			if len(seen) == 2 {
				return ErrIterationStopped
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []any{"a", "b"}, seen)

		boom := errors.New("boom")
		err = e.Stream(context.Background(), func(element.Element) error { return boom })
		assert.ErrorIs(t, err, boom)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, e.Stream(ctx, func(element.Element) error { return nil }), context.Canceled)
	})
}

// ============================================================================
// Lifecycle & concurrency
// ============================================================================

func TestEngine_Closed(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		require.NoError(t, e.Close())
		require.NoError(t, e.Close())
		assert.ErrorIs(t, e.Put([]element.Element{element.NewEntity("person", "a")}), ErrStorageClosed)
		_, err := e.All()
		assert.ErrorIs(t, err, ErrStorageClosed)
		_, err = e.Count()
		assert.ErrorIs(t, err, ErrStorageClosed)
	})
}

func TestEngine_NilElementRejected(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		err := e.Put([]element.Element{element.NewEntity("person", "a"), nil})
		assert.ErrorIs(t, err, ErrInvalidData)
		n, _ := e.Count()
		assert.Zero(t, n)
	})
}

func TestEngine_ConcurrentPutsAggregate(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		const writers = 8
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, e.Put([]element.Element{
					element.NewEntity("person", "hot").WithProperty("count", int64(1)),
				}))
			}()
		}
		wg.Wait()

		el, err := e.Get(element.NewEntity("person", "hot").Key())
		require.NoError(t, err)
		assert.Equal(t, int64(writers), el.Property("count"))
	})
}

func TestBadgerEngine_Persists(t *testing.T) {
	dir := t.TempDir()
	sch := loadSchema(t)

	e, err := NewBadgerEngine(dir, sch)
	require.NoError(t, err)
	require.NoError(t, e.Put([]element.Element{element.NewEntity("person", "a").WithProperty("count", int64(2))}))
	require.NoError(t, e.Close())

	e, err = NewBadgerEngine(dir, sch)
	require.NoError(t, err)
	defer e.Close()
	require.NoError(t, e.Put([]element.Element{element.NewEntity("person", "a").WithProperty("count", int64(3))}))

	all, err := e.All()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(5), all[0].Property("count"))
}

func TestBadgerEngine_RequiresDir(t *testing.T) {
	_, err := NewBadgerEngineWithOptions(BadgerOptions{})
	assert.ErrorIs(t, err, ErrInvalidData)
}
