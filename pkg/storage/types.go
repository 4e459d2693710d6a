// Package storage provides the element persistence engines behind the
// key-value store backend.
//
// An Engine keeps elements under their aggregation key. Writing an element
// whose key is already stored merges the two with the group's schema
// aggregator, so every engine performs ingest aggregation. Groups that do
// not aggregate are stored once per write.
//
// Two implementations share the Engine contract:
//   - MemoryEngine: maps guarded by a RWMutex, for tests and small graphs
//   - BadgerEngine: BadgerDB, on disk or in memory
//
// Example Usage:
//
//	engine := storage.NewMemoryEngine(sch)
//	defer engine.Close()
//
//	err := engine.Put([]element.Element{
//		element.NewEntity("person", "alice").WithProperty("count", int64(1)),
//		element.NewEntity("person", "alice").WithProperty("count", int64(2)),
//	})
//
//	els, _ := engine.ByVertices("alice")
//	fmt.Println(els[0].Property("count")) // 3
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/gadgetlabs/Gaffer/pkg/element"
	"github.com/gadgetlabs/Gaffer/pkg/schema"
)

// Common errors
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidData      = errors.New("invalid data")
	ErrStorageClosed    = errors.New("storage closed")
	ErrIterationStopped = errors.New("iteration stopped") // Sentinel to stop streaming early
)

// Engine persists elements with ingest aggregation.
//
// Elements returned by an engine are independent copies: callers may
// mutate them freely. Results are ordered by storage key.
type Engine interface {
	// Put stores els, merging each with the stored element that shares its
	// aggregation key. A batch is applied atomically where the engine
	// supports it.
	Put(els []element.Element) error
	// Get returns the element stored under key.
	Get(key string) (element.Element, error)
	// ByVertices returns the entities on any of vertices and the edges with
	// one of vertices at either end. Each stored element is returned once.
	ByVertices(vertices ...any) ([]element.Element, error)
	// All returns every stored element.
	All() ([]element.Element, error)
	// Stream visits every stored element until fn returns an error.
	// Returning ErrIterationStopped ends the walk without an error.
	Stream(ctx context.Context, fn ElementVisitor) error
	// Count returns the number of stored elements.
	Count() (int64, error)
	Close() error
}

// ElementVisitor is called once per element by Engine.Stream.
type ElementVisitor func(el element.Element) error

// Compile-time interface checks.
var (
	_ Engine = (*MemoryEngine)(nil)
	_ Engine = (*BadgerEngine)(nil)
)

// keyer assigns storage keys and merges elements that share one.
type keyer struct {
	schema *schema.Schema
	next   func() (uint64, error)
}

// storageKey returns the key el is stored under. Non-aggregated groups
// get a unique suffix so repeated writes are kept apart.
func (k keyer) storageKey(el element.Element) (string, error) {
	if k.schema == nil {
		return el.Key(), nil
	}
	key := k.schema.AggregationKey(el)
	if k.schema.IsAggregated(el.Group()) {
		return key, nil
	}
	seq, err := k.next()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s#%020d", key, seq), nil
}

// merge folds incoming into stored. stored is the accumulator.
func (k keyer) merge(incoming, stored element.Element) (element.Element, error) {
	if k.schema == nil {
		return incoming, nil
	}
	return k.schema.Aggregator(incoming.Group()).Aggregate(incoming, stored)
}

// vertexKeys returns the index keys of the vertices el touches.
func vertexKeys(el element.Element) []string {
	switch e := el.(type) {
	case *element.Entity:
		return []string{element.VertexKey(e.Vertex())}
	case *element.Edge:
		src, dst := element.VertexKey(e.Source()), element.VertexKey(e.Destination())
		if src == dst {
			return []string{src}
		}
		return []string{src, dst}
	}
	return nil
}

// prepare copies el for storage, dropping query-time annotations.
func prepare(el element.Element) element.Element {
	out := el.Clone()
	if e, ok := out.(*element.Edge); ok {
		e.SetMatchedVertex(element.MatchedNone)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
