// Package kvstore is the store backend over the storage engines.
//
// Elements are aggregated as they are written, kept in storage key order
// and looked up through the engines' vertex index. The backend serves the
// store classes "memory" and "badger".
//
// Example Usage:
//
//	props := store.NewProperties(store.KeyStoreClass, kvstore.ClassBadger,
//		store.KeyDataDir, "/var/lib/gaffer")
//	s, err := store.New("graph1", sch, props, kvstore.NewBadger())
package kvstore

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"

	"github.com/gadgetlabs/Gaffer/pkg/element"
	"github.com/gadgetlabs/Gaffer/pkg/operation"
	"github.com/gadgetlabs/Gaffer/pkg/schema"
	"github.com/gadgetlabs/Gaffer/pkg/storage"
	"github.com/gadgetlabs/Gaffer/pkg/store"
)

// Store classes served by this package.
const (
	ClassMemory = "memory"
	ClassBadger = "badger"
)

// OpenFunc opens the engine for a graph.
type OpenFunc func(graphID string, sch *schema.Schema, props *store.Properties) (storage.Engine, error)

// Backend adapts a storage.Engine to store.Backend.
type Backend struct {
	open   OpenFunc
	engine storage.Engine
	logger *slog.Logger
}

var _ store.Backend = (*Backend)(nil)

// New returns a backend opening its engine with open.
func New(open OpenFunc) *Backend {
	return &Backend{open: open, logger: slog.Default()}
}

// NewMemory returns a backend over a MemoryEngine.
func NewMemory() store.Backend {
	return New(func(_ string, sch *schema.Schema, _ *store.Properties) (storage.Engine, error) {
		return storage.NewMemoryEngine(sch), nil
	})
}

// NewBadger returns a backend over a BadgerEngine in
// <gaffer.store.data.dir>/<graphId>, or in memory when
// gaffer.store.badger.inmemory is set.
func NewBadger() store.Backend {
	return New(func(graphID string, sch *schema.Schema, props *store.Properties) (storage.Engine, error) {
		opts := storage.BadgerOptions{
			InMemory:   props.BadgerInMemory(),
			SyncWrites: props.BadgerSyncWrites(),
			Logger:     slog.Default().With("graphId", graphID),
			Schema:     sch,
		}
		if !opts.InMemory {
			if props.DataDir() == "" {
				return nil, fmt.Errorf("%s is required for the badger store", store.KeyDataDir)
			}
			opts.DataDir = filepath.Join(props.DataDir(), graphID)
		}
		return storage.NewBadgerEngineWithOptions(opts)
	})
}

// Initialise opens the engine.
func (b *Backend) Initialise(graphID string, sch *schema.Schema, props *store.Properties) error {
	engine, err := b.open(graphID, sch, props)
	if err != nil {
		return err
	}
	b.engine = engine
	b.logger = b.logger.With("graphId", graphID, "storeClass", props.StoreClass())
	b.logger.Debug("Engine opened.")
	return nil
}

// Traits: the engines aggregate on write, return elements in key order and
// the handlers annotate matched vertices.
func (b *Backend) Traits() store.TraitSet {
	return store.NewTraitSet(store.Ordered, store.IngestAggregation, store.MatchedVertex)
}

// Engine returns the open engine.
func (b *Backend) Engine() storage.Engine { return b.engine }

func (b *Backend) GetElementsHandler() store.Handler {
	return store.TypedHandler(func(op *operation.GetElements, _ *store.Context, _ *store.Store) (any, error) {
		candidates, err := b.engine.ByVertices(seedVertices(op.Input)...)
		if err != nil {
			return nil, err
		}
		opts := store.SeedOptionsOf(op)
		out := make([]element.Element, 0, len(candidates))
		for _, el := range candidates {
			if matched, ok := store.MatchSeeds(el, op.Input, opts); ok {
				out = append(out, matched)
			}
		}
		return out, nil
	})
}

func (b *Backend) GetAllElementsHandler() store.Handler {
	return store.TypedHandler(func(_ *operation.GetAllElements, _ *store.Context, _ *store.Store) (any, error) {
		return b.engine.All()
	})
}

// GetAdjacentIdsHandler runs the view over the edges touching the seeds
// before collecting their far ends.
func (b *Backend) GetAdjacentIdsHandler() store.Handler {
	return store.TypedHandler(func(op *operation.GetAdjacentIds, ctx *store.Context, s *store.Store) (any, error) {
		candidates, err := b.engine.ByVertices(seedVertices(op.Input)...)
		if err != nil {
			return nil, err
		}
		edges := candidates[:0]
		for _, el := range candidates {
			if _, ok := el.(*element.Edge); ok {
				edges = append(edges, el)
			}
		}
		edges = store.FilterDirected(edges, op.DirectedType)
		edges, err = s.ElementPipeline(op.View, ctx).Run(edges)
		if err != nil {
			return nil, err
		}
		return store.AdjacentIDs(edges, op.Input, store.SeedOptions{
			InOut:        op.IncludeIncomingOutgoing,
			DirectedType: op.DirectedType,
		}), nil
	})
}

func (b *Backend) AddElementsHandler() store.Handler {
	return store.TypedHandler(func(op *operation.AddElements, ctx *store.Context, _ *store.Store) (any, error) {
		if err := b.engine.Put(op.Input); err != nil {
			return nil, err
		}
		ctx.Logger().Debug("Stored elements.", "count", len(op.Input))
		return nil, nil
	})
}

// AddAdditionalOperationHandlers registers CountAllElements.
func (b *Backend) AddAdditionalOperationHandlers(r *store.HandlerRegistry) {
	r.Register(&CountAllElements{}, store.TypedHandler(func(_ *CountAllElements, _ *store.Context, _ *store.Store) (any, error) {
		return b.engine.Count()
	}))
}

// Close closes the engine.
func (b *Backend) Close() error {
	if b.engine == nil {
		return nil
	}
	return b.engine.Close()
}

// seedVertices returns the vertices whose index entries can hold matches
// for seeds.
func seedVertices(seeds []element.ID) []any {
	out := make([]any, 0, len(seeds))
	for _, seed := range seeds {
		switch s := seed.(type) {
		case element.EntitySeed:
			out = append(out, s.Vertex)
		case element.EdgeSeed:
			out = append(out, s.Source, s.Destination)
		case element.Element:
			out = append(out, seedVertices([]element.ID{s.ID()})...)
		}
	}
	return out
}

// ============================================================================
// Backend operations
// ============================================================================

// CountAllElements returns the number of stored elements, after ingest
// aggregation.
type CountAllElements struct {
	operation.Base
}

var typeInt64 = reflect.TypeOf(int64(0))

func (o *CountAllElements) Validate() operation.ValidationResult {
	return operation.ValidateRequired(o)
}
func (o *CountAllElements) OutputType() reflect.Type { return typeInt64 }

// RegisterOperations adds this backend's operation classes to c.
func RegisterOperations(c *operation.Codec) {
	c.Register("CountAllElements", func() operation.Operation { return &CountAllElements{} })
}
