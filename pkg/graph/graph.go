// Package graph assembles a Store from a graph id, a schema and store
// properties, optionally registered in and resolved from a graph library.
//
// Example Usage:
//
//	g, err := graph.NewBuilder().
//		GraphID("graph1").
//		Schema(sch).
//		Properties(props).
//		Library(lib).
//		Build(ctx)
//	if err != nil {
//		return err
//	}
//	defer g.Close()
//
//	result, err := g.Execute(ctx, chain, store.User{UserID: "alice"})
//
// A graph already in the library can be opened by id alone:
//
//	g, err := graph.NewBuilder().GraphID("graph1").Library(lib).Build(ctx)
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gadgetlabs/Gaffer/pkg/backend/filestore"
	"github.com/gadgetlabs/Gaffer/pkg/backend/kvstore"
	"github.com/gadgetlabs/Gaffer/pkg/cache"
	"github.com/gadgetlabs/Gaffer/pkg/ctxlog"
	"github.com/gadgetlabs/Gaffer/pkg/jobs"
	"github.com/gadgetlabs/Gaffer/pkg/library"
	"github.com/gadgetlabs/Gaffer/pkg/operation"
	"github.com/gadgetlabs/Gaffer/pkg/schema"
	"github.com/gadgetlabs/Gaffer/pkg/store"
)

// ErrIncomplete is returned when a graph can be neither built from the
// given parts nor resolved from the library.
var ErrIncomplete = errors.New("graph: id, schema and properties are required")

// DefaultBackends returns the store classes shipped with gaffer.
func DefaultBackends() store.Backends {
	return store.Backends{
		kvstore.ClassMemory: kvstore.NewMemory,
		kvstore.ClassBadger: kvstore.NewBadger,
		filestore.Class:     filestore.New,
	}
}

// NewCodec returns an operation codec knowing the core operations and
// those added by the default backends.
func NewCodec() *operation.Codec {
	c := operation.NewCodec()
	kvstore.RegisterOperations(c)
	return c
}

// Builder collects the parts of a graph.
type Builder struct {
	graphID  string
	schema   *schema.Schema
	props    *store.Properties
	library  *library.Library
	backends store.Backends
	codec    *operation.Codec
	logger   *slog.Logger
	opts     []store.Option
}

// NewBuilder returns a builder using DefaultBackends.
func NewBuilder() *Builder {
	return &Builder{backends: DefaultBackends()}
}

func (b *Builder) GraphID(id string) *Builder {
	b.graphID = id
	return b
}

func (b *Builder) Schema(sch *schema.Schema) *Builder {
	b.schema = sch
	return b
}

func (b *Builder) Properties(props *store.Properties) *Builder {
	b.props = props
	return b
}

// Library registers the graph on Build, or resolves a missing schema and
// properties from it.
func (b *Builder) Library(lib *library.Library) *Builder {
	b.library = lib
	return b
}

// Backends replaces the store classes available to Build.
func (b *Builder) Backends(backends store.Backends) *Builder {
	b.backends = backends
	return b
}

func (b *Builder) Codec(c *operation.Codec) *Builder {
	b.codec = c
	return b
}

func (b *Builder) Logger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// StoreOptions are passed to store.New after the builder's own.
func (b *Builder) StoreOptions(opts ...store.Option) *Builder {
	b.opts = append(b.opts, opts...)
	return b
}

// Build resolves the schema and properties, registers them in the library
// when one is set and opens the store.
func (b *Builder) Build(ctx context.Context) (*Graph, error) {
	if b.graphID == "" {
		return nil, ErrIncomplete
	}
	logger := b.logger
	if logger == nil {
		logger = ctxlog.FromContext(ctx)
	}
	logger = logger.With("graphId", b.graphID)

	sch, props := b.schema, b.props
	if b.library != nil {
		if sch == nil || props == nil {
			stored, storedProps, err := b.library.Get(ctx, b.graphID)
			if err != nil {
				return nil, fmt.Errorf("resolving %s from library: %w", b.graphID, err)
			}
			if sch == nil {
				sch = stored
			}
			if props == nil {
				props = storedProps
			}
		}
		if _, err := b.library.Add(ctx, b.graphID, "", sch, "", props); err != nil {
			return nil, err
		}
	}
	if sch == nil || props == nil {
		return nil, ErrIncomplete
	}

	backend, err := b.backends.Open(props.StoreClass())
	if err != nil {
		return nil, err
	}

	codec := b.codec
	if codec == nil {
		codec = NewCodec()
	}
	opts := []store.Option{store.WithCodec(codec), store.WithLogger(logger)}
	var rc *cache.RedisCache
	if url := props.CacheRedisURL(); url != "" {
		if rc, err = cache.NewRedisCache(cache.RedisOptions{URL: url, TTL: props.CacheTTL()}); err != nil {
			return nil, fmt.Errorf("opening result cache: %w", err)
		}
		opts = append(opts, store.WithResultCache(rc))
	}
	opts = append(opts, b.opts...)

	s, err := store.New(b.graphID, sch, props, backend, opts...)
	if err != nil {
		if rc != nil {
			_ = rc.Close()
		}
		return nil, err
	}
	logger.Info("Graph opened.", "storeClass", props.StoreClass())
	return &Graph{store: s, logger: logger}, nil
}

// Graph is an open graph.
type Graph struct {
	store  *store.Store
	logger *slog.Logger
}

func (g *Graph) GraphID() string               { return g.store.GraphID() }
func (g *Graph) Schema() *schema.Schema        { return g.store.Schema() }
func (g *Graph) Store() *store.Store           { return g.store }
func (g *Graph) Codec() *operation.Codec       { return g.store.Codec() }
func (g *Graph) Properties() *store.Properties { return g.store.Properties() }

// Context returns an execution context for user bound to ctx.
func (g *Graph) Context(ctx context.Context, user store.User) *store.Context {
	return store.NewContext(user).WithContext(ctx)
}

// Execute runs chain as user.
func (g *Graph) Execute(ctx context.Context, chain *operation.Chain, user store.User) (any, error) {
	return g.store.Execute(chain, g.Context(ctx, user))
}

// ExecuteOperation runs a single operation as user.
func (g *Graph) ExecuteOperation(ctx context.Context, op operation.Operation, user store.User) (any, error) {
	return g.store.ExecuteOperation(op, g.Context(ctx, user))
}

// ExecuteJob submits chain as a job and returns its detail at submission.
func (g *Graph) ExecuteJob(ctx context.Context, chain *operation.Chain, user store.User) (*jobs.JobDetail, error) {
	return g.store.ExecuteJob(chain, g.Context(ctx, user))
}

// Close closes the store.
func (g *Graph) Close() error {
	g.logger.Debug("Closing graph.")
	return g.store.Close()
}
