// Package store executes operation chains against a pluggable backend.
//
// A Store owns the schema, the frozen store properties and a handler
// registry. Backends declare the traits they implement natively and supply
// handlers for the core element operations; the store wraps those handlers
// with the generic behaviour (validation, filtering, aggregation,
// projection) the backend leaves out.
//
// Example Usage:
//
//	props := store.NewProperties(store.KeyStoreClass, "memory")
//	s, err := store.New("graph1", sch, props, kvstore.New())
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	chain, _ := operation.NewChainBuilder().
//		First(&operation.GetAllElements{}).
//		Then(&operation.Limit{ResultLimit: 10}).
//		Build()
//	result, err := s.Execute(chain, store.NewContext(store.User{UserID: "alice"}))
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/gadgetlabs/Gaffer/pkg/cache"
	"github.com/gadgetlabs/Gaffer/pkg/jobs"
	"github.com/gadgetlabs/Gaffer/pkg/operation"
	"github.com/gadgetlabs/Gaffer/pkg/schema"
)

const tracerName = "github.com/gadgetlabs/Gaffer/pkg/store"

// Backend is implemented by storage engines.
//
// Element handlers return fresh elements: the store filters, aggregates
// and projects them in place.
type Backend interface {
	// Initialise prepares the backend for graphID. Properties are frozen.
	Initialise(graphID string, sch *schema.Schema, props *Properties) error
	// Traits returns the behaviour the backend implements itself.
	Traits() TraitSet
	GetElementsHandler() Handler
	GetAllElementsHandler() Handler
	GetAdjacentIdsHandler() Handler
	AddElementsHandler() Handler
	// AddAdditionalOperationHandlers registers backend-specific handlers.
	AddAdditionalOperationHandlers(r *HandlerRegistry)
	Close() error
}

// BackendFactory creates an uninitialised backend.
type BackendFactory func() Backend

// Backends maps store class names to factories.
type Backends map[string]BackendFactory

// Open returns a new backend of class.
func (b Backends) Open(class string) (Backend, error) {
	f, ok := b[class]
	if !ok || f == nil {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownStoreClass, class, b.Classes())
	}
	return f(), nil
}

// Classes returns the class names, sorted.
func (b Backends) Classes() []string {
	out := make([]string, 0, len(b))
	for name := range b {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Option configures a Store.
type Option func(*Store)

// WithResultCache sets the cache used by result exports. Defaults to a
// MemoryCache expiring after gaffer.cache.ttl.
func WithResultCache(c cache.ResultCache) Option {
	return func(s *Store) { s.cache = c }
}

// WithJobTracker sets the tracker used when job tracking is enabled.
func WithJobTracker(t jobs.Tracker) Option {
	return func(s *Store) { s.tracker = t }
}

// WithCodec sets the codec resolving operation classes in declarations
// and describing job chains.
func WithCodec(c *operation.Codec) Option {
	return func(s *Store) { s.codec = c }
}

// WithHandlerCatalog sets the catalog resolving declared handler names.
func WithHandlerCatalog(c *HandlerCatalog) Option {
	return func(s *Store) { s.catalog = c }
}

// WithTracer sets the tracer. Defaults to the global otel tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Store) { s.tracer = t }
}

// WithLogger sets the logger used outside of an execution.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store dispatches operations to handlers.
type Store struct {
	graphID string
	schema  *schema.Schema
	props   *Properties
	backend Backend
	traits  TraitSet

	registry *HandlerRegistry
	codec    *operation.Codec
	catalog  *HandlerCatalog
	cache    cache.ResultCache
	tracker  jobs.Tracker
	tracer   trace.Tracer
	logger   *slog.Logger

	jobSlots *semaphore.Weighted
	jobs     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// New initialises backend and builds the handler registry: built-ins, the
// backend's core and additional handlers, then the declarations listed in
// props. props is frozen once the store is ready. No store is returned on
// failure and props are then left as they were.
func New(graphID string, sch *schema.Schema, props *Properties, backend Backend, opts ...Option) (*Store, error) {
	if graphID == "" {
		return nil, fmt.Errorf("%w: graph id is required", ErrInitialisation)
	}
	if sch == nil {
		return nil, fmt.Errorf("%w: schema is required", ErrInitialisation)
	}
	if props == nil {
		props = NewProperties()
	}
	if err := props.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInitialisation, err)
	}
	if class := props.SchemaClass(); class != DefaultSchemaClass {
		return nil, fmt.Errorf("%w: unsupported schema class %q", ErrInitialisation, class)
	}

	s := &Store{
		graphID:  graphID,
		schema:   sch,
		props:    props,
		backend:  backend,
		registry: NewHandlerRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.codec == nil {
		s.codec = operation.NewCodec()
	}
	if s.catalog == nil {
		s.catalog = NewHandlerCatalog()
	}
	if s.cache == nil {
		s.cache = cache.NewMemoryCache(0, props.CacheTTL())
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("graphId", graphID)

	if props.JobTrackerEnabled() {
		if s.tracker == nil {
			s.tracker = jobs.NewMemoryTracker()
		}
		s.jobSlots = semaphore.NewWeighted(int64(props.JobExecutorThreads()))
	} else {
		s.tracker = nil
	}

	if err := backend.Initialise(graphID, sch, props); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInitialisation, err)
	}
	s.traits = backend.Traits()

	if err := s.registerHandlers(); err != nil {
		_ = backend.Close()
		return nil, err
	}
	props.Freeze()
	s.logger.Info("Store initialised.",
		"storeClass", props.StoreClass(), "traits", s.traits.String(), "operations", len(s.registry.Types()))
	return s, nil
}

func (s *Store) registerHandlers() error {
	r := s.registry
	r.Register(&operation.ToSet{}, TypedHandler(handleToSet))
	r.Register(&operation.Limit{}, TypedHandler(handleLimit))
	r.Register(&operation.ExportToResultCache{}, TypedHandler(handleExportToResultCache))
	r.Register(&operation.GetResultCacheExport{}, TypedHandler(handleGetResultCacheExport))
	r.Register(&operation.Chain{}, TypedHandler(handleChain))
	if s.tracker != nil {
		r.Register(&operation.GetJobDetails{}, TypedHandler(handleGetJobDetails))
		r.Register(&operation.GetAllJobDetails{}, TypedHandler(handleGetAllJobDetails))
	}

	r.Register(&operation.GetElements{}, s.getElementsHandler(s.backend.GetElementsHandler()))
	r.Register(&operation.GetAllElements{}, s.getAllElementsHandler(s.backend.GetAllElementsHandler()))
	r.Register(&operation.GetAdjacentIds{}, s.getAdjacentIdsHandler(s.backend.GetAdjacentIdsHandler()))
	r.Register(&operation.AddElements{}, s.addElementsHandler(s.backend.AddElementsHandler()))

	s.backend.AddAdditionalOperationHandlers(r)

	for _, path := range s.props.OperationDeclarationPaths() {
		decls, err := LoadDeclarations(path)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInitialisation, err)
		}
		if err := decls.Apply(r, s.codec, s.catalog); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInitialisation, path, err)
		}
		s.logger.Debug("Applied operation declarations.", "path", path, "count", len(decls.Operations))
	}
	return nil
}

// GraphID returns the graph this store serves.
func (s *Store) GraphID() string { return s.graphID }

// Schema returns the store's schema.
func (s *Store) Schema() *schema.Schema { return s.schema }

// Properties returns the frozen store properties.
func (s *Store) Properties() *Properties { return s.props }

// Traits returns the backend's traits.
func (s *Store) Traits() TraitSet { return s.traits }

// Registry returns the handler registry.
func (s *Store) Registry() *HandlerRegistry { return s.registry }

// Codec returns the operation codec.
func (s *Store) Codec() *operation.Codec { return s.codec }

// JobTracker returns the tracker, or nil when job tracking is disabled.
func (s *Store) JobTracker() jobs.Tracker { return s.tracker }

// Supports reports whether op has a handler.
func (s *Store) Supports(op operation.Operation) bool {
	return s.registry.Supports(op)
}

// Execute validates chain and runs its steps in order, feeding each step's
// output to the next step's input. The first failure aborts the chain and
// no partial result is returned. Handler failures are wrapped in *Error.
//
// Steps are copied before their input is set, so chain is left untouched and
// can be executed again.
func (s *Store) Execute(chain *operation.Chain, ctx *Context) (any, error) {
	if s.isClosed() {
		return nil, ErrStoreClosed
	}
	return s.execute(chain, ctx)
}

// execute runs chain without the closed check. Jobs accepted before Close
// and nested chains go through here.
func (s *Store) execute(chain *operation.Chain, ctx *Context) (any, error) {
	if ctx == nil {
		ctx = NewContext(User{})
	}
	if chain == nil {
		return nil, fmt.Errorf("%w: chain is required", operation.ErrInvalidOperation)
	}
	if err := chain.Validate().Err(); err != nil {
		return nil, err
	}

	var result any
	for i, op := range chain.Operations {
		op = operation.Copy(op)
		if in, ok := op.(operation.Input); ok && i > 0 {
			if err := in.SetInput(result); err != nil {
				return nil, fmt.Errorf("operation %d (%s): %w", i, operation.Name(op), err)
			}
		}
		h, err := s.registry.Resolve(op)
		if err != nil {
			return nil, err
		}
		out, err := s.runStep(i, op, h, ctx)
		if err != nil {
			return nil, err
		}
		result = out
	}
	return result, nil
}

// ExecuteOperation runs a single operation, which may itself be a chain.
func (s *Store) ExecuteOperation(op operation.Operation, ctx *Context) (any, error) {
	if ch, ok := op.(*operation.Chain); ok {
		return s.Execute(ch, ctx)
	}
	return s.Execute(operation.NewChain(op), ctx)
}

func (s *Store) runStep(i int, op operation.Operation, h Handler, ctx *Context) (any, error) {
	name := operation.Name(op)
	spanCtx, span := s.tracer.Start(ctx.Context(), "operation."+name,
		trace.WithAttributes(
			attribute.String("gaffer.graph.id", s.graphID),
			attribute.String("gaffer.job.id", ctx.JobID()),
			attribute.Int("gaffer.operation.index", i),
		))
	defer span.End()

	start := time.Now()
	out, err := h.Handle(op, ctx.withContext(spanCtx), s)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		ctx.Logger().Debug("Operation failed.", "operation", name, "index", i, "error", err)
		return nil, wrapError(name, err)
	}
	ctx.Logger().Debug("Operation finished.", "operation", name, "index", i, "duration", time.Since(start))
	return out, nil
}

// ExecuteJob validates chain, registers a job under ctx's job id and runs
// the chain in the background on the bounded job executor. The returned
// detail is a snapshot taken at submission. List results of a finished job
// are exported to the result cache under the default export key.
func (s *Store) ExecuteJob(chain *operation.Chain, ctx *Context) (*jobs.JobDetail, error) {
	if s.tracker == nil {
		return nil, ErrJobTrackerDisabled
	}
	if ctx == nil {
		ctx = NewContext(User{})
	}
	if chain == nil {
		return nil, fmt.Errorf("%w: chain is required", operation.ErrInvalidOperation)
	}
	if err := chain.Validate().Err(); err != nil {
		return nil, err
	}
	chain = chain.Clone()

	desc, err := s.codec.Encode(chain)
	if err != nil {
		desc = []byte(fmt.Sprintf("%d operations", len(chain.Operations)))
	}
	detail := &jobs.JobDetail{
		JobID:     ctx.JobID(),
		UserID:    ctx.User().UserID,
		OpChain:   string(desc),
		Status:    jobs.StatusQueued,
		StartTime: time.Now(),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrStoreClosed
	}
	if err := s.tracker.Add(detail); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.jobs.Add(1)
	s.mu.Unlock()

	jobCtx := ctx.child(ctx.JobID())
	go s.runJob(chain, jobCtx)
	return detail.Clone(), nil
}

func (s *Store) runJob(chain *operation.Chain, ctx *Context) {
	defer s.jobs.Done()
	logger := ctx.Logger()

	if err := s.jobSlots.Acquire(context.Background(), 1); err != nil {
		s.finishJob(ctx, err)
		return
	}
	defer s.jobSlots.Release(1)

	if _, err := s.tracker.Transition(ctx.JobID(), jobs.StatusRunning, ""); err != nil {
		logger.Warn("Job transition failed.", "error", err)
		s.finishJob(ctx, err)
		return
	}
	result, err := s.execute(chain, ctx)
	if err == nil {
		if items, lerr := operation.ToSlice(result); lerr == nil && result != nil {
			err = s.cache.Put(ctx.Context(), ctx.JobID(), operation.DefaultExportKey, items)
		}
	}
	s.finishJob(ctx, err)
}

func (s *Store) finishJob(ctx *Context, err error) {
	status, desc := jobs.StatusFinished, ""
	if err != nil {
		status, desc = jobs.StatusFailed, err.Error()
	}
	if _, terr := s.tracker.Transition(ctx.JobID(), status, desc); terr != nil {
		ctx.Logger().Warn("Job transition failed.", "error", terr)
		return
	}
	ctx.Logger().Info("Job completed.", "status", status)
}

// Wait blocks until every submitted job has completed.
func (s *Store) Wait() {
	s.jobs.Wait()
}

// Close stops accepting jobs, waits for the accepted ones, then closes the
// backend and the result cache.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.jobs.Wait()
	return errors.Join(s.backend.Close(), s.cache.Close())
}

func (s *Store) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
