package store

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/gadgetlabs/Gaffer/pkg/operation"
)

// Handler executes one operation against a store.
type Handler interface {
	Handle(op operation.Operation, ctx *Context, s *Store) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(op operation.Operation, ctx *Context, s *Store) (any, error)

func (f HandlerFunc) Handle(op operation.Operation, ctx *Context, s *Store) (any, error) {
	return f(op, ctx, s)
}

// TypedHandler adapts a function over one concrete operation type.
func TypedHandler[T operation.Operation](fn func(op T, ctx *Context, s *Store) (any, error)) Handler {
	return HandlerFunc(func(op operation.Operation, ctx *Context, s *Store) (any, error) {
		typed, ok := op.(T)
		if !ok {
			var zero T
			return nil, fmt.Errorf("%w: handler for %T got %T", ErrUnsupportedOperation, zero, op)
		}
		return fn(typed, ctx, s)
	})
}

type contractBinding struct {
	iface   reflect.Type
	handler Handler
}

// HandlerRegistry maps operation types to handlers.
//
// Resolution prefers a handler registered for the exact type, then the
// narrowest registered contract (interface) the operation implements.
// Contracts that do not embed one another resolve in registration order.
type HandlerRegistry struct {
	mu        sync.RWMutex
	exact     map[reflect.Type]Handler
	contracts []contractBinding
}

// NewHandlerRegistry returns an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{exact: make(map[reflect.Type]Handler)}
}

// Register binds the exact type of op to h, replacing an earlier binding.
func (r *HandlerRegistry) Register(op operation.Operation, h Handler) {
	t := reflect.TypeOf(op)
	r.mu.Lock()
	defer r.mu.Unlock()
	slog.Debug("Registering operation handler.", "operation", t.String())
	r.exact[t] = h
}

// RegisterContract binds every operation implementing iface to h. iface is
// an interface type, e.g. reflect.TypeOf((*operation.Output)(nil)).Elem().
func (r *HandlerRegistry) RegisterContract(iface reflect.Type, h Handler) error {
	if iface == nil || iface.Kind() != reflect.Interface {
		return fmt.Errorf("%w: contract %v is not an interface", ErrInvalidDeclaration, iface)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	slog.Debug("Registering contract handler.", "contract", iface.String())
	r.contracts = append(r.contracts, contractBinding{iface: iface, handler: h})
	return nil
}

// Unregister removes the exact binding for op's type.
func (r *HandlerRegistry) Unregister(op operation.Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.exact, reflect.TypeOf(op))
}

// Resolve returns the handler for op or ErrUnsupportedOperation.
func (r *HandlerRegistry) Resolve(op operation.Operation) (Handler, error) {
	t := reflect.TypeOf(op)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.exact[t]; ok {
		return h, nil
	}
	var best *contractBinding
	for i := range r.contracts {
		c := &r.contracts[i]
		if t == nil || !t.Implements(c.iface) {
			continue
		}
		if best == nil || (c.iface != best.iface && c.iface.Implements(best.iface)) {
			best = c
		}
	}
	if best != nil {
		return best.handler, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperation, operation.Name(op))
}

// Supports reports whether op resolves to a handler.
func (r *HandlerRegistry) Supports(op operation.Operation) bool {
	_, err := r.Resolve(op)
	return err == nil
}

// Types returns the names of the exactly registered types, sorted.
func (r *HandlerRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.exact))
	for t := range r.exact {
		out = append(out, t.String())
	}
	sort.Strings(out)
	return out
}

// HandlerCatalog names handlers so operation declarations can refer to
// them from configuration.
type HandlerCatalog struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewHandlerCatalog returns a catalog holding the built-in handlers.
func NewHandlerCatalog() *HandlerCatalog {
	c := &HandlerCatalog{handlers: make(map[string]Handler)}
	c.Register("toSet", TypedHandler(handleToSet))
	c.Register("limit", TypedHandler(handleLimit))
	c.Register("exportToResultCache", TypedHandler(handleExportToResultCache))
	c.Register("getResultCacheExport", TypedHandler(handleGetResultCacheExport))
	c.Register("getJobDetails", TypedHandler(handleGetJobDetails))
	c.Register("getAllJobDetails", TypedHandler(handleGetAllJobDetails))
	c.Register("operationChain", TypedHandler(handleChain))
	return c
}

// Register names h. Registering a name twice panics.
func (c *HandlerCatalog) Register(name string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.handlers[name]; exists {
		panic(fmt.Sprintf("handler with name '%s' already registered", name))
	}
	c.handlers[name] = h
}

// Lookup returns the handler registered under name.
func (c *HandlerCatalog) Lookup(name string) (Handler, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.handlers[name]
	return h, ok
}

// Names returns the registered names, sorted.
func (c *HandlerCatalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.handlers))
	for name := range c.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
