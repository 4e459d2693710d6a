// Package library binds graph ids to an immutable schema and store
// properties pair.
//
// The library keeps three append-only tables: graph id to (schema id,
// properties id), schema id to the encoded schema and properties id to the
// encoded properties. Registering an id again with identical content is a
// no-op; different content fails with ErrOverwriting. Every insert is an
// atomic put-if-absent on the backend, so concurrent registrations of one
// new id produce exactly one winner.
//
// Example Usage:
//
//	lib := library.New(library.NewMemoryBackend())
//	ids, err := lib.Add(ctx, "graph1", "", sch, "", props)
//	if errors.Is(err, library.ErrOverwriting) {
//		// graph1 is already bound to something else
//	}
//	sch, props, err := lib.Get(ctx, "graph1")
package library

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/blake2b"

	"github.com/gadgetlabs/Gaffer/pkg/schema"
	"github.com/gadgetlabs/Gaffer/pkg/store"
)

// Errors returned by the library.
var (
	ErrOverwriting = errors.New("library: id already registered with different content")
	ErrNotFound    = errors.New("library: not found")
	ErrInvalidID   = errors.New("library: invalid id")
)

// Table names one of the library's key spaces.
type Table string

const (
	TableGraphs     Table = "graphs"
	TableSchemas    Table = "schemas"
	TableProperties Table = "properties"
)

// Backend is the durable key-value store behind a Library.
type Backend interface {
	// PutIfAbsent stores value under id unless id is present. It returns
	// the value stored after the call and whether this call inserted it.
	PutIfAbsent(ctx context.Context, table Table, id string, value []byte) (stored []byte, inserted bool, err error)
	// Get returns the value under id or ErrNotFound.
	Get(ctx context.Context, table Table, id string) ([]byte, error)
	Close() error
}

// IDs are the schema and properties ids a graph is bound to.
type IDs struct {
	SchemaID     string `json:"schemaId"`
	PropertiesID string `json:"propertiesId"`
}

// Library is the graph registry. It is safe for concurrent use.
type Library struct {
	backend Backend
	logger  *slog.Logger
}

// New returns a library over backend.
func New(backend Backend) *Library {
	return &Library{backend: backend, logger: slog.Default().With("component", "library")}
}

// ContentID returns the id derived from content: the hex encoding of the
// first 16 bytes of its BLAKE2b-256 digest.
func ContentID(content []byte) string {
	sum := blake2b.Sum256(content)
	return hex.EncodeToString(sum[:16])
}

// Add registers graphID with sch and props. Empty schemaID or
// propertiesID are derived from the content. The schema and properties
// are stored before the graph binding; a content conflict on any of the
// three fails with ErrOverwriting.
func (l *Library) Add(ctx context.Context, graphID, schemaID string, sch *schema.Schema, propertiesID string, props *store.Properties) (IDs, error) {
	if graphID == "" {
		return IDs{}, fmt.Errorf("%w: graph id is required", ErrInvalidID)
	}
	if sch == nil || props == nil {
		return IDs{}, fmt.Errorf("library: schema and properties are required for %s", graphID)
	}
	schemaBytes, err := sch.ToJSON()
	if err != nil {
		return IDs{}, fmt.Errorf("encoding schema: %w", err)
	}
	propsBytes, err := json.Marshal(props)
	if err != nil {
		return IDs{}, fmt.Errorf("encoding properties: %w", err)
	}
	if schemaID == "" {
		schemaID = ContentID(schemaBytes)
	}
	if propertiesID == "" {
		propertiesID = ContentID(propsBytes)
	}
	ids := IDs{SchemaID: schemaID, PropertiesID: propertiesID}
	idsBytes, err := json.Marshal(ids)
	if err != nil {
		return IDs{}, err
	}

	if err := l.put(ctx, TableSchemas, schemaID, schemaBytes); err != nil {
		return IDs{}, err
	}
	if err := l.put(ctx, TableProperties, propertiesID, propsBytes); err != nil {
		return IDs{}, err
	}
	if err := l.put(ctx, TableGraphs, graphID, idsBytes); err != nil {
		return IDs{}, err
	}
	l.logger.Info("Graph registered.", "graphId", graphID, "schemaId", schemaID, "propertiesId", propertiesID)
	return ids, nil
}

func (l *Library) put(ctx context.Context, table Table, id string, value []byte) error {
	stored, inserted, err := l.backend.PutIfAbsent(ctx, table, id, value)
	if err != nil {
		return fmt.Errorf("library: storing %s %q: %w", table, id, err)
	}
	if !inserted && !bytes.Equal(stored, value) {
		return fmt.Errorf("%w: %s %q", ErrOverwriting, table, id)
	}
	if !inserted {
		l.logger.Debug("Already registered.", "table", string(table), "id", id)
	}
	return nil
}

// GetIDs returns the ids graphID is bound to.
func (l *Library) GetIDs(ctx context.Context, graphID string) (IDs, error) {
	raw, err := l.get(ctx, TableGraphs, graphID)
	if err != nil {
		return IDs{}, err
	}
	var ids IDs
	if err := json.Unmarshal(raw, &ids); err != nil {
		return IDs{}, fmt.Errorf("library: decoding graph %q: %w", graphID, err)
	}
	return ids, nil
}

// GetSchemaBytes returns the encoded schema stored under schemaID.
func (l *Library) GetSchemaBytes(ctx context.Context, schemaID string) ([]byte, error) {
	return l.get(ctx, TableSchemas, schemaID)
}

// GetSchema returns the schema stored under schemaID.
func (l *Library) GetSchema(ctx context.Context, schemaID string, opts ...schema.Option) (*schema.Schema, error) {
	raw, err := l.GetSchemaBytes(ctx, schemaID)
	if err != nil {
		return nil, err
	}
	return schema.Load(raw, opts...)
}

// GetProperties returns a copy of the properties stored under
// propertiesID.
func (l *Library) GetProperties(ctx context.Context, propertiesID string) (*store.Properties, error) {
	raw, err := l.get(ctx, TableProperties, propertiesID)
	if err != nil {
		return nil, err
	}
	props := store.NewProperties()
	if err := json.Unmarshal(raw, props); err != nil {
		return nil, fmt.Errorf("library: decoding properties %q: %w", propertiesID, err)
	}
	return props, nil
}

// Get resolves the schema and properties graphID is bound to.
func (l *Library) Get(ctx context.Context, graphID string, opts ...schema.Option) (*schema.Schema, *store.Properties, error) {
	ids, err := l.GetIDs(ctx, graphID)
	if err != nil {
		return nil, nil, err
	}
	sch, err := l.GetSchema(ctx, ids.SchemaID, opts...)
	if err != nil {
		return nil, nil, err
	}
	props, err := l.GetProperties(ctx, ids.PropertiesID)
	if err != nil {
		return nil, nil, err
	}
	return sch, props, nil
}

func (l *Library) get(ctx context.Context, table Table, id string) ([]byte, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty %s id", ErrInvalidID, table)
	}
	raw, err := l.backend.Get(ctx, table, id)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s %q", ErrNotFound, table, id)
	}
	return raw, err
}

// Close closes the backend.
func (l *Library) Close() error {
	return l.backend.Close()
}
