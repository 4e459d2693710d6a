// Package storage provides storage engine implementations.
//
// BadgerEngine provides persistent disk-based storage using BadgerDB.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/gadgetlabs/Gaffer/pkg/element"
	"github.com/gadgetlabs/Gaffer/pkg/schema"
)

// Key prefixes for BadgerDB storage organization
// Using single-byte prefixes for efficiency
const (
	prefixElement     = byte(0x01) // element:storageKey -> JSON(Element)
	prefixVertexIndex = byte(0x02) // vertex:vertexKey:storageKey -> []byte{}
	prefixMeta        = byte(0x03) // engine metadata (sequences)
)

// maxConflictRetries bounds the retries of a write batch that lost an
// optimistic transaction race.
const maxConflictRetries = 10

// BadgerEngine provides persistent element storage using BadgerDB.
//
// Features:
//   - Each Put batch is one ACID transaction, retried on conflict
//   - Ingest aggregation inside the write transaction
//   - Vertex index for ByVertices lookups
//
// Key Structure:
//   - Elements: 0x01 + storageKey -> JSON(Element)
//   - Vertex Index: 0x02 + vertexKey + 0x00 + storageKey -> empty
//   - Sequence: 0x03 + "seq" (non-aggregated element suffixes)
//
// Example:
//
//	engine, err := storage.NewBadgerEngine("/path/to/data", sch)
//	if err != nil {
//		return err
//	}
//	defer engine.Close()
//
//	err = engine.Put([]element.Element{element.NewEntity("person", "alice")})
type BadgerEngine struct {
	db     *badger.DB
	seq    *badger.Sequence
	keyer  keyer
	mu     sync.RWMutex // Protects closed
	closed bool
}

// BadgerOptions configures the BadgerDB engine.
type BadgerOptions struct {
	// DataDir is the directory for storing data files.
	// Required unless InMemory is set.
	DataDir string

	// InMemory runs BadgerDB in memory-only mode.
	// Useful for testing. Data is not persisted.
	InMemory bool

	// SyncWrites forces fsync after each write.
	// Slower but more durable.
	SyncWrites bool

	// Logger receives BadgerDB's internal logging. If nil, Badger's own
	// logging is silenced.
	Logger *slog.Logger

	// Schema drives ingest aggregation. A nil schema stores the last write
	// per element key.
	Schema *schema.Schema
}

// NewBadgerEngine opens a persistent engine in dataDir with default
// settings.
func NewBadgerEngine(dataDir string, sch *schema.Schema) (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{
		DataDir: dataDir,
		Schema:  sch,
	})
}

// NewBadgerEngineInMemory creates an in-memory BadgerDB for testing.
//
// Data is not persisted and is lost when the engine is closed.
func NewBadgerEngineInMemory(sch *schema.Schema) (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{
		InMemory: true,
		Schema:   sch,
	})
}

// NewBadgerEngineWithOptions creates a BadgerEngine with custom
// configuration.
//
// Configuration Trade-offs:
//   - SyncWrites=true: Slower writes but maximum safety
//   - InMemory=true: Fastest but data lost on shutdown
func NewBadgerEngineWithOptions(opts BadgerOptions) (*BadgerEngine, error) {
	if opts.DataDir == "" && !opts.InMemory {
		return nil, fmt.Errorf("%w: data directory is required", ErrInvalidData)
	}
	badgerOpts := DBOptions(opts.DataDir, opts.InMemory, opts.SyncWrites, opts.Logger)
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}
	seq, err := db.GetSequence([]byte{prefixMeta, 's', 'e', 'q'}, 128)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open sequence: %w", err)
	}

	b := &BadgerEngine{db: db, seq: seq}
	b.keyer = keyer{schema: opts.Schema, next: seq.Next}
	return b, nil
}

// ============================================================================
// Key encoding helpers
// ============================================================================

func elementKey(storageKey string) []byte {
	return append([]byte{prefixElement}, storageKey...)
}

// vertexIndexKey: prefix + vertexKey + 0x00 + storageKey
func vertexIndexKey(vertexKey, storageKey string) []byte {
	key := make([]byte, 0, 2+len(vertexKey)+len(storageKey))
	key = append(key, prefixVertexIndex)
	key = append(key, vertexKey...)
	key = append(key, 0x00)
	key = append(key, storageKey...)
	return key
}

func vertexIndexPrefix(vertexKey string) []byte {
	key := make([]byte, 0, 2+len(vertexKey))
	key = append(key, prefixVertexIndex)
	key = append(key, vertexKey...)
	return append(key, 0x00)
}

// extractStorageKey returns the storage key of a vertex index entry.
func extractStorageKey(indexKey []byte) string {
	i := bytes.IndexByte(indexKey[1:], 0x00)
	if i < 0 {
		return ""
	}
	return string(indexKey[i+2:])
}

// ============================================================================
// Engine operations
// ============================================================================

func (b *BadgerEngine) checkOpen() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStorageClosed
	}
	return nil
}

// Put stores els in one transaction, merging each with the element already
// stored under its aggregation key. Reads inside the transaction see its
// own pending writes, so duplicates within a batch merge too.
func (b *BadgerEngine) Put(els []element.Element) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	for _, el := range els {
		if el == nil {
			return ErrInvalidData
		}
	}

	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = b.db.Update(func(txn *badger.Txn) error {
			for _, el := range els {
				if err := b.putInTxn(txn, el); err != nil {
					return err
				}
			}
			return nil
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func (b *BadgerEngine) putInTxn(txn *badger.Txn, el element.Element) error {
	storageKey, err := b.keyer.storageKey(el)
	if err != nil {
		return err
	}
	key := elementKey(storageKey)
	incoming := prepare(el)

	stored, err := getInTxn(txn, key)
	switch {
	case err == nil:
		if incoming, err = b.keyer.merge(incoming, stored); err != nil {
			return err
		}
	case !errors.Is(err, ErrNotFound):
		return err
	}

	data, err := serializeElement(incoming)
	if err != nil {
		return fmt.Errorf("failed to encode element: %w", err)
	}
	if err := txn.Set(key, data); err != nil {
		return err
	}
	for _, vk := range vertexKeys(incoming) {
		if err := txn.Set(vertexIndexKey(vk, storageKey), []byte{}); err != nil {
			return err
		}
	}
	return nil
}

func getInTxn(txn *badger.Txn, key []byte) (element.Element, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var el element.Element
	err = item.Value(func(val []byte) error {
		var decodeErr error
		el, decodeErr = deserializeElement(val)
		return decodeErr
	})
	return el, err
}

// Get retrieves the element stored under key.
func (b *BadgerEngine) Get(key string) (element.Element, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	var el element.Element
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		el, err = getInTxn(txn, elementKey(key))
		return err
	})
	return el, err
}

// ByVertices scans the vertex index of each vertex, then loads the
// indexed elements in key order.
func (b *BadgerEngine) ByVertices(vertices ...any) ([]element.Element, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	var out []element.Element
	err := b.db.View(func(txn *badger.Txn) error {
		keys := make(map[string]struct{})
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for _, v := range vertices {
			prefix := vertexIndexPrefix(element.VertexKey(v))
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				keys[extractStorageKey(it.Item().Key())] = struct{}{}
			}
		}

		for _, key := range sortedKeys(keys) {
			el, err := getInTxn(txn, elementKey(key))
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out = append(out, el)
		}
		return nil
	})
	return out, err
}

// All returns every element in key order.
func (b *BadgerEngine) All() ([]element.Element, error) {
	var out []element.Element
	err := b.Stream(context.Background(), func(el element.Element) error {
		out = append(out, el)
		return nil
	})
	return out, err
}

// Stream iterates the element prefix in one read transaction.
func (b *BadgerEngine) Stream(ctx context.Context, fn ElementVisitor) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := []byte{prefixElement}
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var el element.Element
			if err := it.Item().Value(func(val []byte) error {
				var decodeErr error
				el, decodeErr = deserializeElement(val)
				return decodeErr
			}); err != nil {
				return err
			}
			if err := fn(el); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, ErrIterationStopped) {
		return nil
	}
	return err
}

// Count returns the number of stored elements.
func (b *BadgerEngine) Count() (int64, error) {
	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	var count int64
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := []byte{prefixElement}
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Close releases the sequence and closes the database.
func (b *BadgerEngine) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return errors.Join(b.seq.Release(), b.db.Close())
}

// DBOptions returns the Badger options used for element and library
// databases. An empty dir with inMemory unset is rejected by badger.Open.
func DBOptions(dir string, inMemory, syncWrites bool, logger *slog.Logger) badger.Options {
	o := badger.DefaultOptions(dir)
	if inMemory {
		o = o.WithDir("").WithValueDir("").WithInMemory(true)
	}
	if syncWrites {
		o = o.WithSyncWrites(true)
	}
	if logger != nil {
		o = o.WithLogger(badgerLogger{logger})
	} else {
		o = o.WithLogger(nil)
	}

	// Smaller tables than Badger's defaults: element graphs here are
	// modest and the store may run several engines side by side.
	return o.
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithBlockCacheSize(32 << 20).
		WithIndexCacheSize(16 << 20)
}

// badgerLogger forwards Badger's printf-style logging to slog.
type badgerLogger struct {
	l *slog.Logger
}

func (b badgerLogger) Errorf(format string, args ...any) {
	b.l.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (b badgerLogger) Warningf(format string, args ...any) {
	b.l.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (b badgerLogger) Infof(format string, args ...any) {
	b.l.Info(fmt.Sprintf(format, args...), "component", "badger")
}

func (b badgerLogger) Debugf(format string, args ...any) {
	b.l.Debug(fmt.Sprintf(format, args...), "component", "badger")
}
