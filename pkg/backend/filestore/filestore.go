// Package filestore is the store backend over JSON-lines partition files.
//
// Every AddElements call writes one immutable partition under
// <gaffer.store.data.dir>/<graphId>. Queries read the partitions with a
// bounded set of concurrent readers which apply the view's
// pre-aggregation filter as they decode; aggregation and the remaining
// view stages are left to the store.
//
// Example Usage:
//
//	props := store.NewProperties(store.KeyStoreClass, filestore.Class,
//		store.KeyDataDir, "/var/lib/gaffer", store.KeyFileReaders, "8")
//	s, err := store.New("graph1", sch, props, filestore.New())
package filestore

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/gadgetlabs/Gaffer/pkg/element"
	"github.com/gadgetlabs/Gaffer/pkg/operation"
	"github.com/gadgetlabs/Gaffer/pkg/pool"
	"github.com/gadgetlabs/Gaffer/pkg/schema"
	"github.com/gadgetlabs/Gaffer/pkg/store"
	"github.com/gadgetlabs/Gaffer/pkg/view"
)

// Class is the store class served by this package.
const Class = "file"

const (
	partitionPrefix = "part-"
	partitionSuffix = ".jsonl"
	maxLineSize     = 64 * 1024 * 1024
)

// ErrCorruptPartition is returned when a partition line cannot be decoded.
var ErrCorruptPartition = errors.New("corrupt partition")

// Backend stores elements in partition files.
type Backend struct {
	mu      sync.Mutex
	dir     string
	next    int
	readers int
	logger  *slog.Logger
}

var _ store.Backend = (*Backend)(nil)

// New returns an uninitialised file backend.
func New() store.Backend {
	return &Backend{logger: slog.Default()}
}

// Initialise creates the graph directory and finds the next partition
// index.
func (b *Backend) Initialise(graphID string, _ *schema.Schema, props *store.Properties) error {
	if props.DataDir() == "" {
		return fmt.Errorf("%s is required for the file store", store.KeyDataDir)
	}
	b.dir = filepath.Join(props.DataDir(), graphID)
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", b.dir, err)
	}
	parts, err := b.partitions()
	if err != nil {
		return err
	}
	if n := len(parts); n > 0 {
		b.next = parts[n-1].index + 1
	}
	b.readers = props.FileReaders()
	b.logger = b.logger.With("graphId", graphID, "storeClass", Class)
	b.logger.Debug("File store opened.", "dir", b.dir, "partitions", len(parts), "readers", b.readers)
	return nil
}

// Traits: readers apply the pre-aggregation filter while decoding.
func (b *Backend) Traits() store.TraitSet {
	return store.NewTraitSet(store.PreAggregationFiltering)
}

func (b *Backend) GetElementsHandler() store.Handler {
	return store.TypedHandler(func(op *operation.GetElements, ctx *store.Context, _ *store.Store) (any, error) {
		opts := store.SeedOptionsOf(op)
		return b.read(ctx.Context(), op.View, func(el element.Element) (element.Element, bool) {
			return store.MatchSeeds(el, op.Input, opts)
		})
	})
}

func (b *Backend) GetAllElementsHandler() store.Handler {
	return store.TypedHandler(func(op *operation.GetAllElements, ctx *store.Context, _ *store.Store) (any, error) {
		return b.read(ctx.Context(), op.View, keepAll)
	})
}

func (b *Backend) GetAdjacentIdsHandler() store.Handler {
	return store.TypedHandler(func(op *operation.GetAdjacentIds, ctx *store.Context, s *store.Store) (any, error) {
		opts := store.SeedOptions{
			Matching:     operation.SeedMatchingRelated,
			InOut:        op.IncludeIncomingOutgoing,
			DirectedType: op.DirectedType,
		}
		edges, err := b.read(ctx.Context(), op.View, func(el element.Element) (element.Element, bool) {
			if _, ok := el.(*element.Edge); !ok {
				return nil, false
			}
			return store.MatchSeeds(el, op.Input, opts)
		})
		if err != nil {
			return nil, err
		}
		edges = store.FilterDirected(edges, op.DirectedType)
		if edges, err = s.ElementPipeline(op.View, ctx).Run(edges); err != nil {
			return nil, err
		}
		return store.AdjacentIDs(edges, op.Input, opts), nil
	})
}

// AddElementsHandler writes the input as a new partition.
func (b *Backend) AddElementsHandler() store.Handler {
	return store.TypedHandler(func(op *operation.AddElements, ctx *store.Context, _ *store.Store) (any, error) {
		if len(op.Input) == 0 {
			return nil, nil
		}
		path, err := b.writePartition(op.Input)
		if err != nil {
			return nil, err
		}
		ctx.Logger().Debug("Wrote partition.", "path", path, "count", len(op.Input))
		return nil, nil
	})
}

func (b *Backend) AddAdditionalOperationHandlers(*store.HandlerRegistry) {}

func (b *Backend) Close() error { return nil }

// ============================================================================
// Partitions
// ============================================================================

type partition struct {
	index int
	path  string
}

func partitionName(index int) string {
	return fmt.Sprintf("%s%08d%s", partitionPrefix, index, partitionSuffix)
}

// partitions lists the partition files in index order.
func (b *Backend) partitions() ([]partition, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", b.dir, err)
	}
	var out []partition
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, partitionPrefix) || !strings.HasSuffix(name, partitionSuffix) {
			continue
		}
		index, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, partitionPrefix), partitionSuffix))
		if err != nil {
			continue
		}
		out = append(out, partition{index: index, path: filepath.Join(b.dir, name)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out, nil
}

// writePartition encodes els into a temporary file and renames it into
// place, so readers never see a partial partition.
func (b *Backend) writePartition(els []element.Element) (string, error) {
	buf := pool.GetByteBuffer()
	defer func() { pool.PutByteBuffer(buf) }()
	for i, el := range els {
		line, err := json.Marshal(el)
		if err != nil {
			return "", fmt.Errorf("encoding element %d: %w", i, err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	path := filepath.Join(b.dir, partitionName(b.next))
	tmp, err := os.CreateTemp(b.dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("creating partition: %w", err)
	}
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing partition: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("closing partition: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("publishing partition: %w", err)
	}
	b.next++
	return path, nil
}

// ============================================================================
// Concurrent readers
// ============================================================================

// keepFunc selects and rewrites a decoded element. Returning false drops it.
type keepFunc func(el element.Element) (element.Element, bool)

func keepAll(el element.Element) (element.Element, bool) { return el, true }

// read decodes every partition with at most b.readers concurrent readers.
// The first failure cancels the others and nothing is returned.
func (b *Backend) read(ctx context.Context, v *view.View, keep keepFunc) ([]element.Element, error) {
	parts, err := b.partitions()
	if err != nil {
		return nil, err
	}
	c := NewConduit()
	if err := readPartitions(ctx, parts, b.readers, v, keep, c); err != nil {
		return nil, err
	}
	return c.Drain(), nil
}

// readPartitions runs one reader per partition. Each reader publishes its
// whole batch to c on success; on any failure c is discarded.
func readPartitions(ctx context.Context, parts []partition, limit int, v *view.View, keep keepFunc, c *Conduit) error {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, p := range parts {
		g.Go(func() error {
			batch := pool.GetElementSlice()
			defer func() { pool.PutElementSlice(batch) }()

			var err error
			if batch, err = readPartition(gctx, p.path, v, keep, batch); err != nil {
				return err
			}
			if !c.Publish(p.index, batch) {
				return context.Canceled
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.Discard()
		return err
	}
	return nil
}

// readPartition appends the kept elements of the partition at path to
// batch.
func readPartition(ctx context.Context, path string, v *view.View, keep keepFunc, batch []element.Element) ([]element.Element, error) {
	f, err := os.Open(path)
	if err != nil {
		return batch, fmt.Errorf("opening partition: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		if line%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return batch, err
			}
		}
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		el, err := element.UnmarshalElement(raw)
		if err != nil {
			return batch, fmt.Errorf("%w: %s line %d: %v", ErrCorruptPartition, filepath.Base(path), line, err)
		}
		def, ok := v.Element(el.Group())
		if !ok {
			continue
		}
		pass, err := def.PreAggregationFilter.Test(el)
		if err != nil {
			return batch, fmt.Errorf("pre-aggregation filter: %w", err)
		}
		if !pass {
			continue
		}
		if el, ok = keep(el); ok {
			batch = append(batch, el)
		}
	}
	if err := sc.Err(); err != nil {
		return batch, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	return batch, ctx.Err()
}
