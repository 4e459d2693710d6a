// Package cache stores exported operation results keyed by job id and
// export key.
//
// Two implementations are provided:
//   - MemoryCache: process-local LRU with optional TTL
//   - RedisCache: shared cache on Redis, values encoded as JSON
//
// Usage:
//
//	c := cache.NewMemoryCache(1000, 10*time.Minute)
//	_ = c.Put(ctx, jobID, "ALL", results)
//	items, ok, err := c.Get(ctx, jobID, "ALL")
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gadgetlabs/Gaffer/pkg/element"
)

// ErrEncoding is returned when cached items cannot be encoded or decoded.
var ErrEncoding = errors.New("cache encoding error")

// ResultCache stores result lists under (jobID, key).
type ResultCache interface {
	// Put replaces the items stored under (jobID, key).
	Put(ctx context.Context, jobID, key string, items []any) error
	// Get returns the items and true, or false when nothing is stored.
	Get(ctx context.Context, jobID, key string) ([]any, bool, error)
	// Close releases the cache's resources.
	Close() error
}

// EncodeItems encodes items as a JSON array. Elements and seeds keep their
// class envelope so they decode back to the same types.
func EncodeItems(items []any) ([]byte, error) {
	if items == nil {
		items = []any{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return data, nil
}

// DecodeItems reverses EncodeItems. Objects with an element or seed class
// decode to elements or seeds; everything else decodes as plain JSON with
// integers kept as int64.
func DecodeItems(data []byte) ([]any, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	out := make([]any, 0, len(raws))
	for i, raw := range raws {
		item, err := decodeItem(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", ErrEncoding, i, err)
		}
		out = append(out, item)
	}
	return out, nil
}

func decodeItem(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var head struct {
			Class string `json:"class"`
		}
		if err := json.Unmarshal(trimmed, &head); err == nil {
			switch head.Class {
			case element.ClassEntity, element.ClassEdge:
				return element.UnmarshalElement(trimmed)
			case element.ClassEntitySeed, element.ClassEdgeSeed:
				return element.UnmarshalID(trimmed)
			}
		}
	}
	return element.DecodeValue(trimmed)
}
