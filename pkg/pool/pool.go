// Package pool provides object pooling for element readers to reduce
// allocations.
//
// Object pooling reuses allocated objects instead of creating new ones,
// reducing GC pressure when many partitions are decoded concurrently.
//
// Pooled objects:
// - Element slices (one batch per partition read)
// - Byte buffers (encoded lines on write)
//
// Usage:
//
//	// Get a slice from pool
//	batch := pool.GetElementSlice()
//	defer pool.PutElementSlice(batch)
//
//	// Use the slice...
//	batch = append(batch, el)
package pool

import (
	"sync"

	"github.com/gadgetlabs/Gaffer/pkg/element"
)

// PoolConfig configures object pooling behavior.
type PoolConfig struct {
	// Enabled controls whether pooling is active
	Enabled bool

	// MaxSize limits the capacity of slices kept in each pool
	MaxSize int
}

// DefaultMaxSize is the slice capacity above which slices are not pooled.
const DefaultMaxSize = 4096

var (
	configMu     sync.RWMutex
	globalConfig = PoolConfig{
		Enabled: true,
		MaxSize: DefaultMaxSize,
	}
)

// Configure sets global pool configuration.
// Should be called early during initialization.
func Configure(config PoolConfig) {
	if config.MaxSize <= 0 {
		config.MaxSize = DefaultMaxSize
	}
	configMu.Lock()
	globalConfig = config
	configMu.Unlock()

	// Reinitialize pools so slices sized for the old limit are dropped
	initPools()
}

func current() PoolConfig {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}

// initPools reinitializes all pools with their New functions.
func initPools() {
	elementSlicePool = sync.Pool{
		New: func() any {
			return make([]element.Element, 0, 64)
		},
	}
	byteBufferPool = sync.Pool{
		New: func() any {
			return make([]byte, 0, 1024)
		},
	}
}

// IsEnabled returns whether pooling is enabled.
func IsEnabled() bool {
	return current().Enabled
}

// =============================================================================
// Element Slice Pool (one batch per partition read)
// =============================================================================

var elementSlicePool = sync.Pool{
	New: func() any {
		// Pre-allocate with reasonable capacity
		return make([]element.Element, 0, 64)
	},
}

// GetElementSlice returns an element slice from the pool.
// The returned slice has length 0 but may have capacity.
// Call PutElementSlice when done.
func GetElementSlice() []element.Element {
	if !IsEnabled() {
		return make([]element.Element, 0, 64)
	}
	return elementSlicePool.Get().([]element.Element)[:0]
}

// PutElementSlice returns an element slice to the pool.
// The slice is cleared before being pooled.
func PutElementSlice(els []element.Element) {
	cfg := current()
	if !cfg.Enabled || els == nil {
		return
	}
	// Don't pool very large slices (memory leak prevention)
	if cap(els) > cfg.MaxSize {
		return
	}
	// Clear references to allow GC of the elements
	clear(els[:cap(els)])
	elementSlicePool.Put(els[:0])
}

// =============================================================================
// Byte Buffer Pool
// =============================================================================

var byteBufferPool = sync.Pool{
	New: func() any {
		return make([]byte, 0, 1024)
	},
}

// GetByteBuffer returns a byte buffer from the pool.
func GetByteBuffer() []byte {
	if !IsEnabled() {
		return make([]byte, 0, 1024)
	}
	return byteBufferPool.Get().([]byte)[:0]
}

// PutByteBuffer returns a byte buffer to the pool.
func PutByteBuffer(buf []byte) {
	if !IsEnabled() || buf == nil {
		return
	}
	if cap(buf) > 1024*1024 { // Don't pool huge buffers (>1MB)
		return
	}
	byteBufferPool.Put(buf[:0])
}
