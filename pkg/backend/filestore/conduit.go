package filestore

import (
	"sort"
	"sync"

	"github.com/gadgetlabs/Gaffer/pkg/element"
)

// Conduit collects the batches published by concurrent readers.
//
// A batch is published whole or not at all, so a reader that fails midway
// contributes nothing. Once discarded, a conduit drops later batches.
type Conduit struct {
	mu        sync.Mutex
	batches   map[int][]element.Element
	discarded bool
}

// NewConduit returns an empty conduit.
func NewConduit() *Conduit {
	return &Conduit{batches: make(map[int][]element.Element)}
}

// Publish stores a copy of batch under index. It reports false when the
// conduit was discarded.
func (c *Conduit) Publish(index int, batch []element.Element) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.discarded {
		return false
	}
	owned := make([]element.Element, len(batch))
	copy(owned, batch)
	c.batches[index] = append(c.batches[index], owned...)
	return true
}

// Discard drops every published batch.
func (c *Conduit) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discarded = true
	c.batches = make(map[int][]element.Element)
}

// Len returns the number of published elements.
func (c *Conduit) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range c.batches {
		n += len(b)
	}
	return n
}

// Drain returns the published elements ordered by batch index and empties
// the conduit.
func (c *Conduit) Drain() []element.Element {
	c.mu.Lock()
	defer c.mu.Unlock()
	indexes := make([]int, 0, len(c.batches))
	n := 0
	for i, b := range c.batches {
		indexes = append(indexes, i)
		n += len(b)
	}
	sort.Ints(indexes)
	out := make([]element.Element, 0, n)
	for _, i := range indexes {
		out = append(out, c.batches[i]...)
	}
	c.batches = make(map[int][]element.Element)
	return out
}
