package numa

import (
	"errors"
	"fmt"
	"sort"
	"unsafe"
)

// ErrInvalidSize is returned for non-positive allocation sizes.
var ErrInvalidSize = errors.New("numa: invalid buffer size")

// Buffer is a measurement region owned by one worker for one size
// iteration. It is released and replaced, never resized.
type Buffer struct {
	mem  []byte
	node int
	free func([]byte) error
}

// Bytes exposes the region. It is invalid after Free.
func (b *Buffer) Bytes() []byte { return b.mem }

// Len returns the region length in bytes.
func (b *Buffer) Len() int { return len(b.mem) }

// Node is the domain the buffer was requested on, or NoDomain.
func (b *Buffer) Node() int { return b.node }

// Addr returns the start address of the region, 0 for an empty buffer.
func (b *Buffer) Addr() uintptr {
	if b == nil || len(b.mem) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(b.mem)))
}

// Free releases the region. Calling Free twice is a no-op.
func (b *Buffer) Free() error {
	if b == nil || b.mem == nil {
		return nil
	}
	mem := b.mem
	b.mem = nil
	if b.free == nil {
		return nil
	}
	return b.free(mem)
}

// Allocator places measurement buffers.
type Allocator interface {
	Alloc(size int, node int) (*Buffer, error)
}

// HeapAllocator allocates from the Go heap and ignores the node request.
// It backs tests and platforms without mbind.
type HeapAllocator struct{}

// Alloc returns a zeroed heap buffer of size bytes.
func (HeapAllocator) Alloc(size int, node int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	return &Buffer{mem: make([]byte, size), node: node}, nil
}

// PageCensus counts the resident pages of a buffer per NUMA node.
type PageCensus struct {
	Pages    int         `json:"pages"`
	ByNode   map[int]int `json:"by_node"`
	NotFound int         `json:"not_found"`
}

// Nodes returns the nodes holding at least one page, in ascending order.
func (c PageCensus) Nodes() []int {
	nodes := make([]int, 0, len(c.ByNode))
	for n := range c.ByNode {
		nodes = append(nodes, n)
	}
	sort.Ints(nodes)
	return nodes
}
