//go:build linux

package numa

import (
	"fmt"
	"unsafe"

	"github.com/eunmann/numabench/pkg/sysmem"
	"golang.org/x/sys/unix"
)

// Memory policy values from <linux/mempolicy.h>.
const (
	mpolBind     = 2
	mpolFNode    = 1 << 0
	mpolFAddr    = 1 << 1
	mpolMFStrict = 1 << 0
	mpolMFMove   = 1 << 1
)

// MmapAllocator maps anonymous private memory, binds it to the requested
// node and faults every page in so placement is settled before timing.
type MmapAllocator struct{}

// NewAllocator returns the platform allocator.
func NewAllocator() Allocator {
	return MmapAllocator{}
}

// Alloc maps size bytes and, unless node is NoDomain, binds them to node.
func (MmapAllocator) Alloc(size int, node int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %w", size, err)
	}

	if node >= 0 {
		if err := mbind(mem, node); err != nil {
			_ = unix.Munmap(mem)
			return nil, err
		}
	}

	page := sysmem.PageSize()
	for off := 0; off < len(mem); off += page {
		mem[off] = 0
	}

	return &Buffer{mem: mem, node: node, free: unix.Munmap}, nil
}

func mbind(mem []byte, node int) error {
	mask := make([]uint64, node/64+1)
	mask[node/64] |= 1 << (uint(node) % 64)
	maxnode := uintptr(len(mask)*64) + 1

	_, _, errno := unix.Syscall6(unix.SYS_MBIND,
		uintptr(unsafe.Pointer(unsafe.SliceData(mem))),
		uintptr(len(mem)),
		mpolBind,
		uintptr(unsafe.Pointer(&mask[0])),
		maxnode,
		mpolMFStrict|mpolMFMove)
	if errno != 0 {
		return fmt.Errorf("mbind node %d: %w", node, errno)
	}
	return nil
}

// DomainOf returns the node backing the first page of buf, or UnknownDomain.
func DomainOf(buf *Buffer) int {
	addr := buf.Addr()
	if addr == 0 {
		return UnknownDomain
	}
	var node int32
	_, _, errno := unix.Syscall6(unix.SYS_GET_MEMPOLICY,
		uintptr(unsafe.Pointer(&node)),
		0, 0,
		addr,
		mpolFNode|mpolFAddr,
		0)
	if errno != 0 {
		return UnknownDomain
	}
	return int(node)
}

// Census reports, page by page, which node holds buf. Pages not yet
// faulted in are counted as NotFound.
func Census(buf *Buffer) (PageCensus, error) {
	mem := buf.Bytes()
	page := sysmem.PageSize()
	n := (len(mem) + page - 1) / page
	c := PageCensus{Pages: n, ByNode: make(map[int]int)}
	if n == 0 {
		return c, nil
	}

	pages := make([]uintptr, n)
	base := buf.Addr()
	for i := range pages {
		pages[i] = base + uintptr(i*page)
	}
	status := make([]int32, n)

	_, _, errno := unix.Syscall6(unix.SYS_MOVE_PAGES,
		0,
		uintptr(n),
		uintptr(unsafe.Pointer(&pages[0])),
		0,
		uintptr(unsafe.Pointer(&status[0])),
		0)
	if errno != 0 {
		return c, fmt.Errorf("move_pages: %w", errno)
	}

	for _, s := range status {
		if s < 0 {
			c.NotFound++
			continue
		}
		c.ByNode[int(s)]++
	}
	return c, nil
}
