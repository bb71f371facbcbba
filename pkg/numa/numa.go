// Package numa answers where a worker runs and where its memory lives.
//
// On Linux it queries the kernel directly (getcpu, sched_getaffinity,
// get_mempolicy, move_pages) and places measurement buffers with mmap and
// mbind. /sys/devices/system/node is read for node lists and as the fallback
// CPU-to-node map. Elsewhere buffers come from the Go heap and every domain is
// reported as unknown.
package numa

import (
	"errors"
	"fmt"
)

// UnknownDomain is recorded whenever a CPU or memory domain cannot be
// resolved.
const UnknownDomain = -1

// NoDomain asks the allocator to leave placement to the kernel (or to an
// outer numactl).
const NoDomain = -1

// ErrUnsupported is returned by operations that need Linux NUMA syscalls.
var ErrUnsupported = errors.New("numa: not supported on this platform")

// Affinity is one worker's placement for one size iteration.
type Affinity struct {
	Rank         int     `json:"rank"`
	CPU          int     `json:"cpu"`
	CPUDomain    int     `json:"cpu_numa"`
	MemoryDomain int     `json:"memory_numa"`
	CPUList      string  `json:"cpu_list"`
	BufferAddr   uintptr `json:"buffer_addr"`
}

// MemoryDomainLabel renders the memory domain the way the table prints it.
func (a Affinity) MemoryDomainLabel() string {
	if a.MemoryDomain < 0 {
		return "N/A"
	}
	return fmt.Sprintf("%d", a.MemoryDomain)
}

// AddrLabel renders the buffer address as a hex pointer.
func (a Affinity) AddrLabel() string {
	if a.BufferAddr == 0 {
		return "(nil)"
	}
	return fmt.Sprintf("%#x", a.BufferAddr)
}
