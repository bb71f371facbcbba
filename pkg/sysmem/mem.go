// Package sysmem detects total system memory.
//
// gopsutil is asked first; platforms where it fails fall back to a direct
// system call, and finally to a fixed default.
package sysmem

import (
	"os"

	"github.com/shirou/gopsutil/v4/mem"
)

// DefaultMemoryBytes is the fallback memory value (4 GB) used when
// detection fails or is unsupported.
const DefaultMemoryBytes uint64 = 4 * 1024 * 1024 * 1024

// Result holds the result of memory detection.
type Result struct {
	// TotalBytes is the total system memory in bytes.
	TotalBytes uint64

	// AvailableBytes is the memory the kernel reports as available for new
	// allocations, or 0 when unknown.
	AvailableBytes uint64

	// Reliable indicates whether the value was detected (true) or is the
	// fallback default (false).
	Reliable bool
}

// Total returns the total system memory.
// If detection fails it returns DefaultMemoryBytes with Reliable=false.
func Total() Result {
	if vm, err := mem.VirtualMemory(); err == nil && vm.Total > 0 {
		return Result{
			TotalBytes:     vm.Total,
			AvailableBytes: vm.Available,
			Reliable:       true,
		}
	}

	total, free, ok := sysinfoMemory()
	if !ok || total == 0 {
		return Result{
			TotalBytes: DefaultMemoryBytes,
			Reliable:   false,
		}
	}
	return Result{
		TotalBytes:     total,
		AvailableBytes: free,
		Reliable:       true,
	}
}

// TotalBytes is a convenience function that returns just the memory value.
// Use Total() if you need to know whether the value is reliable.
func TotalBytes() uint64 {
	return Total().TotalBytes
}

// PageSize returns the system page size in bytes.
func PageSize() int {
	return os.Getpagesize()
}
