package latency

import "unsafe"

// sink keeps the last pointer of every traversal observable so the loads in
// chase cannot be eliminated.
var sink uintptr

// chase follows the ring hops times starting at p and returns where it
// stopped. The loop does nothing but dependent loads.
//
// p must point into a ring built by BuildRing whose backing memory stays
// alive for the duration of the call.
//
//go:noinline
func chase(p unsafe.Pointer, hops int) unsafe.Pointer {
	for i := 0; i < hops; i++ {
		p = *(*unsafe.Pointer)(p)
	}
	return p
}
