package latency

import "unsafe"

// SlotSize is the width of one ring slot in bytes.
const SlotSize = int(unsafe.Sizeof(uintptr(0)))

// Slots reinterprets mem as pointer-sized slots. Trailing bytes that do not
// fill a whole slot are ignored. Returns nil when mem holds no full slot.
//
// mem must be at least pointer-aligned; page-aligned mappings and Go heap
// allocations both are.
func Slots(mem []byte) []uintptr {
	n := len(mem) / SlotSize
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*uintptr)(unsafe.Pointer(unsafe.SliceData(mem))), n)
}

// BuildRing writes a single closed cycle through slots in the order given by
// perm: slot perm[k] receives the address of slot perm[k+1], and slot
// perm[n-1] points back at slot perm[0]. A one-element perm becomes a
// self-loop; an empty perm writes nothing.
//
// perm must be a permutation of 0..len(slots)-1.
func BuildRing(slots []uintptr, perm []int) {
	n := len(perm)
	if n == 0 {
		return
	}
	for k := 0; k < n-1; k++ {
		slots[perm[k]] = slotAddr(slots, perm[k+1])
	}
	slots[perm[n-1]] = slotAddr(slots, perm[0])
}

// SlotIndex maps a slot address written by BuildRing back to its index.
// It returns -1 for addresses outside slots.
func SlotIndex(slots []uintptr, addr uintptr) int {
	if len(slots) == 0 {
		return -1
	}
	base := slotAddr(slots, 0)
	if addr < base {
		return -1
	}
	off := addr - base
	if off%uintptr(SlotSize) != 0 {
		return -1
	}
	i := int(off / uintptr(SlotSize))
	if i >= len(slots) {
		return -1
	}
	return i
}

func slotAddr(slots []uintptr, i int) uintptr {
	return uintptr(unsafe.Pointer(&slots[i]))
}
