//go:build !linux

package numa

// NewAllocator returns the platform allocator.
func NewAllocator() Allocator {
	return HeapAllocator{}
}

// DomainOf is always UnknownDomain without get_mempolicy.
func DomainOf(buf *Buffer) int {
	return UnknownDomain
}

// Census needs move_pages.
func Census(buf *Buffer) (PageCensus, error) {
	return PageCensus{}, ErrUnsupported
}
