package numa

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeapAllocator(t *testing.T) {
	buf, err := HeapAllocator{}.Alloc(1<<20, 1)
	require.NoError(t, err)
	assert.Equal(t, 1<<20, buf.Len())
	assert.Equal(t, 1, buf.Node())
	assert.NotZero(t, buf.Addr())

	require.NoError(t, buf.Free())
	assert.Nil(t, buf.Bytes())
	assert.Zero(t, buf.Addr())
	require.NoError(t, buf.Free(), "second Free is a no-op")
}

func TestAllocInvalidSize(t *testing.T) {
	_, err := HeapAllocator{}.Alloc(0, NoDomain)
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = NewAllocator().Alloc(-1, NoDomain)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestPlatformAllocator(t *testing.T) {
	buf, err := NewAllocator().Alloc(4<<20, NoDomain)
	require.NoError(t, err)
	defer buf.Free()

	mem := buf.Bytes()
	require.Len(t, mem, 4<<20)
	mem[0], mem[len(mem)-1] = 1, 2
	assert.Equal(t, byte(2), mem[len(mem)-1])

	d := DomainOf(buf)
	assert.GreaterOrEqual(t, d, UnknownDomain)

	c, err := Census(buf)
	if errors.Is(err, ErrUnsupported) {
		t.Skip("page census not supported here")
	}
	if err != nil {
		t.Skipf("move_pages unavailable: %v", err)
	}
	assert.Positive(t, c.Pages)
	total := c.NotFound
	for _, n := range c.ByNode {
		total += n
	}
	assert.Equal(t, c.Pages, total)
}

func TestBindToFirstOnlineNode(t *testing.T) {
	topo := NewTopology()
	if !topo.Available() {
		t.Skip("no NUMA nodes exposed")
	}
	node := topo.Nodes()[0]

	buf, err := NewAllocator().Alloc(1<<20, node)
	if err != nil {
		t.Skipf("mbind refused: %v", err)
	}
	defer buf.Free()

	assert.Equal(t, node, buf.Node())
	assert.Equal(t, node, DomainOf(buf))
}

func TestPageCensusNodes(t *testing.T) {
	c := PageCensus{Pages: 6, ByNode: map[int]int{3: 1, 0: 4, 1: 1}}
	assert.Equal(t, []int{0, 1, 3}, c.Nodes())
	assert.Empty(t, PageCensus{}.Nodes())
}
